package pgcache

import (
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/spf13/viper"

	"chainLens/internal/apperr"
)

// Credentials locate one network's cache database.
type Credentials struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// DSN renders the credentials as a postgres:// URL.
func (c Credentials) DSN() string {
	dsn := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.User, c.Password),
		Host:   net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:   "/" + c.Database,
	}
	if c.SSLMode != "" {
		dsn.RawQuery = url.Values{"sslmode": []string{c.SSLMode}}.Encode()
	}
	return dsn.String()
}

// CredentialSource resolves credentials by chain id.
type CredentialSource interface {
	Credentials(chainID uint64) (Credentials, error)
}

// ViperCredentials reads db.<chainId>.{host,port,user,password,database,sslmode}.
// With the CHAINLENS env prefix that is CHAINLENS_DB_<CHAINID>_HOST and so on.
type ViperCredentials struct {
	v *viper.Viper
}

// NewViperCredentials wraps a configured viper instance.
func NewViperCredentials(v *viper.Viper) *ViperCredentials {
	return &ViperCredentials{v: v}
}

// Credentials implements CredentialSource.
func (s *ViperCredentials) Credentials(chainID uint64) (Credentials, error) {
	prefix := "db." + strconv.FormatUint(chainID, 10) + "."
	get := func(name string) string {
		return strings.TrimSpace(s.v.GetString(prefix + name))
	}

	var missing []string
	required := map[string]string{}
	for _, name := range []string{"host", "port", "user", "password", "database"} {
		value := get(name)
		if value == "" {
			missing = append(missing, name)
		}
		required[name] = value
	}
	if len(missing) > 0 {
		return Credentials{}, apperr.Configf("database credentials for chain %d missing: %s", chainID, strings.Join(missing, ", "))
	}

	port, err := strconv.Atoi(required["port"])
	if err != nil || port <= 0 {
		return Credentials{}, apperr.Configf("database port for chain %d is invalid: %q", chainID, required["port"])
	}
	return Credentials{
		Host:     required["host"],
		Port:     port,
		User:     required["user"],
		Password: required["password"],
		Database: required["database"],
		SSLMode:  get("sslmode"),
	}, nil
}

// StaticCredentials serves fixed credentials, mostly for tests and single-DB setups.
type StaticCredentials map[uint64]Credentials

// Credentials implements CredentialSource.
func (s StaticCredentials) Credentials(chainID uint64) (Credentials, error) {
	creds, ok := s[chainID]
	if !ok {
		return Credentials{}, apperr.Configf("no database credentials for chain %d", chainID)
	}
	return creds, nil
}
