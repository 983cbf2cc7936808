package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable, e.g. CHAINLENS_RPC_TEMPLATE
// or CHAINLENS_DB_1_HOST for the nested key db.1.host.
const EnvPrefix = "CHAINLENS"

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	LogLevel       string
	NetworksFile   string
	StrictRegistry bool

	RPCTemplate     string
	RPCKey          string
	RPCRateLimit    float64
	RPCBurst        int
	RPCMaxRetries   int
	RPCRetryBackoff time.Duration

	CacheMaxEntries int
	CacheIdleTTL    time.Duration

	DBEnabled   bool
	MetricsAddr string

	v *viper.Viper
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	v.SetDefault("log-level", "info")
	v.SetDefault("strict-registry", false)
	v.SetDefault("rpc-rate-limit", 0.0)
	v.SetDefault("rpc-burst", 1)
	v.SetDefault("rpc-max-retries", 2)
	v.SetDefault("rpc-retry-backoff", 250*time.Millisecond)
	v.SetDefault("cache-max-entries", 64)
	v.SetDefault("cache-idle-ttl", 30*time.Minute)
	v.SetDefault("db-enabled", false)

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Config{
		LogLevel:        v.GetString("log-level"),
		NetworksFile:    v.GetString("networks-file"),
		StrictRegistry:  v.GetBool("strict-registry"),
		RPCTemplate:     v.GetString("rpc-template"),
		RPCKey:          v.GetString("rpc-key"),
		RPCRateLimit:    v.GetFloat64("rpc-rate-limit"),
		RPCBurst:        v.GetInt("rpc-burst"),
		RPCMaxRetries:   v.GetInt("rpc-max-retries"),
		RPCRetryBackoff: v.GetDuration("rpc-retry-backoff"),
		CacheMaxEntries: v.GetInt("cache-max-entries"),
		CacheIdleTTL:    v.GetDuration("cache-idle-ttl"),
		DBEnabled:       v.GetBool("db-enabled"),
		MetricsAddr:     v.GetString("metrics-addr"),
		v:               v,
	}
	if cfg.CacheMaxEntries < 0 {
		return Config{}, fmt.Errorf("cache-max-entries must not be negative, got %d", cfg.CacheMaxEntries)
	}
	if cfg.RPCRateLimit < 0 {
		return Config{}, fmt.Errorf("rpc-rate-limit must not be negative, got %v", cfg.RPCRateLimit)
	}
	return cfg, nil
}

// Viper exposes the merged settings for nested lookups such as database credentials.
func (c Config) Viper() *viper.Viper {
	return c.v
}

// RPCOverrides returns the rpc.<network> endpoints set for any of names.
func (c Config) RPCOverrides(names []string) map[string]string {
	overrides := map[string]string{}
	if c.v == nil {
		return overrides
	}
	for _, name := range names {
		key := strings.ToLower(name)
		if endpoint := strings.TrimSpace(c.v.GetString("rpc." + key)); endpoint != "" {
			overrides[key] = endpoint
		}
	}
	return overrides
}

// SplitList splits a comma-separated flag value, dropping blanks.
func SplitList(input string) []string {
	if input == "" {
		return nil
	}
	return cleanStrings(strings.Split(input, ","))
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}
