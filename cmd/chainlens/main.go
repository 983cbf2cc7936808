package main

import (
	"encoding/json"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"chainLens/internal/apperr"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(exitCode(err))
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "chainlens",
		Short:        "Block-time resolution and native-currency pricing for EVM networks",
		SilenceUsage: true,
	}

	flags := root.PersistentFlags()
	flags.String("config", "", "config file path")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("networks-file", "", "network registry YAML (defaults to the built-in table)")
	flags.Bool("strict-registry", false, "reject registries with both pricing pools on a network")
	flags.String("rpc-template", "", "JSON-RPC URL template, {network} and {key} are substituted")
	flags.String("rpc-key", "", "API key substituted for {key}")
	flags.Float64("rpc-rate-limit", 0, "requests per second per client, 0 disables limiting")
	flags.Int("rpc-burst", 1, "rate limiter burst")
	flags.Int("rpc-max-retries", 2, "retries of failed header reads")
	flags.Duration("rpc-retry-backoff", 250*time.Millisecond, "initial retry backoff")
	flags.Int("cache-max-entries", 64, "maximum cached RPC clients and database pools")
	flags.Duration("cache-idle-ttl", 30*time.Minute, "close cached resources idle for this long, 0 keeps them")
	flags.Bool("db-enabled", false, "memoize native prices in the per-network Postgres cache")
	flags.String("metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9090")

	root.AddCommand(
		newNetworksCmd(),
		newBlockAtCmd(),
		newBlockTimeCmd(),
		newFinalBlockCmd(),
		newBlocksBetweenCmd(),
		newPriceCmd(),
		newPricesCmd(),
		newGasCmd(),
		newCurrencyCmd(),
	)
	return root
}

// exitCode maps error classes to distinct exit statuses.
func exitCode(err error) int {
	switch apperr.StatusCode(err) {
	case http.StatusBadRequest:
		return 2
	case http.StatusNotFound:
		return 3
	default:
		return 1
	}
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
