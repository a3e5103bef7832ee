package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const wrapWidth = 50

// wrapString wraps help text at wrapWidth characters, matching
// cmd/util.WrapString's layout for cobra flag descriptions.
func wrapString(text string) string {
	var lines []string
	var cur strings.Builder
	width := 0
	for _, word := range strings.Fields(text) {
		if width > 0 && width+1+len(word) > wrapWidth {
			lines = append(lines, cur.String())
			cur.Reset()
			width = 0
		}
		if width > 0 {
			cur.WriteString(" ")
			width++
		}
		cur.WriteString(word)
		width += len(word)
	}
	if cur.Len() > 0 {
		lines = append(lines, cur.String())
	}
	return strings.Join(lines, "\n")
}

// SetupFlags registers the persistent flags DefaultClientConfig's
// fields can be overridden by, the same way cmd/util.SetupRPCClientFlags
// registers them for the teacher's RPC client.
func SetupFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().String("endpoints", "127.0.0.1:3000", wrapString("Comma-separated list of node endpoints (host:port)"))
	cmd.PersistentFlags().Int("timeout", 1, wrapString("Default per-command timeout, in seconds"))
	cmd.PersistentFlags().Int("retry-count", 2, wrapString("Default number of retries attempted after the first try"))
	cmd.PersistentFlags().Int("connections-per-endpoint", 8, wrapString("Pooled connections held open per node"))
	cmd.PersistentFlags().Int("max-idle-seconds", 300, wrapString("How long a pooled connection may sit idle before being reaped"))
	cmd.PersistentFlags().Int("buffer-cutoff-kb", 128, wrapString("Fixed-capacity buffer slab size, in KB, before falling back to one-off allocation"))
	cmd.PersistentFlags().Int("event-context-pool-size", 256, wrapString("Maximum commands in flight across the whole client at once"))
	cmd.PersistentFlags().Int("supervisor-interval-ms", 20, wrapString("How often the timeout supervisor sweeps in-flight commands"))
	cmd.PersistentFlags().String("user", "", wrapString("Credential presented during the connection auth exchange; empty disables auth"))
	cmd.PersistentFlags().String("log-level", "info", wrapString("Log level (debug, info, warn, error)"))
}

// BindFlags binds cmd's flags into viper, the way cmd/util.BindCommandFlags
// does for the teacher's RPC commands.
func BindFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}

// InitEnv loads .env/.env.local (if present) and configures viper to
// read DKV_<FLAG> environment variables, mirroring
// cmd/util.InitClientConfig / cmd/serve/root.go's initConfig.
func InitEnv() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	viper.SetEnvPrefix("dkv")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

// FromViper builds a ClientConfig from whatever SetupFlags registered,
// after BindFlags/InitEnv have run, layering defaults for everything
// this client's policy package governs but no flag exposes.
func FromViper() *ClientConfig {
	cfg := DefaultClientConfig()

	if v := viper.GetString("endpoints"); v != "" {
		cfg.Endpoints = strings.Split(v, ",")
	}
	if viper.IsSet("timeout") {
		cfg.TimeoutSecond = viper.GetInt("timeout")
		cfg.Policy.Timeout = time.Duration(cfg.TimeoutSecond) * time.Second
		cfg.BatchPolicy.Timeout = cfg.Policy.Timeout
		cfg.ScanQueryPolicy.Timeout = cfg.Policy.Timeout
	}
	if viper.IsSet("retry-count") {
		cfg.RetryCount = viper.GetInt("retry-count")
		cfg.Policy.MaxRetries = cfg.RetryCount
		cfg.BatchPolicy.MaxRetries = cfg.RetryCount
		cfg.ScanQueryPolicy.MaxRetries = cfg.RetryCount
	}
	if viper.IsSet("connections-per-endpoint") {
		cfg.ConnectionsPerEndpoint = viper.GetInt("connections-per-endpoint")
	}
	if viper.IsSet("max-idle-seconds") {
		cfg.MaxIdle = time.Duration(viper.GetInt("max-idle-seconds")) * time.Second
	}
	if viper.IsSet("buffer-cutoff-kb") {
		cfg.BufferCutoff = viper.GetInt("buffer-cutoff-kb") * 1024
	}
	if viper.IsSet("event-context-pool-size") {
		cfg.EventContextPoolSize = viper.GetInt("event-context-pool-size")
	}
	if viper.IsSet("supervisor-interval-ms") {
		cfg.SupervisorInterval = time.Duration(viper.GetInt("supervisor-interval-ms")) * time.Millisecond
	}
	if viper.IsSet("user") {
		cfg.User = viper.GetString("user")
	}
	if viper.IsSet("log-level") {
		cfg.LogLevel = viper.GetString("log-level")
	}

	return cfg
}
