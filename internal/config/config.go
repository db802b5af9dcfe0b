// Package config provides configuration loading for the Offcourse sync core.
// Values come from defaults, an optional .env file and environment variables,
// in increasing order of precedence.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds the resolved runtime configuration.
type Config struct {
	// DataDir is where the SQLite database and staged attachments live.
	DataDir string

	// ServerURL is the base URL of the LMS web-service endpoint.
	ServerURL string

	// ListenAddr is the localhost address the syncd sidecar serves on.
	ListenAddr string

	// LogLevel is the minimum level emitted by the structured logger.
	LogLevel string

	// SyncInterval is how often the background scheduler sweeps while online.
	SyncInterval time.Duration

	// MinSyncInterval throttles automatic per-entity syncs: a non-forced
	// sync is skipped when the entity synced more recently than this.
	MinSyncInterval time.Duration

	// RequestTimeout bounds each web-service call.
	RequestTimeout time.Duration

	// RetryableErrorCodes lists server error codes treated as transient:
	// actions rejected with one of these are kept for retry instead of
	// being discarded with a warning. Empty by default.
	RetryableErrorCodes []string
}

// Load reads configuration for the given environment ("" means OFFCOURSE_ENV
// or "dev"). A .env.<env> file next to the working directory is loaded if
// present; environment variables override it.
func Load(env string) (*Config, error) {
	v := viper.New()

	if env == "" {
		env = os.Getenv("OFFCOURSE_ENV")
	}
	if env == "" {
		env = "dev"
	}
	env = strings.ToLower(env)

	// defaults
	v.SetTypeByDefaultValue(true)
	v.SetDefault("dataDir", defaultDataDir())
	v.SetDefault("serverUrl", "")
	v.SetDefault("listenAddr", "localhost:8090")
	v.SetDefault("logLevel", "INFO")
	v.SetDefault("syncInterval", 15*time.Minute)
	v.SetDefault("minSyncInterval", 5*time.Minute)
	v.SetDefault("requestTimeout", 30*time.Second)
	v.SetDefault("retryableErrorCodes", []string{})

	// load .env.<env> if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(".", ".env."+env)
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			return nil, err
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	v.SetEnvPrefix("OFFCOURSE")
	v.AutomaticEnv()

	cfg := &Config{
		DataDir:             v.GetString("dataDir"),
		ServerURL:           v.GetString("serverUrl"),
		ListenAddr:          v.GetString("listenAddr"),
		LogLevel:            strings.ToUpper(v.GetString("logLevel")),
		SyncInterval:        v.GetDuration("syncInterval"),
		MinSyncInterval:     v.GetDuration("minSyncInterval"),
		RequestTimeout:      v.GetDuration("requestTimeout"),
		RetryableErrorCodes: v.GetStringSlice("retryableErrorCodes"),
	}

	return cfg, nil
}

// defaultDataDir resolves the platform data directory for the app.
func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "offcourse")
	}
	return "./data"
}
