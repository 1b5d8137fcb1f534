// Package config loads the application's settings from the environment.
//
// WHERE SETTINGS COME FROM (lowest to highest precedence):
//  1. Defaults in this file
//  2. An optional dotenv file (KEY=value lines, default ".env")
//  3. Real environment variables
//
// Several keys accept more than one environment variable so that the
// connection strings used by existing deployments (AZURE_SQL_CONNECTION_STRING,
// AZURE_STORAGE_CONNECTION_STRING) keep working unchanged.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/sakif/retail-analytics/internal/retry"
)

// Viper keys.
const (
	KeyStoreDSN       = "store.dsn"
	KeyBlobConnection = "blob.connection"
	KeyBlobContainer  = "blob.container"
	KeyBlobPrefix     = "blob.prefix"
	KeyStagingDir     = "staging.dir"
	KeyChunkSize      = "ingest.chunk_size"
	KeyTransactionCap = "ingest.transaction_cap"
	KeyIOTimeout      = "io.timeout"
	KeyRetryAttempts  = "retry.attempts"
	KeyPort           = "server.port"
	KeyJWTSecret      = "auth.jwt_secret"
	KeyCookieSecure   = "auth.cookie_secure"
	KeyLogLevel       = "log.level"
)

// envBindings maps each key to the environment variables that may set it,
// first match wins.
var envBindings = map[string][]string{
	KeyStoreDSN:       {"DATABASE_URL", "AZURE_SQL_CONNECTION_STRING"},
	KeyBlobConnection: {"BLOB_CONNECTION_STRING", "AZURE_STORAGE_CONNECTION_STRING"},
	KeyBlobContainer:  {"BLOB_CONTAINER"},
	KeyBlobPrefix:     {"BLOB_PREFIX"},
	KeyStagingDir:     {"STAGING_DIR"},
	KeyChunkSize:      {"INGEST_CHUNK_SIZE"},
	KeyTransactionCap: {"INGEST_TRANSACTION_CAP"},
	KeyIOTimeout:      {"IO_TIMEOUT"},
	KeyRetryAttempts:  {"RETRY_ATTEMPTS"},
	KeyPort:           {"PORT"},
	KeyJWTSecret:      {"JWT_SECRET"},
	KeyCookieSecure:   {"COOKIE_SECURE"},
	KeyLogLevel:       {"LOG_LEVEL"},
}

// Config holds every recognized option.
type Config struct {
	StoreDSN       string
	BlobConnection string
	BlobContainer  string
	BlobPrefix     string
	StagingDir     string

	// ChunkSize is the number of rows submitted per INSERT batch.
	ChunkSize int
	// TransactionCap truncates the transactions dataset before writing.
	// 0 means unlimited.
	TransactionCap int

	IOTimeout     time.Duration
	RetryAttempts int

	Port      int
	JWTSecret string
	// CookieSecure marks the session cookie Secure; set it behind HTTPS.
	CookieSecure bool
	LogLevel     string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(KeyStoreDSN, "sqlite:data/retail.db")
	v.SetDefault(KeyBlobContainer, "rawdata")
	v.SetDefault(KeyStagingDir, "data/raw")
	v.SetDefault(KeyChunkSize, 1000)
	v.SetDefault(KeyTransactionCap, 0)
	v.SetDefault(KeyIOTimeout, 2*time.Minute)
	v.SetDefault(KeyRetryAttempts, 3)
	v.SetDefault(KeyPort, 8080)
	v.SetDefault(KeyCookieSecure, false)
	v.SetDefault(KeyLogLevel, "info")
}

// Load reads configuration. envFile may be empty; a missing envFile is not
// an error.
func Load(envFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if envFile != "" {
		if err := readEnvFile(v, envFile); err != nil {
			return nil, err
		}
	}

	for key, envs := range envBindings {
		args := append([]string{key}, envs...)
		if err := v.BindEnv(args...); err != nil {
			return nil, fmt.Errorf("config: binding %s: %w", key, err)
		}
	}

	cfg := &Config{
		StoreDSN:       strings.TrimSpace(v.GetString(KeyStoreDSN)),
		BlobConnection: strings.TrimSpace(v.GetString(KeyBlobConnection)),
		BlobContainer:  v.GetString(KeyBlobContainer),
		BlobPrefix:     v.GetString(KeyBlobPrefix),
		StagingDir:     v.GetString(KeyStagingDir),
		ChunkSize:      v.GetInt(KeyChunkSize),
		TransactionCap: v.GetInt(KeyTransactionCap),
		IOTimeout:      v.GetDuration(KeyIOTimeout),
		RetryAttempts:  v.GetInt(KeyRetryAttempts),
		Port:           v.GetInt(KeyPort),
		JWTSecret:      v.GetString(KeyJWTSecret),
		CookieSecure:   v.GetBool(KeyCookieSecure),
		LogLevel:       v.GetString(KeyLogLevel),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that have no safe fallback.
func (c *Config) Validate() error {
	switch {
	case c.StoreDSN == "":
		return errors.New("config: store connection (DATABASE_URL) is required")
	case c.ChunkSize <= 0:
		return fmt.Errorf("config: ingest chunk size must be positive, got %d", c.ChunkSize)
	case c.TransactionCap < 0:
		return fmt.Errorf("config: transaction cap must be >= 0, got %d", c.TransactionCap)
	case c.IOTimeout <= 0:
		return fmt.Errorf("config: io timeout must be positive, got %s", c.IOTimeout)
	case c.Port <= 0 || c.Port > 65535:
		return fmt.Errorf("config: invalid port %d", c.Port)
	}
	return nil
}

// readEnvFile merges KEY=value pairs from a dotenv file. Keys are matched
// against envBindings so a .env file and the real environment use the same
// names.
func readEnvFile(v *viper.Viper, path string) error {
	fileV := viper.New()
	fileV.SetConfigFile(path)
	fileV.SetConfigType("env")
	if err := fileV.ReadInConfig(); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("config: reading %s: %w", path, err)
	}

	for key, envs := range envBindings {
		for _, env := range envs {
			// viper lower-cases keys read from files
			if fileV.IsSet(strings.ToLower(env)) {
				// as a default, so the real environment still wins
				v.SetDefault(key, fileV.Get(strings.ToLower(env)))
				break
			}
		}
	}
	return nil
}

// Retry returns the retry policy applied to blob and store calls.
func (c *Config) Retry() retry.Policy {
	p := retry.DefaultPolicy()
	p.Attempts = c.RetryAttempts
	return p
}

// NewLogger builds the process logger: text output, level from LOG_LEVEL
// (debug, info, warn, error; unknown values mean info).
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
