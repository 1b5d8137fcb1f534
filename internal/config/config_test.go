package config

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
)

// clearEnv unsets every variable Load looks at, restoring them afterwards.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, envs := range envBindings {
		for _, env := range envs {
			t.Setenv(env, "")
			os.Unsetenv(env)
		}
	}
}

func TestLoad_Defaults(t *testing.T) {
	c := qt.New(t)
	clearEnv(t)

	cfg, err := Load("")
	c.Assert(err, qt.IsNil)
	c.Assert(cfg.StoreDSN, qt.Equals, "sqlite:data/retail.db")
	c.Assert(cfg.BlobContainer, qt.Equals, "rawdata")
	c.Assert(cfg.StagingDir, qt.Equals, "data/raw")
	c.Assert(cfg.ChunkSize, qt.Equals, 1000)
	c.Assert(cfg.TransactionCap, qt.Equals, 0)
	c.Assert(cfg.IOTimeout, qt.Equals, 2*time.Minute)
	c.Assert(cfg.RetryAttempts, qt.Equals, 3)
	c.Assert(cfg.Port, qt.Equals, 8080)
	c.Assert(cfg.CookieSecure, qt.IsFalse)
}

func TestLoad_Environment(t *testing.T) {
	c := qt.New(t)
	clearEnv(t)
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost/retail")
	t.Setenv("BLOB_CONNECTION_STRING", "gs://retail-raw")
	t.Setenv("INGEST_CHUNK_SIZE", "5000")
	t.Setenv("INGEST_TRANSACTION_CAP", "10000")
	t.Setenv("IO_TIMEOUT", "30s")
	t.Setenv("PORT", "9090")
	t.Setenv("COOKIE_SECURE", "true")

	cfg, err := Load("")
	c.Assert(err, qt.IsNil)
	c.Assert(cfg.StoreDSN, qt.Equals, "postgres://u:p@localhost/retail")
	c.Assert(cfg.BlobConnection, qt.Equals, "gs://retail-raw")
	c.Assert(cfg.ChunkSize, qt.Equals, 5000)
	c.Assert(cfg.TransactionCap, qt.Equals, 10000)
	c.Assert(cfg.IOTimeout, qt.Equals, 30*time.Second)
	c.Assert(cfg.Port, qt.Equals, 9090)
	c.Assert(cfg.CookieSecure, qt.IsTrue)
}

func TestLoad_AzureAliases(t *testing.T) {
	c := qt.New(t)
	clearEnv(t)
	t.Setenv("AZURE_SQL_CONNECTION_STRING", "mssql+pymssql://sqladmin:pw@srv.database.windows.net:1433/RetailDB")
	t.Setenv("AZURE_STORAGE_CONNECTION_STRING", "DefaultEndpointsProtocol=https;AccountName=a;AccountKey=k")

	cfg, err := Load("")
	c.Assert(err, qt.IsNil)
	c.Assert(cfg.StoreDSN, qt.Equals, "mssql+pymssql://sqladmin:pw@srv.database.windows.net:1433/RetailDB")
	c.Assert(cfg.BlobConnection, qt.Equals, "DefaultEndpointsProtocol=https;AccountName=a;AccountKey=k")
}

func TestLoad_EnvFile(t *testing.T) {
	c := qt.New(t)
	clearEnv(t)

	path := filepath.Join(t.TempDir(), ".env")
	err := os.WriteFile(path, []byte("DATABASE_URL=sqlite:/tmp/from-file.db\nBLOB_CONTAINER=filecontainer\nPORT=7070\n"), 0o600)
	c.Assert(err, qt.IsNil)

	// Real environment beats the file.
	t.Setenv("PORT", "6060")

	cfg, err := Load(path)
	c.Assert(err, qt.IsNil)
	c.Assert(cfg.StoreDSN, qt.Equals, "sqlite:/tmp/from-file.db")
	c.Assert(cfg.BlobContainer, qt.Equals, "filecontainer")
	c.Assert(cfg.Port, qt.Equals, 6060)
}

func TestLoad_MissingEnvFileIsIgnored(t *testing.T) {
	c := qt.New(t)
	clearEnv(t)

	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.env"))
	c.Assert(err, qt.IsNil)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{StoreDSN: "sqlite:x.db", ChunkSize: 1000, IOTimeout: time.Minute, Port: 8080}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "empty dsn", mutate: func(c *Config) { c.StoreDSN = "" }},
		{name: "zero chunk size", mutate: func(c *Config) { c.ChunkSize = 0 }},
		{name: "negative cap", mutate: func(c *Config) { c.TransactionCap = -1 }},
		{name: "zero timeout", mutate: func(c *Config) { c.IOTimeout = 0 }},
		{name: "bad port", mutate: func(c *Config) { c.Port = 70000 }},
	}

	qt.New(t).Assert(valid().Validate(), qt.IsNil)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := qt.New(t)
			cfg := valid()
			tt.mutate(cfg)
			c.Assert(cfg.Validate(), qt.IsNotNil)
		})
	}
}

func TestRetryAndLogger(t *testing.T) {
	c := qt.New(t)

	cfg := &Config{RetryAttempts: 5, LogLevel: "warn"}
	c.Assert(cfg.Retry().Attempts, qt.Equals, 5)

	logger := cfg.NewLogger(io.Discard)
	c.Assert(logger.Enabled(context.Background(), slog.LevelWarn), qt.IsTrue)
	c.Assert(logger.Enabled(context.Background(), slog.LevelInfo), qt.IsFalse)

	cfg.LogLevel = "loud"
	c.Assert(cfg.NewLogger(io.Discard).Enabled(context.Background(), slog.LevelInfo), qt.IsTrue)
}
