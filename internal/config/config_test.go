package config

import (
	"strings"
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		Server:    ServerConfig{Port: 8080, ShutdownTimeout: time.Second},
		Database:  DatabaseConfig{URL: "postgres://localhost/test", MaxConns: 20, MinConns: 4},
		Storage:   StorageConfig{Bucket: "catalogs", Region: "us-east-1"},
		Redis:     RedisConfig{Addr: "localhost:6379", QueueKey: "q"},
		Import:    ImportConfig{BatchSize: 1000, MaxFileSize: 1, Workers: 1, JobTimeout: time.Minute, FetchTimeout: time.Second, FetchAttempts: 3, MaxConcurrentUploads: 5},
		Retention: RetentionConfig{MaxAge: time.Hour, CheckInterval: time.Hour},
		Logging:   LoggingConfig{Level: "info", Format: "text"},
	}
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/test")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, 8080)
	}
	if cfg.Import.BatchSize != 1000 {
		t.Errorf("Import.BatchSize = %d, want %d", cfg.Import.BatchSize, 1000)
	}
	if cfg.Import.FetchAttempts != 3 {
		t.Errorf("Import.FetchAttempts = %d, want %d", cfg.Import.FetchAttempts, 3)
	}
	if cfg.Retention.MaxAge != 30*24*time.Hour {
		t.Errorf("Retention.MaxAge = %v, want %v", cfg.Retention.MaxAge, 30*24*time.Hour)
	}
	if cfg.Redis.QueueKey != "catalog_import:queue" {
		t.Errorf("Redis.QueueKey = %q, want %q", cfg.Redis.QueueKey, "catalog_import:queue")
	}
	if !cfg.Storage.UsePathStyle {
		t.Error("Storage.UsePathStyle = false, want true")
	}
}

func TestLoad_OverrideDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/test")
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("IMPORT_BATCH_SIZE", "250")
	t.Setenv("RETENTION_MAX_AGE", "168h")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, 9090)
	}
	if cfg.Import.BatchSize != 250 {
		t.Errorf("Import.BatchSize = %d, want %d", cfg.Import.BatchSize, 250)
	}
	if cfg.Retention.MaxAge != 7*24*time.Hour {
		t.Errorf("Retention.MaxAge = %v, want %v", cfg.Retention.MaxAge, 7*24*time.Hour)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "debug")
	}
}

func TestLoad_AltEnvVar(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("DB_URL", "postgres://localhost/alttest")
	t.Setenv("AWS_REGION", "eu-west-1")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Database.URL != "postgres://localhost/alttest" {
		t.Errorf("Database.URL = %q, want %q", cfg.Database.URL, "postgres://localhost/alttest")
	}
	if cfg.Storage.Region != "eu-west-1" {
		t.Errorf("Storage.Region = %q, want %q", cfg.Storage.Region, "eu-west-1")
	}
}

func TestLoad_ListValues(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/test")
	t.Setenv("TRUSTED_PROXIES", " 10.0.0.0/8, ,127.0.0.1 ")
	t.Setenv("API_KEYS", "alpha,beta")
	t.Setenv("REQUIRE_API_KEY", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	wantProxies := []string{"10.0.0.0/8", "127.0.0.1"}
	if strings.Join(cfg.Security.TrustedProxies, "|") != strings.Join(wantProxies, "|") {
		t.Errorf("Security.TrustedProxies = %v, want %v", cfg.Security.TrustedProxies, wantProxies)
	}
	if len(cfg.Security.APIKeys) != 2 {
		t.Errorf("len(Security.APIKeys) = %d, want 2", len(cfg.Security.APIKeys))
	}
	if !cfg.Security.RequireAPIKey {
		t.Error("Security.RequireAPIKey = false, want true")
	}
}

func TestLoad_MissingRequired(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("DB_URL", "")

	_, err := Load()
	if err == nil {
		t.Fatal("Load() expected error for missing DATABASE_URL")
	}
	if !strings.Contains(err.Error(), "DATABASE_URL") {
		t.Errorf("error %q should name DATABASE_URL", err.Error())
	}
}

func TestLoad_InvalidValue(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/test")
	t.Setenv("IMPORT_FETCH_TIMEOUT", "soon")

	_, err := Load()
	if err == nil {
		t.Fatal("Load() expected error for invalid duration")
	}
	if !strings.Contains(err.Error(), "IMPORT_FETCH_TIMEOUT") {
		t.Errorf("error %q should name IMPORT_FETCH_TIMEOUT", err.Error())
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"bad port", func(c *Config) { c.Server.Port = 99999 }, "SERVER_PORT"},
		{"zero batch", func(c *Config) { c.Import.BatchSize = 0 }, "IMPORT_BATCH_SIZE"},
		{"zero workers", func(c *Config) { c.Import.Workers = 0 }, "IMPORT_WORKERS"},
		{"zero attempts", func(c *Config) { c.Import.FetchAttempts = 0 }, "IMPORT_FETCH_ATTEMPTS"},
		{"zero upload slots", func(c *Config) { c.Import.MaxConcurrentUploads = 0 }, "IMPORT_MAX_CONCURRENT_UPLOADS"},
		{"negative retention", func(c *Config) { c.Retention.MaxAge = -time.Hour }, "RETENTION_MAX_AGE"},
		{"half credentials", func(c *Config) { c.Storage.AccessKeyID = "key" }, "S3_ACCESS_KEY_ID"},
		{"bad level", func(c *Config) { c.Logging.Level = "verbose" }, "LOG_LEVEL"},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }, "LOG_FORMAT"},
		{"conns", func(c *Config) { c.Database.MinConns = 50 }, "DB_MAX_CONNS"},
		{"api key required without keys", func(c *Config) { c.Security.RequireAPIKey = true }, "API_KEYS"},
		{"rate limit without rate", func(c *Config) { c.Rate = RateLimitConfig{Enabled: true, Burst: 1} }, "RATE_LIMIT_REQUESTS_PER_MINUTE"},
		{"rate limit disabled", func(c *Config) { c.Rate = RateLimitConfig{Enabled: false} }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %q, want it to contain %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestValidate_ReportsAllProblems(t *testing.T) {
	cfg := validConfig()
	cfg.Import.BatchSize = 0
	cfg.Logging.Format = "xml"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() expected error")
	}
	for _, want := range []string{"IMPORT_BATCH_SIZE", "LOG_FORMAT"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Validate() error missing %q: %s", want, err.Error())
		}
	}
}

func TestString_MasksSecrets(t *testing.T) {
	cfg := validConfig()
	cfg.Database.URL = "postgres://user:hunter2@db/catalogs"
	cfg.Storage.AccessKeyID = "AKIAEXAMPLE"
	cfg.Storage.SecretAccessKey = "topsecret"
	cfg.Security.APIKeys = []string{"key-one-secret"}

	s := cfg.String()
	for _, secret := range []string{"hunter2", "AKIAEXAMPLE", "topsecret", "key-one-secret"} {
		if strings.Contains(s, secret) {
			t.Errorf("String() leaks %q: %s", secret, s)
		}
	}
}

func TestServerConfig_Addr(t *testing.T) {
	c := ServerConfig{Host: "127.0.0.1", Port: 9000}
	if got := c.Addr(); got != "127.0.0.1:9000" {
		t.Errorf("Addr() = %q, want %q", got, "127.0.0.1:9000")
	}
}
