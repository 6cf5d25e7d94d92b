package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/fieldwork")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("MAX_UPLOAD_BYTES", "")
	t.Setenv("STORAGE_BACKEND", "")
	t.Setenv("CORS_ORIGINS", " http://a.test , ,http://b.test")

	cfg := Load()
	if cfg.MaxUploadBytes != 5<<20 {
		t.Fatalf("unexpected max upload: got %d want %d", cfg.MaxUploadBytes, 5<<20)
	}
	if cfg.StorageBackend != StorageLocal {
		t.Fatalf("unexpected storage backend: %q", cfg.StorageBackend)
	}
	if len(cfg.CorsOrigins) != 2 || cfg.CorsOrigins[1] != "http://b.test" {
		t.Fatalf("unexpected cors origins: %#v", cfg.CorsOrigins)
	}
	if cfg.AccessTTL() != 4*time.Hour {
		t.Fatalf("unexpected access ttl: %s", cfg.AccessTTL())
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate defaults: %v", err)
	}
}

func TestLoadPanicsWithoutSecret(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/fieldwork")
	t.Setenv("JWT_SECRET", "")

	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic for missing JWT_SECRET")
		}
	}()
	_ = Load()
}

func TestValidate(t *testing.T) {
	base := Config{
		MaxUploadBytes:       1,
		StorageBackend:       StorageLocal,
		MediaStoragePath:     "storage/media",
		AccessTTLSeconds:     1,
		RefreshTTLSeconds:    1,
		MetricsSampleSeconds: 1,
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "ok", mutate: func(*Config) {}},
		{name: "zero upload limit", mutate: func(c *Config) { c.MaxUploadBytes = 0 }, wantErr: true},
		{name: "unknown backend", mutate: func(c *Config) { c.StorageBackend = "ftp" }, wantErr: true},
		{name: "s3 without endpoint", mutate: func(c *Config) { c.StorageBackend = StorageS3; c.S3.Bucket = "b" }, wantErr: true},
		{name: "s3 complete", mutate: func(c *Config) {
			c.StorageBackend = StorageS3
			c.S3.Endpoint = "minio:9000"
			c.S3.Bucket = "b"
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("unexpected validate result: err=%v wantErr=%v", err, tt.wantErr)
			}
		})
	}
}
