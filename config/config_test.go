package config

import (
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

var configKeys = []string{
	"ENV", "PORT", "STORE_DRIVER", "DB_FILE", "USERS_DB_FILE", "MONGO_URI",
	"MONGO_DATA_BASE_NAME", "STATIC_DIR", "CORS_ORIGINS", "JWT_SECRET",
	"TOKEN_TTL", "RATE_LIMIT_PER_SECOND", "CHAT_RATE_MAX", "CHAT_RATE_WINDOW",
}

// clearEnv unsets every key Load reads for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range configKeys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("ENV", "development")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	want := &Config{
		Env:                "development",
		Port:               "8001",
		StoreDriver:        DriverSQLite,
		DBFile:             "./fluxy.db",
		UsersDBFile:        "./fluxy_users.db",
		MongoURI:           "mongodb://localhost:27017",
		MongoDBName:        "fluxy",
		StaticDir:          "./static",
		JWTSecret:          devSecret,
		TokenTTL:           672 * time.Hour,
		RateLimitPerSecond: 150,
		ChatRateMax:        40,
		ChatRateWindow:     10 * time.Second,
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Fatalf("defaults (-want +got):\n%s", diff)
	}
}

func TestOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("ENV", "production")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("STORE_DRIVER", "Mongo")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("CHAT_RATE_MAX", "5")
	t.Setenv("CHAT_RATE_WINDOW", "1m")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.StoreDriver != DriverMongo || cfg.ChatRateMax != 5 || cfg.ChatRateWindow != time.Minute {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if diff := cmp.Diff([]string{"https://a.example", "https://b.example"}, cfg.CORSOrigins); diff != "" {
		t.Fatalf("origins (-want +got):\n%s", diff)
	}
}

func TestInvalidValues(t *testing.T) {
	cases := map[string]map[string]string{
		"bad driver": {"STORE_DRIVER": "postgres"},
		"bad ttl":    {"TOKEN_TTL": "forever"},
		"bad rate":   {"RATE_LIMIT_PER_SECOND": "-1"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Fatalf("expected error")
			}
		})
	}

	clearEnv(t)
	t.Setenv("ENV", "production")
	if _, err := Load(); !errors.Is(err, ErrMissingSecret) {
		t.Fatalf("expected ErrMissingSecret, got %v", err)
	}
}

func TestUnsetEnvRequiresSecret(t *testing.T) {
	clearEnv(t)
	if _, err := Load(); !errors.Is(err, ErrMissingSecret) {
		t.Fatalf("expected ErrMissingSecret without ENV or JWT_SECRET, got %v", err)
	}

	t.Setenv("JWT_SECRET", "s3cret")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.IsDevelopment() || cfg.JWTSecret != "s3cret" {
		t.Fatalf("unexpected config %+v", cfg)
	}
}
