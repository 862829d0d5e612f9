// Package config reads process settings from the environment, after
// loading a .env file when one is present.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	DriverSQLite = "sqlite"
	DriverMongo  = "mongo"
)

const devSecret = "fluxy-dev-secret"

var ErrMissingSecret = errors.New("JWT_SECRET must be set outside development")

type Config struct {
	Env         string   `envconfig:"ENV"`
	Port        string   `envconfig:"PORT" default:"8001"`
	StoreDriver string   `envconfig:"STORE_DRIVER" default:"sqlite"`
	DBFile      string   `envconfig:"DB_FILE" default:"./fluxy.db"`
	UsersDBFile string   `envconfig:"USERS_DB_FILE" default:"./fluxy_users.db"`
	MongoURI    string   `envconfig:"MONGO_URI" default:"mongodb://localhost:27017"`
	MongoDBName string   `envconfig:"MONGO_DATA_BASE_NAME" default:"fluxy"`
	StaticDir   string   `envconfig:"STATIC_DIR" default:"./static"`
	CORSOrigins []string `envconfig:"CORS_ORIGINS"`

	JWTSecret string        `envconfig:"JWT_SECRET"`
	TokenTTL  time.Duration `envconfig:"TOKEN_TTL" default:"672h"`

	RateLimitPerSecond uint          `envconfig:"RATE_LIMIT_PER_SECOND" default:"150"`
	ChatRateMax        int           `envconfig:"CHAT_RATE_MAX" default:"40"`
	ChatRateWindow     time.Duration `envconfig:"CHAT_RATE_WINDOW" default:"10s"`
}

// IsDevelopment is true only when ENV=development is set explicitly.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// Load reads .env (if any) and then the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalize() error {
	c.StoreDriver = strings.ToLower(strings.TrimSpace(c.StoreDriver))
	switch c.StoreDriver {
	case DriverSQLite, DriverMongo:
	default:
		return fmt.Errorf("STORE_DRIVER %q: want %q or %q", c.StoreDriver, DriverSQLite, DriverMongo)
	}

	origins := c.CORSOrigins[:0]
	for _, o := range c.CORSOrigins {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	c.CORSOrigins = origins
	if len(c.CORSOrigins) == 0 {
		c.CORSOrigins = nil
	}

	if c.JWTSecret == "" {
		if !c.IsDevelopment() {
			return ErrMissingSecret
		}
		c.JWTSecret = devSecret
	}
	return nil
}
