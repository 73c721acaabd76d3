package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Store drivers understood by the application container.
const (
	DriverSurreal = "surreal"
	DriverBadger  = "badger"
)

// Provider exposes the settings the database connection needs. It lets tests
// hand the connection a fixed configuration without touching the environment.
type Provider interface {
	GetDBURL() string
	GetDBNs() string
	GetDBDb() string
	GetDBUser() string
	GetDBPass() string
	GetDBQueryTimeout() time.Duration
	GetDBExecuteTimeout() time.Duration
}

// Config holds all configuration for the application.
type Config struct {
	ServerAddr  string `env:"SERVER_ADDR" envDefault:":8080"`
	StoreDriver string `env:"STORE_DRIVER" envDefault:"badger"`

	DBUrl            string        `env:"SURREAL_URL"`
	DBNs             string        `env:"SURREAL_NS"`
	DBDb             string        `env:"SURREAL_DB"`
	DBUser           string        `env:"SURREAL_USER"`
	DBPass           string        `env:"SURREAL_PASS"`
	DBQueryTimeout   time.Duration `env:"DB_QUERY_TIMEOUT" envDefault:"5s"`
	DBExecuteTimeout time.Duration `env:"DB_EXECUTE_TIMEOUT" envDefault:"10s"`

	// BadgerPath is the directory for the embedded store. Empty runs badger in memory.
	BadgerPath string `env:"BADGER_PATH" envDefault:"data/badger"`

	JWTSecret string        `env:"JWT_SECRET"`
	JWTTTL    time.Duration `env:"JWT_TTL" envDefault:"24h"`

	AllowedOrigins    []string      `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`
	WSPingInterval    time.Duration `env:"WS_PING_INTERVAL" envDefault:"30s"`
	WSSendBuffer      int           `env:"WS_SEND_BUFFER" envDefault:"256"`
	WSEventsPerSecond float64       `env:"WS_EVENTS_PER_SECOND" envDefault:"10"`
	WSEventBurst      int           `env:"WS_EVENT_BURST" envDefault:"20"`
	MaxMessageLength  int           `env:"MAX_MESSAGE_LENGTH" envDefault:"2000"`

	TracingEnabled     bool   `env:"TRACING_ENABLED" envDefault:"false"`
	TracingServiceName string `env:"TRACING_SERVICE_NAME" envDefault:"relaychat"`
	ZipkinURL          string `env:"ZIPKIN_URL" envDefault:"http://localhost:9411/api/v2/spans"`
}

var _ Provider = (*Config)(nil)

// Load reads an optional .env file and then parses the environment into a Config.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}
	return Parse()
}

// Parse builds a Config from the current process environment and validates it.
func Parse() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports settings that would prevent the server from starting.
func (c *Config) Validate() error {
	var errs []error
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	switch c.StoreDriver {
	case DriverSurreal:
		if c.DBUrl == "" || c.DBNs == "" || c.DBDb == "" {
			errs = append(errs, errors.New("SURREAL_URL, SURREAL_NS and SURREAL_DB are required for the surreal store"))
		}
	case DriverBadger:
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver))
	}
	if c.WSSendBuffer <= 0 {
		errs = append(errs, errors.New("WS_SEND_BUFFER must be positive"))
	}
	if c.MaxMessageLength <= 0 {
		errs = append(errs, errors.New("MAX_MESSAGE_LENGTH must be positive"))
	}
	return errors.Join(errs...)
}

// OriginPatterns returns the allow-list in the form the websocket acceptor expects.
// A lone "*" means any origin.
func (c *Config) OriginPatterns() []string {
	var out []string
	for _, o := range c.AllowedOrigins {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

func (c *Config) GetDBURL() string                   { return c.DBUrl }
func (c *Config) GetDBNs() string                    { return c.DBNs }
func (c *Config) GetDBDb() string                    { return c.DBDb }
func (c *Config) GetDBUser() string                  { return c.DBUser }
func (c *Config) GetDBPass() string                  { return c.DBPass }
func (c *Config) GetDBQueryTimeout() time.Duration   { return c.DBQueryTimeout }
func (c *Config) GetDBExecuteTimeout() time.Duration { return c.DBExecuteTimeout }
