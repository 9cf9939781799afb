package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Config holds all configuration required by the API process.
// All values come from env (optionally seeded from a .env file).
// No business logic should depend on raw environment variables.
type Config struct {
	App       AppConfig
	DB        DBConfig
	Redis     RedisConfig
	Auth      AuthConfig
	Functions FunctionsConfig
	Chat      ChatConfig
	Notify    NotifyConfig
	Jobs      JobsConfig
	RateLimit RateLimitConfig
}

type AppConfig struct {
	Env  string `env:"APP_ENV"`
	Port int    `env:"APP_PORT" envDefault:"8080"`
	// CORSAllowedOrigins also restricts WebSocket origins. Empty allows any origin outside production.
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`
}

type DBConfig struct {
	// Backend is postgres or memory; memory is for local runs only.
	Backend  string `env:"STORE_BACKEND" envDefault:"postgres"`
	Host     string `env:"DB_HOST"`
	Port     int    `env:"DB_PORT" envDefault:"5432"`
	User     string `env:"DB_USER"`
	Password string `env:"DB_PASSWORD"`
	Name     string `env:"DB_NAME"`

	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string `env:"DB_SSLMODE"`
	// Migrate applies embedded migrations on startup.
	Migrate bool `env:"DB_MIGRATE" envDefault:"false"`
	// MaxConns bounds the pool; 0 uses the driver plumbing default.
	MaxConns int `env:"DB_MAX_CONNS" envDefault:"0"`
}

type RedisConfig struct {
	Host     string `env:"REDIS_HOST"`
	Port     int    `env:"REDIS_PORT" envDefault:"6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
}

type AuthConfig struct {
	JWTSecret       string        `env:"JWT_SECRET"`
	JWTIssuer       string        `env:"JWT_ISSUER"`
	JWTAudience     string        `env:"JWT_AUDIENCE"`
	AccessTokenTTL  time.Duration `env:"JWT_ACCESS_TTL"`
	RefreshTokenTTL time.Duration `env:"JWT_REFRESH_TTL"`
}

type FunctionsConfig struct {
	URL        string        `env:"FUNCTIONS_URL"`
	ServiceKey string        `env:"FUNCTIONS_SERVICE_KEY"`
	Timeout    time.Duration `env:"FUNCTIONS_TIMEOUT" envDefault:"10s"`
}

type ChatConfig struct {
	InactivityTimeout time.Duration `env:"CHAT_INACTIVITY_TIMEOUT" envDefault:"30s"`
	GracePeriod       time.Duration `env:"CHAT_GRACE_PERIOD" envDefault:"30s"`
	// ReassignmentMode is remote (chat-reassignment function) or local (store-backed).
	ReassignmentMode string `env:"CHAT_REASSIGNMENT_MODE" envDefault:"remote"`
}

type NotifyConfig struct {
	// Queue is memory or redis.
	Queue       string        `env:"NOTIFY_QUEUE" envDefault:"redis"`
	MaxAttempts int           `env:"NOTIFY_MAX_ATTEMPTS" envDefault:"5"`
	Backoff     time.Duration `env:"NOTIFY_BACKOFF" envDefault:"2s"`
	AdminEmail  string        `env:"ADMIN_NOTIFICATION_EMAIL"`
}

type JobsConfig struct {
	// DueReminderInterval of 0 disables the postpaid due reminder job.
	DueReminderInterval time.Duration `env:"DUE_REMINDER_INTERVAL" envDefault:"24h"`
}

type RateLimitConfig struct {
	Payouts int           `env:"RATE_LIMIT_PAYOUTS" envDefault:"5"`
	Chat    int           `env:"RATE_LIMIT_CHAT" envDefault:"30"`
	Window  time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"1m"`
}

// Load reads .env (when present) and the process environment, then validates.
func Load() (Config, error) {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return Config{}, fmt.Errorf("load .env: %w", err)
		}
	}

	var c Config
	if err := env.Parse(&c); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

var (
	validEnvs     = []string{"local", "dev", "staging", "production"}
	validSSLModes = []string{"disable", "require", "verify-ca", "verify-full"}
)

// problems collects validation failures so Load reports them all at once.
type problems []error

func (p *problems) add(format string, args ...any) { *p = append(*p, fmt.Errorf(format, args...)) }

func (p *problems) port(name string, v int) {
	if v <= 0 || v > 65535 {
		p.add("%s must be a valid port, got %d", name, v)
	}
}

func (p *problems) required(name, v string) {
	if strings.TrimSpace(v) == "" {
		p.add("%s is required", name)
	}
}

func (p problems) err() error {
	if len(p) == 0 {
		return nil
	}
	return fmt.Errorf("config: %w", errors.Join(p...))
}

// Validate reports every problem at once and fills env-dependent defaults.
func (c *Config) Validate() error {
	var p problems

	c.App.Env = strings.TrimSpace(c.App.Env)
	if c.App.Env == "" {
		p.add("APP_ENV is required")
	} else if !slices.Contains(validEnvs, c.App.Env) {
		p.add("APP_ENV must be one of %s, got %q", strings.Join(validEnvs, ", "), c.App.Env)
	}
	p.port("APP_PORT", c.App.Port)

	switch c.DB.Backend {
	case "", "postgres":
		c.DB.Backend = "postgres"
		c.validateDB(&p)
	case "memory":
		if c.IsProduction() {
			p.add("STORE_BACKEND=memory is not allowed in production")
		}
	default:
		p.add("STORE_BACKEND must be postgres or memory, got %q", c.DB.Backend)
	}

	p.required("REDIS_HOST", c.Redis.Host)
	p.port("REDIS_PORT", c.Redis.Port)

	c.validateAuth(&p)

	if c.IsProduction() {
		p.required("FUNCTIONS_URL", c.Functions.URL)
		if len(c.App.CORSAllowedOrigins) == 0 {
			p.add("CORS_ALLOWED_ORIGINS is required in production")
		}
	}

	if c.Chat.InactivityTimeout <= 0 || c.Chat.GracePeriod <= 0 {
		p.add("CHAT_INACTIVITY_TIMEOUT and CHAT_GRACE_PERIOD must be positive")
	}
	if c.Chat.ReassignmentMode != "remote" && c.Chat.ReassignmentMode != "local" {
		p.add("CHAT_REASSIGNMENT_MODE must be remote or local, got %q", c.Chat.ReassignmentMode)
	}
	if c.Notify.Queue != "memory" && c.Notify.Queue != "redis" {
		p.add("NOTIFY_QUEUE must be memory or redis, got %q", c.Notify.Queue)
	}
	if c.Notify.MaxAttempts <= 0 {
		p.add("NOTIFY_MAX_ATTEMPTS must be > 0, got %d", c.Notify.MaxAttempts)
	}
	if c.Jobs.DueReminderInterval < 0 {
		p.add("DUE_REMINDER_INTERVAL must not be negative")
	}
	if c.RateLimit.Payouts <= 0 || c.RateLimit.Chat <= 0 || c.RateLimit.Window <= 0 {
		p.add("RATE_LIMIT_PAYOUTS, RATE_LIMIT_CHAT and RATE_LIMIT_WINDOW must be positive")
	}

	return p.err()
}

func (c *Config) validateDB(p *problems) {
	p.required("DB_HOST", c.DB.Host)
	p.port("DB_PORT", c.DB.Port)
	p.required("DB_USER", c.DB.User)
	p.required("DB_NAME", c.DB.Name)

	c.DB.SSLMode = strings.TrimSpace(c.DB.SSLMode)
	switch {
	case c.DB.SSLMode == "" && c.IsProduction():
		p.add("DB_SSLMODE is required in production")
	case c.DB.SSLMode == "":
		c.DB.SSLMode = "disable"
	case !slices.Contains(validSSLModes, c.DB.SSLMode):
		p.add("DB_SSLMODE must be one of %s, got %q", strings.Join(validSSLModes, ", "), c.DB.SSLMode)
	}
}

func (c *Config) validateAuth(p *problems) {
	p.required("JWT_SECRET", c.Auth.JWTSecret)
	if c.IsProduction() {
		// Provider tokens carry both; local tokens are disabled there anyway.
		p.required("JWT_ISSUER", c.Auth.JWTIssuer)
		p.required("JWT_AUDIENCE", c.Auth.JWTAudience)
	}
	if c.Auth.AccessTokenTTL <= 0 {
		c.Auth.AccessTokenTTL = 15 * time.Minute
	}
	if c.Auth.RefreshTokenTTL <= 0 {
		c.Auth.RefreshTokenTTL = 30 * 24 * time.Hour
	}
	if c.Auth.RefreshTokenTTL <= c.Auth.AccessTokenTTL {
		p.add("JWT_REFRESH_TTL must be greater than JWT_ACCESS_TTL")
	}
}

func (c Config) IsProduction() bool { return c.App.Env == "production" }

func (c Config) HTTPAddr() string { return fmt.Sprintf(":%d", c.App.Port) }

// PostgresDSN is a postgres:// URL. It embeds the password; never log it.
func (c Config) PostgresDSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.DB.User, c.DB.Password),
		Host:     net.JoinHostPort(c.DB.Host, strconv.Itoa(c.DB.Port)),
		Path:     "/" + c.DB.Name,
		RawQuery: url.Values{"sslmode": {c.DB.SSLMode}}.Encode(),
	}
	return u.String()
}

func (c Config) RedisAddr() string {
	return net.JoinHostPort(c.Redis.Host, strconv.Itoa(c.Redis.Port))
}
