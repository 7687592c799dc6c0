package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
	EnvTest        = "test"
)

type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	Redis       RedisConfig       `yaml:"redis"`
	Broker      BrokerConfig      `yaml:"broker"`
	Auth        AuthConfig        `yaml:"auth"`
	Email       EmailConfig       `yaml:"email"`
	RateLimit   RateLimitConfig   `yaml:"rate_limit"`
	Maintenance MaintenanceConfig `yaml:"maintenance"`
}

type ServerConfig struct {
	Name           string   `yaml:"name"`
	Environment    string   `yaml:"environment"`
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	FrontendURL    string   `yaml:"frontend_url"`
	CORSOrigins    []string `yaml:"cors_origins"`
	TrustedProxies []string `yaml:"trusted_proxies"`
}

type DatabaseConfig struct {
	Path string `yaml:"url"`
}

type RedisConfig struct {
	URL string `yaml:"url"`
}

type BrokerConfig struct {
	URL   string `yaml:"url"`
	Queue string `yaml:"queue"`
}

type AuthConfig struct {
	AccessSecret    string               `yaml:"access_secret"`
	RefreshSecret   string               `yaml:"refresh_secret"`
	AccessTokenTTL  Duration             `yaml:"access_token_ttl"`
	RefreshTokenTTL Duration             `yaml:"refresh_token_ttl"`
	Argon2          Argon2Config         `yaml:"argon2"`
	BootstrapAdmin  BootstrapAdminConfig `yaml:"bootstrap_admin"`
}

type Argon2Config struct {
	Memory      uint32 `yaml:"memory"`
	Time        uint32 `yaml:"time"`
	Parallelism uint8  `yaml:"parallelism"`
}

// BootstrapAdminConfig seeds a SUPER_ADMIN at startup when both fields are set.
type BootstrapAdminConfig struct {
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
}

type EmailConfig struct {
	SMTP         SMTPConfig `yaml:"smtp"`
	From         string     `yaml:"from"`
	AdminEmail   string     `yaml:"admin_email"`
	SupportEmail string     `yaml:"support_email"`
}

type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

type RateLimitConfig struct {
	Window           Duration `yaml:"window"`
	MaxRequests      int      `yaml:"max_requests"`
	AuthMaxRequests  int      `yaml:"auth_max_requests"`
	ResetMaxRequests int      `yaml:"reset_max_requests"`
}

type MaintenanceConfig struct {
	CleanupInterval Duration `yaml:"cleanup_interval"`
}

// Load reads the optional YAML file at path, applies environment overrides,
// validates, then fills defaults. A missing file is not an error so the
// service can run from environment variables alone.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("reading config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("parsing config file: %w", err)
			}
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	cfg.setDefaults()

	return &cfg, nil
}

func (c *Config) applyEnvOverrides() error {
	setString := func(dst *string, key string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	setInt := func(dst *int, key string) error {
		v := strings.TrimSpace(os.Getenv(key))
		if v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = n
		return nil
	}
	setDuration := func(dst *Duration, key string) error {
		v := strings.TrimSpace(os.Getenv(key))
		if v == "" {
			return nil
		}
		d, err := ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = Duration(d)
		return nil
	}
	setList := func(dst *[]string, key string) {
		v := strings.TrimSpace(os.Getenv(key))
		if v == "" {
			return
		}
		var out []string
		for _, item := range strings.Split(v, ",") {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
		*dst = out
	}

	setString(&c.Server.Name, "APP_NAME")
	setString(&c.Server.Environment, "APP_ENV")
	setString(&c.Server.Host, "HOST")
	setString(&c.Server.FrontendURL, "FRONTEND_URL")
	setList(&c.Server.CORSOrigins, "CORS_ORIGIN")
	setList(&c.Server.TrustedProxies, "TRUSTED_PROXIES")
	setString(&c.Database.Path, "DATABASE_URL")
	setString(&c.Redis.URL, "REDIS_URL")
	setString(&c.Broker.URL, "AMQP_URL")
	setString(&c.Auth.AccessSecret, "JWT_SECRET")
	setString(&c.Auth.RefreshSecret, "JWT_REFRESH_SECRET")
	setString(&c.Auth.BootstrapAdmin.Email, "SUPER_ADMIN_EMAIL")
	setString(&c.Auth.BootstrapAdmin.Password, "SUPER_ADMIN_PASSWORD")
	setString(&c.Email.SMTP.Host, "SMTP_HOST")
	setString(&c.Email.SMTP.Username, "SMTP_USER")
	setString(&c.Email.SMTP.Password, "SMTP_PASS")
	setString(&c.Email.From, "SMTP_FROM")
	setString(&c.Email.AdminEmail, "ADMIN_EMAIL")
	setString(&c.Email.SupportEmail, "SUPPORT_EMAIL")

	for _, f := range []func() error{
		func() error { return setInt(&c.Server.Port, "PORT") },
		func() error { return setInt(&c.Email.SMTP.Port, "SMTP_PORT") },
		func() error { return setInt(&c.RateLimit.MaxRequests, "RATE_LIMIT_MAX_REQUESTS") },
		func() error { return setDuration(&c.Auth.AccessTokenTTL, "JWT_EXPIRES_IN") },
		func() error { return setDuration(&c.Auth.RefreshTokenTTL, "JWT_REFRESH_EXPIRES_IN") },
		func() error { return setDuration(&c.RateLimit.Window, "RATE_LIMIT_WINDOW") },
	} {
		if err := f(); err != nil {
			return err
		}
	}

	return nil
}

func (c *Config) validate() error {
	if c.Auth.AccessSecret == "" {
		return fmt.Errorf("auth.access_secret is required")
	}
	if len(c.Auth.AccessSecret) < 32 {
		return fmt.Errorf("auth.access_secret must be at least 32 characters")
	}
	if c.Auth.RefreshSecret == "" {
		return fmt.Errorf("auth.refresh_secret is required")
	}
	if len(c.Auth.RefreshSecret) < 32 {
		return fmt.Errorf("auth.refresh_secret must be at least 32 characters")
	}
	if c.Auth.AccessSecret == c.Auth.RefreshSecret {
		return fmt.Errorf("auth.access_secret and auth.refresh_secret must differ")
	}
	if c.Auth.AccessTokenTTL < 0 || c.Auth.RefreshTokenTTL < 0 {
		return fmt.Errorf("token lifetimes must be positive")
	}
	switch c.Server.Environment {
	case "", EnvDevelopment, EnvProduction, EnvTest:
	default:
		return fmt.Errorf("server.environment must be one of %s, %s, %s", EnvDevelopment, EnvProduction, EnvTest)
	}
	if c.Email.SMTP.Host == "" {
		return fmt.Errorf("email.smtp.host is required")
	}
	if c.Email.SMTP.Port == 0 {
		return fmt.Errorf("email.smtp.port is required")
	}
	if c.Email.From == "" {
		return fmt.Errorf("email.from is required")
	}
	if (c.Auth.BootstrapAdmin.Email == "") != (c.Auth.BootstrapAdmin.Password == "") {
		return fmt.Errorf("auth.bootstrap_admin needs both email and password")
	}
	return nil
}

func (c *Config) setDefaults() {
	if c.Server.Name == "" {
		c.Server.Name = "Trading Journal"
	}
	if c.Server.Environment == "" {
		c.Server.Environment = EnvDevelopment
	}
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 5000
	}
	if c.Server.FrontendURL == "" {
		c.Server.FrontendURL = "http://localhost:3000"
	}
	if len(c.Server.CORSOrigins) == 0 {
		c.Server.CORSOrigins = []string{c.Server.FrontendURL}
	}
	if c.Database.Path == "" {
		c.Database.Path = "./data/journal.db"
	}
	if c.Broker.Queue == "" {
		c.Broker.Queue = "email.outbound"
	}
	if c.Auth.AccessTokenTTL == 0 {
		c.Auth.AccessTokenTTL = Duration(15 * time.Minute)
	}
	if c.Auth.RefreshTokenTTL == 0 {
		c.Auth.RefreshTokenTTL = Duration(7 * 24 * time.Hour)
	}
	if c.Auth.Argon2.Memory == 0 {
		c.Auth.Argon2.Memory = 64 * 1024
	}
	if c.Auth.Argon2.Time == 0 {
		c.Auth.Argon2.Time = 3
	}
	if c.Auth.Argon2.Parallelism == 0 {
		c.Auth.Argon2.Parallelism = 4
	}
	if c.Email.AdminEmail == "" {
		c.Email.AdminEmail = c.Email.From
	}
	if c.Email.SupportEmail == "" {
		c.Email.SupportEmail = c.Email.From
	}
	if c.RateLimit.Window == 0 {
		c.RateLimit.Window = Duration(15 * time.Minute)
	}
	if c.RateLimit.MaxRequests == 0 {
		c.RateLimit.MaxRequests = 100
	}
	if c.RateLimit.AuthMaxRequests == 0 {
		c.RateLimit.AuthMaxRequests = 5
	}
	if c.RateLimit.ResetMaxRequests == 0 {
		c.RateLimit.ResetMaxRequests = 5
	}
	if c.Maintenance.CleanupInterval == 0 {
		c.Maintenance.CleanupInterval = Duration(24 * time.Hour)
	}
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func (c *Config) IsProduction() bool {
	return c.Server.Environment == EnvProduction
}
