package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	neturl "net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

// Config centralises runtime configuration.
type Config struct {
	App struct {
		Env string `mapstructure:"env"`
	} `mapstructure:"app"`
	Server struct {
		Addr string `mapstructure:"addr"`
	} `mapstructure:"server"`
	HTTP struct {
		ReadTimeout    time.Duration `mapstructure:"read_timeout"`
		WriteTimeout   time.Duration `mapstructure:"write_timeout"`
		IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
		RequestTimeout time.Duration `mapstructure:"request_timeout"`
	} `mapstructure:"http"`
	CORS struct {
		AllowedOrigins []string `mapstructure:"allowed_origins"`
	} `mapstructure:"cors"`
	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"log"`
	Database struct {
		URL string `mapstructure:"url"`
	} `mapstructure:"database"`
	Redis struct {
		Addr     string `mapstructure:"addr"`
		Password string `mapstructure:"password"`
		DB       int    `mapstructure:"db"`
	} `mapstructure:"redis"`
	Session struct {
		Secret       string        `mapstructure:"secret"`
		Issuer       string        `mapstructure:"issuer"`
		TTL          time.Duration `mapstructure:"ttl"`
		CookieName   string        `mapstructure:"cookie_name"`
		SecureCookie bool          `mapstructure:"secure_cookie"`
	} `mapstructure:"session"`
	Recovery struct {
		TokenTTL            time.Duration `mapstructure:"token_ttl"`
		ConcealUnknownEmail bool          `mapstructure:"conceal_unknown_email"`
		ResetURL            string        `mapstructure:"reset_url"`
	} `mapstructure:"recovery"`
	Mail struct {
		From string `mapstructure:"from"`
	} `mapstructure:"mail"`
	SMTP struct {
		Host     string `mapstructure:"host"`
		Port     int    `mapstructure:"port"`
		Username string `mapstructure:"username"`
		Password string `mapstructure:"password"`
	} `mapstructure:"smtp"`
	Worker struct {
		Concurrency int `mapstructure:"concurrency"`
	} `mapstructure:"worker"`
}

// IsProduction reports whether the service runs with production defaults.
func (c Config) IsProduction() bool {
	return strings.EqualFold(c.App.Env, "production")
}

// Load reads configuration from .env, an optional config file and
// ACCOUNTS_-prefixed environment variables, and checks what the API server needs.
func Load() (Config, error) {
	return load(true)
}

// LoadWorker is Load for the mail worker, which needs neither the database
// nor the session secret.
func LoadWorker() (Config, error) {
	return load(false)
}

func load(server bool) (Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return Config{}, fmt.Errorf("loading .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("ACCOUNTS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	v.SetConfigName("config")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.Database.URL == "" {
		cfg.Database.URL = resolveDatabaseURL()
	} else {
		cfg.Database.URL = coerceDatabaseURL(cfg.Database.URL)
	}
	cfg.CORS.AllowedOrigins = splitCSV(cfg.CORS.AllowedOrigins)

	if err := cfg.validate(server); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "development")
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("http.read_timeout", 15*time.Second)
	v.SetDefault("http.write_timeout", 15*time.Second)
	v.SetDefault("http.idle_timeout", 60*time.Second)
	v.SetDefault("http.request_timeout", 15*time.Second)
	v.SetDefault("cors.allowed_origins", "*")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("database.url", "")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("session.secret", "")
	v.SetDefault("session.issuer", "accounts")
	v.SetDefault("session.ttl", 12*time.Hour)
	v.SetDefault("session.cookie_name", "accounts_session")
	v.SetDefault("session.secure_cookie", false)
	v.SetDefault("recovery.token_ttl", time.Hour)
	v.SetDefault("recovery.conceal_unknown_email", false)
	v.SetDefault("recovery.reset_url", "")
	v.SetDefault("mail.from", "no-reply@localhost")
	v.SetDefault("smtp.host", "")
	v.SetDefault("smtp.port", 587)
	v.SetDefault("smtp.username", "")
	v.SetDefault("smtp.password", "")
	v.SetDefault("worker.concurrency", 5)
}

func (c Config) validate(server bool) error {
	if c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required")
	}
	if !server {
		return nil
	}
	if c.Database.URL == "" {
		return fmt.Errorf("database configuration missing: provide ACCOUNTS_DATABASE_URL, DATABASE_URL or PG* env vars")
	}
	if c.Session.Secret == "" {
		return fmt.Errorf("ACCOUNTS_SESSION_SECRET is required")
	}
	if c.Session.TTL <= 0 {
		return fmt.Errorf("session.ttl must be positive")
	}
	if c.Recovery.TokenTTL <= 0 {
		return fmt.Errorf("recovery.token_ttl must be positive")
	}
	return nil
}

// splitCSV flattens entries that may themselves hold comma separated values.
func splitCSV(values []string) []string {
	parts := []string{}
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			trimmed := strings.TrimSpace(part)
			if trimmed != "" {
				parts = append(parts, trimmed)
			}
		}
	}
	if len(parts) == 0 {
		return []string{"*"}
	}
	return parts
}

func resolveDatabaseURL() string {
	for _, key := range []string{"DATABASE_URL", "POSTGRES_URL", "PGURL"} {
		if url := coerceDatabaseURL(os.Getenv(key)); url != "" {
			return url
		}
	}

	if url := coerceDatabaseURL(readEnvFile("DATABASE_URL_FILE")); url != "" {
		return url
	}

	host := firstNonEmpty(os.Getenv("PGHOST"), os.Getenv("POSTGRES_HOST"))
	user := firstNonEmpty(os.Getenv("PGUSER"), os.Getenv("POSTGRES_USER"))
	if host == "" || user == "" {
		return ""
	}
	password := firstNonEmpty(os.Getenv("PGPASSWORD"), os.Getenv("POSTGRES_PASSWORD"))
	database := firstNonEmpty(os.Getenv("PGDATABASE"), os.Getenv("POSTGRES_DB"), user)
	port := firstNonEmpty(os.Getenv("PGPORT"), os.Getenv("POSTGRES_PORT"), "5432")
	sslMode := firstNonEmpty(os.Getenv("PGSSLMODE"), "disable")

	dsn := &neturl.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(host, port),
		Path:   "/" + database,
		User:   neturl.User(user),
	}
	if password != "" {
		dsn.User = neturl.UserPassword(user, password)
	}
	query := dsn.Query()
	query.Set("sslmode", sslMode)
	dsn.RawQuery = query.Encode()

	return dsn.String()
}

func coerceDatabaseURL(raw string) string {
	raw = strings.TrimSpace(raw)
	switch {
	case strings.HasPrefix(raw, "postgres://"):
		return raw
	case strings.HasPrefix(raw, "postgresql://"):
		return "postgres://" + strings.TrimPrefix(raw, "postgresql://")
	default:
		return ""
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func readEnvFile(key string) string {
	path := os.Getenv(key)
	if path == "" {
		return ""
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// loadDotEnv exports the variables in path that are not already set.
// A missing file is not an error.
func loadDotEnv(path string) error {
	if err := gotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
