// Package config loads application configuration from the environment using Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the root configuration of the server and the CLI tools.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	DB        DBConfig        `mapstructure:"db"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Log       LogConfig       `mapstructure:"log"`
	Session   SessionConfig   `mapstructure:"session"`
	Bootstrap BootstrapConfig `mapstructure:"bootstrap"`
	Admin     AdminConfig     `mapstructure:"admin"`
	AWS       AWSConfig       `mapstructure:"aws"`
}

// AppConfig holds process-wide settings.
type AppConfig struct {
	Env         string `mapstructure:"env"` // "dev" or "prod"
	Key         string `mapstructure:"key"` // signs session cookies
	KeySecretID string `mapstructure:"key_secret_id"`
}

// HTTPConfig holds the listener settings.
type HTTPConfig struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DBConfig holds the connection pool policy and the inputs of database URL resolution.
// URL and URLSource are filled by ResolveDatabaseURL, not read from Viper.
type DBConfig struct {
	URLOrder        string        `mapstructure:"url_order"`
	EnvPrefixes     []string      `mapstructure:"env_prefixes"`
	URLSecretID     string        `mapstructure:"url_secret_id"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`

	URL       string `mapstructure:"-"`
	URLSource string `mapstructure:"-"`
}

// RedisConfig mirrors the REDIS_HOST / REDIS_PORT / REDIS_PASSWORD variables.
// An empty host disables Redis.
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	Password string `mapstructure:"password"`
}

// Addr returns host:port, or "" when Redis is not configured.
func (r RedisConfig) Addr() string {
	if r.Host == "" {
		return ""
	}
	return r.Host + ":" + r.Port
}

// LogConfig defines the logger options.
type LogConfig struct {
	Level      string `mapstructure:"level"`       // "debug", "info", "warn", "error"
	Format     string `mapstructure:"format"`      // "json" or "console"
	OutputFile string `mapstructure:"output_file"` // optional rotated log file
}

// SessionConfig is the session cookie policy.
type SessionConfig struct {
	CookieName string        `mapstructure:"cookie_name"`
	Lifetime   time.Duration `mapstructure:"lifetime"`
	Secure     bool          `mapstructure:"secure"`
}

// BootstrapConfig selects the deployment-specific startup behaviour.
type BootstrapConfig struct {
	TableInit     string `mapstructure:"table_init"`   // "eager" or "lazy"
	Registration  string `mapstructure:"registration"` // "strict" or "best_effort"
	StaticDir     string `mapstructure:"static_dir"`
	DebugEndpoint bool   `mapstructure:"debug_endpoint"`
}

// AdminConfig seeds the first login user when both fields are set.
type AdminConfig struct {
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// AWSConfig is only needed when a secret ID is configured.
type AWSConfig struct {
	Region string `mapstructure:"region"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "dev")
	v.SetDefault("app.key", "")
	v.SetDefault("app.key_secret_id", "")

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.shutdown_timeout", 10*time.Second)

	v.SetDefault("db.url_order", string(OrderStandard))
	v.SetDefault("db.env_prefixes", []string{})
	v.SetDefault("db.url_secret_id", "")
	v.SetDefault("db.max_open_conns", 10)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.conn_max_lifetime", 300*time.Second)
	v.SetDefault("db.connect_timeout", 30*time.Second)

	v.SetDefault("redis.host", "")
	v.SetDefault("redis.port", "6379")
	v.SetDefault("redis.password", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output_file", "")

	v.SetDefault("session.cookie_name", "session")
	v.SetDefault("session.lifetime", 3600*time.Second)
	v.SetDefault("session.secure", true)

	v.SetDefault("bootstrap.table_init", "eager")
	v.SetDefault("bootstrap.registration", "best_effort")
	v.SetDefault("bootstrap.static_dir", "static")
	v.SetDefault("bootstrap.debug_endpoint", false)

	v.SetDefault("admin.username", "")
	v.SetDefault("admin.password", "")

	v.SetDefault("aws.region", "ap-south-1")
}

// Load reads .env (when present) and the process environment.
// Keys map to variables by upper-casing and replacing dots, e.g. log.level -> LOG_LEVEL.
func Load() (*Config, error) {
	// .env は任意。無ければ環境変数のみを使う
	_ = godotenv.Load(".env")

	v := viper.New()
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	order, err := ParseURLOrder(cfg.DB.URLOrder)
	if err != nil {
		return nil, err
	}
	cfg.DB.URL, cfg.DB.URLSource = ResolveDatabaseURL(EnvLookup, order, cfg.DB.EnvPrefixes)

	return &cfg, nil
}
