package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. MAILPIPE_PIPING_IMAP_HOST.
const EnvPrefix = "MAILPIPE"

var (
	cfg       *Config
	once      sync.Once
	mu        sync.RWMutex
	listeners []func(*Config)
)

// Config represents the application configuration
type Config struct {
	App       AppConfig       `mapstructure:"app" yaml:"app"`
	Database  DatabaseConfig  `mapstructure:"database" yaml:"database"`
	Redis     RedisConfig     `mapstructure:"redis" yaml:"redis"`
	Piping    PipingConfig    `mapstructure:"piping" yaml:"piping"`
	Agents    AgentsConfig    `mapstructure:"agents" yaml:"agents"`
	Scheduler SchedulerConfig `mapstructure:"scheduler" yaml:"scheduler"`
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics" yaml:"metrics"`
}

type AppConfig struct {
	Name    string `mapstructure:"name" yaml:"name"`
	Version string `mapstructure:"version" yaml:"version"`
	Env     string `mapstructure:"env" yaml:"env"`
	Debug   bool   `mapstructure:"debug" yaml:"debug"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver" yaml:"driver"` // postgres, mysql, sqlite3
	DSN             string        `mapstructure:"dsn" yaml:"dsn"`
	TablePrefix     string        `mapstructure:"table_prefix" yaml:"table_prefix"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" yaml:"conn_max_lifetime"`
	// LegacyUTF8 strips characters outside the BMP before writing, for
	// MySQL tables still using the 3-byte utf8 charset.
	LegacyUTF8      bool          `mapstructure:"legacy_utf8"`
}

type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled" yaml:"enabled"`
	Host     string        `mapstructure:"host" yaml:"host"`
	Port     int           `mapstructure:"port" yaml:"port"`
	Password string        `mapstructure:"password" yaml:"password"`
	DB       int           `mapstructure:"db" yaml:"db"`
	LockTTL  time.Duration `mapstructure:"lock_ttl" yaml:"lock_ttl"`
}

type PipingConfig struct {
	Enabled bool       `mapstructure:"enabled" yaml:"enabled"`
	IMAP    IMAPConfig `mapstructure:"imap" yaml:"imap"`
}

type IMAPConfig struct {
	Host     string `mapstructure:"host" yaml:"host"`
	Port     int    `mapstructure:"port" yaml:"port"`
	User     string `mapstructure:"user" yaml:"user"`
	Password string `mapstructure:"password" yaml:"password"`
	UseTLS   bool   `mapstructure:"use_tls" yaml:"use_tls"`
	StartTLS bool   `mapstructure:"starttls" yaml:"starttls"`
	Folder   string `mapstructure:"folder" yaml:"folder"`
}

type AgentsConfig struct {
	DisplayName        string `mapstructure:"display_name" yaml:"display_name"`
	// NotificationEmails is a comma separated list of agent addresses.
	NotificationEmails string `mapstructure:"notification_emails" yaml:"notification_emails"`
	AdminEmail         string `mapstructure:"admin_email" yaml:"admin_email"`
}

type SchedulerConfig struct {
	Schedule       string        `mapstructure:"schedule" yaml:"schedule"`
	RunTimeout     time.Duration `mapstructure:"run_timeout" yaml:"run_timeout"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout" yaml:"connect_timeout"`
	MaxMessages    int           `mapstructure:"max_messages" yaml:"max_messages"`
	RetryAttempts  int           `mapstructure:"retry_attempts" yaml:"retry_attempts"`
	RetryDelay     time.Duration `mapstructure:"retry_delay" yaml:"retry_delay"`
}

type LoggingConfig struct {
	// Output is "stdout", "stderr" or a file path.
	Output string `mapstructure:"output" yaml:"output"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Host    string `mapstructure:"host" yaml:"host"`
	Port    int    `mapstructure:"port" yaml:"port"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "gotrs-mailpipe")
	v.SetDefault("app.version", "dev")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.debug", false)

	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.table_prefix", "wp_")
	v.SetDefault("database.max_open_conns", 5)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.legacy_utf8", false)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.lock_ttl", "10m")

	v.SetDefault("piping.enabled", false)
	v.SetDefault("piping.imap.host", "")
	v.SetDefault("piping.imap.port", 993)
	v.SetDefault("piping.imap.user", "")
	v.SetDefault("piping.imap.password", "")
	v.SetDefault("piping.imap.use_tls", true)
	v.SetDefault("piping.imap.starttls", false)
	v.SetDefault("piping.imap.folder", "INBOX")

	v.SetDefault("agents.display_name", "Support Team")
	v.SetDefault("agents.notification_emails", "")
	v.SetDefault("agents.admin_email", "")

	v.SetDefault("scheduler.schedule", "0 */5 * * * *")
	v.SetDefault("scheduler.run_timeout", "4m")
	v.SetDefault("scheduler.connect_timeout", "10s")
	v.SetDefault("scheduler.max_messages", 50)
	v.SetDefault("scheduler.retry_attempts", 3)
	v.SetDefault("scheduler.retry_delay", "1s")

	v.SetDefault("logging.output", "stdout")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.host", "0.0.0.0")
	v.SetDefault("metrics.port", 9464)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads configuration from configPath, which may be a YAML file or a
// directory holding config.yaml. An empty path uses defaults and environment
// overrides only. When a file was read it is watched and reloaded on change.
func Load(configPath string) error {
	v := newViper()
	watch := false

	if configPath != "" {
		info, err := os.Stat(configPath)
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}
		if info.IsDir() {
			v.SetConfigName("config")
			v.AddConfigPath(configPath)
		} else {
			v.SetConfigFile(configPath)
		}
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return fmt.Errorf("failed to read config: %w", err)
			}
		} else {
			watch = true
		}
	}

	next := &Config{}
	if err := v.Unmarshal(next); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}
	set(next)

	if watch {
		once.Do(func() {
			v.OnConfigChange(func(e fsnotify.Event) {
				log.Printf("Config file changed: %s", e.Name)
				reloaded := &Config{}
				if err := v.Unmarshal(reloaded); err != nil {
					log.Printf("Failed to reload config: %v", err)
					return
				}
				if err := Validate(reloaded); err != nil {
					log.Printf("Ignoring invalid config reload: %v", err)
					return
				}
				set(reloaded)
				log.Printf("Configuration reloaded from %s", filepath.Base(e.Name))
			})
			v.WatchConfig()
		})
	}
	return nil
}

// LoadFromFile loads configuration from a specific file without watching it.
func LoadFromFile(configFile string) error {
	v := newViper()
	v.SetConfigFile(configFile)

	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	next := &Config{}
	if err := v.Unmarshal(next); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}
	set(next)
	return nil
}

// MustLoad loads configuration and panics on error
func MustLoad(configPath string) {
	if err := Load(configPath); err != nil {
		panic(fmt.Sprintf("Failed to load configuration: %v", err))
	}
}

// Get returns the current configuration (thread-safe)
func Get() *Config {
	mu.RLock()
	defer mu.RUnlock()
	return cfg
}

// OnChange registers fn to be called with every configuration that replaces
// the current one, including reloads from disk.
func OnChange(fn func(*Config)) {
	if fn == nil {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	listeners = append(listeners, fn)
}

func set(next *Config) {
	mu.Lock()
	cfg = next
	subscribers := slices.Clone(listeners)
	mu.Unlock()
	for _, fn := range subscribers {
		fn(next)
	}
}

// Redacted returns a copy with credentials masked, for display.
func (c *Config) Redacted() *Config {
	if c == nil {
		return nil
	}
	cp := *c
	cp.Database.DSN = redact(cp.Database.DSN)
	cp.Redis.Password = redact(cp.Redis.Password)
	cp.Piping.IMAP.Password = redact(cp.Piping.IMAP.Password)
	return &cp
}

func redact(secret string) string {
	if secret == "" {
		return ""
	}
	return "********"
}

// GetRedisAddr returns the Redis server address
func (c *RedisConfig) GetRedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// GetListenAddr returns the ops HTTP listen address
func (c *MetricsConfig) GetListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// IsProduction returns true if running in production mode
func (c *AppConfig) IsProduction() bool {
	return c.Env == "production"
}
