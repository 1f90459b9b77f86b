package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App     AppConfig     `mapstructure:"app"`
	Server  ServerConfig  `mapstructure:"server"`
	Log     LogConfig     `mapstructure:"log"`
	DB      DBConfig      `mapstructure:"db"`
	Vault   VaultConfig   `mapstructure:"vault"`
	Cron    CronConfig    `mapstructure:"cron"`
	Sync    SyncConfig    `mapstructure:"sync"`
	Slack   SlackConfig   `mapstructure:"slack"`
	Linear  LinearConfig  `mapstructure:"linear"`
	GitHub  GitHubConfig  `mapstructure:"github"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Trial   TrialConfig   `mapstructure:"trial"`
}

type AppConfig struct {
	Env string `mapstructure:"env"`
}

type ServerConfig struct {
	HTTPAddr string `mapstructure:"http_addr"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	Development       bool   `mapstructure:"development"`
	Sampling          bool   `mapstructure:"sampling"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
}

type DBConfig struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Timezone        string        `mapstructure:"timezone"`
}

type VaultConfig struct {
	Key     string `mapstructure:"key"`
	PrevKey string `mapstructure:"prev_key"`
	Strict  bool   `mapstructure:"strict"`
}

type CronConfig struct {
	Enabled       bool     `mapstructure:"enabled"`
	HourlySync    string   `mapstructure:"hourly_sync"`
	DailySync     string   `mapstructure:"daily_sync"`
	TrialSweep    string   `mapstructure:"trial_sweep"`
	HourlySources []string `mapstructure:"hourly_sources"`
	DailySources  []string `mapstructure:"daily_sources"`
}

type SyncConfig struct {
	DefaultWindow time.Duration `mapstructure:"default_window"`
	DeepWindow    time.Duration `mapstructure:"deep_window"`
	ThreadReplies bool          `mapstructure:"thread_replies"`
	ReplyWorkers  int           `mapstructure:"reply_workers"`
	RetryAttempts int           `mapstructure:"retry_attempts"`
	RetryBackoff  time.Duration `mapstructure:"retry_backoff"`
	QueueWorkers  int           `mapstructure:"queue_workers"`
	QueueCapacity int           `mapstructure:"queue_capacity"`
	RunMaxRetries int           `mapstructure:"run_max_retries"`
	RunRetryBase  time.Duration `mapstructure:"run_retry_base"`
	WaitTimeout   time.Duration `mapstructure:"wait_timeout"`
}

type SlackConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type LinearConfig struct {
	BaseURL  string        `mapstructure:"base_url"`
	Timeout  time.Duration `mapstructure:"timeout"`
	PageSize int           `mapstructure:"page_size"`
}

type GitHubConfig struct {
	BaseURL  string        `mapstructure:"base_url"`
	Timeout  time.Duration `mapstructure:"timeout"`
	PageSize int           `mapstructure:"page_size"`
}

type CacheConfig struct {
	Backend       string        `mapstructure:"backend"`
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	TTL           time.Duration `mapstructure:"ttl"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

type TrialConfig struct {
	Days int `mapstructure:"days"`
}

func Load(path string, envOnly bool) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("TS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetDefault("app.env", "dev")
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", true)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", false)
	v.SetDefault("db.driver", "sqlite")
	v.SetDefault("db.dsn", "data/teamsync.db")
	v.SetDefault("db.max_open_conns", 10)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.conn_max_lifetime", "30m")
	v.SetDefault("db.conn_max_idle_time", "5m")
	v.SetDefault("db.timezone", "UTC")
	v.SetDefault("vault.key", "")
	v.SetDefault("vault.prev_key", "")
	v.SetDefault("vault.strict", false)
	v.SetDefault("cron.enabled", true)
	v.SetDefault("cron.hourly_sync", "@every 1h")
	v.SetDefault("cron.daily_sync", "@every 24h")
	v.SetDefault("cron.trial_sweep", "@every 6h")
	v.SetDefault("cron.hourly_sources", []string{"slack"})
	v.SetDefault("cron.daily_sources", []string{"linear", "github"})
	v.SetDefault("sync.default_window", "24h")
	v.SetDefault("sync.deep_window", "24h")
	v.SetDefault("sync.thread_replies", true)
	v.SetDefault("sync.reply_workers", 4)
	v.SetDefault("sync.retry_attempts", 3)
	v.SetDefault("sync.retry_backoff", "400ms")
	v.SetDefault("sync.queue_workers", 4)
	v.SetDefault("sync.queue_capacity", 256)
	v.SetDefault("sync.run_max_retries", 3)
	v.SetDefault("sync.run_retry_base", "60s")
	v.SetDefault("sync.wait_timeout", "120s")
	v.SetDefault("slack.base_url", "")
	v.SetDefault("slack.timeout", "15s")
	v.SetDefault("linear.base_url", "https://api.linear.app/graphql")
	v.SetDefault("linear.timeout", "20s")
	v.SetDefault("linear.page_size", 50)
	v.SetDefault("github.base_url", "https://api.github.com")
	v.SetDefault("github.timeout", "20s")
	v.SetDefault("github.page_size", 100)
	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.redis_addr", "localhost:6379")
	v.SetDefault("cache.redis_password", "")
	v.SetDefault("cache.redis_db", 0)
	v.SetDefault("cache.ttl", "10m")
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("trial.days", 14)

	if !envOnly {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}
