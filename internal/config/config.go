package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/makeasinger/controlpanel/pkg/protocol"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
// If FOO_FILE is set, reads the file content and sets FOO.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	fileKey := envKey + "_FILE"
	filePath := os.Getenv(fileKey)
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	val := strings.TrimSpace(string(data))
	os.Setenv(envKey, val)
}

const (
	JobsBackendLocal = "local"
	JobsBackendQueue = "queue"
)

type Config struct {
	Server    ServerConfig
	Log       LogConfig
	Redis     RedisConfig
	Jobs      JobsConfig
	RateLimit RateLimitConfig

	// Collaborator data served over the websocket. Viper lowercases map keys.
	Env      map[string]string
	Accounts []protocol.Account
	Secrets  map[string]string
	Devices  []string
}

type ServerConfig struct {
	Port            string
	Env             string
	ShutdownTimeout time.Duration
	ShutdownGrace   time.Duration // lets a restart/shutdown reply flush first
	StaticDir       string
}

type LogConfig struct {
	Level           string
	Format          string
	Output          string
	FilePath        string
	MaxSize         int // MB
	MaxBackups      int
	MaxAge          int // days
	HistoryFileName string
}

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

type JobsConfig struct {
	Backend          string // local, queue
	Step             int
	Interval         time.Duration
	Threshold        int
	QueueConcurrency int
}

type RateLimitConfig struct {
	ConnectPerMin int
}

// Load reads configuration from defaults, an optional config.yaml and the
// environment.
func Load() (*Config, error) {
	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("REDIS_PASSWORD")

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// Environment variables
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Bind environment variables with underscores to nested config keys
	_ = v.BindEnv("server.port", "SERVER_PORT", "PORT")
	_ = v.BindEnv("server.env", "SERVER_ENV")
	_ = v.BindEnv("server.static_dir", "STATIC_DIR")
	_ = v.BindEnv("log.level", "LOG_LEVEL")
	_ = v.BindEnv("redis.enabled", "REDIS_ENABLED")
	_ = v.BindEnv("redis.addr", "REDIS_ADDR")
	_ = v.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = v.BindEnv("redis.db", "REDIS_DB")
	_ = v.BindEnv("jobs.backend", "JOBS_BACKEND")

	setDefaults(v)

	// Try to read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return fromViper(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.env", "development")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.shutdown_grace", 500*time.Millisecond)
	v.SetDefault("server.static_dir", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output", "stdout")
	v.SetDefault("log.file_path", "logs/controlpanel.log")
	v.SetDefault("log.max_size", 100)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age", 30)
	v.SetDefault("log.history_file_name", "server.log")
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("jobs.backend", JobsBackendLocal)
	v.SetDefault("jobs.step", 10)
	v.SetDefault("jobs.interval", time.Second)
	v.SetDefault("jobs.threshold", 100)
	v.SetDefault("jobs.queue_concurrency", 10)
	v.SetDefault("ratelimit.connect_per_min", 30)
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:            v.GetString("server.port"),
			Env:             v.GetString("server.env"),
			ShutdownTimeout: v.GetDuration("server.shutdown_timeout"),
			ShutdownGrace:   v.GetDuration("server.shutdown_grace"),
			StaticDir:       v.GetString("server.static_dir"),
		},
		Log: LogConfig{
			Level:           v.GetString("log.level"),
			Format:          v.GetString("log.format"),
			Output:          v.GetString("log.output"),
			FilePath:        v.GetString("log.file_path"),
			MaxSize:         v.GetInt("log.max_size"),
			MaxBackups:      v.GetInt("log.max_backups"),
			MaxAge:          v.GetInt("log.max_age"),
			HistoryFileName: v.GetString("log.history_file_name"),
		},
		Redis: RedisConfig{
			Enabled:  v.GetBool("redis.enabled"),
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Jobs: JobsConfig{
			Backend:          v.GetString("jobs.backend"),
			Step:             v.GetInt("jobs.step"),
			Interval:         v.GetDuration("jobs.interval"),
			Threshold:        v.GetInt("jobs.threshold"),
			QueueConcurrency: v.GetInt("jobs.queue_concurrency"),
		},
		RateLimit: RateLimitConfig{
			ConnectPerMin: v.GetInt("ratelimit.connect_per_min"),
		},
		Env:     v.GetStringMapString("env"),
		Secrets: v.GetStringMapString("secrets"),
		Devices: v.GetStringSlice("devices"),
	}

	if err := v.UnmarshalKey("accounts", &cfg.Accounts); err != nil {
		return nil, fmt.Errorf("invalid accounts: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the server cannot run with.
func (c *Config) Validate() error {
	switch c.Jobs.Backend {
	case JobsBackendLocal:
	case JobsBackendQueue:
		if !c.Redis.Enabled {
			return fmt.Errorf("jobs.backend %q requires redis.enabled", c.Jobs.Backend)
		}
	default:
		return fmt.Errorf("unknown jobs.backend %q", c.Jobs.Backend)
	}
	if c.Jobs.Step <= 0 {
		return fmt.Errorf("jobs.step must be positive, got %d", c.Jobs.Step)
	}
	if c.Jobs.Threshold <= 0 || c.Jobs.Threshold > 100 {
		return fmt.Errorf("jobs.threshold must be within 1..100, got %d", c.Jobs.Threshold)
	}
	if c.Jobs.Interval <= 0 {
		return fmt.Errorf("jobs.interval must be positive, got %s", c.Jobs.Interval)
	}
	return nil
}

// JobTimeout bounds one queued driver run with some headroom.
func (c *Config) JobTimeout() time.Duration {
	steps := (c.Jobs.Threshold + c.Jobs.Step - 1) / c.Jobs.Step
	return time.Duration(steps+5) * c.Jobs.Interval * 2
}
