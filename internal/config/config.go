package config

import (
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	Limits    LimitsConfig
	Engine    EngineConfig
	Retention RetentionConfig
	Analysis  AnalysisConfig
	Redis     RedisConfig
	RateLimit RateLimitConfig
}

type ServerConfig struct {
	Port string
	Env  string
}

type StorageConfig struct {
	Root string
}

type LimitsConfig struct {
	MaxDurationSeconds float64
	MaxUploadBytes     int64
}

type EngineConfig struct {
	Binary       string
	DefaultStems string
	MaxStems     int
}

type RetentionConfig struct {
	Capacity int
	Floor    int
}

type AnalysisConfig struct {
	URL            string
	TimeoutSeconds int
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type RateLimitConfig struct {
	Enabled       bool
	JobsPerHour   int
	AnalyzePerMin int
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Environment variables
	viper.AutomaticEnv()

	// Defaults
	viper.SetDefault("server.port", "5000")
	viper.SetDefault("server.env", "development")
	viper.SetDefault("storage.root", "./data/jobs")
	viper.SetDefault("limits.max_duration_seconds", 600)
	viper.SetDefault("limits.max_upload_bytes", 100*1024*1024)
	viper.SetDefault("engine.binary", "spleeter")
	viper.SetDefault("engine.default_stems", "2stems")
	viper.SetDefault("engine.max_stems", 4)
	viper.SetDefault("retention.capacity", 100)
	viper.SetDefault("retention.floor", 50)
	viper.SetDefault("analysis.url", "")
	viper.SetDefault("analysis.timeout_seconds", 60)
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("ratelimit.enabled", false)
	viper.SetDefault("ratelimit.jobs_per_hour", 20)
	viper.SetDefault("ratelimit.analyze_per_min", 30)

	// Try to read config file (optional)
	_ = viper.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port: viper.GetString("server.port"),
			Env:  viper.GetString("server.env"),
		},
		Storage: StorageConfig{
			Root: viper.GetString("storage.root"),
		},
		Limits: LimitsConfig{
			MaxDurationSeconds: viper.GetFloat64("limits.max_duration_seconds"),
			MaxUploadBytes:     viper.GetInt64("limits.max_upload_bytes"),
		},
		Engine: EngineConfig{
			Binary:       viper.GetString("engine.binary"),
			DefaultStems: viper.GetString("engine.default_stems"),
			MaxStems:     viper.GetInt("engine.max_stems"),
		},
		Retention: RetentionConfig{
			Capacity: viper.GetInt("retention.capacity"),
			Floor:    viper.GetInt("retention.floor"),
		},
		Analysis: AnalysisConfig{
			URL:            viper.GetString("analysis.url"),
			TimeoutSeconds: viper.GetInt("analysis.timeout_seconds"),
		},
		Redis: RedisConfig{
			Addr:     viper.GetString("redis.addr"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		RateLimit: RateLimitConfig{
			Enabled:       viper.GetBool("ratelimit.enabled"),
			JobsPerHour:   viper.GetInt("ratelimit.jobs_per_hour"),
			AnalyzePerMin: viper.GetInt("ratelimit.analyze_per_min"),
		},
	}

	return cfg, nil
}
