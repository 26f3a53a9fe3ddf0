package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig
	Redis      RedisConfig
	JWT        JWTConfig
	OpenRouter OpenRouterConfig
	RateLimit  RateLimitConfig
	Pipeline   PipelineConfig
}

type ServerConfig struct {
	Port string
	Env  string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Expiration int // hours
}

type OpenRouterConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

type RateLimitConfig struct {
	ScenesPerHour    int
	RegeneratePerMin int
	ProjectsPerMin   int
}

type PipelineConfig struct {
	MinScenes int
	MaxScenes int
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Environment variables
	viper.AutomaticEnv()

	// Defaults
	viper.SetDefault("server.port", "3000")
	viper.SetDefault("server.env", "development")
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("jwt.secret", "change-me-in-production")
	viper.SetDefault("jwt.expiration", 24)
	viper.SetDefault("openrouter.base_url", "https://openrouter.ai/api/v1")
	viper.SetDefault("openrouter.api_key", "")
	viper.SetDefault("openrouter.model", "deepseek/deepseek-chat")
	viper.SetDefault("openrouter.timeout_seconds", 90)
	viper.SetDefault("ratelimit.scenes_per_hour", 10)
	viper.SetDefault("ratelimit.regenerate_per_min", 10)
	viper.SetDefault("ratelimit.projects_per_min", 30)
	viper.SetDefault("pipeline.min_scenes", 15)
	viper.SetDefault("pipeline.max_scenes", 20)

	// Try to read config file (optional)
	_ = viper.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port: viper.GetString("server.port"),
			Env:  viper.GetString("server.env"),
		},
		Redis: RedisConfig{
			Addr:     viper.GetString("redis.addr"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			Secret:     viper.GetString("jwt.secret"),
			Expiration: viper.GetInt("jwt.expiration"),
		},
		OpenRouter: OpenRouterConfig{
			BaseURL: viper.GetString("openrouter.base_url"),
			APIKey:  viper.GetString("openrouter.api_key"),
			Model:   viper.GetString("openrouter.model"),
			Timeout: time.Duration(viper.GetInt("openrouter.timeout_seconds")) * time.Second,
		},
		RateLimit: RateLimitConfig{
			ScenesPerHour:    viper.GetInt("ratelimit.scenes_per_hour"),
			RegeneratePerMin: viper.GetInt("ratelimit.regenerate_per_min"),
			ProjectsPerMin:   viper.GetInt("ratelimit.projects_per_min"),
		},
		Pipeline: PipelineConfig{
			MinScenes: viper.GetInt("pipeline.min_scenes"),
			MaxScenes: viper.GetInt("pipeline.max_scenes"),
		},
	}

	return cfg, nil
}
