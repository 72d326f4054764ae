package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig
	SQLite   SQLiteConfig
	Redis    RedisConfig
	LLM      LLMConfig
	Search   SearchConfig
	Cache    CacheConfig
	Pipeline PipelineConfig
	Logging  LoggingConfig
}

type ServerConfig struct {
	Host           string
	Port           int
	ReadTimeout    int
	WriteTimeout   int
	BodyLimit      int
	Environment    string
	AllowedOrigins []string
}

type SQLiteConfig struct {
	Path string
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type LLMConfig struct {
	Provider    string
	Model       string
	APIKey      string
	Temperature float32
	MaxTokens   int
	TimeoutSec  int
}

type SearchConfig struct {
	GoogleAPIKey    string
	GoogleEngineID  string
	SerpAPIKey      string
	ResultsPerQuery int
	MaxInFlight     int
	QueryTimeoutSec int
	FailoverAfter   int
}

type CacheConfig struct {
	Enabled          bool
	BaseTTLHours     int
	NicheTTLHours    int
	PopularTTLHours  int
	NicheThreshold   int
	PopularThreshold int
	CommunityDomains []string
	ReviewDomains    []string
}

type PipelineConfig struct {
	DeadlineSec     int
	MinPlanQueries  int
	MaxPlanQueries  int
	MaxDocsPerPhase int
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/gemfinder")

	viper.SetEnvPrefix("GEMFINDER")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.readTimeout", 30)
	viper.SetDefault("server.writeTimeout", 300)
	viper.SetDefault("server.bodyLimit", 1048576)
	viper.SetDefault("server.environment", "development")
	viper.SetDefault("server.allowedOrigins", []string{})

	viper.SetDefault("sqlite.path", "./data/gemfinder.db")

	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.db", 0)

	viper.SetDefault("llm.provider", "openai")
	viper.SetDefault("llm.model", "gpt-4o")
	viper.SetDefault("llm.temperature", 0.3)
	viper.SetDefault("llm.maxTokens", 4096)
	viper.SetDefault("llm.timeoutSec", 90)

	viper.SetDefault("search.resultsPerQuery", 6)
	viper.SetDefault("search.maxInFlight", 8)
	viper.SetDefault("search.queryTimeoutSec", 30)
	viper.SetDefault("search.failoverAfter", 2)

	viper.SetDefault("cache.enabled", true)
	viper.SetDefault("cache.baseTTLHours", 24)
	viper.SetDefault("cache.nicheTTLHours", 72)
	viper.SetDefault("cache.popularTTLHours", 168)
	viper.SetDefault("cache.nicheThreshold", 2)
	viper.SetDefault("cache.popularThreshold", 5)
	viper.SetDefault("cache.communityDomains", []string{
		"reddit.com",
		"forums.egullet.org",
		"chowhound.com",
		"kitchenknifeforums.com",
		"stackexchange.com",
	})
	viper.SetDefault("cache.reviewDomains", []string{
		"wirecutter.com",
		"nytimes.com",
		"seriouseats.com",
		"americastestkitchen.com",
		"cooksillustrated.com",
		"consumerreports.org",
		"goodhousekeeping.com",
		"bonappetit.com",
		"epicurious.com",
	})

	viper.SetDefault("pipeline.deadlineSec", 180)
	viper.SetDefault("pipeline.minPlanQueries", 5)
	viper.SetDefault("pipeline.maxPlanQueries", 19)
	viper.SetDefault("pipeline.maxDocsPerPhase", 12)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.outputPath", "stdout")
}

// PipelineDeadline is the overall plan-search-synthesize budget.
func (c *Config) PipelineDeadline() time.Duration {
	return time.Duration(c.Pipeline.DeadlineSec) * time.Second
}
