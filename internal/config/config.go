package config

import (
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Claude    ClaudeConfig    `mapstructure:"claude"`
	DeepSeek  DeepSeekConfig  `mapstructure:"deepseek"`
	Security  SecurityConfig  `mapstructure:"security"`
	CORS      CORSConfig      `mapstructure:"cors"`
	Log       LogConfig       `mapstructure:"log"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Storage   StorageConfig   `mapstructure:"storage"`
}

type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	MaxHeaderBytes int           `mapstructure:"max_header_bytes"`
}

type ClaudeConfig struct {
	APIKey    string        `mapstructure:"api_key"`
	BaseURL   string        `mapstructure:"base_url"`
	Model     string        `mapstructure:"model"`
	MaxTokens int           `mapstructure:"max_tokens"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

type DeepSeekConfig struct {
	APIKey  string        `mapstructure:"api_key"`
	BaseURL string        `mapstructure:"base_url"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type SecurityConfig struct {
	// CSRF 信任边界：生产环境允许的来源（scheme+host[:port]）
	TrustedOrigins []string `mapstructure:"trusted_origins"`
	// 仅在 development_mode 下额外放行的来源
	DevOrigins      []string `mapstructure:"dev_origins"`
	DevelopmentMode bool     `mapstructure:"development_mode"`
	// 管理员邮箱列表，注册时命中则赋予 admin 角色
	AdminEmails      []string      `mapstructure:"admin_emails"`
	JWTSecret        string        `mapstructure:"jwt_secret"`
	JWTTTL           time.Duration `mapstructure:"jwt_ttl"`
	DefaultProviders []string      `mapstructure:"default_providers"`
	DefaultQuota     int           `mapstructure:"default_quota"`
}

type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	ExposedHeaders   []string `mapstructure:"exposed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// RateLimitConfig 每个策略是相互独立的桶空间
type RateLimitConfig struct {
	Login         RatePolicy    `mapstructure:"login"`
	Register      RatePolicy    `mapstructure:"register"`
	API           RatePolicy    `mapstructure:"api"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

type RatePolicy struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	Window      time.Duration `mapstructure:"window"`
}

type StorageConfig struct {
	Type string `mapstructure:"type"` // memory | postgres
	DSN  string `mapstructure:"dsn"`
}

var cfg *Config

func Load(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	viper.AutomaticEnv()
	viper.SetEnvPrefix("CHAT")

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	cfg = &Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, err
	}

	// 配置文件优先，缺省时回退到环境变量
	if cfg.Claude.APIKey == "" {
		if apiKey := os.Getenv("CLAUDE_API_KEY"); apiKey != "" {
			cfg.Claude.APIKey = apiKey
		}
		if apiKey := os.Getenv("ANTHROPIC_API_KEY"); apiKey != "" {
			cfg.Claude.APIKey = apiKey
		}
	}
	if cfg.DeepSeek.APIKey == "" {
		if apiKey := os.Getenv("DEEPSEEK_API_KEY"); apiKey != "" {
			cfg.DeepSeek.APIKey = apiKey
		}
	}
	if cfg.Security.JWTSecret == "" {
		cfg.Security.JWTSecret = os.Getenv("CHAT_JWT_SECRET")
	}

	return cfg, nil
}

func Get() *Config {
	return cfg
}
