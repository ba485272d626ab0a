package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 全局配置
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	LLM     LLMConfig     `yaml:"llm"`
	Storage StorageConfig `yaml:"storage"`
	Game    GameConfig    `yaml:"game"`
	Audio   AudioConfig   `yaml:"audio"`
	Logging LoggingConfig `yaml:"logging"`
	Paths   PathsConfig   `yaml:"paths"`
}

type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	// PingInterval websocket 心跳间隔
	PingInterval time.Duration `yaml:"ping_interval"`
}

// Addr 监听地址
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LLMConfig AI 协作方配置
type LLMConfig struct {
	Provider string            `yaml:"provider"` // "gemini", "openai" or "mock"
	Gemini   LLMProviderConfig `yaml:"gemini"`
	OpenAI   LLMProviderConfig `yaml:"openai"`

	// RateLimit 每秒允许的调用数，Burst 为突发上限。
	RateLimit float64       `yaml:"rate_limit"`
	Burst     int           `yaml:"burst"`
	Timeout   time.Duration `yaml:"timeout"`
}

// LLMProviderConfig 单个提供商的模型配置
type LLMProviderConfig struct {
	APIKey      string  `yaml:"api_key"`
	APIURL      string  `yaml:"api_url"`
	Model       string  `yaml:"model"`
	HintModel   string  `yaml:"hint_model"`
	ImageModel  string  `yaml:"image_model"`
	SpeechModel string  `yaml:"speech_model"`
	Temperature float64 `yaml:"temperature"`
}

type StorageConfig struct {
	Backend string      `yaml:"backend"` // memory | file | redis | sqlite
	Path    string      `yaml:"path"`
	Redis   RedisConfig `yaml:"redis"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// GameConfig 玩法开关
type GameConfig struct {
	// RequireTutorial 为 true 时，未完成入门课程不能进入场景。
	RequireTutorial bool `yaml:"require_tutorial"`
	// TimelineRetention 每个会话保留的事件条数。
	TimelineRetention int `yaml:"timeline_retention"`
}

type AudioConfig struct {
	Engine string `yaml:"engine"` // stream | clock
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Output string `yaml:"output"`
}

// Debug 是否输出逐事件调试日志
func (l LoggingConfig) Debug() bool {
	return strings.EqualFold(l.Level, "debug")
}

type PathsConfig struct {
	Scenarios string `yaml:"scenarios"`
}

// Default 返回带默认值的配置
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 90 * time.Second,
			PingInterval: 30 * time.Second,
		},
		LLM: LLMConfig{
			Provider: "gemini",
			Gemini: LLMProviderConfig{
				Model:       "gemini-2.5-flash",
				HintModel:   "gemini-2.5-flash",
				ImageModel:  "gemini-2.5-flash-image",
				SpeechModel: "gemini-2.5-flash-preview-tts",
				Temperature: 0.8,
			},
			OpenAI: LLMProviderConfig{
				APIURL:      "https://api.openai.com/v1",
				Model:       "gpt-4o-mini",
				HintModel:   "gpt-4o-mini",
				ImageModel:  "dall-e-3",
				SpeechModel: "tts-1",
				Temperature: 0.8,
			},
			RateLimit: 2,
			Burst:     4,
			Timeout:   60 * time.Second,
		},
		Storage: StorageConfig{
			Backend: "file",
			Path:    "data",
		},
		Game: GameConfig{
			TimelineRetention: 1000,
		},
		Audio: AudioConfig{
			Engine: "stream",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: "stderr",
		},
	}
}

// Load 从文件加载配置；path 为空时只使用默认值与环境变量。
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		fmt.Printf("📋 Loading config from: %s\n", path)
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnv()

	fmt.Printf("📊 Provider: %s, Storage: %s, Listen: %s\n", cfg.LLM.Provider, cfg.Storage.Backend, cfg.Server.Addr())

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// 从环境变量覆盖敏感信息与部署相关项
func (c *Config) applyEnv() {
	if key := firstEnv("GEMINI_API_KEY", "GOOGLE_API_KEY"); key != "" {
		fmt.Printf("🔑 Using Gemini API key from environment variable\n")
		c.LLM.Gemini.APIKey = key
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		fmt.Printf("🔑 Using OPENAI_API_KEY from environment variable\n")
		c.LLM.OpenAI.APIKey = key
	}
	if backend := os.Getenv("SOCIALSIM_STORAGE"); backend != "" {
		c.Storage.Backend = backend
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		c.Storage.Redis.Addr = addr
	}
}

// Credential 返回当前提供商的预置凭证（可为空，之后由用户提交）。
func (c *Config) Credential() string {
	switch c.LLM.Provider {
	case "openai":
		return c.LLM.OpenAI.APIKey
	case "gemini":
		return c.LLM.Gemini.APIKey
	default:
		return ""
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	switch c.LLM.Provider {
	case "gemini", "openai", "mock":
	default:
		return fmt.Errorf("unsupported LLM provider: %s", c.LLM.Provider)
	}
	switch c.Storage.Backend {
	case "memory":
	case "file", "sqlite":
		if c.Storage.Path == "" {
			return fmt.Errorf("storage path is required for %s backend", c.Storage.Backend)
		}
	case "redis":
		if c.Storage.Redis.Addr == "" {
			return fmt.Errorf("redis address is required (set REDIS_ADDR or storage.redis.addr)")
		}
	default:
		return fmt.Errorf("unsupported storage backend: %s", c.Storage.Backend)
	}
	switch c.Audio.Engine {
	case "stream", "clock":
	default:
		return fmt.Errorf("unsupported audio engine: %s", c.Audio.Engine)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.LLM.RateLimit < 0 {
		return fmt.Errorf("llm.rate_limit must not be negative")
	}
	return nil
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}
