package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// LLMConfig 预留给文案生成的备选模型配置（可选，不影响 Coze 流程）。
type LLMConfig struct {
	Provider string
	Model    string
	APIKey   string
	BaseURL  string
}

// Config holds all configuration for the application.
type Config struct {
	AuthToken      string
	ContentBotID   string
	ImageBotID     string
	ConversationID string
	BaseURL        string
	UserID         string
	MaxRetries     int
	RateLimit      float64 // outbound requests per second, 0 disables
	ServerAddr     string
	LLM            *LLMConfig
}

const defaultBaseURL = "https://api.coze.cn"

// Load reads the configuration from environment variables. A .env file is
// honored when present but its absence is not an error.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		AuthToken:      os.Getenv("COZE_AUTH_TOKEN"),
		ContentBotID:   os.Getenv("COZE_CONTENT_BOT_ID"),
		ImageBotID:     os.Getenv("COZE_IMAGE_BOT_ID"),
		ConversationID: os.Getenv("COZE_CONVERSATION_ID"),
		BaseURL:        os.Getenv("COZE_BASE_URL"),
		UserID:         os.Getenv("COZE_USER_ID"),
		ServerAddr:     os.Getenv("SERVER_ADDR"),
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.UserID == "" {
		cfg.UserID = "123456789"
	}
	if cfg.ServerAddr == "" {
		cfg.ServerAddr = ":8080"
	}

	if retries, err := strconv.Atoi(os.Getenv("COZE_MAX_RETRIES")); err == nil && retries > 0 {
		cfg.MaxRetries = retries
	} else {
		cfg.MaxRetries = 3
	}

	if rps, err := strconv.ParseFloat(os.Getenv("COZE_RATE_LIMIT"), 64); err == nil && rps > 0 {
		cfg.RateLimit = rps
	}

	if provider := os.Getenv("LLM_PROVIDER"); provider != "" {
		cfg.LLM = &LLMConfig{
			Provider: provider,
			Model:    os.Getenv("LLM_MODEL"),
			APIKey:   os.Getenv("LLM_API_KEY"),
			BaseURL:  os.Getenv("LLM_BASE_URL"),
		}
	}

	// Validate required fields up front so a missing credential surfaces as a
	// configuration error instead of a cryptic network failure later.
	if cfg.AuthToken == "" {
		return nil, fmt.Errorf("COZE_AUTH_TOKEN is required")
	}
	if cfg.ContentBotID == "" {
		return nil, fmt.Errorf("COZE_CONTENT_BOT_ID is required")
	}
	if cfg.ImageBotID == "" {
		return nil, fmt.Errorf("COZE_IMAGE_BOT_ID is required")
	}
	if cfg.ConversationID == "" {
		return nil, fmt.Errorf("COZE_CONVERSATION_ID is required")
	}

	return cfg, nil
}
