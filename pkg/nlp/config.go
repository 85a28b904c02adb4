package nlp

import "time"

// Default configuration values
const (
	DefaultMaxTokens   = 1024
	DefaultTemperature = 0.2
	DefaultTimeout     = 30 * time.Second
	// DefaultVisionModel is used against api.openai.com when no model is set.
	DefaultVisionModel = "gpt-4o"
)

// Config holds configuration for a vision-language client.
type Config struct {
	Model       string        `json:"model"`
	BaseURL     string        `json:"base_url,omitempty"` // Custom base URL for OpenAI-compatible services
	Temperature *float32      `json:"temperature,omitempty"`
	MaxTokens   *int          `json:"max_tokens,omitempty"`
	Timeout     time.Duration `json:"timeout,omitempty"`
	// Detail is the image detail hint: "low", "high" or "auto".
	Detail string `json:"detail,omitempty"`
}
