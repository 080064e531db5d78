package llm

import (
	"errors"
	"time"
)

// DefaultBaseURL is the OpenRouter API root.
const DefaultBaseURL = "https://openrouter.ai/api/v1"

const (
	defaultTimeout    = 60 * time.Second
	defaultMaxRetries = 3
	defaultAppTitle   = "formate"
)

// Config configures a Client.
type Config struct {
	APIKey  string
	BaseURL string // default DefaultBaseURL

	// DefaultModel drafts plans and serves any call that names no model.
	DefaultModel string

	// EndCheckModel answers "may this interview stop now?". It runs after
	// every answer, so a small fast model fits. Empty means DefaultModel.
	EndCheckModel string

	// AppTitle and Referer are sent as X-Title and HTTP-Referer so the
	// provider can attribute traffic. Referer is omitted when empty.
	AppTitle string
	Referer  string

	Timeout    time.Duration // per HTTP request, default 60s
	MaxRetries int           // structured-output attempts, default 3
}

// Validate checks the fields a real provider call needs.
func (c *Config) Validate() error {
	var errs []error
	if c.APIKey == "" {
		errs = append(errs, errors.New("APIKey is required"))
	}
	if c.DefaultModel == "" {
		errs = append(errs, errors.New("DefaultModel is required"))
	}
	if c.MaxRetries < 0 {
		errs = append(errs, errors.New("MaxRetries must not be negative"))
	}
	return errors.Join(errs...)
}

// SetDefaults fills in optional fields.
func (c *Config) SetDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.EndCheckModel == "" {
		c.EndCheckModel = c.DefaultModel
	}
	if c.AppTitle == "" {
		c.AppTitle = defaultAppTitle
	}
	if c.Timeout == 0 {
		c.Timeout = defaultTimeout
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = defaultMaxRetries
	}
}

// ModelConfig describes a model the client knows about.
type ModelConfig struct {
	Name          string
	ContextWindow int
	Description   string
}

// DefaultModels lists the models formate is tuned for. Other OpenRouter
// model names work too; they just have no description.
func DefaultModels() map[string]ModelConfig {
	return map[string]ModelConfig{
		"anthropic/claude-3.5-sonnet": {
			Name:          "anthropic/claude-3.5-sonnet",
			ContextWindow: 200000,
			Description:   "Claude 3.5 Sonnet for plan drafting",
		},
		"google/gemini-2.5-flash": {
			Name:          "google/gemini-2.5-flash",
			ContextWindow: 1000000,
			Description:   "Gemini 2.5 Flash for end-of-interview checks",
		},
	}
}
