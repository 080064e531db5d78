package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Message is one chat turn sent to a model.
type Message struct {
	Role    string `json:"role"` // "system", "user" or "assistant"
	Content string `json:"content"`
}

// Completer returns the raw text of a chat completion.
type Completer interface {
	Complete(ctx context.Context, model string, messages []Message) (string, error)
}

// Client is the LLM client. By default it talks to OpenRouter; any Completer
// can be plugged in instead.
type Client struct {
	config    *Config
	http      *http.Client
	models    map[string]ModelConfig
	completer Completer
}

// NewClient creates a new LLM client.
func NewClient(config *Config) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	config.SetDefaults()

	return &Client{
		config: config,
		http: &http.Client{
			Timeout: config.Timeout,
		},
		models: DefaultModels(),
	}, nil
}

// NewClientWithCompleter creates a client whose completions come from c.
// The API key is not required.
func NewClientWithCompleter(config *Config, c Completer) *Client {
	config.SetDefaults()
	return &Client{
		config:    config,
		http:      &http.Client{Timeout: config.Timeout},
		models:    DefaultModels(),
		completer: c,
	}
}

// DefaultModel returns the model used when a call names none.
func (c *Client) DefaultModel() string {
	return c.config.DefaultModel
}

// EndCheckModel returns the model used for early-end checks.
func (c *Client) EndCheckModel() string {
	if c.config.EndCheckModel != "" {
		return c.config.EndCheckModel
	}
	return c.config.DefaultModel
}

// Model returns the known configuration for a model name.
func (c *Client) Model(name string) (ModelConfig, bool) {
	m, ok := c.models[name]
	return m, ok
}

// OpenRouterRequest represents a request to OpenRouter (OpenAI-compatible).
type OpenRouterRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
}

// OpenRouterResponse represents a response from OpenRouter.
type OpenRouterResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	} `json:"error,omitempty"`
}

// Complete sends messages to the model and returns the reply text.
func (c *Client) Complete(ctx context.Context, model string, messages []Message) (string, error) {
	if model == "" {
		model = c.config.DefaultModel
	}
	if c.completer != nil {
		return c.completer.Complete(ctx, model, messages)
	}
	return c.callOpenRouter(ctx, model, messages)
}

// GenerateStructured generates a structured output from the LLM with validation and retry
// T is the type of the structured output
// validate is an optional validation function that returns an error if the output is invalid.
func GenerateStructured[T any](
	client *Client,
	ctx context.Context,
	model string,
	prompt string,
	validate func(*T) error,
) (*T, error) {
	if model == "" {
		model = client.config.DefaultModel
	}

	originalPrompt := prompt
	var lastErr error

	for attempt := 1; attempt <= client.config.MaxRetries; attempt++ {
		slog.Info("LLM generation attempt",
			"attempt", attempt,
			"model", model,
			"prompt_length", len(prompt),
		)

		result, err := completeJSON[T](client, ctx, model, prompt)
		if err != nil {
			lastErr = err
			// Network/API errors are not retryable with modified prompt
			var llmErr *LLMError
			if errors.As(err, &llmErr) && !llmErr.Retryable() {
				return nil, err
			}
			prompt = fmt.Sprintf("%s\n\nPREVIOUS ATTEMPT FAILED:\nError: %v\n\nPlease return valid JSON matching the exact structure requested.", originalPrompt, err)
			continue
		}

		if validate != nil {
			if err := validate(result); err != nil {
				lastErr = NewValidationError(err.Error(), err)
				slog.Warn("LLM output validation failed",
					"attempt", attempt,
					"error", err.Error(),
				)
				// Feed validation error back to LLM
				prompt = fmt.Sprintf("%s\n\nPREVIOUS VALIDATION ERROR:\n%v\n\nPlease fix the output to pass validation.", originalPrompt, err)
				continue
			}
		}

		slog.Info("LLM generation succeeded",
			"attempt", attempt,
			"model", model,
		)
		return result, nil
	}

	return nil, fmt.Errorf("validation failed after %d attempts: %w", client.config.MaxRetries, lastErr)
}

// completeJSON makes a single completion call and decodes the reply as T.
func completeJSON[T any](client *Client, ctx context.Context, model, prompt string) (*T, error) {
	content, err := client.Complete(ctx, model, []Message{{Role: "user", Content: prompt}})
	if err != nil {
		return nil, err
	}

	// Clean markdown code blocks (some models wrap JSON in ```json...```)
	content = cleanMarkdownCodeBlocks(content)

	var result T
	if err := json.Unmarshal([]byte(content), &result); err != nil {
		return nil, NewParseError(content, err)
	}

	return &result, nil
}

// callOpenRouter makes a single HTTP call to OpenRouter API.
func (c *Client) callOpenRouter(ctx context.Context, model string, messages []Message) (string, error) {
	body, err := json.Marshal(OpenRouterRequest{Model: model, Messages: messages})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	url := c.config.BaseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Title", c.config.AppTitle)
	if c.config.Referer != "" {
		req.Header.Set("HTTP-Referer", c.config.Referer)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	duration := time.Since(start)

	if err != nil {
		slog.Error("OpenRouter HTTP request failed",
			"error", err.Error(),
			"duration", duration,
		)
		if errors.Is(err, context.DeadlineExceeded) {
			return "", NewTimeoutError()
		}
		return "", NewNetworkError(err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("Failed to close response body", "error", err)
		}
	}()

	slog.Info("OpenRouter HTTP request completed",
		"status_code", resp.StatusCode,
		"duration", duration,
	)

	if resp.StatusCode != http.StatusOK {
		var errBody bytes.Buffer
		if _, err := errBody.ReadFrom(resp.Body); err != nil {
			slog.Warn("Failed to read error response body", "error", err)
			return "", NewAPIError(resp.StatusCode, fmt.Sprintf("status %d (failed to read error body)", resp.StatusCode))
		}
		return "", NewAPIError(resp.StatusCode, errBody.String())
	}

	var openrouterResp OpenRouterResponse
	if err := json.NewDecoder(resp.Body).Decode(&openrouterResp); err != nil {
		return "", NewParseError("", fmt.Errorf("decode response: %w", err))
	}

	if openrouterResp.Error != nil {
		return "", NewAPIError(0, openrouterResp.Error.Message)
	}

	if len(openrouterResp.Choices) == 0 {
		return "", NewAPIError(0, "no choices in response")
	}

	return openrouterResp.Choices[0].Message.Content, nil
}

// cleanMarkdownCodeBlocks removes markdown code block wrappers from JSON
// Some models (especially Gemini) wrap JSON in ```json...```.
func cleanMarkdownCodeBlocks(content string) string {
	content = strings.TrimSpace(content)

	if strings.HasPrefix(content, "```json") {
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimSpace(content)
	} else if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```")
		content = strings.TrimSpace(content)
	}

	if strings.HasSuffix(content, "```") {
		content = strings.TrimSuffix(content, "```")
		content = strings.TrimSpace(content)
	}

	return content
}
