package inference

import (
	"log/slog"
	"net/http"
	"time"
)

// Config is shared by Client and Gemini. MaxTokens and Temperature are
// request defaults; zero leaves the choice to the service.
type Config struct {
	BaseURL string
	APIKey  string

	Model       string
	MaxTokens   int
	Temperature float64

	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration

	// HTTPClient overrides the client built from Timeout.
	HTTPClient *http.Client

	Logger *slog.Logger
}

type Option func(*Config)

// WithBaseURL points Client at another OpenAI-compatible server, for
// example "http://localhost:11434/v1" for Ollama.
func WithBaseURL(url string) Option {
	return func(c *Config) { c.BaseURL = url }
}

// WithAPIKey sets the API key.
func WithAPIKey(key string) Option {
	return func(c *Config) { c.APIKey = key }
}

// WithModel sets the default chat model.
func WithModel(model string) Option {
	return func(c *Config) { c.Model = model }
}

func WithMaxTokens(n int) Option {
	return func(c *Config) { c.MaxTokens = n }
}

func WithTemperature(t float64) Option {
	return func(c *Config) { c.Temperature = t }
}

func WithTimeout(d time.Duration) Option {
	return func(c *Config) { c.Timeout = d }
}

// WithRetry sets how often temporary failures (429, 5xx, network) are
// retried, with delay growing linearly per attempt.
func WithRetry(maxRetries int, delay time.Duration) Option {
	return func(c *Config) {
		c.MaxRetries = maxRetries
		c.RetryDelay = delay
	}
}

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Config) { c.HTTPClient = hc }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// DefaultConfig targets OpenAI's gpt-4o, which accepts screenshot images.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:    "https://api.openai.com/v1",
		Model:      "gpt-4o",
		Timeout:    60 * time.Second,
		MaxRetries: 2,
		RetryDelay: 250 * time.Millisecond,
		Logger:     slog.Default(),
	}
}

func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}

// Validate requires a model. The API key is optional because local
// OpenAI-compatible servers run without one.
func (c *Config) Validate() error {
	if c.Model == "" {
		return ErrNoModel
	}
	return nil
}
