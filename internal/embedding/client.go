package embedding

import (
	"errors"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// ClientConfig configures the OpenAI-compatible provider connection.
// BaseURL may point at any OpenAI-compatible endpoint (e.g. Gemini's
// https://generativelanguage.googleapis.com/v1beta/openai/).
type ClientConfig struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// Client wraps the OpenAI client shared by embedding and chat completion.
type Client struct {
	client *openai.Client
}

// NewClient creates a provider client. SDK-level retries are disabled: retry
// policy belongs to the caller (see WithRetry).
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("OPENAI_API_KEY environment variable not set")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}

	client := openai.NewClient(opts...)
	return &Client{client: &client}, nil
}

// Client returns the underlying OpenAI client for use in other packages (e.g., chat completion).
func (c *Client) Client() *openai.Client {
	return c.client
}
