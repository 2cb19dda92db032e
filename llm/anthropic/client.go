// Package anthropic implements llm.Client on the Anthropic Messages API.
package anthropic

import (
	"context"
	"errors"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"

	"github.com/BaSui01/aiorch/internal/tlsutil"
	"github.com/BaSui01/aiorch/llm"
	"github.com/BaSui01/aiorch/types"
)

const providerName = "anthropic"

// DefaultModels follows the product's low/medium/high complexity tiers.
var DefaultModels = llm.ModelSet{
	Fast:     "claude-3-5-haiku-latest",
	Balanced: "claude-sonnet-4-5",
	Quality:  "claude-opus-4-1",
}

// Client wraps the Anthropic SDK client.
type Client struct {
	client anthropic.Client
	cfg    llm.ProviderConfig
	logger *zap.Logger
}

// New creates a client. SDK level retries are disabled; the orchestrator owns retries.
func New(cfg llm.ProviderConfig, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Models.Balanced == "" {
		cfg.Models = DefaultModels
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
		option.WithHTTPClient(tlsutil.ProviderHTTPClient(cfg.Timeout)),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}
	return &Client{
		client: anthropic.NewClient(opts...),
		cfg:    cfg,
		logger: logger.With(zap.String("component", "llm_anthropic")),
	}
}

// Name implements llm.Client.
func (c *Client) Name() string { return providerName }

// Complete implements llm.Client.
func (c *Client) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	model := c.cfg.Models.Resolve(req.Preference)
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: c.cfg.MaxTokens(req.MaxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if req.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Temperature)
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System, Type: "text"}}
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return llm.Response{}, classify(err)
	}
	if resp == nil || len(resp.Content) == 0 {
		return llm.Response{}, types.NewTransientError("empty response from anthropic").WithCode(types.ErrUpstreamError)
	}

	var sb strings.Builder
	for i := range resp.Content {
		block := &resp.Content[i]
		if block.Type == "text" {
			sb.WriteString(block.AsText().Text)
		}
	}

	c.logger.Debug("completion finished",
		zap.String("model", string(resp.Model)),
		zap.Int64("input_tokens", resp.Usage.InputTokens),
		zap.Int64("output_tokens", resp.Usage.OutputTokens),
	)
	return llm.Response{
		Content:      sb.String(),
		Model:        string(resp.Model),
		Provider:     providerName,
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
	}, nil
}

func classify(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return llm.ClassifyStatus(providerName, apiErr.StatusCode, err)
	}
	return llm.ClassifyTransport(providerName, err)
}
