// Package openai implements llm.Client on the OpenAI Responses API.
package openai

import (
	"context"
	"errors"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"
	"go.uber.org/zap"

	"github.com/BaSui01/aiorch/internal/tlsutil"
	"github.com/BaSui01/aiorch/llm"
	"github.com/BaSui01/aiorch/types"
)

const providerName = "openai"

// DefaultModels maps preferences to OpenAI models.
var DefaultModels = llm.ModelSet{
	Fast:     "gpt-4o-mini",
	Balanced: "gpt-4o",
	Quality:  "gpt-4.1",
}

// Client wraps the official OpenAI SDK client.
type Client struct {
	client openai.Client
	cfg    llm.ProviderConfig
	logger *zap.Logger
}

// New creates a client with SDK retries disabled.
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
		client: openai.NewClient(opts...),
		cfg:    cfg,
		logger: logger.With(zap.String("component", "llm_openai")),
	}
}

// Name implements llm.Client.
func (c *Client) Name() string { return providerName }

// Complete implements llm.Client.
func (c *Client) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	model := c.cfg.Models.Resolve(req.Preference)
	params := responses.ResponseNewParams{
		Model:           model,
		MaxOutputTokens: openai.Int(c.cfg.MaxTokens(req.MaxTokens)),
		Input:           responses.ResponseNewParamsInputUnion{OfString: openai.String(req.Prompt)},
	}
	if req.System != "" {
		params.Instructions = openai.String(req.System)
	}
	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	}

	resp, err := c.client.Responses.New(ctx, params)
	if err != nil {
		return llm.Response{}, classify(err)
	}
	content := resp.OutputText()
	if content == "" {
		return llm.Response{}, types.NewTransientError("empty response from openai").WithCode(types.ErrUpstreamError)
	}

	c.logger.Debug("completion finished",
		zap.String("model", string(resp.Model)),
		zap.Int64("input_tokens", resp.Usage.InputTokens),
		zap.Int64("output_tokens", resp.Usage.OutputTokens),
	)
	return llm.Response{
		Content:      content,
		Model:        string(resp.Model),
		Provider:     providerName,
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
	}, nil
}

func classify(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return llm.ClassifyStatus(providerName, apiErr.StatusCode, err)
	}
	return llm.ClassifyTransport(providerName, err)
}
