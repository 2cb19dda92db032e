package builtin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"

	"go.uber.org/zap"

	"github.com/BaSui01/aiorch/agent"
	"github.com/BaSui01/aiorch/llm"
	"github.com/BaSui01/aiorch/types"
)

// DefaultPromptBudget caps the prompt size, in tokens, of a single call.
const DefaultPromptBudget = 100_000

// Definition declares a prompt-driven agent.
type Definition struct {
	Name string
	// Required fields must all be present and non-empty.
	Required []string
	// AnyOf fields: at least one must be present and non-empty.
	AnyOf     []string
	System    string
	Template  string
	MaxTokens int
}

// PromptAgent renders a prompt from the input, calls the LLM client and structures its reply.
// It holds no per-request state and is safe for concurrent use.
type PromptAgent struct {
	def     Definition
	tmpl    *template.Template
	client  llm.Client
	counter llm.TokenCounter
	budget  int
	logger  *zap.Logger
}

// Option tunes a PromptAgent.
type Option func(*PromptAgent)

// WithBudget caps the prompt size in tokens. Non-positive values keep the default.
func WithBudget(tokens int) Option {
	return func(a *PromptAgent) {
		if tokens > 0 {
			a.budget = tokens
		}
	}
}

// NewPromptAgent parses the definition template. A nil client makes Execute fail with a
// permanent error; a nil counter falls back to the length estimate.
func NewPromptAgent(def Definition, client llm.Client, counter llm.TokenCounter, logger *zap.Logger, opts ...Option) (*PromptAgent, error) {
	if def.Name == "" {
		return nil, fmt.Errorf("prompt agent: empty name")
	}
	tmpl, err := template.New(def.Name).Funcs(templateFuncs).Parse(def.Template)
	if err != nil {
		return nil, fmt.Errorf("prompt agent %s: parse template: %w", def.Name, err)
	}
	if counter == nil {
		counter = llm.EstimateCounter{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &PromptAgent{
		def:     def,
		tmpl:    tmpl,
		client:  client,
		counter: counter,
		budget:  DefaultPromptBudget,
		logger:  logger.With(zap.String("component", "agent"), zap.String("agent_type", def.Name)),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Name returns the agent type.
func (a *PromptAgent) Name() string { return a.def.Name }

// Validate implements agent.Agent.
func (a *PromptAgent) Validate(input map[string]any) bool {
	if input == nil {
		return false
	}
	for _, f := range a.def.Required {
		if !present(input[f]) {
			return false
		}
	}
	if len(a.def.AnyOf) == 0 {
		return true
	}
	for _, f := range a.def.AnyOf {
		if present(input[f]) {
			return true
		}
	}
	return false
}

// Execute implements agent.Agent.
func (a *PromptAgent) Execute(ctx context.Context, input map[string]any) (map[string]any, error) {
	if a.client == nil {
		return nil, agent.Permanent(llm.ErrNoProvider)
	}
	opts, _ := types.OptionsFrom(ctx)

	var buf bytes.Buffer
	if err := a.tmpl.Execute(&buf, input); err != nil {
		return nil, agent.Permanent(fmt.Errorf("render prompt: %w", err))
	}
	prompt := strings.TrimSpace(buf.String())

	if n := a.counter.CountTokens(a.def.System) + a.counter.CountTokens(prompt); n > a.budget {
		return nil, types.NewPermanentError(
			fmt.Sprintf("prompt of %d tokens exceeds budget of %d", n, a.budget))
	}

	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = a.def.MaxTokens
	}
	resp, err := a.client.Complete(ctx, llm.Request{
		System:      a.def.System,
		Prompt:      prompt,
		Preference:  opts.Model(),
		MaxTokens:   maxTokens,
		Temperature: opts.Temperature,
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, agent.Transient(err)
	}

	a.logger.Debug("agent completed",
		zap.String("provider", resp.Provider),
		zap.String("model", resp.Model),
		zap.Int64("output_tokens", resp.OutputTokens),
	)
	return formatOutput(a.def.Name, resp), nil
}

// formatOutput decodes a JSON object reply into the payload; other replies are kept
// as content plus a best-effort section breakdown.
func formatOutput(name string, resp llm.Response) map[string]any {
	out, ok := decodeObject(resp.Content)
	if !ok {
		out = map[string]any{
			"content":  resp.Content,
			"sections": extractSections(resp.Content),
		}
	}
	out["agent"] = name
	out["model"] = resp.Model
	return out
}

func decodeObject(content string) (map[string]any, bool) {
	s := strings.TrimSpace(content)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	start, end := strings.IndexByte(s, '{'), strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return nil, false
	}

	dec := json.NewDecoder(strings.NewReader(s[start : end+1]))
	dec.UseNumber()
	var out map[string]any
	if err := dec.Decode(&out); err != nil || out == nil {
		return nil, false
	}
	return out, true
}

// extractSections groups lines under "Header:" lines; "-" bullets are stripped.
func extractSections(text string) map[string]any {
	sections := map[string][]string{}
	current := "general"
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case line == "":
		case strings.HasSuffix(line, ":") && !strings.HasPrefix(line, "-"):
			current = strings.ToLower(strings.TrimSuffix(line, ":"))
			if _, ok := sections[current]; !ok {
				sections[current] = []string{}
			}
		case strings.HasPrefix(line, "-"):
			sections[current] = append(sections[current], strings.TrimSpace(line[1:]))
		default:
			sections[current] = append(sections[current], line)
		}
	}

	out := make(map[string]any, len(sections))
	for k, v := range sections {
		items := make([]any, len(v))
		for i := range v {
			items[i] = v[i]
		}
		out[k] = items
	}
	return out
}

func present(v any) bool {
	if v == nil {
		return false
	}
	return types.Validator().Var(v, "required") == nil
}

var templateFuncs = template.FuncMap{
	"json": func(v any) string {
		if v == nil {
			return "none provided"
		}
		b, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(b)
	},
	"join": func(v any, sep string) string {
		switch vv := v.(type) {
		case []string:
			return strings.Join(vv, sep)
		case []any:
			parts := make([]string, len(vv))
			for i := range vv {
				parts[i] = fmt.Sprint(vv[i])
			}
			return strings.Join(parts, sep)
		case nil:
			return ""
		default:
			return fmt.Sprint(v)
		}
	},
	"default": func(def string, v any) any {
		if v == nil {
			return def
		}
		if s, ok := v.(string); ok && s == "" {
			return def
		}
		return v
	},
}
