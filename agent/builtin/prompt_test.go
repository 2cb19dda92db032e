package builtin

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/aiorch/agent"
	"github.com/BaSui01/aiorch/llm"
	"github.com/BaSui01/aiorch/testutil/fixtures"
	"github.com/BaSui01/aiorch/testutil/mocks"
	"github.com/BaSui01/aiorch/types"
)

func definitionByName(t *testing.T, name string) Definition {
	t.Helper()
	for _, s := range Catalog() {
		if s.Name == name {
			return s
		}
	}
	t.Fatalf("no catalog definition %q", name)
	return Definition{}
}

func newAgent(t *testing.T, name string, client llm.Client) *PromptAgent {
	t.Helper()
	a, err := NewPromptAgent(definitionByName(t, name), client, nil, zap.NewNop())
	require.NoError(t, err)
	return a
}

func TestCatalog_TemplatesParse(t *testing.T) {
	seen := map[string]bool{}
	for _, def := range Catalog() {
		_, err := NewPromptAgent(def, nil, nil, nil)
		require.NoError(t, err, def.Name)
		assert.False(t, seen[def.Name], "duplicate %s", def.Name)
		seen[def.Name] = true
	}
	assert.Len(t, seen, 8)
}

func TestRegister(t *testing.T) {
	reg := agent.NewRegistry(nil)
	require.NoError(t, Register(reg, mocks.NewMockClient(), nil, nil))

	assert.Equal(t, []string{
		Aggregator, BattlecardGeneration, CompetitiveIntelligence, ContentAnalysis,
		ObjectionHandling, Scorer, Summarizer, UseCase,
	}, reg.ListTypes())
}

func TestPromptAgent_Validate(t *testing.T) {
	obj := newAgent(t, ObjectionHandling, nil)
	assert.True(t, obj.Validate(fixtures.ObjectionInput()))
	assert.False(t, obj.Validate(map[string]any{"objection": "too expensive"}))
	assert.False(t, obj.Validate(map[string]any{"objection": "", "context": "x"}))
	assert.False(t, obj.Validate(nil))

	agg := newAgent(t, Aggregator, nil)
	assert.True(t, agg.Validate(map[string]any{"query": "acme pricing"}))
	assert.True(t, agg.Validate(map[string]any{"competitor_name": "Acme"}))
	assert.False(t, agg.Validate(map[string]any{"context": map[string]any{}}))
	assert.False(t, agg.Validate(map[string]any{"query": ""}))
}

func TestPromptAgent_Execute_JSONReply(t *testing.T) {
	client := mocks.NewMockClient().WithResponse(fixtures.ScoreJSON)
	a := newAgent(t, Scorer, client)

	temp := 0.2
	ctx := types.WithOptions(context.Background(), types.ProcessingOptions{
		ModelPreference: types.ModelQuality,
		MaxTokens:       300,
		Temperature:     &temp,
	})
	out, err := a.Execute(ctx, map[string]any{"content": "Our product wins", "criteria": []any{"brevity"}})
	require.NoError(t, err)

	assert.Equal(t, json.Number("80"), out["overall"])
	assert.Equal(t, Scorer, out["agent"])
	assert.Equal(t, "mock-model", out["model"])

	req, ok := client.LastRequest()
	require.True(t, ok)
	assert.Equal(t, types.ModelQuality, req.Preference)
	assert.Equal(t, 300, req.MaxTokens)
	assert.Equal(t, &temp, req.Temperature)
	assert.Contains(t, req.Prompt, "Our product wins")
	assert.Contains(t, req.Prompt, "Additional criteria: brevity")
	assert.NotEmpty(t, req.System)
}

func TestPromptAgent_Execute_FencedJSON(t *testing.T) {
	client := mocks.NewMockClient().WithResponse(fixtures.BattlecardJSON)
	a := newAgent(t, BattlecardGeneration, client)

	out, err := a.Execute(context.Background(), map[string]any{
		"competitor_info":  fixtures.CompetitorInfo(),
		"aggregated_data":  map[string]any{"summary": "x"},
		"include_sections": DefaultSections,
		"focus_areas":      []any{"pricing"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Acme is a low-cost option", out["overview"])

	req, _ := client.LastRequest()
	assert.Equal(t, 4000, req.MaxTokens)
	assert.Equal(t, types.ModelAuto, req.Preference)
	assert.Contains(t, req.Prompt, "overview, strengths_weaknesses, objection_handling, winning_strategies")
	assert.Contains(t, req.Prompt, "Product segment: general")
	assert.Contains(t, req.Prompt, "Acme Analytics")
}

func TestPromptAgent_Execute_PlainTextReply(t *testing.T) {
	client := mocks.NewMockClient().WithResponse(fixtures.PlainTextReply)
	a := newAgent(t, ContentAnalysis, client)

	out, err := a.Execute(context.Background(), map[string]any{"content": "Acme sells BI", "content_type": "competitor"})
	require.NoError(t, err)
	assert.Equal(t, fixtures.PlainTextReply, out["content"])

	sections := out["sections"].(map[string]any)
	assert.Equal(t, []any{"Acme is cheaper", "Acme lacks SSO"}, sections["overview"])
	assert.Equal(t, []any{"Book a demo"}, sections["next steps"])

	req, _ := client.LastRequest()
	assert.True(t, strings.HasPrefix(req.Prompt, "Analyze the following competitor information"))
}

func TestPromptAgent_Execute_Errors(t *testing.T) {
	t.Run("no provider", func(t *testing.T) {
		_, err := newAgent(t, Scorer, nil).Execute(context.Background(), fixtures.ScorerInput("x"))
		assert.Equal(t, types.KindPermanent, types.KindOf(err))
		assert.ErrorIs(t, err, llm.ErrNoProvider)
	})

	t.Run("classified provider error passes through", func(t *testing.T) {
		upstream := types.NewPermanentError("bad key")
		client := mocks.NewMockClient().WithError(upstream)
		_, err := newAgent(t, Scorer, client).Execute(context.Background(), fixtures.ScorerInput("x"))
		assert.Same(t, upstream, err)
	})

	t.Run("unclassified provider error is transient", func(t *testing.T) {
		client := mocks.NewMockClient().WithError(assert.AnError)
		_, err := newAgent(t, Scorer, client).Execute(context.Background(), fixtures.ScorerInput("x"))
		assert.Equal(t, types.KindTransient, types.KindOf(err))
	})

	t.Run("prompt over budget", func(t *testing.T) {
		client := mocks.NewMockClient()
		a, err := NewPromptAgent(definitionByName(t, Scorer), client, nil, zap.NewNop(), WithBudget(10))
		require.NoError(t, err)
		_, err = a.Execute(context.Background(), fixtures.ScorerInput(strings.Repeat("word ", 200)))
		assert.Equal(t, types.KindPermanent, types.KindOf(err))
		assert.Zero(t, client.CallCount())
	})
}

func TestNewPromptAgent_BadTemplate(t *testing.T) {
	_, err := NewPromptAgent(Definition{Name: "broken", Template: "{{.x"}, nil, nil, nil)
	assert.Error(t, err)

	_, err = NewPromptAgent(Definition{}, nil, nil, nil)
	assert.Error(t, err)
}
