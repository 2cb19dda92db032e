package builtin

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/BaSui01/aiorch/agent"
	"github.com/BaSui01/aiorch/llm"
)

// Agent type names of the builtin catalog.
const (
	ContentAnalysis         = "content_analysis"
	CompetitiveIntelligence = "competitive_intelligence"
	ObjectionHandling       = "objection_handling"
	UseCase                 = "use_case"
	Summarizer              = "summarizer"
	Aggregator              = "aggregator"
	BattlecardGeneration    = "battlecard_generation"
	Scorer                  = "scorer"
)

// DefaultSections are the battlecard sections generated when the caller names none.
var DefaultSections = []string{"overview", "strengths_weaknesses", "objection_handling", "winning_strategies"}

const jsonReply = "\n\nRespond with a single JSON object and nothing else."

// Catalog returns the definitions of every builtin agent.
func Catalog() []Definition {
	return []Definition{
		{
			Name:     ContentAnalysis,
			Required: []string{"content", "content_type"},
			System: `You are an expert content analyst creating battlecards for sales and marketing teams.
Extract positioning, differentiators, target segments, competitive points and common objections.`,
			Template: `{{if eq .content_type "competitor"}}Analyze the following competitor information and identify key differentiators, strengths and weaknesses, competitive advantages and market positioning.
{{else if eq .content_type "product"}}Analyze the following product information and extract key features and benefits, target use cases, technical specifications and integration capabilities.
{{else if eq .content_type "company_overview"}}Analyze the following company information and extract the core value proposition, market positioning, primary industry focus and company strengths.
{{else}}Analyze the following content.
{{end}}
Content:
{{.content}}`,
			MaxTokens: 2000,
		},
		{
			Name:     CompetitiveIntelligence,
			Required: []string{"competitor_name", "data_points"},
			System:   "You are a competitive intelligence analyst. Be factual and cite the data points you rely on.",
			Template: `Analyze the competitor {{.competitor_name}}.

Data points:
{{json .data_points}}

Historical data:
{{json .historical_data}}

Cover market position, recent moves, strengths, weaknesses and threats.` + jsonReply,
			MaxTokens: 2000,
		},
		{
			Name:     ObjectionHandling,
			Required: []string{"objection", "context"},
			System: `You are an expert sales consultant specializing in handling objections.
For each objection give a concise response, talking points, supporting evidence, discovery questions and alternative approaches.`,
			Template: `Provide a response strategy for the following objection.

Objection:
{{.objection}}

Context:
{{json .context}}

Success stories:
{{json .success_stories}}

Competitor information:
{{json .competitor_info}}` + jsonReply,
			MaxTokens: 2000,
		},
		{
			Name:     UseCase,
			Required: []string{"customer_data", "solution_details"},
			System:   "You write concise customer use cases that connect a business challenge to measurable outcomes.",
			Template: `Customer:
{{json .customer_data}}

Solution:
{{json .solution_details}}

Outcomes:
{{json .outcomes}}

Describe the challenge, the solution, the implementation and the results.` + jsonReply,
			MaxTokens: 1500,
		},
		{
			Name:      Summarizer,
			Required:  []string{"text"},
			System:    "You summarize business documents for busy sales representatives.",
			Template:  `Summarize the following text in at most {{default "5" .max_points}} bullet points.

{{.text}}`,
			MaxTokens: 800,
		},
		{
			Name:  Aggregator,
			AnyOf: []string{"query", "competitor_name"},
			System: `You aggregate competitive research into a verified, deduplicated brief.
Flag claims you cannot support and estimate your confidence between 0 and 1.`,
			Template: `{{with .competitor_name}}Competitor: {{.}}
{{end}}{{with .query}}Query: {{.}}
{{end}}Context:
{{json .context}}

Return fields "summary", "key_insights", "sources" and "confidence".` + jsonReply,
			MaxTokens: 2500,
		},
		{
			Name:     BattlecardGeneration,
			Required: []string{"competitor_info", "aggregated_data"},
			System:   "You build sales battlecards that help representatives win against a named competitor.",
			Template: `Competitor:
{{json .competitor_info}}

Product segment: {{default "general" .product_segment}}
Focus areas: {{join .focus_areas ", "}}

Research:
{{json .aggregated_data}}

Produce one top-level field per section: {{join .include_sections ", "}}.` + jsonReply,
			MaxTokens: 4000,
		},
		{
			Name:     Scorer,
			Required: []string{"content"},
			System:   "You grade sales content for clarity, accuracy and persuasiveness.",
			Template: `Score the following content from 0 to 100 on clarity, accuracy and persuasiveness and give an overall score.
{{with .criteria}}Additional criteria: {{join . ", "}}
{{end}}
{{.content}}

Return fields "scores", "overall" and "recommendations".` + jsonReply,
			MaxTokens: 1000,
		},
	}
}

// Register adds every catalog agent to reg, backed by client.
func Register(reg *agent.Registry, client llm.Client, counter llm.TokenCounter, logger *zap.Logger, opts ...Option) error {
	for _, def := range Catalog() {
		a, err := NewPromptAgent(def, client, counter, logger, opts...)
		if err != nil {
			return fmt.Errorf("register %s: %w", def.Name, err)
		}
		reg.RegisterAgent(def.Name, a)
	}
	return nil
}
