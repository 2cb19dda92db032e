package orchestrator

import (
	"context"
	"time"

	"github.com/BaSui01/aiorch/agent/builtin"
	"github.com/BaSui01/aiorch/types"
)

// BattlecardPipelineName names the battlecard pipeline.
const BattlecardPipelineName = "battlecard"

// BattlecardRequest asks for a competitor battlecard.
type BattlecardRequest struct {
	CompetitorInfo  map[string]any          `json:"competitor_info" validate:"required"`
	ProductSegment  string                  `json:"product_segment" validate:"max=200"`
	FocusAreas      []string                `json:"focus_areas" validate:"max=20,dive,max=200"`
	IncludeSections []string                `json:"include_sections" validate:"max=20,dive,max=100"`
	Options         types.ProcessingOptions `json:"options"`
}

// Validate checks the request shape; the competitor must at least carry a name.
func (r BattlecardRequest) Validate() error {
	if err := types.Validator().Struct(r); err != nil {
		return types.NewValidationError("invalid battlecard request: " + err.Error()).WithCause(err)
	}
	if name, _ := r.CompetitorInfo["name"].(string); name == "" {
		return types.NewValidationError("competitor_info.name is required")
	}
	return nil
}

func (r BattlecardRequest) sections() []string {
	if len(r.IncludeSections) == 0 {
		return builtin.DefaultSections
	}
	return r.IncludeSections
}

// NewBattlecardPipeline aggregates research on the competitor, then generates the
// battlecard from it.
func NewBattlecardPipeline(req BattlecardRequest) *Pipeline {
	focus := make([]any, len(req.FocusAreas))
	for i, f := range req.FocusAreas {
		focus[i] = f
	}
	sections := make([]any, 0, len(req.sections()))
	for _, s := range req.sections() {
		sections = append(sections, s)
	}

	aggregate := Step{
		Name:      "aggregation",
		AgentType: builtin.Aggregator,
		Input: func(map[string]any) (map[string]any, error) {
			return map[string]any{
				"competitor_name": req.CompetitorInfo["name"],
				"context": map[string]any{
					"product_segment": req.ProductSegment,
					"focus_areas":     focus,
				},
			}, nil
		},
	}
	generate := Step{
		Name:      "generation",
		AgentType: builtin.BattlecardGeneration,
		Input: func(prev map[string]any) (map[string]any, error) {
			return map[string]any{
				"competitor_info":  req.CompetitorInfo,
				"aggregated_data":  prev,
				"product_segment":  req.ProductSegment,
				"focus_areas":      focus,
				"include_sections": sections,
			}, nil
		},
	}

	return NewPipeline(BattlecardPipelineName, aggregate, generate).WithFinish(func(res PipelineResult) map[string]any {
		timing := map[string]any{}
		ids := map[string]any{}
		for _, s := range res.Steps {
			timing[s.Name+"_ms"] = float64(s.Metrics.TotalLatency) / float64(time.Millisecond)
			ids[s.Name] = s.RequestID
		}
		return map[string]any{
			"battlecard":  res.Payloads["generation"],
			"source_data": res.Payloads["aggregation"],
			"metadata": map[string]any{
				"generated_at":    time.Now().UTC().Format(time.RFC3339),
				"competitor":      req.CompetitorInfo["name"],
				"product_segment": req.ProductSegment,
				"focus_areas":     focus,
				"request_ids":     ids,
				"processing_time": timing,
			},
		}
	})
}

// GenerateBattlecard validates req and runs the battlecard pipeline.
func (o *Orchestrator) GenerateBattlecard(ctx context.Context, req BattlecardRequest) PipelineResult {
	if err := req.Validate(); err != nil {
		return PipelineResult{
			Pipeline: BattlecardPipelineName,
			Status:   types.StatusError,
			Error:    types.Translate(err),
		}
	}
	p := NewBattlecardPipeline(req)
	return o.RunPipeline(ctx, p, req.CompetitorInfo, req.Options)
}
