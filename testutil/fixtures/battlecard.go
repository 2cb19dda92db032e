// =============================================================================
// 📦 测试数据工厂 - Battlecard 测试数据
// =============================================================================
// 提供预定义的 Agent 输入与模型 JSON 响应，用于测试
// =============================================================================
package fixtures

// =============================================================================
// 🎯 Agent 输入
// =============================================================================

// CompetitorInfo 返回竞品信息
func CompetitorInfo() map[string]any {
	return map[string]any{
		"name":    "Acme Analytics",
		"website": "https://acme.example.com",
		"segment": "mid-market",
	}
}

// AggregatorInput 返回 aggregator 的合法输入
func AggregatorInput() map[string]any {
	return map[string]any{
		"competitor_name": "Acme Analytics",
		"context": map[string]any{
			"product_segment": "enterprise",
			"focus_areas":     []any{"pricing", "integrations"},
		},
	}
}

// ScorerInput 返回 scorer 的合法输入
func ScorerInput(content string) map[string]any {
	return map[string]any{"content": content}
}

// ObjectionInput 返回 objection_handling 的合法输入
func ObjectionInput() map[string]any {
	return map[string]any{
		"objection": "Your product is too expensive",
		"context":   map[string]any{"deal_size": 50000, "stage": "negotiation"},
	}
}

// =============================================================================
// 🤖 模型响应
// =============================================================================

// AggregatedJSON 是 aggregator 的模型 JSON 响应
const AggregatedJSON = `{"summary":"Acme competes on price","key_insights":["cheap","few integrations"],"confidence":0.8}`

// BattlecardJSON 是 battlecard_generation 的模型 JSON 响应
const BattlecardJSON = "```json\n" + `{"overview":"Acme is a low-cost option","strengths_weaknesses":{"strengths":["price"],"weaknesses":["support"]},"objection_handling":[],"winning_strategies":["lead with integrations"]}` + "\n```"

// ScoreJSON 是 scorer 的模型 JSON 响应
const ScoreJSON = `{"scores":{"clarity":80,"accuracy":90,"persuasiveness":70},"overall":80,"recommendations":["add proof points"]}`

// PlainTextReply 是非 JSON 的模型响应
const PlainTextReply = `Overview:
- Acme is cheaper
- Acme lacks SSO
Next steps:
Book a demo`
