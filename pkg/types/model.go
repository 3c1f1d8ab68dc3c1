package types

// Model describes an LLM offered by a provider, with pricing used for
// per-exchange cost accounting.
type Model struct {
	ID            string  `json:"id"`
	ProviderID    string  `json:"providerID"`
	Name          string  `json:"name"`
	ContextWindow int     `json:"contextWindow"`
	// USD per million tokens.
	CostPerMInput  float64 `json:"costPerMInput"`
	CostPerMOutput float64 `json:"costPerMOutput"`
}

// TokenUsage is the token accounting for one completion.
type TokenUsage struct {
	Input  int `json:"input"`
	Output int `json:"output"`
}

// Total returns input plus output tokens.
func (u TokenUsage) Total() int { return u.Input + u.Output }

// Cost computes the USD cost of this usage against a model's rates.
func (u TokenUsage) Cost(m *Model) float64 {
	if m == nil {
		return 0
	}
	return float64(u.Input)*m.CostPerMInput/1e6 + float64(u.Output)*m.CostPerMOutput/1e6
}
