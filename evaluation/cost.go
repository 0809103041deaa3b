package evaluation

import (
	"github.com/hupe1980/clinagents/core"
)

// Rate is the USD price of one input and one output token.
type Rate struct {
	Input  float64 `yaml:"input" json:"input"`
	Output float64 `yaml:"output" json:"output"`
}

// CostTable prices model usage. Aliases map the model names found in
// transcripts (deployment names, provider prefixes) onto rate keys.
type CostTable struct {
	Rates   map[string]Rate   `yaml:"rates" json:"rates"`
	Aliases map[string]string `yaml:"aliases" json:"aliases"`
}

// Rate returns the rate of modelName, zero when unknown.
func (t CostTable) Rate(modelName string) Rate {
	if alias, ok := t.Aliases[modelName]; ok {
		modelName = alias
	}
	return t.Rates[modelName]
}

// Cost prices u at the rate of modelName.
func (t CostTable) Cost(modelName string, u core.Usage) float64 {
	r := t.Rate(modelName)
	return float64(u.InputTokens)*r.Input + float64(u.OutputTokens)*r.Output
}

// TranscriptCost prices every call of tr.
func (t CostTable) TranscriptCost(tr core.Transcript) float64 {
	total := 0.0
	for _, c := range tr.Calls {
		total += t.Cost(c.Model, c.Usage)
	}
	return total
}
