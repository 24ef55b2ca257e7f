package integration

// modelRate is the USD price per 1000 tokens for one model.
type modelRate struct {
	inputPer1K  float64
	outputPer1K float64
}

// costTable holds per-model pricing. Unknown models fall back to the default
// rate so cost reporting degrades instead of breaking when providers ship a
// new model name.
var costTable = map[string]modelRate{
	"gpt-4o":            {inputPer1K: 0.0025, outputPer1K: 0.01},
	"gpt-4o-mini":       {inputPer1K: 0.00015, outputPer1K: 0.0006},
	"claude-sonnet-4-5": {inputPer1K: 0.003, outputPer1K: 0.015},
	"claude-haiku-4-5":  {inputPer1K: 0.001, outputPer1K: 0.005},
}

var defaultRate = modelRate{inputPer1K: 0.003, outputPer1K: 0.015}

// Cost derives the USD cost of one generation from its token usage.
// Pure table lookup; providers report usage, never price.
func Cost(model string, u Usage) float64 {
	rate, ok := costTable[model]
	if !ok {
		rate = defaultRate
	}
	return float64(u.PromptTokens)/1000*rate.inputPer1K +
		float64(u.CompletionTokens)/1000*rate.outputPer1K
}
