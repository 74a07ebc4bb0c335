package config

// GenerationOptions are the sampling parameters passed to the engine.
// Zero values mean "not set" and fall back to the defaults on merge.
type GenerationOptions struct {
	MaxTokens     int      `yaml:"max_tokens"`
	Temperature   float64  `yaml:"temperature"`
	TopP          float64  `yaml:"top_p"`
	TopK          int      `yaml:"top_k"`
	RepeatPenalty float64  `yaml:"repeat_penalty"`
	StopSequences []string `yaml:"stop_sequences"`
}

// DefaultGeneration returns the sampling defaults for the bundled model.
func DefaultGeneration() GenerationOptions {
	return GenerationOptions{
		MaxTokens:     256,
		Temperature:   0.7,
		TopP:          0.9,
		TopK:          40,
		RepeatPenalty: 1.1,
		StopSequences: []string{"<|im_end|>"},
	}
}

// Merge overlays the provided overrides onto o. Every key is a scalar or a
// flat list, so replacement is per-field: a set override wins, an unset one
// keeps the receiver's value.
func (o GenerationOptions) Merge(override GenerationOptions) GenerationOptions {
	out := o
	if override.MaxTokens > 0 {
		out.MaxTokens = override.MaxTokens
	}
	if override.Temperature > 0 {
		out.Temperature = override.Temperature
	}
	if override.TopP > 0 {
		out.TopP = override.TopP
	}
	if override.TopK > 0 {
		out.TopK = override.TopK
	}
	if override.RepeatPenalty > 0 {
		out.RepeatPenalty = override.RepeatPenalty
	}
	if override.StopSequences != nil {
		out.StopSequences = override.StopSequences
	}
	return out
}
