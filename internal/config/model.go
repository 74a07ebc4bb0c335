package config

// ModelConfig identifies the single model this build ships with.
type ModelConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`

	// Source is either a local filesystem path to a GGUF file or an
	// http(s) URL the provisioner downloads once into the data dir.
	Source string `yaml:"source"`

	// SizeBytes is the expected artifact size, used for download progress.
	SizeBytes int64 `yaml:"size_bytes"`

	// ContextLength is the model's context window in tokens. Prompt
	// assembly truncates oldest-first to stay inside it.
	ContextLength int `yaml:"context_length"`
}

// DefaultModel returns the bundled Qwen2.5 0.5B instruct configuration.
func DefaultModel() ModelConfig {
	return ModelConfig{
		ID:            "qwen2.5-0.5b-q4",
		Name:          "Qwen2.5 0.5B Q4",
		Source:        "assets/models/qwen2.5-0.5b-instruct-q4_0.gguf",
		SizeBytes:     350 * 1024 * 1024,
		ContextLength: 1024,
	}
}
