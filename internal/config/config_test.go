package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultGeneration(t *testing.T) {
	g := DefaultGeneration()
	assert.Equal(t, 256, g.MaxTokens)
	assert.Equal(t, []string{"<|im_end|>"}, g.StopSequences)
}

func TestGenerationMerge(t *testing.T) {
	base := DefaultGeneration()

	merged := base.Merge(GenerationOptions{MaxTokens: 64, Temperature: 0.2})
	assert.Equal(t, 64, merged.MaxTokens)
	assert.Equal(t, float64(0.2), merged.Temperature)
	// Unset keys keep the defaults.
	assert.Equal(t, base.TopP, merged.TopP)
	assert.Equal(t, base.TopK, merged.TopK)
}

func TestGenerationMerge_Empty(t *testing.T) {
	base := DefaultGeneration()
	merged := base.Merge(GenerationOptions{})
	assert.Equal(t, base, merged, "empty override should keep all defaults")
}

func TestGenerationMerge_StopSequences(t *testing.T) {
	base := DefaultGeneration()
	merged := base.Merge(GenerationOptions{StopSequences: []string{"END"}})
	assert.Equal(t, []string{"END"}, merged.StopSequences)
}

func TestLoad_MissingFile(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(dir)
	require.NoError(t, err, "missing config.yaml is not an error")
	assert.Equal(t, dir, cfg.DataDir)
	assert.Equal(t, "qwen2.5-0.5b-q4", cfg.Model.ID)
	assert.Equal(t, 120*time.Second, cfg.GenerateDeadline())
}

func TestLoad_Overrides(t *testing.T) {
	dir := t.TempDir()
	yaml := `
system_prompt: "Talk like a pirate."
generate_timeout: 30s
generation:
  max_tokens: 128
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "Talk like a pirate.", cfg.SystemPrompt)
	assert.Equal(t, 30*time.Second, cfg.GenerateDeadline())
	assert.Equal(t, 128, cfg.Generation.MaxTokens)
	// Keys absent from the file keep their defaults.
	assert.Equal(t, 1024, cfg.Model.ContextLength)
}

func TestLoad_Malformed(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("{not yaml"), 0644))
	_, err := Load(dir)
	assert.Error(t, err)
}
