// Package llm wraps the external llama.cpp inference engine behind a small
// initialize / generate / stop surface. The engine runs as a llama-server
// subprocess; this package never tokenizes, samples, or touches model
// weights itself.
package llm

import (
	"context"
	"errors"

	"localchat/internal/config"
)

// ErrNotInitialized is returned by Generate before a successful Initialize.
var ErrNotInitialized = errors.New("llm engine not initialized")

// StreamToken is one chunk of generated text. Tokens arrive in production
// order. A token with Err set terminates the stream; partial output before
// the failure is the caller's to discard.
type StreamToken struct {
	Content string
	Done    bool
	Err     error
}

// Engine is the inference gateway consumed by the bootstrap and turn
// controllers. Implementations must make Initialize idempotent and must
// deliver tokens strictly in order.
type Engine interface {
	// Initialize loads the model at the given local path. Calling it again
	// while already initialized is a no-op.
	Initialize(ctx context.Context, modelPath string) error

	// Generate streams tokens for the prompt. Generation halts on MaxTokens,
	// on any configured stop sequence (excluded from output), or when ctx is
	// cancelled. Requires a prior successful Initialize.
	Generate(ctx context.Context, prompt string, opts config.GenerationOptions) (<-chan StreamToken, error)

	// Stop requests cancellation of any in-flight generation; it halts at
	// the next token boundary. Already-streamed tokens are not retracted.
	Stop()

	// IsReady reports whether Initialize has completed successfully.
	IsReady() bool
}
