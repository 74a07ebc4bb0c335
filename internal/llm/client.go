package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"localchat/internal/config"
	"localchat/internal/logging"
)

// Client speaks the llama.cpp server HTTP API. It is separate from the
// process lifecycle so it can be pointed at any compatible endpoint in tests.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for a llama.cpp server at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		// Generation deadlines come from the caller's context; the transport
		// itself must tolerate long streams.
		http: &http.Client{Timeout: 0},
	}
}

// completionRequest is the llama.cpp /completion request body.
type completionRequest struct {
	Prompt        string   `json:"prompt"`
	NPredict      int      `json:"n_predict,omitempty"`
	Temperature   float64  `json:"temperature,omitempty"`
	TopP          float64  `json:"top_p,omitempty"`
	TopK          int      `json:"top_k,omitempty"`
	RepeatPenalty float64  `json:"repeat_penalty,omitempty"`
	Stop          []string `json:"stop,omitempty"`
	Stream        bool     `json:"stream"`
}

// completionChunk is one streamed /completion event payload.
type completionChunk struct {
	Content string `json:"content"`
	Stop    bool   `json:"stop"`
}

// Health probes the server's /health endpoint.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server health: status %d", resp.StatusCode)
	}
	return nil
}

// WaitReady polls /health until the server answers or ctx expires.
func (c *Client) WaitReady(ctx context.Context) error {
	for {
		probe, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := c.Health(probe)
		cancel()
		if err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("server not ready: %w", ctx.Err())
		case <-time.After(250 * time.Millisecond):
		}
	}
}

// Complete streams a completion. Tokens are delivered on the returned
// channel in arrival order; the channel closes after the Done or Err token.
func (c *Client) Complete(ctx context.Context, prompt string, opts config.GenerationOptions) (<-chan StreamToken, error) {
	log := logging.Get(logging.CategoryLLM)

	body, err := json.Marshal(completionRequest{
		Prompt:        prompt,
		NPredict:      opts.MaxTokens,
		Temperature:   opts.Temperature,
		TopP:          opts.TopP,
		TopK:          opts.TopK,
		RepeatPenalty: opts.RepeatPenalty,
		Stop:          opts.StopSequences,
		Stream:        true,
	})
	if err != nil {
		return nil, fmt.Errorf("generation: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/completion", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("generation: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("generation: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("generation: server returned status %d", resp.StatusCode)
	}

	log.Debugf("generation started, prompt length %d", len(prompt))
	ch := make(chan StreamToken, 16)

	go func() {
		defer close(ch)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		for scanner.Scan() {
			select {
			case <-ctx.Done():
				// Cancellation is a normal halt, not a generation failure.
				ch <- StreamToken{Done: true}
				return
			default:
			}

			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 {
				continue
			}
			line = bytes.TrimPrefix(line, []byte("data: "))

			var chunk completionChunk
			if err := json.Unmarshal(line, &chunk); err != nil {
				continue
			}

			content := chunk.Content
			done := chunk.Stop
			// The server withholds stop sequences, but guard against one
			// landing inside a chunk: emit only the text before it.
			if idx, seq := firstStop(content, opts.StopSequences); seq != "" {
				content = content[:idx]
				done = true
			}

			if content != "" || done {
				ch <- StreamToken{Content: content, Done: done}
			}
			if done {
				log.Debug("generation finished")
				return
			}
		}

		if err := scanner.Err(); err != nil {
			if ctx.Err() != nil {
				ch <- StreamToken{Done: true}
				return
			}
			log.Errorf("generation stream failed: %v", err)
			ch <- StreamToken{Err: fmt.Errorf("generation: %w", err)}
			return
		}
		// Stream ended without a stop marker: the server went away mid-turn.
		ch <- StreamToken{Err: fmt.Errorf("generation: stream ended unexpectedly")}
	}()

	return ch, nil
}

// firstStop returns the index of the earliest stop sequence occurring in s
// and the sequence itself, or (-1, "") when none match.
func firstStop(s string, stops []string) (int, string) {
	best, seq := -1, ""
	for _, stop := range stops {
		if stop == "" {
			continue
		}
		if i := strings.Index(s, stop); i >= 0 && (best < 0 || i < best) {
			best, seq = i, stop
		}
	}
	return best, seq
}
