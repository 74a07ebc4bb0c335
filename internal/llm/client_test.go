package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"localchat/internal/config"
)

func streamHandler(t *testing.T, chunks []completionChunk) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/completion" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		var req completionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		if !req.Stream {
			t.Error("expected stream:true")
		}
		flusher := w.(http.Flusher)
		for _, c := range chunks {
			data, _ := json.Marshal(c)
			w.Write([]byte("data: "))
			w.Write(data)
			w.Write([]byte("\n\n"))
			flusher.Flush()
		}
	}
}

func collect(t *testing.T, ch <-chan StreamToken) (string, error) {
	t.Helper()
	var sb strings.Builder
	for tok := range ch {
		if tok.Err != nil {
			return sb.String(), tok.Err
		}
		sb.WriteString(tok.Content)
	}
	return sb.String(), nil
}

func TestClient_CompleteStreamsInOrder(t *testing.T) {
	server := httptest.NewServer(streamHandler(t, []completionChunk{
		{Content: "Hi"},
		{Content: " there"},
		{Content: "", Stop: true},
	}))
	defer server.Close()

	client := NewClient(server.URL)
	ch, err := client.Complete(context.Background(), "hello", config.DefaultGeneration())
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	got, err := collect(t, ch)
	if err != nil {
		t.Fatalf("stream error: %v", err)
	}
	if got != "Hi there" {
		t.Errorf("Expected %q, got %q", "Hi there", got)
	}
}

func TestClient_StopSequenceStripped(t *testing.T) {
	server := httptest.NewServer(streamHandler(t, []completionChunk{
		{Content: "Answer"},
		{Content: " done<|im_end|>trailing"},
	}))
	defer server.Close()

	client := NewClient(server.URL)
	ch, err := client.Complete(context.Background(), "q", config.DefaultGeneration())
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	got, err := collect(t, ch)
	if err != nil {
		t.Fatalf("stream error: %v", err)
	}
	if got != "Answer done" {
		t.Errorf("Stop sequence must end and be excluded from output, got %q", got)
	}
}

func TestClient_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(server.URL)
	if _, err := client.Complete(context.Background(), "q", config.DefaultGeneration()); err == nil {
		t.Error("Expected error on HTTP 500")
	}
}

func TestClient_TruncatedStreamIsError(t *testing.T) {
	// Stream that ends without a stop marker: connection dropped mid-turn.
	server := httptest.NewServer(streamHandler(t, []completionChunk{
		{Content: "partial"},
	}))
	defer server.Close()

	client := NewClient(server.URL)
	ch, err := client.Complete(context.Background(), "q", config.DefaultGeneration())
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	_, err = collect(t, ch)
	if err == nil {
		t.Error("Expected an error token for a truncated stream")
	}
}

func TestClient_CancelHaltsStream(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		w.Write([]byte(`data: {"content":"tok","stop":false}` + "\n\n"))
		flusher.Flush()
		<-release // hold the stream open until the test finishes
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	client := NewClient(server.URL)
	ch, err := client.Complete(ctx, "q", config.DefaultGeneration())
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	// Read the first token, then cancel.
	select {
	case tok := <-ch:
		if tok.Content != "tok" {
			t.Errorf("Expected first token, got %+v", tok)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for first token")
	}
	cancel()

	// The stream must close without an error token: cancellation is a
	// normal halt.
	deadline := time.After(5 * time.Second)
	for {
		select {
		case tok, ok := <-ch:
			if !ok {
				return
			}
			if tok.Err != nil && !errors.Is(tok.Err, context.Canceled) {
				t.Errorf("Cancellation must not surface as a generation failure: %v", tok.Err)
			}
		case <-deadline:
			t.Fatal("Stream did not close after cancel")
		}
	}
}

func TestClient_Health(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewClient(server.URL)
	if err := client.Health(context.Background()); err != nil {
		t.Errorf("Health failed: %v", err)
	}
}

func TestServerEngine_GenerateBeforeInit(t *testing.T) {
	engine := NewServerEngine("llama-server", config.DefaultModel())
	if _, err := engine.Generate(context.Background(), "hi", config.DefaultGeneration()); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("Expected ErrNotInitialized, got %v", err)
	}
	if engine.IsReady() {
		t.Error("Engine must not report ready before Initialize")
	}
}

func TestServerEngine_InitializeMissingBinary(t *testing.T) {
	engine := NewServerEngine("definitely-not-a-real-binary-xyz", config.DefaultModel())
	err := engine.Initialize(context.Background(), "/tmp/model.gguf")
	if err == nil {
		t.Fatal("Expected error for missing server binary")
	}
	if engine.IsReady() {
		t.Error("Engine must not be ready after failed Initialize")
	}
}
