package provision

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"localchat/internal/config"
)

func writeFakeModel(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("GGUF fake weights"), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestPrepare_LocalFileCopiedIntoDataDir(t *testing.T) {
	srcDir := t.TempDir()
	destDir := t.TempDir()
	src := writeFakeModel(t, srcDir, "model.gguf")

	p := New(config.ModelConfig{ID: "test", Source: src}, destDir, nil)
	path, err := p.Prepare(context.Background())
	if err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}
	if filepath.Dir(path) != destDir {
		t.Errorf("Expected artifact inside %s, got %s", destDir, path)
	}
	if p.Phase() != PhaseReady {
		t.Errorf("Expected PhaseReady, got %s", p.Phase())
	}
}

func TestPrepare_Idempotent(t *testing.T) {
	srcDir := t.TempDir()
	destDir := t.TempDir()
	src := writeFakeModel(t, srcDir, "model.gguf")

	p := New(config.ModelConfig{ID: "test", Source: src}, destDir, nil)
	first, err := p.Prepare(context.Background())
	if err != nil {
		t.Fatalf("First Prepare failed: %v", err)
	}

	// Remove the source: a second call must not re-resolve.
	os.Remove(src)

	second, err := p.Prepare(context.Background())
	if err != nil {
		t.Fatalf("Second Prepare failed: %v", err)
	}
	if first != second {
		t.Errorf("Expected cached path %s, got %s", first, second)
	}
}

func TestPrepare_MissingArtifact(t *testing.T) {
	p := New(config.ModelConfig{ID: "test", Source: "/nonexistent/model.gguf"}, t.TempDir(), nil)
	if _, err := p.Prepare(context.Background()); err == nil {
		t.Fatal("Expected error for missing artifact")
	}
	if p.Phase() != PhaseError {
		t.Errorf("Expected PhaseError, got %s", p.Phase())
	}
}

func TestPrepare_Download(t *testing.T) {
	payload := []byte("downloaded gguf payload")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	}))
	defer server.Close()

	destDir := t.TempDir()
	var sawProgress bool
	p := New(config.ModelConfig{ID: "dl-test", Source: server.URL}, destDir, func(f float64) {
		if f > 0 {
			sawProgress = true
		}
	})

	path, err := p.Prepare(context.Background())
	if err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Downloaded file unreadable: %v", err)
	}
	if string(data) != string(payload) {
		t.Error("Downloaded content mismatch")
	}
	if !sawProgress {
		t.Error("Expected at least one progress callback")
	}
	if p.Phase() != PhaseReady {
		t.Errorf("Expected PhaseReady, got %s", p.Phase())
	}
}

func TestPrepare_DownloadFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	p := New(config.ModelConfig{ID: "dl-fail", Source: server.URL}, t.TempDir(), nil)
	if _, err := p.Prepare(context.Background()); err == nil {
		t.Fatal("Expected error for 404 download")
	}
	if p.Phase() != PhaseError {
		t.Errorf("Expected PhaseError, got %s", p.Phase())
	}
}

func TestPhase_InitiallyIdle(t *testing.T) {
	p := New(config.DefaultModel(), t.TempDir(), nil)
	if p.Phase() != PhaseIdle {
		t.Errorf("Expected PhaseIdle before Prepare, got %s", p.Phase())
	}
}
