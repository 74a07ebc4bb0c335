package llm

import (
	"context"
	"fmt"
	"net"
	"os/exec"
	"strconv"
	"sync"
	"syscall"
	"time"

	"localchat/internal/config"
	"localchat/internal/logging"
)

// DefaultServerBinary is the llama.cpp server executable looked up on PATH.
const DefaultServerBinary = "llama-server"

// ServerEngine implements Engine by managing a llama-server subprocess and
// streaming completions from it over HTTP.
type ServerEngine struct {
	mu        sync.Mutex
	binary    string
	ctxLength int

	cmd       *exec.Cmd
	client    *Client
	ready     bool
	modelPath string

	genCancel context.CancelFunc // cancels the in-flight generation, if any
}

// NewServerEngine creates an engine that will launch the given server
// binary ("" means DefaultServerBinary on PATH) with the model's context
// length.
func NewServerEngine(binary string, model config.ModelConfig) *ServerEngine {
	if binary == "" {
		binary = DefaultServerBinary
	}
	return &ServerEngine{binary: binary, ctxLength: model.ContextLength}
}

// Initialize spawns llama-server with the model at modelPath and waits for
// its health endpoint. Idempotent: a second call while initialized returns
// nil immediately.
func (e *ServerEngine) Initialize(ctx context.Context, modelPath string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	log := logging.Get(logging.CategoryLLM)

	if e.ready {
		log.Debug("engine already initialized")
		return nil
	}

	bin, err := exec.LookPath(e.binary)
	if err != nil {
		return fmt.Errorf("initialize engine: %s not found: %w", e.binary, err)
	}

	port, err := freePort()
	if err != nil {
		return fmt.Errorf("initialize engine: %w", err)
	}

	args := []string{
		"-m", modelPath,
		"--port", strconv.Itoa(port),
		"--host", "127.0.0.1",
	}
	if e.ctxLength > 0 {
		args = append(args, "-c", strconv.Itoa(e.ctxLength))
	}

	cmd := exec.Command(bin, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("initialize engine: start %s: %w", e.binary, err)
	}
	log.Infof("started %s pid=%d port=%d model=%s", e.binary, cmd.Process.Pid, port, modelPath)

	client := NewClient(fmt.Sprintf("http://127.0.0.1:%d", port))

	waitCtx := ctx
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, 120*time.Second)
		defer cancel()
	}
	if err := client.WaitReady(waitCtx); err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return fmt.Errorf("initialize engine: model %s failed to load: %w", modelPath, err)
	}

	e.cmd = cmd
	e.client = client
	e.modelPath = modelPath
	e.ready = true
	log.Info("engine ready")
	return nil
}

// Generate streams a completion for the prompt. Fails with
// ErrNotInitialized before Initialize succeeds.
func (e *ServerEngine) Generate(ctx context.Context, prompt string, opts config.GenerationOptions) (<-chan StreamToken, error) {
	e.mu.Lock()
	if !e.ready {
		e.mu.Unlock()
		return nil, ErrNotInitialized
	}
	genCtx, cancel := context.WithCancel(ctx)
	e.genCancel = cancel
	client := e.client
	e.mu.Unlock()

	tokens, err := client.Complete(genCtx, prompt, opts)
	if err != nil {
		cancel()
		e.clearCancel(cancel)
		return nil, err
	}

	// Relay so the cancel handle is released when the stream drains.
	out := make(chan StreamToken, 16)
	go func() {
		defer close(out)
		defer e.clearCancel(cancel)
		defer cancel()
		for tok := range tokens {
			out <- tok
		}
	}()
	return out, nil
}

// Stop requests cancellation of the in-flight generation, if any.
func (e *ServerEngine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.genCancel != nil {
		logging.Get(logging.CategoryLLM).Info("stop requested")
		e.genCancel()
		e.genCancel = nil
	}
}

// IsReady reports whether the engine has a healthy server loaded.
func (e *ServerEngine) IsReady() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ready
}

// Shutdown terminates the llama-server subprocess.
func (e *ServerEngine) Shutdown() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.genCancel != nil {
		e.genCancel()
		e.genCancel = nil
	}
	if e.cmd != nil && e.cmd.Process != nil {
		logging.Get(logging.CategoryLLM).Infof("stopping %s pid=%d", e.binary, e.cmd.Process.Pid)
		_ = e.cmd.Process.Kill()
		_ = e.cmd.Wait()
	}
	e.cmd = nil
	e.ready = false
}

// clearCancel drops the stored cancel func if it is still the current one.
func (e *ServerEngine) clearCancel(cancel context.CancelFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.genCancel != nil {
		// Comparing funcs is not possible; the single-turn contract means
		// the finished generation is the current one.
		e.genCancel = nil
	}
	_ = cancel
}

// freePort asks the kernel for an unused TCP port.
func freePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}
