// Package bootstrap sequences app startup: store, conversation selection,
// model provisioning, and engine initialization, reduced to one readiness
// state the UI can render.
package bootstrap

import (
	"context"
	"fmt"
	"sync"

	"localchat/internal/llm"
	"localchat/internal/logging"
	"localchat/internal/store"
)

// Phase is the bootstrap state machine position.
type Phase string

const (
	PhaseIdle        Phase = "idle"
	PhaseDownloading Phase = "downloading"
	PhaseLoading     Phase = "loading"
	PhaseReady       Phase = "ready"
	PhaseError       Phase = "error"
)

// ReadinessState is the single readiness value owned by this controller and
// read-only to everyone else. Progress is 0-100 and never decreases within
// one run.
type ReadinessState struct {
	Phase    Phase
	Progress int
	Err      string
}

// Result carries what the rest of the app needs once bootstrap succeeds.
type Result struct {
	ConversationID int64
	ModelPath      string
}

// ConversationStore is the slice of the persistence store bootstrap needs.
type ConversationStore interface {
	ListConversations() ([]store.Conversation, error)
	CreateConversation(title string) (int64, error)
}

// Provisioner resolves the model artifact to a local path.
type Provisioner interface {
	Prepare(ctx context.Context) (string, error)
}

// Controller runs the bootstrap sequence once per process. Any step failure
// is terminal for the run; the host restarts the process to retry.
type Controller struct {
	store  ConversationStore
	prov   Provisioner
	engine llm.Engine

	onProgress func(ReadinessState)

	mu    sync.Mutex
	state ReadinessState
}

// New wires a controller. onProgress may be nil; when set it receives every
// state snapshot, including the terminal one.
func New(cs ConversationStore, prov Provisioner, engine llm.Engine, onProgress func(ReadinessState)) *Controller {
	return &Controller{
		store:      cs,
		prov:       prov,
		engine:     engine,
		onProgress: onProgress,
		state:      ReadinessState{Phase: PhaseIdle},
	}
}

// State returns the current readiness snapshot.
func (c *Controller) State() ReadinessState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ReportModelProgress maps provisioner download progress (0..1) into the
// 40-70 band of the overall progress bar. Wire it as the provisioner's
// progress callback.
func (c *Controller) ReportModelProgress(fraction float64) {
	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}
	c.set(PhaseDownloading, 40+int(fraction*30), "")
}

// set advances the state. Progress is clamped monotonic; phase transitions
// always apply.
func (c *Controller) set(phase Phase, progress int, errMsg string) {
	c.mu.Lock()
	if progress < c.state.Progress {
		progress = c.state.Progress
	}
	c.state = ReadinessState{Phase: phase, Progress: progress, Err: errMsg}
	snapshot := c.state
	cb := c.onProgress
	c.mu.Unlock()

	if cb != nil {
		cb(snapshot)
	}
}

func (c *Controller) fail(step string, err error) error {
	wrapped := fmt.Errorf("%s: %w", step, err)
	logging.Get(logging.CategoryBoot).Errorf("bootstrap failed: %v", wrapped)
	c.set(PhaseError, c.State().Progress, wrapped.Error())
	return wrapped
}

// Run executes the bootstrap sequence. Each step gates the next.
func (c *Controller) Run(ctx context.Context) (*Result, error) {
	log := logging.Get(logging.CategoryBoot)
	log.Info("bootstrap starting")

	// Step 1: the store is already open by construction; verify it answers.
	c.set(PhaseLoading, 10, "")
	conversations, err := c.store.ListConversations()
	if err != nil {
		return nil, c.fail("initialize store", err)
	}

	// Step 2: resume the most recently updated conversation, or create the
	// first one. ListConversations orders by updated_at DESC.
	var conversationID int64
	if len(conversations) == 0 {
		id, err := c.store.CreateConversation("")
		if err != nil {
			return nil, c.fail("create conversation", err)
		}
		conversationID = id
		log.Infof("created first conversation id=%d", id)
	} else {
		conversationID = conversations[0].ID
		log.Infof("resuming conversation id=%d", conversationID)
	}
	c.set(PhaseLoading, 20, "")

	// Step 3: materialize the model artifact.
	c.set(PhaseDownloading, 40, "")
	modelPath, err := c.prov.Prepare(ctx)
	if err != nil {
		return nil, c.fail("prepare model", err)
	}
	c.set(PhaseLoading, 70, "")
	log.Infof("model artifact at %s", modelPath)

	// Step 4: load the model into the engine.
	if err := c.engine.Initialize(ctx, modelPath); err != nil {
		return nil, c.fail("initialize engine", err)
	}

	c.set(PhaseReady, 100, "")
	log.Info("bootstrap complete")
	return &Result{ConversationID: conversationID, ModelPath: modelPath}, nil
}
