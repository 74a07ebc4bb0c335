// Package turn runs one chat turn end to end: validate, persist the user
// message, build the prompt, stream generation, persist the result. At most
// one turn is in flight per conversation.
package turn

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"localchat/internal/config"
	"localchat/internal/llm"
	"localchat/internal/logging"
	"localchat/internal/prompt"
	"localchat/internal/store"
)

var (
	// ErrBusy means another turn is in flight. Callers ignore it silently;
	// sends are dropped, not queued.
	ErrBusy = errors.New("a turn is already in flight")

	// ErrEmptyInput means the input was empty or whitespace-only. Handled
	// locally by callers; never shown as a failure.
	ErrEmptyInput = errors.New("empty input")
)

// ChatMessage is an in-memory history entry. Persisted entries carry the
// store-assigned ID; optimistic ones carry only TempID until the store
// confirms them. Unconfirmed marks an optimistic entry whose persistence
// failed, so the view can distinguish it from durable history.
type ChatMessage struct {
	store.Message
	TempID      string
	Unconfirmed bool
}

// MessageStore is the slice of the persistence store one turn needs.
type MessageStore interface {
	SaveMessage(msg store.Message) (int64, error)
	GetMessages(conversationID int64) ([]store.Message, error)
	CreateConversation(title string) (int64, error)
	DeleteConversation(conversationID int64) error
}

// Controller owns the in-memory history and streaming buffer for the active
// conversation and serializes sends through its busy flag.
type Controller struct {
	store   MessageStore
	engine  llm.Engine
	system  string
	ctxLen  int
	options config.GenerationOptions
	timeout time.Duration

	// OnStream receives the full accumulated assistant text after every
	// token; the view overwrites its transient bubble with it. May be nil.
	OnStream func(accumulated string)

	mu             sync.Mutex
	conversationID int64
	history        []ChatMessage
	streaming      string
	busy           bool
}

// New creates a controller for the given conversation.
func New(ms MessageStore, engine llm.Engine, conversationID int64, cfg config.Config) *Controller {
	return &Controller{
		store:          ms,
		engine:         engine,
		system:         cfg.SystemPrompt,
		ctxLen:         cfg.Model.ContextLength,
		options:        cfg.Generation,
		timeout:        cfg.GenerateDeadline(),
		conversationID: conversationID,
	}
}

// LoadHistory replaces the in-memory history with the persisted one.
func (c *Controller) LoadHistory() error {
	msgs, err := c.store.GetMessages(c.conversationID)
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = c.history[:0]
	for _, m := range msgs {
		c.history = append(c.history, ChatMessage{Message: m})
	}
	logging.Get(logging.CategoryTurn).Infof("loaded %d messages for conversation %d", len(msgs), c.conversationID)
	return nil
}

// ConversationID returns the active conversation.
func (c *Controller) ConversationID() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conversationID
}

// History returns a copy of the displayed history.
func (c *Controller) History() []ChatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]ChatMessage, len(c.history))
	copy(out, c.history)
	return out
}

// Streaming returns the transient assistant buffer (full accumulated text).
func (c *Controller) Streaming() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.streaming
}

// Busy reports whether a turn is in flight.
func (c *Controller) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.busy
}

// Cancel requests a halt of the in-flight generation at the next token
// boundary. Tokens already streamed stay; the turn settles with them.
func (c *Controller) Cancel() {
	c.engine.Stop()
}

// Send runs one chat turn. Empty input and concurrent sends are rejected
// before any side effect. Generation failures leave history at its last
// persisted state.
func (c *Controller) Send(ctx context.Context, content string) error {
	log := logging.Get(logging.CategoryTurn)

	content = strings.TrimSpace(content)
	if content == "" {
		return ErrEmptyInput
	}

	c.mu.Lock()
	if c.busy {
		c.mu.Unlock()
		log.Debug("send ignored: turn in flight")
		return ErrBusy
	}
	c.busy = true
	c.streaming = ""

	// Optimistic append with a local temp identity.
	userMsg := ChatMessage{
		Message: store.Message{
			ConversationID: c.conversationID,
			Role:           store.RoleUser,
			Content:        content,
			CreatedAt:      time.Now(),
		},
		TempID: uuid.NewString(),
	}
	c.history = append(c.history, userMsg)
	userIdx := len(c.history) - 1
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.busy = false
		c.streaming = ""
		c.mu.Unlock()
	}()

	// Persist the user message. On failure the optimistic entry stays
	// visible but flagged unconfirmed.
	id, err := c.store.SaveMessage(userMsg.Message)
	if err != nil {
		c.mu.Lock()
		c.history[userIdx].Unconfirmed = true
		c.mu.Unlock()
		return fmt.Errorf("persist user message: %w", err)
	}
	c.mu.Lock()
	c.history[userIdx].ID = id
	snapshot := make([]store.Message, 0, len(c.history))
	for _, m := range c.history {
		snapshot = append(snapshot, m.Message)
	}
	c.mu.Unlock()

	// Full in-memory history, truncated oldest-first to the context window.
	kept := prompt.Truncate(snapshot, c.system, c.ctxLen, c.options.MaxTokens)
	text := prompt.Build(kept, c.system)
	log.Debugf("prompt built: %d messages kept, %d bytes", len(kept), len(text))

	reply, err := c.generate(ctx, text)
	if err != nil {
		// Partial output is discarded; streaming buffer cleared by defer.
		return err
	}
	if reply == "" {
		log.Warn("generation produced no output")
		return nil
	}

	assistantMsg := ChatMessage{
		Message: store.Message{
			ConversationID: c.conversationID,
			Role:           store.RoleAssistant,
			Content:        reply,
			CreatedAt:      time.Now(),
		},
	}
	c.mu.Lock()
	c.history = append(c.history, assistantMsg)
	assistantIdx := len(c.history) - 1
	c.mu.Unlock()

	aid, err := c.store.SaveMessage(assistantMsg.Message)
	if err != nil {
		c.mu.Lock()
		c.history[assistantIdx].Unconfirmed = true
		c.mu.Unlock()
		return fmt.Errorf("persist assistant message: %w", err)
	}
	c.mu.Lock()
	c.history[assistantIdx].ID = aid
	c.mu.Unlock()

	log.Infof("turn complete: %d reply bytes", len(reply))
	return nil
}

// generate streams tokens from the engine into the transient buffer and
// returns the final concatenated text. A hung engine is bounded by the
// configured deadline.
func (c *Controller) generate(ctx context.Context, text string) (string, error) {
	genCtx := ctx
	var cancel context.CancelFunc
	if c.timeout > 0 {
		genCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	tokens, err := c.engine.Generate(genCtx, text, c.options)
	if err != nil {
		return "", fmt.Errorf("generation: %w", err)
	}

	var sb strings.Builder
	for tok := range tokens {
		if tok.Err != nil {
			return "", tok.Err
		}
		if tok.Content != "" {
			sb.WriteString(tok.Content)
			full := sb.String()
			c.mu.Lock()
			c.streaming = full
			c.mu.Unlock()
			if c.OnStream != nil {
				c.OnStream(full)
			}
		}
	}

	if genCtx.Err() == context.DeadlineExceeded {
		return "", fmt.Errorf("generation: timed out after %s", c.timeout)
	}
	return sb.String(), nil
}

// ClearConversation deletes the active conversation (cascading its
// messages) and starts a fresh one. No-op while a turn is in flight.
func (c *Controller) ClearConversation() error {
	c.mu.Lock()
	if c.busy {
		c.mu.Unlock()
		return ErrBusy
	}
	oldID := c.conversationID
	c.mu.Unlock()

	if err := c.store.DeleteConversation(oldID); err != nil {
		return fmt.Errorf("clear conversation: %w", err)
	}
	newID, err := c.store.CreateConversation("")
	if err != nil {
		return fmt.Errorf("clear conversation: %w", err)
	}

	c.mu.Lock()
	c.conversationID = newID
	c.history = nil
	c.streaming = ""
	c.mu.Unlock()

	logging.Get(logging.CategoryTurn).Infof("conversation cleared: %d -> %d", oldID, newID)
	return nil
}
