package chat

import (
	"path/filepath"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"localchat/internal/bootstrap"
	"localchat/internal/config"
	"localchat/internal/store"
	"localchat/internal/turn"
)

func newTestModel(t *testing.T) Model {
	t.Helper()
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	return New(cfg)
}

// newChatReadyModel returns a model in the chat phase with a real store
// behind it, seeded with the given messages.
func newChatReadyModel(t *testing.T, msgs ...store.Message) Model {
	t.Helper()
	m := newTestModel(t)

	s, err := store.Open(filepath.Join(t.TempDir(), "chat.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	conv, err := s.CreateConversation("")
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}
	for _, msg := range msgs {
		msg.ConversationID = conv
		if _, err := s.SaveMessage(msg); err != nil {
			t.Fatalf("seed message: %v", err)
		}
	}

	tc := turn.New(s, nil, conv, m.backend.cfg)
	if err := tc.LoadHistory(); err != nil {
		t.Fatalf("load history: %v", err)
	}
	m.backend.store = s
	m.backend.turn = tc
	m.phase = phaseChat
	m.ready = true
	m.width = 80
	m.height = 24
	return m
}

func TestBootPhaseLabel(t *testing.T) {
	cases := map[bootstrap.Phase]string{
		bootstrap.PhaseIdle:        "Starting...",
		bootstrap.PhaseDownloading: "Preparing model...",
		bootstrap.PhaseLoading:     "Loading model...",
		bootstrap.PhaseReady:       "Ready",
		bootstrap.PhaseError:       "Failed",
	}
	for phase, want := range cases {
		if got := bootPhaseLabel(phase); got != want {
			t.Errorf("bootPhaseLabel(%s) = %q, want %q", phase, got, want)
		}
	}
}

func TestDetectTheme(t *testing.T) {
	t.Setenv("LOCALCHAT_LIGHT_MODE", "")

	t.Setenv("COLORFGBG", "15;0")
	if th := DetectTheme(); !th.IsDark {
		t.Error("Background 0 should detect dark")
	}

	t.Setenv("COLORFGBG", "0;15")
	if th := DetectTheme(); th.IsDark {
		t.Error("Background 15 should detect light")
	}
}

func TestUpdate_BootProgress(t *testing.T) {
	m := newTestModel(t)

	st := bootstrap.ReadinessState{Phase: bootstrap.PhaseDownloading, Progress: 55}
	next, _ := m.Update(bootProgressMsg(st))
	got := next.(Model)

	if got.phase != phaseBooting {
		t.Error("Progress updates must not leave the boot phase")
	}
	if got.bootState.Progress != 55 {
		t.Errorf("Expected progress 55, got %d", got.bootState.Progress)
	}

	view := got.View()
	if !strings.Contains(view, "Preparing model") {
		t.Errorf("Boot view missing phase label:\n%s", view)
	}
	if !strings.Contains(view, "55%") {
		t.Errorf("Boot view missing percentage:\n%s", view)
	}
}

func TestUpdate_BootFailed(t *testing.T) {
	m := newTestModel(t)

	next, _ := m.Update(bootFailedMsg{state: bootstrap.ReadinessState{
		Phase: bootstrap.PhaseError,
		Err:   "model artifact missing",
	}})
	got := next.(Model)

	if got.phase != phaseFailed {
		t.Fatal("Boot failure should enter the failed phase")
	}
	view := got.View()
	if !strings.Contains(view, "Startup failed") || !strings.Contains(view, "model artifact missing") {
		t.Errorf("Failure view missing error details:\n%s", view)
	}
}

func TestUpdate_StreamOverwritesBuffer(t *testing.T) {
	m := newChatReadyModel(t)

	next, _ := m.Update(streamMsg("Hello"))
	next, _ = next.(Model).Update(streamMsg("Hello world"))
	got := next.(Model)

	// The buffer holds the full accumulated text, not a delta.
	if got.streamText != "Hello world" {
		t.Errorf("Expected accumulated text, got %q", got.streamText)
	}
	if !strings.Contains(got.renderHistory(), "Hello world") {
		t.Error("Streaming text missing from rendered history")
	}
}

func TestUpdate_TurnDoneClearsStream(t *testing.T) {
	m := newChatReadyModel(t)
	m.generating = true
	m.streamText = "partial"

	next, _ := m.Update(turnDoneMsg{})
	got := next.(Model)

	if got.generating {
		t.Error("Turn settlement should clear the generating flag")
	}
	if got.streamText != "" {
		t.Errorf("Turn settlement should clear the stream buffer, got %q", got.streamText)
	}
}

func TestUpdate_TurnErrShowsError(t *testing.T) {
	m := newChatReadyModel(t)
	m.generating = true

	next, _ := m.Update(turnErrMsg{err: errFake})
	got := next.(Model)

	if got.generating {
		t.Error("Failure should clear the generating flag")
	}
	if !strings.Contains(got.View(), "engine fell over") {
		t.Error("Error should surface in the view")
	}
}

func TestHandleSubmit_EmptyInputIsNoop(t *testing.T) {
	m := newChatReadyModel(t)
	m.textinput.SetValue("   ")

	_, cmd := m.handleSubmit()
	if cmd != nil {
		t.Error("Whitespace-only input should not start a turn")
	}
}

func TestHandleCommand_Unknown(t *testing.T) {
	m := newChatReadyModel(t)

	next, cmd := m.handleCommand("/bogus")
	if cmd != nil {
		t.Error("Unknown command should not produce a command")
	}
	if !strings.Contains(next.(Model).viewport.View(), "Unknown command") {
		t.Error("Unknown command should be reported in the viewport")
	}
}

func TestHandleCommand_Reset(t *testing.T) {
	m := newChatReadyModel(t,
		store.Message{Role: store.RoleUser, Content: "wipe me"},
	)
	oldConv := m.backend.turn.ConversationID()

	_, cmd := m.handleCommand("/reset")
	if cmd == nil {
		t.Fatal("Reset should produce a command")
	}
	if _, ok := cmd().(historyClearedMsg); !ok {
		t.Fatal("Reset should settle with historyClearedMsg")
	}

	convs, err := m.backend.store.ListConversations()
	if err != nil {
		t.Fatalf("ListConversations failed: %v", err)
	}
	if len(convs) != 1 {
		t.Fatalf("Expected exactly the fresh conversation, got %d", len(convs))
	}
	if convs[0].ID == oldConv {
		t.Error("Reset should discard the old conversation")
	}
	if len(m.backend.turn.History()) != 0 {
		t.Error("Reset should clear in-memory history")
	}
}

func TestRenderHistory(t *testing.T) {
	m := newChatReadyModel(t,
		store.Message{Role: store.RoleUser, Content: "what is a monad"},
		store.Message{Role: store.RoleAssistant, Content: "A structure for chaining."},
	)

	out := m.renderHistory()
	if !strings.Contains(out, "You") || !strings.Contains(out, "what is a monad") {
		t.Errorf("History missing user entry:\n%s", out)
	}
	if !strings.Contains(out, "Assistant") || !strings.Contains(out, "chaining") {
		t.Errorf("History missing assistant entry:\n%s", out)
	}
}

func TestRenderHistory_NoMarkerOnConfirmedEntries(t *testing.T) {
	m := newChatReadyModel(t, store.Message{Role: store.RoleUser, Content: "kept message"})

	out := m.renderHistory()
	if strings.Contains(out, "(not saved)") {
		t.Error("Confirmed entries must not carry the unsaved marker")
	}
}

func TestQuitKeysShutDown(t *testing.T) {
	m := newChatReadyModel(t)

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	if cmd == nil {
		t.Fatal("Ctrl+C should produce a quit command")
	}
	if msg := cmd(); msg != tea.Quit() {
		t.Errorf("Expected tea.Quit, got %#v", msg)
	}
}

var errFake = &fakeError{}

type fakeError struct{}

func (*fakeError) Error() string { return "engine fell over" }
