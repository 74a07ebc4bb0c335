package chat

import (
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"

	"localchat/internal/bootstrap"
	"localchat/internal/config"
)

// appPhase is the top-level UI state.
type appPhase int

const (
	phaseBooting appPhase = iota
	phaseChat
	phaseFailed
)

// Messages for tea updates.
type (
	bootProgressMsg   bootstrap.ReadinessState
	bootDoneMsg       struct{}
	bootFailedMsg     struct{ state bootstrap.ReadinessState }
	streamMsg         string
	turnDoneMsg       struct{}
	turnErrMsg        struct{ err error }
	historyClearedMsg struct{}
)

// Model is the bubbletea model for the chat interface.
type Model struct {
	// UI components
	textinput textinput.Model
	viewport  viewport.Model
	spinner   spinner.Model
	progress  progress.Model
	styles    Styles
	renderer  *glamour.TermRenderer

	// State
	phase      appPhase
	bootState  bootstrap.ReadinessState
	generating bool
	streamText string
	err        error
	width      int
	height     int
	ready      bool

	backend *backend
}

// New builds the chat model. Nothing heavy happens here; the boot sequence
// starts from Init.
func New(cfg config.Config) Model {
	styles := DefaultStyles()

	ti := textinput.New()
	ti.Placeholder = "Type a message... (Enter to send, Ctrl+C to exit)"
	ti.Focus()
	ti.Prompt = "│ "
	ti.CharLimit = 4096
	ti.Width = 80
	ti.PromptStyle = styles.Prompt
	ti.TextStyle = styles.UserText

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = styles.Spinner

	vp := viewport.New(80, 20)
	vp.SetContent("")

	pb := progress.New(progress.WithDefaultGradient())

	var renderer *glamour.TermRenderer
	if styles.Theme.IsDark {
		renderer, _ = glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(80),
		)
	} else {
		renderer, _ = glamour.NewTermRenderer(
			glamour.WithStylePath("light"),
			glamour.WithWordWrap(80),
		)
	}

	return Model{
		textinput: ti,
		viewport:  vp,
		spinner:   sp,
		progress:  pb,
		styles:    styles,
		renderer:  renderer,
		phase:     phaseBooting,
		bootState: bootstrap.ReadinessState{Phase: bootstrap.PhaseIdle},
		backend:   newBackend(cfg),
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		m.spinner.Tick,
		m.backend.runBoot(),
		m.backend.waitForEvent(),
	)
}
