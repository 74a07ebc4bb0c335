package chat

import (
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"

	"localchat/internal/bootstrap"
	"localchat/internal/logging"
)

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		tiCmd tea.Cmd
		vpCmd tea.Cmd
		spCmd tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.backend.shutdown()
			return m, tea.Quit

		case tea.KeyCtrlX:
			// Halt generation at the next token; what streamed stays.
			if m.generating {
				m.backend.turn.Cancel()
			}
			return m, nil

		case tea.KeyEnter:
			if m.phase == phaseChat && !m.generating {
				return m.handleSubmit()
			}
		}

		if m.phase == phaseChat && !m.generating {
			m.textinput, tiCmd = m.textinput.Update(msg)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		headerHeight := 3
		footerHeight := 2
		inputHeight := 3

		if !m.ready {
			m.viewport = viewport.New(msg.Width-4, msg.Height-headerHeight-footerHeight-inputHeight)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width - 4
			m.viewport.Height = msg.Height - headerHeight - footerHeight - inputHeight
		}

		m.textinput.Width = msg.Width - 6
		m.progress.Width = min(msg.Width-8, 60)

		if m.renderer != nil {
			m.renderer, _ = glamour.NewTermRenderer(
				glamour.WithAutoStyle(),
				glamour.WithWordWrap(msg.Width-8),
			)
		}
		m.refreshViewport()

	case spinner.TickMsg:
		if m.phase == phaseBooting || m.generating {
			m.spinner, spCmd = m.spinner.Update(msg)
			if m.generating {
				// Keeps the optimistic user entry visible before the
				// first token lands.
				m.refreshViewport()
			}
			return m, spCmd
		}

	case bootProgressMsg:
		m.bootState = bootstrap.ReadinessState(msg)
		return m, tea.Batch(m.backend.waitForEvent(), m.spinner.Tick)

	case bootDoneMsg:
		m.phase = phaseChat
		m.bootState = bootstrap.ReadinessState{Phase: bootstrap.PhaseReady, Progress: 100}
		m.refreshViewport()
		m.viewport.GotoBottom()
		return m, tea.Batch(m.backend.waitForEvent(), textinput.Blink)

	case bootFailedMsg:
		m.phase = phaseFailed
		m.bootState = msg.state
		return m, nil

	case streamMsg:
		m.streamText = string(msg)
		m.refreshViewport()
		m.viewport.GotoBottom()
		return m, m.backend.waitForEvent()

	case turnDoneMsg:
		m.generating = false
		m.streamText = ""
		m.refreshViewport()
		m.viewport.GotoBottom()

	case turnErrMsg:
		m.generating = false
		m.streamText = ""
		m.err = msg.err
		m.refreshViewport()
		m.viewport.GotoBottom()
		logging.Get(logging.CategoryUI).Errorf("turn failed: %v", msg.err)

	case historyClearedMsg:
		m.err = nil
		m.refreshViewport()
	}

	m.viewport, vpCmd = m.viewport.Update(msg)

	return m, tea.Batch(tiCmd, vpCmd, spCmd)
}

func (m Model) handleSubmit() (tea.Model, tea.Cmd) {
	input := strings.TrimSpace(m.textinput.Value())
	if input == "" {
		return m, nil
	}

	if strings.HasPrefix(input, "/") {
		return m.handleCommand(input)
	}

	m.textinput.Reset()
	m.generating = true
	m.err = nil
	m.streamText = ""

	return m, tea.Batch(
		m.spinner.Tick,
		m.backend.sendTurn(input),
	)
}

func (m Model) handleCommand(input string) (tea.Model, tea.Cmd) {
	m.textinput.Reset()

	switch strings.Fields(input)[0] {
	case "/quit", "/exit", "/q":
		m.backend.shutdown()
		return m, tea.Quit

	case "/clear":
		return m, m.backend.clearConversation()

	case "/reset":
		return m, m.backend.resetAll()

	case "/help":
		m.viewport.SetContent(m.renderHistory() + "\n" + m.renderHelp())
		m.viewport.GotoBottom()
		return m, nil

	default:
		m.viewport.SetContent(m.renderHistory() + "\n" +
			m.styles.Warning.Render("Unknown command: "+input) + "\n")
		m.viewport.GotoBottom()
		return m, nil
	}
}

func (m *Model) refreshViewport() {
	if m.phase != phaseChat {
		return
	}
	m.viewport.SetContent(m.renderHistory())
}
