package chat

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"localchat/internal/bootstrap"
	"localchat/internal/store"
)

func (m Model) View() string {
	switch m.phase {
	case phaseBooting:
		return m.renderBoot()
	case phaseFailed:
		return m.renderBootFailure()
	}

	if !m.ready {
		return "Initializing..."
	}

	header := m.renderHeader()
	chatView := m.viewport.View()

	if m.generating && m.streamText == "" {
		chatView += "\n" + m.styles.Spinner.Render(m.spinner.View()) + " Thinking..."
	}
	if m.err != nil {
		chatView += "\n" + m.styles.Error.Render("Error: "+m.err.Error())
	}

	inputArea := m.styles.InputBox.Render(m.textinput.View())
	footer := m.renderFooter()

	return lipgloss.JoinVertical(
		lipgloss.Left,
		header,
		chatView,
		inputArea,
		footer,
	)
}

// renderBoot draws the startup screen: phase label, spinner, progress bar.
func (m Model) renderBoot() string {
	label := bootPhaseLabel(m.bootState.Phase)
	bar := m.progress.ViewAs(float64(m.bootState.Progress) / 100)

	body := lipgloss.JoinVertical(
		lipgloss.Left,
		m.styles.Header.Render("localchat"),
		"",
		m.styles.Spinner.Render(m.spinner.View())+" "+m.styles.Bold.Render(label),
		"",
		bar,
		"",
		m.styles.Muted.Render(fmt.Sprintf("%d%%", m.bootState.Progress)),
	)

	if m.width == 0 || m.height == 0 {
		return body
	}
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, body)
}

func (m Model) renderBootFailure() string {
	body := lipgloss.JoinVertical(
		lipgloss.Left,
		m.styles.Error.Render("Startup failed"),
		"",
		m.styles.Bold.Render(m.bootState.Err),
		"",
		m.styles.Muted.Render("Fix the problem and restart. Ctrl+C to exit."),
	)
	if m.width == 0 || m.height == 0 {
		return body
	}
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, body)
}

func (m Model) renderHeader() string {
	title := m.styles.Header.Render(" localchat ")
	model := m.styles.Muted.Render(m.backend.cfg.Model.Name)

	var status string
	if m.generating {
		status = m.styles.Warning.Render("● Generating")
	} else {
		status = m.styles.Success.Render("● Ready")
	}

	line := lipgloss.JoinHorizontal(lipgloss.Center, title, " ", model, "  ", status)
	return lipgloss.JoinVertical(lipgloss.Left, line, m.styles.RenderDivider(m.width))
}

func (m Model) renderFooter() string {
	help := "Enter: send • Ctrl+X: stop generation • /help: commands • Ctrl+C: exit"
	return m.styles.Footer.Render(help)
}

// renderHistory formats the conversation for the viewport: user text plain,
// assistant text through the markdown renderer, plus the live streaming
// bubble while a turn is in flight.
func (m Model) renderHistory() string {
	var sb strings.Builder

	for _, msg := range m.backend.turn.History() {
		switch msg.Role {
		case store.RoleUser:
			sb.WriteString(m.styles.UserLabel.Render("You") + "\n")
			sb.WriteString(m.styles.UserText.Render(msg.Content))
			if msg.Unconfirmed {
				sb.WriteString(" " + m.styles.Unconfirmed.Render("(not saved)"))
			}
			sb.WriteString("\n")
		case store.RoleAssistant:
			sb.WriteString(m.styles.AssistantLabel.Render("Assistant") + "\n")
			sb.WriteString(m.safeRenderMarkdown(msg.Content))
			sb.WriteString("\n")
		}
	}

	if m.streamText != "" {
		sb.WriteString(m.styles.AssistantLabel.Render("Assistant") + "\n")
		// Plain text while streaming; markdown is rendered once the
		// turn settles.
		sb.WriteString(m.streamText)
		sb.WriteString(m.styles.Spinner.Render(" ▍"))
		sb.WriteString("\n")
	}

	return sb.String()
}

// safeRenderMarkdown renders markdown with panic recovery; glamour can
// panic on pathological input.
func (m Model) safeRenderMarkdown(content string) (result string) {
	defer func() {
		if r := recover(); r != nil {
			result = content
		}
	}()

	if m.renderer != nil && content != "" {
		if rendered, err := m.renderer.Render(content); err == nil {
			return rendered
		}
	}
	return content
}

func (m Model) renderHelp() string {
	return m.safeRenderMarkdown(`## Commands

| Command | Description |
|---------|-------------|
| /help | Show this help message |
| /clear | Delete this conversation and start fresh |
| /reset | Delete every conversation |
| /quit, /exit, /q | Exit |

## Keys
- **Enter** sends a message
- **Ctrl+X** stops the current generation
- **Ctrl+C** or **Esc** exits
`)
}

func bootPhaseLabel(p bootstrap.Phase) string {
	switch p {
	case bootstrap.PhaseDownloading:
		return "Preparing model..."
	case bootstrap.PhaseLoading:
		return "Loading model..."
	case bootstrap.PhaseReady:
		return "Ready"
	case bootstrap.PhaseError:
		return "Failed"
	default:
		return "Starting..."
	}
}
