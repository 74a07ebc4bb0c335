package chat

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"localchat/internal/config"
)

// Run starts the chat interface and blocks until the user exits.
func Run(cfg config.Config) error {
	m := New(cfg)
	p := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("chat interface: %w", err)
	}
	// The update loop shuts the backend down on quit keys, but a crashed
	// program may not reach them.
	m.backend.shutdown()
	return nil
}
