package chat

import (
	"context"
	"errors"

	tea "github.com/charmbracelet/bubbletea"

	"localchat/internal/bootstrap"
	"localchat/internal/config"
	"localchat/internal/llm"
	"localchat/internal/logging"
	"localchat/internal/provision"
	"localchat/internal/store"
	"localchat/internal/turn"
)

// backend owns everything behind the UI: the store, the inference engine,
// and the controllers. It is constructed empty and filled in by the boot
// sequence.
type backend struct {
	cfg    config.Config
	events chan tea.Msg

	store  *store.LocalStore
	engine *llm.ServerEngine
	turn   *turn.Controller
}

func newBackend(cfg config.Config) *backend {
	return &backend{
		cfg:    cfg,
		events: make(chan tea.Msg, 8),
	}
}

// runBoot is the startup command. It blocks until the bootstrap sequence
// settles; intermediate progress flows through the event channel and is
// picked up by waitForEvent.
func (b *backend) runBoot() tea.Cmd {
	return func() tea.Msg {
		log := logging.Get(logging.CategoryBoot)

		s, err := store.Open(b.cfg.DatabasePath())
		if err != nil {
			log.Errorf("store open failed: %v", err)
			return bootFailedMsg{state: bootstrap.ReadinessState{
				Phase: bootstrap.PhaseError,
				Err:   err.Error(),
			}}
		}
		b.store = s

		b.engine = llm.NewServerEngine(b.cfg.EngineBinary, b.cfg.Model)

		// The provisioner reports download fractions back into the
		// controller, which is built right after it.
		var ctrl *bootstrap.Controller
		prov := provision.New(b.cfg.Model, b.cfg.ModelsDir(), func(f float64) {
			ctrl.ReportModelProgress(f)
		})
		ctrl = bootstrap.New(s, prov, b.engine, func(st bootstrap.ReadinessState) {
			// Terminal states arrive as the command's return value.
			if st.Phase == bootstrap.PhaseReady || st.Phase == bootstrap.PhaseError {
				return
			}
			b.events <- bootProgressMsg(st)
		})

		result, err := ctrl.Run(context.Background())
		if err != nil {
			log.Errorf("bootstrap failed: %v", err)
			return bootFailedMsg{state: ctrl.State()}
		}

		tc := turn.New(s, b.engine, result.ConversationID, b.cfg)
		tc.OnStream = func(acc string) { b.events <- streamMsg(acc) }
		if err := tc.LoadHistory(); err != nil {
			log.Errorf("history load failed: %v", err)
			return bootFailedMsg{state: bootstrap.ReadinessState{
				Phase: bootstrap.PhaseError,
				Err:   err.Error(),
			}}
		}
		b.turn = tc

		log.Info("boot complete")
		return bootDoneMsg{}
	}
}

// waitForEvent relays the next backend event into the update loop. It is
// re-armed after every delivery.
func (b *backend) waitForEvent() tea.Cmd {
	return func() tea.Msg {
		return <-b.events
	}
}

// sendTurn runs one chat turn to completion. Streaming text arrives via the
// event channel; this command returns only the settlement.
func (b *backend) sendTurn(content string) tea.Cmd {
	return func() tea.Msg {
		err := b.turn.Send(context.Background(), content)
		switch {
		case err == nil:
			return turnDoneMsg{}
		case errors.Is(err, turn.ErrEmptyInput), errors.Is(err, turn.ErrBusy):
			// Dropped silently; nothing to show.
			return nil
		default:
			return turnErrMsg{err: err}
		}
	}
}

// clearConversation wipes the current conversation and starts a fresh one.
func (b *backend) clearConversation() tea.Cmd {
	return func() tea.Msg {
		if err := b.turn.ClearConversation(); err != nil {
			return turnErrMsg{err: err}
		}
		return historyClearedMsg{}
	}
}

// resetAll wipes every conversation, then starts a fresh one for the
// current session.
func (b *backend) resetAll() tea.Cmd {
	return func() tea.Msg {
		if err := b.store.ClearAll(); err != nil {
			return turnErrMsg{err: err}
		}
		if err := b.turn.ClearConversation(); err != nil {
			return turnErrMsg{err: err}
		}
		return historyClearedMsg{}
	}
}

// shutdown stops the engine subprocess and closes the store. Safe to call
// with a partially built backend.
func (b *backend) shutdown() {
	if b.engine != nil {
		b.engine.Shutdown()
	}
	if b.store != nil {
		_ = b.store.Close()
	}
	logging.Sync()
}
