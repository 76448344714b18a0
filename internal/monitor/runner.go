package monitor

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
)

// Runner wraps a bubbletea program polling a running peer's state. It does
// not own the peer process lifecycle; the caller is expected to run the
// swarm process concurrently and cancel ctx (or call Stop) to tear down the
// dashboard alongside it.
type Runner struct {
	program *tea.Program
	cancel  context.CancelFunc
}

// NewRunner builds a dashboard Runner for peerID, polling source.
func NewRunner(ctx context.Context, peerID int, source StatsSource) *Runner {
	ctx, cancel := context.WithCancel(ctx)
	model := NewModel(peerID, source)
	program := tea.NewProgram(model, tea.WithAltScreen())
	go func() {
		<-ctx.Done()
		program.Quit()
	}()
	return &Runner{program: program, cancel: cancel}
}

// Run blocks until the dashboard exits, either via user quit (q / ctrl+c)
// or a call to Stop.
func (r *Runner) Run() error {
	_, err := r.program.Run()
	return err
}

// Stop requests the dashboard to exit, for use when the swarm process shuts
// down independently of user input (for example on swarm completion).
func (r *Runner) Stop() {
	r.cancel()
	if r.program != nil {
		r.program.Quit()
	}
}
