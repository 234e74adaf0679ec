package tui

import (
	"context"
	"errors"
	"io"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// ErrAborted is returned when the user quits the table before the work is
// done.
var ErrAborted = errors.New("aborted by user")

// rowYield pauses after each row update so consecutive stage changes are
// visible as separate frames.
const rowYield = 5 * time.Millisecond

// runOptions are appended to every program's options.
var runOptions []tea.ProgramOption

// RunWithWork runs model while workFn runs in its own goroutine. workFn
// receives a context that is cancelled when the program ends early (the
// user quits or ctx is cancelled) and a send callback for table messages.
// RunWithWork always waits for workFn to return.
func RunWithWork(ctx context.Context, out io.Writer, model ProgressModel, workFn func(ctx context.Context, send func(tea.Msg))) error {
	workCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	opts := append([]tea.ProgramOption{tea.WithOutput(out), tea.WithContext(ctx)}, runOptions...)
	p := tea.NewProgram(model, opts...)

	done := make(chan struct{})
	go func() {
		defer close(done)

		// Let bubbletea start its event loop and render the initial frame.
		select {
		case <-time.After(50 * time.Millisecond):
		case <-workCtx.Done():
		}

		workFn(workCtx, func(msg tea.Msg) {
			p.Send(msg)
			if _, ok := msg.(RowUpdateMsg); ok {
				time.Sleep(rowYield)
			}
		})

		p.Send(WorkDoneMsg{})
	}()

	finalModel, err := p.Run()
	cancel()
	<-done

	if err != nil {
		return err
	}
	m, ok := finalModel.(ProgressModel)
	if !ok {
		return nil
	}
	if m.Aborted() {
		return ErrAborted
	}
	return m.Err()
}
