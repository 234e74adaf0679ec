package tui

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var promptStyle = lipgloss.NewStyle().Bold(true)

// confirmModel is a yes/no prompt.
type confirmModel struct {
	prompt   string
	answered bool
	accepted bool
}

func (m confirmModel) Init() tea.Cmd {
	return nil
}

func (m confirmModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch strings.ToLower(key.String()) {
	case "y":
		m.answered, m.accepted = true, true
		return m, tea.Quit
	case "n", "esc", "q", "ctrl+c", "enter":
		m.answered, m.accepted = true, false
		return m, tea.Quit
	}
	return m, nil
}

func (m confirmModel) View() string {
	if m.answered {
		answer := "no"
		if m.accepted {
			answer = "yes"
		}
		return fmt.Sprintf("%s %s\n", promptStyle.Render(m.prompt), answer)
	}
	return fmt.Sprintf("%s [y/N] ", promptStyle.Render(m.prompt))
}

// PromptConfirmer asks interactively on a terminal.
type PromptConfirmer struct {
	In  io.Reader
	Out io.Writer
}

// Confirm implements installer.Confirmer.
func (c PromptConfirmer) Confirm(ctx context.Context, prompt string) (bool, error) {
	p := tea.NewProgram(confirmModel{prompt: prompt},
		tea.WithInput(c.In),
		tea.WithOutput(c.Out),
		tea.WithContext(ctx),
	)
	final, err := p.Run()
	if err != nil {
		return false, fmt.Errorf("confirm: %w", err)
	}
	m, ok := final.(confirmModel)
	return ok && m.accepted, nil
}

// LineConfirmer reads a y/n answer from a line-oriented reader. It is used
// when stdin is not a terminal.
type LineConfirmer struct {
	In  io.Reader
	Out io.Writer
}

// Confirm implements installer.Confirmer. Anything but y or yes declines,
// including end of input.
func (c LineConfirmer) Confirm(ctx context.Context, prompt string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	fmt.Fprintf(c.Out, "%s [y/N] ", prompt)
	line, err := bufio.NewReader(c.In).ReadString('\n')
	if err != nil && line == "" {
		fmt.Fprintln(c.Out)
		return false, nil
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}
