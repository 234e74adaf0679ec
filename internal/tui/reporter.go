package tui

import (
	"fmt"
	"io"
	"strings"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"wrtools/internal/installer"
)

// InstallReporter adapts installer progress to table messages for one row.
// Increments are summed into the row's PROGRESS bar and stage messages
// update its STATUS and DETAIL columns.
type InstallReporter struct {
	send func(tea.Msg)
	key  string

	mu    sync.Mutex
	total float64
}

// NewInstallReporter returns a reporter that updates the row identified by key.
func NewInstallReporter(send func(tea.Msg), key string) *InstallReporter {
	return &InstallReporter{send: send, key: key}
}

// Report implements installer.Reporter.
func (r *InstallReporter) Report(u installer.Update) {
	r.mu.Lock()
	r.total += u.Increment
	total := r.total
	r.mu.Unlock()

	if u.Increment != 0 {
		r.send(PercentMsg{Key: r.key, Percent: total})
	}
	if u.Message == "" {
		return
	}
	fields := map[string]string{"DETAIL": u.Message}
	if status := StageStatus(u.Message); status != "" {
		fields["STATUS"] = status
	}
	r.send(RowUpdateMsg{Key: r.key, Fields: fields})
}

// StageStatus maps an installer progress message to the status shown in the
// STATUS column, or "" when the message does not start a stage.
func StageStatus(message string) string {
	switch {
	case message == "checking version":
		return "checking"
	case strings.HasPrefix(message, "downloading"):
		return "downloading"
	case strings.HasPrefix(message, "extracting"):
		return "extracting"
	case message == "done":
		return "committing"
	}
	return ""
}

// LineReporter writes installer progress as plain lines, one per stage
// change and one per ten percent of progress.
type LineReporter struct {
	w     io.Writer
	label string

	mu       sync.Mutex
	total    float64
	lastStep int
	stage    string
}

// NewLineReporter returns a reporter prefixing each line with label.
func NewLineReporter(w io.Writer, label string) *LineReporter {
	return &LineReporter{w: w, label: label, lastStep: -1}
}

// Report implements installer.Reporter.
func (r *LineReporter) Report(u installer.Update) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.total += u.Increment
	step := int(r.total) / 10
	stage := StageStatus(u.Message)
	if stage == "" {
		stage = r.stage
	}
	if stage == r.stage && step == r.lastStep {
		return
	}
	r.stage = stage
	r.lastStep = step
	fmt.Fprintf(r.w, "%s: %s %3.0f%%\n", r.label, NonEmptyOrDash(stage), r.total)
}
