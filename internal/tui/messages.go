package tui

// RowUpdateMsg updates a single row's fields by column name.
type RowUpdateMsg struct {
	Key    string
	Fields map[string]string
}

// WorkDoneMsg signals that all background work has completed.
type WorkDoneMsg struct{}

// ErrorMsg signals a fatal error; the TUI should quit.
type ErrorMsg struct {
	Err error
}

// PercentMsg sets the PROGRESS bar of a row to Percent (0-100).
type PercentMsg struct {
	Key     string
	Percent float64
}
