package tui

import (
	"io"
	"os"
	"runtime"
	"strings"

	"github.com/mattn/go-isatty"
)

// OutputMode selects how install progress is rendered.
type OutputMode int

const (
	// ModeTUI renders a live bubbletea table.
	ModeTUI OutputMode = iota
	// ModePlain writes progress lines and a result table at the end.
	ModePlain
	// ModeJSON writes only the JSON result.
	ModeJSON
)

// DetectMode picks the output mode for out. Flags win; otherwise a live
// table is used only on a capable terminal.
func DetectMode(out io.Writer, noProgress, jsonOutput bool) OutputMode {
	if jsonOutput {
		return ModeJSON
	}
	if noProgress || !isTerminal(out) || dumbTerminal() {
		return ModePlain
	}
	return ModeTUI
}

// IsInteractive reports whether in is a terminal a user can answer prompts on.
func IsInteractive(in io.Reader) bool {
	return isTerminal(in) && !dumbTerminal()
}

func isTerminal(v any) bool {
	f, ok := v.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func dumbTerminal() bool {
	if runtime.GOOS == "windows" {
		return false
	}
	term := os.Getenv("TERM")
	return term == "" || strings.EqualFold(term, "dumb")
}
