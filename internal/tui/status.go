package tui

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
)

// StatusWriter keeps a single spinner line on w while registry checks run.
// Finished results are printed above it with Println.
type StatusWriter struct {
	w      io.Writer
	frames spinner.Spinner

	mu         sync.Mutex
	message    string
	phaseStart time.Time
	done       chan struct{}
	stopped    bool
}

// NewStatusWriter starts the spinner on w.
func NewStatusWriter(w io.Writer) *StatusWriter {
	sw := &StatusWriter{
		w:          w,
		frames:     spinner.MiniDot,
		phaseStart: time.Now(),
		done:       make(chan struct{}),
	}
	go sw.loop()
	return sw
}

// Update replaces the spinner text and restarts the elapsed timer.
func (sw *StatusWriter) Update(msg string) {
	sw.mu.Lock()
	sw.message = msg
	sw.phaseStart = time.Now()
	sw.mu.Unlock()
}

// Println prints line permanently above the spinner.
func (sw *StatusWriter) Println(line string) {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	if sw.stopped {
		return
	}
	fmt.Fprintf(sw.w, "\r\033[K%s\n", line)
}

// Stop clears the spinner line. It is safe to call more than once.
func (sw *StatusWriter) Stop() {
	sw.mu.Lock()
	if sw.stopped {
		sw.mu.Unlock()
		return
	}
	sw.stopped = true
	close(sw.done)
	fmt.Fprint(sw.w, "\r\033[K")
	sw.mu.Unlock()
}

func (sw *StatusWriter) loop() {
	tick := 0
	ticker := time.NewTicker(sw.frames.FPS)
	defer ticker.Stop()

	for {
		select {
		case <-sw.done:
			return
		case <-ticker.C:
			sw.mu.Lock()
			if !sw.stopped {
				frame := sw.frames.Frames[tick%len(sw.frames.Frames)]
				fmt.Fprintf(sw.w, "\r\033[K%s %s (%s)", frame, sw.message, formatElapsed(time.Since(sw.phaseStart)))
			}
			sw.mu.Unlock()
			tick++
		}
	}
}

// formatElapsed renders d compactly: 420ms, 3.2s, 17s, 2m05s.
func formatElapsed(d time.Duration) string {
	switch {
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < 10*time.Second:
		return fmt.Sprintf("%.1fs", d.Seconds())
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	return fmt.Sprintf("%dm%02ds", int(d.Minutes()), int(d.Seconds())%60)
}
