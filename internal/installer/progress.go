package installer

import (
	"sync"

	"wrtools/internal/components"
)

// Update is a single progress notification. Increment is the number of
// percentage points completed since the previous update; it is zero for
// message-only updates.
type Update struct {
	Increment float64
	Message   string
}

// Reporter receives install progress.
type Reporter interface {
	Report(Update)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(Update)

// Report implements Reporter.
func (f ReporterFunc) Report(u Update) { f(u) }

type discardReporter struct{}

func (discardReporter) Report(Update) {}

// Discard drops every update.
var Discard Reporter = discardReporter{}

// tracker converts absolute percentages into non-decreasing increments.
type tracker struct {
	mu   sync.Mutex
	out  Reporter
	last float64
}

func newTracker(out Reporter) *tracker {
	if out == nil {
		out = Discard
	}
	return &tracker{out: out}
}

// to reports that the work is pct percent complete. Values below the last
// reported percentage, or above 100, are clamped.
func (t *tracker) to(pct float64, message string) {
	t.mu.Lock()
	if pct > 100 {
		pct = 100
	}
	inc := pct - t.last
	if inc < 0 {
		inc = 0
	} else {
		t.last = pct
	}
	t.mu.Unlock()
	t.out.Report(Update{Increment: inc, Message: message})
}

// message reports a stage change without moving the bar.
func (t *tracker) message(msg string) {
	t.out.Report(Update{Message: msg})
}

func (t *tracker) percent() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last
}

// downloadShare is the fraction of the bar owned by the download phase. Zip
// archives are extracted entry by entry with visible progress, so extraction
// gets the second half.
func downloadShare(format components.ArchiveFormat) float64 {
	if format == components.FormatZip {
		return 0.5
	}
	return 1
}

func downloadPercent(received, size int64, format components.ArchiveFormat) float64 {
	if size <= 0 {
		return 0
	}
	return float64(received) / float64(size) * 100 * downloadShare(format)
}

func extractPercent(processed, total int) float64 {
	if total <= 0 {
		return 100
	}
	return 50 + 50*float64(processed)/float64(total)
}
