package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// ProgressReporter reports progress of a bulk job.
type ProgressReporter interface {
	Start(total int64)
	Update(processed, errors int64)
	Finish(status string)
	Error(err error)
}

// SimpleProgress renders a single-line text progress bar.
type SimpleProgress struct {
	mu        sync.Mutex
	total     int64
	processed int64
	errors    int64
	started   time.Time
	writer    io.Writer
}

// NewProgressReporter creates a progress reporter that writes to w.
// If w is nil, it defaults to os.Stderr.
func NewProgressReporter(w io.Writer) ProgressReporter {
	if w == nil {
		w = os.Stderr
	}
	return &SimpleProgress{writer: w}
}

// Start sets the expected number of items. The total is advisory; 0 means
// unknown and only counts are shown.
func (p *SimpleProgress) Start(total int64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.total = total
	p.started = time.Now()
	p.render()
}

// Update records the current counters.
func (p *SimpleProgress) Update(processed, errors int64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.processed = processed
	p.errors = errors
	p.render()
}

// Finish prints the final line with the job's terminal status.
func (p *SimpleProgress) Finish(status string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.render()
	fmt.Fprintf(p.writer, " %s\n", status)
}

// Error reports an error during progress.
func (p *SimpleProgress) Error(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintf(p.writer, "\nError: %v\n", err)
}

func (p *SimpleProgress) render() {
	elapsed := time.Since(p.started).Seconds()
	var rate float64
	if elapsed > 0 {
		rate = float64(p.processed) / elapsed
	}

	if p.total <= 0 {
		fmt.Fprintf(p.writer, "\rProcessed: %d (errors: %d) %.1f items/s", p.processed, p.errors, rate)
		return
	}

	// Drift can push processed past the advisory total.
	percent := min(float64(p.processed)/float64(p.total)*100, 100)
	barWidth := 40
	filled := int(float64(barWidth) * percent / 100)
	bar := strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)

	fmt.Fprintf(p.writer, "\rProgress: [%s] %.1f%% (%d/%d, errors: %d) %.1f items/s",
		bar, percent, p.processed, p.total, p.errors, rate)
}
