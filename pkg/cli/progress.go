package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

// ProgressReporter reports progress for long-running operations.
type ProgressReporter interface {
	Start(total int64)
	Increment()
	Finish()
}

// SimpleProgress renders a one-line progress bar.
type SimpleProgress struct {
	mu      sync.Mutex
	total   int64
	current int64
	label   string
	writer  io.Writer
}

// NewProgressReporter creates a reporter that writes to w, or os.Stderr when
// w is nil. label names the unit of work ("probed", "deleted").
func NewProgressReporter(w io.Writer, label string) ProgressReporter {
	if w == nil {
		w = os.Stderr
	}
	return &SimpleProgress{writer: w, label: label}
}

// Start resets the reporter for total items.
func (p *SimpleProgress) Start(total int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.total = total
	p.current = 0
	p.render()
}

// Increment records one finished item. Safe for concurrent use.
func (p *SimpleProgress) Increment() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current < p.total {
		p.current++
	}
	p.render()
}

// Finish completes the bar and ends the line.
func (p *SimpleProgress) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current = p.total
	p.render()
	fmt.Fprintln(p.writer)
}

func (p *SimpleProgress) render() {
	if p.total == 0 {
		return
	}
	const width = 30
	filled := int(int64(width) * p.current / p.total)
	bar := strings.Repeat("#", filled) + strings.Repeat(".", width-filled)
	fmt.Fprintf(p.writer, "\r[%s] %d/%d %s", bar, p.current, p.total, p.label)
}
