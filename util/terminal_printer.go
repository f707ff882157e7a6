package util

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/gosuri/uilive"
)

// TerminalPrinter redraws one status line per worker at a fixed frequency.
type TerminalPrinter struct {
	lines     []*StatusLine
	frequency time.Duration
	doneCh    chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup

	writer  *uilive.Writer
	writers []io.Writer
}

func NewTerminalPrinter(out io.Writer, frequency time.Duration) *TerminalPrinter {
	w := uilive.New()
	if out != nil {
		w.Out = out
	}
	return &TerminalPrinter{
		lines:     make([]*StatusLine, 0),
		frequency: frequency,
		doneCh:    make(chan struct{}),
		writer:    w,
		writers:   make([]io.Writer, 0),
	}
}

// NewLine reserves a status line. Must be called before Start.
func (p *TerminalPrinter) NewLine() *StatusLine {
	line := &StatusLine{}
	p.lines = append(p.lines, line)
	p.writers = append(p.writers, p.writer.Newline())
	return line
}

func (p *TerminalPrinter) Start(ctx context.Context) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(p.frequency)
		defer ticker.Stop()
		for {
			select {
			case <-p.doneCh:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.print()
			}
		}
	}()
}

// Stop draws the final state of every line. It is safe to call more than once.
func (p *TerminalPrinter) Stop() {
	p.stopOnce.Do(func() {
		close(p.doneCh)
		p.wg.Wait()
		p.print()
	})
}

func (p *TerminalPrinter) print() {
	for i, line := range p.lines {
		fmt.Fprintln(p.writers[i], line.Get())
	}
	p.writer.Flush()
}

// StatusLine keeps the last line written to it.
type StatusLine struct {
	mu   sync.Mutex
	text string
}

var _ io.Writer = &StatusLine{}

func (l *StatusLine) Write(b []byte) (int, error) {
	text := bytes.TrimRight(b, "\n")
	if i := bytes.LastIndexByte(text, '\n'); i >= 0 {
		text = text[i+1:]
	}
	l.mu.Lock()
	l.text = string(text)
	l.mu.Unlock()
	return len(b), nil
}

func (l *StatusLine) Get() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.text
}
