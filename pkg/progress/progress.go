// Package progress renders per-workflow progress bars and the run summary.
package progress

import (
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/fatih/color"
)

// Reporter creates a bar per unit of work
type Reporter interface {
	Start(message string, total int) Bar
}

// Bar tracks one unit of work
type Bar interface {
	Inc()
	Finish()
}

// Terminal draws bars on a terminal, redrawing the current line on every step
type Terminal struct {
	Out   io.Writer
	Width int
}

// NewTerminal returns a reporter writing to out
func NewTerminal(out io.Writer) *Terminal {
	return &Terminal{Out: out, Width: 40}
}

func (t *Terminal) Start(message string, total int) Bar {
	b := &terminalBar{
		out:     t.Out,
		message: message,
		total:   total,
		model:   progress.New(progress.WithDefaultGradient(), progress.WithWidth(t.Width), progress.WithoutPercentage()),
	}
	b.draw()
	return b
}

type terminalBar struct {
	mu       sync.Mutex
	out      io.Writer
	message  string
	total    int
	pos      int
	finished bool
	model    progress.Model
}

// Render returns the bar line for pos out of total
func Render(model progress.Model, message string, pos, total int) string {
	percent := 1.0
	if total > 0 {
		percent = float64(pos) / float64(total)
	}
	return fmt.Sprintf("%s %s %d/%d (%d%%)", color.CyanString(message), model.ViewAs(percent), pos, total, int(percent*100))
}

func (b *terminalBar) draw() {
	fmt.Fprintf(b.out, "\r%s", Render(b.model, b.message, b.pos, b.total))
}

func (b *terminalBar) Inc() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.finished || b.pos >= b.total {
		return
	}
	b.pos++
	b.draw()
}

func (b *terminalBar) Finish() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.finished {
		return
	}
	b.finished = true
	b.draw()
	fmt.Fprintln(b.out)
}

// Nop discards all progress
type Nop struct{}

func (Nop) Start(string, int) Bar { return nopBar{} }

type nopBar struct{}

func (nopBar) Inc()    {}
func (nopBar) Finish() {}

var (
	_ Reporter = (*Terminal)(nil)
	_ Reporter = Nop{}
)
