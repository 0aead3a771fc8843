package cmd

import (
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"

	"github.com/aether-labs/aether/internal/core"
	"github.com/aether-labs/aether/internal/events"
)

// progressPrinter writes pipeline events to a terminal, one line each. It
// implements pipeline.Publisher for in-process runs.
type progressPrinter struct {
	mu    sync.Mutex
	out   io.Writer
	bar   progress.Model
	plain bool
}

func newProgressPrinter(out io.Writer, plain bool) *progressPrinter {
	return &progressPrinter{
		out:   out,
		bar:   progress.New(progress.WithDefaultGradient(), progress.WithWidth(24), progress.WithoutPercentage()),
		plain: plain,
	}
}

func (p *progressPrinter) Publish(_ string, ev events.ProgressEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.plain {
		fmt.Fprintf(p.out, "[%s] %s\n", ev.State, ev.Message)
		return
	}

	line := stateStyle.Render(string(ev.State)) + " " + messageStyle(ev.State).Render(ev.Message)
	if current, total, ok := factorProgress(ev.Data); ok {
		line += "  " + p.bar.ViewAs(float64(current-1)/float64(total)) +
			mutedStyle.Render(fmt.Sprintf(" %d/%d", current, total))
	}
	fmt.Fprintln(p.out, line)
}

func messageStyle(state core.State) lipgloss.Style {
	switch state {
	case core.StateComplete:
		return successStyle
	case core.StateError:
		return errorStyle
	case core.StateRateLimitTerminated:
		return warningStyle
	default:
		return plainStyle
	}
}

// factorProgress reads the factor counters the coordinator attaches when a
// debate starts.
func factorProgress(data interface{}) (current, total int, ok bool) {
	m, isMap := data.(map[string]interface{})
	if !isMap {
		return 0, 0, false
	}
	current, ok1 := m["current_factor"].(int)
	total, ok2 := m["total_factors"].(int)
	if !ok1 || !ok2 || total <= 0 || current < 1 {
		return 0, 0, false
	}
	return current, total, true
}
