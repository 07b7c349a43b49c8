package cmd

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/fatih/color"

	"github.com/CodeMonkeyCybersecurity/paramflow/internal/analysis"
	"github.com/CodeMonkeyCybersecurity/paramflow/internal/progress"
)

const barWidth = 30

// consoleProgress renders a run's callbacks as a single updating progress line
type consoleProgress struct {
	out       io.Writer
	mu        sync.Mutex
	status    string
	percent   int
	startTime time.Time
	done      bool
}

func newConsoleProgress(out io.Writer) *consoleProgress {
	return &consoleProgress{out: out, startTime: time.Now()}
}

func (p *consoleProgress) SetStatus(status string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done {
		return
	}
	p.status = status
	p.render()
}

func (p *consoleProgress) SetProgress(percent int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done {
		return
	}
	p.percent = percent
	p.render()
}

func (p *consoleProgress) Done(result *analysis.Result) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done {
		return
	}
	p.done = true

	elapsed := progress.FormatDuration(time.Since(p.startTime))
	switch {
	case result == nil || result.Err == nil:
		p.percent = 100
		p.render()
		fmt.Fprintf(p.out, "\n%s Analysis completed (%s)\n", color.GreenString("✓"), elapsed)
	case result.Interrupted:
		fmt.Fprintf(p.out, "\n%s %s\n", color.YellowString("⚠"),
			color.YellowString("Analysis interrupted after %s: %v", elapsed, result.Err))
	default:
		fmt.Fprintf(p.out, "\n%s %s\n", color.RedString("✗"),
			color.RedString("Analysis failed: %v", result.Err))
	}
}

func (p *consoleProgress) render() {
	status := p.status
	if len(status) > 32 {
		status = status[:29] + "..."
	}
	fmt.Fprintf(p.out, "\r%-32s [%s] %3d%% ETA: %-14s",
		status,
		progress.Bar(p.percent, barWidth),
		p.percent,
		progress.ETA(time.Since(p.startTime), p.percent))
}
