// Package progress folds per-phase progress of a multi-phase run into one
// overall percentage.
package progress

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// Tracker provides progress tracking for multi-phase operations
type Tracker struct {
	phases       []Phase
	currentPhase int
	startTime    time.Time
	mu           sync.Mutex
	onChange     func(overall int, current Phase)
}

// Phase represents a single phase of work. Weight is its share of the
// overall percentage relative to the other phases.
type Phase struct {
	Name        string
	Description string
	Weight      int
	Status      PhaseStatus
	StartTime   time.Time
	EndTime     time.Time
	Progress    int // 0-100 percentage
}

// PhaseStatus represents the status of a phase
type PhaseStatus int

const (
	StatusPending PhaseStatus = iota
	StatusRunning
	StatusCompleted
	StatusFailed
)

func (s PhaseStatus) String() string {
	switch s {
	case StatusRunning:
		return "running"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	default:
		return "pending"
	}
}

// New creates a tracker. onChange, when set, is called with the overall
// percentage after every update, outside the tracker lock.
func New(onChange func(overall int, current Phase)) *Tracker {
	return &Tracker{
		startTime: time.Now(),
		onChange:  onChange,
	}
}

// AddPhase adds a new phase to track
func (t *Tracker) AddPhase(name, description string, weight int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if weight < 1 {
		weight = 1
	}
	t.phases = append(t.phases, Phase{
		Name:        name,
		Description: description,
		Weight:      weight,
		Status:      StatusPending,
	})
}

// StartPhase marks a phase as started
func (t *Tracker) StartPhase(name string) {
	t.update(name, func(p *Phase) {
		p.Status = StatusRunning
		p.StartTime = time.Now()
	})
}

// UpdateProgress updates the progress percentage of a phase
func (t *Tracker) UpdateProgress(name string, progress int) {
	t.update(name, func(p *Phase) {
		p.Progress = min(max(progress, 0), 100)
	})
}

// CompletePhase marks a phase as completed
func (t *Tracker) CompletePhase(name string) {
	t.update(name, func(p *Phase) {
		p.Status = StatusCompleted
		p.EndTime = time.Now()
		p.Progress = 100
	})
}

// FailPhase marks a phase as failed; it keeps the progress it reached
func (t *Tracker) FailPhase(name string) {
	t.update(name, func(p *Phase) {
		p.Status = StatusFailed
		p.EndTime = time.Now()
	})
}

func (t *Tracker) update(name string, fn func(p *Phase)) {
	t.mu.Lock()
	var (
		phase   Phase
		overall int
		found   bool
	)
	for i := range t.phases {
		if t.phases[i].Name == name {
			fn(&t.phases[i])
			t.currentPhase = i
			phase, overall, found = t.phases[i], t.overallLocked(), true
			break
		}
	}
	t.mu.Unlock()

	if found && t.onChange != nil {
		t.onChange(overall, phase)
	}
}

// Overall returns the weighted progress across all phases
func (t *Tracker) Overall() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.overallLocked()
}

func (t *Tracker) overallLocked() int {
	total, done := 0, 0
	for _, phase := range t.phases {
		total += phase.Weight
		done += phase.Weight * phase.Progress
	}
	if total == 0 {
		return 0
	}
	return done / total
}

// Phases returns a snapshot of all phases
func (t *Tracker) Phases() []Phase {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Phase, len(t.phases))
	copy(out, t.phases)
	return out
}

// Bar renders a fixed width text progress bar
func Bar(percent, width int) string {
	percent = min(max(percent, 0), 100)
	filled := (percent * width) / 100
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

// ETA estimates time remaining from elapsed time and percent complete
func ETA(elapsed time.Duration, percent int) string {
	if percent <= 0 || percent >= 100 {
		return "calculating..."
	}
	totalEstimated := (elapsed * 100) / time.Duration(percent)
	return FormatDuration(totalEstimated - elapsed)
}

// Elapsed is the time since the tracker was created
func (t *Tracker) Elapsed() time.Duration {
	return time.Since(t.startTime)
}

// WriteSummary prints the per-phase breakdown
func (t *Tracker) WriteSummary(w io.Writer) {
	fmt.Fprintln(w, "Phase Summary:")
	for _, phase := range t.Phases() {
		status := "✅"
		if phase.Status == StatusFailed {
			status = "❌"
		} else if phase.Status == StatusPending {
			status = "⏸️"
		}

		duration := ""
		if !phase.EndTime.IsZero() {
			duration = fmt.Sprintf(" (%s)", FormatDuration(phase.EndTime.Sub(phase.StartTime)))
		}

		fmt.Fprintf(w, "  %s %s%s\n", status, phase.Name, duration)
	}
}

// FormatDuration formats a duration in human-readable form
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return "< 1s"
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		minutes := int(d.Minutes())
		seconds := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh %dm", hours, minutes)
}
