package analysis

import (
	"context"
	"errors"
	"sync"

	"github.com/CodeMonkeyCybersecurity/paramflow/internal/logger"
	"github.com/CodeMonkeyCybersecurity/paramflow/internal/telemetry"
)

var ErrRunInProgress = errors.New("an analysis run is already in progress")

// Manager allows at most one run in flight and keeps the last result
type Manager struct {
	logger    *logger.Logger
	telemetry telemetry.Telemetry

	mu      sync.Mutex
	current *Run
	last    *Result
}

func NewManager(log *logger.Logger, tel telemetry.Telemetry) *Manager {
	if log == nil {
		log = logger.Nop()
	}
	return &Manager{logger: log.WithComponent("analysis-manager"), telemetry: tel}
}

// Start launches a run in the background. The previous result is dropped.
// ctx bounds the run, not the call.
func (m *Manager) Start(ctx context.Context, req Request, listener Listener) (*Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil {
		return nil, ErrRunInProgress
	}

	run := NewRun(m.logger, m.telemetry, req, listener)
	m.current = run
	m.last = nil

	m.logger.Infow("Starting analysis run",
		"run_id", run.ID,
		"messages", len(req.Pairs),
		"track_mode", req.TrackMode)

	go func() {
		res := run.execute(ctx)

		m.mu.Lock()
		m.last = res
		m.current = nil
		m.mu.Unlock()

		run.complete(res)
	}()
	return run, nil
}

// Cancel interrupts the in-flight run, if any
func (m *Manager) Cancel() bool {
	m.mu.Lock()
	run := m.current
	m.mu.Unlock()

	if run == nil {
		return false
	}
	run.Cancel()
	return true
}

func (m *Manager) Current() *Run {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Last is the most recent finished result, nil while a run is in flight
func (m *Manager) Last() *Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}
