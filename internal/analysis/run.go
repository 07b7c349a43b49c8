// Package analysis runs correlation, secret classification and provenance
// tracking as one cancellable background run.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/CodeMonkeyCybersecurity/paramflow/internal/config"
	"github.com/CodeMonkeyCybersecurity/paramflow/internal/logger"
	"github.com/CodeMonkeyCybersecurity/paramflow/internal/progress"
	"github.com/CodeMonkeyCybersecurity/paramflow/internal/telemetry"
	"github.com/CodeMonkeyCybersecurity/paramflow/pkg/capture"
	"github.com/CodeMonkeyCybersecurity/paramflow/pkg/correlation"
	"github.com/CodeMonkeyCybersecurity/paramflow/pkg/graph"
	"github.com/CodeMonkeyCybersecurity/paramflow/pkg/params"
	"github.com/CodeMonkeyCybersecurity/paramflow/pkg/secrets"
	"github.com/CodeMonkeyCybersecurity/paramflow/pkg/tracker"
)

const (
	phaseCorrelate = "correlate"
	phaseClassify  = "classify"
	phaseTrack     = "track"
)

// Graph is the provenance graph a run produces
type Graph = graph.Model[*tracker.TrackedParameter]

// Request describes one analysis run
type Request struct {
	Pairs       []*capture.MessagePair
	Correlation correlation.Options
	// Secrets is copied when the run is created
	Secrets        *secrets.Set
	TrackMode      string
	MinValueLength int
	Graph          graph.Options
}

// RequestFromConfig fills a request from configuration
func RequestFromConfig(cfg config.AnalysisConfig, g config.GraphConfig, pairs []*capture.MessagePair, set *secrets.Set) Request {
	opts := graph.DefaultOptions()
	opts.RowGap = g.RowGap
	opts.ColumnGap = g.ColumnGap

	return Request{
		Pairs: pairs,
		Correlation: correlation.Options{
			IgnoreNames: cfg.IgnoreNames,
			IgnoreEmpty: cfg.IgnoreEmpty,
			ShowDecoded: cfg.ShowDecoded,
			Workers:     cfg.Workers,
		},
		Secrets:        set,
		TrackMode:      cfg.TrackMode,
		MinValueLength: cfg.MinValueLength,
		Graph:          opts,
	}
}

// Result is everything a finished or interrupted run produced
type Result struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	// TrackMode is the resolved mode: secrets or all
	TrackMode   string
	Correlation *correlation.Result
	Secrets     []*secrets.Secret
	Tracked     []*tracker.TrackedParameter
	Graph       *Graph
	Interrupted bool
	Err         error
}

// Summary is a compact view of a result for progress streams
type Summary struct {
	Params      int    `json:"params"`
	Secrets     int    `json:"secrets"`
	Vertices    int    `json:"vertices"`
	Edges       int    `json:"edges"`
	Interrupted bool   `json:"interrupted"`
	Error       string `json:"error,omitempty"`
}

func (r *Result) Summary() Summary {
	s := Summary{Interrupted: r.Interrupted}
	if r.Correlation != nil {
		s.Params = r.Correlation.Len()
		s.Secrets = len(r.Correlation.ParamSecrets())
	}
	if r.Graph != nil {
		s.Vertices = r.Graph.Len()
		s.Edges = len(r.Graph.Edges())
	}
	if r.Err != nil {
		s.Error = r.Err.Error()
	}
	return s
}

// Run is a disposable analysis context. Create one per analysis.
type Run struct {
	ID string

	req       Request
	secrets   *secrets.Set
	logger    *logger.Logger
	scoped    *logger.Logger
	telemetry telemetry.Telemetry
	listener  Listener
	progress  *progress.Tracker
	graph     *Graph

	cancel   context.CancelFunc
	stopped  bool
	done     chan struct{}
	once     sync.Once
	mu       sync.Mutex
	result   *Result
	started  time.Time
	lastStat string
}

func NewRun(log *logger.Logger, tel telemetry.Telemetry, req Request, listener Listener) *Run {
	if log == nil {
		log = logger.Nop()
	}
	if tel == nil {
		tel = telemetry.Noop()
	}
	if listener == nil {
		listener = nopListener{}
	}

	set := req.Secrets
	if set == nil {
		set, _ = secrets.NewSet(log)
	} else {
		set = set.Clone()
	}

	id := uuid.New().String()
	r := &Run{
		ID:        id,
		req:       req,
		secrets:   set,
		logger:    log.WithComponent("analysis").WithRunID(id),
		scoped:    log.WithRunID(id),
		telemetry: tel,
		listener:  listener,
		graph:     graph.NewModel[*tracker.TrackedParameter](req.Graph),
		cancel:    func() {},
		done:      make(chan struct{}),
	}
	r.progress = progress.New(func(overall int, _ progress.Phase) {
		r.listener.SetProgress(overall)
	})
	r.progress.AddPhase(phaseCorrelate, "Correlating parameters", 50)
	r.progress.AddPhase(phaseClassify, "Classifying secrets", 5)
	r.progress.AddPhase(phaseTrack, "Tracking provenance", 45)
	return r
}

// Graph is the model this run populates
func (r *Run) Graph() *Graph {
	return r.graph
}

// Done is closed once the listener's Done callback has fired
func (r *Run) Done() <-chan struct{} {
	return r.done
}

func (r *Run) Wait(ctx context.Context) (*Result, error) {
	select {
	case <-r.done:
		return r.Result(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Result is nil until the run finishes
func (r *Run) Result() *Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.result
}

// Cancel interrupts the run; a run cancelled before it starts stops at once
func (r *Run) Cancel() {
	r.mu.Lock()
	r.stopped = true
	cancel := r.cancel
	r.mu.Unlock()
	cancel()
}

// Status is the last status text reported
func (r *Run) Status() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastStat
}

// Progress is the overall percentage so far
func (r *Run) Progress() int {
	return r.progress.Overall()
}

// Execute runs synchronously and fires Done before returning
func (r *Run) Execute(ctx context.Context) *Result {
	res := r.execute(ctx)
	r.complete(res)
	return res
}

func (r *Run) complete(res *Result) {
	r.once.Do(func() {
		r.mu.Lock()
		r.result = res
		r.mu.Unlock()
		close(r.done)
		r.listener.Done(res)
	})
}

func (r *Run) execute(ctx context.Context) *Result {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	r.mu.Lock()
	r.cancel = cancel
	r.started = time.Now()
	if r.stopped {
		cancel()
	}
	r.mu.Unlock()

	// correlator and tracker pick up the run id from ctx
	ctx = logger.WithLogger(ctx, r.scoped)
	ctx, span := r.logger.StartOperation(ctx, "analysis.Run",
		"messages", len(r.req.Pairs),
		"track_mode", r.req.TrackMode)

	res := &Result{RunID: r.ID, StartedAt: r.started, Graph: r.graph}
	err := r.steps(ctx, res)
	if err != nil {
		res.Err = err
		res.Interrupted = errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
	}
	res.FinishedAt = time.Now()
	res.Secrets = r.secrets.Secrets()

	r.telemetry.RecordRun(res.TrackMode, res.FinishedAt.Sub(res.StartedAt), err == nil)
	r.logger.FinishOperation(ctx, span, "analysis.Run", r.started, err,
		"vertices", r.graph.Len(),
		"edges", len(r.graph.Edges()),
		"interrupted", res.Interrupted)
	return res
}

func (r *Run) steps(ctx context.Context, res *Result) error {
	r.graph.Clear()

	r.progress.StartPhase(phaseCorrelate)
	correlator := correlation.NewCorrelator(nil, r.req.Correlation)
	corr, err := correlator.Correlate(ctx, r.req.Pairs, r.phase(ctx, phaseCorrelate))
	if err != nil {
		r.progress.FailPhase(phaseCorrelate)
		return fmt.Errorf("correlation: %w", err)
	}
	res.Correlation = corr
	r.progress.CompletePhase(phaseCorrelate)
	for _, loc := range params.Locations() {
		r.telemetry.RecordParams(loc.String(), len(corr.ByLocation(loc)))
	}

	r.progress.StartPhase(phaseClassify)
	r.setStatus(ctx, "Classifying secrets")
	all := corr.Params()
	r.secrets.Import(all)
	matched := r.secrets.ClassifyAll(ctx, all)
	r.progress.CompletePhase(phaseClassify)
	r.logger.Infow("Secrets classified", "params", len(all), "secret_params", len(matched))

	roots, mode := chooseRoots(r.req.TrackMode, corr)
	res.TrackMode = mode
	if err := ctx.Err(); err != nil {
		return err
	}

	vertices := make([]*tracker.TrackedParameter, 0, len(roots))
	for _, p := range roots {
		tp := tracker.NewTrackedParameter(p)
		r.graph.AddVertex(tp)
		vertices = append(vertices, tp)
	}
	res.Tracked = vertices

	r.progress.StartPhase(phaseTrack)
	job := tracker.New(nil, r.req.MinValueLength).StartTracked(ctx, vertices, r.phase(ctx, phaseTrack))
	// The job observes ctx itself; wait for it unconditionally so the graph is
	// never touched after this run returns.
	tracked, err := job.Wait(context.Background())

	for _, v := range tracked.Params {
		for _, origin := range v.Origins() {
			r.graph.AddEdge(origin, v)
		}
	}
	r.telemetry.RecordEdges(tracked.Edges)

	if err != nil {
		r.progress.FailPhase(phaseTrack)
		return fmt.Errorf("tracking interrupted after %d of %d parameters: %w", tracked.Processed, len(vertices), err)
	}
	r.progress.CompletePhase(phaseTrack)
	r.setStatus(ctx, fmt.Sprintf("Done: %d parameters, %d tracked, %d edges", corr.Len(), len(vertices), tracked.Edges))
	return nil
}

// chooseRoots picks the parameters that become graph vertices and returns
// the effective mode
func chooseRoots(mode string, corr *correlation.Result) ([]*correlation.CorrelatedParam, string) {
	switch mode {
	case config.TrackSecrets:
		return corr.ParamSecrets(), config.TrackSecrets
	case config.TrackAll:
		return corr.Params(), config.TrackAll
	default:
		if found := corr.ParamSecrets(); len(found) > 0 {
			return found, config.TrackSecrets
		}
		return corr.Params(), config.TrackAll
	}
}

func (r *Run) setStatus(ctx context.Context, status string) {
	r.mu.Lock()
	r.lastStat = status
	r.mu.Unlock()
	r.listener.SetStatus(status)
	r.logger.LogRunProgress(ctx, r.ID, r.progress.Overall(), status)
}

// phaseListener maps a step's own 0-100 progress onto its phase
type phaseListener struct {
	run   *Run
	ctx   context.Context
	phase string
}

func (r *Run) phase(ctx context.Context, name string) *phaseListener {
	return &phaseListener{run: r, ctx: ctx, phase: name}
}

func (p *phaseListener) SetStatus(status string) {
	p.run.setStatus(p.ctx, status)
}

func (p *phaseListener) SetProgress(percent int) {
	p.run.progress.UpdateProgress(p.phase, percent)
}
