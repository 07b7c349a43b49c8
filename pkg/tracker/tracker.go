package tracker

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/CodeMonkeyCybersecurity/paramflow/internal/logger"
	"github.com/CodeMonkeyCybersecurity/paramflow/pkg/capture"
	"github.com/CodeMonkeyCybersecurity/paramflow/pkg/correlation"
	"github.com/CodeMonkeyCybersecurity/paramflow/pkg/params"
)

const DefaultMinValueLength = 4

// Tracker runs provenance inference over a set of parameters. B is an origin
// of A when a response carrying A answered a request carrying B, or when A's
// value embeds B's value after B was observed in a response.
type Tracker struct {
	// MinValueLength bounds raw-text and containment matches so short values
	// like "1" do not link everything
	MinValueLength int

	logger *logger.Logger
}

func New(log *logger.Logger, minValueLength int) *Tracker {
	if log == nil {
		log = logger.Nop()
	}
	if minValueLength < 1 {
		minValueLength = DefaultMinValueLength
	}
	return &Tracker{MinValueLength: minValueLength, logger: log.WithComponent("tracker")}
}

// Result holds the tracked vertices. When Interrupted is set only the
// vertices before the interruption point have origins.
type Result struct {
	Params      []*TrackedParameter
	Processed   int
	Edges       int
	Interrupted bool
}

// Job is one asynchronous tracking pass
type Job struct {
	done   chan struct{}
	cancel context.CancelFunc
	result *Result
	err    error
}

// Done is closed once the job has finished
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Cancel interrupts the job between vertices
func (j *Job) Cancel() {
	j.cancel()
}

// Wait blocks until the job finishes or ctx ends. An interrupted job yields
// its partial result together with the cancellation error.
func (j *Job) Wait(ctx context.Context) (*Result, error) {
	select {
	case <-j.done:
		return j.result, j.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Start wraps params as vertices and tracks them in the background
func (t *Tracker) Start(ctx context.Context, ps []*correlation.CorrelatedParam, listener correlation.ProgressListener) *Job {
	vertices := make([]*TrackedParameter, len(ps))
	for i, p := range ps {
		vertices[i] = NewTrackedParameter(p)
	}
	return t.StartTracked(ctx, vertices, listener)
}

// StartTracked tracks caller owned vertices, e.g. the ones already in a graph
func (t *Tracker) StartTracked(ctx context.Context, vertices []*TrackedParameter, listener correlation.ProgressListener) *Job {
	ctx, cancel := context.WithCancel(ctx)
	job := &Job{done: make(chan struct{}), cancel: cancel}

	go func() {
		defer close(job.done)
		defer cancel()
		job.result, job.err = t.run(ctx, vertices, listener)
	}()
	return job
}

func (t *Tracker) run(ctx context.Context, vertices []*TrackedParameter, listener correlation.ProgressListener) (*Result, error) {
	start := time.Now()
	log := t.logger
	if scoped, ok := logger.FromContext(ctx); ok {
		log = scoped.WithComponent("tracker")
	}
	ctx, span := log.StartOperation(ctx, "tracker.Track", "params", len(vertices))

	result := &Result{Params: vertices}
	idx := newMessageIndex(vertices)
	total := len(vertices)

	var err error
	for i, a := range vertices {
		if err = ctx.Err(); err != nil {
			result.Interrupted = true
			break
		}

		origins := t.originsOf(a, vertices, idx)
		a.setOrigins(origins)
		result.Processed++
		result.Edges += len(origins)

		if listener != nil {
			listener.SetStatus(fmt.Sprintf("Tracking %s (%d/%d)", a.Param.RepresentativeName, i+1, total))
			listener.SetProgress((i + 1) * 100 / total)
		}
	}
	if total == 0 && listener != nil {
		listener.SetProgress(100)
	}

	log.FinishOperation(ctx, span, "tracker.Track", start, err,
		"processed", result.Processed,
		"edges", result.Edges,
		"interrupted", result.Interrupted)
	if err != nil {
		log.Warnw("Tracking interrupted", "processed", result.Processed, "total", total)
	}
	return result, err
}

// messageIndex answers "which tracked parameters appear in the request of message m"
type messageIndex struct {
	inRequest map[int]map[*TrackedParameter]bool
}

func newMessageIndex(vertices []*TrackedParameter) *messageIndex {
	idx := &messageIndex{inRequest: make(map[int]map[*TrackedParameter]bool)}
	for _, v := range vertices {
		for _, inst := range v.Param.Instances() {
			if inst.Direction != capture.Request {
				continue
			}
			m := inst.MessageIndex()
			if idx.inRequest[m] == nil {
				idx.inRequest[m] = make(map[*TrackedParameter]bool)
			}
			idx.inRequest[m][v] = true
		}
	}
	return idx
}

func (t *Tracker) originsOf(a *TrackedParameter, vertices []*TrackedParameter, idx *messageIndex) []*TrackedParameter {
	var origins []*TrackedParameter
	seen := make(map[*TrackedParameter]bool)
	add := func(b *TrackedParameter) {
		if !seen[b] {
			seen[b] = true
			origins = append(origins, b)
		}
	}

	aInstances := a.Param.Instances()
	for _, b := range vertices {
		if t.exchangeOrigin(a, b, aInstances, idx) || t.derivedFrom(a, b, aInstances) {
			add(b)
		}
	}
	return origins
}

// exchangeOrigin: some response carrying A answered a request carrying B, and
// B was seen no later than A's earliest instance
func (t *Tracker) exchangeOrigin(a, b *TrackedParameter, aInstances []*params.ParamInstance, idx *messageIndex) bool {
	bFirst := b.Param.Earliest()
	aFirst := a.Param.Earliest()
	if bFirst == nil || aFirst == nil || aFirst.Before(bFirst) {
		return false
	}
	for _, inst := range aInstances {
		if inst.Direction != capture.Response || inst.Message == nil {
			continue
		}
		m := inst.MessageIndex()
		requestSide := &params.ParamInstance{Message: inst.Message, Direction: capture.Request, ValueStart: len(inst.Message.Request)}
		if requestSide.Before(bFirst) {
			continue
		}
		if idx.inRequest[m][b] || t.requestContains(inst.Message, b) {
			return true
		}
	}
	return false
}

func (t *Tracker) requestContains(msg *capture.MessagePair, b *TrackedParameter) bool {
	candidates := []string{b.Param.DecodedValue}
	for _, inst := range b.Param.Instances() {
		if inst.RawValue != b.Param.DecodedValue {
			candidates = append(candidates, inst.RawValue)
		}
	}
	for _, c := range candidates {
		if len(c) >= t.MinValueLength && bytes.Contains(msg.Request, []byte(c)) {
			return true
		}
	}
	return false
}

// derivedFrom: A's value embeds B's value and B was handed out in a response
// before A was first sent
func (t *Tracker) derivedFrom(a, b *TrackedParameter, aInstances []*params.ParamInstance) bool {
	if a == b {
		return false
	}
	bv := b.Param.DecodedValue
	if len(bv) < t.MinValueLength || !strings.Contains(a.Param.DecodedValue, bv) {
		return false
	}

	var aFirstRequest *params.ParamInstance
	for _, inst := range aInstances {
		if inst.Direction == capture.Request {
			aFirstRequest = inst
			break
		}
	}
	if aFirstRequest == nil {
		return false
	}

	bResponse := b.Param.FirstIn(capture.Response)
	return bResponse != nil && bResponse.Before(aFirstRequest)
}
