// pkg/correlation/correlator.go
package correlation

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/CodeMonkeyCybersecurity/paramflow/internal/logger"
	"github.com/CodeMonkeyCybersecurity/paramflow/internal/worker"
	"github.com/CodeMonkeyCybersecurity/paramflow/pkg/capture"
	"github.com/CodeMonkeyCybersecurity/paramflow/pkg/params"
)

// ProgressListener receives status text and 0-100 progress from long running
// steps. Implementations must not block.
type ProgressListener interface {
	SetStatus(status string)
	SetProgress(percent int)
}

// Diagnostic records a message that was skipped for one location
type Diagnostic struct {
	MessageIndex int
	URL          string
	Location     params.Location
	Err          error
}

func (d Diagnostic) Error() string {
	return fmt.Sprintf("message %d (%s) %s: %v", d.MessageIndex, d.URL, d.Location, d.Err)
}

func (d Diagnostic) Unwrap() error {
	return d.Err
}

type Options struct {
	// IgnoreNames drops parameters by exact, case-insensitive name
	IgnoreNames []string
	IgnoreEmpty bool
	// ShowDecoded only changes DisplayValue; grouping always uses decoded values
	ShowDecoded bool
	Workers     int
	// Locations defaults to every location
	Locations []params.Location
}

func DefaultOptions() Options {
	return Options{
		IgnoreNames: []string{"__VIEWSTATE", "__VIEWSTATEGENERATOR"},
		ShowDecoded: true,
		Workers:     4,
	}
}

// Correlator groups parameter instances across a capture by decoded value
type Correlator struct {
	logger    *logger.Logger
	extractor params.Extractor
	opts      Options
	ignore    map[string]struct{}
}

func NewCorrelator(log *logger.Logger, opts Options) *Correlator {
	if log == nil {
		log = logger.Nop()
	}
	if len(opts.Locations) == 0 {
		opts.Locations = params.Locations()
	}
	ignore := make(map[string]struct{}, len(opts.IgnoreNames))
	for _, name := range opts.IgnoreNames {
		if name = strings.TrimSpace(name); name != "" {
			ignore[strings.ToLower(name)] = struct{}{}
		}
	}
	return &Correlator{
		logger:    log.WithComponent("correlator"),
		extractor: params.NewHTTPExtractor(),
		opts:      opts,
		ignore:    ignore,
	}
}

// WithExtractor swaps the message decomposer
func (c *Correlator) WithExtractor(e params.Extractor) *Correlator {
	c.extractor = e
	return c
}

func (c *Correlator) Options() Options {
	return c.opts
}

// loggerFor prefers a logger the caller scoped to ctx
func (c *Correlator) loggerFor(ctx context.Context) *logger.Logger {
	if log, ok := logger.FromContext(ctx); ok {
		return log.WithComponent("correlator")
	}
	return c.logger
}

type extraction struct {
	instances   []*params.ParamInstance
	diagnostics []Diagnostic
}

// Correlate extracts every configured location from pairs and groups the
// instances. Messages that fail to parse are skipped and recorded as
// diagnostics. Extraction runs on the worker pool; grouping happens in
// capture order so results are deterministic.
func (c *Correlator) Correlate(ctx context.Context, pairs []*capture.MessagePair, listener ProgressListener) (*Result, error) {
	start := time.Now()
	log := c.loggerFor(ctx)
	ctx, span := log.StartOperation(ctx, "correlation.Correlate", "messages", len(pairs))

	result := newResult(c.opts.ShowDecoded)
	extracted := make([]extraction, len(pairs))
	total := len(pairs)

	notify(listener, fmt.Sprintf("Correlating %d messages", total), 0)

	pool := worker.NewPool(c.opts.Workers, log)
	err := pool.Ordered(ctx, total,
		func(ctx context.Context, i int) error {
			extracted[i] = c.extract(pairs[i])
			return nil
		},
		func(i int) error {
			for _, d := range extracted[i].diagnostics {
				log.Warnw("Skipping unparsable message",
					"message", d.MessageIndex,
					"url", d.URL,
					"location", d.Location.String(),
					"error", d.Err)
				result.addDiagnostic(d)
			}
			for _, inst := range extracted[i].instances {
				result.add(inst)
			}
			result.countMessage()
			extracted[i] = extraction{}

			notify(listener, fmt.Sprintf("Correlated message %d/%d", i+1, total), (i+1)*100/total)
			return nil
		})

	log.FinishOperation(ctx, span, "correlation.Correlate", start, err,
		"params", result.Len(),
		"diagnostics", len(result.Diagnostics()))
	if err != nil {
		return nil, err
	}

	if total == 0 {
		notify(listener, "Nothing to correlate", 100)
	}

	log.LogDuration(ctx, "correlation.Correlate", start,
		"messages", total,
		"params", result.Len(),
		"diagnostics", len(result.Diagnostics()))

	return result, nil
}

func (c *Correlator) extract(pair *capture.MessagePair) extraction {
	var out extraction
	for _, loc := range c.opts.Locations {
		found, err := c.extractor.Extract(pair, loc)
		if err != nil {
			out.diagnostics = append(out.diagnostics, Diagnostic{
				MessageIndex: pair.Index,
				URL:          pair.URL,
				Location:     loc,
				Err:          err,
			})
			continue
		}
		for _, inst := range found {
			if c.skip(inst) {
				continue
			}
			out.instances = append(out.instances, inst)
		}
	}
	sort.SliceStable(out.instances, func(i, j int) bool {
		return out.instances[i].Before(out.instances[j])
	})
	return out
}

func (c *Correlator) skip(inst *params.ParamInstance) bool {
	if _, ok := c.ignore[strings.ToLower(inst.Name)]; ok {
		return true
	}
	return c.opts.IgnoreEmpty && inst.DecodedValue == ""
}

func notify(l ProgressListener, status string, percent int) {
	if l == nil {
		return
	}
	l.SetStatus(status)
	l.SetProgress(percent)
}
