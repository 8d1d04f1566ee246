package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/sheetload/internal/logging"
)

// Status is the user-visible result of one invocation.
type Status string

const (
	StatusNoop    Status = "noop"    // object not admitted by any profile
	StatusEmpty   Status = "empty"   // no valid rows, nothing submitted
	StatusSuccess Status = "success" // every data row stored
	StatusPartial Status = "partial" // some rows rejected or some records refused by the sink
	StatusFatal   Status = "fatal"   // source unavailable, sink down or profile unusable
)

// Run is the record of one pipeline invocation.
type Run struct {
	ID         string       `json:"run_id"`
	Profile    string       `json:"profile"`
	Locator    Locator      `json:"-"`
	Result     *Result      `json:"result,omitempty"`
	Outcome    BatchOutcome `json:"outcome"`
	Err        error        `json:"-"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
}

// Status classifies the run.
func (r *Run) Status() Status {
	switch {
	case r.Err != nil || r.Outcome.Fatal:
		return StatusFatal
	case r.Outcome.Submitted == 0:
		return StatusEmpty
	case len(r.Outcome.Failures) > 0 || r.Rejected() > 0:
		return StatusPartial
	default:
		return StatusSuccess
	}
}

// Rejected returns the number of rows the normalizer turned away.
func (r *Run) Rejected() int {
	if r.Result == nil {
		return 0
	}
	return len(r.Result.Rejections)
}

// Duration returns how long the run took.
func (r *Run) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Pipeline runs fetch, normalize and submit for one object at a time.
// It holds no per-run state and may be shared between goroutines.
type Pipeline struct {
	source        GridSource
	sink          Sink
	now           func() time.Time
	referenceYear int
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) PipelineOption {
	return func(p *Pipeline) { p.now = now }
}

// WithReferenceYear pins the century-correction year instead of using the clock.
func WithReferenceYear(year int) PipelineOption {
	return func(p *Pipeline) { p.referenceYear = year }
}

// NewPipeline wires a grid source to a sink.
func NewPipeline(source GridSource, sink Sink, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{source: source, sink: sink, now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run processes one object under profile. The returned Run is never nil;
// a non-nil error means the run is fatal and Run.Err holds the same error.
func (p *Pipeline) Run(ctx context.Context, profile Profile, loc Locator) (*Run, error) {
	run := &Run{
		ID:        uuid.New().String(),
		Profile:   profile.Name,
		Locator:   loc,
		StartedAt: p.now(),
	}
	if run.Locator.Sheet == "" {
		run.Locator.Sheet = profile.Sheet
	}

	ctx = logging.ContextWithRunID(ctx, run.ID)
	logger := logging.WithFields(ctx, "profile", profile.Name, "object", run.Locator.String())

	fail := func(err error) (*Run, error) {
		run.Err = err
		run.FinishedAt = p.now()
		logger.Error("run failed", "error", err, "duration_ms", run.Duration().Milliseconds())
		return run, err
	}

	grid, err := p.source.FetchGrid(ctx, run.Locator)
	if err != nil {
		if !errors.Is(err, ErrSourceUnavailable) {
			err = fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
		}
		return fail(err)
	}

	norm := NewNormalizer(profile, p.referenceYearFor(ctx))
	res, err := norm.Normalize(grid)
	if err != nil {
		return fail(err)
	}
	run.Result = res

	logger.Debug("normalized",
		"data_rows", res.DataRows,
		"records", len(res.Records),
		"rejected", len(res.Rejections),
		"skipped_blank", res.Skipped,
	)

	out, err := Submit(ctx, p.sink, profile.Destination, res.Records)
	run.Outcome = out
	if err != nil {
		return fail(err)
	}

	run.FinishedAt = p.now()
	logger.Info("run finished",
		"status", run.Status(),
		"submitted", out.Submitted,
		"accepted", out.Accepted,
		"sink_failures", len(out.Failures),
		"rejected", run.Rejected(),
		"duration_ms", run.Duration().Milliseconds(),
	)
	return run, nil
}

func (p *Pipeline) referenceYearFor(ctx context.Context) int {
	if y := ReferenceYearFromContext(ctx); y > 0 {
		return y
	}
	if p.referenceYear > 0 {
		return p.referenceYear
	}
	return p.now().Year()
}
