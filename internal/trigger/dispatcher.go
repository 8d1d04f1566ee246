package trigger

import (
	"context"
	"errors"
	"time"

	"github.com/JonMunkholm/sheetload/internal/core"
	"github.com/JonMunkholm/sheetload/internal/logging"
)

// Runner executes one pipeline invocation. core.Pipeline implements it.
type Runner interface {
	Run(ctx context.Context, profile core.Profile, loc core.Locator) (*core.Run, error)
}

// Recorder persists finished runs. runlog.Store implements it.
type Recorder interface {
	Record(ctx context.Context, run *core.Run) error
}

// Handler processes one notification.
type Handler interface {
	Handle(ctx context.Context, n Notification) Report
}

// Report is the user-visible result of one notification.
type Report struct {
	RunID      string                `json:"run_id,omitempty"`
	Status     core.Status           `json:"status"`
	Profile    string                `json:"profile,omitempty"`
	Bucket     string                `json:"bucket"`
	Name       string                `json:"name"`
	DataRows   int                   `json:"data_rows"`
	Rejected   int                   `json:"rejected"`
	Submitted  int                   `json:"submitted"`
	Accepted   int                   `json:"accepted"`
	Rejections []core.RejectionEntry `json:"rejections,omitempty"`
	Failures   []core.Failure        `json:"failures,omitempty"`
	DurationMS int64                 `json:"duration_ms"`
	Error      *core.UserMessage     `json:"error,omitempty"`

	// Err is the underlying error of a fatal report.
	Err error `json:"-"`
}

// Busy reports whether the notification was turned away by the invocation limit.
func (r Report) Busy() bool {
	return errors.Is(r.Err, core.ErrTooManyInvocations)
}

// Dispatcher routes notifications to the matching profile and runs the pipeline.
type Dispatcher struct {
	registry *core.Registry
	runner   Runner
	limiter  *core.InvocationLimiter
	recorder Recorder
	timeout  time.Duration
	pinned   *core.Profile
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithLimiter bounds concurrent invocations.
func WithLimiter(l *core.InvocationLimiter) DispatcherOption {
	return func(d *Dispatcher) { d.limiter = l }
}

// WithRecorder stores every run that reached the pipeline.
func WithRecorder(r Recorder) DispatcherOption {
	return func(d *Dispatcher) { d.recorder = r }
}

// WithTimeout caps one invocation. Zero means no cap.
func WithTimeout(timeout time.Duration) DispatcherOption {
	return func(d *Dispatcher) { d.timeout = timeout }
}

// WithProfile runs every notification under p instead of matching by path.
func WithProfile(p core.Profile) DispatcherOption {
	return func(d *Dispatcher) { d.pinned = &p }
}

// NewDispatcher creates a dispatcher over the registry's profiles.
func NewDispatcher(registry *core.Registry, runner Runner, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{registry: registry, runner: runner}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Handle runs the pipeline for one notification. Objects no profile admits
// are a no-op. The report is always complete; fatal reports carry Err.
func (d *Dispatcher) Handle(ctx context.Context, n Notification) Report {
	objectPath := n.ObjectPath()
	report := Report{Status: core.StatusNoop, Bucket: n.Bucket, Name: objectPath}
	logger := logging.WithFields(ctx, "bucket", n.Bucket, "name", objectPath)

	if n.Empty() {
		logger.Debug("empty notification")
		return report
	}

	profile, ok := d.profileFor(objectPath)
	if !ok {
		logger.Debug("object not admitted by any profile")
		return report
	}
	report.Profile = profile.Name

	if d.limiter != nil {
		if err := d.limiter.Acquire(ctx); err != nil {
			logger.Warn("invocation rejected", "profile", profile.Name, "error", err)
			return fatalReport(report, err)
		}
		defer d.limiter.Release()
	}

	runCtx := ctx
	if d.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	run, err := d.runner.Run(runCtx, profile, core.Locator{Container: n.Bucket, Path: objectPath})
	if run == nil {
		return fatalReport(report, err)
	}

	if d.recorder != nil {
		if recErr := d.recorder.Record(context.WithoutCancel(ctx), run); recErr != nil {
			logger.Error("failed to record run", "run_id", run.ID, "error", recErr)
		}
	}

	return fromRun(report, run)
}

func (d *Dispatcher) profileFor(objectPath string) (core.Profile, bool) {
	if d.pinned != nil {
		return *d.pinned, true
	}
	return d.registry.Match(objectPath)
}

func fromRun(report Report, run *core.Run) Report {
	report.RunID = run.ID
	report.Status = run.Status()
	report.Rejected = run.Rejected()
	report.Submitted = run.Outcome.Submitted
	report.Accepted = run.Outcome.Accepted
	report.Failures = run.Outcome.Failures
	report.DurationMS = run.Duration().Milliseconds()
	if run.Result != nil {
		report.DataRows = run.Result.DataRows
		report.Rejections = run.Result.Rejections
	}
	if run.Err != nil {
		msg := core.MapError(run.Err)
		report.Error = &msg
		report.Err = run.Err
	}
	return report
}

func fatalReport(report Report, err error) Report {
	if err == nil {
		err = errors.New("run produced no result")
	}
	msg := core.MapError(err)
	report.Status = core.StatusFatal
	report.Error = &msg
	report.Err = err
	return report
}
