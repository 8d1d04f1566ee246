package trigger

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/JonMunkholm/sheetload/internal/core"
	"github.com/JonMunkholm/sheetload/internal/logging"
	"github.com/JonMunkholm/sheetload/internal/source"
)

// SeenChecker reports whether an object already has a non-fatal run.
// runlog.Store implements it.
type SeenChecker interface {
	Seen(ctx context.Context, container, objectPath string) (bool, error)
}

// SweepSummary counts what one sweep did.
type SweepSummary struct {
	Listed     int `json:"listed"`
	Admitted   int `json:"admitted"`
	Seen       int `json:"seen"`
	Dispatched int `json:"dispatched"`
	Fatal      int `json:"fatal"`
}

// Sweeper periodically lists a container and dispatches every admitted
// object that has not been processed yet. It catches uploads the watcher
// missed, e.g. while the service was down.
type Sweeper struct {
	store     source.Store
	registry  *core.Registry
	handler   Handler
	seen      SeenChecker
	container string

	mu      sync.Mutex
	running bool
	done    map[string]bool // used when there is no SeenChecker
}

// NewSweeper creates a sweeper over one container. seen may be nil, in which
// case only objects handled by this process are skipped.
func NewSweeper(store source.Store, registry *core.Registry, handler Handler, seen SeenChecker, container string) *Sweeper {
	return &Sweeper{
		store:     store,
		registry:  registry,
		handler:   handler,
		seen:      seen,
		container: container,
		done:      make(map[string]bool),
	}
}

// Sweep runs one pass. Overlapping calls return immediately with a zero summary.
func (s *Sweeper) Sweep(ctx context.Context) (SweepSummary, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return SweepSummary{}, nil
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	ctx = logging.ContextWithOrigin(ctx, "sweep")
	logger := logging.FromContext(ctx)

	objects, err := s.store.List(ctx, s.container, "")
	if err != nil {
		return SweepSummary{}, fmt.Errorf("list %s: %w", s.container, err)
	}

	var sum SweepSummary
	sum.Listed = len(objects)
	for _, obj := range objects {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		if _, ok := s.registry.Match(obj.Path); !ok {
			continue
		}
		sum.Admitted++

		seen, err := s.alreadySeen(ctx, obj.Path)
		if err != nil {
			logger.Warn("run log lookup failed", "name", obj.Path, "error", err)
			continue
		}
		if seen {
			sum.Seen++
			continue
		}

		report := s.handler.Handle(ctx, NotificationFor(s.container, obj.Path))
		sum.Dispatched++
		if report.Status == core.StatusFatal {
			sum.Fatal++
			continue
		}
		s.mu.Lock()
		s.done[obj.Path] = true
		s.mu.Unlock()
	}

	logger.Info("sweep finished",
		"container", s.container,
		"listed", sum.Listed,
		"admitted", sum.Admitted,
		"seen", sum.Seen,
		"dispatched", sum.Dispatched,
		"fatal", sum.Fatal,
	)
	return sum, nil
}

func (s *Sweeper) alreadySeen(ctx context.Context, objectPath string) (bool, error) {
	s.mu.Lock()
	done := s.done[objectPath]
	s.mu.Unlock()
	if done {
		return true, nil
	}
	if s.seen == nil {
		return false, nil
	}
	return s.seen.Seen(ctx, s.container, objectPath)
}

// Schedule starts sweeping on a cron schedule ("*/5 * * * *" or "@every 5m").
// The returned cron must be stopped by the caller.
func (s *Sweeper) Schedule(ctx context.Context, spec string) (*cron.Cron, error) {
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		if _, err := s.Sweep(ctx); err != nil {
			logging.FromContext(ctx).Error("sweep failed", "container", s.container, "error", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", spec, err)
	}
	c.Start()
	return c, nil
}
