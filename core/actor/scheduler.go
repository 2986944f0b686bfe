package actor

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

type taskFunc func()

// Scheduler runs invoked effects off the tree loop, capped at a maximum
// number of concurrent tasks.
type Scheduler interface {
	Schedule(f taskFunc)
	// Wait blocks until all in-flight tasks complete.
	Wait()
}

type scheduler struct {
	ctx      context.Context
	log      *slog.Logger
	inflight atomic.Int32
	sem      chan struct{}
	max      int

	wg sync.WaitGroup

	tree    string
	metrics TreeMetrics
}

func (s *scheduler) Schedule(f taskFunc) {
	select {
	case <-s.ctx.Done():
		return
	default:
	}

	s.wg.Add(1)

	go func() {
		defer s.wg.Done()

		if s.sem != nil {
			select {
			case <-s.ctx.Done():
				return
			case s.sem <- struct{}{}:
			}
			defer func() { <-s.sem }()
		}

		count := s.inflight.Add(1)
		s.metrics.EffectInflight(s.tree, int(count))
		defer func() {
			count := s.inflight.Add(-1)
			s.metrics.EffectInflight(s.tree, int(count))
		}()

		s.runTask(f)
	}()
}

func (s *scheduler) runTask(f taskFunc) {
	defer s.metrics.EffectDuration().ObserveDuration()

	defer func() {
		if r := recover(); r != nil {
			s.metrics.EffectCompleted(false)
			s.log.Error("scheduled effect panicked", slog.Any("recovered", r))
			return
		}
	}()

	f()
	s.metrics.EffectCompleted(true)
}

func (s *scheduler) Wait() {
	s.wg.Wait()
}

// NewScheduler creates a scheduler limiting concurrent tasks to max. If
// max <= 0, concurrency is unlimited. Cancellation of ctx stops admission of
// new tasks.
func NewScheduler(ctx context.Context, max int, tree string, m TreeMetrics) Scheduler {
	var sem chan struct{}
	if max > 0 {
		sem = make(chan struct{}, max)
	}
	if m == nil {
		m = NopTreeMetrics()
	}
	return &scheduler{
		ctx:     ctx,
		sem:     sem,
		max:     max,
		log:     slog.Default(),
		tree:    tree,
		metrics: m,
	}
}
