// Package looper runs the acquisition loop. One goroutine owns every result,
// the writer and the controllers, and ticks them at a fixed cadence. Readers
// such as the terminal display and telemetry only ever see immutable
// snapshots handed off after each step.
package looper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/softboiler/boilerdaq/internal/controller"
	"github.com/softboiler/boilerdaq/internal/result"
)

// State is the lifecycle state of a Looper.
type State int32

const (
	Idle State = iota
	Running
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// ErrState is returned when Start is called on a looper that is not idle.
var ErrState = errors.New("looper already started")

// Updater advances results and persists them. *store.Writer is one.
type Updater interface {
	Update(ctx context.Context) error
}

// Sink receives a snapshot after every tick.
type Sink interface {
	Publish(ctx context.Context, s *Snapshot) error
}

// Looper ticks a writer and controllers at a fixed interval.
type Looper struct {
	graph       *result.Graph
	writer      Updater
	controllers []*controller.Controller
	sinks       []Sink
	interval    time.Duration
	log         *zap.Logger
	now         func() time.Time

	state   atomic.Int32
	snap    atomic.Pointer[Snapshot]
	updates chan struct{}
	tick    uint64

	mu       sync.Mutex
	cancel   context.CancelFunc
	group    *errgroup.Group
	done     chan struct{}
	stopOnce sync.Once
	stopErr  error
}

// Option configures a Looper.
type Option func(*Looper)

// WithControllers adds controllers updated after the writer on every tick.
func WithControllers(cs ...*controller.Controller) Option {
	return func(l *Looper) { l.controllers = append(l.controllers, cs...) }
}

// WithSinks adds sinks that receive every post-tick snapshot.
func WithSinks(sinks ...Sink) Option {
	return func(l *Looper) { l.sinks = append(l.sinks, sinks...) }
}

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(l *Looper) { l.log = log }
}

// New returns an idle looper over the results of g, persisted by w.
func New(g *result.Graph, w Updater, interval time.Duration, opts ...Option) *Looper {
	l := &Looper{
		graph:    g,
		writer:   w,
		interval: interval,
		log:      zap.NewNop(),
		now:      time.Now,
		updates:  make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.snap.Store(takeSnapshot(0, l.now(), g.Results()))
	return l
}

// State returns the current lifecycle state.
func (l *Looper) State() State { return State(l.state.Load()) }

// Snapshot returns the latest published snapshot. It never returns nil.
func (l *Looper) Snapshot() *Snapshot { return l.snap.Load() }

// Updates signals whenever a new snapshot is published. Signals coalesce:
// a slow reader sees one pending signal, not one per tick.
func (l *Looper) Updates() <-chan struct{} { return l.updates }

// Done is closed when the tick goroutine has exited.
func (l *Looper) Done() <-chan struct{} { return l.done }

// Start opens the controlled hardware and begins ticking. The first tick
// fires one interval after Start.
func (l *Looper) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.state.CompareAndSwap(int32(Idle), int32(Running)) {
		return ErrState
	}
	for _, c := range l.controllers {
		if err := c.Start(ctx); err != nil {
			l.state.Store(int32(Stopped))
			close(l.done)
			return multierr.Append(fmt.Errorf("start controller: %w", err), l.release())
		}
	}

	ctx, l.cancel = context.WithCancel(ctx)
	var gctx context.Context
	l.group, gctx = errgroup.WithContext(ctx)
	l.group.Go(func() error {
		defer close(l.done)
		return l.loop(gctx)
	})
	l.log.Info("looper started", zap.Duration("interval", l.interval), zap.Int("controllers", len(l.controllers)))
	return nil
}

// Run starts the looper and blocks until ctx is cancelled or a tick fails
// fatally, then stops it.
func (l *Looper) Run(ctx context.Context) error {
	if err := l.Start(ctx); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
	case <-l.done:
	}
	return l.Stop()
}

// Stop ends ticking, waits for the tick in flight to finish and releases
// hardware. It returns the error that ended the loop, if any. Stop is safe
// to call more than once and on a looper that never started.
func (l *Looper) Stop() error {
	l.stopOnce.Do(func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		prev := State(l.state.Swap(int32(Stopped)))
		if prev != Running {
			if prev == Idle {
				close(l.done)
			}
			return
		}
		l.cancel()
		err := l.group.Wait()
		if errors.Is(err, context.Canceled) {
			err = nil
		}
		l.stopErr = multierr.Append(err, l.release())
		l.log.Info("looper stopped", zap.Uint64("ticks", l.tick), zap.Error(l.stopErr))
	})
	return l.stopErr
}

func (l *Looper) release() error {
	var errs error
	for _, c := range l.controllers {
		errs = multierr.Append(errs, c.Close())
	}
	errs = multierr.Append(errs, l.graph.Close())
	if c, ok := l.writer.(io.Closer); ok {
		errs = multierr.Append(errs, c.Close())
	}
	return errs
}

func (l *Looper) loop(ctx context.Context) error {
	timer := time.NewTimer(l.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
		if l.State() != Running {
			return nil
		}

		// A tick in flight finishes even when Stop cancels ctx; its hardware
		// I/O is bounded by the read and instrument timeouts.
		start := l.now()
		if err := l.step(context.WithoutCancel(ctx)); err != nil {
			return err
		}
		// An overrunning tick delays the next one instead of overlapping.
		wait := l.interval - l.now().Sub(start)
		if wait < 0 {
			wait = 0
		}
		timer.Reset(wait)
	}
}

// step runs one tick: refresh the display from the values already
// buffered, persist, control, then hand the fresh values to sinks.
func (l *Looper) step(ctx context.Context) error {
	l.tick++
	l.publish(takeSnapshot(l.tick, l.now(), l.graph.Results()))

	if err := l.writer.Update(ctx); err != nil {
		l.log.Warn("write failed", zap.Error(err))
	}
	for _, c := range l.controllers {
		if err := c.Update(ctx); err != nil {
			if controller.IsSafetyAbort(err) {
				return err
			}
			l.log.Warn("control degraded", zap.Error(err))
		}
	}

	if len(l.sinks) == 0 {
		return nil
	}
	snap := takeSnapshot(l.tick, l.now(), l.graph.Results())
	for _, s := range l.sinks {
		if err := s.Publish(ctx, snap); err != nil {
			l.log.Warn("publish failed", zap.Error(err))
		}
	}
	return nil
}

func (l *Looper) publish(s *Snapshot) {
	l.snap.Store(s)
	select {
	case l.updates <- struct{}{}:
	default:
	}
}
