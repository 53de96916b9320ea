package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Func is one unit of periodic work. Errors are logged and counted; they never stop
// the task.
type Func func(ctx context.Context) error

// Task runs a Func immediately and then on a fixed interval until stopped. Stop cancels
// the in-flight run and waits for the loop to exit, so nothing writes state after it.
type Task struct {
	name     string
	interval time.Duration
	timeout  time.Duration
	fn       Func
	logger   *zap.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	trigger chan struct{}
}

// Config holds task configuration.
type Config struct {
	Name     string
	Interval time.Duration
	// Timeout bounds a single run. Zero means the interval.
	Timeout time.Duration
	Func    Func
	Logger  *zap.Logger
}

// ErrAlreadyRunning is returned by Start on a task that has not been stopped.
var ErrAlreadyRunning = errors.New("task already running")

// New creates a new periodic task.
func New(cfg *Config) (*Task, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}

	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	if cfg.Func == nil {
		return nil, errors.New("func cannot be nil")
	}

	if cfg.Interval <= 0 {
		return nil, errors.New("interval must be positive")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = cfg.Interval
	}

	return &Task{
		name:     cfg.Name,
		interval: cfg.Interval,
		timeout:  timeout,
		fn:       cfg.Func,
		logger:   cfg.Logger.With(zap.String("task", cfg.Name)),
	}, nil
}

// Start launches the loop. The task stops when ctx is cancelled or Stop is called.
func (t *Task) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cancel != nil {
		return ErrAlreadyRunning
	}

	loopCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.done = make(chan struct{})
	t.trigger = make(chan struct{}, 1)

	go t.loop(loopCtx, t.done, t.trigger)

	return nil
}

// Stop cancels the loop and blocks until it has exited. Safe to call more than once.
func (t *Task) Stop() {
	t.mu.Lock()
	cancel, done := t.cancel, t.done
	t.cancel = nil
	t.done = nil
	t.mu.Unlock()

	if cancel == nil {
		return
	}

	cancel()
	<-done
}

// Trigger requests an immediate run without waiting for the next tick. Requests made
// while one is already pending are coalesced.
func (t *Task) Trigger() {
	t.mu.Lock()
	trigger := t.trigger
	running := t.cancel != nil
	t.mu.Unlock()

	if !running {
		return
	}

	select {
	case trigger <- struct{}{}:
	default:
	}
}

// Running reports whether the loop is active.
func (t *Task) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancel != nil
}

func (t *Task) loop(ctx context.Context, done chan struct{}, trigger <-chan struct{}) {
	defer close(done)

	t.logger.Debug("task-starting", zap.Duration("interval", t.interval))
	TasksRunning.WithLabelValues(t.name).Inc()
	defer TasksRunning.WithLabelValues(t.name).Dec()

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	t.run(ctx)

	for {
		select {
		case <-ctx.Done():
			t.logger.Debug("task-stopping")
			return
		case <-ticker.C:
			t.run(ctx)
		case <-trigger:
			t.run(ctx)
		}
	}
}

func (t *Task) run(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	start := time.Now()
	runCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	err := t.fn(runCtx)
	RunDuration.WithLabelValues(t.name).Observe(time.Since(start).Seconds())

	if err != nil {
		if ctx.Err() != nil {
			return
		}
		RunsTotal.WithLabelValues(t.name, "error").Inc()
		t.logger.Warn("task-run-failed", zap.Error(err))
		return
	}

	RunsTotal.WithLabelValues(t.name, "success").Inc()
}
