package tasks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/i474232898/regional-weather/internal/metrics"
	"github.com/i474232898/regional-weather/internal/weather"
)

// Options tunes the gateway.
type Options struct {
	Workers     int
	QueueSize   int
	MaxAttempts int
	// RunTimeout bounds a single attempt (0 = no bound).
	RunTimeout time.Duration
	// RetryDelay is the pause before a failed attempt is re-run.
	RetryDelay time.Duration
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = 1
	}
	if o.QueueSize <= 0 {
		o.QueueSize = 1
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 1
	}
	return o
}

type job struct {
	state TaskState
}

// Gateway accepts ingestion batches, runs them on a fixed worker pool and
// records their state. Execution is at-least-once: a failed attempt is
// re-run with the same run id.
type Gateway struct {
	runner   Runner
	statuses StatusStore
	opts     Options
	logger   logrus.FieldLogger
	metrics  *metrics.Metrics

	queue chan job
	wg    sync.WaitGroup

	mu      sync.RWMutex
	closed  bool
	started bool
}

// New creates a gateway. Call Start to launch the workers.
func New(runner Runner, statuses StatusStore, opts Options, logger logrus.FieldLogger, m *metrics.Metrics) *Gateway {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	opts = opts.withDefaults()
	return &Gateway{
		runner:   runner,
		statuses: statuses,
		opts:     opts,
		logger:   logger,
		metrics:  m,
		queue:    make(chan job, opts.QueueSize),
	}
}

// Start launches the workers. Runs are bound to ctx.
func (g *Gateway) Start(ctx context.Context) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.started || g.closed {
		return
	}
	g.started = true

	for i := 0; i < g.opts.Workers; i++ {
		g.wg.Add(1)
		go func() {
			defer g.wg.Done()
			for j := range g.queue {
				g.execute(ctx, j)
			}
		}()
	}
	g.logger.WithField("workers", g.opts.Workers).Info("task gateway started")
}

// Submit records a PENDING task for cities and queues it. The returned id is
// also the run id of the ingestion.
func (g *Gateway) Submit(ctx context.Context, cities []string) (string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.closed {
		return "", ErrGatewayClosed
	}

	now := time.Now().UTC()
	state := TaskState{
		ID:          uuid.NewString(),
		Status:      StatusPending,
		Cities:      append([]string(nil), cities...),
		SubmittedAt: now,
		UpdatedAt:   now,
	}
	if err := g.statuses.Put(ctx, state); err != nil {
		return "", fmt.Errorf("record task: %w", err)
	}

	select {
	case g.queue <- job{state: state}:
	default:
		if err := g.statuses.Delete(ctx, state.ID); err != nil {
			g.logger.WithError(err).WithField("task_id", state.ID).Warn("failed to drop rejected task")
		}
		return "", ErrQueueFull
	}

	g.logger.WithFields(logrus.Fields{
		"task_id": state.ID,
		"cities":  len(cities),
	}).Info("task submitted")
	return state.ID, nil
}

// Status returns the current state of a task.
func (g *Gateway) Status(ctx context.Context, id string) (TaskState, error) {
	return g.statuses.Get(ctx, id)
}

// Stop refuses new tasks, lets the workers drain the queue and waits for them.
func (g *Gateway) Stop() {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return
	}
	g.closed = true
	close(g.queue)
	g.mu.Unlock()

	g.wg.Wait()
	g.logger.Info("task gateway stopped")
}

func (g *Gateway) execute(ctx context.Context, j job) {
	state := j.state
	log := g.logger.WithField("task_id", state.ID)
	start := time.Now()

	var retry backoff.BackOff = &backoff.ZeroBackOff{}
	if g.opts.RetryDelay > 0 {
		retry = backoff.NewConstantBackOff(g.opts.RetryDelay)
	}
	retry = backoff.WithContext(backoff.WithMaxRetries(retry, uint64(g.opts.MaxAttempts-1)), ctx)

	err := backoff.RetryNotify(func() error {
		state.Attempts++
		state.Status = StatusRunning
		state.Error = ""
		g.save(ctx, log, state)

		manifest, err := g.attempt(ctx, state)
		if err != nil {
			return err
		}
		state.Manifest = &manifest
		return nil
	}, retry, func(err error, wait time.Duration) {
		log.WithError(err).WithFields(logrus.Fields{
			"attempt": state.Attempts,
			"wait":    wait.String(),
		}).Warn("ingestion attempt failed; retrying")
	})

	status := "success"
	if err != nil {
		status = "failure"
		state.Status = StatusFailure
		state.Error = err.Error()
		log.WithError(err).WithField("attempts", state.Attempts).Error("task failed")
	} else {
		state.Status = StatusSuccess
		log.WithFields(logrus.Fields{
			"attempts":   state.Attempts,
			"partitions": len(state.Manifest.Partitions),
			"succeeded":  state.Manifest.Succeeded(),
			"failed":     state.Manifest.Failed(),
		}).Info("task finished")
	}
	g.save(context.WithoutCancel(ctx), log, state)
	g.metrics.ObserveRun(status, time.Since(start))
}

// attempt runs the batch once, turning a runner panic into an error.
func (g *Gateway) attempt(ctx context.Context, state TaskState) (manifest weather.RunManifest, err error) {
	if g.opts.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.opts.RunTimeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrRunPanicked, r)
		}
	}()

	return g.runner.Run(ctx, state.ID, state.Cities)
}

func (g *Gateway) save(ctx context.Context, log logrus.FieldLogger, state TaskState) {
	state.UpdatedAt = time.Now().UTC()
	if err := g.statuses.Put(ctx, state); err != nil {
		log.WithError(err).WithField("status", state.Status).Error("failed to record task state")
	}
}
