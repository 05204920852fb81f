package scheduler

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/sirupsen/logrus"
)

const submitTimeout = 30 * time.Second

// Submitter queues an ingestion batch and returns its task id.
type Submitter interface {
	Submit(ctx context.Context, cities []string) (string, error)
}

// Scheduler periodically submits the configured cities for ingestion.
type Scheduler struct {
	scheduler *gocron.Scheduler
	submitter Submitter
	cities    []string
	interval  time.Duration
	logger    logrus.FieldLogger
}

// New creates a new Scheduler.
func New(cities []string, interval time.Duration, submitter Submitter, logger logrus.FieldLogger) *Scheduler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		submitter: submitter,
		cities:    cities,
		interval:  interval,
		logger:    logger.WithField("component", "scheduler"),
	}
}

// Start schedules the periodic job and starts the underlying scheduler.
// The first batch is submitted right away.
func (s *Scheduler) Start() error {
	if s.interval <= 0 || len(s.cities) == 0 {
		s.logger.Info("no interval or cities configured; nothing to schedule")
		return nil
	}

	_, err := s.scheduler.Every(s.interval).Do(s.submit)
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	s.logger.WithFields(logrus.Fields{
		"interval": s.interval.String(),
		"cities":   len(s.cities),
	}).Info("scheduled ingestion started")
	return nil
}

func (s *Scheduler) submit() {
	ctx, cancel := context.WithTimeout(context.Background(), submitTimeout)
	defer cancel()

	id, err := s.submitter.Submit(ctx, s.cities)
	if err != nil {
		s.logger.WithError(err).Error("scheduled submit failed")
		return
	}
	s.logger.WithField("task_id", id).Info("scheduled batch submitted")
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
