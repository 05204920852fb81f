// Package tasks runs ingestion batches asynchronously and tracks their state.
package tasks

import (
	"context"
	"errors"
	"time"

	"github.com/i474232898/regional-weather/internal/weather"
)

// Status is the lifecycle state of a submitted task.
type Status string

const (
	StatusPending Status = "PENDING"
	StatusRunning Status = "RUNNING"
	StatusSuccess Status = "SUCCESS"
	StatusFailure Status = "FAILURE"
)

var (
	ErrTaskNotFound  = errors.New("task not found")
	ErrQueueFull     = errors.New("task queue is full")
	ErrGatewayClosed = errors.New("task gateway is stopped")
	ErrRunPanicked   = errors.New("ingestion run panicked")
)

// TaskState is the stored view of a task. The task id doubles as the run id
// of every ingestion attempt.
type TaskState struct {
	ID          string               `json:"task_id"`
	Status      Status               `json:"status"`
	Cities      []string             `json:"cities,omitempty"`
	Attempts    int                  `json:"attempts"`
	Manifest    *weather.RunManifest `json:"manifest,omitempty"`
	Error       string               `json:"error,omitempty"`
	SubmittedAt time.Time            `json:"submitted_at"`
	UpdatedAt   time.Time            `json:"updated_at"`
}

// StatusStore persists task states. Get returns ErrTaskNotFound for unknown
// or expired ids.
type StatusStore interface {
	Put(ctx context.Context, state TaskState) error
	Get(ctx context.Context, id string) (TaskState, error)
	Delete(ctx context.Context, id string) error
}

// Runner executes one ingestion attempt.
type Runner interface {
	Run(ctx context.Context, runID string, cities []string) (weather.RunManifest, error)
}
