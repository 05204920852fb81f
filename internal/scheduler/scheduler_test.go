package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSubmitter struct {
	mu      sync.Mutex
	batches [][]string
}

func (r *recordingSubmitter) Submit(_ context.Context, cities []string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, cities)
	return "task-1", nil
}

func (r *recordingSubmitter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.batches)
}

func TestSchedulerSubmitsImmediately(t *testing.T) {
	logger, _ := test.NewNullLogger()
	sub := &recordingSubmitter{}
	s := New([]string{"Kyiv", "Lviv"}, time.Hour, sub, logger)

	require.NoError(t, s.Start())
	defer s.Stop()

	require.Eventually(t, func() bool { return sub.count() == 1 }, 2*time.Second, 10*time.Millisecond)

	sub.mu.Lock()
	defer sub.mu.Unlock()
	assert.Equal(t, []string{"Kyiv", "Lviv"}, sub.batches[0])
}

func TestSchedulerDisabled(t *testing.T) {
	logger, hook := test.NewNullLogger()
	sub := &recordingSubmitter{}

	require.NoError(t, New(nil, time.Hour, sub, logger).Start())
	require.NoError(t, New([]string{"Kyiv"}, 0, sub, logger).Start())

	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, sub.count())
	assert.Len(t, hook.AllEntries(), 2)
}
