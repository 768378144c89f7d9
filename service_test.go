package newsledger

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type blockingCycler struct {
	calls   atomic.Int32
	release chan struct{}
	started chan struct{}
	once    sync.Once
}

func newBlockingCycler() *blockingCycler {
	return &blockingCycler{release: make(chan struct{}), started: make(chan struct{})}
}

func (b *blockingCycler) RunCycle(ctx context.Context) *CycleReport {
	b.calls.Add(1)
	b.once.Do(func() { close(b.started) })
	select {
	case <-b.release:
	case <-ctx.Done():
	}
	return &CycleReport{StartedAt: time.Now(), FinishedAt: time.Now()}
}

type countingCycler struct {
	calls atomic.Int32
}

func (c *countingCycler) RunCycle(context.Context) *CycleReport {
	c.calls.Add(1)
	return &CycleReport{}
}

func TestParseSchedule(t *testing.T) {
	for _, spec := range []string{"@every 6h", "0 */6 * * *", "@daily"} {
		_, err := ParseSchedule(spec)
		assert.NoError(t, err, spec)
	}

	_, err := ParseSchedule("every six hours")
	assert.Error(t, err)
}

func TestNewService_InvalidSchedule(t *testing.T) {
	_, err := NewService(&countingCycler{}, "not a schedule", nil)
	assert.Error(t, err)
}

func TestService_RunsImmediatelyAndStops(t *testing.T) {
	cycler := &countingCycler{}
	service, err := NewService(cycler, "", nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultSchedule, service.Status().Schedule)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- service.Run(ctx) }()

	require.Eventually(t, func() bool { return service.Status().Cycles == 1 }, time.Second, 5*time.Millisecond)
	assert.NotNil(t, service.Status().LastReport)
	assert.Eventually(t, func() bool { return service.Status().NextRun != nil }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("service did not stop")
	}
	assert.Equal(t, int32(1), cycler.calls.Load())
}

func TestService_TriggerSkipsWhileRunning(t *testing.T) {
	cycler := newBlockingCycler()
	service, err := NewService(cycler, "@every 1h", nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- service.Run(ctx) }()

	<-cycler.started
	assert.True(t, service.Status().Running)
	assert.ErrorIs(t, service.Trigger(), ErrCycleRunning)

	close(cycler.release)
	require.Eventually(t, func() bool { return !service.Status().Running }, time.Second, 5*time.Millisecond)

	require.NoError(t, service.Trigger())
	require.Eventually(t, func() bool { return service.Status().Cycles == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(2), cycler.calls.Load())

	cancel()
	<-done
}

func TestService_ShutdownWaitsForCycle(t *testing.T) {
	cycler := newBlockingCycler()
	service, err := NewService(cycler, "@every 1h", nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- service.Run(ctx) }()

	<-cycler.started
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("service did not stop")
	}
	assert.False(t, service.Status().Running)
	assert.Equal(t, int64(1), service.Status().Cycles)
}
