package scheduler_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/reviewhub/pkg/scheduler"
)

func newScheduler(opts ...scheduler.Option) *scheduler.Scheduler {
	opts = append([]scheduler.Option{scheduler.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, opts...)
	return scheduler.New(opts...)
}

func noop(context.Context) error { return nil }

func TestAddTask(t *testing.T) {
	t.Parallel()

	s := newScheduler()
	require.NoError(t, s.AddTask("reminders", "0 9 * * *", noop))

	assert.ErrorIs(t, s.AddTask("reminders", "@daily", noop), scheduler.ErrTaskAlreadyRegistered)
	assert.ErrorIs(t, s.AddTask("broken", "61 * * * *", noop), scheduler.ErrInvalidSchedule)
	assert.ErrorIs(t, s.AddTask("nil", "@daily", nil), scheduler.ErrNilJob)
}

func TestNext(t *testing.T) {
	t.Parallel()

	s := newScheduler()
	require.NoError(t, s.AddTask("reminders", "0 9 * * *", noop))

	from := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	next, err := s.Next("reminders", from)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC), next)

	_, err = s.Next("missing", from)
	assert.ErrorIs(t, err, scheduler.ErrTaskNotFound)
}

func TestNextHonoursLocation(t *testing.T) {
	t.Parallel()

	loc := time.FixedZone("UTC+2", 2*60*60)
	s := newScheduler(scheduler.WithLocation(loc))
	require.NoError(t, s.AddTask("reminders", "0 9 * * *", noop))

	next, err := s.Next("reminders", time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, next.Equal(time.Date(2025, 6, 1, 7, 0, 0, 0, time.UTC)))
}

func TestRunNow(t *testing.T) {
	t.Parallel()

	errBoom := errors.New("boom")
	s := newScheduler(scheduler.WithTaskTimeout(time.Second))

	var deadline bool
	require.NoError(t, s.AddTask("ok", "@daily", func(ctx context.Context) error {
		_, deadline = ctx.Deadline()
		return nil
	}))
	require.NoError(t, s.AddTask("fails", "@daily", func(context.Context) error { return errBoom }))

	require.NoError(t, s.RunNow(context.Background(), "ok"))
	assert.True(t, deadline, "task timeout applied")
	assert.ErrorIs(t, s.RunNow(context.Background(), "fails"), errBoom)
	assert.ErrorIs(t, s.RunNow(context.Background(), "missing"), scheduler.ErrTaskNotFound)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.RunNow(ctx, "ok"), context.Canceled)
}

func TestRun(t *testing.T) {
	t.Parallel()

	t.Run("requires tasks", func(t *testing.T) {
		t.Parallel()
		assert.ErrorIs(t, newScheduler().Run(context.Background()), scheduler.ErrSchedulerNotConfigured)
	})

	t.Run("fires and stops", func(t *testing.T) {
		t.Parallel()
		var runs atomic.Int32
		s := newScheduler()
		require.NoError(t, s.AddTask("tick", "@every 1s", func(context.Context) error {
			runs.Add(1)
			return nil
		}))

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- s.Run(ctx) }()

		require.Eventually(t, func() bool { return runs.Load() > 0 }, 3*time.Second, 50*time.Millisecond)
		cancel()

		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			require.Fail(t, "scheduler did not stop")
		}
	})
}
