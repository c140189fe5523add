package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NullMeDev/factlens/internal/apperror"
)

func TestAddValidatesSchedule(t *testing.T) {
	s := New(nil, nil)

	err := s.Add("bad", "every now and then", func(context.Context) error { return nil })
	require.Error(t, err)
	assert.Equal(t, apperror.ErrSchedulerTask, apperror.CodeOf(err))

	require.NoError(t, s.Add("feeds", "*/15 * * * *", func(context.Context) error { return nil }))
	require.NoError(t, s.Add("prune", "@every 1h", func(context.Context) error { return nil }))

	err = s.Add("feeds", "@daily", func(context.Context) error { return nil })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")

	entries := s.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "feeds", entries[0].Name)
	assert.Equal(t, "prune", entries[1].Name)
	assert.Equal(t, "@every 1h", entries[1].Schedule)
}

func TestRunNowCountsRunsAndFailures(t *testing.T) {
	errs := apperror.NewHandler(10, nil)
	s := New(nil, errs)

	calls := 0
	require.NoError(t, s.Add("flaky", "@hourly", func(ctx context.Context) error {
		calls++
		_, hasDeadline := ctx.Deadline()
		assert.True(t, hasDeadline)
		if calls == 2 {
			return errors.New("feed unreachable")
		}
		return nil
	}))

	require.NoError(t, s.RunNow("flaky"))
	err := s.RunNow("flaky")
	require.Error(t, err)

	entries := s.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, int64(2), entries[0].Runs)
	assert.Equal(t, int64(1), entries[0].Failures)

	require.Equal(t, int64(1), errs.Total())
	event := errs.Recent(1)[0]
	assert.Equal(t, apperror.ErrSchedulerTask, event.Code)
	assert.Equal(t, "scheduler", event.Component)
	assert.Contains(t, event.Message, "feed unreachable")
}

func TestRunNowRecoversPanic(t *testing.T) {
	errs := apperror.NewHandler(10, nil)
	s := New(nil, errs)
	require.NoError(t, s.Add("boom", "@hourly", func(context.Context) error { panic("nil map") }))

	err := s.RunNow("boom")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panic: nil map")
	assert.Equal(t, int64(1), errs.Total())
}

func TestRunNowUnknownJob(t *testing.T) {
	s := New(nil, nil)
	err := s.RunNow("missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown job "missing"`)
}

func TestStopCancelsRunningJobs(t *testing.T) {
	s := New(nil, nil)
	s.SetJobTimeout(time.Minute)

	started := make(chan struct{})
	finished := make(chan error, 1)
	require.NoError(t, s.Add("slow", "@hourly", func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}))
	s.Start()

	go func() { finished <- s.RunNow("slow") }()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.Stop(ctx)

	select {
	case err := <-finished:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("job was not cancelled")
	}
}
