package server

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mac-/configurine/pkg/log"
	"github.com/mac-/configurine/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobsRunRecordsOutcome(t *testing.T) {
	m := metrics.New()
	logger := log.NewTestLogger()
	jobs := NewJobs(m, logger, time.Second)
	defer jobs.Stop()

	require.NoError(t, jobs.Run(JobCachePurge, func(context.Context) error { return nil }))
	err := jobs.Run(JobPriorityRefresh, func(context.Context) error { return errors.New("boom") })
	require.Error(t, err)

	count, err := testutil.GatherAndCount(m.Registry(), "configurine_jobs_runs_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.True(t, logger.AssertLoggedWithField(log.WarnLevel, "Job failed", "job", JobPriorityRefresh))
}

func TestJobsRunHasDeadline(t *testing.T) {
	jobs := NewJobs(nil, log.NewTestLogger(), 50*time.Millisecond)
	defer jobs.Stop()

	err := jobs.Run("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestJobsAdd(t *testing.T) {
	jobs := NewJobs(nil, log.NewTestLogger(), time.Second)
	noop := func(context.Context) error { return nil }

	require.NoError(t, jobs.Add(JobCachePurge, "@every 1m", noop))
	require.NoError(t, jobs.Add(JobPriorityRefresh, "*/5 * * * *", noop))
	require.NoError(t, jobs.Add(JobStoreHealth, "", noop))

	assert.ElementsMatch(t, []string{JobCachePurge, JobPriorityRefresh}, jobs.Names())
	assert.Error(t, jobs.Add(JobCachePurge, "@every 2m", noop), "duplicate names are rejected")
	assert.Error(t, jobs.Add("bad", "not a schedule", noop))

	jobs.Start()
	defer jobs.Stop()
	next, ok := jobs.Next(JobCachePurge)
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(time.Minute), next, 5*time.Second)

	_, ok = jobs.Next(JobStoreHealth)
	assert.False(t, ok)
}

func TestJobsScheduledRun(t *testing.T) {
	jobs := NewJobs(nil, log.NewTestLogger(), time.Second)
	ran := make(chan struct{}, 1)
	require.NoError(t, jobs.Add("tick", "@every 1s", func(context.Context) error {
		select {
		case ran <- struct{}{}:
		default:
		}
		return nil
	}))
	jobs.Start()
	defer jobs.Stop()

	select {
	case <-ran:
	case <-time.After(3 * time.Second):
		t.Fatalf("scheduled job did not run")
	}
}
