package manager

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/RevCBH/gafferd/internal/events"
	"github.com/RevCBH/gafferd/internal/gafferr"
	"github.com/RevCBH/gafferd/internal/job"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sleeperCfg(name string, n int) job.Config {
	return job.Config{
		Name:         name,
		NumProcesses: n,
		Template: job.CommandTemplate{
			Command: "/bin/sh",
			Args:    []string{"-c", "sleep 30"},
		},
		StopGrace: 200 * time.Millisecond,
	}
}

func TestManagerAddJobRejectsDuplicate(t *testing.T) {
	m := New(events.NewBus())
	require.NoError(t, m.AddJob(sleeperCfg("web", 1)))

	err := m.AddJob(sleeperCfg("web", 1))
	require.Error(t, err)
	var gerr *gafferr.Error
	require.True(t, errors.As(err, &gerr))
	assert.Equal(t, gafferr.KindJobExists, gerr.Kind)
}

func TestManagerUnknownJobOperationsReturnNotFound(t *testing.T) {
	m := New(events.NewBus())

	_, err := m.GetJob("missing")
	assertNotFound(t, err)
	assertNotFound(t, m.StartJob("missing"))
	assertNotFound(t, m.StopJob("missing"))
	assertNotFound(t, m.UpdateNumProcesses("missing", 2))
	assertNotFound(t, m.RemoveJob("missing"))
}

func assertNotFound(t *testing.T, err error) {
	t.Helper()
	require.Error(t, err)
	var gerr *gafferr.Error
	require.True(t, errors.As(err, &gerr))
	assert.Equal(t, gafferr.KindJobNotFound, gerr.Kind)
}

func TestManagerReconcileSpawnsToTarget(t *testing.T) {
	m := New(events.NewBus())
	require.NoError(t, m.AddJob(sleeperCfg("web", 2)))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	require.Eventually(t, func() bool {
		j, _ := m.GetJob("web")
		return j.LiveCount() == 2
	}, 2*time.Second, 20*time.Millisecond)

	m.Shutdown()
}

func TestManagerStopJobPreventsRespawn(t *testing.T) {
	m := New(events.NewBus())
	require.NoError(t, m.AddJob(sleeperCfg("web", 1)))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	j, _ := m.GetJob("web")
	require.Eventually(t, func() bool { return j.LiveCount() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, m.StopJob("web"))
	assert.Equal(t, 0, j.LiveCount())

	time.Sleep(3 * m.reconcileInterval)
	assert.Equal(t, 0, j.LiveCount())

	require.NoError(t, m.StartJob("web"))
	require.Eventually(t, func() bool { return j.LiveCount() == 1 }, time.Second, 10*time.Millisecond)

	m.Shutdown()
}

func TestManagerListJobs(t *testing.T) {
	m := New(events.NewBus())
	require.NoError(t, m.AddJob(sleeperCfg("a", 0)))
	require.NoError(t, m.AddJob(sleeperCfg("b", 0)))

	names := m.ListJobs()
	assert.ElementsMatch(t, []string{"a", "b"}, names)
}

func TestManagerShutdownStopsAllProcesses(t *testing.T) {
	m := New(events.NewBus())
	require.NoError(t, m.AddJob(sleeperCfg("web", 1)))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	j, _ := m.GetJob("web")
	require.Eventually(t, func() bool { return j.LiveCount() == 1 }, time.Second, 10*time.Millisecond)

	m.Shutdown()
	assert.Equal(t, 0, j.LiveCount())
}
