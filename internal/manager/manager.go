// Package manager implements the supervisor's single coordinator: it owns
// every Job, serializes mutation of the job set, runs the reconciliation
// loop that keeps live process counts at target, and publishes the
// daemon-wide event stream everything else (HTTP control plane, CLI,
// logging) subscribes to.
package manager

import (
	"context"
	"sync"
	"time"

	"github.com/RevCBH/gafferd/internal/events"
	"github.com/RevCBH/gafferd/internal/gafferr"
	"github.com/RevCBH/gafferd/internal/job"
	"github.com/RevCBH/gafferd/internal/process"
)

// DefaultReconcileInterval is how often Run checks every job's live set
// against its target and reaps exited processes.
const DefaultReconcileInterval = 200 * time.Millisecond

// Manager owns the set of Jobs and keeps their live process counts at
// target. All map mutation goes through mu: a single logical writer,
// serializing mutation requests arriving from multiple callers.
type Manager struct {
	mu   sync.RWMutex
	jobs map[string]*job.Job

	bus               *events.Bus
	reconcileInterval time.Duration

	done chan struct{}
	wg   sync.WaitGroup
}

// New constructs a Manager publishing to bus.
func New(bus *events.Bus) *Manager {
	return &Manager{
		jobs:              make(map[string]*job.Job),
		bus:               bus,
		reconcileInterval: DefaultReconcileInterval,
		done:              make(chan struct{}),
	}
}

// AddJob registers a new job. Returns gafferr JobExists if the name is
// already taken. The job is not started; call StartJob or rely on Run's
// reconciliation once NumProcesses > 0.
func (m *Manager) AddJob(cfg job.Config) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.jobs[cfg.Name]; exists {
		return gafferr.JobExists(cfg.Name)
	}

	m.jobs[cfg.Name] = job.New(cfg, m.bus)
	m.bus.Publish(events.New(events.JobAdded, cfg.Name))
	return nil
}

// RemoveJob stops every live process of the job and removes it from
// tracking. Returns gafferr JobNotFound for an unknown name.
func (m *Manager) RemoveJob(name string) error {
	m.mu.Lock()
	j, exists := m.jobs[name]
	if !exists {
		m.mu.Unlock()
		return gafferr.JobNotFound(name)
	}
	delete(m.jobs, name)
	m.mu.Unlock()

	j.StopAll()
	m.bus.Publish(events.New(events.JobRemoved, name))
	return nil
}

// StartJob clears any operator-stop and flapping state so reconciliation
// resumes spawning processes for the job.
func (m *Manager) StartJob(name string) error {
	j, err := m.get(name)
	if err != nil {
		return err
	}
	j.SetStopped(false)
	j.ClearFlapping()
	m.bus.Publish(events.New(events.JobStarted, name))
	return nil
}

// StopJob stops every live process of the job and prevents reconciliation
// from respawning until StartJob is called again. The job definition is
// retained.
func (m *Manager) StopJob(name string) error {
	j, err := m.get(name)
	if err != nil {
		return err
	}
	j.SetStopped(true)
	j.StopAll()
	m.bus.Publish(events.New(events.JobStopped, name))
	return nil
}

// UpdateNumProcesses changes a job's target process count. If the new
// target is smaller than the live count, Run's reconciliation stops the
// newest-started processes first (chosen by Job.NewestSurplus).
func (m *Manager) UpdateNumProcesses(name string, n int) error {
	j, err := m.get(name)
	if err != nil {
		return err
	}
	j.SetNumProcesses(n)
	m.bus.Publish(events.New(events.JobUpdated, name).WithPayload(map[string]int{"numprocesses": n}))
	return nil
}

// GetJob returns the named job, or gafferr JobNotFound.
func (m *Manager) GetJob(name string) (*job.Job, error) {
	return m.get(name)
}

func (m *Manager) get(name string) (*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	j, exists := m.jobs[name]
	if !exists {
		return nil, gafferr.JobNotFound(name)
	}
	return j, nil
}

// ListJobs returns the names of every registered job.
func (m *Manager) ListJobs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.jobs))
	for name := range m.jobs {
		names = append(names, name)
	}
	return names
}

// Run starts the reconciliation loop: spawning processes for jobs below
// target, reaping exited ones, and shrinking surplus toward a lowered
// target by stopping the newest processes first. Blocks until ctx is
// cancelled or Shutdown is called.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.reconcileInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.done:
			return
		case <-ticker.C:
			m.reconcileOnce(ctx)
		}
	}
}

func (m *Manager) reconcileOnce(ctx context.Context) {
	m.mu.RLock()
	jobs := make([]*job.Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		jobs = append(jobs, j)
	}
	m.mu.RUnlock()

	for _, j := range jobs {
		j.Reap()

		for j.NeedsMore() {
			if _, err := j.SpawnOne(ctx); err != nil {
				break
			}
		}

		if j.HasSurplus() {
			live := j.LiveCount()
			target := j.NumProcesses()
			surplus := j.NewestSurplus(live - target)
			var wg sync.WaitGroup
			for _, p := range surplus {
				wg.Add(1)
				go func(p *process.Process) {
					defer wg.Done()
					_ = p.Stop(job.DefaultStopGrace)
				}(p)
			}
			wg.Wait()
		}
	}
}

// Shutdown stops the reconciliation loop and terminates every job's live
// processes via two-phase SIGTERM-then-SIGKILL, waiting for all of them to
// exit before returning.
func (m *Manager) Shutdown() {
	select {
	case <-m.done:
	default:
		close(m.done)
	}

	m.mu.RLock()
	jobs := make([]*job.Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		jobs = append(jobs, j)
	}
	m.mu.RUnlock()

	var wg sync.WaitGroup
	for _, j := range jobs {
		wg.Add(1)
		go func(j *job.Job) {
			defer wg.Done()
			j.StopAll()
		}(j)
	}
	wg.Wait()

	m.bus.Publish(events.New(events.DaemonStop, ""))
	m.bus.Close()
}
