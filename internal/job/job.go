// Package job implements a Job: a named command template kept running at a
// target process count, with restart-on-exit and flapping detection.
package job

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/RevCBH/gafferd/internal/events"
	"github.com/RevCBH/gafferd/internal/process"
)

// DefaultGroup is the implicit group a Job belongs to when none is given.
// A Job's identity is the pair (group, name), whose textual form is
// "group.name" — except jobs in DefaultGroup, which are addressed by bare
// name.
const DefaultGroup = "default"

// FullName joins group and name into the dotted identity permission checks
// and the job map key use. A job in DefaultGroup (or with no group given)
// is addressed by name alone.
func FullName(group, name string) string {
	if group == "" || group == DefaultGroup {
		return name
	}
	return group + "." + name
}

// DefaultRestartLimit is the number of restarts (K) tolerated within
// DefaultRestartWindow before a Job is marked flapping.
const DefaultRestartLimit = 5

// DefaultRestartWindow is the rolling window (W) restart counts are
// measured against.
const DefaultRestartWindow = 60 * time.Second

// DefaultStopGrace is how long Stop waits after SIGTERM before SIGKILL.
const DefaultStopGrace = 10 * time.Second

// CommandTemplate is the recipe every process of a Job is spawned from.
type CommandTemplate struct {
	Command string
	Args    []string
	Env     []string
	Dir     string
	UID     int
	GID     int
	SetUID  bool
	SetGID  bool
	Detach  bool
}

// Config configures a new Job.
type Config struct {
	Name          string
	Template      CommandTemplate
	NumProcesses  int
	RestartLimit  int
	RestartWindow time.Duration
	StopGrace     time.Duration
}

// Job supervises zero or more live processes of one command template,
// reconciling the live set toward NumProcesses and restarting processes
// that exit unless the Job has started flapping.
type Job struct {
	mu sync.Mutex

	name          string
	template      CommandTemplate
	numProcesses  int
	restartLimit  int
	restartWindow time.Duration
	stopGrace     time.Duration

	procs map[int]*process.Process // live, keyed by pid

	restartTimes []time.Time // rolling window, oldest first
	flapping     bool
	stopping     bool
	stopped      bool // operator stop_job: reconciliation must not respawn

	bus *events.Bus
}

// New constructs a Job. It does not spawn any processes; call Manager's
// reconciliation (or SpawnOne directly in tests) to bring it up to
// NumProcesses.
func New(cfg Config, bus *events.Bus) *Job {
	restartLimit := cfg.RestartLimit
	if restartLimit <= 0 {
		restartLimit = DefaultRestartLimit
	}
	restartWindow := cfg.RestartWindow
	if restartWindow <= 0 {
		restartWindow = DefaultRestartWindow
	}
	stopGrace := cfg.StopGrace
	if stopGrace <= 0 {
		stopGrace = DefaultStopGrace
	}

	return &Job{
		name:          cfg.Name,
		template:      cfg.Template,
		numProcesses:  cfg.NumProcesses,
		restartLimit:  restartLimit,
		restartWindow: restartWindow,
		stopGrace:     stopGrace,
		procs:         make(map[int]*process.Process),
		bus:           bus,
	}
}

// Name returns the job's name.
func (j *Job) Name() string { return j.name }

// NumProcesses returns the current target process count.
func (j *Job) NumProcesses() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.numProcesses
}

// SetNumProcesses updates the target process count. Reconciliation (spawning
// or stopping the surplus) happens on the Manager's next reconciliation pass.
func (j *Job) SetNumProcesses(n int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.numProcesses = n
}

// IsFlapping reports whether the Job has exceeded its restart budget and
// stopped trying to respawn.
func (j *Job) IsFlapping() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.flapping
}

// ClearFlapping resets the flapping state and restart window, allowing the
// Job to resume spawning. Used by an operator-triggered restart.
func (j *Job) ClearFlapping() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.flapping = false
	j.restartTimes = nil
}

// LiveCount returns the number of processes currently tracked as alive.
func (j *Job) LiveCount() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.procs)
}

// Processes returns a snapshot of the currently live processes.
func (j *Job) Processes() []*process.Process {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]*process.Process, 0, len(j.procs))
	for _, p := range j.procs {
		out = append(out, p)
	}
	return out
}

// NeedsMore reports whether the live set is below target and the Job isn't
// flapping or being stopped.
func (j *Job) NeedsMore() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return !j.stopping && !j.stopped && !j.flapping && len(j.procs) < j.numProcesses
}

// SetStopped marks the Job as operator-stopped (stop_job) or resumes it
// (start_job). A stopped Job is never grown by reconciliation even if its
// live count is below NumProcesses.
func (j *Job) SetStopped(stopped bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.stopped = stopped
}

// Stopped reports whether the Job is operator-stopped.
func (j *Job) Stopped() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.stopped
}

// HasSurplus reports whether the live set exceeds target.
func (j *Job) HasSurplus() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.procs) > j.numProcesses
}

// SpawnOne starts a single new process from the template and adds it to the
// live set. Returns gafferr.SpawnFailed on exec failure.
func (j *Job) SpawnOne(ctx context.Context) (*process.Process, error) {
	j.mu.Lock()
	t := j.template
	name := j.name
	j.mu.Unlock()

	p := process.New(ctx, process.Spec{
		Name:    name,
		Command: t.Command,
		Args:    t.Args,
		Env:     t.Env,
		Dir:     t.Dir,
		UID:     t.UID,
		GID:     t.GID,
		SetUID:  t.SetUID,
		SetGID:  t.SetGID,
		Detach:  t.Detach,
	})

	if err := p.Start(); err != nil {
		j.publish(events.New(events.SpawnError, name).WithError(err))
		j.recordRestart()
		return nil, err
	}

	j.mu.Lock()
	j.procs[p.PID()] = p
	j.mu.Unlock()

	j.publish(events.New(events.ProcessSpawn, name).WithPID(p.PID()))
	return p, nil
}

// Reap removes exited processes from the live set, publishes exactly one
// proc.exit event per pid, records a restart-window entry for each, and
// flips the Job to flapping once RestartLimit restarts have landed within
// RestartWindow. Safe to call repeatedly; already-reaped pids are no-ops.
func (j *Job) Reap() {
	j.mu.Lock()
	var exited []*process.Process
	for pid, p := range j.procs {
		if !p.IsAlive() {
			exited = append(exited, p)
			delete(j.procs, pid)
		}
	}
	j.mu.Unlock()

	for _, p := range exited {
		code, _ := p.ExitCode()
		j.publish(events.New(events.ProcessExit, j.name).WithPID(p.PID()).WithPayload(map[string]int{"exit_code": code}))
		j.recordRestart()
	}
}

// recordRestart appends now to the rolling restart window, drops entries
// older than RestartWindow, and marks the Job flapping once RestartLimit
// restarts have landed inside the window.
func (j *Job) recordRestart() {
	j.mu.Lock()
	defer j.mu.Unlock()

	now := time.Now()
	j.restartTimes = append(j.restartTimes, now)

	cutoff := now.Add(-j.restartWindow)
	kept := j.restartTimes[:0]
	for _, t := range j.restartTimes {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	j.restartTimes = kept

	if len(j.restartTimes) >= j.restartLimit && !j.flapping {
		j.flapping = true
		go j.publish(events.New(events.JobFlapping, j.name))
	}
}

// StopAll sends SIGTERM (escalating to SIGKILL after StopGrace) to every
// live process, waits for them all to exit, then reaps them from the live
// set (publishing their proc.exit events via Reap).
func (j *Job) StopAll() {
	j.mu.Lock()
	j.stopping = true
	procs := make([]*process.Process, 0, len(j.procs))
	for _, p := range j.procs {
		procs = append(procs, p)
	}
	grace := j.stopGrace
	j.mu.Unlock()

	var wg sync.WaitGroup
	for _, p := range procs {
		wg.Add(1)
		go func(p *process.Process) {
			defer wg.Done()
			_ = p.Stop(grace)
		}(p)
	}
	wg.Wait()

	j.Reap()

	j.mu.Lock()
	j.stopping = false
	j.mu.Unlock()
}

// NewestSurplus returns the n most-recently-started live processes, used by
// downward update_numprocesses reconciliation: shrinking targets the
// newest processes rather than the oldest.
func (j *Job) NewestSurplus(n int) []*process.Process {
	j.mu.Lock()
	defer j.mu.Unlock()

	all := make([]*process.Process, 0, len(j.procs))
	for _, p := range j.procs {
		all = append(all, p)
	}
	sort.Slice(all, func(i, k int) bool {
		return all[i].StartedAt().After(all[k].StartedAt())
	})
	if n > len(all) {
		n = len(all)
	}
	return all[:n]
}

func (j *Job) publish(e events.Event) {
	if j.bus != nil {
		j.bus.Publish(e)
	}
}
