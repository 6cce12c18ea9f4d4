// Package daemon wires together gafferd's config, PID file, event bus,
// Manager, KeyManager, and HTTP control plane into one long-lived process.
package daemon

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/RevCBH/gafferd/internal/events"
	"github.com/RevCBH/gafferd/internal/httpapi"
	"github.com/RevCBH/gafferd/internal/iniconfig"
	"github.com/RevCBH/gafferd/internal/job"
	"github.com/RevCBH/gafferd/internal/keymanager"
	"github.com/RevCBH/gafferd/internal/keystore"
	"github.com/RevCBH/gafferd/internal/manager"
)

// ShutdownGrace bounds how long Shutdown may take to stop every job's live
// processes (two-phase SIGTERM/SIGKILL) before the caller gives up waiting.
const ShutdownGrace = 15 * time.Second

// Daemon is the running gafferd process: PID file, event bus, job manager,
// key manager, and HTTP control plane, started together and shut down
// together.
type Daemon struct {
	cfg    *Config
	pid    *PIDFile
	bus    *events.Bus
	mgr    *manager.Manager
	keys   *keymanager.Manager
	server *httpapi.Server

	cancel context.CancelFunc
}

// New loads cfg.ConfigFile, constructs the Manager/KeyManager/HTTP server,
// and registers every [process:*] section as a Job (started immediately
// unless its "start" directive is false). It does not acquire the PID file
// or start listening — call Start for that.
func New(cfg *Config) (*Daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("daemon: invalid config: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("daemon: %w", err)
	}

	iniCfg, err := iniconfig.Load(cfg.ConfigFile)
	if err != nil {
		return nil, fmt.Errorf("daemon: load config file: %w", err)
	}

	bus := events.NewBus()
	bus.Subscribe(events.LogHandler(events.LogConfig{}))

	mgr := manager.New(bus)

	backend := keystore.NewSQLite(cfg.KeysDBPath)
	keys, err := keymanager.New(backend, bus, keymanager.DefaultCacheSize)
	if err != nil {
		return nil, fmt.Errorf("daemon: init key manager: %w", err)
	}

	for _, p := range iniCfg.Processes {
		jobCfg := processSpecToJobConfig(p)
		if err := mgr.AddJob(jobCfg); err != nil {
			return nil, fmt.Errorf("daemon: register process %s: %w", jobCfg.Name, err)
		}
		if !p.Start {
			if err := mgr.StopJob(jobCfg.Name); err != nil {
				return nil, fmt.Errorf("daemon: defer start of %s: %w", jobCfg.Name, err)
			}
		}
	}

	server := httpapi.New(httpapi.Config{
		Endpoints: iniCfg.Endpoints,
		NoAuth:    cfg.NoAuth,
	}, mgr, keys, bus)

	return &Daemon{
		cfg:    cfg,
		pid:    NewPIDFile(cfg.PIDFile),
		bus:    bus,
		mgr:    mgr,
		keys:   keys,
		server: server,
	}, nil
}

func processSpecToJobConfig(p iniconfig.ProcessSpec) job.Config {
	env := make([]string, 0, len(p.Env))
	for k, v := range p.Env {
		env = append(env, k+"="+v)
	}

	uid, setUID := iniconfig.IntFromString(p.UID)
	gid, setGID := iniconfig.IntFromString(p.GID)

	return job.Config{
		Name:         job.FullName(p.Group, p.Name),
		NumProcesses: p.NumProcesses,
		Template: job.CommandTemplate{
			Command: p.Command,
			Args:    p.Args,
			Env:     env,
			Dir:     p.Dir,
			UID:     uid,
			GID:     gid,
			SetUID:  setUID,
			SetGID:  setGID,
			Detach:  p.Detach,
		},
	}
}

// Start acquires the PID file, opens the key manager, starts the HTTP
// control plane, and launches the Manager's reconciliation loop. Blocks
// until the provided context is cancelled or Shutdown is called.
func (d *Daemon) Start(ctx context.Context) error {
	if err := d.pid.Acquire(); err != nil {
		return fmt.Errorf("daemon: %w", err)
	}

	if err := d.keys.Open(); err != nil {
		d.pid.Release()
		return fmt.Errorf("daemon: open key manager: %w", err)
	}

	if err := d.server.Start(); err != nil {
		d.keys.Close()
		d.pid.Release()
		return fmt.Errorf("daemon: start http control plane: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	d.bus.Publish(events.New(events.DaemonStart, ""))

	d.mgr.Run(runCtx)
	return nil
}

// Shutdown performs graceful termination: stops the HTTP control plane,
// closes the key manager, stops the reconciliation loop (which two-phase
// SIGTERM/SIGKILLs every live process and closes the event bus last, after
// every other component has had a chance to publish its own shutdown
// event), and releases the PID file.
func (d *Daemon) Shutdown(ctx context.Context) error {
	if d.cancel != nil {
		d.cancel()
	}

	if err := d.server.Stop(ctx); err != nil {
		log.Printf("daemon: http shutdown: %v", err)
	}
	if err := d.keys.Close(); err != nil {
		log.Printf("daemon: key manager close: %v", err)
	}

	d.mgr.Shutdown()

	return d.pid.Release()
}

// Manager returns the daemon's job manager, for in-process callers such as
// tests inspecting the registered jobs.
func (d *Daemon) Manager() *manager.Manager { return d.mgr }

// Bus returns the daemon's event bus.
func (d *Daemon) Bus() *events.Bus { return d.bus }
