// Package cli implements gafferd's launcher: a single positional config-file
// argument plus --daemon/--pidfile flags. A "version" subcommand is the
// only other entry point.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/RevCBH/gafferd/internal/daemon"
	"github.com/RevCBH/gafferd/internal/iniconfig"
)

// App is the gafferd launcher CLI with all wired dependencies.
type App struct {
	rootCmd *cobra.Command

	pidfileFlag    string
	daemonFlag     bool
	noAuthFlag     bool
	dumpConfigFlag bool

	version string
	commit  string
	date    string
}

// New creates a new CLI application.
func New() *App {
	app := &App{}
	app.setupRootCmd()
	app.rootCmd.AddCommand(NewVersionCmd(app))
	return app
}

// Execute runs the CLI application.
func (a *App) Execute() error {
	return a.rootCmd.Execute()
}

// SetVersion sets the version string for the version command.
func (a *App) SetVersion(version, commit, date string) {
	a.version = version
	a.commit = commit
	a.date = date
}

func (a *App) setupRootCmd() {
	a.rootCmd = &cobra.Command{
		Use:           "gafferd config",
		Short:         "Run gafferd, a process supervisor with a capability-scoped control plane",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd.Context(), args[0])
		},
	}

	a.rootCmd.Flags().BoolVar(&a.daemonFlag, "daemon", false, "start gaffer in the background")
	a.rootCmd.Flags().StringVar(&a.pidfileFlag, "pidfile", "", "path to write the daemon's PID file")
	a.rootCmd.Flags().BoolVar(&a.noAuthFlag, "no-auth", false, "disable API key checks (every request is treated as the permissive dummy key)")
	a.rootCmd.Flags().BoolVar(&a.dumpConfigFlag, "dump-config", false, "print the resolved configuration (endpoints and processes) as YAML and exit")
}

// run builds and starts the daemon from configPath, daemonizing first if
// --daemon was passed, and blocks until SIGINT/SIGTERM triggers a clean
// shutdown. Exit code contract: 0 on clean shutdown, 1 on PID-file conflict
// or fatal config error.
func (a *App) run(ctx context.Context, configPath string) error {
	if a.dumpConfigFlag {
		return a.dumpConfig(configPath)
	}

	if a.daemonFlag {
		if err := daemon.Daemonize(); err != nil {
			return fmt.Errorf("daemonize: %w", err)
		}
	}

	cfg, err := daemon.DefaultConfig()
	if err != nil {
		return err
	}
	cfg.ConfigFile = configPath
	if a.pidfileFlag != "" {
		cfg.PIDFile = a.pidfileFlag
	}
	cfg.NoAuth = a.noAuthFlag

	d, err := daemon.New(cfg)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	handler := NewSignalHandler(cancel)
	handler.OnShutdown(func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), daemon.ShutdownGrace)
		defer shutdownCancel()
		if err := d.Shutdown(shutdownCtx); err != nil {
			fmt.Fprintf(os.Stderr, "gafferd: shutdown: %v\n", err)
		}
	})
	handler.Start()
	defer handler.Stop()

	if err := d.Start(runCtx); err != nil {
		return err
	}

	handler.Wait()
	return nil
}

// dumpConfig loads configPath (without starting the daemon) and prints its
// resolved endpoints/processes as YAML to stdout.
func (a *App) dumpConfig(configPath string) error {
	cfg, err := iniconfig.Load(configPath)
	if err != nil {
		return err
	}
	out, err := cfg.Dump()
	if err != nil {
		return fmt.Errorf("dump config: %w", err)
	}
	_, err = os.Stdout.Write(out)
	return err
}
