// Command gafferctl is a thin control-plane client for gafferd: it talks to
// a running daemon's HTTP endpoint (internal/httpapi) to list and mutate
// jobs, inspect keys, and tail the live event stream.
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/RevCBH/gafferd/internal/client"
)

var (
	endpoint string
	apiKey   string
)

func main() {
	root := &cobra.Command{
		Use:           "gafferctl",
		Short:         "Control a running gafferd daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&endpoint, "endpoint", "unix:/tmp/gaffer.sock", "daemon bind URI (tcp://host:port or unix:/path)")
	root.PersistentFlags().StringVar(&apiKey, "api-key", "", "API key for the control plane (omit for a --no-auth daemon)")

	root.AddCommand(newJobsCmd())
	root.AddCommand(newKeysCmd())
	root.AddCommand(newEventsCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newClient() (*client.Client, error) {
	return client.New(endpoint, apiKey)
}

func newJobsCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "jobs", Short: "Manage jobs"}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List every job the API key can read",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}
			defer c.Close()

			jobs, err := c.ListJobs(cmd.Context())
			if err != nil {
				return err
			}
			return printJobs(jobs)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "get NAME",
		Short: "Show one job's state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}
			defer c.Close()

			job, err := c.GetJob(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJobs([]client.JobView{*job})
		},
	})

	cmd.AddCommand(newAddJobCmd())

	cmd.AddCommand(&cobra.Command{
		Use:   "rm NAME",
		Short: "Stop and remove a job",
		Args:  cobra.ExactArgs(1),
		RunE:  withClientAndName(func(ctx context.Context, c *client.Client, name string) error { return c.RemoveJob(ctx, name) }),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "start NAME",
		Short: "Resume reconciliation for a stopped job",
		Args:  cobra.ExactArgs(1),
		RunE:  withClientAndName(func(ctx context.Context, c *client.Client, name string) error { return c.StartJob(ctx, name) }),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "stop NAME",
		Short: "Drain a job's live processes and pause reconciliation",
		Args:  cobra.ExactArgs(1),
		RunE:  withClientAndName(func(ctx context.Context, c *client.Client, name string) error { return c.StopJob(ctx, name) }),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "scale NAME N",
		Short: "Change a job's target process count",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid process count %q: %w", args[1], err)
			}
			c, err := newClient()
			if err != nil {
				return err
			}
			defer c.Close()
			return c.UpdateNumProcesses(cmd.Context(), args[0], n)
		},
	})

	return cmd
}

func withClientAndName(fn func(ctx context.Context, c *client.Client, name string) error) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		defer c.Close()
		return fn(cmd.Context(), c, args[0])
	}
}

func newAddJobCmd() *cobra.Command {
	var (
		args         []string
		env          []string
		dir          string
		group        string
		numProcesses int
	)

	cmd := &cobra.Command{
		Use:   "add NAME COMMAND",
		Short: "Register a new job",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, cmdArgs []string) error {
			envMap := make(map[string]string, len(env))
			for _, kv := range env {
				k, v, ok := strings.Cut(kv, "=")
				if !ok {
					return fmt.Errorf("invalid --env %q, expected NAME=VALUE", kv)
				}
				envMap[k] = v
			}

			c, err := newClient()
			if err != nil {
				return err
			}
			defer c.Close()

			return c.AddJob(cmd.Context(), client.AddJobRequest{
				Name:         cmdArgs[0],
				Group:        group,
				Command:      cmdArgs[1],
				Args:         args,
				Env:          envMap,
				Dir:          dir,
				NumProcesses: numProcesses,
			})
		},
	}

	cmd.Flags().StringSliceVar(&args, "arg", nil, "argument to pass to the command (repeatable)")
	cmd.Flags().StringSliceVar(&env, "env", nil, "NAME=VALUE environment entry (repeatable)")
	cmd.Flags().StringVar(&dir, "cwd", "", "working directory for the job's processes")
	cmd.Flags().StringVar(&group, "group", "", "session/group the job belongs to (default: \"default\")")
	cmd.Flags().IntVar(&numProcesses, "numprocesses", 1, "target process count")

	return cmd
}

func newKeysCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "keys", Short: "Inspect API keys (requires a superuser key)"}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List every persisted key",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}
			defer c.Close()

			keys, err := c.ListKeys(cmd.Context())
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 2, 2, ' ', 0)
			fmt.Fprintln(w, "KEY\tLABEL")
			for _, k := range keys {
				fmt.Fprintf(w, "%s\t%s\n", k.Key, k.Label)
			}
			return w.Flush()
		},
	})

	return cmd
}

func newEventsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Stream the daemon's live event feed",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}
			defer c.Close()

			return c.WatchEvents(cmd.Context(), func(e client.Event) {
				b, err := client.DecodeBusEvent(e)
				if err != nil {
					fmt.Fprintf(os.Stderr, "gafferctl: undecodable event: %v\n", err)
					return
				}
				fmt.Printf("%s %s", b.Time, b.Type)
				if b.Job != "" {
					fmt.Printf(" job=%s", b.Job)
				}
				if b.PID != nil {
					fmt.Printf(" pid=%d", *b.PID)
				}
				if b.Error != "" {
					fmt.Printf(" error=%s", b.Error)
				}
				fmt.Println()
			})
		},
	}
}

func printJobs(jobs []client.JobView) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 2, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tLIVE\tTARGET\tSTOPPED\tFLAPPING")
	for _, j := range jobs {
		fmt.Fprintf(w, "%s\t%d\t%d\t%t\t%t\n", j.Name, j.Live, j.NumProcesses, j.Stopped, j.Flapping)
	}
	return w.Flush()
}
