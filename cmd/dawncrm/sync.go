package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"syscall"
	"time"

	"dawncrm/backend"
	"dawncrm/backend/sync"
	"dawncrm/internal/app"
	"dawncrm/internal/credentials"
	"dawncrm/internal/utils"

	"github.com/spf13/cobra"
)

// pingTimeout bounds the connectivity check run before a manual sync.
const pingTimeout = 10 * time.Second

// newSyncCmd creates the sync command with all subcommands
func (c *cli) newSyncCmd() *cobra.Command {
	syncCmd := &cobra.Command{
		Use:   "sync",
		Short: "Synchronize the local database with the shared remote",
		Long: `Synchronize the local database with the shared remote database.

On start the side that has data wins: a local store with jobs, customers,
statuses or services is pushed; an empty one is filled from the remote.
While running, local changes are pushed on a timer and remote changes are
applied as they arrive. The remote is configured with remote.url or
DAWNCRM_REMOTE_URL.

Examples:
  dawncrm sync run                   # Initial sync, then live until Ctrl-C
  dawncrm sync push                  # Push every collection once
  dawncrm sync pull --strategy merge # Merge remote records into local data
  dawncrm sync status                # Show remote and local state
  dawncrm sync migrate               # Create or upgrade the remote tables`,
	}

	syncCmd.AddCommand(c.newSyncRunCmd(), c.newSyncPushCmd(), c.newSyncPullCmd(), c.newSyncStatusCmd(), c.newSyncMigrateCmd())
	return syncCmd
}

// requireRemote opens the app and checks that the remote answers.
func (c *cli) requireRemote(cmd *cobra.Command) (*app.App, error) {
	a, err := c.app(cmd)
	if err != nil {
		return nil, err
	}
	if !a.SyncConfigured() {
		return nil, utils.ErrSyncNotConfigured()
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), pingTimeout)
	defer cancel()
	if err := a.Client().Ping(ctx); err != nil {
		return nil, utils.ErrRemoteOffline(err.Error())
	}
	return a, nil
}

func (c *cli) newSyncRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Sync now and keep syncing until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.app(cmd)
			if err != nil {
				return err
			}
			if !a.SyncConfigured() {
				return utils.ErrSyncNotConfigured()
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			result := a.StartSync(ctx)
			if result.Err != nil {
				return result.Err
			}
			printInitResult(c, cmd, result)
			fmt.Fprintln(cmd.OutOrStdout(), dimStyle.Render("Syncing, press Ctrl-C to stop"))

			<-ctx.Done()

			// Final push before the manager shuts down.
			final := a.Sync().Push(context.Background())
			if err := final.Err(); err != nil {
				c.warn(cmd, "Final push failed: %v", err)
			} else if !final.Busy {
				c.success(cmd, "Final push: %s", final.Summary())
			}
			return nil
		},
	}
}

func printInitResult(c *cli, cmd *cobra.Command, r sync.InitResult) {
	switch r.Direction {
	case sync.DirectionPush:
		if r.Push != nil && r.Push.Err() != nil {
			c.warn(cmd, "Initial push incomplete: %v", r.Push.Err())
		} else if r.Push != nil {
			c.success(cmd, "Pushed local data: %s", r.Push.Summary())
		}
	case sync.DirectionPull:
		if r.Pull != nil && r.Pull.Err() != nil {
			c.warn(cmd, "Initial pull incomplete: %v", r.Pull.Err())
		} else if r.Pull != nil {
			c.success(cmd, "Pulled remote data: %s", r.Pull.Summary())
		}
	}
	c.success(cmd, "Listening for changes on %d collections", r.Subscriptions)
}

func (c *cli) newSyncPushCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "push",
		Short: "Push every local collection to the remote",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.requireRemote(cmd)
			if err != nil {
				return err
			}
			result := a.Sync().Push(cmd.Context())
			if err := c.emit(cmd, pushReport(result), func(w io.Writer) error {
				printCollectionResults(w, result.Pushed, result.Errors)
				return nil
			}); err != nil {
				return err
			}
			return result.Err()
		},
	}
}

func (c *cli) newSyncPullCmd() *cobra.Command {
	var strategy string

	cmd := &cobra.Command{
		Use:   "pull",
		Short: "Load the remote data into the local database",
		Long: `Load every collection from the remote.

  replace  swap local collections for the remote ones (skipped when the
           remote has no jobs, customers, statuses or services)
  merge    keep all remote records and add local records the remote lacks;
           the remote copy wins when both have the same id`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if strategy == "" {
				strategy = c.cfg.Sync.Strategy
			}
			s := sync.Strategy(strategy)
			switch s {
			case "":
				s = sync.Replace
			case sync.Replace, sync.Merge:
			default:
				return fmt.Errorf("unknown strategy %q (use replace or merge)", strategy)
			}

			a, err := c.requireRemote(cmd)
			if err != nil {
				return err
			}
			result := a.Sync().Pull(cmd.Context(), s)
			if !result.Applied && result.Err() == nil {
				c.warn(cmd, "Remote has no data, local data kept")
			}
			if err := c.emit(cmd, pullReport(result), func(w io.Writer) error {
				printCollectionResults(w, result.Pulled, result.Errors)
				return nil
			}); err != nil {
				return err
			}
			return result.Err()
		},
	}
	cmd.Flags().StringVar(&strategy, "strategy", "", "replace or merge (default: sync.strategy from config)")
	return cmd
}

// collectionReport is the structured form of a push or pull.
type collectionReport struct {
	Operation string            `json:"operation"`
	Strategy  string            `json:"strategy,omitempty"`
	Applied   *bool             `json:"applied,omitempty"`
	Records   map[string]int    `json:"records"`
	Errors    map[string]string `json:"errors,omitempty"`
	Duration  string            `json:"duration,omitempty"`
}

func pushReport(r sync.PushResult) collectionReport {
	return collectionReport{
		Operation: "push",
		Records:   countsByName(r.Pushed),
		Errors:    errorsByName(r.Errors),
		Duration:  r.Duration.Round(time.Millisecond).String(),
	}
}

func pullReport(r sync.PullResult) collectionReport {
	applied := r.Applied
	report := collectionReport{
		Operation: "pull",
		Strategy:  string(r.Strategy),
		Applied:   &applied,
		Records:   countsByName(r.Pulled),
		Errors:    errorsByName(r.Errors),
	}
	if r.ApplyErr != nil {
		if report.Errors == nil {
			report.Errors = make(map[string]string)
		}
		report.Errors["apply"] = r.ApplyErr.Error()
	}
	return report
}

func countsByName(counts map[backend.Collection]int) map[string]int {
	out := make(map[string]int, len(counts))
	for c, n := range counts {
		out[string(c)] = n
	}
	return out
}

func errorsByName(errs map[backend.Collection]error) map[string]string {
	if len(errs) == 0 {
		return nil
	}
	out := make(map[string]string, len(errs))
	for c, err := range errs {
		out[string(c)] = err.Error()
	}
	return out
}

func printCollectionResults(w io.Writer, counts map[backend.Collection]int, errs map[backend.Collection]error) {
	names := make([]string, 0, len(counts)+len(errs))
	for c := range counts {
		names = append(names, string(c))
	}
	for c := range errs {
		if _, ok := counts[c]; !ok {
			names = append(names, string(c))
		}
	}
	sort.Strings(names)

	for _, name := range names {
		c := backend.Collection(name)
		if err, failed := errs[c]; failed {
			fmt.Fprintf(w, "%s %-10s %v\n", errStyle.Render("✗"), name, err)
			continue
		}
		fmt.Fprintf(w, "%s %-10s %d\n", okStyle.Render("✓"), name, counts[c])
	}
}

func (c *cli) newSyncStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show sync configuration, remote reachability and local counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.app(cmd)
			if err != nil {
				return err
			}

			type statusReport struct {
				Configured bool           `json:"configured"`
				Remote     string         `json:"remote,omitempty"`
				Reachable  bool           `json:"reachable"`
				Error      string         `json:"error,omitempty"`
				Interval   string         `json:"interval"`
				Strategy   string         `json:"strategy"`
				Local      map[string]int `json:"local"`
			}
			report := statusReport{
				Configured: a.SyncConfigured(),
				Interval:   sync.DefaultPushInterval.String(),
				Strategy:   c.cfg.Sync.Strategy,
				Local:      countsByName(a.Store().Counts(backend.AllCollections...)),
			}
			if d := c.cfg.SyncInterval(); d > 0 {
				report.Interval = d.String()
			}
			if report.Strategy == "" {
				report.Strategy = string(sync.Replace)
			}
			if report.Configured {
				report.Remote = credentials.Redact(c.cfg.Remote.URL)
				ctx, cancel := context.WithTimeout(cmd.Context(), pingTimeout)
				err := a.Client().Ping(ctx)
				cancel()
				report.Reachable = err == nil
				if err != nil {
					report.Error = err.Error()
				}
			}

			return c.emit(cmd, report, func(w io.Writer) error {
				connection := dimStyle.Render("local-only")
				if report.Configured {
					connection = okStyle.Render("✓ online")
					if !report.Reachable {
						connection = warnStyle.Render("⚠ offline: " + report.Error)
					}
				}
				pairs := [][2]string{
					{"Remote", orDash(report.Remote)},
					{"Connection", connection},
					{"Push interval", report.Interval},
					{"Pull strategy", report.Strategy},
				}
				for _, col := range backend.AllCollections {
					pairs = append(pairs, [2]string{string(col), strconv.Itoa(report.Local[string(col)])})
				}
				_, err := fmt.Fprintln(w, keyValues("Sync status", pairs))
				return err
			})
		},
	}
}

func (c *cli) newSyncMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the remote tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.requireRemote(cmd)
			if err != nil {
				return err
			}
			if err := a.Migrate(cmd.Context()); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			c.success(cmd, "Remote schema is up to date")
			return nil
		},
	}
}
