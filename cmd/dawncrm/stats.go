package main

import (
	"fmt"
	"io"
	"sort"
	"strconv"

	"dawncrm/internal/config"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

func (c *cli) newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a starter config and seed the default workflow",
		Long: `Create the config file (when missing) and seed the local database with
the default workflow statuses and service catalogue. Existing data is left
alone, so running init twice is harmless.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.GetConfigPath()
			if err != nil {
				return err
			}
			written, err := config.WriteSample(path)
			if err != nil {
				return err
			}
			if written {
				c.success(cmd, "Wrote config %s", path)
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), dimStyle.Render("Config already exists at "+path))
			}

			a, err := c.app(cmd)
			if err != nil {
				return err
			}
			if a.Store().SeedDefaults() {
				c.success(cmd, "Seeded %d statuses and %d services", len(a.Store().Statuses()), len(a.Store().Services()))
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), dimStyle.Render("Workflow statuses and services already present"))
			}
			if db := a.Database(); db != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "Database: %s\n", db.Path())
			}
			return nil
		},
	}
}

func (c *cli) newStatsCmd() *cobra.Command {
	var vacuum bool
	cmd := &cobra.Command{
		Use:     "stats",
		Aliases: []string{"dashboard"},
		Short:   "Show the shop dashboard",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.app(cmd)
			if err != nil {
				return err
			}
			if vacuum {
				db := a.Database()
				if db == nil {
					return fmt.Errorf("--vacuum needs the SQLite database")
				}
				if err := db.Vacuum(); err != nil {
					return fmt.Errorf("failed to vacuum database: %w", err)
				}
				dbStats, err := db.GetStats()
				if err != nil {
					return err
				}
				c.success(cmd, "Vacuumed %s: %s", db.Path(), dbStats)
			}
			stats := a.Store().GetStats(c.now())
			currency := a.Store().Settings().Currency

			return c.emit(cmd, stats, func(w io.Writer) error {
				work := keyValues("Work", [][2]string{
					{"Jobs", fmt.Sprintf("%d (%d active, %d completed)", stats.TotalJobs, stats.ActiveJobs, stats.CompletedJobs)},
					{"Customers", strconv.Itoa(stats.TotalCustomers)},
					{"Open leads", strconv.Itoa(stats.OpenLeads)},
					{"Pending tasks", fmt.Sprintf("%d (%d overdue)", stats.PendingTasks, stats.OverdueTasks)},
					{"Open tickets", strconv.Itoa(stats.OpenTickets)},
				})
				finance := keyValues("Money ("+currency+")", [][2]string{
					{"Revenue", money(stats.Revenue)},
					{"This month", money(stats.RevenueThisMonth)},
					{"Outstanding", outstanding(stats.Outstanding, stats.OverdueInvoices)},
					{"Expenses", money(stats.ExpenseTotal)},
					{"Profit", profit(stats.Profit)},
					{"Pending quotes", strconv.Itoa(stats.PendingEstimates)},
				})
				if _, err := fmt.Fprintln(w, lipgloss.JoinHorizontal(lipgloss.Top, work, " ", finance)); err != nil {
					return err
				}

				if len(stats.JobsByStatus) == 0 {
					return nil
				}
				names := make([]string, 0, len(stats.JobsByStatus))
				for name := range stats.JobsByStatus {
					names = append(names, name)
				}
				// Workflow order first, then anything no longer in the workflow.
				order := make(map[string]int)
				for _, st := range a.Store().Statuses() {
					order[st.Name] = st.Order
				}
				sort.Slice(names, func(i, j int) bool {
					oi, iok := order[names[i]]
					oj, jok := order[names[j]]
					if iok != jok {
						return iok
					}
					if oi != oj {
						return oi < oj
					}
					return names[i] < names[j]
				})
				pairs := make([][2]string, len(names))
				for i, name := range names {
					pairs[i] = [2]string{name, strconv.Itoa(stats.JobsByStatus[name])}
				}
				_, err := fmt.Fprintln(w, keyValues("Jobs by status", pairs))
				return err
			})
		},
	}
	cmd.Flags().BoolVar(&vacuum, "vacuum", false, "compact the database file first")
	return cmd
}

func outstanding(amount float64, overdue int) string {
	s := money(amount)
	if overdue > 0 {
		s += " " + errStyle.Render(fmt.Sprintf("(%d overdue)", overdue))
	}
	return s
}

func profit(v float64) string {
	if v < 0 {
		return errStyle.Render(money(v))
	}
	return okStyle.Render(money(v))
}
