package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"dawncrm/internal/app"
	"dawncrm/internal/config"
	"dawncrm/internal/utils"

	"github.com/spf13/cobra"
)

// cli carries the state shared by every subcommand.
type cli struct {
	configPath string
	verbose    bool
	output     string

	cfg  *config.Config
	crm  *app.App
	open func(ctx context.Context, cfg *config.Config) (*app.App, error)
	now  func() time.Time
}

func newCLI() *cli {
	return &cli{
		open: func(ctx context.Context, cfg *config.Config) (*app.App, error) {
			return app.New(ctx, app.Options{Config: cfg})
		},
		now: time.Now,
	}
}

func (c *cli) newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "dawncrm",
		Short: "Local-first CRM for vehicle customization shops",
		Long: `dawncrm keeps jobs, customers, leads, invoices and the rest of the shop's
records in a local database and optionally syncs them with a shared
PostgreSQL database.

Examples:
  dawncrm init                              # Write a config and seed statuses
  dawncrm customer add "Ada Lovelace" --set phone=555-0100
  dawncrm job add "Satin black wrap" --customer 3f2a --make BMW --model M3
  dawncrm job status 9c1e "Ready for Pickup"
  dawncrm sync run                          # Sync until interrupted`,
		SilenceUsage:      true,
		PersistentPreRunE: c.setup,
	}

	rootCmd.PersistentFlags().StringVar(&c.configPath, "config", "", "config file or directory (default: user config dir)")
	rootCmd.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&c.output, "output", "o", "", "output format: table, json or yaml")

	rootCmd.AddCommand(
		c.newInitCmd(),
		c.newJobCmd(),
		c.newCustomerCmd(),
		c.newLeadCmd(),
		c.newInvoiceCmd(),
		c.newEstimateCmd(),
		c.newExpenseCmd(),
		c.newPaymentCmd(),
		c.newTaskCmd(),
		c.newTicketCmd(),
		c.newServiceCmd(),
		c.newStatusCmd(),
		c.newUserCmd(),
		c.newSettingsCmd(),
		c.newStatsCmd(),
		c.newSyncCmd(),
		c.newExportCmd(),
		c.newImportCmd(),
		c.newBackupCmd(),
		newCredentialsCmd(c),
	)
	return rootCmd
}

// setup loads the configuration and logging before any command runs.
func (c *cli) setup(cmd *cobra.Command, args []string) error {
	utils.SetVerboseMode(c.verbose)

	if c.cfg == nil {
		if c.configPath != "" {
			config.SetCustomConfigPath(c.configPath)
		}
		cfg, err := config.GetConfig()
		if err != nil {
			return err
		}
		c.cfg = cfg
	}

	if c.output == "" {
		c.output = c.cfg.Output
	}
	c.output = strings.ToLower(c.output)
	switch c.output {
	case "":
		c.output = utils.FormatTable
	case utils.FormatTable, utils.FormatJSON, utils.FormatYAML:
	default:
		return fmt.Errorf("unsupported output format %q (use table, json or yaml)", c.output)
	}

	if c.cfg.Log.File != "" {
		path, err := utils.ExpandPath(c.cfg.Log.File)
		if err != nil {
			return fmt.Errorf("failed to resolve log file: %w", err)
		}
		if err := utils.SetLogFile(path, c.cfg.Log.MaxSizeMB, c.cfg.Log.MaxAgeDays); err != nil {
			return err
		}
	}
	return nil
}

// app opens the application on first use.
func (c *cli) app(cmd *cobra.Command) (*app.App, error) {
	if c.crm != nil {
		return c.crm, nil
	}
	crm, err := c.open(cmd.Context(), c.cfg)
	if err != nil {
		return nil, err
	}
	c.crm = crm
	return crm, nil
}

func (c *cli) close() {
	if c.crm != nil {
		c.crm.Close()
		c.crm = nil
	}
	if err := utils.SetLogFile("", 0, 0); err != nil {
		utils.Warnf("Failed to close log file: %v", err)
	}
}

func main() {
	c := newCLI()
	rootCmd := c.newRootCmd()

	err := rootCmd.ExecuteContext(context.Background())
	c.close()
	if err != nil {
		os.Exit(1)
	}
}
