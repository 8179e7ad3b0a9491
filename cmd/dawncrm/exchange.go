package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"dawncrm/internal/exchange"
	"dawncrm/internal/utils"

	"github.com/spf13/cobra"
)

// exportFileMode is the permission of files written by export.
const exportFileMode = 0o600

func (c *cli) newExportCmd() *cobra.Command {
	var format, file string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export jobs, customers, services, statuses and settings",
		Long: `Write the shop's core data to a JSON or YAML document that 'dawncrm import'
can load again. Invoices, payments and the other collections are not part
of the export.

Examples:
  dawncrm export > shop.json
  dawncrm export --format yaml --file shop.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.app(cmd)
			if err != nil {
				return err
			}
			if format == "" {
				format = formatFromPath(file)
			}
			data, err := exchange.Encode(a.Export(), format)
			if err != nil {
				return err
			}
			if file == "" {
				_, err := cmd.OutOrStdout().Write(append(data, '\n'))
				return err
			}
			if err := os.WriteFile(file, data, exportFileMode); err != nil {
				return fmt.Errorf("failed to write export: %w", err)
			}
			c.success(cmd, "Exported to %s", file)
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "", "json or yaml (default: from the file extension, else json)")
	cmd.Flags().StringVar(&file, "file", "", "write to file instead of stdout")
	return cmd
}

func formatFromPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return utils.FormatYAML
	default:
		return utils.FormatJSON
	}
}

func (c *cli) newImportCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Replace local data with an export document",
		Long: `Load a document written by 'dawncrm export' (JSON or YAML). Local data is
replaced: collections that are not part of the export are cleared. Run
'dawncrm sync push' afterwards to share the imported data.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read import file: %w", err)
			}
			a, err := c.app(cmd)
			if err != nil {
				return err
			}
			if !yes && !utils.Confirm(cmd.InOrStdin(), cmd.OutOrStdout(), "Replace all local data with "+args[0]+"?") {
				fmt.Fprintln(cmd.OutOrStdout(), "Cancelled")
				return nil
			}
			doc, err := a.Import(data)
			if err != nil {
				return err
			}
			c.success(cmd, "Imported %d jobs, %d customers, %d services and %d statuses",
				len(doc.Jobs), len(doc.Customers), len(doc.Services), len(doc.Statuses))
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	return cmd
}

func (c *cli) newBackupCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Upload an export to the configured S3 bucket",
		Long: `Upload an export document to the S3-compatible bucket set in the backup
section of the config. Credentials come from backup.access_key_id and
backup.secret_access_key, or from the usual AWS environment and profile.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.app(cmd)
			if err != nil {
				return err
			}
			key, err := a.Backup(cmd.Context(), format)
			if err != nil {
				return err
			}
			c.success(cmd, "Uploaded s3://%s/%s", c.cfg.Backup.Bucket, key)
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", utils.FormatJSON, "json or yaml")
	return cmd
}
