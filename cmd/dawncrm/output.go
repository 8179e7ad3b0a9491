package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"dawncrm/internal/utils"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	labelStyle = lipgloss.NewStyle().Width(18).Foreground(lipgloss.Color("245"))
	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(0, 1)
)

// column renders one field of a record in table output.
type column[T any] struct {
	header string
	value  func(T) string
}

// renderTable writes rows as aligned columns. Styles are not applied here
// since escape codes would break the alignment.
func renderTable[T any](w io.Writer, cols []column[T], rows []T) error {
	if len(rows) == 0 {
		_, err := fmt.Fprintln(w, dimStyle.Render("(none)"))
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	headers := make([]string, len(cols))
	for i, col := range cols {
		headers[i] = col.header
	}
	fmt.Fprintln(tw, strings.Join(headers, "\t"))

	cells := make([]string, len(cols))
	for _, row := range rows {
		for i, col := range cols {
			cells[i] = col.value(row)
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	return tw.Flush()
}

// emit writes data in the selected output format. table renders the
// human-readable form.
func (c *cli) emit(cmd *cobra.Command, data any, table func(io.Writer) error) error {
	if c.output == utils.FormatTable || c.output == "" {
		return table(cmd.OutOrStdout())
	}
	return utils.WriteFormatted(cmd.OutOrStdout(), c.output, data)
}

// success prints a confirmation line unless structured output is selected.
func (c *cli) success(cmd *cobra.Command, format string, args ...any) {
	if c.output != utils.FormatTable && c.output != "" {
		return
	}
	fmt.Fprintln(cmd.OutOrStdout(), okStyle.Render("✓ "+fmt.Sprintf(format, args...)))
}

func (c *cli) warn(cmd *cobra.Command, format string, args ...any) {
	fmt.Fprintln(cmd.ErrOrStderr(), warnStyle.Render("⚠ "+fmt.Sprintf(format, args...)))
}

// keyValues renders label/value pairs inside a bordered panel.
func keyValues(title string, pairs [][2]string) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(title))
	for _, p := range pairs {
		b.WriteString("\n")
		b.WriteString(labelStyle.Render(p[0]))
		b.WriteString(p[1])
	}
	return panelStyle.Render(b.String())
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func money(v float64) string {
	return fmt.Sprintf("%.2f", v)
}

func (c *cli) date(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.Local().Format(c.cfg.GetDateFormat())
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
