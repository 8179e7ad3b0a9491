package main

import (
	"fmt"
	"io"
	"strings"

	"dawncrm/backend"
	"dawncrm/internal/app"
	"dawncrm/internal/utils"

	"github.com/spf13/cobra"
)

type record interface {
	GetID() string
}

// entity describes the generic list/show/add/update/delete commands of
// one collection.
type entity[T record] struct {
	kind    string
	plural  string
	aliases []string
	// primary is the field filled from the first positional argument of add.
	primary string
	// template returns the starting value of a new record.
	template func() T
	// protected fields cannot be changed through update; the value is a hint.
	protected map[string]string

	list    func(*backend.Store) []T
	add     func(a *app.App, rec T) (T, error)
	update  func(*backend.Store, string, func(*T)) (T, bool)
	remove  func(a *app.App, id string, force bool) error
	columns func(c *cli, store *backend.Store) []column[T]
	// forceable adds a --force flag to delete.
	forceable bool
}

// removeWith adapts a plain store delete to entity.remove.
func removeWith(kind string, fn func(*backend.Store, string) bool) func(*app.App, string, bool) error {
	return func(a *app.App, id string, _ bool) error {
		if !fn(a.Store(), id) {
			return utils.ErrRecordNotFound(kind, id)
		}
		return nil
	}
}

func (e entity[T]) command(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:     e.kind,
		Aliases: e.aliases,
		Short:   "Manage " + e.plural,
	}
	cmd.AddCommand(e.listCmd(c), e.showCmd(c))
	if e.add != nil && e.primary != "" {
		cmd.AddCommand(e.addCmd(c))
	}
	if e.update != nil {
		cmd.AddCommand(e.updateCmd(c))
	}
	if e.remove != nil {
		cmd.AddCommand(e.deleteCmd(c))
	}
	return cmd
}

// find resolves id or a unique id prefix.
func (e entity[T]) find(store *backend.Store, id string) (T, error) {
	var (
		match   T
		matches int
	)
	for _, rec := range e.list(store) {
		if rec.GetID() == id {
			return rec, nil
		}
		if strings.HasPrefix(rec.GetID(), id) {
			match = rec
			matches++
		}
	}
	switch {
	case id == "" || matches == 0:
		var zero T
		return zero, utils.ErrRecordNotFound(e.kind, id)
	case matches > 1:
		var zero T
		return zero, fmt.Errorf("id prefix %q matches %d %s, use more characters", id, matches, e.plural)
	}
	return match, nil
}

func (e entity[T]) listCmd(c *cli) *cobra.Command {
	var where []string

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List " + e.plural,
		Example: fmt.Sprintf("  dawncrm %s list --where status=open", e.kind),
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.app(cmd)
			if err != nil {
				return err
			}
			filter, err := parseSets(where, c.now())
			if err != nil {
				return err
			}
			rows, err := filterRows(e.list(a.Store()), filter)
			if err != nil {
				return err
			}
			return c.emit(cmd, rows, func(w io.Writer) error {
				return renderTable(w, e.columns(c, a.Store()), rows)
			})
		},
	}
	cmd.Flags().StringArrayVar(&where, "where", nil, "only rows whose field equals value (repeatable)")
	return cmd
}

func (e entity[T]) showCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one " + e.kind,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.app(cmd)
			if err != nil {
				return err
			}
			rec, err := e.find(a.Store(), args[0])
			if err != nil {
				return err
			}
			if c.output == utils.FormatTable {
				return utils.WriteFormatted(cmd.OutOrStdout(), utils.FormatYAML, rec)
			}
			return utils.WriteFormatted(cmd.OutOrStdout(), c.output, rec)
		},
	}
}

func (e entity[T]) addCmd(c *cli) *cobra.Command {
	var sets []string

	cmd := &cobra.Command{
		Use:   fmt.Sprintf("add <%s> [--set field=value ...]", e.primary),
		Short: "Add a " + e.kind,
		Example: fmt.Sprintf("  dawncrm %s add %q --set notes=\"VIP\"",
			e.kind, "Example "+e.kind),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.app(cmd)
			if err != nil {
				return err
			}
			patch, err := parseSets(sets, c.now())
			if err != nil {
				return err
			}
			patch[e.primary] = quote(args[0])

			var rec T
			if e.template != nil {
				rec = e.template()
			}
			if err := applyPatch(&rec, patch); err != nil {
				return err
			}
			created, err := e.add(a, rec)
			if err != nil {
				return err
			}
			c.success(cmd, "Added %s %s", e.kind, shortID(created.GetID()))
			return c.emit(cmd, created, func(io.Writer) error { return nil })
		},
	}
	cmd.Flags().StringArrayVar(&sets, "set", nil, "field=value to set (repeatable)")
	return cmd
}

func (e entity[T]) updateCmd(c *cli) *cobra.Command {
	var sets []string

	cmd := &cobra.Command{
		Use:   "update <id> --set field=value [--set ...]",
		Short: "Update fields of a " + e.kind,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.app(cmd)
			if err != nil {
				return err
			}
			if len(sets) == 0 {
				return fmt.Errorf("nothing to update, pass at least one --set field=value")
			}
			patch, err := parseSets(sets, c.now())
			if err != nil {
				return err
			}
			for field, hint := range e.protected {
				if _, ok := patch[field]; ok {
					return utils.WrapWithSuggestion(fmt.Errorf("field %q cannot be updated directly", field), hint)
				}
			}

			current, err := e.find(a.Store(), args[0])
			if err != nil {
				return err
			}
			// Validate on a copy so the store never sees a half-applied patch.
			if err := applyPatch(&current, patch); err != nil {
				return err
			}
			updated, ok := e.update(a.Store(), current.GetID(), func(rec *T) {
				_ = applyPatch(rec, patch)
			})
			if !ok {
				return utils.ErrRecordNotFound(e.kind, args[0])
			}
			c.success(cmd, "Updated %s %s", e.kind, shortID(updated.GetID()))
			return c.emit(cmd, updated, func(io.Writer) error { return nil })
		},
	}
	cmd.Flags().StringArrayVar(&sets, "set", nil, "field=value to set (repeatable)")
	return cmd
}

func (e entity[T]) deleteCmd(c *cli) *cobra.Command {
	var yes, force bool

	cmd := &cobra.Command{
		Use:     "delete <id>",
		Aliases: []string{"rm"},
		Short:   "Delete a " + e.kind,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.app(cmd)
			if err != nil {
				return err
			}
			rec, err := e.find(a.Store(), args[0])
			if err != nil {
				return err
			}
			id := rec.GetID()

			if !yes {
				question := fmt.Sprintf("Delete %s %s?", e.kind, shortID(id))
				if !utils.Confirm(cmd.InOrStdin(), cmd.OutOrStdout(), question) {
					fmt.Fprintln(cmd.OutOrStdout(), "Cancelled")
					return nil
				}
			}
			if err := e.remove(a, id, force); err != nil {
				return err
			}
			c.success(cmd, "Deleted %s %s", e.kind, shortID(id))
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	if e.forceable {
		cmd.Flags().BoolVar(&force, "force", false, "delete even when other records still reference it")
	}
	return cmd
}
