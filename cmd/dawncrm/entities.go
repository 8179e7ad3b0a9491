package main

import (
	"fmt"
	"io"
	"strconv"

	"dawncrm/backend"
	"dawncrm/internal/app"
	"dawncrm/internal/utils"

	"github.com/spf13/cobra"
)

// addWith adapts a store insert that cannot fail to entity.add.
func addWith[T any](fn func(*backend.Store, T) T) func(*app.App, T) (T, error) {
	return func(a *app.App, rec T) (T, error) {
		return fn(a.Store(), rec), nil
	}
}

func (c *cli) customerName(store *backend.Store, id string) string {
	if id == "" {
		return "-"
	}
	return store.ResolveCustomer(id).Name
}

func (c *cli) newCustomerCmd() *cobra.Command {
	e := entity[backend.Customer]{
		kind:    "customer",
		plural:  "customers",
		aliases: []string{"customers", "cust"},
		primary: "name",
		list:    (*backend.Store).Customers,
		add:     addWith((*backend.Store).AddCustomer),
		update:  (*backend.Store).UpdateCustomer,
		remove: func(a *app.App, id string, force bool) error {
			return a.DeleteCustomer(id, force)
		},
		forceable: true,
		columns: func(c *cli, store *backend.Store) []column[backend.Customer] {
			return []column[backend.Customer]{
				{"ID", func(r backend.Customer) string { return shortID(r.ID) }},
				{"NAME", func(r backend.Customer) string { return r.Name }},
				{"EMAIL", func(r backend.Customer) string { return orDash(r.Email) }},
				{"PHONE", func(r backend.Customer) string { return orDash(r.Phone) }},
				{"JOBS", func(r backend.Customer) string { return strconv.Itoa(len(store.JobsForCustomer(r.ID))) }},
			}
		},
	}
	cmd := e.command(c)
	cmd.AddCommand(&cobra.Command{
		Use:   "jobs <id>",
		Short: "List the jobs of a customer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.app(cmd)
			if err != nil {
				return err
			}
			customer, err := e.find(a.Store(), args[0])
			if err != nil {
				return err
			}
			jobs := a.Store().JobsForCustomer(customer.ID)
			return c.emit(cmd, jobs, func(w io.Writer) error {
				return renderTable(w, jobColumns(c, a.Store()), jobs)
			})
		},
	})
	return cmd
}

func (c *cli) newLeadCmd() *cobra.Command {
	e := entity[backend.Lead]{
		kind:    "lead",
		plural:  "leads",
		aliases: []string{"leads"},
		primary: "name",
		list:    (*backend.Store).Leads,
		add:     addWith((*backend.Store).AddLead),
		update:  (*backend.Store).UpdateLead,
		remove:  removeWith("lead", (*backend.Store).DeleteLead),
		protected: map[string]string{
			"convertedCustomerId": "Use 'dawncrm lead convert <id>' to turn a lead into a customer",
		},
		columns: func(c *cli, _ *backend.Store) []column[backend.Lead] {
			return []column[backend.Lead]{
				{"ID", func(r backend.Lead) string { return shortID(r.ID) }},
				{"NAME", func(r backend.Lead) string { return r.Name }},
				{"STATUS", func(r backend.Lead) string { return r.Status }},
				{"SOURCE", func(r backend.Lead) string { return orDash(r.Source) }},
				{"FOLLOW-UP", func(r backend.Lead) string { return c.date(r.FollowUpDate) }},
				{"VALUE", func(r backend.Lead) string { return money(r.EstimatedValue) }},
			}
		},
	}
	cmd := e.command(c)
	cmd.AddCommand(&cobra.Command{
		Use:   "convert <id>",
		Short: "Convert a lead into a customer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.app(cmd)
			if err != nil {
				return err
			}
			lead, err := e.find(a.Store(), args[0])
			if err != nil {
				return err
			}
			customer, err := a.ConvertLead(lead.ID)
			if err != nil {
				return err
			}
			c.success(cmd, "Converted lead %s into customer %s (%s)", shortID(lead.ID), shortID(customer.ID), customer.Name)
			return c.emit(cmd, customer, func(io.Writer) error { return nil })
		},
	})
	return cmd
}

func (c *cli) newExpenseCmd() *cobra.Command {
	return entity[backend.Expense]{
		kind:    "expense",
		plural:  "expenses",
		aliases: []string{"expenses"},
		primary: "description",
		list:    (*backend.Store).Expenses,
		add: func(a *app.App, rec backend.Expense) (backend.Expense, error) {
			if err := utils.ValidateAmount("amount", rec.Amount); err != nil {
				return rec, err
			}
			return a.Store().AddExpense(rec), nil
		},
		update: (*backend.Store).UpdateExpense,
		remove: removeWith("expense", (*backend.Store).DeleteExpense),
		columns: func(c *cli, _ *backend.Store) []column[backend.Expense] {
			return []column[backend.Expense]{
				{"ID", func(r backend.Expense) string { return shortID(r.ID) }},
				{"DATE", func(r backend.Expense) string { return c.date(r.Date) }},
				{"DESCRIPTION", func(r backend.Expense) string { return r.Description }},
				{"CATEGORY", func(r backend.Expense) string { return orDash(r.Category) }},
				{"VENDOR", func(r backend.Expense) string { return orDash(r.Vendor) }},
				{"AMOUNT", func(r backend.Expense) string { return money(r.Amount) }},
			}
		},
	}.command(c)
}

func (c *cli) newTaskCmd() *cobra.Command {
	return entity[backend.Task]{
		kind:    "task",
		plural:  "tasks",
		aliases: []string{"tasks", "todo"},
		primary: "title",
		list:    (*backend.Store).Tasks,
		add:     addWith((*backend.Store).AddTask),
		update:  (*backend.Store).UpdateTask,
		remove:  removeWith("task", (*backend.Store).DeleteTask),
		columns: func(c *cli, _ *backend.Store) []column[backend.Task] {
			return []column[backend.Task]{
				{"ID", func(r backend.Task) string { return shortID(r.ID) }},
				{"TITLE", func(r backend.Task) string { return r.Title }},
				{"STATUS", func(r backend.Task) string { return r.Status }},
				{"PRIORITY", func(r backend.Task) string { return orDash(r.Priority) }},
				{"DUE", func(r backend.Task) string { return c.date(r.DueDate) }},
				{"ASSIGNED", func(r backend.Task) string { return orDash(r.AssignedTo) }},
			}
		},
	}.command(c)
}

func (c *cli) newTicketCmd() *cobra.Command {
	return entity[backend.Ticket]{
		kind:    "ticket",
		plural:  "tickets",
		aliases: []string{"tickets"},
		primary: "subject",
		list:    (*backend.Store).Tickets,
		add:     addWith((*backend.Store).AddTicket),
		update:  (*backend.Store).UpdateTicket,
		remove:  removeWith("ticket", (*backend.Store).DeleteTicket),
		protected: map[string]string{
			"ticketNumber": "Ticket numbers are assigned from the settings counter",
		},
		columns: func(c *cli, store *backend.Store) []column[backend.Ticket] {
			return []column[backend.Ticket]{
				{"ID", func(r backend.Ticket) string { return shortID(r.ID) }},
				{"NUMBER", func(r backend.Ticket) string { return r.TicketNumber }},
				{"SUBJECT", func(r backend.Ticket) string { return r.Subject }},
				{"STATUS", func(r backend.Ticket) string { return r.Status }},
				{"PRIORITY", func(r backend.Ticket) string { return orDash(r.Priority) }},
				{"CUSTOMER", func(r backend.Ticket) string { return c.customerName(store, r.CustomerID) }},
			}
		},
	}.command(c)
}

func (c *cli) newServiceCmd() *cobra.Command {
	return entity[backend.Service]{
		kind:    "service",
		plural:  "services",
		aliases: []string{"services"},
		primary: "name",
		list:    (*backend.Store).Services,
		add: func(a *app.App, rec backend.Service) (backend.Service, error) {
			if err := utils.ValidateAmount("price", rec.Price); err != nil {
				return rec, err
			}
			return a.Store().AddService(rec), nil
		},
		update: (*backend.Store).UpdateService,
		remove: removeWith("service", (*backend.Store).DeleteService),
		columns: func(c *cli, _ *backend.Store) []column[backend.Service] {
			return []column[backend.Service]{
				{"ID", func(r backend.Service) string { return shortID(r.ID) }},
				{"NAME", func(r backend.Service) string { return r.Name }},
				{"CATEGORY", func(r backend.Service) string { return orDash(r.Category) }},
				{"PRICE", func(r backend.Service) string { return money(r.Price) }},
				{"HOURS", func(r backend.Service) string { return strconv.FormatFloat(r.DurationHours, 'f', -1, 64) }},
			}
		},
	}.command(c)
}

func (c *cli) newStatusCmd() *cobra.Command {
	return entity[backend.Status]{
		kind:    "status",
		plural:  "statuses",
		aliases: []string{"statuses", "stage"},
		primary: "name",
		list:    (*backend.Store).Statuses,
		add:     addWith((*backend.Store).AddStatus),
		update:  (*backend.Store).UpdateStatus,
		remove:  removeWith("status", (*backend.Store).DeleteStatus),
		columns: func(c *cli, _ *backend.Store) []column[backend.Status] {
			return []column[backend.Status]{
				{"ID", func(r backend.Status) string { return shortID(r.ID) }},
				{"ORDER", func(r backend.Status) string { return strconv.Itoa(r.Order) }},
				{"NAME", func(r backend.Status) string { return r.Name }},
				{"COLOR", func(r backend.Status) string { return orDash(r.Color) }},
				{"FINAL", func(r backend.Status) string { return yesNo(r.IsFinal) }},
			}
		},
	}.command(c)
}

func (c *cli) newUserCmd() *cobra.Command {
	return entity[backend.User]{
		kind:     "user",
		plural:   "users",
		aliases:  []string{"users", "staff"},
		primary:  "name",
		template: func() backend.User { return backend.User{Role: "staff", Active: true} },
		list:     (*backend.Store).Users,
		add:      addWith((*backend.Store).AddUser),
		update:   (*backend.Store).UpdateUser,
		remove:   removeWith("user", (*backend.Store).DeleteUser),
		columns: func(c *cli, _ *backend.Store) []column[backend.User] {
			return []column[backend.User]{
				{"ID", func(r backend.User) string { return shortID(r.ID) }},
				{"NAME", func(r backend.User) string { return r.Name }},
				{"EMAIL", func(r backend.User) string { return orDash(r.Email) }},
				{"ROLE", func(r backend.User) string { return r.Role }},
				{"ACTIVE", func(r backend.User) string { return yesNo(r.Active) }},
			}
		},
	}.command(c)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// newSettingsCmd shows and edits the singleton shop settings.
func (c *cli) newSettingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change the shop settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.app(cmd)
			if err != nil {
				return err
			}
			s := a.Store().Settings()
			return c.emit(cmd, s, func(w io.Writer) error {
				_, err := fmt.Fprintln(w, keyValues(s.BusinessName, [][2]string{
					{"Email", orDash(s.Email)},
					{"Phone", orDash(s.Phone)},
					{"Currency", s.Currency},
					{"Tax rate", fmt.Sprintf("%g%%", s.TaxRate)},
					{"Next invoice", fmt.Sprintf("%s%d", s.InvoicePrefix, s.NextInvoiceNumber)},
					{"Next estimate", fmt.Sprintf("%s%d", s.EstimatePrefix, s.NextEstimateNumber)},
					{"Next ticket", fmt.Sprintf("%s%d", s.TicketPrefix, s.NextTicketNumber)},
					{"Notify customers", yesNo(s.NotifyOnStatusChange)},
				}))
				return err
			})
		},
	}

	var sets []string
	setCmd := &cobra.Command{
		Use:     "set --set field=value [--set ...]",
		Short:   "Change shop settings",
		Example: "  dawncrm settings set --set businessName=\"Dawn Customs\" --set notifyOnStatusChange=true",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.app(cmd)
			if err != nil {
				return err
			}
			patch, err := parseSets(sets, c.now())
			if err != nil {
				return err
			}
			if len(patch) == 0 {
				return fmt.Errorf("nothing to update, pass at least one --set field=value")
			}
			probe := a.Store().Settings()
			if err := applyPatch(&probe, patch); err != nil {
				return err
			}
			updated := a.Store().UpdateSettings(func(s *backend.Settings) {
				_ = applyPatch(s, patch)
			})
			c.success(cmd, "Settings updated")
			return c.emit(cmd, updated, func(io.Writer) error { return nil })
		},
	}
	setCmd.Flags().StringArrayVar(&sets, "set", nil, "field=value to set (repeatable)")
	cmd.AddCommand(setCmd)
	return cmd
}
