package main

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"dawncrm/backend"
	"dawncrm/internal/utils"

	"github.com/spf13/cobra"
)

// parseItem reads a line item written as "description:price" or
// "description:quantity:price". The description may itself contain colons.
func parseItem(s string) (backend.LineItem, error) {
	parts := strings.Split(s, ":")
	item := backend.LineItem{Quantity: 1}

	if len(parts) < 2 {
		return item, fmt.Errorf("invalid item %q, expected description:price or description:quantity:price", s)
	}
	price, err := strconv.ParseFloat(strings.TrimSpace(parts[len(parts)-1]), 64)
	if err != nil {
		return item, fmt.Errorf("invalid price in item %q", s)
	}
	item.UnitPrice = price
	desc := parts[:len(parts)-1]

	if len(desc) > 1 {
		if qty, err := strconv.ParseFloat(strings.TrimSpace(desc[len(desc)-1]), 64); err == nil {
			item.Quantity = qty
			desc = desc[:len(desc)-1]
		}
	}
	item.Description = strings.TrimSpace(strings.Join(desc, ":"))
	if item.Description == "" {
		return item, fmt.Errorf("item %q has no description", s)
	}
	if err := utils.ValidateAmount("unit price", item.UnitPrice); err != nil {
		return item, err
	}
	if !(item.Quantity > 0) || math.IsInf(item.Quantity, 0) {
		return item, fmt.Errorf("item %q needs a positive quantity", s)
	}
	return item, nil
}

// billingFlags are shared by invoice add and estimate add.
type billingFlags struct {
	jobID, due, notes string
	items, services   []string
	taxRate           float64
}

func (f *billingFlags) register(cmd *cobra.Command, dueName string) {
	cmd.Flags().StringArrayVarP(&f.items, "item", "i", nil, "line item description:price or description:quantity:price (repeatable)")
	cmd.Flags().StringArrayVar(&f.services, "service", nil, "add a catalogue service as a line item (repeatable)")
	cmd.Flags().StringVar(&f.jobID, "job", "", "job id the document is for")
	cmd.Flags().StringVar(&f.due, dueName, "", "date (YYYY-MM-DD or e.g. \"in 30 days\")")
	cmd.Flags().Float64Var(&f.taxRate, "tax-rate", -1, "tax rate in percent (default: from settings)")
	cmd.Flags().StringVar(&f.notes, "notes", "", "notes printed on the document")
}

// resolve builds the line items and references for a new document.
func (f *billingFlags) resolve(c *cli, store *backend.Store, customerArg string) (customerID, jobID string, items []backend.LineItem, taxRate float64, due *time.Time, err error) {
	if customerArg != "" {
		customer, err := customerEntity().find(store, customerArg)
		if err != nil {
			return "", "", nil, 0, nil, err
		}
		customerID = customer.ID
	}
	if f.jobID != "" {
		job, err := jobEntity().find(store, f.jobID)
		if err != nil {
			return "", "", nil, 0, nil, err
		}
		jobID = job.ID
		if customerID == "" {
			customerID = job.CustomerID
		}
	}
	if customerID == "" {
		return "", "", nil, 0, nil, fmt.Errorf("a customer is required (pass a customer id or --job)")
	}

	for _, s := range f.items {
		item, err := parseItem(s)
		if err != nil {
			return "", "", nil, 0, nil, err
		}
		items = append(items, item)
	}
	for _, s := range f.services {
		svc, err := serviceEntity().find(store, s)
		if err != nil {
			return "", "", nil, 0, nil, err
		}
		items = append(items, backend.LineItem{Description: svc.Name, ServiceID: svc.ID, Quantity: 1, UnitPrice: svc.Price})
	}
	if len(items) == 0 {
		return "", "", nil, 0, nil, fmt.Errorf("at least one --item or --service is required")
	}

	taxRate = f.taxRate
	if taxRate < 0 {
		taxRate = store.Settings().TaxRate
	}
	if err := utils.ValidateAmount("tax rate", taxRate); err != nil {
		return "", "", nil, 0, nil, err
	}
	if due, err = utils.ParseDateInput(f.due, c.now()); err != nil {
		return "", "", nil, 0, nil, err
	}
	return customerID, jobID, items, taxRate, due, nil
}

func invoiceEntity() entity[backend.Invoice] {
	return entity[backend.Invoice]{
		kind:    "invoice",
		plural:  "invoices",
		aliases: []string{"invoices", "inv"},
		list:    (*backend.Store).Invoices,
		update:  (*backend.Store).UpdateInvoice,
		remove:  removeWith("invoice", (*backend.Store).DeleteInvoice),
		protected: map[string]string{
			"invoiceNumber": "Invoice numbers are assigned from the settings counter",
			"amountPaid":    "Use 'dawncrm payment record <invoice-id> <amount>'",
		},
		columns: func(c *cli, store *backend.Store) []column[backend.Invoice] {
			return []column[backend.Invoice]{
				{"ID", func(r backend.Invoice) string { return shortID(r.ID) }},
				{"NUMBER", func(r backend.Invoice) string { return r.InvoiceNumber }},
				{"CUSTOMER", func(r backend.Invoice) string { return c.customerName(store, r.CustomerID) }},
				{"STATUS", func(r backend.Invoice) string { return r.Status }},
				{"TOTAL", func(r backend.Invoice) string { return money(r.Total) }},
				{"BALANCE", func(r backend.Invoice) string { return money(r.Balance()) }},
				{"DUE", func(r backend.Invoice) string { return c.date(r.DueDate) }},
			}
		},
	}
}

func (c *cli) newInvoiceCmd() *cobra.Command {
	e := invoiceEntity()
	cmd := e.command(c)

	var (
		flags    billingFlags
		discount float64
	)
	addCmd := &cobra.Command{
		Use:   "add [customer-id]",
		Short: "Create an invoice",
		Example: `  dawncrm invoice add 3f2a --item "Full wrap:2500" --item "Ceramic coat:2:150" --due "in 30 days"
  dawncrm invoice add --job 9c1e --service 77ab`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.app(cmd)
			if err != nil {
				return err
			}
			customerID, jobID, items, taxRate, due, err := flags.resolve(c, a.Store(), firstArg(args))
			if err != nil {
				return err
			}
			if err := utils.ValidateAmount("discount", discount); err != nil {
				return err
			}
			inv := a.Store().AddInvoice(backend.Invoice{
				CustomerID: customerID,
				JobID:      jobID,
				Items:      items,
				TaxRate:    taxRate,
				Discount:   discount,
				DueDate:    due,
				Notes:      flags.notes,
			})
			c.success(cmd, "Created invoice %s for %s: %s %s",
				inv.InvoiceNumber, c.customerName(a.Store(), inv.CustomerID), money(inv.Total), a.Store().Settings().Currency)
			return c.emit(cmd, inv, func(io.Writer) error { return nil })
		},
	}
	flags.register(addCmd, "due")
	addCmd.Flags().Float64Var(&discount, "discount", 0, "discount subtracted before tax")

	cmd.AddCommand(addCmd)
	return cmd
}

func (c *cli) newEstimateCmd() *cobra.Command {
	e := entity[backend.Estimate]{
		kind:    "estimate",
		plural:  "estimates",
		aliases: []string{"estimates", "quote"},
		list:    (*backend.Store).Estimates,
		update:  (*backend.Store).UpdateEstimate,
		remove:  removeWith("estimate", (*backend.Store).DeleteEstimate),
		protected: map[string]string{
			"estimateNumber": "Estimate numbers are assigned from the settings counter",
			"publicToken":    "The public token is fixed when the estimate is created",
		},
		columns: func(c *cli, store *backend.Store) []column[backend.Estimate] {
			return []column[backend.Estimate]{
				{"ID", func(r backend.Estimate) string { return shortID(r.ID) }},
				{"NUMBER", func(r backend.Estimate) string { return r.EstimateNumber }},
				{"CUSTOMER", func(r backend.Estimate) string { return c.customerName(store, r.CustomerID) }},
				{"STATUS", func(r backend.Estimate) string { return r.Status }},
				{"TOTAL", func(r backend.Estimate) string { return money(r.Total) }},
				{"VALID UNTIL", func(r backend.Estimate) string { return c.date(r.ValidUntil) }},
			}
		},
	}
	cmd := e.command(c)

	var flags billingFlags
	addCmd := &cobra.Command{
		Use:   "add [customer-id]",
		Short: "Create an estimate",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.app(cmd)
			if err != nil {
				return err
			}
			customerID, jobID, items, taxRate, validUntil, err := flags.resolve(c, a.Store(), firstArg(args))
			if err != nil {
				return err
			}
			est := a.Store().AddEstimate(backend.Estimate{
				CustomerID: customerID,
				JobID:      jobID,
				Items:      items,
				TaxRate:    taxRate,
				ValidUntil: validUntil,
				Notes:      flags.notes,
			})
			c.success(cmd, "Created estimate %s: %s (share token %s)", est.EstimateNumber, money(est.Total), est.PublicToken)
			return c.emit(cmd, est, func(io.Writer) error { return nil })
		},
	}
	flags.register(addCmd, "valid-until")

	tokenCmd := &cobra.Command{
		Use:   "token <token>",
		Short: "Look up an estimate by its public share token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.app(cmd)
			if err != nil {
				return err
			}
			est, ok := a.Store().EstimateByToken(args[0])
			if !ok {
				return utils.ErrRecordNotFound("estimate", args[0])
			}
			format := c.output
			if format == utils.FormatTable {
				format = utils.FormatYAML
			}
			return utils.WriteFormatted(cmd.OutOrStdout(), format, est)
		},
	}

	cmd.AddCommand(addCmd, tokenCmd)
	return cmd
}

func (c *cli) newPaymentCmd() *cobra.Command {
	e := entity[backend.Payment]{
		kind:    "payment",
		plural:  "payments",
		aliases: []string{"payments", "pay"},
		list:    (*backend.Store).Payments,
		update:  (*backend.Store).UpdatePayment,
		remove:  removeWith("payment", (*backend.Store).DeletePayment),
		protected: map[string]string{
			"amount":    "Delete the payment and record it again",
			"invoiceId": "Delete the payment and record it again",
		},
		columns: func(c *cli, store *backend.Store) []column[backend.Payment] {
			numbers := make(map[string]string)
			for _, inv := range store.Invoices() {
				numbers[inv.ID] = inv.InvoiceNumber
			}
			return []column[backend.Payment]{
				{"ID", func(r backend.Payment) string { return shortID(r.ID) }},
				{"DATE", func(r backend.Payment) string { return c.date(r.Date) }},
				{"INVOICE", func(r backend.Payment) string { return orDash(numbers[r.InvoiceID]) }},
				{"AMOUNT", func(r backend.Payment) string { return money(r.Amount) }},
				{"METHOD", func(r backend.Payment) string { return orDash(r.Method) }},
				{"REFERENCE", func(r backend.Payment) string { return orDash(r.Reference) }},
			}
		},
	}
	cmd := e.command(c)

	var method, date, reference, notes string
	recordCmd := &cobra.Command{
		Use:   "record <invoice-id> <amount>",
		Short: "Record a payment against an invoice",
		Long: `Record money received for an invoice. The invoice is marked paid once
its payments cover the total.`,
		Example: `  dawncrm payment record 5b7c 1200 --method card
  dawncrm payment record 5b7c 300.50 --method transfer --reference "SEPA 8812" --date yesterday`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.app(cmd)
			if err != nil {
				return err
			}
			inv, err := invoiceEntity().find(a.Store(), args[0])
			if err != nil {
				return err
			}
			amount, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return fmt.Errorf("invalid amount %q", args[1])
			}
			paidOn, err := utils.ParseDateInput(date, c.now())
			if err != nil {
				return err
			}
			if paidOn == nil {
				today := c.now()
				paidOn = &today
			}

			payment, updated, err := a.RecordPayment(inv.ID, backend.Payment{
				Amount:    amount,
				Method:    method,
				Date:      paidOn,
				Reference: reference,
				Notes:     notes,
			})
			if err != nil {
				return err
			}
			c.success(cmd, "Recorded %s on %s, balance %s (%s)",
				money(payment.Amount), updated.InvoiceNumber, money(updated.Balance()), updated.Status)
			return c.emit(cmd, payment, func(io.Writer) error { return nil })
		},
	}
	recordCmd.Flags().StringVar(&method, "method", "cash", "cash, card or transfer")
	recordCmd.Flags().StringVar(&date, "date", "", "payment date (default: today)")
	recordCmd.Flags().StringVar(&reference, "reference", "", "bank or card reference")
	recordCmd.Flags().StringVar(&notes, "notes", "", "notes")

	cmd.AddCommand(recordCmd)
	return cmd
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}
