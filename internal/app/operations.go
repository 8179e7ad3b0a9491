package app

import (
	"context"
	"fmt"
	"math"
	"strings"

	"dawncrm/backend"
	"dawncrm/internal/notify"
	"dawncrm/internal/utils"
)

// paidTolerance absorbs float rounding when comparing money totals.
const paidTolerance = 0.005

// StatusChange is the outcome of moving a job to a new workflow stage.
type StatusChange struct {
	Job      backend.Job
	Previous string
	// Notified is true when a notification was attempted.
	Notified bool
	// NotifyErr holds notification failures. The status change itself is
	// already saved when this is set.
	NotifyErr error
}

// SetJobStatus moves a job to status and notifies the customer when the
// shop has notifications turned on.
func (a *App) SetJobStatus(ctx context.Context, jobID, status, note string) (StatusChange, error) {
	before, ok := a.store.Job(jobID)
	if !ok {
		return StatusChange{}, utils.ErrRecordNotFound("job", jobID)
	}
	statuses := a.store.Statuses()
	if len(statuses) > 0 {
		valid := make([]string, 0, len(statuses))
		known := false
		for _, st := range statuses {
			valid = append(valid, st.Name)
			known = known || st.Name == status
		}
		if !known {
			return StatusChange{}, utils.ErrInvalidStatus(status, valid)
		}
	}

	job, ok := a.store.SetJobStatus(jobID, status, note)
	if !ok {
		return StatusChange{}, utils.ErrRecordNotFound("job", jobID)
	}
	change := StatusChange{Job: job, Previous: before.Status}
	if before.Status == job.Status {
		return change, nil
	}

	settings := a.store.Settings()
	if !settings.NotifyOnStatusChange || !a.notifier.Enabled() {
		return change, nil
	}
	customer := a.store.ResolveCustomer(job.CustomerID)
	change.Notified = true
	change.NotifyErr = a.notifier.JobStatusChanged(ctx, notify.JobStatusEvent{
		BusinessName:  settings.BusinessName,
		CustomerName:  customer.Name,
		CustomerEmail: customer.Email,
		CustomerPhone: customer.Phone,
		Vehicle:       vehicleLabel(job),
		JobTitle:      job.Title,
		Status:        job.Status,
		Note:          note,
	})
	return change, nil
}

func vehicleLabel(j backend.Job) string {
	parts := make([]string, 0, 3)
	if j.VehicleYear > 0 {
		parts = append(parts, fmt.Sprint(j.VehicleYear))
	}
	for _, p := range []string{j.VehicleMake, j.VehicleModel} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}

// DeleteCustomer removes a customer. A customer that still owns jobs is
// kept unless force is set; the jobs are never deleted with it.
func (a *App) DeleteCustomer(id string, force bool) error {
	customer, ok := a.store.Customer(id)
	if !ok {
		return utils.ErrRecordNotFound("customer", id)
	}
	if jobs := a.store.JobsForCustomer(id); len(jobs) > 0 && !force {
		return utils.ErrCustomerHasJobs(customer.Name, len(jobs))
	}
	a.store.DeleteCustomer(id)
	return nil
}

// ConvertLead turns a lead into a customer and links the two.
func (a *App) ConvertLead(leadID string) (backend.Customer, error) {
	lead, ok := a.store.Lead(leadID)
	if !ok {
		return backend.Customer{}, utils.ErrRecordNotFound("lead", leadID)
	}
	if lead.ConvertedCustomerID != "" {
		if c, ok := a.store.Customer(lead.ConvertedCustomerID); ok {
			return c, fmt.Errorf("lead %q was already converted to customer %s", lead.Name, c.ID)
		}
	}

	notes := lead.Notes
	if lead.VehicleInterest != "" {
		notes = strings.TrimSpace(fmt.Sprintf("Interested in: %s\n%s", lead.VehicleInterest, notes))
	}
	customer := a.store.AddCustomer(backend.Customer{
		Name:  lead.Name,
		Email: lead.Email,
		Phone: lead.Phone,
		Notes: notes,
	})
	a.store.UpdateLead(leadID, func(l *backend.Lead) {
		l.Status = "converted"
		l.ConvertedCustomerID = customer.ID
	})
	return customer, nil
}

// RecordPayment adds a payment against an invoice and brings the invoice's
// paid amount up to date. A fully covered invoice is marked paid.
func (a *App) RecordPayment(invoiceID string, p backend.Payment) (backend.Payment, backend.Invoice, error) {
	if _, ok := a.store.Invoice(invoiceID); !ok {
		return backend.Payment{}, backend.Invoice{}, utils.ErrRecordNotFound("invoice", invoiceID)
	}
	if err := utils.ValidateAmount("payment", p.Amount); err != nil || p.Amount == 0 {
		return backend.Payment{}, backend.Invoice{}, utils.ErrInvalidAmount("payment", p.Amount)
	}

	p.InvoiceID = invoiceID
	payment := a.store.AddPayment(p)

	var paid float64
	for _, existing := range a.store.PaymentsForInvoice(invoiceID) {
		paid += existing.Amount
	}
	paid = math.Round(paid*100) / 100
	now := a.now().UTC()
	invoice, ok := a.store.UpdateInvoice(invoiceID, func(inv *backend.Invoice) {
		inv.AmountPaid = paid
		if inv.Total > 0 && paid+paidTolerance >= inv.Total && inv.Status != "cancelled" {
			inv.Status = "paid"
			if inv.PaidAt == nil {
				inv.PaidAt = &now
			}
		}
	})
	if !ok {
		// Deleted between the payment and the update.
		return payment, backend.Invoice{}, utils.ErrRecordNotFound("invoice", invoiceID)
	}
	return payment, invoice, nil
}
