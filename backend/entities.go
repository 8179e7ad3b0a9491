package backend

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
)

func jobsOf(st *State) *[]Job { return &st.Jobs }
func customersOf(st *State) *[]Customer { return &st.Customers }
func leadsOf(st *State) *[]Lead { return &st.Leads }
func invoicesOf(st *State) *[]Invoice { return &st.Invoices }
func estimatesOf(st *State) *[]Estimate { return &st.Estimates }
func expensesOf(st *State) *[]Expense { return &st.Expenses }
func paymentsOf(st *State) *[]Payment { return &st.Payments }
func tasksOf(st *State) *[]Task { return &st.Tasks }
func ticketsOf(st *State) *[]Ticket { return &st.Tickets }
func servicesOf(st *State) *[]Service { return &st.Services }
func statusesOf(st *State) *[]Status { return &st.Statuses }
func usersOf(st *State) *[]User { return &st.Users }

// Jobs

// AddJob creates a job. A job without a status starts at the first
// workflow stage; the initial status is recorded in its history.
func (s *Store) AddJob(job Job) Job {
	return addRecord(s, jobsOf, job, func(st *State, j *Job, now time.Time) {
		if j.Status == "" {
			if first, ok := firstStatus(st.Statuses); ok {
				j.Status = first.Name
			}
		}
		j.History = nil
		if j.Status != "" {
			j.History = []HistoryEntry{{Status: j.Status, Date: now, Note: "Job created"}}
		}
	})
}

// UpdateJob applies fn to a job. A status change appends one history entry;
// history edits made by fn are discarded.
func (s *Store) UpdateJob(id string, fn func(*Job)) (Job, bool) {
	return s.updateJob(id, fn, "")
}

// SetJobStatus moves a job to status, recording note in its history.
func (s *Store) SetJobStatus(id, status, note string) (Job, bool) {
	return s.updateJob(id, func(j *Job) { j.Status = status }, note)
}

func (s *Store) updateJob(id string, fn func(*Job), note string) (Job, bool) {
	return updateRecord(s, jobsOf, id, fn, func(st *State, orig, updated *Job, now time.Time) {
		history := append([]HistoryEntry(nil), orig.History...)
		if updated.Status != orig.Status {
			entryNote := note
			if entryNote == "" {
				entryNote = fmt.Sprintf("Status changed from %q to %q", orig.Status, updated.Status)
			}
			history = append(history, HistoryEntry{Status: updated.Status, Date: now, Note: entryNote})
			if stage, ok := statusByName(st.Statuses, updated.Status); ok && stage.IsFinal && updated.CompletedAt == nil {
				completed := now
				updated.CompletedAt = &completed
			}
		}
		updated.History = history
		// Images change only through AddJobImage and RemoveJobImage.
		updated.Images = orig.Images
	})
}

// AddJobImage attaches base64 image data to a job under a workflow stage.
func (s *Store) AddJobImage(jobID, stage, data string) (JobImage, bool) {
	var img JobImage
	_, ok := updateRecord(s, jobsOf, jobID, nil, func(_ *State, orig, updated *Job, now time.Time) {
		img = JobImage{ID: uuid.NewString(), Data: data, UploadedAt: now}
		images := make(map[string][]JobImage, len(orig.Images)+1)
		for k, v := range orig.Images {
			images[k] = append([]JobImage(nil), v...)
		}
		images[stage] = append(images[stage], img)
		updated.Images = images
	})
	return img, ok
}

// RemoveJobImage detaches one image from a job.
func (s *Store) RemoveJobImage(jobID, imageID string) bool {
	removed := false
	_, ok := updateRecord(s, jobsOf, jobID, nil, func(_ *State, orig, updated *Job, _ time.Time) {
		images := make(map[string][]JobImage, len(orig.Images))
		for stage, list := range orig.Images {
			for _, img := range list {
				if img.ID == imageID {
					removed = true
					continue
				}
				images[stage] = append(images[stage], img)
			}
		}
		updated.Images = images
	})
	return ok && removed
}

// DeleteJob removes a job. Related invoices or tasks are left untouched.
func (s *Store) DeleteJob(id string) bool { return deleteRecord(s, jobsOf, id) }

// Jobs returns a copy of all jobs.
func (s *Store) Jobs() []Job { return listCopy(s, jobsOf) }

// Job returns one job by id.
func (s *Store) Job(id string) (Job, bool) { return findRecord(s, jobsOf, id) }

// JobsForCustomer returns the jobs referencing customerID.
func (s *Store) JobsForCustomer(customerID string) []Job {
	var out []Job
	for _, j := range s.Jobs() {
		if j.CustomerID == customerID {
			out = append(out, j)
		}
	}
	return out
}

// Customers

func (s *Store) AddCustomer(c Customer) Customer { return addRecord(s, customersOf, c, nil) }

func (s *Store) UpdateCustomer(id string, fn func(*Customer)) (Customer, bool) {
	return updateRecord(s, customersOf, id, fn, nil)
}

// DeleteCustomer removes a customer without cascading to jobs. Callers that
// need a referential check do it before calling.
func (s *Store) DeleteCustomer(id string) bool { return deleteRecord(s, customersOf, id) }

func (s *Store) Customers() []Customer { return listCopy(s, customersOf) }

func (s *Store) Customer(id string) (Customer, bool) { return findRecord(s, customersOf, id) }

// Leads

func (s *Store) AddLead(l Lead) Lead {
	return addRecord(s, leadsOf, l, func(_ *State, l *Lead, _ time.Time) {
		if l.Status == "" {
			l.Status = "new"
		}
	})
}

func (s *Store) UpdateLead(id string, fn func(*Lead)) (Lead, bool) {
	return updateRecord(s, leadsOf, id, fn, nil)
}

func (s *Store) DeleteLead(id string) bool { return deleteRecord(s, leadsOf, id) }

func (s *Store) Leads() []Lead { return listCopy(s, leadsOf) }

func (s *Store) Lead(id string) (Lead, bool) { return findRecord(s, leadsOf, id) }

// Invoices

// AddInvoice creates an invoice, consuming the next invoice number from
// settings and computing its totals.
func (s *Store) AddInvoice(inv Invoice) Invoice {
	return addRecord(s, invoicesOf, inv, func(st *State, inv *Invoice, now time.Time) {
		inv.InvoiceNumber = nextNumber(&st.Settings, &st.Settings.NextInvoiceNumber, st.Settings.InvoicePrefix, now)
		if inv.Status == "" {
			inv.Status = "draft"
		}
		if inv.TaxRate == 0 {
			inv.TaxRate = st.Settings.TaxRate
		}
		inv.Recalculate()
	})
}

// UpdateInvoice applies fn to an invoice. The invoice number is immutable and
// totals are recomputed.
func (s *Store) UpdateInvoice(id string, fn func(*Invoice)) (Invoice, bool) {
	return updateRecord(s, invoicesOf, id, fn, func(_ *State, orig, updated *Invoice, _ time.Time) {
		updated.InvoiceNumber = orig.InvoiceNumber
		updated.Recalculate()
	})
}

func (s *Store) DeleteInvoice(id string) bool { return deleteRecord(s, invoicesOf, id) }

func (s *Store) Invoices() []Invoice { return listCopy(s, invoicesOf) }

func (s *Store) Invoice(id string) (Invoice, bool) { return findRecord(s, invoicesOf, id) }

// Recalculate derives subtotal, tax and total from the line items.
func (inv *Invoice) Recalculate() {
	inv.Subtotal, inv.TaxAmount, inv.Total = totals(inv.Items, inv.TaxRate, inv.Discount)
}

// Balance is the amount still owed.
func (inv Invoice) Balance() float64 {
	return roundCents(inv.Total - inv.AmountPaid)
}

// Estimates

// AddEstimate creates an estimate with the next estimate number and a fresh
// public token.
func (s *Store) AddEstimate(est Estimate) Estimate {
	return addRecord(s, estimatesOf, est, func(st *State, est *Estimate, now time.Time) {
		est.EstimateNumber = nextNumber(&st.Settings, &st.Settings.NextEstimateNumber, st.Settings.EstimatePrefix, now)
		est.PublicToken = uuid.NewString()
		if est.Status == "" {
			est.Status = "draft"
		}
		if est.TaxRate == 0 {
			est.TaxRate = st.Settings.TaxRate
		}
		est.Recalculate()
	})
}

// UpdateEstimate applies fn to an estimate. The public token and number
// never change.
func (s *Store) UpdateEstimate(id string, fn func(*Estimate)) (Estimate, bool) {
	return updateRecord(s, estimatesOf, id, fn, func(_ *State, orig, updated *Estimate, _ time.Time) {
		updated.PublicToken = orig.PublicToken
		updated.EstimateNumber = orig.EstimateNumber
		updated.Recalculate()
	})
}

func (s *Store) DeleteEstimate(id string) bool { return deleteRecord(s, estimatesOf, id) }

func (s *Store) Estimates() []Estimate { return listCopy(s, estimatesOf) }

func (s *Store) Estimate(id string) (Estimate, bool) { return findRecord(s, estimatesOf, id) }

// EstimateByToken finds an estimate through its public token.
func (s *Store) EstimateByToken(token string) (Estimate, bool) {
	if token == "" {
		return Estimate{}, false
	}
	for _, e := range s.Estimates() {
		if e.PublicToken == token {
			return e, true
		}
	}
	return Estimate{}, false
}

// Recalculate derives subtotal, tax and total from the line items.
func (est *Estimate) Recalculate() {
	est.Subtotal, est.TaxAmount, est.Total = totals(est.Items, est.TaxRate, 0)
}

// Expenses

func (s *Store) AddExpense(e Expense) Expense { return addRecord(s, expensesOf, e, nil) }

func (s *Store) UpdateExpense(id string, fn func(*Expense)) (Expense, bool) {
	return updateRecord(s, expensesOf, id, fn, nil)
}

func (s *Store) DeleteExpense(id string) bool { return deleteRecord(s, expensesOf, id) }

func (s *Store) Expenses() []Expense { return listCopy(s, expensesOf) }

// Payments

func (s *Store) AddPayment(p Payment) Payment {
	return addRecord(s, paymentsOf, p, func(_ *State, p *Payment, now time.Time) {
		if p.Date == nil {
			d := now
			p.Date = &d
		}
	})
}

func (s *Store) UpdatePayment(id string, fn func(*Payment)) (Payment, bool) {
	return updateRecord(s, paymentsOf, id, fn, nil)
}

func (s *Store) DeletePayment(id string) bool { return deleteRecord(s, paymentsOf, id) }

func (s *Store) Payments() []Payment { return listCopy(s, paymentsOf) }

// PaymentsForInvoice returns the payments recorded against invoiceID.
func (s *Store) PaymentsForInvoice(invoiceID string) []Payment {
	var out []Payment
	for _, p := range s.Payments() {
		if p.InvoiceID == invoiceID {
			out = append(out, p)
		}
	}
	return out
}

// Tasks

func (s *Store) AddTask(t Task) Task {
	return addRecord(s, tasksOf, t, func(_ *State, t *Task, _ time.Time) {
		if t.Status == "" {
			t.Status = "pending"
		}
	})
}

// UpdateTask applies fn to a task, stamping completedAt when it becomes done.
func (s *Store) UpdateTask(id string, fn func(*Task)) (Task, bool) {
	return updateRecord(s, tasksOf, id, fn, func(_ *State, orig, updated *Task, now time.Time) {
		if updated.Status == "done" && orig.Status != "done" && updated.CompletedAt == nil {
			d := now
			updated.CompletedAt = &d
		}
	})
}

func (s *Store) DeleteTask(id string) bool { return deleteRecord(s, tasksOf, id) }

func (s *Store) Tasks() []Task { return listCopy(s, tasksOf) }

// Tickets

// AddTicket creates a ticket with the next ticket number.
func (s *Store) AddTicket(t Ticket) Ticket {
	return addRecord(s, ticketsOf, t, func(st *State, t *Ticket, now time.Time) {
		t.TicketNumber = nextNumber(&st.Settings, &st.Settings.NextTicketNumber, st.Settings.TicketPrefix, now)
		if t.Status == "" {
			t.Status = "open"
		}
	})
}

func (s *Store) UpdateTicket(id string, fn func(*Ticket)) (Ticket, bool) {
	return updateRecord(s, ticketsOf, id, fn, func(_ *State, orig, updated *Ticket, now time.Time) {
		updated.TicketNumber = orig.TicketNumber
		resolved := updated.Status == "resolved" || updated.Status == "closed"
		if resolved && updated.ResolvedAt == nil {
			d := now
			updated.ResolvedAt = &d
		}
	})
}

func (s *Store) DeleteTicket(id string) bool { return deleteRecord(s, ticketsOf, id) }

func (s *Store) Tickets() []Ticket { return listCopy(s, ticketsOf) }

// Services

func (s *Store) AddService(svc Service) Service { return addRecord(s, servicesOf, svc, nil) }

func (s *Store) UpdateService(id string, fn func(*Service)) (Service, bool) {
	return updateRecord(s, servicesOf, id, fn, nil)
}

func (s *Store) DeleteService(id string) bool { return deleteRecord(s, servicesOf, id) }

func (s *Store) Services() []Service { return listCopy(s, servicesOf) }

// Statuses

// AddStatus appends a workflow stage. A zero order places it last.
func (s *Store) AddStatus(st Status) Status {
	return addRecord(s, statusesOf, st, func(state *State, st *Status, _ time.Time) {
		if st.Order == 0 {
			st.Order = len(state.Statuses) + 1
		}
	})
}

func (s *Store) UpdateStatus(id string, fn func(*Status)) (Status, bool) {
	return updateRecord(s, statusesOf, id, fn, nil)
}

func (s *Store) DeleteStatus(id string) bool { return deleteRecord(s, statusesOf, id) }

// Statuses returns the workflow stages sorted by order.
func (s *Store) Statuses() []Status {
	out := listCopy(s, statusesOf)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

// Users

func (s *Store) AddUser(u User) User { return addRecord(s, usersOf, u, nil) }

func (s *Store) UpdateUser(id string, fn func(*User)) (User, bool) {
	return updateRecord(s, usersOf, id, fn, nil)
}

func (s *Store) DeleteUser(id string) bool { return deleteRecord(s, usersOf, id) }

func (s *Store) Users() []User { return listCopy(s, usersOf) }

// Settings

// Settings returns the current settings.
func (s *Store) Settings() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Settings
}

// UpdateSettings applies fn to the settings singleton. The sentinel id and
// creation time are preserved.
func (s *Store) UpdateSettings(fn func(*Settings)) Settings {
	s.mu.Lock()
	defer s.mu.Unlock()

	orig := s.state.Settings
	updated := orig
	fn(&updated)
	updated.ID = SettingsID
	updated.CreatedAt = orig.CreatedAt
	updated.UpdatedAt = s.stamp(orig.UpdatedAt)
	updated = clone(updated)
	s.state.Settings = updated
	s.persistLocked()
	return updated
}

// Resolution of references. Dangling ids resolve to a placeholder.

// UnknownName is the display name used for dangling references.
const UnknownName = "Unknown"

func (s *Store) ResolveCustomer(id string) Customer {
	if c, ok := s.Customer(id); ok {
		return c
	}
	return Customer{Meta: Meta{ID: id}, Name: UnknownName}
}

func (s *Store) ResolveStatus(name string) Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if st, ok := statusByName(s.state.Statuses, name); ok {
		return st
	}
	return Status{Name: name, Color: "#9ca3af"}
}

func (s *Store) ResolveService(id string) Service {
	if svc, ok := findRecord(s, servicesOf, id); ok {
		return svc
	}
	return Service{Meta: Meta{ID: id}, Name: UnknownName}
}

// helpers

func nextNumber(settings *Settings, counter *int, prefix string, now time.Time) string {
	if *counter <= 0 {
		*counter = 1
	}
	n := *counter
	*counter = n + 1
	settings.UpdatedAt = now
	return fmt.Sprintf("%s%d", prefix, n)
}

func totals(items []LineItem, taxRate, discount float64) (subtotal, tax, total float64) {
	for _, it := range items {
		subtotal += it.Amount()
	}
	subtotal = roundCents(subtotal)
	taxable := math.Max(subtotal-discount, 0)
	tax = roundCents(taxable * taxRate / 100)
	total = roundCents(taxable + tax)
	return subtotal, tax, total
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}

func firstStatus(statuses []Status) (Status, bool) {
	if len(statuses) == 0 {
		return Status{}, false
	}
	first := statuses[0]
	for _, st := range statuses[1:] {
		if st.Order < first.Order {
			first = st
		}
	}
	return first, true
}

func statusByName(statuses []Status, name string) (Status, bool) {
	for _, st := range statuses {
		if st.Name == name {
			return st, true
		}
	}
	return Status{}, false
}
