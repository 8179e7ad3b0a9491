package backend

import (
	"fmt"
	"time"
)

// Stats is the dashboard aggregation over the store.
type Stats struct {
	TotalJobs        int
	ActiveJobs       int
	CompletedJobs    int
	JobsByStatus     map[string]int
	TotalCustomers   int
	OpenLeads        int
	PendingEstimates int
	Revenue          float64 // payments received
	Outstanding      float64 // unpaid invoice balances
	OverdueInvoices  int
	ExpenseTotal     float64
	Profit           float64
	PendingTasks     int
	OverdueTasks     int
	OpenTickets      int
	RevenueThisMonth float64
}

// GetStats aggregates the current state as of now. It is recomputed on
// every call.
func (s *Store) GetStats(now time.Time) Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := &s.state

	stats := Stats{
		TotalJobs:      len(st.Jobs),
		JobsByStatus:   make(map[string]int),
		TotalCustomers: len(st.Customers),
	}

	final := make(map[string]bool, len(st.Statuses))
	for _, status := range st.Statuses {
		final[status.Name] = status.IsFinal
	}
	for _, j := range st.Jobs {
		stats.JobsByStatus[j.Status]++
		if final[j.Status] {
			stats.CompletedJobs++
		} else {
			stats.ActiveJobs++
		}
	}

	for _, l := range st.Leads {
		if l.Status != "converted" && l.Status != "lost" {
			stats.OpenLeads++
		}
	}

	for _, e := range st.Estimates {
		if e.Status == "draft" || e.Status == "sent" {
			stats.PendingEstimates++
		}
	}

	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	for _, p := range st.Payments {
		stats.Revenue += p.Amount
		if p.Date != nil && !p.Date.Before(monthStart) && !p.Date.After(now) {
			stats.RevenueThisMonth += p.Amount
		}
	}

	for _, inv := range st.Invoices {
		if inv.Status == "paid" || inv.Status == "cancelled" || inv.Status == "draft" {
			continue
		}
		stats.Outstanding += inv.Balance()
		if inv.DueDate != nil && inv.DueDate.Before(now) {
			stats.OverdueInvoices++
		}
	}

	for _, e := range st.Expenses {
		stats.ExpenseTotal += e.Amount
	}

	for _, t := range st.Tasks {
		if t.Status == "done" {
			continue
		}
		stats.PendingTasks++
		if t.DueDate != nil && t.DueDate.Before(now) {
			stats.OverdueTasks++
		}
	}

	for _, t := range st.Tickets {
		if t.Status == "open" || t.Status == "in_progress" {
			stats.OpenTickets++
		}
	}

	stats.Revenue = roundCents(stats.Revenue)
	stats.RevenueThisMonth = roundCents(stats.RevenueThisMonth)
	stats.Outstanding = roundCents(stats.Outstanding)
	stats.ExpenseTotal = roundCents(stats.ExpenseTotal)
	stats.Profit = roundCents(stats.Revenue - stats.ExpenseTotal)
	return stats
}

// String returns a one-line summary.
func (s Stats) String() string {
	return fmt.Sprintf(
		"Jobs: %d (%d active) | Customers: %d | Leads: %d | Revenue: %.2f | Outstanding: %.2f | Profit: %.2f",
		s.TotalJobs, s.ActiveJobs, s.TotalCustomers, s.OpenLeads, s.Revenue, s.Outstanding, s.Profit,
	)
}

// SeedDefaults installs the default workflow statuses and service catalogue
// when the store has none. It reports whether anything was added.
func (s *Store) SeedDefaults() bool {
	seeded := false
	if s.Count(CollectionStatuses) == 0 {
		for i, st := range defaultStatuses {
			st.Order = i + 1
			s.AddStatus(st)
		}
		seeded = true
	}
	if s.Count(CollectionServices) == 0 {
		for _, svc := range defaultServices {
			s.AddService(svc)
		}
		seeded = true
	}
	return seeded
}

var defaultStatuses = []Status{
	{Name: "Received", Color: "#6b7280"},
	{Name: "In Progress", Color: "#3b82f6"},
	{Name: "Quality Check", Color: "#f59e0b"},
	{Name: "Ready for Pickup", Color: "#10b981"},
	{Name: "Completed", Color: "#22c55e", IsFinal: true},
}

var defaultServices = []Service{
	{Name: "Full Vinyl Wrap", Category: "wrap", Price: 3200, DurationHours: 24},
	{Name: "Window Tint", Category: "tint", Price: 350, DurationHours: 3},
	{Name: "Paint Protection Film", Category: "protection", Price: 1800, DurationHours: 12},
	{Name: "Ceramic Coating", Category: "protection", Price: 900, DurationHours: 8},
	{Name: "Custom Paint", Category: "paint", Price: 4500, DurationHours: 40},
}
