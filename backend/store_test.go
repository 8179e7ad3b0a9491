package backend

import (
	"errors"
	"math"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestStore(t *testing.T) (*Store, *MemoryPersister) {
	t.Helper()
	p := &MemoryPersister{}
	return NewStore(p), p
}

func TestAddAssignsIdentity(t *testing.T) {
	s, p := createTestStore(t)

	c := s.AddCustomer(Customer{Name: "Ada", Meta: Meta{ID: "caller-chosen"}})

	assert.NotEmpty(t, c.ID)
	assert.NotEqual(t, "caller-chosen", c.ID)
	assert.False(t, c.CreatedAt.IsZero())
	assert.Equal(t, c.CreatedAt, c.UpdatedAt)
	assert.Equal(t, 1, p.Saves())

	got, ok := s.Customer(c.ID)
	require.True(t, ok)
	assert.Equal(t, "Ada", got.Name)
}

func TestSequenceNumbersAreUnique(t *testing.T) {
	s, _ := createTestStore(t)

	var wg sync.WaitGroup
	numbers := make(chan string, 200)
	for i := 0; i < 100; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			numbers <- s.AddInvoice(Invoice{CustomerID: "c"}).InvoiceNumber
		}()
		go func() {
			defer wg.Done()
			numbers <- s.AddEstimate(Estimate{CustomerID: "c"}).EstimateNumber
		}()
	}
	wg.Wait()
	close(numbers)

	seen := make(map[string]bool)
	for n := range numbers {
		assert.False(t, seen[n], "duplicate number %s", n)
		seen[n] = true
	}
	assert.Len(t, seen, 200)

	settings := s.Settings()
	assert.Equal(t, 1101, settings.NextInvoiceNumber)
	assert.Equal(t, 1101, settings.NextEstimateNumber)
}

func TestInvoiceNumberFormatAndTotals(t *testing.T) {
	s, _ := createTestStore(t)
	s.UpdateSettings(func(st *Settings) { st.TaxRate = 10 })

	inv := s.AddInvoice(Invoice{
		CustomerID: "c1",
		Items: []LineItem{
			{Description: "Tint", Quantity: 2, UnitPrice: 150},
			{Description: "Labor", Quantity: 1.5, UnitPrice: 80},
		},
		Discount: 20,
	})

	assert.Equal(t, "INV-1001", inv.InvoiceNumber)
	assert.Equal(t, "draft", inv.Status)
	assert.Equal(t, 420.0, inv.Subtotal)
	assert.Equal(t, 40.0, inv.TaxAmount)
	assert.Equal(t, 440.0, inv.Total)

	updated, ok := s.UpdateInvoice(inv.ID, func(i *Invoice) {
		i.InvoiceNumber = "HACKED"
		i.Discount = 0
	})
	require.True(t, ok)
	assert.Equal(t, "INV-1001", updated.InvoiceNumber)
	assert.Equal(t, 462.0, updated.Total)

	second := s.AddInvoice(Invoice{CustomerID: "c1"})
	assert.Equal(t, "INV-1002", second.InvoiceNumber)

	ticket := s.AddTicket(Ticket{Subject: "Peeling"})
	assert.Equal(t, "TKT-1", ticket.TicketNumber)
	assert.Equal(t, "open", ticket.Status)
}

func TestJobHistoryIsAppendOnly(t *testing.T) {
	s, _ := createTestStore(t)
	s.SeedDefaults()

	job := s.AddJob(Job{Title: "Chrome delete"})
	require.Equal(t, "Received", job.Status)
	require.Len(t, job.History, 1)

	updated, ok := s.UpdateJob(job.ID, func(j *Job) {
		j.Status = "In Progress"
		j.History = nil // ignored
		j.Notes = "started"
	})
	require.True(t, ok)
	require.Len(t, updated.History, 2)
	assert.Equal(t, "Received", updated.History[0].Status)
	assert.Equal(t, "In Progress", updated.History[1].Status)
	assert.Equal(t, "started", updated.Notes)

	// No status change: no new entry.
	updated, _ = s.UpdateJob(job.ID, func(j *Job) { j.Notes = "waiting on film" })
	assert.Len(t, updated.History, 2)

	updated, _ = s.SetJobStatus(job.ID, "Completed", "picked up")
	require.Len(t, updated.History, 3)
	assert.Equal(t, "picked up", updated.History[2].Note)
	assert.NotNil(t, updated.CompletedAt)

	for i := 1; i < len(updated.History); i++ {
		assert.False(t, updated.History[i].Date.Before(updated.History[i-1].Date))
	}
}

func TestUpdatePreservesIdentityAndIsMonotonic(t *testing.T) {
	s, _ := createTestStore(t)
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	s.SetClock(func() time.Time { return base })

	c := s.AddCustomer(Customer{Name: "Ada"})

	// Clock goes backwards.
	s.SetClock(func() time.Time { return base.Add(-time.Hour) })
	updated, ok := s.UpdateCustomer(c.ID, func(cu *Customer) {
		cu.ID = "other"
		cu.CreatedAt = time.Time{}
		cu.Name = "Ada L."
	})
	require.True(t, ok)
	assert.Equal(t, c.ID, updated.ID)
	assert.True(t, updated.CreatedAt.Equal(base))
	assert.False(t, updated.UpdatedAt.Before(c.UpdatedAt))
	assert.Equal(t, "Ada L.", updated.Name)
}

func TestEstimateTokenIsStable(t *testing.T) {
	s, _ := createTestStore(t)

	a := s.AddEstimate(Estimate{CustomerID: "c1", Items: []LineItem{{Quantity: 1, UnitPrice: 900}}})
	b := s.AddEstimate(Estimate{CustomerID: "c1"})

	assert.NotEmpty(t, a.PublicToken)
	assert.NotEqual(t, a.PublicToken, b.PublicToken)
	assert.Equal(t, "EST-1001", a.EstimateNumber)

	updated, ok := s.UpdateEstimate(a.ID, func(e *Estimate) {
		e.PublicToken = b.PublicToken
		e.Status = "sent"
	})
	require.True(t, ok)
	assert.Equal(t, a.PublicToken, updated.PublicToken)
	assert.Equal(t, "sent", updated.Status)

	found, ok := s.EstimateByToken(a.PublicToken)
	require.True(t, ok)
	assert.Equal(t, a.ID, found.ID)
}

func TestMissingIdsAreNoOps(t *testing.T) {
	s, p := createTestStore(t)
	s.AddCustomer(Customer{Name: "Ada"})
	saves := p.Saves()

	_, ok := s.UpdateCustomer("nope", func(c *Customer) { c.Name = "x" })
	assert.False(t, ok)
	assert.False(t, s.DeleteCustomer("nope"))
	assert.False(t, s.DeleteJob(""))
	assert.Equal(t, saves, p.Saves())
	assert.Len(t, s.Customers(), 1)
}

func TestDeleteDoesNotCascade(t *testing.T) {
	s, _ := createTestStore(t)
	c := s.AddCustomer(Customer{Name: "Ada"})
	s.AddJob(Job{CustomerID: c.ID, Title: "Tint"})

	assert.True(t, s.DeleteCustomer(c.ID))
	assert.Len(t, s.Jobs(), 1)
	assert.Equal(t, UnknownName, s.ResolveCustomer(c.ID).Name)
	assert.Equal(t, UnknownName, s.ResolveService("missing").Name)
	assert.Equal(t, "Gone", s.ResolveStatus("Gone").Name)
}

func TestReadsReturnCopies(t *testing.T) {
	s, _ := createTestStore(t)
	j := s.AddJob(Job{Title: "Wrap", ServiceIDs: []string{"a"}})

	jobs := s.Jobs()
	jobs[0].Title = "mutated"
	jobs[0].ServiceIDs[0] = "mutated"

	got, _ := s.Job(j.ID)
	assert.Equal(t, "Wrap", got.Title)
	assert.Equal(t, []string{"a"}, got.ServiceIDs)
}

func TestNonFiniteNumbersAreZeroed(t *testing.T) {
	s, p := createTestStore(t)

	var e Expense
	require.NotPanics(t, func() {
		e = s.AddExpense(Expense{Description: "Vinyl", Amount: math.NaN()})
	})
	assert.NotEmpty(t, e.ID)
	assert.Zero(t, e.Amount)

	updated, ok := s.UpdateExpense(e.ID, func(x *Expense) { x.Amount = math.Inf(1) })
	require.True(t, ok)
	assert.Zero(t, updated.Amount)

	settings := s.UpdateSettings(func(st *Settings) { st.TaxRate = math.Inf(-1) })
	assert.Zero(t, settings.TaxRate)

	reopened, err := Open(p)
	require.NoError(t, err)
	require.Len(t, reopened.Expenses(), 1)
	assert.Equal(t, "Vinyl", reopened.Expenses()[0].Description)
	assert.Zero(t, reopened.Expenses()[0].Amount)
}

func TestReplaceStateIsAllOrNothing(t *testing.T) {
	s, _ := createTestStore(t)
	s.AddCustomer(Customer{Name: "Keep"})
	s.AddJob(Job{Title: "Keep"})

	err := s.ReplaceState(map[Collection][]Record{
		CollectionCustomers: {{"id": "c9", "name": "New"}},
		"widgets":           {{"id": "w1"}},
	})
	require.Error(t, err)
	assert.Equal(t, "Keep", s.Customers()[0].Name)

	err = s.ReplaceState(map[Collection][]Record{
		CollectionCustomers: {{"id": "c9", "name": "New"}},
		CollectionJobs:      {},
	})
	require.NoError(t, err)
	require.Len(t, s.Customers(), 1)
	assert.Equal(t, "c9", s.Customers()[0].ID)
	assert.Empty(t, s.Jobs())
}

func TestReplaceDropsMalformedFields(t *testing.T) {
	s, _ := createTestStore(t)

	err := s.ReplaceState(map[Collection][]Record{
		CollectionJobs:     {{"id": "j9", "title": "Wrap", "vehicleYear": "bad"}},
		CollectionLeads:    {{"name": "no id"}, {"id": "l1", "name": "Linus", "estimatedValue": "about 500"}},
		CollectionSettings: {{"id": SettingsID, "businessName": "Remote", "taxRate": "high"}},
	})
	require.NoError(t, err)

	jobs := s.Jobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, "Wrap", jobs[0].Title)
	assert.Zero(t, jobs[0].VehicleYear)

	leads := s.Leads()
	require.Len(t, leads, 1, "records without id are skipped")
	assert.Equal(t, "Linus", leads[0].Name)
	assert.Zero(t, leads[0].EstimatedValue)

	settings := s.Settings()
	assert.Equal(t, "Remote", settings.BusinessName)
	assert.Zero(t, settings.TaxRate)
	assert.Equal(t, "INV-", settings.InvoicePrefix)
}

func TestReplaceCollectionsIsolatesFailures(t *testing.T) {
	s, _ := createTestStore(t)
	s.AddJob(Job{Title: "Keep"})

	failed := s.ReplaceCollections(map[Collection][]Record{
		CollectionCustomers: {{"id": "c1", "name": "Ada"}},
		"widgets":           {{"id": "w1"}},
	})

	require.Len(t, failed, 1)
	assert.Error(t, failed["widgets"])
	require.Len(t, s.Customers(), 1)
	assert.Equal(t, "Ada", s.Customers()[0].Name)
	assert.Equal(t, "Keep", s.Jobs()[0].Title)

	assert.Empty(t, s.ReplaceCollections(nil))
}

func TestApplyHelpers(t *testing.T) {
	s, _ := createTestStore(t)

	require.NoError(t, s.ApplyInsert(CollectionServices, Record{"id": "s1", "name": "Tint", "price": 300.0}))
	require.NoError(t, s.ApplyInsert(CollectionServices, Record{"id": "s1", "name": "Tint", "price": 350.0}))
	services := s.Services()
	require.Len(t, services, 1)
	assert.Equal(t, 350.0, services[0].Price)

	ok, err := s.ApplyUpdate(CollectionServices, Record{"id": "missing", "name": "x"})
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.ApplyDelete(CollectionServices, "s1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.ApplyDelete(CollectionSettings, SettingsID)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, SettingsID, s.Settings().ID)
}

func TestWriteThroughSurvivesReload(t *testing.T) {
	db, err := InitDatabase(filepath.Join(t.TempDir(), "crm.db"))
	require.NoError(t, err)

	s, err := Open(db)
	require.NoError(t, err)
	c := s.AddCustomer(Customer{Name: "Ada"})
	s.AddInvoice(Invoice{CustomerID: c.ID})
	s.UpdateSettings(func(st *Settings) { st.BusinessName = "Dawn Customs East" })
	require.NoError(t, db.Close())

	db, err = InitDatabase(db.Path())
	require.NoError(t, err)
	defer db.Close()

	reloaded, err := Open(db)
	require.NoError(t, err)
	assert.Len(t, reloaded.Customers(), 1)
	assert.Equal(t, "INV-1001", reloaded.Invoices()[0].InvoiceNumber)
	assert.Equal(t, 1002, reloaded.Settings().NextInvoiceNumber)
	assert.Equal(t, "Dawn Customs East", reloaded.Settings().BusinessName)
	assert.Empty(t, reloaded.Jobs())

	stats, err := db.GetStats()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.DocumentCount)
	assert.Equal(t, 1, stats.SchemaVersion)
}

func TestSaveFailureIsNotFatal(t *testing.T) {
	s, p := createTestStore(t)
	p.Err = errors.New("disk full")

	c := s.AddCustomer(Customer{Name: "Ada"})

	assert.NotEmpty(t, c.ID)
	assert.Len(t, s.Customers(), 1)
}

func TestOpenEmptyAndPartialDocuments(t *testing.T) {
	s, err := Open(&MemoryPersister{})
	require.NoError(t, err)
	assert.Equal(t, DefaultSettings().BusinessName, s.Settings().BusinessName)

	p := &MemoryPersister{}
	require.NoError(t, p.Save([]byte(`{"customers":[{"id":"c1","name":"Ada"}]}`)))
	s, err = Open(p)
	require.NoError(t, err)
	assert.Len(t, s.Customers(), 1)
	assert.Empty(t, s.Jobs())
	assert.Equal(t, SettingsID, s.Settings().ID)

	require.NoError(t, p.Save([]byte(`not json`)))
	_, err = Open(p)
	assert.Error(t, err)
}

func TestJobImages(t *testing.T) {
	s, _ := createTestStore(t)
	j := s.AddJob(Job{Title: "Wrap", Status: "Received"})

	img, ok := s.AddJobImage(j.ID, "Received", "aGVsbG8=")
	require.True(t, ok)
	assert.NotEmpty(t, img.ID)

	// Regular updates cannot drop images.
	updated, _ := s.UpdateJob(j.ID, func(job *Job) { job.Images = nil })
	assert.Len(t, updated.Images["Received"], 1)

	assert.True(t, s.RemoveJobImage(j.ID, img.ID))
	assert.False(t, s.RemoveJobImage(j.ID, img.ID))
	got, _ := s.Job(j.ID)
	assert.Empty(t, got.Images["Received"])

	_, ok = s.AddJobImage("missing", "Received", "x")
	assert.False(t, ok)
}

func TestGetStats(t *testing.T) {
	s, _ := createTestStore(t)
	s.SeedDefaults()
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	past := now.AddDate(0, 0, -5)

	s.AddJob(Job{Title: "a"})
	s.AddJob(Job{Title: "b", Status: "Completed"})
	s.AddLead(Lead{Name: "l1"})
	s.AddLead(Lead{Name: "l2", Status: "lost"})

	inv := s.AddInvoice(Invoice{Items: []LineItem{{Quantity: 1, UnitPrice: 100}}, DueDate: &past})
	s.UpdateInvoice(inv.ID, func(i *Invoice) {
		i.Status = "sent"
		i.AmountPaid = 40
	})
	s.AddPayment(Payment{InvoiceID: inv.ID, Amount: 40, Date: &past})
	s.AddExpense(Expense{Description: "Film", Amount: 15})
	s.AddTask(Task{Title: "Order film", DueDate: &past})
	s.AddTicket(Ticket{Subject: "Scratch"})

	stats := s.GetStats(now)

	assert.Equal(t, 2, stats.TotalJobs)
	assert.Equal(t, 1, stats.ActiveJobs)
	assert.Equal(t, 1, stats.CompletedJobs)
	assert.Equal(t, 1, stats.JobsByStatus["Received"])
	assert.Equal(t, 1, stats.OpenLeads)
	assert.Equal(t, 40.0, stats.Revenue)
	assert.Equal(t, 40.0, stats.RevenueThisMonth)
	assert.Equal(t, 60.0, stats.Outstanding)
	assert.Equal(t, 1, stats.OverdueInvoices)
	assert.Equal(t, 25.0, stats.Profit)
	assert.Equal(t, 1, stats.OverdueTasks)
	assert.Equal(t, 1, stats.OpenTickets)

	// Pure: a second call sees the same numbers.
	assert.Equal(t, stats, s.GetStats(now))
}

func TestSeedDefaultsOnlyOnce(t *testing.T) {
	s, _ := createTestStore(t)

	assert.True(t, s.SeedDefaults())
	statuses := s.Statuses()
	require.NotEmpty(t, statuses)
	assert.Equal(t, "Received", statuses[0].Name)
	assert.True(t, statuses[len(statuses)-1].IsFinal)

	assert.False(t, s.SeedDefaults())
	assert.Len(t, s.Statuses(), len(statuses))
}
