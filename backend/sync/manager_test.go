package sync

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"dawncrm/backend"
	"dawncrm/backend/remote"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// createTestManager returns a manager over an empty store and a fresh
// in-memory remote. The push timer is disabled.
func createTestManager(t *testing.T) (*Manager, *backend.Store, *remote.MemoryDriver) {
	t.Helper()
	store := backend.NewStore(&backend.MemoryPersister{})
	driver := remote.NewMemoryDriver()
	m := NewManager(store, remote.NewClient(driver), Options{PushInterval: -1})
	t.Cleanup(m.Cleanup)
	return m, store, driver
}

func TestInitializeNotConfigured(t *testing.T) {
	store := backend.NewStore(nil)
	m := NewManager(store, nil, Options{})

	result := m.Initialize(context.Background())

	assert.False(t, result.Configured)
	assert.NoError(t, result.Err)
	assert.Equal(t, DirectionNone, result.Direction)
	assert.Equal(t, StateIdle, m.Status().State)

	push := m.Push(context.Background())
	assert.True(t, push.Skipped)
	assert.ErrorIs(t, push.Err(), ErrDisabled)

	pull := m.Pull(context.Background(), Replace)
	assert.True(t, pull.Skipped)

	m.Cleanup()
	m.Cleanup()
}

func TestInitializeConnectionFailed(t *testing.T) {
	m, store, driver := createTestManager(t)
	store.AddCustomer(backend.Customer{Name: "Ada"})
	driver.SetError("Ping", "", errors.New("dial tcp: refused"))

	result := m.Initialize(context.Background())

	require.Error(t, result.Err)
	assert.True(t, result.Configured)
	assert.False(t, result.Connected)
	assert.Equal(t, StateConnectionFailed, m.Status().State)
	assert.Equal(t, 0, driver.Listeners("customers"))
	assert.Equal(t, 0, driver.Calls("Upsert"))
	assert.Equal(t, 0, driver.Calls("Select"))

	assert.True(t, m.Push(context.Background()).Skipped)
}

func TestInitializePushesWhenLocalHasData(t *testing.T) {
	m, store, driver := createTestManager(t)
	c := store.AddCustomer(backend.Customer{Name: "Ada", Email: "ada@example.com"})
	store.AddJob(backend.Job{CustomerID: c.ID, Title: "Full wrap", Status: "Received"})

	result := m.Initialize(context.Background())

	require.NoError(t, result.Err)
	assert.Equal(t, DirectionPush, result.Direction)
	require.NotNil(t, result.Push)
	assert.NoError(t, result.Push.Err())
	assert.Equal(t, len(backend.AllCollections), result.Subscriptions)

	customers := driver.Rows("customers")
	require.Len(t, customers, 1)
	assert.Equal(t, "Ada", customers[0]["name"])

	jobs := driver.Rows("jobs")
	require.Len(t, jobs, 1)
	assert.Equal(t, c.ID, jobs[0]["customer_id"])

	assert.Len(t, driver.Rows("settings"), 1)
	assert.Equal(t, 1, driver.Listeners("jobs"))
	assert.False(t, m.Status().LastSync.IsZero())
}

func TestInitializePullsWhenLocalEmpty(t *testing.T) {
	m, store, driver := createTestManager(t)
	driver.Seed("statuses", remote.Record{"id": "s1", "name": "Received", "order": 1})
	driver.Seed("customers", remote.Record{"id": "c1", "name": "Ada", "phone": "555-0100"})
	driver.Seed("jobs", remote.Record{
		"id":          "j1",
		"customer_id": "c1",
		"title":       "Tint",
		"status":      "Received",
		"created_at":  "2024-04-01 09:30:00+00",
		"due_date":    "not-a-date",
		"history":     []any{map[string]any{"status": "Received", "date": "2024-04-01T09:30:00Z"}},
	})
	driver.Seed("settings", remote.Record{"id": backend.SettingsID, "business_name": "Remote Customs", "next_invoice_number": 2000})

	result := m.Initialize(context.Background())

	require.NoError(t, result.Err)
	assert.Equal(t, DirectionPull, result.Direction)
	require.NotNil(t, result.Pull)
	assert.True(t, result.Pull.Applied)

	jobs := store.Jobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, "c1", jobs[0].CustomerID)
	assert.Equal(t, "Ada", store.ResolveCustomer(jobs[0].CustomerID).Name)
	assert.Nil(t, jobs[0].DueDate)
	assert.Equal(t, time.Date(2024, 4, 1, 9, 30, 0, 0, time.UTC), jobs[0].CreatedAt.UTC())
	require.Len(t, jobs[0].History, 1)

	settings := store.Settings()
	assert.Equal(t, "Remote Customs", settings.BusinessName)
	assert.Equal(t, 2000, settings.NextInvoiceNumber)
	assert.Equal(t, "INV-", settings.InvoicePrefix)
}

func TestPullReplaceKeepsLocalWhenRemoteEmpty(t *testing.T) {
	m, store, _ := createTestManager(t)
	store.AddCustomer(backend.Customer{Name: "Local only"})

	result := m.Pull(context.Background(), Replace)

	assert.NoError(t, result.Err())
	assert.False(t, result.Applied)
	assert.Len(t, store.Customers(), 1)
}

func TestPullMergeRemoteWins(t *testing.T) {
	m, store, driver := createTestManager(t)
	a := store.AddCustomer(backend.Customer{Name: "A"})
	b := store.AddCustomer(backend.Customer{Name: "B local"})
	driver.Seed("customers",
		remote.Record{"id": b.ID, "name": "B remote"},
		remote.Record{"id": "c", "name": "C"},
	)

	result := m.Pull(context.Background(), Merge)

	require.NoError(t, result.Err())
	assert.True(t, result.Applied)

	customers := store.Customers()
	require.Len(t, customers, 3)
	assert.Equal(t, []string{b.ID, "c", a.ID}, []string{customers[0].ID, customers[1].ID, customers[2].ID})
	assert.Equal(t, "B remote", customers[0].Name)
	assert.Equal(t, "A", customers[2].Name)
}

func TestPullIsolatesReadFailures(t *testing.T) {
	m, store, driver := createTestManager(t)
	store.AddLead(backend.Lead{Name: "Keep me"})
	driver.Seed("customers", remote.Record{"id": "c1", "name": "Remote"})
	driver.SetError("Select", "leads", errors.New("timeout"))

	result := m.Pull(context.Background(), Replace)

	require.Error(t, result.Err())
	assert.Contains(t, result.Errors, backend.CollectionLeads)
	assert.True(t, result.Applied)
	assert.Len(t, store.Customers(), 1)
	assert.Len(t, store.Leads(), 1, "leads whose read failed stay untouched")
}

func TestPullKeepsCollectionsBesideMalformedRow(t *testing.T) {
	m, store, driver := createTestManager(t)
	driver.Seed("customers", remote.Record{"id": "c1", "name": "Ada"})
	driver.Seed("jobs", remote.Record{"id": "j1", "customer_id": "c1", "title": "Tint", "status": "Received"})
	driver.Seed("leads",
		remote.Record{"id": "l1", "name": "Walk-in", "estimated_value": "about 500"},
		remote.Record{"name": "No id"},
	)

	result := m.Pull(context.Background(), Replace)

	require.NoError(t, result.Err())
	assert.True(t, result.Applied)
	assert.Len(t, store.Customers(), 1)

	jobs := store.Jobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, "Ada", store.ResolveCustomer(jobs[0].CustomerID).Name)

	leads := store.Leads()
	require.Len(t, leads, 1)
	assert.Equal(t, "Walk-in", leads[0].Name)
	assert.Zero(t, leads[0].EstimatedValue)
}

func TestNewManagerSkipsUnknownCollections(t *testing.T) {
	store := backend.NewStore(&backend.MemoryPersister{})
	driver := remote.NewMemoryDriver()
	driver.Seed("customers", remote.Record{"id": "c1", "name": "Ada"})
	driver.Seed("widgets", remote.Record{"id": "w1"})
	m := NewManager(store, remote.NewClient(driver), Options{
		PushInterval: -1,
		Collections:  []backend.Collection{backend.CollectionCustomers, "widgets"},
	})
	defer m.Cleanup()

	result := m.Pull(context.Background(), Replace)

	require.NoError(t, result.Err())
	assert.NotContains(t, result.Pulled, backend.Collection("widgets"))
	assert.Len(t, store.Customers(), 1)
}

func TestPushIsolatesFailures(t *testing.T) {
	m, store, driver := createTestManager(t)
	store.AddCustomer(backend.Customer{Name: "Ada"})
	store.AddJob(backend.Job{Title: "Wrap"})
	driver.SetError("Upsert", "jobs", errors.New("constraint violation"))

	result := m.Push(context.Background())

	require.Error(t, result.Err())
	assert.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors, backend.CollectionJobs)
	assert.Equal(t, 1, result.Pushed[backend.CollectionCustomers])
	assert.True(t, result.LastSync.IsZero())
	assert.Len(t, driver.Rows("customers"), 1)
	assert.Empty(t, driver.Rows("jobs"))

	status := m.Status()
	assert.True(t, status.LastSync.IsZero())
	assert.Error(t, status.LastError)
	assert.Len(t, store.Jobs(), 1, "failed push leaves local state alone")

	driver.SetError("Upsert", "jobs", nil)
	result = m.Push(context.Background())
	require.NoError(t, result.Err())
	assert.False(t, result.LastSync.IsZero())
	assert.Len(t, driver.Rows("jobs"), 1)
}

func TestPushSingleFlight(t *testing.T) {
	m, store, driver := createTestManager(t)
	store.AddCustomer(backend.Customer{Name: "Ada"})

	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	driver.SetHook("Upsert", func(string) {
		once.Do(func() {
			close(started)
			<-release
		})
	})

	done := make(chan PushResult, 1)
	go func() { done <- m.Push(context.Background()) }()
	<-started

	busy := m.Push(context.Background())
	assert.True(t, busy.Busy)
	assert.Equal(t, StatePushing, m.Status().State)
	assert.True(t, m.Status().Pushing)

	close(release)
	first := <-done
	assert.False(t, first.Busy)
	assert.NoError(t, first.Err())
	assert.Equal(t, StateIdle, m.Status().State)

	// The flag is cleared once the push finishes.
	assert.False(t, m.Push(context.Background()).Busy)
}

func TestPushRecoversFromPanic(t *testing.T) {
	m, store, driver := createTestManager(t)
	store.AddCustomer(backend.Customer{Name: "Ada"})
	driver.SetHook("Upsert", func(table string) {
		if table == "customers" {
			panic("driver exploded")
		}
	})

	result := m.Push(context.Background())

	require.Error(t, result.Err())
	assert.False(t, m.Status().Pushing)
	assert.Equal(t, StateIdle, m.Status().State)
}

func TestTimerPushesPeriodically(t *testing.T) {
	store := backend.NewStore(nil)
	store.AddCustomer(backend.Customer{Name: "Ada"})
	driver := remote.NewMemoryDriver()
	m := NewManager(store, remote.NewClient(driver), Options{PushInterval: 10 * time.Millisecond})
	defer m.Cleanup()

	m.Initialize(context.Background())
	initial := driver.Calls("Upsert")

	require.Eventually(t, func() bool {
		return driver.Calls("Upsert") > initial
	}, 2*time.Second, 5*time.Millisecond)
}

func TestCleanupIdempotent(t *testing.T) {
	m, store, driver := createTestManager(t)

	m.Cleanup() // before Initialize
	m.Cleanup()
	assert.Equal(t, StateCleanup, m.Status().State)

	result := m.Initialize(context.Background())
	assert.ErrorIs(t, result.Err, ErrAlreadyInitialized)
	assert.Equal(t, 0, driver.Listeners("jobs"))

	m2 := NewManager(store, remote.NewClient(driver), Options{PushInterval: time.Hour})
	m2.Initialize(context.Background())
	assert.Equal(t, 1, driver.Listeners("jobs"))
	m2.Cleanup()
	m2.Cleanup()
	assert.Equal(t, 0, driver.Listeners("jobs"))
	assert.Empty(t, m2.Status().Subscriptions)
	assert.True(t, m2.Push(context.Background()).Skipped)
}
