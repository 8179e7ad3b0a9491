package remote

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnconfiguredClientDegrades(t *testing.T) {
	ctx := context.Background()
	client := NewClient(nil)
	jobs := client.Table("jobs")

	assert.False(t, client.Configured())
	assert.ErrorIs(t, client.Ping(ctx), ErrNotConfigured)

	rec, err := jobs.Create(ctx, Record{"id": "j1"})
	assert.Nil(t, rec)
	assert.ErrorIs(t, err, ErrNotConfigured)

	rows, err := jobs.Read(ctx, "")
	assert.Nil(t, rows)
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = jobs.Update(ctx, "j1", Record{"title": "x"})
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.ErrorIs(t, jobs.Remove(ctx, "j1"), ErrNotConfigured)

	_, err = jobs.BatchUpsert(ctx, []Record{{"id": "j1"}})
	assert.ErrorIs(t, err, ErrNotConfigured)

	sub, err := jobs.Subscribe(ctx, func(Change) {})
	assert.Nil(t, sub)
	assert.NoError(t, err)
}

func TestBatchUpsertChecksBatchBeforeDriver(t *testing.T) {
	driver := NewMemoryDriver()
	table := NewClient(driver).Table("jobs")

	for _, batch := range [][]Record{nil, {}} {
		rows, err := table.BatchUpsert(context.Background(), batch)
		require.NoError(t, err)
		assert.NotNil(t, rows)
		assert.Empty(t, rows)
	}
	assert.Equal(t, 0, driver.Calls("Upsert"))

	_, err := table.BatchUpsert(context.Background(), []Record{{"id": "j1"}, {"title": "no id"}})
	var re *RemoteError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "BatchUpsert jobs failed: record 2 of 2 has no id", err.Error())
	assert.Nil(t, re.Unwrap())
	assert.Equal(t, 0, driver.Calls("Upsert"))

	// Also without a driver.
	rows, err := NewClient(nil).Table("jobs").BatchUpsert(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestTableTranslatesShapes(t *testing.T) {
	ctx := context.Background()
	driver := NewMemoryDriver()
	table := NewClient(driver).Table("jobs")

	created, err := table.Create(ctx, Record{
		"id":          "j1",
		"customerId":  "c1",
		"vehicleMake": "Audi",
		"createdAt":   "2024-02-01T10:00:00+01:00",
	})
	require.NoError(t, err)

	stored := driver.Rows("jobs")
	require.Len(t, stored, 1)
	assert.Equal(t, "c1", stored[0]["customer_id"])
	assert.Equal(t, "2024-02-01T09:00:00Z", stored[0]["created_at"])

	assert.Equal(t, "c1", created["customerId"])
	assert.Equal(t, "Audi", created["vehicleMake"])
	assert.Equal(t, "2024-02-01T09:00:00Z", created["createdAt"])

	updated, err := table.Update(ctx, "j1", Record{"vehicleMake": "BMW"})
	require.NoError(t, err)
	assert.Equal(t, "BMW", updated["vehicleMake"])
	assert.Equal(t, "c1", updated["customerId"])

	one, err := table.Read(ctx, "j1")
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.Equal(t, "BMW", one[0]["vehicleMake"])

	require.NoError(t, table.Remove(ctx, "j1"))
	all, err := table.Read(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestTableErrorsAreWrapped(t *testing.T) {
	ctx := context.Background()
	driver := NewMemoryDriver()
	boom := errors.New("connection reset")
	driver.SetError("Upsert", "jobs", boom)
	table := NewClient(driver).Table("jobs")

	rows, err := table.BatchUpsert(ctx, []Record{{"id": "j1"}})
	assert.Nil(t, rows)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)

	var re *RemoteError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "BatchUpsert", re.Operation)
	assert.Equal(t, "jobs", re.Table)

	// Other tables are unaffected.
	_, err = NewClient(driver).Table("customers").BatchUpsert(ctx, []Record{{"id": "c1"}})
	assert.NoError(t, err)

	_, err = table.Update(ctx, "missing", Record{"title": "x"})
	require.ErrorAs(t, err, &re)
	assert.True(t, re.IsNotFound())
	assert.Equal(t, "missing", re.RecordID)
}

func TestSubscribeDeliversLocalShape(t *testing.T) {
	ctx := context.Background()
	driver := NewMemoryDriver()
	table := NewClient(driver).Table("customers")

	var got []Change
	sub, err := table.Subscribe(ctx, func(ch Change) { got = append(got, ch) })
	require.NoError(t, err)
	require.NotNil(t, sub)
	assert.Equal(t, 1, driver.Listeners("customers"))

	driver.Emit(Change{Type: ChangeInsert, Table: "customers", New: Record{"id": "c1", "created_at": "2024-01-01"}})
	driver.Emit(Change{Type: ChangeDelete, Table: "customers", Old: Record{"id": "c1"}})
	driver.Emit(Change{Type: ChangeInsert, Table: "jobs", New: Record{"id": "j1"}})

	require.Len(t, got, 2)
	assert.Equal(t, ChangeInsert, got[0].Type)
	assert.Equal(t, "2024-01-01T00:00:00Z", got[0].New["createdAt"])
	assert.Equal(t, ChangeDelete, got[1].Type)
	assert.Equal(t, "c1", got[1].Old["id"])

	sub.Unsubscribe()
	sub.Unsubscribe()
	assert.Equal(t, 0, driver.Listeners("customers"))

	driver.Emit(Change{Type: ChangeInsert, Table: "customers", New: Record{"id": "c2"}})
	assert.Len(t, got, 2)
}

func TestUpsertReportsInsertOrUpdate(t *testing.T) {
	ctx := context.Background()
	driver := NewMemoryDriver()
	driver.Seed("statuses", Record{"id": "s1", "name": "Received"})

	var kinds []ChangeType
	stop, err := driver.Listen(ctx, "statuses", func(ch Change) { kinds = append(kinds, ch.Type) })
	require.NoError(t, err)
	defer stop()

	rows, err := driver.Upsert(ctx, "statuses", []Record{
		{"id": "s1", "name": "Intake"},
		{"id": "s2", "name": "Done"},
	})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []ChangeType{ChangeUpdate, ChangeInsert}, kinds)

	stored := driver.Rows("statuses")
	require.Len(t, stored, 2)
	assert.Equal(t, "Intake", stored[0]["name"])
}

func TestConnectPicksDriverByScheme(t *testing.T) {
	ctx := context.Background()

	client, err := Connect(ctx, "")
	require.NoError(t, err)
	assert.False(t, client.Configured())

	client, err = Connect(ctx, "memory://local")
	require.NoError(t, err)
	assert.True(t, client.Configured())
	assert.NoError(t, client.Ping(ctx))

	_, err = Connect(ctx, "ftp://example.com")
	assert.Error(t, err)

	assert.Contains(t, Schemes(), "postgres")
	assert.Contains(t, Schemes(), "memory")
}
