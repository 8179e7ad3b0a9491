// Package remote is the gateway to the optional remote backend. It exposes
// per-table CRUD, batch upsert and change subscriptions over a pluggable
// Driver, translating records with the format package on the way in and out.
//
// Every operation returns its data and an error; nothing panics or throws
// across this boundary. A Client without a driver degrades to
// ErrNotConfigured so local-only operation keeps working.
package remote

import (
	"context"
	"fmt"
	"sync"

	"dawncrm/backend/format"
)

// Record is a generic JSON-shaped object.
type Record = map[string]any

// ChangeType is the kind of a row change.
type ChangeType string

const (
	ChangeInsert ChangeType = "insert"
	ChangeUpdate ChangeType = "update"
	ChangeDelete ChangeType = "delete"
)

// Change is one row-level event. New is set for inserts and updates, Old
// carries at least the id for deletes.
type Change struct {
	Type  ChangeType
	Table string
	New   Record
	Old   Record
}

// Driver talks to a concrete backend using remote-shaped (snake_case)
// records.
type Driver interface {
	Ping(ctx context.Context) error
	// Select returns one row when id is set, every row otherwise.
	Select(ctx context.Context, table, id string) ([]Record, error)
	Insert(ctx context.Context, table string, rec Record) (Record, error)
	Update(ctx context.Context, table, id string, rec Record) (Record, error)
	Delete(ctx context.Context, table, id string) error
	Upsert(ctx context.Context, table string, recs []Record) ([]Record, error)
	// Listen delivers changes on table until the returned stop func runs.
	Listen(ctx context.Context, table string, fn func(Change)) (stop func(), err error)
	Close()
}

// Subscription is a live change feed on one table.
type Subscription interface {
	Unsubscribe()
}

// Client is the entry point to the remote backend.
type Client struct {
	driver Driver
}

// NewClient wraps driver. A nil driver yields an unconfigured client.
func NewClient(driver Driver) *Client {
	return &Client{driver: driver}
}

// Configured reports whether a driver is present.
func (c *Client) Configured() bool {
	return c != nil && c.driver != nil
}

// Driver returns the underlying driver, or nil.
func (c *Client) Driver() Driver {
	if c == nil {
		return nil
	}
	return c.driver
}

// Ping checks connectivity.
func (c *Client) Ping(ctx context.Context) error {
	if !c.Configured() {
		return ErrNotConfigured
	}
	return wrap("Ping", "", c.driver.Ping(ctx))
}

// Close releases driver resources.
func (c *Client) Close() {
	if c.Configured() {
		c.driver.Close()
	}
}

// Table returns a handle for one remote table.
func (c *Client) Table(name string) *Table {
	return &Table{client: c, name: name}
}

// Table performs operations on one remote table. Records passed in are in
// local shape; records returned are converted back to local shape.
type Table struct {
	client *Client
	name   string
}

// Name returns the table name.
func (t *Table) Name() string { return t.name }

func (t *Table) driver() (Driver, error) {
	if !t.client.Configured() {
		return nil, ErrNotConfigured
	}
	return t.client.driver, nil
}

// Create inserts rec and returns the stored row.
func (t *Table) Create(ctx context.Context, rec Record) (Record, error) {
	d, err := t.driver()
	if err != nil {
		return nil, err
	}
	row, err := d.Insert(ctx, t.name, format.RecordToRemote(rec))
	if err != nil {
		return nil, wrap("Create", t.name, err)
	}
	return format.RecordFromRemote(row), nil
}

// Read returns the row with id, or every row when id is empty.
func (t *Table) Read(ctx context.Context, id string) ([]Record, error) {
	d, err := t.driver()
	if err != nil {
		return nil, err
	}
	rows, err := d.Select(ctx, t.name, id)
	if err != nil {
		re := NewRemoteError("Read", t.name, err)
		if id != "" {
			re = re.WithRecordID(id)
		}
		return nil, re
	}
	return format.RecordsFromRemote(rows), nil
}

// Update applies the fields of rec to the row with id.
func (t *Table) Update(ctx context.Context, id string, rec Record) (Record, error) {
	d, err := t.driver()
	if err != nil {
		return nil, err
	}
	row, err := d.Update(ctx, t.name, id, format.RecordToRemote(rec))
	if err != nil {
		return nil, NewRemoteError("Update", t.name, err).WithRecordID(id)
	}
	return format.RecordFromRemote(row), nil
}

// Remove deletes the row with id.
func (t *Table) Remove(ctx context.Context, id string) error {
	d, err := t.driver()
	if err != nil {
		return err
	}
	if err := d.Delete(ctx, t.name, id); err != nil {
		return NewRemoteError("Remove", t.name, err).WithRecordID(id)
	}
	return nil
}

// Upsert inserts or replaces a single record keyed by id.
func (t *Table) Upsert(ctx context.Context, rec Record) (Record, error) {
	rows, err := t.BatchUpsert(ctx, []Record{rec})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, NewRemoteError("Upsert", t.name, ErrNotFound)
	}
	return rows[0], nil
}

// BatchUpsert inserts or replaces recs in one round trip. An empty batch
// succeeds without contacting the backend; a batch holding a record without
// an id is rejected before it.
func (t *Table) BatchUpsert(ctx context.Context, recs []Record) ([]Record, error) {
	if len(recs) == 0 {
		return []Record{}, nil
	}
	d, err := t.driver()
	if err != nil {
		return nil, err
	}
	for i, rec := range recs {
		if id, _ := rec["id"].(string); id == "" {
			return nil, NewRemoteError("BatchUpsert", t.name, nil).
				WithMessage(fmt.Sprintf("record %d of %d has no id", i+1, len(recs)))
		}
	}
	rows, err := d.Upsert(ctx, t.name, format.RecordsToRemote(recs))
	if err != nil {
		return nil, wrap("BatchUpsert", t.name, err)
	}
	return format.RecordsFromRemote(rows), nil
}

// Subscribe delivers row changes on the table to fn. Without a driver it
// returns a nil subscription and no error.
func (t *Table) Subscribe(ctx context.Context, fn func(Change)) (Subscription, error) {
	if !t.client.Configured() {
		return nil, nil
	}
	stop, err := t.client.driver.Listen(ctx, t.name, func(ch Change) {
		fn(Change{
			Type:  ch.Type,
			Table: ch.Table,
			New:   format.RecordFromRemote(ch.New),
			Old:   format.RecordFromRemote(ch.Old),
		})
	})
	if err != nil {
		return nil, wrap("Subscribe", t.name, err)
	}
	return &subscription{stop: stop}, nil
}

type subscription struct {
	once sync.Once
	stop func()
}

func (s *subscription) Unsubscribe() {
	s.once.Do(func() {
		if s.stop != nil {
			s.stop()
		}
	})
}
