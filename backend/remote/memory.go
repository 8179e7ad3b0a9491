package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// MemoryDriver is an in-process Driver. Rows are stored as JSON so they come
// back the way a database would return them, and every write is fanned out
// synchronously to listeners as a Change. Tests use its error and hook
// injection to simulate remote failures.
type MemoryDriver struct {
	mu        sync.Mutex
	tables    map[string]*memTable
	listeners map[string]map[int]func(Change)
	nextID    int
	errs      map[string]error // "op" or "op:table"
	calls     map[string]int
	hooks     map[string]func(table string)
	closed    bool
}

type memTable struct {
	order []string
	rows  map[string][]byte
}

// NewMemoryDriver creates an empty in-memory driver
func NewMemoryDriver() *MemoryDriver {
	return &MemoryDriver{
		tables:    make(map[string]*memTable),
		listeners: make(map[string]map[int]func(Change)),
		errs:      make(map[string]error),
		calls:     make(map[string]int),
		hooks:     make(map[string]func(string)),
	}
}

// SetError makes op fail with err. An empty table applies to every table;
// a nil err clears the injection.
func (m *MemoryDriver) SetError(op, table string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := errKey(op, table)
	if err == nil {
		delete(m.errs, key)
		return
	}
	m.errs[key] = err
}

// SetHook registers fn to run at the start of op, outside the driver lock.
// Tests use it to block an operation mid-flight.
func (m *MemoryDriver) SetHook(op string, fn func(table string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if fn == nil {
		delete(m.hooks, op)
		return
	}
	m.hooks[op] = fn
}

// Calls returns how many times op was invoked.
func (m *MemoryDriver) Calls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

// Listeners returns the number of active listeners on table.
func (m *MemoryDriver) Listeners(table string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.listeners[table])
}

// Seed stores rows without emitting changes.
func (m *MemoryDriver) Seed(table string, rows ...Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range rows {
		id, _ := row["id"].(string)
		m.put(table, id, row)
	}
}

// Rows returns a copy of every row in table, in insertion order.
func (m *MemoryDriver) Rows(table string) []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.all(table)
}

// Emit applies a change as if another client had made it, then notifies
// listeners.
func (m *MemoryDriver) Emit(ch Change) {
	m.mu.Lock()
	switch ch.Type {
	case ChangeInsert, ChangeUpdate:
		id, _ := ch.New["id"].(string)
		m.put(ch.Table, id, ch.New)
	case ChangeDelete:
		id, _ := ch.Old["id"].(string)
		m.drop(ch.Table, id)
	}
	m.mu.Unlock()
	m.notify(ch)
}

func (m *MemoryDriver) Ping(ctx context.Context) error {
	return m.begin(ctx, "Ping", "")
}

func (m *MemoryDriver) Select(ctx context.Context, table, id string) ([]Record, error) {
	if err := m.begin(ctx, "Select", table); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if id == "" {
		return m.all(table), nil
	}
	row, ok := m.get(table, id)
	if !ok {
		return []Record{}, nil
	}
	return []Record{row}, nil
}

func (m *MemoryDriver) Insert(ctx context.Context, table string, rec Record) (Record, error) {
	if err := m.begin(ctx, "Insert", table); err != nil {
		return nil, err
	}
	id, _ := rec["id"].(string)
	if id == "" {
		return nil, fmt.Errorf("insert into %s: missing id", table)
	}

	m.mu.Lock()
	if _, exists := m.get(table, id); exists {
		m.mu.Unlock()
		return nil, fmt.Errorf("insert into %s: duplicate key %q", table, id)
	}
	m.put(table, id, rec)
	row, _ := m.get(table, id)
	m.mu.Unlock()

	m.notify(Change{Type: ChangeInsert, Table: table, New: row})
	return copyRecord(row), nil
}

func (m *MemoryDriver) Update(ctx context.Context, table, id string, rec Record) (Record, error) {
	if err := m.begin(ctx, "Update", table); err != nil {
		return nil, err
	}

	m.mu.Lock()
	current, ok := m.get(table, id)
	if !ok {
		m.mu.Unlock()
		return nil, ErrNotFound
	}
	for k, v := range rec {
		current[k] = v
	}
	current["id"] = id
	m.put(table, id, current)
	row, _ := m.get(table, id)
	m.mu.Unlock()

	m.notify(Change{Type: ChangeUpdate, Table: table, New: row})
	return copyRecord(row), nil
}

func (m *MemoryDriver) Delete(ctx context.Context, table, id string) error {
	if err := m.begin(ctx, "Delete", table); err != nil {
		return err
	}

	m.mu.Lock()
	ok := m.drop(table, id)
	m.mu.Unlock()
	if !ok {
		return ErrNotFound
	}

	m.notify(Change{Type: ChangeDelete, Table: table, Old: Record{"id": id}})
	return nil
}

func (m *MemoryDriver) Upsert(ctx context.Context, table string, recs []Record) ([]Record, error) {
	if err := m.begin(ctx, "Upsert", table); err != nil {
		return nil, err
	}

	var changes []Change
	out := make([]Record, 0, len(recs))

	m.mu.Lock()
	for _, rec := range recs {
		id, _ := rec["id"].(string)
		if id == "" {
			m.mu.Unlock()
			return nil, fmt.Errorf("upsert into %s: missing id", table)
		}
	}
	for _, rec := range recs {
		id := rec["id"].(string)
		kind := ChangeInsert
		if _, exists := m.get(table, id); exists {
			kind = ChangeUpdate
		}
		m.put(table, id, rec)
		row, _ := m.get(table, id)
		out = append(out, row)
		changes = append(changes, Change{Type: kind, Table: table, New: copyRecord(row)})
	}
	m.mu.Unlock()

	for _, ch := range changes {
		m.notify(ch)
	}
	return out, nil
}

func (m *MemoryDriver) Listen(ctx context.Context, table string, fn func(Change)) (func(), error) {
	if err := m.begin(ctx, "Listen", table); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listeners[table] == nil {
		m.listeners[table] = make(map[int]func(Change))
	}
	id := m.nextID
	m.nextID++
	m.listeners[table][id] = fn

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.listeners[table], id)
	}, nil
}

func (m *MemoryDriver) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.listeners = make(map[string]map[int]func(Change))
}

// begin counts the call, runs any hook and returns the injected error.
func (m *MemoryDriver) begin(ctx context.Context, op, table string) error {
	m.mu.Lock()
	m.calls[op]++
	hook := m.hooks[op]
	closed := m.closed
	m.mu.Unlock()

	if hook != nil {
		hook(table)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if closed {
		return fmt.Errorf("%s: driver closed", op)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.errs[errKey(op, table)]; ok {
		return err
	}
	if err, ok := m.errs[errKey(op, "")]; ok {
		return err
	}
	return nil
}

func (m *MemoryDriver) notify(ch Change) {
	m.mu.Lock()
	fns := make([]func(Change), 0, len(m.listeners[ch.Table]))
	for _, fn := range m.listeners[ch.Table] {
		fns = append(fns, fn)
	}
	m.mu.Unlock()

	for _, fn := range fns {
		fn(Change{Type: ch.Type, Table: ch.Table, New: copyRecord(ch.New), Old: copyRecord(ch.Old)})
	}
}

func (m *MemoryDriver) table(name string) *memTable {
	t, ok := m.tables[name]
	if !ok {
		t = &memTable{rows: make(map[string][]byte)}
		m.tables[name] = t
	}
	return t
}

func (m *MemoryDriver) put(table, id string, rec Record) {
	data, err := json.Marshal(rec)
	if err != nil {
		return
	}
	t := m.table(table)
	if _, exists := t.rows[id]; !exists {
		t.order = append(t.order, id)
	}
	t.rows[id] = data
}

func (m *MemoryDriver) get(table, id string) (Record, bool) {
	data, ok := m.table(table).rows[id]
	if !ok {
		return nil, false
	}
	return decodeRecord(data), true
}

func (m *MemoryDriver) drop(table, id string) bool {
	t := m.table(table)
	if _, ok := t.rows[id]; !ok {
		return false
	}
	delete(t.rows, id)
	for i, existing := range t.order {
		if existing == id {
			t.order = append(t.order[:i:i], t.order[i+1:]...)
			break
		}
	}
	return true
}

func (m *MemoryDriver) all(table string) []Record {
	t := m.table(table)
	out := make([]Record, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, decodeRecord(t.rows[id]))
	}
	return out
}

func errKey(op, table string) string {
	if table == "" {
		return op
	}
	return op + ":" + table
}

func decodeRecord(data []byte) Record {
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil
	}
	return rec
}

func copyRecord(rec Record) Record {
	if rec == nil {
		return nil
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return nil
	}
	return decodeRecord(data)
}
