package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"dawncrm/backend/remote/migrations"
	"dawncrm/internal/utils"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// NotifyChannel is the LISTEN/NOTIFY channel the change trigger publishes on.
const NotifyChannel = "crm_changes"

// PostgresDriver is a Driver backed by a Postgres database. Rows are moved
// as jsonb so records keep their generic shape end to end. Change events
// come from the crm_notify_change trigger; notifications carry only the row
// id and the row is read back for inserts and updates.
type PostgresDriver struct {
	pool *pgxpool.Pool

	colMu   sync.Mutex
	columns map[string]map[string]bool

	lisMu    sync.Mutex
	listener *pgListener
}

// NewPostgresDriver opens a connection pool for connString.
func NewPostgresDriver(ctx context.Context, connString string) (*PostgresDriver, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	return &PostgresDriver{
		pool:    pool,
		columns: make(map[string]map[string]bool),
	}, nil
}

// Migrate applies the embedded schema migrations.
func (d *PostgresDriver) Migrate(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(d.pool)
	defer db.Close()

	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "."); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	d.colMu.Lock()
	d.columns = make(map[string]map[string]bool)
	d.colMu.Unlock()
	return nil
}

func (d *PostgresDriver) Ping(ctx context.Context) error {
	return d.pool.Ping(ctx)
}

func (d *PostgresDriver) Close() {
	d.lisMu.Lock()
	l := d.listener
	d.listener = nil
	d.lisMu.Unlock()
	if l != nil {
		l.close()
	}
	d.pool.Close()
}

// tableColumns returns the column set of table, discovered once from
// information_schema.
func (d *PostgresDriver) tableColumns(ctx context.Context, table string) (map[string]bool, error) {
	d.colMu.Lock()
	cols, ok := d.columns[table]
	d.colMu.Unlock()
	if ok {
		return cols, nil
	}

	rows, err := d.pool.Query(ctx,
		`SELECT column_name FROM information_schema.columns
		 WHERE table_schema = current_schema() AND table_name = $1`, table)
	if err != nil {
		return nil, fmt.Errorf("failed to discover columns of %s: %w", table, err)
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to discover columns of %s: %w", table, err)
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("table %s does not exist", table)
	}

	cols = make(map[string]bool, len(names))
	for _, n := range names {
		cols[n] = true
	}
	d.colMu.Lock()
	d.columns[table] = cols
	d.colMu.Unlock()
	return cols, nil
}

// filter drops keys that are not columns of the table.
func filter(rec Record, cols map[string]bool) Record {
	out := make(Record, len(rec))
	for k, v := range rec {
		if cols[k] {
			out[k] = v
		} else {
			utils.Debugf("remote: dropping unknown field %q", k)
		}
	}
	return out
}

func sortedKeys(cols map[string]bool) []string {
	out := make([]string, 0, len(cols))
	for k := range cols {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func quoteAll(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = pgx.Identifier{n}.Sanitize()
	}
	return out
}

func scanJSONRows(rows pgx.Rows) ([]Record, error) {
	raw, err := pgx.CollectRows(rows, pgx.RowTo[[]byte])
	if err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(raw))
	for _, data := range raw {
		var rec Record
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, fmt.Errorf("failed to decode row: %w", err)
		}
		out = append(out, rec)
	}
	return out, nil
}

func (d *PostgresDriver) Select(ctx context.Context, table, id string) ([]Record, error) {
	if _, err := d.tableColumns(ctx, table); err != nil {
		return nil, err
	}
	tbl := pgx.Identifier{table}.Sanitize()

	var (
		rows pgx.Rows
		err  error
	)
	if id == "" {
		rows, err = d.pool.Query(ctx, fmt.Sprintf(`SELECT to_jsonb(t) FROM %s t ORDER BY t.created_at NULLS FIRST, t.id`, tbl))
	} else {
		rows, err = d.pool.Query(ctx, fmt.Sprintf(`SELECT to_jsonb(t) FROM %s t WHERE t.id = $1`, tbl), id)
	}
	if err != nil {
		return nil, err
	}
	return scanJSONRows(rows)
}

func (d *PostgresDriver) Insert(ctx context.Context, table string, rec Record) (Record, error) {
	cols, err := d.tableColumns(ctx, table)
	if err != nil {
		return nil, err
	}
	rec = filter(rec, cols)
	if len(rec) == 0 {
		return nil, errors.New("nothing to insert")
	}
	names := quoteAll(sortedKeys(keySet(rec)))
	tbl := pgx.Identifier{table}.Sanitize()

	payload, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(
		`INSERT INTO %s AS t (%s) SELECT %s FROM jsonb_populate_record(NULL::%s, $1::jsonb) RETURNING to_jsonb(t.*)`,
		tbl, strings.Join(names, ", "), strings.Join(names, ", "), tbl)

	rows, err := d.pool.Query(ctx, query, string(payload))
	if err != nil {
		return nil, err
	}
	out, err := scanJSONRows(rows)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, errors.New("insert returned no row")
	}
	return out[0], nil
}

func (d *PostgresDriver) Update(ctx context.Context, table, id string, rec Record) (Record, error) {
	cols, err := d.tableColumns(ctx, table)
	if err != nil {
		return nil, err
	}
	rec = filter(rec, cols)
	delete(rec, "id")
	if len(rec) == 0 {
		rows, err := d.Select(ctx, table, id)
		if err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			return nil, ErrNotFound
		}
		return rows[0], nil
	}

	names := quoteAll(sortedKeys(keySet(rec)))
	sets := make([]string, len(names))
	for i, n := range names {
		sets[i] = fmt.Sprintf("%s = r.%s", n, n)
	}
	tbl := pgx.Identifier{table}.Sanitize()

	payload, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(
		`UPDATE %s AS t SET %s FROM jsonb_populate_record(NULL::%s, $2::jsonb) AS r WHERE t.id = $1 RETURNING to_jsonb(t.*)`,
		tbl, strings.Join(sets, ", "), tbl)

	rows, err := d.pool.Query(ctx, query, id, string(payload))
	if err != nil {
		return nil, err
	}
	out, err := scanJSONRows(rows)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, ErrNotFound
	}
	return out[0], nil
}

func (d *PostgresDriver) Delete(ctx context.Context, table, id string) error {
	if _, err := d.tableColumns(ctx, table); err != nil {
		return err
	}
	tag, err := d.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, pgx.Identifier{table}.Sanitize()), id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Upsert writes recs in a single statement keyed on id. Columns absent from
// every record are left alone on conflict.
func (d *PostgresDriver) Upsert(ctx context.Context, table string, recs []Record) ([]Record, error) {
	if len(recs) == 0 {
		return []Record{}, nil
	}
	cols, err := d.tableColumns(ctx, table)
	if err != nil {
		return nil, err
	}

	used := make(map[string]bool)
	filtered := make([]Record, len(recs))
	for i, rec := range recs {
		filtered[i] = filter(rec, cols)
		if id, _ := filtered[i]["id"].(string); id == "" {
			return nil, fmt.Errorf("record %d has no id", i)
		}
		for k := range filtered[i] {
			used[k] = true
		}
	}

	names := sortedKeys(used)
	quoted := quoteAll(names)
	var updates []string
	for i, n := range names {
		if n == "id" {
			continue
		}
		updates = append(updates, fmt.Sprintf("%s = EXCLUDED.%s", quoted[i], quoted[i]))
	}
	conflict := "DO NOTHING"
	if len(updates) > 0 {
		conflict = "DO UPDATE SET " + strings.Join(updates, ", ")
	}
	tbl := pgx.Identifier{table}.Sanitize()

	payload, err := json.Marshal(filtered)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(
		`INSERT INTO %s AS t (%s) SELECT %s FROM jsonb_populate_recordset(NULL::%s, $1::jsonb)
		 ON CONFLICT (id) %s RETURNING to_jsonb(t.*)`,
		tbl, strings.Join(quoted, ", "), strings.Join(quoted, ", "), tbl, conflict)

	rows, err := d.pool.Query(ctx, query, string(payload))
	if err != nil {
		return nil, err
	}
	return scanJSONRows(rows)
}

func keySet(rec Record) map[string]bool {
	out := make(map[string]bool, len(rec))
	for k := range rec {
		out[k] = true
	}
	return out
}

// Listen registers fn for changes on table. All tables share one dedicated
// LISTEN connection, opened on first use and closed with the last listener.
func (d *PostgresDriver) Listen(ctx context.Context, table string, fn func(Change)) (func(), error) {
	if _, err := d.tableColumns(ctx, table); err != nil {
		return nil, err
	}

	d.lisMu.Lock()
	defer d.lisMu.Unlock()
	if d.listener == nil {
		l, err := startListener(ctx, d)
		if err != nil {
			return nil, err
		}
		d.listener = l
	}
	l := d.listener
	id := l.add(table, fn)

	return func() {
		if l.remove(table, id) {
			d.lisMu.Lock()
			if d.listener == l {
				d.listener = nil
			}
			d.lisMu.Unlock()
			l.close()
		}
	}, nil
}

type notification struct {
	Table string `json:"table"`
	Type  string `json:"type"`
	ID    string `json:"id"`
}

type pgListener struct {
	driver *PostgresDriver
	conn   *pgx.Conn
	cancel context.CancelFunc
	done   chan struct{}

	mu       sync.Mutex
	handlers map[string]map[int]func(Change)
	nextID   int
	once     sync.Once
}

func startListener(ctx context.Context, d *PostgresDriver) (*pgListener, error) {
	pc, err := d.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire listen connection: %w", err)
	}
	if _, err := pc.Exec(ctx, "LISTEN "+pgx.Identifier{NotifyChannel}.Sanitize()); err != nil {
		pc.Release()
		return nil, fmt.Errorf("failed to listen on %s: %w", NotifyChannel, err)
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	l := &pgListener{
		driver:   d,
		conn:     pc.Hijack(),
		cancel:   cancel,
		done:     make(chan struct{}),
		handlers: make(map[string]map[int]func(Change)),
	}
	go l.run(loopCtx)
	return l, nil
}

func (l *pgListener) add(table string, fn func(Change)) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.handlers[table] == nil {
		l.handlers[table] = make(map[int]func(Change))
	}
	id := l.nextID
	l.nextID++
	l.handlers[table][id] = fn
	return id
}

// remove drops a handler and reports whether none are left.
func (l *pgListener) remove(table string, id int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.handlers[table], id)
	if len(l.handlers[table]) == 0 {
		delete(l.handlers, table)
	}
	return len(l.handlers) == 0
}

func (l *pgListener) close() {
	l.once.Do(func() {
		l.cancel()
		<-l.done
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		l.conn.Close(ctx)
	})
}

func (l *pgListener) run(ctx context.Context) {
	defer close(l.done)
	for {
		n, err := l.conn.WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() == nil {
				utils.Warnf("remote: listen connection lost: %v", err)
			}
			return
		}

		var msg notification
		if err := json.Unmarshal([]byte(n.Payload), &msg); err != nil {
			utils.Warnf("remote: ignoring malformed notification: %v", err)
			continue
		}
		l.dispatch(ctx, msg)
	}
}

func (l *pgListener) dispatch(ctx context.Context, msg notification) {
	l.mu.Lock()
	fns := make([]func(Change), 0, len(l.handlers[msg.Table]))
	for _, fn := range l.handlers[msg.Table] {
		fns = append(fns, fn)
	}
	l.mu.Unlock()
	if len(fns) == 0 {
		return
	}

	ch := Change{Type: ChangeType(msg.Type), Table: msg.Table}
	switch ch.Type {
	case ChangeDelete:
		ch.Old = Record{"id": msg.ID}
	case ChangeInsert, ChangeUpdate:
		rows, err := l.driver.Select(ctx, msg.Table, msg.ID)
		if err != nil {
			utils.Warnf("remote: failed to read changed row %s/%s: %v", msg.Table, msg.ID, err)
			return
		}
		if len(rows) == 0 {
			// Deleted before we could read it; the delete event follows.
			return
		}
		ch.New = rows[0]
	default:
		return
	}

	for _, fn := range fns {
		fn(ch)
	}
}
