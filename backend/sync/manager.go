// Package sync keeps the local store and the remote backend converging:
// an initial push or pull, a periodic push timer, and a reducer applying
// live remote changes to the store.
package sync

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"dawncrm/backend"
	"dawncrm/backend/remote"
	"dawncrm/internal/utils"
)

// DefaultPushInterval is the period of the background push.
const DefaultPushInterval = 30 * time.Second

// ErrAlreadyInitialized is returned by a second Initialize call.
var ErrAlreadyInitialized = errors.New("sync manager already initialized")

// ErrDisabled is reported by push and pull when sync cannot run: the
// remote is not configured, the connection check failed, or the manager
// was cleaned up.
var ErrDisabled = errors.New("sync disabled")

// State is the lifecycle state of a Manager.
type State int

const (
	StateUninitialized State = iota
	StateInitializing
	StateConnectionFailed
	StateIdle
	StatePushing
	StatePulling
	StateCleanup
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateConnectionFailed:
		return "connection failed"
	case StateIdle:
		return "idle"
	case StatePushing:
		return "pushing"
	case StatePulling:
		return "pulling"
	case StateCleanup:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Strategy selects how a pull combines remote data with local data.
type Strategy string

const (
	// Replace swaps local collections for the remote snapshot, unless the
	// remote holds no representative data.
	Replace Strategy = "replace"
	// Merge keeps every remote record (remote wins on id collision) and
	// appends local records the remote does not have.
	Merge Strategy = "merge"
)

// Direction is the initial sync direction chosen by Initialize.
type Direction string

const (
	DirectionNone Direction = ""
	DirectionPush Direction = "push"
	DirectionPull Direction = "pull"
)

// Options configures a Manager.
type Options struct {
	// PushInterval is the period of the background push. Zero selects
	// DefaultPushInterval; a negative value disables the timer.
	PushInterval time.Duration
	// Collections to sync. Defaults to backend.AllCollections.
	Collections []backend.Collection
	Logger      *utils.Logger
}

// Manager reconciles a local store with a remote backend.
type Manager struct {
	store  *backend.Store
	client *remote.Client
	opts   Options
	logger *utils.Logger

	mu        sync.Mutex
	state     State
	active    int // running push/pull operations
	lastSync  time.Time
	lastError error
	subs      map[backend.Collection]remote.Subscription
	cancel    context.CancelFunc

	wg       sync.WaitGroup
	pushing  atomic.Bool
	reducers map[backend.Collection]reducer
}

// NewManager creates a manager for store and client. A nil or unconfigured
// client yields a manager that runs local-only.
func NewManager(store *backend.Store, client *remote.Client, opts Options) *Manager {
	if opts.PushInterval == 0 {
		opts.PushInterval = DefaultPushInterval
	}
	if opts.Logger == nil {
		opts.Logger = utils.GetLogger()
	}
	if len(opts.Collections) == 0 {
		opts.Collections = backend.AllCollections
	}
	known := make([]backend.Collection, 0, len(opts.Collections))
	for _, c := range opts.Collections {
		if !backend.IsCollection(string(c)) {
			opts.Logger.Warn("Ignoring unknown collection %q", c)
			continue
		}
		known = append(known, c)
	}
	opts.Collections = known
	if client == nil {
		client = remote.NewClient(nil)
	}

	m := &Manager{
		store:  store,
		client: client,
		opts:   opts,
		logger: opts.Logger,
		subs:   make(map[backend.Collection]remote.Subscription),
	}
	m.reducers = newReducers(opts.Collections)
	return m
}

// InitResult reports what Initialize did.
type InitResult struct {
	Configured    bool
	Connected     bool
	Direction     Direction
	Push          *PushResult
	Pull          *PullResult
	Subscriptions int
	Err           error
}

// Initialize runs the startup protocol once: connectivity check, initial
// push or pull, one subscription per collection and the push timer.
func (m *Manager) Initialize(ctx context.Context) InitResult {
	m.mu.Lock()
	if m.state != StateUninitialized {
		m.mu.Unlock()
		return InitResult{Configured: m.client.Configured(), Err: ErrAlreadyInitialized}
	}
	m.state = StateInitializing
	m.mu.Unlock()

	result := InitResult{Configured: m.client.Configured()}

	if !result.Configured {
		m.logger.Info("Remote sync not configured, running local-only")
		m.setState(StateIdle)
		return result
	}

	if err := m.client.Ping(ctx); err != nil {
		m.logger.Warn("Remote connection failed: %v", err)
		m.mu.Lock()
		if m.state != StateCleanup {
			m.state = StateConnectionFailed
		}
		m.lastError = err
		m.mu.Unlock()
		result.Err = fmt.Errorf("connection check failed: %w", err)
		return result
	}
	result.Connected = true

	if m.store.HasData(backend.RepresentativeCollections...) {
		result.Direction = DirectionPush
		push := m.Push(ctx)
		result.Push = &push
		m.logger.Info("Initial push: %s", push.Summary())
	} else {
		result.Direction = DirectionPull
		pull := m.Pull(ctx, Replace)
		result.Pull = &pull
		m.logger.Info("Initial pull: %s", pull.Summary())
	}

	runCtx, cancel := context.WithCancel(context.Background())
	subs := m.subscribe(runCtx)

	m.mu.Lock()
	if m.state == StateCleanup {
		m.mu.Unlock()
		cancel()
		for _, sub := range subs {
			sub.Unsubscribe()
		}
		return result
	}
	m.subs = subs
	m.cancel = cancel
	m.state = StateIdle
	if m.opts.PushInterval > 0 {
		m.wg.Add(1)
		go m.run(runCtx)
	}
	m.mu.Unlock()

	result.Subscriptions = len(subs)
	return result
}

func (m *Manager) subscribe(ctx context.Context) map[backend.Collection]remote.Subscription {
	subs := make(map[backend.Collection]remote.Subscription, len(m.opts.Collections))
	for _, c := range m.opts.Collections {
		sub, err := m.client.Table(string(c)).Subscribe(ctx, func(ch remote.Change) {
			if ch.Table == "" {
				ch.Table = string(c)
			}
			if err := m.HandleChange(ch); err != nil {
				m.logger.Warn("Failed to apply %s on %s: %v", ch.Type, ch.Table, err)
			}
		})
		if err != nil {
			m.logger.Warn("Failed to subscribe to %s: %v", c, err)
			continue
		}
		if sub != nil {
			subs[c] = sub
		}
	}
	return subs
}

// run pushes on every tick until ctx is cancelled.
func (m *Manager) run(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.opts.PushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			result := m.Push(ctx)
			switch {
			case result.Busy:
				m.logger.Debug("Skipping scheduled push: previous push still running")
			case result.Err() != nil:
				m.logger.Warn("Scheduled push failed: %v", result.Err())
			default:
				m.logger.Debug("Scheduled push: %s", result.Summary())
			}
		}
	}
}

// enabled reports whether push and pull may run.
func (m *Manager) enabled() bool {
	if !m.client.Configured() {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state != StateConnectionFailed && m.state != StateCleanup
}

// begin marks an operation as running in state s.
func (m *Manager) begin(s State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active++
	if m.state != StateCleanup && m.state != StateInitializing {
		m.state = s
	}
}

// end clears the running operation, recording err as the last error.
func (m *Manager) end(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active--
	if err != nil {
		m.lastError = err
	}
	if m.active == 0 && (m.state == StatePushing || m.state == StatePulling) {
		m.state = StateIdle
	}
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateCleanup {
		m.state = s
	}
}

// PushResult reports one push cycle.
type PushResult struct {
	// Busy is set when another push was already in flight; nothing ran.
	Busy     bool
	Skipped  bool
	Pushed   map[backend.Collection]int
	Errors   map[backend.Collection]error
	LastSync time.Time
	Duration time.Duration
}

// Err joins the per-collection failures, or returns nil.
func (r PushResult) Err() error {
	if r.Skipped {
		return ErrDisabled
	}
	return joinErrors(r.Errors)
}

// Summary is a one-line description for logs.
func (r PushResult) Summary() string {
	if r.Busy {
		return "busy"
	}
	if r.Skipped {
		return "skipped"
	}
	total := 0
	for _, n := range r.Pushed {
		total += n
	}
	return fmt.Sprintf("%d records in %d collections, %d failed", total, len(r.Pushed), len(r.Errors))
}

// Push sends every collection to the remote, one batch upsert per
// collection. At most one push runs at a time; a concurrent call returns
// immediately with Busy set. Failures are isolated per collection and the
// last sync time only advances when every collection succeeded.
func (m *Manager) Push(ctx context.Context) (result PushResult) {
	if !m.enabled() {
		return PushResult{Skipped: true}
	}
	if !m.pushing.CompareAndSwap(false, true) {
		return PushResult{Busy: true}
	}
	defer m.pushing.Store(false)

	start := time.Now()
	result.Pushed = make(map[backend.Collection]int)
	result.Errors = make(map[backend.Collection]error)

	m.begin(StatePushing)
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("Panic in push: %v", r)
			result.Errors["panic"] = fmt.Errorf("push panicked: %v", r)
		}
		result.Duration = time.Since(start)
		m.end(joinErrors(result.Errors))
	}()

	for _, c := range m.opts.Collections {
		records, err := m.store.Records(c)
		if err != nil {
			result.Errors[c] = err
			continue
		}
		if _, err := m.client.Table(string(c)).BatchUpsert(ctx, records); err != nil {
			m.logger.Warn("Push of %s failed: %v", c, err)
			result.Errors[c] = err
			continue
		}
		result.Pushed[c] = len(records)
	}

	if len(result.Errors) == 0 {
		now := time.Now()
		m.mu.Lock()
		m.lastSync = now
		m.mu.Unlock()
		result.LastSync = now
	}
	return result
}

// PullResult reports one pull.
type PullResult struct {
	Strategy Strategy
	Skipped  bool
	// Applied is false when the store was left untouched, e.g. a replace
	// against an empty remote.
	Applied bool
	Pulled  map[backend.Collection]int
	Errors  map[backend.Collection]error
	// ApplyErr is set when the pull cycle itself failed.
	ApplyErr error
}

// Err joins fetch and apply failures, or returns nil.
func (r PullResult) Err() error {
	if r.Skipped {
		return ErrDisabled
	}
	err := joinErrors(r.Errors)
	if r.ApplyErr != nil {
		return errors.Join(err, r.ApplyErr)
	}
	return err
}

// Summary is a one-line description for logs.
func (r PullResult) Summary() string {
	if r.Skipped {
		return "skipped"
	}
	total := 0
	for _, n := range r.Pulled {
		total += n
	}
	state := "applied"
	if !r.Applied {
		state = "not applied"
	}
	return fmt.Sprintf("%s: %d records from %d collections, %s, %d failed",
		r.Strategy, total, len(r.Pulled), state, len(r.Errors))
}

// Pull loads every collection from the remote and installs it with
// strategy. A collection whose read or decode fails is left untouched
// locally; the others are still installed.
func (m *Manager) Pull(ctx context.Context, strategy Strategy) (result PullResult) {
	result.Strategy = strategy
	if !m.enabled() {
		result.Skipped = true
		return result
	}

	result.Pulled = make(map[backend.Collection]int)
	result.Errors = make(map[backend.Collection]error)

	m.begin(StatePulling)
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("Panic in pull: %v", r)
			result.Applied = false
			result.ApplyErr = fmt.Errorf("pull panicked: %v", r)
		}
		m.end(result.Err())
	}()

	fetched := make(map[backend.Collection][]backend.Record)
	for _, c := range m.opts.Collections {
		rows, err := m.client.Table(string(c)).Read(ctx, "")
		if err != nil {
			m.logger.Warn("Pull of %s failed: %v", c, err)
			result.Errors[c] = err
			continue
		}
		fetched[c] = rows
		result.Pulled[c] = len(rows)
	}

	var partial map[backend.Collection][]backend.Record
	switch strategy {
	case Merge:
		partial = make(map[backend.Collection][]backend.Record, len(fetched))
		for c, rows := range fetched {
			local, err := m.store.Records(c)
			if err != nil {
				result.Errors[c] = err
				continue
			}
			partial[c] = MergeRecords(rows, local)
		}
	default:
		if !remoteHasData(fetched) {
			m.logger.Info("Remote holds no data; keeping local state")
			return result
		}
		partial = fetched
	}

	failed := m.store.ReplaceCollections(partial)
	for c, err := range failed {
		m.logger.Warn("Pull of %s could not be applied: %v", c, err)
		result.Errors[c] = err
	}
	result.Applied = len(failed) < len(partial)
	return result
}

func remoteHasData(fetched map[backend.Collection][]backend.Record) bool {
	for _, c := range backend.RepresentativeCollections {
		if len(fetched[c]) > 0 {
			return true
		}
	}
	return false
}

// MergeRecords keeps every remote record in remote order and appends local
// records whose id the remote does not hold. Remote wins on collision.
func MergeRecords(remoteRecs, localRecs []backend.Record) []backend.Record {
	seen := make(map[string]bool, len(remoteRecs))
	out := make([]backend.Record, 0, len(remoteRecs)+len(localRecs))
	for _, r := range remoteRecs {
		if id, ok := r["id"].(string); ok {
			seen[id] = true
		}
		out = append(out, r)
	}
	for _, l := range localRecs {
		id, _ := l["id"].(string)
		if id != "" && seen[id] {
			continue
		}
		out = append(out, l)
	}
	return out
}

// Status is a snapshot of the manager.
type Status struct {
	State         State
	Configured    bool
	Pushing       bool
	LastSync      time.Time
	LastError     error
	Subscriptions []string
}

// Status returns the current state.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	subs := make([]string, 0, len(m.subs))
	for c := range m.subs {
		subs = append(subs, string(c))
	}
	sort.Strings(subs)

	return Status{
		State:         m.state,
		Configured:    m.client.Configured(),
		Pushing:       m.pushing.Load(),
		LastSync:      m.lastSync,
		LastError:     m.lastError,
		Subscriptions: subs,
	}
}

// Cleanup stops the push timer and every subscription. It is safe to call
// more than once and before Initialize.
func (m *Manager) Cleanup() {
	m.mu.Lock()
	if m.state == StateCleanup {
		m.mu.Unlock()
		return
	}
	m.state = StateCleanup
	subs := m.subs
	m.subs = make(map[backend.Collection]remote.Subscription)
	cancel := m.cancel
	m.cancel = nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	for _, sub := range subs {
		sub.Unsubscribe()
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		m.logger.Warn("Timeout waiting for background push to finish")
	}
}

func joinErrors(errs map[backend.Collection]error) error {
	if len(errs) == 0 {
		return nil
	}
	keys := make([]string, 0, len(errs))
	for c := range errs {
		keys = append(keys, string(c))
	}
	sort.Strings(keys)
	list := make([]error, 0, len(keys))
	for _, k := range keys {
		list = append(list, fmt.Errorf("%s: %w", k, errs[backend.Collection(k)]))
	}
	return errors.Join(list...)
}
