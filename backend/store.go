package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"sync"
	"time"

	"dawncrm/internal/utils"

	"github.com/google/uuid"
)

// DocumentVersion is the version written into every persisted document.
const DocumentVersion = 1

// Persister loads and saves the serialized store document. Load returns
// nil, nil when nothing has been saved yet.
type Persister interface {
	Load() ([]byte, error)
	Save(doc []byte) error
}

// Store is the local source of truth for all CRM collections. Every
// mutation is written through to the persister before it returns.
type Store struct {
	mu        sync.RWMutex
	state     State
	persister Persister
	now       func() time.Time
}

// NewStore returns an empty store backed by persister. A nil persister keeps
// the store memory-only.
func NewStore(persister Persister) *Store {
	return &Store{
		state:     NewState(),
		persister: persister,
		now:       time.Now,
	}
}

// Open returns a store rehydrated from persister. Collections missing from
// the stored document stay empty.
func Open(persister Persister) (*Store, error) {
	s := NewStore(persister)
	if persister == nil {
		return s, nil
	}

	doc, err := persister.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load store: %w", err)
	}
	if len(doc) == 0 {
		return s, nil
	}

	state := NewState()
	if err := json.Unmarshal(doc, &state); err != nil {
		return nil, fmt.Errorf("failed to decode store document: %w", err)
	}
	if state.Settings.ID == "" {
		state.Settings.ID = SettingsID
	}
	state.Version = DocumentVersion
	s.state = state

	utils.Debugf("Loaded store document (%d bytes)", len(doc))
	return s, nil
}

// SetClock overrides the time source. Used by tests.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Snapshot returns a deep copy of the whole state.
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clone(s.state)
}

// persistLocked saves the current state. Must be called with mu held.
func (s *Store) persistLocked() {
	if s.persister == nil {
		return
	}
	doc, err := json.Marshal(s.state)
	if err != nil {
		utils.Errorf("Failed to encode store document: %v", err)
		return
	}
	if err := s.persister.Save(doc); err != nil {
		utils.Warnf("Failed to persist store: %v", err)
	}
}

// stamp returns the current time, never earlier than prev.
func (s *Store) stamp(prev time.Time) time.Time {
	now := s.now().UTC()
	if now.Before(prev) {
		return prev
	}
	return now
}

// clone deep-copies v through its JSON form so callers never share slices
// or maps with the store. NaN and infinite numbers cannot be encoded and
// are zeroed first. If v still cannot be copied it is returned as is.
func clone[T any](v T) T {
	data, err := json.Marshal(v)
	var unsupported *json.UnsupportedValueError
	if errors.As(err, &unsupported) {
		utils.Warnf("Zeroing non-finite numbers in %T: %v", v, err)
		zeroNonFinite(reflect.ValueOf(&v).Elem())
		data, err = json.Marshal(v)
	}
	if err != nil {
		utils.Errorf("clone %T: %v", v, err)
		return v
	}
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		utils.Errorf("clone %T: %v", v, err)
		return v
	}
	return out
}

// zeroNonFinite walks v and sets every NaN or infinite float it can
// reach to zero.
func zeroNonFinite(v reflect.Value) {
	switch v.Kind() {
	case reflect.Float32, reflect.Float64:
		if f := v.Float(); (math.IsNaN(f) || math.IsInf(f, 0)) && v.CanSet() {
			v.SetFloat(0)
		}
	case reflect.Pointer, reflect.Interface:
		if !v.IsNil() {
			zeroNonFinite(v.Elem())
		}
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			zeroNonFinite(v.Field(i))
		}
	case reflect.Slice, reflect.Array:
		for i := 0; i < v.Len(); i++ {
			zeroNonFinite(v.Index(i))
		}
	case reflect.Map:
		if v.IsNil() || !v.CanInterface() {
			return
		}
		iter := v.MapRange()
		for iter.Next() {
			elem := reflect.New(iter.Value().Type()).Elem()
			elem.Set(iter.Value())
			zeroNonFinite(elem)
			v.SetMapIndex(iter.Key(), elem)
		}
	}
}

// entity is satisfied by pointers to record types embedding Meta.
type entity[T any] interface {
	*T
	GetID() string
	meta() *Meta
}

func indexOf[T any, P entity[T]](items []T, id string) int {
	for i := range items {
		if P(&items[i]).GetID() == id {
			return i
		}
	}
	return -1
}

func listCopy[T any](s *Store, items func(*State) *[]T) []T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := clone(*items(&s.state))
	if out == nil {
		out = []T{}
	}
	return out
}

func findRecord[T any, P entity[T]](s *Store, items func(*State) *[]T, id string) (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := *items(&s.state)
	if i := indexOf[T, P](list, id); i >= 0 {
		return clone(list[i]), true
	}
	var zero T
	return zero, false
}

// addRecord assigns identity and timestamps, lets prepare fill derived
// fields under the lock, appends and persists.
func addRecord[T any, P entity[T]](s *Store, items func(*State) *[]T, rec T, prepare func(st *State, rec *T, now time.Time)) T {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec = clone(rec)
	now := s.stamp(time.Time{})
	m := P(&rec).meta()
	m.ID = uuid.NewString()
	m.CreatedAt = now
	m.UpdatedAt = now
	if prepare != nil {
		prepare(&s.state, &rec, now)
	}

	list := items(&s.state)
	*list = append(*list, rec)
	s.persistLocked()
	return clone(rec)
}

// updateRecord applies fn to a copy of the record, restores identity and
// restamps updatedAt. finish may reconcile fields against the original.
func updateRecord[T any, P entity[T]](s *Store, items func(*State) *[]T, id string, fn func(*T), finish func(st *State, orig, updated *T, now time.Time)) (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := items(&s.state)
	i := indexOf[T, P](*list, id)
	if i < 0 {
		var zero T
		return zero, false
	}

	orig := (*list)[i]
	updated := clone(orig)
	if fn != nil {
		fn(&updated)
	}

	om := P(&orig).meta()
	um := P(&updated).meta()
	now := s.stamp(om.UpdatedAt)
	um.ID = om.ID
	um.CreatedAt = om.CreatedAt
	um.UpdatedAt = now
	if finish != nil {
		finish(&s.state, &orig, &updated, now)
	}

	updated = clone(updated)
	(*list)[i] = updated
	s.persistLocked()
	return clone(updated), true
}

func deleteRecord[T any, P entity[T]](s *Store, items func(*State) *[]T, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := items(&s.state)
	i := indexOf[T, P](*list, id)
	if i < 0 {
		return false
	}
	*list = append((*list)[:i:i], (*list)[i+1:]...)
	s.persistLocked()
	return true
}
