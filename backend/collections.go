package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"dawncrm/internal/utils"
)

// collectionOps converts one collection between its typed form and generic
// records. Used by the sync entry points only.
type collectionOps interface {
	records(st *State) ([]Record, error)
	// decode validates recs and returns a setter that installs them.
	decode(recs []Record) (func(*State), error)
	upsert(st *State, rec Record) error
	update(st *State, rec Record) (bool, error)
	remove(st *State, id string) bool
	count(st *State) int
}

type listOps[T any, P entity[T]] struct {
	items func(*State) *[]T
}

func (o listOps[T, P]) records(st *State) ([]Record, error) {
	return toRecords(*o.items(st))
}

// decode skips records without an id; they cannot be addressed locally.
func (o listOps[T, P]) decode(recs []Record) (func(*State), error) {
	list, err := fromRecords[T](recs)
	if err != nil {
		return nil, err
	}
	kept := list[:0]
	for i := range list {
		if P(&list[i]).GetID() == "" {
			utils.Warnf("Skipping %T record %d without id", list[i], i)
			continue
		}
		kept = append(kept, list[i])
	}
	return func(st *State) { *o.items(st) = kept }, nil
}

// upsert replaces a record with the same id in place, otherwise appends.
func (o listOps[T, P]) upsert(st *State, rec Record) error {
	item, err := fromRecord[T](rec)
	if err != nil {
		return err
	}
	id := P(&item).GetID()
	if id == "" {
		return fmt.Errorf("record has no id")
	}
	list := o.items(st)
	if i := indexOf[T, P](*list, id); i >= 0 {
		(*list)[i] = item
		return nil
	}
	*list = append(*list, item)
	return nil
}

func (o listOps[T, P]) update(st *State, rec Record) (bool, error) {
	item, err := fromRecord[T](rec)
	if err != nil {
		return false, err
	}
	list := o.items(st)
	i := indexOf[T, P](*list, P(&item).GetID())
	if i < 0 {
		return false, nil
	}
	(*list)[i] = item
	return true, nil
}

func (o listOps[T, P]) remove(st *State, id string) bool {
	list := o.items(st)
	i := indexOf[T, P](*list, id)
	if i < 0 {
		return false
	}
	*list = append((*list)[:i:i], (*list)[i+1:]...)
	return true
}

func (o listOps[T, P]) count(st *State) int { return len(*o.items(st)) }

// settingsOps treats the settings collection as a singleton: any write
// replaces it and deletes are ignored.
type settingsOps struct{}

func (settingsOps) records(st *State) ([]Record, error) {
	rec, err := toRecord(st.Settings)
	if err != nil {
		return nil, err
	}
	return []Record{rec}, nil
}

func (settingsOps) decode(recs []Record) (func(*State), error) {
	if len(recs) == 0 {
		return func(*State) {}, nil
	}
	chosen := recs[0]
	for _, r := range recs {
		if id, _ := r["id"].(string); id == SettingsID {
			chosen = r
			break
		}
	}
	settings, err := decodeSettings(chosen)
	if err != nil {
		return nil, err
	}
	return func(st *State) { st.Settings = settings }, nil
}

func (settingsOps) upsert(st *State, rec Record) error {
	settings, err := decodeSettings(rec)
	if err != nil {
		return err
	}
	st.Settings = settings
	return nil
}

func (o settingsOps) update(st *State, rec Record) (bool, error) {
	return true, o.upsert(st, rec)
}

func (settingsOps) remove(*State, string) bool { return false }

func (settingsOps) count(*State) int { return 1 }

// decodeSettings overlays rec on the defaults so partial remote rows keep
// usable counters and prefixes.
func decodeSettings(rec Record) (Settings, error) {
	settings, err := decodeInto(rec, DefaultSettings())
	if err != nil {
		return settings, err
	}
	settings.ID = SettingsID
	return settings, nil
}

var collections = map[Collection]collectionOps{
	CollectionJobs:      listOps[Job, *Job]{jobsOf},
	CollectionCustomers: listOps[Customer, *Customer]{customersOf},
	CollectionLeads:     listOps[Lead, *Lead]{leadsOf},
	CollectionInvoices:  listOps[Invoice, *Invoice]{invoicesOf},
	CollectionEstimates: listOps[Estimate, *Estimate]{estimatesOf},
	CollectionExpenses:  listOps[Expense, *Expense]{expensesOf},
	CollectionPayments:  listOps[Payment, *Payment]{paymentsOf},
	CollectionTasks:     listOps[Task, *Task]{tasksOf},
	CollectionTickets:   listOps[Ticket, *Ticket]{ticketsOf},
	CollectionServices:  listOps[Service, *Service]{servicesOf},
	CollectionStatuses:  listOps[Status, *Status]{statusesOf},
	CollectionUsers:     listOps[User, *User]{usersOf},
	CollectionSettings:  settingsOps{},
}

func opsFor(c Collection) (collectionOps, error) {
	ops, ok := collections[c]
	if !ok {
		return nil, fmt.Errorf("unknown collection %q", c)
	}
	return ops, nil
}

// IsCollection reports whether name is a known collection.
func IsCollection(name string) bool {
	_, ok := collections[Collection(name)]
	return ok
}

// Records returns the collection as generic records.
func (s *Store) Records(c Collection) ([]Record, error) {
	ops, err := opsFor(c)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return ops.records(&s.state)
}

// Count returns the number of records in c. Settings always counts as one.
func (s *Store) Count(c Collection) int {
	ops, err := opsFor(c)
	if err != nil {
		return 0
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return ops.count(&s.state)
}

// Counts returns the record count of each collection in cs.
func (s *Store) Counts(cs ...Collection) map[Collection]int {
	if len(cs) == 0 {
		cs = AllCollections
	}
	out := make(map[Collection]int, len(cs))
	for _, c := range cs {
		out[c] = s.Count(c)
	}
	return out
}

// HasData reports whether any of cs holds at least one record.
func (s *Store) HasData(cs ...Collection) bool {
	for _, c := range cs {
		if c == CollectionSettings {
			continue
		}
		if s.Count(c) > 0 {
			return true
		}
	}
	return false
}

// ReplaceCollections installs every collection of partial that decodes and
// returns the failures of the others, which stay untouched locally. The
// decodable collections change together under one lock.
func (s *Store) ReplaceCollections(partial map[Collection][]Record) map[Collection]error {
	failed := make(map[Collection]error)
	setters := make([]func(*State), 0, len(partial))
	for c, recs := range partial {
		ops, err := opsFor(c)
		if err != nil {
			failed[c] = err
			continue
		}
		set, err := ops.decode(recs)
		if err != nil {
			failed[c] = fmt.Errorf("replace %s: %w", c, err)
			continue
		}
		setters = append(setters, set)
	}
	if len(setters) == 0 {
		return failed
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, set := range setters {
		set(&s.state)
	}
	s.persistLocked()
	return failed
}

// ReplaceState swaps in the given collections wholesale. Every collection is
// decoded before any is installed, so either all change or none do.
// Collections absent from partial are untouched.
func (s *Store) ReplaceState(partial map[Collection][]Record) error {
	setters := make([]func(*State), 0, len(partial))
	for c, recs := range partial {
		ops, err := opsFor(c)
		if err != nil {
			return err
		}
		set, err := ops.decode(recs)
		if err != nil {
			return fmt.Errorf("replace %s: %w", c, err)
		}
		setters = append(setters, set)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, set := range setters {
		set(&s.state)
	}
	s.persistLocked()
	return nil
}

// ApplyInsert installs a record received from the remote. An existing record
// with the same id is replaced rather than duplicated.
func (s *Store) ApplyInsert(c Collection, rec Record) error {
	ops, err := opsFor(c)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ops.upsert(&s.state, rec); err != nil {
		return fmt.Errorf("insert into %s: %w", c, err)
	}
	s.persistLocked()
	return nil
}

// ApplyUpdate replaces the record with rec's id. It reports false, leaving
// the store untouched, when no such record exists.
func (s *Store) ApplyUpdate(c Collection, rec Record) (bool, error) {
	ops, err := opsFor(c)
	if err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ok, err := ops.update(&s.state, rec)
	if err != nil {
		return false, fmt.Errorf("update %s: %w", c, err)
	}
	if ok {
		s.persistLocked()
	}
	return ok, nil
}

// ApplyDelete removes the record with id. Deletes on settings are ignored.
func (s *Store) ApplyDelete(c Collection, id string) (bool, error) {
	ops, err := opsFor(c)
	if err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !ops.remove(&s.state, id) {
		return false, nil
	}
	s.persistLocked()
	return true, nil
}

func toRecord(v any) (Record, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func toRecords[T any](items []T) ([]Record, error) {
	out := make([]Record, 0, len(items))
	for i := range items {
		rec, err := toRecord(items[i])
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func fromRecord[T any](rec Record) (T, error) {
	var zero T
	return decodeInto(rec, zero)
}

// decodeInto overlays rec on base. A field whose value does not fit its Go
// type is dropped, leaving base's value, so one malformed column never
// rejects the record.
func decodeInto[T any](rec Record, base T) (T, error) {
	fields := make(Record, len(rec))
	for k, v := range rec {
		fields[k] = v
	}
	for {
		item := base
		data, err := json.Marshal(fields)
		if err != nil {
			return item, err
		}
		err = json.Unmarshal(data, &item)
		if err == nil {
			return item, nil
		}
		var typeErr *json.UnmarshalTypeError
		if !errors.As(err, &typeErr) {
			return item, fmt.Errorf("invalid %T record: %w", item, err)
		}
		key, _, _ := strings.Cut(typeErr.Field, ".")
		if _, ok := fields[key]; !ok {
			return item, fmt.Errorf("invalid %T record: %w", item, err)
		}
		utils.Warnf("Dropping malformed field %q of %T record %v: %v", key, item, rec["id"], err)
		delete(fields, key)
	}
}

func fromRecords[T any](recs []Record) ([]T, error) {
	out := make([]T, 0, len(recs))
	for i, rec := range recs {
		item, err := fromRecord[T](rec)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		out = append(out, item)
	}
	return out, nil
}
