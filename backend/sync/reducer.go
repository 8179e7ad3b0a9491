package sync

import (
	"fmt"

	"dawncrm/backend"
	"dawncrm/backend/remote"
)

// changeHandler applies one remote change to the store.
type changeHandler func(store *backend.Store, c backend.Collection, ch remote.Change) error

// reducer maps a change type to its handler for one collection.
type reducer map[remote.ChangeType]changeHandler

var listReducer = reducer{
	remote.ChangeInsert: applyInsert,
	remote.ChangeUpdate: applyUpdate,
	remote.ChangeDelete: applyDelete,
}

// settingsReducer treats settings as a singleton addressed by
// backend.SettingsID. Writes replace the whole object; deletes are ignored.
var settingsReducer = reducer{
	remote.ChangeInsert: applySettings,
	remote.ChangeUpdate: applySettings,
	remote.ChangeDelete: func(*backend.Store, backend.Collection, remote.Change) error { return nil },
}

func newReducers(collections []backend.Collection) map[backend.Collection]reducer {
	out := make(map[backend.Collection]reducer, len(collections))
	for _, c := range collections {
		if c == backend.CollectionSettings {
			out[c] = settingsReducer
			continue
		}
		out[c] = listReducer
	}
	return out
}

// HandleChange applies a live remote change to the store. Changes on
// unknown tables or of unknown kinds are ignored.
func (m *Manager) HandleChange(ch remote.Change) (err error) {
	c := backend.Collection(ch.Table)
	r, ok := m.reducers[c]
	if !ok {
		m.logger.Debug("Ignoring change on untracked table %q", ch.Table)
		return nil
	}
	handler, ok := r[ch.Type]
	if !ok {
		m.logger.Debug("Ignoring %q change on %s", ch.Type, ch.Table)
		return nil
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("change handler panicked: %v", r)
		}
	}()
	return handler(m.store, c, ch)
}

// applyInsert upserts the new record rather than appending it: a record
// whose id is already present is replaced, so a re-delivered or echoed
// insert never creates a duplicate. Fields that do not decode are dropped.
func applyInsert(store *backend.Store, c backend.Collection, ch remote.Change) error {
	if ch.New == nil {
		return nil
	}
	return store.ApplyInsert(c, ch.New)
}

// applyUpdate replaces the record with the same id. Unknown ids are ignored.
func applyUpdate(store *backend.Store, c backend.Collection, ch remote.Change) error {
	if ch.New == nil {
		return nil
	}
	_, err := store.ApplyUpdate(c, ch.New)
	return err
}

func applyDelete(store *backend.Store, c backend.Collection, ch remote.Change) error {
	id, _ := ch.Old["id"].(string)
	if id == "" {
		return nil
	}
	_, err := store.ApplyDelete(c, id)
	return err
}

func applySettings(store *backend.Store, c backend.Collection, ch remote.Change) error {
	if ch.New == nil {
		return nil
	}
	if id, _ := ch.New["id"].(string); id != "" && id != backend.SettingsID {
		return nil
	}
	return store.ApplyInsert(c, ch.New)
}
