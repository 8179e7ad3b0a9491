// Package exchange moves the shop's core collections in and out of the
// CRM as a single portable document.
package exchange

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"dawncrm/backend"
	"dawncrm/internal/utils"

	"gopkg.in/yaml.v3"
)

// Document is the export file shape. Collections not listed here are not
// exported and are cleared by Import.
type Document struct {
	Jobs       []backend.Job      `json:"jobs"`
	Customers  []backend.Customer `json:"customers"`
	Services   []backend.Service  `json:"services"`
	Statuses   []backend.Status   `json:"statuses"`
	Settings   backend.Settings   `json:"settings"`
	ExportedAt time.Time          `json:"exportedAt"`
}

// Export captures the exported collections of store at now.
func Export(store *backend.Store, now time.Time) Document {
	st := store.Snapshot()
	return Document{
		Jobs:       nonNil(st.Jobs),
		Customers:  nonNil(st.Customers),
		Services:   nonNil(st.Services),
		Statuses:   nonNil(st.Statuses),
		Settings:   st.Settings,
		ExportedAt: now.UTC(),
	}
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

// Encode renders doc as JSON or YAML. YAML keys match the JSON names.
func Encode(doc Document, format string) ([]byte, error) {
	switch format {
	case utils.FormatJSON, "":
		return utils.MarshalJSON(doc)
	case utils.FormatYAML, "yml":
		generic, err := toGeneric(doc)
		if err != nil {
			return nil, err
		}
		return utils.MarshalYAML(generic)
	default:
		return nil, fmt.Errorf("unsupported export format %q", format)
	}
}

// Decode parses an export file. JSON is tried first, then YAML.
func Decode(data []byte) (Document, error) {
	var doc Document
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return doc, errors.New("export file is empty")
	}

	if data[0] == '{' {
		if err := json.Unmarshal(data, &doc); err != nil {
			return doc, fmt.Errorf("invalid export JSON: %w", err)
		}
		return doc, nil
	}

	var generic map[string]any
	if err := yaml.Unmarshal(data, &generic); err != nil {
		return doc, fmt.Errorf("invalid export YAML: %w", err)
	}
	if generic == nil {
		return doc, errors.New("export file holds no document")
	}
	raw, err := json.Marshal(generic)
	if err != nil {
		return doc, fmt.Errorf("invalid export YAML: %w", err)
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return doc, fmt.Errorf("invalid export YAML: %w", err)
	}
	return doc, nil
}

// Import replaces the persisted document with the contents of an export
// file. Collections absent from the export end up empty and exportedAt is
// dropped. The running store is not touched; callers reopen it afterwards.
func Import(data []byte, persister backend.Persister) (Document, error) {
	if persister == nil {
		return Document{}, errors.New("import needs a persister")
	}
	doc, err := Decode(data)
	if err != nil {
		return doc, err
	}

	state := backend.NewState()
	state.Jobs = doc.Jobs
	state.Customers = doc.Customers
	state.Services = doc.Services
	state.Statuses = doc.Statuses
	if doc.Settings.ID != "" || doc.Settings.BusinessName != "" {
		state.Settings = doc.Settings
		state.Settings.ID = backend.SettingsID
	}

	body, err := json.Marshal(state)
	if err != nil {
		return doc, fmt.Errorf("failed to encode imported document: %w", err)
	}
	if err := persister.Save(body); err != nil {
		return doc, fmt.Errorf("failed to save imported document: %w", err)
	}

	utils.Infof("Imported %d jobs, %d customers, %d services, %d statuses",
		len(doc.Jobs), len(doc.Customers), len(doc.Services), len(doc.Statuses))
	return doc, nil
}

// toGeneric converts v to maps and slices through its JSON form.
func toGeneric(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
