package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"dawncrm/backend/format"
	"dawncrm/internal/utils"
)

var readOnlyFields = map[string]bool{"id": true, "createdAt": true, "updatedAt": true}

// fieldPatch holds --set assignments keyed by local field name.
type fieldPatch map[string]json.RawMessage

// parseSets parses key=value pairs. Keys may use the remote snake_case
// names. Date fields accept anything utils.ParseDateInput does; other
// values are taken as JSON literals when they parse as such and as strings
// otherwise.
func parseSets(pairs []string, now time.Time) (fieldPatch, error) {
	patch := make(fieldPatch, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = format.LocalName(strings.TrimSpace(key))
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --set %q, expected key=value", pair)
		}
		if readOnlyFields[key] {
			return nil, fmt.Errorf("field %q cannot be set", key)
		}

		if format.IsDateField(key) {
			t, err := utils.ParseDateInput(value, now)
			if err != nil {
				return nil, err
			}
			if t == nil {
				patch[key] = json.RawMessage("null")
				continue
			}
			raw, err := json.Marshal(t)
			if err != nil {
				return nil, err
			}
			patch[key] = raw
			continue
		}

		if json.Valid([]byte(value)) {
			patch[key] = json.RawMessage(value)
		} else {
			patch[key] = quote(value)
		}
	}
	return patch, nil
}

func quote(s string) json.RawMessage {
	raw, _ := json.Marshal(s)
	return raw
}

// applyPatch overlays p onto rec. A literal that does not fit its field's
// type is retried as a string, so phone numbers and the like need no
// quoting. Unknown fields are rejected.
func applyPatch[T any](rec *T, p fieldPatch) error {
	if len(p) == 0 {
		return nil
	}
	base, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	doc := make(map[string]json.RawMessage)
	if err := json.Unmarshal(base, &doc); err != nil {
		return err
	}
	for k, v := range p {
		doc[k] = v
	}

	for attempt := 0; attempt <= len(p); attempt++ {
		raw, err := json.Marshal(doc)
		if err != nil {
			return err
		}
		var out T
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		err = dec.Decode(&out)
		if err == nil {
			*rec = out
			return nil
		}

		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			if v, ok := p[typeErr.Field]; ok && len(v) > 0 && v[0] != '"' {
				doc[typeErr.Field] = quote(string(v))
				continue
			}
			return fmt.Errorf("invalid value for %s: expected %s", typeErr.Field, typeErr.Type)
		}
		if strings.Contains(err.Error(), "unknown field") {
			return fmt.Errorf("%s", strings.TrimPrefix(err.Error(), "json: "))
		}
		return err
	}
	return fmt.Errorf("could not apply fields")
}

// filterRows keeps the rows whose fields equal every value in filter.
// Values are compared by their JSON encoding, case-insensitively for
// strings.
func filterRows[T any](rows []T, filter fieldPatch) ([]T, error) {
	if len(filter) == 0 {
		return rows, nil
	}
	out := make([]T, 0, len(rows))
	for _, row := range rows {
		raw, err := json.Marshal(row)
		if err != nil {
			return nil, err
		}
		doc := make(map[string]json.RawMessage)
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, err
		}
		if matchesAll(doc, filter) {
			out = append(out, row)
		}
	}
	return out, nil
}

func matchesAll(doc map[string]json.RawMessage, filter fieldPatch) bool {
	for k, want := range filter {
		got, ok := doc[k]
		if !ok {
			got = json.RawMessage(`""`)
		}
		if strings.EqualFold(string(got), string(want)) {
			continue
		}
		// 5 and "5" are the same filter value.
		if strings.EqualFold(strings.Trim(string(got), `"`), strings.Trim(string(want), `"`)) {
			continue
		}
		return false
	}
	return true
}
