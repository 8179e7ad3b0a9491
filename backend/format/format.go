// Package format translates records between the local camelCase shape and
// the remote snake_case shape, normalizing timestamps on the way.
//
// The functions are pure and tolerate any input: nil, scalars and values
// already in the target shape pass through unchanged.
package format

import (
	"strings"
	"time"
)

// Record is a generic JSON-shaped object.
type Record = map[string]any

// timeLayouts are the accepted string forms of a timestamp, tried in order.
var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999-07",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// SanitizeDate returns v as a canonical RFC3339Nano UTC string, or nil when v
// is not a usable timestamp.
func SanitizeDate(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case time.Time:
		if t.IsZero() {
			return nil
		}
		return t.UTC().Format(time.RFC3339Nano)
	case *time.Time:
		if t == nil || t.IsZero() {
			return nil
		}
		return t.UTC().Format(time.RFC3339Nano)
	case string:
		parsed, ok := ParseTime(t)
		if !ok {
			return nil
		}
		return parsed.UTC().Format(time.RFC3339Nano)
	default:
		return nil
	}
}

// ParseTime parses s using the accepted timestamp layouts.
func ParseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			if t.IsZero() {
				return time.Time{}, false
			}
			return t, true
		}
	}
	return time.Time{}, false
}

// ToRemote converts a local record, or a list of them, to the remote shape.
// Timestamps are serialized; invalid ones become nil.
func ToRemote(v any) any {
	return transform(v, RemoteName, false)
}

// FromRemote converts a remote record, or a list of them, to the local shape.
// Timestamps are parsed and re-serialized canonically; invalid ones become
// nil so they never reach the store as garbage.
func FromRemote(v any) any {
	return transform(v, LocalName, true)
}

// RecordToRemote is ToRemote for a single record.
func RecordToRemote(rec Record) Record {
	if rec == nil {
		return nil
	}
	return transformRecord(rec, RemoteName, false)
}

// RecordFromRemote is FromRemote for a single record.
func RecordFromRemote(rec Record) Record {
	if rec == nil {
		return nil
	}
	return transformRecord(rec, LocalName, true)
}

// RecordsToRemote converts a slice of local records.
func RecordsToRemote(recs []Record) []Record {
	out := make([]Record, 0, len(recs))
	for _, r := range recs {
		out = append(out, RecordToRemote(r))
	}
	return out
}

// RecordsFromRemote converts a slice of remote records.
func RecordsFromRemote(recs []Record) []Record {
	out := make([]Record, 0, len(recs))
	for _, r := range recs {
		out = append(out, RecordFromRemote(r))
	}
	return out
}

func transform(v any, rename func(string) string, inbound bool) any {
	switch t := v.(type) {
	case Record:
		return transformRecord(t, rename, inbound)
	case []Record:
		out := make([]Record, len(t))
		for i, r := range t {
			out[i] = transformRecord(r, rename, inbound)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = transform(item, rename, inbound)
		}
		return out
	default:
		return v
	}
}

func transformRecord(rec Record, rename func(string) string, inbound bool) Record {
	if rec == nil {
		return nil
	}
	out := make(Record, len(rec))
	for key, value := range rec {
		name := rename(key)
		local := name
		if !inbound {
			local = key
		}
		if IsDateField(local) {
			out[name] = SanitizeDate(value)
			continue
		}
		if dataKeyed[local] {
			out[name] = transformValues(value, rename, inbound)
			continue
		}
		out[name] = transformNested(value, rename, inbound)
	}
	return out
}

// dataKeyed lists the local fields holding maps keyed by data rather than
// field names. Job images are keyed by status name, which may be anything.
var dataKeyed = map[string]bool{
	"images": true,
}

// transformValues keeps the keys of a data-keyed map and transforms only
// its values.
func transformValues(v any, rename func(string) string, inbound bool) any {
	m, ok := v.(Record)
	if !ok {
		return transformNested(v, rename, inbound)
	}
	out := make(Record, len(m))
	for key, value := range m {
		out[key] = transformNested(value, rename, inbound)
	}
	return out
}

// transformNested walks into nested objects and lists (history entries,
// line items, image lists).
func transformNested(v any, rename func(string) string, inbound bool) any {
	switch t := v.(type) {
	case Record, []Record, []any:
		return transform(t, rename, inbound)
	default:
		return v
	}
}
