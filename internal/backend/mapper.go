package backend

import (
	"encoding/json"
	"strings"

	"github.com/tallydash/tally/internal/domain"
	"github.com/tidwall/gjson"
)

// Mapper turns raw result objects into domain records.
// Field names are gjson paths, so nested values such as "employee.id" work.
type Mapper struct {
	keys  []KeySpec
	label string
}

// NewMapper creates a mapper for the given identity keys and label path.
func NewMapper(keys []KeySpec, label string) *Mapper {
	return &Mapper{keys: keys, label: label}
}

// MapRecords converts every raw result. Payloads are kept untouched.
func (m *Mapper) MapRecords(raw []json.RawMessage) []domain.Record {
	records := make([]domain.Record, 0, len(raw))
	for _, r := range raw {
		records = append(records, m.MapRecord(r))
	}
	return records
}

// MapRecord converts a single raw result. A key whose fields are not all
// present gets an empty value, which excludes it from the record's identity.
func (m *Mapper) MapRecord(raw json.RawMessage) domain.Record {
	rec := domain.Record{
		Keys:    make([]domain.Key, 0, len(m.keys)),
		Payload: raw,
	}
	for _, spec := range m.keys {
		rec.Keys = append(rec.Keys, domain.Key{Name: spec.Name, Value: keyValue(raw, spec.Fields)})
	}
	if m.label != "" {
		rec.Label = gjson.GetBytes(raw, m.label).String()
	}
	if rec.Label == "" {
		for _, k := range rec.Keys {
			if k.Value != "" {
				rec.Label = k.Value
				break
			}
		}
	}
	return rec
}

func keyValue(raw []byte, fields []string) string {
	results := gjson.GetManyBytes(raw, fields...)
	parts := make([]string, 0, len(results))
	for _, r := range results {
		if !r.Exists() || r.Type == gjson.Null {
			return ""
		}
		v := r.String()
		if v == "" {
			return ""
		}
		parts = append(parts, v)
	}
	return strings.Join(parts, "|")
}
