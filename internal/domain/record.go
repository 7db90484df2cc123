package domain

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// Key is one identity key of a record (e.g. "id" = "42").
// Composite keys carry every field value joined with "|".
type Key struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// String returns the key in "name:value" form, the unit used for dedup.
func (k Key) String() string {
	return k.Name + ":" + k.Value
}

// Record is an opaque business entity (employee, attendance summary).
// Only the identity keys and a display label are interpreted; the payload
// is carried untouched.
type Record struct {
	Keys    []Key           `json:"keys"`
	Label   string          `json:"label,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

// Identity returns the record's identity keys in their string form.
// Two records are the same entity when their identities intersect.
func (r Record) Identity() []string {
	ids := make([]string, 0, len(r.Keys))
	for _, k := range r.Keys {
		if k.Value == "" {
			continue
		}
		ids = append(ids, k.String())
	}
	return ids
}

// SameEntity reports whether a and b share at least one identity key.
func SameEntity(a, b Record) bool {
	ids := make(map[string]struct{}, len(a.Keys))
	for _, id := range a.Identity() {
		ids[id] = struct{}{}
	}
	for _, id := range b.Identity() {
		if _, ok := ids[id]; ok {
			return true
		}
	}
	return false
}

// ContentKey derives a key from the payload bytes for records that expose
// none of the configured key fields.
func ContentKey(payload []byte) Key {
	hash := sha256.Sum256(compactJSON(payload))
	return Key{Name: "content", Value: hex.EncodeToString(hash[:8])}
}

// compactJSON strips insignificant whitespace so formatting differences
// between two responses do not produce different content keys.
func compactJSON(payload []byte) []byte {
	var buf bytes.Buffer
	if err := json.Compact(&buf, payload); err != nil {
		return payload
	}
	return buf.Bytes()
}
