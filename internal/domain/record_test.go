package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecord_Identity(t *testing.T) {
	r := Record{Keys: []Key{
		{Name: "id", Value: "7"},
		{Name: "employee_id", Value: ""},
		{Name: "period", Value: "E7|2024|3"},
	}}
	assert.Equal(t, []string{"id:7", "period:E7|2024|3"}, r.Identity())
	assert.Empty(t, Record{}.Identity())
}

func TestSameEntity(t *testing.T) {
	a := Record{Keys: []Key{{Name: "id", Value: "1"}, {Name: "employee_id", Value: "E1"}}}
	b := Record{Keys: []Key{{Name: "id", Value: "99"}, {Name: "employee_id", Value: "E1"}}}
	c := Record{Keys: []Key{{Name: "id", Value: "2"}}}
	sameValueOtherKey := Record{Keys: []Key{{Name: "employee_id", Value: "1"}}}

	assert.True(t, SameEntity(a, b), "any shared key")
	assert.False(t, SameEntity(a, c))
	assert.False(t, SameEntity(a, sameValueOtherKey), "keys compare by name and value")
	assert.False(t, SameEntity(Record{}, Record{}), "keyless records never match")
}

func TestContentKey(t *testing.T) {
	compact := ContentKey([]byte(`{"name":"Ann","dept":"ops"}`))
	spaced := ContentKey([]byte("{ \"name\": \"Ann\",\n  \"dept\": \"ops\" }"))
	other := ContentKey([]byte(`{"name":"Bob","dept":"ops"}`))

	assert.Equal(t, "content", compact.Name)
	assert.Len(t, compact.Value, 16)
	assert.Equal(t, compact, spaced, "whitespace is not significant")
	assert.NotEqual(t, compact, other)

	// Invalid JSON still hashes
	assert.NotEmpty(t, ContentKey([]byte("not json")).Value)
}
