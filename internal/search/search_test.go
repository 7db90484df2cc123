package search

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tallydash/tally/internal/domain"
)

func employee(id, name, department string) domain.Record {
	payload, _ := json.Marshal(map[string]any{"id": id, "name": name, "department": department})
	return domain.Record{
		Keys:    []domain.Key{{Name: "id", Value: id}},
		Label:   name,
		Payload: payload,
	}
}

var staff = []domain.Record{
	employee("1", "Asha Verma", "Sales"),
	employee("2", "Rahul Shah", "Engineering"),
	employee("3", "Ashok Kumar", "Sales"),
	employee("4", "Meera Nair", "Finance"),
}

func TestIndex_Find(t *testing.T) {
	idx := NewIndex(nil)
	idx.Add(staff)

	results := idx.Find("ash")
	require.NotEmpty(t, results)
	labels := make([]string, len(results))
	for i, r := range results {
		labels[i] = r.Record.Label
	}
	assert.Contains(t, labels, "Asha Verma")
	assert.Contains(t, labels, "Ashok Kumar")
	assert.Contains(t, labels, "Rahul Shah")
	assert.NotContains(t, labels, "Meera Nair")
	assert.Equal(t, []int{0, 1, 2}, results[0].MatchedIndexes, "prefix matches rank first")
}

func TestIndex_FindIsCaseInsensitive(t *testing.T) {
	idx := NewIndex(nil)
	idx.Add(staff)

	results := idx.Find("MEERA")
	require.Len(t, results, 1)
	assert.Equal(t, "4", results[0].Record.Keys[0].Value)
}

func TestIndex_EmptyQuery(t *testing.T) {
	idx := NewIndex(nil)
	idx.Add(staff)
	assert.Nil(t, idx.Find("  "))
	assert.Nil(t, NewIndex(nil).Find("asha"))
}

func TestIndex_AddSkipsKnownRecords(t *testing.T) {
	idx := NewIndex(nil)
	idx.Add(staff)
	idx.Add(staff[:2])
	assert.Equal(t, 4, idx.Count())

	idx.Reset()
	assert.Equal(t, 0, idx.Count())
	idx.Add(staff[:1])
	assert.Equal(t, 1, idx.Count())
}

func TestFind(t *testing.T) {
	results := Find(staff, "nair")
	require.Len(t, results, 1)
	assert.Equal(t, "Meera Nair", results[0].Record.Label)
}

func TestWhere(t *testing.T) {
	assert.Len(t, Where(staff, "department", "sales"), 2)
	assert.Len(t, Where(staff, "department", "eng"), 1)
	assert.Empty(t, Where(staff, "department", "marketing"))
	assert.Empty(t, Where(staff, "missing", "x"))
	assert.Len(t, Where(staff, "department", ""), 4)
}

func TestParseWhere(t *testing.T) {
	field, value, ok := ParseWhere("department = Sales")
	require.True(t, ok)
	assert.Equal(t, "department", field)
	assert.Equal(t, "Sales", value)

	_, _, ok = ParseWhere("department")
	assert.False(t, ok)
	_, _, ok = ParseWhere("=x")
	assert.False(t, ok)
}
