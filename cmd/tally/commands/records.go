package commands

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/tallydash/tally/internal/domain"
	"github.com/tallydash/tally/internal/search"
)

// recordView is a record as printed by load and snapshot show.
type recordView struct {
	Keys  map[string]string `json:"keys" yaml:"keys"`
	Label string            `json:"label,omitempty" yaml:"label,omitempty"`
	Data  any               `json:"data" yaml:"data"`
}

func viewRecord(rec domain.Record) recordView {
	keys := make(map[string]string, len(rec.Keys))
	for _, k := range rec.Keys {
		keys[k.Name] = k.Value
	}
	var data any
	if err := json.Unmarshal(rec.Payload, &data); err != nil {
		data = string(rec.Payload)
	}
	return recordView{Keys: keys, Label: rec.Label, Data: data}
}

// recordsOutput is the printable result of a load or a stored snapshot.
type recordsOutput struct {
	Collection string       `json:"collection" yaml:"collection"`
	Filter     string       `json:"filter" yaml:"filter"`
	SessionID  string       `json:"session_id,omitempty" yaml:"session_id,omitempty"`
	Total      int          `json:"total" yaml:"total"`
	Loaded     int          `json:"loaded" yaml:"loaded"`
	Shown      int          `json:"shown" yaml:"shown"`
	Requests   int          `json:"requests,omitempty" yaml:"requests,omitempty"`
	Escalated  bool         `json:"escalated,omitempty" yaml:"escalated,omitempty"`
	Duplicates int          `json:"duplicates,omitempty" yaml:"duplicates,omitempty"`
	Retries    int          `json:"retries,omitempty" yaml:"retries,omitempty"`
	Duration   string       `json:"duration,omitempty" yaml:"duration,omitempty"`
	SavedAt    *time.Time   `json:"saved_at,omitempty" yaml:"saved_at,omitempty"`
	Records    []recordView `json:"records" yaml:"records"`
}

// Headers implements output.TableRenderer.
func (o recordsOutput) Headers() []string { return []string{"Label", "Keys"} }

// Rows implements output.TableRenderer.
func (o recordsOutput) Rows() [][]string {
	rows := make([][]string, 0, len(o.Records))
	for _, r := range o.Records {
		keys := make([]string, 0, len(r.Keys))
		for name, value := range r.Keys {
			keys = append(keys, name+"="+value)
		}
		sort.Strings(keys)
		rows = append(rows, []string{r.Label, strings.Join(keys, " ")})
	}
	return rows
}

// selection narrows records for display.
type selection struct {
	find  string
	where string
	limit int
}

func (s selection) apply(records []domain.Record) ([]domain.Record, error) {
	if s.where != "" {
		field, value, ok := search.ParseWhere(s.where)
		if !ok {
			return nil, fmt.Errorf("invalid --where %q: expected field=value", s.where)
		}
		records = search.Where(records, field, value)
	}
	if s.find != "" {
		results := search.Find(records, s.find)
		records = make([]domain.Record, len(results))
		for i, r := range results {
			records[i] = r.Record
		}
	}
	if s.limit > 0 && len(records) > s.limit {
		records = records[:s.limit]
	}
	return records, nil
}

func viewRecords(records []domain.Record) []recordView {
	views := make([]recordView, len(records))
	for i, rec := range records {
		views[i] = viewRecord(rec)
	}
	return views
}
