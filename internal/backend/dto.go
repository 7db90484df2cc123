package backend

import "encoding/json"

// pageResponse is the envelope every paginated endpoint returns.
type pageResponse struct {
	Results     []json.RawMessage `json:"results"`
	TotalCount  *int              `json:"total_count"`
	HasMore     bool              `json:"has_more"`
	Offset      *int              `json:"offset"`
	Performance *performance      `json:"performance,omitempty"`
}

// performance describes how the server produced the page.
type performance struct {
	Cached     bool   `json:"cached"`
	DataSource string `json:"data_source,omitempty"`
	QueryTime  string `json:"query_time,omitempty"`
}
