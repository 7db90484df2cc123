package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/tallydash/tally/internal/domain"
)

// KeySpec names one identity key of a collection. A key with several
// fields is composite: its value is every field joined with "|".
type KeySpec struct {
	Name   string   `mapstructure:"name" yaml:"name" validate:"required"`
	Fields []string `mapstructure:"fields" yaml:"fields" validate:"required,min=1,dive,required"`
}

// Collection describes one paginated endpoint.
type Collection struct {
	Name  string    `mapstructure:"name" yaml:"name" validate:"required"`
	Path  string    `mapstructure:"path" yaml:"path" validate:"required,startswith=/"`
	Keys  []KeySpec `mapstructure:"keys" yaml:"keys" validate:"dive"`
	Label string    `mapstructure:"label" yaml:"label"`
}

// Fetcher fetches pages of one collection. It implements domain.PageFetcher.
type Fetcher struct {
	client *Client
	coll   Collection
	mapper *Mapper
}

// Collection returns a fetcher for coll.
func (c *Client) Collection(coll Collection) *Fetcher {
	return &Fetcher{client: c, coll: coll, mapper: NewMapper(coll.Keys, coll.Label)}
}

// Name returns the collection name.
func (f *Fetcher) Name() string { return f.coll.Name }

// Fetch requests limit records starting at offset. domain.LimitAll asks for
// everything from offset on and is sent as limit=0. A 2xx body that does not
// decode is reported as a *domain.ServerError with its status.
func (f *Fetcher) Fetch(ctx context.Context, filter domain.Filter, offset, limit int) (domain.PageResult, error) {
	if offset < 0 || (limit <= 0 && limit != domain.LimitAll) {
		return domain.PageResult{}, fmt.Errorf("%w: offset=%d limit=%d", domain.ErrInvalidRequest, offset, limit)
	}

	query := filter.Params()
	query.Set("offset", strconv.Itoa(offset))
	if limit == domain.LimitAll {
		query.Set("limit", "0")
	} else {
		query.Set("limit", strconv.Itoa(limit))
	}

	body, err := f.client.doRequest(ctx, f.coll.Path, query)
	if err != nil {
		return domain.PageResult{}, err
	}

	var resp pageResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.PageResult{}, &domain.ServerError{
			StatusCode: http.StatusOK,
			Message:    fmt.Sprintf("malformed %s response: %v", f.coll.Name, err),
		}
	}

	return f.toPage(resp, offset), nil
}

// toPage normalizes a response. Missing offset or total fall back to the
// request offset and the records seen so far.
func (f *Fetcher) toPage(resp pageResponse, requested int) domain.PageResult {
	page := domain.PageResult{
		Records: f.mapper.MapRecords(resp.Results),
		HasMore: resp.HasMore,
		Offset:  requested,
	}
	if resp.Offset != nil {
		page.Offset = *resp.Offset
	}
	if resp.TotalCount != nil {
		page.TotalCount = *resp.TotalCount
	} else {
		page.TotalCount = page.Offset + len(resp.Results)
	}
	if resp.Performance != nil {
		page.CacheHit = resp.Performance.Cached
		page.DataSource = resp.Performance.DataSource
	}
	return page
}
