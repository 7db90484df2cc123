package domain

import "context"

// LimitAll asks the backend for every remaining record from the offset.
// Encoded as limit=0 on the wire.
const LimitAll = -1

// PageResult is one normalized backend response.
type PageResult struct {
	Records    []Record
	TotalCount int    // server's total for the filter at fetch time
	HasMore    bool   // records remain beyond this page
	Offset     int    // position this page starts at
	CacheHit   bool   // served from a pre-warmed server cache
	DataSource string // informational, from performance.data_source
}

// PageFetcher performs one bounded request against a filtered collection
// (implemented by the backend client).
//
// Fetch never caches and never mutates shared state. Failures carry no
// partial page: *TransportError, *ServerError or ErrInvalidRequest.
type PageFetcher interface {
	Fetch(ctx context.Context, filter Filter, offset, limit int) (PageResult, error)
}

// FetcherFunc adapts a function to PageFetcher.
type FetcherFunc func(ctx context.Context, filter Filter, offset, limit int) (PageResult, error)

func (f FetcherFunc) Fetch(ctx context.Context, filter Filter, offset, limit int) (PageResult, error) {
	return f(ctx, filter, offset, limit)
}
