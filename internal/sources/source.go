package sources

import (
	"context"
	"time"
)

// Record is one raw upstream record: the source-native key plus the opaque
// document the ingester lands in Bronze. ModifiedAt carries the source's own
// modification timestamp when the source exposes one; ingesters use it for
// client-side incremental filtering when the source cannot filter
// server-side.
type Record struct {
	ExternalID string
	Data       map[string]any
	ModifiedAt *time.Time
}

// Lister fetches candidate records from a source. A nil since means a full
// window.
type Lister interface {
	List(ctx context.Context, since *time.Time) ([]Record, error)
}

// DetailFetcher fetches the full per-ID document for sources whose list
// endpoint returns thin records.
type DetailFetcher interface {
	Detail(ctx context.Context, externalID string) (map[string]any, error)
}

// ListerFunc adapts a function to the Lister interface.
type ListerFunc func(ctx context.Context, since *time.Time) ([]Record, error)

// List calls f.
func (f ListerFunc) List(ctx context.Context, since *time.Time) ([]Record, error) {
	return f(ctx, since)
}
