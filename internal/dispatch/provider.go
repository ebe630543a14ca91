// Package dispatch implements the batched asynchronous sink pipeline and
// its pluggable DataProvider backends, per SPEC_FULL.md §5.4/§7.
package dispatch

import "context"

// Item is one enqueued dispatch-eligible match.
type Item struct {
	Data  map[string]string
	Sheet string
}

// DataProvider is the pluggable durable-sink contract. Implementations may
// legitimately not support every method (e.g. a write-only stream sink has
// no purge/fetch semantics) and should return a descriptive error instead.
type DataProvider interface {
	IsConnected() bool
	FetchData(ctx context.Context, sheet, username string) ([]map[string]string, error)
	ProcessData(ctx context.Context, batch []Item) error
	Purge(ctx context.Context, sheet string) error
	FetchRecordHashes(ctx context.Context, sheet string) (map[string]string, error)
	EnsureDynamicViews(ctx context.Context, views map[string]string) error
	ViewExists(ctx context.Context, name string) (bool, error)
}
