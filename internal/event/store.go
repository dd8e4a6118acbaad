package event

import (
	"context"
	"errors"
)

// ErrNotFound is returned when an event id is unknown to the store.
var ErrNotFound = errors.New("event: not found")

// ErrStopScan may be returned from a ScanByDate callback to end the scan
// early without error.
var ErrStopScan = errors.New("event: stop scan")

// Store is the append-only keyed store behind the event logger. Appends for
// a given date partition must be serialised by the implementation
// (single-writer-per-partition); reads may run concurrently.
type Store interface {
	// Append persists a signed event in its date partition. Write failures
	// propagate to the caller; nothing is dropped silently.
	Append(ctx context.Context, e *TrustEvent) error

	// GetByID returns the event with the given id, or ErrNotFound.
	GetByID(ctx context.Context, id string) (*TrustEvent, error)

	// ScanByDate streams the events of one partition in append order.
	// The callback may return ErrStopScan to terminate early.
	ScanByDate(ctx context.Context, date string, fn func(*TrustEvent) error) error

	// Dates returns the known partitions, newest first.
	Dates(ctx context.Context) ([]string, error)
}
