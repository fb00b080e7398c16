package cache

import (
	"context"
	"time"
)

// NullBackend discards everything. Selecting it disables caching entirely;
// every Get is a miss and every Put succeeds without storing.
type NullBackend struct{}

func (NullBackend) Name() string                                          { return "null" }
func (NullBackend) Get(context.Context, string) (*Entry, error)           { return nil, nil }
func (NullBackend) Put(context.Context, *Entry) error                     { return nil }
func (NullBackend) Touch(context.Context, string, time.Time) error        { return nil }
func (NullBackend) Delete(context.Context, string) error                  { return nil }
func (NullBackend) DeleteExpired(context.Context, time.Time) (int, error) { return 0, nil }
func (NullBackend) Clear(context.Context) error                          { return nil }
func (NullBackend) TotalSize(context.Context) (int64, error)             { return 0, nil }
func (NullBackend) EvictLRU(context.Context, int64) (int, error)         { return 0, nil }
func (NullBackend) Stats(context.Context, time.Time) (BackendStats, error) {
	return BackendStats{}, nil
}
func (NullBackend) Close() error { return nil }
