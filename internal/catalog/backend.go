// Package catalog normalizes music catalogs (live search APIs and static snapshot files)
// behind one candidate contract used by the selection engine.
package catalog

import (
	"context"
	"errors"

	"musicquiz/internal/core"
)

// ErrRateLimited is returned by a backend when the upstream asked it to slow down
var ErrRateLimited = errors.New("catalog rate limited")

// Query is a single page request against a backend
type Query struct {
	Style   string
	Country string
	Offset  int
	Limit   int
}

// Backend is one concrete catalog. Implementations return ErrRateLimited (wrapped or
// not) for throttling responses and any other error for transport or decode failures.
type Backend interface {
	Name() string
	// Paged reports whether Search honours Query.Offset and Query.Limit. Backends that
	// return their whole partition at once are neither paged nor page-cached.
	Paged() bool
	Search(ctx context.Context, q Query) ([]core.Track, error)
	Artists(ctx context.Context, genre string) ([]core.Artist, error)
}

func isAnyStyle(style string) bool {
	return style == "" || style == core.AnyStyle
}
