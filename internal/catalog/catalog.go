// Package catalog provides the location/role sets a round is dealt from.
package catalog

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/spotthespy/game-engine/internal/types"
)

// Categories known to the built-in catalog.
const (
	CategoryGeneral     = "general"
	CategoryFood        = "food"
	CategoryNature      = "nature"
	CategoryAnimals     = "animals"
	CategoryPlaces      = "places"
	CategoryCelebrities = "celebrities"
)

// Catalog lists the entries rounds can be dealt from. Read-only.
type Catalog interface {
	ListEntries(ctx context.Context) ([]types.CatalogEntry, error)
}

//go:embed locations.json
var builtin []byte

// Static is an in-memory catalog.
type Static struct {
	entries []types.CatalogEntry
}

// NewStatic creates a catalog from the given entries.
func NewStatic(entries []types.CatalogEntry) *Static {
	return &Static{entries: entries}
}

// Builtin returns the catalog shipped with the binary.
func Builtin() (*Static, error) {
	var entries []types.CatalogEntry
	if err := json.Unmarshal(builtin, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse built-in catalog: %w", err)
	}
	return NewStatic(entries), nil
}

// ListEntries returns a copy of the entries.
func (s *Static) ListEntries(ctx context.Context) ([]types.CatalogEntry, error) {
	return copyEntries(s.entries), nil
}

func copyEntries(entries []types.CatalogEntry) []types.CatalogEntry {
	out := make([]types.CatalogEntry, len(entries))
	for i, e := range entries {
		out[i] = e
		out[i].Roles = append([]string(nil), e.Roles...)
	}
	return out
}

// FilterCategory keeps entries of the given category. An empty category keeps everything.
func FilterCategory(entries []types.CatalogEntry, category string) []types.CatalogEntry {
	category = strings.ToLower(strings.TrimSpace(category))
	if category == "" {
		return entries
	}
	out := make([]types.CatalogEntry, 0, len(entries))
	for _, e := range entries {
		if strings.EqualFold(e.Category, category) {
			out = append(out, e)
		}
	}
	return out
}

// Cached wraps a catalog and reuses its result for ttl.
type Cached struct {
	next Catalog
	ttl  time.Duration
	now  func() time.Time

	mu      sync.Mutex
	entries []types.CatalogEntry
	loaded  time.Time
}

// NewCached creates a caching catalog. A zero ttl disables caching.
func NewCached(next Catalog, ttl time.Duration) *Cached {
	return &Cached{next: next, ttl: ttl, now: time.Now}
}

// ListEntries returns cached entries, refreshing them when stale. A failed
// refresh keeps serving the previous result if there is one.
func (c *Cached) ListEntries(ctx context.Context) ([]types.CatalogEntry, error) {
	if c.ttl <= 0 {
		return c.next.ListEntries(ctx)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.entries != nil && c.now().Sub(c.loaded) < c.ttl {
		return copyEntries(c.entries), nil
	}
	entries, err := c.next.ListEntries(ctx)
	if err != nil {
		if c.entries != nil {
			return copyEntries(c.entries), nil
		}
		return nil, err
	}
	c.entries = entries
	c.loaded = c.now()
	return copyEntries(entries), nil
}
