package registry

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/AstroAir/mcp-hub-next/internal/metrics"
)

// DefaultSearchLimit is the page size applied when a query gives none.
const DefaultSearchLimit = 20

// DefaultToolTimeout bounds one external catalog query. A hung npm or gh
// process fails the contribution instead of stalling the refresh.
const DefaultToolTimeout = 30 * time.Second

// Cache is the in-memory server catalog. It lazily populates itself on the
// first query and can be rebuilt on demand with Refresh. Safe for
// concurrent use; concurrent first queries trigger a single rebuild.
type Cache struct {
	mu      sync.Mutex
	entries []Entry

	refreshMu sync.Mutex // serializes rebuilds, held across tool I/O

	npmBin  string
	ghBin   string
	timeout time.Duration
}

// Option configures a Cache.
type Option func(*Cache)

// WithToolBinaries overrides the npm and gh executables.
func WithToolBinaries(npm, gh string) Option {
	return func(c *Cache) {
		if npm != "" {
			c.npmBin = npm
		}
		if gh != "" {
			c.ghBin = gh
		}
	}
}

// WithToolTimeout overrides the per-tool query deadline.
func WithToolTimeout(d time.Duration) Option {
	return func(c *Cache) { c.timeout = d }
}

// NewCache returns an empty cache.
func NewCache(opts ...Option) *Cache {
	c := &Cache{
		npmBin:  "npm",
		ghBin:   "gh",
		timeout: DefaultToolTimeout,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// snapshot returns a copy of the current entry list.
func (c *Cache) snapshot() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Refresh rebuilds the catalog: curated entries first, then live npm and
// GitHub contributions, deduplicated by id with first occurrence winning so
// curated metadata is never shadowed by a live duplicate.
func (c *Cache) Refresh(ctx context.Context) {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()
	c.rebuild(ctx)
}

func (c *Cache) rebuild(ctx context.Context) {
	list := KnownServers()

	tctx, cancel := context.WithTimeout(ctx, c.timeout)
	list = append(list, c.searchNpm(tctx, "")...)
	cancel()

	tctx, cancel = context.WithTimeout(ctx, c.timeout)
	list = append(list, c.searchGithub(tctx, "")...)
	cancel()

	seen := make(map[string]struct{}, len(list))
	deduped := list[:0]
	for _, e := range list {
		if _, dup := seen[e.ID]; dup {
			continue
		}
		seen[e.ID] = struct{}{}
		deduped = append(deduped, e)
	}

	c.mu.Lock()
	c.entries = deduped
	c.mu.Unlock()

	metrics.IncRegistryRefresh(len(deduped))
	slog.Info("registry cache rebuilt", "entries", len(deduped))
}

// ensure populates the cache if it is empty. Concurrent callers race to the
// refresh lock; the losers re-check and find the winner's entries, so an
// empty cache is rebuilt exactly once.
func (c *Cache) ensure(ctx context.Context) {
	c.mu.Lock()
	empty := len(c.entries) == 0
	c.mu.Unlock()
	if !empty {
		return
	}
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()
	c.mu.Lock()
	empty = len(c.entries) == 0
	c.mu.Unlock()
	if empty {
		c.rebuild(ctx)
	}
}

// Search applies filters over the catalog: substring query, source and
// verified filters, a sort key, then an [offset, offset+limit) slice.
// HasMore reports whether offset+limit is still short of the filtered total.
func (c *Cache) Search(ctx context.Context, f SearchFilters) SearchResult {
	c.ensure(ctx)
	results := c.snapshot()

	if f.Query != "" {
		q := strings.ToLower(f.Query)
		results = filter(results, func(e Entry) bool {
			if strings.Contains(strings.ToLower(e.Name), q) || strings.Contains(strings.ToLower(e.Description), q) {
				return true
			}
			for _, t := range e.Tags {
				if strings.Contains(strings.ToLower(t), q) {
					return true
				}
			}
			return false
		})
	}
	if f.Source != "" {
		results = filter(results, func(e Entry) bool { return string(e.Source) == f.Source })
	}
	if f.Verified != nil {
		want := *f.Verified
		// An absent flag means unverified.
		results = filter(results, func(e Entry) bool {
			v := e.Verified != nil && *e.Verified
			return v == want
		})
	}

	switch f.SortBy {
	case "downloads":
		sort.SliceStable(results, func(i, j int) bool { return deref(results[i].Downloads) > deref(results[j].Downloads) })
	case "stars":
		sort.SliceStable(results, func(i, j int) bool { return deref(results[i].Stars) > deref(results[j].Stars) })
	case "updated":
		sort.SliceStable(results, func(i, j int) bool {
			return derefStr(results[i].LastUpdated) > derefStr(results[j].LastUpdated)
		})
	default:
		sort.SliceStable(results, func(i, j int) bool { return results[i].Name < results[j].Name })
	}

	total := len(results)
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}
	var page []Entry
	if offset < total {
		end := offset + limit
		if end > total {
			end = total
		}
		page = results[offset:end]
	} else {
		page = []Entry{}
	}
	return SearchResult{
		Entries: page,
		Total:   total,
		HasMore: offset+limit < total,
	}
}

// Categories returns the sorted set of distinct tags across the catalog.
func (c *Cache) Categories(ctx context.Context) []string {
	c.ensure(ctx)
	set := make(map[string]struct{})
	for _, e := range c.snapshot() {
		for _, t := range e.Tags {
			set[t] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Popular returns the top entries by downloads, optionally restricted to one
// source kind.
func (c *Cache) Popular(ctx context.Context, limit int, source string) []Entry {
	res := c.Search(ctx, SearchFilters{Source: source, SortBy: "downloads", Limit: limit})
	return res.Entries
}

// Seed replaces the catalog contents without invoking external tools.
func (c *Cache) Seed(entries []Entry) {
	c.mu.Lock()
	c.entries = append([]Entry(nil), entries...)
	c.mu.Unlock()
}

func filter(in []Entry, keep func(Entry) bool) []Entry {
	out := in[:0]
	for _, e := range in {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}

func deref(p *uint64) uint64 {
	if p == nil {
		return 0
	}
	return *p
}

func derefStr(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
