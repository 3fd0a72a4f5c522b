// Package registry maintains a refreshable in-memory catalog of discoverable
// servers. The catalog merges a curated list of official packages with
// best-effort live searches of the npm catalog and GitHub, and serves
// filtered, sorted, paginated queries over the result.
package registry

import (
	"github.com/AstroAir/mcp-hub-next/internal/install"
)

// Entry describes one discoverable server in the catalog.
type Entry struct {
	ID            string             `json:"id"`
	Name          string             `json:"name"`
	Description   string             `json:"description"`
	Source        install.SourceType `json:"source"`
	PackageName   *string            `json:"package_name,omitempty"`
	Repository    *string            `json:"repository,omitempty"`
	Version       *string            `json:"version,omitempty"`
	Author        *string            `json:"author,omitempty"`
	Homepage      *string            `json:"homepage,omitempty"`
	Documentation *string            `json:"documentation,omitempty"`
	Tags          []string           `json:"tags,omitempty"`
	Downloads     *uint64            `json:"downloads,omitempty"`
	Stars         *uint64            `json:"stars,omitempty"`
	LastUpdated   *string            `json:"last_updated,omitempty"`
	Verified      *bool              `json:"verified,omitempty"`
}

// SearchFilters narrows and orders a catalog query. Zero values mean
// "unfiltered"; Limit defaults to 20.
type SearchFilters struct {
	Query    string   `json:"query,omitempty"`
	Source   string   `json:"source,omitempty"`
	Verified *bool    `json:"verified,omitempty"`
	SortBy   string   `json:"sort_by,omitempty"` // downloads, stars, updated, name
	Limit    int      `json:"limit,omitempty"`
	Offset   int      `json:"offset,omitempty"`
	Tags     []string `json:"tags,omitempty"`
}

// SearchResult is one page of catalog entries plus pagination info.
type SearchResult struct {
	Entries []Entry `json:"entries"`
	Total   int     `json:"total"`
	HasMore bool    `json:"has_more"`
}
