package registry

import (
	"context"
	"encoding/json"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/AstroAir/mcp-hub-next/internal/install"
)

// npmSearchResult is the subset of `npm search --json --long` output the
// catalog cares about. Unknown fields are ignored; a shape mismatch on the
// whole document makes the search contribute nothing.
type npmSearchResult struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Version     string    `json:"version"`
	Date        string    `json:"date"`
	Keywords    []string  `json:"keywords"`
	Author      npmAuthor `json:"author"`
	Links       struct {
		Homepage   string `json:"homepage"`
		Repository string `json:"repository"`
	} `json:"links"`
}

// npmAuthor tolerates both the object and plain-string forms npm emits.
type npmAuthor struct {
	Name string
}

func (a *npmAuthor) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		a.Name = s
		return nil
	}
	var obj struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(b, &obj); err == nil {
		a.Name = obj.Name
	}
	return nil
}

// ghSearchResult is the subset of `gh search repos --json` output used.
type ghSearchResult struct {
	Name  string `json:"name"`
	Owner struct {
		Login string `json:"login"`
	} `json:"owner"`
	Description     string `json:"description"`
	URL             string `json:"url"`
	StargazersCount uint64 `json:"stargazersCount"`
	UpdatedAt       string `json:"updatedAt"`
}

// searchNpm queries the npm catalog for MCP-related packages. Any failure,
// from a missing binary to malformed output, yields an empty contribution.
func (c *Cache) searchNpm(ctx context.Context, query string) []Entry {
	if query == "" {
		query = "mcp-server"
	}
	out, err := exec.CommandContext(ctx, c.npmBin, "search", query, "--json", "--long").Output()
	if err != nil {
		slog.Debug("npm catalog search unavailable", "error", err)
		return nil
	}
	var results []npmSearchResult
	if err := json.Unmarshal(out, &results); err != nil {
		slog.Debug("npm catalog search output malformed", "error", err)
		return nil
	}
	entries := make([]Entry, 0, len(results))
	for _, r := range results {
		if r.Name == "" || !npmLooksRelevant(r) {
			continue
		}
		name := r.Name
		verified := isOfficial(name)
		e := Entry{
			ID:          name,
			Name:        name,
			Description: r.Description,
			Source:      install.SourceNpm,
			PackageName: &name,
			Tags:        r.Keywords,
			Verified:    &verified,
		}
		if r.Version != "" {
			v := r.Version
			e.Version = &v
		}
		if r.Author.Name != "" {
			a := r.Author.Name
			e.Author = &a
		}
		if r.Links.Homepage != "" {
			h := r.Links.Homepage
			e.Homepage = &h
		}
		if r.Links.Repository != "" {
			d := r.Links.Repository
			e.Documentation = &d
		}
		if r.Date != "" {
			u := r.Date
			e.LastUpdated = &u
		}
		entries = append(entries, e)
	}
	return entries
}

func npmLooksRelevant(r npmSearchResult) bool {
	if strings.Contains(r.Name, "mcp") {
		return true
	}
	for _, kw := range r.Keywords {
		if strings.Contains(kw, "mcp") || strings.Contains(kw, "model-context-protocol") {
			return true
		}
	}
	return false
}

// searchGithub queries GitHub repositories via the gh CLI. Same best-effort
// policy as searchNpm: users without gh installed still get curated and npm
// results and can install GitHub servers by direct repository reference.
func (c *Cache) searchGithub(ctx context.Context, query string) []Entry {
	if query == "" {
		query = "mcp-server topic:mcp"
	}
	out, err := exec.CommandContext(ctx, c.ghBin,
		"search", "repos", query,
		"--json", "name,owner,description,url,stargazersCount,updatedAt",
		"--limit", "50").Output()
	if err != nil {
		slog.Debug("github repository search unavailable", "error", err)
		return nil
	}
	var results []ghSearchResult
	if err := json.Unmarshal(out, &results); err != nil {
		slog.Debug("github repository search output malformed", "error", err)
		return nil
	}
	entries := make([]Entry, 0, len(results))
	for _, r := range results {
		if r.Name == "" || r.Owner.Login == "" {
			continue
		}
		if !ghLooksRelevant(r) {
			continue
		}
		full := r.Owner.Login + "/" + r.Name
		owner := r.Owner.Login
		verified := false
		e := Entry{
			ID:          full,
			Name:        r.Name,
			Description: r.Description,
			Source:      install.SourceGithub,
			Repository:  &full,
			Author:      &owner,
			Tags:        []string{"github", "mcp"},
			Verified:    &verified,
		}
		if r.URL != "" {
			h := r.URL
			d := r.URL
			e.Homepage = &h
			e.Documentation = &d
		}
		if r.StargazersCount > 0 {
			s := r.StargazersCount
			e.Stars = &s
		}
		if r.UpdatedAt != "" {
			u := r.UpdatedAt
			e.LastUpdated = &u
		}
		entries = append(entries, e)
	}
	return entries
}

func ghLooksRelevant(r ghSearchResult) bool {
	name := strings.ToLower(r.Name)
	desc := strings.ToLower(r.Description)
	return strings.Contains(name, "mcp") ||
		strings.Contains(desc, "mcp") ||
		strings.Contains(desc, "model context protocol")
}
