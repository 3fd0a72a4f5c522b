package registry

import (
	"strings"

	"github.com/AstroAir/mcp-hub-next/internal/install"
)

// officialPackages is the curated list of officially recognized servers.
var officialPackages = []string{
	"@modelcontextprotocol/server-filesystem",
	"@modelcontextprotocol/server-github",
	"@modelcontextprotocol/server-postgres",
	"@modelcontextprotocol/server-sqlite",
	"@modelcontextprotocol/server-slack",
	"@modelcontextprotocol/server-brave-search",
	"@modelcontextprotocol/server-puppeteer",
	"@modelcontextprotocol/server-memory",
	"@modelcontextprotocol/server-fetch",
	"@modelcontextprotocol/server-google-maps",
}

// KnownServers materializes the curated list into verified catalog entries.
func KnownServers() []Entry {
	out := make([]Entry, 0, len(officialPackages))
	for _, pkg := range officialPackages {
		pkg := pkg
		short := strings.TrimPrefix(pkg, "@modelcontextprotocol/server-")
		verified := true
		homepage := "https://github.com/modelcontextprotocol/servers"
		docs := "https://github.com/modelcontextprotocol/servers/tree/main/src/" + short
		out = append(out, Entry{
			ID:            pkg,
			Name:          strings.ToUpper(short[:1]) + short[1:],
			Description:   "Official MCP " + short + " server",
			Source:        install.SourceNpm,
			PackageName:   &pkg,
			Homepage:      &homepage,
			Documentation: &docs,
			Tags:          []string{"official", "mcp", short},
			Verified:      &verified,
		})
	}
	return out
}

func isOfficial(pkg string) bool {
	for _, p := range officialPackages {
		if p == pkg {
			return true
		}
	}
	return false
}
