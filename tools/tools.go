// Package tools implements the MCP tool handlers. Every handler reaches the
// cache through a Querier, which runs the query on the goroutine that owns it.
package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/lexandro/assetindex-mcp/asset"
	"github.com/lexandro/assetindex-mcp/cache"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Querier runs fn against the cache and waits for it to return.
type Querier interface {
	Do(ctx context.Context, fn func(*cache.Cache)) error
}

// IgnoreEditor manages the user ignore rules. Implementations are safe for
// concurrent use.
type IgnoreEditor interface {
	AddIgnore(relativePath string) error
	RemoveIgnore(relativePath string) bool
	Rules() []string
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

func errorResult(format string, args ...any) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf(format, args...)}},
		IsError: true,
	}
}

// notReadyMessage is returned by queries issued before the first usage pass.
func notReadyMessage(c *cache.Cache) string {
	done, total := c.Progress()
	return fmt.Sprintf("The asset index is still being built (%d/%d records processed). Try again shortly.", done, total)
}

// resolveTargets maps user supplied paths or ids onto known ids. Anything
// that cannot be resolved is returned in unknown.
func resolveTargets(c *cache.Cache, targets []string) (ids []asset.ID, unknown []string) {
	for _, raw := range targets {
		target := strings.TrimSpace(raw)
		if target == "" {
			continue
		}
		lower := strings.ToLower(target)
		if asset.IsValidID(lower) {
			if _, ok := c.Get(asset.ID(lower)); ok {
				ids = append(ids, asset.ID(lower))
				continue
			}
		}
		if id, ok := c.ResolvePath(strings.TrimPrefix(strings.ReplaceAll(target, `\`, "/"), "./")); ok {
			ids = append(ids, id)
			continue
		}
		unknown = append(unknown, target)
	}
	return ids, unknown
}
