package tools

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lexandro/assetindex-mcp/asset"
	"github.com/lexandro/assetindex-mcp/cache"
	"github.com/lexandro/assetindex-mcp/graph"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// ClosureArgs defines the input parameters for the assetindex_uses and
// assetindex_used_by tools.
type ClosureArgs struct {
	Assets     []string `json:"assets" jsonschema:"Project relative paths (e.g. Assets/Hero.prefab) or 32 character asset ids"`
	Deep       bool     `json:"deep,omitempty" jsonschema:"Follow references transitively instead of one level"`
	MaxResults int      `json:"maxResults,omitempty" jsonschema:"Maximum number of assets to list (default 200)"`
}

// UsesHandler answers "what does this asset reference".
type UsesHandler struct {
	Cache  Querier
	Logger *slog.Logger
}

// Handle processes an assetindex_uses request.
func (h *UsesHandler) Handle(ctx context.Context, req *mcp.CallToolRequest, args ClosureArgs) (*mcp.CallToolResult, any, error) {
	return handleClosure(ctx, h.Cache, h.Logger, "assetindex_uses", "Uses", args,
		func(c *cache.Cache, ids []asset.ID) *graph.Closure { return c.ForwardClosure(ids, args.Deep) })
}

// UsedByHandler answers "what references this asset".
type UsedByHandler struct {
	Cache  Querier
	Logger *slog.Logger
}

// Handle processes an assetindex_used_by request.
func (h *UsedByHandler) Handle(ctx context.Context, req *mcp.CallToolRequest, args ClosureArgs) (*mcp.CallToolResult, any, error) {
	return handleClosure(ctx, h.Cache, h.Logger, "assetindex_used_by", "Used by", args,
		func(c *cache.Cache, ids []asset.ID) *graph.Closure { return c.ReverseClosure(ids, args.Deep) })
}

func handleClosure(
	ctx context.Context,
	q Querier,
	logger *slog.Logger,
	tool string,
	verb string,
	args ClosureArgs,
	query func(*cache.Cache, []asset.ID) *graph.Closure,
) (*mcp.CallToolResult, any, error) {
	start := time.Now()

	if len(args.Assets) == 0 {
		logger.Warn(tool + " called without assets")
		return errorResult("Error: assets parameter is required"), nil, nil
	}
	maxResults := args.MaxResults
	if maxResults <= 0 {
		maxResults = 200
	}

	var output string
	var members int
	err := q.Do(ctx, func(c *cache.Cache) {
		if !c.Ready() {
			output = notReadyMessage(c)
			return
		}
		ids, unknown := resolveTargets(c, args.Assets)
		closure := query(c, ids)
		members = closure.Len()

		var builder strings.Builder
		builder.WriteString(FormatClosure(closure, verb, args.Deep, maxResults))
		if len(unknown) > 0 {
			builder.WriteString(fmt.Sprintf("\nNot found: %s\n", strings.Join(unknown, ", ")))
		}
		output = builder.String()
	})
	if err != nil {
		logger.Error(tool+" failed", "error", err)
		return errorResult("Query error: %v", err), nil, nil
	}

	logger.Info(tool,
		"assets", len(args.Assets),
		"deep", args.Deep,
		"results", members,
		"elapsed", time.Since(start),
	)
	return textResult(output), nil, nil
}
