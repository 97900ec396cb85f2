package tools

import (
	"context"
	"log/slog"
	"time"

	"github.com/lexandro/assetindex-mcp/cache"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// UnusedArgs defines the input parameters for the assetindex_unused tool.
type UnusedArgs struct {
	MaxResults int `json:"maxResults,omitempty" jsonschema:"Maximum number of assets to list (default 100)"`
}

// UnusedHandler lists assets nothing references.
type UnusedHandler struct {
	Cache  Querier
	Logger *slog.Logger
}

// Handle processes an assetindex_unused request.
func (h *UnusedHandler) Handle(ctx context.Context, req *mcp.CallToolRequest, args UnusedArgs) (*mcp.CallToolResult, any, error) {
	start := time.Now()
	maxResults := args.MaxResults
	if maxResults <= 0 {
		maxResults = 100
	}

	var output string
	var found int
	err := h.Cache.Do(ctx, func(c *cache.Cache) {
		if !c.Ready() {
			output = notReadyMessage(c)
			return
		}
		unused := c.ScanUnused()
		found = len(unused)
		output = FormatUnused(unused, maxResults)
	})
	if err != nil {
		h.Logger.Error("assetindex_unused failed", "error", err)
		return errorResult("Query error: %v", err), nil, nil
	}

	h.Logger.Info("assetindex_unused", "results", found, "elapsed", time.Since(start))
	return textResult(output), nil, nil
}
