package tools

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lexandro/assetindex-mcp/cache"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// RescanArgs defines the input parameters for the assetindex_rescan tool.
type RescanArgs struct {
	Force bool `json:"force,omitempty" jsonschema:"Re-read every asset and erase records of deleted assets nothing references"`
}

// RescanHandler enumerates the project again and queues changed assets.
type RescanHandler struct {
	Cache  Querier
	Logger *slog.Logger
	// Reload is called before a forced rescan, e.g. to re-read ignore files. Optional.
	Reload func()
}

// Handle processes an assetindex_rescan request.
func (h *RescanHandler) Handle(ctx context.Context, req *mcp.CallToolRequest, args RescanArgs) (*mcp.CallToolResult, any, error) {
	h.Logger.Info("assetindex_rescan started", "force", args.Force)
	start := time.Now()

	if args.Force && h.Reload != nil {
		h.Reload()
	}

	var result cache.RefreshResult
	var refreshErr error
	var queued int
	err := h.Cache.Do(ctx, func(c *cache.Cache) {
		result, refreshErr = c.Refresh(args.Force)
		queued = c.Stats().Queued
	})
	if err == nil {
		err = refreshErr
	}
	if err != nil {
		h.Logger.Error("assetindex_rescan failed", "error", err)
		return errorResult("Rescan error: %v", err), nil, nil
	}

	elapsed := time.Since(start).Round(time.Millisecond)
	h.Logger.Info("assetindex_rescan complete",
		"seen", result.Seen,
		"added", result.Added,
		"changed", result.Changed,
		"missing", result.Missing,
		"pruned", result.Pruned,
		"elapsed", elapsed,
	)

	output := fmt.Sprintf("rescanned: %d assets in %s (%d new, %d changed, %d missing, %d erased); %d queued for indexing",
		result.Seen, elapsed, result.Added, result.Changed, result.Missing, result.Pruned, queued)
	return textResult(output), nil, nil
}
