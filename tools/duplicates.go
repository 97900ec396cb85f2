package tools

import (
	"context"
	"log/slog"
	"time"

	"github.com/lexandro/assetindex-mcp/cache"
	"github.com/lexandro/assetindex-mcp/duplicate"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// DefaultDuplicateTimeout bounds how long a duplicates request waits for its scan.
const DefaultDuplicateTimeout = 5 * time.Minute

// DuplicatesArgs defines the input parameters for the assetindex_duplicates tool.
type DuplicatesArgs struct {
	MaxResults     int `json:"maxResults,omitempty" jsonschema:"Maximum number of duplicate sets to list (default 50)"`
	TimeoutSeconds int `json:"timeoutSeconds,omitempty" jsonschema:"How long to wait for the scan (default 300)"`
}

// DuplicatesHandler starts a duplicate scan and waits for it to complete.
// The scan itself runs in scheduler steps on the cache goroutine.
type DuplicatesHandler struct {
	Cache  Querier
	Logger *slog.Logger
}

// Handle processes an assetindex_duplicates request.
func (h *DuplicatesHandler) Handle(ctx context.Context, req *mcp.CallToolRequest, args DuplicatesArgs) (*mcp.CallToolResult, any, error) {
	start := time.Now()
	maxResults := args.MaxResults
	if maxResults <= 0 {
		maxResults = 50
	}
	timeout := DefaultDuplicateTimeout
	if args.TimeoutSeconds > 0 {
		timeout = time.Duration(args.TimeoutSeconds) * time.Second
	}

	// Buffered so the callbacks never block the cache goroutine.
	done := make(chan []duplicate.Group, 1)
	aborted := make(chan struct{}, 1)
	var notReady string
	err := h.Cache.Do(ctx, func(c *cache.Cache) {
		if !c.Ready() {
			notReady = notReadyMessage(c)
			return
		}
		c.ScanDuplicates(duplicate.Callbacks{
			OnComplete: func(groups []duplicate.Group) { done <- groups },
			OnAbort:    func() { aborted <- struct{}{} },
		})
	})
	if err != nil {
		h.Logger.Error("assetindex_duplicates failed", "error", err)
		return errorResult("Query error: %v", err), nil, nil
	}
	if notReady != "" {
		return textResult(notReady), nil, nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case groups := <-done:
		h.Logger.Info("assetindex_duplicates", "groups", len(groups), "elapsed", time.Since(start))
		return textResult(FormatDuplicateGroups(groups, maxResults)), nil, nil
	case <-aborted:
		h.Logger.Info("assetindex_duplicates aborted", "elapsed", time.Since(start))
		return errorResult("Duplicate scan was stopped before it finished: a newer scan replaced it or the server is shutting down."), nil, nil
	case <-timer.C:
		h.Logger.Warn("assetindex_duplicates timed out", "timeout", timeout)
		return errorResult("Duplicate scan did not finish within %s; it keeps running in the background.", timeout), nil, nil
	case <-ctx.Done():
		return errorResult("Duplicate scan cancelled: %v", ctx.Err()), nil, nil
	}
}
