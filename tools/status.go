package tools

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/lexandro/assetindex-mcp/cache"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// StatusArgs defines the input parameters for the assetindex_status tool (none required).
type StatusArgs struct{}

// StatusHandler holds the dependencies for the status tool.
type StatusHandler struct {
	Cache     Querier
	StartTime time.Time
	RootDir   string
	Logger    *slog.Logger
}

// Handle processes an assetindex_status request.
func (h *StatusHandler) Handle(ctx context.Context, req *mcp.CallToolRequest, args StatusArgs) (*mcp.CallToolResult, any, error) {
	var stats cache.Stats
	var dupDone, dupTotal int64
	err := h.Cache.Do(ctx, func(c *cache.Cache) {
		stats = c.Stats()
		dupDone, dupTotal, _ = c.DuplicateProgress()
	})
	if err != nil {
		h.Logger.Error("assetindex_status failed", "error", err)
		return errorResult("Status error: %v", err), nil, nil
	}

	uptime := time.Since(h.StartTime)

	// Memory stats
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	h.Logger.Info("assetindex_status",
		"records", stats.Records,
		"edges", stats.Edges,
		"ready", stats.Ready,
		"memory", memStats.Alloc,
		"uptime", uptime,
	)

	var builder strings.Builder
	builder.WriteString("=== assetindex-mcp Status ===\n\n")
	builder.WriteString(fmt.Sprintf("Root directory: %s\n", h.RootDir))
	builder.WriteString(fmt.Sprintf("Uptime: %s\n", formatDuration(uptime)))
	if stats.Ready {
		builder.WriteString("State: ready\n")
	} else {
		builder.WriteString("State: building\n")
	}
	if stats.WorkTotal > 0 {
		builder.WriteString(fmt.Sprintf("Indexing: %d/%d records\n", stats.WorkDone, stats.WorkTotal))
	}
	builder.WriteString(fmt.Sprintf("Assets: %d (%d live, %d missing)\n", stats.Records, stats.Live, stats.Missing))
	builder.WriteString(fmt.Sprintf("References: %d\n", stats.Edges))
	builder.WriteString(fmt.Sprintf("Name-indexed documents: %d\n", stats.NameDocs))
	builder.WriteString(fmt.Sprintf("Total asset size: %s\n", formatFileSize(stats.TotalBytes)))
	if stats.ManifestPath != "" {
		builder.WriteString(fmt.Sprintf("Build manifest: %s\n", stats.ManifestPath))
	}
	if stats.Duplicates {
		builder.WriteString(fmt.Sprintf("Duplicate scan: %s of %s\n", formatFileSize(dupDone), formatFileSize(dupTotal)))
	}
	builder.WriteString(fmt.Sprintf("Memory usage: %s (heap: %s)\n",
		formatFileSize(int64(memStats.Alloc)),
		formatFileSize(int64(memStats.HeapAlloc)),
	))

	// Kind breakdown
	if len(stats.ByKind) > 0 {
		builder.WriteString("\nKinds:\n")

		// Sort by count descending
		type kindEntry struct {
			kind  string
			count int
		}
		entries := make([]kindEntry, 0, len(stats.ByKind))
		for kind, count := range stats.ByKind {
			entries = append(entries, kindEntry{kind, count})
		}
		sort.Slice(entries, func(i, j int) bool {
			if entries[i].count != entries[j].count {
				return entries[i].count > entries[j].count
			}
			return entries[i].kind < entries[j].kind
		})

		for _, entry := range entries {
			builder.WriteString(fmt.Sprintf("  %-20s %d\n", entry.kind, entry.count))
		}
	}

	return textResult(builder.String()), nil, nil
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	totalSeconds := int(d.Seconds())
	if totalSeconds < 60 {
		return fmt.Sprintf("%ds", totalSeconds)
	}
	totalMinutes := totalSeconds / 60
	remainderSeconds := totalSeconds % 60
	if totalMinutes < 60 {
		return fmt.Sprintf("%dm%ds", totalMinutes, remainderSeconds)
	}
	hours := totalMinutes / 60
	remainderMinutes := totalMinutes % 60
	return fmt.Sprintf("%dh%dm", hours, remainderMinutes)
}
