package tools

import (
	"context"
	"log/slog"
	"time"

	"github.com/lexandro/assetindex-mcp/asset"
	"github.com/lexandro/assetindex-mcp/cache"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// FindArgs defines the input parameters for the assetindex_find tool.
type FindArgs struct {
	Pattern       string `json:"pattern,omitempty" jsonschema:"Glob pattern over project paths (e.g. Assets/**/*.prefab)"`
	Query         string `json:"query,omitempty" jsonschema:"Name search: plain words, \"quoted phrase\" or /regex/"`
	Type          string `json:"type,omitempty" jsonschema:"Type group filter: Scene, Prefab, Model, Material, Texture, Video, Audio, Script, Text, Shader, Animation, Unity Asset or Others"`
	ExpandFolders bool   `json:"expandFolders,omitempty" jsonschema:"Also list every asset below matched folders"`
	MaxResults    int    `json:"maxResults,omitempty" jsonschema:"Maximum number of results to return (default 50)"`
}

// FindHandler looks assets up by path glob or name.
type FindHandler struct {
	Cache  Querier
	Logger *slog.Logger
}

// Handle processes an assetindex_find request.
func (h *FindHandler) Handle(ctx context.Context, req *mcp.CallToolRequest, args FindArgs) (*mcp.CallToolResult, any, error) {
	start := time.Now()

	if args.Pattern == "" && args.Query == "" {
		h.Logger.Warn("assetindex_find called without pattern or query")
		return errorResult("Error: pattern or query parameter is required"), nil, nil
	}
	if args.Type != "" && !asset.KnownGroup(args.Type) {
		return errorResult("Error: unknown type %q", args.Type), nil, nil
	}
	maxResults := args.MaxResults
	if maxResults <= 0 {
		maxResults = 50
	}

	var records []*asset.Record
	var searchErr error
	err := h.Cache.Do(ctx, func(c *cache.Cache) {
		if args.Pattern != "" {
			records, searchErr = c.SearchGlob(args.Pattern, maxResults, args.Type)
		} else {
			records, searchErr = c.SearchNames(args.Query, maxResults, args.Type)
		}
		if searchErr != nil || !args.ExpandFolders {
			return
		}
		ids := make([]asset.ID, 0, len(records))
		for _, rec := range records {
			ids = append(ids, rec.ID)
		}
		if expanded := c.FindRecords(ids, true); expanded != nil {
			records = expanded
		}
	})
	if err == nil {
		err = searchErr
	}
	if err != nil {
		h.Logger.Error("assetindex_find failed", "pattern", args.Pattern, "query", args.Query, "error", err)
		return errorResult("Search error: %v", err), nil, nil
	}

	h.Logger.Info("assetindex_find",
		"pattern", args.Pattern,
		"query", args.Query,
		"type", args.Type,
		"results", len(records),
		"elapsed", time.Since(start),
	)
	return textResult(FormatRecordList(records, "Found assets")), nil, nil
}
