package tools

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// IgnoreArgs defines the input parameters for the assetindex_ignore tool.
type IgnoreArgs struct {
	Action string `json:"action" jsonschema:"One of add, remove or list"`
	Path   string `json:"path,omitempty" jsonschema:"Project relative folder or file to exclude from unused and duplicate reports"`
}

// IgnoreHandler edits the rules that exclude assets from reports. Excluded
// assets stay in the reference graph.
type IgnoreHandler struct {
	Rules  IgnoreEditor
	Logger *slog.Logger
}

// Handle processes an assetindex_ignore request.
func (h *IgnoreHandler) Handle(ctx context.Context, req *mcp.CallToolRequest, args IgnoreArgs) (*mcp.CallToolResult, any, error) {
	switch strings.ToLower(strings.TrimSpace(args.Action)) {
	case "add":
		if err := h.Rules.AddIgnore(args.Path); err != nil {
			h.Logger.Warn("assetindex_ignore add rejected", "path", args.Path, "error", err)
			return errorResult("Ignore error: %v", err), nil, nil
		}
		h.Logger.Info("assetindex_ignore add", "path", args.Path)
		return textResult(fmt.Sprintf("ignoring %s", args.Path)), nil, nil

	case "remove":
		if !h.Rules.RemoveIgnore(args.Path) {
			return textResult(fmt.Sprintf("no ignore rule for %s", args.Path)), nil, nil
		}
		h.Logger.Info("assetindex_ignore remove", "path", args.Path)
		return textResult(fmt.Sprintf("no longer ignoring %s", args.Path)), nil, nil

	case "list", "":
		rules := h.Rules.Rules()
		if len(rules) == 0 {
			return textResult("No ignore rules."), nil, nil
		}
		return textResult(fmt.Sprintf("Ignore rules (%d):\n  %s\n", len(rules), strings.Join(rules, "\n  "))), nil, nil

	default:
		return errorResult("Error: unknown action %q (use add, remove or list)", args.Action), nil, nil
	}
}
