package server

import (
	"github.com/lexandro/assetindex-mcp/tools"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Version is reported to MCP clients.
const Version = "0.1.0"

// Handlers groups every tool handler the server registers.
type Handlers struct {
	Status     *tools.StatusHandler
	Uses       *tools.UsesHandler
	UsedBy     *tools.UsedByHandler
	Unused     *tools.UnusedHandler
	Duplicates *tools.DuplicatesHandler
	Find       *tools.FindHandler
	Rescan     *tools.RescanHandler
	Ignore     *tools.IgnoreHandler
}

// Setup creates and configures the MCP server with all tool registrations.
func Setup(h Handlers) *mcp.Server {
	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    "assetindex-mcp",
			Version: Version,
		},
		&mcp.ServerOptions{
			Instructions: `This server keeps an incremental reference graph of a game project's assets (scenes, prefabs, materials, textures, models and folders). Answers come from memory, so they are much faster than grepping serialized asset files for GUIDs.

- Use assetindex_uses to see what an asset depends on
- Use assetindex_used_by before deleting, moving or renaming an asset
- Use assetindex_unused and assetindex_duplicates to find cleanup candidates
- Use assetindex_find to locate assets by path glob or name
- The index updates automatically when files change (via filesystem watcher); call assetindex_rescan only if it looks stale`,
		},
	)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name: "assetindex_uses",
		Description: `List the assets referenced by the given assets (dependencies).

Assets are project relative paths (e.g. "Assets/Prefabs/Hero.prefab") or 32 character GUIDs.
With deep=true the whole dependency tree is returned, indented by depth.`,
	}, h.Uses.Handle)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name: "assetindex_used_by",
		Description: `List the assets that reference the given assets (dependents).

Assets are project relative paths or GUIDs. With deep=true every transitive user is returned.
Folders are not counted as users of their contents.`,
	}, h.UsedBy.Handle)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name: "assetindex_unused",
		Description: `List assets under the primary root that nothing references. Scripts, special folders (Editor, Resources, Plugins, StreamingAssets), bundled or atlased assets and ignored paths are never reported.`,
	}, h.Unused.Handle)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        "assetindex_duplicates",
		Description: "Find byte-identical assets. Runs a chunked comparison and waits for it; files are read at most once.",
	}, h.Duplicates.Handle)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name: "assetindex_find",
		Description: `Find assets by path glob or by name.

  - pattern: glob over project paths (e.g. "Assets/**/*.prefab")
  - query: name search; plain words, "quoted phrase" or /regex/
  - type: restrict to a type group (e.g. "Texture")
  - expandFolders: also list the contents of matched folders`,
	}, h.Find.Handle)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        "assetindex_status",
		Description: "Show index status: asset and reference counts, indexing progress, kinds, memory usage, and uptime.",
	}, h.Status.Handle)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        "assetindex_rescan",
		Description: "Enumerate the project again and re-index changed assets. With force=true every asset is re-read and deleted assets nothing references are erased.",
	}, h.Rescan.Handle)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        "assetindex_ignore",
		Description: "Manage paths excluded from unused and duplicate reports. action: add, remove or list. Excluded assets still appear in uses/used_by.",
	}, h.Ignore.Handle)

	return mcpServer
}
