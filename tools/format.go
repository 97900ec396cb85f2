package tools

import (
	"fmt"
	"strings"

	"github.com/lexandro/assetindex-mcp/asset"
	"github.com/lexandro/assetindex-mcp/duplicate"
	"github.com/lexandro/assetindex-mcp/graph"
)

// FormatRecord renders one record as "path  (kind, size)".
func FormatRecord(rec *asset.Record) string {
	if rec.IsMissing() {
		return fmt.Sprintf("%s  (missing, %s)", rec.Path, rec.ID)
	}
	if rec.IsFolder() {
		return fmt.Sprintf("%s/  (folder)", rec.Path)
	}
	return fmt.Sprintf("%s  (%s, %s)", rec.Path, asset.GroupOf(rec.Extension), formatFileSize(rec.SizeBytes))
}

// FormatRecordList renders records one per line.
func FormatRecordList(records []*asset.Record, header string) string {
	if len(records) == 0 {
		return "No assets matched."
	}

	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("%s (%d):\n\n", header, len(records)))
	for _, rec := range records {
		builder.WriteString("  ")
		builder.WriteString(FormatRecord(rec))
		builder.WriteString("\n")
	}
	return builder.String()
}

// FormatClosure renders a closure query. Members are indented by depth; in
// deep results each member lists the records it was reached through.
func FormatClosure(closure *graph.Closure, verb string, deep bool, maxResults int) string {
	if len(closure.Roots) == 0 {
		return "No matching assets."
	}

	var builder strings.Builder
	for _, id := range closure.Roots {
		builder.WriteString(fmt.Sprintf("── %s ──\n", FormatRecord(closure.Nodes[id].Record)))
	}

	members := closure.Members()
	if len(members) == 0 {
		builder.WriteString(fmt.Sprintf("\n%s nothing.\n", verb))
		return builder.String()
	}

	scope := "directly"
	if deep {
		scope = "transitively"
	}
	builder.WriteString(fmt.Sprintf("\n%s %d assets %s:\n\n", verb, len(members), scope))

	shown := members
	if maxResults > 0 && len(shown) > maxResults {
		shown = shown[:maxResults]
	}
	for _, n := range shown {
		builder.WriteString(strings.Repeat("  ", n.Depth))
		builder.WriteString(FormatRecord(n.Record))
		if deep && n.Depth > 1 {
			via := make([]string, 0, len(n.AddedBy))
			for _, id := range n.AddedBy {
				if parent, ok := closure.Nodes[id]; ok {
					via = append(via, parent.Record.Name())
				}
			}
			builder.WriteString("  via " + strings.Join(via, ", "))
		}
		builder.WriteString("\n")
	}
	if len(shown) < len(members) {
		builder.WriteString(fmt.Sprintf("\n... %d more not shown\n", len(members)-len(shown)))
	}
	return builder.String()
}

// FormatUnused renders an unused scan with the reclaimable total.
func FormatUnused(records []*asset.Record, maxResults int) string {
	if len(records) == 0 {
		return "No unused assets found."
	}

	var total int64
	for _, rec := range records {
		total += rec.SizeBytes
	}

	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("Found %d unused assets (%s):\n\n", len(records), formatFileSize(total)))
	shown := records
	if maxResults > 0 && len(shown) > maxResults {
		shown = shown[:maxResults]
	}
	for _, rec := range shown {
		builder.WriteString("  ")
		builder.WriteString(FormatRecord(rec))
		builder.WriteString("\n")
	}
	if len(shown) < len(records) {
		builder.WriteString(fmt.Sprintf("\n... %d more not shown\n", len(records)-len(shown)))
	}
	return builder.String()
}

// FormatDuplicateGroups renders confirmed duplicate sets, largest first.
func FormatDuplicateGroups(groups []duplicate.Group, maxResults int) string {
	if len(groups) == 0 {
		return "No duplicate assets found."
	}

	var wasted int64
	for _, g := range groups {
		wasted += g.Wasted()
	}

	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("Found %d duplicate sets, %s reclaimable:\n", len(groups), formatFileSize(wasted)))
	shown := groups
	if maxResults > 0 && len(shown) > maxResults {
		shown = shown[:maxResults]
	}
	for i, g := range shown {
		builder.WriteString(fmt.Sprintf("\n[%d] %d copies of %s\n", i+1, len(g.Records), formatFileSize(g.SizeBytes)))
		for _, rec := range g.Records {
			builder.WriteString("  " + rec.Path + "\n")
		}
	}
	if len(shown) < len(groups) {
		builder.WriteString(fmt.Sprintf("\n... %d more sets not shown\n", len(groups)-len(shown)))
	}
	return builder.String()
}

// formatFileSize converts bytes to a human-readable string.
func formatFileSize(bytes int64) string {
	switch {
	case bytes >= 1024*1024:
		return fmt.Sprintf("%.1f MB", float64(bytes)/(1024*1024))
	case bytes >= 1024:
		return fmt.Sprintf("%.1f KB", float64(bytes)/1024)
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
