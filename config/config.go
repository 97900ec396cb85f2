// Package config loads project settings from .assetindex.kdl.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	kdl "github.com/sblinch/kdl-go"
	"github.com/sblinch/kdl-go/document"

	"github.com/lexandro/assetindex-mcp/asset"
	"github.com/lexandro/assetindex-mcp/duplicate"
	"github.com/lexandro/assetindex-mcp/graph"
	"github.com/lexandro/assetindex-mcp/sched"
	"github.com/lexandro/assetindex-mcp/storage"
)

// FileName is the config file looked up in the project root.
const FileName = ".assetindex.kdl"

// Config holds every project setting. Zero values are never used directly:
// Default fills them and the file overrides what it names.
type Config struct {
	Root     string // absolute project directory
	Project  Project
	Scan     Scan
	Unused   Unused
	Ignore   Ignore
	Snapshot Snapshot
	Sync     Sync
}

type Project struct {
	Roots    []string
	Primary  string
	Manifest string
}

type Scan struct {
	Priority     int
	BaselineMs   int
	FrameMs      int
	ChunkSize    int
	IOLimit      int64 // bytes per second, 0 = unlimited
	ExcludeTypes []string
}

type Unused struct {
	SpecialFolders    []string
	SpecialAssets     []string
	SpecialExtensions []string
	KeepGrouped       bool
}

type Ignore struct {
	Patterns []string
	Rules    []string
}

type Snapshot struct {
	Path    string // project relative or absolute
	Enabled bool
}

type Sync struct {
	IntervalSeconds int
	DebounceMs      int
}

// Default returns the settings used when no config file exists.
func Default(root string) *Config {
	policy := graph.DefaultUnusedPolicy()
	return &Config{
		Root: root,
		Project: Project{
			Roots:    append([]string(nil), storage.DefaultRoots...),
			Primary:  "Assets",
			Manifest: "ProjectSettings/EditorBuildSettings.asset",
		},
		Scan: Scan{
			Priority:     sched.DefaultPriority,
			BaselineMs:   int(sched.DefaultBaseline / time.Millisecond),
			FrameMs:      16,
			ChunkSize:    duplicate.DefaultChunkSize,
			ExcludeTypes: []string{"Script", "Text"},
		},
		Unused: Unused{
			SpecialFolders:    policy.SpecialFolders,
			SpecialAssets:     policy.SpecialAssets,
			SpecialExtensions: policy.SpecialExtensions,
			KeepGrouped:       policy.KeepGrouped,
		},
		Snapshot: Snapshot{Path: "Library/assetindex.snapshot", Enabled: true},
		Sync:     Sync{IntervalSeconds: 300, DebounceMs: 100},
	}
}

// Load reads <root>/.assetindex.kdl, or returns Default(root) when it does not exist.
func Load(root string) (*Config, error) {
	return LoadFile(filepath.Join(root, FileName), root)
}

// LoadFile reads a config file for the project at root. A missing file is not an error.
func LoadFile(path, root string) (*Config, error) {
	cfg := Default(root)
	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if err := Parse(string(content), cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse applies the settings in content on top of cfg.
func Parse(content string, cfg *Config) error {
	if err := checkBlocks(content); err != nil {
		return fmt.Errorf("failed to parse KDL config: %w", err)
	}
	doc, err := kdl.Parse(strings.NewReader(content))
	if err != nil {
		return fmt.Errorf("failed to parse KDL config: %w", err)
	}

	for _, n := range doc.Nodes {
		switch nodeName(n) {
		case "project":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "roots":
					cfg.Project.Roots = collectStringArgs(cn)
				case "primary":
					assignString(cn, &cfg.Project.Primary)
				case "manifest":
					assignString(cn, &cfg.Project.Manifest)
				}
			}
		case "scan":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "priority":
					assignInt(cn, &cfg.Scan.Priority)
				case "baseline_ms":
					assignInt(cn, &cfg.Scan.BaselineMs)
				case "frame_ms":
					assignInt(cn, &cfg.Scan.FrameMs)
				case "chunk_size":
					assignInt(cn, &cfg.Scan.ChunkSize)
					if s, ok := firstStringArg(cn); ok {
						size, err := parseSize(s)
						if err != nil {
							return fmt.Errorf("scan.chunk_size: %w", err)
						}
						cfg.Scan.ChunkSize = int(size)
					}
				case "io_limit":
					if v, ok := firstIntArg(cn); ok {
						cfg.Scan.IOLimit = int64(v)
					}
					if s, ok := firstStringArg(cn); ok {
						size, err := parseSize(s)
						if err != nil {
							return fmt.Errorf("scan.io_limit: %w", err)
						}
						cfg.Scan.IOLimit = size
					}
				case "exclude_types":
					cfg.Scan.ExcludeTypes = collectStringArgs(cn)
				}
			}
		case "unused":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "special_folders":
					cfg.Unused.SpecialFolders = collectStringArgs(cn)
				case "special_assets":
					cfg.Unused.SpecialAssets = collectStringArgs(cn)
				case "special_extensions":
					cfg.Unused.SpecialExtensions = collectStringArgs(cn)
				case "keep_grouped":
					if b, ok := firstBoolArg(cn); ok {
						cfg.Unused.KeepGrouped = b
					}
				}
			}
		case "ignore":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "patterns":
					cfg.Ignore.Patterns = append(cfg.Ignore.Patterns, collectStringArgs(cn)...)
				case "rules":
					cfg.Ignore.Rules = append(cfg.Ignore.Rules, collectStringArgs(cn)...)
				}
			}
		case "snapshot":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "path":
					assignString(cn, &cfg.Snapshot.Path)
				case "enabled":
					if b, ok := firstBoolArg(cn); ok {
						cfg.Snapshot.Enabled = b
					}
				}
			}
		case "sync":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "interval_seconds":
					assignInt(cn, &cfg.Sync.IntervalSeconds)
				case "debounce_ms":
					assignInt(cn, &cfg.Sync.DebounceMs)
				}
			}
		}
	}
	return nil
}

// Validate rejects settings the cache cannot run with.
func (c *Config) Validate() error {
	if len(c.Project.Roots) == 0 {
		return errors.New("project.roots: at least one root is required")
	}
	for _, root := range c.Project.Roots {
		if root == "" || strings.ContainsAny(root, `/\`) || root == "." || root == ".." {
			return fmt.Errorf("project.roots: %q must be a single top level folder name", root)
		}
	}
	if c.Scan.Priority < sched.MinPriority || c.Scan.Priority > sched.MaxPriority {
		return fmt.Errorf("scan.priority: %d is outside [%d, %d]", c.Scan.Priority, sched.MinPriority, sched.MaxPriority)
	}
	if c.Scan.BaselineMs <= 0 || c.Scan.FrameMs <= 0 {
		return errors.New("scan.baseline_ms and scan.frame_ms must be positive")
	}
	if c.Scan.ChunkSize <= 0 {
		return fmt.Errorf("scan.chunk_size: %d must be positive", c.Scan.ChunkSize)
	}
	if c.Scan.IOLimit < 0 {
		return fmt.Errorf("scan.io_limit: %d must not be negative", c.Scan.IOLimit)
	}
	for _, name := range c.Scan.ExcludeTypes {
		if !asset.KnownGroup(name) {
			return fmt.Errorf("scan.exclude_types: unknown type group %q", name)
		}
	}
	if c.Sync.IntervalSeconds < 0 || c.Sync.DebounceMs < 0 {
		return errors.New("sync intervals must not be negative")
	}
	return nil
}

// SnapshotPath returns the absolute snapshot location.
func (c *Config) SnapshotPath() string {
	if filepath.IsAbs(c.Snapshot.Path) {
		return c.Snapshot.Path
	}
	return filepath.Join(c.Root, filepath.FromSlash(c.Snapshot.Path))
}

// UnusedPolicy builds the unused-scan policy from the settings.
func (c *Config) UnusedPolicy() graph.UnusedPolicy {
	return graph.UnusedPolicy{
		PrimaryRoot:       c.Project.Primary,
		SpecialFolders:    c.Unused.SpecialFolders,
		SpecialAssets:     c.Unused.SpecialAssets,
		SpecialExtensions: c.Unused.SpecialExtensions,
		KeepGrouped:       c.Unused.KeepGrouped,
	}
}

// Baseline is the scheduler's per-priority-step budget.
func (c *Config) Baseline() time.Duration {
	return time.Duration(c.Scan.BaselineMs) * time.Millisecond
}

// Frame is the host tick interval.
func (c *Config) Frame() time.Duration {
	return time.Duration(c.Scan.FrameMs) * time.Millisecond
}

// checkBlocks reports children blocks that are never closed or closed twice.
// The parser accepts a document that ends inside a block.
func checkBlocks(content string) error {
	depth, line := 0, 1
	for i := 0; i < len(content); i++ {
		switch ch := content[i]; {
		case ch == '\n':
			line++
		case ch == '"':
			i = skipString(content, i+1, false, 0, &line)
		case ch == 'r' && (i == 0 || !isIdentByte(content[i-1])) && i+1 < len(content) && (content[i+1] == '"' || content[i+1] == '#'):
			hashes := 0
			j := i + 1
			for j < len(content) && content[j] == '#' {
				hashes++
				j++
			}
			if j < len(content) && content[j] == '"' {
				i = skipString(content, j+1, true, hashes, &line)
			}
		case ch == '/' && i+1 < len(content) && content[i+1] == '/':
			for i < len(content) && content[i] != '\n' {
				i++
			}
			line++
		case ch == '/' && i+1 < len(content) && content[i+1] == '*':
			nested := 0
			for i++; i < len(content); i++ {
				if content[i] == '\n' {
					line++
				} else if content[i] == '/' && i+1 < len(content) && content[i+1] == '*' {
					nested++
					i++
				} else if content[i] == '*' && i+1 < len(content) && content[i+1] == '/' {
					i++
					if nested == 0 {
						break
					}
					nested--
				}
			}
		case ch == '{':
			depth++
		case ch == '}':
			if depth == 0 {
				return fmt.Errorf("line %d: unexpected '}'", line)
			}
			depth--
		}
	}
	if depth > 0 {
		return fmt.Errorf("%d unclosed block(s) at end of file", depth)
	}
	return nil
}

// skipString returns the index where a string whose body starts at i ends.
// Raw strings have no escapes and close with the same number of hashes.
func skipString(content string, i int, raw bool, hashes int, line *int) int {
	for ; i < len(content); i++ {
		switch content[i] {
		case '\n':
			*line++
		case '\\':
			if !raw {
				i++
			}
		case '"':
			if strings.HasPrefix(content[i+1:], strings.Repeat("#", hashes)) {
				return i + hashes
			}
		}
	}
	return i
}

func isIdentByte(b byte) bool {
	return b == '_' || b == '-' || b == '.' || (b >= '0' && b <= '9') || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

func nodeName(n *document.Node) string {
	if n == nil || n.Name == nil {
		return ""
	}
	return n.Name.NodeNameString()
}

func firstIntArg(n *document.Node) (int, bool) {
	if len(n.Arguments) == 0 {
		return 0, false
	}
	switch v := n.Arguments[0].Value.(type) {
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

func firstStringArg(n *document.Node) (string, bool) {
	if len(n.Arguments) == 0 {
		return "", false
	}
	s, ok := n.Arguments[0].Value.(string)
	return s, ok
}

func firstBoolArg(n *document.Node) (bool, bool) {
	if len(n.Arguments) == 0 {
		return false, false
	}
	b, ok := n.Arguments[0].Value.(bool)
	return b, ok
}

func assignInt(n *document.Node, dst *int) {
	if v, ok := firstIntArg(n); ok {
		*dst = v
	}
}

func assignString(n *document.Node, dst *string) {
	if s, ok := firstStringArg(n); ok {
		*dst = s
	}
}

// collectStringArgs reads inline arguments, or child node names for the block form.
func collectStringArgs(n *document.Node) []string {
	out := make([]string, 0, len(n.Arguments))
	for _, a := range n.Arguments {
		if s, ok := a.Value.(string); ok {
			out = append(out, s)
		}
	}
	if len(out) == 0 && len(n.Children) > 0 {
		for _, child := range n.Children {
			if s, ok := firstStringArg(child); ok {
				out = append(out, s)
			} else if name := nodeName(child); name != "" {
				out = append(out, name)
			}
		}
	}
	return out
}

// parseSize handles size strings like "64MB", "10KB", "1GB".
func parseSize(s string) (int64, error) {
	s = strings.ToUpper(strings.TrimSpace(s))

	var multiplier int64 = 1
	numStr := s
	switch {
	case strings.HasSuffix(s, "GB"):
		multiplier, numStr = 1024*1024*1024, strings.TrimSuffix(s, "GB")
	case strings.HasSuffix(s, "MB"):
		multiplier, numStr = 1024*1024, strings.TrimSuffix(s, "MB")
	case strings.HasSuffix(s, "KB"):
		multiplier, numStr = 1024, strings.TrimSuffix(s, "KB")
	case strings.HasSuffix(s, "B"):
		numStr = strings.TrimSuffix(s, "B")
	}

	num, err := strconv.ParseInt(strings.TrimSpace(numStr), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	return num * multiplier, nil
}
