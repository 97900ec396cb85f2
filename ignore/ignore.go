// Package ignore decides which paths are enumerated and which indexed paths
// are excluded from unused and duplicate reports.
package ignore

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	gitignore "github.com/denormal/go-gitignore"

	"github.com/lexandro/assetindex-mcp/asset"
)

// Matcher has two layers.
//
// ShouldIgnore/ShouldIgnoreDir operate on absolute paths and decide what the
// storage layer and the watcher never see (default patterns only).
//
// IsExcluded operates on project relative paths of indexed records. It
// combines .assetignore, custom glob patterns and user rules. Excluded
// records stay in the graph so references to them still resolve.
//
// Every change to the exclusion layer bumps Generation so cached
// per-record decisions can be re-derived lazily.
// Thread-safe: mutators take the write lock, queries take the read lock.
type Matcher struct {
	mu             sync.RWMutex
	rootDir        string
	assetIgnore    gitignore.GitIgnore
	customPatterns []string
	rules          []string
	roots          []string
	generation     uint64
}

// MatcherOptions configures the ignore matcher.
type MatcherOptions struct {
	RootDir string
	// CustomPatterns are doublestar globs over project relative paths.
	CustomPatterns []string
	// Rules are project relative path prefixes excluded by the user.
	Rules []string
	// Roots are the top level content folders. A rule may not name one of them.
	Roots []string
}

// NewMatcher creates a matcher and loads .assetignore from the project root.
// Invalid initial rules are skipped.
func NewMatcher(options MatcherOptions) *Matcher {
	matcher := &Matcher{
		rootDir:        options.RootDir,
		customPatterns: options.CustomPatterns,
		roots:          options.Roots,
		generation:     1,
	}
	matcher.assetIgnore = loadIgnoreFile(filepath.Join(options.RootDir, IgnoreFileName), options.RootDir)
	for _, rule := range options.Rules {
		if r, err := matcher.normalizeRule(rule); err == nil && !slices.Contains(matcher.rules, r) {
			matcher.rules = append(matcher.rules, r)
		}
	}
	return matcher
}

// ShouldIgnore returns true if the given absolute path is never enumerated.
func (m *Matcher) ShouldIgnore(absolutePath string) bool {
	relativePath, err := filepath.Rel(m.rootDir, absolutePath)
	if err != nil {
		relativePath = absolutePath
	}
	return matchesDefaultPatterns(filepath.ToSlash(relativePath))
}

// ShouldIgnoreDir returns true if a directory should be skipped entirely during traversal.
func (m *Matcher) ShouldIgnoreDir(absolutePath string) bool {
	if skipDirNames[filepath.Base(absolutePath)] {
		return true
	}
	return m.ShouldIgnore(absolutePath)
}

// IsExcluded reports whether a project relative path is excluded from reports.
func (m *Matcher) IsExcluded(relativePath string) bool {
	relativePath = strings.TrimSuffix(filepath.ToSlash(relativePath), "/")

	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, rule := range m.rules {
		if relativePath == rule || strings.HasPrefix(relativePath, rule+"/") {
			return true
		}
	}

	if m.assetIgnore != nil && m.matchesIgnoreFile(relativePath) {
		return true
	}

	return m.matchesCustomPatterns(relativePath)
}

// matchesIgnoreFile checks the path and each of its parent folders, so a
// folder rule excludes everything below it. Relative() never stats the disk.
func (m *Matcher) matchesIgnoreFile(relativePath string) bool {
	parts := strings.Split(relativePath, "/")
	for i := 1; i < len(parts); i++ {
		if match := m.assetIgnore.Relative(strings.Join(parts[:i], "/"), true); match != nil && match.Ignore() {
			return true
		}
	}
	match := m.assetIgnore.Relative(relativePath, false)
	return match != nil && match.Ignore()
}

// Generation changes whenever the exclusion layer changes.
func (m *Matcher) Generation() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.generation
}

// AddIgnore adds a user rule excluding a project relative path and
// everything below it. Adding an existing rule is a no-op.
func (m *Matcher) AddIgnore(relativePath string) error {
	rule, err := m.normalizeRule(relativePath)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if slices.Contains(m.rules, rule) {
		return nil
	}
	m.rules = append(m.rules, rule)
	m.generation++
	return nil
}

// RemoveIgnore removes a user rule. It returns false if no such rule exists.
func (m *Matcher) RemoveIgnore(relativePath string) bool {
	rule := normalizePath(relativePath)

	m.mu.Lock()
	defer m.mu.Unlock()
	i := slices.Index(m.rules, rule)
	if i < 0 {
		return false
	}
	m.rules = slices.Delete(m.rules, i, i+1)
	m.generation++
	return true
}

// Rules returns a sorted copy of the user rules.
func (m *Matcher) Rules() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := slices.Clone(m.rules)
	slices.Sort(out)
	return out
}

// Reload re-reads .assetignore from disk.
// Used when the watcher detects a change to it.
func (m *Matcher) Reload() {
	newAssetIgnore := loadIgnoreFile(filepath.Join(m.rootDir, IgnoreFileName), m.rootDir)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.assetIgnore = newAssetIgnore
	m.generation++
}

// IsIgnoreFile reports whether an absolute path is the project's ignore file.
func (m *Matcher) IsIgnoreFile(absolutePath string) bool {
	return filepath.Clean(absolutePath) == filepath.Join(m.rootDir, IgnoreFileName)
}

func (m *Matcher) normalizeRule(relativePath string) (string, error) {
	rule := normalizePath(relativePath)
	if rule == "" || rule == "." {
		return "", fmt.Errorf("ignore %q: empty path: %w", relativePath, asset.ErrMalformedIgnoreRule)
	}
	for _, root := range m.roots {
		if strings.EqualFold(rule, root) {
			return "", fmt.Errorf("ignore %q: cannot exclude a content root: %w", relativePath, asset.ErrMalformedIgnoreRule)
		}
	}
	return rule, nil
}

func normalizePath(p string) string {
	p = strings.TrimSpace(filepath.ToSlash(p))
	if p == "" {
		return ""
	}
	return strings.TrimPrefix(path.Clean(p), "/")
}

// matchesDefaultPatterns checks if any path component matches a default pattern.
func matchesDefaultPatterns(relativePath string) bool {
	parts := strings.Split(relativePath, "/")
	baseNameLower := strings.ToLower(parts[len(parts)-1])

	for _, pattern := range DefaultIgnorePatterns {
		patternLower := strings.ToLower(pattern)
		if !strings.ContainsAny(pattern, "*?[") {
			for _, part := range parts {
				if strings.ToLower(part) == patternLower {
					return true
				}
			}
			continue
		}

		if matched, err := path.Match(patternLower, baseNameLower); err == nil && matched {
			return true
		}
	}
	return false
}

// matchesCustomPatterns checks the doublestar patterns against the path and its base name.
func (m *Matcher) matchesCustomPatterns(relativePath string) bool {
	baseName := path.Base(relativePath)
	for _, pattern := range m.customPatterns {
		if matched, err := doublestar.Match(pattern, relativePath); err == nil && matched {
			return true
		}
		if matched, err := doublestar.Match(pattern, baseName); err == nil && matched {
			return true
		}
	}
	return false
}

// loadIgnoreFile reads an ignore file and creates a GitIgnore matcher from it.
// Uses io.Reader approach to ensure the file handle is properly closed on Windows.
func loadIgnoreFile(filePath string, baseDir string) gitignore.GitIgnore {
	f, err := os.Open(filePath)
	if err != nil {
		return nil
	}
	defer f.Close()

	return gitignore.New(f, baseDir, nil)
}
