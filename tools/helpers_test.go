package tools

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lexandro/assetindex-mcp/cache"
	"github.com/lexandro/assetindex-mcp/graph"
	"github.com/lexandro/assetindex-mcp/ignore"
	"github.com/lexandro/assetindex-mcp/storage"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	sceneGUID  = "a0000000000000000000000000000001"
	prefabGUID = "a0000000000000000000000000000002"
	matGUID    = "a0000000000000000000000000000003"
	texGUID    = "a0000000000000000000000000000004"
	orphanGUID = "a0000000000000000000000000000005"
	copyAGUID  = "a0000000000000000000000000000006"
	copyBGUID  = "a0000000000000000000000000000007"
)

// syncQuerier runs queries inline and then drives the cache workers until
// they are idle, standing in for the host loop.
type syncQuerier struct {
	cache *cache.Cache
	drive bool
}

func (q *syncQuerier) Do(ctx context.Context, fn func(*cache.Cache)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	fn(q.cache)
	if !q.drive {
		return nil
	}
	for busy := true; busy; {
		busy = false
		for _, w := range q.cache.Workers() {
			for w.Pending() {
				w.Step()
				busy = true
			}
		}
	}
	return nil
}

type fixture struct {
	root    string
	cache   *cache.Cache
	matcher *ignore.Matcher
	querier *syncQuerier
	logger  *slog.Logger
}

func writeAsset(t *testing.T, root, rel, guid, content string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	if guid != "" {
		meta := "fileFormatVersion: 2\nguid: " + guid + "\n"
		if err := os.WriteFile(p+storage.MetaExt, []byte(meta), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func yamlRef(guid, fileID string) string {
	return "  m_Ref: {fileID: " + fileID + ", guid: " + guid + ", type: 2}\n"
}

// newFixture builds a small project on disk: a scene listed in the build
// manifest uses a prefab, which uses a material, which uses a texture. An
// orphan texture and two identical binaries are unreferenced.
func newFixture(t *testing.T, build bool) *fixture {
	t.Helper()
	root := t.TempDir()
	writeAsset(t, root, "Assets/Main.unity", sceneGUID, "%YAML 1.1\n"+yamlRef(prefabGUID, "100100000"))
	writeAsset(t, root, "Assets/Prefabs/Hero.prefab", prefabGUID, "%YAML 1.1\n"+yamlRef(matGUID, "2100000"))
	writeAsset(t, root, "Assets/Materials/Hero.mat", matGUID, "%YAML 1.1\n"+yamlRef(texGUID, "2800000"))
	writeAsset(t, root, "Assets/Textures/hero.png", texGUID, "hero texture bytes")
	writeAsset(t, root, "Assets/Textures/orphan.png", orphanGUID, "orphan")
	writeAsset(t, root, "Assets/Copies/a.bin", copyAGUID, strings.Repeat("dup", 500))
	writeAsset(t, root, "Assets/Copies/b.bin", copyBGUID, strings.Repeat("dup", 500))
	writeAsset(t, root, "ProjectSettings/EditorBuildSettings.asset", "",
		"%YAML 1.1\nEditorBuildSettings:\n  m_Scenes:\n  - enabled: 1\n    path: Assets/Main.unity\n    guid: "+sceneGUID+"\n")

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	matcher := ignore.NewMatcher(ignore.MatcherOptions{RootDir: root, Roots: storage.DefaultRoots})
	src := storage.New(storage.Options{RootDir: root, Ignore: matcher, Logger: logger})
	c, err := cache.New(cache.Options{
		Source:       src,
		Ignore:       matcher,
		ManifestPath: "ProjectSettings/EditorBuildSettings.asset",
		Unused:       graph.DefaultUnusedPolicy(),
		Logger:       logger,
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { c.Close() })

	if _, err := c.Refresh(false); err != nil {
		t.Fatal(err)
	}
	if build {
		c.Drain()
	}
	return &fixture{
		root:    root,
		cache:   c,
		matcher: matcher,
		querier: &syncQuerier{cache: c, drive: build},
		logger:  logger,
	}
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("expected content in result")
	}
	return result.Content[0].(*mcp.TextContent).Text
}

func assertContains(t *testing.T, text string, wants ...string) {
	t.Helper()
	for _, want := range wants {
		if !strings.Contains(text, want) {
			t.Errorf("expected output to contain %q, got:\n%s", want, text)
		}
	}
}
