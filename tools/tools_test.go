package tools

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/lexandro/assetindex-mcp/asset"
	"github.com/lexandro/assetindex-mcp/cache"
	"github.com/lexandro/assetindex-mcp/duplicate"
)

// --- uses / used_by ---

func Test_UsesHandler_Deep(t *testing.T) {
	f := newFixture(t, true)
	h := &UsesHandler{Cache: f.querier, Logger: f.logger}

	result, _, err := h.Handle(context.Background(), nil, ClosureArgs{Assets: []string{"Assets/Main.unity"}, Deep: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("expected success, got error result: %s", resultText(t, result))
	}

	text := resultText(t, result)
	assertContains(t, text,
		"── Assets/Main.unity",
		"Uses 3 assets transitively",
		"Assets/Prefabs/Hero.prefab",
		"Assets/Materials/Hero.mat",
		"Assets/Textures/hero.png",
		"via Hero.mat",
	)
	if strings.Contains(text, "orphan.png") {
		t.Errorf("orphan texture must not be reachable, got:\n%s", text)
	}
}

func Test_UsesHandler_Direct(t *testing.T) {
	f := newFixture(t, true)
	h := &UsesHandler{Cache: f.querier, Logger: f.logger}

	result, _, _ := h.Handle(context.Background(), nil, ClosureArgs{Assets: []string{"Assets/Main.unity"}})
	text := resultText(t, result)

	assertContains(t, text, "Uses 1 assets directly", "Assets/Prefabs/Hero.prefab")
	if strings.Contains(text, "Hero.mat") {
		t.Errorf("direct query must stop at depth 1, got:\n%s", text)
	}
}

func Test_UsedByHandler_ByID(t *testing.T) {
	f := newFixture(t, true)
	h := &UsedByHandler{Cache: f.querier, Logger: f.logger}

	result, _, _ := h.Handle(context.Background(), nil, ClosureArgs{Assets: []string{strings.ToUpper(texGUID)}, Deep: true})
	text := resultText(t, result)

	assertContains(t, text,
		"── Assets/Textures/hero.png",
		"Assets/Materials/Hero.mat",
		"Assets/Prefabs/Hero.prefab",
		"Assets/Main.unity",
		"ProjectSettings/EditorBuildSettings.asset",
	)
}

func Test_UsedByHandler_NothingUses(t *testing.T) {
	f := newFixture(t, true)
	h := &UsedByHandler{Cache: f.querier, Logger: f.logger}

	result, _, _ := h.Handle(context.Background(), nil, ClosureArgs{Assets: []string{"Assets/Textures/orphan.png"}})
	assertContains(t, resultText(t, result), "Used by nothing.")
}

func Test_UsedByHandler_UnknownAsset(t *testing.T) {
	f := newFixture(t, true)
	h := &UsedByHandler{Cache: f.querier, Logger: f.logger}

	result, _, _ := h.Handle(context.Background(), nil, ClosureArgs{Assets: []string{"Assets/Nope.prefab"}})
	text := resultText(t, result)
	assertContains(t, text, "No matching assets.", "Not found: Assets/Nope.prefab")
}

func Test_UsesHandler_RequiresAssets(t *testing.T) {
	f := newFixture(t, true)
	h := &UsesHandler{Cache: f.querier, Logger: f.logger}

	result, _, err := h.Handle(context.Background(), nil, ClosureArgs{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected IsError=true without assets")
	}
}

func Test_UsesHandler_NotReady(t *testing.T) {
	f := newFixture(t, false)
	h := &UsesHandler{Cache: f.querier, Logger: f.logger}

	result, _, _ := h.Handle(context.Background(), nil, ClosureArgs{Assets: []string{"Assets/Main.unity"}})
	assertContains(t, resultText(t, result), "still being built")
}

func Test_UsesHandler_CancelledContext(t *testing.T) {
	f := newFixture(t, true)
	h := &UsesHandler{Cache: f.querier, Logger: f.logger}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result, _, _ := h.Handle(ctx, nil, ClosureArgs{Assets: []string{"Assets/Main.unity"}})
	if !result.IsError {
		t.Fatal("expected IsError=true for cancelled context")
	}
}

// --- unused / ignore ---

func Test_UnusedHandler_ListsUnreferenced(t *testing.T) {
	f := newFixture(t, true)
	h := &UnusedHandler{Cache: f.querier, Logger: f.logger}

	result, _, _ := h.Handle(context.Background(), nil, UnusedArgs{})
	text := resultText(t, result)

	assertContains(t, text, "Found 3 unused assets", "Assets/Copies/a.bin", "Assets/Copies/b.bin", "Assets/Textures/orphan.png")
	for _, used := range []string{"Main.unity", "Hero.prefab", "Hero.mat", "hero.png"} {
		if strings.Contains(text, used) {
			t.Errorf("%s is referenced and must not be listed, got:\n%s", used, text)
		}
	}
}

func Test_IgnoreHandler_ExcludesFromUnused(t *testing.T) {
	f := newFixture(t, true)
	ignoreHandler := &IgnoreHandler{Rules: f.matcher, Logger: f.logger}
	unusedHandler := &UnusedHandler{Cache: f.querier, Logger: f.logger}

	result, _, _ := ignoreHandler.Handle(context.Background(), nil, IgnoreArgs{Action: "add", Path: "Assets/Copies"})
	if result.IsError {
		t.Fatalf("expected add to succeed, got: %s", resultText(t, result))
	}

	result, _, _ = unusedHandler.Handle(context.Background(), nil, UnusedArgs{})
	text := resultText(t, result)
	assertContains(t, text, "Found 1 unused assets", "orphan.png")

	result, _, _ = ignoreHandler.Handle(context.Background(), nil, IgnoreArgs{Action: "list"})
	assertContains(t, resultText(t, result), "Assets/Copies")

	result, _, _ = ignoreHandler.Handle(context.Background(), nil, IgnoreArgs{Action: "remove", Path: "Assets/Copies"})
	assertContains(t, resultText(t, result), "no longer ignoring")

	result, _, _ = unusedHandler.Handle(context.Background(), nil, UnusedArgs{})
	assertContains(t, resultText(t, result), "Found 3 unused assets")
}

func Test_IgnoreHandler_RejectsMalformedRule(t *testing.T) {
	f := newFixture(t, true)
	h := &IgnoreHandler{Rules: f.matcher, Logger: f.logger}

	for _, path := range []string{"", "Assets", "."} {
		result, _, _ := h.Handle(context.Background(), nil, IgnoreArgs{Action: "add", Path: path})
		if !result.IsError {
			t.Errorf("expected IsError=true for %q", path)
		}
	}

	result, _, _ := h.Handle(context.Background(), nil, IgnoreArgs{Action: "rename"})
	if !result.IsError {
		t.Error("expected IsError=true for unknown action")
	}
	result, _, _ = h.Handle(context.Background(), nil, IgnoreArgs{Action: "remove", Path: "Assets/None"})
	assertContains(t, resultText(t, result), "no ignore rule")
}

// --- duplicates ---

func Test_DuplicatesHandler_FindsIdenticalFiles(t *testing.T) {
	f := newFixture(t, true)
	h := &DuplicatesHandler{Cache: f.querier, Logger: f.logger}

	result, _, err := h.Handle(context.Background(), nil, DuplicatesArgs{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	text := resultText(t, result)
	assertContains(t, text, "Found 1 duplicate sets", "1.5 KB reclaimable", "Assets/Copies/a.bin", "Assets/Copies/b.bin")
}

func Test_DuplicatesHandler_TimesOut(t *testing.T) {
	f := newFixture(t, true)
	// Never drive the workers, so the scan cannot finish.
	h := &DuplicatesHandler{Cache: &syncQuerier{cache: f.cache}, Logger: f.logger}

	result, _, _ := h.Handle(context.Background(), nil, DuplicatesArgs{TimeoutSeconds: 1})
	if !result.IsError {
		t.Fatalf("expected timeout error, got: %s", resultText(t, result))
	}
	assertContains(t, resultText(t, result), "did not finish")
}

// startedQuerier signals once each query has run.
type startedQuerier struct {
	inner Querier
	ran   chan struct{}
}

func (q *startedQuerier) Do(ctx context.Context, fn func(*cache.Cache)) error {
	err := q.inner.Do(ctx, fn)
	q.ran <- struct{}{}
	return err
}

func Test_DuplicatesHandler_ReplacedScanReturns(t *testing.T) {
	f := newFixture(t, true)
	q := &startedQuerier{inner: &syncQuerier{cache: f.cache}, ran: make(chan struct{}, 1)}
	h := &DuplicatesHandler{Cache: q, Logger: f.logger}

	type outcome struct {
		result  *mcp.CallToolResult
		elapsed time.Duration
	}
	out := make(chan outcome, 1)
	go func() {
		start := time.Now()
		result, _, _ := h.Handle(context.Background(), nil, DuplicatesArgs{TimeoutSeconds: 60})
		out <- outcome{result, time.Since(start)}
	}()

	<-q.ran
	if !f.cache.ScanDuplicates(duplicate.Callbacks{}) {
		t.Fatal("second scan did not start")
	}

	select {
	case o := <-out:
		if !o.result.IsError {
			t.Fatalf("expected an error result, got: %s", resultText(t, o.result))
		}
		assertContains(t, resultText(t, o.result), "stopped before it finished")
		if o.elapsed >= 60*time.Second {
			t.Errorf("handler waited for its timeout: %s", o.elapsed)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("handler still waiting on a replaced scan")
	}
}

// --- find ---

func Test_FindHandler_Glob(t *testing.T) {
	f := newFixture(t, true)
	h := &FindHandler{Cache: f.querier, Logger: f.logger}

	result, _, _ := h.Handle(context.Background(), nil, FindArgs{Pattern: "Assets/**/*.png"})
	text := resultText(t, result)
	assertContains(t, text, "Found assets (2)", "Assets/Textures/hero.png", "Assets/Textures/orphan.png")
}

func Test_FindHandler_QueryWithType(t *testing.T) {
	f := newFixture(t, true)
	h := &FindHandler{Cache: f.querier, Logger: f.logger}

	result, _, _ := h.Handle(context.Background(), nil, FindArgs{Query: "hero", Type: "material"})
	text := resultText(t, result)
	assertContains(t, text, "Found assets (1)", "Assets/Materials/Hero.mat")
}

func Test_FindHandler_ExpandFolders(t *testing.T) {
	f := newFixture(t, true)
	h := &FindHandler{Cache: f.querier, Logger: f.logger}

	result, _, _ := h.Handle(context.Background(), nil, FindArgs{Pattern: "Assets/Copies", ExpandFolders: true})
	text := resultText(t, result)
	assertContains(t, text, "Assets/Copies/  (folder)", "Assets/Copies/a.bin", "Assets/Copies/b.bin")
}

func Test_FindHandler_Validation(t *testing.T) {
	f := newFixture(t, true)
	h := &FindHandler{Cache: f.querier, Logger: f.logger}

	result, _, _ := h.Handle(context.Background(), nil, FindArgs{})
	if !result.IsError {
		t.Error("expected IsError=true without pattern or query")
	}
	result, _, _ = h.Handle(context.Background(), nil, FindArgs{Query: "hero", Type: "Sprites"})
	if !result.IsError {
		t.Error("expected IsError=true for unknown type")
	}
	result, _, _ = h.Handle(context.Background(), nil, FindArgs{Pattern: "Assets/[unclosed"})
	if !result.IsError {
		t.Error("expected IsError=true for invalid glob")
	}
}

// --- rescan ---

func Test_RescanHandler_PicksUpNewAssets(t *testing.T) {
	f := newFixture(t, true)
	reloaded := false
	h := &RescanHandler{Cache: f.querier, Logger: f.logger, Reload: func() { reloaded = true }}

	writeAsset(t, f.root, "Assets/Textures/new.png", "a0000000000000000000000000000008", "new")

	result, _, err := h.Handle(context.Background(), nil, RescanArgs{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertContains(t, resultText(t, result), "1 new")
	if reloaded {
		t.Error("Reload must only run for forced rescans")
	}

	rec, ok := f.cache.Get(asset.ID("a0000000000000000000000000000008"))
	if !ok || rec.IsMissing() {
		t.Fatal("expected new.png to be indexed")
	}
}

func Test_RescanHandler_ForceErasesDeleted(t *testing.T) {
	f := newFixture(t, true)
	reloaded := false
	h := &RescanHandler{Cache: f.querier, Logger: f.logger, Reload: func() { reloaded = true }}

	if err := os.Remove(filepath.Join(f.root, "Assets", "Textures", "orphan.png")); err != nil {
		t.Fatal(err)
	}
	result, _, _ := h.Handle(context.Background(), nil, RescanArgs{Force: true})
	assertContains(t, resultText(t, result), "1 erased")
	if !reloaded {
		t.Error("expected Reload before a forced rescan")
	}
}

// --- status ---

func Test_StatusHandler_Handle(t *testing.T) {
	f := newFixture(t, true)
	h := &StatusHandler{Cache: f.querier, StartTime: time.Now(), RootDir: f.root, Logger: f.logger}

	result, _, err := h.Handle(context.Background(), nil, StatusArgs{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatal("expected success, got error result")
	}
	assertContains(t, resultText(t, result),
		"assetindex-mcp Status",
		f.root,
		"State: ready",
		"References: 4",
		"Build manifest: ProjectSettings/EditorBuildSettings.asset",
		"Folder",
	)
}

func Test_StatusHandler_Building(t *testing.T) {
	f := newFixture(t, false)
	h := &StatusHandler{Cache: f.querier, StartTime: time.Now(), RootDir: f.root, Logger: f.logger}

	result, _, _ := h.Handle(context.Background(), nil, StatusArgs{})
	assertContains(t, resultText(t, result), "State: building", "Indexing: 0/")
}

// --- formatting ---

func Test_FormatDuration(t *testing.T) {
	tests := []struct {
		name     string
		duration time.Duration
		expected string
	}{
		{"Seconds_zero", 0, "0s"},
		{"Seconds_59", 59 * time.Second, "59s"},
		{"Minutes_5m30s", 5*time.Minute + 30*time.Second, "5m30s"},
		{"Hours_1h30m", 90 * time.Minute, "1h30m"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := formatDuration(tt.duration)
			if got != tt.expected {
				t.Errorf("formatDuration(%v) = %q, want %q", tt.duration, got, tt.expected)
			}
		})
	}
}

func Test_FormatFileSize(t *testing.T) {
	tests := map[int64]string{
		500:             "500 B",
		2048:            "2.0 KB",
		3 * 1024 * 1024: "3.0 MB",
	}
	for size, expected := range tests {
		if got := formatFileSize(size); got != expected {
			t.Errorf("formatFileSize(%d) = %q, want %q", size, got, expected)
		}
	}
}

func Test_FormatRecord_States(t *testing.T) {
	missing := asset.NewRecord("a0000000000000000000000000000009")
	missing.SetPath("Assets/gone.png")
	missing.State = asset.StateMissing
	assertContains(t, FormatRecord(missing), "Assets/gone.png  (missing, a0000000000000000000000000000009)")

	tex := asset.NewRecord(texGUID)
	tex.SetPath("Assets/hero.png")
	tex.Kind = asset.KindNonReadable
	tex.SizeBytes = 2048
	assertContains(t, FormatRecord(tex), "Assets/hero.png  (Texture, 2.0 KB)")
}

func Test_FormatDuplicateGroups_Truncates(t *testing.T) {
	rec := func(p string) *asset.Record {
		r := asset.NewRecord(asset.ID(strings.Repeat("b", 32)))
		r.SetPath(p)
		return r
	}
	groups := []duplicate.Group{
		{SizeBytes: 4096, Records: []*asset.Record{rec("Assets/a.png"), rec("Assets/b.png"), rec("Assets/c.png")}},
		{SizeBytes: 10, Records: []*asset.Record{rec("Assets/x.txt"), rec("Assets/y.txt")}},
	}

	got := FormatDuplicateGroups(groups, 1)
	assertContains(t, got, "Found 2 duplicate sets, 8.0 KB reclaimable", "3 copies of 4.0 KB", "1 more sets not shown")
	if strings.Contains(got, "x.txt") {
		t.Errorf("expected second set to be cut, got:\n%s", got)
	}

	if FormatDuplicateGroups(nil, 10) != "No duplicate assets found." {
		t.Error("expected empty message")
	}
}

func Test_FormatUnused_Empty(t *testing.T) {
	if got := FormatUnused(nil, 10); got != "No unused assets found." {
		t.Errorf("unexpected output %q", got)
	}
}
