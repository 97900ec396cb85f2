package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"golang.org/x/time/rate"

	"github.com/lexandro/assetindex-mcp/asset"
	"github.com/lexandro/assetindex-mcp/cache"
	"github.com/lexandro/assetindex-mcp/config"
	"github.com/lexandro/assetindex-mcp/duplicate"
	"github.com/lexandro/assetindex-mcp/ignore"
	"github.com/lexandro/assetindex-mcp/sched"
	"github.com/lexandro/assetindex-mcp/snapshot"
	"github.com/lexandro/assetindex-mcp/storage"
	"github.com/lexandro/assetindex-mcp/tools"
	"github.com/lexandro/assetindex-mcp/watcher"
)

// project bundles everything built from one configuration.
type project struct {
	cfg     *config.Config
	matcher *ignore.Matcher
	fsys    *storage.FS
	cache   *cache.Cache
	logger  *slog.Logger
}

// openProject wires the ignore rules, the filesystem source and the cache.
func openProject(cfg *config.Config, logger *slog.Logger) (*project, error) {
	matcher := ignore.NewMatcher(ignore.MatcherOptions{
		RootDir:        cfg.Root,
		CustomPatterns: cfg.Ignore.Patterns,
		Rules:          cfg.Ignore.Rules,
		Roots:          cfg.Project.Roots,
	})
	fsys := storage.New(storage.Options{
		RootDir: cfg.Root,
		Roots:   cfg.Project.Roots,
		Ignore:  matcher,
		Logger:  logger,
	})

	dupOpts := duplicate.Options{ChunkSize: cfg.Scan.ChunkSize, Logger: logger}
	if cfg.Scan.IOLimit > 0 {
		burst := max(int(cfg.Scan.IOLimit), cfg.Scan.ChunkSize)
		dupOpts.Limiter = rate.NewLimiter(rate.Limit(cfg.Scan.IOLimit), burst)
	}

	c, err := cache.New(cache.Options{
		Source:       fsys,
		Ignore:       matcher,
		ManifestPath: cfg.Project.Manifest,
		Unused:       cfg.UnusedPolicy(),
		ExcludeTypes: cfg.Scan.ExcludeTypes,
		Duplicate:    dupOpts,
		Logger:       logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating cache: %w", err)
	}
	return &project{cfg: cfg, matcher: matcher, fsys: fsys, cache: c, logger: logger}, nil
}

func (p *project) close() {
	if err := p.cache.Close(); err != nil {
		p.logger.Warn("closing cache", "error", err)
	}
}

// newScheduler registers the cache workers with a scheduler configured from
// the project settings. safe may be nil.
func (p *project) newScheduler(safe func() bool) *sched.Scheduler {
	s := sched.New(sched.Options{
		Priority: p.cfg.Scan.Priority,
		Baseline: p.cfg.Baseline(),
		Safe:     safe,
		Logger:   p.logger,
	})
	for _, w := range p.cache.Workers() {
		s.Register(w)
	}
	return s
}

// loadSnapshot restores the cache from disk. A missing or corrupt snapshot
// is not an error: the cache is simply built from scratch. A snapshot of
// another format version is, so the user decides to rebuild.
func (p *project) loadSnapshot() error {
	if !p.cfg.Snapshot.Enabled {
		return nil
	}
	path := p.cfg.SnapshotPath()
	start := time.Now()
	f, err := snapshot.Load(path)
	switch {
	case err == nil:
	case errors.Is(err, os.ErrNotExist):
		p.logger.Info("no snapshot, building from scratch", "path", path)
		return nil
	case errors.Is(err, asset.ErrStaleCacheVersion):
		return fmt.Errorf("%w; run again with --rebuild to discard it", err)
	default:
		p.logger.Warn("ignoring unreadable snapshot", "path", path, "error", err)
		return nil
	}
	if err := p.cache.Import(f); err != nil {
		return fmt.Errorf("importing snapshot: %w", err)
	}
	p.logger.Info("snapshot loaded", "path", path, "records", len(f.Records), "duration", time.Since(start))
	return nil
}

// saveSnapshot writes the cache to disk. It must run on the goroutine that
// owns the cache.
func (p *project) saveSnapshot() error {
	if !p.cfg.Snapshot.Enabled {
		return nil
	}
	path := p.cfg.SnapshotPath()
	f := p.cache.Export(p.cfg.Root)
	if err := snapshot.Save(path, f); err != nil {
		return fmt.Errorf("saving snapshot: %w", err)
	}
	p.logger.Info("snapshot saved", "path", path, "records", len(f.Records))
	return nil
}

// runToCompletion drives the scheduler until every worker is idle. Used by
// the batch commands, which have no frame loop.
func (p *project) runToCompletion(ctx context.Context) error {
	s := p.newScheduler(nil)
	for s.Pending() {
		if err := ctx.Err(); err != nil {
			s.Stop()
			return err
		}
		s.Tick()
	}
	return nil
}

// handleWatcherEvents maps debounced file system events onto cache
// invalidations. Sidecar events count as events of the item they describe.
func handleWatcherEvents(
	ctx context.Context,
	events <-chan []watcher.DebouncedEvent,
	q tools.Querier,
	p *project,
) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case batch, ok := <-events:
			if !ok {
				return nil
			}
			if err := applyEvents(ctx, batch, q, p); err != nil && ctx.Err() == nil {
				p.logger.Warn("applying file events", "error", err)
			}
		}
	}
}

func applyEvents(ctx context.Context, batch []watcher.DebouncedEvent, q tools.Querier, p *project) error {
	var paths []string
	seen := make(map[string]bool)
	enumerate := false
	for _, event := range batch {
		if p.matcher.IsIgnoreFile(event.Path) {
			p.matcher.Reload()
			p.logger.Info("reloaded ignore rules", "trigger", ignore.IgnoreFileName)
			continue
		}
		rel, ok := p.fsys.Rel(event.Path)
		if !ok || seen[rel] {
			continue
		}
		seen[rel] = true
		paths = append(paths, rel)

		// A directory moved or copied in brings content that produced no
		// events of its own.
		if event.Op == watcher.OpCreate {
			if info, err := os.Stat(event.Path); err == nil && info.IsDir() {
				enumerate = true
			}
		}
	}
	if len(paths) == 0 {
		return nil
	}

	var refreshErr error
	err := q.Do(ctx, func(c *cache.Cache) {
		if enumerate {
			_, refreshErr = c.Refresh(false)
			return
		}
		touched := 0
		for _, rel := range paths {
			touched += c.MarkPathDirty(rel)
		}
		p.logger.Debug("file events applied", "paths", len(paths), "records", touched)
	})
	if err != nil {
		return err
	}
	return refreshErr
}
