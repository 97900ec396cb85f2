package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/lexandro/assetindex-mcp/config"
	"github.com/lexandro/assetindex-mcp/duplicate"
	"github.com/lexandro/assetindex-mcp/register"
	"github.com/lexandro/assetindex-mcp/sched"
	"github.com/lexandro/assetindex-mcp/server"
	"github.com/lexandro/assetindex-mcp/tools"
	"github.com/lexandro/assetindex-mcp/watcher"
)

func main() {
	if err := newApp(os.Stdout).Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newApp(stdout io.Writer) *cli.App {
	return &cli.App{
		Name:      "assetindex-mcp",
		Usage:     "Incremental asset reference graph for game projects, served over MCP",
		Version:   server.Version,
		Writer:    stdout,
		ErrWriter: os.Stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "root",
				Aliases: []string{"r"},
				Usage:   "Project root directory (default: current working directory)",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Config file path (default: <root>/" + config.FileName + ")",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level: debug|info|warn|error",
				Value: "info",
			},
			&cli.StringFlag{
				Name:  "log-file",
				Usage: "Log file path (default: <root>/assetindex-mcp.log)",
			},
			&cli.IntFlag{
				Name:  "priority",
				Usage: fmt.Sprintf("Indexing priority %d-%d; each step adds one baseline of work per frame (overrides config)", sched.MinPriority, sched.MaxPriority),
			},
			&cli.BoolFlag{
				Name:  "rebuild",
				Usage: "Discard the snapshot and re-read every asset",
			},
			&cli.BoolFlag{
				Name:  "no-snapshot",
				Usage: "Neither load nor save the snapshot",
			},
		},
		Action: serveAction,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the MCP server on stdio (default)",
				Action: serveAction,
			},
			{
				Name:   "scan",
				Usage:  "Bring the cache up to date, save the snapshot and exit",
				Action: scanAction,
			},
			{
				Name:  "unused",
				Usage: "Print assets nothing references",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "max-results", Usage: "Maximum assets to print (0 = all)"},
				},
				Action: unusedAction,
			},
			{
				Name:  "duplicates",
				Usage: "Print sets of byte-identical assets",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "max-results", Usage: "Maximum sets to print (0 = all)"},
				},
				Action: duplicatesAction,
			},
			{
				Name:      "register",
				Usage:     "Add this server to an MCP client config (project: <dir>/.mcp.json, user: ~/.claude.json)",
				ArgsUsage: "project [directory] | user",
				Flags: []cli.Flag{
					&cli.StringSliceFlag{Name: "arg", Usage: "Argument forwarded to the server on launch (repeatable)"},
					&cli.StringFlag{Name: "name", Usage: "Server name (default: derived from the binary name)"},
				},
				Action: registerAction,
			},
		},
	}
}

func registerAction(c *cli.Context) error {
	if c.NArg() == 0 {
		return cli.Exit("missing scope: project or user", 2)
	}
	scope, err := register.ParseScope(c.Args().First())
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}
	path, err := register.Register(register.Options{
		Scope:      scope,
		Directory:  c.Args().Get(1),
		ServerName: c.String("name"),
		ServerArgs: c.StringSlice("arg"),
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "Registered in %s\n", path)
	return nil
}

// loadConfig resolves the root, reads the project config and applies CLI
// flag overrides.
func loadConfig(c *cli.Context) (*config.Config, error) {
	rootDir := c.String("root")
	if rootDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("getting working directory: %w", err)
		}
		rootDir = wd
	}
	rootDir, err := filepath.Abs(rootDir)
	if err != nil {
		return nil, fmt.Errorf("resolving root %q: %w", rootDir, err)
	}

	configPath := c.String("config")
	if configPath == "" {
		configPath = filepath.Join(rootDir, config.FileName)
	}
	cfg, err := config.LoadFile(configPath, rootDir)
	if err != nil {
		return nil, err
	}

	if c.IsSet("priority") {
		cfg.Scan.Priority = c.Int("priority")
	}
	if c.Bool("no-snapshot") {
		cfg.Snapshot.Enabled = false
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// startProject loads settings, opens the project and restores the snapshot.
func startProject(c *cli.Context) (*project, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, cli.Exit(err.Error(), 2)
	}

	logFile := c.String("log-file")
	if logFile == "" {
		logFile = filepath.Join(cfg.Root, "assetindex-mcp.log")
	}
	// Setup logger (always to file or stderr, never to stdout - stdout is for MCP stdio)
	logger := setupLogger(c.String("log-level"), logFile)

	logger.Info("starting assetindex-mcp",
		"root", cfg.Root,
		"command", c.Command.Name,
		"roots", cfg.Project.Roots,
		"priority", cfg.Scan.Priority,
		"rebuild", c.Bool("rebuild"),
	)

	p, err := openProject(cfg, logger)
	if err != nil {
		return nil, err
	}
	if !c.Bool("rebuild") {
		if err := p.loadSnapshot(); err != nil {
			p.close()
			return nil, cli.Exit(err.Error(), 3)
		}
	}
	return p, nil
}

// refreshAll runs a full enumeration and processes everything it queued.
func refreshAll(ctx context.Context, c *cli.Context, p *project) error {
	start := time.Now()
	result, err := p.cache.Refresh(c.Bool("rebuild"))
	if err != nil {
		return err
	}
	if err := p.runToCompletion(ctx); err != nil {
		return err
	}
	stats := p.cache.Stats()
	p.logger.Info("cache up to date",
		"seen", result.Seen,
		"added", result.Added,
		"changed", result.Changed,
		"missing", result.Missing,
		"edges", stats.Edges,
		"duration", time.Since(start),
	)
	return nil
}

func scanAction(c *cli.Context) error {
	p, err := startProject(c)
	if err != nil {
		return err
	}
	defer p.close()

	if err := refreshAll(c.Context, c, p); err != nil {
		return err
	}
	if err := p.saveSnapshot(); err != nil {
		return err
	}
	stats := p.cache.Stats()
	fmt.Fprintf(c.App.Writer, "%d assets (%d missing), %d references\n", stats.Records, stats.Missing, stats.Edges)
	return nil
}

func unusedAction(c *cli.Context) error {
	p, err := startProject(c)
	if err != nil {
		return err
	}
	defer p.close()

	if err := refreshAll(c.Context, c, p); err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, tools.FormatUnused(p.cache.ScanUnused(), c.Int("max-results")))
	return p.saveSnapshot()
}

func duplicatesAction(c *cli.Context) error {
	p, err := startProject(c)
	if err != nil {
		return err
	}
	defer p.close()

	if err := refreshAll(c.Context, c, p); err != nil {
		return err
	}
	var groups []duplicate.Group
	p.cache.ScanDuplicates(duplicate.Callbacks{
		OnComplete: func(g []duplicate.Group) { groups = g },
	})
	if err := p.runToCompletion(c.Context); err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, tools.FormatDuplicateGroups(groups, c.Int("max-results")))
	return p.saveSnapshot()
}

func serveAction(c *cli.Context) error {
	p, err := startProject(c)
	if err != nil {
		return err
	}
	defer p.close()
	logger := p.logger
	startTime := time.Now()

	result, err := p.cache.Refresh(c.Bool("rebuild"))
	if err != nil {
		return err
	}
	logger.Info("initial enumeration complete",
		"seen", result.Seen,
		"queued", result.Added+result.Changed,
		"ready", p.cache.Ready(),
	)

	// Start file watcher
	fileWatcher, err := watcher.NewWatcher(p.cfg.Root, p.matcher, time.Duration(p.cfg.Sync.DebounceMs)*time.Millisecond, logger)
	if err != nil {
		logger.Warn("failed to start file watcher, continuing without live updates", "error", err)
		fileWatcher = nil
	}
	safe := func() bool { return fileWatcher == nil || !fileWatcher.Settling() }
	host := NewHost(p.cache, p.newScheduler(safe), p.cfg.Frame(), logger)

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return host.Run(gctx) })
	if fileWatcher != nil {
		g.Go(func() error { return fileWatcher.Run(gctx) })
		g.Go(func() error { return handleWatcherEvents(gctx, fileWatcher.Events(), host, p) })
	}
	if p.cfg.Sync.IntervalSeconds > 0 {
		interval := time.Duration(p.cfg.Sync.IntervalSeconds) * time.Second
		g.Go(func() error { return runPeriodicSync(gctx, interval, host, logger) })
	}

	mcpServer := server.Setup(server.Handlers{
		Status:     &tools.StatusHandler{Cache: host, StartTime: startTime, RootDir: p.cfg.Root, Logger: logger},
		Uses:       &tools.UsesHandler{Cache: host, Logger: logger},
		UsedBy:     &tools.UsedByHandler{Cache: host, Logger: logger},
		Unused:     &tools.UnusedHandler{Cache: host, Logger: logger},
		Duplicates: &tools.DuplicatesHandler{Cache: host, Logger: logger},
		Find:       &tools.FindHandler{Cache: host, Logger: logger},
		Rescan:     &tools.RescanHandler{Cache: host, Logger: logger, Reload: p.matcher.Reload},
		Ignore:     &tools.IgnoreHandler{Rules: p.matcher, Logger: logger},
	})

	// Setup and run MCP server on stdio. The session ending shuts everything down.
	g.Go(func() error {
		defer stop()
		logger.Info("MCP server starting on stdio")
		if err := mcpServer.Run(gctx, &mcp.StdioTransport{}); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("MCP server: %w", err)
		}
		return nil
	})

	runErr := g.Wait()
	if fileWatcher != nil {
		if err := fileWatcher.Close(); err != nil {
			logger.Warn("closing file watcher", "error", err)
		}
	}
	// Every goroutine has returned, so the cache is safe to read here.
	if err := p.saveSnapshot(); err != nil {
		logger.Error("snapshot not saved", "error", err)
	}
	if runErr != nil {
		logger.Error("server stopped", "error", runErr)
	}
	return runErr
}

// setupLogger creates an slog.Logger writing to stderr or a file.
func setupLogger(level string, logFile string) *slog.Logger {
	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	var writer *os.File
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: cannot open log file %s: %v, falling back to stderr\n", logFile, err)
			writer = os.Stderr
		} else {
			writer = f
		}
	} else {
		writer = os.Stderr
	}

	handler := slog.NewTextHandler(writer, &slog.HandlerOptions{Level: logLevel})
	return slog.New(handler)
}
