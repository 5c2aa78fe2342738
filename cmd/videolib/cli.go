package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/therealutkarshpriyadarshi/videosync/internal/cache"
	"github.com/therealutkarshpriyadarshi/videosync/internal/config"
	"github.com/therealutkarshpriyadarshi/videosync/internal/database"
	"github.com/therealutkarshpriyadarshi/videosync/internal/feed"
	"github.com/therealutkarshpriyadarshi/videosync/internal/library"
	"github.com/therealutkarshpriyadarshi/videosync/internal/logging"
	"github.com/therealutkarshpriyadarshi/videosync/internal/resolver"
	"github.com/therealutkarshpriyadarshi/videosync/internal/selection"
)

// errUsage marks bad invocations; they exit with status 2
var errUsage = errors.New("usage error")

type command struct {
	name    string
	args    string
	summary string
	run     func(ctx context.Context, s *session, args []string) error
}

var commands = []command{
	{name: "list", args: "[--category NAME]", summary: "List videos, newest first", run: runList},
	{name: "add", args: "URL [--title T] [--category C]", summary: "Add a YouTube or direct video and select it", run: runAdd},
	{name: "select", args: "ID", summary: "Make a video the current video", run: runSelect},
	{name: "current", summary: "Show the current video", run: runCurrent},
	{name: "clear", summary: "Clear the current video", run: runClear},
	{name: "remove", args: "ID", summary: "Remove a video", run: runRemove},
	{name: "update", args: "ID [--title T] [--category C] [--description D]", summary: "Edit a video", run: runUpdate},
	{name: "search", args: "QUERY", summary: "Search titles", run: runSearch},
	{name: "categories", summary: "List categories", run: runCategories},
	{name: "stats", summary: "Count videos per category", run: runStats},
	{name: "watch", summary: "Print library changes until interrupted", run: runWatch},
}

func findCommand(name string) (command, bool) {
	for _, c := range commands {
		if c.name == name {
			return c, true
		}
	}
	return command{}, false
}

func printUsage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "Usage:")
	_, _ = fmt.Fprintln(w, "  videolib [--config PATH] [--user ID] [--json] [--verbose] COMMAND [ARGS]")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "Commands:")
	for _, c := range commands {
		_, _ = fmt.Fprintf(w, "  %-11s %s\n", c.name, c.summary)
	}
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "Environment:")
	_, _ = fmt.Fprintln(w, "  CONFIG_PATH     default for --config")
	_, _ = fmt.Fprintln(w, "  VIDEOSYNC_USER  default for --user")
}

// run executes one invocation and returns the process exit code
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("videolib", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { printUsage(stderr) }

	var (
		configPath string
		user       string
		asJSON     bool
		verbose    bool
	)
	fs.StringVar(&configPath, "config", os.Getenv("CONFIG_PATH"), "Path to the YAML config file")
	fs.StringVar(&user, "user", os.Getenv("VIDEOSYNC_USER"), "Owner id of the library")
	fs.BoolVar(&asJSON, "json", false, "Print JSON instead of tables")
	fs.BoolVar(&verbose, "verbose", false, "Log engine activity to stderr")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	rest := fs.Args()
	if len(rest) == 0 || rest[0] == "help" {
		printUsage(stdout)
		return 0
	}

	cmd, ok := findCommand(rest[0])
	if !ok {
		fmt.Fprintf(stderr, "Unknown command: %s\n\n", rest[0])
		printUsage(stderr)
		return 2
	}
	if strings.TrimSpace(user) == "" {
		fmt.Fprintln(stderr, "Error: --user or VIDEOSYNC_USER is required")
		return 2
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	level := "warn"
	if verbose {
		level = "debug"
	}
	logger := logging.New(zerolog.ConsoleWriter{Out: stderr, NoColor: true}, level).WithComponent("videolib")

	s, err := openSession(ctx, cfg, user, logger)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	s.out = stdout
	s.errOut = stderr
	s.json = asJSON
	defer s.Close()

	if err := cmd.run(ctx, s, rest[1:]); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprintf(stderr, "Usage: videolib %s %s\n", cmd.name, cmd.args)
			return 2
		}
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// session is one started engine plus the resources behind it
type session struct {
	engine  *library.Engine
	out     io.Writer
	errOut  io.Writer
	json    bool
	closers []func()
}

func (s *session) Close() {
	// Engine first so its pending writes still have a store
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func openSession(ctx context.Context, cfg *config.Config, user string, logger *logging.Logger) (_ *session, err error) {
	s := &session{}
	defer func() {
		if err != nil {
			s.Close()
		}
	}()

	store, err := database.Open(ctx, cfg.Database, cfg.SQLite)
	if err != nil {
		return nil, err
	}
	s.closers = append(s.closers, store.Close)

	var redisCache *cache.Cache
	if cfg.Redis.Enabled && (cfg.Feed.Driver == "redis" || cfg.Selection.Driver == "redis") {
		redisCache, err = cache.NewCache(cfg.Redis)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, func() { _ = redisCache.Close() })
	}

	var transport feed.Transport
	if cfg.Feed.Driver == "redis" {
		transport = feed.NewRedis(redisCache.Client(), logger)
	} else {
		hub := feed.NewMemory(logger)
		s.closers = append(s.closers, func() { _ = hub.Close() })
		transport = hub
	}

	var sel selection.Store
	switch cfg.Selection.Driver {
	case "redis":
		sel = cache.NewSelectionStore(redisCache)
	case "memory":
		sel = selection.NewMemoryStore()
	default:
		sel, err = selection.NewFileStore(cfg.Selection.Path)
		if err != nil {
			return nil, err
		}
	}

	res, err := resolver.New(ctx, cfg.Resolver, logger)
	if err != nil {
		return nil, err
	}

	engine, err := library.New(user,
		database.NewNotifyingStore(store, transport, logger),
		transport, res, sel,
		library.WithLogger(logger),
		library.WithNotifier(library.NewLogNotifier(logger)),
		library.WithNamespacedSelection(cfg.Selection.NamespaceByOwner),
	)
	if err != nil {
		return nil, err
	}
	if err := engine.Start(ctx); err != nil {
		return nil, err
	}
	s.closers = append(s.closers, func() { _ = engine.Close() })

	if msg := engine.State().Error; msg != "" {
		return nil, errors.New(msg)
	}

	s.engine = engine
	return s, nil
}
