package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tripwire/fswatch/internal/config"
	"github.com/tripwire/fswatch/internal/console"
	"github.com/tripwire/fswatch/internal/health"
	"github.com/tripwire/fswatch/internal/watcher"
)

// options holds the raw flag values. Only flags the user actually set
// override the configuration file.
type options struct {
	configPath string
	recursive  bool
	verbose    bool
	all        bool
	events     []string
	logLevel   string
	format     string
	noColor    bool
	healthAddr string
	quiet      bool
}

// errNoDirectory is returned when neither the argument nor the
// configuration file names a directory.
var errNoDirectory = errors.New("a directory to watch is required")

// NewRootCmd creates the watch command.
func NewRootCmd() *cobra.Command {
	return newRootCmd(&options{})
}

func newRootCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch <directory>",
		Short: "Report filesystem events under a directory as they happen",
		Long: `watch places inotify watches on a directory (and, with --recursive, on every
directory beneath it) and prints one line per event until interrupted.

By default only structural changes are shown: creation, deletion and moves.
--verbose adds content and metadata changes, --all shows every event kind,
and --events selects kinds by name, either comma separated
(--events Created,IN_CLOSE_WRITE) or as further arguments after the directory
(watch /srv/data --events Created IN_CLOSE_WRITE).`,
		Args:          directoryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, args)
		},
	}

	f := cmd.Flags()
	f.BoolVarP(&opts.recursive, "recursive", "r", false, "watch every directory beneath the root")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "also report modifications and metadata changes")
	f.BoolVarP(&opts.all, "all", "a", false, "report every event kind")
	f.StringSliceVar(&opts.events, "events", nil, "report only these event kinds (names or IN_* tags, comma separated or trailing the directory)")
	f.StringVar(&opts.configPath, "config", "", "path to a YAML configuration file")
	f.StringVar(&opts.logLevel, "log-level", "", "diagnostic log level: debug, info, warn, error")
	f.StringVar(&opts.format, "format", "", "event output format: text or json")
	f.BoolVar(&opts.noColor, "no-color", false, "disable colored output")
	f.StringVar(&opts.healthAddr, "health-addr", "", "serve /healthz and /filter on this address")
	f.BoolVarP(&opts.quiet, "quiet", "q", false, "only log errors")
	cmd.MarkFlagsMutuallyExclusive("verbose", "all", "events")

	return cmd
}

// resolve merges the configuration file (if any) with the flags that were
// set. It reports whether the event selection came from the command line.
func resolve(cmd *cobra.Command, opts *options, args []string) (*config.Config, bool, error) {
	cfg := config.Default()
	if opts.configPath != "" {
		loaded, err := config.LoadConfig(opts.configPath)
		if err != nil {
			return nil, false, err
		}
		cfg = loaded
	}

	f := cmd.Flags()
	if len(args) > 0 {
		cfg.Directory = args[0]
	}
	if f.Changed("recursive") {
		cfg.Recursive = opts.recursive
	}

	pinned := true
	switch {
	case opts.verbose:
		cfg.Level, cfg.Events = "verbose", nil
	case opts.all:
		cfg.Level, cfg.Events = "all", nil
	case f.Changed("events"):
		// Kept non-nil even when empty so an empty selection is rejected
		// rather than read as "no selection given".
		events := make([]string, 0, len(opts.events)+len(args))
		events = append(events, opts.events...)
		if len(args) > 1 {
			events = append(events, args[1:]...)
		}
		cfg.Level, cfg.Events = "", events
	default:
		pinned = false
	}

	if f.Changed("log-level") {
		cfg.LogLevel = opts.logLevel
	}
	if f.Changed("format") {
		cfg.Format = opts.format
	}
	if opts.noColor {
		cfg.Color = "never"
	}
	if f.Changed("health-addr") {
		cfg.HealthAddr = opts.healthAddr
	}

	if err := cfg.Validate(); err != nil {
		return nil, false, err
	}
	if cfg.Directory == "" {
		return nil, false, errNoDirectory
	}
	return cfg, pinned, nil
}

func run(cmd *cobra.Command, opts *options, args []string) error {
	ctx := cmd.Context()

	cfg, pinned, err := resolve(cmd, opts, args)
	if err != nil {
		return err
	}
	set, err := cfg.Filter()
	if err != nil {
		return err
	}

	level := cfg.SlogLevel()
	if opts.quiet {
		level = slog.LevelError
	}
	logger := newLogger(level, cmd.ErrOrStderr())

	// Reject a missing root with the operator-facing message.
	if _, err := os.Stat(cfg.Directory); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &missingDirError{path: cfg.Directory}
		}
		return fmt.Errorf("%w: %s: %v", watcher.ErrPathNotReadable, cfg.Directory, err)
	}

	out := cmd.OutOrStdout()
	sink := console.New(out,
		console.WithJSON(cfg.Format == "json"),
		console.WithColor(colorFor(cfg.Color, out)))

	names := make([]string, 0, set.Len())
	for _, k := range set.Kinds() {
		names = append(names, k.RawName())
	}

	// The banner goes out only once every watch is in place, so a root that
	// exists but cannot be watched fails before anything is printed.
	m := watcher.New(cfg.Directory,
		watcher.WithRecursive(cfg.Recursive),
		watcher.WithFilter(set),
		watcher.WithSink(sink),
		watcher.WithLogger(logger),
		watcher.WithMoveCacheSize(cfg.MoveCacheSize),
		watcher.WithOnReady(func() error {
			return sink.Banner(console.Summary{
				Directory: cfg.Directory,
				Recursive: cfg.Recursive,
				Events:    names,
			})
		}))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return m.Run(gctx) })

	if cfg.HealthAddr != "" {
		srv := health.NewServer(cfg.HealthAddr, m, logger)
		g.Go(func() error { return srv.Run(gctx) })
	}

	if opts.configPath != "" && !pinned {
		r := config.NewReloader(opts.configPath, logger, func(c *config.Config) {
			next, err := c.Filter()
			if err != nil {
				logger.Warn("reloaded event selection rejected", slog.Any("error", err))
				return
			}
			m.SetFilter(next)
		})
		g.Go(func() error { return r.Run(gctx) })
	}

	if err := g.Wait(); err != nil {
		return err
	}

	if ctx.Err() != nil {
		logger.Info("interrupted; watches released")
		return sink.Stopped()
	}
	return nil
}

// directoryArgs accepts a single directory argument. With --events, further
// arguments are taken as event names.
func directoryArgs(cmd *cobra.Command, args []string) error {
	if cmd.Flags().Changed("events") {
		return nil
	}
	return cobra.MaximumNArgs(1)(cmd, args)
}

// colorFor resolves the color mode against the output writer.
func colorFor(mode string, w io.Writer) bool {
	switch mode {
	case "always":
		return true
	case "never":
		return false
	default:
		return console.ColorEnabled(w)
	}
}

// newLogger constructs a *slog.Logger that writes JSON-structured log records
// to w at the requested minimum level.
func newLogger(level slog.Level, w io.Writer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

// diagnostic renders err as the one-line message printed before exiting.
func diagnostic(err error) string {
	return "[!] ERROR: " + err.Error()
}

// missingDirError reports a root that does not exist, worded for the
// operator rather than for logs.
type missingDirError struct {
	path string
}

func (e *missingDirError) Error() string { return e.path + " does not exist" }

func (e *missingDirError) Unwrap() error { return watcher.ErrPathNotFound }
