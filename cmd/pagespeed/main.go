package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/duplexmedia/pagespeed/internal/config"
	"github.com/duplexmedia/pagespeed/pkg/pagespeed"
)

// Exit codes.
const (
	exitOK         = 0
	exitConfig     = 1
	exitAllFailed  = 2
	exitOutputFail = 3
	exitInterrupt  = 130
)

// urlList collects repeated -url flags.
type urlList []string

func (u *urlList) String() string { return strings.Join(*u, ",") }

func (u *urlList) Set(v string) error {
	*u = append(*u, v)
	return nil
}

// flagOverrides holds values given on the command line; only flags that
// were actually set override the config file.
type flagOverrides struct {
	urls     urlList
	strategy string
	locale   string
	format   string
	out      string
	baseURL  string
	timeout  time.Duration
	interval time.Duration
	set      map[string]bool
}

func (o *flagOverrides) apply(cfg *config.Config) {
	if len(o.urls) > 0 {
		cfg.Query.URLs = append([]string(nil), o.urls...)
	}
	if o.set["strategy"] {
		cfg.Query.Strategy = o.strategy
	}
	if o.set["locale"] {
		cfg.Query.Locale = o.locale
	}
	if o.set["format"] {
		cfg.Output.Format = o.format
	}
	if o.set["out"] {
		cfg.Output.Path = o.out
	}
	if o.set["base-url"] {
		cfg.Client.BaseURL = o.baseURL
	}
	if o.set["timeout"] {
		cfg.Client.Timeout = o.timeout
	}
	if o.set["interval"] {
		cfg.Query.Interval = o.interval
	}
}

// load builds the effective config: defaults, then the file (if any), then flags.
func (o *flagOverrides) load(path string) (*config.Config, error) {
	cfg := config.Defaults()
	if path != "" {
		var err error
		if cfg, err = config.LoadRaw(path); err != nil {
			return nil, err
		}
	}
	o.apply(cfg)
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func main() {
	os.Exit(realMain(os.Args[1:]))
}

func realMain(args []string) int {
	fs := flag.NewFlagSet("pagespeed", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to config file (optional)")
	verbose := fs.Bool("v", false, "enable debug logging")

	var ov flagOverrides
	fs.Var(&ov.urls, "url", "URL to analyse (repeatable, replaces query.urls)")
	fs.StringVar(&ov.strategy, "strategy", config.DefaultStrategy, "desktop | mobile | both")
	fs.StringVar(&ov.locale, "locale", config.DefaultLocale, "locale for the generated results")
	fs.StringVar(&ov.format, "format", config.DefaultFormat, "output format: json | yaml | text | prom")
	fs.StringVar(&ov.out, "out", "", "output file (default stdout)")
	fs.StringVar(&ov.baseURL, "base-url", pagespeed.DefaultBaseURL, "API base URL")
	fs.DurationVar(&ov.timeout, "timeout", config.DefaultTimeout, "per-request timeout, 0 disables it")
	fs.DurationVar(&ov.interval, "interval", 0, "re-run the batch at this interval, 0 runs once")
	if err := fs.Parse(args); err != nil {
		return exitConfig
	}
	ov.set = make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { ov.set[f.Name] = true })

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg, err := ov.load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		return exitConfig
	}
	if mode := cfg.Client.Auth.Mode; (mode == pagespeed.AuthAPIKey || mode == pagespeed.AuthHeader) && cfg.Client.Auth.Key() == "" {
		slog.Warn("api key environment variable is empty", "key_env", cfg.Client.Auth.KeyEnv)
	}
	slog.Info("config loaded",
		"urls", len(cfg.Query.URLs),
		"strategy", cfg.Query.Strategy,
		"format", cfg.Output.Format,
		"interval", cfg.Query.Interval,
	)

	r, err := newRunner(cfg, os.Stdout)
	if err != nil {
		slog.Error("failed to build client", "err", err)
		return exitConfig
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if cfg.Query.Interval == 0 {
		res, err := r.run(ctx)
		if err != nil {
			if ctx.Err() != nil {
				slog.Info("interrupted, no report written")
				return exitInterrupt
			}
			slog.Error("batch failed", "err", err)
			if res == nil {
				return exitConfig
			}
			return exitOutputFail
		}
		if res.Failed() == res.Len() {
			return exitAllFailed
		}
		return exitOK
	}

	if *configPath != "" {
		go func() {
			if err := config.WatchWith(ctx, *configPath, ov.load, func(updated *config.Config) {
				if err := r.reload(updated); err != nil {
					slog.Error("config reload rejected, keeping previous client", "err", err)
				}
			}); err != nil {
				slog.Error("config watcher stopped", "err", err)
			}
		}()
	}

	r.loop(ctx, cfg.Query.Interval)
	slog.Info("pagespeed shutting down")
	return exitOK
}
