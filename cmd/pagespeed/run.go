package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/duplexmedia/pagespeed/internal/config"
	"github.com/duplexmedia/pagespeed/internal/report"
	"github.com/duplexmedia/pagespeed/pkg/pagespeed"
)

// runner owns the current config and client. Reload swaps both under the
// lock; a batch already in flight keeps the client it started with.
type runner struct {
	mu      sync.Mutex
	cfg     *config.Config
	client  *pagespeed.Client
	tracker *report.Tracker
	out     io.Writer
	now     func() time.Time // injectable for deterministic tests
}

func newRunner(cfg *config.Config, out io.Writer) (*runner, error) {
	client, err := pagespeed.New(cfg.Client.ClientOptions())
	if err != nil {
		return nil, err
	}
	return &runner{
		cfg:     cfg,
		client:  client,
		tracker: report.NewTracker(report.DefaultWindow),
		out:     out,
		now:     time.Now,
	}, nil
}

// reload rebuilds the client from cfg. On error the previous config stays.
func (r *runner) reload(cfg *config.Config) error {
	client, err := pagespeed.New(cfg.Client.ClientOptions())
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.cfg = cfg
	r.client = client
	r.mu.Unlock()

	if n := r.tracker.Forget(cfg.Query.URLs); n > 0 {
		slog.Info("dropped history for removed urls", "pairs", n)
	}
	return nil
}

func (r *runner) current() (*config.Config, *pagespeed.Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cfg, r.client
}

// interval returns the configured interval, or fallback if it is zero.
func (r *runner) interval(fallback time.Duration) time.Duration {
	cfg, _ := r.current()
	if cfg.Query.Interval > 0 {
		return cfg.Query.Interval
	}
	return fallback
}

// run executes one batch and writes its report. A batch interrupted by ctx
// is discarded: the tracker and the output are left untouched.
func (r *runner) run(ctx context.Context) (*pagespeed.BatchResult, error) {
	cfg, client := r.current()

	res, err := client.Query(ctx, cfg.Query.URLs, cfg.Query.Locale, pagespeed.Strategy(cfg.Query.Strategy))
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	// Requests cut short by shutdown settle as failures. Recording them
	// would overwrite the last good report with every pair down.
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("query interrupted: %w", err)
	}
	slog.Info("batch complete",
		"urls", len(res.URLs()),
		"requests", res.Len(),
		"failed", res.Failed(),
	)

	rep := report.New(res, r.tracker, r.now())
	if cfg.Output.Path == "" {
		if err := report.Render(r.out, cfg.Output.Format, rep); err != nil {
			return res, fmt.Errorf("render: %w", err)
		}
		return res, nil
	}
	if err := report.WriteFile(cfg.Output.Path, cfg.Output.Format, rep); err != nil {
		return res, fmt.Errorf("write %s: %w", cfg.Output.Path, err)
	}
	slog.Debug("report written", "path", cfg.Output.Path, "format", cfg.Output.Format)
	return res, nil
}

// loop runs a batch every interval until ctx is cancelled. Batch errors are
// logged; the loop keeps going.
func (r *runner) loop(ctx context.Context, every time.Duration) {
	for {
		if _, err := r.run(ctx); err != nil && ctx.Err() == nil {
			slog.Error("batch failed", "err", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(r.interval(every)):
		}
	}
}
