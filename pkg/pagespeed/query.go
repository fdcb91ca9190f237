package pagespeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
)

// Input errors. These are the only errors a query returns; request failures
// are recorded in the Outcome instead.
var (
	ErrNoURLs   = errors.New("pagespeed: no urls given")
	ErrEmptyURL = errors.New("pagespeed: empty url")
)

// QueryRequest is one (URL, strategy) request within a batch.
type QueryRequest struct {
	URL      string
	Locale   string
	Strategy Strategy
}

// Pending is the handle returned by QueryAsync. Every request of the batch
// has already been started when the caller receives it.
type Pending struct {
	done   chan struct{}
	result *BatchResult
}

// Done is closed once every request of the batch has settled.
func (p *Pending) Done() <-chan struct{} { return p.done }

// Wait blocks until the batch has settled and returns its result.
func (p *Pending) Wait() *BatchResult {
	<-p.done
	return p.result
}

// Result returns the batch result without blocking. The boolean is false
// while requests are still in flight.
func (p *Pending) Result() (*BatchResult, bool) {
	select {
	case <-p.done:
		return p.result, true
	default:
		return nil, false
	}
}

// Query runs a batch and blocks until every request has settled.
// An empty locale means DefaultLocale and an empty strategy means DefaultStrategy.
func (c *Client) Query(ctx context.Context, urls []string, locale string, strategy Strategy) (*BatchResult, error) {
	p, err := c.QueryAsync(ctx, urls, locale, strategy)
	if err != nil {
		return nil, err
	}
	return p.Wait(), nil
}

// QueryURL is Query for a single URL.
func (c *Client) QueryURL(ctx context.Context, url, locale string, strategy Strategy) (*BatchResult, error) {
	return c.Query(ctx, []string{url}, locale, strategy)
}

// QueryAsync starts one request per (URL, strategy) pair and returns without
// waiting for any of them. Cancelling ctx makes every request still in
// flight settle as a failed Outcome.
func (c *Client) QueryAsync(ctx context.Context, urls []string, locale string, strategy Strategy) (*Pending, error) {
	urls, err := normalizeURLs(urls)
	if err != nil {
		return nil, err
	}
	if locale == "" {
		locale = DefaultLocale
	}
	strategies := strategy.Expand()

	reqs := make([]QueryRequest, 0, len(urls)*len(strategies))
	for _, u := range urls {
		for _, s := range strategies {
			reqs = append(reqs, QueryRequest{URL: u, Locale: locale, Strategy: s})
		}
	}

	// Each task owns one slot, so the fan-in needs no lock. Tasks never
	// return an error: the group settles all of them.
	outcomes := make([]Outcome, len(reqs))
	started := time.Now()
	var g errgroup.Group
	for i := range reqs {
		i := i
		g.Go(func() error {
			outcomes[i] = c.do(ctx, reqs[i])
			return nil
		})
	}

	p := &Pending{done: make(chan struct{})}
	go func() {
		_ = g.Wait()
		br := newBatchResult(urls, strategies)
		for i, r := range reqs {
			br.set(r.URL, r.Strategy, outcomes[i])
		}
		slog.Debug("pagespeed: batch settled",
			"urls", len(urls),
			"requests", len(reqs),
			"failed", br.Failed(),
			"elapsed", time.Since(started))
		p.result = br
		close(p.done)
	}()
	return p, nil
}

// do performs a single request and converts every failure into an Outcome.
// Non-2xx responses are not decoded.
func (c *Client) do(ctx context.Context, qr QueryRequest) Outcome {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.requestURL(qr), nil)
	if err != nil {
		return failed(qr, fmt.Errorf("build request: %w", err), 0)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return failed(qr, fmt.Errorf("http get: %w", err), 0)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain so the connection can go back to the pool.
		_, _ = io.Copy(io.Discard, resp.Body)
		return failed(qr, fmt.Errorf("unexpected status %d", resp.StatusCode), resp.StatusCode)
	}

	var data any
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return failed(qr, fmt.Errorf("decode JSON: %w", err), resp.StatusCode)
	}
	if data == nil {
		return failed(qr, errors.New("decode JSON: null document"), resp.StatusCode)
	}
	return Outcome{Success: true, Data: data, StatusCode: resp.StatusCode}
}

func failed(qr QueryRequest, err error, status int) Outcome {
	slog.Warn("pagespeed: query failed",
		"url", qr.URL, "strategy", qr.Strategy, "status", status, "err", err)
	return Outcome{StatusCode: status, Err: err}
}

// normalizeURLs rejects empty input and drops repeated URLs, keeping the
// first occurrence. A repeated URL would map to the same result key.
func normalizeURLs(urls []string) ([]string, error) {
	if len(urls) == 0 {
		return nil, ErrNoURLs
	}
	seen := make(map[string]struct{}, len(urls))
	out := make([]string, 0, len(urls))
	for i, u := range urls {
		if u == "" {
			return nil, fmt.Errorf("%w at index %d", ErrEmptyURL, i)
		}
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out, nil
}
