package pagespeed

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

// DefaultBaseURL is the versioned PageSpeed Insights API root.
const DefaultBaseURL = "https://www.googleapis.com/pagespeedonline/v5/"

// DefaultLocale is used when a query is issued with an empty locale.
const DefaultLocale = "en_US"

// runPath is the analysis method, resolved relative to the base URL.
const runPath = "runPagespeed"

// defaultKeyHeader carries the API key in "header" auth mode.
const defaultKeyHeader = "X-Goog-Api-Key"

// Auth modes understood by Options.Auth.Mode.
const (
	AuthNone   = "none"
	AuthAPIKey = "apikey"
	AuthHeader = "header"
)

// Options configures a Client.
type Options struct {
	// BaseURL is the API root. Empty means DefaultBaseURL.
	BaseURL string

	// Timeout bounds each individual request. Zero disables the timeout.
	Timeout time.Duration

	Auth Auth
	TLS  TLS
}

// Auth describes how the client presents an API key.
type Auth struct {
	// Mode is one of: none | apikey | header. Empty means none.
	Mode string

	// Key is a literal API key. KeyEnv, when set, takes precedence.
	Key string

	// KeyEnv is the name of the environment variable holding the key.
	KeyEnv string

	// Header overrides the header name in "header" mode.
	Header string
}

// resolveKey returns the key from the environment if KeyEnv is set,
// otherwise the literal Key.
func (a Auth) resolveKey() string {
	if a.KeyEnv != "" {
		return os.Getenv(a.KeyEnv)
	}
	return a.Key
}

// TLS holds dial options for the API endpoint.
type TLS struct {
	InsecureSkipVerify bool
	// CAFile is a PEM bundle used instead of the system roots.
	CAFile string
}

// Client issues batched PageSpeed queries. It owns one *http.Client that is
// shared by every request of every batch; a Client is safe for concurrent use.
type Client struct {
	endpoint *url.URL
	http     *http.Client
}

// New builds a Client. It fails only on misconfiguration: an unparseable
// base URL, an unknown auth mode, or unreadable TLS material.
func New(opts Options) (*Client, error) {
	raw := opts.BaseURL
	if raw == "" {
		raw = DefaultBaseURL
	}
	base, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("pagespeed: parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("pagespeed: base url %q must be absolute", raw)
	}
	if opts.Timeout < 0 {
		return nil, fmt.Errorf("pagespeed: timeout must not be negative")
	}
	// Resolve runPath against a directory-style base so ".../v5" and ".../v5/"
	// both end in ".../v5/runPagespeed".
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}

	endpoint := base.ResolveReference(&url.URL{Path: runPath})
	client, err := buildHTTPClient(opts, endpoint.Host)
	if err != nil {
		return nil, fmt.Errorf("pagespeed: build http client: %w", err)
	}
	return &Client{
		endpoint: endpoint,
		http:     client,
	}, nil
}

// Endpoint returns the absolute URL requests are sent to, without a query.
func (c *Client) Endpoint() string {
	return c.endpoint.String()
}

// requestURL builds the GET URL for one request.
func (c *Client) requestURL(req QueryRequest) string {
	u := *c.endpoint
	q := u.Query()
	q.Set("url", req.URL)
	q.Set("locale", req.Locale)
	q.Set("strategy", string(req.Strategy))
	u.RawQuery = q.Encode()
	return u.String()
}

// authRoundTripper injects the API key into requests for the API host.
// Redirect hops to any other host go out without it: the key is added below
// http.Client's redirect handling, so its header stripping never applies.
type authRoundTripper struct {
	base http.RoundTripper
	auth Auth
	host string
}

func (t *authRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.URL.Host != t.host {
		return t.base.RoundTrip(req)
	}
	key := t.auth.resolveKey()
	if key == "" {
		return t.base.RoundTrip(req)
	}
	switch t.auth.Mode {
	case AuthAPIKey:
		req = req.Clone(req.Context())
		q := req.URL.Query()
		q.Set("key", key)
		req.URL.RawQuery = q.Encode()
	case AuthHeader:
		req = req.Clone(req.Context())
		name := t.auth.Header
		if name == "" {
			name = defaultKeyHeader
		}
		req.Header.Set(name, key)
	}
	return t.base.RoundTrip(req)
}

// buildHTTPClient constructs the shared http.Client for the given options.
// Redirects are followed by the default CheckRedirect policy; apiHost is the
// only host that receives the API key.
func buildHTTPClient(opts Options, apiHost string) (*http.Client, error) {
	switch opts.Auth.Mode {
	case "", AuthNone, AuthAPIKey, AuthHeader:
	default:
		return nil, fmt.Errorf("unknown auth mode %q", opts.Auth.Mode)
	}

	tlsCfg := &tls.Config{
		InsecureSkipVerify: opts.TLS.InsecureSkipVerify, //nolint:gosec // user-configured
	}
	if opts.TLS.CAFile != "" {
		caPEM, err := os.ReadFile(opts.TLS.CAFile)
		if err != nil {
			return nil, fmt.Errorf("read ca file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caPEM) {
			return nil, fmt.Errorf("no valid certs found in ca file %q", opts.TLS.CAFile)
		}
		tlsCfg.RootCAs = pool
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = tlsCfg

	return &http.Client{
		Transport: &authRoundTripper{base: transport, auth: opts.Auth, host: apiHost},
		Timeout:   opts.Timeout,
	}, nil
}
