package linkexpand

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Expander resolves a link to its canonical form.
type Expander interface {
	Expand(ctx context.Context, rawURL string) (string, error)
}

// HTTPExpander follows redirects of links on known shortener hosts. Links
// on other hosts are returned unchanged without any request. Outbound
// requests share one token bucket.
type HTTPExpander struct {
	client  *http.Client
	hosts   map[string]bool
	limiter *rate.Limiter
}

// Options configures an HTTPExpander.
type Options struct {
	Hosts   []string
	RPS     float64
	Burst   int
	Timeout time.Duration
}

func NewHTTPExpander(opts Options) *HTTPExpander {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.RPS <= 0 {
		opts.RPS = 2
	}
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	hosts := make(map[string]bool, len(opts.Hosts))
	for _, h := range opts.Hosts {
		hosts[strings.ToLower(strings.TrimSpace(h))] = true
	}
	return &HTTPExpander{
		client:  &http.Client{Timeout: opts.Timeout},
		hosts:   hosts,
		limiter: rate.NewLimiter(rate.Limit(opts.RPS), opts.Burst),
	}
}

func (e *HTTPExpander) Expand(ctx context.Context, rawURL string) (string, error) {
	rawURL = strings.TrimSpace(rawURL)
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse %q: %w", rawURL, err)
	}
	if !e.hosts[strings.ToLower(u.Hostname())] {
		return rawURL, nil
	}
	if err := e.limiter.Wait(ctx); err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("expand %q: %w", rawURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("expand %q: status %d", rawURL, resp.StatusCode)
	}
	return resp.Request.URL.String(), nil
}
