// Package tracking delivers VAST/VMAP tracking beacons.
package tracking

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/sync/errgroup"

	"github.com/osa030/adbreak/internal/domain/adbreak"
)

// VAST macros expanded in beacon URLs.
const (
	MacroTimestamp       = "[TIMESTAMP]"
	MacroCacheBusting    = "[CACHEBUSTING]"
	MacroErrorCode       = "[ERRORCODE]"
	MacroContentPlayhead = "[CONTENTPLAYHEAD]"
)

// Defaults
const (
	DefaultTimeout     = 5 * time.Second
	DefaultConcurrency = 4
	DefaultUserAgent   = "adbreak/1.0"
)

// ErrBadStatus is returned for beacons answered with an HTTP error status.
var ErrBadStatus = errors.New("tracking: beacon rejected")

// Config represents beacon client configuration.
type Config struct {
	Timeout     time.Duration
	Concurrency int
	UserAgent   string
	// HTTP2 enables HTTP/2 on the transport.
	HTTP2 bool
}

// Macros carries the values substituted into beacon URLs.
type Macros struct {
	ErrorCode int
	// ContentPlayhead in seconds; negative means unknown.
	ContentPlayhead float64
}

// Client fires tracking beacons.
type Client struct {
	httpClient  *http.Client
	userAgent   string
	concurrency int

	now         func() time.Time
	cachebuster func() int

	wg sync.WaitGroup
}

// New creates a beacon client.
func New(cfg Config) (*Client, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: cfg.Concurrency,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	if cfg.HTTP2 {
		if err := http2.ConfigureTransport(transport); err != nil {
			return nil, errors.Wrap(err, "tracking: failed to enable http2")
		}
	}

	return &Client{
		httpClient:  &http.Client{Timeout: cfg.Timeout, Transport: transport},
		userAgent:   cfg.UserAgent,
		concurrency: cfg.Concurrency,
		now:         time.Now,
		cachebuster: func() int { return 10000000 + rand.Intn(90000000) },
	}, nil
}

// Fire sends every beacon and waits for all of them. The first failure is
// returned; the remaining beacons are still sent.
func (c *Client) Fire(ctx context.Context, urls []string, m Macros) error {
	if len(urls) == 0 {
		return nil
	}

	var g errgroup.Group
	g.SetLimit(c.concurrency)
	for _, raw := range urls {
		target := c.Expand(raw, m)
		g.Go(func() error {
			return c.send(ctx, target)
		})
	}
	return g.Wait()
}

// Go fires beacons in the background. Failures are logged only.
func (c *Client) Go(ctx context.Context, urls []string, m Macros) {
	if len(urls) == 0 {
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if err := c.Fire(ctx, urls, m); err != nil {
			zlog.Warn().Err(err).Msgf("tracking: beacon delivery failed: count=%d", len(urls))
		}
	}()
}

// Wait blocks until every beacon started with Go has completed.
func (c *Client) Wait() {
	c.wg.Wait()
}

// Expand substitutes the VAST macros in raw.
func (c *Client) Expand(raw string, m Macros) string {
	if !strings.Contains(raw, "[") {
		return raw
	}
	playhead := ""
	if m.ContentPlayhead >= 0 {
		playhead = url.QueryEscape(adbreak.FormatClock(m.ContentPlayhead))
	}
	errorCode := ""
	if m.ErrorCode > 0 {
		errorCode = strconv.Itoa(m.ErrorCode)
	}
	r := strings.NewReplacer(
		MacroTimestamp, url.QueryEscape(c.now().Format("2006-01-02T15:04:05.000Z07:00")),
		MacroCacheBusting, fmt.Sprintf("%08d", c.cachebuster()),
		MacroErrorCode, errorCode,
		MacroContentPlayhead, playhead,
	)
	return r.Replace(raw)
}

func (c *Client) send(ctx context.Context, target string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return errors.Wrapf(err, "tracking: failed to create request for %s", target)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrapf(err, "tracking: failed to send beacon %s", target)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusBadRequest {
		return errors.Wrapf(ErrBadStatus, "%s answered %d", target, resp.StatusCode)
	}
	zlog.Debug().Msgf("tracking: beacon sent: url=%s status=%d", target, resp.StatusCode)
	return nil
}
