package huginn

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	statusPath     = "/status"
	connectTimeout = 1 * time.Second
)

// ErrInterrupted is returned when the caller's context is cancelled while a
// fetch is in flight. It means the process is going away, not that the
// server is offline.
var ErrInterrupted = errors.New("huginn: fetch interrupted")

type Env struct {
	HuginnURL   string        `envconfig:"HUGINN_URL" required:"true"`
	HTTPTimeout time.Duration `envconfig:"HTTP_TIMEOUT" default:"5s"`
}

// Result is the outcome of one fetch: either a decoded Status or nothing.
type Result struct {
	status Status
	ok     bool
}

func Available(s Status) Result { return Result{status: s, ok: true} }
func Unavailable() Result       { return Result{} }

// Status returns the decoded document and whether one was obtained.
func (r Result) Status() (Status, bool) { return r.status, r.ok }

type Client struct {
	statusURL string
	hc        *http.Client
	log       zerolog.Logger
}

func NewClient(e Env) (*Client, error) {
	base := strings.TrimSpace(e.HuginnURL)
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("invalid HUGINN_URL %q: %w", base, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid HUGINN_URL %q: scheme must be http or https", base)
	}
	if e.HTTPTimeout <= 0 {
		return nil, fmt.Errorf("HTTP_TIMEOUT must be > 0, got %s", e.HTTPTimeout)
	}
	tr := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: connectTimeout}).DialContext,
		TLSHandshakeTimeout:   connectTimeout,
		ResponseHeaderTimeout: e.HTTPTimeout,
		MaxIdleConns:          4,
		IdleConnTimeout:       90 * time.Second,
	}
	return &Client{
		statusURL: strings.TrimRight(base, "/") + statusPath,
		hc:        &http.Client{Transport: tr, Timeout: e.HTTPTimeout},
		log:       log.With().Str("component", "huginn").Logger(),
	}, nil
}

// StatusURL is the full address polled by FetchStatus.
func (c *Client) StatusURL() string { return c.statusURL }

// FetchStatus performs exactly one GET against /status. Network, HTTP and
// decode failures are logged and reported as Unavailable with a nil error.
// The only error returned wraps ErrInterrupted.
func (c *Client) FetchStatus(ctx context.Context) (Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.statusURL, nil)
	if err != nil {
		c.log.Error().Err(err).Str("url", c.statusURL).Msg("Could not create status request")
		return Unavailable(), nil
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.hc.Do(req)
	if err != nil {
		return c.fail(ctx, err, start)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.log.Error().
			Int("status", resp.StatusCode).
			Str("body", string(b)).
			Str("url", c.statusURL).
			Msg("Could not get status")
		return Unavailable(), nil
	}

	var st Status
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return c.fail(ctx, err, start)
	}
	c.log.Debug().Dur("latency", time.Since(start)).Bool("online", st.Online).Msg("status fetched")
	return Available(st), nil
}

func (c *Client) fail(ctx context.Context, err error, start time.Time) (Result, error) {
	if errors.Is(ctx.Err(), context.Canceled) {
		return Result{}, fmt.Errorf("%w: %w", ErrInterrupted, ctx.Err())
	}
	c.log.Error().Err(err).Dur("latency", time.Since(start)).Str("url", c.statusURL).Msg("Could not get status")
	return Unavailable(), nil
}
