package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/go-querystring/query"

	"github.com/supertypeai/sectors-corporate-actions/internal/logging"
	"github.com/supertypeai/sectors-corporate-actions/internal/metrics"
	"github.com/supertypeai/sectors-corporate-actions/internal/models"
	"github.com/supertypeai/sectors-corporate-actions/internal/ratelimit"
)

const maxBodyBytes = 8 << 20

// Config describes the external listing site.
type Config struct {
	BaseURL       string
	Path          string
	SortField     string
	UserAgent     string
	Views         map[models.ActionType]string
	MaxRetries    int
	BaseBackoff   time.Duration
	MaxBackoff    time.Duration
	MaxPages      int
	TableSelector string
	// RateLimitKey groups requests under one throttle budget.
	RateLimitKey string
}

// Client fetches raw listing pages. Each run builds its own client, so no session
// or throttle state leaks between runs.
type Client struct {
	cfg     Config
	base    *url.URL
	http    *http.Client
	limiter ratelimit.Limiter
	clock   Clock
	backoff BackoffPolicy
	logger  *logging.Logger
}

// Option customises a Client.
type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithLimiter(l ratelimit.Limiter) Option {
	return func(c *Client) { c.limiter = l }
}

func WithClock(clock Clock) Option {
	return func(c *Client) { c.clock = clock }
}

func WithBackoff(b BackoffPolicy) Option {
	return func(c *Client) { c.backoff = b }
}

func WithLogger(l *logging.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient validates cfg and applies options. Defaults: 30s HTTP timeout, no throttling,
// wall clock, exponential backoff from cfg.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid source base url %q", cfg.BaseURL)
	}
	for at := range cfg.Views {
		if !at.Valid() {
			return nil, fmt.Errorf("%w: %q", models.ErrUnknownActionType, at)
		}
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 1
	}
	if cfg.TableSelector == "" {
		cfg.TableSelector = "table"
	}
	if cfg.RateLimitKey == "" {
		cfg.RateLimitKey = base.Host
	}

	c := &Client{
		cfg:     cfg,
		base:    base,
		http:    &http.Client{Timeout: 30 * time.Second},
		limiter: ratelimit.NoOpLimiter{},
		clock:   RealClock(),
		backoff: ExponentialBackoff{Base: cfg.BaseBackoff, Max: cfg.MaxBackoff},
		logger:  logging.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Supports reports whether a view is configured for at.
func (c *Client) Supports(at models.ActionType) bool {
	_, ok := c.cfg.Views[at]
	return ok
}

// Fetch returns one page exactly as served and the token of the following page.
// An empty next token signals exhaustion. Transient failures are retried inside Fetch.
func (c *Client) Fetch(ctx context.Context, at models.ActionType, token string) (*models.RawPage, string, error) {
	m := NewMachine(c.cfg.MaxRetries, c.backoff)
	page, next := c.drive(ctx, m, at, token)
	if page == nil {
		return nil, "", m.Err()
	}
	return page, next, nil
}

// Pages returns an iterator over every page of at, starting from page 1.
func (c *Client) Pages(at models.ActionType) *Paginator {
	return &Paginator{
		client:  c,
		at:      at,
		machine: NewMachine(c.cfg.MaxRetries, c.backoff),
	}
}

// drive runs the machine until one page is served or the machine fails.
func (c *Client) drive(ctx context.Context, m *Machine, at models.ActionType, token string) (*models.RawPage, string) {
	for {
		switch m.State() {
		case StateFetching:
			page, next, err := c.fetchOnce(ctx, at, token)
			if err != nil {
				m.Failed(err)
				if m.State() == StateBackoff {
					c.logger.WarnContext(ctx, "retrying source fetch",
						logging.ActionType(string(at)),
						logging.Page(PageNumber(at, token)),
						logging.Attempt(m.Attempt()),
						logging.Duration(m.Delay()),
						logging.Error(err))
				}
				continue
			}
			return page, next
		case StateBackoff:
			if err := c.clock.Sleep(ctx, m.Delay()); err != nil {
				m.Abort(&PermanentFetchError{ActionType: at, Err: err})
				continue
			}
			m.Resume()
		default:
			return nil, ""
		}
	}
}

type listQuery struct {
	View      string `url:"view"`
	Path      string `url:"path,omitempty"`
	FieldSort string `url:"field_sort,omitempty"`
	SortBy    string `url:"sort_by,omitempty"`
	Page      int    `url:"page"`
}

func (c *Client) pageURL(view string, page int) (string, error) {
	q := listQuery{View: view, Path: c.cfg.Path, Page: page}
	if c.cfg.SortField != "" {
		q.FieldSort = c.cfg.SortField
		q.SortBy = "DESC"
	}
	vals, err := query.Values(q)
	if err != nil {
		return "", err
	}
	u := *c.base
	u.RawQuery = vals.Encode()
	return u.String(), nil
}

func (c *Client) fetchOnce(ctx context.Context, at models.ActionType, token string) (*models.RawPage, string, error) {
	pageNo, err := decodeToken(at, token)
	if err != nil {
		return nil, "", &PermanentFetchError{ActionType: at, Err: err}
	}
	view, ok := c.cfg.Views[at]
	if !ok {
		return nil, "", &PermanentFetchError{ActionType: at, Err: fmt.Errorf("no source view configured")}
	}
	pageURL, err := c.pageURL(view, pageNo)
	if err != nil {
		return nil, "", &PermanentFetchError{ActionType: at, Err: err}
	}

	if err := c.limiter.Wait(ctx, c.cfg.RateLimitKey); err != nil {
		if ctx.Err() != nil {
			return nil, "", &PermanentFetchError{ActionType: at, URL: pageURL, Err: err}
		}
		return nil, "", &TransientFetchError{ActionType: at, URL: pageURL, Err: fmt.Errorf("throttle: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, "", &PermanentFetchError{ActionType: at, URL: pageURL, Err: err}
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}

	start := c.clock.Now()
	resp, err := c.http.Do(req)
	metrics.FetchDuration.WithLabelValues(string(at)).Observe(c.clock.Now().Sub(start).Seconds())
	if err != nil {
		if ctx.Err() != nil {
			c.count(at, "cancelled")
			return nil, "", &PermanentFetchError{ActionType: at, URL: pageURL, Err: ctx.Err()}
		}
		c.count(at, "transient")
		return nil, "", &TransientFetchError{ActionType: at, URL: pageURL, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		c.count(at, "transient")
		return nil, "", &TransientFetchError{ActionType: at, URL: pageURL, StatusCode: resp.StatusCode, Err: err}
	}

	if err := c.classify(at, pageURL, resp, body); err != nil {
		return nil, "", err
	}
	c.count(at, "ok")

	page := &models.RawPage{
		ActionType:  at,
		Number:      pageNo,
		Token:       token,
		URL:         pageURL,
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
		FetchedAt:   c.clock.Now(),
	}

	next := ""
	if pageNo < c.cfg.MaxPages && c.hasNextPage(body, pageNo) {
		next = encodeToken(at, pageNo+1)
	}
	return page, next, nil
}

func (c *Client) classify(at models.ActionType, pageURL string, resp *http.Response, body []byte) error {
	status := resp.StatusCode
	switch {
	case status == http.StatusTooManyRequests:
		c.count(at, "rate_limited")
		return &RateLimitedError{
			RetryAfter: c.retryAfter(resp.Header.Get("Retry-After")),
			Err:        &TransientFetchError{ActionType: at, URL: pageURL, StatusCode: status, Err: errors.New("rate limited")},
		}
	case status >= 500:
		c.count(at, "transient")
		return &TransientFetchError{ActionType: at, URL: pageURL, StatusCode: status, Err: errors.New(http.StatusText(status))}
	case status < 200 || status >= 300:
		c.count(at, "permanent")
		return &PermanentFetchError{ActionType: at, URL: pageURL, StatusCode: status, Err: errors.New(http.StatusText(status))}
	}

	if len(bytes.TrimSpace(body)) == 0 {
		c.count(at, "permanent")
		return &PermanentFetchError{ActionType: at, URL: pageURL, StatusCode: status, Err: errors.New("empty response body")}
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		mediaType, _, err := mime.ParseMediaType(ct)
		if err != nil || !strings.Contains(mediaType, "html") {
			c.count(at, "permanent")
			return &PermanentFetchError{ActionType: at, URL: pageURL, StatusCode: status, Err: fmt.Errorf("unexpected content type %q", ct)}
		}
	}
	return nil
}

// retryAfter parses a Retry-After header given in seconds or as an HTTP date.
func (c *Client) retryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := t.Sub(c.clock.Now()); d > 0 {
			return d
		}
	}
	return 0
}

// hasNextPage looks for data rows in the listing table and a link to the following page.
func (c *Client) hasNextPage(body []byte, pageNo int) bool {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return false
	}
	table := doc.Find(c.cfg.TableSelector).First()
	if table.Length() == 0 || table.Find("tr").Length() < 2 {
		return false
	}
	want := strconv.Itoa(pageNo + 1)
	found := false
	doc.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		u, err := url.Parse(href)
		if err != nil {
			return true
		}
		if u.Query().Get("page") == want {
			found = true
			return false
		}
		return true
	})
	return found
}

func (c *Client) count(at models.ActionType, outcome string) {
	metrics.FetchAttempts.WithLabelValues(string(at), outcome).Inc()
}

// Paginator walks the pages of one action type in order, in the style of bufio.Scanner.
type Paginator struct {
	client  *Client
	at      models.ActionType
	machine *Machine
	token   string
	page    *models.RawPage
}

// Next fetches the following page. It returns false once the source is exhausted or a
// fetch failed; Err distinguishes the two.
func (p *Paginator) Next(ctx context.Context) bool {
	if p.machine.Done() {
		return false
	}
	page, next := p.client.drive(ctx, p.machine, p.at, p.token)
	if page == nil {
		p.page = nil
		return false
	}
	p.machine.Succeeded(next)
	p.page = page
	p.token = next
	return true
}

// Page is the page produced by the last successful Next.
func (p *Paginator) Page() *models.RawPage { return p.page }

// Stop ends pagination early, e.g. when older pages are past the cutoff.
func (p *Paginator) Stop() {
	if !p.machine.Done() {
		p.machine.Succeeded("")
	}
}

// State exposes the machine state.
func (p *Paginator) State() State { return p.machine.State() }

// Err returns the failure that stopped pagination, nil on exhaustion.
func (p *Paginator) Err() error { return p.machine.Err() }
