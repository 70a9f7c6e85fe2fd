package marketdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	DefaultBaseURL = "https://api.twelvedata.com"

	defaultTimeout    = 10 * time.Second
	defaultMaxRetries = 3
	defaultBackoff    = time.Second

	quoteTTL  = 60 * time.Second
	seriesTTL = time.Hour
	searchTTL = time.Hour

	minOutputSize = 30
	maxOutputSize = 1825
)

// Options configures a Client. Zero values select the defaults.
type Options struct {
	BaseURL    string
	HTTPClient *http.Client
	Limiter    *RateLimiter
	Cache      Cache
	MaxRetries int           // retries after the first attempt
	Backoff    time.Duration // first retry delay, doubled on each retry
	Now        func() time.Time
}

// Client talks to the TwelveData REST API.
type Client struct {
	apiKey     string
	baseURL    string
	http       *http.Client
	limiter    *RateLimiter
	cache      Cache
	maxRetries int
	backoff    time.Duration
	now        func() time.Time
	log        zerolog.Logger
}

func NewClient(apiKey string, log zerolog.Logger, opts Options) *Client {
	c := &Client{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		http:       opts.HTTPClient,
		limiter:    opts.Limiter,
		cache:      opts.Cache,
		maxRetries: opts.MaxRetries,
		backoff:    opts.Backoff,
		now:        opts.Now,
		log:        log.With().Str("component", "marketdata").Logger(),
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: defaultTimeout}
	}
	if c.limiter == nil {
		c.limiter = NewRateLimiter(DefaultRequestsPerMinute, time.Minute)
	}
	if c.maxRetries <= 0 {
		c.maxRetries = defaultMaxRetries
	}
	if c.backoff <= 0 {
		c.backoff = defaultBackoff
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

// RemainingRequests reports the budget left in the current rate-limit window.
func (c *Client) RemainingRequests() int {
	return c.limiter.Remaining()
}

// Search looks up symbols by ticker or company name.
func (c *Client) Search(ctx context.Context, query string) ([]SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []SearchResult{}, nil
	}

	var raw rawSearch
	if err := c.get(ctx, "symbol_search", url.Values{"symbol": {query}}, searchTTL, &raw); err != nil {
		return nil, err
	}
	if raw.Data == nil {
		return []SearchResult{}, nil
	}
	return raw.Data, nil
}

// Quote returns the live quote for symbol, or nil when the provider does not
// know the symbol.
func (c *Client) Quote(ctx context.Context, symbol string) (*Quote, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if !ValidSymbol(symbol) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSymbol, symbol)
	}

	var raw rawQuote
	if err := c.get(ctx, "quote", url.Values{"symbol": {symbol}}, quoteTTL, &raw); err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	if raw.Symbol == "" {
		return nil, nil
	}

	q := raw.toQuote(symbol, c.now())
	return &q, nil
}

// BatchQuotes fetches every symbol with its own request. Failures are
// aggregated: an error is returned only when no symbol resolved.
func (c *Client) BatchQuotes(ctx context.Context, symbols []string) (BatchResult, error) {
	res := BatchResult{Quotes: make(map[string]Quote, len(symbols))}
	if len(symbols) == 0 {
		return res, nil
	}

	var failed int
	var lastErr error
	for _, s := range symbols {
		symbol := strings.ToUpper(strings.TrimSpace(s))
		q, err := c.Quote(ctx, symbol)
		switch {
		case err != nil:
			failed++
			lastErr = err
			c.log.Warn().Err(err).Str("symbol", symbol).Msg("batch quote failed")

			var rl *RateLimitError
			if errors.As(err, &rl) {
				if len(res.Quotes) == 0 {
					return res, err
				}
				res.Warning = fmt.Sprintf("Market data %s; %d of %d quotes loaded", rl.Error(), len(res.Quotes), len(symbols))
				return res, nil
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return res, ctxErr
			}
		case q == nil:
			failed++
			lastErr = fmt.Errorf("%w: %s", ErrSymbolNotFound, symbol)
		case !q.Price.IsPositive():
			failed++
			lastErr = fmt.Errorf("no valid price returned for %s", symbol)
			c.log.Warn().Str("symbol", symbol).Msg("quote has no valid price")
		default:
			res.Quotes[symbol] = *q
		}
	}

	if len(res.Quotes) == 0 {
		return res, fmt.Errorf("all %d quote requests failed: %w", failed, lastErr)
	}
	if failed > 0 {
		res.Warning = fmt.Sprintf("Partial failure: %d of %d symbols failed", failed, len(symbols))
	}
	return res, nil
}

// HistoricalPrice resolves the closest trading day on or before date. When
// the fetched window has no such day it falls back to the oldest day
// available. It returns nil when the provider has no series for symbol.
func (c *Client) HistoricalPrice(ctx context.Context, symbol string, date time.Time) (*HistoricalPrice, error) {
	date = Day(date)
	days := daysBetween(date, c.now())

	bars, err := c.dailySeries(ctx, symbol, outputSize(days+10))
	if err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return nil, nil
	}

	var best, oldest *Bar
	for i := range bars {
		b := &bars[i]
		if oldest == nil || b.Date.Before(oldest.Date) {
			oldest = b
		}
		if b.Date.After(date) {
			continue
		}
		if best == nil || b.Date.After(best.Date) {
			best = b
		}
	}
	if best == nil {
		best = oldest
	}

	return &HistoricalPrice{Bar: *best, Requested: date}, nil
}

// TimeSeriesRange returns the daily bars within [start, end], oldest first.
func (c *Client) TimeSeriesRange(ctx context.Context, symbol string, start, end time.Time) ([]Bar, error) {
	start, end = Day(start), Day(end)
	if end.Before(start) {
		return []Bar{}, nil
	}

	bars, err := c.dailySeries(ctx, symbol, outputSize(daysBetween(start, end)+5))
	if err != nil {
		return nil, err
	}

	out := make([]Bar, 0, len(bars))
	for _, b := range bars {
		if b.Date.Before(start) || b.Date.After(end) {
			continue
		}
		out = append(out, b)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (c *Client) dailySeries(ctx context.Context, symbol string, size int) ([]Bar, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if !ValidSymbol(symbol) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSymbol, symbol)
	}

	params := url.Values{
		"symbol":     {symbol},
		"interval":   {"1day"},
		"outputsize": {strconv.Itoa(size)},
	}
	var raw rawSeries
	if err := c.get(ctx, "time_series", params, seriesTTL, &raw); err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return raw.toBars(), nil
}

// get serves from cache when possible, otherwise fetches with retry and
// caches the successful body.
func (c *Client) get(ctx context.Context, endpoint string, params url.Values, ttl time.Duration, dst any) error {
	key := endpoint + "?" + params.Encode()
	if c.cache != nil {
		if body, ok := c.cache.Get(ctx, key); ok {
			return json.Unmarshal(body, dst)
		}
	}

	body, err := c.fetchWithRetry(ctx, endpoint, params)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("decode %s response: %w", endpoint, err)
	}
	if c.cache != nil {
		c.cache.Set(ctx, key, body, ttl)
	}
	return nil
}

func (c *Client) fetchWithRetry(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	var lastErr error
	attempts := 0
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			wait := c.backoff << (attempt - 1)
			c.log.Debug().Str("endpoint", endpoint).Int("attempt", attempt+1).Dur("backoff", wait).Msg("retrying")
			if err := sleep(ctx, wait); err != nil {
				return nil, err
			}
		}
		if err := c.limiter.Allow(); err != nil {
			return nil, err
		}

		attempts++
		body, retry, err := c.fetch(ctx, endpoint, params)
		if err == nil {
			return body, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if !retry {
			if isNotFound(err) {
				return nil, err
			}
			return nil, &UpstreamError{Endpoint: endpoint, Attempts: attempts, Err: err}
		}
		lastErr = err
		c.log.Warn().Err(err).Str("endpoint", endpoint).Int("attempt", attempts).Msg("market data request failed")
	}
	return nil, &UpstreamError{Endpoint: endpoint, Attempts: attempts, Err: lastErr}
}

// fetch performs one request. retry reports whether the failure is transient.
func (c *Client) fetch(ctx context.Context, endpoint string, params url.Values) (body []byte, retry bool, err error) {
	q := url.Values{}
	for k, v := range params {
		q[k] = v
	}
	q.Set("apikey", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, true, err
	}
	defer resp.Body.Close()

	body, err = io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		se := &StatusError{StatusCode: resp.StatusCode, Status: resp.Status}
		return nil, se.transient(), se
	}

	var status apiStatus
	if err := json.Unmarshal(body, &status); err != nil {
		return nil, false, fmt.Errorf("decode %s response: %w", endpoint, err)
	}
	if status.Status == "error" {
		pe := &ProviderError{Code: status.Code, Message: firstNonEmpty(status.Message, "API error")}
		return nil, pe.transient(), pe
	}
	return body, false, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func daysBetween(from, to time.Time) int {
	return int(math.Ceil(to.Sub(from).Hours() / 24))
}

func outputSize(days int) int {
	if days < minOutputSize {
		return minOutputSize
	}
	if days > maxOutputSize {
		return maxOutputSize
	}
	return days
}
