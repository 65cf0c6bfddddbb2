package erddap

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/couchcryptid/ndbc-transfer/internal/domain"
	"github.com/couchcryptid/ndbc-transfer/internal/observability"
)

// ERDDAP answers an empty tabledap query with an error status and this text.
const noMatchingResults = "no matching results"

const maxErrorBody = 4 << 10

// Options tunes the HTTP behaviour of a Client.
type Options struct {
	Timeout   time.Duration
	RateLimit rate.Limit // requests per second; <= 0 disables limiting
	Burst     int
	CacheSize int // datasets whose variable lists are kept
}

// Client fetches sensor readings from an ERDDAP tabledap server.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	variables  *variableCache
	mapper     *domain.Mapper
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates an ERDDAP client rooted at baseURL (e.g.
// "https://erddap.dataexplorer.oceanobservatories.org/erddap").
func NewClient(baseURL string, opts Options, mapper *domain.Mapper, metrics *observability.Metrics, logger *slog.Logger) (*Client, error) {
	limit := opts.RateLimit
	if limit <= 0 {
		limit = rate.Inf
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}
	cacheSize := opts.CacheSize
	if cacheSize <= 0 {
		cacheSize = 64
	}
	cache, err := newVariableCache(cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create variable cache: %w", err)
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: opts.Timeout,
		},
		limiter:   rate.NewLimiter(limit, burst),
		variables: cache,
		mapper:    mapper,
		metrics:   metrics,
		logger:    logger,
	}, nil
}

// Fetch returns the readings of one feed within window. The request is sent
// when iteration starts; the sequence can be ranged over once.
func (c *Client) Fetch(ctx context.Context, station domain.Station, feed domain.Feed, window domain.TimeWindow) iter.Seq2[domain.SensorReading, error] {
	var consumed atomic.Bool
	return func(yield func(domain.SensorReading, error) bool) {
		if consumed.Swap(true) {
			yield(domain.SensorReading{}, errors.New("erddap: reading sequence already consumed"))
			return
		}

		tbl, err := c.fetchTable(ctx, station, feed, window)
		if err != nil {
			yield(domain.SensorReading{}, err)
			return
		}

		for reading, err := range tbl.readings(station.ID, window) {
			if !yield(reading, err) || err != nil {
				return
			}
		}
	}
}

func (c *Client) fetchTable(ctx context.Context, station domain.Station, feed domain.Feed, window domain.TimeWindow) (*table, error) {
	available, err := c.Variables(ctx, feed.Dataset)
	if err != nil {
		return nil, err
	}

	var channels []string
	for _, ch := range c.mapper.Channels(feed.Sensor) {
		if slices.Contains(available, ch) {
			channels = append(channels, ch)
		}
	}
	if len(channels) == 0 {
		return nil, fmt.Errorf("%w: dataset %s exposes no %s channel", domain.ErrUpstreamFormat, feed.Dataset, feed.Sensor)
	}

	u := c.dataURL(feed.Dataset, channels, station.Deployment, window)
	c.logger.Debug("erddap data request",
		"station", station.ID,
		"sensor", feed.Sensor,
		"dataset", feed.Dataset,
		"channels", len(channels),
	)

	body, err := c.get(ctx, u, "data")
	if errors.Is(err, errEmptyResult) {
		c.logger.Info("erddap returned no rows", "dataset", feed.Dataset, "start", window.Start, "end", window.End)
		return &table{}, nil
	}
	if err != nil {
		return nil, err
	}

	tbl, err := decodeTable(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	if tbl.timeIndex() < 0 {
		return nil, fmt.Errorf("%w: dataset %s response has no time column", domain.ErrUpstreamFormat, feed.Dataset)
	}
	return tbl, nil
}

// Variables returns the variable names a dataset exposes. Results are cached.
func (c *Client) Variables(ctx context.Context, dataset string) ([]string, error) {
	if vars, ok := c.variables.get(dataset); ok {
		c.metrics.MetadataCache.WithLabelValues("hit").Inc()
		return vars, nil
	}
	c.metrics.MetadataCache.WithLabelValues("miss").Inc()

	u := fmt.Sprintf("%s/info/%s/index.json", c.baseURL, url.PathEscape(dataset))
	body, err := c.get(ctx, u, "info")
	if errors.Is(err, errEmptyResult) {
		return nil, fmt.Errorf("%w: dataset %s: info lists no variables", domain.ErrUpstreamFormat, dataset)
	}
	if err != nil {
		return nil, err
	}
	tbl, err := decodeTable(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	vars, err := tbl.variableNames()
	if err != nil {
		return nil, fmt.Errorf("dataset %s: %w", dataset, err)
	}
	c.variables.put(dataset, vars)
	return vars, nil
}

// dataURL builds a tabledap query. ERDDAP wants constraint operators
// percent-encoded, so each query part is escaped separately.
func (c *Client) dataURL(dataset string, channels []string, deployment string, window domain.TimeWindow) string {
	parts := []string{
		url.QueryEscape("time," + strings.Join(channels, ",")),
		url.QueryEscape("time>=" + window.Start.UTC().Format(time.RFC3339)),
		url.QueryEscape("time<" + window.End.UTC().Format(time.RFC3339)),
	}
	if deployment != "" {
		parts = append(parts, url.QueryEscape(fmt.Sprintf("deploy_id=%q", deployment)))
	}
	return fmt.Sprintf("%s/tabledap/%s.json?%s", c.baseURL, url.PathEscape(dataset), strings.Join(parts, "&"))
}

var errEmptyResult = errors.New("empty result")

func (c *Client) get(ctx context.Context, fullURL, endpoint string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		c.metrics.UpstreamRequests.WithLabelValues(endpoint, "error").Inc()
		return nil, fmt.Errorf("%w: rate limiter: %w", domain.ErrUpstreamUnavailable, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.UpstreamRequests.WithLabelValues(endpoint, "error").Inc()
		return nil, fmt.Errorf("%w: %s request: %w", domain.ErrUpstreamUnavailable, endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		err := classifyStatus(resp.StatusCode, body)
		outcome := "error"
		if errors.Is(err, errEmptyResult) {
			outcome = "empty"
		}
		c.metrics.UpstreamRequests.WithLabelValues(endpoint, outcome).Inc()
		return nil, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.metrics.UpstreamRequests.WithLabelValues(endpoint, "error").Inc()
		return nil, fmt.Errorf("%w: read %s response: %w", domain.ErrUpstreamUnavailable, endpoint, err)
	}
	c.metrics.UpstreamRequests.WithLabelValues(endpoint, "success").Inc()
	return body, nil
}

// classifyStatus maps a non-200 response onto the failure taxonomy.
func classifyStatus(status int, body []byte) error {
	msg := strings.TrimSpace(string(body))
	if (status == http.StatusNotFound || status == http.StatusInternalServerError) &&
		strings.Contains(strings.ToLower(msg), noMatchingResults) {
		return errEmptyResult
	}
	switch {
	case status == http.StatusNotFound,
		status == http.StatusTooManyRequests,
		status == http.StatusRequestTimeout,
		status >= 500:
		return fmt.Errorf("%w: status %d: %s", domain.ErrUpstreamUnavailable, status, msg)
	default:
		return fmt.Errorf("%w: status %d: %s", domain.ErrUpstreamFormat, status, msg)
	}
}
