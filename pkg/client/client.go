// Package client provides the Trafikanalys API client: query building with
// automatic value resolution, response caching, client-side rate limiting
// with retry, and batching of oversized queries.
package client

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/nordviklabs/trafago/pkg/batch"
	"github.com/nordviklabs/trafago/pkg/cache"
	"github.com/nordviklabs/trafago/pkg/query"
	"github.com/nordviklabs/trafago/pkg/ratelimit"
	"github.com/nordviklabs/trafago/pkg/structure"
	"github.com/nordviklabs/trafago/pkg/table"
)

// DefaultBaseURL is the production Trafikanalys API endpoint.
const DefaultBaseURL = "https://api.trafa.se/api"

// Prometheus metrics for client operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trafa_requests_total",
		Help: "Total API requests by endpoint and outcome",
	}, []string{"endpoint", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "trafa_request_duration_seconds",
		Help:    "API request duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trafa_errors_total",
		Help: "Total API errors by class",
	}, []string{"class"})
)

// Values the "all" resolution always excludes: aggregate totals, and for the
// year variable the relative-year filter aliases.
var (
	totalValueNames = map[string]bool{"t1": true, "totalt": true, "total": true}
	yearAliasNames  = map[string]bool{"senaste": true, "forra": true}
)

// yearVariable is the API's name for the year dimension, which gets special
// value handling (numeric filtering and ascending sort).
const yearVariable = "ar"

// Config holds the client configuration.
type Config struct {
	// BaseURL of the API (default: DefaultBaseURL).
	BaseURL string

	// Language for responses: "sv" or "en".
	Language string

	// UserAgent sent with every request.
	UserAgent string

	// RequestTimeout for a single HTTP request.
	RequestTimeout time.Duration

	// Redis client for response caching. May be nil when CacheEnabled is
	// false.
	Redis *redis.Client

	// CacheEnabled turns response caching on.
	CacheEnabled bool

	// CacheTTL is the expiry for cached responses.
	CacheTTL time.Duration

	// RateLimit configures the token-bucket limiter.
	RateLimit ratelimit.Config

	// Retry configures per-request retry with exponential backoff.
	Retry RetryConfig

	// MaxBatchSize is the largest value count a variable may carry in one
	// request before the query is split.
	MaxBatchSize int

	// UseBatching enables automatic splitting of oversized queries.
	UseBatching bool

	// ShowProgress emits per-batch progress notices during batched calls.
	ShowProgress bool
}

// DefaultConfig returns a safe default configuration. Caching stays off
// until a Redis client is supplied.
func DefaultConfig() Config {
	return Config{
		BaseURL:        DefaultBaseURL,
		Language:       "sv",
		UserAgent:      "trafago/0.1.0",
		RequestTimeout: 30 * time.Second,
		CacheTTL:       cache.DefaultTTL,
		RateLimit:      ratelimit.DefaultConfig(),
		Retry:          DefaultRetryConfig(),
		MaxBatchSize:   query.DefaultMaxBatchSize,
		UseBatching:    true,
		ShowProgress:   false,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Language != "sv" && c.Language != "en" {
		return fmt.Errorf("%w: language must be \"sv\" or \"en\" (got %q)", ErrInvalidConfiguration, c.Language)
	}
	if c.MaxBatchSize < 1 {
		return fmt.Errorf("%w: max_batch_size must be >= 1 (got %d)", ErrInvalidConfiguration, c.MaxBatchSize)
	}
	if c.CacheEnabled && c.Redis == nil {
		return fmt.Errorf("%w: caching requires a redis client", ErrInvalidConfiguration)
	}
	if err := c.RateLimit.Validate(); err != nil {
		return err
	}
	return c.Retry.Validate()
}

// BatchingStatus is a read-only view of the batching configuration.
type BatchingStatus struct {
	MaxBatchSize int  `json:"max_batch_size"`
	UseBatching  bool `json:"use_batching"`
	ShowProgress bool `json:"show_progress"`
}

// Status is a read-only snapshot of the client's runtime configuration.
type Status struct {
	RateLimit ratelimit.Snapshot `json:"rate_limit"`
	Retry     RetryConfig        `json:"retry"`
	Batching  BatchingStatus     `json:"batching"`
	Caching   bool               `json:"caching"`
}

// Client is the Trafikanalys API client. One client owns one rate limiter;
// sharing a client across goroutines is safe, but calls serialize through
// the limiter.
type Client struct {
	transport Transport
	limiter   *ratelimit.Limiter
	cache     *cache.Manager
	logger    zerolog.Logger

	mu  sync.Mutex // guards cfg for runtime reconfiguration
	cfg Config
}

// New creates a client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Language == "" {
		cfg.Language = "sv"
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	limiter, err := ratelimit.New(cfg.RateLimit)
	if err != nil {
		return nil, err
	}

	var cacheManager *cache.Manager
	if cfg.CacheEnabled {
		cacheManager = cache.NewManager(cfg.Redis, cfg.CacheTTL)
	}

	return &Client{
		transport: newHTTPTransport(cfg.RequestTimeout, cfg.UserAgent),
		limiter:   limiter,
		cache:     cacheManager,
		logger:    log.With().Str("component", "trafa-client").Logger(),
		cfg:       cfg,
	}, nil
}

// SetTransport replaces the HTTP transport (for testing).
func (c *Client) SetTransport(t Transport) {
	c.transport = t
}

// config returns a copy of the current configuration.
func (c *Client) config() Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg
}

// get performs a rate-limited, retried, cached GET against an API endpoint.
// The cache key is the fully resolved endpoint plus parameters.
func (c *Client) get(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	cfg := c.config()

	startTime := time.Now()
	defer func() {
		requestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	key := cache.Key{Endpoint: endpoint, Params: params}
	if c.cache != nil && cfg.CacheEnabled {
		body, err := c.cache.Get(ctx, key)
		if err == nil {
			c.logger.Debug().Str("endpoint", endpoint).Msg("Cache hit")
			requestsTotal.WithLabelValues(endpoint, "cache_hit").Inc()
			return body, nil
		}
		if err != cache.ErrCacheMiss {
			c.logger.Warn().Err(err).Str("endpoint", endpoint).Msg("Cache get error")
		}
	}

	requestURL := cfg.BaseURL + endpoint + "?" + params.Encode()

	c.logger.Debug().
		Str("endpoint", endpoint).
		Str("url", requestURL).
		Msg("Executing API request")

	c.limiter.Wait()

	var body []byte
	err := retryWithBackoff(ctx, cfg.Retry, c.logger, func() error {
		var reqErr error
		body, reqErr = c.transport.Get(ctx, requestURL)
		if reqErr != nil {
			class := classifyError(reqErr)
			errorsTotal.WithLabelValues(string(class)).Inc()
			requestsTotal.WithLabelValues(endpoint, "error").Inc()
			c.logger.Warn().
				Err(reqErr).
				Str("endpoint", endpoint).
				Str("error_class", string(class)).
				Msg("API request error")
			return reqErr
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	requestsTotal.WithLabelValues(endpoint, "ok").Inc()

	if c.cache != nil && cfg.CacheEnabled {
		if err := c.cache.Set(ctx, key, body); err != nil {
			c.logger.Warn().Err(err).Str("endpoint", endpoint).Msg("Failed to cache response")
		}
	}

	return body, nil
}

// Raw performs a request against an API endpoint and returns the raw JSON
// body. The language parameter is added automatically.
func (c *Client) Raw(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	if params == nil {
		params = url.Values{}
	}
	if params.Get("lang") == "" {
		params.Set("lang", c.config().Language)
	}
	return c.get(ctx, endpoint, params)
}

// getStructure fetches and parses a /structure response. An empty
// structureQuery fetches the product list.
func (c *Client) getStructure(ctx context.Context, structureQuery string) (*structure.Response, error) {
	params := url.Values{"lang": []string{c.config().Language}}
	if structureQuery != "" {
		params.Set("query", structureQuery)
	}

	body, err := c.get(ctx, "/structure", params)
	if err != nil {
		return nil, err
	}

	resp, err := structure.Parse(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return resp, nil
}

// ListProducts returns every available product.
func (c *Client) ListProducts(ctx context.Context) ([]structure.Product, error) {
	resp, err := c.getStructure(ctx, "")
	if err != nil {
		return nil, err
	}
	return resp.Products(), nil
}

// SearchProducts returns the products whose label or description contains
// the search term, case-insensitively.
func (c *Client) SearchProducts(ctx context.Context, term string) ([]structure.Product, error) {
	resp, err := c.getStructure(ctx, "")
	if err != nil {
		return nil, err
	}
	return resp.MatchProducts(term), nil
}

// ProductVariables returns the variables, measures, and hierarchies of a
// product.
func (c *Client) ProductVariables(ctx context.Context, productCode string) ([]structure.Variable, error) {
	resp, err := c.getStructure(ctx, productCode)
	if err != nil {
		return nil, err
	}
	return resp.ProductVariables(productCode), nil
}

// VariableOptions returns the selectable filter values of a variable.
// Direct lookup (product|variable) is tried first; variables nested in a
// hierarchy are resolved through their hierarchy path as a fallback.
func (c *Client) VariableOptions(ctx context.Context, productCode, variableName string) ([]structure.Option, error) {
	resp, err := c.getStructure(ctx, productCode+"|"+variableName)
	if err != nil {
		return nil, err
	}

	if item := resp.FindVariable(variableName); item != nil {
		if opts := structure.Options(item); len(opts) > 0 {
			return opts, nil
		}
	}

	c.logger.Debug().
		Str("product", productCode).
		Str("variable", variableName).
		Msg("Variable not found directly, trying hierarchy path")

	return c.variableOptionsHierarchical(ctx, productCode, variableName)
}

// variableOptionsHierarchical resolves a hierarchy-nested variable: fetch the
// product structure, locate the hierarchy path, then query
// product|h1|…|variable.
func (c *Client) variableOptionsHierarchical(ctx context.Context, productCode, variableName string) ([]structure.Option, error) {
	productResp, err := c.getStructure(ctx, productCode)
	if err != nil {
		return nil, err
	}

	path := productResp.HierarchyPath(productCode, variableName)
	if len(path) == 0 {
		return nil, nil
	}

	structureQuery := productCode + "|" + strings.Join(path, "|") + "|" + variableName
	resp, err := c.getStructure(ctx, structureQuery)
	if err != nil {
		return nil, err
	}

	return structure.Options(resp.FindVariable(variableName)), nil
}

// AllValues returns every selectable value of a variable, excluding
// aggregate totals. Year values are filtered to four-digit numerics and
// sorted ascending.
func (c *Client) AllValues(ctx context.Context, productCode, variableName string) ([]string, error) {
	opts, err := c.VariableOptions(ctx, productCode, variableName)
	if err != nil {
		return nil, err
	}

	var values []string
	for _, opt := range opts {
		if totalValueNames[opt.Name] {
			continue
		}
		if variableName == yearVariable && yearAliasNames[opt.Name] {
			continue
		}
		values = append(values, opt.Name)
	}

	if variableName == yearVariable {
		values = sortYears(values)
	}

	c.logger.Debug().
		Str("product", productCode).
		Str("variable", variableName).
		Int("count", len(values)).
		Msg("Resolved available values")

	return values, nil
}

// sortYears keeps four-digit numeric values and sorts them ascending.
func sortYears(values []string) []string {
	var years []string
	for _, v := range values {
		if len(v) == 4 && isDigits(v) {
			years = append(years, v)
		}
	}
	// Four-digit strings sort correctly lexicographically.
	sort.Strings(years)
	return years
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}

// ResolveQuery replaces every "all" sentinel filter with the variable's full
// value set, leaving other filters untouched. Resolution happens before
// planning so the planner stays pure.
func (c *Client) ResolveQuery(ctx context.Context, q query.Query) (query.Query, error) {
	resolved := q.Clone()
	for i, f := range resolved.Filters {
		if !f.IsAll() {
			continue
		}
		values, err := c.AllValues(ctx, q.Product, f.Name)
		if err != nil {
			return query.Query{}, fmt.Errorf("resolve %q: %w", f.Name, err)
		}
		if len(values) == 0 {
			return query.Query{}, fmt.Errorf("resolve %q: no available values for product %s", f.Name, q.Product)
		}
		resolved.Filters[i].Values = values
	}
	return resolved, nil
}

// PreviewQuery returns the full data URL a query would request, without
// sending anything.
func (c *Client) PreviewQuery(q query.Query) string {
	cfg := c.config()
	params := url.Values{
		"query": []string{q.String()},
		"lang":  []string{cfg.Language},
	}
	return cfg.BaseURL + "/data?" + params.Encode()
}

// fetchTable requests one query's data and converts it to a table.
func (c *Client) fetchTable(ctx context.Context, q query.Query) (*table.Table, error) {
	params := url.Values{
		"query": []string{q.String()},
		"lang":  []string{c.config().Language},
	}

	body, err := c.get(ctx, "/data", params)
	if err != nil {
		return nil, err
	}

	t, err := table.FromResponse(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return t, nil
}

// GetData fetches a query's data as a table. Unresolved "all" filters are
// resolved first. When batching is enabled and the query exceeds the batch
// limits, it is split into sub-queries that are fetched sequentially and
// merged with duplicate rows removed.
func (c *Client) GetData(ctx context.Context, q query.Query) (*table.Table, error) {
	if q.HasAll() {
		resolved, err := c.ResolveQuery(ctx, q)
		if err != nil {
			return nil, err
		}
		q = resolved
	}

	cfg := c.config()

	if !cfg.UseBatching || !query.NeedsBatching(q, cfg.MaxBatchSize) {
		return c.fetchTable(ctx, q)
	}

	plan := query.PlanBatches(q, cfg.MaxBatchSize)

	c.logger.Info().
		Str("product", q.Product).
		Str("split_variable", plan.SplitVariable).
		Int("batches", plan.TotalBatches).
		Msg("Large query detected, splitting into batches")

	executor := batch.NewExecutor(batch.Config{ShowProgress: cfg.ShowProgress})
	return executor.Execute(ctx, plan, c.fetchTable)
}

// ConfigureRateLimit replaces the limiter parameters; takes effect on the
// next call.
func (c *Client) ConfigureRateLimit(cfg ratelimit.Config) error {
	if err := c.limiter.Configure(cfg); err != nil {
		return err
	}
	c.mu.Lock()
	c.cfg.RateLimit = cfg
	c.mu.Unlock()
	return nil
}

// ConfigureRetry replaces the retry parameters; takes effect on the next
// call.
func (c *Client) ConfigureRetry(cfg RetryConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	c.cfg.Retry = cfg
	c.mu.Unlock()
	return nil
}

// ConfigureBatching replaces the batching parameters; takes effect on the
// next GetData call.
func (c *Client) ConfigureBatching(maxBatchSize int, useBatching bool) error {
	if maxBatchSize < 1 {
		return fmt.Errorf("%w: max_batch_size must be >= 1 (got %d)", ErrInvalidConfiguration, maxBatchSize)
	}
	c.mu.Lock()
	c.cfg.MaxBatchSize = maxBatchSize
	c.cfg.UseBatching = useBatching
	c.mu.Unlock()

	c.logger.Info().
		Int("max_batch_size", maxBatchSize).
		Bool("use_batching", useBatching).
		Msg("Batching reconfigured")
	return nil
}

// Status returns a read-only snapshot of the limiter, retry, and batching
// configuration.
func (c *Client) Status() Status {
	cfg := c.config()
	return Status{
		RateLimit: c.limiter.Snapshot(),
		Retry:     cfg.Retry,
		Batching: BatchingStatus{
			MaxBatchSize: cfg.MaxBatchSize,
			UseBatching:  cfg.UseBatching,
			ShowProgress: cfg.ShowProgress,
		},
		Caching: cfg.CacheEnabled,
	}
}

// CacheStats reports the number and size of cached responses. Returns zero
// stats when caching is disabled.
func (c *Client) CacheStats(ctx context.Context) (cache.Stats, error) {
	if c.cache == nil {
		return cache.Stats{}, nil
	}
	return c.cache.Stats(ctx)
}

// ClearCache removes cached responses, optionally only those older than the
// given age. Returns the number of entries removed.
func (c *Client) ClearCache(ctx context.Context, olderThan time.Duration) (int, error) {
	if c.cache == nil {
		return 0, nil
	}
	return c.cache.Clear(ctx, olderThan)
}
