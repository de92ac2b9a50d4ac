// Package codeforces talks to the public Codeforces API. The Client builds
// game boards from the problemset and answers which board problems a handle
// has solved. Every outbound call goes through one rate limiter.
package codeforces

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arena_codeforces_requests_total",
		Help: "Codeforces API calls by method and result",
	}, []string{"method", "result"})

	cacheTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arena_codeforces_cache_total",
		Help: "Solved-set cache lookups by result",
	}, []string{"result"})
)

// errBadRequest marks a 400 answer, which Codeforces gives for unknown
// handles and tags.
var errBadRequest = errors.New("codeforces rejected the request")

type Config struct {
	BaseURL      string
	RateInterval time.Duration
	Timeout      time.Duration
	CacheTTL     time.Duration
}

// defaultFlightTimeout bounds a shared solved-set fetch, including the wait
// for the rate limiter, when Config.Timeout is unset.
const defaultFlightTimeout = 30 * time.Second

type Client struct {
	base          string
	http          *http.Client
	limiter       *rate.Limiter
	cacheTTL      time.Duration
	flightTimeout time.Duration
	logger        *slog.Logger
	now           func() time.Time

	mu    sync.Mutex
	cache map[string]solvedEntry
	rng   *rand.Rand

	flight singleflight.Group
}

type solvedEntry struct {
	keys      map[string]bool
	fetchedAt time.Time
}

func New(cfg Config, logger *slog.Logger) *Client {
	limit := rate.Inf
	if cfg.RateInterval > 0 {
		limit = rate.Every(cfg.RateInterval)
	}
	flightTimeout := defaultFlightTimeout
	if cfg.Timeout > 0 {
		flightTimeout = 3 * cfg.Timeout
	}
	return &Client{
		base:          strings.TrimRight(cfg.BaseURL, "/"),
		http:          &http.Client{Timeout: cfg.Timeout},
		limiter:       rate.NewLimiter(limit, 1),
		cacheTTL:      cfg.CacheTTL,
		flightTimeout: flightTimeout,
		logger:        logger,
		now:           time.Now,
		cache:         make(map[string]solvedEntry),
		rng:           rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
}

// envelope is the wrapper around every API answer.
type envelope struct {
	Status  string          `json:"status"`
	Comment string          `json:"comment"`
	Result  json.RawMessage `json:"result"`
}

// call performs one API method and decodes its result into out.
func (c *Client) call(ctx context.Context, method string, params url.Values, out any) (err error) {
	defer func() {
		result := "ok"
		switch {
		case errors.Is(err, errBadRequest):
			result = "rejected"
		case err != nil:
			result = "error"
		}
		requestsTotal.WithLabelValues(method, result).Inc()
	}()

	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("waiting for rate limiter: %w", err)
	}

	u := c.base + "/" + method
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("calling %s: %w", method, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("%s: unexpected status %d", method, resp.StatusCode)
		}
		return fmt.Errorf("decoding %s response: %w", method, err)
	}
	if resp.StatusCode == http.StatusBadRequest {
		return fmt.Errorf("%w: %s", errBadRequest, env.Comment)
	}
	if resp.StatusCode != http.StatusOK || env.Status != "OK" {
		return fmt.Errorf("%s failed (status %d): %s", method, resp.StatusCode, env.Comment)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return fmt.Errorf("decoding %s result: %w", method, err)
	}
	return nil
}
