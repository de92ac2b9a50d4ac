package codeforces

import (
	"context"
	"errors"
	"net/url"

	"github.com/tictaccode/arena/internal/arena"
)

type submission struct {
	Verdict string        `json:"verdict"`
	Problem arena.Problem `json:"problem"`
}

// Solved reports which of problems handle has an accepted submission for,
// keyed by Problem.Key. Answers may be up to the cache TTL old.
func (c *Client) Solved(ctx context.Context, handle string, problems []arena.Problem) (map[string]bool, error) {
	all, err := c.solvedSet(ctx, handle)
	if err != nil {
		return nil, err
	}
	out := make(map[string]bool)
	for _, p := range problems {
		if all[p.Key()] {
			out[p.Key()] = true
		}
	}
	return out, nil
}

// solvedSet returns every problem key handle has solved. Concurrent misses
// for the same handle share one request. The shared request is detached from
// any single caller, so one caller giving up does not fail the others.
func (c *Client) solvedSet(ctx context.Context, handle string) (map[string]bool, error) {
	c.mu.Lock()
	e, ok := c.cache[handle]
	c.mu.Unlock()
	if ok && c.now().Sub(e.fetchedAt) < c.cacheTTL {
		cacheTotal.WithLabelValues("hit").Inc()
		return e.keys, nil
	}
	cacheTotal.WithLabelValues("miss").Inc()

	fctx := context.WithoutCancel(ctx)
	ch := c.flight.DoChan(handle, func() (any, error) {
		fctx, cancel := context.WithTimeout(fctx, c.flightTimeout)
		defer cancel()
		keys, err := c.fetchSolved(fctx, handle)
		if err != nil {
			return nil, err
		}
		c.remember(handle, keys)
		return keys, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.(map[string]bool), nil
	}
}

// remember caches keys for handle and drops entries past the TTL.
func (c *Client) remember(handle string, keys map[string]bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for h, e := range c.cache {
		if now.Sub(e.fetchedAt) >= c.cacheTTL {
			delete(c.cache, h)
		}
	}
	if c.cacheTTL > 0 {
		c.cache[handle] = solvedEntry{keys: keys, fetchedAt: now}
	}
}

func (c *Client) fetchSolved(ctx context.Context, handle string) (map[string]bool, error) {
	var subs []submission
	err := c.call(ctx, "user.status", url.Values{"handle": {handle}}, &subs)
	if errors.Is(err, errBadRequest) {
		c.logger.Info("codeforces does not know handle", "handle", handle)
		return map[string]bool{}, nil
	}
	if err != nil {
		return nil, err
	}

	keys := make(map[string]bool)
	for _, s := range subs {
		if s.Verdict == "OK" && s.Problem.ContestID != 0 && s.Problem.Index != "" {
			keys[s.Problem.Key()] = true
		}
	}
	return keys, nil
}
