package transport

import (
	"context"
	"sync"

	"golang.org/x/time/rate"

	"aidiagnos/internal/core/cache"
	"aidiagnos/internal/core/parse"
)

// Cached answers repeated identical requests from a response cache. Only
// bodies carrying a usable completion are stored. Transport failures and
// service error envelopes (rate limits, 5xx) are passed through uncached.
type Cached struct {
	inner Transport
	cache *cache.ResponseCache
}

func NewCached(inner Transport, c *cache.ResponseCache) *Cached {
	return &Cached{inner: inner, cache: c}
}

func (t *Cached) Send(req Request, done func(Result)) Handle {
	key := cache.Key(req.Endpoint, req.Body)
	if body, ok := t.cache.Get(key); ok {
		h := newCall(nil)
		go h.deliver(done, Result{Body: body})
		return h
	}
	return t.inner.Send(req, func(res Result) {
		if res.Err == nil {
			if _, err := parse.Content(res.Body); err == nil {
				t.cache.Put(key, res.Body)
			}
		}
		done(res)
	})
}

// Limited waits for a rate limiter token before handing the request on.
// Cancelling while waiting abandons the request without starting it.
type Limited struct {
	inner   Transport
	limiter *rate.Limiter
}

func NewLimited(inner Transport, limiter *rate.Limiter) *Limited {
	return &Limited{inner: inner, limiter: limiter}
}

// PerMinute builds a limiter allowing n requests per minute with a burst of 1.
func PerMinute(n int) *rate.Limiter {
	if n <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Limit(float64(n)/60.0), 1)
}

type limitedHandle struct {
	mu       sync.Mutex
	canceled bool
	cancel   context.CancelFunc
	inner    Handle
}

func (h *limitedHandle) Cancel() {
	h.mu.Lock()
	h.canceled = true
	inner := h.inner
	h.mu.Unlock()
	h.cancel()
	if inner != nil {
		inner.Cancel()
	}
}

func (t *Limited) Send(req Request, done func(Result)) Handle {
	ctx, cancel := context.WithCancel(context.Background())
	h := &limitedHandle{cancel: cancel}

	go func() {
		err := t.limiter.Wait(ctx)
		h.mu.Lock()
		defer h.mu.Unlock()
		if h.canceled {
			return
		}
		if err != nil {
			done(unavailable(err))
			return
		}
		h.inner = t.inner.Send(req, done)
	}()
	return h
}
