package rate

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// RateLimitError is returned when a call is blocked and no cached
// response can stand in for it.
type RateLimitError struct {
	Provider string
	Reason   string
	RetryAt  time.Time
}

func (e RateLimitError) Error() string {
	if e.RetryAt.IsZero() {
		return fmt.Sprintf("%s rate limited: %s", e.Provider, e.Reason)
	}
	return fmt.Sprintf("%s rate limited: %s (retry at %s)", e.Provider, e.Reason, e.RetryAt.UTC().Format(time.RFC3339))
}

type Decision struct {
	Allowed bool
	Reason  string
	RetryAt time.Time
}

type bucket struct {
	capacity int
	tokens   float64
	last     time.Time
}

// refill tops the bucket up pro rata for elapsed time and consumes one
// token when available.
func (b *bucket) take(window time.Duration, now time.Time) bool {
	if b.last.IsZero() {
		b.last = now
	}
	rate := float64(b.capacity) / window.Seconds()
	b.tokens = min(float64(b.capacity), b.tokens+now.Sub(b.last).Seconds()*rate)
	b.last = now
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

type cacheEntry struct {
	status  int
	header  http.Header
	body    []byte
	expires time.Time
}

// Guard enforces a provider's declared call budget. Blocked GETs are
// answered from a short TTL cache when possible so entity reads stay
// responsive during a cooldown.
type Guard struct {
	decl Declaration

	mu         sync.Mutex
	buckets    map[Window]*bucket
	cooldown   time.Time
	lastStatus int
	cache      map[string]cacheEntry
}

func NewGuard(decl Declaration) *Guard {
	buckets := make(map[Window]*bucket)
	for window, limit := range decl.Limits() {
		buckets[window] = &bucket{
			capacity: limit,
			tokens:   float64(limit),
			last:     time.Now(),
		}
	}
	return &Guard{
		decl:    decl,
		buckets: buckets,
		cache:   make(map[string]cacheEntry),
	}
}

// WrapHTTP returns a copy of base whose transport goes through the
// guard.
func WrapHTTP(decl Declaration, base *http.Client) *http.Client {
	if base == nil {
		base = &http.Client{}
	}
	client := *base
	transport := client.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	client.Transport = &roundTripper{
		base:  transport,
		guard: NewGuard(decl),
	}
	return &client
}

type roundTripper struct {
	base  http.RoundTripper
	guard *Guard
}

func (rt *roundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	decision := rt.guard.ShouldCall(time.Now())
	if !decision.Allowed {
		if cached := rt.guard.cachedResponse(req); cached != nil {
			return cached, nil
		}
		return nil, RateLimitError{
			Provider: rt.guard.decl.ProviderName(),
			Reason:   decision.Reason,
			RetryAt:  decision.RetryAt,
		}
	}

	resp, err := rt.base.RoundTrip(req)
	if err != nil {
		return resp, err
	}

	rt.guard.RecordResponse(resp.StatusCode, resp.Header)
	return rt.guard.maybeCacheResponse(req, resp)
}

func (g *Guard) ShouldCall(now time.Time) Decision {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.decl.HasLimits() {
		return Decision{Allowed: false, Reason: "disabled"}
	}

	if !g.cooldown.IsZero() && now.Before(g.cooldown) {
		return Decision{Allowed: false, Reason: "cooldown", RetryAt: g.cooldown}
	}

	for window, b := range g.buckets {
		if b.capacity <= 0 {
			return Decision{Allowed: false, Reason: "disabled"}
		}
		if !b.take(window.Duration(), now) {
			retryAt := b.last.Add(window.Duration() / time.Duration(b.capacity))
			return Decision{Allowed: false, Reason: "budget", RetryAt: retryAt}
		}
	}

	return Decision{Allowed: true}
}

// RecordResponse tracks the last status and arms the cooldown on 429,
// honoring a Retry-After style header when the declaration names one.
func (g *Guard) RecordResponse(status int, headers http.Header) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.lastStatus = status
	lastStatusGauge.WithLabelValues(g.decl.ProviderName()).Set(float64(status))

	if status != http.StatusTooManyRequests {
		return
	}

	now := time.Now()
	if retryAfter := headerInt(headers, g.decl.retryAfter); retryAfter > 0 {
		g.cooldown = now.Add(time.Duration(retryAfter) * time.Second)
		retryAfterGauge.WithLabelValues(g.decl.ProviderName()).Set(float64(retryAfter))
		return
	}
	if g.decl.cooldownDefault > 0 {
		g.cooldown = now.Add(g.decl.cooldownDefault)
		retryAfterGauge.WithLabelValues(g.decl.ProviderName()).Set(g.decl.cooldownDefault.Seconds())
	}
}

func (g *Guard) cachedResponse(req *http.Request) *http.Response {
	if g.decl.CacheTTL() <= 0 || req.Method != http.MethodGet {
		return nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	entry, ok := g.cache[req.URL.String()]
	if !ok || time.Now().After(entry.expires) {
		return nil
	}
	return buildResponse(req, entry.status, entry.header, entry.body)
}

func (g *Guard) maybeCacheResponse(req *http.Request, resp *http.Response) (*http.Response, error) {
	if g.decl.CacheTTL() <= 0 || req.Method != http.MethodGet {
		return resp, nil
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	resp.Body.Close()

	g.mu.Lock()
	g.cache[req.URL.String()] = cacheEntry{
		status:  resp.StatusCode,
		header:  resp.Header.Clone(),
		body:    body,
		expires: time.Now().Add(g.decl.CacheTTL()),
	}
	g.mu.Unlock()

	return buildResponse(req, resp.StatusCode, resp.Header, body), nil
}

func headerInt(h http.Header, key string) int {
	if key == "" {
		return -1
	}
	val := h.Get(key)
	if val == "" {
		return -1
	}
	var out int
	if _, err := fmt.Sscanf(val, "%d", &out); err != nil {
		return -1
	}
	return out
}

func buildResponse(req *http.Request, status int, header http.Header, body []byte) *http.Response {
	return &http.Response{
		StatusCode: status,
		Status:     fmt.Sprintf("%d %s", status, http.StatusText(status)),
		Header:     header.Clone(),
		Body:       io.NopCloser(bytes.NewReader(body)),
		Request:    req,
	}
}
