package rate

import "time"

// Window represents a provider rate-limit bucket.
type Window int

const (
	Minute Window = iota
	Day
)

func (w Window) String() string {
	switch w {
	case Minute:
		return "minute"
	case Day:
		return "day"
	default:
		return "unknown"
	}
}

func (w Window) Duration() time.Duration {
	switch w {
	case Minute:
		return time.Minute
	case Day:
		return 24 * time.Hour
	default:
		return time.Minute
	}
}

// Declaration defines a provider's rate limits.
type Declaration struct {
	provider        string
	limits          map[Window]int
	cacheTTL        time.Duration
	retryAfter      string
	cooldownDefault time.Duration
}

// Provider creates a new declaration for a provider.
func Provider(name string) Declaration {
	return Declaration{provider: name, retryAfter: "Retry-After"}
}

func (d Declaration) ProviderName() string {
	return d.provider
}

func (d Declaration) MaxRequestsPer(window Window, limit int) Declaration {
	if d.limits == nil {
		d.limits = make(map[Window]int)
	}
	d.limits[window] = limit
	return d
}

// CacheFor enables the TTL response cache for GET requests.
func (d Declaration) CacheFor(ttl time.Duration) Declaration {
	d.cacheTTL = ttl
	return d
}

func (d Declaration) RetryAfterHeader(name string) Declaration {
	d.retryAfter = name
	return d
}

// CooldownFor sets the fallback cooldown applied on 429 responses that
// carry no retry header.
func (d Declaration) CooldownFor(cooldown time.Duration) Declaration {
	d.cooldownDefault = cooldown
	return d
}

func (d Declaration) Limits() map[Window]int {
	return d.limits
}

func (d Declaration) CacheTTL() time.Duration {
	return d.cacheTTL
}

func (d Declaration) HasLimits() bool {
	return len(d.limits) > 0
}
