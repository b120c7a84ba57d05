package rate

import (
	"net/http"
	"testing"
	"time"
)

func TestShouldCallConsumesBucket(t *testing.T) {
	guard := NewGuard(Provider("vaillant").MaxRequestsPer(Minute, 2))

	now := time.Now()
	if d := guard.ShouldCall(now); !d.Allowed {
		t.Fatalf("first call blocked: %s", d.Reason)
	}
	if d := guard.ShouldCall(now); !d.Allowed {
		t.Fatalf("second call blocked: %s", d.Reason)
	}
	d := guard.ShouldCall(now)
	if d.Allowed {
		t.Fatalf("third call should be blocked")
	}
	if d.Reason != "budget" {
		t.Fatalf("unexpected reason: %s", d.Reason)
	}
	if d.RetryAt.IsZero() {
		t.Fatalf("expected retry hint")
	}
}

func TestBucketRefills(t *testing.T) {
	guard := NewGuard(Provider("vaillant").MaxRequestsPer(Minute, 60))

	now := time.Now()
	for i := 0; i < 60; i++ {
		if d := guard.ShouldCall(now); !d.Allowed {
			t.Fatalf("call %d blocked: %s", i, d.Reason)
		}
	}
	if d := guard.ShouldCall(now); d.Allowed {
		t.Fatalf("expected empty bucket")
	}
	if d := guard.ShouldCall(now.Add(2 * time.Second)); !d.Allowed {
		t.Fatalf("expected refill after 2s: %s", d.Reason)
	}
}

func TestNoLimitsDisabled(t *testing.T) {
	guard := NewGuard(Provider("vaillant"))
	d := guard.ShouldCall(time.Now())
	if d.Allowed {
		t.Fatalf("expected disabled provider to be blocked")
	}
	if d.Reason != "disabled" {
		t.Fatalf("unexpected reason: %s", d.Reason)
	}
}

func TestCooldownFromRetryAfter(t *testing.T) {
	guard := NewGuard(Provider("vaillant").MaxRequestsPer(Minute, 10))

	headers := http.Header{}
	headers.Set("Retry-After", "30")
	guard.RecordResponse(http.StatusTooManyRequests, headers)

	d := guard.ShouldCall(time.Now())
	if d.Allowed {
		t.Fatalf("expected cooldown block")
	}
	if d.Reason != "cooldown" {
		t.Fatalf("unexpected reason: %s", d.Reason)
	}

	if d := guard.ShouldCall(time.Now().Add(time.Minute)); !d.Allowed {
		t.Fatalf("expected cooldown to expire: %s", d.Reason)
	}
}

func TestOKResponseDoesNotCooldown(t *testing.T) {
	guard := NewGuard(Provider("vaillant").MaxRequestsPer(Minute, 10))
	guard.RecordResponse(http.StatusOK, http.Header{})
	if d := guard.ShouldCall(time.Now()); !d.Allowed {
		t.Fatalf("unexpected block: %s", d.Reason)
	}
}
