package middleware

import (
	"testing"
	"time"
)

func TestRateLimiterSlidingWindow(t *testing.T) {
	rl := NewRateLimiter(3, time.Hour)
	current := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return current }

	for i := 0; i < 3; i++ {
		if ok, _ := rl.Allow(7); !ok {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}

	ok, retryAfter := rl.Allow(7)
	if ok {
		t.Fatal("fourth request within the window should be denied")
	}
	if retryAfter <= 0 || retryAfter > time.Hour {
		t.Fatalf("unexpected retry-after %v", retryAfter)
	}

	// Other users are unaffected.
	if ok, _ := rl.Allow(8); !ok {
		t.Fatal("different user should be allowed")
	}

	// Once the oldest request slides out the budget reopens.
	current = current.Add(time.Hour + time.Minute)
	if ok, _ := rl.Allow(7); !ok {
		t.Fatal("request after the window should be allowed")
	}
}
