package httpclient

import (
	"context"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/MwailaCoding/storefront/pkg/config"
)

// Policy bounds how often and how slowly a request is retried.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// PolicyFromConfig converts the env-driven retry settings.
func PolicyFromConfig(cfg config.RetryConfig) Policy {
	return Policy{
		MaxAttempts: cfg.MaxAttempts,
		BaseDelay:   cfg.BaseDelay,
		MaxDelay:    cfg.MaxDelay,
	}
}

func (p Policy) normalized() Policy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = 500 * time.Millisecond
	}
	if p.MaxDelay < p.BaseDelay {
		p.MaxDelay = p.BaseDelay
	}
	return p
}

// retryableStatus reports whether the backend may succeed on a later attempt.
// Other 4xx responses are final.
func retryableStatus(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

func nextBackoff(current, base, max time.Duration) time.Duration {
	if current <= 0 {
		return base
	}
	next := current * 2
	if next > max {
		return max
	}
	return next
}

var (
	jitterMu     sync.Mutex
	jitterSource = rand.New(rand.NewSource(time.Now().UnixNano()))
)

// withJitter adds up to a quarter of d so synchronized clients spread out.
func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	window := int64(d / 4)
	if window <= 0 {
		return d
	}
	jitterMu.Lock()
	jitter := time.Duration(jitterSource.Int63n(window))
	jitterMu.Unlock()
	return d + jitter
}

// retryAfter parses a Retry-After header given in seconds or as an HTTP date.
func retryAfter(header string, now time.Time) (time.Duration, bool) {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(header); err == nil {
		if secs < 0 {
			return 0, false
		}
		return time.Duration(secs) * time.Second, true
	}
	if at, err := http.ParseTime(header); err == nil {
		d := at.Sub(now)
		if d < 0 {
			d = 0
		}
		return d, true
	}
	return 0, false
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
