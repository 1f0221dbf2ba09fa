// Package fetch implements the resilient HTTP retrieval layer:
// retries with exponential backoff, a per-host circuit breaker, and
// robots.txt compliance. Grounded on
// core/pkg/util/resiliency.EnhancedClient, generalized from a single
// shared breaker to one breaker per host and from hardcoded retry
// parameters to per-Client values taken from the process configuration.
package fetch

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"
)

var retryableStatus = map[int]bool{
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// Client wraps http.Client with retry-with-backoff and a per-host
// circuit breaker.
type Client struct {
	HTTP       *http.Client
	MaxRetries int
	RetryBase  time.Duration
	UserAgent  string

	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
}

// NewClient builds a Client with the given per-request timeout, retry
// budget, base backoff, and outbound User-Agent.
func NewClient(timeout time.Duration, maxRetries int, retryBase time.Duration, userAgent string) *Client {
	return &Client{
		HTTP: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(_ *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return fmt.Errorf("stopped after 5 redirects")
				}
				return nil
			},
		},
		MaxRetries: maxRetries,
		RetryBase:  retryBase,
		UserAgent:  userAgent,
		breakers:   make(map[string]*CircuitBreaker),
	}
}

// Do executes req with retries on connection failures and 5xx
// responses from retryableStatus, backing off base*2^(attempt-1)
// between attempts, and consults a breaker scoped to req's host.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	breaker := c.breakerFor(req.URL)
	if !breaker.Allow() {
		return nil, fmt.Errorf("circuit breaker open for %s", req.URL.Host)
	}

	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}

	var resp *http.Response
	var err error

	for attempt := 0; attempt < c.MaxRetries; attempt++ {
		resp, err = c.HTTP.Do(req.Clone(ctx))

		if err == nil && !retryableStatus[resp.StatusCode] {
			breaker.Success()
			return resp, nil
		}

		if attempt == c.MaxRetries-1 {
			break
		}

		if resp != nil {
			resp.Body.Close()
		}

		delay := c.RetryBase << attempt
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			breaker.Failure()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	breaker.Failure()
	return resp, err
}

func (c *Client) breakerFor(u *url.URL) *CircuitBreaker {
	c.mu.Lock()
	defer c.mu.Unlock()

	b, ok := c.breakers[u.Host]
	if !ok {
		b = NewCircuitBreaker(u.Host, 5, 10*time.Second)
		c.breakers[u.Host] = b
	}
	return b
}

// CircuitBreaker is a three-state (CLOSED/OPEN/HALF_OPEN) failure
// detector, unchanged in shape from
// core/pkg/util/resiliency.CircuitBreaker.
type CircuitBreaker struct {
	mu           sync.Mutex
	name         string
	failureCount int
	threshold    int
	lastFailure  time.Time
	resetTimeout time.Duration
	state        string
}

func NewCircuitBreaker(name string, threshold int, timeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{name: name, threshold: threshold, resetTimeout: timeout, state: "CLOSED"}
}

func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == "OPEN" {
		if time.Since(cb.lastFailure) > cb.resetTimeout {
			cb.state = "HALF_OPEN"
			return true
		}
		return false
	}
	return true
}

func (cb *CircuitBreaker) Success() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = "CLOSED"
	cb.failureCount = 0
}

func (cb *CircuitBreaker) Failure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failureCount++
	cb.lastFailure = time.Now()
	if cb.failureCount >= cb.threshold {
		cb.state = "OPEN"
	}
}

func (cb *CircuitBreaker) State() string {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}
