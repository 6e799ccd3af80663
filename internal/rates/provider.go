// Package rates fetches currency conversion rates from an external HTTP
// provider. The provider is a collaborator of the rate-refresh job; every
// failure is wrapped in *ProviderError so callers can log the failing pair
// without aborting sibling currencies.
package rates

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Provider looks up one conversion rate relative to a base currency.
type Provider interface {
	Rate(ctx context.Context, base, target string) (float64, error)
}

// ProviderError is a rate lookup failure for one currency pair.
type ProviderError struct {
	Base   string
	Target string
	Err    error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("rate %s->%s: %v", e.Base, e.Target, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Config controls the HTTP provider.
type Config struct {
	Endpoint       string
	RequestTimeout time.Duration // per-request; 0 means 10s
	RatePerSec     int           // client-side request rate limit; 0 means 4
}

// HTTPProvider queries a JSON conversion endpoint of the form
// GET {endpoint}?from={base}&to={target} => {"success":true,"result":0.91}.
type HTTPProvider struct {
	endpoint string
	client   *http.Client
	limiter  *rate.Limiter
}

// convertResponse is the provider's wire format.
type convertResponse struct {
	Success *bool    `json:"success,omitempty"`
	Result  *float64 `json:"result"`
	Error   string   `json:"error,omitempty"`
}

func NewHTTP(cfg Config) (*HTTPProvider, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("rates endpoint is required")
	}
	if _, err := url.Parse(endpoint); err != nil {
		return nil, fmt.Errorf("invalid rates endpoint %q: %w", endpoint, err)
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 4
	}
	return &HTTPProvider{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
		limiter:  rate.NewLimiter(rate.Limit(rps), rps),
	}, nil
}

func (p *HTTPProvider) Rate(ctx context.Context, base, target string) (float64, error) {
	fail := func(err error) (float64, error) {
		return 0, &ProviderError{Base: base, Target: target, Err: err}
	}

	// Client-side throttle so a long currency list does not hammer the
	// upstream API.
	if err := p.limiter.Wait(ctx); err != nil {
		return fail(err)
	}

	u, err := url.Parse(p.endpoint)
	if err != nil {
		return fail(err)
	}
	q := u.Query()
	q.Set("from", base)
	q.Set("to", target)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fail(err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fail(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Drain a little for connection reuse; the body is not interesting.
		_, _ = io.CopyN(io.Discard, resp.Body, 512)
		return fail(fmt.Errorf("unexpected status %s", resp.Status))
	}

	var cr convertResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&cr); err != nil {
		return fail(fmt.Errorf("decode response: %w", err))
	}
	if cr.Success != nil && !*cr.Success {
		msg := cr.Error
		if msg == "" {
			msg = "provider reported failure"
		}
		return fail(fmt.Errorf("%s", msg))
	}
	if cr.Result == nil {
		return fail(fmt.Errorf("response missing result"))
	}
	if *cr.Result <= 0 {
		return fail(fmt.Errorf("non-positive rate %v", *cr.Result))
	}
	return *cr.Result, nil
}
