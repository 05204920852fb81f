package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
)

// BackoffConfig controls exponential backoff behaviour.
type BackoffConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultBackoff is used by providers unless overridden with WithBackoff.
var DefaultBackoff = BackoffConfig{
	MaxRetries:      3,
	InitialInterval: 500 * time.Millisecond,
	MaxInterval:     5 * time.Second,
}

// HTTPClientConfig bundles HTTP client and resilience settings.
type HTTPClientConfig struct {
	Client  *http.Client
	Backoff BackoffConfig
}

var (
	errRateLimited   = errors.New("rate limited")
	errServerError   = errors.New("server error")
	errUnexpected    = errors.New("unexpected status code")
	errCircuitOpen   = errors.New("circuit breaker open")
	errNoHTTPClient  = errors.New("http client not configured")
	errInvalidConfig = errors.New("invalid backoff configuration")
	errMissingField  = errors.New("missing field in provider response")
	errNoAPIKey      = errors.New("api key is not configured")
)

// Option customizes a provider.
type Option func(*options)

type options struct {
	baseURL      string
	geoURL       string
	countriesURL string
	backoff      BackoffConfig
}

// WithBaseURL overrides the provider endpoint, e.g. to point at a test server.
func WithBaseURL(u string) Option {
	return func(o *options) {
		o.baseURL = u
	}
}

// WithGeoURL overrides the geocoding endpoint of OpenWeatherMap.
func WithGeoURL(u string) Option {
	return func(o *options) {
		o.geoURL = u
	}
}

// WithCountriesURL overrides the country lookup endpoint of OpenWeatherMap.
func WithCountriesURL(u string) Option {
	return func(o *options) {
		o.countriesURL = u
	}
}

// WithBackoff overrides the retry policy.
func WithBackoff(b BackoffConfig) Option {
	return func(o *options) {
		o.backoff = b
	}
}

func applyOptions(baseURL string, opts []Option) options {
	o := options{baseURL: baseURL, backoff: DefaultBackoff}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

func newCircuitBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
	})
}

// doRequestWithResilience executes the HTTP request with retries, exponential backoff,
// and a circuit breaker. 429 and 5xx responses are retried; any other
// non-2xx status is returned immediately.
func doRequestWithResilience(
	ctx context.Context,
	cfg HTTPClientConfig,
	cb *gobreaker.CircuitBreaker,
	buildRequest func() (*http.Request, error),
) (*http.Response, error) {
	if cfg.Client == nil {
		return nil, errNoHTTPClient
	}
	if cfg.Backoff.MaxRetries < 0 || cfg.Backoff.InitialInterval <= 0 {
		return nil, errInvalidConfig
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = cfg.Backoff.InitialInterval
	if cfg.Backoff.MaxInterval > 0 {
		eb.MaxInterval = cfg.Backoff.MaxInterval
	}
	eb.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(cfg.Backoff.MaxRetries)), ctx)

	var resp *http.Response
	operation := func() error {
		req, err := buildRequest()
		if err != nil {
			return backoff.Permanent(err)
		}

		// Ensure the request obeys context cancellation.
		req = req.WithContext(ctx)

		result, err := cb.Execute(func() (interface{}, error) {
			r, execErr := cfg.Client.Do(req)
			if execErr != nil {
				return nil, execErr
			}

			// Handle rate limiting and server errors explicitly. Other
			// statuses count as breaker successes and are checked below.
			switch {
			case r.StatusCode == http.StatusTooManyRequests:
				drain(r)
				return nil, errRateLimited
			case r.StatusCode >= 500:
				drain(r)
				return nil, fmt.Errorf("%w: %d", errServerError, r.StatusCode)
			}
			return r, nil
		})
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return backoff.Permanent(fmt.Errorf("%w: %v", errCircuitOpen, err))
		}
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return err
		}

		r, ok := result.(*http.Response)
		if !ok {
			return backoff.Permanent(fmt.Errorf("unexpected result type from circuit breaker"))
		}
		if r.StatusCode < 200 || r.StatusCode >= 300 {
			drain(r)
			return backoff.Permanent(fmt.Errorf("%w: %d", errUnexpected, r.StatusCode))
		}
		resp = r
		return nil
	}

	if err := backoff.Retry(operation, policy); err != nil {
		return nil, err
	}
	return resp, nil
}

// getJSON performs a resilient GET and decodes the body into out.
func getJSON(ctx context.Context, cfg HTTPClientConfig, cb *gobreaker.CircuitBreaker, rawURL string, out any) error {
	resp, err := doRequestWithResilience(ctx, cfg, cb, func() (*http.Request, error) {
		return http.NewRequest(http.MethodGet, rawURL, nil)
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func drain(r *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(r.Body, 64<<10))
	_ = r.Body.Close()
}

// regionFromTimezone returns the area part of an IANA zone ("Europe/Kyiv" -> "Europe").
func regionFromTimezone(tz string) string {
	area, _, _ := strings.Cut(tz, "/")
	return area
}

func missing(field string) error {
	return fmt.Errorf("%w: %s", errMissingField, field)
}
