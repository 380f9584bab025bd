package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/scrapegoat/backend/internal/infrastructure/monitoring"
	"github.com/scrapegoat/backend/internal/infrastructure/resilience"
)

var (
	ErrInvalidURL = errors.New("fetch: url must be absolute http or https")
	ErrNotHTML    = errors.New("fetch: response is not a text document")
	ErrTooLarge   = errors.New("fetch: response exceeds maximum size")
)

// StatusError reports a non-2xx response.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch %s: unexpected status %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}

// Sheepdog downloads documents for tree building. Requests are rate
// limited, retried on transient failures and guarded by a per-host circuit
// breaker.
type Sheepdog struct {
	client   *resty.Client
	limiter  *rate.Limiter
	breakers *resilience.Group
	maxBytes int64
	logger   *zap.Logger
	metrics  *monitoring.Metrics
}

// Options configures a Sheepdog.
type Options struct {
	Timeout           time.Duration
	Retries           int
	RetryWaitMin      time.Duration
	RetryWaitMax      time.Duration
	UserAgent         string
	RequestsPerSecond float64 // 0 = unlimited
	MaxBytes          int64
	Logger            *zap.Logger
	Metrics           *monitoring.Metrics
}

// DefaultOptions returns production settings.
func DefaultOptions() Options {
	return Options{
		Timeout:      30 * time.Second,
		Retries:      3,
		RetryWaitMin: 1 * time.Second,
		RetryWaitMax: 30 * time.Second,
		UserAgent:    "scrapegoat/1.0",
		MaxBytes:     10 * 1024 * 1024,
	}
}

// New creates a Sheepdog. Zero fields in opts take DefaultOptions values,
// except Retries and RequestsPerSecond where zero is meaningful.
func New(opts Options) *Sheepdog {
	def := DefaultOptions()
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	if opts.RetryWaitMin <= 0 {
		opts.RetryWaitMin = def.RetryWaitMin
	}
	if opts.RetryWaitMax <= 0 {
		opts.RetryWaitMax = def.RetryWaitMax
	}
	if opts.UserAgent == "" {
		opts.UserAgent = def.UserAgent
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = def.MaxBytes
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	// Retries happen in the transport; resty itself does not retry
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = opts.Retries
	retryClient.RetryWaitMin = opts.RetryWaitMin
	retryClient.RetryWaitMax = opts.RetryWaitMax
	retryClient.Logger = retryLogger{opts.Logger.Sugar()}
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler

	restyClient := resty.NewWithClient(retryClient.StandardClient())
	restyClient.
		SetTimeout(opts.Timeout).
		SetRetryCount(0).
		SetResponseBodyLimit(int(opts.MaxBytes)).
		SetHeader("User-Agent", opts.UserAgent).
		SetHeader("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	limiter := rate.NewLimiter(rate.Inf, 0) // Unlimited by default
	if opts.RequestsPerSecond > 0 {
		burst := int(opts.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}

	logger := opts.Logger
	breakers := resilience.NewGroup(resilience.Settings{
		Probes:   1,
		Window:   60 * time.Second,
		Cooldown: 30 * time.Second,
		Trip: func(counts resilience.Counts) bool {
			return counts.FailureStreak >= 5
		},
		Healthy: func(err error) bool {
			// The host answered; only transport failures and 5xx count
			var statusErr *StatusError
			if errors.As(err, &statusErr) {
				return statusErr.StatusCode < 500
			}
			return err == nil || errors.Is(err, ErrNotHTML) || errors.Is(err, ErrTooLarge)
		},
		OnStateChange: func(name string, from, to resilience.State) {
			logger.Warn("Fetch circuit breaker changed state",
				zap.String("host", name),
				zap.Stringer("from", from),
				zap.Stringer("to", to))
		},
	})

	return &Sheepdog{
		client:   restyClient,
		limiter:  limiter,
		breakers: breakers,
		maxBytes: opts.MaxBytes,
		logger:   logger,
		metrics:  opts.Metrics,
	}
}

// Fetch downloads rawURL and returns its body. The body must look like a
// text document (HTML, XML or plain text).
func (s *Sheepdog) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	timer := monitoring.NewTimer()
	body, err := s.fetch(ctx, rawURL)
	if s.metrics != nil {
		s.metrics.RecordFetch(monitoring.Status(err), timer.Elapsed())
	}
	if err != nil {
		s.logger.Debug("Fetch failed", zap.String("url", rawURL), zap.Error(err))
		return nil, err
	}
	s.logger.Debug("Fetched document",
		zap.String("url", rawURL),
		zap.Int("bytes", len(body)),
		zap.Duration("duration", timer.Elapsed()))
	return body, nil
}

func (s *Sheepdog) fetch(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, rawURL)
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit error: %w", err)
	}

	return resilience.Call(s.breakers.Get(u.Host), func() ([]byte, error) {
		resp, err := s.client.R().SetContext(ctx).Get(u.String())
		if err != nil {
			if errors.Is(err, resty.ErrResponseBodyTooLarge) {
				return nil, fmt.Errorf("%w of %d bytes", ErrTooLarge, s.maxBytes)
			}
			return nil, fmt.Errorf("fetch %s: %w", u.Redacted(), err)
		}
		if !resp.IsSuccess() {
			return nil, &StatusError{URL: u.Redacted(), StatusCode: resp.StatusCode()}
		}

		body := resp.Body()
		if !isText(body) {
			return nil, fmt.Errorf("%w: detected %s", ErrNotHTML, mimetype.Detect(body).String())
		}
		return body, nil
	})
}

// isText reports whether body sniffs as a text format. HTML, XML and XHTML
// all descend from text/plain in the mimetype hierarchy.
func isText(body []byte) bool {
	for m := mimetype.Detect(body); m != nil; m = m.Parent() {
		if m.Is("text/plain") {
			return true
		}
	}
	return false
}

// BreakerStates returns the circuit breaker state per host.
func (s *Sheepdog) BreakerStates() map[string]resilience.State {
	return s.breakers.States()
}

// retryLogger adapts zap to retryablehttp.LeveledLogger.
type retryLogger struct {
	s *zap.SugaredLogger
}

func (l retryLogger) Error(msg string, kv ...interface{}) { l.s.Errorw(msg, kv...) }
func (l retryLogger) Warn(msg string, kv ...interface{})  { l.s.Warnw(msg, kv...) }
func (l retryLogger) Info(msg string, kv ...interface{})  { l.s.Debugw(msg, kv...) }
func (l retryLogger) Debug(msg string, kv ...interface{}) { l.s.Debugw(msg, kv...) }
