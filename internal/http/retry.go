package http

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	nethttp "net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/fossMeDaddy/sfs-cli/internal/constants"
	"github.com/fossMeDaddy/sfs-cli/internal/logging"
)

// ErrorType represents different classes of errors for retry strategy
type ErrorType int

const (
	// ErrorTypeSuccess indicates operation succeeded
	ErrorTypeSuccess ErrorType = iota
	// ErrorTypeCredential indicates authentication/authorization failure (401, 403, expired token)
	ErrorTypeCredential
	// ErrorTypeNetwork indicates network/connection issues (timeouts, connection refused, etc.)
	ErrorTypeNetwork
	// ErrorTypeRetryable indicates server errors that can be retried (500, 502, 503, throttling)
	ErrorTypeRetryable
	// ErrorTypeFatal indicates client errors that should not be retried (400, 404, invalid request)
	ErrorTypeFatal
)

// Config holds retry parameters for replayable API requests
type Config struct {
	// MaxRetries is the maximum number of retry attempts
	MaxRetries int
	// InitialDelay is the base delay for exponential backoff
	InitialDelay time.Duration
	// MaxDelay is the maximum delay between retries
	MaxDelay time.Duration
	// OnRetry is called before each retry (optional)
	OnRetry func(attempt int, err error, errType ErrorType)
}

// DefaultConfig returns a Config with the package defaults
func DefaultConfig() Config {
	return Config{
		MaxRetries:   constants.MaxRetries,
		InitialDelay: constants.RetryInitialDelay,
		MaxDelay:     constants.RetryMaxDelay,
	}
}

// ClassifyError determines the error type of a transport error from its message.
// Used when no HTTP response is available (dial failures, resets, SDK errors).
func ClassifyError(err error) ErrorType {
	if err == nil {
		return ErrorTypeSuccess
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ErrorTypeFatal
	}

	// SDK response errors carry the status code
	var sc interface{ HTTPStatusCode() int }
	if errors.As(err, &sc) && sc.HTTPStatusCode() > 0 {
		return ClassifyResponse(&nethttp.Response{StatusCode: sc.HTTPStatusCode()}, nil)
	}

	errStr := strings.ToLower(err.Error())

	// Credential-related errors; the token is static so retrying cannot help
	if strings.Contains(errStr, "expiredtoken") ||
		strings.Contains(errStr, "invalid token") ||
		strings.Contains(errStr, "unauthorized") ||
		strings.Contains(errStr, "authenticationfailed") ||
		strings.Contains(errStr, "authentication failed") ||
		strings.Contains(errStr, "invalid sas") ||
		strings.Contains(errStr, "signature not valid") ||
		strings.Contains(errStr, "signaturedoesnotmatch") {
		return ErrorTypeCredential
	}

	// Network errors - retryable with backoff
	if strings.Contains(errStr, "tls handshake timeout") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "i/o timeout") ||
		strings.Contains(errStr, "unexpected eof") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "broken pipe") ||
		strings.Contains(errStr, "timeout") {
		return ErrorTypeNetwork
	}

	// Server-side and throttling errors from S3/Azure style messages
	if strings.Contains(errStr, "requesttimeout") ||
		strings.Contains(errStr, "internalerror") ||
		strings.Contains(errStr, "serviceunavailable") ||
		strings.Contains(errStr, "slowdown") ||
		strings.Contains(errStr, "throttl") ||
		strings.Contains(errStr, "serverbusy") ||
		strings.Contains(errStr, "server busy") ||
		strings.Contains(errStr, "operationtimeout") {
		return ErrorTypeRetryable
	}

	// Unknown errors - treat as fatal to avoid retrying unexpected failures
	return ErrorTypeFatal
}

// ClassifyResponse determines the error type of a completed round trip.
// The status code wins when a response is present.
func ClassifyResponse(resp *nethttp.Response, err error) ErrorType {
	if err != nil {
		return ClassifyError(err)
	}
	if resp == nil {
		return ErrorTypeFatal
	}
	switch code := resp.StatusCode; {
	case code < 400:
		return ErrorTypeSuccess
	case code == nethttp.StatusUnauthorized || code == nethttp.StatusForbidden:
		return ErrorTypeCredential
	case code == nethttp.StatusTooManyRequests || code == nethttp.StatusRequestTimeout:
		return ErrorTypeRetryable
	case code >= 500 && code != nethttp.StatusNotImplemented:
		return ErrorTypeRetryable
	default:
		return ErrorTypeFatal
	}
}

// ExecuteWithRetry runs operation until it succeeds, fails fatally, or
// MaxRetries attempts are used. Only network and server-side failures are
// retried; operation must be safe to repeat.
func ExecuteWithRetry(ctx context.Context, config Config, operation func() error) error {
	attempts := config.MaxRetries
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := operation()
		if err == nil {
			return nil
		}
		lastErr = err

		errType := ClassifyError(err)
		if errType != ErrorTypeNetwork && errType != ErrorTypeRetryable {
			return err
		}
		if attempt == attempts-1 {
			break
		}

		if config.OnRetry != nil {
			config.OnRetry(attempt+1, err, errType)
		}
		timer := time.NewTimer(CalculateBackoff(attempt, config.InitialDelay, config.MaxDelay))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return fmt.Errorf("operation failed after %d attempts: %w", attempts, lastErr)
}

// CheckRetry is a retryablehttp.CheckRetry that retries network and
// server-side failures only.
func CheckRetry(ctx context.Context, resp *nethttp.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	switch ClassifyResponse(resp, err) {
	case ErrorTypeNetwork, ErrorTypeRetryable:
		return true, nil
	default:
		// Surface the transport error unchanged; status codes are mapped by the caller.
		return false, err
	}
}

// CalculateBackoff returns exponential backoff duration with full jitter
// Full jitter prevents thundering herd problem when many clients retry simultaneously
//
// Formula: random(0, min(maxDelay, initialDelay * 2^attempt))
func CalculateBackoff(attempt int, initialDelay, maxDelay time.Duration) time.Duration {
	if attempt <= 0 || initialDelay <= 0 {
		return 0
	}

	base := time.Duration(1<<uint(min(attempt, 30))) * initialDelay
	if base > maxDelay || base <= 0 {
		base = maxDelay
	}
	if base <= 0 {
		return 0
	}

	return time.Duration(rand.Int63n(int64(base)))
}

// Backoff is a retryablehttp.Backoff honoring Retry-After on 429 and 503
// responses and otherwise using CalculateBackoff.
func Backoff(minDelay, maxDelay time.Duration, attemptNum int, resp *nethttp.Response) time.Duration {
	if resp != nil && (resp.StatusCode == nethttp.StatusTooManyRequests || resp.StatusCode == nethttp.StatusServiceUnavailable) {
		if s := resp.Header.Get("Retry-After"); s != "" {
			if secs, err := strconv.Atoi(s); err == nil && secs >= 0 {
				d := time.Duration(secs) * time.Second
				if d > maxDelay {
					d = maxDelay
				}
				return d
			}
		}
	}
	return CalculateBackoff(attemptNum+1, minDelay, maxDelay)
}

// retryLogger implements the retryablehttp.LeveledLogger interface on top of zerolog
type retryLogger struct {
	logger *logging.Logger
}

func (l *retryLogger) Error(msg string, keysAndValues ...interface{}) {
	l.logger.Error().Fields(keysAndValues).Msg(msg)
}

func (l *retryLogger) Info(msg string, keysAndValues ...interface{}) {
	// Only log errors and warnings, not every request
}

func (l *retryLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l *retryLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.logger.Warn().Fields(keysAndValues).Msg(msg)
}

// NewRetryableClient wraps base with the retry policy. Only requests whose
// body can be replayed should go through it.
func NewRetryableClient(base *nethttp.Client, cfg Config, logger *logging.Logger) *retryablehttp.Client {
	rc := retryablehttp.NewClient()
	rc.HTTPClient = base
	rc.RetryMax = cfg.MaxRetries
	rc.RetryWaitMin = cfg.InitialDelay
	rc.RetryWaitMax = cfg.MaxDelay
	rc.CheckRetry = CheckRetry
	rc.Backoff = Backoff
	rc.Logger = &retryLogger{logger: logging.OrNop(logger)}
	// Hand the last response back instead of a generic "giving up" error so
	// the caller can map its status code.
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	return rc
}

// ErrorTypeName returns a human-readable name for an ErrorType
func ErrorTypeName(errType ErrorType) string {
	switch errType {
	case ErrorTypeSuccess:
		return "success"
	case ErrorTypeCredential:
		return "credential"
	case ErrorTypeNetwork:
		return "network"
	case ErrorTypeRetryable:
		return "retryable"
	case ErrorTypeFatal:
		return "fatal"
	default:
		return "unknown"
	}
}
