package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

// TestClassifyError verifies message-based classification of transport errors.
func TestClassifyError(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorType
	}{
		{nil, ErrorTypeSuccess},
		{fmt.Errorf("read tcp: connection reset by peer"), ErrorTypeNetwork},
		{fmt.Errorf("net/http: TLS handshake timeout"), ErrorTypeNetwork},
		{fmt.Errorf("unexpected EOF"), ErrorTypeNetwork},
		{fmt.Errorf("api error SlowDown: please reduce your request rate"), ErrorTypeRetryable},
		{fmt.Errorf("ServerBusy: the server is busy"), ErrorTypeRetryable},
		{fmt.Errorf("ExpiredToken: the provided token has expired"), ErrorTypeCredential},
		{fmt.Errorf("AuthenticationFailed"), ErrorTypeCredential},
		{fmt.Errorf("something odd"), ErrorTypeFatal},
		{context.Canceled, ErrorTypeFatal},
		{fmt.Errorf("wrapped: %w", context.DeadlineExceeded), ErrorTypeFatal},
	}
	for _, tt := range tests {
		name := "nil"
		if tt.err != nil {
			name = tt.err.Error()
		}
		t.Run(name, func(t *testing.T) {
			if got := ClassifyError(tt.err); got != tt.want {
				t.Errorf("ClassifyError() = %s, want %s", ErrorTypeName(got), ErrorTypeName(tt.want))
			}
		})
	}
}

// TestClassifyResponse verifies status codes take precedence.
func TestClassifyResponse(t *testing.T) {
	tests := []struct {
		status int
		want   ErrorType
	}{
		{200, ErrorTypeSuccess},
		{206, ErrorTypeSuccess},
		{400, ErrorTypeFatal},
		{401, ErrorTypeCredential},
		{403, ErrorTypeCredential},
		{404, ErrorTypeFatal},
		{409, ErrorTypeFatal},
		{429, ErrorTypeRetryable},
		{500, ErrorTypeRetryable},
		{501, ErrorTypeFatal},
		{503, ErrorTypeRetryable},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.status), func(t *testing.T) {
			got := ClassifyResponse(&nethttp.Response{StatusCode: tt.status}, nil)
			if got != tt.want {
				t.Errorf("ClassifyResponse(%d) = %s, want %s", tt.status, ErrorTypeName(got), ErrorTypeName(tt.want))
			}
		})
	}
}

// TestCheckRetry_ContextCancelled verifies no retry once the context is done.
func TestCheckRetry_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	retry, err := CheckRetry(ctx, &nethttp.Response{StatusCode: 503}, nil)
	if retry {
		t.Error("expected no retry after cancellation")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

// TestCalculateBackoff verifies the jittered delay stays within bounds.
func TestCalculateBackoff(t *testing.T) {
	if d := CalculateBackoff(0, time.Second, time.Minute); d != 0 {
		t.Errorf("attempt 0 should not wait, got %v", d)
	}
	for attempt := 1; attempt < 64; attempt++ {
		d := CalculateBackoff(attempt, 10*time.Millisecond, 200*time.Millisecond)
		if d < 0 || d >= 200*time.Millisecond {
			t.Fatalf("attempt %d: backoff %v out of range", attempt, d)
		}
	}
}

// TestBackoff_RetryAfter verifies Retry-After is honored and capped.
func TestBackoff_RetryAfter(t *testing.T) {
	resp := &nethttp.Response{StatusCode: 429, Header: nethttp.Header{}}
	resp.Header.Set("Retry-After", "2")
	if d := Backoff(time.Millisecond, 10*time.Second, 0, resp); d != 2*time.Second {
		t.Errorf("expected 2s, got %v", d)
	}
	if d := Backoff(time.Millisecond, time.Second, 0, resp); d != time.Second {
		t.Errorf("expected cap at 1s, got %v", d)
	}
}

// TestRetryableClient_RetriesServerErrors verifies 5xx responses are retried
// and 4xx responses are returned as-is.
func TestRetryableClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		body, _ := io.ReadAll(r.Body)
		if string(body) != "payload" {
			t.Errorf("body not replayed: %q", body)
		}
		switch r.URL.Path {
		case "/flaky":
			if calls.Add(1) < 3 {
				w.WriteHeader(nethttp.StatusBadGateway)
				return
			}
			w.WriteHeader(nethttp.StatusOK)
		case "/missing":
			calls.Add(1)
			w.WriteHeader(nethttp.StatusNotFound)
		}
	}))
	defer srv.Close()

	cfg := Config{MaxRetries: 4, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
	rc := NewRetryableClient(srv.Client(), cfg, nil).StandardClient()

	resp, err := rc.Post(srv.URL+"/flaky", "text/plain", strings.NewReader("payload"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != nethttp.StatusOK {
		t.Errorf("expected 200 after retries, got %d", resp.StatusCode)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("expected 3 attempts, got %d", got)
	}

	calls.Store(0)
	resp, err = rc.Post(srv.URL+"/missing", "text/plain", strings.NewReader("payload"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != nethttp.StatusNotFound {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("expected no retry on 404, got %d attempts", got)
	}
}

type statusErr int

func (e statusErr) Error() string       { return fmt.Sprintf("status %d", int(e)) }
func (e statusErr) HTTPStatusCode() int { return int(e) }

func TestClassifyErrorUsesStatusCode(t *testing.T) {
	if got := ClassifyError(fmt.Errorf("wrapped: %w", statusErr(503))); got != ErrorTypeRetryable {
		t.Errorf("503: got %s", ErrorTypeName(got))
	}
	if got := ClassifyError(statusErr(404)); got != ErrorTypeFatal {
		t.Errorf("404: got %s", ErrorTypeName(got))
	}
}

func TestExecuteWithRetry(t *testing.T) {
	cfg := Config{MaxRetries: 3, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}

	t.Run("retries transient failures", func(t *testing.T) {
		var calls, retries int
		c := cfg
		c.OnRetry = func(int, error, ErrorType) { retries++ }
		err := ExecuteWithRetry(context.Background(), c, func() error {
			calls++
			if calls < 3 {
				return statusErr(503)
			}
			return nil
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if calls != 3 || retries != 2 {
			t.Errorf("calls=%d retries=%d, want 3 and 2", calls, retries)
		}
	})

	t.Run("stops on fatal", func(t *testing.T) {
		calls := 0
		err := ExecuteWithRetry(context.Background(), cfg, func() error {
			calls++
			return statusErr(404)
		})
		if err == nil || calls != 1 {
			t.Errorf("calls=%d err=%v, want one call and an error", calls, err)
		}
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		calls := 0
		err := ExecuteWithRetry(context.Background(), cfg, func() error {
			calls++
			return errors.New("connection reset by peer")
		})
		if err == nil || !strings.Contains(err.Error(), "after 3 attempts") {
			t.Errorf("unexpected error: %v", err)
		}
		if calls != 3 {
			t.Errorf("calls=%d, want 3", calls)
		}
	})

	t.Run("honors cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := ExecuteWithRetry(ctx, cfg, func() error { return nil })
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})
}
