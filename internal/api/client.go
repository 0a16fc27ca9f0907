// Package api is the SimpleFS REST backend used by the transfer engine.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	nethttp "net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/fossMeDaddy/sfs-cli/internal/config"
	"github.com/fossMeDaddy/sfs-cli/internal/http"
	"github.com/fossMeDaddy/sfs-cli/internal/logging"
	"github.com/fossMeDaddy/sfs-cli/internal/models"
	"github.com/fossMeDaddy/sfs-cli/internal/ratelimit"
	"github.com/fossMeDaddy/sfs-cli/internal/xerrors"
)

// Client represents the SimpleFS API client
type Client struct {
	// httpClient retries; only used for requests whose body can be replayed.
	httpClient *nethttp.Client
	// streamClient sends streamed bodies exactly once.
	streamClient *nethttp.Client

	baseURL string
	token   string
	limiter *ratelimit.RateLimiter // control-plane calls only
	logger  *logging.Logger
}

// NewClient creates a new API client
func NewClient(cfg *config.Config, logger *logging.Logger) (*Client, error) {
	if cfg.APIURL == "" {
		return nil, fmt.Errorf("API base URL is empty: set api_url in %s or SFS_API_URL", "~/.sfs/config.toml")
	}
	base, err := http.CreateOptimizedClient(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to configure HTTP client: %w", err)
	}
	return newClient(base, cfg.APIURL, cfg.Token, http.DefaultConfig(), logger), nil
}

func newClient(base *nethttp.Client, baseURL, token string, retry http.Config, logger *logging.Logger) *Client {
	logger = logging.OrNop(logger)
	c := &Client{
		streamClient: base,
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		token:        token,
		limiter:      ratelimit.NewControlPlaneRateLimiter().WithLogger(logger),
		logger:       logger,
	}
	rc := http.NewRetryableClient(base, retry, logger)
	rc.ResponseLogHook = func(_ retryablehttp.Logger, resp *nethttp.Response) {
		c.observe(resp)
	}
	c.httpClient = rc.StandardClient()
	return c
}

// observe feeds server throttling back into the limiter so concurrent
// callers slow down together.
func (c *Client) observe(resp *nethttp.Response) {
	if resp == nil || resp.StatusCode != nethttp.StatusTooManyRequests {
		return
	}
	cooldown := ratelimit.DefaultCooldown
	if s := resp.Header.Get("Retry-After"); s != "" {
		if secs, err := strconv.Atoi(s); err == nil && secs > 0 {
			cooldown = time.Duration(secs) * time.Second
		}
	}
	c.limiter.Drain()
	c.limiter.SetCooldown(cooldown)
	c.logger.Warn().
		Str("path", resp.Request.URL.Path).
		Dur("cooldown", cooldown).
		Msg("throttled by API")
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*nethttp.Request, error) {
	req, err := nethttp.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// doJSON performs a rate-limited control-plane request with a JSON body.
// On success the caller owns the response body.
func (c *Client) doJSON(ctx context.Context, op, method, path string, in any) (*nethttp.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, xerrors.Wrap(xerrors.KindTransport, op, path, fmt.Errorf("rate limiter cancelled: %w", err))
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.KindInvalid, op, path, fmt.Errorf("failed to marshal request body: %w", err))
		}
		body = bytes.NewReader(data)
	}

	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.KindInternal, op, path, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(c.httpClient, req, op, path)
}

// send executes req and maps failures to classified errors. On success the
// caller owns the response body.
func (c *Client) send(client *nethttp.Client, req *nethttp.Request, op, path string) (*nethttp.Response, error) {
	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		c.logger.Debug().Err(err).Str("method", req.Method).Str("path", path).Msg("API call failed")
		return nil, xerrors.Wrap(xerrors.KindTransport, op, path, fmt.Errorf("request failed: %w", err))
	}

	c.logger.Debug().
		Str("method", req.Method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("took", time.Since(start)).
		Msg("API call")

	if client == c.streamClient {
		c.observe(resp)
	}
	if err := checkResponse(op, path, resp); err != nil {
		resp.Body.Close()
		return nil, err
	}
	return resp, nil
}

// callJSON performs doJSON and decodes the envelope's data.
func callJSON[T any](ctx context.Context, c *Client, op, method, path string, in any) (*T, error) {
	resp, err := c.doJSON(ctx, op, method, path, in)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out T
	if err := decodeEnvelope(op, path, resp.Body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// decodeEnvelope unpacks {message, data, error} into out.
func decodeEnvelope[T any](op, path string, r io.Reader, out *T) error {
	var env models.APIResponse[T]
	if err := json.NewDecoder(r).Decode(&env); err != nil {
		return xerrors.Wrap(xerrors.KindTransport, op, path, fmt.Errorf("failed to decode response: %w", err))
	}
	if env.Data == nil {
		return xerrors.Errorf(xerrors.KindTransport, op, "invalid response for %s: message=%q error=%q", path, env.Message, env.Error)
	}
	*out = *env.Data
	return nil
}

func escape(id string) string {
	return url.PathEscape(id)
}
