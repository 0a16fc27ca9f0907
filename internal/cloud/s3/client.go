// Package s3 stores sfs blobs directly in an S3-compatible bucket.
// This file contains the client factory and shared request helpers.
package s3

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	nethttp "net/http"
	"net/http/httptrace"
	"os"
	"path"
	"sync"
	"time"

	"github.com/Azure/go-ntlmssp"
	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	awscreds "github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/fossMeDaddy/sfs-cli/internal/http"
	"github.com/fossMeDaddy/sfs-cli/internal/logging"
	"github.com/fossMeDaddy/sfs-cli/internal/models"
	"github.com/fossMeDaddy/sfs-cli/internal/xerrors"
)

// defaultRegion is used for custom endpoints configured without a region.
const defaultRegion = "us-east-1"

// envCABundle names a PEM file of extra root certificates, as in the AWS CLI.
const envCABundle = "AWS_CA_BUNDLE"

// Client wraps the AWS S3 client with the bucket layout used for blobs.
//
// Thread-safe: All operations are safe for concurrent use.
type Client struct {
	client  *s3.Client
	storage models.StorageInfo
	retry   http.Config
	logger  *logging.Logger

	// uploads maps multipart upload ids to their object keys.
	uploads   map[string]string
	uploadsMu sync.Mutex
}

// NewClient creates an S3 client for storage.
//
// Parameters:
//   - ctx: Context for loading the AWS configuration
//   - storage: bucket, region, optional endpoint and key prefix
//   - creds: static credentials; empty AccessKeyID uses the default AWS chain
//   - httpClient: shared HTTP client (proxy settings, connection pool)
//   - logger: optional logger
func NewClient(ctx context.Context, storage models.StorageInfo, creds models.S3Credentials, httpClient *nethttp.Client, logger *logging.Logger) (*Client, error) {
	logger = logging.OrNop(logger)
	settings := storage.ConnectionSettings
	if settings.Container == "" {
		return nil, fmt.Errorf("bucket is required")
	}

	region := settings.Region
	if region == "" {
		region = defaultRegion
	}

	opts := []func(*config.LoadOptions) error{
		config.WithRegion(region),
		// Replayable calls are retried by ExecuteWithRetry, streamed ones never.
		config.WithRetryMaxAttempts(1),
	}
	if creds.AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(awscreds.NewStaticCredentialsProvider(
			creds.AccessKeyID,
			creds.SecretKey,
			creds.SessionToken,
		)))
	}

	t := time.Now()
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	logger.Debug().Dur("took", time.Since(t)).Str("region", region).Msg("loaded AWS config")

	// The SDK can only apply AWS_CA_BUNDLE to its own buildable client, so
	// the shared client is handed to S3 directly with the bundle added here.
	if httpClient != nil {
		if bundle := os.Getenv(envCABundle); bundle != "" {
			if httpClient, err = withCABundle(httpClient, bundle); err != nil {
				return nil, err
			}
		}
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if httpClient != nil {
			o.HTTPClient = httpClient
		}
		if settings.Endpoint != "" {
			o.BaseEndpoint = aws.String(settings.Endpoint)
			// Most S3-compatible stores reject the SDK's default trailing checksums.
			o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
			o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
		}
		o.UsePathStyle = settings.PathStyle
	})

	return &Client{
		client:  client,
		storage: storage,
		retry:   http.DefaultConfig(),
		logger:  logger,
		uploads: make(map[string]string),
	}, nil
}

// withCABundle returns a copy of client whose transport also trusts the PEM
// certificates in path. NTLM-wrapped transports are unwrapped and rewrapped.
func withCABundle(client *nethttp.Client, path string) (*nethttp.Client, error) {
	pemData, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA bundle: %w", err)
	}

	rt := client.Transport
	if rt == nil {
		rt = nethttp.DefaultTransport
	}
	var base *nethttp.Transport
	ntlm := false
	switch t := rt.(type) {
	case *nethttp.Transport:
		base = t
	case ntlmssp.Negotiator:
		inner, ok := t.RoundTripper.(*nethttp.Transport)
		if !ok {
			return nil, fmt.Errorf("cannot apply %s to transport %T", envCABundle, t.RoundTripper)
		}
		base, ntlm = inner, true
	default:
		return nil, fmt.Errorf("cannot apply %s to transport %T", envCABundle, rt)
	}

	tr := base.Clone()
	if tr.TLSClientConfig == nil {
		tr.TLSClientConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	pool := tr.TLSClientConfig.RootCAs
	if pool == nil {
		if pool, err = x509.SystemCertPool(); err != nil {
			pool = x509.NewCertPool()
		}
	} else {
		pool = pool.Clone()
	}
	if !pool.AppendCertsFromPEM(pemData) {
		return nil, fmt.Errorf("no certificates found in CA bundle %s", path)
	}
	tr.TLSClientConfig.RootCAs = pool

	c := *client
	c.Transport = tr
	if ntlm {
		c.Transport = ntlmssp.Negotiator{RoundTripper: tr}
	}
	return &c, nil
}

// Bucket returns the S3 bucket name.
func (c *Client) Bucket() string {
	return c.storage.ConnectionSettings.Container
}

// PathBase returns the path prefix for object keys.
func (c *Client) PathBase() string {
	return c.storage.ConnectionSettings.PathBase
}

// objectKey returns the key holding the blob with storageID.
func (c *Client) objectKey(storageID string) string {
	return path.Join(c.PathBase(), storageID)
}

// RetryWithBackoff executes fn with exponential backoff. Only use it for
// calls whose request can be replayed.
func (c *Client) RetryWithBackoff(ctx context.Context, operation string, fn func() error) error {
	cfg := c.retry
	cfg.OnRetry = func(attempt int, err error, errType http.ErrorType) {
		c.logger.Debug().
			Err(err).
			Str("op", operation).
			Int("attempt", attempt).
			Int("max", cfg.MaxRetries).
			Str("error_type", http.ErrorTypeName(errType)).
			Msg("retrying S3 call")
	}
	return http.ExecuteWithRetry(ctx, cfg, fn)
}

// TraceContext adds HTTP connection tracing when SFS_DEBUG_HTTP=true.
// This is useful for debugging connection reuse and TLS handshake overhead.
func (c *Client) TraceContext(ctx context.Context, operation string) context.Context {
	if os.Getenv("SFS_DEBUG_HTTP") != "true" {
		return ctx
	}

	var handshakeStart time.Time
	return httptrace.WithClientTrace(ctx, &httptrace.ClientTrace{
		GotConn: func(info httptrace.GotConnInfo) {
			c.logger.Debug().Str("op", operation).Bool("reused", info.Reused).Msg("got connection")
		},
		TLSHandshakeStart: func() {
			handshakeStart = time.Now()
		},
		TLSHandshakeDone: func(_ tls.ConnectionState, _ error) {
			c.logger.Debug().Str("op", operation).Dur("took", time.Since(handshakeStart)).Msg("TLS handshake")
		},
	})
}

// classify maps an SDK error to an sfs error kind.
func classify(op, key string, err error) error {
	if err == nil {
		return nil
	}
	var (
		noKey    *types.NoSuchKey
		notFound *types.NotFound
		noUpload *types.NoSuchUpload
	)
	if errors.As(err, &noKey) || errors.As(err, &notFound) || errors.As(err, &noUpload) {
		return xerrors.Wrap(xerrors.KindNotFound, op, key, err)
	}

	var re *awshttp.ResponseError
	if errors.As(err, &re) {
		switch re.HTTPStatusCode() {
		case nethttp.StatusNotFound:
			return xerrors.Wrap(xerrors.KindNotFound, op, key, err)
		case nethttp.StatusConflict, nethttp.StatusPreconditionFailed:
			return xerrors.Wrap(xerrors.KindConflict, op, key, err)
		case nethttp.StatusRequestedRangeNotSatisfiable:
			return xerrors.Wrap(xerrors.KindInvalid, op, key, err)
		}
	}
	return xerrors.Wrap(xerrors.KindTransport, op, key, err)
}

// maxMetadataBytes is the S3 limit on user metadata per object.
const maxMetadataBytes = 2 << 10

// ensureMetadataFits rejects metadata S3 would refuse after the body was sent.
func ensureMetadataFits(op string, meta map[string]string) error {
	total := 0
	for k, v := range meta {
		total += len(k) + len(v)
	}
	if total > maxMetadataBytes {
		return xerrors.Errorf(xerrors.KindInvalid, op, "object metadata is %d bytes, S3 allows %d", total, maxMetadataBytes)
	}
	return nil
}
