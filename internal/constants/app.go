package constants

import (
	"time"
)

// Service endpoints
const (
	// DefaultAPIURL - base URL of the SimpleFS API
	DefaultAPIURL = "https://api.simplefs.io"

	// HeaderUploadMetadata - request header carrying the JSON-encoded upload metadata
	HeaderUploadMetadata = "upload-metadata"

	// APIErrAlreadyExists - error code returned when the target path is taken
	APIErrAlreadyExists = "ERR_ALREADY_EXISTS"
)

// Block and transfer sizing
const (
	// BlockSize - plaintext bytes read from the source per block (256 KB)
	// Each encrypted block grows by the cipher overhead (17 bytes).
	BlockSize = 256 * 1024

	// MultipartThreshold - sources at or above this size use a multipart upload (8 MB)
	// Also used as the part size, so every part except the last is exactly this long.
	MultipartThreshold = 8 * 1024 * 1024

	// MinPartSize - smallest part the S3 multipart API accepts (5 MB, except last part)
	MinPartSize = 5 * 1024 * 1024

	// DefaultConcurrency - parts uploaded or downloaded at once
	DefaultConcurrency = 4

	// MaxConcurrency - upper bound accepted from configuration
	MaxConcurrency = 32

	// DefaultParallelFiles - files uploaded at once by a recursive upload
	DefaultParallelFiles = 4

	// CopyBufferSize - buffer for pass-through copies of network streams (256 KB)
	CopyBufferSize = 256 * 1024
)

// Key derivation (argon2id)
const (
	// KDFTime - argon2 passes; tuned for interactive CLI latency
	KDFTime = 1

	// KDFMemoryKiB - argon2 memory cost (64 MB)
	KDFMemoryKiB = 64 * 1024

	// KDFThreads - argon2 parallelism
	KDFThreads = 4
)

// Retry configuration (transport only, the transfer core never retries)
const (
	// MaxRetries - maximum number of retries for replayable API requests
	MaxRetries = 5

	// RetryInitialDelay - initial delay before first retry (200ms)
	RetryInitialDelay = 200 * time.Millisecond

	// RetryMaxDelay - maximum delay between retries (15s)
	RetryMaxDelay = 15 * time.Second
)

// HTTP Client Timeouts
const (
	// HTTPIdleConnTimeout - how long to keep idle connections open (90 seconds)
	HTTPIdleConnTimeout = 90 * time.Second

	// HTTPTLSHandshakeTimeout - timeout for TLS handshake (60 seconds)
	HTTPTLSHandshakeTimeout = 60 * time.Second

	// HTTPExpectContinueTimeout - timeout for 100-continue response (1 second)
	HTTPExpectContinueTimeout = 1 * time.Second

	// HTTPDialTimeout - timeout for establishing connection (30 seconds)
	HTTPDialTimeout = 30 * time.Second

	// HTTPDialKeepAlive - keep-alive period for dialer (30 seconds)
	HTTPDialKeepAlive = 30 * time.Second

	// ProxyWarmupTimeout - budget for the optional proxy warmup request (15 seconds)
	ProxyWarmupTimeout = 15 * time.Second

	// DefaultProxyPort - used when a proxy host is configured without a port
	DefaultProxyPort = 8080
)

// UI Updates
const (
	// ProgressUpdateInterval - minimum interval between progress bar refreshes (100ms)
	ProgressUpdateInterval = 100 * time.Millisecond
)

// Naming
const (
	// UntitledPrefix - name prefix for uploads read from stdin without a name
	UntitledPrefix = "untitled_"

	// RandomNameLength - length of the random suffix of generated names
	RandomNameLength = 24

	// UnknownMimeType - content type when none can be detected
	UnknownMimeType = "application/octet-stream"

	// ArchiveMimeType - content type of bundled multi-file uploads
	ArchiveMimeType = "application/gzip"

	// TarMimeType - content type of uncompressed bundles (--no-compress)
	TarMimeType = "application/x-tar"
)
