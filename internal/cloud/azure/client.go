// Package azure stores sfs blobs directly in an Azure Blob Storage container
// as block blobs. This file contains the client factory.
package azure

import (
	"context"
	"errors"
	"fmt"
	nethttp "net/http"
	"strings"
	"sync"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blockblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"

	"github.com/fossMeDaddy/sfs-cli/internal/http"
	"github.com/fossMeDaddy/sfs-cli/internal/logging"
	"github.com/fossMeDaddy/sfs-cli/internal/models"
	"github.com/fossMeDaddy/sfs-cli/internal/xerrors"
)

// Client wraps the Azure blob client with the container layout used for blobs.
//
// Thread-safe: All operations are safe for concurrent use.
type Client struct {
	client  *azblob.Client
	storage models.StorageInfo
	retry   http.Config
	logger  *logging.Logger

	// uploads maps multipart upload ids to pending block blobs.
	uploads   map[string]*pendingUpload
	uploadsMu sync.Mutex
}

// pendingUpload is a block blob whose blocks are staged but not committed.
type pendingUpload struct {
	blobName string
	md       *models.UploadBlobMetadata
}

// NewClient creates an Azure client for storage.
//
// Credentials are tried in order: a connection string, then a SAS token on
// the account (or endpoint) URL.
//
// Parameters:
//   - storage: container, account name or endpoint, key prefix
//   - creds: connection string or SAS token
//   - httpClient: shared HTTP client (proxy settings, connection pool)
//   - logger: optional logger
func NewClient(storage models.StorageInfo, creds models.AzureCredentials, httpClient *nethttp.Client, logger *logging.Logger) (*Client, error) {
	logger = logging.OrNop(logger)
	if storage.ConnectionSettings.Container == "" {
		return nil, fmt.Errorf("container is required")
	}

	opts := &azblob.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			// Replayable calls are retried by ExecuteWithRetry, streamed ones never.
			Retry: policy.RetryOptions{MaxRetries: -1},
		},
	}
	if httpClient != nil {
		opts.Transport = httpClient
	}

	var (
		client *azblob.Client
		err    error
	)
	if creds.ConnectionString != "" {
		client, err = azblob.NewClientFromConnectionString(creds.ConnectionString, opts)
	} else {
		var serviceURL string
		serviceURL, err = buildSASURL(storage, creds)
		if err != nil {
			return nil, err
		}
		client, err = azblob.NewClientWithNoCredential(serviceURL, opts)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure client: %w", err)
	}

	return &Client{
		client:  client,
		storage: storage,
		retry:   http.DefaultConfig(),
		logger:  logger,
		uploads: make(map[string]*pendingUpload),
	}, nil
}

// buildSASURL constructs the service URL with the SAS token appended.
func buildSASURL(storage models.StorageInfo, creds models.AzureCredentials) (string, error) {
	serviceURL := storage.ConnectionSettings.Endpoint
	if serviceURL == "" {
		accountName := storage.ConnectionSettings.AccountName
		if accountName == "" {
			return "", fmt.Errorf("Azure storage account name not found in connection settings")
		}
		// Format: https://{account}.blob.core.windows.net/?{sas_token}
		serviceURL = fmt.Sprintf("https://%s.blob.core.windows.net/", accountName)
	}

	sas := strings.TrimPrefix(creds.SASToken, "?")
	if sas == "" {
		return serviceURL, nil
	}
	if strings.Contains(serviceURL, "?") {
		return serviceURL + "&" + sas, nil
	}
	return serviceURL + "?" + sas, nil
}

// Container returns the container name.
func (c *Client) Container() string {
	return c.storage.ConnectionSettings.Container
}

// PathBase returns the path prefix for blob names.
func (c *Client) PathBase() string {
	return c.storage.ConnectionSettings.PathBase
}

func (c *Client) blobName(storageID string) string {
	base := strings.Trim(c.PathBase(), "/")
	if base == "" {
		return storageID
	}
	return base + "/" + storageID
}

func (c *Client) containerClient() *container.Client {
	return c.client.ServiceClient().NewContainerClient(c.Container())
}

func (c *Client) blockBlobClient(name string) *blockblob.Client {
	return c.containerClient().NewBlockBlobClient(name)
}

func (c *Client) blobClient(name string) *blob.Client {
	return c.containerClient().NewBlobClient(name)
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
			Msg("retrying Azure call")
	}
	return http.ExecuteWithRetry(ctx, cfg, func() error {
		return statusError(fn())
	})
}

// statusErr exposes an azcore response status to http.ClassifyError.
type statusErr struct {
	*azcore.ResponseError
}

func (e statusErr) HTTPStatusCode() int { return e.StatusCode }

func (e statusErr) Unwrap() error { return e.ResponseError }

func statusError(err error) error {
	var re *azcore.ResponseError
	if errors.As(err, &re) {
		return statusErr{re}
	}
	return err
}

// classify maps an SDK error to an sfs error kind.
func classify(op, name string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound, bloberror.ResourceNotFound):
		return xerrors.Wrap(xerrors.KindNotFound, op, name, err)
	case bloberror.HasCode(err, bloberror.BlobAlreadyExists, bloberror.ConditionNotMet):
		return xerrors.Wrap(xerrors.KindConflict, op, name, err)
	case bloberror.HasCode(err, bloberror.InvalidRange):
		return xerrors.Wrap(xerrors.KindInvalid, op, name, err)
	}

	var re *azcore.ResponseError
	if errors.As(err, &re) {
		switch re.StatusCode {
		case nethttp.StatusNotFound:
			return xerrors.Wrap(xerrors.KindNotFound, op, name, err)
		case nethttp.StatusConflict, nethttp.StatusPreconditionFailed:
			return xerrors.Wrap(xerrors.KindConflict, op, name, err)
		}
	}
	return xerrors.Wrap(xerrors.KindTransport, op, name, err)
}
