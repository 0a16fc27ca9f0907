package transfer

import (
	"context"
	"io"

	"github.com/fossMeDaddy/sfs-cli/internal/models"
)

// SimpleUploader stores a blob sent as one continuous body.
// size is the exact body length, or -1 when unknown.
type SimpleUploader interface {
	PutBlob(ctx context.Context, md *models.UploadBlobMetadata, body io.Reader, size int64) (*models.FsFile, error)
}

// MultipartUploader is the three-call multipart protocol.
type MultipartUploader interface {
	CreateMultipart(ctx context.Context, md *models.UploadBlobMetadata) (uploadID string, err error)
	UploadPart(ctx context.Context, uploadID string, partNumber int32, body io.Reader, size int64) (models.PartResult, error)
	CompleteMultipart(ctx context.Context, uploadID string, md *models.UploadBlobMetadata, parts []models.PartResult) (*models.FsFile, error)
}

// Aborter is implemented by backends that can cancel a multipart session.
type Aborter interface {
	AbortMultipart(ctx context.Context, uploadID string) error
}

// Fetcher reads blobs and their metadata.
type Fetcher interface {
	Metadata(ctx context.Context, storageID string) (*models.FsFile, error)
	Open(ctx context.Context, storageID string) (io.ReadCloser, error)
}

// RangeFetcher is implemented by backends that serve byte ranges.
type RangeFetcher interface {
	OpenRange(ctx context.Context, storageID string, offset, length int64) (io.ReadCloser, error)
}

// Backend is everything the Engine needs from a storage service.
type Backend interface {
	SimpleUploader
	MultipartUploader
	Fetcher
}
