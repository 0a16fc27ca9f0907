package azure

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blockblob"
	"github.com/google/uuid"

	"github.com/fossMeDaddy/sfs-cli/internal/cloud"
	"github.com/fossMeDaddy/sfs-cli/internal/constants"
	"github.com/fossMeDaddy/sfs-cli/internal/models"
	"github.com/fossMeDaddy/sfs-cli/internal/util/buffers"
	"github.com/fossMeDaddy/sfs-cli/internal/xerrors"
)

// uploadStreamBlockSize is the block size UploadStream buffers for simple uploads.
const uploadStreamBlockSize = 4 * 1024 * 1024

// blockID derives the base64 block id of a part. All ids of a blob must
// have the same length, hence the zero padding.
func blockID(partNumber int32) string {
	return base64.StdEncoding.EncodeToString([]byte(fmt.Sprintf("block-%06d", partNumber)))
}

// blobOptions converts upload metadata into Azure headers and metadata.
func blobOptions(op string, md *models.UploadBlobMetadata) (*blob.HTTPHeaders, map[string]*string, error) {
	meta, err := cloud.EncodeMetadata(md)
	if err != nil {
		return nil, nil, xerrors.Wrap(xerrors.KindInvalid, op, "", err)
	}
	azMeta := make(map[string]*string, len(meta))
	for k, v := range meta {
		// Azure metadata names must be C# identifiers.
		azMeta[strings.ReplaceAll(k, "-", "_")] = to.Ptr(v)
	}

	headers := &blob.HTTPHeaders{BlobContentType: to.Ptr(constants.UnknownMimeType)}
	if md != nil && md.ContentType != "" {
		headers.BlobContentType = to.Ptr(md.ContentType)
	}
	if md != nil && md.CacheMaxAgeSeconds > 0 {
		headers.BlobCacheControl = to.Ptr("max-age=" + strconv.Itoa(md.CacheMaxAgeSeconds))
	}
	return headers, azMeta, nil
}

// PutBlob streams body into a new block blob. UploadStream buffers blocks
// itself, so unknown sizes need no spooling.
func (c *Client) PutBlob(ctx context.Context, md *models.UploadBlobMetadata, body io.Reader, size int64) (*models.FsFile, error) {
	const op = "upload blob"
	headers, meta, err := blobOptions(op, md)
	if err != nil {
		return nil, err
	}

	storageID := uuid.NewString()
	name := c.blobName(storageID)
	counter := &countingReader{r: body}
	timer := cloud.StartTimer(c.logger, op)

	_, err = c.blockBlobClient(name).UploadStream(ctx, counter, &blockblob.UploadStreamOptions{
		BlockSize:   uploadStreamBlockSize,
		Concurrency: 1,
		HTTPHeaders: headers,
		Metadata:    meta,
	})
	if err != nil {
		return nil, classify(op, name, err)
	}
	if size >= 0 && counter.n != size {
		return nil, xerrors.Errorf(xerrors.KindSourceIO, op, "short body: sent %d of %d bytes", counter.n, size)
	}
	timer.StopWithThroughput(counter.n)

	file := &models.FsFile{
		StorageID: storageID,
		FileSize:  counter.n,
		FileType:  deref(headers.BlobContentType, constants.UnknownMimeType),
		CreatedAt: time.Now().UTC(),
	}
	if md != nil {
		file.Name = md.Name
		file.IsPublic = md.IsPublic
		file.Encryption = md.Encryption
		file.IsEncrypted = md.Encryption != nil && md.Encryption.AttemptDecryption
		file.DeletedAt = md.DeletedAt
	}
	return file, nil
}

// CreateMultipart reserves a blob name. Azure has no session object: blocks
// are staged against the name and become visible on commit.
func (c *Client) CreateMultipart(ctx context.Context, md *models.UploadBlobMetadata) (string, error) {
	if _, _, err := blobOptions("create multipart upload", md); err != nil {
		return "", err
	}
	uploadID := uuid.NewString()
	pending := &pendingUpload{blobName: c.blobName(uuid.NewString()), md: md}

	c.uploadsMu.Lock()
	c.uploads[uploadID] = pending
	c.uploadsMu.Unlock()

	c.logger.Debug().Str("blob", pending.blobName).Str("upload_id", uploadID).Msg("block upload created")
	return uploadID, nil
}

func (c *Client) pending(op, uploadID string) (*pendingUpload, error) {
	c.uploadsMu.Lock()
	defer c.uploadsMu.Unlock()
	p, ok := c.uploads[uploadID]
	if !ok {
		return nil, xerrors.Errorf(xerrors.KindInvalid, op, "unknown upload id %q", uploadID)
	}
	return p, nil
}

// UploadPart stages one block. The block id is the completion tag.
func (c *Client) UploadPart(ctx context.Context, uploadID string, partNumber int32, body io.Reader, size int64) (models.PartResult, error) {
	const op = "stage block"
	p, err := c.pending(op, uploadID)
	if err != nil {
		return models.PartResult{}, err
	}

	spool, err := buffers.Spool(body, size)
	if err != nil {
		return models.PartResult{}, xerrors.Wrap(xerrors.KindSourceIO, op, p.blobName, err)
	}
	defer spool.Close()

	id := blockID(partNumber)
	timer := cloud.StartTimer(c.logger, fmt.Sprintf("stage block %d", partNumber))
	if _, err := c.blockBlobClient(p.blobName).StageBlock(ctx, id, spool, nil); err != nil {
		return models.PartResult{}, classify(op, p.blobName, err)
	}
	timer.StopWithThroughput(spool.Size())

	return models.PartResult{PartNumber: partNumber, CompletionTag: id}, nil
}

// CompleteMultipart commits the staged blocks in part-number order.
func (c *Client) CompleteMultipart(ctx context.Context, uploadID string, md *models.UploadBlobMetadata, parts []models.PartResult) (*models.FsFile, error) {
	const op = "commit block list"
	p, err := c.pending(op, uploadID)
	if err != nil {
		return nil, err
	}
	if md == nil {
		md = p.md
	}
	headers, meta, err := blobOptions(op, md)
	if err != nil {
		return nil, err
	}

	sorted := make([]models.PartResult, len(parts))
	copy(sorted, parts)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].PartNumber < sorted[j].PartNumber })
	ids := make([]string, len(sorted))
	for i, part := range sorted {
		ids[i] = part.CompletionTag
	}

	err = c.RetryWithBackoff(ctx, "CommitBlockList", func() error {
		_, err := c.blockBlobClient(p.blobName).CommitBlockList(ctx, ids, &blockblob.CommitBlockListOptions{
			HTTPHeaders: headers,
			Metadata:    meta,
		})
		return err
	})
	if err != nil {
		return nil, classify(op, p.blobName, err)
	}

	c.uploadsMu.Lock()
	delete(c.uploads, uploadID)
	c.uploadsMu.Unlock()

	return c.metadata(ctx, op, p.blobName)
}

// AbortMultipart forgets a pending block upload. Azure has no call to drop
// staged blocks; uncommitted blocks are garbage-collected after a week.
func (c *Client) AbortMultipart(ctx context.Context, uploadID string) error {
	p, err := c.pending("abort block upload", uploadID)
	if err != nil {
		return err
	}
	c.uploadsMu.Lock()
	delete(c.uploads, uploadID)
	c.uploadsMu.Unlock()

	c.logger.Debug().Str("blob", p.blobName).Str("upload_id", uploadID).Msg("block upload abandoned")
	return nil
}

// Metadata reads the blob's descriptor from its properties.
func (c *Client) Metadata(ctx context.Context, storageID string) (*models.FsFile, error) {
	return c.metadata(ctx, "get properties", c.blobName(storageID))
}

func (c *Client) metadata(ctx context.Context, op, name string) (*models.FsFile, error) {
	var props blob.GetPropertiesResponse
	err := c.RetryWithBackoff(ctx, "GetProperties", func() error {
		var err error
		props, err = c.blobClient(name).GetProperties(ctx, nil)
		return err
	})
	if err != nil {
		return nil, classify(op, name, err)
	}

	file := &models.FsFile{
		StorageID: name[strings.LastIndex(name, "/")+1:],
		FileSize:  deref(props.ContentLength, 0),
		FileType:  deref(props.ContentType, ""),
		CreatedAt: deref(props.LastModified, time.Now()).UTC(),
	}
	meta := make(map[string]string, len(props.Metadata))
	for k, v := range props.Metadata {
		meta[k] = deref(v, "")
	}
	if err := cloud.DecodeMetadata(meta, file); err != nil {
		return nil, xerrors.Wrap(xerrors.KindTransport, op, name, err)
	}
	return file, nil
}

// Open streams the whole blob.
func (c *Client) Open(ctx context.Context, storageID string) (io.ReadCloser, error) {
	return c.download(ctx, "download blob", storageID, blob.HTTPRange{})
}

// OpenRange streams length bytes starting at offset.
func (c *Client) OpenRange(ctx context.Context, storageID string, offset, length int64) (io.ReadCloser, error) {
	const op = "download blob range"
	if offset < 0 || length <= 0 {
		return nil, xerrors.Errorf(xerrors.KindInvalid, op, "invalid range offset=%d length=%d", offset, length)
	}
	return c.download(ctx, op, storageID, blob.HTTPRange{Offset: offset, Count: length})
}

func (c *Client) download(ctx context.Context, op, storageID string, rng blob.HTTPRange) (io.ReadCloser, error) {
	name := c.blobName(storageID)
	var resp blob.DownloadStreamResponse
	err := c.RetryWithBackoff(ctx, "DownloadStream", func() error {
		var err error
		resp, err = c.blobClient(name).DownloadStream(ctx, &blob.DownloadStreamOptions{Range: rng})
		return err
	})
	if err != nil {
		return nil, classify(op, name, err)
	}
	return resp.Body, nil
}

// countingReader counts bytes handed to the SDK.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

func deref[T any](p *T, def T) T {
	if p == nil {
		return def
	}
	return *p
}
