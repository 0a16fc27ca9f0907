package s3

import (
	"context"
	"fmt"
	"io"
	"path"
	"sort"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"

	"github.com/fossMeDaddy/sfs-cli/internal/cloud"
	"github.com/fossMeDaddy/sfs-cli/internal/constants"
	"github.com/fossMeDaddy/sfs-cli/internal/models"
	"github.com/fossMeDaddy/sfs-cli/internal/util/buffers"
	"github.com/fossMeDaddy/sfs-cli/internal/xerrors"
)

// objectParams is the metadata shared by PutObject and CreateMultipartUpload.
type objectParams struct {
	meta         map[string]string
	contentType  string
	cacheControl *string
}

func newObjectParams(op string, md *models.UploadBlobMetadata) (objectParams, error) {
	meta, err := cloud.EncodeMetadata(md)
	if err != nil {
		return objectParams{}, xerrors.Wrap(xerrors.KindInvalid, op, "", err)
	}
	if err := ensureMetadataFits(op, meta); err != nil {
		return objectParams{}, err
	}
	p := objectParams{meta: meta, contentType: constants.UnknownMimeType}
	if md != nil && md.ContentType != "" {
		p.contentType = md.ContentType
	}
	if md != nil && md.CacheMaxAgeSeconds > 0 {
		p.cacheControl = aws.String("max-age=" + strconv.Itoa(md.CacheMaxAgeSeconds))
	}
	return p, nil
}

// PutBlob stores body as a new object. The body is spooled first because
// SigV4 signing needs a seekable payload.
func (c *Client) PutBlob(ctx context.Context, md *models.UploadBlobMetadata, body io.Reader, size int64) (*models.FsFile, error) {
	const op = "put object"
	params, err := newObjectParams(op, md)
	if err != nil {
		return nil, err
	}

	spool, err := buffers.Spool(body, size)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.KindSourceIO, op, "", err)
	}
	defer spool.Close()

	storageID := uuid.NewString()
	key := c.objectKey(storageID)
	timer := cloud.StartTimer(c.logger, op)

	_, err = c.client.PutObject(c.TraceContext(ctx, op), &s3.PutObjectInput{
		Bucket:        aws.String(c.Bucket()),
		Key:           aws.String(key),
		Body:          spool,
		ContentLength: aws.Int64(spool.Size()),
		ContentType:   aws.String(params.contentType),
		CacheControl:  params.cacheControl,
		Metadata:      params.meta,
	})
	if err != nil {
		return nil, classify(op, key, err)
	}
	timer.StopWithThroughput(spool.Size())

	return fileFor(storageID, md, spool.Size(), params.contentType), nil
}

// CreateMultipart starts a multipart upload for a new object.
func (c *Client) CreateMultipart(ctx context.Context, md *models.UploadBlobMetadata) (string, error) {
	const op = "create multipart upload"
	params, err := newObjectParams(op, md)
	if err != nil {
		return "", err
	}

	key := c.objectKey(uuid.NewString())
	var out *s3.CreateMultipartUploadOutput
	err = c.RetryWithBackoff(ctx, "CreateMultipartUpload", func() error {
		var err error
		out, err = c.client.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
			Bucket:       aws.String(c.Bucket()),
			Key:          aws.String(key),
			ContentType:  aws.String(params.contentType),
			CacheControl: params.cacheControl,
			Metadata:     params.meta,
		})
		return err
	})
	if err != nil {
		return "", classify(op, key, err)
	}

	uploadID := aws.ToString(out.UploadId)
	if uploadID == "" {
		return "", xerrors.Errorf(xerrors.KindTransport, op, "S3 returned an empty upload id")
	}
	c.uploadsMu.Lock()
	c.uploads[uploadID] = key
	c.uploadsMu.Unlock()

	c.logger.Debug().Str("key", key).Str("upload_id", uploadID).Msg("multipart upload created")
	return uploadID, nil
}

func (c *Client) keyFor(op, uploadID string) (string, error) {
	c.uploadsMu.Lock()
	defer c.uploadsMu.Unlock()
	key, ok := c.uploads[uploadID]
	if !ok {
		return "", xerrors.Errorf(xerrors.KindInvalid, op, "unknown upload id %q", uploadID)
	}
	return key, nil
}

// UploadPart sends one part. The returned ETag is the completion tag.
func (c *Client) UploadPart(ctx context.Context, uploadID string, partNumber int32, body io.Reader, size int64) (models.PartResult, error) {
	const op = "upload part"
	key, err := c.keyFor(op, uploadID)
	if err != nil {
		return models.PartResult{}, err
	}

	spool, err := buffers.Spool(body, size)
	if err != nil {
		return models.PartResult{}, xerrors.Wrap(xerrors.KindSourceIO, op, key, err)
	}
	defer spool.Close()

	partCtx := c.TraceContext(ctx, fmt.Sprintf("UploadPart %d", partNumber))
	timer := cloud.StartTimer(c.logger, fmt.Sprintf("upload part %d", partNumber))
	out, err := c.client.UploadPart(partCtx, &s3.UploadPartInput{
		Bucket:        aws.String(c.Bucket()),
		Key:           aws.String(key),
		UploadId:      aws.String(uploadID),
		PartNumber:    aws.Int32(partNumber),
		Body:          spool,
		ContentLength: aws.Int64(spool.Size()),
	})
	if err != nil {
		return models.PartResult{}, classify(op, key, err)
	}
	timer.StopWithThroughput(spool.Size())

	tag := aws.ToString(out.ETag)
	if tag == "" {
		return models.PartResult{}, xerrors.Errorf(xerrors.KindTransport, op, "part %d: S3 returned no ETag", partNumber)
	}
	return models.PartResult{PartNumber: partNumber, CompletionTag: tag}, nil
}

// CompleteMultipart assembles the parts in part-number order and returns the
// stored object's descriptor.
func (c *Client) CompleteMultipart(ctx context.Context, uploadID string, md *models.UploadBlobMetadata, parts []models.PartResult) (*models.FsFile, error) {
	const op = "complete multipart upload"
	key, err := c.keyFor(op, uploadID)
	if err != nil {
		return nil, err
	}

	completed := make([]types.CompletedPart, len(parts))
	for i, p := range parts {
		completed[i] = types.CompletedPart{
			ETag:       aws.String(p.CompletionTag),
			PartNumber: aws.Int32(p.PartNumber),
		}
	}
	sort.Slice(completed, func(i, j int) bool {
		return aws.ToInt32(completed[i].PartNumber) < aws.ToInt32(completed[j].PartNumber)
	})

	err = c.RetryWithBackoff(ctx, "CompleteMultipartUpload", func() error {
		_, err := c.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
			Bucket:          aws.String(c.Bucket()),
			Key:             aws.String(key),
			UploadId:        aws.String(uploadID),
			MultipartUpload: &types.CompletedMultipartUpload{Parts: completed},
		})
		return err
	})
	if err != nil {
		return nil, classify(op, key, err)
	}
	c.forget(uploadID)

	return c.Metadata(ctx, path.Base(key))
}

// AbortMultipart discards the upload and any parts already stored.
func (c *Client) AbortMultipart(ctx context.Context, uploadID string) error {
	const op = "abort multipart upload"
	key, err := c.keyFor(op, uploadID)
	if err != nil {
		return err
	}
	err = c.RetryWithBackoff(ctx, "AbortMultipartUpload", func() error {
		_, err := c.client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
			Bucket:   aws.String(c.Bucket()),
			Key:      aws.String(key),
			UploadId: aws.String(uploadID),
		})
		return err
	})
	if err != nil {
		return classify(op, key, err)
	}
	c.forget(uploadID)
	return nil
}

func (c *Client) forget(uploadID string) {
	c.uploadsMu.Lock()
	delete(c.uploads, uploadID)
	c.uploadsMu.Unlock()
}

// Metadata reads the object's descriptor from HeadObject.
func (c *Client) Metadata(ctx context.Context, storageID string) (*models.FsFile, error) {
	const op = "head object"
	key := c.objectKey(storageID)

	var head *s3.HeadObjectOutput
	err := c.RetryWithBackoff(ctx, "HeadObject", func() error {
		var err error
		head, err = c.client.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(c.Bucket()),
			Key:    aws.String(key),
		})
		return err
	})
	if err != nil {
		return nil, classify(op, key, err)
	}

	file := &models.FsFile{
		StorageID: storageID,
		FileSize:  aws.ToInt64(head.ContentLength),
		FileType:  aws.ToString(head.ContentType),
		CreatedAt: aws.ToTime(head.LastModified).UTC(),
	}
	if err := cloud.DecodeMetadata(head.Metadata, file); err != nil {
		return nil, xerrors.Wrap(xerrors.KindTransport, op, key, err)
	}
	if file.CreatedAt.IsZero() {
		file.CreatedAt = time.Now().UTC()
	}
	return file, nil
}

// Open streams the whole object.
func (c *Client) Open(ctx context.Context, storageID string) (io.ReadCloser, error) {
	return c.get(ctx, "get object", storageID, nil)
}

// OpenRange streams length bytes starting at offset.
func (c *Client) OpenRange(ctx context.Context, storageID string, offset, length int64) (io.ReadCloser, error) {
	const op = "get object range"
	if offset < 0 || length <= 0 {
		return nil, xerrors.Errorf(xerrors.KindInvalid, op, "invalid range offset=%d length=%d", offset, length)
	}
	rng := fmt.Sprintf("bytes=%d-%d", offset, offset+length-1)
	return c.get(ctx, op, storageID, aws.String(rng))
}

func (c *Client) get(ctx context.Context, op, storageID string, rng *string) (io.ReadCloser, error) {
	key := c.objectKey(storageID)
	var out *s3.GetObjectOutput
	err := c.RetryWithBackoff(ctx, "GetObject", func() error {
		var err error
		out, err = c.client.GetObject(c.TraceContext(ctx, op), &s3.GetObjectInput{
			Bucket: aws.String(c.Bucket()),
			Key:    aws.String(key),
			Range:  rng,
		})
		return err
	})
	if err != nil {
		return nil, classify(op, key, err)
	}
	return out.Body, nil
}

// fileFor builds the descriptor of a freshly written object.
func fileFor(storageID string, md *models.UploadBlobMetadata, size int64, contentType string) *models.FsFile {
	file := &models.FsFile{
		StorageID: storageID,
		FileSize:  size,
		FileType:  contentType,
		CreatedAt: time.Now().UTC(),
	}
	if md != nil {
		file.Name = md.Name
		file.IsPublic = md.IsPublic
		file.Encryption = md.Encryption
		file.IsEncrypted = md.Encryption != nil && md.Encryption.AttemptDecryption
		file.DeletedAt = md.DeletedAt
	}
	return file
}
