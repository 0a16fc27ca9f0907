package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	nethttp "net/http"
	"sort"
	"strconv"

	"github.com/fossMeDaddy/sfs-cli/internal/constants"
	"github.com/fossMeDaddy/sfs-cli/internal/models"
	"github.com/fossMeDaddy/sfs-cli/internal/xerrors"
)

// PutBlob uploads a blob in one request. The metadata travels in the
// upload-metadata header and the body is streamed as-is, so the request is
// never retried here.
func (c *Client) PutBlob(ctx context.Context, md *models.UploadBlobMetadata, body io.Reader, size int64) (*models.FsFile, error) {
	const op = "upload blob"
	const path = "/blob/upload"

	header, err := json.Marshal(md)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.KindInvalid, op, path, fmt.Errorf("failed to marshal upload metadata: %w", err))
	}

	req, err := c.newRequest(ctx, nethttp.MethodPost, path, body)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.KindInternal, op, path, err)
	}
	req.Header.Set(constants.HeaderUploadMetadata, string(header))
	req.Header.Set("Content-Type", contentType(md))
	setLength(req, size)

	resp, err := c.send(c.streamClient, req, op, path)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var file models.FsFile
	if err := decodeEnvelope(op, path, resp.Body, &file); err != nil {
		return nil, err
	}
	return &file, nil
}

// CreateMultipart opens a multipart session for md.
func (c *Client) CreateMultipart(ctx context.Context, md *models.UploadBlobMetadata) (string, error) {
	const op = "create multipart upload"
	session, err := callJSON[models.MultipartSession](ctx, c, op, nethttp.MethodPost, "/blob/multipart/create", md)
	if err != nil {
		return "", err
	}
	if session.UploadID == "" {
		return "", xerrors.Errorf(xerrors.KindTransport, op, "server returned an empty upload id")
	}
	return session.UploadID, nil
}

// UploadPart streams one part. The completion tag comes from the response
// envelope, falling back to the ETag header.
func (c *Client) UploadPart(ctx context.Context, uploadID string, partNumber int32, body io.Reader, size int64) (models.PartResult, error) {
	const op = "upload part"
	path := fmt.Sprintf("/blob/multipart/%s/parts/%d", escape(uploadID), partNumber)

	req, err := c.newRequest(ctx, nethttp.MethodPut, path, body)
	if err != nil {
		return models.PartResult{}, xerrors.Wrap(xerrors.KindInternal, op, path, err)
	}
	req.Header.Set("Content-Type", constants.UnknownMimeType)
	setLength(req, size)

	resp, err := c.send(c.streamClient, req, op, path)
	if err != nil {
		return models.PartResult{}, err
	}
	defer resp.Body.Close()

	result := models.PartResult{PartNumber: partNumber}
	var env models.APIResponse[models.PartResult]
	if err := json.NewDecoder(resp.Body).Decode(&env); err == nil && env.Data != nil {
		result.CompletionTag = env.Data.CompletionTag
	}
	if result.CompletionTag == "" {
		result.CompletionTag = resp.Header.Get("ETag")
	}
	if result.CompletionTag == "" {
		return models.PartResult{}, xerrors.Errorf(xerrors.KindTransport, op, "part %d: response carried no completion tag", partNumber)
	}
	return result, nil
}

// CompleteMultipart finalizes the session. Parts are sent sorted by number.
func (c *Client) CompleteMultipart(ctx context.Context, uploadID string, md *models.UploadBlobMetadata, parts []models.PartResult) (*models.FsFile, error) {
	sorted := make([]models.PartResult, len(parts))
	copy(sorted, parts)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].PartNumber < sorted[j].PartNumber })

	path := fmt.Sprintf("/blob/multipart/%s/complete", escape(uploadID))
	return callJSON[models.FsFile](ctx, c, "complete multipart upload", nethttp.MethodPost, path,
		models.CompleteMultipartRequest{Metadata: md, Parts: sorted})
}

// AbortMultipart cancels the session and discards uploaded parts.
func (c *Client) AbortMultipart(ctx context.Context, uploadID string) error {
	path := "/blob/multipart/" + escape(uploadID)
	resp, err := c.doJSON(ctx, "abort multipart upload", nethttp.MethodDelete, path, nil)
	if err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.Body.Close()
}

// Metadata returns the stored file record including its encryption metadata.
func (c *Client) Metadata(ctx context.Context, storageID string) (*models.FsFile, error) {
	return callJSON[models.FsFile](ctx, c, "get metadata", nethttp.MethodGet, "/metadata/"+escape(storageID), nil)
}

// Open streams the whole stored blob.
func (c *Client) Open(ctx context.Context, storageID string) (io.ReadCloser, error) {
	const op = "get blob"
	path := "/" + escape(storageID)

	req, err := c.newRequest(ctx, nethttp.MethodGet, path, nil)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.KindInternal, op, path, err)
	}
	req.Header.Set("Accept", "*/*")

	resp, err := c.send(c.httpClient, req, op, path)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// OpenRange streams length bytes starting at offset.
func (c *Client) OpenRange(ctx context.Context, storageID string, offset, length int64) (io.ReadCloser, error) {
	const op = "get blob range"
	path := "/" + escape(storageID)
	if offset < 0 || length <= 0 {
		return nil, xerrors.Errorf(xerrors.KindInvalid, op, "invalid range offset=%d length=%d", offset, length)
	}

	req, err := c.newRequest(ctx, nethttp.MethodGet, path, nil)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.KindInternal, op, path, err)
	}
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Range", "bytes="+strconv.FormatInt(offset, 10)+"-"+strconv.FormatInt(offset+length-1, 10))

	resp, err := c.send(c.httpClient, req, op, path)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != nethttp.StatusPartialContent {
		resp.Body.Close()
		return nil, xerrors.Errorf(xerrors.KindTransport, op, "server ignored range request (status %d)", resp.StatusCode)
	}
	return resp.Body, nil
}

func contentType(md *models.UploadBlobMetadata) string {
	if md != nil && md.ContentType != "" {
		return md.ContentType
	}
	return constants.UnknownMimeType
}

// setLength sets an exact Content-Length when known; unknown sizes go chunked.
func setLength(req *nethttp.Request, size int64) {
	if size >= 0 {
		req.ContentLength = size
	}
	if size == 0 {
		req.Body = nethttp.NoBody
	}
}
