package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"

	"golang.org/x/sync/errgroup"

	encryption "github.com/fossMeDaddy/sfs-cli/internal/crypto"
	"github.com/fossMeDaddy/sfs-cli/internal/logging"
	"github.com/fossMeDaddy/sfs-cli/internal/models"
	"github.com/fossMeDaddy/sfs-cli/internal/progress"
	"github.com/fossMeDaddy/sfs-cli/internal/util/buffers"
	"github.com/fossMeDaddy/sfs-cli/internal/xerrors"
)

// ConcurrentDownloader fetches blob content into a destination.
//
// Encrypted blobs stream sequentially: chunks must be opened in order, so
// the network stream feeds a Decrypter directly. Plaintext blobs at or above
// Threshold are fetched as Concurrency ranges in parallel when the backend
// serves ranges and the destination is an io.WriterAt.
type ConcurrentDownloader struct {
	Backend     Fetcher
	Concurrency int
	Threshold   int64
	KDF         encryption.KDFParams
	Reporter    *progress.Reporter
	Logger      *logging.Logger
}

// Download writes the content of file to dst, decrypting with password when
// the blob is marked for decryption.
func (d *ConcurrentDownloader) Download(ctx context.Context, file *models.FsFile, dst io.Writer, password string) error {
	log := logging.OrNop(d.Logger)
	md := file.Encryption

	if md != nil && md.AttemptDecryption {
		if password == "" {
			return xerrors.Errorf(xerrors.KindInvalid, "download", "blob %s is encrypted, a password is required", file.StorageID)
		}
		encCtx, err := encryption.ContextFromMetadata(password, md, d.KDF)
		if err != nil {
			return err
		}
		defer encCtx.Destroy()
		log.Debug().Str("storage_id", file.StorageID).Int("block_size", md.BlockSize).Msg("downloading encrypted blob")
		return d.stream(ctx, file.StorageID, NewDecrypter(dst, encCtx.Opener(), md.BlockSize))
	}

	if rf, ok := d.Backend.(RangeFetcher); ok {
		if wa, ok := dst.(io.WriterAt); ok && d.Concurrency > 1 && d.Threshold > 0 && file.FileSize >= d.Threshold {
			log.Debug().Str("storage_id", file.StorageID).Int64("size", file.FileSize).Msg("downloading ranges concurrently")
			return d.ranges(ctx, rf, file, wa)
		}
	}
	return d.stream(ctx, file.StorageID, NewDecrypter(dst, nil, 0))
}

// stream copies the whole blob into w in arrival order.
func (d *ConcurrentDownloader) stream(ctx context.Context, storageID string, w *Decrypter) error {
	rc, err := d.Backend.Open(ctx, storageID)
	if err != nil {
		return asTransport("open blob", err)
	}
	defer rc.Close()

	if err := copyReporting(w, rc, d.Reporter); err != nil {
		return err
	}
	return w.Close()
}

// ranges downloads the blob as parallel ranges written at their offsets.
// Ranges are idempotent reads, so the first failure cancels the rest.
func (d *ConcurrentDownloader) ranges(ctx context.Context, rf RangeFetcher, file *models.FsFile, wa io.WriterAt) error {
	plan := UploadPlan{
		Kind:      PlanMultipart,
		ChunkSize: d.Threshold,
		PartCount: int((file.FileSize + d.Threshold - 1) / d.Threshold),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.Concurrency)
	for n := 1; n <= plan.PartCount; n++ {
		partNumber := n
		g.Go(func() error {
			offset, length := plan.Part(partNumber, file.FileSize)
			rc, err := rf.OpenRange(gctx, file.StorageID, offset, length)
			if err != nil {
				return &xerrors.PartFailure{PartNumber: partNumber, Err: asTransport("open range", err)}
			}
			defer rc.Close()

			w := io.NewOffsetWriter(wa, offset)
			if err := copyReporting(w, io.LimitReader(rc, length), d.Reporter); err != nil {
				return &xerrors.PartFailure{PartNumber: partNumber, Err: err}
			}
			if got, _ := w.Seek(0, io.SeekCurrent); got != length {
				return &xerrors.PartFailure{PartNumber: partNumber, Err: xerrors.Errorf(xerrors.KindTransport, "read range", "short range: got %d of %d bytes", got, length)}
			}
			return nil
		})
	}
	return g.Wait()
}

// copyReporting copies src to dst reporting each network read. Read errors
// are transport failures; write errors keep their own kind.
func copyReporting(dst io.Writer, src io.Reader, rep *progress.Reporter) error {
	buf := buffers.GetCopyBuffer()
	defer buffers.PutCopyBuffer(buf)
	for {
		n, rerr := src.Read(*buf)
		if n > 0 {
			rep.Report(int64(n))
			if _, werr := dst.Write((*buf)[:n]); werr != nil {
				return werr
			}
		}
		if errors.Is(rerr, io.EOF) {
			return nil
		}
		if rerr != nil {
			return xerrors.Wrap(xerrors.KindTransport, "read blob", "", fmt.Errorf("network read: %w", rerr))
		}
	}
}
