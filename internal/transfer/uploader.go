package transfer

import (
	"context"
	"errors"
	"io"
	"sort"
	"sync"

	"github.com/sourcegraph/conc/pool"

	"github.com/fossMeDaddy/sfs-cli/internal/logging"
	"github.com/fossMeDaddy/sfs-cli/internal/models"
	"github.com/fossMeDaddy/sfs-cli/internal/progress"
	"github.com/fossMeDaddy/sfs-cli/internal/xerrors"
)

// ConcurrentUploader uploads the parts of a multipart plan in sequential
// batches of up to Concurrency parts.
//
// Every part reads through its own section of the source, so parts never
// share a cursor. A batch always runs to completion: a failing part does not
// cancel its siblings, their failures are collected into one
// *xerrors.BatchError and no later batch is started. Finalize receives the
// part results sorted by part number.
type ConcurrentUploader struct {
	Backend        MultipartUploader
	Concurrency    int
	BlockSize      int
	Reporter       *progress.Reporter
	AbortOnFailure bool
	Logger         *logging.Logger
}

// Upload runs the whole multipart protocol for src.
func (u *ConcurrentUploader) Upload(ctx context.Context, src io.ReaderAt, totalLen int64, plan UploadPlan, md *models.UploadBlobMetadata) (*models.FsFile, error) {
	log := logging.OrNop(u.Logger)
	if plan.Kind != PlanMultipart || plan.PartCount <= 0 {
		return nil, xerrors.Errorf(xerrors.KindInvalid, "multipart upload", "plan is %s with %d parts", plan.Kind, plan.PartCount)
	}

	uploadID, err := u.Backend.CreateMultipart(ctx, md)
	if err != nil {
		return nil, asTransport("create multipart", err)
	}
	log.Debug().
		Str("upload_id", uploadID).
		Int("parts", plan.PartCount).
		Int64("part_size", plan.ChunkSize).
		Int("concurrency", u.Concurrency).
		Msg("multipart session created")

	results := make([]models.PartResult, 0, plan.PartCount)
	batch := 0
	for first := 1; first <= plan.PartCount; first += u.Concurrency {
		batch++
		last := min(first+u.Concurrency-1, plan.PartCount)

		batchResults, err := u.runBatch(ctx, batch, uploadID, src, totalLen, plan, first, last)
		if err != nil {
			log.Warn().Err(err).Str("upload_id", uploadID).Int("batch", batch).Msg("multipart batch failed")
			u.abandon(ctx, uploadID)
			return nil, err
		}
		results = append(results, batchResults...)
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].PartNumber < results[j].PartNumber
	})

	file, err := u.Backend.CompleteMultipart(ctx, uploadID, md, results)
	if err != nil {
		return nil, asTransport("complete multipart", err)
	}
	return file, nil
}

// runBatch uploads parts first..last and waits for every one of them.
func (u *ConcurrentUploader) runBatch(ctx context.Context, batch int, uploadID string, src io.ReaderAt, totalLen int64, plan UploadPlan, first, last int) ([]models.PartResult, error) {
	var (
		mu       sync.Mutex
		failures []*xerrors.PartFailure
	)

	p := pool.NewWithResults[models.PartResult]().
		WithErrors().
		WithMaxGoroutines(last - first + 1)

	for n := first; n <= last; n++ {
		partNumber := n
		p.Go(func() (models.PartResult, error) {
			res, err := u.uploadPart(ctx, uploadID, src, totalLen, plan, partNumber)
			if err != nil {
				f := &xerrors.PartFailure{PartNumber: partNumber, Err: err}
				mu.Lock()
				failures = append(failures, f)
				mu.Unlock()
				return res, f
			}
			return res, nil
		})
	}

	results, err := p.Wait()
	if err == nil {
		return results, nil
	}

	sort.Slice(failures, func(i, j int) bool {
		return failures[i].PartNumber < failures[j].PartNumber
	})
	return nil, &xerrors.BatchError{Batch: batch, Failures: failures}
}

func (u *ConcurrentUploader) uploadPart(ctx context.Context, uploadID string, src io.ReaderAt, totalLen int64, plan UploadPlan, partNumber int) (models.PartResult, error) {
	offset, length := plan.Part(partNumber, totalLen)
	section := io.NewSectionReader(src, offset, length)
	body := newBlockStream(NewBlockReader(section, u.BlockSize, u.Reporter), nil)

	res, err := u.Backend.UploadPart(ctx, uploadID, int32(partNumber), body, length)
	if serr := body.sourceErr(); serr != nil {
		return models.PartResult{}, serr
	}
	if err != nil {
		return models.PartResult{}, asTransport("upload part", err)
	}
	res.PartNumber = int32(partNumber)
	return res, nil
}

// abandon cancels the session when asked to and the backend can. Otherwise
// the server garbage-collects it.
func (u *ConcurrentUploader) abandon(ctx context.Context, uploadID string) {
	if !u.AbortOnFailure {
		return
	}
	aborter, ok := u.Backend.(Aborter)
	if !ok {
		return
	}
	// The caller's context may already be cancelled; the abort is best effort.
	if err := aborter.AbortMultipart(context.WithoutCancel(ctx), uploadID); err != nil {
		logging.OrNop(u.Logger).Warn().Err(err).Str("upload_id", uploadID).Msg("failed to abort multipart session")
	}
}

// asTransport classifies an unclassified backend error as a transport failure.
func asTransport(op string, err error) error {
	if err == nil {
		return nil
	}
	var xe *xerrors.Error
	if errors.As(err, &xe) {
		return err
	}
	return xerrors.Wrap(xerrors.KindTransport, op, "", err)
}
