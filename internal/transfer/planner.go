package transfer

import (
	"fmt"

	"github.com/fossMeDaddy/sfs-cli/internal/xerrors"
)

// PlanKind selects how a source is uploaded.
type PlanKind int

const (
	PlanSimple PlanKind = iota
	PlanMultipart
)

func (k PlanKind) String() string {
	if k == PlanMultipart {
		return "multipart"
	}
	return "simple"
}

// UploadPlan is computed once per upload and never changes afterwards.
type UploadPlan struct {
	Kind      PlanKind
	ChunkSize int64 // multipart only
	PartCount int   // multipart only
}

// Plan chooses between a simple and a multipart upload.
//
// Unknown lengths (totalLen < 0) and lengths below threshold upload as one
// stream. Anything else is split into ceil(totalLen/threshold) parts of
// threshold bytes. Encrypted multipart uploads are refused: parts sealed
// concurrently would each need their own nonce sequence, which a single
// encryption context does not provide.
func Plan(totalLen int64, threshold int64, concurrency int, encrypted bool) (UploadPlan, error) {
	const op = "plan upload"
	if threshold <= 0 {
		return UploadPlan{}, xerrors.Errorf(xerrors.KindInvalid, op, "threshold must be positive, got %d", threshold)
	}
	if concurrency <= 0 {
		return UploadPlan{}, xerrors.Errorf(xerrors.KindInvalid, op, "concurrency must be positive, got %d", concurrency)
	}

	if totalLen < 0 || totalLen < threshold {
		return UploadPlan{Kind: PlanSimple}, nil
	}

	plan := UploadPlan{
		Kind:      PlanMultipart,
		ChunkSize: threshold,
		PartCount: int((totalLen + threshold - 1) / threshold),
	}
	if encrypted {
		return UploadPlan{}, &xerrors.Error{
			Kind: xerrors.KindUnsupportedCombination,
			Op:   op,
			Err: fmt.Errorf("encryption cannot be combined with a multipart upload (%d bytes >= threshold %d, %d parts); "+
				"raise the multipart threshold above the file size or upload without a password", totalLen, threshold, plan.PartCount),
		}
	}
	return plan, nil
}

// Part returns the 1-based part's byte range within a source of totalLen.
func (p UploadPlan) Part(partNumber int, totalLen int64) (offset, length int64) {
	offset = int64(partNumber-1) * p.ChunkSize
	length = p.ChunkSize
	if rest := totalLen - offset; rest < length {
		length = rest
	}
	return offset, length
}

// Batches returns the number of sequential batches for the given concurrency.
func (p UploadPlan) Batches(concurrency int) int {
	if p.Kind != PlanMultipart || concurrency <= 0 {
		return 0
	}
	return (p.PartCount + concurrency - 1) / concurrency
}
