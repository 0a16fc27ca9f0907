package transfer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fossMeDaddy/sfs-cli/internal/xerrors"
)

func TestPlan(t *testing.T) {
	tests := []struct {
		name      string
		total     int64
		threshold int64
		encrypted bool
		want      UploadPlan
	}{
		{"unknown length", -1, 5_000_000, false, UploadPlan{Kind: PlanSimple}},
		{"unknown length encrypted", -1, 5_000_000, true, UploadPlan{Kind: PlanSimple}},
		{"below threshold", 4_999_999, 5_000_000, false, UploadPlan{Kind: PlanSimple}},
		{"below threshold encrypted", 10, 5_000_000, true, UploadPlan{Kind: PlanSimple}},
		{"empty", 0, 5_000_000, false, UploadPlan{Kind: PlanSimple}},
		{"at threshold", 5_000_000, 5_000_000, false, UploadPlan{Kind: PlanMultipart, ChunkSize: 5_000_000, PartCount: 1}},
		{"twelve million", 12_000_000, 5_000_000, false, UploadPlan{Kind: PlanMultipart, ChunkSize: 5_000_000, PartCount: 3}},
		{"exact multiple", 15_000_000, 5_000_000, false, UploadPlan{Kind: PlanMultipart, ChunkSize: 5_000_000, PartCount: 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Plan(tt.total, tt.threshold, 4, tt.encrypted)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPlanRejectsEncryptedMultipart(t *testing.T) {
	for _, total := range []int64{5_000_000, 12_000_000} {
		_, err := Plan(total, 5_000_000, 4, true)
		require.Error(t, err)
		assert.ErrorIs(t, err, xerrors.ErrUnsupportedCombination)
		assert.Contains(t, err.Error(), "multipart")
	}
}

func TestPlanInvalidArguments(t *testing.T) {
	_, err := Plan(10, 0, 4, false)
	assert.ErrorIs(t, err, xerrors.ErrInvalid)
	_, err = Plan(10, 5, 0, false)
	assert.ErrorIs(t, err, xerrors.ErrInvalid)
}

func TestUploadPlanParts(t *testing.T) {
	plan, err := Plan(12, 5, 2, false)
	require.NoError(t, err)

	var covered int64
	for n := 1; n <= plan.PartCount; n++ {
		off, length := plan.Part(n, 12)
		assert.Equal(t, covered, off, "part %d starts where the previous ended", n)
		covered += length
	}
	assert.Equal(t, int64(12), covered)

	_, last := plan.Part(3, 12)
	assert.Equal(t, int64(2), last)
	assert.Equal(t, 2, plan.Batches(2))
	assert.Equal(t, 1, plan.Batches(4))
}
