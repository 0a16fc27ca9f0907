package transfer

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	encryption "github.com/fossMeDaddy/sfs-cli/internal/crypto"
	"github.com/fossMeDaddy/sfs-cli/internal/models"
	"github.com/fossMeDaddy/sfs-cli/internal/progress"
	"github.com/fossMeDaddy/sfs-cli/internal/xerrors"
)

var testKDF = encryption.KDFParams{Time: 1, MemoryKiB: 64, Threads: 1}

func testOptions(password string) Options {
	return Options{
		BlockSize:          16,
		MultipartThreshold: 100,
		Concurrency:        3,
		Password:           password,
		KDF:                testKDF,
	}
}

func newTestEngine(t *testing.T, be Backend, opts Options) *Engine {
	t.Helper()
	e, err := NewEngine(be, opts)
	require.NoError(t, err)
	return e
}

func TestEngineSimpleRoundTrip(t *testing.T) {
	for _, password := range []string{"", "correct horse"} {
		for _, size := range []int{0, 1, 16, 53, 99} {
			be := newMemBackend()
			e := newTestEngine(t, be, testOptions(password))
			src := testSource(size)

			file, err := e.Upload(context.Background(), Source{Reader: bytes.NewReader(src), Size: int64(size)}, models.UploadBlobMetadata{Name: "f"})
			require.NoError(t, err, "password=%q size=%d", password, size)

			require.NotNil(t, file.Encryption)
			assert.Equal(t, password != "", file.Encryption.AttemptDecryption)
			if password != "" {
				assert.Equal(t, encryption.CiphertextSize(int64(size), 16), int64(len(be.blobs[file.StorageID])))
				assert.NotEqual(t, src, be.blobs[file.StorageID])
			}

			var out bytes.Buffer
			_, err = e.Download(context.Background(), file.StorageID, &out)
			require.NoError(t, err, "password=%q size=%d", password, size)
			assert.Equal(t, src, append([]byte{}, out.Bytes()...), "password=%q size=%d", password, size)
		}
	}
}

func TestEngineUnknownLengthSource(t *testing.T) {
	be := newMemBackend()
	e := newTestEngine(t, be, testOptions("pw"))
	src := testSource(500) // above the threshold, but unknown length forces a simple upload

	file, err := e.Upload(context.Background(), Source{Reader: iotest.HalfReader(bytes.NewReader(src)), Size: -1}, models.UploadBlobMetadata{Name: "stdin"})
	require.NoError(t, err)
	assert.Empty(t, be.completed)

	var out bytes.Buffer
	_, err = e.Download(context.Background(), file.StorageID, &out)
	require.NoError(t, err)
	assert.Equal(t, src, out.Bytes())
}

func TestEngineEncryptedMultipartRejectedBeforeNetwork(t *testing.T) {
	be := newMemBackend()
	e := newTestEngine(t, be, testOptions("pw"))

	_, err := e.Upload(context.Background(), Source{Reader: bytes.NewReader(testSource(100)), Size: 100}, models.UploadBlobMetadata{Name: "big"})
	assert.ErrorIs(t, err, xerrors.ErrUnsupportedCombination)
	assert.Zero(t, be.calls, "no backend call may happen")
}

func TestEngineMultipartRoundTripWithRanges(t *testing.T) {
	be := newMemBackend()
	var c progress.Counter
	e := newTestEngine(t, be, testOptions("")).WithProgress(&c)
	src := testSource(1234)

	file, err := e.Upload(context.Background(), Source{Reader: bytes.NewReader(src), Size: int64(len(src))}, models.UploadBlobMetadata{Name: "big"})
	require.NoError(t, err)
	require.Len(t, be.completed, 1)
	assert.Len(t, be.completed[0], 13)
	assert.Equal(t, int64(len(src)), c.Total())

	var out writerAtBuffer
	_, err = e.Download(context.Background(), file.StorageID, &out)
	require.NoError(t, err)
	assert.Equal(t, src, out.buf)
}

func TestEngineMultipartNeedsSeekableSource(t *testing.T) {
	e := newTestEngine(t, newMemBackend(), testOptions(""))
	_, err := e.Upload(context.Background(), Source{Reader: io.LimitReader(bytes.NewReader(testSource(200)), 200), Size: 200}, models.UploadBlobMetadata{Name: "x"})
	assert.ErrorIs(t, err, xerrors.ErrInvalid)
}

func TestEngineSourceErrorIsNotTransport(t *testing.T) {
	e := newTestEngine(t, newMemBackend(), testOptions("pw"))
	src := io.MultiReader(bytes.NewReader(testSource(40)), iotest.ErrReader(errors.New("EIO")))

	_, err := e.Upload(context.Background(), Source{Reader: src, Size: -1}, models.UploadBlobMetadata{Name: "x"})
	require.Error(t, err)
	assert.Equal(t, xerrors.KindSourceIO, xerrors.KindOf(err))
}

func uploadEncrypted(t *testing.T, be *memBackend, src []byte) string {
	t.Helper()
	e := newTestEngine(t, be, testOptions("pw"))
	file, err := e.Upload(context.Background(), Source{Reader: bytes.NewReader(src), Size: int64(len(src))}, models.UploadBlobMetadata{Name: "secret"})
	require.NoError(t, err)
	return file.StorageID
}

func TestEngineDownloadWrongPassword(t *testing.T) {
	be := newMemBackend()
	id := uploadEncrypted(t, be, testSource(50))

	e := newTestEngine(t, be, testOptions("not-pw"))
	_, err := e.Download(context.Background(), id, io.Discard)
	assert.ErrorIs(t, err, xerrors.ErrAuthentication)
}

func TestEngineDownloadWithoutPassword(t *testing.T) {
	be := newMemBackend()
	id := uploadEncrypted(t, be, testSource(50))

	e := newTestEngine(t, be, testOptions(""))
	_, err := e.Download(context.Background(), id, io.Discard)
	assert.ErrorIs(t, err, xerrors.ErrInvalid)
}

func TestEngineDownloadTamperedCiphertext(t *testing.T) {
	window := encryption.WindowSize(16)
	src := testSource(50) // blocks 16,16,16,2

	tests := []struct {
		name   string
		mutate func([]byte) []byte
		want   error
	}{
		{"tail dropped", func(b []byte) []byte { return b[:3*window] }, xerrors.ErrTruncatedStream},
		{"middle dropped", func(b []byte) []byte { return append(append([]byte{}, b[:window]...), b[2*window:]...) }, xerrors.ErrAuthentication},
		{"bit flipped", func(b []byte) []byte { b[window+3] ^= 0x80; return b }, xerrors.ErrAuthentication},
		{"trailing garbage", func(b []byte) []byte { return append(b, 1, 2, 3) }, xerrors.ErrAuthentication},
		{"everything dropped", func(b []byte) []byte { return b[:0] }, xerrors.ErrTruncatedStream},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			be := newMemBackend()
			id := uploadEncrypted(t, be, src)
			be.blobs[id] = tt.mutate(be.blobs[id])

			e := newTestEngine(t, be, testOptions("pw"))
			_, err := e.Download(context.Background(), id, io.Discard)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestEngineDownloadIrregularNetworkChunks(t *testing.T) {
	be := newMemBackend()
	src := testSource(97)
	id := uploadEncrypted(t, be, src)
	be.chunker = func(data []byte) io.Reader {
		return &chunkedReader{data: data, sizes: []int{3, 5, 2, 40, 1}}
	}

	var out bytes.Buffer
	e := newTestEngine(t, be, testOptions("pw"))
	_, err := e.Download(context.Background(), id, &out)
	require.NoError(t, err)
	assert.Equal(t, src, out.Bytes())
}

func TestNewEngineValidatesOptions(t *testing.T) {
	opts := testOptions("")
	opts.Concurrency = 0
	_, err := NewEngine(newMemBackend(), opts)
	assert.ErrorIs(t, err, xerrors.ErrInvalid)

	_, err = NewEngine(nil, testOptions(""))
	assert.ErrorIs(t, err, xerrors.ErrInvalid)
}

func TestEngineWithPasswordDownloadFile(t *testing.T) {
	be := newMemBackend()
	e := newTestEngine(t, be, testOptions(""))
	src := testSource(40)

	file, err := e.WithPassword("s3cret").Upload(context.Background(),
		Source{Reader: bytes.NewReader(src), Size: int64(len(src))}, models.UploadBlobMetadata{Name: "p"})
	require.NoError(t, err)
	assert.Empty(t, e.Options().Password, "WithPassword must not change the receiver")

	stat, err := e.Stat(context.Background(), file.StorageID)
	require.NoError(t, err)
	require.True(t, stat.IsEncrypted)

	var out bytes.Buffer
	require.NoError(t, e.WithPassword("s3cret").DownloadFile(context.Background(), stat, &out))
	assert.Equal(t, src, out.Bytes())

	assert.True(t, errors.Is(e.DownloadFile(context.Background(), nil, &out), xerrors.ErrInvalid))
}
