package transfer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fossMeDaddy/sfs-cli/internal/models"
)

// memBackend is an in-memory Backend used across the package tests.
type memBackend struct {
	mu       sync.Mutex
	blobs    map[string][]byte
	meta     map[string]*models.FsFile
	sessions map[string]*memSession

	calls        int
	aborted      []string
	completed    [][]models.PartResult
	partDelay    func(partNumber int32) time.Duration
	partErr      func(partNumber int32) error
	partStarted  func(partNumber int32)
	partFinished func(partNumber int32)
	chunker      func(data []byte) io.Reader
}

type memSession struct {
	md    *models.UploadBlobMetadata
	parts map[int32][]byte
}

func newMemBackend() *memBackend {
	return &memBackend{
		blobs:    make(map[string][]byte),
		meta:     make(map[string]*models.FsFile),
		sessions: make(map[string]*memSession),
	}
}

func (m *memBackend) store(md *models.UploadBlobMetadata, data []byte) *models.FsFile {
	id := uuid.NewString()
	f := &models.FsFile{
		Name:        md.Name,
		StorageID:   id,
		FileSize:    int64(len(data)),
		FileType:    md.ContentType,
		IsEncrypted: md.Encryption != nil && md.Encryption.AttemptDecryption,
		CreatedAt:   time.Now(),
		Encryption:  md.Encryption,
	}
	m.blobs[id] = data
	m.meta[id] = f
	return f
}

func (m *memBackend) PutBlob(ctx context.Context, md *models.UploadBlobMetadata, body io.Reader, size int64) (*models.FsFile, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if size >= 0 && int64(len(data)) != size {
		return nil, fmt.Errorf("declared size %d, got %d", size, len(data))
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return m.store(md, data), nil
}

func (m *memBackend) CreateMultipart(ctx context.Context, md *models.UploadBlobMetadata) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	id := uuid.NewString()
	m.sessions[id] = &memSession{md: md, parts: make(map[int32][]byte)}
	return id, nil
}

func (m *memBackend) UploadPart(ctx context.Context, uploadID string, partNumber int32, body io.Reader, size int64) (models.PartResult, error) {
	if m.partStarted != nil {
		m.partStarted(partNumber)
	}
	if m.partFinished != nil {
		defer m.partFinished(partNumber)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return models.PartResult{}, err
	}
	if m.partDelay != nil {
		time.Sleep(m.partDelay(partNumber))
	}
	if m.partErr != nil {
		if err := m.partErr(partNumber); err != nil {
			return models.PartResult{}, err
		}
	}
	if int64(len(data)) != size {
		return models.PartResult{}, fmt.Errorf("part %d: declared %d, got %d", partNumber, size, len(data))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	s, ok := m.sessions[uploadID]
	if !ok {
		return models.PartResult{}, fmt.Errorf("unknown upload %s", uploadID)
	}
	s.parts[partNumber] = data
	return models.PartResult{PartNumber: partNumber, CompletionTag: fmt.Sprintf("etag-%d", partNumber)}, nil
}

func (m *memBackend) CompleteMultipart(ctx context.Context, uploadID string, md *models.UploadBlobMetadata, parts []models.PartResult) (*models.FsFile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	s, ok := m.sessions[uploadID]
	if !ok {
		return nil, fmt.Errorf("unknown upload %s", uploadID)
	}
	m.completed = append(m.completed, append([]models.PartResult(nil), parts...))

	var buf bytes.Buffer
	for _, p := range parts {
		buf.Write(s.parts[p.PartNumber])
	}
	delete(m.sessions, uploadID)
	return m.store(md, buf.Bytes()), nil
}

func (m *memBackend) AbortMultipart(ctx context.Context, uploadID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.aborted = append(m.aborted, uploadID)
	delete(m.sessions, uploadID)
	return nil
}

func (m *memBackend) Metadata(ctx context.Context, storageID string) (*models.FsFile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.meta[storageID]
	if !ok {
		return nil, fmt.Errorf("no blob %s", storageID)
	}
	return f, nil
}

func (m *memBackend) Open(ctx context.Context, storageID string) (io.ReadCloser, error) {
	m.mu.Lock()
	data, ok := m.blobs[storageID]
	m.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("no blob %s", storageID)
	}
	var r io.Reader = bytes.NewReader(data)
	if m.chunker != nil {
		r = m.chunker(data)
	}
	return io.NopCloser(r), nil
}

func (m *memBackend) OpenRange(ctx context.Context, storageID string, offset, length int64) (io.ReadCloser, error) {
	m.mu.Lock()
	data, ok := m.blobs[storageID]
	m.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("no blob %s", storageID)
	}
	return io.NopCloser(bytes.NewReader(data[offset : offset+length])), nil
}

func (m *memBackend) sessionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// chunkedReader returns data in the given repeating chunk sizes.
type chunkedReader struct {
	data  []byte
	sizes []int
	i     int
}

func (c *chunkedReader) Read(p []byte) (int, error) {
	if len(c.data) == 0 {
		return 0, io.EOF
	}
	n := c.sizes[c.i%len(c.sizes)]
	c.i++
	n = min(n, len(p), len(c.data))
	copy(p, c.data[:n])
	c.data = c.data[n:]
	return n, nil
}

// writerAtBuffer is an io.WriterAt over a growable byte slice.
type writerAtBuffer struct {
	mu  sync.Mutex
	buf []byte
}

func (w *writerAtBuffer) WriteAt(p []byte, off int64) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if end := int(off) + len(p); end > len(w.buf) {
		w.buf = append(w.buf, make([]byte, end-len(w.buf))...)
	}
	copy(w.buf[off:], p)
	return len(p), nil
}

func (w *writerAtBuffer) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf = append(w.buf, p...)
	return len(p), nil
}
