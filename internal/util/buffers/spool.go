package buffers

import (
	"bytes"
	"fmt"
	"io"
	"os"
)

// MaxMemorySpool is the largest body kept in memory; bigger or unknown
// lengths go to a temp file.
const MaxMemorySpool = 16 * 1024 * 1024

// Spooled is a fully buffered, seekable copy of a stream. Storage SDKs need
// a seekable body to sign or checksum a request.
type Spooled struct {
	io.ReadSeeker
	size int64
	file *os.File
}

// Size returns the number of bytes spooled.
func (s *Spooled) Size() int64 { return s.size }

// Close releases the spool. Temp files are removed.
func (s *Spooled) Close() error {
	if s.file == nil {
		return nil
	}
	name := s.file.Name()
	err := s.file.Close()
	if rmErr := os.Remove(name); err == nil && rmErr != nil && !os.IsNotExist(rmErr) {
		err = rmErr
	}
	s.file = nil
	return err
}

// Spool copies r into memory when size is known and at most MaxMemorySpool,
// otherwise into a temp file. A known size that r does not deliver exactly
// is an error. The returned spool is positioned at its start.
func Spool(r io.Reader, size int64) (*Spooled, error) {
	if size >= 0 && size <= MaxMemorySpool {
		buf := bytes.NewBuffer(make([]byte, 0, size))
		n, err := io.Copy(buf, r)
		if err != nil {
			return nil, err
		}
		if n != size {
			return nil, fmt.Errorf("short body: got %d of %d bytes", n, size)
		}
		return &Spooled{ReadSeeker: bytes.NewReader(buf.Bytes()), size: n}, nil
	}

	f, err := os.CreateTemp("", "sfs-spool-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create spool file: %w", err)
	}
	s := &Spooled{ReadSeeker: f, file: f}

	buf := GetCopyBuffer()
	defer PutCopyBuffer(buf)
	n, err := io.CopyBuffer(f, r, *buf)
	if err != nil {
		s.Close()
		return nil, err
	}
	if size >= 0 && n != size {
		s.Close()
		return nil, fmt.Errorf("short body: got %d of %d bytes", n, size)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to rewind spool file: %w", err)
	}
	s.size = n
	return s, nil
}
