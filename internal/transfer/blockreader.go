package transfer

import (
	"bufio"
	"errors"
	"io"

	"github.com/fossMeDaddy/sfs-cli/internal/progress"
	"github.com/fossMeDaddy/sfs-cli/internal/xerrors"
)

// Block is one unit of plaintext. Data is only valid until the next call to
// BlockReader.Next.
type Block struct {
	Data  []byte
	Index int
	Last  bool
}

// BlockReader cuts a source into blockSize blocks, in order, exactly once.
//
// The final block is marked Last. One byte of lookahead decides this, so a
// source whose length is a multiple of blockSize ends on a full Last block
// and an empty source yields a single empty Last block.
type BlockReader struct {
	r         *bufio.Reader
	blockSize int
	buf       []byte
	index     int
	done      bool
	reporter  *progress.Reporter
}

// NewBlockReader wraps r. rep may be nil.
func NewBlockReader(r io.Reader, blockSize int, rep *progress.Reporter) *BlockReader {
	return &BlockReader{
		r:         bufio.NewReader(r),
		blockSize: blockSize,
		reporter:  rep,
	}
}

// Next returns the next block, or io.EOF once the Last block was returned.
// Read failures are SourceIO errors and end the sequence.
func (br *BlockReader) Next() (Block, error) {
	if br.done {
		return Block{}, io.EOF
	}
	if br.blockSize <= 0 {
		br.done = true
		return Block{}, xerrors.Errorf(xerrors.KindInvalid, "read block", "block size must be positive, got %d", br.blockSize)
	}
	if br.buf == nil {
		br.buf = make([]byte, br.blockSize)
	}

	n, err := io.ReadFull(br.r, br.buf)
	last := false
	switch {
	case err == nil:
		if _, perr := br.r.Peek(1); perr != nil {
			if !errors.Is(perr, io.EOF) {
				br.done = true
				return Block{}, xerrors.Wrap(xerrors.KindSourceIO, "read block", "", perr)
			}
			last = true
		}
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		last = true
	default:
		br.done = true
		return Block{}, xerrors.Wrap(xerrors.KindSourceIO, "read block", "", err)
	}

	b := Block{Data: br.buf[:n], Index: br.index, Last: last}
	br.index++
	br.done = last
	br.reporter.Report(int64(n))
	return b, nil
}

// blockStream presents the blocks of a BlockReader, sealed when a sealer is
// set, as one contiguous request body.
type blockStream struct {
	br      *BlockReader
	sealer  Sealer
	pending []byte
	err     error
	srcErr  error
}

// Sealer is the sealing half of a stream cipher.
type Sealer interface {
	Seal(block []byte, last bool) ([]byte, error)
	Close() error
}

func newBlockStream(br *BlockReader, sealer Sealer) *blockStream {
	return &blockStream{br: br, sealer: sealer}
}

func (s *blockStream) Read(p []byte) (int, error) {
	for len(s.pending) == 0 {
		if s.err != nil {
			return 0, s.err
		}
		s.fill()
	}
	n := copy(p, s.pending)
	s.pending = s.pending[n:]
	return n, nil
}

func (s *blockStream) fill() {
	b, err := s.br.Next()
	if errors.Is(err, io.EOF) {
		s.err = io.EOF
		if s.sealer != nil {
			if cerr := s.sealer.Close(); cerr != nil {
				s.err, s.srcErr = cerr, cerr
			}
		}
		return
	}
	if err != nil {
		s.err, s.srcErr = err, err
		return
	}
	if s.sealer == nil {
		s.pending = b.Data
		return
	}
	sealed, err := s.sealer.Seal(b.Data, b.Last)
	if err != nil {
		s.err, s.srcErr = err, err
		return
	}
	s.pending = sealed
}

// sourceErr returns the local failure that ended the stream, if any. The
// transport wraps body errors, so callers check this first to keep the
// original kind.
func (s *blockStream) sourceErr() error {
	return s.srcErr
}
