package transfer

import (
	"fmt"
	"io"

	encryption "github.com/fossMeDaddy/sfs-cli/internal/crypto"
	"github.com/fossMeDaddy/sfs-cli/internal/xerrors"
)

// Assembler re-cuts a byte stream arriving in arbitrary network chunks into
// fixed windows. Full windows are emitted as soon as they are complete; the
// remainder waits for more input or for Flush.
type Assembler struct {
	window int
	buf    []byte
}

// NewAssembler creates an assembler emitting windows of the given size.
func NewAssembler(window int) *Assembler {
	return &Assembler{window: window, buf: make([]byte, 0, window)}
}

// Push feeds p and calls emit for every window it completes, in order. The
// slice passed to emit is only valid during the call.
func (a *Assembler) Push(p []byte, emit func([]byte) error) error {
	for len(p) > 0 {
		if len(a.buf) == 0 && len(p) >= a.window {
			if err := emit(p[:a.window]); err != nil {
				return err
			}
			p = p[a.window:]
			continue
		}
		take := min(a.window-len(a.buf), len(p))
		a.buf = append(a.buf, p[:take]...)
		p = p[take:]
		if len(a.buf) == a.window {
			if err := emit(a.buf); err != nil {
				return err
			}
			a.buf = a.buf[:0]
		}
	}
	return nil
}

// Flush emits the final partial window, if any.
func (a *Assembler) Flush(emit func([]byte) error) error {
	if len(a.buf) == 0 {
		return nil
	}
	err := emit(a.buf)
	a.buf = a.buf[:0]
	return err
}

// Pending returns the number of buffered bytes.
func (a *Assembler) Pending() int { return len(a.buf) }

// Opener is the opening half of a stream cipher.
type Opener interface {
	Open(chunk []byte) ([]byte, error)
	Finished() bool
	Close() error
}

// Decrypter writes the plaintext of a sealed stream to dst as ciphertext is
// written to it. Memory use is bounded by one window. With a nil opener it
// passes bytes straight through.
type Decrypter struct {
	dst     io.Writer
	opener  Opener
	asm     *Assembler
	written int64
	closed  bool
}

// NewDecrypter creates a decrypter for chunks sealed with blockSize blocks.
func NewDecrypter(dst io.Writer, opener Opener, blockSize int) *Decrypter {
	d := &Decrypter{dst: dst, opener: opener}
	if opener != nil {
		d.asm = NewAssembler(encryption.WindowSize(blockSize))
	}
	return d
}

// Write implements io.Writer.
func (d *Decrypter) Write(p []byte) (int, error) {
	if d.closed {
		return 0, xerrors.Errorf(xerrors.KindStreamState, "decrypt", "write after close")
	}
	if d.opener == nil {
		n, err := d.dst.Write(p)
		d.written += int64(n)
		if err != nil {
			return n, fmt.Errorf("failed to write destination: %w", err)
		}
		return n, nil
	}
	if err := d.asm.Push(p, d.openWindow); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (d *Decrypter) openWindow(w []byte) error {
	if d.opener.Finished() {
		return xerrors.Errorf(xerrors.KindAuthentication, "decrypt", "%d unexpected bytes after final chunk", len(w))
	}
	pt, err := d.opener.Open(w)
	if err != nil {
		return err
	}
	n, err := d.dst.Write(pt)
	d.written += int64(n)
	if err != nil {
		return fmt.Errorf("failed to write destination: %w", err)
	}
	return nil
}

// Close opens the last partial window and verifies the stream ended on its
// final chunk.
func (d *Decrypter) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	if d.opener == nil {
		return nil
	}
	if err := d.asm.Flush(d.openWindow); err != nil {
		return err
	}
	return d.opener.Close()
}

// Written returns the plaintext bytes written to dst.
func (d *Decrypter) Written() int64 { return d.written }
