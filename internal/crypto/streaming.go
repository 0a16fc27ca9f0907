// Package encryption provides the password-based streaming cipher used for
// client-side encrypted uploads.
// This file implements the per-transfer context and the chunk sealer/opener.
package encryption

import (
	"crypto/cipher"
	"encoding/binary"
	"fmt"
	"sync/atomic"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/fossMeDaddy/sfs-cli/internal/models"
	"github.com/fossMeDaddy/sfs-cli/internal/xerrors"
)

// State is the lifecycle position of a Sealer or Opener.
type State int

const (
	StateIdle State = iota
	StateSealing
	StateOpening
	StateFinished
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSealing:
		return "sealing"
	case StateOpening:
		return "opening"
	case StateFinished:
		return "finished"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// =============================================================================
// Context
// =============================================================================

// Context holds the key material and framing parameters of exactly one
// source transfer. It is never persisted; only Metadata() leaves the process.
//
// A Context hands out a single Sealer, so a fresh salt and nonce back every
// sealed stream. Openers are unrestricted since opening never reuses a nonce
// for new plaintext.
type Context struct {
	salt      []byte
	nonce     []byte
	key       []byte
	blockSize int
	kdf       KDFParams

	aead         cipher.AEAD
	sealerIssued atomic.Bool
}

// NewContext creates a context for a new upload: fresh random salt and
// nonce, key derived from password.
func NewContext(password string, blockSize int, p KDFParams) (*Context, error) {
	if blockSize <= 0 {
		return nil, xerrors.Errorf(xerrors.KindInvalid, "new encryption context", "block size must be positive, got %d", blockSize)
	}
	salt, err := GenerateSalt()
	if err != nil {
		return nil, err
	}
	nonce, err := GenerateNonce()
	if err != nil {
		return nil, err
	}
	return newContext(password, salt, nonce, blockSize, p)
}

// ContextFromMetadata rebuilds the context of a previous upload for
// decryption. def is used when the metadata records no KDF parameters.
func ContextFromMetadata(password string, md *models.EncryptionMetadata, def KDFParams) (*Context, error) {
	if md == nil || !md.AttemptDecryption {
		return nil, xerrors.Errorf(xerrors.KindInvalid, "load encryption context", "blob is not encrypted")
	}
	if len(md.Nonce) != NonceSize {
		return nil, xerrors.Errorf(xerrors.KindInvalid, "load encryption context", "nonce must be %d bytes, got %d", NonceSize, len(md.Nonce))
	}
	if md.BlockSize <= 0 {
		return nil, xerrors.Errorf(xerrors.KindInvalid, "load encryption context", "block size must be positive, got %d", md.BlockSize)
	}
	return newContext(password, md.Salt, md.Nonce, md.BlockSize, kdfFromMetadata(md.KDF, def))
}

func newContext(password string, salt, nonce []byte, blockSize int, p KDFParams) (*Context, error) {
	key, err := DeriveKey(password, salt, p)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.KindInvalid, "derive key", "", err)
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	return &Context{
		salt:      append([]byte(nil), salt...),
		nonce:     append([]byte(nil), nonce...),
		key:       key,
		blockSize: blockSize,
		kdf:       p,
		aead:      aead,
	}, nil
}

// BlockSize returns the plaintext block size of this context.
func (c *Context) BlockSize() int { return c.blockSize }

// Metadata returns the externally visible subset of the context.
func (c *Context) Metadata() *models.EncryptionMetadata {
	return &models.EncryptionMetadata{
		AttemptDecryption: true,
		Nonce:             append([]byte(nil), c.nonce...),
		Salt:              append([]byte(nil), c.salt...),
		BlockSize:         c.blockSize,
		KDF:               c.kdf.metadata(),
	}
}

// Sealer returns the context's only sealer. A second call fails: sealing two
// streams under one context would reuse nonces.
func (c *Context) Sealer() (*Sealer, error) {
	if !c.sealerIssued.CompareAndSwap(false, true) {
		return nil, xerrors.Errorf(xerrors.KindStreamState, "sealer", "encryption context already used for a stream")
	}
	return &Sealer{ctx: c}, nil
}

// Opener returns a new opener for a stream sealed under this context.
func (c *Context) Opener() *Opener {
	return &Opener{ctx: c}
}

// Destroy zeroes the derived key. The context is unusable afterwards.
func (c *Context) Destroy() {
	for i := range c.key {
		c.key[i] = 0
	}
	c.aead = nil
}

// chunkNonce returns base nonce XOR counter (little-endian, last 8 bytes).
func (c *Context) chunkNonce(dst []byte, counter uint64) []byte {
	dst = append(dst[:0], c.nonce...)
	var ctr [8]byte
	binary.LittleEndian.PutUint64(ctr[:], counter)
	for i := 0; i < 8; i++ {
		dst[NonceSize-8+i] ^= ctr[i]
	}
	return dst
}

func chunkAAD(dst []byte, counter uint64) []byte {
	return binary.BigEndian.AppendUint64(dst[:0], counter)
}

// =============================================================================
// Sealer
// =============================================================================

// Sealer seals the blocks of one stream in order. Not safe for concurrent
// use: the chunk counter belongs to the single goroutine driving the stream.
type Sealer struct {
	ctx     *Context
	state   State
	counter uint64
	nonce   []byte
	aad     []byte
	buf     []byte
}

// State returns the sealer's lifecycle state.
func (s *Sealer) State() State { return s.state }

// Seal encrypts one block. Every block except the last must be exactly
// BlockSize long so downloads can re-window the ciphertext; the last may be
// shorter, including empty. The returned slice is freshly allocated.
func (s *Sealer) Seal(block []byte, last bool) ([]byte, error) {
	switch s.state {
	case StateFinished, StateClosed:
		return nil, xerrors.Errorf(xerrors.KindStreamState, "seal", "seal called in state %s", s.state)
	}
	if s.ctx.aead == nil {
		return nil, xerrors.Errorf(xerrors.KindStreamState, "seal", "encryption context destroyed")
	}
	if len(block) > s.ctx.blockSize || (!last && len(block) != s.ctx.blockSize) {
		return nil, xerrors.Errorf(xerrors.KindInvalid, "seal", "block of %d bytes does not fit block size %d (last=%v)", len(block), s.ctx.blockSize, last)
	}
	s.state = StateSealing

	tag := TagMessage
	if last {
		tag = TagFinish
	}
	s.buf = append(append(s.buf[:0], byte(tag)), block...)
	s.nonce = s.ctx.chunkNonce(s.nonce, s.counter)
	s.aad = chunkAAD(s.aad, s.counter)
	out := s.ctx.aead.Seal(make([]byte, 0, len(s.buf)+chacha20poly1305.Overhead), s.nonce, s.buf, s.aad)
	s.counter++

	if last {
		s.state = StateFinished
	}
	return out, nil
}

// Close ends the sealer. Closing before the Finish chunk was sealed is a
// caller bug and reported as a stream state error.
func (s *Sealer) Close() error {
	prev := s.state
	s.state = StateClosed
	if prev != StateFinished && prev != StateClosed {
		return xerrors.Errorf(xerrors.KindStreamState, "close sealer", "closed in state %s before final chunk", prev)
	}
	return nil
}

// =============================================================================
// Opener
// =============================================================================

// Opener opens the chunks of one stream in arrival order.
type Opener struct {
	ctx      *Context
	state    State
	finished bool
	counter  uint64
	nonce    []byte
	aad      []byte
}

// State returns the opener's lifecycle state.
func (o *Opener) State() State { return o.state }

// Finished reports whether the Finish chunk has been opened.
func (o *Opener) Finished() bool { return o.finished }

// Open authenticates and decrypts one sealed chunk. A wrong password,
// corrupted bytes, or a reordered or missing chunk fail with an
// authentication error. Opening after the Finish chunk is a stream state
// error.
func (o *Opener) Open(chunk []byte) ([]byte, error) {
	switch o.state {
	case StateFinished, StateClosed:
		return nil, xerrors.Errorf(xerrors.KindStreamState, "open", "open called in state %s", o.state)
	}
	if o.ctx.aead == nil {
		return nil, xerrors.Errorf(xerrors.KindStreamState, "open", "encryption context destroyed")
	}
	o.state = StateOpening
	if len(chunk) < Overhead || len(chunk) > WindowSize(o.ctx.blockSize) {
		return nil, xerrors.Errorf(xerrors.KindAuthentication, "open", "chunk %d has invalid length %d", o.counter, len(chunk))
	}

	o.nonce = o.ctx.chunkNonce(o.nonce, o.counter)
	o.aad = chunkAAD(o.aad, o.counter)
	pt, err := o.ctx.aead.Open(nil, o.nonce, chunk, o.aad)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.KindAuthentication, "open", fmt.Sprintf("chunk %d", o.counter), err)
	}
	o.counter++

	switch Tag(pt[0]) {
	case TagMessage:
	case TagFinish:
		o.state = StateFinished
		o.finished = true
	default:
		return nil, xerrors.Errorf(xerrors.KindAuthentication, "open", "chunk %d has unknown tag %d", o.counter-1, pt[0])
	}
	return pt[1:], nil
}

// Close ends the opener. If the Finish chunk was never opened the stream was
// truncated and Close returns a TruncatedStream error.
func (o *Opener) Close() error {
	o.state = StateClosed
	if !o.finished {
		return xerrors.Errorf(xerrors.KindTruncatedStream, "close opener", "stream ended after %d chunk(s) without a final chunk", o.counter)
	}
	return nil
}
