// Package transfer is the client-side transfer engine: it cuts sources into
// blocks, optionally seals them, picks a simple or multipart plan and drives
// the backend, and reassembles downloads for decryption.
//
// The engine holds no process-wide state. Everything it needs arrives in an
// Options value built by the caller.
package transfer

import (
	"github.com/fossMeDaddy/sfs-cli/internal/constants"
	encryption "github.com/fossMeDaddy/sfs-cli/internal/crypto"
	"github.com/fossMeDaddy/sfs-cli/internal/logging"
	"github.com/fossMeDaddy/sfs-cli/internal/progress"
	"github.com/fossMeDaddy/sfs-cli/internal/xerrors"
)

// Options configures one Engine.
type Options struct {
	// BlockSize is the plaintext block size in bytes.
	BlockSize int

	// MultipartThreshold is the source size at which uploads switch to
	// multipart. It is also the part size.
	MultipartThreshold int64

	// Concurrency is the number of parts in flight per batch.
	Concurrency int

	// Password enables encryption when non-empty.
	Password string

	// KDF overrides the argon2id work factors. Zero value means defaults.
	KDF encryption.KDFParams

	// Progress receives coalesced byte counts. Nil disables reporting.
	Progress progress.Sink

	// AbortOnFailure asks backends that support it to cancel a multipart
	// session after a failed batch. Off by default: abandoned sessions are
	// left for the server to garbage-collect.
	AbortOnFailure bool

	Logger *logging.Logger
}

// DefaultOptions returns options with the package defaults and no password.
func DefaultOptions() Options {
	return Options{
		BlockSize:          constants.BlockSize,
		MultipartThreshold: constants.MultipartThreshold,
		Concurrency:        constants.DefaultConcurrency,
	}
}

// Validate checks the numeric options.
func (o Options) Validate() error {
	const op = "validate options"
	switch {
	case o.BlockSize <= 0:
		return xerrors.Errorf(xerrors.KindInvalid, op, "block size must be positive, got %d", o.BlockSize)
	case o.MultipartThreshold <= 0:
		return xerrors.Errorf(xerrors.KindInvalid, op, "multipart threshold must be positive, got %d", o.MultipartThreshold)
	case o.Concurrency <= 0 || o.Concurrency > constants.MaxConcurrency:
		return xerrors.Errorf(xerrors.KindInvalid, op, "concurrency must be between 1 and %d, got %d", constants.MaxConcurrency, o.Concurrency)
	}
	if o.KDF != (encryption.KDFParams{}) {
		if err := o.KDF.Validate(); err != nil {
			return xerrors.Wrap(xerrors.KindInvalid, op, "", err)
		}
	}
	return nil
}

func (o Options) kdf() encryption.KDFParams {
	if o.KDF == (encryption.KDFParams{}) {
		return encryption.DefaultKDFParams()
	}
	return o.KDF
}

func (o Options) encrypted() bool {
	return o.Password != ""
}
