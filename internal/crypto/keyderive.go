// Package encryption provides the password-based streaming cipher used for
// client-side encrypted uploads.
// This file implements argon2id password-based key derivation.
package encryption

import (
	"fmt"

	"golang.org/x/crypto/argon2"

	"github.com/fossMeDaddy/sfs-cli/internal/constants"
	"github.com/fossMeDaddy/sfs-cli/internal/models"
)

// KDFParams are the argon2id work factors.
//
// The defaults target interactive CLI latency (well under a second on a
// laptop), not maximal brute-force resistance. Raise Time or MemoryKiB for
// stronger guarantees; non-default values are recorded in the blob metadata
// so downloads derive the same key.
type KDFParams struct {
	Time      uint32
	MemoryKiB uint32
	Threads   uint8
}

// DefaultKDFParams returns the default argon2id parameters.
func DefaultKDFParams() KDFParams {
	return KDFParams{
		Time:      constants.KDFTime,
		MemoryKiB: constants.KDFMemoryKiB,
		Threads:   constants.KDFThreads,
	}
}

// Validate checks that all work factors are usable.
func (p KDFParams) Validate() error {
	if p.Time == 0 || p.MemoryKiB == 0 || p.Threads == 0 {
		return fmt.Errorf("argon2 parameters must be positive (time=%d memory=%d threads=%d)", p.Time, p.MemoryKiB, p.Threads)
	}
	return nil
}

func (p KDFParams) isDefault() bool {
	return p == DefaultKDFParams()
}

func (p KDFParams) metadata() *models.KDFMetadata {
	if p.isDefault() {
		return nil
	}
	return &models.KDFMetadata{Time: p.Time, MemoryKiB: p.MemoryKiB, Threads: p.Threads}
}

func kdfFromMetadata(m *models.KDFMetadata, def KDFParams) KDFParams {
	if m == nil {
		return def
	}
	return KDFParams{Time: m.Time, MemoryKiB: m.MemoryKiB, Threads: m.Threads}
}

// DeriveKey derives a 32-byte key from password and salt using argon2id.
//
// Parameters:
//   - password: user password, must be non-empty
//   - salt: SaltSize random bytes, unique per transfer
//   - p: argon2id work factors
func DeriveKey(password string, salt []byte, p KDFParams) ([]byte, error) {
	if password == "" {
		return nil, fmt.Errorf("password must not be empty")
	}
	if len(salt) != SaltSize {
		return nil, fmt.Errorf("salt must be %d bytes, got %d", SaltSize, len(salt))
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return argon2.IDKey([]byte(password), salt, p.Time, p.MemoryKiB, p.Threads, KeySize), nil
}
