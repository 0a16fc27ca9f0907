// Package encryption provides the password-based streaming cipher used for
// client-side encrypted uploads.
//
// Design (chunked XChaCha20-Poly1305):
//   - One 32-byte key per transfer, derived from the password and a fresh
//     random salt with argon2id
//   - One random 24-byte base nonce per transfer; chunk i is sealed under
//     base nonce XOR i, so no two chunks of a transfer share a nonce
//   - Every chunk authenticates a one-byte tag (Message or Finish) together
//     with its plaintext; a stream is only complete once a Finish chunk opens
//   - Chunk overhead is 17 bytes (tag + Poly1305 MAC)
package encryption

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"golang.org/x/crypto/chacha20poly1305"
)

const (
	KeySize   = chacha20poly1305.KeySize    // 256-bit key
	NonceSize = chacha20poly1305.NonceSizeX // 192-bit XChaCha20 nonce
	SaltSize  = 16                          // argon2 salt

	// Overhead is the number of bytes each sealed chunk adds to its plaintext.
	Overhead = 1 + chacha20poly1305.Overhead
)

// Tag marks a chunk as interior (Message) or terminal (Finish).
type Tag byte

const (
	TagMessage Tag = 0
	TagFinish  Tag = 1
)

func (t Tag) String() string {
	switch t {
	case TagMessage:
		return "message"
	case TagFinish:
		return "finish"
	default:
		return fmt.Sprintf("tag(%d)", byte(t))
	}
}

// GenerateSalt generates a random argon2 salt
func GenerateSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	return salt, nil
}

// GenerateNonce generates a random 192-bit base nonce
func GenerateNonce() ([]byte, error) {
	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return nonce, nil
}

// GenerateSecureRandomString generates a random string of the specified length
func GenerateSecureRandomString(length int) (string, error) {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	result := make([]byte, length)
	for i := range result {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", fmt.Errorf("failed to generate random string: %w", err)
		}
		result[i] = charset[n.Int64()]
	}
	return string(result), nil
}

// CiphertextSize returns the sealed size of a plaintext of the given length
// when cut into blocks of blockSize. An empty plaintext still produces one
// (empty, Finish-tagged) chunk.
func CiphertextSize(plainLen int64, blockSize int) int64 {
	if plainLen < 0 || blockSize <= 0 {
		return -1
	}
	chunks := (plainLen + int64(blockSize) - 1) / int64(blockSize)
	if chunks == 0 {
		chunks = 1
	}
	return plainLen + chunks*Overhead
}

// WindowSize is the size of one full sealed chunk for blockSize.
func WindowSize(blockSize int) int {
	return blockSize + Overhead
}
