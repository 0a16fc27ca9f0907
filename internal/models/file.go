package models

import "time"

// FsFile represents a file stored in SimpleFS
type FsFile struct {
	Name         string     `json:"name"`
	StorageID    string     `json:"storageId"`
	FileSystemID string     `json:"fileSystemId"`
	DirID        string     `json:"dirId"`
	FileSize     int64      `json:"fileSize"`
	FileType     string     `json:"fileType"`
	IsEncrypted  bool       `json:"isEncrypted"`
	IsPublic     bool       `json:"isPublic"`
	CreatedAt    time.Time  `json:"createdAt"`
	DeletedAt    *time.Time `json:"deletedAt,omitempty"`

	// Encryption is populated by the metadata call; uploads leave it nil.
	Encryption *EncryptionMetadata `json:"encryption,omitempty"`
}

// KDFMetadata records non-default argon2id parameters used to derive the key.
type KDFMetadata struct {
	Time      uint32 `json:"time"`
	MemoryKiB uint32 `json:"memoryKiB"`
	Threads   uint8  `json:"threads"`
}

// EncryptionMetadata is the serializable part of an encryption context,
// stored alongside the blob so a download can rebuild the decryption
// parameters. Byte slices travel as standard base64.
//
// AttemptDecryption=false marks plaintext or pre-compressed content.
type EncryptionMetadata struct {
	AttemptDecryption bool         `json:"attemptDecryption"`
	Nonce             []byte       `json:"nonce,omitempty"`
	Salt              []byte       `json:"salt,omitempty"`
	BlockSize         int          `json:"blockSize,omitempty"`
	KDF               *KDFMetadata `json:"kdf,omitempty"`
}

// Plaintext returns metadata marking content that must not be decrypted.
func Plaintext() *EncryptionMetadata {
	return &EncryptionMetadata{AttemptDecryption: false}
}

// UploadBlobMetadata describes the blob being uploaded.
// Sent in the upload-metadata header for simple uploads and as the body of a
// multipart create request.
type UploadBlobMetadata struct {
	Name               string              `json:"name"`
	ContentType        string              `json:"contentType"`
	IsPublic           bool                `json:"isPublic"`
	Encryption         *EncryptionMetadata `json:"encryption"`
	CacheMaxAgeSeconds int                 `json:"cacheMaxAgeSeconds,omitempty"`
	DirPath            string              `json:"dirPath"`
	ForceWrite         bool                `json:"forceWrite"`
	DeletedAt          *time.Time          `json:"deletedAt,omitempty"`
}

// APIResponse is the envelope of every SimpleFS API response.
type APIResponse[T any] struct {
	Message string `json:"message"`
	Data    *T     `json:"data"`
	Error   string `json:"error"`
}

// MultipartSession is returned by the multipart create call.
type MultipartSession struct {
	UploadID string `json:"uploadId"`
}

// PartResult is produced by a successful part upload and consumed only by
// the multipart complete call.
type PartResult struct {
	PartNumber    int32  `json:"partNumber"`
	CompletionTag string `json:"completionTag"`
}

// CompleteMultipartRequest is the body of the multipart complete call.
// Parts must be sorted by PartNumber.
type CompleteMultipartRequest struct {
	Metadata *UploadBlobMetadata `json:"metadata,omitempty"`
	Parts    []PartResult        `json:"parts"`
}
