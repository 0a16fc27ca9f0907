package cloud

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/fossMeDaddy/sfs-cli/internal/models"
)

// Object metadata keys. Azure does not accept '-' in metadata names, so the
// Azure backend stores them with '_' instead; DecodeMetadata accepts both.
const (
	MetaName       = "sfs-name"
	MetaDir        = "sfs-dir"
	MetaPublic     = "sfs-public"
	MetaEncryption = "sfs-encryption"
	MetaExpires    = "sfs-expires"
)

// EncodeMetadata turns upload metadata into storage object metadata.
// Values are kept ASCII: names are path-escaped and the encryption metadata
// is JSON with base64 byte fields.
func EncodeMetadata(md *models.UploadBlobMetadata) (map[string]string, error) {
	meta := make(map[string]string, 5)
	if md == nil {
		return meta, nil
	}
	if md.Name != "" {
		meta[MetaName] = url.PathEscape(md.Name)
	}
	if md.DirPath != "" {
		meta[MetaDir] = url.PathEscape(md.DirPath)
	}
	if md.IsPublic {
		meta[MetaPublic] = "true"
	}
	if md.Encryption != nil {
		raw, err := json.Marshal(md.Encryption)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal encryption metadata: %w", err)
		}
		meta[MetaEncryption] = string(raw)
	}
	if md.DeletedAt != nil {
		meta[MetaExpires] = md.DeletedAt.UTC().Format(time.RFC3339)
	}
	return meta, nil
}

// DecodeMetadata fills the descriptor fields of file from object metadata.
// Keys are matched case-insensitively with '-' and '_' treated alike.
func DecodeMetadata(meta map[string]string, file *models.FsFile) error {
	norm := make(map[string]string, len(meta))
	for k, v := range meta {
		norm[normalizeKey(k)] = v
	}

	if v, ok := norm[normalizeKey(MetaName)]; ok {
		name, err := url.PathUnescape(v)
		if err != nil {
			return fmt.Errorf("invalid %s metadata: %w", MetaName, err)
		}
		file.Name = name
	}
	if v, ok := norm[normalizeKey(MetaPublic)]; ok {
		file.IsPublic, _ = strconv.ParseBool(v)
	}
	if v, ok := norm[normalizeKey(MetaEncryption)]; ok && v != "" {
		var enc models.EncryptionMetadata
		if err := json.Unmarshal([]byte(v), &enc); err != nil {
			return fmt.Errorf("invalid %s metadata: %w", MetaEncryption, err)
		}
		file.Encryption = &enc
		file.IsEncrypted = enc.AttemptDecryption
	}
	if v, ok := norm[normalizeKey(MetaExpires)]; ok && v != "" {
		at, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return fmt.Errorf("invalid %s metadata: %w", MetaExpires, err)
		}
		file.DeletedAt = &at
	}
	return nil
}

// MetadataDir returns the directory path recorded in object metadata.
func MetadataDir(meta map[string]string) string {
	for k, v := range meta {
		if normalizeKey(k) == normalizeKey(MetaDir) {
			dir, err := url.PathUnescape(v)
			if err != nil {
				return v
			}
			return dir
		}
	}
	return ""
}

func normalizeKey(k string) string {
	return strings.ReplaceAll(strings.ToLower(k), "_", "-")
}
