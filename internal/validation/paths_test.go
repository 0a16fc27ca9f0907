package validation

import (
	"path/filepath"
	"testing"
)

func TestValidateFilename(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"plain", "report.pdf", false},
		{"double dots inside", "data..v2.csv", false},
		{"dot-file", ".env", false},
		{"spaces", "my report.pdf", false},
		{"empty", "", true},
		{"parent", "..", true},
		{"unix separator", "a/b.txt", true},
		{"windows separator", `a\b.txt`, true},
		{"traversal", "../etc/passwd", true},
		{"null byte", "a\x00b", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateFilename(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateFilename(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestValidatePathInDirectory(t *testing.T) {
	base := t.TempDir()

	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{"relative inside", "sub/file.txt", false},
		{"absolute inside", filepath.Join(base, "file.txt"), false},
		{"base itself", base, false},
		{"dots in name", "file..txt", false},
		{"relative escape", "../outside.txt", true},
		{"deep escape", "sub/../../outside.txt", true},
		{"absolute outside", filepath.Join(filepath.Dir(base), "other", "file.txt"), true},
		{"empty", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePathInDirectory(tt.path, base)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidatePathInDirectory(%q) error = %v, wantErr %v", tt.path, err, tt.wantErr)
			}
		})
	}

	if err := ValidatePathInDirectory("file.txt", ""); err == nil {
		t.Error("expected error for empty base directory")
	}
}
