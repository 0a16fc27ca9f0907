package sanitize

import (
	"testing"
)

func TestName(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "Normal name",
			input:    "report.pdf",
			expected: "report.pdf",
		},
		{
			name:     "Surrounding whitespace",
			input:    "  report.pdf \n",
			expected: "report.pdf",
		},
		{
			name:     "Invisible chars",
			input:    "re\u200Bport\uFEFF.pdf",
			expected: "report.pdf",
		},
		{
			name:     "Control chars",
			input:    "rep\r\nort\t.pdf",
			expected: "report.pdf",
		},
		{
			name:     "Inner spaces kept",
			input:    "my report.pdf",
			expected: "my report.pdf",
		},
		{
			name:     "Empty",
			input:    "",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Name(tt.input); got != tt.expected {
				t.Errorf("Name(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestDirPath(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"", ""},
		{"photos/2024", "photos/2024"},
		{"/photos//2024/", "/photos/2024"},
		{"photos\\2024", "photos/2024"},
		{" photos /\u200B2024", "photos/2024"},
	}
	for _, tt := range tests {
		if got := DirPath(tt.input); got != tt.expected {
			t.Errorf("DirPath(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestRemoveInvisibleChars(t *testing.T) {
	input := "\u200B\u200C\u200D\uFEFF\u00ADtest\u2060\u180E"
	expected := "test"
	result := removeInvisibleChars(input)
	if result != expected {
		t.Errorf("removeInvisibleChars() = %q, want %q", result, expected)
	}
}
