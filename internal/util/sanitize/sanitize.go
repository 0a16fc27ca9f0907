// Package sanitize cleans user-typed names before they are sent as blob
// metadata.
//
// Names copied from documents or chat often carry characters that are
// invisible in a terminal but end up in the stored path:
//   - zero-width spaces, joiners and BOMs
//   - stray CR/LF and tabs
//   - surrounding whitespace
package sanitize

import (
	"strings"
	"unicode"
)

var invisibleChars = []string{
	"\u200B", // Zero-width space
	"\u200C", // Zero-width non-joiner
	"\u200D", // Zero-width joiner
	"\uFEFF", // Zero-width no-break space (BOM)
	"\u00AD", // Soft hyphen
	"\u2060", // Word joiner
	"\u180E", // Mongolian vowel separator
}

// Name removes invisible and control characters and trims whitespace.
func Name(name string) string {
	if name == "" {
		return name
	}
	name = removeInvisibleChars(name)
	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)
	return strings.TrimSpace(name)
}

// DirPath sanitizes each segment of a slash-separated remote directory and
// drops empty ones. A leading slash is kept.
func DirPath(dir string) string {
	if dir == "" {
		return dir
	}
	var segments []string
	for _, seg := range strings.Split(strings.ReplaceAll(dir, "\\", "/"), "/") {
		if seg = Name(seg); seg != "" {
			segments = append(segments, seg)
		}
	}
	joined := strings.Join(segments, "/")
	if strings.HasPrefix(strings.TrimSpace(dir), "/") {
		return "/" + joined
	}
	return joined
}

func removeInvisibleChars(s string) string {
	for _, char := range invisibleChars {
		s = strings.ReplaceAll(s, char, "")
	}
	return s
}
