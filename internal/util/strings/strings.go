// Package strings provides string utility functions for CLI output.
package strings

import "fmt"

// Pluralize returns singular or plural form based on count.
// Example: Pluralize("file", 1) returns "file", Pluralize("file", 2) returns "files"
func Pluralize(word string, count int) string {
	if count == 1 {
		return word
	}
	return word + "s"
}

// Count formats count followed by the matching form of word, e.g. "3 files".
func Count(count int, word string) string {
	return fmt.Sprintf("%d %s", count, Pluralize(word, count))
}
