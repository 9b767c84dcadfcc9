package util

import (
	"strings"
	"unicode"
)

const maxNameRunes = 100

// SanitizeName strips control and invisible characters from a display name,
// collapses runs of whitespace and truncates to maxNameRunes. The result may
// be empty; callers validate presence.
func SanitizeName(name string) string {
	builder := strings.Builder{}
	builder.Grow(len(name))

	for _, char := range name {
		if unicode.IsSpace(char) {
			builder.WriteRune(' ')
			continue
		}
		if unicode.IsControl(char) || isInvisibleUnicode(char) {
			continue
		}
		builder.WriteRune(char)
	}

	cleaned := strings.Join(strings.Fields(builder.String()), " ")

	// Truncate by runes (not bytes) to avoid splitting multi-byte characters.
	runes := []rune(cleaned)
	if len(runes) > maxNameRunes {
		runes = runes[:maxNameRunes]
	}

	return strings.TrimSpace(string(runes))
}

// SanitizeNamePtr applies SanitizeName to an optional field.
func SanitizeNamePtr(name *string) *string {
	if name == nil {
		return nil
	}
	cleaned := SanitizeName(*name)
	return &cleaned
}

// isInvisibleUnicode returns true for zero-width, formatting, and other
// invisible Unicode characters.
func isInvisibleUnicode(r rune) bool {
	switch r {
	case
		'\u200B', // Zero-Width Space
		'\u200C', // Zero-Width Non-Joiner
		'\u200D', // Zero-Width Joiner
		'\u200E', // Left-to-Right Mark
		'\u200F', // Right-to-Left Mark
		'\u2060', // Word Joiner
		'\uFEFF': // Zero-Width No-Break Space / BOM
		return true
	}

	return unicode.Is(unicode.Cf, r)
}
