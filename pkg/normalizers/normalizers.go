// Package normalizers provides field normalization functions for match indexing
package normalizers

import (
	"strings"
	"unicode"
)

// Normalizer is a function that normalizes a string value
type Normalizer func(string) string

// registry holds all registered normalizers
var registry = make(map[string]Normalizer)

func init() {
	// Register built-in normalizers
	Register("lowercase", Lowercase)
	Register("uppercase", Uppercase)
	Register("trim", Trim)
	Register("ncode", NormalizeCode)
	Register("nentity", NormalizeEntityName)
	Register("nponumber", NormalizePONumber)
	Register("ncurrency", NormalizeCurrency)
	Register("remove_whitespace", RemoveWhitespace)
	Register("alphanumeric", Alphanumeric)
}

// Register adds a normalizer to the registry
func Register(name string, fn Normalizer) {
	registry[name] = fn
}

// Get retrieves a normalizer by name
func Get(name string) (Normalizer, bool) {
	fn, ok := registry[name]
	return fn, ok
}

// Apply applies a named normalizer to a value
func Apply(value, normalizer string) string {
	fn, ok := registry[normalizer]
	if !ok {
		return value
	}
	return fn(value)
}

// ApplyChain applies multiple normalizers in sequence
func ApplyChain(value string, normalizers ...string) string {
	result := value
	for _, name := range normalizers {
		result = Apply(result, name)
	}
	return result
}

// Built-in normalizers

// Lowercase converts string to lowercase
func Lowercase(s string) string {
	return strings.ToLower(s)
}

// Uppercase converts string to uppercase
func Uppercase(s string) string {
	return strings.ToUpper(s)
}

// Trim removes leading and trailing whitespace
func Trim(s string) string {
	return strings.TrimSpace(s)
}

// RemoveWhitespace removes all whitespace characters
func RemoveWhitespace(s string) string {
	var result strings.Builder
	for _, r := range s {
		if !unicode.IsSpace(r) {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// Alphanumeric keeps only alphanumeric characters
func Alphanumeric(s string) string {
	var result strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// NormalizeCode normalizes a supplier or material code for exact matching
// - Uppercase
// - Trim
// - Keep only letters, digits, dash and underscore
func NormalizeCode(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	var result strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// legalSuffixes are corporate form suffixes stripped from entity names before
// matching. Ordered longest-first so "incorporated" wins over "inc".
var legalSuffixes = []string{
	"incorporated", "corporation", "company", "limited",
	"gmbh", "corp", "inc", "llc", "ltd", "plc", "co", "sa",
}

// NormalizeEntityName normalizes a supplier name or material description for
// matching
// - Lowercase
// - Remove punctuation
// - Remove trailing legal suffixes (Inc, Ltd, GmbH, etc.)
// - Collapse whitespace
func NormalizeEntityName(s string) string {
	s = strings.ToLower(s)

	var cleaned strings.Builder
	prevSpace := false
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			cleaned.WriteRune(r)
			prevSpace = false
		} else if !prevSpace {
			cleaned.WriteRune(' ')
			prevSpace = true
		}
	}
	s = strings.TrimSpace(cleaned.String())

	for stripped := true; stripped; {
		stripped = false
		for _, suffix := range legalSuffixes {
			if s == suffix {
				continue
			}
			if strings.HasSuffix(s, " "+suffix) {
				s = strings.TrimSpace(s[:len(s)-len(suffix)-1])
				stripped = true
				break
			}
		}
	}

	return s
}

// NormalizePONumber normalizes a purchase order number for duplicate detection
func NormalizePONumber(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// NormalizeCurrency normalizes a currency code to its ISO 4217 form
func NormalizeCurrency(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
