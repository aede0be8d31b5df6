// Package normalizers cleans and structures the free-text fields of scraped fight records
package normalizers

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
)

// Normalizer is a function that normalizes a string value
type Normalizer func(string) string

// registry holds all registered normalizers
var registry = make(map[string]Normalizer)

func init() {
	Register("lowercase", Lowercase)
	Register("uppercase", Uppercase)
	Register("trim", Trim)
	Register("remove_whitespace", RemoveWhitespace)
	Register("remove_punctuation", RemovePunctuation)
	Register("strip_citations", StripCitations)
	Register("nname", NormalizeName)
	Register("name_key", NameKey)
	Register("text_key", TextKey)
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

// RemovePunctuation removes all punctuation characters
func RemovePunctuation(s string) string {
	var result strings.Builder
	for _, r := range s {
		if !unicode.IsPunct(r) {
			result.WriteRune(r)
		}
	}
	return result.String()
}

var (
	citationRe = regexp.MustCompile(`(?i)\[[^\]]*\]|\((?:c|ic|tc)\)`)
	spaceRe    = regexp.MustCompile(`\s+`)
)

// StripCitations removes wiki citation markers ("[1]", "[citation needed]")
// and champion markers ("(c)") and collapses whitespace.
func StripCitations(s string) string {
	s = citationRe.ReplaceAllString(s, " ")
	return CollapseWhitespace(s)
}

// CollapseWhitespace trims and reduces every whitespace run to one space
func CollapseWhitespace(s string) string {
	return strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
}

var nameSuffixes = map[string]bool{
	"jr": true, "sr": true, "ii": true, "iii": true, "iv": true,
}

// NormalizeName normalizes a person's name for comparison
// - Lowercase
// - Remove citations and punctuation (hyphens become spaces)
// - Remove generational suffixes (Jr., Sr., III, etc.)
func NormalizeName(s string) string {
	s = strings.ToLower(StripCitations(s))

	var result strings.Builder
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsMark(r):
			result.WriteRune(r)
		case r == '-' || r == ',' || unicode.IsSpace(r):
			result.WriteRune(' ')
		}
	}

	tokens := strings.Fields(result.String())
	for len(tokens) > 1 && nameSuffixes[tokens[len(tokens)-1]] {
		tokens = tokens[:len(tokens)-1]
	}
	return strings.Join(tokens, " ")
}

// NameKey is the order-insensitive identity key of a name, used for exact
// identity lookups and lock keys. "Jones, Jon" and "jon jones" share a key.
func NameKey(s string) string {
	tokens := strings.Fields(NormalizeName(s))
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}

// TextKey normalizes free text such as event names and locations:
// lowercase, no punctuation, single spaces.
func TextKey(s string) string {
	s = strings.ToLower(StripCitations(s))

	var result strings.Builder
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsMark(r):
			result.WriteRune(r)
		case unicode.IsSpace(r) || unicode.IsPunct(r) || unicode.IsSymbol(r):
			result.WriteRune(' ')
		}
	}
	return CollapseWhitespace(result.String())
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
