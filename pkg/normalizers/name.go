package normalizers

import (
	"regexp"
	"strings"
	"unicode"
)

// ParsedName is the structured form of a raw competitor name
type ParsedName struct {
	GivenName    string `json:"given_name"`
	FamilyName   string `json:"family_name"`
	DisplayName  string `json:"display_name"`
	IsSingleName bool   `json:"is_single_name"`
	// Nickname is a quoted nickname found inside the raw name, e.g. Jon "Bones" Jones
	Nickname string `json:"nickname,omitempty"`
	// Degraded is set when the raw value could not be structured and the
	// result is a best-effort single field
	Degraded bool   `json:"degraded,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

type parseOptions struct {
	singleNames map[string]bool
}

// ParseOption configures ParseName
type ParseOption func(*parseOptions)

// WithSingleNames marks names that are always single-name competitors,
// compared case-insensitively ("Shogun", "Cyborg").
func WithSingleNames(names ...string) ParseOption {
	return func(o *parseOptions) {
		for _, name := range names {
			o.singleNames[NormalizeName(name)] = true
		}
	}
}

var nicknameRe = regexp.MustCompile(`["“”]([^"“”]+)["“”]`)

// ParseName cleans a raw name and splits it into given and family parts.
// It never fails: malformed input degrades to a single best-effort field.
func ParseName(raw string, opts ...ParseOption) ParsedName {
	options := parseOptions{singleNames: map[string]bool{}}
	for _, opt := range opts {
		opt(&options)
	}

	s := StripCitations(raw)

	var nickname string
	if m := nicknameRe.FindStringSubmatch(s); m != nil {
		nickname = CollapseWhitespace(m[1])
		s = nicknameRe.ReplaceAllString(s, " ")
	}

	s = rotateCommaOrder(s)
	s = cleanNameRunes(s)

	if s == "" {
		given := CollapseWhitespace(raw)
		return ParsedName{
			GivenName:    given,
			DisplayName:  given,
			IsSingleName: true,
			Nickname:     nickname,
			Degraded:     true,
			Reason:       "no name characters after cleaning",
		}
	}

	tokens := strings.Fields(s)
	if len(tokens) == 1 || options.singleNames[NormalizeName(s)] {
		return ParsedName{
			GivenName:    s,
			DisplayName:  s,
			IsSingleName: true,
			Nickname:     nickname,
		}
	}

	familyStart := len(tokens) - 1
	if familyStart >= 2 && nameSuffixes[strings.ToLower(strings.Trim(tokens[familyStart], ".'"))] {
		familyStart--
	}
	given := strings.Join(tokens[:familyStart], " ")
	family := strings.Join(tokens[familyStart:], " ")

	if given == "" {
		return ParsedName{
			GivenName:    s,
			DisplayName:  s,
			IsSingleName: true,
			Nickname:     nickname,
			Degraded:     true,
			Reason:       "empty given name after split",
		}
	}

	return ParsedName{
		GivenName:   given,
		FamilyName:  family,
		DisplayName: given + " " + family,
		Nickname:    nickname,
	}
}

// rotateCommaOrder turns "Jones, Jon" into "Jon Jones". A trailing
// generational suffix ("Jon Jones, Jr.") is not treated as a given name.
func rotateCommaOrder(s string) string {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return strings.ReplaceAll(s, ",", " ")
	}
	family := strings.TrimSpace(parts[0])
	given := strings.TrimSpace(parts[1])
	if family == "" || given == "" {
		return family + given
	}
	if nameSuffixes[strings.ToLower(strings.Trim(given, ". "))] {
		return family + " " + given
	}
	return given + " " + family
}

// cleanNameRunes keeps letters, combining marks, hyphens and apostrophes.
// Tokens made only of hyphens or apostrophes are dropped.
func cleanNameRunes(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsMark(r):
			b.WriteRune(r)
		case r == '-' || r == '\'' || r == '’':
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
	}

	tokens := strings.Fields(b.String())
	kept := tokens[:0]
	for _, token := range tokens {
		if strings.Trim(token, "-'’") != "" {
			kept = append(kept, token)
		}
	}
	return strings.Join(kept, " ")
}
