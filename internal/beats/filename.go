package beats

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// FileStem turns a beat name into an ASCII, filename-safe stem. Accented
// letters fold to their base letter so "Café" becomes "Cafe".
func FileStem(name string) string {
	folded, _, err := transform.String(transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn))), name)
	if err != nil {
		folded = name
	}
	return stem(folded, func(r rune) bool {
		return r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9'
	})
}

// DisplayStem keeps the name's letters in any script, for the UTF-8 filename
// parameter.
func DisplayStem(name string) string {
	return stem(norm.NFC.String(name), func(r rune) bool {
		return unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.Is(unicode.Mn, r)
	})
}

func stem(name string, keep func(rune) bool) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(name) {
		switch {
		case keep(r), r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ' || r == '.':
			b.WriteRune('_')
		}
	}
	out := strings.Trim(b.String(), "_")
	if out == "" {
		return "beat"
	}
	return out
}

// ContentDisposition builds the header value for kind ("inline" or
// "attachment"). fallback must be ASCII; name is sent as an RFC 5987
// filename* parameter when it differs from fallback.
func ContentDisposition(kind, fallback, name string) string {
	value := kind + `; filename="` + fallback + `"`
	if name == "" || name == fallback {
		return value
	}
	return value + "; filename*=UTF-8''" + encodeExtValue(name)
}

// encodeExtValue percent-encodes every byte outside the RFC 5987 attr-char set.
func encodeExtValue(s string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isAttrChar(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[c>>4])
		b.WriteByte(hex[c&0x0f])
	}
	return b.String()
}

func isAttrChar(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	}
	return strings.IndexByte("!#$&+-.^_`|~", c) >= 0
}
