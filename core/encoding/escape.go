package encoding

import (
	"strings"
	"unicode/utf8"
)

// textEscaper escapes character data. CR is written as a character reference
// because XML parsers fold bare CR and CRLF into LF.
var textEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	"\r", "&#xD;",
)

// attrEscaper additionally protects quotes and the whitespace characters that
// attribute value normalization would turn into spaces.
var attrEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	"\"", "&quot;",
	"\t", "&#x9;",
	"\n", "&#xA;",
	"\r", "&#xD;",
)

// EscapeXMLText escapes s for use as XML character data. Characters that are
// not legal XML (see IsXMLChar) must be split out by the caller first.
func EscapeXMLText(s string) string {
	return textEscaper.Replace(s)
}

// EscapeXMLAttr escapes s for use inside a double-quoted XML attribute.
func EscapeXMLAttr(s string) string {
	return attrEscaper.Replace(s)
}

// IsXMLChar reports whether r may appear in an XML 1.0 document.
func IsXMLChar(r rune) bool {
	switch {
	case r == 0x09 || r == 0x0A || r == 0x0D:
		return true
	case r >= 0x20 && r <= 0xD7FF:
		return true
	case r >= 0xE000 && r <= 0xFFFD:
		return true
	case r >= 0x10000 && r <= 0x10FFFF:
		return true
	}
	return false
}

// SplitXMLText breaks s into runs of legal XML text and single illegal runes.
// Each illegal rune is reported through escape, each legal run through text,
// in order.
func SplitXMLText(s string, text func(string), escape func(rune)) {
	start := 0
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if IsXMLChar(r) {
			i += size
			continue
		}
		if start < i {
			text(s[start:i])
		}
		escape(r)
		i += size
		start = i
	}
	if start < len(s) {
		text(s[start:])
	}
}
