package cpp

import (
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// Directive is a preprocessor line split into its parts. Offsets are byte
// offsets into the logical line passed to ParseLine.
type Directive struct {
	// Name is the directive keyword ("if", "define", ...), empty for a
	// null directive consisting of "#" alone.
	Name string
	// Argument is everything after the name with surrounding whitespace
	// removed.
	Argument string

	HashOffset int // offset of '#'
	NameOffset int // offset of Name, or -1
	ArgOffset  int // offset of Argument, or -1
}

// ParseLine recognizes a directive at the start of a logical line: optional
// horizontal whitespace, '#', optional horizontal whitespace, then a name.
// Block comments closed on the same line count as whitespace before '#'.
// Line continuations must already be part of line.
func ParseLine(line string) (Directive, bool) {
	i := skipLeading(line)
	if i >= len(line) || line[i] != '#' {
		return Directive{}, false
	}
	d := Directive{HashOffset: i, NameOffset: -1, ArgOffset: -1}

	i = skipHorizontal(line, i+1)
	start := i
	for i < len(line) && isIdentByte(line[i]) {
		i++
	}
	if i > start {
		d.Name = line[start:i]
		d.NameOffset = start
	}

	rest := strings.TrimRight(line[i:], " \t\r\n\f\v")
	j := skipHorizontal(rest, 0)
	if j < len(rest) {
		d.Argument = rest[j:]
		d.ArgOffset = i + j
	}
	return d, true
}

func skipLeading(s string) int {
	i := skipHorizontal(s, 0)
	for strings.HasPrefix(s[i:], "/*") {
		end := strings.Index(s[i+2:], "*/")
		if end < 0 || strings.ContainsAny(s[i:i+2+end], "\r\n") {
			return i
		}
		i = skipHorizontal(s, i+2+end+2)
	}
	return i
}

func skipHorizontal(s string, i int) int {
	for i < len(s) {
		switch s[i] {
		case ' ', '\t', '\f', '\v':
			i++
		case '\\':
			// A continuation between '#' and the name is still horizontal.
			if strings.HasPrefix(s[i:], "\\\r\n") {
				i += 3
			} else if strings.HasPrefix(s[i:], "\\\n") || strings.HasPrefix(s[i:], "\\\r") {
				i += 2
			} else {
				return i
			}
		default:
			return i
		}
	}
	return i
}

func isIdentByte(b byte) bool {
	return b == '_' || b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9'
}

// zeroCondition is the participle grammar for a constant condition such as
// "0", "(0)" or "0x0UL".
//
//nolint:govet // participle grammar tags are not standard struct tags
type zeroCondition struct {
	Open  []string `parser:"@\"(\"*"`
	Value string   `parser:"@Int"`
	Close []string `parser:"@\")\"*"`
}

var conditionLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Int", Pattern: `0[xX][0-9a-fA-F]+[uUlL]*|[0-9]+[uUlL]*`},
	{Name: "Punct", Pattern: `[()]`},
	{Name: "Comment", Pattern: `//[^\n]*|/\*([^*]|\*+[^*/])*\*+/`},
	{Name: "Whitespace", Pattern: `[ \t\f\v\r\n]+|\\\r?\n`},
})

var conditionParser = participle.MustBuild[zeroCondition](
	participle.Lexer(conditionLexer),
	participle.Elide("Whitespace", "Comment"),
)

// IsZeroCondition reports whether expr is an integer constant equal to zero,
// optionally parenthesized. Macros are never evaluated, so anything else
// reports false.
func IsZeroCondition(expr string) bool {
	parsed, err := conditionParser.ParseString("", expr)
	if err != nil || len(parsed.Open) != len(parsed.Close) {
		return false
	}
	digits := strings.TrimRight(parsed.Value, "uUlL")
	value, err := strconv.ParseUint(digits, 0, 64)
	return err == nil && value == 0
}
