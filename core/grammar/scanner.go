package grammar

import (
	"unicode/utf8"

	"github.com/alecthomas/participle/v2/lexer"
)

type tokenKind int

const (
	kindInvalid tokenKind = iota
	kindComment
	kindString
	kindChar
	kindNumber
	kindIdent
	kindWhitespace
	kindNewline
	kindContinuation
	kindPunct
)

// Lexer rule names. Every language table uses a subset of these.
const (
	ruleComment      = "Comment"
	ruleString       = "String"
	ruleChar         = "Char"
	ruleNumber       = "Number"
	ruleIdent        = "Ident"
	ruleWhitespace   = "Whitespace"
	ruleNewline      = "Newline"
	ruleContinuation = "Continuation"
	rulePunct        = "Punct"
)

var ruleKinds = map[string]tokenKind{
	ruleComment:      kindComment,
	ruleString:       kindString,
	ruleChar:         kindChar,
	ruleNumber:       kindNumber,
	ruleIdent:        kindIdent,
	ruleWhitespace:   kindWhitespace,
	ruleNewline:      kindNewline,
	ruleContinuation: kindContinuation,
	rulePunct:        kindPunct,
}

type token struct {
	kind   tokenKind
	value  string
	offset int
}

func (t token) end() int {
	return t.offset + len(t.value)
}

// trivia reports whether the token carries no syntax of its own.
func (t token) trivia() bool {
	switch t.kind {
	case kindWhitespace, kindNewline, kindContinuation, kindComment:
		return true
	}
	return false
}

// scanner streams tokens over text[pos:limit]. It can be repositioned, which
// is how directive lines and conditional regions are skipped.
type scanner struct {
	def   *lexer.StatefulDefinition
	kinds map[lexer.TokenType]tokenKind
	text  string
	limit int

	lex    lexer.Lexer
	pos    int // offset just past the last lexed token
	queue  []token
	failed bool
	done   bool
}

func newScanner(g *Grammar, text string, start, limit int) *scanner {
	s := &scanner{def: g.lexer, kinds: g.kinds, text: text, limit: limit}
	s.reset(start)
	return s
}

// reset discards lookahead and continues lexing at offset.
func (s *scanner) reset(offset int) {
	s.queue = s.queue[:0]
	s.pos = offset
	s.failed = false
	s.done = false
	s.lex = nil
	if offset >= s.limit {
		s.done = true
		return
	}
	lex, err := s.def.LexString("", s.text[offset:s.limit])
	if err != nil {
		s.failed, s.done = true, true
		return
	}
	s.lex = lex
}

func (s *scanner) fill(n int) bool {
	for len(s.queue) < n {
		if s.done {
			return false
		}
		tok, err := s.lex.Next()
		if err != nil {
			s.failed, s.done = true, true
			return false
		}
		if tok.EOF() {
			s.done = true
			return false
		}
		t := token{kind: s.kinds[tok.Type], value: tok.Value, offset: s.pos}
		s.pos += len(tok.Value)
		s.queue = append(s.queue, t)
	}
	return true
}

func (s *scanner) next() (token, bool) {
	if !s.fill(1) {
		return token{}, false
	}
	t := s.queue[0]
	s.queue = s.queue[1:]
	return t, true
}

// peek returns the i-th upcoming token without consuming it.
func (s *scanner) peek(i int) (token, bool) {
	if !s.fill(i + 1) {
		return token{}, false
	}
	return s.queue[i], true
}

// nextSignificant returns the first upcoming non-trivia token and whether a
// line break came before it.
func (s *scanner) nextSignificant() (tok token, newline bool, ok bool) {
	for i := 0; ; i++ {
		t, ok := s.peek(i)
		if !ok {
			return token{}, newline, false
		}
		if t.kind == kindNewline {
			newline = true
		}
		if !t.trivia() {
			return t, newline, true
		}
	}
}

// stopped reports the offset where lexing could not continue, or -1.
func (s *scanner) stopped() int {
	if !s.failed {
		return -1
	}
	// Tokens still queued were lexed successfully; the failure is after them.
	return s.pos
}

// lineIndex converts byte offsets into 1-based line and column numbers.
// CR, LF and CRLF all end a line.
type lineIndex struct {
	text   string
	starts []int
}

func newLineIndex(text string) *lineIndex {
	starts := []int{0}
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '\n':
			starts = append(starts, i+1)
		case '\r':
			if i+1 < len(text) && text[i+1] == '\n' {
				i++
			}
			starts = append(starts, i+1)
		}
	}
	return &lineIndex{text: text, starts: starts}
}

func (l *lineIndex) position(offset int) (line, column int) {
	lo, hi := 0, len(l.starts)-1
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if l.starts[mid] <= offset {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return lo + 1, utf8.RuneCountInString(l.text[l.starts[lo]:offset]) + 1
}

// lineStart returns the offset of the first byte of the line holding offset.
func (l *lineIndex) lineStart(offset int) int {
	line, _ := l.position(offset)
	return l.starts[line-1]
}
