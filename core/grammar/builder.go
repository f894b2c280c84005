package grammar

import (
	"fmt"
	"strings"

	"github.com/FocuswithJustin/srcmark/core/errors"
	"github.com/FocuswithJustin/srcmark/core/markup"
)

type openKind int

const (
	openStmt openKind = iota
	openBlock
)

// openElem is an element still accepting children.
type openElem struct {
	node  *markup.Node
	kind  openKind
	start int
	// parens counts unclosed ( and [ inside a statement.
	parens int
	// first is the first significant word of a statement.
	first string
	// indent is the header indentation of a Python block.
	indent int
}

// builder is the state shared by the language families: the text window
// being marked up, the open element stack and the collected warnings.
type builder struct {
	g     *Grammar
	text  string
	start int
	limit int
	opts  Options
	lines *lineIndex
	sc    *scanner

	root     *markup.Node
	stack    []*openElem
	lastEnd  int
	warnings []*errors.ParseRecoveryWarning
	stopped  bool
}

func newBuilder(g *Grammar, text string, start, limit int, opts Options, lines *lineIndex, root *markup.Node) *builder {
	return &builder{
		g:       g,
		text:    text,
		start:   start,
		limit:   limit,
		opts:    opts,
		lines:   lines,
		sc:      newScanner(g, text, start, limit),
		root:    root,
		lastEnd: start,
	}
}

// sub returns a builder for text[start:limit] that appends to root and
// shares the line index and options.
func (b *builder) sub(start, limit int, root *markup.Node) *builder {
	return newBuilder(b.g, b.text, start, limit, b.opts, b.lines, root)
}

func (b *builder) current() *markup.Node {
	if len(b.stack) == 0 {
		return b.root
	}
	return b.stack[len(b.stack)-1].node
}

func (b *builder) top() *openElem {
	if len(b.stack) == 0 {
		return nil
	}
	return b.stack[len(b.stack)-1]
}

func (b *builder) appendText(s string) {
	b.current().AppendText(s)
}

func (b *builder) appendNode(n *markup.Node) {
	b.current().Append(n)
}

// leaf appends an element holding the token text.
func (b *builder) leaf(prefix, name string, tok token) *markup.Node {
	n := markup.Element(prefix, name, markup.Text(tok.value))
	b.mark(n, tok.offset, tok.end())
	b.appendNode(n)
	b.lastEnd = tok.end()
	return n
}

func (b *builder) push(kind openKind, name string, start int) *openElem {
	n := markup.Element("", name)
	b.appendNode(n)
	e := &openElem{node: n, kind: kind, start: start}
	b.stack = append(b.stack, e)
	return e
}

// pop closes the innermost open element.
func (b *builder) pop() *openElem {
	e := b.stack[len(b.stack)-1]
	b.stack = b.stack[:len(b.stack)-1]
	end := b.lastEnd
	if end < e.start {
		end = e.start
	}
	b.mark(e.node, e.start, end)
	return e
}

func (b *builder) closeAll() {
	for len(b.stack) > 0 {
		b.pop()
	}
}

// mark sets position attributes covering text[start:end].
func (b *builder) mark(n *markup.Node, start, end int) {
	if !b.opts.Positions || end <= start {
		return
	}
	line, col := b.lines.position(start)
	n.SetAttr(markup.PosPrefix, "start", fmt.Sprintf("%d:%d", line, col))
	line, col = b.lines.position(b.lastRuneStart(end))
	n.SetAttr(markup.PosPrefix, "end", fmt.Sprintf("%d:%d", line, col))
}

func (b *builder) lastRuneStart(end int) int {
	i := end - 1
	for i > 0 && b.text[i]&0xC0 == 0x80 {
		i--
	}
	return i
}

// recover gives up on markup at offset: open elements are closed, the rest
// of the window becomes one text leaf of the root, and a warning is kept.
func (b *builder) recover(offset int, reason string) {
	b.closeAll()
	if offset < b.limit {
		b.root.AppendText(b.text[offset:b.limit])
	}
	line, col := b.lines.position(offset)
	b.warnings = append(b.warnings, &errors.ParseRecoveryWarning{
		Language: b.g.Language,
		Filename: b.opts.Filename,
		Line:     line,
		Column:   col,
		Reason:   reason,
	})
	b.stopped = true
	b.sc.reset(b.limit)
}

// finish closes what is still open and handles a lexer that stopped early.
func (b *builder) finish() {
	if b.stopped {
		return
	}
	if at := b.sc.stopped(); at >= 0 {
		b.recover(at, fmt.Sprintf("no token matches %q", sample(b.text[at:b.limit])))
		return
	}
	b.closeAll()
}

func sample(s string) string {
	if i := strings.IndexAny(s, "\r\n"); i >= 0 {
		s = s[:i]
	}
	r := []rune(s)
	if len(r) > 16 {
		return string(r[:16]) + "..."
	}
	return string(r)
}

// word appends a keyword or name element for an identifier token.
func (b *builder) word(tok token) {
	if b.g.IsKeyword(tok.value) {
		b.leaf("", "keyword", tok)
	} else {
		b.leaf("", "name", tok)
	}
}

// literal appends a literal element for string, char and number tokens.
func (b *builder) literal(tok token, kind string) {
	n := b.leaf("", "literal", tok)
	n.SetAttr("", "type", kind)
}

// comment appends a comment element. Line comments do not include the line
// break.
func (b *builder) comment(tok token, kind string) {
	n := b.leaf("", "comment", tok)
	n.SetAttr("", "type", kind)
}

func commentKind(value string) string {
	if strings.HasPrefix(value, "/*") {
		return "block"
	}
	return "line"
}
