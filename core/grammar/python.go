package grammar

// pyBuilder marks up Python with the off-side rule. Each logical line is a
// statement. A statement ending in ':' opens a block that lasts while the
// following lines are indented deeper than the statement itself.
//
// Blank lines, comment-only lines and line breaks between statements are
// held back until the next statement shows which block they belong to, so
// a block never swallows the blank lines that follow it.
type pyBuilder struct {
	*builder
	pending []token
	depth   int // open brackets
	// atLineStart is set after a line break that ends a logical line.
	atLineStart bool
	// docstring is set while the next statement may be a docstring.
	docstring bool
}

var docstringOwners = map[string]bool{"def": true, "class": true, "async": true}

// softKeywords are keywords only where a statement of theirs can start.
// Anywhere else they are ordinary names.
var softKeywords = map[string]bool{"match": true, "case": true, "type": true}

func (b *pyBuilder) run() {
	b.atLineStart = true
	b.docstring = true
	for !b.stopped {
		tok, ok := b.sc.next()
		if !ok {
			break
		}

		if b.atLineStart && tok.trivia() {
			b.pending = append(b.pending, tok)
			continue
		}

		switch tok.kind {
		case kindWhitespace, kindContinuation:
			b.appendText(tok.value)
			continue
		case kindNewline:
			if b.depth > 0 {
				b.appendText(tok.value)
				continue
			}
			b.endLogicalLine()
			b.pending = append(b.pending, tok)
			continue
		case kindComment:
			b.comment(tok, "line")
			continue
		}

		if b.atLineStart {
			b.startLogicalLine(tok)
		}
		b.statementToken(tok)
	}
	if !b.stopped {
		b.closeAll()
		b.flushPending()
	}
	b.finish()
}

// startLogicalLine closes the blocks the new line is not indented into and
// opens its statement.
func (b *pyBuilder) startLogicalLine(tok token) {
	indent := b.indentOf(tok.offset)
	for {
		e := b.top()
		if e == nil || e.kind != openBlock || indent > e.indent {
			break
		}
		b.pop() // block
		if owner := b.top(); owner != nil && owner.kind == openStmt {
			b.pop()
		}
	}
	b.flushPending()
	b.atLineStart = false

	stmt := b.push(openStmt, "stmt", tok.offset)
	stmt.first = tok.value
	stmt.indent = indent
}

func (b *pyBuilder) endLogicalLine() {
	if e := b.top(); e != nil && e.kind == openStmt {
		b.pop()
	}
	b.atLineStart = true
}

func (b *pyBuilder) flushPending() {
	for _, t := range b.pending {
		if t.kind == kindComment {
			b.comment(t, "line")
			continue
		}
		b.appendText(t.value)
	}
	b.pending = b.pending[:0]
}

func (b *pyBuilder) statementToken(tok token) {
	stmt := b.top()
	docstring := b.docstring
	b.docstring = false

	switch tok.kind {
	case kindIdent:
		if softKeywords[tok.value] {
			b.softWord(stmt, tok)
		} else {
			b.word(tok)
		}
	case kindNumber:
		b.literal(tok, "number")
	case kindString:
		if docstring && stmt != nil && len(stmt.node.Children) == 0 && b.endsLogicalLine() {
			b.comment(tok, "docstring")
		} else {
			b.literal(tok, "string")
		}
	default:
		b.punct(stmt, tok)
	}
}

func (b *pyBuilder) punct(stmt *openElem, tok token) {
	switch tok.value {
	case "(", "[", "{":
		b.depth++
	case ")", "]", "}":
		if b.depth > 0 {
			b.depth--
		}
	case ",", ";":
	case ":":
		if b.depth == 0 && b.endsLogicalLine() {
			b.openBlock(stmt, tok)
			return
		}
		b.leaf("", "operator", tok)
		return
	default:
		b.leaf("", "operator", tok)
		return
	}
	b.appendText(tok.value)
	b.lastEnd = tok.end()
}

func (b *pyBuilder) openBlock(stmt *openElem, tok token) {
	e := b.push(openBlock, "block", tok.offset)
	e.node.AppendText(tok.value)
	b.lastEnd = tok.end()
	if stmt != nil {
		e.indent = stmt.indent
		b.docstring = docstringOwners[stmt.first]
	}
}

// softWord marks a soft keyword as a keyword when it starts a statement of
// its own: match opens a header ending in ':', case is a clause with a ':'
// directly inside a match block, and type is followed by the alias name.
func (b *pyBuilder) softWord(stmt *openElem, tok token) {
	keyword := false
	if stmt != nil && len(stmt.node.Children) == 0 {
		switch tok.value {
		case "match":
			colon, last := b.headerColon()
			keyword = colon && last
		case "case":
			colon, _ := b.headerColon()
			keyword = colon && b.insideMatch()
		case "type":
			next, newline, ok := b.sc.nextSignificant()
			keyword = ok && !newline && next.kind == kindIdent
		}
	}
	if keyword {
		b.leaf("", "keyword", tok)
	} else {
		b.leaf("", "name", tok)
	}
}

// headerColon scans the rest of the logical line for a ':' outside
// brackets with at least one token before it. last reports whether that
// ':' ends the line.
func (b *pyBuilder) headerColon() (colon, last bool) {
	depth, seen := 0, 0
	for i := 0; ; i++ {
		t, ok := b.sc.peek(i)
		if !ok || (t.kind == kindNewline && depth == 0) {
			return colon, colon && last
		}
		if t.trivia() {
			continue
		}
		last = false
		if t.kind == kindPunct {
			switch t.value {
			case "(", "[", "{":
				depth++
			case ")", "]", "}":
				if depth > 0 {
					depth--
				}
			case ":":
				if depth == 0 && seen > 0 {
					colon, last = true, true
				}
			}
		}
		seen++
	}
}

// insideMatch reports whether the open statement sits directly in the
// block of a match statement.
func (b *pyBuilder) insideMatch() bool {
	n := len(b.stack)
	if n < 3 {
		return false
	}
	block, owner := b.stack[n-2], b.stack[n-3]
	return block.kind == openBlock && owner.kind == openStmt && owner.first == "match"
}

// endsLogicalLine reports whether only whitespace and comments remain on
// the current logical line.
func (b *pyBuilder) endsLogicalLine() bool {
	for i := 0; ; i++ {
		t, ok := b.sc.peek(i)
		if !ok {
			return true
		}
		switch t.kind {
		case kindWhitespace, kindComment:
			continue
		case kindNewline:
			return true
		}
		return false
	}
}

// indentOf measures the indentation of the line holding offset, with tabs
// advancing to the next multiple of eight.
func (b *pyBuilder) indentOf(offset int) int {
	width := 0
	for i := b.lines.lineStart(offset); i < offset; i++ {
		switch b.text[i] {
		case '\t':
			width = (width/8 + 1) * 8
		case ' ', '\f':
			width++
		default:
			return width
		}
	}
	return width
}
