package grammar

import (
	"strings"

	"github.com/FocuswithJustin/srcmark/core/cpp"
	"github.com/FocuswithJustin/srcmark/core/markup"
)

// cBuilder marks up C, C++, C# and Java. Statements run up to a ';' outside
// parentheses, braces open blocks, and in preprocessor languages every line
// starting with '#' becomes a directive element.
type cBuilder struct {
	*builder
	machine  cpp.Machine
	fragment bool
}

// Statements whose block may be followed by another clause of the same
// statement, keyed by their first word.
var clauseKeywords = map[string]map[string]bool{
	"if":   {"else": true},
	"else": {"else": true},
	"do":   {"while": true},
	"try":  {"catch": true, "finally": true},
}

var directiveElements = map[string]bool{
	"if": true, "ifdef": true, "ifndef": true, "elif": true, "else": true, "endif": true,
	"define": true, "undef": true, "include": true, "import": true, "pragma": true,
	"error": true, "warning": true, "line": true, "region": true, "endregion": true,
	"nullable": true,
}

func (b *cBuilder) run() {
	lineStart := true
	for !b.stopped {
		tok, ok := b.sc.next()
		if !ok {
			break
		}

		switch tok.kind {
		case kindWhitespace, kindContinuation:
			b.appendText(tok.value)
			continue
		case kindNewline:
			b.appendText(tok.value)
			lineStart = true
			continue
		}

		if lineStart && b.g.Preprocessor && tok.kind == kindPunct && tok.value == "#" {
			b.directive(tok.offset)
			lineStart = false
			continue
		}
		if tok.kind == kindComment {
			b.comment(tok, commentKind(tok.value))
			// A block comment within one line is whitespace to the
			// preprocessor.
			if commentKind(tok.value) != "block" || strings.ContainsAny(tok.value, "\r\n") {
				lineStart = false
			}
			continue
		}
		lineStart = false

		switch {
		case tok.kind == kindPunct && tok.value == "{":
			b.openBlock(tok)
		case tok.kind == kindPunct && tok.value == "}":
			b.closeBlock(tok)
		default:
			b.statementToken(tok)
		}
	}
	b.finish()
}

func (b *cBuilder) statementToken(tok token) {
	stmt := b.top()
	if stmt == nil || stmt.kind != openStmt {
		stmt = b.push(openStmt, "stmt", tok.offset)
		stmt.first = tok.value
	}

	switch tok.kind {
	case kindIdent:
		b.word(tok)
	case kindString:
		b.literal(tok, "string")
	case kindChar:
		b.literal(tok, "char")
	case kindNumber:
		b.literal(tok, "number")
	default:
		b.punct(stmt, tok)
	}
}

func (b *cBuilder) punct(stmt *openElem, tok token) {
	switch tok.value {
	case "(", "[":
		stmt.parens++
	case ")", "]":
		if stmt.parens > 0 {
			stmt.parens--
		}
	case ",":
	case ";":
		b.appendText(tok.value)
		b.lastEnd = tok.end()
		if stmt.parens == 0 {
			b.pop()
		}
		return
	default:
		b.leaf("", "operator", tok)
		return
	}
	b.appendText(tok.value)
	b.lastEnd = tok.end()
}

func (b *cBuilder) openBlock(tok token) {
	e := b.push(openBlock, "block", tok.offset)
	e.node.AppendText(tok.value)
	b.lastEnd = tok.end()
}

func (b *cBuilder) closeBlock(tok token) {
	depth := -1
	for i := len(b.stack) - 1; i >= 0; i-- {
		if b.stack[i].kind == openBlock {
			depth = i
			break
		}
	}
	if depth < 0 {
		if b.fragment {
			b.appendText(tok.value)
			b.lastEnd = tok.end()
			return
		}
		b.recover(tok.offset, "'}' without an open block")
		return
	}

	for len(b.stack)-1 > depth {
		b.pop()
	}
	b.appendText(tok.value)
	b.lastEnd = tok.end()
	b.pop()

	stmt := b.top()
	if stmt == nil || stmt.kind != openStmt || stmt.parens > 0 {
		return
	}
	if !b.statementContinues(stmt) {
		b.pop()
	}
}

// statementContinues decides whether the statement that owns a block just
// closed goes on after the '}'.
func (b *cBuilder) statementContinues(stmt *openElem) bool {
	next, newline, ok := b.sc.nextSignificant()
	if !ok {
		return false
	}
	switch next.kind {
	case kindPunct:
		switch next.value {
		case ";", ",", "=", ")", "]":
			return true
		}
		return false
	case kindIdent:
		if b.g.IsKeyword(next.value) {
			return clauseKeywords[stmt.first][next.value]
		}
		return !newline
	}
	return false
}

// directive marks up the preprocessor line starting at hash and, when it
// opens an inactive branch, the regions that follow.
func (b *cBuilder) directive(hash int) {
	end := logicalLineEnd(b.text, hash, b.limit)
	d, _ := cpp.ParseLine(b.text[hash:end])
	effect := b.machine.Apply(d)
	if effect.Stray {
		b.recover(hash, "#"+d.Name+" without matching #if")
		return
	}
	b.appendNode(b.directiveElement(d, hash, end))
	b.lastEnd = end

	for effect.BeginRegion {
		start := afterLineBreak(b.text, end, b.limit)
		b.appendText(b.text[end:start])

		closeLine, closeHash, closeEnd, closeEffect, found := b.scanRegion(start)
		b.region(effect.State, start, closeLine)
		if !found {
			end = b.limit
			break
		}

		b.appendText(b.text[closeLine:closeHash])
		cd, _ := cpp.ParseLine(b.text[closeHash:closeEnd])
		b.appendNode(b.directiveElement(cd, closeHash, closeEnd))
		b.lastEnd = closeEnd
		effect, end = closeEffect, closeEnd
	}
	b.sc.reset(end)
}

// scanRegion walks lines from start until a directive ends the current
// inactive branch. It returns the offset of that line, the span of the
// directive itself and its effect.
func (b *cBuilder) scanRegion(start int) (lineAt, hash, end int, effect cpp.Effect, found bool) {
	for p := start; p < b.limit; {
		lineEnd := logicalLineEnd(b.text, p, b.limit)
		if d, ok := cpp.ParseLine(b.text[p:lineEnd]); ok {
			if eff := b.machine.Apply(d); eff.EndRegion {
				return p, p + d.HashOffset, lineEnd, eff, true
			}
		}
		next := afterLineBreak(b.text, lineEnd, b.limit)
		if next == lineEnd {
			break
		}
		p = next
	}
	return b.limit, b.limit, b.limit, cpp.Effect{}, false
}

// region appends the inactive span text[start:end] using the policy for
// its state.
func (b *cBuilder) region(state cpp.State, start, end int) {
	policy := b.opts.Policies.For(state)
	n := markup.Element(markup.CppPrefix, "region")
	n.SetAttr("", "state", state.String())
	n.SetAttr("", "policy", policy.String())
	b.mark(n, start, end)
	b.appendNode(n)
	if start >= end {
		return
	}

	if policy == cpp.TextOnly {
		n.AppendText(b.text[start:end])
		return
	}
	inner := &cBuilder{builder: b.sub(start, end, n), fragment: true}
	inner.run()
	b.warnings = append(b.warnings, inner.warnings...)
}

// directiveElement builds the element for the directive text[hash:end]:
// "#", the directive name and its argument, with the original spacing kept
// as text.
func (b *cBuilder) directiveElement(d cpp.Directive, hash, end int) *markup.Node {
	line := b.text[hash:end]
	name := "empty"
	if d.Name != "" {
		name = "unknown"
		if directiveElements[d.Name] {
			name = d.Name
		}
	}
	n := markup.Element(markup.CppPrefix, name, markup.Text("#"))
	b.mark(n, hash, end)

	cursor := d.HashOffset + 1
	if d.NameOffset >= 0 {
		n.AppendText(line[cursor:d.NameOffset])
		n.Append(markup.Element(markup.CppPrefix, "directive", markup.Text(d.Name)))
		cursor = d.NameOffset + len(d.Name)
	}
	if d.ArgOffset >= 0 {
		n.AppendText(line[cursor:d.ArgOffset])
		n.Append(directiveArgument(d)...)
		cursor = d.ArgOffset + len(d.Argument)
	}
	n.AppendText(line[cursor:])
	return n
}

func directiveArgument(d cpp.Directive) []*markup.Node {
	arg := d.Argument
	switch d.Name {
	case "include", "import":
		return []*markup.Node{markup.Element(markup.CppPrefix, "file", markup.Text(arg))}
	case "if", "elif":
		return []*markup.Node{markup.Element(markup.CppPrefix, "expr", markup.Text(arg))}
	case "ifdef", "ifndef", "undef":
		return []*markup.Node{markup.Element("", "name", markup.Text(arg))}
	case "define":
		k := macroEnd(arg)
		nodes := []*markup.Node{markup.Element(markup.CppPrefix, "macro", markup.Text(arg[:k]))}
		rest := arg[k:]
		i := 0
		for i < len(rest) && (rest[i] == ' ' || rest[i] == '\t') {
			i++
		}
		nodes = append(nodes, markup.Text(rest[:i]))
		if i < len(rest) {
			nodes = append(nodes, markup.Element(markup.CppPrefix, "value", markup.Text(rest[i:])))
		}
		return nodes
	}
	return []*markup.Node{markup.Text(arg)}
}

// macroEnd returns the length of the macro name and its parameter list.
func macroEnd(arg string) int {
	k := 0
	for k < len(arg) && (arg[k] == '_' || arg[k] == '$' || arg[k] >= 'a' && arg[k] <= 'z' ||
		arg[k] >= 'A' && arg[k] <= 'Z' || arg[k] >= '0' && arg[k] <= '9' || arg[k] >= 0x80) {
		k++
	}
	if k < len(arg) && arg[k] == '(' {
		depth := 0
		for j := k; j < len(arg); j++ {
			switch arg[j] {
			case '(':
				depth++
			case ')':
				depth--
				if depth == 0 {
					return j + 1
				}
			}
		}
		return len(arg)
	}
	if k == 0 {
		return len(arg)
	}
	return k
}

// logicalLineEnd returns the offset of the line break that ends the logical
// line starting at p, following backslash continuations, or limit.
func logicalLineEnd(text string, p, limit int) int {
	for i := p; i < limit; i++ {
		if text[i] != '\n' && text[i] != '\r' {
			continue
		}
		if i > p && text[i-1] == '\\' {
			if text[i] == '\r' && i+1 < limit && text[i+1] == '\n' {
				i++
			}
			continue
		}
		return i
	}
	return limit
}

// afterLineBreak skips the line break at i, if any.
func afterLineBreak(text string, i, limit int) int {
	if i >= limit {
		return i
	}
	if text[i] == '\r' {
		if i+1 < limit && text[i+1] == '\n' {
			return i + 2
		}
		return i + 1
	}
	if text[i] == '\n' {
		return i + 1
	}
	return i
}
