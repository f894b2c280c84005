// Package query runs XPath expressions over the units of an archive.
//
// Each unit is rendered to XML and parsed with xmlquery, which resolves
// namespace prefixes through encoding/xml and never fetches external
// entities. Prefixes in an expression bind through the archive's namespace
// table, so cpp:if selects preprocessor elements whatever prefix a reader
// used for them.
package query

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/FocuswithJustin/srcmark/core/archive"
	"github.com/FocuswithJustin/srcmark/core/errors"
	"github.com/FocuswithJustin/srcmark/core/markup"
	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"
)

// Output selects how results are written.
type Output string

const (
	OutputXML  Output = "xml"
	OutputText Output = "text"
)

// ParseOutput parses an output name. Empty means XML.
func ParseOutput(s string) (Output, error) {
	switch strings.ToLower(s) {
	case "", "xml":
		return OutputXML, nil
	case "text":
		return OutputText, nil
	}
	return "", errors.NewValidation("output", "unknown query output "+strconv.Quote(s))
}

// Query is a compiled expression.
type Query struct {
	source string
	expr   *xpath.Expr
}

// Compile compiles expr with the prefixes of ns. The default namespace is
// left out: unprefixed names match unprefixed source elements.
func Compile(expr string, ns *markup.Namespaces) (*Query, error) {
	bindings := make(map[string]string)
	if ns != nil {
		for _, b := range ns.All() {
			if b.Prefix != "" {
				bindings[b.Prefix] = b.URI
			}
		}
	}
	compiled, err := xpath.CompileWithNS(expr, bindings)
	if err != nil {
		return nil, &errors.ParseError{Format: "XPath", Message: expr, Err: err}
	}
	return &Query{source: expr, expr: compiled}, nil
}

// String returns the expression as written.
func (q *Query) String() string { return q.source }

// Result is one match. Node is set for node-set results; Value holds the
// number, string or boolean a scalar expression evaluated to.
type Result struct {
	// Position is the 1-based unit position.
	Position int
	Filename string
	Node     *xmlquery.Node
	Value    any
}

// Unit evaluates q against one unit.
func (q *Query) Unit(position int, u *markup.Unit, ns *markup.Namespaces) ([]Result, error) {
	data, err := markup.MarshalXML(u, ns)
	if err != nil {
		return nil, err
	}
	doc, err := xmlquery.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrapf(err, "unit %d", position)
	}

	v := q.expr.Evaluate(xmlquery.CreateXPathNavigator(doc))
	iter, ok := v.(*xpath.NodeIterator)
	if !ok {
		return []Result{{Position: position, Filename: u.Filename, Value: v}}, nil
	}
	var results []Result
	for iter.MoveNext() {
		nav, ok := iter.Current().(*xmlquery.NodeNavigator)
		if !ok {
			continue
		}
		results = append(results, Result{Position: position, Filename: u.Filename, Node: nav.Current()})
	}
	return results, nil
}

// Archive evaluates q against every unit of a in order.
func (q *Query) Archive(a *archive.Archive) ([]Result, error) {
	ns := a.Namespaces()
	var results []Result
	for i, u := range a.Iterate() {
		r, err := q.Unit(i+1, u, ns)
		if err != nil {
			return nil, err
		}
		results = append(results, r...)
	}
	return results, nil
}

// Run compiles expr with the archive's namespace table and evaluates it.
func Run(a *archive.Archive, expr string) ([]Result, error) {
	q, err := Compile(expr, a.Namespaces())
	if err != nil {
		return nil, err
	}
	return q.Archive(a)
}

// Text returns the character content of the result. Escaped characters are
// restored, so the text of a whole unit is its source.
func (r Result) Text() string {
	if r.Node == nil {
		return scalar(r.Value)
	}
	var sb strings.Builder
	writeText(&sb, r.Node)
	return sb.String()
}

// XML returns the result as markup. Attributes render as name="value".
func (r Result) XML() string {
	if r.Node == nil {
		return scalar(r.Value)
	}
	if r.Node.Type == xmlquery.AttributeNode {
		return fmt.Sprintf("%s=%q", qname(r.Node), r.Text())
	}
	return r.Node.OutputXML(true)
}

// Write writes each result on its own line.
func Write(w io.Writer, results []Result, out Output) error {
	for _, r := range results {
		s := r.XML()
		if out == OutputText {
			s = r.Text()
		}
		if !strings.HasSuffix(s, "\n") {
			s += "\n"
		}
		if _, err := io.WriteString(w, s); err != nil {
			return errors.NewIO("write", "query results", err)
		}
	}
	return nil
}

func writeText(sb *strings.Builder, n *xmlquery.Node) {
	switch n.Type {
	case xmlquery.TextNode, xmlquery.CharDataNode:
		sb.WriteString(n.Data)
		return
	case xmlquery.CommentNode, xmlquery.DeclarationNode:
		return
	case xmlquery.ElementNode:
		if n.Prefix == "" && n.Data == "escape" {
			if v, err := strconv.ParseUint(n.SelectAttr("char"), 0, 32); err == nil {
				sb.WriteRune(rune(v))
			}
			return
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		writeText(sb, c)
	}
}

func qname(n *xmlquery.Node) string {
	if n.Prefix == "" {
		return n.Data
	}
	return n.Prefix + ":" + n.Data
}

func scalar(v any) string {
	switch x := v.(type) {
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case string:
		return x
	}
	return fmt.Sprint(v)
}
