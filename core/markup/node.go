// Package markup is the structured form of a source unit: an ordered tree of
// elements and text leaves whose text, read in document order, is exactly the
// normalized source text.
package markup

import (
	"strings"
)

// Kind distinguishes the two node variants.
type Kind int

const (
	ElementNode Kind = iota
	TextNode
)

// Attr is an attribute on an element. Prefix is empty for unqualified names.
type Attr struct {
	Prefix string
	Name   string
	Value  string
}

// QName returns the attribute name as written in XML.
func (a Attr) QName() string {
	return qname(a.Prefix, a.Name)
}

// Node is either a structural element or a text leaf.
type Node struct {
	Kind     Kind
	Prefix   string
	Name     string
	Attrs    []Attr
	Children []*Node
	// Value holds the characters of a text leaf.
	Value string
}

// Element creates an element node with the given children.
func Element(prefix, name string, children ...*Node) *Node {
	n := &Node{Kind: ElementNode, Prefix: prefix, Name: name}
	n.Append(children...)
	return n
}

// Text creates a text leaf.
func Text(s string) *Node {
	return &Node{Kind: TextNode, Value: s}
}

// IsText reports whether n is a text leaf.
func (n *Node) IsText() bool {
	return n.Kind == TextNode
}

// QName returns the element name as written in XML.
func (n *Node) QName() string {
	return qname(n.Prefix, n.Name)
}

// Is reports whether n is the element prefix:name.
func (n *Node) Is(prefix, name string) bool {
	return n.Kind == ElementNode && n.Prefix == prefix && n.Name == name
}

// Append adds children in order. Empty text leaves are dropped and a text
// leaf following another text leaf is merged into it, so a tree has one
// canonical shape for a given sequence of content.
func (n *Node) Append(children ...*Node) *Node {
	for _, c := range children {
		if c == nil {
			continue
		}
		if c.Kind == TextNode {
			if c.Value == "" {
				continue
			}
			if last := n.lastChild(); last != nil && last.Kind == TextNode {
				last.Value += c.Value
				continue
			}
		}
		n.Children = append(n.Children, c)
	}
	return n
}

// AppendText appends s as text content.
func (n *Node) AppendText(s string) *Node {
	return n.Append(Text(s))
}

func (n *Node) lastChild() *Node {
	if len(n.Children) == 0 {
		return nil
	}
	return n.Children[len(n.Children)-1]
}

// SetAttr sets or replaces an attribute.
func (n *Node) SetAttr(prefix, name, value string) *Node {
	for i := range n.Attrs {
		if n.Attrs[i].Prefix == prefix && n.Attrs[i].Name == name {
			n.Attrs[i].Value = value
			return n
		}
	}
	n.Attrs = append(n.Attrs, Attr{Prefix: prefix, Name: name, Value: value})
	return n
}

// Attr returns the value of an attribute.
func (n *Node) Attr(prefix, name string) (string, bool) {
	for _, a := range n.Attrs {
		if a.Prefix == prefix && a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}

// TextContent concatenates every text leaf under n in document order.
func (n *Node) TextContent() string {
	var sb strings.Builder
	n.writeText(&sb)
	return sb.String()
}

func (n *Node) writeText(sb *strings.Builder) {
	if n.Kind == TextNode {
		sb.WriteString(n.Value)
		return
	}
	for _, c := range n.Children {
		c.writeText(sb)
	}
}

// Walk visits n and its descendants depth first. Returning false from fn
// skips the children of the node just visited.
func (n *Node) Walk(fn func(*Node) bool) {
	if !fn(n) {
		return
	}
	for _, c := range n.Children {
		c.Walk(fn)
	}
}

// Clone returns a deep copy of n.
func (n *Node) Clone() *Node {
	c := &Node{Kind: n.Kind, Prefix: n.Prefix, Name: n.Name, Value: n.Value}
	if len(n.Attrs) > 0 {
		c.Attrs = append([]Attr(nil), n.Attrs...)
	}
	if len(n.Children) > 0 {
		c.Children = make([]*Node, len(n.Children))
		for i, child := range n.Children {
			c.Children[i] = child.Clone()
		}
	}
	return c
}

// Equal reports whether two trees have the same shape, names, attributes
// and text.
func Equal(a, b *Node) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Kind != b.Kind || a.Prefix != b.Prefix || a.Name != b.Name || a.Value != b.Value {
		return false
	}
	if len(a.Attrs) != len(b.Attrs) || len(a.Children) != len(b.Children) {
		return false
	}
	for i := range a.Attrs {
		if a.Attrs[i] != b.Attrs[i] {
			return false
		}
	}
	for i := range a.Children {
		if !Equal(a.Children[i], b.Children[i]) {
			return false
		}
	}
	return true
}

func qname(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + ":" + name
}
