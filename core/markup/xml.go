package markup

import (
	"bufio"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"

	"github.com/FocuswithJustin/srcmark/core/encoding"
	"github.com/FocuswithJustin/srcmark/core/errors"
)

// XMLHeader is written in front of every unit document.
const XMLHeader = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` + "\n"

// escapeName is the element that carries a character XML cannot represent.
const escapeName = "escape"

// Unit element attribute names.
const (
	attrLanguage  = "language"
	attrFilename  = "filename"
	attrVersion   = "version"
	attrEncoding  = "encoding"
	attrBOM       = "bom"
	attrHash      = "hash"
	attrTimestamp = "timestamp"
)

// MarshalXML renders u as a standalone XML document.
func MarshalXML(u *Unit, ns *Namespaces) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteXML(&buf, u, ns); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteXML writes u as a standalone XML document declaring every binding in
// ns on the unit element.
func WriteXML(w io.Writer, u *Unit, ns *Namespaces) error {
	bw := bufio.NewWriter(w)
	bw.WriteString(XMLHeader)
	bw.WriteString("<unit")
	if ns != nil {
		for _, b := range ns.All() {
			if b.Prefix == "" {
				writeAttr(bw, "xmlns", b.URI)
			} else {
				writeAttr(bw, "xmlns:"+b.Prefix, b.URI)
			}
		}
	}
	for _, a := range unitAttrs(u) {
		writeAttr(bw, a.QName(), a.Value)
	}

	var children []*Node
	if u.Root != nil {
		for _, a := range u.Root.Attrs {
			writeAttr(bw, a.QName(), a.Value)
		}
		children = u.Root.Children
	}
	if len(children) == 0 {
		bw.WriteString("/>\n")
		return bw.Flush()
	}
	bw.WriteByte('>')
	for _, c := range children {
		writeNode(bw, c)
	}
	bw.WriteString("</unit>\n")
	return bw.Flush()
}

func unitAttrs(u *Unit) []Attr {
	var attrs []Attr
	add := func(name, value string) {
		if value != "" {
			attrs = append(attrs, Attr{Name: name, Value: value})
		}
	}
	add(attrLanguage, u.Language)
	add(attrFilename, u.Filename)
	add(attrVersion, u.Version)
	add(attrEncoding, u.Encoding)
	if u.BOM {
		add(attrBOM, "yes")
	}
	add(attrHash, u.Hash)
	add(attrTimestamp, u.Timestamp)
	return attrs
}

func writeAttr(w *bufio.Writer, name, value string) {
	w.WriteByte(' ')
	w.WriteString(name)
	w.WriteString(`="`)
	w.WriteString(encoding.EscapeXMLAttr(value))
	w.WriteByte('"')
}

func writeNode(w *bufio.Writer, n *Node) {
	if n.Kind == TextNode {
		encoding.SplitXMLText(n.Value,
			func(s string) { w.WriteString(encoding.EscapeXMLText(s)) },
			func(r rune) { fmt.Fprintf(w, `<%s char="0x%x"/>`, escapeName, r) },
		)
		return
	}

	name := n.QName()
	w.WriteByte('<')
	w.WriteString(name)
	for _, a := range n.Attrs {
		writeAttr(w, a.QName(), a.Value)
	}
	if len(n.Children) == 0 {
		w.WriteString("/>")
		return
	}
	w.WriteByte('>')
	for _, c := range n.Children {
		writeNode(w, c)
	}
	w.WriteString("</")
	w.WriteString(name)
	w.WriteByte('>')
}

// UnmarshalXML parses a unit document produced by WriteXML.
func UnmarshalXML(data []byte) (*Unit, *Namespaces, error) {
	return ReadXML(bytes.NewReader(data))
}

// ReadXML parses a unit document. Escape elements are turned back into the
// characters they stand for, so the returned tree has the same text as the
// one that was written.
func ReadXML(r io.Reader) (*Unit, *Namespaces, error) {
	dec := xml.NewDecoder(r)
	dec.Strict = true

	var (
		unit    *Unit
		ns      = &Namespaces{}
		stack   []*Node
		escapes int
		done    bool
	)
	for !done {
		tok, err := dec.RawToken()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, parseErr("malformed XML", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if unit == nil {
				if t.Name.Space != "" || t.Name.Local != "unit" {
					return nil, nil, parseErr(fmt.Sprintf("root element is %s, want unit", rawName(t.Name)), nil)
				}
				u, err := readUnitStart(t, ns)
				if err != nil {
					return nil, nil, err
				}
				unit = u
				stack = append(stack, u.Root)
				continue
			}
			if len(stack) == 0 {
				return nil, nil, parseErr("content after unit element", nil)
			}
			top := stack[len(stack)-1]
			if t.Name.Space == "" && t.Name.Local == escapeName {
				ch, err := escapeChar(t)
				if err != nil {
					return nil, nil, err
				}
				top.AppendText(string(ch))
				escapes++
				continue
			}
			n := Element(t.Name.Space, t.Name.Local)
			for _, a := range t.Attr {
				if isNamespaceAttr(a.Name) {
					if err := declareFromAttr(ns, a); err != nil {
						return nil, nil, err
					}
					continue
				}
				n.Attrs = append(n.Attrs, Attr{Prefix: a.Name.Space, Name: a.Name.Local, Value: a.Value})
			}
			top.Append(n)
			stack = append(stack, n)

		case xml.EndElement:
			if len(stack) == 0 {
				return nil, nil, parseErr("unexpected end element "+rawName(t.Name), nil)
			}
			if escapes > 0 && t.Name.Space == "" && t.Name.Local == escapeName {
				escapes--
				continue
			}
			top := stack[len(stack)-1]
			if top.Prefix != t.Name.Space || top.Name != t.Name.Local {
				return nil, nil, parseErr(fmt.Sprintf("element %s closed by %s", top.QName(), rawName(t.Name)), nil)
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				done = true
			}

		case xml.CharData:
			if len(stack) > 0 {
				stack[len(stack)-1].AppendText(string(t))
			}
		}
	}

	if unit == nil {
		return nil, nil, parseErr("no unit element", nil)
	}
	if !done {
		return nil, nil, parseErr("unit element not closed", io.ErrUnexpectedEOF)
	}
	return unit, ns, nil
}

func readUnitStart(t xml.StartElement, ns *Namespaces) (*Unit, error) {
	u := &Unit{Root: Element("", "unit")}
	for _, a := range t.Attr {
		if isNamespaceAttr(a.Name) {
			if err := declareFromAttr(ns, a); err != nil {
				return nil, err
			}
			continue
		}
		if a.Name.Space != "" {
			u.Root.Attrs = append(u.Root.Attrs, Attr{Prefix: a.Name.Space, Name: a.Name.Local, Value: a.Value})
			continue
		}
		switch a.Name.Local {
		case attrLanguage:
			u.Language = a.Value
		case attrFilename:
			u.Filename = a.Value
		case attrVersion:
			u.Version = a.Value
		case attrEncoding:
			u.Encoding = a.Value
		case attrBOM:
			u.BOM = a.Value == "yes"
		case attrHash:
			u.Hash = a.Value
		case attrTimestamp:
			u.Timestamp = a.Value
		default:
			u.Root.Attrs = append(u.Root.Attrs, Attr{Name: a.Name.Local, Value: a.Value})
		}
	}
	return u, nil
}

func isNamespaceAttr(n xml.Name) bool {
	return n.Space == "xmlns" || (n.Space == "" && n.Local == "xmlns")
}

func declareFromAttr(ns *Namespaces, a xml.Attr) error {
	prefix := ""
	if a.Name.Space == "xmlns" {
		prefix = a.Name.Local
	}
	return ns.Declare(prefix, a.Value)
}

func escapeChar(t xml.StartElement) (rune, error) {
	for _, a := range t.Attr {
		if a.Name.Space == "" && a.Name.Local == "char" {
			v, err := strconv.ParseUint(a.Value, 0, 32)
			if err != nil {
				return 0, parseErr("bad escape char "+a.Value, err)
			}
			return rune(v), nil
		}
	}
	return 0, parseErr("escape element without char attribute", nil)
}

func rawName(n xml.Name) string {
	return qname(n.Space, n.Local)
}

func parseErr(message string, err error) error {
	return &errors.ParseError{Format: "unit XML", Message: message, Err: err}
}
