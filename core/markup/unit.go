package markup

import (
	"github.com/FocuswithJustin/srcmark/core/errors"
)

// Namespace URIs of the element vocabulary.
const (
	SrcNamespace = "http://www.srcML.org/srcML/src"
	CppNamespace = "http://www.srcML.org/srcML/cpp"
	PosNamespace = "http://www.srcML.org/srcML/position"
)

// Prefixes bound by DefaultNamespaces and position markup.
const (
	CppPrefix = "cpp"
	PosPrefix = "pos"
)

// Unit is one translated source file.
type Unit struct {
	Language string
	Filename string
	// Version is an optional source revision tag.
	Version string
	// Encoding is the canonical source encoding the text was decoded from.
	Encoding string
	// BOM records a byte order mark in front of the source bytes.
	BOM bool
	// Hash is the hex SHA-256 of the source bytes.
	Hash string
	// Timestamp is an optional RFC 3339 time.
	Timestamp string

	// Root is the unit element. Its children are the content of the unit.
	Root *Node
}

// NewUnit returns a unit with an empty root element.
func NewUnit(language, filename string) *Unit {
	return &Unit{
		Language: language,
		Filename: filename,
		Root:     Element("", "unit"),
	}
}

// Text returns the normalized source text carried by the unit.
func (u *Unit) Text() string {
	if u.Root == nil {
		return ""
	}
	return u.Root.TextContent()
}

// Clone returns a deep copy of u.
func (u *Unit) Clone() *Unit {
	c := *u
	if u.Root != nil {
		c.Root = u.Root.Clone()
	}
	return &c
}

// Namespace is one prefix binding.
type Namespace struct {
	Prefix string `json:"prefix"`
	URI    string `json:"uri"`
}

// Namespaces is an ordered prefix to URI table with unique prefixes.
type Namespaces struct {
	list []Namespace
}

// DefaultNamespaces binds the default prefix to the source namespace and
// cpp to the preprocessor namespace.
func DefaultNamespaces() *Namespaces {
	return &Namespaces{list: []Namespace{
		{Prefix: "", URI: SrcNamespace},
		{Prefix: CppPrefix, URI: CppNamespace},
	}}
}

// NewNamespaces builds a table from bindings, failing on conflicting
// duplicates.
func NewNamespaces(bindings ...Namespace) (*Namespaces, error) {
	t := &Namespaces{}
	for _, b := range bindings {
		if err := t.Declare(b.Prefix, b.URI); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// Declare binds prefix to uri. Binding a prefix again to the same URI is a
// no-op; binding it to a different URI fails.
func (t *Namespaces) Declare(prefix, uri string) error {
	if uri == "" {
		return errors.NewValidation("namespace", "empty URI for prefix "+prefix)
	}
	if existing, ok := t.Lookup(prefix); ok {
		if existing == uri {
			return nil
		}
		return &errors.NamespacePrefixCollisionError{Prefix: prefix, Existing: existing, URI: uri}
	}
	t.list = append(t.list, Namespace{Prefix: prefix, URI: uri})
	return nil
}

// Lookup returns the URI bound to prefix.
func (t *Namespaces) Lookup(prefix string) (string, bool) {
	for _, ns := range t.list {
		if ns.Prefix == prefix {
			return ns.URI, true
		}
	}
	return "", false
}

// All returns a copy of the bindings in declaration order.
func (t *Namespaces) All() []Namespace {
	return append([]Namespace(nil), t.list...)
}

// Len returns the number of bindings.
func (t *Namespaces) Len() int {
	return len(t.list)
}

// Clone returns an independent copy of the table.
func (t *Namespaces) Clone() *Namespaces {
	return &Namespaces{list: t.All()}
}
