package markup

import (
	"fmt"

	"github.com/FocuswithJustin/srcmark/core/errors"
	"github.com/fxamacker/cbor/v2"
)

// encMode uses Core Deterministic Encoding so that equal trees always
// produce identical bytes, which keeps payload hashes stable.
var encMode cbor.EncMode

var decMode cbor.DecMode

// maxCBORLevels is the deepest nesting the decoder accepts, the library
// maximum. A node at depth d sits at level 2d+1 and its attributes two
// levels below that.
const maxCBORLevels = 65535

// MaxCBORDepth is the deepest node MarshalCBOR writes.
const MaxCBORDepth = (maxCBORLevels - 3) / 2

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("markup: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{
		MaxNestedLevels:  maxCBORLevels,
		MaxArrayElements: 1 << 24,
	}.DecMode()
	if err != nil {
		panic("markup: CBOR decoder initialization failed: " + err.Error())
	}
}

// cborUnit is the binary payload form. Integer keys keep it compact.
type cborUnit struct {
	Namespaces []Namespace `cbor:"1,keyasint,omitempty"`
	Language   string      `cbor:"2,keyasint,omitempty"`
	Filename   string      `cbor:"3,keyasint,omitempty"`
	Version    string      `cbor:"4,keyasint,omitempty"`
	Encoding   string      `cbor:"5,keyasint,omitempty"`
	BOM        bool        `cbor:"6,keyasint,omitempty"`
	Hash       string      `cbor:"7,keyasint,omitempty"`
	Timestamp  string      `cbor:"8,keyasint,omitempty"`
	Attrs      []cborAttr  `cbor:"9,keyasint,omitempty"`
	Children   []cborNode  `cbor:"10,keyasint,omitempty"`
}

type cborNode struct {
	Prefix   string     `cbor:"1,keyasint,omitempty"`
	Name     string     `cbor:"2,keyasint,omitempty"`
	Attrs    []cborAttr `cbor:"3,keyasint,omitempty"`
	Children []cborNode `cbor:"4,keyasint,omitempty"`
	Text     *string    `cbor:"5,keyasint,omitempty"`
}

type cborAttr struct {
	_      struct{} `cbor:",toarray"`
	Prefix string
	Name   string
	Value  string
}

// MarshalCBOR renders u and its namespace table in the binary form.
func MarshalCBOR(u *Unit, ns *Namespaces) ([]byte, error) {
	cu := cborUnit{
		Language:  u.Language,
		Filename:  u.Filename,
		Version:   u.Version,
		Encoding:  u.Encoding,
		BOM:       u.BOM,
		Hash:      u.Hash,
		Timestamp: u.Timestamp,
	}
	if ns != nil {
		cu.Namespaces = ns.All()
	}
	if u.Root != nil {
		if d := depth(u.Root); d > MaxCBORDepth {
			return nil, errors.NewValidation("unit", fmt.Sprintf("markup nests %d levels, CBOR holds at most %d", d, MaxCBORDepth))
		}
		cu.Attrs = toCBORAttrs(u.Root.Attrs)
		cu.Children = toCBORNodes(u.Root.Children)
	}
	return encMode.Marshal(cu)
}

// UnmarshalCBOR parses the binary form produced by MarshalCBOR.
func UnmarshalCBOR(data []byte) (*Unit, *Namespaces, error) {
	var cu cborUnit
	if err := decMode.Unmarshal(data, &cu); err != nil {
		return nil, nil, &errors.ParseError{Format: "unit CBOR", Message: "malformed payload", Err: err}
	}
	ns, err := NewNamespaces(cu.Namespaces...)
	if err != nil {
		return nil, nil, err
	}
	u := &Unit{
		Language:  cu.Language,
		Filename:  cu.Filename,
		Version:   cu.Version,
		Encoding:  cu.Encoding,
		BOM:       cu.BOM,
		Hash:      cu.Hash,
		Timestamp: cu.Timestamp,
		Root:      Element("", "unit"),
	}
	u.Root.Attrs = fromCBORAttrs(cu.Attrs)
	for _, c := range cu.Children {
		u.Root.Append(fromCBORNode(c))
	}
	return u, ns, nil
}

// depth counts the levels of nodes below n.
func depth(n *Node) int {
	deepest := 0
	for _, c := range n.Children {
		if d := depth(c) + 1; d > deepest {
			deepest = d
		}
	}
	return deepest
}

func toCBORNodes(nodes []*Node) []cborNode {
	if len(nodes) == 0 {
		return nil
	}
	out := make([]cborNode, len(nodes))
	for i, n := range nodes {
		if n.Kind == TextNode {
			v := n.Value
			out[i] = cborNode{Text: &v}
			continue
		}
		out[i] = cborNode{
			Prefix:   n.Prefix,
			Name:     n.Name,
			Attrs:    toCBORAttrs(n.Attrs),
			Children: toCBORNodes(n.Children),
		}
	}
	return out
}

func fromCBORNode(c cborNode) *Node {
	if c.Text != nil {
		return Text(*c.Text)
	}
	n := Element(c.Prefix, c.Name)
	n.Attrs = fromCBORAttrs(c.Attrs)
	for _, child := range c.Children {
		n.Append(fromCBORNode(child))
	}
	return n
}

func toCBORAttrs(attrs []Attr) []cborAttr {
	if len(attrs) == 0 {
		return nil
	}
	out := make([]cborAttr, len(attrs))
	for i, a := range attrs {
		out[i] = cborAttr{Prefix: a.Prefix, Name: a.Name, Value: a.Value}
	}
	return out
}

func fromCBORAttrs(attrs []cborAttr) []Attr {
	if len(attrs) == 0 {
		return nil
	}
	out := make([]Attr, len(attrs))
	for i, a := range attrs {
		out[i] = Attr{Prefix: a.Prefix, Name: a.Name, Value: a.Value}
	}
	return out
}
