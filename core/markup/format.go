package markup

import (
	"fmt"
	"strings"

	"github.com/FocuswithJustin/srcmark/core/errors"
)

// Format is a serialized form of a unit.
type Format string

const (
	FormatXML  Format = "xml"
	FormatCBOR Format = "cbor"
)

// ParseFormat accepts "xml" or "cbor"; empty means XML.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(s)) {
	case "", FormatXML:
		return FormatXML, nil
	case FormatCBOR:
		return FormatCBOR, nil
	}
	return "", errors.NewUnsupported("payload format", fmt.Sprintf("%q", s))
}

// Extension is the file extension used for payload entries.
func (f Format) Extension() string {
	return "." + string(f)
}

// Marshal serializes u in format f.
func Marshal(u *Unit, ns *Namespaces, f Format) ([]byte, error) {
	switch f {
	case FormatXML, "":
		return MarshalXML(u, ns)
	case FormatCBOR:
		return MarshalCBOR(u, ns)
	}
	return nil, errors.NewUnsupported("payload format", string(f))
}

// Unmarshal parses data in format f.
func Unmarshal(data []byte, f Format) (*Unit, *Namespaces, error) {
	switch f {
	case FormatXML, "":
		return UnmarshalXML(data)
	case FormatCBOR:
		return UnmarshalCBOR(data)
	}
	return nil, nil, errors.NewUnsupported("payload format", string(f))
}
