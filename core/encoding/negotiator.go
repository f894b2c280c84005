// Package encoding converts between a unit's source byte encoding and the
// normalized UTF-8 text the codec works on, and back again.
//
// Two modes exist. Strict mode decodes through the declared (or detected)
// character set and rejects any byte sequence that would not survive a
// decode/encode cycle. Skip mode performs no character decoding at all: each
// byte becomes the code point of the same value, so arbitrary bytes survive.
package encoding

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/FocuswithJustin/srcmark/core/errors"
	xencoding "golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/unicode"
)

// Mode selects how Normalize treats the input bytes.
type Mode int

const (
	// ModeStrict validates bytes against the encoding and fails on any
	// invalid sequence.
	ModeStrict Mode = iota
	// ModeSkip bypasses detection and validation entirely.
	ModeSkip
)

// String returns the configuration name of the mode.
func (m Mode) String() string {
	switch m {
	case ModeStrict:
		return "strict"
	case ModeSkip:
		return "skip-encoding"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode parses a configuration value into a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "", "strict":
		return ModeStrict, nil
	case "skip", "skip-encoding":
		return ModeSkip, nil
	default:
		return ModeStrict, errors.NewValidation("encoding mode", fmt.Sprintf("unknown mode %q", s))
	}
}

// Canonical names used throughout the package.
const (
	UTF8    = "UTF-8"
	UTF16   = "UTF-16"
	UTF16LE = "UTF-16LE"
	UTF16BE = "UTF-16BE"
	Latin1  = "ISO-8859-1"
	// Raw names the placeholder representation produced by ModeSkip.
	Raw = "raw"
)

// Text is normalized source text together with what is needed to turn it
// back into the original bytes.
type Text struct {
	// Value is the normalized text. Under ModeSkip every rune is in
	// U+0000..U+00FF and stands for one input byte.
	Value string
	// Encoding is the canonical name of the source encoding, or Raw.
	Encoding string
	// BOM records a byte order mark stripped from the input.
	BOM bool
}

// Opaque reports whether the text is the byte-for-byte placeholder form.
func (t Text) Opaque() bool {
	return t.Encoding == Raw
}

// Normalize decodes data from the declared encoding into Text. An empty
// declared name triggers detection.
func Normalize(data []byte, declared string, mode Mode) (Text, error) {
	if mode == ModeSkip {
		return Text{Value: bytesToRaw(data), Encoding: Raw}, nil
	}

	name := declared
	if name == "" {
		name = Detect(data)
	}
	canonical, err := CanonicalName(name)
	if err != nil {
		return Text{}, err
	}

	switch canonical {
	case UTF8:
		return normalizeUTF8(data)
	case UTF16, UTF16LE, UTF16BE:
		return normalizeUTF16(data, canonical)
	}

	enc, err := lookup(canonical)
	if err != nil {
		return Text{}, err
	}
	decoded, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return Text{}, errors.NewEncoding(canonical, -1, err)
	}
	// Decoders substitute invalid input instead of failing, so strictness
	// is checked by requiring the exact bytes to come back.
	reencoded, err := enc.NewEncoder().Bytes(decoded)
	if err != nil || !bytes.Equal(reencoded, data) {
		return Text{}, errors.NewEncoding(canonical, firstDifference(reencoded, data), err)
	}
	return Text{Value: string(decoded), Encoding: canonical}, nil
}

// Materialize converts text back to bytes. An empty requested name means the
// source encoding, which is always lossless. A different encoding is best
// effort: characters the target cannot represent are replaced and lossy is
// reported true.
func Materialize(t Text, requested string) (data []byte, lossy bool, err error) {
	if t.Opaque() {
		raw, err := rawToBytes(t.Value)
		return raw, false, err
	}

	target := t.Encoding
	if requested != "" {
		if target, err = CanonicalName(requested); err != nil {
			return nil, false, err
		}
	}
	if target == "" {
		target = UTF8
	}
	bom := t.BOM && target == t.Encoding

	switch target {
	case UTF8:
		out := []byte(t.Value)
		if bom {
			out = append([]byte{0xEF, 0xBB, 0xBF}, out...)
		}
		return out, false, nil
	case UTF16, UTF16LE, UTF16BE:
		return materializeUTF16(t.Value, target, bom)
	}

	enc, err := lookup(target)
	if err != nil {
		return nil, false, err
	}
	out, err := enc.NewEncoder().Bytes([]byte(t.Value))
	if err == nil {
		return out, false, nil
	}
	if target == t.Encoding {
		return nil, false, errors.NewEncoding(target, -1, err)
	}
	out, err = xencoding.ReplaceUnsupported(enc.NewEncoder()).Bytes([]byte(t.Value))
	if err != nil {
		return nil, true, errors.NewEncoding(target, -1, err)
	}
	return out, true, nil
}

// Detect guesses the encoding of data: a byte order mark wins, then valid
// UTF-8, then ISO-8859-1 which accepts every byte.
func Detect(data []byte) string {
	switch {
	case bytes.HasPrefix(data, []byte{0xEF, 0xBB, 0xBF}):
		return UTF8
	case bytes.HasPrefix(data, []byte{0xFF, 0xFE}):
		return UTF16LE
	case bytes.HasPrefix(data, []byte{0xFE, 0xFF}):
		return UTF16BE
	case utf8.Valid(data):
		return UTF8
	default:
		return Latin1
	}
}

// CanonicalName resolves an encoding label (any case, IANA or WHATWG alias)
// to its preferred MIME name, or the IANA name when there is no MIME name.
func CanonicalName(name string) (string, error) {
	switch strings.ToUpper(strings.ReplaceAll(name, "_", "-")) {
	case "UTF-8", "UTF8":
		return UTF8, nil
	case "UTF-16", "UTF16":
		return UTF16, nil
	case "UTF-16LE", "UTF16LE":
		return UTF16LE, nil
	case "UTF-16BE", "UTF16BE":
		return UTF16BE, nil
	case "RAW":
		return Raw, nil
	}
	enc, err := lookup(name)
	if err != nil {
		return "", err
	}
	if canonical, err := ianaindex.MIME.Name(enc); err == nil && canonical != "" {
		return canonical, nil
	}
	canonical, err := ianaindex.IANA.Name(enc)
	if err != nil {
		return "", errors.NewUnsupported("encoding", name)
	}
	return canonical, nil
}

// Supported reports whether name resolves to a usable encoding.
func Supported(name string) bool {
	_, err := CanonicalName(name)
	return err == nil
}

func lookup(name string) (xencoding.Encoding, error) {
	if enc, err := ianaindex.IANA.Encoding(name); err == nil && enc != nil {
		return enc, nil
	}
	if enc, err := htmlindex.Get(name); err == nil && enc != nil {
		return enc, nil
	}
	return nil, errors.NewUnsupported("encoding", name)
}

func normalizeUTF8(data []byte) (Text, error) {
	t := Text{Encoding: UTF8}
	if bytes.HasPrefix(data, []byte{0xEF, 0xBB, 0xBF}) {
		t.BOM = true
		data = data[3:]
	}
	if !utf8.Valid(data) {
		offset := invalidUTF8Offset(data)
		if t.BOM {
			offset += 3
		}
		return Text{}, errors.NewEncoding(UTF8, offset, nil)
	}
	t.Value = string(data)
	return t, nil
}

func normalizeUTF16(data []byte, canonical string) (Text, error) {
	t := Text{Encoding: canonical}
	endian := unicode.BigEndian
	if canonical == UTF16LE {
		endian = unicode.LittleEndian
	}
	switch {
	case bytes.HasPrefix(data, []byte{0xFF, 0xFE}) && canonical != UTF16BE:
		endian, t.BOM, data = unicode.LittleEndian, true, data[2:]
		if canonical == UTF16 {
			t.Encoding = UTF16LE
		}
	case bytes.HasPrefix(data, []byte{0xFE, 0xFF}) && canonical != UTF16LE:
		endian, t.BOM, data = unicode.BigEndian, true, data[2:]
		if canonical == UTF16 {
			t.Encoding = UTF16BE
		}
	case canonical == UTF16:
		t.Encoding = UTF16BE
	}

	if len(data)%2 != 0 {
		return Text{}, errors.NewEncoding(t.Encoding, len(data)-1, fmt.Errorf("odd byte count"))
	}
	enc := unicode.UTF16(endian, unicode.IgnoreBOM)
	decoded, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return Text{}, errors.NewEncoding(t.Encoding, -1, err)
	}
	reencoded, err := enc.NewEncoder().Bytes(decoded)
	if err != nil || !bytes.Equal(reencoded, data) {
		return Text{}, errors.NewEncoding(t.Encoding, firstDifference(reencoded, data), err)
	}
	t.Value = string(decoded)
	return t, nil
}

func materializeUTF16(value, target string, bom bool) ([]byte, bool, error) {
	endian := unicode.BigEndian
	if target == UTF16LE {
		endian = unicode.LittleEndian
	}
	out, err := unicode.UTF16(endian, unicode.IgnoreBOM).NewEncoder().Bytes([]byte(value))
	if err != nil {
		return nil, false, errors.NewEncoding(target, -1, err)
	}
	if bom || target == UTF16 {
		mark := []byte{0xFE, 0xFF}
		if endian == unicode.LittleEndian {
			mark = []byte{0xFF, 0xFE}
		}
		out = append(mark, out...)
	}
	return out, false, nil
}

// bytesToRaw maps each byte to the code point of the same value.
func bytesToRaw(data []byte) string {
	var sb strings.Builder
	sb.Grow(len(data) * 2)
	for _, b := range data {
		sb.WriteRune(rune(b))
	}
	return sb.String()
}

func rawToBytes(s string) ([]byte, error) {
	out := make([]byte, 0, len(s))
	for i, r := range s {
		if r > 0xFF {
			return nil, errors.NewEncoding(Raw, i, fmt.Errorf("code point U+%04X outside byte range", r))
		}
		out = append(out, byte(r))
	}
	return out, nil
}

func invalidUTF8Offset(data []byte) int {
	for i := 0; i < len(data); {
		r, size := utf8.DecodeRune(data[i:])
		if r == utf8.RuneError && size <= 1 {
			return i
		}
		i += size
	}
	return -1
}

func firstDifference(a, b []byte) int {
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return i
		}
	}
	if len(a) == len(b) {
		return -1
	}
	return n
}
