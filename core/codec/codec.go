// Package codec translates source files to markup units and back. Encoding
// is a pure function of the source, the options and the registered
// grammars; decoding a unit reproduces the source bytes exactly.
package codec

import (
	"time"

	"github.com/FocuswithJustin/srcmark/core/cas"
	"github.com/FocuswithJustin/srcmark/core/cpp"
	"github.com/FocuswithJustin/srcmark/core/encoding"
	"github.com/FocuswithJustin/srcmark/core/errors"
	"github.com/FocuswithJustin/srcmark/core/grammar"
	"github.com/FocuswithJustin/srcmark/core/markup"
)

// Source is one input file. It is not modified by Encode.
type Source struct {
	Data []byte
	// Encoding is the declared source encoding. Empty means detect.
	Encoding string
	// Language is a registered language tag. Empty means derive it from
	// Filename.
	Language string
	Filename string
	// Version is an optional revision tag copied onto the unit.
	Version string
}

// Options configure Encode.
type Options struct {
	EncodingMode encoding.Mode
	Policies     cpp.Policies
	// Positions adds pos:start and pos:end attributes to elements.
	Positions bool
	// Timestamp, when set, is recorded on the unit.
	Timestamp time.Time
	// Registry resolves languages. Nil means grammar.Default().
	Registry *grammar.Registry
}

// DefaultOptions returns strict decoding with the default region policies.
func DefaultOptions() Options {
	return Options{
		EncodingMode: encoding.ModeStrict,
		Policies:     cpp.DefaultPolicies(),
	}
}

// Fidelity classifies how much of a unit was marked up.
type Fidelity string

const (
	// FidelityFull means every token of the source was marked up.
	FidelityFull Fidelity = "L0"
	// FidelityRecovered means markup stopped early and the rest of the unit
	// is opaque text. The unit still decodes to the exact source bytes.
	FidelityRecovered Fidelity = "L1"
)

// Report describes one Encode call.
type Report struct {
	Warnings []*errors.ParseRecoveryWarning
	Fidelity Fidelity
	// Digest covers the source bytes.
	Digest cas.HashResult
	// Namespaces lists bindings the unit uses beyond the default table.
	Namespaces []markup.Namespace
}

// Encode translates src into a unit. It fails with an
// UnsupportedLanguageError when no grammar handles the language and, in
// strict mode, with an EncodingError for undecodable bytes.
func Encode(src Source, opts Options) (*markup.Unit, Report, error) {
	reg := opts.Registry
	if reg == nil {
		reg = grammar.Default()
	}

	language := src.Language
	if language == "" {
		language = reg.LanguageForFilename(src.Filename)
	}
	g, ok := reg.Lookup(language)
	if !ok {
		return nil, Report{}, errors.NewUnsupportedLanguage(language, src.Filename)
	}

	text, err := encoding.Normalize(src.Data, src.Encoding, opts.EncodingMode)
	if err != nil {
		var encErr *errors.EncodingError
		if errors.As(err, &encErr) && encErr.Filename == "" {
			encErr.Filename = src.Filename
		}
		return nil, Report{}, err
	}

	report := Report{Fidelity: FidelityFull, Digest: cas.Sum(src.Data)}

	u := markup.NewUnit(g.Language, src.Filename)
	u.Version = src.Version
	u.Encoding = text.Encoding
	u.BOM = text.BOM
	u.Hash = report.Digest.SHA256
	if !opts.Timestamp.IsZero() {
		u.Timestamp = opts.Timestamp.UTC().Format(time.RFC3339)
	}

	report.Warnings = g.Build(u.Root, text.Value, grammar.Options{
		Policies:  opts.Policies,
		Positions: opts.Positions,
		Filename:  src.Filename,
	})
	if len(report.Warnings) > 0 {
		report.Fidelity = FidelityRecovered
	}
	if opts.Positions {
		report.Namespaces = append(report.Namespaces, markup.Namespace{Prefix: markup.PosPrefix, URI: markup.PosNamespace})
	}
	return u, report, nil
}

// Decode returns the source bytes of u in its source encoding.
func Decode(u *markup.Unit) ([]byte, error) {
	data, _, err := DecodeTo(u, "")
	return data, err
}

// DecodeTo returns the text of u in the requested encoding. An empty name
// means the source encoding. lossy reports characters the target could not
// represent.
func DecodeTo(u *markup.Unit, outputEncoding string) (data []byte, lossy bool, err error) {
	if u == nil {
		return nil, false, errors.NewValidation("unit", "nil unit")
	}
	enc := u.Encoding
	if enc == "" {
		enc = encoding.UTF8
	}
	data, lossy, err = encoding.Materialize(encoding.Text{Value: u.Text(), Encoding: enc, BOM: u.BOM}, outputEncoding)
	if err != nil {
		return nil, false, errors.Wrapf(err, "decode %s", u.Filename)
	}
	return data, lossy, nil
}
