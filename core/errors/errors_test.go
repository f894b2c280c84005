package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestNotFoundError(t *testing.T) {
	tests := []struct {
		name     string
		err      *NotFoundError
		wantMsg  string
		wantBase error
	}{
		{
			name:     "with ID",
			err:      &NotFoundError{Resource: "unit", ID: "3"},
			wantMsg:  "unit not found: 3",
			wantBase: ErrNotFound,
		},
		{
			name:     "without ID",
			err:      &NotFoundError{Resource: "manifest"},
			wantMsg:  "manifest not found",
			wantBase: ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMsg {
				t.Errorf("Error() = %q, want %q", got, tt.wantMsg)
			}
			if got := tt.err.Unwrap(); !errors.Is(got, tt.wantBase) {
				t.Errorf("Unwrap() = %v, want %v", got, tt.wantBase)
			}
		})
	}

	t.Run("with underlying error", func(t *testing.T) {
		underlyingErr := fmt.Errorf("disk error")
		err := &NotFoundError{Resource: "file", ID: "a.c", Err: underlyingErr}
		if got := err.Unwrap(); got != underlyingErr {
			t.Errorf("Unwrap() = %v, want %v", got, underlyingErr)
		}
	})
}

func TestValidationError(t *testing.T) {
	tests := []struct {
		name    string
		err     *ValidationError
		wantMsg string
	}{
		{"with field", &ValidationError{Field: "mode", Message: "unknown archive mode"}, "validation failed for mode: unknown archive mode"},
		{"without field", &ValidationError{Message: "bad options"}, "validation failed: bad options"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMsg {
				t.Errorf("Error() = %q, want %q", got, tt.wantMsg)
			}
			if !errors.Is(tt.err, ErrInvalidInput) {
				t.Error("ValidationError should match ErrInvalidInput")
			}
		})
	}
}

func TestIOAndParseErrors(t *testing.T) {
	base := fmt.Errorf("permission denied")
	ioErr := NewIO("read", "src/a.c", base)
	if got, want := ioErr.Error(), "failed to read src/a.c: permission denied"; got != want {
		t.Errorf("IOError.Error() = %q, want %q", got, want)
	}
	if !errors.Is(ioErr, base) {
		t.Error("IOError should unwrap to its cause")
	}

	parseErr := NewParse("unit XML", "units/000001.xml", "unexpected EOF")
	if got, want := parseErr.Error(), "failed to parse unit XML at units/000001.xml: unexpected EOF"; got != want {
		t.Errorf("ParseError.Error() = %q, want %q", got, want)
	}
	if !errors.Is(parseErr, ErrInvalidInput) {
		t.Error("ParseError should match ErrInvalidInput")
	}
}

func TestUnsupportedLanguageError(t *testing.T) {
	err := NewUnsupportedLanguage("COBOL", "main.cbl")
	if got, want := err.Error(), `unsupported language "COBOL" for main.cbl`; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !errors.Is(err, ErrUnsupported) {
		t.Error("UnsupportedLanguageError should match ErrUnsupported")
	}

	bare := &UnsupportedLanguageError{Language: "Fortran"}
	if got, want := bare.Error(), `unsupported language "Fortran"`; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestEncodingError(t *testing.T) {
	tests := []struct {
		name    string
		err     *EncodingError
		wantMsg string
	}{
		{
			name:    "offset known",
			err:     &EncodingError{Encoding: "UTF-8", Filename: "a.c", Offset: 12},
			wantMsg: "invalid UTF-8 input in a.c at byte 12",
		},
		{
			name:    "offset unknown with cause",
			err:     &EncodingError{Encoding: "Shift_JIS", Offset: -1, Err: fmt.Errorf("short sequence")},
			wantMsg: "invalid Shift_JIS input: short sequence",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMsg {
				t.Errorf("Error() = %q, want %q", got, tt.wantMsg)
			}
			if !errors.Is(tt.err, ErrEncoding) {
				t.Error("EncodingError should match ErrEncoding")
			}
		})
	}
}

func TestParseRecoveryWarning(t *testing.T) {
	w := &ParseRecoveryWarning{Language: "C", Filename: "a.c", Line: 3, Column: 7, Reason: "unmatched '}'"}
	msg := w.Error()
	if !strings.HasPrefix(msg, "a.c:3:7: C markup stopped") {
		t.Errorf("Error() = %q", msg)
	}
	if !IsWarning(w) {
		t.Error("IsWarning should be true for ParseRecoveryWarning")
	}
	if !IsWarning(Wrap(w, "unit 2")) {
		t.Error("IsWarning should see through wrapping")
	}
	if IsWarning(fmt.Errorf("boom")) || IsWarning(nil) {
		t.Error("IsWarning should be false for other errors")
	}

	anon := &ParseRecoveryWarning{Language: "Python", Line: 1, Column: 1, Reason: "x"}
	if !strings.HasPrefix(anon.Error(), "<input>:1:1:") {
		t.Errorf("Error() = %q, want <input> placeholder", anon.Error())
	}
}

func TestNamespacePrefixCollisionError(t *testing.T) {
	err := &NamespacePrefixCollisionError{Prefix: "cpp", Existing: "http://a", URI: "http://b"}
	if !strings.Contains(err.Error(), `prefix cpp already bound to "http://a"`) {
		t.Errorf("Error() = %q", err.Error())
	}
	if !errors.Is(err, ErrAlreadyExists) {
		t.Error("collision should match ErrAlreadyExists")
	}

	def := &NamespacePrefixCollisionError{Existing: "http://a", URI: "http://b"}
	if !strings.Contains(def.Error(), "(default)") {
		t.Errorf("default prefix not labelled: %q", def.Error())
	}
}

func TestArchiveCorruptionError(t *testing.T) {
	cause := fmt.Errorf("hash mismatch")
	tests := []struct {
		name    string
		err     *ArchiveCorruptionError
		wantMsg string
	}{
		{"archive level", NewCorrupt(0, "", "missing manifest"), "archive corrupt: missing manifest"},
		{"entry only", NewCorrupt(0, "manifest.json", "bad version"), "archive corrupt (manifest.json): bad version"},
		{"unit only", NewCorrupt(2, "", "short payload"), "archive corrupt at unit 2: short payload"},
		{"unit and entry", &ArchiveCorruptionError{Position: 2, Entry: "units/000002.xml", Message: "payload", Err: cause}, "archive corrupt at unit 2 (units/000002.xml): payload: hash mismatch"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMsg {
				t.Errorf("Error() = %q, want %q", got, tt.wantMsg)
			}
			if !errors.Is(tt.err, ErrCorrupt) {
				t.Error("should match ErrCorrupt")
			}
		})
	}

	withCause := &ArchiveCorruptionError{Message: "x", Err: cause}
	if !errors.Is(withCause, cause) {
		t.Error("should also match the underlying cause")
	}
}

func TestCompressionError(t *testing.T) {
	cause := fmt.Errorf("unexpected EOF")
	err := NewCompression("xz", "decompress", cause)
	if got, want := err.Error(), "xz decompress failed: unexpected EOF"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !errors.Is(err, ErrCompression) || !errors.Is(err, cause) {
		t.Error("CompressionError should match ErrCompression and its cause")
	}
	if got, want := (&CompressionError{Codec: "lz4", Operation: "compress"}).Error(), "lz4 compress failed"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestHelperFunctions(t *testing.T) {
	t.Run("NewNotFound", func(t *testing.T) {
		err := NewNotFound("unit", "7")
		if err.Resource != "unit" || err.ID != "7" {
			t.Errorf("NewNotFound() = %+v", err)
		}
	})

	t.Run("NewValidation", func(t *testing.T) {
		err := NewValidation("compression", "unknown codec")
		if err.Field != "compression" || err.Message != "unknown codec" {
			t.Errorf("NewValidation() = %+v", err)
		}
	})

	t.Run("NewUnsupported", func(t *testing.T) {
		err := NewUnsupported("payload format", "yaml")
		if err.Feature != "payload format" || err.Reason != "yaml" {
			t.Errorf("NewUnsupported() = %+v", err)
		}
		if !errors.Is(err, ErrUnsupported) {
			t.Error("should match ErrUnsupported")
		}
	})

	t.Run("NewEncoding", func(t *testing.T) {
		err := NewEncoding("UTF-16LE", 5, nil)
		if err.Encoding != "UTF-16LE" || err.Offset != 5 {
			t.Errorf("NewEncoding() = %+v", err)
		}
	})
}

func TestWrap(t *testing.T) {
	baseErr := fmt.Errorf("base error")
	wrapped := Wrap(baseErr, "context message")
	if !errors.Is(wrapped, baseErr) {
		t.Errorf("Wrap() error does not unwrap to base error")
	}
	if got, want := wrapped.Error(), "context message: base error"; got != want {
		t.Errorf("Wrap() = %q, want %q", got, want)
	}
	if got := Wrap(nil, "context"); got != nil {
		t.Errorf("Wrap(nil) = %v, want nil", got)
	}
}

func TestWrapf(t *testing.T) {
	baseErr := fmt.Errorf("base error")
	wrapped := Wrapf(baseErr, "unit %d", 4)
	if got, want := wrapped.Error(), "unit 4: base error"; got != want {
		t.Errorf("Wrapf() = %q, want %q", got, want)
	}
	if got := Wrapf(nil, "context %s", "test"); got != nil {
		t.Errorf("Wrapf(nil) = %v, want nil", got)
	}
}

func TestIsAsJoin(t *testing.T) {
	err := &NotFoundError{Resource: "unit", ID: "123"}
	if !Is(err, ErrNotFound) {
		t.Error("Is() failed to match NotFoundError to ErrNotFound")
	}
	var nfErr *NotFoundError
	if !As(err, &nfErr) || nfErr.ID != "123" {
		t.Error("As() failed to match NotFoundError")
	}

	joined := Join(NewUnsupportedLanguage("X", ""), NewCorrupt(0, "", "y"))
	if !Is(joined, ErrUnsupported) || !Is(joined, ErrCorrupt) {
		t.Error("Join() should keep both sentinels reachable")
	}
}
