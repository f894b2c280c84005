// Package errors provides the typed error taxonomy for srcmark.
//
// Every error type unwraps to a sentinel so callers can branch with
// errors.Is without knowing the concrete type, and carries enough context
// (unit position, filename, byte offset) to report which input failed.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for common cases
var (
	// ErrNotFound indicates a resource was not found
	ErrNotFound = errors.New("not found")
	// ErrInvalidInput indicates invalid input or validation failure
	ErrInvalidInput = errors.New("invalid input")
	// ErrAlreadyExists indicates a binding or resource already exists
	ErrAlreadyExists = errors.New("already exists")
	// ErrUnsupported indicates an unsupported language, encoding or format
	ErrUnsupported = errors.New("unsupported")
	// ErrEncoding indicates bytes that are invalid for their declared encoding
	ErrEncoding = errors.New("invalid encoding")
	// ErrParseRecovery marks a non-fatal tokenizer fallback
	ErrParseRecovery = errors.New("parse recovery")
	// ErrCorrupt indicates a structurally inconsistent archive
	ErrCorrupt = errors.New("archive corrupt")
	// ErrCompression indicates a compression or decompression failure
	ErrCompression = errors.New("compression failure")
	// ErrArchiveClosed is returned by mutators of a closed archive
	ErrArchiveClosed = errors.New("archive closed")
)

// NotFoundError represents a resource not found error with context
type NotFoundError struct {
	Resource string // Type of resource (e.g., "unit", "language", "namespace")
	ID       string // Identifier of the resource
	Err      error  // Underlying error, if any
}

func (e *NotFoundError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
	}
	return fmt.Sprintf("%s not found", e.Resource)
}

func (e *NotFoundError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrNotFound
}

// ValidationError represents an input validation error with context
type ValidationError struct {
	Field   string // Field name that failed validation
	Value   string // Value that failed validation (may be redacted)
	Message string // Human-readable error message
	Err     error  // Underlying error, if any
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

func (e *ValidationError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrInvalidInput
}

// IOError represents an I/O operation error with context
type IOError struct {
	Operation string // Operation being performed (e.g., "read", "write", "open")
	Path      string // File/resource path involved
	Err       error  // Underlying error
}

func (e *IOError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("failed to %s %s: %v", e.Operation, e.Path, e.Err)
	}
	return fmt.Sprintf("failed to %s: %v", e.Operation, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// ParseError represents a parsing or deserialization error
type ParseError struct {
	Format  string // Format being parsed (e.g., "unit XML", "manifest")
	Path    string // File path, if applicable
	Message string // Error details
	Err     error  // Underlying error, if any
}

func (e *ParseError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("failed to parse %s at %s: %s", e.Format, e.Path, e.Message)
	}
	return fmt.Sprintf("failed to parse %s: %s", e.Format, e.Message)
}

func (e *ParseError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrInvalidInput
}

// UnsupportedError represents an unsupported feature or format
type UnsupportedError struct {
	Feature string // Feature or format that is unsupported
	Reason  string // Why it's not supported
	Err     error  // Underlying error, if any
}

func (e *UnsupportedError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("unsupported %s: %s", e.Feature, e.Reason)
	}
	return fmt.Sprintf("unsupported %s", e.Feature)
}

func (e *UnsupportedError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrUnsupported
}

// UnsupportedLanguageError is returned by encode when no grammar is
// registered for the requested language tag.
type UnsupportedLanguageError struct {
	Language string
	Filename string
}

func (e *UnsupportedLanguageError) Error() string {
	if e.Filename != "" {
		return fmt.Sprintf("unsupported language %q for %s", e.Language, e.Filename)
	}
	return fmt.Sprintf("unsupported language %q", e.Language)
}

func (e *UnsupportedLanguageError) Unwrap() error {
	return ErrUnsupported
}

// EncodingError reports bytes that cannot be decoded under the declared
// encoding. Offset is the byte offset of the first invalid sequence, or -1
// when it is not known.
type EncodingError struct {
	Encoding string
	Filename string
	Offset   int
	Err      error
}

func (e *EncodingError) Error() string {
	msg := fmt.Sprintf("invalid %s input", e.Encoding)
	if e.Filename != "" {
		msg += " in " + e.Filename
	}
	if e.Offset >= 0 {
		msg += fmt.Sprintf(" at byte %d", e.Offset)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *EncodingError) Unwrap() error {
	return ErrEncoding
}

// ParseRecoveryWarning records that a grammar stopped making progress and
// the rest of the unit was kept as opaque text. It is a warning: the unit
// is still produced and still round-trips.
type ParseRecoveryWarning struct {
	Language string
	Filename string
	Line     int
	Column   int
	Reason   string
}

func (e *ParseRecoveryWarning) Error() string {
	where := e.Filename
	if where == "" {
		where = "<input>"
	}
	return fmt.Sprintf("%s:%d:%d: %s markup stopped, remainder kept as text: %s",
		where, e.Line, e.Column, e.Language, e.Reason)
}

func (e *ParseRecoveryWarning) Unwrap() error {
	return ErrParseRecovery
}

// NamespacePrefixCollisionError is returned when a prefix is declared with a
// URI different from the one it is already bound to.
type NamespacePrefixCollisionError struct {
	Prefix   string
	Existing string
	URI      string
}

func (e *NamespacePrefixCollisionError) Error() string {
	prefix := e.Prefix
	if prefix == "" {
		prefix = "(default)"
	}
	return fmt.Sprintf("namespace prefix %s already bound to %q, cannot bind to %q", prefix, e.Existing, e.URI)
}

func (e *NamespacePrefixCollisionError) Unwrap() error {
	return ErrAlreadyExists
}

// ArchiveCorruptionError reports a header, count, index or payload mismatch
// found while reading an archive. Position is the 1-based unit position, or
// 0 for archive-level problems.
type ArchiveCorruptionError struct {
	Position int
	Entry    string
	Message  string
	Err      error
}

func (e *ArchiveCorruptionError) Error() string {
	var msg string
	switch {
	case e.Position > 0 && e.Entry != "":
		msg = fmt.Sprintf("archive corrupt at unit %d (%s): %s", e.Position, e.Entry, e.Message)
	case e.Position > 0:
		msg = fmt.Sprintf("archive corrupt at unit %d: %s", e.Position, e.Message)
	case e.Entry != "":
		msg = fmt.Sprintf("archive corrupt (%s): %s", e.Entry, e.Message)
	default:
		msg = fmt.Sprintf("archive corrupt: %s", e.Message)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ArchiveCorruptionError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrCorrupt, e.Err}
	}
	return []error{ErrCorrupt}
}

// CompressionError wraps a failure of a compression codec.
type CompressionError struct {
	Codec     string // e.g. "xz", "zstd"
	Operation string // "compress" or "decompress"
	Err       error
}

func (e *CompressionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s failed: %v", e.Codec, e.Operation, e.Err)
	}
	return fmt.Sprintf("%s %s failed", e.Codec, e.Operation)
}

func (e *CompressionError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrCompression, e.Err}
	}
	return []error{ErrCompression}
}

// Helper functions for creating common errors

// NewNotFound creates a NotFoundError
func NewNotFound(resource, id string) *NotFoundError {
	return &NotFoundError{
		Resource: resource,
		ID:       id,
	}
}

// NewValidation creates a ValidationError
func NewValidation(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// NewIO creates an IOError
func NewIO(operation, path string, err error) *IOError {
	return &IOError{
		Operation: operation,
		Path:      path,
		Err:       err,
	}
}

// NewParse creates a ParseError
func NewParse(format, path, message string) *ParseError {
	return &ParseError{
		Format:  format,
		Path:    path,
		Message: message,
	}
}

// NewUnsupported creates an UnsupportedError
func NewUnsupported(feature, reason string) *UnsupportedError {
	return &UnsupportedError{
		Feature: feature,
		Reason:  reason,
	}
}

// NewUnsupportedLanguage creates an UnsupportedLanguageError
func NewUnsupportedLanguage(language, filename string) *UnsupportedLanguageError {
	return &UnsupportedLanguageError{Language: language, Filename: filename}
}

// NewEncoding creates an EncodingError
func NewEncoding(encoding string, offset int, err error) *EncodingError {
	return &EncodingError{Encoding: encoding, Offset: offset, Err: err}
}

// NewCorrupt creates an ArchiveCorruptionError
func NewCorrupt(position int, entry, message string) *ArchiveCorruptionError {
	return &ArchiveCorruptionError{Position: position, Entry: entry, Message: message}
}

// NewCompression creates a CompressionError
func NewCompression(codec, operation string, err error) *CompressionError {
	return &CompressionError{Codec: codec, Operation: operation, Err: err}
}

// IsWarning reports whether err is, or wraps, a ParseRecoveryWarning.
func IsWarning(err error) bool {
	return err != nil && errors.Is(err, ErrParseRecovery)
}

// Wrap adds context to an error. If err is nil, returns nil.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf adds formatted context to an error. If err is nil, returns nil.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	message := fmt.Sprintf(format, args...)
	return fmt.Errorf("%s: %w", message, err)
}

// Is wraps errors.Is for convenience
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As wraps errors.As for convenience
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Join wraps errors.Join for convenience
func Join(errs ...error) error {
	return errors.Join(errs...)
}
