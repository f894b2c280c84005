// Package archive holds translated units in append order together with the
// namespace table they are serialized against.
//
// An Archive is built by one appender: Append and DeclareNamespace are the
// only mutators and are serialized by a mutex. After Close the archive is
// immutable and iteration no longer takes the lock.
package archive

import (
	"iter"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/FocuswithJustin/srcmark/core/errors"
	"github.com/FocuswithJustin/srcmark/core/markup"
	framing "github.com/FocuswithJustin/srcmark/internal/archive"
)

// ErrArchiveClosed is returned by Append and DeclareNamespace after Close.
var ErrArchiveClosed = errors.ErrArchiveClosed

// Mode selects how many units an archive holds and how it is framed.
type Mode string

const (
	// ModeSingle holds exactly one unit.
	ModeSingle Mode = "single"
	// ModeCompound holds any number of units.
	ModeCompound Mode = "compound"
	// ModeNested holds units of a directory tree, filenames keeping their
	// relative paths.
	ModeNested Mode = "nested"
)

// ParseMode accepts a mode name. The empty string means compound.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(s)); m {
	case "":
		return ModeCompound, nil
	case ModeSingle, ModeCompound, ModeNested:
		return m, nil
	}
	return "", errors.NewUnsupported("archive mode", s)
}

// Options configure an archive.
type Options struct {
	Compression framing.Compression
	Format      markup.Format
	// SkipDefault drops placeholder units on Append.
	SkipDefault bool
}

// DefaultOptions returns uncompressed XML payloads.
func DefaultOptions() Options {
	return Options{Compression: framing.CompressionNone, Format: markup.FormatXML}
}

// Archive is an ordered arena of units addressed by index.
type Archive struct {
	mu     sync.Mutex
	closed atomic.Bool

	mode  Mode
	opts  Options
	ns    *markup.Namespaces
	units []*markup.Unit
}

// Open returns an empty archive with the default namespace table.
func Open(mode Mode, opts Options) (*Archive, error) {
	switch mode {
	case ModeSingle, ModeCompound, ModeNested:
	default:
		return nil, errors.NewUnsupported("archive mode", string(mode))
	}
	if opts.Format == "" {
		opts.Format = markup.FormatXML
	}
	if opts.Compression == "" {
		opts.Compression = framing.CompressionNone
	}
	if _, err := markup.ParseFormat(string(opts.Format)); err != nil {
		return nil, err
	}
	if _, err := framing.ParseCompression(string(opts.Compression)); err != nil {
		return nil, err
	}
	return &Archive{mode: mode, opts: opts, ns: markup.DefaultNamespaces()}, nil
}

// Mode returns the archive mode.
func (a *Archive) Mode() Mode { return a.mode }

// Options returns the options the archive was opened or read with.
func (a *Archive) Options() Options { return a.opts }

// Append stores a copy of u and returns its index. With SkipDefault a
// placeholder unit is dropped and -1 is returned. Later changes to u do not
// reach the archive.
func (a *Archive) Append(u *markup.Unit) (int, error) {
	if u == nil {
		return -1, errors.NewValidation("unit", "nil unit")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed.Load() {
		return -1, ErrArchiveClosed
	}
	if a.opts.SkipDefault && IsPlaceholder(u) {
		return -1, nil
	}
	if a.mode == ModeSingle && len(a.units) == 1 {
		return -1, errors.NewValidation("archive", "single mode holds exactly one unit")
	}
	a.units = append(a.units, u.Clone())
	return len(a.units) - 1, nil
}

// DeclareNamespace binds prefix to uri in the archive's table.
func (a *Archive) DeclareNamespace(prefix, uri string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed.Load() {
		return ErrArchiveClosed
	}
	return a.ns.Declare(prefix, uri)
}

// Namespaces returns a copy of the namespace table.
func (a *Archive) Namespaces() *markup.Namespaces {
	if a.closed.Load() {
		return a.ns.Clone()
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ns.Clone()
}

// Len returns the number of units.
func (a *Archive) Len() int {
	return len(a.snapshot())
}

// Unit returns a copy of the unit at index i.
func (a *Archive) Unit(i int) (*markup.Unit, error) {
	units := a.snapshot()
	if i < 0 || i >= len(units) {
		return nil, errors.NewNotFound("unit", strconv.Itoa(i))
	}
	return units[i].Clone(), nil
}

// Iterate yields a copy of every unit with its index in append order. Each
// call starts from the first unit; units appended after the call starts are
// not seen.
func (a *Archive) Iterate() iter.Seq2[int, *markup.Unit] {
	return func(yield func(int, *markup.Unit) bool) {
		for i, u := range a.snapshot() {
			if !yield(i, u.Clone()) {
				return
			}
		}
	}
}

// Close makes the archive immutable. Closing twice is harmless.
func (a *Archive) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed.Store(true)
	return nil
}

// Closed reports whether Close has been called.
func (a *Archive) Closed() bool {
	return a.closed.Load()
}

// snapshot returns the unit slice as of now. The arena only grows, so the
// returned prefix never changes under the caller.
func (a *Archive) snapshot() []*markup.Unit {
	if a.closed.Load() {
		return a.units
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.units[:len(a.units):len(a.units)]
}

// IsPlaceholder reports whether u carries no source: empty or whitespace
// only.
func IsPlaceholder(u *markup.Unit) bool {
	return strings.TrimSpace(u.Text()) == ""
}
