// Package archive frames a sequence of named entries as a tar stream,
// optionally compressed with xz, gzip, zstd or lz4.
package archive

import (
	"archive/tar"
	"io"

	"github.com/FocuswithJustin/srcmark/core/errors"
)

// Reader wraps a tar.Reader with automatic decompression handling.
type Reader struct {
	*tar.Reader
	Compression  Compression
	decompressor io.Closer
}

// NewReader detects the compression of r from its magic bytes and returns a
// reader over the tar entries inside.
func NewReader(r io.Reader) (*Reader, error) {
	c, br, err := Sniff(r)
	if err != nil {
		return nil, err
	}
	dr, err := NewDecompressor(br, c)
	if err != nil {
		return nil, err
	}
	return &Reader{
		Reader:       tar.NewReader(dr),
		Compression:  c,
		decompressor: dr,
	}, nil
}

// Close closes the underlying decompressor.
func (r *Reader) Close() error {
	var errs []error
	if r.decompressor != nil {
		if err := r.decompressor.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

// Visitor is a callback function for iterating archive entries.
// Return true to stop iteration, false to continue.
type Visitor func(header *tar.Header, content io.Reader) (stop bool, err error)

// Iterate walks through all entries in the archive, calling the visitor for
// each. Stream errors are reported as CompressionError when a codec is in
// use, since a damaged compressed stream is where they come from.
func (r *Reader) Iterate(visitor Visitor) error {
	for {
		header, err := r.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return r.streamError("read header", err)
		}

		stop, err := visitor(header, r)
		if err != nil {
			return err
		}
		if stop {
			return nil
		}
	}
}

// ReadEntry reads the body of the current entry, checking its length
// against the header.
func (r *Reader) ReadEntry(header *tar.Header) ([]byte, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, r.streamError("read "+header.Name, err)
	}
	if int64(len(data)) != header.Size {
		return nil, errors.NewCorrupt(-1, header.Name, "entry shorter than its header")
	}
	return data, nil
}

func (r *Reader) streamError(op string, err error) error {
	if r.Compression != CompressionNone {
		return errors.NewCompression(string(r.Compression), op, err)
	}
	return errors.NewCorrupt(-1, "", op+": "+err.Error())
}
