package archive

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"io"
	"strings"

	"github.com/FocuswithJustin/srcmark/core/errors"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/ulikunitz/xz"
)

// Compression names the codec wrapped around an archive stream.
type Compression string

const (
	CompressionNone Compression = "none"
	CompressionXZ   Compression = "xz"
	CompressionGzip Compression = "gzip"
	CompressionZstd Compression = "zstd"
	CompressionLZ4  Compression = "lz4"
)

// Injectable functions for testing
var (
	gzipNewWriterLevel = gzip.NewWriterLevel
	gzipNewReader      = gzip.NewReader
	xzNewWriter        = xz.NewWriter
	xzNewReader        = xz.NewReader
	zstdNewWriter      = func(w io.Writer) (*zstd.Encoder, error) {
		return zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	}
	zstdNewReader = func(r io.Reader) (*zstd.Decoder, error) {
		return zstd.NewReader(r)
	}
)

var magics = []struct {
	c     Compression
	magic []byte
}{
	{CompressionXZ, []byte{0xfd, 0x37, 0x7a, 0x58, 0x5a, 0x00}},
	{CompressionGzip, []byte{0x1f, 0x8b}},
	{CompressionZstd, []byte{0x28, 0xb5, 0x2f, 0xfd}},
	{CompressionLZ4, []byte{0x04, 0x22, 0x4d, 0x18}},
}

// ParseCompression accepts a compression name. The empty string means none.
func ParseCompression(s string) (Compression, error) {
	switch c := Compression(strings.ToLower(s)); c {
	case "", CompressionNone:
		return CompressionNone, nil
	case CompressionXZ, CompressionGzip, CompressionZstd, CompressionLZ4:
		return c, nil
	case "gz":
		return CompressionGzip, nil
	}
	return "", errors.NewUnsupported("compression", s)
}

// DetectCompression identifies the codec from the leading magic bytes.
// Anything unrecognized is reported as CompressionNone.
func DetectCompression(head []byte) Compression {
	for _, m := range magics {
		if bytes.HasPrefix(head, m.magic) {
			return m.c
		}
	}
	return CompressionNone
}

// Sniff peeks at the start of r and returns the detected codec together
// with a reader that still yields every byte.
func Sniff(r io.Reader) (Compression, io.Reader, error) {
	br := bufio.NewReader(r)
	head, err := br.Peek(6)
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		return "", nil, errors.NewIO("read magic bytes", "", err)
	}
	return DetectCompression(head), br, nil
}

// NewCompressor wraps w so that bytes written are compressed with c.
// Closing the result flushes the codec but leaves w open.
func NewCompressor(w io.Writer, c Compression) (io.WriteCloser, error) {
	switch c {
	case CompressionNone, "":
		return nopWriteCloser{w}, nil
	case CompressionGzip:
		gw, err := gzipNewWriterLevel(w, gzip.BestCompression)
		if err != nil {
			return nil, errors.NewCompression(string(c), "create writer", err)
		}
		return gw, nil
	case CompressionXZ:
		xw, err := xzNewWriter(w)
		if err != nil {
			return nil, errors.NewCompression(string(c), "create writer", err)
		}
		return xw, nil
	case CompressionZstd:
		zw, err := zstdNewWriter(w)
		if err != nil {
			return nil, errors.NewCompression(string(c), "create writer", err)
		}
		return zw, nil
	case CompressionLZ4:
		return lz4.NewWriter(w), nil
	}
	return nil, errors.NewUnsupported("compression", string(c))
}

// NewDecompressor wraps r so that reads return the decompressed stream.
func NewDecompressor(r io.Reader, c Compression) (io.ReadCloser, error) {
	switch c {
	case CompressionNone, "":
		return io.NopCloser(r), nil
	case CompressionGzip:
		gr, err := gzipNewReader(r)
		if err != nil {
			return nil, errors.NewCompression(string(c), "open", err)
		}
		return gr, nil
	case CompressionXZ:
		xr, err := xzNewReader(r)
		if err != nil {
			return nil, errors.NewCompression(string(c), "open", err)
		}
		return io.NopCloser(xr), nil
	case CompressionZstd:
		zr, err := zstdNewReader(r)
		if err != nil {
			return nil, errors.NewCompression(string(c), "open", err)
		}
		return zr.IOReadCloser(), nil
	case CompressionLZ4:
		return io.NopCloser(lz4.NewReader(r)), nil
	}
	return nil, errors.NewUnsupported("compression", string(c))
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }
