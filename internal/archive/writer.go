package archive

import (
	"archive/tar"
	"io"
	"time"

	"github.com/FocuswithJustin/srcmark/core/errors"
)

// Writer writes named entries as a tar stream through a compressor.
// Timestamps are fixed so the same entries always give the same bytes.
type Writer struct {
	tw          *tar.Writer
	compressor  io.WriteCloser
	compression Compression
}

// entryTime is the modification time recorded for every entry.
var entryTime = time.Unix(0, 0).UTC()

// NewWriter returns a writer emitting to w compressed with c.
func NewWriter(w io.Writer, c Compression) (*Writer, error) {
	cw, err := NewCompressor(w, c)
	if err != nil {
		return nil, err
	}
	return &Writer{tw: tar.NewWriter(cw), compressor: cw, compression: c}, nil
}

// WriteFile appends one regular file entry.
func (w *Writer) WriteFile(name string, data []byte) error {
	header := &tar.Header{
		Name:     name,
		Mode:     0644,
		Size:     int64(len(data)),
		ModTime:  entryTime,
		Typeflag: tar.TypeReg,
		Format:   tar.FormatPAX,
	}
	if err := w.tw.WriteHeader(header); err != nil {
		return w.streamError("write header "+name, err)
	}
	if _, err := w.tw.Write(data); err != nil {
		return w.streamError("write "+name, err)
	}
	return nil
}

// Close finishes the tar stream and flushes the compressor. The underlying
// writer is left open.
func (w *Writer) Close() error {
	var errs []error
	if err := w.tw.Close(); err != nil {
		errs = append(errs, w.streamError("close tar", err))
	}
	if err := w.compressor.Close(); err != nil {
		errs = append(errs, errors.NewCompression(string(w.compression), "close", err))
	}
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

func (w *Writer) streamError(op string, err error) error {
	if w.compression != CompressionNone && w.compression != "" {
		return errors.NewCompression(string(w.compression), op, err)
	}
	return errors.NewIO(op, "", err)
}
