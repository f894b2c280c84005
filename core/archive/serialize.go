package archive

import (
	"archive/tar"
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"path"

	"github.com/FocuswithJustin/srcmark/core/cas"
	"github.com/FocuswithJustin/srcmark/core/errors"
	"github.com/FocuswithJustin/srcmark/core/markup"
	framing "github.com/FocuswithJustin/srcmark/internal/archive"
	"github.com/goccy/go-json"
)

// ManifestName is the first entry of every framed archive.
const ManifestName = "manifest.json"

// FormatVersion is the manifest layout written by this package.
const FormatVersion = 1

// Injectable functions for testing
var (
	jsonMarshalManifest   = json.Marshal
	jsonUnmarshalManifest = json.Unmarshal
	osCreateArchive       = os.Create
	osOpenArchive         = os.Open
)

// Manifest is the archive header.
type Manifest struct {
	Version       int                 `json:"version"`
	Mode          Mode                `json:"mode"`
	Count         int                 `json:"count"`
	Compression   framing.Compression `json:"compression"`
	PayloadFormat markup.Format       `json:"payload_format"`
	Namespaces    []markup.Namespace  `json:"namespaces"`
	Units         []UnitEntry         `json:"units"`
}

// UnitEntry indexes one payload entry. Position is 1-based. Directory is
// recorded in nested mode only.
type UnitEntry struct {
	Position  int            `json:"position"`
	Entry     string         `json:"entry"`
	Filename  string         `json:"filename,omitempty"`
	Language  string         `json:"language,omitempty"`
	Directory string         `json:"directory,omitempty"`
	Size      int64          `json:"size"`
	Digest    cas.HashResult `json:"digest"`
}

// EntryName returns the tar entry name of the unit at 1-based position.
func EntryName(position int, f markup.Format) string {
	return fmt.Sprintf("units/%06d%s", position, f.Extension())
}

// Write serializes the archive. A single-mode archive without compression
// is written as the bare unit document; everything else is a tar stream
// whose first entry is the manifest.
func (a *Archive) Write(w io.Writer) error {
	units := a.snapshot()
	ns := a.Namespaces()

	if a.mode == ModeSingle && a.opts.Compression == framing.CompressionNone {
		if len(units) != 1 {
			return errors.NewValidation("archive", "single mode needs exactly one unit to write")
		}
		data, err := markup.Marshal(units[0], ns, a.opts.Format)
		if err != nil {
			return err
		}
		if _, err := w.Write(data); err != nil {
			return errors.NewIO("write unit", units[0].Filename, err)
		}
		return nil
	}

	manifest := Manifest{
		Version:       FormatVersion,
		Mode:          a.mode,
		Count:         len(units),
		Compression:   a.opts.Compression,
		PayloadFormat: a.opts.Format,
		Namespaces:    ns.All(),
		Units:         make([]UnitEntry, 0, len(units)),
	}
	payloads := make([][]byte, len(units))
	for i, u := range units {
		data, err := markup.Marshal(u, ns, a.opts.Format)
		if err != nil {
			return errors.Wrapf(err, "unit %d (%s)", i+1, u.Filename)
		}
		payloads[i] = data
		entry := UnitEntry{
			Position: i + 1,
			Entry:    EntryName(i+1, a.opts.Format),
			Filename: u.Filename,
			Language: u.Language,
			Size:     int64(len(data)),
			Digest:   cas.Sum(data),
		}
		if a.mode == ModeNested {
			entry.Directory = path.Dir(u.Filename)
		}
		manifest.Units = append(manifest.Units, entry)
	}

	manifestData, err := jsonMarshalManifest(manifest)
	if err != nil {
		return errors.Wrap(err, "serialize manifest")
	}

	tw, err := framing.NewWriter(w, a.opts.Compression)
	if err != nil {
		return err
	}
	if err := tw.WriteFile(ManifestName, manifestData); err != nil {
		tw.Close()
		return err
	}
	for i, data := range payloads {
		if err := tw.WriteFile(manifest.Units[i].Entry, data); err != nil {
			tw.Close()
			return err
		}
	}
	return tw.Close()
}

// WriteFile serializes the archive to path.
func (a *Archive) WriteFile(filename string) error {
	f, err := osCreateArchive(filename)
	if err != nil {
		return errors.NewIO("create archive", filename, err)
	}
	if err := a.Write(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return errors.NewIO("close archive", filename, err)
	}
	return nil
}

// Read parses a serialized archive. The result is closed. Any mismatch
// between the manifest and the entries aborts the whole read with an
// ArchiveCorruptionError.
func Read(r io.Reader) (*Archive, error) {
	c, sniffed, err := framing.Sniff(r)
	if err != nil {
		return nil, err
	}
	br := bufio.NewReaderSize(sniffed, 1024)
	if c == framing.CompressionNone {
		head, _ := br.Peek(512)
		if !isTar(head) {
			return readSingle(br)
		}
	}

	tr, err := framing.NewReader(br)
	if err != nil {
		return nil, err
	}
	defer tr.Close()
	a, err := readFramed(tr)
	if err != nil {
		return nil, err
	}
	a.opts.Compression = c
	return a, nil
}

// ReadFile parses the archive stored at filename.
func ReadFile(filename string) (*Archive, error) {
	f, err := osOpenArchive(filename)
	if err != nil {
		return nil, errors.NewIO("open archive", filename, err)
	}
	defer f.Close()
	return Read(f)
}

// isTar checks for the ustar magic of a tar header block, or the zero block
// that ends an empty tar stream.
func isTar(head []byte) bool {
	if len(head) >= 262 && string(head[257:262]) == "ustar" {
		return true
	}
	return len(head) == 512 && bytes.Count(head, []byte{0}) == 512
}

func readSingle(r io.Reader) (*Archive, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.NewIO("read archive", "", err)
	}
	format := markup.FormatCBOR
	if trimmed := bytes.TrimLeft(data, " \t\r\n\xef\xbb\xbf"); len(trimmed) > 0 && trimmed[0] == '<' {
		format = markup.FormatXML
	}
	u, ns, err := markup.Unmarshal(data, format)
	if err != nil {
		return nil, &errors.ArchiveCorruptionError{Position: 1, Message: "unreadable unit document", Err: err}
	}
	a := &Archive{
		mode:  ModeSingle,
		opts:  Options{Compression: framing.CompressionNone, Format: format},
		ns:    ns,
		units: []*markup.Unit{u},
	}
	a.closed.Store(true)
	return a, nil
}

func readFramed(tr *framing.Reader) (*Archive, error) {
	var (
		manifest *Manifest
		a        *Archive
		seen     int
	)
	err := tr.Iterate(func(h *tar.Header, _ io.Reader) (bool, error) {
		data, err := tr.ReadEntry(h)
		if err != nil {
			return true, err
		}
		if manifest == nil {
			if h.Name != ManifestName {
				return true, errors.NewCorrupt(0, h.Name, "first entry must be "+ManifestName)
			}
			if manifest, a, err = parseManifest(data); err != nil {
				return true, err
			}
			return false, nil
		}

		seen++
		if seen > manifest.Count {
			return true, errors.NewCorrupt(seen, h.Name, fmt.Sprintf("more entries than the %d units in the manifest", manifest.Count))
		}
		entry := manifest.Units[seen-1]
		if h.Name != entry.Entry {
			return true, errors.NewCorrupt(seen, h.Name, "expected entry "+entry.Entry)
		}
		if int64(len(data)) != entry.Size {
			return true, errors.NewCorrupt(seen, h.Name, fmt.Sprintf("payload is %d bytes, manifest says %d", len(data), entry.Size))
		}
		if err := cas.Verify(data, entry.Digest); err != nil {
			return true, &errors.ArchiveCorruptionError{Position: seen, Entry: h.Name, Message: "payload digest mismatch", Err: err}
		}
		u, _, err := markup.Unmarshal(data, manifest.PayloadFormat)
		if err != nil {
			return true, &errors.ArchiveCorruptionError{Position: seen, Entry: h.Name, Message: "unreadable payload", Err: err}
		}
		a.units = append(a.units, u)
		return false, nil
	})
	if err != nil {
		return nil, err
	}
	if manifest == nil {
		return nil, errors.NewCorrupt(0, "", "archive has no "+ManifestName)
	}
	if seen != manifest.Count {
		return nil, errors.NewCorrupt(seen+1, "", fmt.Sprintf("archive ends after %d of %d units", seen, manifest.Count))
	}
	a.closed.Store(true)
	return a, nil
}

func parseManifest(data []byte) (*Manifest, *Archive, error) {
	var m Manifest
	if err := jsonUnmarshalManifest(data, &m); err != nil {
		return nil, nil, &errors.ArchiveCorruptionError{Entry: ManifestName, Message: "invalid manifest", Err: err}
	}
	if m.Version < 1 || m.Version > FormatVersion {
		return nil, nil, errors.NewUnsupported("archive format version", fmt.Sprint(m.Version))
	}
	mode, err := ParseMode(string(m.Mode))
	if err != nil {
		return nil, nil, &errors.ArchiveCorruptionError{Entry: ManifestName, Message: "invalid mode", Err: err}
	}
	format, err := markup.ParseFormat(string(m.PayloadFormat))
	if err != nil {
		return nil, nil, &errors.ArchiveCorruptionError{Entry: ManifestName, Message: "invalid payload format", Err: err}
	}
	m.PayloadFormat = format
	if m.Count < 0 || m.Count != len(m.Units) {
		return nil, nil, errors.NewCorrupt(0, ManifestName, fmt.Sprintf("count %d does not match %d index entries", m.Count, len(m.Units)))
	}
	for i, e := range m.Units {
		if e.Position != i+1 {
			return nil, nil, errors.NewCorrupt(i+1, e.Entry, fmt.Sprintf("index entry has position %d", e.Position))
		}
	}
	ns, err := markup.NewNamespaces(m.Namespaces...)
	if err != nil {
		return nil, nil, &errors.ArchiveCorruptionError{Entry: ManifestName, Message: "invalid namespace table", Err: err}
	}
	a := &Archive{
		mode:  mode,
		opts:  Options{Format: format, Compression: m.Compression},
		ns:    ns,
		units: make([]*markup.Unit, 0, m.Count),
	}
	return &m, a, nil
}
