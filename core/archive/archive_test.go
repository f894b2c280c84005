package archive

import (
	"archive/tar"
	"bytes"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/FocuswithJustin/srcmark/core/codec"
	"github.com/FocuswithJustin/srcmark/core/errors"
	"github.com/FocuswithJustin/srcmark/core/markup"
	framing "github.com/FocuswithJustin/srcmark/internal/archive"
	"github.com/goccy/go-json"
)

func encode(t *testing.T, filename, source string) *markup.Unit {
	t.Helper()
	u, _, err := codec.Encode(codec.Source{Data: []byte(source), Filename: filename}, codec.DefaultOptions())
	if err != nil {
		t.Fatalf("Encode(%s) error = %v", filename, err)
	}
	return u
}

func filenames(a *Archive) []string {
	var out []string
	for _, u := range a.Iterate() {
		out = append(out, u.Filename)
	}
	return out
}

func TestOpen(t *testing.T) {
	for _, m := range []Mode{ModeSingle, ModeCompound, ModeNested} {
		a, err := Open(m, Options{})
		if err != nil {
			t.Fatalf("Open(%s) error = %v", m, err)
		}
		if a.Mode() != m || a.Len() != 0 || a.Options().Format != markup.FormatXML {
			t.Errorf("Open(%s) = %+v", m, a.Options())
		}
		if a.Namespaces().Len() != 2 {
			t.Errorf("default namespaces = %v", a.Namespaces().All())
		}
	}

	if _, err := Open("zip", Options{}); !errors.Is(err, errors.ErrUnsupported) {
		t.Errorf("Open(zip) error = %v", err)
	}
	if _, err := Open(ModeCompound, Options{Compression: "rar"}); !errors.Is(err, errors.ErrUnsupported) {
		t.Errorf("bad compression error = %v", err)
	}
	if _, err := Open(ModeCompound, Options{Format: "yaml"}); !errors.Is(err, errors.ErrUnsupported) {
		t.Errorf("bad format error = %v", err)
	}
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"", ModeCompound, false},
		{"single", ModeSingle, false},
		{"NESTED", ModeNested, false},
		{"flat", "", true},
	}
	for _, tt := range tests {
		got, err := ParseMode(tt.in)
		if got != tt.want || (err != nil) != tt.wantErr {
			t.Errorf("ParseMode(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestAppendOrderAndIterate(t *testing.T) {
	a, _ := Open(ModeCompound, DefaultOptions())
	want := []string{"z.c", "a.c", "m.py", "b.java"}
	for i, name := range want {
		idx, err := a.Append(encode(t, name, "x;\n"))
		if err != nil {
			t.Fatalf("Append(%s) error = %v", name, err)
		}
		if idx != i {
			t.Errorf("Append(%s) index = %d, want %d", name, idx, i)
		}
	}

	for pass := 0; pass < 2; pass++ {
		if got := strings.Join(filenames(a), " "); got != strings.Join(want, " ") {
			t.Errorf("pass %d order = %s", pass, got)
		}
	}

	var seen int
	for range a.Iterate() {
		seen++
		if seen == 2 {
			break
		}
	}
	if seen != 2 {
		t.Errorf("early stop saw %d units", seen)
	}

	u, err := a.Unit(2)
	if err != nil || u.Filename != "m.py" {
		t.Errorf("Unit(2) = %v, %v", u, err)
	}
	if _, err := a.Unit(4); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("Unit(4) error = %v", err)
	}
	if _, err := a.Unit(-1); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("Unit(-1) error = %v", err)
	}
	if _, err := a.Append(nil); !errors.Is(err, errors.ErrInvalidInput) {
		t.Errorf("Append(nil) error = %v", err)
	}
}

func TestIterateSnapshot(t *testing.T) {
	a, _ := Open(ModeCompound, DefaultOptions())
	a.Append(encode(t, "a.c", "a;"))
	var got []string
	for _, u := range a.Iterate() {
		got = append(got, u.Filename)
		if len(got) == 1 {
			a.Append(encode(t, "b.c", "b;"))
		}
	}
	if len(got) != 1 {
		t.Errorf("iteration saw a unit appended during the walk: %v", got)
	}
	if a.Len() != 2 {
		t.Errorf("Len() = %d", a.Len())
	}
}

func TestSingleMode(t *testing.T) {
	a, _ := Open(ModeSingle, DefaultOptions())
	if _, err := a.Append(encode(t, "a.c", "int a;\n")); err != nil {
		t.Fatal(err)
	}
	if _, err := a.Append(encode(t, "b.c", "int b;\n")); !errors.Is(err, errors.ErrInvalidInput) {
		t.Errorf("second Append error = %v", err)
	}

	var buf bytes.Buffer
	if err := a.Write(&buf); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte(markup.XMLHeader)) {
		t.Errorf("single archive should be a bare unit document, got %q", buf.String())
	}

	back, err := Read(&buf)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if back.Mode() != ModeSingle || back.Len() != 1 || !back.Closed() {
		t.Errorf("Read() = mode %s, %d units", back.Mode(), back.Len())
	}
	u, _ := back.Unit(0)
	if u.Text() != "int a;\n" {
		t.Errorf("Text() = %q", u.Text())
	}

	empty, _ := Open(ModeSingle, DefaultOptions())
	if err := empty.Write(io.Discard); !errors.Is(err, errors.ErrInvalidInput) {
		t.Errorf("empty single Write error = %v", err)
	}
}

func TestSkipDefault(t *testing.T) {
	a, _ := Open(ModeCompound, Options{SkipDefault: true})
	sources := []struct {
		name string
		src  string
		want int
	}{
		{"a.c", "int a;\n", 0},
		{"empty.c", "", -1},
		{"blank.py", "  \n\t\r\n", -1},
		{"b.c", "int b;\n", 1},
	}
	for _, s := range sources {
		idx, err := a.Append(encode(t, s.name, s.src))
		if err != nil {
			t.Fatalf("Append(%s) error = %v", s.name, err)
		}
		if idx != s.want {
			t.Errorf("Append(%s) = %d, want %d", s.name, idx, s.want)
		}
	}
	if a.Len() != 2 {
		t.Errorf("Len() = %d, want 2", a.Len())
	}

	keep, _ := Open(ModeCompound, Options{})
	if idx, _ := keep.Append(encode(t, "empty.c", "")); idx != 0 {
		t.Errorf("without SkipDefault empty unit index = %d", idx)
	}
}

func TestDeclareNamespaceAndClose(t *testing.T) {
	a, _ := Open(ModeCompound, DefaultOptions())
	if err := a.DeclareNamespace("x", "urn:x"); err != nil {
		t.Fatal(err)
	}
	if err := a.DeclareNamespace("x", "urn:x"); err != nil {
		t.Errorf("same binding again error = %v", err)
	}
	err := a.DeclareNamespace("cpp", "urn:other")
	var collision *errors.NamespacePrefixCollisionError
	if !errors.As(err, &collision) || !errors.Is(err, errors.ErrAlreadyExists) {
		t.Fatalf("collision error = %v", err)
	}
	if collision.Existing != markup.CppNamespace {
		t.Errorf("Existing = %q", collision.Existing)
	}

	if err := a.Close(); err != nil {
		t.Fatal(err)
	}
	if err := a.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if _, err := a.Append(encode(t, "a.c", "a;")); !errors.Is(err, ErrArchiveClosed) {
		t.Errorf("Append after Close error = %v", err)
	}
	if err := a.DeclareNamespace("y", "urn:y"); !errors.Is(err, ErrArchiveClosed) {
		t.Errorf("DeclareNamespace after Close error = %v", err)
	}
	if uri, ok := a.Namespaces().Lookup("x"); !ok || uri != "urn:x" {
		t.Error("namespace table lost on Close")
	}
}

func TestUnitsAreNotAliased(t *testing.T) {
	a, _ := Open(ModeCompound, DefaultOptions())
	u := encode(t, "a.c", "int x;\n")
	if _, err := a.Append(u); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	a.Close()

	u.Root.AppendText("// injected\n")
	u.Filename = "caller.c"
	for _, v := range a.Iterate() {
		v.Root.AppendText("// injected\n")
		v.Filename = "changed.c"
	}
	got, _ := a.Unit(0)
	got.Filename = "other.c"

	got, err := a.Unit(0)
	if err != nil {
		t.Fatalf("Unit(0) error = %v", err)
	}
	if got.Filename != "a.c" || got.Text() != "int x;\n" {
		t.Errorf("Unit(0) = filename %q text %q, want unchanged", got.Filename, got.Text())
	}
}

func TestConcurrentAppend(t *testing.T) {
	a, _ := Open(ModeCompound, DefaultOptions())
	u := encode(t, "a.c", "int a;")
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				a.Append(u.Clone())
				a.Len()
			}
		}()
	}
	wg.Wait()
	if a.Len() != 200 {
		t.Errorf("Len() = %d, want 200", a.Len())
	}
}

func TestCompoundCloseReopen(t *testing.T) {
	sources := map[string]string{
		"a.c": "#include <a.h>\nint a = 1;\n",
		"b.c": "#if 0\nint b;\n#endif\n",
		"c.c": "void c(void) { return; }\n",
	}
	for _, c := range []framing.Compression{framing.CompressionNone, framing.CompressionXZ, framing.CompressionGzip, framing.CompressionZstd, framing.CompressionLZ4} {
		for _, f := range []markup.Format{markup.FormatXML, markup.FormatCBOR} {
			t.Run(fmt.Sprintf("%s/%s", c, f), func(t *testing.T) {
				a, err := Open(ModeCompound, Options{Compression: c, Format: f})
				if err != nil {
					t.Fatal(err)
				}
				for _, name := range []string{"a.c", "b.c", "c.c"} {
					if _, err := a.Append(encode(t, name, sources[name])); err != nil {
						t.Fatal(err)
					}
				}
				if err := a.DeclareNamespace("ext", "urn:example:ext"); err != nil {
					t.Fatal(err)
				}
				a.Close()

				var buf bytes.Buffer
				if err := a.Write(&buf); err != nil {
					t.Fatalf("Write() error = %v", err)
				}
				back, err := Read(bytes.NewReader(buf.Bytes()))
				if err != nil {
					t.Fatalf("Read() error = %v", err)
				}

				if got := strings.Join(filenames(back), ","); got != "a.c,b.c,c.c" {
					t.Errorf("order = %s", got)
				}
				wantNS, gotNS := a.Namespaces().All(), back.Namespaces().All()
				if len(wantNS) != len(gotNS) {
					t.Fatalf("namespaces = %v, want %v", gotNS, wantNS)
				}
				for i := range wantNS {
					if wantNS[i] != gotNS[i] {
						t.Errorf("namespace %d = %v, want %v", i, gotNS[i], wantNS[i])
					}
				}
				if back.Options().Compression != c || back.Options().Format != f || back.Mode() != ModeCompound {
					t.Errorf("options = %+v", back.Options())
				}
				for i, u := range back.Iterate() {
					data, err := codec.Decode(u)
					if err != nil {
						t.Fatal(err)
					}
					if string(data) != sources[u.Filename] {
						t.Errorf("unit %d = %q, want %q", i, data, sources[u.Filename])
					}
				}
				if _, err := back.Append(encode(t, "d.c", "d;")); !errors.Is(err, ErrArchiveClosed) {
					t.Errorf("read archive should be closed, Append error = %v", err)
				}
			})
		}
	}
}

func TestDeeplyNestedReopen(t *testing.T) {
	src := strings.Repeat("{", 2100) + strings.Repeat("}", 2100) + "\n"
	for _, f := range []markup.Format{markup.FormatXML, markup.FormatCBOR} {
		t.Run(string(f), func(t *testing.T) {
			a, _ := Open(ModeCompound, Options{Format: f})
			if _, err := a.Append(encode(t, "deep.c", src)); err != nil {
				t.Fatal(err)
			}
			a.Close()
			var buf bytes.Buffer
			if err := a.Write(&buf); err != nil {
				t.Fatalf("Write() error = %v", err)
			}
			back, err := Read(&buf)
			if err != nil {
				t.Fatalf("Read() error = %v", err)
			}
			u, err := back.Unit(0)
			if err != nil {
				t.Fatal(err)
			}
			data, err := codec.Decode(u)
			if err != nil || string(data) != src {
				t.Errorf("decoded %d bytes, %v; want the original %d bytes", len(data), err, len(src))
			}
		})
	}
}

func TestWriteIsDeterministic(t *testing.T) {
	build := func() []byte {
		a, _ := Open(ModeCompound, Options{Compression: framing.CompressionGzip})
		a.Append(encode(t, "a.c", "int a;\n"))
		a.Append(encode(t, "b.py", "b = 1\n"))
		var buf bytes.Buffer
		if err := a.Write(&buf); err != nil {
			t.Fatal(err)
		}
		return buf.Bytes()
	}
	if !bytes.Equal(build(), build()) {
		t.Error("writing the same archive twice gave different bytes")
	}
}

func TestNestedManifest(t *testing.T) {
	a, _ := Open(ModeNested, DefaultOptions())
	a.Append(encode(t, "src/lib/a.c", "int a;\n"))
	a.Append(encode(t, "main.py", "x = 1\n"))
	var buf bytes.Buffer
	if err := a.Write(&buf); err != nil {
		t.Fatal(err)
	}
	m := readManifest(t, buf.Bytes())
	if m.Mode != ModeNested || m.Count != 2 || m.Version != FormatVersion {
		t.Errorf("manifest = %+v", m)
	}
	if m.Units[0].Directory != "src/lib" || m.Units[1].Directory != "." {
		t.Errorf("directories = %q %q", m.Units[0].Directory, m.Units[1].Directory)
	}
	if m.Units[0].Entry != "units/000001.xml" || m.Units[0].Language != "C" || m.Units[0].Size == 0 {
		t.Errorf("entry = %+v", m.Units[0])
	}
}

func TestFileRoundTrip(t *testing.T) {
	a, _ := Open(ModeCompound, Options{Compression: framing.CompressionXZ})
	a.Append(encode(t, "a.c", "int a;\n"))
	path := t.TempDir() + "/out.srcmark"
	if err := a.WriteFile(path); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	back, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if back.Len() != 1 {
		t.Errorf("Len() = %d", back.Len())
	}
	if _, err := ReadFile(t.TempDir() + "/missing"); err == nil {
		t.Error("ReadFile(missing) should fail")
	}
}

func TestManifestMarshalFailure(t *testing.T) {
	orig := jsonMarshalManifest
	defer func() { jsonMarshalManifest = orig }()
	jsonMarshalManifest = func(any) ([]byte, error) { return nil, fmt.Errorf("injected") }

	a, _ := Open(ModeCompound, DefaultOptions())
	a.Append(encode(t, "a.c", "a;"))
	if err := a.Write(io.Discard); err == nil || !strings.Contains(err.Error(), "injected") {
		t.Errorf("Write() error = %v", err)
	}
}

type rawEntry struct {
	name string
	data []byte
}

// entriesOf unpacks a framed archive written without compression.
func entriesOf(t *testing.T, data []byte) []rawEntry {
	t.Helper()
	r, err := framing.NewReader(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	var out []rawEntry
	err = r.Iterate(func(h *tar.Header, _ io.Reader) (bool, error) {
		b, err := r.ReadEntry(h)
		out = append(out, rawEntry{h.Name, b})
		return false, err
	})
	if err != nil {
		t.Fatal(err)
	}
	return out
}

func pack(t *testing.T, entries []rawEntry) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := framing.NewWriter(&buf, framing.CompressionNone)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if err := w.WriteFile(e.name, e.data); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func readManifest(t *testing.T, data []byte) Manifest {
	t.Helper()
	var m Manifest
	if err := json.Unmarshal(entriesOf(t, data)[0].data, &m); err != nil {
		t.Fatal(err)
	}
	return m
}

func TestReadCorruption(t *testing.T) {
	a, _ := Open(ModeCompound, DefaultOptions())
	a.Append(encode(t, "a.c", "int a;\n"))
	a.Append(encode(t, "b.c", "int b;\n"))
	var buf bytes.Buffer
	if err := a.Write(&buf); err != nil {
		t.Fatal(err)
	}
	good := entriesOf(t, buf.Bytes())

	editManifest := func(edit func(m *Manifest)) []rawEntry {
		var m Manifest
		if err := json.Unmarshal(good[0].data, &m); err != nil {
			t.Fatal(err)
		}
		edit(&m)
		data, _ := json.Marshal(m)
		return append([]rawEntry{{ManifestName, data}}, good[1:]...)
	}
	tampered := append([]byte(nil), good[1].data...)
	tampered[len(tampered)-3] ^= 0x01

	tests := []struct {
		name         string
		entries      []rawEntry
		wantPosition int
		wantSentinel error
	}{
		{"manifest not first", []rawEntry{good[1], good[0], good[2]}, 0, errors.ErrCorrupt},
		{"missing unit", good[:2], 2, errors.ErrCorrupt},
		{"extra unit", append(append([]rawEntry(nil), good...), rawEntry{"units/000003.xml", good[1].data}), 3, errors.ErrCorrupt},
		{"units swapped", []rawEntry{good[0], good[2], good[1]}, 1, errors.ErrCorrupt},
		{"payload tampered", []rawEntry{good[0], {good[1].name, tampered}, good[2]}, 1, errors.ErrCorrupt},
		{"payload resized", []rawEntry{good[0], {good[1].name, append(good[1].data, ' ')}, good[2]}, 1, errors.ErrCorrupt},
		{"count disagrees", editManifest(func(m *Manifest) { m.Count = 3 }), 0, errors.ErrCorrupt},
		{"bad position", editManifest(func(m *Manifest) { m.Units[1].Position = 7 }), 2, errors.ErrCorrupt},
		{"bad json", []rawEntry{{ManifestName, []byte("{")}, good[1], good[2]}, 0, errors.ErrCorrupt},
		{"no manifest", nil, 0, errors.ErrCorrupt},
		{"future version", editManifest(func(m *Manifest) { m.Version = 99 }), -1, errors.ErrUnsupported},
		{"namespace collision", editManifest(func(m *Manifest) {
			m.Namespaces = append(m.Namespaces, markup.Namespace{Prefix: "cpp", URI: "urn:x"})
		}), 0, errors.ErrCorrupt},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Read(bytes.NewReader(pack(t, tt.entries)))
			if !errors.Is(err, tt.wantSentinel) {
				t.Fatalf("Read() error = %v, want %v", err, tt.wantSentinel)
			}
			if tt.wantPosition < 0 {
				return
			}
			var ce *errors.ArchiveCorruptionError
			if !errors.As(err, &ce) {
				t.Fatalf("error %T is not an ArchiveCorruptionError", err)
			}
			if ce.Position != tt.wantPosition {
				t.Errorf("Position = %d, want %d (%v)", ce.Position, tt.wantPosition, err)
			}
		})
	}
}

func TestReadTruncatedCompressed(t *testing.T) {
	a, _ := Open(ModeCompound, Options{Compression: framing.CompressionGzip})
	for i := 0; i < 20; i++ {
		a.Append(encode(t, fmt.Sprintf("f%02d.c", i), fmt.Sprintf("int v%d = %d; /* %x */\n", i, i*7919, i*104729)))
	}
	var buf bytes.Buffer
	if err := a.Write(&buf); err != nil {
		t.Fatal(err)
	}
	data := buf.Bytes()
	_, err := Read(bytes.NewReader(data[:len(data)-40]))
	if !errors.Is(err, errors.ErrCompression) {
		t.Errorf("Read() error = %v, want ErrCompression", err)
	}
}

func TestReadGarbage(t *testing.T) {
	if _, err := Read(strings.NewReader("not an archive")); !errors.Is(err, errors.ErrCorrupt) {
		t.Errorf("Read(garbage) error = %v", err)
	}
	if _, err := Read(strings.NewReader("<unit><oops></unit>")); !errors.Is(err, errors.ErrCorrupt) {
		t.Errorf("Read(bad xml) error = %v", err)
	}
}
