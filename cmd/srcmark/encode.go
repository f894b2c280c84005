package main

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/FocuswithJustin/srcmark/core/archive"
	"github.com/FocuswithJustin/srcmark/core/build"
	"github.com/FocuswithJustin/srcmark/core/codec"
	"github.com/FocuswithJustin/srcmark/core/cpp"
	"github.com/FocuswithJustin/srcmark/core/encoding"
	"github.com/FocuswithJustin/srcmark/core/errors"
	"github.com/FocuswithJustin/srcmark/core/grammar"
	"github.com/FocuswithJustin/srcmark/core/markup"
	framing "github.com/FocuswithJustin/srcmark/internal/archive"
	"github.com/FocuswithJustin/srcmark/internal/logging"
	"github.com/FocuswithJustin/srcmark/internal/validation"
)

// EncodeCmd encodes sources into an archive.
type EncodeCmd struct {
	Inputs []string `arg:"" help:"Source files or directories, - for stdin"`
	Output string   `short:"o" default:"-" help:"Archive path, - for stdout"`

	Language    string            `short:"l" help:"Language of every input instead of the extension table"`
	Filename    string            `help:"Filename recorded for stdin input"`
	SrcVersion  string            `name:"src-version" help:"Revision tag recorded on every unit"`
	SrcEncoding string            `name:"src-encoding" help:"Encoding of the inputs; empty detects"`
	OnInvalid   string            `name:"on-invalid" default:"strict" enum:"strict,skip-encoding" help:"Fail on undecodable bytes or keep them opaque"`
	RegisterExt map[string]string `name:"register-ext" help:"Map extensions to languages, e.g. ino=C++"`

	ElsePolicy string `name:"else-policy" default:"markup" enum:"markup,text" help:"Representation of inactive #else branches"`
	If0Policy  string `name:"if0-policy" default:"text" enum:"markup,text" help:"Representation of #if 0 branches"`
	Position   bool   `help:"Add pos:start and pos:end attributes"`
	Timestamp  bool   `help:"Record the encode time on every unit"`

	Mode        string `default:"compound" enum:"single,compound,nested" help:"Archive mode"`
	Compression string `short:"z" default:"none" enum:"none,xz,gzip,gz,zstd,lz4" help:"Archive compression"`
	Format      string `default:"xml" enum:"xml,cbor" help:"Unit payload format"`
	SkipDefault bool   `name:"skip-default" help:"Leave out units with no content"`

	Workers int  `short:"j" help:"Concurrent encodes, 0 for one per CPU"`
	Strict  bool `help:"Fail when any unit cannot be encoded"`
}

func (c *EncodeCmd) Run(ctx context.Context) error {
	opts, err := c.options()
	if err != nil {
		return err
	}
	inputs, err := c.collect(opts.Codec.Registry)
	if err != nil {
		return err
	}
	if len(inputs) == 0 {
		return errors.NewValidation("inputs", "no source files found")
	}

	a, summary, err := build.Run(ctx, inputs, opts)
	if err != nil {
		return err
	}
	if err := writeArchive(a, c.Output); err != nil {
		return err
	}
	logging.ArchiveWritten(c.Output, string(a.Mode()), string(a.Options().Compression), a.Len(),
		"skipped", summary.Skipped, "failed", summary.Failed, "build_id", summary.BuildID)
	return nil
}

func (c *EncodeCmd) options() (build.Options, error) {
	var opts build.Options

	reg := grammar.NewRegistry()
	for ext, lang := range c.RegisterExt {
		clean, err := validation.ValidateExtension(ext)
		if err != nil {
			return opts, errors.Wrapf(err, "register-ext %s", ext)
		}
		if err := reg.RegisterExtension(clean, lang); err != nil {
			return opts, err
		}
	}
	if c.Language != "" {
		if _, ok := reg.Lookup(c.Language); !ok {
			return opts, errors.NewUnsupportedLanguage(c.Language, "")
		}
	}
	if c.SrcEncoding != "" && !encoding.Supported(c.SrcEncoding) {
		return opts, errors.NewUnsupported("encoding", c.SrcEncoding)
	}

	mode, err := encoding.ParseMode(c.OnInvalid)
	if err != nil {
		return opts, err
	}
	elsePolicy, err := cpp.ParsePolicy(c.ElsePolicy)
	if err != nil {
		return opts, err
	}
	if0Policy, err := cpp.ParsePolicy(c.If0Policy)
	if err != nil {
		return opts, err
	}
	opts.Codec = codec.Options{
		EncodingMode: mode,
		Policies:     cpp.Policies{Else: elsePolicy, If0: if0Policy},
		Positions:    c.Position,
		Registry:     reg,
	}
	if c.Timestamp {
		opts.Codec.Timestamp = time.Now()
	}

	if opts.Mode, err = archive.ParseMode(c.Mode); err != nil {
		return opts, err
	}
	if opts.Archive.Compression, err = framing.ParseCompression(c.Compression); err != nil {
		return opts, err
	}
	if opts.Archive.Format, err = markup.ParseFormat(c.Format); err != nil {
		return opts, err
	}
	opts.Archive.SkipDefault = c.SkipDefault
	opts.Workers = c.Workers
	opts.Strict = c.Strict
	return opts, nil
}

// collect turns the arguments into build inputs. Directories are walked in
// lexical order and contribute only files a grammar handles; files named
// directly are always included. Nested archives record paths relative to
// the directory argument.
func (c *EncodeCmd) collect(reg *grammar.Registry) ([]build.Input, error) {
	var inputs []build.Input
	add := func(path, recorded string) {
		inputs = append(inputs, build.Input{
			Source: c.source(recorded, nil),
			Load:   func() ([]byte, error) { return readFile(path) },
		})
	}

	for _, arg := range c.Inputs {
		if arg == "-" {
			data, err := io.ReadAll(stdin)
			if err != nil {
				return nil, errors.NewIO("read", "stdin", err)
			}
			inputs = append(inputs, build.Input{Source: c.source(c.Filename, data)})
			continue
		}
		if err := validation.ValidatePath(arg); err != nil {
			return nil, errors.Wrapf(err, "input %s", arg)
		}
		info, err := osStat(arg)
		if err != nil {
			return nil, errors.NewIO("stat", arg, err)
		}
		if !info.IsDir() {
			add(arg, filepath.ToSlash(arg))
			continue
		}

		var files []string
		err = filepath.WalkDir(arg, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.Type().IsRegular() && (c.Language != "" || reg.LanguageForFilename(path) != "") {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, errors.NewIO("walk", arg, err)
		}
		sort.Strings(files)
		for _, path := range files {
			recorded := filepath.ToSlash(path)
			if c.Mode == string(archive.ModeNested) {
				if rel, err := filepath.Rel(arg, path); err == nil {
					recorded = filepath.ToSlash(rel)
				}
			}
			add(path, recorded)
		}
	}
	return inputs, nil
}

func (c *EncodeCmd) source(filename string, data []byte) codec.Source {
	return codec.Source{
		Data:     data,
		Encoding: c.SrcEncoding,
		Language: c.Language,
		Filename: filename,
		Version:  c.SrcVersion,
	}
}

// Injectable for testing.
var (
	osStat   = os.Stat
	readFile = os.ReadFile
)

func writeArchive(a *archive.Archive, output string) error {
	if output == "-" || output == "" {
		return a.Write(stdout)
	}
	if err := validation.ValidatePath(output); err != nil {
		return errors.Wrapf(err, "output %s", output)
	}
	if dir := filepath.Dir(output); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.NewIO("create directory", dir, err)
		}
	}
	return a.WriteFile(output)
}

// openArchive reads an archive from a path or, for "-", from stdin.
func openArchive(path string) (*archive.Archive, error) {
	if path == "-" {
		return archive.Read(stdin)
	}
	if err := validation.ValidatePath(path); err != nil {
		return nil, fmt.Errorf("invalid archive path: %w", err)
	}
	return archive.ReadFile(path)
}
