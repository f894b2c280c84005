package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	json "github.com/goccy/go-json"

	"github.com/FocuswithJustin/srcmark/core/archive"
	"github.com/FocuswithJustin/srcmark/core/codec"
	"github.com/FocuswithJustin/srcmark/core/encoding"
	"github.com/FocuswithJustin/srcmark/core/errors"
	"github.com/FocuswithJustin/srcmark/core/grammar"
	"github.com/FocuswithJustin/srcmark/core/markup"
	"github.com/FocuswithJustin/srcmark/core/query"
	"github.com/FocuswithJustin/srcmark/internal/logging"
	"github.com/FocuswithJustin/srcmark/internal/validation"
)

// DecodeCmd writes units of an archive back out as source.
type DecodeCmd struct {
	Archive     string `arg:"" help:"Archive path, - for stdin"`
	Unit        int    `help:"1-based unit to decode; 0 decodes every unit"`
	ToDir       string `name:"to-dir" type:"path" help:"Extract each unit to its recorded filename under this directory"`
	Output      string `short:"o" default:"-" help:"Output file for the decoded text, - for stdout"`
	OutEncoding string `name:"out-encoding" help:"Write text in this encoding instead of the recorded one"`
}

func (c *DecodeCmd) Run() error {
	if c.OutEncoding != "" && !encoding.Supported(c.OutEncoding) {
		return errors.NewUnsupported("encoding", c.OutEncoding)
	}
	a, err := openArchive(c.Archive)
	if err != nil {
		return err
	}
	units, err := selectUnits(a, c.Unit)
	if err != nil {
		return err
	}

	var out io.Writer = stdout
	if c.ToDir == "" && c.Output != "-" {
		if err := validation.ValidatePath(c.Output); err != nil {
			return fmt.Errorf("invalid output path: %w", err)
		}
		f, err := os.Create(c.Output)
		if err != nil {
			return errors.NewIO("create", c.Output, err)
		}
		defer f.Close()
		out = f
	}

	for _, su := range units {
		data, lossy, err := codec.DecodeTo(su.unit, c.OutEncoding)
		if err != nil {
			return errors.Wrapf(err, "unit %d (%s)", su.position, su.unit.Filename)
		}
		if lossy {
			logging.Warn("output encoding cannot represent every character",
				"position", su.position, "filename", su.unit.Filename, "encoding", c.OutEncoding)
		}
		if c.ToDir != "" {
			if err := extractUnit(c.ToDir, su, data); err != nil {
				return err
			}
			continue
		}
		if _, err := out.Write(data); err != nil {
			return errors.NewIO("write", c.Output, err)
		}
	}
	return nil
}

type selectedUnit struct {
	position int
	unit     *markup.Unit
}

func selectUnits(a *archive.Archive, position int) ([]selectedUnit, error) {
	if position < 0 {
		return nil, errors.NewValidation("unit", "position must be positive")
	}
	if position > 0 {
		u, err := a.Unit(position - 1)
		if err != nil {
			return nil, err
		}
		return []selectedUnit{{position: position, unit: u}}, nil
	}
	units := make([]selectedUnit, 0, a.Len())
	for i, u := range a.Iterate() {
		units = append(units, selectedUnit{position: i + 1, unit: u})
	}
	return units, nil
}

func extractUnit(dir string, su selectedUnit, data []byte) error {
	ext := ".txt"
	if g, ok := grammar.Lookup(su.unit.Language); ok && len(g.Extensions) > 0 {
		ext = "." + g.Extensions[0]
	}
	path, err := validation.UnitPath(dir, su.unit.Filename, su.position, ext)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.NewIO("create directory", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.NewIO("write", path, err)
	}
	logging.Debug("unit extracted", "position", su.position, "path", path)
	return nil
}

// ArchiveInfo is the summary printed by info.
type ArchiveInfo struct {
	Mode        string             `json:"mode"`
	Compression string             `json:"compression"`
	Format      string             `json:"format"`
	Units       int                `json:"units"`
	Languages   map[string]int     `json:"languages"`
	Namespaces  []markup.Namespace `json:"namespaces"`
}

// InfoCmd summarizes an archive.
type InfoCmd struct {
	Archive string `arg:"" help:"Archive path, - for stdin"`
	JSON    bool   `help:"Print JSON"`
}

func (c *InfoCmd) Run() error {
	a, err := openArchive(c.Archive)
	if err != nil {
		return err
	}
	info := ArchiveInfo{
		Mode:        string(a.Mode()),
		Compression: string(a.Options().Compression),
		Format:      string(a.Options().Format),
		Units:       a.Len(),
		Languages:   make(map[string]int),
		Namespaces:  a.Namespaces().All(),
	}
	for _, u := range a.Iterate() {
		info.Languages[u.Language]++
	}
	if c.JSON {
		return writeJSON(info)
	}

	fmt.Fprintf(stdout, "Mode:        %s\n", info.Mode)
	fmt.Fprintf(stdout, "Compression: %s\n", info.Compression)
	fmt.Fprintf(stdout, "Format:      %s\n", info.Format)
	fmt.Fprintf(stdout, "Units:       %d\n", info.Units)
	for _, lang := range grammar.Default().Languages() {
		if n := info.Languages[lang]; n > 0 {
			fmt.Fprintf(stdout, "  %-8s %d\n", lang, n)
		}
	}
	fmt.Fprintln(stdout, "Namespaces:")
	for _, ns := range info.Namespaces {
		prefix := ns.Prefix
		if prefix == "" {
			prefix = "(default)"
		}
		fmt.Fprintf(stdout, "  %-10s %s\n", prefix, ns.URI)
	}
	return nil
}

// UnitInfo is one row printed by list.
type UnitInfo struct {
	Position  int    `json:"position"`
	Filename  string `json:"filename"`
	Language  string `json:"language"`
	Encoding  string `json:"encoding"`
	Version   string `json:"version,omitempty"`
	Hash      string `json:"hash"`
	Timestamp string `json:"timestamp,omitempty"`
}

// ListCmd lists the units of an archive.
type ListCmd struct {
	Archive string `arg:"" help:"Archive path, - for stdin"`
	JSON    bool   `help:"Print JSON"`
}

func (c *ListCmd) Run() error {
	a, err := openArchive(c.Archive)
	if err != nil {
		return err
	}
	rows := make([]UnitInfo, 0, a.Len())
	for i, u := range a.Iterate() {
		rows = append(rows, UnitInfo{
			Position:  i + 1,
			Filename:  u.Filename,
			Language:  u.Language,
			Encoding:  u.Encoding,
			Version:   u.Version,
			Hash:      u.Hash,
			Timestamp: u.Timestamp,
		})
	}
	if c.JSON {
		return writeJSON(rows)
	}

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tLANGUAGE\tENCODING\tHASH\tFILENAME")
	for _, r := range rows {
		hash := r.Hash
		if len(hash) > 16 {
			hash = hash[:16]
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", r.Position, r.Language, r.Encoding, hash, r.Filename)
	}
	return tw.Flush()
}

// QueryCmd runs an XPath expression over every unit.
type QueryCmd struct {
	Archive string `arg:"" help:"Archive path, - for stdin"`
	XPath   string `arg:"" name:"xpath" help:"XPath 1.0 expression; prefixes resolve through the archive namespaces"`
	Output  string `short:"O" default:"xml" enum:"xml,text" help:"Print matches as markup or as text"`
	Unit    int    `help:"Query only this 1-based unit"`
}

func (c *QueryCmd) Run() error {
	a, err := openArchive(c.Archive)
	if err != nil {
		return err
	}
	out, err := query.ParseOutput(c.Output)
	if err != nil {
		return err
	}
	q, err := query.Compile(c.XPath, a.Namespaces())
	if err != nil {
		return err
	}
	units, err := selectUnits(a, c.Unit)
	if err != nil {
		return err
	}

	var results []query.Result
	for _, su := range units {
		r, err := q.Unit(su.position, su.unit, a.Namespaces())
		if err != nil {
			return err
		}
		results = append(results, r...)
	}
	logging.Debug("query finished", "xpath", q.String(), "units", len(units), "matches", len(results))
	return query.Write(stdout, results, out)
}

// LanguagesCmd lists the supported languages and their extensions.
type LanguagesCmd struct{}

func (c *LanguagesCmd) Run() error {
	reg := grammar.Default()
	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	for _, lang := range reg.Languages() {
		g, _ := reg.Lookup(lang)
		fmt.Fprintf(tw, "%s\t", lang)
		for i, ext := range g.Extensions {
			if i > 0 {
				fmt.Fprint(tw, " ")
			}
			fmt.Fprint(tw, "."+ext)
		}
		fmt.Fprintln(tw)
	}
	return tw.Flush()
}

func writeJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = stdout.Write(data)
	return err
}
