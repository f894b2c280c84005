// Command srcmark translates source files to markup archives and back.
// It provides commands for encoding sources, decoding units, inspecting
// archives and running XPath queries over them.
package main

import (
	"context"
	"io"
	"os"
	"os/signal"

	"github.com/alecthomas/kong"

	"github.com/FocuswithJustin/srcmark/internal/logging"
)

const version = "0.1.0"

// Output streams, swapped in tests.
var (
	stdout io.Writer = os.Stdout
	stdin  io.Reader = os.Stdin
)

// CLI defines the command-line interface for srcmark.
var CLI struct {
	Globals

	Encode    EncodeCmd    `cmd:"" help:"Encode source files into an archive"`
	Decode    DecodeCmd    `cmd:"" help:"Decode units of an archive back to source"`
	Info      InfoCmd      `cmd:"" help:"Summarize an archive"`
	List      ListCmd      `cmd:"" help:"List the units of an archive"`
	Query     QueryCmd     `cmd:"" help:"Run an XPath expression over every unit"`
	Verify    VerifyCmd    `cmd:"" help:"Check that every unit decodes to its recorded hash"`
	Languages LanguagesCmd `cmd:"" help:"List supported languages"`
	Version   VersionCmd   `cmd:"" help:"Print version information"`
}

// Globals are flags shared by every command.
type Globals struct {
	Config    kong.ConfigFlag `help:"JSON file with flag defaults" type:"existingfile"`
	LogLevel  string          `name:"log-level" default:"warn" enum:"debug,info,warn,error" help:"Log level"`
	LogFormat string          `name:"log-format" default:"text" enum:"text,json" help:"Log format"`
}

// AfterApply configures logging once flags are parsed.
func (g *Globals) AfterApply() error {
	level, err := logging.ParseLevel(g.LogLevel)
	if err != nil {
		return err
	}
	format, err := logging.ParseFormat(g.LogFormat)
	if err != nil {
		return err
	}
	logging.InitLogger(level, format)
	return nil
}

// VersionCmd prints version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	_, err := io.WriteString(stdout, "srcmark "+version+"\n")
	return err
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name("srcmark"),
		kong.Description("Byte-exact source to markup translation"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
		kong.Configuration(kong.JSON, "/etc/srcmark.json", "~/.config/srcmark/config.json", ".srcmark.json"),
	)

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx.BindTo(runCtx, (*context.Context)(nil))

	err := ctx.Run()
	ctx.FatalIfErrorf(err)
}
