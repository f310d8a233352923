// Command adengine compiles filter lists into engine snapshots, checks
// requests and pages against them, and runs a filtering proxy.
package main

import (
	"log/slog"
	"os"

	"github.com/AdguardTeam/golibs/logutil/slogutil"
	goFlags "github.com/jessevdk/go-flags"
)

// Options are the console arguments shared by all commands.
type Options struct {
	// Verbose enables debug-level logging.
	Verbose bool `short:"v" long:"verbose" description:"Verbose output (optional)." optional:"yes" optional-value:"true"`

	// ConfigPath is the path to the YAML configuration file.
	ConfigPath string `short:"c" long:"config" description:"Path to the YAML configuration file."`

	// FilterLists are the paths to the filter lists.  They are added after
	// the lists of the configuration file.
	FilterLists []string `short:"f" long:"filter" description:"Path to the filter list. Can be specified multiple times."`

	// ResourcesPath is the path to the JSON resource catalog.
	ResourcesPath string `short:"r" long:"resources" description:"Path to the JSON resource catalog."`

	// SnapshotPath is the path to the engine snapshot.
	SnapshotPath string `short:"s" long:"snapshot" description:"Path to the engine snapshot."`

	// Tags are the tags to enable.
	Tags []string `short:"t" long:"tag" description:"Tag to enable. Can be specified multiple times."`
}

func main() {
	opts := &Options{}
	parser := goFlags.NewParser(opts, goFlags.Default)
	parser.SubcommandsOptional = false

	addCommands(parser, opts)

	_, err := parser.Parse()
	if err != nil {
		if flagsErr, ok := err.(*goFlags.Error); ok && flagsErr.Type == goFlags.ErrHelp {
			os.Exit(0)
		}

		os.Exit(1)
	}
}

// addCommands adds the subcommands to parser.  The commands share opts.
func addCommands(parser *goFlags.Parser, opts *Options) {
	cmds := []struct {
		data  any
		name  string
		short string
		long  string
	}{{
		data:  &compileCommand{opts: opts},
		name:  "compile",
		short: "Compile filter lists into a snapshot",
		long:  "Parses the filter lists and writes the engine snapshot.",
	}, {
		data:  &matchCommand{opts: opts},
		name:  "match",
		short: "Check a request",
		long:  "Prints the blocking decision for the request URL.",
	}, {
		data:  &cosmeticCommand{opts: opts},
		name:  "cosmetic",
		short: "Show cosmetic resources of a page",
		long:  "Prints the element hiding selectors and scriptlets for the page URL.",
	}, {
		data:  &proxyCommand{opts: opts},
		name:  "proxy",
		short: "Run the filtering proxy",
		long:  "Runs the MITM proxy that filters requests and injects cosmetic filters.",
	}}

	for _, c := range cmds {
		_, err := parser.AddCommand(c.name, c.short, c.long, c.data)
		if err != nil {
			// Commands are static, so this is a programmer error.
			panic(err)
		}
	}
}

// newLogger returns the text logger writing to stderr.
func newLogger(verbose bool) (l *slog.Logger) {
	lvl := slog.LevelInfo
	if verbose {
		lvl = slog.LevelDebug
	}

	return slogutil.New(&slogutil.Config{
		Output:       os.Stderr,
		Format:       slogutil.FormatText,
		Level:        lvl,
		AddTimestamp: true,
	})
}
