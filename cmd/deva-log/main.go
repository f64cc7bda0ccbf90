// Command deva-log inspects protocol captures written by deva-node
// -protocol-log.
//
// Usage:
//
//	deva-log <command> [flags] <file.dlog | ->
//
// Every command accepts the selection flags -iface, -node-id, -peer,
// -opcode, -since, -until, -layer, -direction and -category. A path of
// "-" reads the capture from standard input.
//
// Examples:
//
//	# Follow what a node answered, one line per event
//	deva-log view -short -direction out node.dlog
//
//	# Every feature page exchanged with node 0042
//	deva-log view -peer 0042 -opcode feature-list node.dlog
//
//	# Export drops to CSV
//	deva-log export -category drop -format csv -o drops.csv node.dlog
//
//	# Cut one interface out of a capture
//	deva-log filter -iface radio0 -o radio0.dlog node.dlog
//
//	# Counts per opcode and the nodes heard
//	deva-log stats node.dlog
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/deva-protocol/deva-go/cmd/deva-log/commands"
	protolog "github.com/deva-protocol/deva-go/pkg/log"
)

// command is one deva-log subcommand. setup registers its own flags and
// returns the function that runs it on the parsed selection.
type command struct {
	name    string
	summary string
	setup   func(fs *flag.FlagSet) func(path string, f protolog.Filter) error
}

var commandList = []command{
	{"view", "Print events in human-readable form", setupView},
	{"export", "Convert events to JSON lines or CSV", setupExport},
	{"filter", "Write the selected events to a new capture", setupFilter},
	{"stats", "Summarize a capture", setupStats},
}

func main() {
	if err := run(os.Args[1:], os.Stderr); err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func usage(w io.Writer) {
	fmt.Fprint(w, "deva-log - DEVA Protocol Log Analyzer\n\nUsage:\n  deva-log <command> [flags] <file.dlog | ->\n\nCommands:\n")
	for _, c := range commandList {
		fmt.Fprintf(w, "  %-8s %s\n", c.name, c.summary)
	}
	fmt.Fprint(w, "\nUse \"deva-log <command> -help\" for the flags of a command.\n")
}

func run(args []string, stderr io.Writer) error {
	if len(args) == 0 {
		usage(stderr)
		return flag.ErrHelp
	}
	switch args[0] {
	case "-h", "-help", "--help", "help":
		usage(os.Stdout)
		return nil
	}

	for _, c := range commandList {
		if c.name != args[0] {
			continue
		}
		fs := flag.NewFlagSet(c.name, flag.ContinueOnError)
		fs.SetOutput(stderr)
		var sel commands.Selection
		sel.Register(fs)
		exec := c.setup(fs)
		fs.Usage = func() {
			fmt.Fprintf(stderr, "deva-log %s - %s\n\nUsage:\n  deva-log %s [flags] <file.dlog | ->\n\nFlags:\n", c.name, c.summary, c.name)
			fs.PrintDefaults()
		}

		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		if fs.NArg() != 1 {
			fs.Usage()
			return errors.New("exactly one capture path is required")
		}
		filter, err := sel.Filter()
		if err != nil {
			return err
		}
		return exec(fs.Arg(0), filter)
	}

	usage(stderr)
	return fmt.Errorf("unknown command %q", args[0])
}

func setupView(fs *flag.FlagSet) func(string, protolog.Filter) error {
	var opts commands.ViewOptions
	fs.BoolVar(&opts.Short, "short", false, "One line per event")
	return func(path string, f protolog.Filter) error {
		return commands.RunView(path, f, opts, os.Stdout)
	}
}

func setupExport(fs *flag.FlagSet) func(string, protolog.Filter) error {
	format := fs.String("format", commands.FormatJSONL, "Output format: jsonl or csv")
	output := fs.String("o", "", "Output file (default stdout)")
	return func(path string, f protolog.Filter) error {
		return commands.RunExport(path, f, *format, *output)
	}
}

func setupFilter(fs *flag.FlagSet) func(string, protolog.Filter) error {
	output := fs.String("o", "", "Output capture (required)")
	maxSize := fs.Int64("max-size", 0, "Rotate the output at this many bytes")
	return func(path string, f protolog.Filter) error {
		if *output == "" {
			return errors.New("-o is required")
		}
		n, err := commands.RunFilter(path, f, *output, *maxSize)
		if err != nil {
			return err
		}
		fmt.Printf("Filtered %d events to %s\n", n, *output)
		return nil
	}
}

func setupStats(fs *flag.FlagSet) func(string, protolog.Filter) error {
	return func(path string, f protolog.Filter) error {
		return commands.RunStats(path, f, os.Stdout)
	}
}
