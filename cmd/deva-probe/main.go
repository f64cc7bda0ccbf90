// Command deva-probe sends requests to DEVA nodes over the emulated UDP
// radio and prints the decoded responses.
//
// Usage:
//
//	deva-probe <command> [flags]
//
// Commands:
//
//	query     Request announcements
//	describe  Request descriptions
//	list      Page through the feature list of one node
//
// Examples:
//
//	# Ask every reachable node for a version 1 announcement
//	deva-probe query -peers 127.0.0.1:7531 -version 1
//
//	# Describe node 0042
//	deva-probe describe -node 0042 -peers 127.0.0.1:7531
//
//	# List all features of node 0042, found with mDNS
//	deva-probe list -node 0042 -discovery
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/deva-protocol/deva-go/cmd/deva-log/commands"
	"github.com/deva-protocol/deva-go/pkg/radio"
	"github.com/deva-protocol/deva-go/pkg/radio/udp"
	"github.com/deva-protocol/deva-go/pkg/wire"
)

const usage = `deva-probe - DEVA Protocol Probe

Usage:
  deva-probe <command> [flags]

Commands:
  query     Request announcements
  describe  Request descriptions
  list      Page through the feature list of one node

Use "deva-probe <command> -help" for more information about a command.
`

// options are the flags shared by every command.
type options struct {
	node      string
	address   string
	listen    string
	peers     string
	discovery bool
	version   uint
	timeout   time.Duration
	verbose   bool
}

func (o *options) register(fs *flag.FlagSet) {
	fs.StringVar(&o.node, "node", "broadcast", "Target radio address, hex, or broadcast")
	fs.StringVar(&o.address, "address", "fffe", "Local radio address, hex")
	fs.StringVar(&o.listen, "listen", ":0", "UDP listen address")
	fs.StringVar(&o.peers, "peers", "", "Comma-separated static peers")
	fs.BoolVar(&o.discovery, "discovery", false, "Find peers with mDNS")
	fs.UintVar(&o.version, "version", uint(wire.VersionCurrent), "Requested packet version")
	fs.DurationVar(&o.timeout, "timeout", 2*time.Second, "How long to wait for responses")
	fs.BoolVar(&o.verbose, "v", false, "Log radio activity")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	cmd := os.Args[1]
	switch cmd {
	case "query", "describe", "list":
	case "-h", "-help", "--help", "help":
		fmt.Print(usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	var opts options
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	opts.register(fs)
	_ = fs.Parse(os.Args[2:])

	if err := run(cmd, opts, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(cmd string, opts options, out io.Writer) error {
	dst, err := radio.ParseAddr(opts.node)
	if err != nil {
		return err
	}
	if opts.version > 255 {
		return fmt.Errorf("invalid version %d", opts.version)
	}

	rcfg := udp.DefaultConfig()
	rcfg.Name = "probe"
	rcfg.ListenAddr = opts.listen
	rcfg.Discovery = opts.discovery
	if rcfg.Address, err = radio.ParseAddr(opts.address); err != nil {
		return err
	}
	for _, p := range strings.Split(opts.peers, ",") {
		if p = strings.TrimSpace(p); p != "" {
			rcfg.Peers = append(rcfg.Peers, p)
		}
	}
	if opts.verbose {
		rcfg.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}

	r, err := udp.New(rcfg)
	if err != nil {
		return err
	}
	defer r.Close()

	ctx, cancel := context.WithTimeout(context.Background(), opts.timeout)
	defer cancel()

	if err := r.Start(ctx); err != nil {
		return err
	}

	p, err := NewProber(r)
	if err != nil {
		return err
	}
	defer p.Close()

	return execute(ctx, p, cmd, dst, wire.Version(opts.version), out)
}

func execute(ctx context.Context, p *Prober, cmd string, dst radio.Addr, v wire.Version, out io.Writer) error {
	switch cmd {
	case "query", "describe":
		query := p.Query
		if cmd == "describe" {
			query = p.Describe
		}
		resp, err := query(ctx, dst, v)
		if err != nil {
			return err
		}
		printResponses(out, resp)
		return nil

	case "list":
		ids, err := p.AllFeatures(ctx, dst)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%d features on %s\n", len(ids), dst)
		for _, id := range ids {
			fmt.Fprintf(out, "  %s\n", id)
		}
		return nil

	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func printResponses(w io.Writer, resp []Response) {
	for _, r := range resp {
		fmt.Fprintf(w, "%s from %s (%d bytes)\n", r.Packet.Opcode, r.Source, len(r.Data))
		commands.FormatPacket(w, r.Packet)
		fmt.Fprintln(w)
	}
}
