// Package interactive provides the interactive command-line interface
// for deva-node.
package interactive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/chzyer/readline"
	"github.com/google/uuid"

	"github.com/deva-protocol/deva-go/pkg/announce"
	"github.com/deva-protocol/deva-go/pkg/features"
	"github.com/deva-protocol/deva-go/pkg/service"
	"github.com/deva-protocol/deva-go/pkg/wire"
)

// ChangeFunc is called after the feature list changed with the UUIDs that
// are currently disabled.
type ChangeFunc func(disabled []uuid.UUID)

// Console handles interactive mode for deva-node.
type Console struct {
	svc      *service.Service
	feats    *features.Registry
	slots    map[uuid.UUID]*features.Feature
	onChange ChangeFunc

	rl  *readline.Instance
	out io.Writer
}

// New creates a console. slots holds the feature storage registered in
// feats, keyed by UUID; the console adds to and removes from it.
//
// The console is created before the service so that the service logger can
// write through Stdout. Call Attach before Run.
func New(feats *features.Registry, slots map[uuid.UUID]*features.Feature, onChange ChangeFunc) (*Console, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "deva> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete: readline.NewPrefixCompleter(
			readline.PcItem("help"),
			readline.PcItem("status"),
			readline.PcItem("announcers"),
			readline.PcItem("features"),
			readline.PcItem("feature",
				readline.PcItem("add"),
				readline.PcItem("remove"),
				readline.PcItem("enable"),
				readline.PcItem("disable"),
			),
			readline.PcItem("quit"),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}

	c := newConsole(nil, feats, slots, onChange, rl.Stdout())
	c.rl = rl
	return c, nil
}

// Attach sets the service the console reports on.
func (c *Console) Attach(svc *service.Service) {
	c.svc = svc
}

func newConsole(svc *service.Service, feats *features.Registry, slots map[uuid.UUID]*features.Feature, onChange ChangeFunc, out io.Writer) *Console {
	if slots == nil {
		slots = make(map[uuid.UUID]*features.Feature)
	}
	return &Console{
		svc:      svc,
		feats:    feats,
		slots:    slots,
		onChange: onChange,
		out:      out,
	}
}

// Stdout returns a writer that properly coordinates with the readline input.
// Use this for log output to avoid interfering with the command prompt.
func (c *Console) Stdout() io.Writer {
	return c.rl.Stdout()
}

// Run starts the interactive command loop.
func (c *Console) Run(ctx context.Context, cancel context.CancelFunc) {
	defer c.rl.Close()

	c.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := c.rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			fmt.Fprintln(c.out, "Exiting...")
			cancel()
			return
		}

		if !c.Execute(line) {
			fmt.Fprintln(c.out, "Exiting...")
			cancel()
			return
		}
	}
}

// Execute runs one command line. It returns false when the console should
// exit.
func (c *Console) Execute(line string) bool {
	parts := strings.Fields(strings.TrimSpace(line))
	if len(parts) == 0 {
		return true
	}
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	switch cmd {
	case "help", "?":
		c.printHelp()
	case "status", "s":
		c.cmdStatus()
	case "announcers", "a":
		c.cmdAnnouncers()
	case "features", "f":
		c.cmdFeatures()
	case "feature":
		c.cmdFeature(args)
	case "quit", "exit", "q":
		return false
	default:
		fmt.Fprintf(c.out, "Unknown command: %s (type 'help' for commands)\n", cmd)
	}
	return true
}

func (c *Console) printHelp() {
	fmt.Fprintln(c.out, `
DEVA Node Commands:
  status               - Show worker status
  announcers           - List announcers and their schedule
  features             - List registered features
  feature add <uuid>   - Register a feature
  feature remove <uuid>
  feature enable <uuid>
  feature disable <uuid>
  help                 - Show this help
  quit                 - Exit`)
}

func (c *Console) cmdStatus() {
	st := c.svc.Status()
	fmt.Fprintf(c.out, "State:         %s\n", st.State)
	fmt.Fprintf(c.out, "Running:       %v\n", st.Running)
	fmt.Fprintf(c.out, "Busy:          %v\n", st.Busy)
	fmt.Fprintf(c.out, "Queue depth:   %d\n", st.QueueDepth)
	fmt.Fprintf(c.out, "Announcements: %d\n", st.Announcements)
	fmt.Fprintf(c.out, "Uptime:        %ds\n", st.Uptime)
	if st.BootTime == wire.BootTimeUnknown {
		fmt.Fprintln(c.out, "Boot time:     unknown")
	} else {
		fmt.Fprintf(c.out, "Boot time:     %d\n", st.BootTime)
	}
	fmt.Fprintf(c.out, "Features:      %d (hash 0x%08X)\n", c.feats.Count(), c.feats.Hash())
}

func (c *Console) cmdAnnouncers() {
	snaps := c.svc.Status().Announcers
	if len(snaps) == 0 {
		fmt.Fprintln(c.out, "No announcers")
		return
	}
	for _, s := range snaps {
		next := "never"
		if s.NextDue != announce.Never {
			next = fmt.Sprintf("at %ds", s.NextDue)
		}
		fmt.Fprintf(c.out, "  %-8s addr %s period %ds sent %d next %s\n", s.Interface, s.Address, s.Period, s.Sent, next)
	}
}

func (c *Console) cmdFeatures() {
	ids := make([]uuid.UUID, 0, len(c.slots))
	for id := range c.slots {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })

	fmt.Fprintf(c.out, "%d features, hash 0x%08X\n", c.feats.Count(), c.feats.Hash())
	for _, id := range ids {
		state := "enabled"
		if !c.feats.Available(c.slots[id]) {
			state = "disabled"
		}
		fmt.Fprintf(c.out, "  %s %s\n", id, state)
	}
}

func (c *Console) cmdFeature(args []string) {
	if len(args) != 2 {
		fmt.Fprintln(c.out, "Usage: feature add|remove|enable|disable <uuid>")
		return
	}
	id, err := uuid.Parse(args[1])
	if err != nil {
		fmt.Fprintf(c.out, "Invalid UUID: %v\n", err)
		return
	}

	slot, known := c.slots[id]
	switch strings.ToLower(args[0]) {
	case "add":
		if known {
			fmt.Fprintln(c.out, "Feature already registered")
			return
		}
		slot = &features.Feature{}
		if !c.feats.Add(slot, id) {
			fmt.Fprintln(c.out, "Feature list is full")
			return
		}
		c.slots[id] = slot
	case "remove":
		if !known || !c.feats.Remove(slot) {
			fmt.Fprintln(c.out, "Feature not registered")
			return
		}
		delete(c.slots, id)
	case "enable", "disable":
		if !known {
			fmt.Fprintln(c.out, "Feature not registered")
			return
		}
		c.feats.SetAvailable(slot, strings.EqualFold(args[0], "enable"))
	default:
		fmt.Fprintf(c.out, "Unknown feature command: %s\n", args[0])
		return
	}

	fmt.Fprintf(c.out, "OK (%d features, hash 0x%08X)\n", c.feats.Count(), c.feats.Hash())
	if c.onChange != nil {
		c.onChange(c.disabled())
	}
}

func (c *Console) disabled() []uuid.UUID {
	var out []uuid.UUID
	for id, slot := range c.slots {
		if !c.feats.Available(slot) {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}
