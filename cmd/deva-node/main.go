// Command deva-node runs a DEVA node over emulated UDP radios.
//
// The node announces itself on every configured interface and answers
// Query, Describe and ListFeatures requests from other nodes.
//
// Usage:
//
//	deva-node [flags]
//
// Flags:
//
//	-config string        Configuration file (.yaml, .yml or .toml)
//	-eui64 string         Node EUI-64 (overrides config)
//	-address string       Radio address of the first interface, hex
//	-listen string        UDP listen address of the first interface
//	-peers string         Comma-separated static peers of the first interface
//	-discovery            Enable mDNS peer discovery
//	-period uint          Announcement period in seconds, 0 for requests only
//	-metrics string       Serve Prometheus metrics on this address
//	-protocol-log string  Write protocol events to this .dlog file
//	-protocol-log-max int Rotate the protocol log at this many bytes
//	-state string         Node state file
//	-log-level string     Log level: debug, info, warn, error (default "info")
//	-interactive          Start the interactive console
//
// Examples:
//
//	# Start a node from a config file
//	deva-node -config /etc/deva/node.yaml
//
//	# Two nodes on one host
//	deva-node -eui64 0000000000000001 -address 0001 -listen :7531 -peers 127.0.0.1:7532
//	deva-node -eui64 0000000000000002 -address 0002 -listen :7532 -peers 127.0.0.1:7531
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/deva-protocol/deva-go/cmd/deva-node/interactive"
	"github.com/deva-protocol/deva-go/pkg/announce"
	"github.com/deva-protocol/deva-go/pkg/arbiter"
	"github.com/deva-protocol/deva-go/pkg/features"
	"github.com/deva-protocol/deva-go/pkg/identity"
	protolog "github.com/deva-protocol/deva-go/pkg/log"
	"github.com/deva-protocol/deva-go/pkg/metrics"
	"github.com/deva-protocol/deva-go/pkg/persistence"
	"github.com/deva-protocol/deva-go/pkg/radio"
	"github.com/deva-protocol/deva-go/pkg/radio/udp"
	"github.com/deva-protocol/deva-go/pkg/service"
)

// stateSaveInterval is how often the lifetime counter is persisted.
const stateSaveInterval = time.Minute

// Flags override the corresponding config file values when set.
var (
	configFile      = flag.String("config", "", "Configuration file (.yaml, .yml or .toml)")
	eui64           = flag.String("eui64", "", "Node EUI-64 (overrides config)")
	address         = flag.String("address", "", "Radio address of the first interface, hex")
	listen          = flag.String("listen", "", "UDP listen address of the first interface")
	peers           = flag.String("peers", "", "Comma-separated static peers of the first interface")
	discovery       = flag.Bool("discovery", true, "Enable mDNS peer discovery")
	period          = flag.Uint("period", 300, "Announcement period in seconds, 0 for requests only")
	metricsAddr     = flag.String("metrics", "", "Serve Prometheus metrics on this address")
	protocolLog     = flag.String("protocol-log", "", "Write protocol events to this .dlog file")
	protocolLogMax  = flag.Int64("protocol-log-max", 0, "Rotate the protocol log at this many bytes")
	stateFile       = flag.String("state", "", "Node state file")
	logLevel        = flag.String("log-level", "", "Log level: debug, info, warn, error")
	interactiveMode = flag.Bool("interactive", false, "Start the interactive console")
)

// interfaceRuntime is a started interface and its announcer.
type interfaceRuntime struct {
	radio     *udp.Radio
	announcer *announce.Announcer
}

func main() {
	flag.Parse()

	cfg, err := buildConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// buildConfig merges the config file with explicitly set flags.
func buildConfig() (Config, error) {
	cfg := DefaultConfig()
	if *configFile != "" {
		// A file replaces the default interface list.
		cfg.Interfaces = nil
		if err := LoadConfig(*configFile, &cfg); err != nil {
			return cfg, err
		}
		if len(cfg.Interfaces) == 0 {
			cfg.Interfaces = DefaultConfig().Interfaces
		}
	}

	first := &cfg.Interfaces[0]
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "eui64":
			cfg.Node.EUI64 = *eui64
		case "address":
			first.Address = *address
		case "listen":
			first.Listen = *listen
		case "peers":
			first.Peers = splitList(*peers)
		case "discovery":
			first.Discovery = *discovery
		case "period":
			first.Period = uint32(*period)
		case "metrics":
			cfg.MetricsAddr = *metricsAddr
		case "protocol-log":
			cfg.ProtocolLog = *protocolLog
		case "protocol-log-max":
			cfg.ProtocolLogMax = *protocolLogMax
		case "state":
			cfg.StateFile = *stateFile
		case "log-level":
			cfg.LogLevel = *logLevel
		}
	})

	return cfg, cfg.Validate()
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func run(cfg Config) (err error) {
	info, err := cfg.Identity()
	if err != nil {
		return err
	}

	var console *interactive.Console
	var logOut io.Writer = os.Stderr
	level := parseLevel(cfg.LogLevel)

	clk := clock.New()

	// Persistent counters
	store := persistence.NewNodeStateStore(cfg.StateFile, persistence.WithClock(clk))
	state, err := store.Boot(info.EUI64.String())
	if err != nil {
		return fmt.Errorf("load node state: %w", err)
	}

	node := identity.NewNode(info, identity.Counters{BootCount: state.BootCount, Lifetime: state.Lifetime}, clk)

	// saveState applies update, if any, and records the current lifetime.
	saveState := func(update func(*persistence.NodeState)) error {
		return store.Update(func(st *persistence.NodeState) {
			if update != nil {
				update(st)
			}
			st.Lifetime = node.Lifetime()
		})
	}

	// Features
	ids, err := cfg.FeatureUUIDs()
	if err != nil {
		return err
	}
	feats := features.NewRegistry()
	slots := make(map[uuid.UUID]*features.Feature, len(ids))
	for _, id := range ids {
		slot := &features.Feature{}
		if !feats.Add(slot, id) {
			return fmt.Errorf("feature %s: registration failed", id)
		}
		slots[id] = slot
	}
	for _, s := range state.DisabledFeatures {
		if id, perr := uuid.Parse(s); perr == nil {
			if slot, ok := slots[id]; ok {
				feats.SetAvailable(slot, false)
			}
		}
	}

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	if *interactiveMode {
		console, err = interactive.New(feats, slots, func(disabled []uuid.UUID) {
			serr := saveState(func(st *persistence.NodeState) {
				st.DisabledFeatures = st.DisabledFeatures[:0]
				for _, id := range disabled {
					st.DisabledFeatures = append(st.DisabledFeatures, id.String())
				}
			})
			if serr != nil {
				slog.Warn("save node state failed", "err", serr)
			}
		})
		if err != nil {
			return err
		}
		logOut = console.Stdout()
	}

	logger := slog.New(slog.NewTextHandler(logOut, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	// Protocol log
	var plogs []protolog.Logger
	if cfg.ProtocolLog != "" {
		fileLog, ferr := protolog.NewFileLogger(cfg.ProtocolLog, protolog.WithMaxSize(cfg.ProtocolLogMax))
		if ferr != nil {
			return fmt.Errorf("open protocol log: %w", ferr)
		}
		defer func() {
			err = multierr.Append(err, fileLog.Close())
		}()
		plogs = append(plogs, fileLog)
	}
	// Drops and errors reach the console at Warn; packets only with debug.
	plogs = append(plogs, protolog.NewSlogAdapter(logger))

	// Service
	pool, err := arbiter.New(1)
	if err != nil {
		return err
	}
	svcCfg := service.DefaultConfig()
	svcCfg.Clock = clk
	svcCfg.Features = feats
	svcCfg.Metrics = m
	svcCfg.Logger = logger
	svcCfg.ProtocolLogger = protolog.NewMultiLogger(plogs...)
	if cfg.PollPeriod > 0 {
		svcCfg.PollPeriod = cfg.PollPeriod
	}
	if cfg.QueueSize > 0 {
		svcCfg.ActionQueueSize = cfg.QueueSize
	}

	svc, err := service.New(node, pool, svcCfg)
	if err != nil {
		return err
	}
	if console != nil {
		console.Attach(svc)
	}

	logger.Info("DEVA node",
		"eui64", info.EUI64.String(),
		"boot", state.BootCount,
		"lifetime", state.Lifetime,
		"features", feats.Count(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Interfaces
	var ifaces []interfaceRuntime
	defer func() {
		for _, rt := range ifaces {
			svc.RemoveAnnouncer(rt.announcer)
			err = multierr.Append(err, rt.radio.Close())
		}
		err = multierr.Append(err, saveState(nil))
	}()

	for _, ic := range cfg.Interfaces {
		rcfg, rerr := ic.RadioConfig()
		if rerr != nil {
			return rerr
		}
		rcfg.Logger = logger
		r, rerr := udp.New(rcfg)
		if rerr != nil {
			return fmt.Errorf("interface %s: %w", ic.Name, rerr)
		}
		if rerr := r.Start(ctx); rerr != nil {
			return fmt.Errorf("interface %s: %w", ic.Name, multierr.Append(rerr, r.Close()))
		}

		var ctl *radio.SleepController
		if ic.Sleep {
			ctl = &radio.SleepController{Name: "deva-" + ic.Name}
		}
		a := &announce.Announcer{}
		if !svc.AddAnnouncer(a, r, ctl, ic.Period) {
			return fmt.Errorf("interface %s: announcer registration failed", ic.Name)
		}
		ifaces = append(ifaces, interfaceRuntime{radio: r, announcer: a})

		if !announce.Eligible(ic.Period) {
			logger.Info("interface answers requests only", "iface", ic.Name, "period", ic.Period)
		}
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return svc.Run(ctx)
	})

	g.Go(func() error {
		ticker := clk.Ticker(stateSaveInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				if serr := saveState(nil); serr != nil {
					logger.Warn("save node state failed", "err", serr)
				}
			}
		}
	})

	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler(reg))
		srv := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			logger.Info("metrics listening", "addr", cfg.MetricsAddr)
			if serr := srv.ListenAndServe(); !errors.Is(serr, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", serr)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if console != nil {
		go console.Run(ctx, cancel)
	}

	err = g.Wait()
	logger.Info("shutting down")
	return err
}
