package udp

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/enbility/zeroconf/v3"

	"github.com/deva-protocol/deva-go/pkg/radio"
)

// mDNS constants.
const (
	ServiceType = "_deva._udp"
	Domain      = "local."

	txtKeyAddr = "addr"
	txtKeyName = "iface"
)

// instanceName returns the mDNS instance name for a radio address.
func instanceName(addr radio.Addr) string {
	return "DEVA-" + addr.String()
}

// interfaces returns the network interfaces to use. Returns nil for all.
func (r *Radio) interfaces() []net.Interface {
	if r.config.Interface == "" {
		return nil
	}
	iface, err := net.InterfaceByName(r.config.Interface)
	if err != nil {
		return nil
	}
	return []net.Interface{*iface}
}

// advertise registers this radio as an mDNS service.
func (r *Radio) advertise() error {
	laddr := r.LocalAddr()
	if laddr == nil {
		return radio.ErrClosed
	}

	txt := []string{
		txtKeyAddr + "=" + r.config.Address.String(),
		txtKeyName + "=" + r.config.Name,
	}
	server, err := zeroconf.Register(
		instanceName(r.config.Address),
		ServiceType,
		Domain,
		laddr.Port,
		txt,
		r.interfaces(),
	)
	if err != nil {
		return fmt.Errorf("failed to register service: %w", err)
	}

	r.mu.Lock()
	if r.closed.Load() {
		r.mu.Unlock()
		server.Shutdown()
		return radio.ErrClosed
	}
	r.server = server
	r.mu.Unlock()
	return nil
}

// browse adds discovered radios as peers until ctx is cancelled.
func (r *Radio) browse(ctx context.Context) {
	defer r.wg.Done()

	entries := make(chan *zeroconf.ServiceEntry)
	removed := make(chan *zeroconf.ServiceEntry)

	var opts []zeroconf.ClientOption
	if ifaces := r.interfaces(); ifaces != nil {
		opts = append(opts, zeroconf.SelectIfaces(ifaces))
	}

	go func() {
		if err := zeroconf.Browse(ctx, ServiceType, Domain, entries, removed, opts...); err != nil {
			r.logger.Warn("mDNS browse failed", "err", err)
		}
	}()

	for {
		select {
		case entry, ok := <-entries:
			if !ok {
				return
			}
			addr, ok := entryAddr(entry)
			if !ok || addr == r.config.Address {
				continue
			}
			for _, p := range entryPeers(entry) {
				if err := r.AddPeer(p); err == nil {
					r.logger.Debug("discovered peer", "src", addr, "udp", p)
				}
			}

		case entry, ok := <-removed:
			if !ok {
				continue
			}
			for _, p := range entryPeers(entry) {
				r.RemovePeer(p)
			}

		case <-ctx.Done():
			return
		}
	}
}

// entryAddr extracts the radio address from an entry's TXT records.
func entryAddr(entry *zeroconf.ServiceEntry) (radio.Addr, bool) {
	for _, t := range entry.Text {
		k, v, found := strings.Cut(t, "=")
		if !found || k != txtKeyAddr {
			continue
		}
		n, err := strconv.ParseUint(v, 16, 16)
		if err != nil {
			return 0, false
		}
		return radio.Addr(n), true
	}
	return 0, false
}

// entryPeers returns the UDP addresses an entry is reachable at.
func entryPeers(entry *zeroconf.ServiceEntry) []string {
	out := make([]string, 0, len(entry.AddrIPv4)+len(entry.AddrIPv6))
	for _, ip := range entry.AddrIPv4 {
		out = append(out, net.JoinHostPort(ip.String(), strconv.Itoa(entry.Port)))
	}
	for _, ip := range entry.AddrIPv6 {
		out = append(out, net.JoinHostPort(ip.String(), strconv.Itoa(entry.Port)))
	}
	return out
}
