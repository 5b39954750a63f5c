// Package arp resolves a client's hardware address from the kernel neighbour table.
package arp

import (
	"bufio"
	"bytes"
	"context"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/vishvananda/netlink"
	"inet.af/netaddr"
)

// DefaultPath is the Linux IPv4 neighbour table, read when netlink is unavailable.
const DefaultPath = "/proc/net/arp"

// atfCom is the "completed entry" flag of an ARP table row.
const atfCom = 0x2

// Table looks up IPv4 and IPv6 neighbours over netlink on every call.
// If netlink fails IPv4 addresses are looked up in the file at Path.
type Table struct {
	Path string
	// Neighbours lists the neighbours of one address family, netlink.FAMILY_V4 or
	// netlink.FAMILY_V6. Defaults to netlink.NeighList over all links.
	Neighbours func(family int) ([]netlink.Neigh, error)
}

// Lookup returns the hardware address for ip, or false if there is no usable entry for it.
func (t Table) Lookup(_ context.Context, ip netaddr.IP) (net.HardwareAddr, bool) {
	ip = ip.Unmap().WithZone("")
	family := netlink.FAMILY_V6
	if ip.Is4() {
		family = netlink.FAMILY_V4
	}
	neighs, err := t.neighbours(family)
	if err == nil {
		return fromNeighbours(neighs, ip)
	}
	if !ip.Is4() {
		return nil, false
	}
	p := t.Path
	if p == "" {
		p = DefaultPath
	}
	b, err := os.ReadFile(p)
	if err != nil {
		return nil, false
	}
	return lookup(b, ip)
}

func (t Table) neighbours(family int) ([]netlink.Neigh, error) {
	if t.Neighbours != nil {
		return t.Neighbours(family)
	}
	return netlink.NeighList(0, family)
}

func fromNeighbours(neighs []netlink.Neigh, ip netaddr.IP) (net.HardwareAddr, bool) {
	for _, n := range neighs {
		nip, ok := netaddr.FromStdIP(n.IP)
		if !ok || nip.Unmap() != ip {
			continue
		}
		if n.State&(netlink.NUD_INCOMPLETE|netlink.NUD_FAILED) != 0 || isZero(n.HardwareAddr) {
			continue
		}
		return n.HardwareAddr, true
	}
	return nil, false
}

func lookup(table []byte, ip netaddr.IP) (net.HardwareAddr, bool) {
	s := bufio.NewScanner(bytes.NewReader(table))
	s.Scan() // header
	for s.Scan() {
		// IP address  HW type  Flags  HW address  Mask  Device
		f := strings.Fields(s.Text())
		if len(f) < 4 || f[0] != ip.String() {
			continue
		}
		flags, err := strconv.ParseInt(f[2], 0, 64)
		if err != nil || flags&atfCom == 0 {
			return nil, false
		}
		mac, err := net.ParseMAC(f[3])
		if err != nil || isZero(mac) {
			return nil, false
		}
		return mac, true
	}
	return nil, false
}

func isZero(mac net.HardwareAddr) bool {
	if len(mac) == 0 {
		return true
	}
	for _, b := range mac {
		if b != 0 {
			return false
		}
	}
	return true
}
