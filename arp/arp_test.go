package arp

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vishvananda/netlink"
	"inet.af/netaddr"
)

const table = `IP address       HW type     Flags       HW address            Mask     Device
192.168.1.1      0x1         0x2         aa:bb:cc:dd:ee:ff     *        eth0
192.168.1.7      0x1         0x0         00:00:00:00:00:00     *        eth0
192.168.1.9      0x1         0x2         not-a-mac             *        eth0
`

func noNetlink(int) ([]netlink.Neigh, error) {
	return nil, errors.New("netlink unavailable")
}

func mustMAC(t *testing.T, s string) net.HardwareAddr {
	t.Helper()
	mac, err := net.ParseMAC(s)
	require.NoError(t, err)
	return mac
}

func TestLookupNeighbours(t *testing.T) {
	neighs := map[int][]netlink.Neigh{
		netlink.FAMILY_V4: {
			{IP: net.ParseIP("192.168.1.1"), HardwareAddr: mustMAC(t, "aa:bb:cc:dd:ee:ff"), State: netlink.NUD_REACHABLE},
			{IP: net.ParseIP("192.168.1.2"), HardwareAddr: mustMAC(t, "aa:bb:cc:dd:ee:01"), State: netlink.NUD_STALE},
			{IP: net.ParseIP("192.168.1.7"), State: netlink.NUD_INCOMPLETE},
			{IP: net.ParseIP("192.168.1.8"), HardwareAddr: mustMAC(t, "aa:bb:cc:dd:ee:02"), State: netlink.NUD_FAILED},
		},
		netlink.FAMILY_V6: {
			{IP: net.ParseIP("2001:db8::10"), HardwareAddr: mustMAC(t, "11:22:33:44:55:66"), State: netlink.NUD_REACHABLE},
			{IP: net.ParseIP("fe80::10"), HardwareAddr: mustMAC(t, "11:22:33:44:55:77"), State: netlink.NUD_DELAY},
		},
	}
	var families []int
	tbl := Table{Neighbours: func(family int) ([]netlink.Neigh, error) {
		families = append(families, family)
		return neighs[family], nil
	}}

	tests := []struct {
		ip     string
		want   string
		ok     bool
		family int
	}{
		{"192.168.1.1", "aa:bb:cc:dd:ee:ff", true, netlink.FAMILY_V4},
		{"::ffff:192.168.1.1", "aa:bb:cc:dd:ee:ff", true, netlink.FAMILY_V4},
		{"192.168.1.2", "aa:bb:cc:dd:ee:01", true, netlink.FAMILY_V4},
		{"192.168.1.7", "", false, netlink.FAMILY_V4},
		{"192.168.1.8", "", false, netlink.FAMILY_V4},
		{"192.168.1.200", "", false, netlink.FAMILY_V4},
		{"2001:db8::10", "11:22:33:44:55:66", true, netlink.FAMILY_V6},
		{"fe80::10%eth0", "11:22:33:44:55:77", true, netlink.FAMILY_V6},
		{"2001:db8::99", "", false, netlink.FAMILY_V6},
	}
	for _, tt := range tests {
		t.Run(tt.ip, func(t *testing.T) {
			families = nil
			mac, ok := tbl.Lookup(context.Background(), netaddr.MustParseIP(tt.ip))
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, mac.String())
			}
			assert.Equal(t, []int{tt.family}, families)
		})
	}
}

func TestLookupFallback(t *testing.T) {
	p := filepath.Join(t.TempDir(), "arp")
	require.NoError(t, os.WriteFile(p, []byte(table), 0o644))
	tbl := Table{Path: p, Neighbours: noNetlink}

	tests := []struct {
		ip   string
		want string
		ok   bool
	}{
		{"192.168.1.1", "aa:bb:cc:dd:ee:ff", true},
		{"192.168.1.7", "", false},
		{"192.168.1.9", "", false},
		{"192.168.1.200", "", false},
		// the file only has IPv4 neighbours.
		{"2001:db8::1", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.ip, func(t *testing.T) {
			mac, ok := tbl.Lookup(context.Background(), netaddr.MustParseIP(tt.ip))
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, mac.String())
			}
		})
	}
}

func TestLookupMissingTable(t *testing.T) {
	tbl := Table{Path: filepath.Join(t.TempDir(), "missing"), Neighbours: noNetlink}
	_, ok := tbl.Lookup(context.Background(), netaddr.MustParseIP("10.0.0.1"))
	assert.False(t, ok)
}
