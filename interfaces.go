package tftpboot

import (
	"context"
	"fmt"

	psnet "github.com/shirou/gopsutil/v3/net"
	"inet.af/netaddr"
)

// SystemInterfaces lists the addresses assigned to this host's interfaces.
type SystemInterfaces struct{}

func (SystemInterfaces) Addresses(ctx context.Context) ([]string, error) {
	ifaces, err := psnet.InterfacesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get interfaces: %w", err)
	}
	var addrs []string
	for _, iface := range ifaces {
		for _, a := range iface.Addrs {
			// gopsutil reports addresses in CIDR form.
			if p, err := netaddr.ParseIPPrefix(a.Addr); err == nil {
				addrs = append(addrs, p.IP().String())
				continue
			}
			if ip, err := netaddr.ParseIP(a.Addr); err == nil {
				addrs = append(addrs, ip.String())
			}
		}
	}
	return addrs, nil
}
