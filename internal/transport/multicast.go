package transport

import (
	"fmt"
	"net"

	"golang.org/x/net/ipv4"
)

// joinMulticast subscribes conn to an IPv4 group. With an empty ifaceName the
// group is joined on every multicast-capable interface that accepts it.
func joinMulticast(conn *net.UDPConn, group, ifaceName string) (int, error) {
	ip := net.ParseIP(group)
	if ip == nil || ip.To4() == nil || !ip.IsMulticast() {
		return 0, fmt.Errorf("invalid ipv4 multicast group %q", group)
	}
	pc := ipv4.NewPacketConn(conn)
	addr := &net.UDPAddr{IP: ip}

	if ifaceName != "" {
		iface, err := net.InterfaceByName(ifaceName)
		if err != nil {
			return 0, fmt.Errorf("multicast interface: %w", err)
		}
		if err := pc.JoinGroup(iface, addr); err != nil {
			return 0, fmt.Errorf("join %s on %s: %w", group, ifaceName, err)
		}
		return 1, nil
	}

	ifaces, err := net.Interfaces()
	if err != nil {
		return 0, fmt.Errorf("list interfaces: %w", err)
	}
	joined := 0
	var lastErr error
	for i := range ifaces {
		if ifaces[i].Flags&net.FlagUp == 0 || ifaces[i].Flags&net.FlagMulticast == 0 {
			continue
		}
		if err := pc.JoinGroup(&ifaces[i], addr); err != nil {
			lastErr = err
			continue
		}
		joined++
	}
	if joined == 0 {
		if lastErr == nil {
			lastErr = fmt.Errorf("no multicast-capable interface")
		}
		return 0, fmt.Errorf("join %s: %w", group, lastErr)
	}
	return joined, nil
}

// setMulticastTTL sets the hop limit for multicast datagrams sent on conn.
func setMulticastTTL(conn *net.UDPConn, ttl int) error {
	return ipv4.NewPacketConn(conn).SetMulticastTTL(ttl)
}
