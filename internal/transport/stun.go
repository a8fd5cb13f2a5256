package transport

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/pion/stun"
)

const stunTimeout = 500 * time.Millisecond

// DiscoverMapped sends a STUN binding request from conn to each server in
// turn and returns the first mapped (public) address. It also returns every
// server address it contacted so late responses can be filtered out of the
// packet stream. It must run before anything else reads from conn.
func DiscoverMapped(ctx context.Context, conn *net.UDPConn, servers []string, logger *slog.Logger) (*net.UDPAddr, []*net.UDPAddr, error) {
	var contacted []*net.UDPAddr
	defer conn.SetReadDeadline(time.Time{})

	for _, server := range servers {
		if err := ctx.Err(); err != nil {
			return nil, contacted, err
		}
		addr, err := net.ResolveUDPAddr("udp4", strings.TrimPrefix(server, "stun:"))
		if err != nil {
			logger.Warn("invalid STUN server", "server", server, "error", err)
			continue
		}
		contacted = append(contacted, addr)

		msg := stun.MustBuild(stun.TransactionID, stun.BindingRequest)
		logger.Debug("sending STUN request", "server", addr.String())
		if _, err := conn.WriteToUDP(msg.Raw, addr); err != nil {
			continue
		}

		buf := make([]byte, 1500)
		deadline := time.Now().Add(stunTimeout)
		for {
			conn.SetReadDeadline(deadline)
			n, from, err := conn.ReadFromUDP(buf)
			if err != nil {
				break
			}
			if !from.IP.Equal(addr.IP) || from.Port != addr.Port || !stun.IsMessage(buf[:n]) {
				continue
			}
			if mapped, ok := mappedAddr(buf[:n], msg.TransactionID); ok {
				return mapped, contacted, nil
			}
		}
	}
	return nil, contacted, errors.New("all STUN servers failed")
}

func mappedAddr(raw []byte, txID [stun.TransactionIDSize]byte) (*net.UDPAddr, bool) {
	res := &stun.Message{Raw: append([]byte(nil), raw...)}
	if err := res.Decode(); err != nil {
		return nil, false
	}
	if res.TransactionID != txID {
		return nil, false
	}
	var xorAddr stun.XORMappedAddress
	if err := xorAddr.GetFrom(res); err == nil {
		return &net.UDPAddr{IP: xorAddr.IP, Port: xorAddr.Port}, true
	}
	var plain stun.MappedAddress
	if err := plain.GetFrom(res); err == nil {
		return &net.UDPAddr{IP: plain.IP, Port: plain.Port}, true
	}
	return nil, false
}
