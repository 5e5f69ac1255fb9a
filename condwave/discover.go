package condwave

import (
	"context"
	"fmt"
	"net"
	"sort"
	"time"

	"github.com/vallen-systems/go-waveline/logger"
)

const discoveryTimeout = 500 * time.Millisecond

// Discover finds conditionWave devices on the local network by broadcasting a
// discovery datagram and collecting responder addresses until the timeout
// elapses or ctx is cancelled. The returned IP addresses are sorted.
func Discover(ctx context.Context) ([]string, error) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero, Port: 0})
	if err != nil {
		return nil, fmt.Errorf("condwave: open discovery socket: %w", err)
	}
	defer conn.Close()

	broadcast := &net.UDPAddr{IP: net.IPv4bcast, Port: ControlPort}
	if _, err := conn.WriteToUDP([]byte("find"), broadcast); err != nil {
		return nil, fmt.Errorf("condwave: send discovery datagram: %w", err)
	}

	deadline := time.Now().Add(discoveryTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetReadDeadline(deadline); err != nil {
		return nil, fmt.Errorf("condwave: set discovery deadline: %w", err)
	}

	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetReadDeadline(time.Now())
	})
	defer stop()

	seen := make(map[string]struct{})
	buf := make([]byte, 1024)
	for {
		_, addr, err := conn.ReadFromUDP(buf)
		if err != nil {
			if isTimeout(err) {
				break
			}
			return nil, fmt.Errorf("condwave: read discovery response: %w", err)
		}

		ip := addr.IP.String()
		if _, ok := seen[ip]; !ok {
			seen[ip] = struct{}{}
			logger.Debug("discovered device", "ip", ip)
		}
	}

	ips := make([]string, 0, len(seen))
	for ip := range seen {
		ips = append(ips, ip)
	}
	sort.Strings(ips)

	return ips, nil
}
