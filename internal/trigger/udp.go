// Package trigger sends fire-and-forget UDP datagrams that tell peer
// devices (for example a behaviour camera on another host) when a trial
// starts and stops.
package trigger

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
)

// DefaultPort is used for peers given without a port.
const DefaultPort = 5007

// StopMessage is sent when a trial's recording ends.
const StopMessage = "Stop"

// UDP sends each trigger to every peer.
type UDP struct {
	conns  []net.Conn
	logger *slog.Logger
}

// DialUDP resolves peers ("host" or "host:port") and prepares a socket for
// each. No packets are sent until Trigger.
func DialUDP(peers []string, logger *slog.Logger) (*UDP, error) {
	if logger == nil {
		logger = slog.Default()
	}
	u := &UDP{logger: logger}
	for _, peer := range peers {
		addr := peer
		if _, _, err := net.SplitHostPort(peer); err != nil {
			addr = net.JoinHostPort(peer, strconv.Itoa(DefaultPort))
		}
		c, err := net.Dial("udp", addr)
		if err != nil {
			u.Close()
			return nil, fmt.Errorf("dial trigger peer %s: %w", peer, err)
		}
		u.conns = append(u.conns, c)
	}
	return u, nil
}

// Trigger sends msg to every peer. Send failures are logged only.
func (u *UDP) Trigger(msg string) {
	for _, c := range u.conns {
		if _, err := c.Write([]byte(msg)); err != nil {
			u.logger.Warn("trigger send failed", "peer", c.RemoteAddr().String(), "error", err)
		}
	}
	u.logger.Debug("trigger sent", "message", msg, "peers", len(u.conns))
}

// Close releases the sockets.
func (u *UDP) Close() error {
	var errs []error
	for _, c := range u.conns {
		errs = append(errs, c.Close())
	}
	u.conns = nil
	return errors.Join(errs...)
}
