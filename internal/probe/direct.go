// Package probe runs per-uplink reachability sampling (spec.md §4.1): a UDP
// probe/ack exchange bound to the raw physical interface for LTE, and an
// in-namespace STUN reachability check for SAT/FIBER, plus the kind-specific
// slow polls (modem signal, dish stats) and chaos injection.
package probe

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net"
	"strings"
	"time"
)

const (
	probePrefix = "pathsteer-probe:"
	ackPrefix   = "pathsteer-ack:"
)

// Responder answers probe packets with an ack carrying the same nonce. It
// stands in for the controller's public-address responder in tests and in
// the single-namespace demo where no real peer exists, adapted from the
// teacher's direct.Responder.
type Responder struct {
	conn *net.UDPConn
}

// StartResponder starts a UDP responder on the given address (e.g. ":0").
func StartResponder(addr string) (*Responder, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, err
	}
	r := &Responder{conn: conn}
	go r.serve()
	return r, nil
}

// LocalAddr returns the local address of the responder.
func (r *Responder) LocalAddr() string {
	if r == nil || r.conn == nil {
		return ""
	}
	return r.conn.LocalAddr().String()
}

// Close stops the responder.
func (r *Responder) Close() error {
	if r == nil || r.conn == nil {
		return nil
	}
	return r.conn.Close()
}

func (r *Responder) serve() {
	buf := make([]byte, 512)
	for {
		n, addr, err := r.conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		msg := string(buf[:n])
		if strings.HasPrefix(msg, probePrefix) {
			nonce := strings.TrimPrefix(msg, probePrefix)
			_, _ = r.conn.WriteToUDP([]byte(ackPrefix+nonce), addr)
		}
	}
}

// Dial sends a single probe/ack exchange over an already-open UDP socket
// (LTE probing passes one bound to the physical interface) and returns
// the round-trip time. Returns an error if no ack matching the nonce arrives
// before the context deadline.
func Dial(ctx context.Context, conn *net.UDPConn, peer *net.UDPAddr) (time.Duration, error) {
	nonce, err := randomNonce(8)
	if err != nil {
		return 0, err
	}
	payload := []byte(probePrefix + nonce)

	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(dl)
	}

	start := time.Now()
	if _, err := conn.WriteToUDP(payload, peer); err != nil {
		return 0, err
	}

	buf := make([]byte, 512)
	for {
		n, addr, err := conn.ReadFromUDP(buf)
		if err != nil {
			return 0, err
		}
		if addr.String() != peer.String() {
			continue
		}
		if string(buf[:n]) == ackPrefix+nonce {
			return time.Since(start), nil
		}
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		default:
		}
	}
}

func randomNonce(size int) (string, error) {
	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("nonce: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
