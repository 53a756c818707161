// Package tunnel supplies the Controller Dedup Engine's packet source: one
// UDPReceiver per configured tunnel input, adapted from the pack's
// udp_receiver.go context+cancel+sync.WaitGroup lifecycle.
package tunnel

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"pathsteer/internal/dedupe"
)

// maxPacketBytes bounds a single read; large enough for any tunnel-wrapped
// IPv4/IPv6 datagram this fabric carries.
const maxPacketBytes = 65536

// Forwarder emits an admitted (non-duplicate) packet onward, unchanged.
type Forwarder interface {
	Forward(packet []byte) error
}

// UDPForwarder relays admitted packets to a single upstream UDP destination.
type UDPForwarder struct {
	conn *net.UDPConn
}

// NewUDPForwarder dials the upstream service address.
func NewUDPForwarder(upstream string) (*UDPForwarder, error) {
	addr, err := net.ResolveUDPAddr("udp", upstream)
	if err != nil {
		return nil, fmt.Errorf("resolve upstream address: %w", err)
	}
	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("dial upstream: %w", err)
	}
	return &UDPForwarder{conn: conn}, nil
}

// Forward writes packet to the upstream destination unchanged.
func (f *UDPForwarder) Forward(packet []byte) error {
	_, err := f.conn.Write(packet)
	return err
}

// Close releases the upstream socket.
func (f *UDPForwarder) Close() error {
	return f.conn.Close()
}

// UDPReceiver listens on one tunnel input address, fingerprints and admits
// each decapsulated packet through a dedupe.Table, and forwards survivors.
type UDPReceiver struct {
	name      string
	address   string
	table     *dedupe.Table
	forwarder Forwarder
	logger    *zap.Logger

	conn   *net.UDPConn
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewUDPReceiver builds a receiver for one named tunnel input.
func NewUDPReceiver(name, address string, table *dedupe.Table, forwarder Forwarder, logger *zap.Logger) *UDPReceiver {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &UDPReceiver{
		name:      name,
		address:   address,
		table:     table,
		forwarder: forwarder,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start binds the listening socket and launches the receive loop.
func (r *UDPReceiver) Start() error {
	addr, err := net.ResolveUDPAddr("udp", r.address)
	if err != nil {
		return fmt.Errorf("resolve tunnel input address: %w", err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("listen on tunnel input: %w", err)
	}
	r.conn = conn
	r.logger.Info("tunnel input listening", zap.String("source", r.name), zap.String("address", r.address))

	r.wg.Add(1)
	go r.receive()
	return nil
}

// Stop cancels the receive loop and waits for it to exit.
func (r *UDPReceiver) Stop() {
	r.cancel()
	if r.conn != nil {
		_ = r.conn.Close()
	}
	r.wg.Wait()
}

func (r *UDPReceiver) receive() {
	defer r.wg.Done()

	buf := make([]byte, maxPacketBytes)
	for {
		select {
		case <-r.ctx.Done():
			return
		default:
		}

		n, _, err := r.conn.ReadFromUDP(buf)
		if err != nil {
			if r.ctx.Err() != nil {
				return
			}
			r.logger.Warn("tunnel read failed", zap.String("source", r.name), zap.Error(err))
			continue
		}

		packet := buf[:n]
		fp, ok := dedupe.Fingerprint(packet)
		if !ok {
			r.logger.Debug("dropped unfingerprintable packet", zap.String("source", r.name))
			continue
		}

		if !r.table.Admit(fp, time.Now()) {
			continue
		}
		if r.forwarder == nil {
			continue
		}
		if err := r.forwarder.Forward(packet); err != nil {
			r.logger.Warn("forward failed", zap.String("source", r.name), zap.Error(err))
		}
	}
}
