//go:build linux

package probe

import (
	"context"
	"fmt"
	"net"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// LTEProbe measures RTT to target over the named physical interface, bypassing
// the tunnel so the radio leg itself is measured — the raw-interface bind is
// done via SO_BINDTODEVICE, per spec.md §4.1's "probe bound to the raw
// physical interface" requirement.
func LTEProbe(ctx context.Context, iface, target string) (time.Duration, error) {
	peer, err := net.ResolveUDPAddr("udp4", target)
	if err != nil {
		return 0, fmt.Errorf("resolve target: %w", err)
	}

	lc := net.ListenConfig{
		Control: func(_, _ string, c syscall.RawConn) error {
			var bindErr error
			err := c.Control(func(fd uintptr) {
				bindErr = unix.BindToDevice(int(fd), iface)
			})
			if err != nil {
				return err
			}
			return bindErr
		},
	}

	pc, err := lc.ListenPacket(ctx, "udp4", ":0")
	if err != nil {
		return 0, fmt.Errorf("bind %s: %w", iface, err)
	}
	conn := pc.(*net.UDPConn)
	defer conn.Close()
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	return Dial(ctx, conn, peer)
}
