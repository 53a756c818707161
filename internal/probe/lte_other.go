//go:build !linux

package probe

import (
	"context"
	"fmt"
	"time"
)

// LTEProbe is only implemented on Linux, where SO_BINDTODEVICE is available.
func LTEProbe(_ context.Context, iface, _ string) (time.Duration, error) {
	return 0, fmt.Errorf("lte probe: SO_BINDTODEVICE binding to %q not supported on this platform", iface)
}
