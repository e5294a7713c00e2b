// Package portprobe finds a free TCP port at startup, scanning upward from
// the configured one.
package portprobe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
)

// Window is how many consecutive ports Resolve tries.
const Window = 20

const maxPort = 65535

var ErrNoPortAvailable = errors.New("no available port")

// Available reports whether port can be bound on all IPv4 interfaces right
// now. Any bind failure counts as unavailable.
func Available(ctx context.Context, port int) bool {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp4", net.JoinHostPort("0.0.0.0", strconv.Itoa(port)))
	if err != nil {
		return false
	}
	_ = ln.Close()
	return true
}

// Resolve returns the first bindable port in [preferred, preferred+Window),
// capped at 65535. The probe listener is closed before returning, so another
// process can still take the port before the caller binds it.
func Resolve(ctx context.Context, preferred int) (int, error) {
	if preferred < 1 || preferred > maxPort {
		return 0, fmt.Errorf("portprobe: port %d out of range", preferred)
	}
	last := min(preferred+Window-1, maxPort)
	for p := preferred; p <= last; p++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		if Available(ctx, p) {
			return p, nil
		}
	}
	return 0, fmt.Errorf("%w in range %d-%d", ErrNoPortAvailable, preferred, last)
}
