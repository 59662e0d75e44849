//go:build windows

package process

import (
	"fmt"
	"os"
	"strings"
)

// ParseSignal maps a signal name to os.Kill. Windows cannot deliver the POSIX
// termination signals to a process that is not a console child.
func ParseSignal(name string) (os.Signal, error) {
	switch strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(name)), "SIG") {
	case "", "TERM", "INT", "KILL", "HUP", "QUIT":
		return os.Kill, nil
	default:
		return nil, fmt.Errorf("unsupported signal %q", name)
	}
}
