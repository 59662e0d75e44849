//go:build !windows

package process

import (
	"fmt"
	"os"
	"strings"
	"syscall"
)

// ParseSignal maps a signal name such as "TERM" or "SIGKILL" to its value.
func ParseSignal(name string) (os.Signal, error) {
	switch strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(name)), "SIG") {
	case "", "TERM":
		return syscall.SIGTERM, nil
	case "INT":
		return syscall.SIGINT, nil
	case "KILL":
		return syscall.SIGKILL, nil
	case "HUP":
		return syscall.SIGHUP, nil
	case "QUIT":
		return syscall.SIGQUIT, nil
	default:
		return nil, fmt.Errorf("unsupported signal %q", name)
	}
}
