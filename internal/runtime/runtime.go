package runtime

import (
	"context"
	"os"
	"time"
)

// Process is a point-in-time view of an operating-system process.
type Process struct {
	PID     int32
	PPID    int32
	Cmdline string
	Created time.Time
}

// Table enumerates the processes visible to the caller.
type Table interface {
	// Processes returns a snapshot of the process table. Entries whose
	// command line cannot be read are omitted.
	Processes(ctx context.Context) ([]Process, error)

	// Exists reports whether pid is still alive. Zombies count as gone.
	Exists(ctx context.Context, pid int32) (bool, error)
}

// Signaler delivers a signal to an arbitrary PID, not only to children of the
// calling process.
type Signaler interface {
	Signal(pid int32, sig os.Signal) error
}

// SignalerFunc adapts a function to the Signaler interface.
type SignalerFunc func(pid int32, sig os.Signal) error

// Signal calls f(pid, sig).
func (f SignalerFunc) Signal(pid int32, sig os.Signal) error {
	return f(pid, sig)
}
