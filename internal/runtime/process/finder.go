package process

import (
	"context"
	"errors"
	"os"
	"sort"
	"strings"

	"github.com/Paintersrp/servectl/internal/runtime"
)

// ErrEmptyMatch is returned when Find is asked to match an empty substring,
// which would select every process on the host.
var ErrEmptyMatch = errors.New("match substring must not be empty")

// Finder locates server processes by command-line substring.
type Finder struct {
	Table runtime.Table
	// SelfPID anchors self-match avoidance. The finder never returns this PID
	// or any of its ancestors.
	SelfPID int32
}

// NewFinder constructs a Finder rooted at the calling process.
func NewFinder(table runtime.Table) *Finder {
	return &Finder{Table: table, SelfPID: int32(os.Getpid())}
}

// Find returns every process whose full command line contains substring,
// ordered by PID.
func (f *Finder) Find(ctx context.Context, substring string) ([]runtime.Process, error) {
	if strings.TrimSpace(substring) == "" {
		return nil, ErrEmptyMatch
	}
	procs, err := f.Table.Processes(ctx)
	if err != nil {
		return nil, err
	}

	excluded := lineage(f.SelfPID, procs)
	var matches []runtime.Process
	for _, p := range procs {
		if _, skip := excluded[p.PID]; skip {
			continue
		}
		if strings.Contains(p.Cmdline, substring) {
			matches = append(matches, p)
		}
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].PID < matches[j].PID })
	return matches, nil
}

// lineage returns self and every ancestor of self found in procs. A wrapper
// such as `sh -c "servectl stop --match X"` repeats the substring in its own
// argv and must not be signalled.
func lineage(self int32, procs []runtime.Process) map[int32]struct{} {
	parents := make(map[int32]int32, len(procs))
	for _, p := range procs {
		parents[p.PID] = p.PPID
	}
	out := map[int32]struct{}{self: {}}
	for pid := parents[self]; pid > 0; pid = parents[pid] {
		if _, seen := out[pid]; seen {
			break
		}
		out[pid] = struct{}{}
	}
	return out
}
