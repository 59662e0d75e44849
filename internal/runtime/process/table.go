package process

import (
	"context"
	"fmt"
	"slices"
	"time"

	psprocess "github.com/shirou/gopsutil/v4/process"

	"github.com/Paintersrp/servectl/internal/runtime"
)

type gopsutilTable struct{}

// NewTable returns a runtime.Table backed by the host process table.
func NewTable() runtime.Table {
	return gopsutilTable{}
}

func (gopsutilTable) Processes(ctx context.Context) ([]runtime.Process, error) {
	procs, err := psprocess.ProcessesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}

	out := make([]runtime.Process, 0, len(procs))
	for _, p := range procs {
		// Processes can exit or deny access between listing and inspection.
		cmdline, err := p.CmdlineWithContext(ctx)
		if err != nil || cmdline == "" {
			continue
		}
		entry := runtime.Process{PID: p.Pid, Cmdline: cmdline}
		if ppid, err := p.PpidWithContext(ctx); err == nil {
			entry.PPID = ppid
		}
		if created, err := p.CreateTimeWithContext(ctx); err == nil && created > 0 {
			entry.Created = time.UnixMilli(created)
		}
		out = append(out, entry)
	}
	return out, nil
}

func (gopsutilTable) Exists(ctx context.Context, pid int32) (bool, error) {
	exists, err := psprocess.PidExistsWithContext(ctx, pid)
	if err != nil || !exists {
		return false, err
	}
	p, err := psprocess.NewProcessWithContext(ctx, pid)
	if err != nil {
		// Vanished between the two calls.
		return false, nil
	}
	status, err := p.StatusWithContext(ctx)
	if err == nil && slices.Contains(status, psprocess.Zombie) {
		return false, nil
	}
	return true, nil
}
