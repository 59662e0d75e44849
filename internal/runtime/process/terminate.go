package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/Paintersrp/servectl/internal/runtime"
)

// ErrNotRunning is returned when no process matches the server invocation.
var ErrNotRunning = errors.New("not running")

const defaultPollInterval = 100 * time.Millisecond

// Outcome records what happened to a single matched process.
type Outcome string

const (
	OutcomeSignalled Outcome = "signalled"
	OutcomeGone      Outcome = "already exited"
	OutcomeFailed    Outcome = "failed"
)

// Target is a matched process and the result of signalling it.
type Target struct {
	Process runtime.Process
	Outcome Outcome
	Err     error
}

// StopResult summarises a Stop call.
type StopResult struct {
	Signal  os.Signal
	Targets []Target
}

// Signalled returns the PIDs that accepted the signal.
func (r *StopResult) Signalled() []int32 {
	var pids []int32
	for _, t := range r.Targets {
		if t.Outcome == OutcomeSignalled {
			pids = append(pids, t.Process.PID)
		}
	}
	return pids
}

// Terminator signals matched server processes.
type Terminator struct {
	Table        runtime.Table
	Signaler     runtime.Signaler
	PollInterval time.Duration
	Logger       logrus.FieldLogger
}

// NewTerminator wires a Terminator to the host process table.
func NewTerminator(table runtime.Table, logger logrus.FieldLogger) *Terminator {
	return &Terminator{
		Table:        table,
		Signaler:     runtime.SignalerFunc(signalPID),
		PollInterval: defaultPollInterval,
		Logger:       logger,
	}
}

// Stop sends sig to every process in matches. All matches are signalled; a
// failure on one PID does not prevent the others from being attempted.
func (t *Terminator) Stop(ctx context.Context, matches []runtime.Process, sig os.Signal) (*StopResult, error) {
	if len(matches) == 0 {
		return nil, ErrNotRunning
	}
	log := t.logger()
	result := &StopResult{Signal: sig, Targets: make([]Target, 0, len(matches))}
	var errs []error
	for _, p := range matches {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		target := Target{Process: p, Outcome: OutcomeSignalled}
		if err := t.Signaler.Signal(p.PID, sig); err != nil {
			if isGone(err) {
				target.Outcome = OutcomeGone
			} else {
				target.Outcome = OutcomeFailed
				target.Err = err
				errs = append(errs, fmt.Errorf("signal pid %d: %w", p.PID, err))
			}
		}
		log.WithFields(logrus.Fields{"pid": p.PID, "signal": sig.String(), "outcome": target.Outcome}).Debug("signal delivered")
		result.Targets = append(result.Targets, target)
	}
	return result, errors.Join(errs...)
}

// Wait blocks until every pid has left the process table or timeout elapses.
func (t *Terminator) Wait(ctx context.Context, pids []int32, timeout time.Duration) error {
	if len(pids) == 0 {
		return nil
	}
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	interval := t.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}

	g, gCtx := errgroup.WithContext(waitCtx)
	for _, pid := range pids {
		pid := pid // per-iteration copy (go 1.21 loop semantics)
		g.Go(func() error {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				alive, err := t.Table.Exists(gCtx, pid)
				if err != nil {
					return fmt.Errorf("check pid %d: %w", pid, err)
				}
				if !alive {
					return nil
				}
				select {
				case <-gCtx.Done():
					if errors.Is(waitCtx.Err(), context.DeadlineExceeded) {
						return fmt.Errorf("pid %d still running after %s", pid, timeout)
					}
					return gCtx.Err()
				case <-ticker.C:
				}
			}
		})
	}
	return g.Wait()
}

func (t *Terminator) logger() logrus.FieldLogger {
	if t.Logger != nil {
		return t.Logger
	}
	discard := logrus.New()
	discard.SetOutput(io.Discard)
	return discard
}

func signalPID(pid int32, sig os.Signal) error {
	if pid <= 0 {
		return fmt.Errorf("invalid PID: %d", pid)
	}
	proc, err := os.FindProcess(int(pid))
	if err != nil {
		return err
	}
	return proc.Signal(sig)
}

func isGone(err error) bool {
	return errors.Is(err, os.ErrProcessDone) || errors.Is(err, syscall.ESRCH)
}
