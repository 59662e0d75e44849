package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Paintersrp/servectl/internal/config"
	"github.com/Paintersrp/servectl/internal/metrics"
	"github.com/Paintersrp/servectl/internal/runtime/process"
)

type stopOptions struct {
	signal string
	wait   time.Duration
}

func (o *stopOptions) register(cmd *cobra.Command, defaultWait time.Duration) {
	flags := cmd.Flags()
	flags.StringVar(&o.signal, "signal", "", "Signal sent to the server (TERM, INT, KILL, HUP, QUIT; default TERM)")
	flags.DurationVar(&o.wait, "wait", defaultWait, "Wait this long for signalled processes to exit (0 returns immediately)")
}

func (o *stopOptions) apply(cmd *cobra.Command) func(*config.Config) error {
	return func(cfg *config.Config) error {
		if cmd.Flags().Changed("signal") {
			cfg.Signal = o.signal
		}
		return nil
	}
}

func newStopCmd(ctx *context) *cobra.Command {
	opts := &stopOptions{}
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Signal every running server process to stop",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			defer ctx.writeMetrics()
			cfg, err := ctx.loadConfig(opts.apply(cmd))
			if err != nil {
				return err
			}
			err = ctx.stop(cmd, cfg, opts.wait)
			if errors.Is(err, process.ErrNotRunning) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s is not running\n", cfg.Server.Name)
				return &ExitError{Code: ExitNotRunning}
			}
			return err
		},
	}
	opts.register(cmd, 0)
	return cmd
}

// stop finds and signals the server processes under the base-directory lock.
// It returns process.ErrNotRunning when nothing matches.
func (c *context) stop(cmd *cobra.Command, cfg *config.Config, wait time.Duration) error {
	unlock, err := c.lock(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer unlock()
	return c.stopLocked(cmd, cfg, wait)
}

// stopLocked is stop for callers that already hold the base-directory lock.
func (c *context) stopLocked(cmd *cobra.Command, cfg *config.Config, wait time.Duration) error {
	sig, err := process.ParseSignal(cfg.Signal)
	if err != nil {
		return fmt.Errorf("signal: %w", err)
	}
	ctx := cmd.Context()
	matches, err := c.finder().Find(ctx, cfg.Match)
	if err != nil {
		return err
	}
	metrics.RecordLookup(cfg.Server.Name, len(matches))
	if len(matches) == 0 {
		return process.ErrNotRunning
	}

	term := c.terminator()
	result, stopErr := term.Stop(ctx, matches, sig)
	if result != nil {
		printStopResult(cmd.OutOrStdout(), cfg, result)
		metrics.AddSignals(cfg.Server.Name, signalName(cfg.Signal), len(result.Signalled()))
	}
	if stopErr != nil {
		return stopErr
	}
	if wait <= 0 {
		return nil
	}
	if err := term.Wait(ctx, result.Signalled(), wait); err != nil {
		return fmt.Errorf("wait for %s to exit: %w", cfg.Server.Name, err)
	}
	return nil
}

func printStopResult(out io.Writer, cfg *config.Config, result *process.StopResult) {
	name := signalName(cfg.Signal)
	for _, target := range result.Targets {
		switch target.Outcome {
		case process.OutcomeSignalled:
			fmt.Fprintf(out, "Sent %s to %s (pid %d)\n", name, cfg.Server.Name, target.Process.PID)
		case process.OutcomeGone:
			fmt.Fprintf(out, "%s (pid %d) already exited\n", cfg.Server.Name, target.Process.PID)
		}
	}
}

// signalName renders a configured signal as SIGTERM, SIGKILL, ...
func signalName(name string) string {
	name = strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(name)), "SIG")
	if name == "" {
		name = config.DefaultSignal
	}
	return "SIG" + name
}
