package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Paintersrp/servectl/internal/config"
	"github.com/Paintersrp/servectl/internal/runtime/process"
)

const defaultRestartWait = 10 * time.Second

func newRestartCmd(ctx *context) *cobra.Command {
	launch := &launchOptions{}
	stop := &stopOptions{}
	cmd := &cobra.Command{
		Use:   "restart",
		Short: "Stop the server if it is running, then start it again",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			defer ctx.writeMetrics()
			cfg, err := ctx.loadConfig(func(cfg *config.Config) error {
				if err := stop.apply(cmd)(cfg); err != nil {
					return err
				}
				return launch.apply(cmd)(cfg)
			})
			if err != nil {
				return err
			}

			srv, err := ctx.restart(cmd, cfg, stop.wait)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Started %s (pid %d), logging to %s\n", cfg.Server.Name, srv.PID, srv.LogPath)
			if launch.noFollow {
				return nil
			}
			return ctx.follow(cmd, cfg, srv, launch.lines)
		},
	}
	launch.register(cmd)
	stop.register(cmd, defaultRestartWait)
	return cmd
}

// restart holds the base-directory lock across stop and launch so no other
// invocation can start a server in between.
func (c *context) restart(cmd *cobra.Command, cfg *config.Config, wait time.Duration) (*process.Server, error) {
	unlock, err := c.lock(cmd.Context(), cfg)
	if err != nil {
		return nil, err
	}
	defer unlock()

	err = c.stopLocked(cmd, cfg, wait)
	switch {
	case errors.Is(err, process.ErrNotRunning):
		fmt.Fprintf(cmd.OutOrStdout(), "%s was not running\n", cfg.Server.Name)
	case err != nil:
		return nil, err
	}
	return c.launchLocked(cmd.Context(), cfg)
}
