package cli

import (
	stdcontext "context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Paintersrp/servectl/internal/config"
	"github.com/Paintersrp/servectl/internal/logtail"
	"github.com/Paintersrp/servectl/internal/metrics"
	"github.com/Paintersrp/servectl/internal/runtime/process"
)

type launchOptions struct {
	port      string
	keepAlive string
	reload    bool
	noFollow  bool
	lines     int
}

func (o *launchOptions) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVar(&o.port, "port", "", "Port the server listens on (default 8080)")
	flags.StringVar(&o.keepAlive, "keep-alive", "", "Keep-alive timeout, in seconds or as a duration (default 60s)")
	flags.BoolVar(&o.reload, "reload", true, "Restart the server when its code changes")
	flags.BoolVar(&o.noFollow, "no-follow", false, "Return after launching instead of following the log")
	flags.IntVarP(&o.lines, "lines", "n", logtail.DefaultLines, "Existing log lines to print before following")
}

// apply layers the command-line flags over the file and environment values.
func (o *launchOptions) apply(cmd *cobra.Command) func(*config.Config) error {
	return func(cfg *config.Config) error {
		flags := cmd.Flags()
		if flags.Changed("port") {
			port, err := config.ParsePort(o.port)
			if err != nil {
				return fmt.Errorf("--port: %w", err)
			}
			cfg.Server.Port = port
		}
		if flags.Changed("keep-alive") {
			keepAlive, err := config.ParseKeepAlive(o.keepAlive)
			if err != nil {
				return fmt.Errorf("--keep-alive: %w", err)
			}
			cfg.Server.KeepAlive.Set(keepAlive)
		}
		if flags.Changed("reload") {
			reload := o.reload
			cfg.Server.Reload = &reload
		}
		return nil
	}
}

func newStartCmd(ctx *context) *cobra.Command {
	opts := &launchOptions{}
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Launch the server detached and follow its log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			defer ctx.writeMetrics()
			cfg, err := ctx.loadConfig(opts.apply(cmd))
			if err != nil {
				return err
			}
			srv, err := ctx.launch(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Started %s (pid %d), logging to %s\n", cfg.Server.Name, srv.PID, srv.LogPath)
			if opts.noFollow {
				return nil
			}
			return ctx.follow(cmd, cfg, srv, opts.lines)
		},
	}
	opts.register(cmd)
	return cmd
}

// launch starts the server while holding the base-directory lock.
func (c *context) launch(ctx stdcontext.Context, cfg *config.Config) (*process.Server, error) {
	unlock, err := c.lock(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer unlock()
	return c.launchLocked(ctx, cfg)
}

// launchLocked starts the server. The caller holds the base-directory lock.
func (c *context) launchLocked(ctx stdcontext.Context, cfg *config.Config) (*process.Server, error) {
	if err := cfg.LoadEnvFile(); err != nil {
		return nil, err
	}
	srv, err := process.Launch(ctx, cfg)
	if err != nil {
		return nil, err
	}
	metrics.RecordLaunch(cfg.Server.Name, srv.PID, time.Now())
	c.logger.WithFields(logrus.Fields{
		"pid":  srv.PID,
		"argv": srv.Argv,
		"dir":  cfg.BaseDir,
	}).Info("server launched")
	return srv, nil
}

// follow streams the server log until the command context is cancelled. The
// server keeps running after servectl exits.
func (c *context) follow(cmd *cobra.Command, cfg *config.Config, srv *process.Server, lines int) error {
	ctx := cmd.Context()
	go func() {
		select {
		case <-srv.Done():
			c.logger.WithError(srv.Err()).WithField("pid", srv.PID).Warn("server exited; see its log for details")
		case <-ctx.Done():
		}
	}()
	return logtail.Follow(ctx, cfg.Log.Path, cmd.OutOrStdout(), logtail.Options{Lines: lines})
}
