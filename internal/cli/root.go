package cli

import (
	stdcontext "context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Paintersrp/servectl/internal/config"
	"github.com/Paintersrp/servectl/internal/metrics"
	"github.com/Paintersrp/servectl/internal/runtime"
	"github.com/Paintersrp/servectl/internal/runtime/process"
)

func NewRootCmd() *cobra.Command {
	root, _ := newRootCommand()
	return root
}

func newRootCommand() (*cobra.Command, *context) {
	ctx := &context{
		logger:     logrus.New(),
		executable: os.Executable,
	}
	ctx.logLevel = envOr(config.EnvLogLevel, "warn")
	ctx.metricsFile = os.Getenv(config.EnvMetricsFile)

	root := &cobra.Command{
		Use:   "servectl",
		Short: "Start, stop and follow a detached API server",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return ctx.configureLogger(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&ctx.baseDir, "base-dir", "", "Working root for the server, its log and relative paths (default: parent of the executable's directory)")
	flags.StringVarP(&ctx.configPath, "config", "c", "", "Path to servectl.yaml (default: <base-dir>/servectl.yaml, optional)")
	flags.StringVar(&ctx.match, "match", "", "Command-line substring identifying the server process")
	flags.StringVar(&ctx.logLevel, "log-level", ctx.logLevel, "Diagnostic log level (debug, info, warn, error)")
	flags.StringVar(&ctx.metricsFile, "metrics-file", ctx.metricsFile, "Write Prometheus textfile metrics to this path after each command")

	root.AddCommand(newStartCmd(ctx))
	root.AddCommand(newStopCmd(ctx))
	root.AddCommand(newStatusCmd(ctx))
	root.AddCommand(newLogsCmd(ctx))
	root.AddCommand(newRestartCmd(ctx))
	root.AddCommand(newConfigCmd(ctx))

	root.SilenceUsage = true
	root.SilenceErrors = true

	return root, ctx
}

// Execute runs the CLI entrypoint.
func Execute() {
	ctx, stop := signal.NotifyContext(stdcontext.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := NewRootCmd()

	err := root.ExecuteContext(ctx)
	if err == nil {
		return
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		if exitErr.Err != nil {
			fmt.Fprintln(os.Stderr, exitErr.Err)
		}
		stop()
		os.Exit(exitErr.Code)
	}
	fmt.Fprintln(os.Stderr, err)
	stop()
	os.Exit(1)
}

type context struct {
	baseDir     string
	configPath  string
	match       string
	logLevel    string
	metricsFile string

	logger     *logrus.Logger
	executable func() (string, error)

	// Overridable in tests.
	table        runtime.Table
	signaler     runtime.Signaler
	pollInterval time.Duration
}

func (c *context) configureLogger(cmd *cobra.Command) error {
	level, err := logrus.ParseLevel(c.logLevel)
	if err != nil {
		return fmt.Errorf("invalid --log-level: %w", err)
	}
	c.logger.SetOutput(cmd.ErrOrStderr())
	c.logger.SetLevel(level)
	c.logger.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	return nil
}

// resolveBaseDir applies --base-dir, then SERVECTL_BASE_DIR, then the parent of
// the directory that holds the executable.
func (c *context) resolveBaseDir() (string, error) {
	dir := c.baseDir
	if dir == "" {
		dir = os.Getenv(config.EnvBaseDir)
	}
	if dir == "" {
		exe, err := c.executable()
		if err != nil {
			return "", fmt.Errorf("locate executable: %w", err)
		}
		if resolved, err := filepath.EvalSymlinks(exe); err == nil {
			exe = resolved
		}
		dir = filepath.Dir(filepath.Dir(exe))
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolve base directory: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("base directory: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("base directory %s is not a directory", abs)
	}
	return abs, nil
}

// loadConfig resolves the configuration with precedence flags > env > file >
// defaults. apply receives the merged config before validation so commands can
// layer their own flags on top.
func (c *context) loadConfig(apply func(*config.Config) error) (*config.Config, error) {
	base, err := c.resolveBaseDir()
	if err != nil {
		return nil, err
	}

	var cfg *config.Config
	if c.configPath != "" {
		cfg, err = config.Load(c.configPath)
	} else {
		cfg, err = config.LoadOptional(filepath.Join(base, config.DefaultFileName))
	}
	if err != nil {
		return nil, err
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if c.match != "" {
		cfg.Match = c.match
	}
	if apply != nil {
		if err := apply(cfg); err != nil {
			return nil, err
		}
	}
	if err := cfg.Resolve(base); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c.logger.WithFields(logrus.Fields{
		"base_dir": cfg.BaseDir,
		"config":   cfg.Source,
		"match":    cfg.Match,
		"log":      cfg.Log.Path,
	}).Debug("resolved configuration")
	return cfg, nil
}

func (c *context) processTable() runtime.Table {
	if c.table == nil {
		c.table = process.NewTable()
	}
	return c.table
}

func (c *context) finder() *process.Finder {
	return process.NewFinder(c.processTable())
}

func (c *context) terminator() *process.Terminator {
	term := process.NewTerminator(c.processTable(), c.logger)
	if c.signaler != nil {
		term.Signaler = c.signaler
	}
	if c.pollInterval > 0 {
		term.PollInterval = c.pollInterval
	}
	return term
}

func (c *context) lock(ctx stdcontext.Context, cfg *config.Config) (func(), error) {
	fl, err := process.AcquireLock(ctx, cfg.BaseDir)
	if err != nil {
		return nil, err
	}
	c.logger.WithField("path", fl.Path()).Debug("lock acquired")
	return func() { process.ReleaseLock(c.logger, fl) }, nil
}

func (c *context) writeMetrics() {
	if c.metricsFile == "" {
		return
	}
	if err := metrics.WriteTextfile(c.metricsFile); err != nil {
		c.logger.WithError(err).Warn("metrics not written")
	}
}

func envOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
