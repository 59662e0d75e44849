package process

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"

	"github.com/Paintersrp/servectl/internal/config"
)

// Server is a launched, detached server process.
type Server struct {
	PID     int
	Argv    []string
	LogPath string

	done chan struct{}
	err  error
}

// Done is closed if the server exits while the launching process is still
// alive. It never closes once servectl itself has exited.
func (s *Server) Done() <-chan struct{} {
	return s.done
}

// Err returns the exit error after Done is closed.
func (s *Server) Err() error {
	<-s.done
	return s.err
}

// Launch starts the server described by cfg, detached from the calling
// terminal, with stdout and stderr appended to cfg.Log.Path. Only failures to
// execute the command are reported. A server that starts and then crashes is
// only visible in its log.
func Launch(ctx context.Context, cfg *config.Config) (*Server, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	argv := cfg.Argv()
	if len(argv) == 0 {
		return nil, fmt.Errorf("launch %s: empty command", cfg.Server.Name)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Log.Path), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	logFile, err := os.OpenFile(cfg.Log.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	// The child holds its own descriptor after Start.
	defer logFile.Close()

	devNull, err := os.Open(os.DevNull)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", os.DevNull, err)
	}
	defer devNull.Close()

	// Not CommandContext: cancelling the launcher must not kill the server.
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = cfg.BaseDir
	cmd.Env = serverEnv(os.Environ(), cfg)
	cmd.Stdin = devNull
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	configureDetached(cmd)

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start server %s: %w", cfg.Server.Name, err)
	}

	srv := &Server{
		PID:     cmd.Process.Pid,
		Argv:    argv,
		LogPath: cfg.Log.Path,
		done:    make(chan struct{}),
	}
	// Reap the child if it exits before we do so it does not linger as a
	// zombie while the log is being followed.
	go func() {
		srv.err = cmd.Wait()
		close(srv.done)
	}()
	return srv, nil
}

// serverEnv layers the configured variables and the base-directory export on
// top of base. Later entries win when exec deduplicates the environment.
func serverEnv(base []string, cfg *config.Config) []string {
	env := append([]string(nil), base...)
	keys := make([]string, 0, len(cfg.Server.Env))
	for k := range cfg.Server.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, fmt.Sprintf("%s=%s", k, cfg.Server.Env[k]))
	}
	if cfg.Server.BaseDirEnv != "" && cfg.BaseDir != "" {
		env = append(env, fmt.Sprintf("%s=%s", cfg.Server.BaseDirEnv, cfg.BaseDir))
	}
	return env
}
