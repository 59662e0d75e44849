//go:build !windows

package process

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/Paintersrp/servectl/internal/config"
)

func shellConfig(t *testing.T, script string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	// Trailing launch flags become positional parameters of the script.
	cfg.Server.Command = []string{"/bin/sh", "-c", script, "server"}
	cfg.Server.Env = map[string]string{"GREETING": "hello"}
	require.NoError(t, cfg.Resolve(dir))
	return cfg
}

func waitExited(t *testing.T, srv *Server) {
	t.Helper()
	select {
	case <-srv.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("server pid %d did not exit", srv.PID)
	}
}

func TestLaunchAppendsOutputToLog(t *testing.T) {
	cfg := shellConfig(t, `echo "base=$BASE_DIR greeting=$GREETING args=$*"; echo oops >&2`)

	srv, err := Launch(context.Background(), cfg)
	require.NoError(t, err)
	waitExited(t, srv)
	require.NoError(t, srv.Err())

	srv, err = Launch(context.Background(), cfg)
	require.NoError(t, err)
	waitExited(t, srv)

	data, err := os.ReadFile(filepath.Join(cfg.BaseDir, "logs", "server.log"))
	require.NoError(t, err)
	log := string(data)
	want := fmt.Sprintf("base=%s greeting=hello args=--reload --timeout-keep-alive 60 --port 8080", cfg.BaseDir)
	require.Equal(t, 2, strings.Count(log, want), log)
	require.Equal(t, 2, strings.Count(log, "oops"), log)
}

func TestLaunchDoesNotWaitForServer(t *testing.T) {
	cfg := shellConfig(t, "sleep 30")

	start := time.Now()
	srv, err := Launch(context.Background(), cfg)
	require.NoError(t, err)
	require.Less(t, time.Since(start), 5*time.Second)
	t.Cleanup(func() {
		_ = syscall.Kill(srv.PID, syscall.SIGKILL)
		<-srv.Done()
	})

	select {
	case <-srv.Done():
		t.Fatalf("server exited early: %v", srv.Err())
	default:
	}

	sid, err := unix.Getsid(srv.PID)
	require.NoError(t, err)
	require.Equal(t, srv.PID, sid, "server should lead its own session")
}

func TestLaunchReportsMissingExecutable(t *testing.T) {
	cfg := shellConfig(t, "true")
	cfg.Server.Command = []string{filepath.Join(cfg.BaseDir, "does-not-exist")}

	_, err := Launch(context.Background(), cfg)
	require.Error(t, err)
	require.Contains(t, err.Error(), "start server")
}

func TestFindAndStopRealProcess(t *testing.T) {
	token := fmt.Sprintf("servectl-test-%d", time.Now().UnixNano())
	cmd := exec.Command("/bin/sh", "-c", "sleep 30; : "+token)
	require.NoError(t, cmd.Start())
	exited := make(chan struct{})
	go func() {
		_ = cmd.Wait()
		close(exited)
	}()
	t.Cleanup(func() {
		_ = cmd.Process.Kill()
		<-exited
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	table := NewTable()
	var matches []int32
	require.Eventually(t, func() bool {
		procs, err := NewFinder(table).Find(ctx, token)
		if err != nil || len(procs) == 0 {
			return false
		}
		matches = matches[:0]
		for _, p := range procs {
			matches = append(matches, p.PID)
		}
		return true
	}, 5*time.Second, 20*time.Millisecond)
	require.Equal(t, []int32{int32(cmd.Process.Pid)}, matches)

	procs, err := NewFinder(table).Find(ctx, token)
	require.NoError(t, err)
	term := NewTerminator(table, nil)
	result, err := term.Stop(ctx, procs, syscall.SIGTERM)
	require.NoError(t, err)
	require.Equal(t, matches, result.Signalled())
	require.NoError(t, term.Wait(ctx, result.Signalled(), 5*time.Second))
}

func TestParseSignal(t *testing.T) {
	cases := map[string]os.Signal{
		"":        syscall.SIGTERM,
		"term":    syscall.SIGTERM,
		"SIGINT":  syscall.SIGINT,
		"kill":    syscall.SIGKILL,
		"HUP":     syscall.SIGHUP,
		"sigquit": syscall.SIGQUIT,
	}
	for name, want := range cases {
		got, err := ParseSignal(name)
		require.NoError(t, err, name)
		require.Equal(t, want, got, name)
	}
	_, err := ParseSignal("USR1")
	require.Error(t, err)
}
