//go:build !windows

package cli

import (
	stdcontext "context"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/Paintersrp/servectl/internal/runtime"
	"github.com/Paintersrp/servectl/internal/runtime/process"
)

var startedPattern = regexp.MustCompile(`Started (\S+) \(pid (\d+)\), logging to (\S+)`)

func shellServerConfig(script string) string {
	return manifest(
		"version: 0.1",
		"server:",
		"  name: api",
		`  command: ["/bin/sh", "-c", "`+script+`"]`,
		"  reload: false",
		"  keepAlive: 0s",
		"  env:",
		"    GREETING: hello-from-server",
	)
}

// startedPID extracts the launched PID and registers a cleanup that kills it.
func startedPID(t *testing.T, stdout string) (int, string) {
	t.Helper()
	m := startedPattern.FindStringSubmatch(stdout)
	require.NotNil(t, m, "unexpected output %q", stdout)
	pid, err := strconv.Atoi(m[2])
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = syscall.Kill(pid, syscall.SIGKILL)
	})
	return pid, m[3]
}

func requireLogContains(t *testing.T, path, want string) {
	t.Helper()
	require.Eventually(t, func() bool {
		data, err := os.ReadFile(path)
		return err == nil && regexp.MustCompile(regexp.QuoteMeta(want)).Match(data)
	}, 5*time.Second, 20*time.Millisecond, "log %s never contained %q", path, want)
}

func TestStartNoFollowLaunchesDetached(t *testing.T) {
	h := newHarness(t)
	h.writeConfig(t, shellServerConfig(`printenv GREETING; printenv BASE_DIR; exec sleep 30`))

	start := time.Now()
	stdout, _, err := h.run(t, "start", "--no-follow")
	require.NoError(t, err)
	require.Less(t, time.Since(start), 5*time.Second)

	pid, logPath := startedPID(t, stdout)
	require.Equal(t, filepath.Join(h.base, "logs", "server.log"), logPath)
	requireLogContains(t, logPath, "hello-from-server\n"+h.base+"\n")

	sid, err := unix.Getsid(pid)
	require.NoError(t, err)
	require.Equal(t, pid, sid)
}

func TestStartAppendsToExistingLog(t *testing.T) {
	h := newHarness(t)
	logPath := h.writeLog(t, "previous run\n")
	h.writeConfig(t, shellServerConfig(`printenv GREETING`))

	stdout, _, err := h.run(t, "start", "--no-follow")
	require.NoError(t, err)
	startedPID(t, stdout)

	requireLogContains(t, logPath, "previous run\nhello-from-server\n")
}

func TestStartReportsMissingExecutable(t *testing.T) {
	h := newHarness(t)
	h.writeConfig(t, manifest(
		"version: 0.1",
		"server:",
		`  command: ["/nonexistent/servectl-test-binary"]`,
	))

	_, _, err := h.run(t, "start", "--no-follow")
	require.Error(t, err)
	require.Contains(t, err.Error(), "start server server")
}

func TestStartFollowsLogUntilInterrupted(t *testing.T) {
	h := newHarness(t)
	h.writeConfig(t, shellServerConfig(`sleep 0.2; printenv GREETING; exec sleep 30`))

	ctx, cancel := stdcontext.WithTimeout(stdcontext.Background(), 2*time.Second)
	defer cancel()

	stdout, _, err := h.runContext(t, ctx, "start")
	require.NoError(t, err)
	startedPID(t, stdout)
	require.Contains(t, stdout, "hello-from-server\n")
}

func TestRestartStopsThenStarts(t *testing.T) {
	h := newHarness(t, runtime.Process{PID: 900040, PPID: 1, Cmdline: "uvicorn app.main:app --port 8080"})
	h.table.exitOnSignal = true
	h.writeConfig(t, shellServerConfig(`printenv GREETING; exec sleep 30`))

	stdout, _, err := h.run(t, "restart", "--no-follow", "--match", "uvicorn app.main:app")
	require.NoError(t, err)
	require.Contains(t, stdout, "Sent SIGTERM to api (pid 900040)\n")
	require.Equal(t, []int32{900040}, h.signaler.pids)

	_, logPath := startedPID(t, stdout)
	requireLogContains(t, logPath, "hello-from-server")
}

func TestRestartWhenNotRunning(t *testing.T) {
	h := newHarness(t)
	h.writeConfig(t, shellServerConfig(`printenv GREETING`))

	stdout, _, err := h.run(t, "restart", "--no-follow")
	require.NoError(t, err)
	require.Contains(t, stdout, "api was not running\n")
	startedPID(t, stdout)
}

func TestRestartHoldsLockUntilLaunched(t *testing.T) {
	h := newHarness(t, runtime.Process{PID: 900040, PPID: 1, Cmdline: serverCmdline})
	h.table.exitOnSignal = true
	h.writeConfig(t, shellServerConfig(`printenv GREETING; exec sleep 30`))
	logPath := filepath.Join(h.base, "logs", "server.log")

	heldDuringStop := make(chan bool, 1)
	logOnAcquire := make(chan bool, 1)
	h.signaler.onSignal = func(int32) {
		ctx, cancel := stdcontext.WithTimeout(stdcontext.Background(), 20*time.Millisecond)
		fl, err := process.AcquireLock(ctx, h.base)
		cancel()
		heldDuringStop <- err != nil
		process.ReleaseLock(nil, fl)

		// A competing invocation only gets the lock once the server is up.
		go func() {
			ctx, cancel := stdcontext.WithTimeout(stdcontext.Background(), 10*time.Second)
			defer cancel()
			fl, err := process.AcquireLock(ctx, h.base)
			if err != nil {
				logOnAcquire <- false
				return
			}
			defer process.ReleaseLock(nil, fl)
			_, statErr := os.Stat(logPath)
			logOnAcquire <- statErr == nil
		}()
	}

	stdout, _, err := h.run(t, "restart", "--no-follow")
	require.NoError(t, err)
	startedPID(t, stdout)

	require.True(t, <-heldDuringStop, "lock was free while stopping")
	select {
	case ok := <-logOnAcquire:
		require.True(t, ok, "lock was released before the server was launched")
	case <-time.After(10 * time.Second):
		t.Fatal("lock never released after restart")
	}
}
