package cli

import (
	"bytes"
	stdcontext "context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Paintersrp/servectl/internal/config"
	"github.com/Paintersrp/servectl/internal/runtime"
)

const serverCmdline = "/usr/bin/python3 /srv/app/.venv/bin/uvicorn app.main:app --reload --timeout-keep-alive 60 --port 8080"

// fakeTable is an in-memory process table. Signalled processes leave the table
// when exitOnSignal is set.
type fakeTable struct {
	mu           sync.Mutex
	procs        []runtime.Process
	exitOnSignal bool
}

func (f *fakeTable) Processes(stdcontext.Context) ([]runtime.Process, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]runtime.Process(nil), f.procs...), nil
}

func (f *fakeTable) Exists(_ stdcontext.Context, pid int32) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.procs {
		if p.PID == pid {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeTable) remove(pid int32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.procs[:0]
	for _, p := range f.procs {
		if p.PID != pid {
			kept = append(kept, p)
		}
	}
	f.procs = kept
}

type recordingSignaler struct {
	mu       sync.Mutex
	table    *fakeTable
	pids     []int32
	signals  []os.Signal
	errs     map[int32]error
	onSignal func(pid int32)
}

func (r *recordingSignaler) Signal(pid int32, sig os.Signal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pids = append(r.pids, pid)
	r.signals = append(r.signals, sig)
	if r.onSignal != nil {
		r.onSignal(pid)
	}
	if err := r.errs[pid]; err != nil {
		return err
	}
	if r.table != nil && r.table.exitOnSignal {
		r.table.remove(pid)
	}
	return nil
}

type harness struct {
	base     string
	table    *fakeTable
	signaler *recordingSignaler
}

func newHarness(t *testing.T, procs ...runtime.Process) *harness {
	t.Helper()
	clearServectlEnv(t)
	table := &fakeTable{procs: procs}
	return &harness{
		base:     t.TempDir(),
		table:    table,
		signaler: &recordingSignaler{table: table},
	}
}

func (h *harness) run(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	return h.runContext(t, stdcontext.Background(), args...)
}

func (h *harness) runContext(t *testing.T, ctx stdcontext.Context, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	cmd, cliCtx := newRootCommand()
	cliCtx.table = h.table
	cliCtx.signaler = h.signaler
	cliCtx.pollInterval = 5 * time.Millisecond

	outBuf := &bytes.Buffer{}
	errBuf := &bytes.Buffer{}
	cmd.SetOut(outBuf)
	cmd.SetErr(errBuf)
	cmd.SetArgs(append([]string{"--base-dir", h.base}, args...))

	err = cmd.ExecuteContext(ctx)
	return outBuf.String(), errBuf.String(), err
}

func (h *harness) writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(h.base, config.DefaultFileName)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func (h *harness) writeLog(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(h.base, config.DefaultLogPath)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

// clearServectlEnv blanks every SERVECTL_* override for the test. Empty values
// are ignored by the loader.
func clearServectlEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		config.EnvBaseDir,
		config.EnvPort,
		config.EnvKeepAlive,
		config.EnvReload,
		config.EnvMatch,
		config.EnvLogFile,
		config.EnvMetricsFile,
		config.EnvLogLevel,
	} {
		t.Setenv(key, "")
	}
}

func requireExitCode(t *testing.T, err error, code int) {
	t.Helper()
	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	require.Equal(t, code, exitErr.Code)
}
