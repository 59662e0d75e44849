package metrics_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Paintersrp/servectl/internal/metrics"
)

func TestWriteTextfileExposesMetrics(t *testing.T) {
	server := "metrics_test_server"

	metrics.EmitBuildInfo()
	metrics.RecordLaunch(server, 4242, time.Unix(1700000000, 0))
	metrics.RecordLookup(server, 0)
	metrics.AddSignals(server, "terminated", 2)

	path := filepath.Join(t.TempDir(), "textfile", "servectl.prom")
	require.NoError(t, metrics.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	body := string(data)

	for _, want := range []string{
		`servectl_last_launch_pid{server="metrics_test_server"} 4242`,
		`servectl_last_launch_timestamp_seconds{server="metrics_test_server"} 1.7e+09`,
		`servectl_matched_processes{server="metrics_test_server"} 0`,
		`servectl_not_running_total{server="metrics_test_server"} 1`,
		`servectl_signals_sent_total{server="metrics_test_server",signal="terminated"} 2`,
		"servectl_build_info{",
		"go_version=",
	} {
		require.True(t, strings.Contains(body, want), "missing %q in:\n%s", want, body)
	}
}

func TestWriteTextfileEmptyPathIsNoop(t *testing.T) {
	require.NoError(t, metrics.WriteTextfile(""))
}
