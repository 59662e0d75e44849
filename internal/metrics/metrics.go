package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registry = prometheus.NewRegistry()

	lastLaunchTime = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "servectl",
		Name:      "last_launch_timestamp_seconds",
		Help:      "Unix time of the most recent server launch.",
	}, []string{"server"})

	lastLaunchPID = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "servectl",
		Name:      "last_launch_pid",
		Help:      "Process identifier of the most recently launched server.",
	}, []string{"server"})

	matchedProcesses = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "servectl",
		Name:      "matched_processes",
		Help:      "Processes whose command line matched the server invocation at the last lookup.",
	}, []string{"server"})

	signalsSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "servectl",
		Name:      "signals_sent_total",
		Help:      "Signals delivered to matched server processes.",
	}, []string{"server", "signal"})

	notRunning = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "servectl",
		Name:      "not_running_total",
		Help:      "Lookups that found no matching server process.",
	}, []string{"server"})

	buildInfo = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "servectl",
		Name:      "build_info",
		Help:      "Build metadata for the running servectl binary.",
	}, []string{"go_version", "vcs", "vcs_revision", "vcs_time", "vcs_modified"})

	buildInfoOnce sync.Once
)

func init() {
	registry.MustRegister(lastLaunchTime, lastLaunchPID, matchedProcesses, signalsSent, notRunning, buildInfo)
}

// Registry returns the Prometheus registry containing all servectl metrics.
func Registry() *prometheus.Registry {
	return registry
}

// RecordLaunch notes a successful server start.
func RecordLaunch(server string, pid int, at time.Time) {
	lastLaunchTime.WithLabelValues(server).Set(float64(at.Unix()))
	lastLaunchPID.WithLabelValues(server).Set(float64(pid))
}

// RecordLookup stores the number of processes matched by a lookup.
func RecordLookup(server string, matched int) {
	matchedProcesses.WithLabelValues(server).Set(float64(matched))
	if matched == 0 {
		notRunning.WithLabelValues(server).Inc()
	}
}

// AddSignals counts n deliveries of signal.
func AddSignals(server, signal string, n int) {
	if n <= 0 {
		return
	}
	signalsSent.WithLabelValues(server, signal).Add(float64(n))
}

// EmitBuildInfo publishes build metadata about the running binary.
func EmitBuildInfo() {
	buildInfoOnce.Do(func() {
		labels := prometheus.Labels{
			"go_version":   runtime.Version(),
			"vcs":          "",
			"vcs_revision": "",
			"vcs_time":     "",
			"vcs_modified": "",
		}
		if info, ok := debug.ReadBuildInfo(); ok {
			if info.GoVersion != "" {
				labels["go_version"] = info.GoVersion
			}
			for _, setting := range info.Settings {
				switch setting.Key {
				case "vcs":
					labels["vcs"] = setting.Value
				case "vcs.revision":
					labels["vcs_revision"] = setting.Value
				case "vcs.time":
					labels["vcs_time"] = setting.Value
				case "vcs.modified":
					labels["vcs_modified"] = setting.Value
				}
			}
		}
		buildInfo.With(labels).Set(1)
	})
}

// WriteTextfile writes the registry in the text exposition format to path,
// suitable for the node exporter textfile collector. The write is atomic.
func WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, registry); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	return nil
}
