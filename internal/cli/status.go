package cli

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	units "github.com/docker/go-units"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Paintersrp/servectl/internal/cliutil"
	"github.com/Paintersrp/servectl/internal/metrics"
	"github.com/Paintersrp/servectl/internal/runtime"
)

// statusFixedWidth approximates the PID, PPID and AGE columns plus padding.
const statusFixedWidth = 36

func newStatusCmd(ctx *context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "List running server processes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			defer ctx.writeMetrics()
			cfg, err := ctx.loadConfig(nil)
			if err != nil {
				return err
			}
			matches, err := ctx.finder().Find(cmd.Context(), cfg.Match)
			if err != nil {
				return err
			}
			metrics.RecordLookup(cfg.Server.Name, len(matches))

			out := cmd.OutOrStdout()
			if len(matches) == 0 {
				fmt.Fprintf(out, "%s is not running\n", cfg.Server.Name)
				return &ExitError{Code: ExitNotRunning}
			}
			printStatus(out, matches, time.Now())
			return nil
		},
	}
	return cmd
}

func printStatus(out io.Writer, procs []runtime.Process, now time.Time) {
	width := commandWidth(out)
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PID\tPPID\tAGE\tCOMMAND")
	for _, p := range procs {
		age := "-"
		if !p.Created.IsZero() {
			elapsed := now.Sub(p.Created)
			if elapsed < 0 {
				elapsed = 0
			}
			age = units.HumanDuration(elapsed)
		}
		command := truncate(cliutil.RedactSecrets(p.Cmdline), width)
		fmt.Fprintf(w, "%d\t%d\t%s\t%s\n", p.PID, p.PPID, age, command)
	}
	_ = w.Flush()
}

// commandWidth returns the room left for the command column when out is a
// terminal, or 0 for no limit.
func commandWidth(out io.Writer) int {
	f, ok := out.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return 0
	}
	cols, _, err := term.GetSize(int(f.Fd()))
	if err != nil || cols <= statusFixedWidth {
		return 0
	}
	return cols - statusFixedWidth
}

func truncate(s string, width int) string {
	if width <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= width {
		return s
	}
	if width <= 3 {
		return string(runes[:width])
	}
	return string(runes[:width-3]) + "..."
}
