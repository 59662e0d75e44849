package cli

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/spf13/cobra"

	"github.com/Paintersrp/servectl/internal/cliutil"
	"github.com/Paintersrp/servectl/internal/logtail"
)

func newLogsCmd(ctx *context) *cobra.Command {
	var (
		follow bool
		lines  int
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Print the server log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.loadConfig(nil)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			var encoder *cliutil.LineEncoder
			if asJSON {
				encoder = cliutil.NewLineEncoder(cfg.Server.Name, out, cmd.ErrOrStderr())
				out = encoder
			}

			if follow {
				return logtail.Follow(cmd.Context(), cfg.Log.Path, out, logtail.Options{Lines: lines})
			}

			tail, err := logtail.Tail(cfg.Log.Path, lines)
			if errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("no log for %s at %s", cfg.Server.Name, cfg.Log.Path)
			}
			if err != nil {
				return err
			}
			for _, line := range tail {
				if encoder != nil {
					encoder.EncodeLine(line)
					continue
				}
				fmt.Fprintln(out, line)
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing lines as they are appended")
	cmd.Flags().IntVarP(&lines, "lines", "n", logtail.DefaultLines, "Number of lines to print (negative prints the whole file)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit one JSON record per line")
	return cmd
}
