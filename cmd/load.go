package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/sells-group/student-map/internal/ingest"
	"github.com/sells-group/student-map/internal/store"
)

var loadSave bool

var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Fetch every source and report what loaded",
	Long:  "Fetches all configured sources once, prints per-source counts, and with --save stores them as snapshots for serve --from-snapshot.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("load"); err != nil {
			return err
		}

		var st store.Store
		if loadSave {
			s, err := requireStore(ctx, "--save")
			if err != nil {
				return err
			}
			defer s.Close() //nolint:errcheck
			st = s
		}

		results := fillMarkers(ctx, newMarkerStore(), st, false)
		formatLoadResults(os.Stdout, results)
		return nil
	},
}

func init() {
	loadCmd.Flags().BoolVar(&loadSave, "save", false, "save loaded records as snapshots in the store")
	rootCmd.AddCommand(loadCmd)
}

// formatLoadResults writes one line per source to out.
func formatLoadResults(out io.Writer, results []ingest.Result) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "SOURCE\tLOADED\tDROPPED\tDURATION\tERROR")
	for _, r := range results {
		errMsg := "-"
		if r.Err != nil {
			errMsg = truncate(r.Err.Error(), 60)
		}
		_, _ = fmt.Fprintf(w, "%s\t%d\t%d\t%s\t%s\n",
			r.Source, r.Loaded, r.Dropped, r.Duration.Round(time.Millisecond), errMsg)
	}
	_ = w.Flush()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
