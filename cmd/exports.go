package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/student-map/internal/geo"
	"github.com/sells-group/student-map/internal/model"
	"github.com/sells-group/student-map/internal/store"
)

var exportsCmd = &cobra.Command{
	Use:   "exports",
	Short: "Inspect the export log",
}

// -- exports list --

var exportsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent buffer exports",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := requireStore(ctx, "exports list")
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		limit, _ := cmd.Flags().GetInt("limit")
		sessionID, _ := cmd.Flags().GetString("session")

		events, err := st.ListExports(ctx, store.ExportFilter{SessionID: sessionID, Limit: limit})
		if err != nil {
			return eris.Wrap(err, "exports list")
		}

		if len(events) == 0 {
			fmt.Fprintln(os.Stderr, "No exports found.")
			return nil
		}

		formatExportsList(os.Stdout, events)
		return nil
	},
}

func init() {
	exportsListCmd.Flags().Int("limit", 50, "max number of exports to display")
	exportsListCmd.Flags().String("session", "", "only show exports of this session id")

	exportsCmd.AddCommand(exportsListCmd)
	rootCmd.AddCommand(exportsCmd)
}

// formatExportsList writes a tabular list of export events to out.
func formatExportsList(out io.Writer, events []model.ExportEvent) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tCREATED\tCENTER\tRADIUS_MI\tRECORDS\tSINK\tFILENAME")
	for _, e := range events {
		id := e.ID
		if len(id) > 8 {
			id = id[:8]
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%.4f,%.4f\t%.1f\t%d\t%s\t%s\n",
			id,
			e.CreatedAt.UTC().Format("2006-01-02 15:04"),
			e.Center.Lat, e.Center.Lon,
			e.RadiusMeters/geo.MetersPerMile,
			e.RecordCount,
			e.Sink,
			e.Filename,
		)
	}
	_ = w.Flush()
}
