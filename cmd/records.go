package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/amirhossein5/facecheck/internal/models"
)

var recordsCmd = &cobra.Command{
	Use:   "records",
	Short: "List attendance records",
	Args:  cobra.NoArgs,
	RunE:  runRecords,
}

func init() {
	recordsCmd.Flags().String("day", "", "Only records of this day (YYYY-MM-DD, or \"today\")")
	recordsCmd.Flags().Bool("counts", false, "Show attendance days per person instead")
	rootCmd.AddCommand(recordsCmd)
}

func runRecords(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	store, closeDB, err := a.openStore()
	if err != nil {
		return err
	}
	defer closeDB()

	ctx := cmd.Context()
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer w.Flush()

	if mustGetBool(cmd, "counts") {
		counts, err := store.CountBySubject(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, "ID\tNAME\tDAYS")
		for _, c := range counts {
			fmt.Fprintf(w, "%s\t%s\t%d\n", c.SubjectIdentifier, c.DisplayName, c.Count)
		}
		return nil
	}

	var records []models.AttendanceRecord
	if day := mustGetString(cmd, "day"); day != "" {
		loc, err := a.cfg.Location()
		if err != nil {
			return err
		}
		t := time.Now().In(loc)
		if day != "today" {
			if t, err = time.ParseInLocation(models.DayLayout, day, loc); err != nil {
				return fmt.Errorf("invalid --day %q: %w", day, err)
			}
		}
		records, err = store.ForDay(ctx, t)
		if err != nil {
			return err
		}
	} else {
		records, err = store.All(ctx)
		if err != nil {
			return err
		}
	}

	fmt.Fprintln(w, "ID\tNAME\tTIME\tLOCATION\tSTATUS")
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			r.SubjectIdentifier, r.DisplayName, r.Timestamp.Format(time.DateTime), r.Location, r.Status)
	}
	return nil
}
