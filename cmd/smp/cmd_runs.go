package main

import (
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/talgya/smpsim/internal/report"
)

func newRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs [run-id|last]",
		Short: "List stored runs, or show one run's history",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd)
			if err != nil {
				return err
			}
			defer a.close()
			format, err := report.ParseFormat(mustString(cmd, "format"))
			if err != nil {
				return err
			}

			db, err := a.openDB()
			if err != nil {
				return err
			}
			if db == nil {
				return errors.New("no database configured")
			}
			defer db.Close()

			if len(args) == 0 {
				limit, _ := cmd.Flags().GetInt("limit")
				runs, err := db.Runs(limit)
				if err != nil {
					return err
				}
				return report.Write(a.out, format, report.Runs(runs, time.Now()))
			}

			id := args[0]
			if id == "last" {
				if id, err = db.LastRun(); err != nil {
					return err
				}
			}
			if _, err := db.Run(id); err != nil {
				return err
			}
			names, err := db.ActorNames(id)
			if err != nil {
				return err
			}
			dims, err := db.DimNames(id)
			if err != nil {
				return err
			}
			pts, err := db.PositionHistory(id)
			if err != nil {
				return err
			}
			probs, err := db.ProbHistory(id)
			if err != nil {
				return err
			}
			tables := report.StoredPositionHistory(names, dims, pts)
			tables = append(tables, report.StoredProbHistory(names, probs))
			return report.Write(a.out, format, tables...)
		},
	}
	cmd.Flags().Int("limit", 20, "number of runs to list")
	cmd.Flags().StringP("format", "f", "table", "output: table or csv")
	return cmd
}
