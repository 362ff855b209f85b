package cli

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"moldmap/internal/store"
)

// JobsCmd returns the jobs command.
func JobsCmd() *cobra.Command {
	var cfgPath string

	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List stored mapping jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cfgPath)
			if err != nil {
				return err
			}
			db, err := store.Open(cfg.Store.Path)
			if err != nil {
				return err
			}
			defer db.Close()

			ctx := context.Background()
			jobs, err := db.ListJobs(ctx)
			if err != nil {
				return err
			}
			if len(jobs) == 0 {
				fmt.Println("no jobs")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tSTATUS\tVISITED\tCREATED")
			for _, j := range jobs {
				visited, _ := db.VisitedCount(ctx, j.ID)
				wps, _ := db.LoadWaypoints(ctx, j.ID)
				fmt.Fprintf(w, "%s\t%s\t%s\t%d/%d\t%s\n",
					j.ID, j.Name, statusColored(j.Status), visited, len(wps),
					j.CreatedAt.Format("2006-01-02 15:04"))
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	return cmd
}

func statusColored(status string) string {
	switch status {
	case store.StatusCompleted:
		return color.GreenString(status)
	case store.StatusError:
		return color.RedString(status)
	case store.StatusMapping:
		return color.YellowString(status)
	default:
		return status
	}
}
