package main

import (
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"site-timelapse/pkg/app"
	"site-timelapse/pkg/config"
	"site-timelapse/pkg/models"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	jobsCmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect job records",
	}
	jobsCmd.AddCommand(newJobsListCommand(ctx))
	return jobsCmd
}

func newJobsListCommand(ctx *commandContext) *cobra.Command {
	var kind string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			k := models.JobKind(kind)
			switch k {
			case "", models.KindVideo, models.KindPhoto:
			default:
				return fmt.Errorf("unknown job kind %q", kind)
			}
			if config.AppConfig.StoreDriver != "postgres" {
				if err := ctx.openDB(); err != nil {
					return err
				}
			}
			store, closeStore, err := app.OpenJobStore(cmd.Context(), &config.AppConfig)
			if err != nil {
				return err
			}
			defer closeStore()

			list, err := store.List(cmd.Context(), k)
			if err != nil {
				return err
			}
			if len(list) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No jobs")
				return nil
			}
			fmt.Fprint(cmd.OutOrStdout(), renderTable(jobColumns, buildJobRows(list)))
			return nil
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "Only list jobs of this kind (video or photo)")
	return cmd
}

var jobColumns = []column{
	{title: "ID"},
	{title: "Kind"},
	{title: "Camera"},
	{title: "Dates"},
	{title: "Status"},
	{title: "Progress", numeric: true},
	{title: "Frames", numeric: true},
	{title: "Size", numeric: true},
	{title: "Created"},
}

func buildJobRows(list []models.Job) [][]string {
	rows := make([][]string, 0, len(list))
	for _, job := range list {
		size := "-"
		if job.SizeBytes > 0 {
			size = humanize.Bytes(uint64(job.SizeBytes))
		}
		rows = append(rows, []string{
			job.ID,
			string(job.Kind),
			job.Tags.String(),
			job.DateRange.Start + ".." + job.DateRange.End,
			string(job.Status),
			strconv.Itoa(job.Progress) + "%",
			strconv.Itoa(job.FrameCount),
			size,
			humanize.Time(job.CreatedAt),
		})
	}
	return rows
}
