package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"site-timelapse/pkg/app"
	"site-timelapse/pkg/archive"
	"site-timelapse/pkg/config"
	"site-timelapse/pkg/services/indexer"
)

func newIndexCommand(ctx *commandContext) *cobra.Command {
	indexCmd := &cobra.Command{
		Use:   "index",
		Short: "Maintain the frame index side files",
	}
	indexCmd.AddCommand(newIndexBuildCommand(ctx))
	indexCmd.AddCommand(newIndexRefreshCommand(ctx))
	return indexCmd
}

func openIndex(cmd *cobra.Command) (*archive.Index, error) {
	store, err := app.OpenArchive(cmd.Context(), &config.AppConfig)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(config.AppConfig.IndexDir, 0755); err != nil {
		return nil, err
	}
	return archive.NewIndex(store, archive.NewIndexCache(config.AppConfig.IndexDir)), nil
}

func newIndexBuildCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "build <owner/collection/device>",
		Short: "Rebuild the side file of one camera from a full archive listing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tags, err := parseCamera(args[0])
			if err != nil {
				return err
			}
			index, err := openIndex(cmd)
			if err != nil {
				return err
			}
			start := time.Now()
			n, err := index.BuildSideFile(cmd.Context(), tags)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Indexed %d frames for %s in %s\n", n, tags, time.Since(start).Round(time.Millisecond))
			return nil
		},
	}
}

func newIndexRefreshCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Rebuild the side file of every indexed camera",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := openIndex(cmd)
			if err != nil {
				return err
			}
			n, err := indexer.NewRefresher(index, config.AppConfig.IndexDir, 0).RefreshAll(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Refreshed %d cameras\n", n)
			return nil
		},
	}
}
