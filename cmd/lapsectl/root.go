package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"site-timelapse/pkg/config"
	"site-timelapse/pkg/database"
	"site-timelapse/pkg/logging"
	"site-timelapse/pkg/models"
)

type commandContext struct {
	configPath string
	verbose    bool
	dbReady    bool
}

func (c *commandContext) load() error {
	level := "warn"
	if c.verbose {
		level = "debug"
	}
	logging.Setup(level)

	path := c.configPath
	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	config.AppConfig = cfg
	return nil
}

// openDB opens the sqlite database of the data directory once.
func (c *commandContext) openDB() error {
	if c.dbReady {
		return nil
	}
	if err := os.MkdirAll(config.AppConfig.DataDir, 0755); err != nil {
		return err
	}
	if err := database.InitDB(); err != nil {
		return err
	}
	c.dbReady = true
	return nil
}

func newRootCommand() *cobra.Command {
	ctx := &commandContext{}

	rootCmd := &cobra.Command{
		Use:           "lapsectl",
		Short:         "Administer a site-timelapse data directory",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return ctx.load()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&ctx.configPath, "config", "c", "", "Configuration file path (default $CONFIG_FILE)")
	rootCmd.PersistentFlags().BoolVarP(&ctx.verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(newIndexCommand(ctx))
	rootCmd.AddCommand(newJobsCommand(ctx))
	rootCmd.AddCommand(newUsersCommand(ctx))

	return rootCmd
}

// parseCamera parses "owner/collection/device".
func parseCamera(arg string) (models.Tags, error) {
	parts := strings.Split(strings.Trim(arg, "/"), "/")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return models.Tags{}, fmt.Errorf("camera must be owner/collection/device, got %q", arg)
	}
	return models.Tags{Owner: parts[0], Collection: parts[1], Device: parts[2]}, nil
}
