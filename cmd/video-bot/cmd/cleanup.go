package cmd

import (
	"fmt"
	"time"

	"go-video-bot/internal/storage"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var cleanupMaxAgeFlag time.Duration

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove leftover files from the download directory",
	Long: `Deletes files in the download directory older than --max-age.
A max age of 0 removes every file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		j := storage.JanitorFromConfig(globalConfig)
		removed, err := j.Sweep(cleanupMaxAgeFlag)
		fmt.Fprintf(cmd.OutOrStdout(), "Removed %d file(s) from %s\n", removed, j.Dir())
		if err != nil {
			log.WithError(err).Warn("Some files could not be removed")
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(cleanupCmd)
	cleanupCmd.Flags().DurationVar(&cleanupMaxAgeFlag, "max-age", time.Hour, "Only remove files older than this")
}
