package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"

	"go-video-bot/internal/database"
	"go-video-bot/internal/models"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var ledgerTopFlag int

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Inspect the user ledger",
}

var ledgerStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print total users, downloads and volume",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLedger(func(l database.Ledger) error {
			stats, err := l.Snapshot()
			if err != nil {
				return err
			}
			printStats(cmd.OutOrStdout(), stats)
			return nil
		})
	},
}

var ledgerTopCmd = &cobra.Command{
	Use:   "top",
	Short: "Print the users with the most downloads",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLedger(func(l database.Ledger) error {
			users, err := l.Top(ledgerTopFlag)
			if err != nil {
				return err
			}
			return printUsers(cmd.OutOrStdout(), users)
		})
	},
}

func init() {
	rootCmd.AddCommand(ledgerCmd)
	ledgerCmd.AddCommand(ledgerStatsCmd)
	ledgerCmd.AddCommand(ledgerTopCmd)
	ledgerTopCmd.Flags().IntVarP(&ledgerTopFlag, "limit", "n", 10, "Number of users to show")
}

func withLedger(fn func(database.Ledger) error) error {
	l, err := database.Open(globalConfig.Ledger)
	if err != nil {
		return fmt.Errorf("failed to open ledger: %w", err)
	}
	defer func() {
		if err := l.Close(); err != nil {
			log.WithError(err).Warn("Failed to close ledger")
		}
	}()
	return fn(l)
}

func printStats(w io.Writer, s models.Stats) {
	fmt.Fprintf(w, "Users:     %d\n", s.TotalUsers)
	fmt.Fprintf(w, "Downloads: %d\n", s.TotalDownloads)
	fmt.Fprintf(w, "Volume:    %.1f MB\n", s.TotalSizeMB)
}

func printUsers(w io.Writer, users []models.UserRecord) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tID\tNAME\tUSERNAME\tDOWNLOADS\tSIZE (MB)\tLAST ACTIVE")
	for i, u := range users {
		username := "-"
		if u.Username != "" {
			username = "@" + u.Username
		}
		fmt.Fprintf(tw, "%d\t%d\t%s\t%s\t%d\t%.1f\t%s\n",
			i+1, u.ID, u.FirstName, username, u.Downloads, u.TotalSizeMB, u.LastActive.Format("2006-01-02 15:04"))
	}
	return tw.Flush()
}

