package app

import (
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/retouch/retouch/configs"
	"github.com/retouch/retouch/internal/journal"
)

var (
	journalSince  string
	journalFormat string
	journalLimit  int
	journalPurge  string
	journalSearch string
)

func init() {
	rootCmd.AddCommand(journalCmd)

	journalCmd.Flags().StringVarP(&journalSince, "since", "s", "",
		`Only list entries after a date or a duration ("2h", "2024-03-01")`)
	journalCmd.Flags().StringVarP(&journalFormat, "format", "f", "",
		"Entry template (text/template with sprig functions)")
	journalCmd.Flags().IntVarP(&journalLimit, "limit", "n", 0,
		"Only list the most recent entries")
	journalCmd.Flags().StringVarP(&journalSearch, "search", "q", "",
		`Filter entries ("command:blur is:failed", "-kind:Busy", "trace:4bf9")`)
	journalCmd.Flags().StringVar(&journalPurge, "purge", "",
		"Delete the entries older than a date or a duration")
}

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "List the recorded commands",
	Args:  cobra.NoArgs,
	RunE:  runJournal,
}

func runJournal(cmd *cobra.Command, _ []string) error {
	if !configs.Config.Journal.Enabled {
		return errors.New("the journal is disabled")
	}
	if err := openJournal(); err != nil {
		return err
	}
	now := time.Now()

	if journalPurge != "" {
		before, err := journal.ParseSince(journalPurge, now)
		if err != nil {
			return err
		}
		n, err := journal.Entries.Purge(before)
		if err != nil {
			return err
		}
		log.WithField("before", before).Infof("%d entries deleted", n)
		return nil
	}

	since, err := journal.ParseSince(journalSince, now)
	if err != nil {
		return err
	}

	filters, err := journal.ParseSearch(journalSearch)
	if err != nil {
		return fmt.Errorf("invalid search: %w", err)
	}

	f, err := journal.NewFormatter(journalFormat)
	if err != nil {
		return fmt.Errorf("invalid format: %w", err)
	}

	entries, err := journal.Entries.List(since, journalLimit, filters...)
	if err != nil {
		return err
	}
	return f.Write(cmd.OutOrStdout(), entries)
}
