package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/seekdata/seekbot/internal/store"
)

var flagSearchLimit int

var searchCmd = &cobra.Command{
	Use:   "search <keyword>",
	Short: "Search loaded records for a substring",
	Long:  "Prints records whose text contains the keyword, case-insensitively, up to the result limit.",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSearch,
}

func init() {
	searchCmd.Flags().IntVar(&flagSearchLimit, "limit", 10, "maximum rows to print")
}

func runSearch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	st, err := store.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return err
	}
	defer st.Close()

	keyword := strings.Join(args, " ")

	rows, total, err := st.Search(context.Background(), keyword, flagSearchLimit)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		fmt.Printf("no matches for %q\n", keyword)
		return nil
	}

	for _, row := range rows {
		fmt.Println(row)
	}
	if remaining := total - int64(len(rows)); remaining > 0 {
		fmt.Printf("...and %d more matches\n", remaining)
	}
	return nil
}
