package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vnnovate/relations-cli/internal/dedupe"
	"github.com/vnnovate/relations-cli/internal/table"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <file>",
	Short: "Classify columns and summarize duplicates within one file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := table.Read(args[0])
		if err != nil {
			return err
		}

		groups, cols := dedupe.SummarizeFile(t)
		fmt.Printf("rows:          %d\n", len(t.Rows))
		fmt.Printf("phone column:  %s\n", orNone(cols.Phone))
		if len(cols.PhoneCandidates) > 1 {
			fmt.Printf("  coalesced from: %v\n", cols.PhoneCandidates)
		}
		fmt.Printf("email column:  %s\n", orNone(cols.Email))
		if len(cols.EmailCandidates) > 1 {
			fmt.Printf("  candidates (first wins): %v\n", cols.EmailCandidates)
		}
		fmt.Printf("name columns:  %v\n", cols.Names)
		fmt.Printf("duplicate groups: combined %d, phone-only %d, email-only %d\n",
			len(groups.Combined), len(groups.Phone), len(groups.Email))

		flagged := 0
		flags, _ := dedupe.MarkDuplicates(t)
		for _, f := range flags {
			if f.Any() {
				flagged++
			}
		}
		fmt.Printf("duplicate rows:   %d of %d\n", flagged, len(flags))
		return nil
	},
}

func orNone(s string) string {
	if s == "" {
		return "(none detected)"
	}
	return s
}

func init() {
	rootCmd.AddCommand(inspectCmd)
}
