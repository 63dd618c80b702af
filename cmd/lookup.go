package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/vnnovate/relations-cli/internal/catalog"
	"github.com/vnnovate/relations-cli/internal/relations"
)

var (
	lookupPhone      string
	lookupEmail      string
	lookupDatasetIDs []int64
	lookupJSON       bool
)

var lookupCmd = &cobra.Command{
	Use:   "lookup",
	Short: "Show the raw records behind a duplicate group",
	Long:  "Re-reads the source files and prints every row whose normalized phone/email matches. Live file read, not an index query.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if lookupPhone == "" && lookupEmail == "" {
			return eris.New("at least one of --phone or --email is required")
		}

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		records, err := env.Relations.LookupRecords(ctx, relations.LookupRequest{
			Datasets: catalog.Filter(env.Datasets, lookupDatasetIDs),
			Phone:    lookupPhone,
			Email:    lookupEmail,
		})
		if err != nil {
			return err
		}

		if lookupJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(records)
		}

		if len(records) == 0 {
			fmt.Println("no matching records")
			return nil
		}
		for _, fr := range records {
			fmt.Printf("%s (dataset %d, %d record(s), phone col %q, email col %q)\n",
				fr.FileName, fr.DatasetID, len(fr.Records), fr.PhoneColumn, fr.EmailColumn)
			for _, rec := range fr.Records {
				for _, col := range fr.Columns {
					if v := rec[col]; v != "" {
						fmt.Printf("    %s: %s\n", col, v)
					}
				}
				fmt.Println()
			}
		}
		return nil
	},
}

func init() {
	lookupCmd.Flags().StringVar(&lookupPhone, "phone", "", "phone number (any format)")
	lookupCmd.Flags().StringVar(&lookupEmail, "email", "", "email address")
	lookupCmd.Flags().Int64SliceVar(&lookupDatasetIDs, "dataset", nil, "restrict to dataset ids (default: all)")
	lookupCmd.Flags().BoolVar(&lookupJSON, "json", false, "emit JSON")
	rootCmd.AddCommand(lookupCmd)
}
