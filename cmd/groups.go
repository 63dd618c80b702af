package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vnnovate/relations-cli/internal/catalog"
	"github.com/vnnovate/relations-cli/internal/model"
	"github.com/vnnovate/relations-cli/internal/relations"
)

var (
	groupsMode        string
	groupsDatasetIDs  []int64
	groupsCrossTenant bool
	groupsSearch      string
	groupsPage        int
	groupsJSON        bool
)

var groupsCmd = &cobra.Command{
	Use:   "groups",
	Short: "List cross-file duplicate contact groups",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		datasets := catalog.Filter(env.Datasets, groupsDatasetIDs)
		result, err := env.Relations.ListGroups(ctx, relations.ListRequest{
			Datasets:        datasets,
			Mode:            model.MatchMode(groupsMode),
			CrossTenantOnly: groupsCrossTenant,
			Search:          groupsSearch,
			Page:            groupsPage,
		})
		if err != nil {
			return err
		}

		if groupsJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		}

		if !result.Readiness.Ready {
			fmt.Printf("indexing in progress: %d dataset(s) pending, retry shortly\n", result.Readiness.Pending)
			return nil
		}

		fmt.Printf("combined %d  phone %d  email %d  (mode: %s, page %d/%d)\n",
			result.Counts[model.ModeCombined],
			result.Counts[model.ModePhone],
			result.Counts[model.ModeEmail],
			result.Mode, result.Page, result.TotalPages,
		)
		for _, g := range result.Groups {
			key := g.Phone
			if g.Mode == model.ModeEmail {
				key = g.Email
			} else if g.Mode == model.ModeCombined {
				key = g.Phone + " / " + g.Email
			}
			fmt.Printf("  %-40s  %3d records  datasets %v", key, g.TotalRecords, g.DatasetIDs)
			if len(g.Names) > 0 {
				fmt.Printf("  (%s)", strings.Join(g.Names, ", "))
			}
			fmt.Println()
		}
		return nil
	},
}

func init() {
	groupsCmd.Flags().StringVar(&groupsMode, "mode", "combined", "match mode: combined, phone, or email")
	groupsCmd.Flags().Int64SliceVar(&groupsDatasetIDs, "dataset", nil, "restrict to dataset ids (default: all)")
	groupsCmd.Flags().BoolVar(&groupsCrossTenant, "cross-tenant", false, "only groups spanning multiple owners")
	groupsCmd.Flags().StringVar(&groupsSearch, "search", "", "substring filter on phone/email")
	groupsCmd.Flags().IntVar(&groupsPage, "page", 1, "result page")
	groupsCmd.Flags().BoolVar(&groupsJSON, "json", false, "emit JSON")
	rootCmd.AddCommand(groupsCmd)
}
