package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove indexed datasets no longer in the manifest",
	Long:  "Deletes index rows and freshness metadata for datasets that were removed from the manifest, so stale files stop contributing to group results.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		pruned, err := env.Reindexer.Prune(ctx, env.Datasets)
		if err != nil {
			return err
		}
		fmt.Printf("pruned %d dataset(s)\n", pruned)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(pruneCmd)
}
