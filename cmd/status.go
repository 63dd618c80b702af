package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report index freshness and size",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		readiness, err := env.Reindexer.Status(ctx, env.Datasets)
		if err != nil {
			return err
		}
		stats, err := env.Store.Stats(ctx)
		if err != nil {
			return err
		}

		fmt.Printf("datasets:      %d\n", len(env.Datasets))
		fmt.Printf("indexed:       %d\n", stats.Datasets)
		fmt.Printf("index rows:    %d\n", stats.Rows)
		fmt.Printf("ready:         %v\n", readiness.Ready)
		fmt.Printf("pending:       %d\n", readiness.Pending)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
