package main

import (
	"fmt"
	"sync/atomic"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vnnovate/relations-cli/internal/catalog"
)

var (
	indexDatasetIDs []int64
	indexForce      bool
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Reindex stale datasets synchronously",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		datasets := catalog.Filter(env.Datasets, indexDatasetIDs)
		if len(datasets) == 0 {
			fmt.Println("no datasets selected")
			return nil
		}

		var indexed, skipped, failed atomic.Int64

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(cfg.Index.Concurrency)
		for _, ds := range datasets {
			ds := ds
			g.Go(func() error {
				if !indexForce {
					mtime, err := env.Store.IndexedMtime(gctx, ds.ID)
					if err != nil {
						return err // store unavailability aborts the batch
					}
					if mtime == ds.LastModified {
						skipped.Add(1)
						return nil
					}
				}
				if err := env.Reindexer.Reindex(gctx, ds); err != nil {
					// One bad file never aborts the other datasets.
					failed.Add(1)
					zap.L().Error("reindex failed",
						zap.Int64("dataset_id", ds.ID),
						zap.String("file", ds.FilePath),
						zap.Error(err),
					)
					return nil
				}
				indexed.Add(1)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		fmt.Printf("indexed %d, skipped %d current, failed %d\n",
			indexed.Load(), skipped.Load(), failed.Load())
		return nil
	},
}

func init() {
	indexCmd.Flags().Int64SliceVar(&indexDatasetIDs, "dataset", nil, "dataset ids to index (default: all)")
	indexCmd.Flags().BoolVar(&indexForce, "force", false, "reindex even if the index is current")
	rootCmd.AddCommand(indexCmd)
}
