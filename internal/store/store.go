// Package store persists the normalized contact index: one fact table of
// index rows and one metadata table of per-dataset freshness marks.
package store

import (
	"context"

	"github.com/vnnovate/relations-cli/internal/model"
)

// Stats summarizes the index contents.
type Stats struct {
	Datasets int `json:"datasets"`
	Rows     int `json:"rows"`
}

// Store is the persistence interface of the relation engine. Implementations
// must allow one writer and concurrent readers without exposing partial
// per-dataset state: ReplaceDataset is atomic.
type Store interface {
	// ReplaceDataset swaps all index rows of one dataset and its freshness
	// metadata in a single durable transaction. An empty rows slice still
	// records the metadata (the dataset is indexed, it just has no usable
	// contacts).
	ReplaceDataset(ctx context.Context, datasetID, ownerID int64, rows []model.IndexRow, mtime float64) error

	// IndexedMtime returns the modification time recorded at the last
	// successful reindex, or 0 if the dataset has never been indexed.
	IndexedMtime(ctx context.Context, datasetID int64) (float64, error)

	// ListRows returns all index rows of the given datasets.
	ListRows(ctx context.Context, datasetIDs []int64) ([]model.IndexRow, error)

	// ListDatasetIDs returns the ids of every indexed dataset.
	ListDatasetIDs(ctx context.Context) ([]int64, error)

	// DeleteDataset removes a dataset's rows and metadata.
	DeleteDataset(ctx context.Context, datasetID int64) error

	// Stats reports index size.
	Stats(ctx context.Context) (*Stats, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
