package main

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/vnnovate/relations-cli/internal/catalog"
	"github.com/vnnovate/relations-cli/internal/indexer"
	"github.com/vnnovate/relations-cli/internal/model"
	"github.com/vnnovate/relations-cli/internal/relations"
	"github.com/vnnovate/relations-cli/internal/resilience"
	"github.com/vnnovate/relations-cli/internal/store"
)

// env bundles the long-lived services a command needs.
type env struct {
	Store     store.Store
	Reindexer *indexer.Reindexer
	Relations *relations.Service
	Datasets  []model.Dataset
}

// initEnv opens the index store, loads the dataset manifest, and wires the
// reindexer and relations service.
func initEnv(ctx context.Context) (*env, error) {
	st, err := store.NewSQLite(cfg.Store.Path)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, err
	}

	datasets, err := catalog.Load(cfg.Catalog.Manifest)
	if err != nil {
		st.Close()
		return nil, err
	}

	retry := resilience.RetryConfig{
		MaxAttempts:    cfg.Index.RetryAttempts,
		InitialBackoff: time.Duration(cfg.Index.RetryBackoffMS) * time.Millisecond,
	}
	idx := indexer.New(st, retry, nil, zap.L())
	svc := relations.New(st, idx, zap.L(), relations.Options{
		PageSize: cfg.Query.PageSize,
		CacheTTL: cfg.Query.CacheTTL(),
	})

	return &env{Store: st, Reindexer: idx, Relations: svc, Datasets: datasets}, nil
}

// Close waits for in-flight rebuilds and releases the store.
func (e *env) Close() {
	e.Reindexer.Wait()
	if err := e.Store.Close(); err != nil {
		zap.L().Warn("closing store", zap.Error(err))
	}
}
