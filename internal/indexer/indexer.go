// Package indexer keeps the persisted contact index fresh: it detects
// datasets whose files changed since the last reindex and rebuilds their
// index rows in background tasks, at most one in flight per dataset.
package indexer

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/vnnovate/relations-cli/internal/model"
	"github.com/vnnovate/relations-cli/internal/normalize"
	"github.com/vnnovate/relations-cli/internal/resilience"
	"github.com/vnnovate/relations-cli/internal/schema"
	"github.com/vnnovate/relations-cli/internal/store"
	"github.com/vnnovate/relations-cli/internal/table"
)

// ReadTableFunc reads a tabular file from disk. Injectable for tests.
type ReadTableFunc func(path string) (*table.Table, error)

// Reindexer tracks index freshness and schedules background rebuilds.
// Construct once at process start; all state is owned here, nothing is
// process-global.
type Reindexer struct {
	store     store.Store
	readTable ReadTableFunc
	retry     resilience.RetryConfig
	log       *zap.Logger

	mu         sync.Mutex
	rebuilding map[int64]struct{}
	wg         sync.WaitGroup
}

// New creates a Reindexer. A nil readTable defaults to table.Read.
func New(st store.Store, retry resilience.RetryConfig, readTable ReadTableFunc, log *zap.Logger) *Reindexer {
	if readTable == nil {
		readTable = table.Read
	}
	if log == nil {
		log = zap.L()
	}
	return &Reindexer{
		store:      st,
		readTable:  readTable,
		retry:      retry,
		log:        log,
		rebuilding: make(map[int64]struct{}),
	}
}

// EnsureIndexed compares every dataset's on-disk modification time with the
// time recorded at its last reindex and schedules a background rebuild for
// each stale or never-indexed dataset not already in flight. It never blocks
// on the rebuilds. It returns true only if every dataset was already current
// at call time. A store error is a hard failure: nothing can be decided
// without the index.
func (r *Reindexer) EnsureIndexed(ctx context.Context, datasets []model.Dataset) (bool, error) {
	allReady := true
	for _, ds := range datasets {
		indexed, err := r.store.IndexedMtime(ctx, ds.ID)
		if err != nil {
			return false, eris.Wrapf(err, "indexer: freshness check for dataset %d", ds.ID)
		}
		if indexed == ds.LastModified {
			continue
		}
		allReady = false
		if !r.tryMark(ds.ID) {
			// Rebuild already in flight; second detection is a no-op.
			continue
		}
		r.wg.Add(1)
		go r.rebuild(ds)
	}
	return allReady, nil
}

// Status reports readiness for a dataset set: pending counts datasets that
// are rebuilding or stale-but-not-yet-scheduled. Clients poll this.
func (r *Reindexer) Status(ctx context.Context, datasets []model.Dataset) (model.Readiness, error) {
	pending := 0
	for _, ds := range datasets {
		if r.isRebuilding(ds.ID) {
			pending++
			continue
		}
		indexed, err := r.store.IndexedMtime(ctx, ds.ID)
		if err != nil {
			return model.Readiness{}, eris.Wrapf(err, "indexer: status for dataset %d", ds.ID)
		}
		if indexed != ds.LastModified {
			pending++
		}
	}
	return model.Readiness{Ready: pending == 0, Pending: pending}, nil
}

// Reindex synchronously rebuilds one dataset's index rows: it reads the file,
// classifies columns, normalizes every row, and atomically replaces the
// stored rows and freshness metadata. On any read or parse failure the
// previous index state is left untouched.
func (r *Reindexer) Reindex(ctx context.Context, ds model.Dataset) error {
	t, err := r.readTable(ds.FilePath)
	if err != nil {
		return eris.Wrapf(err, "indexer: read dataset %d", ds.ID)
	}

	rows := indexRows(t)
	if err := r.store.ReplaceDataset(ctx, ds.ID, ds.OwnerID, rows, ds.LastModified); err != nil {
		return eris.Wrapf(err, "indexer: replace dataset %d", ds.ID)
	}

	r.log.Info("dataset reindexed",
		zap.Int64("dataset_id", ds.ID),
		zap.Int("index_rows", len(rows)),
		zap.Float64("mtime", ds.LastModified),
	)
	return nil
}

// Prune deletes indexed datasets that no longer appear in the catalog, so
// removed files stop contributing rows to group queries. Returns how many
// were removed.
func (r *Reindexer) Prune(ctx context.Context, datasets []model.Dataset) (int, error) {
	keep := make(map[int64]struct{}, len(datasets))
	for _, ds := range datasets {
		keep[ds.ID] = struct{}{}
	}

	ids, err := r.store.ListDatasetIDs(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "indexer: list indexed datasets")
	}

	pruned := 0
	for _, id := range ids {
		if _, ok := keep[id]; ok {
			continue
		}
		if err := r.store.DeleteDataset(ctx, id); err != nil {
			return pruned, eris.Wrapf(err, "indexer: prune dataset %d", id)
		}
		r.log.Info("dataset pruned", zap.Int64("dataset_id", id))
		pruned++
	}
	return pruned, nil
}

// Wait blocks until all in-flight rebuilds finish. Used at shutdown and by
// the synchronous index command.
func (r *Reindexer) Wait() {
	r.wg.Wait()
}

func (r *Reindexer) rebuild(ds model.Dataset) {
	defer r.wg.Done()
	defer r.clearMark(ds.ID)

	// Background rebuilds have no external cancellation; they run to
	// completion or failure.
	ctx := context.Background()

	cfg := r.retry
	cfg.ShouldRetry = retryableRead
	cfg.OnRetry = resilience.RetryLogger("reindex", ds.ID)

	err := resilience.Do(ctx, cfg, func(ctx context.Context) error {
		return r.Reindex(ctx, ds)
	})
	if err != nil {
		// Failure stays inside the task: the dataset simply remains stale
		// and shows up as pending until an operator intervenes.
		r.log.Error("background reindex failed",
			zap.Int64("dataset_id", ds.ID),
			zap.String("file", ds.FilePath),
			zap.Error(err),
		)
	}
}

// retryableRead retries open failures (file momentarily locked by an upload)
// but not missing, corrupt, or unsupported files.
func retryableRead(err error) bool {
	if re, ok := table.AsReadError(err); ok {
		return re.Kind == table.KindOpen
	}
	return true
}

func (r *Reindexer) tryMark(id int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, inFlight := r.rebuilding[id]; inFlight {
		return false
	}
	r.rebuilding[id] = struct{}{}
	return true
}

func (r *Reindexer) clearMark(id int64) {
	r.mu.Lock()
	delete(r.rebuilding, id)
	r.mu.Unlock()
}

func (r *Reindexer) isRebuilding(id int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.rebuilding[id]
	return ok
}

// indexRows normalizes a table into index rows. A table with no detectable
// phone or email column contributes nothing; that is not an error.
func indexRows(t *table.Table) []model.IndexRow {
	cols := schema.Detect(t)
	if cols.Phone == "" && cols.Email == "" {
		return nil
	}

	var rows []model.IndexRow
	for i := range t.Rows {
		var r model.IndexRow
		if cols.Phone != "" {
			r.Phone = normalize.Phone(t.Cell(i, cols.Phone))
		}
		if cols.Email != "" {
			r.Email = normalize.Email(t.Cell(i, cols.Email))
		}
		if r.Phone == "" && r.Email == "" {
			continue
		}
		r.Name = schema.DisplayName(t, cols.Names, i)
		rows = append(rows, r)
	}
	return rows
}
