package relations

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vnnovate/relations-cli/internal/indexer"
	"github.com/vnnovate/relations-cli/internal/model"
	"github.com/vnnovate/relations-cli/internal/resilience"
	"github.com/vnnovate/relations-cli/internal/store"
	"github.com/vnnovate/relations-cli/internal/table"
)

type fixture struct {
	store    *store.SQLiteStore
	idx      *indexer.Reindexer
	svc      *Service
	tables   map[string]*table.Table
	gate     chan struct{} // when set, reads block until it closes
	reads    atomic.Int64
	datasets []model.Dataset
}

// newFixture seeds two datasets, already indexed and current at mtime 1:
// the pair (9876543210, asha@example.com) appears in both, and each file
// carries one extra unique contact.
func newFixture(t *testing.T) *fixture {
	t.Helper()

	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { st.Close() })

	f := &fixture{store: st, tables: make(map[string]*table.Table)}
	read := func(path string) (*table.Table, error) {
		f.reads.Add(1)
		if f.gate != nil {
			<-f.gate
		}
		if tbl, ok := f.tables[path]; ok {
			return tbl, nil
		}
		return nil, &table.ReadError{Kind: table.KindNotFound, Path: path}
	}

	retry := resilience.RetryConfig{MaxAttempts: 1, InitialBackoff: time.Millisecond}
	f.idx = indexer.New(st, retry, read, zap.NewNop())
	f.svc = New(st, f.idx, zap.NewNop(), Options{
		PageSize:  2,
		CacheTTL:  time.Minute,
		ReadTable: read,
	})

	ctx := context.Background()
	require.NoError(t, st.ReplaceDataset(ctx, 1, 10, []model.IndexRow{
		{Phone: "9876543210", Email: "asha@example.com", Name: "Asha"},
		{Phone: "9000000001", Email: "only1@x.com"},
	}, 1))
	require.NoError(t, st.ReplaceDataset(ctx, 2, 20, []model.IndexRow{
		{Phone: "9876543210", Email: "asha@example.com", Name: "Asha R"},
		{Phone: "9000000002", Email: "only2@x.com"},
	}, 1))

	f.datasets = []model.Dataset{
		{ID: 1, OwnerID: 10, FileName: "a.csv", FilePath: "a.csv", LastModified: 1},
		{ID: 2, OwnerID: 20, FileName: "b.csv", FilePath: "b.csv", LastModified: 1},
	}
	return f
}

func TestListGroups(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.ListGroups(context.Background(), ListRequest{Datasets: f.datasets})
	require.NoError(t, err)

	assert.True(t, res.Readiness.Ready)
	assert.Equal(t, model.ModeCombined, res.Mode)
	require.Len(t, res.Groups, 1)

	g := res.Groups[0]
	assert.Equal(t, "9876543210", g.Phone)
	assert.Equal(t, "asha@example.com", g.Email)
	assert.Equal(t, 2, g.TotalRecords)
	assert.ElementsMatch(t, []string{"Asha", "Asha R"}, g.Names)

	assert.Equal(t, 1, res.Counts[model.ModeCombined])
	assert.Equal(t, 0, res.Counts[model.ModePhone])
	assert.Equal(t, 1, res.Page)
	assert.Equal(t, 1, res.TotalPages)
	assert.Equal(t, []string{"1"}, res.PageRange)
}

func TestListGroupsModeFallback(t *testing.T) {
	f := newFixture(t)

	// No email-only groups exist; the request falls back to the first mode
	// with data.
	res, err := f.svc.ListGroups(context.Background(), ListRequest{
		Datasets: f.datasets,
		Mode:     model.ModeEmail,
	})
	require.NoError(t, err)
	assert.Equal(t, model.ModeCombined, res.Mode)
	assert.Len(t, res.Groups, 1)
}

func TestListGroupsSearch(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.ListGroups(context.Background(), ListRequest{
		Datasets: f.datasets,
		Search:   "asha@",
	})
	require.NoError(t, err)
	require.Len(t, res.Groups, 1)

	res, err = f.svc.ListGroups(context.Background(), ListRequest{
		Datasets: f.datasets,
		Search:   "nomatch",
	})
	require.NoError(t, err)
	assert.Empty(t, res.Groups)
	assert.Equal(t, 1, res.Counts[model.ModeCombined], "counts are pre-search")
}

func TestListGroupsCrossTenantOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Dataset 3 shares owner 10 with dataset 1 and repeats its unique phone:
	// a same-owner group that the cross-tenant filter must drop.
	require.NoError(t, f.store.ReplaceDataset(ctx, 3, 10, []model.IndexRow{
		{Phone: "9000000001"},
	}, 1))
	datasets := append(f.datasets, model.Dataset{ID: 3, OwnerID: 10, FilePath: "c.csv", LastModified: 1})

	res, err := f.svc.ListGroups(ctx, ListRequest{Datasets: datasets, Mode: model.ModePhone})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Counts[model.ModePhone])

	res, err = f.svc.ListGroups(ctx, ListRequest{
		Datasets:        datasets,
		Mode:            model.ModePhone,
		CrossTenantOnly: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Counts[model.ModePhone])
	assert.Equal(t, 1, res.Counts[model.ModeCombined], "the two-owner pair survives")
}

func TestListGroupsPagination(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Three phone-only groups across datasets 4 and 5 with page size 2.
	require.NoError(t, f.store.ReplaceDataset(ctx, 4, 10, []model.IndexRow{
		{Phone: "9111111111"}, {Phone: "9222222222"}, {Phone: "9333333333"},
	}, 1))
	require.NoError(t, f.store.ReplaceDataset(ctx, 5, 20, []model.IndexRow{
		{Phone: "9111111111"}, {Phone: "9222222222"}, {Phone: "9333333333"},
	}, 1))
	datasets := []model.Dataset{
		{ID: 4, OwnerID: 10, FilePath: "d.csv", LastModified: 1},
		{ID: 5, OwnerID: 20, FilePath: "e.csv", LastModified: 1},
	}

	res, err := f.svc.ListGroups(ctx, ListRequest{Datasets: datasets, Page: 2})
	require.NoError(t, err)
	assert.Equal(t, model.ModePhone, res.Mode)
	assert.Equal(t, 2, res.Page)
	assert.Equal(t, 2, res.TotalPages)
	assert.Len(t, res.Groups, 1)
}

func TestListGroupsNotReadyShortCircuits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// File a.csv changed on disk; serve nothing until the rebuild lands.
	f.tables["a.csv"] = &table.Table{
		Columns: []string{"name", "phone", "email"},
		Rows: [][]string{
			{"Asha", "9876543210", "asha@example.com"},
		},
	}
	f.datasets[0].LastModified = 2
	f.gate = make(chan struct{})

	res, err := f.svc.ListGroups(ctx, ListRequest{Datasets: f.datasets})
	require.NoError(t, err)
	assert.False(t, res.Readiness.Ready)
	assert.Equal(t, 1, res.Readiness.Pending)
	assert.Empty(t, res.Groups)

	close(f.gate)
	f.idx.Wait()

	res, err = f.svc.ListGroups(ctx, ListRequest{Datasets: f.datasets})
	require.NoError(t, err)
	assert.True(t, res.Readiness.Ready)
	require.Len(t, res.Groups, 1, "groups recomputed from the rebuilt index")
	assert.Equal(t, 2, res.Groups[0].TotalRecords)
}

func TestListGroupsCachesComputation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res1, err := f.svc.ListGroups(ctx, ListRequest{Datasets: f.datasets})
	require.NoError(t, err)
	res2, err := f.svc.ListGroups(ctx, ListRequest{Datasets: f.datasets, Mode: model.ModePhone})
	require.NoError(t, err)

	// Both calls hit the same cached group set; filters apply per call.
	assert.Equal(t, res1.Counts, res2.Counts)
}

func TestCacheEvictsExpiredEntries(t *testing.T) {
	f := newFixture(t)
	svc := New(f.store, f.idx, zap.NewNop(), Options{
		PageSize: 2,
		CacheTTL: time.Millisecond,
	})
	ctx := context.Background()

	_, err := svc.ListGroups(ctx, ListRequest{Datasets: f.datasets})
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)

	// The next insert sweeps the expired entry for the other dataset set.
	_, err = svc.ListGroups(ctx, ListRequest{Datasets: f.datasets[:1]})
	require.NoError(t, err)

	svc.mu.Lock()
	defer svc.mu.Unlock()
	assert.Len(t, svc.groups, 1)
	_, stale := svc.groups[fingerprint(f.datasets)]
	assert.False(t, stale, "expired dataset-set entry must be gone")
}

func TestLookupCacheEvictsExpiredEntries(t *testing.T) {
	f := newFixture(t)
	svc := New(f.store, f.idx, zap.NewNop(), Options{
		CacheTTL:  time.Millisecond,
		ReadTable: f.svc.readTable,
	})
	f.tables["a.csv"] = &table.Table{
		Columns: []string{"phone"},
		Rows:    [][]string{{"9876543210"}, {"9123456789"}},
	}
	ctx := context.Background()

	_, err := svc.LookupRecords(ctx, LookupRequest{Datasets: f.datasets[:1], Phone: "9876543210"})
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)

	_, err = svc.LookupRecords(ctx, LookupRequest{Datasets: f.datasets[:1], Phone: "9123456789"})
	require.NoError(t, err)

	svc.mu.Lock()
	defer svc.mu.Unlock()
	assert.Len(t, svc.lookups, 1, "expired lookup memo must be swept on insert")
}

func TestLookupRecords(t *testing.T) {
	f := newFixture(t)

	f.tables["a.csv"] = &table.Table{
		Columns: []string{"name", "phone", "email", "city"},
		Rows: [][]string{
			{"Asha", "+91 9876543210", "asha@example.com", "Pune"},
			{"Ravi", "9123456789", "ravi@x.com", "Chennai"},
		},
	}
	// b.csv has no phone column: a phone lookup cannot match there.
	f.tables["b.csv"] = &table.Table{
		Columns: []string{"name", "email"},
		Rows: [][]string{
			{"Asha R", "asha@example.com"},
		},
	}

	records, err := f.svc.LookupRecords(context.Background(), LookupRequest{
		Datasets: f.datasets,
		Phone:    "9876543210",
	})
	require.NoError(t, err)
	require.Len(t, records, 1)

	fr := records[0]
	assert.Equal(t, int64(1), fr.DatasetID)
	assert.Equal(t, "phone", fr.PhoneColumn)
	require.Len(t, fr.Records, 1)
	assert.Equal(t, "Asha", fr.Records[0]["name"])
	assert.Equal(t, "Pune", fr.Records[0]["city"])
}

func TestLookupRecordsByPair(t *testing.T) {
	f := newFixture(t)

	f.tables["a.csv"] = &table.Table{
		Columns: []string{"phone", "email"},
		Rows: [][]string{
			{"9876543210", "asha@example.com"},
			{"9876543210", "other@x.com"},
		},
	}
	f.tables["b.csv"] = &table.Table{
		Columns: []string{"phone", "email"},
		Rows: [][]string{
			{"9876543210", "ASHA@EXAMPLE.COM"},
		},
	}

	records, err := f.svc.LookupRecords(context.Background(), LookupRequest{
		Datasets: f.datasets,
		Phone:    "9876543210",
		Email:    "asha@example.com",
	})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Len(t, records[0].Records, 1, "pair filter excludes the other-email row")
	assert.Len(t, records[1].Records, 1, "matching is case-insensitive on email")
}

func TestLookupRecordsHidesMergedColumn(t *testing.T) {
	f := newFixture(t)

	// Two phone columns force the synthetic merged column; drill-down output
	// must only show the file's real columns.
	f.tables["a.csv"] = &table.Table{
		Columns: []string{"res_phone", "mobile", "email"},
		Rows: [][]string{
			{"", "9876543210", "asha@example.com"},
		},
	}

	records, err := f.svc.LookupRecords(context.Background(), LookupRequest{
		Datasets: f.datasets[:1],
		Phone:    "9876543210",
	})
	require.NoError(t, err)
	require.Len(t, records, 1)

	fr := records[0]
	assert.Equal(t, []string{"res_phone", "mobile", "email"}, fr.Columns)
	require.Len(t, fr.Records, 1)
	assert.NotContains(t, fr.Records[0], "__merged_phone__")
	assert.Equal(t, "9876543210", fr.Records[0]["mobile"])
}

func TestLookupRecordsEmptyRequest(t *testing.T) {
	f := newFixture(t)

	records, err := f.svc.LookupRecords(context.Background(), LookupRequest{
		Datasets: f.datasets,
		Phone:    "n/a",
		Email:    "null",
	})
	require.NoError(t, err)
	assert.Nil(t, records)
	assert.Equal(t, int64(0), f.reads.Load(), "placeholder inputs never touch the files")
}

func TestLookupRecordsSkipsUnreadableFiles(t *testing.T) {
	f := newFixture(t)

	f.tables["a.csv"] = &table.Table{
		Columns: []string{"phone"},
		Rows:    [][]string{{"9876543210"}},
	}
	// b.csv absent from the table map: the read fails and the file is
	// skipped, not fatal.

	records, err := f.svc.LookupRecords(context.Background(), LookupRequest{
		Datasets: f.datasets,
		Phone:    "9876543210",
	})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, int64(1), records[0].DatasetID)
}

func TestLookupRecordsMemoized(t *testing.T) {
	f := newFixture(t)
	f.tables["a.csv"] = &table.Table{
		Columns: []string{"phone"},
		Rows:    [][]string{{"9876543210"}},
	}
	f.tables["b.csv"] = &table.Table{
		Columns: []string{"phone"},
		Rows:    [][]string{{"9876543210"}},
	}
	req := LookupRequest{Datasets: f.datasets, Phone: "9876543210"}

	_, err := f.svc.LookupRecords(context.Background(), req)
	require.NoError(t, err)
	first := f.reads.Load()

	_, err = f.svc.LookupRecords(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, first, f.reads.Load(), "repeat lookup is served from the memo")
}
