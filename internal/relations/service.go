// Package relations exposes the two operations the web layer needs: listing
// cross-file match groups and drilling down into the raw matching records.
package relations

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/vnnovate/relations-cli/internal/dedupe"
	"github.com/vnnovate/relations-cli/internal/indexer"
	"github.com/vnnovate/relations-cli/internal/model"
	"github.com/vnnovate/relations-cli/internal/normalize"
	"github.com/vnnovate/relations-cli/internal/schema"
	"github.com/vnnovate/relations-cli/internal/store"
	"github.com/vnnovate/relations-cli/internal/table"
)

const defaultPageSize = 10

// Options tunes the service.
type Options struct {
	PageSize  int
	CacheTTL  time.Duration // group + lookup memoization lifetime
	ReadTable indexer.ReadTableFunc
}

// Service owns the group cache and answers group/lookup queries. Construct
// once at process start.
type Service struct {
	store     store.Store
	idx       *indexer.Reindexer
	readTable indexer.ReadTableFunc
	log       *zap.Logger
	pageSize  int
	cacheTTL  time.Duration

	sf singleflight.Group

	mu      sync.Mutex
	groups  map[string]*groupsEntry
	lookups map[string]*lookupEntry
}

type groupsEntry struct {
	groups  *dedupe.Groups
	expires time.Time
}

type lookupEntry struct {
	records []model.FileRecords
	expires time.Time
}

// New creates the relations service.
func New(st store.Store, idx *indexer.Reindexer, log *zap.Logger, opts Options) *Service {
	if opts.PageSize <= 0 {
		opts.PageSize = defaultPageSize
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 30 * time.Second
	}
	if opts.ReadTable == nil {
		opts.ReadTable = table.Read
	}
	if log == nil {
		log = zap.L()
	}
	return &Service{
		store:     st,
		idx:       idx,
		readTable: opts.ReadTable,
		log:       log,
		pageSize:  opts.PageSize,
		cacheTTL:  opts.CacheTTL,
		groups:    make(map[string]*groupsEntry),
		lookups:   make(map[string]*lookupEntry),
	}
}

// ListRequest selects which groups to return.
type ListRequest struct {
	Datasets        []model.Dataset
	Mode            model.MatchMode
	CrossTenantOnly bool
	Search          string
	Page            int
}

// ListResult is one page of match groups plus per-mode counts and readiness.
type ListResult struct {
	Readiness  model.Readiness         `json:"readiness"`
	Mode       model.MatchMode         `json:"mode"`
	Groups     []model.MatchGroup      `json:"groups"`
	Counts     map[model.MatchMode]int `json:"counts"`
	Page       int                     `json:"page"`
	TotalPages int                     `json:"total_pages"`
	PageRange  []string                `json:"page_range"`
}

// ListGroups ensures the requested datasets are indexed and, when all are
// current, computes (or serves from cache) the strict match groups. When any
// dataset is stale the call short-circuits with Readiness.Ready=false rather
// than querying a known-stale index; the cache entry for that dataset set is
// dropped so it cannot survive the reindex.
func (s *Service) ListGroups(ctx context.Context, req ListRequest) (*ListResult, error) {
	ready, err := s.idx.EnsureIndexed(ctx, req.Datasets)
	if err != nil {
		return nil, err
	}
	key := fingerprint(req.Datasets)
	if !ready {
		s.invalidate(key)
		status, err := s.idx.Status(ctx, req.Datasets)
		if err != nil {
			return nil, err
		}
		return &ListResult{Readiness: status}, nil
	}

	groups, err := s.groupsFor(ctx, key, req.Datasets)
	if err != nil {
		return nil, err
	}

	combined := groups.Combined
	phone := groups.Phone
	email := groups.Email
	if req.CrossTenantOnly {
		combined = dedupe.FilterCrossTenant(combined)
		phone = dedupe.FilterCrossTenant(phone)
		email = dedupe.FilterCrossTenant(email)
	}

	counts := map[model.MatchMode]int{
		model.ModeCombined: len(combined),
		model.ModePhone:    len(phone),
		model.ModeEmail:    len(email),
	}

	byMode := map[model.MatchMode][]model.MatchGroup{
		model.ModeCombined: combined,
		model.ModePhone:    phone,
		model.ModeEmail:    email,
	}

	mode := req.Mode
	if !mode.Valid() {
		mode = model.ModeCombined
	}
	// Auto-fallback: an empty requested mode switches to the first mode
	// with data.
	if len(byMode[mode]) == 0 {
		for _, m := range model.AllModes() {
			if len(byMode[m]) > 0 {
				mode = m
				break
			}
		}
	}

	selected := byMode[mode]
	if q := strings.ToLower(strings.TrimSpace(req.Search)); q != "" {
		filtered := make([]model.MatchGroup, 0, len(selected))
		for _, g := range selected {
			if strings.Contains(strings.ToLower(g.Phone), q) || strings.Contains(strings.ToLower(g.Email), q) {
				filtered = append(filtered, g)
			}
		}
		selected = filtered
	}

	paged, page, totalPages := Paginate(selected, req.Page, s.pageSize)
	return &ListResult{
		Readiness:  model.Readiness{Ready: true},
		Mode:       mode,
		Groups:     paged,
		Counts:     counts,
		Page:       page,
		TotalPages: totalPages,
		PageRange:  PageRange(page, totalPages),
	}, nil
}

// groupsFor returns the cached groups for a dataset set or computes them
// from the index store, collapsing concurrent computations for the same set.
func (s *Service) groupsFor(ctx context.Context, key string, datasets []model.Dataset) (*dedupe.Groups, error) {
	s.mu.Lock()
	if e, ok := s.groups[key]; ok && time.Now().Before(e.expires) {
		s.mu.Unlock()
		return e.groups, nil
	}
	s.mu.Unlock()

	v, err, _ := s.sf.Do(key, func() (any, error) {
		ids := make([]int64, len(datasets))
		for i, ds := range datasets {
			ids[i] = ds.ID
		}
		rows, err := s.store.ListRows(ctx, ids)
		if err != nil {
			return nil, eris.Wrap(err, "relations: list index rows")
		}
		g := dedupe.BuildGroups(rows)
		s.putGroups(key, g)
		return g, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*dedupe.Groups), nil
}

func (s *Service) invalidate(key string) {
	s.mu.Lock()
	delete(s.groups, key)
	s.mu.Unlock()
}

// putGroups caches one group set and sweeps expired entries while holding
// the lock, so a long-lived process never accumulates dead keys.
func (s *Service) putGroups(key string, g *dedupe.Groups) {
	now := time.Now()
	s.mu.Lock()
	for k, e := range s.groups {
		if now.After(e.expires) {
			delete(s.groups, k)
		}
	}
	s.groups[key] = &groupsEntry{groups: g, expires: now.Add(s.cacheTTL)}
	s.mu.Unlock()
}

func (s *Service) putLookup(key string, records []model.FileRecords) {
	now := time.Now()
	s.mu.Lock()
	for k, e := range s.lookups {
		if now.After(e.expires) {
			delete(s.lookups, k)
		}
	}
	s.lookups[key] = &lookupEntry{records: records, expires: now.Add(s.cacheTTL)}
	s.mu.Unlock()
}

// LookupRequest selects records for one duplicate group.
type LookupRequest struct {
	Datasets []model.Dataset
	Phone    string
	Email    string
}

// LookupRecords re-reads the requested files and returns, per dataset, the
// raw rows whose normalized fields match the given phone and/or email. This
// is a live file read, not an index query: the caller wants full original
// row content. Unreadable files are skipped; one bad file never aborts the
// others.
func (s *Service) LookupRecords(ctx context.Context, req LookupRequest) ([]model.FileRecords, error) {
	phone := normalize.Phone(req.Phone)
	email := normalize.Email(req.Email)
	if phone == "" && email == "" {
		return nil, nil
	}

	key := fingerprint(req.Datasets) + "|" + phone + "|" + email
	s.mu.Lock()
	if e, ok := s.lookups[key]; ok && time.Now().Before(e.expires) {
		s.mu.Unlock()
		return e.records, nil
	}
	s.mu.Unlock()

	var out []model.FileRecords
	for _, ds := range req.Datasets {
		if ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "relations: lookup cancelled")
		}
		fr, ok := s.lookupFile(ds, phone, email)
		if ok {
			out = append(out, fr)
		}
	}

	s.putLookup(key, out)
	return out, nil
}

func (s *Service) lookupFile(ds model.Dataset, phone, email string) (model.FileRecords, bool) {
	t, err := s.readTable(ds.FilePath)
	if err != nil {
		s.log.Warn("lookup skipping unreadable dataset",
			zap.Int64("dataset_id", ds.ID),
			zap.String("file", ds.FilePath),
			zap.Error(err),
		)
		return model.FileRecords{}, false
	}

	cols := schema.Detect(t)
	filterPhone := phone != "" && cols.Phone != ""
	filterEmail := email != "" && cols.Email != ""
	if !filterPhone && !filterEmail {
		// No requested field exists in this file; it cannot hold matches.
		return model.FileRecords{}, false
	}

	display := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		if !strings.HasPrefix(c, "__") {
			display = append(display, c)
		}
	}

	fr := model.FileRecords{
		DatasetID:   ds.ID,
		FileName:    ds.FileName,
		PhoneColumn: cols.Phone,
		EmailColumn: cols.Email,
		Columns:     display,
	}

	for i := range t.Rows {
		if filterPhone && normalize.Phone(t.Cell(i, cols.Phone)) != phone {
			continue
		}
		if filterEmail && normalize.Email(t.Cell(i, cols.Email)) != email {
			continue
		}
		rec := t.Record(i)
		for c := range rec {
			if strings.HasPrefix(c, "__") {
				delete(rec, c)
			}
		}
		fr.Records = append(fr.Records, rec)
	}

	if len(fr.Records) == 0 {
		return model.FileRecords{}, false
	}
	return fr, true
}

// fingerprint is a canonical key for a set of datasets: sorted distinct ids.
func fingerprint(datasets []model.Dataset) string {
	ids := make([]int64, 0, len(datasets))
	seen := make(map[int64]struct{}, len(datasets))
	for _, ds := range datasets {
		if _, dup := seen[ds.ID]; dup {
			continue
		}
		seen[ds.ID] = struct{}{}
		ids = append(ids, ds.ID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var b strings.Builder
	for i, id := range ids {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatInt(id, 10))
	}
	return b.String()
}
