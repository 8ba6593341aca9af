package inmemdb

import (
	"context"
	"sort"

	"github.com/ekklesia-app/ekklesia/core"
	"github.com/ekklesia-app/ekklesia/core/readiness"
)

type recordRepository struct {
	db *recordTable
}

var _ readiness.RecordRepository = (*recordRepository)(nil) // interface compliance check

func NewRecordRepository(db *DB) *recordRepository {
	return &recordRepository{db: db.record}
}

func (repo *recordRepository) UpsertRecord(_ context.Context, rec readiness.Record) error {
	repo.db.Lock()
	defer repo.db.Unlock()
	stored := cloneRecord(rec)
	repo.db.table[rec.CellID] = &stored
	return nil
}

func (repo *recordRepository) GetRecord(_ context.Context, cellID string) (readiness.Record, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if rec, ok := repo.db.table[cellID]; ok {
		return cloneRecord(*rec), nil
	}
	return readiness.Record{}, readiness.ErrNotFound
}

func (repo *recordRepository) QueryRecords(_ context.Context, tenantID string, filter readiness.RecordFilter, ordering ...core.DBOrdering) ([]readiness.Record, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	statuses := make(map[readiness.Status]bool, len(filter.Statuses))
	for _, st := range filter.Statuses {
		statuses[st] = true
	}
	cellIDs := make(map[string]bool, len(filter.CellIDs))
	for _, id := range filter.CellIDs {
		cellIDs[id] = true
	}

	recs := make([]readiness.Record, 0)
	for _, rec := range repo.db.table {
		switch {
		case rec.TenantID != tenantID:
		case len(statuses) > 0 && !statuses[rec.Status]:
		case filter.MinScore != nil && rec.ReadinessScore < *filter.MinScore:
		case filter.CellIDs != nil && !cellIDs[rec.CellID]:
		default:
			recs = append(recs, cloneRecord(*rec))
		}
	}

	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "readiness_score"}, {Field: "cell_id", Ascending: true}}
	}
	sort.SliceStable(recs, func(i, j int) bool {
		for _, ord := range ordering {
			if c := compareRecords(recs[i], recs[j], ord.Field); c != 0 {
				return (c < 0) == ord.Ascending
			}
		}
		return false
	})

	return paginate(recs, filter.Offset, filter.Limit), nil
}

func (repo *recordRepository) DeleteRecord(_ context.Context, cellID string) error {
	repo.db.Lock()
	defer repo.db.Unlock()
	delete(repo.db.table, cellID)
	return nil
}

// cloneRecord copies the slices and pointers of rec so callers never share them with the store.
func cloneRecord(rec readiness.Record) readiness.Record {
	if rec.CriteriaResults != nil {
		rec.CriteriaResults = append([]readiness.CriterionResult{}, rec.CriteriaResults...)
	}
	if rec.Recommendations != nil {
		rec.Recommendations = append([]string{}, rec.Recommendations...)
	}
	if rec.BlockingFactors != nil {
		rec.BlockingFactors = append([]string{}, rec.BlockingFactors...)
	}
	if rec.ProjectedDate != nil {
		t := *rec.ProjectedDate
		rec.ProjectedDate = &t
	}
	if rec.PreviousScore != nil {
		score := *rec.PreviousScore
		rec.PreviousScore = &score
	}
	if rec.ReadySince != nil {
		t := *rec.ReadySince
		rec.ReadySince = &t
	}
	return rec
}

// compareRecords returns -1, 0 or 1 as a is lower, equal or greater than b on field.
func compareRecords(a, b readiness.Record, field string) int {
	switch field {
	case "readiness_score":
		return compareFloats(a.ReadinessScore, b.ReadinessScore)
	case "last_evaluated_at":
		return compareFloats(float64(a.LastEvaluatedAt.UnixNano()), float64(b.LastEvaluatedAt.UnixNano()))
	case "status":
		return compareStrings(string(a.Status), string(b.Status))
	case "cell_id":
		return compareStrings(a.CellID, b.CellID)
	}
	return 0
}

func compareFloats(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func compareStrings(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func paginate(recs []readiness.Record, offset, limit int) []readiness.Record {
	if offset > 0 {
		if offset >= len(recs) {
			return recs[:0]
		}
		recs = recs[offset:]
	}
	if limit > 0 && limit < len(recs) {
		recs = recs[:limit]
	}
	return recs
}
