package inmemdb

import (
	"context"
	"sort"

	"github.com/ekklesia-app/ekklesia/core/readiness"
)

type criteriaRepository struct {
	db *criterionTable
}

var _ readiness.CriteriaRepository = (*criteriaRepository)(nil) // interface compliance check

func NewCriteriaRepository(db *DB) *criteriaRepository {
	return &criteriaRepository{db: db.criterion}
}

func (repo *criteriaRepository) QueryCriteria(_ context.Context, tenantID string, activeOnly bool) ([]readiness.Criterion, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	crits := make([]readiness.Criterion, 0)
	for _, c := range repo.db.table {
		if c.TenantID == tenantID && (!activeOnly || c.IsActive) {
			crits = append(crits, *c)
		}
	}
	sort.Slice(crits, func(i, j int) bool {
		if crits[i].Weight != crits[j].Weight {
			return crits[i].Weight > crits[j].Weight
		}
		return crits[i].Name < crits[j].Name
	})
	return crits, nil
}

func (repo *criteriaRepository) GetCriterion(_ context.Context, tenantID, id string) (readiness.Criterion, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if c, ok := repo.db.table[id]; ok && c.TenantID == tenantID {
		return *c, nil
	}
	return readiness.Criterion{}, readiness.ErrNotFound
}

func (repo *criteriaRepository) CreateCriteria(_ context.Context, crits ...readiness.Criterion) ([]readiness.Criterion, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	for i := range crits {
		c := crits[i]
		repo.db.table[c.ID] = &c
	}
	return crits, nil
}

func (repo *criteriaRepository) UpdateCriterion(_ context.Context, crit readiness.Criterion) (readiness.Criterion, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	orig, ok := repo.db.table[crit.ID]
	if !ok || orig.TenantID != crit.TenantID {
		return readiness.Criterion{}, readiness.ErrNotFound
	}
	crit.CreatedAt = orig.CreatedAt
	repo.db.table[crit.ID] = &crit
	return crit, nil
}

func (repo *criteriaRepository) DeleteCriterion(_ context.Context, tenantID, id string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if c, ok := repo.db.table[id]; !ok || c.TenantID != tenantID {
		return readiness.ErrNotFound
	}
	delete(repo.db.table, id)
	return nil
}
