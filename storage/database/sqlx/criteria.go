package sqlxrepos

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/ekklesia-app/ekklesia/core"
	"github.com/ekklesia-app/ekklesia/core/readiness"
)

const criterionColumns = `id, tenant_id, name, description, criteria_type, threshold_value, weight,
	is_required, is_active, created_at, updated_at`

type criterionRow struct {
	ID             string      `db:"id"`
	TenantID       string      `db:"tenant_id"`
	Name           string      `db:"name"`
	Description    null.String `db:"description"`
	CriteriaType   string      `db:"criteria_type"`
	ThresholdValue float64     `db:"threshold_value"`
	Weight         float64     `db:"weight"`
	IsRequired     bool        `db:"is_required"`
	IsActive       bool        `db:"is_active"`
	CreatedAt      time.Time   `db:"created_at"`
	UpdatedAt      time.Time   `db:"updated_at"`
}

type criteriaRepository struct {
	db core.DB
}

var _ readiness.CriteriaRepository = (*criteriaRepository)(nil) // interface compliance check

func NewCriteriaRepository(db core.DB) *criteriaRepository {
	return &criteriaRepository{db: db}
}

func (repo criteriaRepository) boil(crit readiness.Criterion) criterionRow {
	return criterionRow{
		ID:             crit.ID,
		TenantID:       crit.TenantID,
		Name:           crit.Name,
		Description:    null.NewString(crit.Description, crit.Description != ""),
		CriteriaType:   string(crit.CriteriaType),
		ThresholdValue: crit.ThresholdValue,
		Weight:         crit.Weight,
		IsRequired:     crit.IsRequired,
		IsActive:       crit.IsActive,
		CreatedAt:      crit.CreatedAt.UTC(),
		UpdatedAt:      crit.UpdatedAt.UTC(),
	}
}

func (repo criteriaRepository) unboil(row criterionRow) readiness.Criterion {
	return readiness.Criterion{
		ID:             row.ID,
		TenantID:       row.TenantID,
		Name:           row.Name,
		Description:    row.Description.String,
		CriteriaType:   readiness.CriteriaType(row.CriteriaType),
		ThresholdValue: row.ThresholdValue,
		Weight:         row.Weight,
		IsRequired:     row.IsRequired,
		IsActive:       row.IsActive,
		CreatedAt:      row.CreatedAt.UTC(),
		UpdatedAt:      row.UpdatedAt.UTC(),
	}
}

func (repo criteriaRepository) QueryCriteria(ctx context.Context, tenantID string, activeOnly bool) ([]readiness.Criterion, error) {
	q := "SELECT " + criterionColumns + " FROM readiness_criteria WHERE tenant_id = ?"
	if activeOnly {
		q += " AND is_active = ?"
	}
	q += " ORDER BY weight DESC, name ASC"

	args := []interface{}{tenantID}
	if activeOnly {
		args = append(args, true)
	}
	var rows []criterionRow
	if err := sqlx.SelectContext(ctx, repo.db, &rows, repo.db.Rebind(q), args...); err != nil {
		return nil, wrapDBErr(err, "querying criteria")
	}
	crits := make([]readiness.Criterion, 0, len(rows))
	for _, row := range rows {
		crits = append(crits, repo.unboil(row))
	}
	return crits, nil
}

func (repo criteriaRepository) GetCriterion(ctx context.Context, tenantID, id string) (readiness.Criterion, error) {
	if _, err := uuid.Parse(id); err != nil {
		return readiness.Criterion{}, readiness.ErrNotFound
	}
	var row criterionRow
	q := "SELECT " + criterionColumns + " FROM readiness_criteria WHERE id = ? AND tenant_id = ?"
	if err := sqlx.GetContext(ctx, repo.db, &row, repo.db.Rebind(q), id, tenantID); err != nil {
		return readiness.Criterion{}, trapNoRowsErr(err, "finding criterion")
	}
	return repo.unboil(row), nil
}

// CreateCriteria inserts all crits in one transaction.
func (repo criteriaRepository) CreateCriteria(ctx context.Context, crits ...readiness.Criterion) ([]readiness.Criterion, error) {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, wrapDBErr(err, "beginning transaction")
	}
	defer func() { _ = tx.Rollback() }()

	q := `INSERT INTO readiness_criteria (` + criterionColumns + `)
		VALUES (:id, :tenant_id, :name, :description, :criteria_type, :threshold_value, :weight,
			:is_required, :is_active, :created_at, :updated_at)`
	for i := range crits {
		if crits[i].ID == "" {
			crits[i].ID = uuid.New().String()
		}
		if _, err = tx.NamedExecContext(ctx, q, repo.boil(crits[i])); err != nil {
			return nil, wrapDBErr(err, "inserting criterion")
		}
	}
	if err = tx.Commit(); err != nil {
		return nil, wrapDBErr(err, "committing criteria")
	}
	return crits, nil
}

func (repo criteriaRepository) UpdateCriterion(ctx context.Context, crit readiness.Criterion) (readiness.Criterion, error) {
	q := `UPDATE readiness_criteria
		SET name = :name, description = :description, criteria_type = :criteria_type,
			threshold_value = :threshold_value, weight = :weight, is_required = :is_required,
			is_active = :is_active, updated_at = :updated_at
		WHERE id = :id AND tenant_id = :tenant_id`
	res, err := sqlx.NamedExecContext(ctx, repo.db, q, repo.boil(crit))
	if err != nil {
		return readiness.Criterion{}, wrapDBErr(err, "updating criterion")
	}
	if err = checkAffected(res); err != nil {
		return readiness.Criterion{}, err
	}
	return repo.GetCriterion(ctx, crit.TenantID, crit.ID)
}

func (repo criteriaRepository) DeleteCriterion(ctx context.Context, tenantID, id string) error {
	q := repo.db.Rebind("DELETE FROM readiness_criteria WHERE id = ? AND tenant_id = ?")
	res, err := repo.db.ExecContext(ctx, q, id, tenantID)
	if err != nil {
		return wrapDBErr(err, "deleting criterion")
	}
	return checkAffected(res)
}

// trapNoRowsErr maps "no rows" err to readiness.ErrNotFound
func trapNoRowsErr(err error, msg string) error {
	if errors.Cause(err) == sql.ErrNoRows {
		return readiness.ErrNotFound
	}
	return wrapDBErr(err, msg)
}

// returned by database/sql once the pool is closed, not exported
const errDBClosed = "sql: database is closed"

// wrapDBErr wraps err with msg. Errors of a database that can no longer serve requests become
// shutdown errors so the API restarts with a fresh pool.
func wrapDBErr(err error, msg string) error {
	cause := errors.Cause(err)
	if cause == sql.ErrConnDone || cause == driver.ErrBadConn || cause.Error() == errDBClosed {
		return errors.Wrap(core.NewShutdownError("database unavailable: "+cause.Error()), msg)
	}
	return errors.Wrap(err, msg)
}

func checkAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "counting affected rows")
	}
	if n == 0 {
		return readiness.ErrNotFound
	}
	return nil
}
