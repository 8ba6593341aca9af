package sqlxrepos

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/ekklesia-app/ekklesia/core"
	"github.com/ekklesia-app/ekklesia/core/readiness"
)

const recordColumns = `cell_id, tenant_id, readiness_score, status, criteria_results, projected_date,
	confidence_level, recommendations, blocking_factors, previous_score, previous_status, ready_since,
	last_evaluated_at`

type recordRow struct {
	CellID          string       `db:"cell_id"`
	TenantID        string       `db:"tenant_id"`
	ReadinessScore  float64      `db:"readiness_score"`
	Status          string       `db:"status"`
	CriteriaResults string       `db:"criteria_results"`
	ProjectedDate   null.Time    `db:"projected_date"`
	ConfidenceLevel float64      `db:"confidence_level"`
	Recommendations string       `db:"recommendations"`
	BlockingFactors string       `db:"blocking_factors"`
	PreviousScore   null.Float64 `db:"previous_score"`
	PreviousStatus  null.String  `db:"previous_status"`
	ReadySince      null.Time    `db:"ready_since"`
	LastEvaluatedAt time.Time    `db:"last_evaluated_at"`
}

type recordRepository struct {
	db core.DB
}

var _ readiness.RecordRepository = (*recordRepository)(nil) // interface compliance check

func NewRecordRepository(db core.DB) *recordRepository {
	return &recordRepository{db: db}
}

func (repo recordRepository) boil(rec readiness.Record) (recordRow, error) {
	results, err := marshalList(rec.CriteriaResults)
	if err != nil {
		return recordRow{}, errors.Wrap(err, "encoding criteria results")
	}
	recommendations, err := marshalList(rec.Recommendations)
	if err != nil {
		return recordRow{}, errors.Wrap(err, "encoding recommendations")
	}
	blocking, err := marshalList(rec.BlockingFactors)
	if err != nil {
		return recordRow{}, errors.Wrap(err, "encoding blocking factors")
	}

	return recordRow{
		CellID:          rec.CellID,
		TenantID:        rec.TenantID,
		ReadinessScore:  rec.ReadinessScore,
		Status:          string(rec.Status),
		CriteriaResults: results,
		ProjectedDate:   nullTime(rec.ProjectedDate),
		ConfidenceLevel: rec.ConfidenceLevel,
		Recommendations: recommendations,
		BlockingFactors: blocking,
		PreviousScore:   null.Float64FromPtr(rec.PreviousScore),
		PreviousStatus:  null.NewString(string(rec.PreviousStatus), rec.PreviousStatus != ""),
		ReadySince:      nullTime(rec.ReadySince),
		LastEvaluatedAt: rec.LastEvaluatedAt.UTC(),
	}, nil
}

func (repo recordRepository) unboil(row recordRow) (readiness.Record, error) {
	rec := readiness.Record{
		CellID:          row.CellID,
		TenantID:        row.TenantID,
		ReadinessScore:  row.ReadinessScore,
		Status:          readiness.Status(row.Status),
		ProjectedDate:   timePtr(row.ProjectedDate),
		ConfidenceLevel: row.ConfidenceLevel,
		PreviousScore:   row.PreviousScore.Ptr(),
		PreviousStatus:  readiness.Status(row.PreviousStatus.String),
		ReadySince:      timePtr(row.ReadySince),
		LastEvaluatedAt: row.LastEvaluatedAt.UTC(),
	}
	if err := json.Unmarshal([]byte(row.CriteriaResults), &rec.CriteriaResults); err != nil {
		return readiness.Record{}, errors.Wrap(err, "decoding criteria results")
	}
	if err := json.Unmarshal([]byte(row.Recommendations), &rec.Recommendations); err != nil {
		return readiness.Record{}, errors.Wrap(err, "decoding recommendations")
	}
	if err := json.Unmarshal([]byte(row.BlockingFactors), &rec.BlockingFactors); err != nil {
		return readiness.Record{}, errors.Wrap(err, "decoding blocking factors")
	}
	return rec, nil
}

// UpsertRecord replaces the record of the cell, if any.
func (repo recordRepository) UpsertRecord(ctx context.Context, rec readiness.Record) error {
	row, err := repo.boil(rec)
	if err != nil {
		return err
	}
	q := `INSERT INTO readiness_records (` + recordColumns + `)
		VALUES (:cell_id, :tenant_id, :readiness_score, :status, :criteria_results, :projected_date,
			:confidence_level, :recommendations, :blocking_factors, :previous_score, :previous_status,
			:ready_since, :last_evaluated_at)
		ON CONFLICT (cell_id) DO UPDATE SET
			tenant_id = excluded.tenant_id,
			readiness_score = excluded.readiness_score,
			status = excluded.status,
			criteria_results = excluded.criteria_results,
			projected_date = excluded.projected_date,
			confidence_level = excluded.confidence_level,
			recommendations = excluded.recommendations,
			blocking_factors = excluded.blocking_factors,
			previous_score = excluded.previous_score,
			previous_status = excluded.previous_status,
			ready_since = excluded.ready_since,
			last_evaluated_at = excluded.last_evaluated_at`
	if _, err = sqlx.NamedExecContext(ctx, repo.db, q, row); err != nil {
		return wrapDBErr(err, "upserting record")
	}
	return nil
}

func (repo recordRepository) GetRecord(ctx context.Context, cellID string) (readiness.Record, error) {
	var row recordRow
	q := repo.db.Rebind("SELECT " + recordColumns + " FROM readiness_records WHERE cell_id = ?")
	if err := sqlx.GetContext(ctx, repo.db, &row, q, cellID); err != nil {
		return readiness.Record{}, trapNoRowsErr(err, "finding record")
	}
	return repo.unboil(row)
}

func (repo recordRepository) QueryRecords(ctx context.Context, tenantID string, filter readiness.RecordFilter, ordering ...core.DBOrdering) ([]readiness.Record, error) {
	if filter.CellIDs != nil && len(filter.CellIDs) == 0 {
		return []readiness.Record{}, nil
	}

	conds := []string{"tenant_id = ?"}
	args := []interface{}{tenantID}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, 0, len(filter.Statuses))
		for _, st := range filter.Statuses {
			statuses = append(statuses, string(st))
		}
		conds = append(conds, "status IN (?)")
		args = append(args, statuses)
	}
	if filter.MinScore != nil {
		conds = append(conds, "readiness_score >= ?")
		args = append(args, *filter.MinScore)
	}
	if len(filter.CellIDs) > 0 {
		conds = append(conds, "cell_id IN (?)")
		args = append(args, filter.CellIDs)
	}

	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "readiness_score"}, {Field: "cell_id", Ascending: true}}
	}
	orderBy := make([]string, 0, len(ordering))
	for _, ord := range ordering {
		if !readiness.RecordOrderings[ord.Field] {
			return nil, errors.Errorf("invalid ordering field %q", ord.Field)
		}
		orderBy = append(orderBy, ord.String())
	}

	q := "SELECT " + recordColumns + " FROM readiness_records WHERE " + strings.Join(conds, " AND ") +
		" ORDER BY " + strings.Join(orderBy, ", ")
	if filter.Limit > 0 {
		q += fmt.Sprintf(" LIMIT %d", filter.Limit)
	} else if filter.Offset > 0 && repo.db.DriverName() == "sqlite3" {
		q += " LIMIT -1" // sqlite3 needs a LIMIT to OFFSET
	}
	if filter.Offset > 0 {
		q += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	q, args, err := sqlx.In(q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "expanding query")
	}
	var rows []recordRow
	if err = sqlx.SelectContext(ctx, repo.db, &rows, repo.db.Rebind(q), args...); err != nil {
		return nil, wrapDBErr(err, "querying records")
	}

	recs := make([]readiness.Record, 0, len(rows))
	for _, row := range rows {
		rec, err := repo.unboil(row)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

func (repo recordRepository) DeleteRecord(ctx context.Context, cellID string) error {
	q := repo.db.Rebind("DELETE FROM readiness_records WHERE cell_id = ?")
	if _, err := repo.db.ExecContext(ctx, q, cellID); err != nil {
		return wrapDBErr(err, "deleting record")
	}
	return nil
}

// marshalList encodes a list column, nil lists are stored as empty arrays.
func marshalList(v interface{}) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	if string(b) == "null" {
		return "[]", nil
	}
	return string(b), nil
}

func nullTime(t *time.Time) null.Time {
	if t == nil {
		return null.Time{}
	}
	return null.TimeFrom(t.UTC())
}

func timePtr(t null.Time) *time.Time {
	if !t.Valid {
		return nil
	}
	tm := t.Time.UTC()
	return &tm
}
