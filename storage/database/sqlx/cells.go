package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/ekklesia-app/ekklesia/core"
	"github.com/ekklesia-app/ekklesia/core/readiness"
)

type cellRow struct {
	ID                      string      `db:"id"`
	TenantID                string      `db:"tenant_id"`
	Name                    string      `db:"name"`
	SupervisorID            null.String `db:"supervisor_id"`
	LeaderID                null.String `db:"leader_id"`
	MultiplicationStartedAt null.Time   `db:"multiplication_started_at"`
	CreatedAt               time.Time   `db:"created_at"`
}

type metricsRow struct {
	CellID               string       `db:"cell_id"`
	MemberCount          null.Float64 `db:"member_count"`
	MeetingFrequencyPct  null.Float64 `db:"meeting_frequency_pct"`
	AverageAttendancePct null.Float64 `db:"average_attendance_pct"`
	PotentialLeaderCount null.Float64 `db:"potential_leader_count"`
	AgeInMonths          null.Float64 `db:"age_in_months"`
	LeaderMaturityScore  null.Float64 `db:"leader_maturity_score"`
	GrowthRatePct        null.Float64 `db:"growth_rate_pct"`
	StabilityScore       null.Float64 `db:"stability_score"`
	CollectedAt          time.Time    `db:"collected_at"`
}

// cellDirectory reads the cells and metrics tables fed by the cell management module.
type cellDirectory struct {
	db core.DB
}

var (
	_ readiness.CellDirectory    = (*cellDirectory)(nil) // interface compliance check
	_ readiness.MetricsCollector = (*cellDirectory)(nil)
)

func NewCellDirectory(db core.DB) *cellDirectory {
	return &cellDirectory{db: db}
}

func (dir cellDirectory) unboil(row cellRow) readiness.Cell {
	return readiness.Cell{
		ID:                      row.ID,
		TenantID:                row.TenantID,
		Name:                    row.Name,
		SupervisorID:            row.SupervisorID.String,
		LeaderID:                row.LeaderID.String,
		MultiplicationStartedAt: timePtr(row.MultiplicationStartedAt),
	}
}

// SaveCell adds or replaces a cell.
func (dir cellDirectory) SaveCell(ctx context.Context, cell readiness.Cell) error {
	row := cellRow{
		ID:                      cell.ID,
		TenantID:                cell.TenantID,
		Name:                    cell.Name,
		SupervisorID:            null.NewString(cell.SupervisorID, cell.SupervisorID != ""),
		LeaderID:                null.NewString(cell.LeaderID, cell.LeaderID != ""),
		MultiplicationStartedAt: nullTime(cell.MultiplicationStartedAt),
		CreatedAt:               time.Now().UTC(),
	}
	q := `INSERT INTO cells (id, tenant_id, name, supervisor_id, leader_id, multiplication_started_at, created_at)
		VALUES (:id, :tenant_id, :name, :supervisor_id, :leader_id, :multiplication_started_at, :created_at)
		ON CONFLICT (id) DO UPDATE SET
			tenant_id = excluded.tenant_id,
			name = excluded.name,
			supervisor_id = excluded.supervisor_id,
			leader_id = excluded.leader_id,
			multiplication_started_at = excluded.multiplication_started_at`
	if _, err := sqlx.NamedExecContext(ctx, dir.db, q, row); err != nil {
		return wrapDBErr(err, "saving cell")
	}
	return nil
}

// SaveMetrics replaces the latest metrics of a cell.
func (dir cellDirectory) SaveMetrics(ctx context.Context, cellID string, metrics readiness.CellMetrics) error {
	row := metricsRow{
		CellID:               cellID,
		MemberCount:          null.Float64FromPtr(metrics.MemberCount),
		MeetingFrequencyPct:  null.Float64FromPtr(metrics.MeetingFrequencyPct),
		AverageAttendancePct: null.Float64FromPtr(metrics.AverageAttendancePct),
		PotentialLeaderCount: null.Float64FromPtr(metrics.PotentialLeaderCount),
		AgeInMonths:          null.Float64FromPtr(metrics.AgeInMonths),
		LeaderMaturityScore:  null.Float64FromPtr(metrics.LeaderMaturityScore),
		GrowthRatePct:        null.Float64FromPtr(metrics.GrowthRatePct),
		StabilityScore:       null.Float64FromPtr(metrics.StabilityScore),
		CollectedAt:          time.Now().UTC(),
	}
	if metrics.CollectedAt != nil {
		row.CollectedAt = metrics.CollectedAt.UTC()
	}
	q := `INSERT INTO cell_metrics (cell_id, member_count, meeting_frequency_pct, average_attendance_pct,
			potential_leader_count, age_in_months, leader_maturity_score, growth_rate_pct, stability_score, collected_at)
		VALUES (:cell_id, :member_count, :meeting_frequency_pct, :average_attendance_pct,
			:potential_leader_count, :age_in_months, :leader_maturity_score, :growth_rate_pct, :stability_score, :collected_at)
		ON CONFLICT (cell_id) DO UPDATE SET
			member_count = excluded.member_count,
			meeting_frequency_pct = excluded.meeting_frequency_pct,
			average_attendance_pct = excluded.average_attendance_pct,
			potential_leader_count = excluded.potential_leader_count,
			age_in_months = excluded.age_in_months,
			leader_maturity_score = excluded.leader_maturity_score,
			growth_rate_pct = excluded.growth_rate_pct,
			stability_score = excluded.stability_score,
			collected_at = excluded.collected_at`
	if _, err := sqlx.NamedExecContext(ctx, dir.db, q, row); err != nil {
		return wrapDBErr(err, "saving metrics")
	}
	return nil
}

func (dir cellDirectory) GetCell(ctx context.Context, cellID string) (readiness.Cell, error) {
	var row cellRow
	q := dir.db.Rebind(`SELECT id, tenant_id, name, supervisor_id, leader_id, multiplication_started_at, created_at
		FROM cells WHERE id = ?`)
	if err := sqlx.GetContext(ctx, dir.db, &row, q, cellID); err != nil {
		return readiness.Cell{}, trapNoRowsErr(err, "finding cell")
	}
	return dir.unboil(row), nil
}

// QueryCells lists the cells of a tenant within scope, in creation order.
func (dir cellDirectory) QueryCells(ctx context.Context, tenantID string, scope readiness.CellScope) ([]readiness.Cell, error) {
	q := `SELECT id, tenant_id, name, supervisor_id, leader_id, multiplication_started_at, created_at
		FROM cells WHERE tenant_id = ?`
	args := []interface{}{tenantID}
	if scope.SupervisorID != "" {
		q += " AND supervisor_id = ?"
		args = append(args, scope.SupervisorID)
	}
	if scope.LeaderID != "" {
		q += " AND leader_id = ?"
		args = append(args, scope.LeaderID)
	}
	q += " ORDER BY created_at, id"

	var rows []cellRow
	if err := sqlx.SelectContext(ctx, dir.db, &rows, dir.db.Rebind(q), args...); err != nil {
		return nil, wrapDBErr(err, "querying cells")
	}
	cells := make([]readiness.Cell, 0, len(rows))
	for _, row := range rows {
		cells = append(cells, dir.unboil(row))
	}
	return cells, nil
}

// GetCellMetrics returns the latest metrics of a cell. A cell without metrics yields readiness.ErrMetricsUnavailable.
func (dir cellDirectory) GetCellMetrics(ctx context.Context, cellID string) (readiness.CellMetrics, error) {
	var row metricsRow
	q := dir.db.Rebind(`SELECT cell_id, member_count, meeting_frequency_pct, average_attendance_pct,
			potential_leader_count, age_in_months, leader_maturity_score, growth_rate_pct, stability_score, collected_at
		FROM cell_metrics WHERE cell_id = ?`)
	if err := sqlx.GetContext(ctx, dir.db, &row, q, cellID); err != nil {
		if errors.Cause(err) == sql.ErrNoRows {
			return readiness.CellMetrics{}, readiness.ErrMetricsUnavailable
		}
		return readiness.CellMetrics{}, wrapDBErr(err, "finding metrics")
	}
	collectedAt := row.CollectedAt.UTC()
	return readiness.CellMetrics{
		MemberCount:          row.MemberCount.Ptr(),
		MeetingFrequencyPct:  row.MeetingFrequencyPct.Ptr(),
		AverageAttendancePct: row.AverageAttendancePct.Ptr(),
		PotentialLeaderCount: row.PotentialLeaderCount.Ptr(),
		AgeInMonths:          row.AgeInMonths.Ptr(),
		LeaderMaturityScore:  row.LeaderMaturityScore.Ptr(),
		GrowthRatePct:        row.GrowthRatePct.Ptr(),
		StabilityScore:       row.StabilityScore.Ptr(),
		CollectedAt:          &collectedAt,
	}, nil
}
