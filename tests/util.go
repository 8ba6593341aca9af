package testutil

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ekklesia-app/ekklesia/core"
	"github.com/ekklesia-app/ekklesia/core/readiness"
	"github.com/ekklesia-app/ekklesia/storage/database"
)

// OpenSQLiteDB opens a migrated sqlite3 database living in the test's temp dir.
func OpenSQLiteDB(t *testing.T) *sqlx.DB {
	t.Helper()
	conf := core.DatabaseConfig{Engine: "sqlite3", Name: filepath.Join(t.TempDir(), "ekklesia.db")}
	db, err := sqlx.Open(conf.Engine, conf.DSN())
	if err != nil {
		t.Fatalf("OpenSQLiteDB() failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err = database.Migrate(context.Background(), db); err != nil {
		t.Fatalf("OpenSQLiteDB() failed: %v", err)
	}
	return db
}

func CreateCriterion(
	t *testing.T,
	repo readiness.CriteriaRepository,
	tenantID, name string,
	ctype readiness.CriteriaType,
	threshold, weight float64,
	isRequired bool,
	createdAt ...time.Time,
) readiness.Criterion {
	t.Helper()
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	crit := readiness.Criterion{
		ID:             uuid.New().String(),
		TenantID:       tenantID,
		Name:           name,
		CriteriaType:   ctype,
		ThresholdValue: threshold,
		Weight:         weight,
		IsRequired:     isRequired,
		IsActive:       true,
		CreatedAt:      tstamp,
		UpdatedAt:      tstamp,
	}
	crits, err := repo.CreateCriteria(context.Background(), crit)
	if err != nil {
		t.Fatalf("CreateCriterion() failed: %v", err)
	}
	return crits[0]
}

// ScenarioCriteria creates the reference set of criteria: member count, attendance and potential
// leaders (required), weighing .4, .3 and .3.
func ScenarioCriteria(t *testing.T, repo readiness.CriteriaRepository, tenantID string) []readiness.Criterion {
	t.Helper()
	return []readiness.Criterion{
		CreateCriterion(t, repo, tenantID, "Members", readiness.MemberCount, 12, .4, false),
		CreateCriterion(t, repo, tenantID, "Attendance", readiness.AverageAttendance, 75, .3, false),
		CreateCriterion(t, repo, tenantID, "Potential leaders", readiness.PotentialLeaders, 2, .3, true),
	}
}

// ScenarioMetrics returns metrics meeting every ScenarioCriteria threshold but attendance (70 of 75).
func ScenarioMetrics() readiness.CellMetrics {
	return readiness.CellMetrics{
		MemberCount:          readiness.Float(14),
		AverageAttendancePct: readiness.Float(70),
		PotentialLeaderCount: readiness.Float(2),
	}
}
