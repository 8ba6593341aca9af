package readiness

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekklesia-app/ekklesia/core"
	"github.com/ekklesia-app/ekklesia/core/access"
)

var errCollectorDown = errors.New("collector down")

// fakeStore implements every repository of the service.
type fakeStore struct {
	mu       sync.Mutex
	criteria map[string]Criterion
	records  map[string]Record
	cells    []Cell
	metrics  map[string]CellMetrics
	failing  map[string]bool // cells whose metrics cannot be collected
	slow     map[string]bool // cells whose metrics never come
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		criteria: make(map[string]Criterion),
		records:  make(map[string]Record),
		metrics:  make(map[string]CellMetrics),
		failing:  make(map[string]bool),
		slow:     make(map[string]bool),
	}
}

func (s *fakeStore) QueryCriteria(_ context.Context, tenantID string, activeOnly bool) ([]Criterion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	crits := make([]Criterion, 0)
	for _, c := range s.criteria {
		if c.TenantID == tenantID && (!activeOnly || c.IsActive) {
			crits = append(crits, c)
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

func (s *fakeStore) GetCriterion(_ context.Context, tenantID, id string) (Criterion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.criteria[id]; ok && c.TenantID == tenantID {
		return c, nil
	}
	return Criterion{}, ErrNotFound
}

func (s *fakeStore) CreateCriteria(_ context.Context, crits ...Criterion) ([]Criterion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range crits {
		s.criteria[c.ID] = c
	}
	return crits, nil
}

func (s *fakeStore) UpdateCriterion(_ context.Context, crit Criterion) (Criterion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.criteria[crit.ID] = crit
	return crit, nil
}

func (s *fakeStore) DeleteCriterion(_ context.Context, tenantID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.criteria[id]; !ok || c.TenantID != tenantID {
		return ErrNotFound
	}
	delete(s.criteria, id)
	return nil
}

func (s *fakeStore) UpsertRecord(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.CellID] = rec
	return nil
}

func (s *fakeStore) GetRecord(_ context.Context, cellID string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.records[cellID]; ok {
		return rec, nil
	}
	return Record{}, ErrNotFound
}

func (s *fakeStore) QueryRecords(_ context.Context, tenantID string, filter RecordFilter, _ ...core.DBOrdering) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make(map[string]bool, len(filter.CellIDs))
	for _, id := range filter.CellIDs {
		ids[id] = true
	}
	recs := make([]Record, 0)
	for _, rec := range s.records {
		if rec.TenantID == tenantID && (filter.CellIDs == nil || ids[rec.CellID]) {
			recs = append(recs, rec)
		}
	}
	return recs, nil
}

func (s *fakeStore) DeleteRecord(_ context.Context, cellID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, cellID)
	return nil
}

func (s *fakeStore) GetCell(_ context.Context, cellID string) (Cell, error) {
	for _, c := range s.cells {
		if c.ID == cellID {
			return c, nil
		}
	}
	return Cell{}, ErrNotFound
}

func (s *fakeStore) QueryCells(_ context.Context, tenantID string, scope CellScope) ([]Cell, error) {
	cells := make([]Cell, 0)
	for _, c := range s.cells {
		if c.TenantID == tenantID && scope.Includes(c) {
			cells = append(cells, c)
		}
	}
	return cells, nil
}

func (s *fakeStore) GetCellMetrics(ctx context.Context, cellID string) (CellMetrics, error) {
	s.mu.Lock()
	failing, slow, m := s.failing[cellID], s.slow[cellID], s.metrics[cellID]
	s.mu.Unlock()
	switch {
	case failing:
		return CellMetrics{}, errCollectorDown
	case slow:
		<-ctx.Done()
		return CellMetrics{}, ctx.Err()
	}
	return m, nil
}

type testLogger struct {
	mu       sync.Mutex
	warnings []string
	errors   []string
}

var _ core.Logger = (*testLogger)(nil)

func (l *testLogger) Debug(string, ...interface{}) {}
func (l *testLogger) Info(string, ...interface{})  {}
func (l *testLogger) Fatal(string, ...interface{}) {}

func (l *testLogger) Warn(msg string, _ ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warnings = append(l.warnings, msg)
}

func (l *testLogger) Error(msg string, _ ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, msg)
}

func newTestService(t *testing.T) (*Service, *fakeStore, *testLogger) {
	t.Helper()
	origNow := nowFunc
	nowFunc = func() time.Time { return evalNow }
	t.Cleanup(func() { nowFunc = origNow })

	store := newFakeStore()
	logger := new(testLogger)
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	InitValidators(validate, translator)
	conf := &core.Config{Readiness: core.ReadinessConfig{
		OverdueAfter:        DefaultOverdueAfter,
		StagnantAfter:       DefaultStagnantAfter,
		NewlyReadyWindow:    DefaultNewlyReadyWindow,
		RegressionTolerance: DefaultRegressionTolerance,
		EvaluationTimeout:   time.Second,
		BatchConcurrency:    2,
	}}
	svc := NewService(store, store, store, store, access.NewRoleAuthorizer(), logger, validate, translator, conf)
	return svc, store, logger
}

func asUser(tenantID, userID string, roles ...string) context.Context {
	return access.WithPrincipal(context.Background(), access.Principal{UserID: userID, TenantID: tenantID, Roles: roles})
}

func TestService_criteriaRegistry(t *testing.T) {
	svc, _, logger := newTestService(t)
	admin := asUser("t1", "u1", access.RoleAdminOwner)

	members, wc, err := svc.CreateCriterion(admin, "t1", NewCriterion{Name: "Members", CriteriaType: MemberCount, ThresholdValue: 12, Weight: .6, IsRequired: true})
	require.NoError(t, err)
	assert.NotEmpty(t, members.ID)
	assert.Equal(t, "t1", members.TenantID)
	assert.True(t, members.IsActive)
	assert.Equal(t, evalNow, members.CreatedAt)
	assert.Equal(t, WeightCheck{ActiveWeightSum: .6, Limit: 1}, wc)

	// above 1: saved and flagged
	growth, wc, err := svc.CreateCriterion(admin, "t1", NewCriterion{Name: "Growth", CriteriaType: GrowthRate, ThresholdValue: 5, Weight: .5})
	require.NoError(t, err)
	assert.True(t, wc.Exceeded)
	assert.Equal(t, 1.1, wc.ActiveWeightSum)
	assert.Len(t, logger.warnings, 1)

	_, _, err = svc.CreateCriterion(admin, "t1", NewCriterion{Name: "Bad", CriteriaType: "tithes", Weight: .5})
	assert.IsType(t, &core.ValidationError{}, errors.Cause(err))

	crits, err := svc.ListCriteria(admin, "t1", false)
	require.NoError(t, err)
	assert.Len(t, crits, 2)
	assert.Equal(t, "Members", crits[0].Name)

	off := false
	growth, wc, err = svc.UpdateCriterion(admin, "t1", growth.ID, UpdateCriterion{IsActive: &off})
	require.NoError(t, err)
	assert.False(t, growth.IsActive)
	assert.False(t, wc.Exceeded)

	active, err := svc.ListCriteria(admin, "t1", true)
	require.NoError(t, err)
	assert.Len(t, active, 1)

	wc, err = svc.CheckWeights(admin, "t1")
	require.NoError(t, err)
	assert.Equal(t, .6, wc.ActiveWeightSum)

	// another tenant's criterion is not found
	otherAdmin := asUser("t2", "u2", access.RoleAdmin)
	_, _, err = svc.UpdateCriterion(otherAdmin, "t2", growth.ID, UpdateCriterion{IsActive: &off})
	assert.Equal(t, ErrNotFound, errors.Cause(err))
	assert.Equal(t, ErrNotFound, errors.Cause(svc.DeleteCriterion(otherAdmin, "t2", growth.ID)))

	require.NoError(t, svc.DeleteCriterion(admin, "t1", growth.ID))
	crits, err = svc.ListCriteria(admin, "t1", false)
	require.NoError(t, err)
	assert.Len(t, crits, 1)
}

func TestService_permissions(t *testing.T) {
	svc, _, _ := newTestService(t)
	leader := asUser("t1", "u1", access.RoleLeader)
	nc := NewCriterion{Name: "Members", CriteriaType: MemberCount, Weight: .5}

	_, _, err := svc.CreateCriterion(leader, "t1", nc)
	assert.Equal(t, access.ErrForbidden, errors.Cause(err))

	_, err = svc.EvaluateCell(leader, "t1", "c1")
	assert.Equal(t, access.ErrForbidden, errors.Cause(err))

	_, err = svc.ListCriteria(context.Background(), "t1", false)
	assert.Equal(t, access.ErrUnauthenticated, errors.Cause(err))

	_, err = svc.ListCriteria(leader, "t1", false)
	assert.NoError(t, err)
}

func TestService_SeedDefaultCriteria(t *testing.T) {
	svc, _, _ := newTestService(t)
	admin := asUser("t1", "u1", access.RoleAdminPastor)

	crits, err := svc.SeedDefaultCriteria(admin, "t1")
	require.NoError(t, err)
	assert.Len(t, crits, len(AllCriteriaTypes))

	wc, err := svc.CheckWeights(admin, "t1")
	require.NoError(t, err)
	assert.False(t, wc.Exceeded)

	_, err = svc.SeedDefaultCriteria(admin, "t1")
	assert.Equal(t, ErrCriteriaExist, errors.Cause(err))
}

func seedScenario(t *testing.T, svc *Service, store *fakeStore) {
	t.Helper()
	admin := asUser("t1", "u1", access.RoleAdminOwner)
	for _, nc := range []NewCriterion{
		{Name: "member_count", CriteriaType: MemberCount, ThresholdValue: 12, Weight: .4, IsRequired: true},
		{Name: "average_attendance", CriteriaType: AverageAttendance, ThresholdValue: 70, Weight: .3, IsRequired: true},
		{Name: "leader_maturity", CriteriaType: LeaderMaturity, ThresholdValue: 80, Weight: .3},
	} {
		_, _, err := svc.CreateCriterion(admin, "t1", nc)
		require.NoError(t, err)
	}
	store.cells = []Cell{
		{ID: "a", TenantID: "t1", Name: "Alpha", SupervisorID: "s1", LeaderID: "l1"},
		{ID: "b", TenantID: "t1", Name: "Beta", SupervisorID: "s1", LeaderID: "l2"},
		{ID: "c", TenantID: "t1", Name: "Gamma", SupervisorID: "s2", LeaderID: "l1"},
		{ID: "x", TenantID: "t2", Name: "Other"},
	}
	store.metrics["a"] = CellMetrics{MemberCount: Float(15), AverageAttendancePct: Float(75), LeaderMaturityScore: Float(60)}
	store.metrics["b"] = CellMetrics{MemberCount: Float(10), AverageAttendancePct: Float(75), LeaderMaturityScore: Float(60)}
	store.metrics["c"] = CellMetrics{MemberCount: Float(8), AverageAttendancePct: Float(50), LeaderMaturityScore: Float(20)}
}

func TestService_EvaluateCell(t *testing.T) {
	svc, store, logger := newTestService(t)
	supervisor := asUser("t1", "s1", access.RoleSupervisor)

	store.cells = []Cell{{ID: "a", TenantID: "t1", Name: "Alpha"}}
	_, err := svc.EvaluateCell(supervisor, "t1", "a")
	assert.Equal(t, ErrNoCriteriaConfigured, errors.Cause(err))
	assert.Empty(t, store.records)

	seedScenario(t, svc, store)

	rec, err := svc.EvaluateCell(supervisor, "t1", "a")
	require.NoError(t, err)
	assert.Equal(t, 92.5, rec.ReadinessScore)
	assert.Equal(t, StatusOptimal, rec.Status)
	assert.Equal(t, rec, store.records["a"])

	got, err := svc.GetRecord(supervisor, "t1", "a")
	require.NoError(t, err)
	assert.Equal(t, rec, got)

	// cells of other tenants are not found
	_, err = svc.EvaluateCell(supervisor, "t1", "x")
	assert.Equal(t, ErrNotFound, errors.Cause(err))
	_, err = svc.EvaluateCell(supervisor, "t1", "nope")
	assert.Equal(t, ErrNotFound, errors.Cause(err))

	// a failed evaluation keeps the previous record
	store.failing["a"] = true
	_, err = svc.EvaluateCell(supervisor, "t1", "a")
	assert.Equal(t, ErrMetricsUnavailable, errors.Cause(err))
	assert.Equal(t, rec, store.records["a"])
	assert.Len(t, logger.errors, 1)
}

func TestService_EvaluateCell_timeout(t *testing.T) {
	svc, store, _ := newTestService(t)
	svc.conf.Readiness.EvaluationTimeout = 20 * time.Millisecond
	seedScenario(t, svc, store)
	store.slow["a"] = true

	_, err := svc.EvaluateCell(asUser("t1", "u1", access.RoleAdmin), "t1", "a")
	assert.Equal(t, ErrMetricsUnavailable, errors.Cause(err))
	_, ok := store.records["a"]
	assert.False(t, ok)
}

func TestService_EvaluateAllCells(t *testing.T) {
	svc, store, logger := newTestService(t)
	seedScenario(t, svc, store)
	store.failing["b"] = true
	admin := asUser("t1", "u1", access.RoleAdmin)

	results, err := svc.EvaluateAllCells(admin, "t1")
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, "a", results[0].CellID)
	assert.NoError(t, results[0].Err)
	require.NotNil(t, results[0].Record)
	assert.Equal(t, StatusOptimal, results[0].Record.Status)

	assert.Equal(t, "b", results[1].CellID)
	assert.Equal(t, ErrMetricsUnavailable, errors.Cause(results[1].Err))
	assert.Nil(t, results[1].Record)

	assert.Equal(t, "c", results[2].CellID)
	assert.NoError(t, results[2].Err)
	assert.Equal(t, StatusNotReady, results[2].Record.Status)

	assert.Contains(t, store.records, "a")
	assert.NotContains(t, store.records, "b")
	assert.Contains(t, store.records, "c")
	assert.Contains(t, logger.warnings, "readiness batch evaluation completed with failures")
}

func TestService_QueryRecords(t *testing.T) {
	svc, store, _ := newTestService(t)
	seedScenario(t, svc, store)
	admin := asUser("t1", "u1", access.RoleAdmin)
	_, err := svc.EvaluateAllCells(admin, "t1")
	require.NoError(t, err)

	recs, err := svc.QueryRecords(admin, "t1", RecordFilter{}, core.DBOrdering{Field: "readiness_score"})
	require.NoError(t, err)
	assert.Len(t, recs, 3)

	_, err = svc.QueryRecords(admin, "t1", RecordFilter{}, core.DBOrdering{Field: "name; DROP TABLE cells"})
	assert.IsType(t, &core.ValidationError{}, errors.Cause(err))
	_, err = svc.QueryRecords(admin, "t1", RecordFilter{Statuses: []Status{"done"}})
	assert.IsType(t, &core.ValidationError{}, errors.Cause(err))

	require.NoError(t, svc.ForgetCell(admin, "t1", "c"))
	assert.NotContains(t, store.records, "c")
	assert.Equal(t, ErrNotFound, errors.Cause(svc.ForgetCell(admin, "t1", "c")))
}

func TestService_GetDashboard(t *testing.T) {
	svc, store, _ := newTestService(t)
	seedScenario(t, svc, store)
	admin := asUser("t1", "u1", access.RoleAdmin)
	_, err := svc.EvaluateAllCells(admin, "t1")
	require.NoError(t, err)

	dash, err := svc.GetDashboard(admin, "t1", CellScope{})
	require.NoError(t, err)
	assert.Equal(t, 3, dash.TotalCells)
	assert.Equal(t, "Alpha", dash.Cells[0].CellName)
	assert.Equal(t, 1., dash.ActiveWeightSum)

	// supervisors only see their cells
	supervisor := asUser("t1", "s2", access.RoleSupervisor)
	dash, err = svc.GetDashboard(supervisor, "t1", CellScope{SupervisorID: "s1"})
	require.NoError(t, err)
	assert.Equal(t, 1, dash.TotalCells)
	assert.Equal(t, "c", dash.Cells[0].CellID)

	dash, err = svc.GetDashboard(admin, "t1", CellScope{SupervisorID: "s1"})
	require.NoError(t, err)
	assert.Equal(t, 2, dash.TotalCells)

	// leaders only see the cells they lead
	leader := asUser("t1", "l2", access.RoleLeader)
	dash, err = svc.GetDashboard(leader, "t1", CellScope{})
	require.NoError(t, err)
	assert.Equal(t, 1, dash.TotalCells)
	assert.Equal(t, "b", dash.Cells[0].CellID)

	dash, err = svc.GetDashboard(admin, "t1", CellScope{LeaderID: "l1"})
	require.NoError(t, err)
	assert.Equal(t, 2, dash.TotalCells)

	// the highest role decides the scope
	both := asUser("t1", "s2", access.RoleLeader, access.RoleSupervisor)
	dash, err = svc.GetDashboard(both, "t1", CellScope{})
	require.NoError(t, err)
	assert.Equal(t, 1, dash.TotalCells)
	assert.Equal(t, "c", dash.Cells[0].CellID)
}

func TestService_scopedRecords(t *testing.T) {
	svc, store, _ := newTestService(t)
	seedScenario(t, svc, store)
	admin := asUser("t1", "u1", access.RoleAdmin)
	_, err := svc.EvaluateAllCells(admin, "t1")
	require.NoError(t, err)

	ids := func(recs []Record) []string {
		got := make([]string, 0, len(recs))
		for _, rec := range recs {
			got = append(got, rec.CellID)
		}
		sort.Strings(got)
		return got
	}
	tests := []struct {
		name   string
		ctx    context.Context
		filter RecordFilter
		want   []string
	}{
		{name: "admin", ctx: admin, want: []string{"a", "b", "c"}},
		{name: "admin with cells", ctx: admin, filter: RecordFilter{CellIDs: []string{"b"}}, want: []string{"b"}},
		{name: "supervisor", ctx: asUser("t1", "s1", access.RoleSupervisor), want: []string{"a", "b"}},
		{name: "leader", ctx: asUser("t1", "l1", access.RoleLeader), want: []string{"a", "c"}},
		{name: "leader asking for other cells", ctx: asUser("t1", "l1", access.RoleLeader), filter: RecordFilter{CellIDs: []string{"b", "c"}}, want: []string{"c"}},
		{name: "leader without cells", ctx: asUser("t1", "l9", access.RoleLeader), want: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recs, err := svc.QueryRecords(tt.ctx, "t1", tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(recs))
		})
	}

	leader := asUser("t1", "l2", access.RoleLeader)
	_, err = svc.GetRecord(leader, "t1", "b")
	assert.NoError(t, err)
	_, err = svc.GetRecord(leader, "t1", "a")
	assert.Equal(t, ErrNotFound, errors.Cause(err))
}

func TestService_GetAlerts(t *testing.T) {
	svc, store, _ := newTestService(t)
	seedScenario(t, svc, store)
	admin := asUser("t1", "u1", access.RoleAdmin)
	_, err := svc.EvaluateAllCells(admin, "t1")
	require.NoError(t, err)

	alerts, err := svc.GetAlerts(admin, "t1", CellScope{}, 0)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, "a", alerts[0].CellID)
	assert.Equal(t, AlertNewlyReady, alerts[0].AlertType)

	// a is evaluated again 61 days later, b has reached the threshold meanwhile
	nowFunc = func() time.Time { return evalNow.Add(61 * 24 * time.Hour) }
	store.metrics["b"] = store.metrics["a"]
	_, err = svc.EvaluateAllCells(admin, "t1")
	require.NoError(t, err)
	assert.Equal(t, StatusOverdue, store.records["a"].Status)

	alerts, err = svc.GetAlerts(admin, "t1", CellScope{}, 0)
	require.NoError(t, err)
	require.Len(t, alerts, 2)
	assert.Equal(t, AlertOverdueEvaluation, alerts[0].AlertType)
	assert.Equal(t, "b", alerts[1].CellID)
	assert.Equal(t, AlertNewlyReady, alerts[1].AlertType)

	alerts, err = svc.GetAlerts(admin, "t1", CellScope{}, 1)
	require.NoError(t, err)
	assert.Len(t, alerts, 1)
}
