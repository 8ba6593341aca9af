package readiness

import (
	"context"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/ekklesia-app/ekklesia/core"
	"github.com/ekklesia-app/ekklesia/core/access"
)

type (
	CriteriaRepository interface {
		// QueryCriteria returns the criteria of a tenant ordered by weight desc, name asc.
		QueryCriteria(ctx context.Context, tenantID string, activeOnly bool) ([]Criterion, error)
		GetCriterion(ctx context.Context, tenantID, id string) (Criterion, error)
		CreateCriteria(ctx context.Context, crits ...Criterion) ([]Criterion, error)
		UpdateCriterion(ctx context.Context, crit Criterion) (Criterion, error)
		DeleteCriterion(ctx context.Context, tenantID, id string) error
	}

	// RecordRepository stores the latest Record of each cell.
	RecordRepository interface {
		UpsertRecord(ctx context.Context, rec Record) error
		GetRecord(ctx context.Context, cellID string) (Record, error)
		QueryRecords(ctx context.Context, tenantID string, filter RecordFilter, ordering ...core.DBOrdering) ([]Record, error)
		DeleteRecord(ctx context.Context, cellID string) error
	}

	// CellDirectory gives read access to the cells owned by the cell management module.
	CellDirectory interface {
		GetCell(ctx context.Context, cellID string) (Cell, error)
		// QueryCells returns the cells of a tenant within scope.
		QueryCells(ctx context.Context, tenantID string, scope CellScope) ([]Cell, error)
	}

	MetricsCollector interface {
		GetCellMetrics(ctx context.Context, cellID string) (CellMetrics, error)
	}

	Service struct {
		criteria   CriteriaRepository
		records    RecordRepository
		cells      CellDirectory
		metrics    MetricsCollector
		authz      access.Authorizer
		log        core.Logger
		validate   *validator.Validate
		translator ut.Translator
		conf       *core.Config
	}
)

var nowFunc = func() time.Time {
	return time.Now().UTC()
}

func NewService(
	criteria CriteriaRepository,
	records RecordRepository,
	cells CellDirectory,
	metrics MetricsCollector,
	authz access.Authorizer,
	logger core.Logger,
	validate *validator.Validate,
	translator ut.Translator,
	conf *core.Config,
) *Service {
	return &Service{
		criteria:   criteria,
		records:    records,
		cells:      cells,
		metrics:    metrics,
		authz:      authz,
		log:        logger,
		validate:   validate,
		translator: translator,
		conf:       conf,
	}
}

func (svc *Service) authorize(ctx context.Context, perm access.Permission, tenantID string) error {
	if err := svc.authz.Authorize(ctx, perm, tenantID); err != nil {
		return errors.Wrap(err, string(perm))
	}
	return nil
}

// logArgs appends the request principal, if any, to the logger args.
func logArgs(ctx context.Context, args ...interface{}) []interface{} {
	if p, ok := access.PrincipalFrom(ctx); ok {
		args = append(args, p)
	}
	return args
}

// Criteria Registry

func (svc *Service) ListCriteria(ctx context.Context, tenantID string, activeOnly bool) ([]Criterion, error) {
	if err := svc.authorize(ctx, access.PermViewReadiness, tenantID); err != nil {
		return nil, err
	}
	return svc.criteria.QueryCriteria(ctx, tenantID, activeOnly)
}

// CreateCriterion validates and saves a new criterion. An active weight sum above 1
// is reported by the returned WeightCheck, the criterion is saved anyway.
func (svc *Service) CreateCriterion(ctx context.Context, tenantID string, nc NewCriterion) (Criterion, WeightCheck, error) {
	if err := svc.authorize(ctx, access.PermManageCriteria, tenantID); err != nil {
		return Criterion{}, WeightCheck{}, err
	}
	if err := nc.Validate(svc.validate); err != nil {
		return Criterion{}, WeightCheck{}, core.TranslateValidationErrors(err, svc.translator)
	}

	crits, err := svc.criteria.CreateCriteria(ctx, svc.newCriterion(tenantID, nc, nowFunc()))
	if err != nil {
		return Criterion{}, WeightCheck{}, err
	}
	wc, err := svc.checkWeights(ctx, tenantID)
	if err != nil {
		return Criterion{}, WeightCheck{}, err
	}
	return crits[0], wc, nil
}

func (svc *Service) newCriterion(tenantID string, nc NewCriterion, now time.Time) Criterion {
	isActive := true
	if nc.IsActive != nil {
		isActive = *nc.IsActive
	}
	return Criterion{
		ID:             uuid.New().String(),
		TenantID:       tenantID,
		Name:           nc.Name,
		Description:    nc.Description,
		CriteriaType:   nc.CriteriaType,
		ThresholdValue: nc.ThresholdValue,
		Weight:         nc.Weight,
		IsRequired:     nc.IsRequired,
		IsActive:       isActive,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func (svc *Service) UpdateCriterion(ctx context.Context, tenantID, id string, uc UpdateCriterion) (Criterion, WeightCheck, error) {
	if err := svc.authorize(ctx, access.PermManageCriteria, tenantID); err != nil {
		return Criterion{}, WeightCheck{}, err
	}
	orig, err := svc.criteria.GetCriterion(ctx, tenantID, id)
	if err != nil {
		return Criterion{}, WeightCheck{}, err
	}
	crit, err := uc.Validate(orig, svc.validate)
	if err != nil {
		return Criterion{}, WeightCheck{}, core.TranslateValidationErrors(err, svc.translator)
	}
	crit.UpdatedAt = nowFunc()

	if crit, err = svc.criteria.UpdateCriterion(ctx, crit); err != nil {
		return Criterion{}, WeightCheck{}, err
	}
	wc, err := svc.checkWeights(ctx, tenantID)
	if err != nil {
		return Criterion{}, WeightCheck{}, err
	}
	return crit, wc, nil
}

// DeleteCriterion hard deletes a criterion. Stored records keep their results.
func (svc *Service) DeleteCriterion(ctx context.Context, tenantID, id string) error {
	if err := svc.authorize(ctx, access.PermManageCriteria, tenantID); err != nil {
		return err
	}
	return svc.criteria.DeleteCriterion(ctx, tenantID, id)
}

func (svc *Service) CheckWeights(ctx context.Context, tenantID string) (WeightCheck, error) {
	if err := svc.authorize(ctx, access.PermViewReadiness, tenantID); err != nil {
		return WeightCheck{}, err
	}
	return svc.checkWeights(ctx, tenantID)
}

func (svc *Service) checkWeights(ctx context.Context, tenantID string) (WeightCheck, error) {
	crits, err := svc.criteria.QueryCriteria(ctx, tenantID, true)
	if err != nil {
		return WeightCheck{}, err
	}
	wc := checkWeights(crits)
	if wc.Exceeded {
		svc.log.Warn("readiness criteria weights exceed 1", logArgs(ctx, map[string]interface{}{
			"tenant_id":         tenantID,
			"active_weight_sum": wc.ActiveWeightSum,
		})...)
	}
	return wc, nil
}

// SeedDefaultCriteria creates the DefaultCriteria for a tenant without criteria.
func (svc *Service) SeedDefaultCriteria(ctx context.Context, tenantID string) ([]Criterion, error) {
	if err := svc.authorize(ctx, access.PermManageCriteria, tenantID); err != nil {
		return nil, err
	}
	existing, err := svc.criteria.QueryCriteria(ctx, tenantID, false)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return nil, ErrCriteriaExist
	}

	presets, err := DefaultCriteria()
	if err != nil {
		return nil, err
	}
	now := nowFunc()
	crits := make([]Criterion, 0, len(presets))
	for _, nc := range presets {
		if err = nc.Validate(svc.validate); err != nil {
			return nil, errors.Wrapf(core.TranslateValidationErrors(err, svc.translator), "preset %q", nc.Name)
		}
		crits = append(crits, svc.newCriterion(tenantID, nc, now))
	}
	return svc.criteria.CreateCriteria(ctx, crits...)
}

// Evaluation

// EvaluateCell evaluates a cell and stores its record.
// On failure the previous record of the cell is left untouched.
func (svc *Service) EvaluateCell(ctx context.Context, tenantID, cellID string) (Record, error) {
	if err := svc.authorize(ctx, access.PermEvaluate, tenantID); err != nil {
		return Record{}, err
	}
	cell, err := svc.cells.GetCell(ctx, cellID)
	if err != nil {
		return Record{}, err
	}
	if cell.TenantID != tenantID {
		return Record{}, ErrNotFound
	}
	crits, err := svc.criteria.QueryCriteria(ctx, tenantID, true)
	if err != nil {
		return Record{}, err
	}
	return svc.evaluate(ctx, cell, crits)
}

// EvaluateAllCells evaluates every cell of a tenant concurrently.
// A failing cell does not stop the others; its error is reported in its CellEvaluation.
// Results follow the cell order of the directory.
func (svc *Service) EvaluateAllCells(ctx context.Context, tenantID string) ([]CellEvaluation, error) {
	if err := svc.authorize(ctx, access.PermEvaluate, tenantID); err != nil {
		return nil, err
	}
	cells, err := svc.cells.QueryCells(ctx, tenantID, CellScope{})
	if err != nil {
		return nil, err
	}
	crits, err := svc.criteria.QueryCriteria(ctx, tenantID, true)
	if err != nil {
		return nil, err
	}

	results := make([]CellEvaluation, len(cells))
	var g errgroup.Group
	if n := svc.conf.Readiness.BatchConcurrency; n > 0 {
		g.SetLimit(n)
	}
	for i, cell := range cells {
		i, cell := i, cell
		g.Go(func() error {
			results[i].CellID = cell.ID
			rec, err := svc.evaluate(ctx, cell, crits)
			if err != nil {
				results[i].Err = err
				return nil
			}
			results[i].Record = &rec
			return nil
		})
	}
	_ = g.Wait() // goroutines never fail, errors are per cell

	var failed int
	for _, res := range results {
		if res.Err != nil {
			failed++
		}
	}
	if failed > 0 {
		svc.log.Warn("readiness batch evaluation completed with failures", logArgs(ctx, map[string]interface{}{
			"tenant_id": tenantID,
			"cells":     len(cells),
			"failed":    failed,
		})...)
	}
	return results, nil
}

func (svc *Service) evaluate(ctx context.Context, cell Cell, crits []Criterion) (Record, error) {
	if len(crits) == 0 {
		return Record{}, ErrNoCriteriaConfigured
	}
	if timeout := svc.conf.Readiness.EvaluationTimeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	metrics, err := svc.metrics.GetCellMetrics(ctx, cell.ID)
	if err != nil {
		svc.log.Error("collecting cell metrics", logArgs(ctx, err, map[string]interface{}{"cell_id": cell.ID})...)
		return Record{}, errors.Wrapf(ErrMetricsUnavailable, "cell %s: %v", cell.ID, err)
	}

	var prev *Record
	switch rec, err := svc.records.GetRecord(ctx, cell.ID); errors.Cause(err) {
	case nil:
		prev = &rec
	case ErrNotFound:
	default:
		return Record{}, err
	}

	rec, invalid, err := Evaluate(EvaluationInput{
		Cell:     cell,
		Criteria: crits,
		Metrics:  metrics,
		Previous: prev,
		Now:      nowFunc(),
	}, Options{
		OverdueAfter:      svc.conf.Readiness.OverdueAfter,
		StaleMetricsAfter: svc.conf.Readiness.StaleMetricsAfter,
	})
	for _, ic := range invalid {
		svc.log.Warn("skipping invalid readiness criterion", logArgs(ctx, ic, map[string]interface{}{"cell_id": cell.ID})...)
	}
	if err != nil {
		return Record{}, err
	}

	if err = svc.records.UpsertRecord(ctx, rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// Readiness Store

func (svc *Service) GetRecord(ctx context.Context, tenantID, cellID string) (Record, error) {
	if err := svc.authorize(ctx, access.PermViewReadiness, tenantID); err != nil {
		return Record{}, err
	}
	rec, err := svc.records.GetRecord(ctx, cellID)
	if err != nil {
		return Record{}, err
	}
	if rec.TenantID != tenantID {
		return Record{}, ErrNotFound
	}
	if scope := scopeFor(ctx, CellScope{}); !scope.IsEmpty() {
		cell, err := svc.cells.GetCell(ctx, cellID)
		if err != nil || !scope.Includes(cell) {
			return Record{}, ErrNotFound
		}
	}
	return rec, nil
}

// QueryRecords lists the stored records of a tenant. Supervisors and leaders only get those of their cells.
func (svc *Service) QueryRecords(ctx context.Context, tenantID string, filter RecordFilter, ordering ...core.DBOrdering) ([]Record, error) {
	if err := svc.authorize(ctx, access.PermViewReadiness, tenantID); err != nil {
		return nil, err
	}
	for _, st := range filter.Statuses {
		if !st.IsValid() {
			return nil, core.NewValidationError(nil, core.FieldError{Field: "status", Error: "unknown status " + string(st)})
		}
	}
	for _, ord := range ordering {
		if !RecordOrderings[ord.Field] {
			return nil, core.NewValidationError(nil, core.FieldError{Field: "ordering", Error: "cannot order by " + ord.Field})
		}
	}
	if scope := scopeFor(ctx, CellScope{}); !scope.IsEmpty() {
		cells, err := svc.cells.QueryCells(ctx, tenantID, scope)
		if err != nil {
			return nil, err
		}
		filter.CellIDs = restrictCells(filter.CellIDs, cells)
	}
	return svc.records.QueryRecords(ctx, tenantID, filter, ordering...)
}

// restrictCells keeps the ids of cellIDs found in cells, all of cells when cellIDs is nil.
func restrictCells(cellIDs []string, cells []Cell) []string {
	allowed := make(map[string]bool, len(cells))
	for _, cell := range cells {
		allowed[cell.ID] = true
	}
	ids := make([]string, 0, len(cells))
	if cellIDs == nil {
		for _, cell := range cells {
			ids = append(ids, cell.ID)
		}
		return ids
	}
	for _, id := range cellIDs {
		if allowed[id] {
			ids = append(ids, id)
		}
	}
	return ids
}

// ForgetCell deletes the record of a cell removed from the tenant.
func (svc *Service) ForgetCell(ctx context.Context, tenantID, cellID string) error {
	if err := svc.authorize(ctx, access.PermManageCriteria, tenantID); err != nil {
		return err
	}
	rec, err := svc.records.GetRecord(ctx, cellID)
	if err != nil {
		return err
	}
	if rec.TenantID != tenantID {
		return ErrNotFound
	}
	return svc.records.DeleteRecord(ctx, cellID)
}

// Dashboard & Alerts

// scopeFor restricts supervisors and leaders to their own cells, whatever scope they asked for.
// admins and trusted callers without a principal keep the requested scope.
func scopeFor(ctx context.Context, scope CellScope) CellScope {
	p, ok := access.PrincipalFrom(ctx)
	switch {
	case !ok || p.IsAdmin():
		return scope
	case p.IsSupervisor():
		return CellScope{SupervisorID: p.UserID}
	case p.IsLeader():
		return CellScope{LeaderID: p.UserID}
	}
	return scope
}

func (svc *Service) loadDashboard(ctx context.Context, tenantID string, scope CellScope) (DashboardSummary, []Cell, error) {
	if err := svc.authorize(ctx, access.PermViewReadiness, tenantID); err != nil {
		return DashboardSummary{}, nil, err
	}
	scope = scopeFor(ctx, scope)

	cells, err := svc.cells.QueryCells(ctx, tenantID, scope)
	if err != nil {
		return DashboardSummary{}, nil, err
	}
	var filter RecordFilter
	if !scope.IsEmpty() {
		filter.CellIDs = make([]string, 0, len(cells))
		for _, cell := range cells {
			filter.CellIDs = append(filter.CellIDs, cell.ID)
		}
	}
	records, err := svc.records.QueryRecords(ctx, tenantID, filter)
	if err != nil {
		return DashboardSummary{}, nil, err
	}
	wc, err := svc.checkWeights(ctx, tenantID)
	if err != nil {
		return DashboardSummary{}, nil, err
	}
	return BuildDashboard(tenantID, records, cells, wc, nowFunc()), cells, nil
}

// GetDashboard summarizes the stored records of the tenant's cells within scope.
// Stale records are reported as they are.
func (svc *Service) GetDashboard(ctx context.Context, tenantID string, scope CellScope) (DashboardSummary, error) {
	dash, _, err := svc.loadDashboard(ctx, tenantID, scope)
	return dash, err
}

// GetAlerts returns the most urgent alerts first. limit <= 0 returns them all.
func (svc *Service) GetAlerts(ctx context.Context, tenantID string, scope CellScope, limit int) ([]Alert, error) {
	dash, cells, err := svc.loadDashboard(ctx, tenantID, scope)
	if err != nil {
		return nil, err
	}
	alerts := GenerateAlerts(dash, cells, AlertOptions{
		StagnantAfter:       svc.conf.Readiness.StagnantAfter,
		NewlyReadyWindow:    svc.conf.Readiness.NewlyReadyWindow,
		RegressionTolerance: svc.conf.Readiness.RegressionTolerance,
	}, dash.GeneratedAt)
	if limit > 0 && len(alerts) > limit {
		alerts = alerts[:limit]
	}
	return alerts, nil
}
