package readiness

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/ekklesia-app/ekklesia/core"
)

// Status is the multiplication readiness state of a cell, derived from its latest evaluation.
type Status string

const (
	StatusNotReady  Status = "not_ready"
	StatusPreparing Status = "preparing"
	StatusReady     Status = "ready"
	StatusOptimal   Status = "optimal"
	StatusOverdue   Status = "overdue"
)

var AllStatuses = []Status{StatusNotReady, StatusPreparing, StatusReady, StatusOptimal, StatusOverdue}

// Tier orders statuses by readiness. overdue shares the ready tier.
func (s Status) Tier() int {
	switch s {
	case StatusPreparing:
		return 1
	case StatusReady, StatusOverdue:
		return 2
	case StatusOptimal:
		return 3
	default:
		return 0
	}
}

// IsReadyTier reports whether a cell with this status meets the conditions to multiply.
func (s Status) IsReadyTier() bool {
	return s == StatusReady || s == StatusOptimal || s == StatusOverdue
}

func (s Status) IsValid() bool {
	for _, st := range AllStatuses {
		if s == st {
			return true
		}
	}
	return false
}

type Criterion struct {
	ID             string       `json:"id"`
	TenantID       string       `json:"tenant_id"`
	Name           string       `json:"name"`
	Description    string       `json:"description,omitempty"`
	CriteriaType   CriteriaType `json:"criteria_type"`
	ThresholdValue float64      `json:"threshold_value"`
	Weight         float64      `json:"weight"`
	IsRequired     bool         `json:"is_required"`
	IsActive       bool         `json:"is_active"`
	CreatedAt      time.Time    `json:"created_at"` // UTC
	UpdatedAt      time.Time    `json:"updated_at"` // UTC
}

// NewCriterion contains information needed to create a new Criterion.
type NewCriterion struct {
	Name           string       `json:"name" yaml:"name" validate:"required,notblank,max=120"`
	Description    string       `json:"description" yaml:"description" validate:"max=500"`
	CriteriaType   CriteriaType `json:"criteria_type" yaml:"criteria_type" validate:"required,criteriatype"`
	ThresholdValue float64      `json:"threshold_value" yaml:"threshold_value" validate:"gte=0"`
	Weight         float64      `json:"weight" yaml:"weight" validate:"gt=0,lte=1"`
	IsRequired     bool         `json:"is_required" yaml:"is_required"`
	IsActive       *bool        `json:"is_active" yaml:"is_active"` // defaults to true
}

func (nc *NewCriterion) Validate(validate *validator.Validate) error {
	nc.Name = core.CleanString(nc.Name)
	nc.Description = core.CleanString(nc.Description)
	nc.CriteriaType = CriteriaType(core.CleanString(string(nc.CriteriaType), true /* lower */))
	return validate.Struct(nc)
}

// UpdateCriterion defines what information may be provided to modify an existing Criterion.
// nil fields are left unchanged.
type UpdateCriterion struct {
	Name           *string       `json:"name"`
	Description    *string       `json:"description"`
	CriteriaType   *CriteriaType `json:"criteria_type"`
	ThresholdValue *float64      `json:"threshold_value"`
	Weight         *float64      `json:"weight"`
	IsRequired     *bool         `json:"is_required"`
	IsActive       *bool         `json:"is_active"`
}

// Validate merges uc over origCrit and validates the result with NewCriterion's rules.
func (uc *UpdateCriterion) Validate(origCrit Criterion, validate *validator.Validate) (Criterion, error) {
	nc := NewCriterion{
		Name:           origCrit.Name,
		Description:    origCrit.Description,
		CriteriaType:   origCrit.CriteriaType,
		ThresholdValue: origCrit.ThresholdValue,
		Weight:         origCrit.Weight,
		IsRequired:     origCrit.IsRequired,
		IsActive:       &origCrit.IsActive,
	}
	if uc.Name != nil {
		nc.Name = *uc.Name
	}
	if uc.Description != nil {
		nc.Description = *uc.Description
	}
	if uc.CriteriaType != nil {
		nc.CriteriaType = *uc.CriteriaType
	}
	if uc.ThresholdValue != nil {
		nc.ThresholdValue = *uc.ThresholdValue
	}
	if uc.Weight != nil {
		nc.Weight = *uc.Weight
	}
	if uc.IsRequired != nil {
		nc.IsRequired = *uc.IsRequired
	}
	if uc.IsActive != nil {
		nc.IsActive = uc.IsActive
	}
	if err := nc.Validate(validate); err != nil {
		return Criterion{}, err
	}

	crit := origCrit
	crit.Name = nc.Name
	crit.Description = nc.Description
	crit.CriteriaType = nc.CriteriaType
	crit.ThresholdValue = nc.ThresholdValue
	crit.Weight = nc.Weight
	crit.IsRequired = nc.IsRequired
	crit.IsActive = *nc.IsActive
	return crit, nil
}

// WeightCheck reports the advisory rule that active weights of a tenant should sum to at most 1.
type WeightCheck struct {
	ActiveWeightSum float64 `json:"active_weight_sum"`
	Limit           float64 `json:"limit"`
	Exceeded        bool    `json:"exceeded"`
}

// weightSumEpsilon absorbs float error when summing weights such as 0.1 + 0.2 + 0.7.
const weightSumEpsilon = 1e-9

func checkWeights(crits []Criterion) WeightCheck {
	var sum float64
	for _, c := range crits {
		if c.IsActive {
			sum += c.Weight
		}
	}
	return WeightCheck{
		ActiveWeightSum: round(sum, 4),
		Limit:           1,
		Exceeded:        sum > 1+weightSumEpsilon,
	}
}

// Cell is a small group of a tenant, owned by the cell management module.
type Cell struct {
	ID                      string     `json:"id"`
	TenantID                string     `json:"tenant_id"`
	Name                    string     `json:"name"`
	SupervisorID            string     `json:"supervisor_id,omitempty"`
	LeaderID                string     `json:"leader_id,omitempty"`
	MultiplicationStartedAt *time.Time `json:"multiplication_started_at,omitempty"` // UTC
}

// CellMetrics holds the raw measurements of a cell. nil means the measurement is not available.
type CellMetrics struct {
	MemberCount          *float64 `json:"member_count"`
	MeetingFrequencyPct  *float64 `json:"meeting_frequency_pct"`
	AverageAttendancePct *float64 `json:"average_attendance_pct"`
	PotentialLeaderCount *float64 `json:"potential_leader_count"`
	AgeInMonths          *float64 `json:"age_in_months"`
	LeaderMaturityScore  *float64 `json:"leader_maturity_score"`
	GrowthRatePct        *float64 `json:"growth_rate_pct"`
	StabilityScore       *float64 `json:"stability_score"`

	// CollectedAt is when the measurements were taken, nil if unknown.
	CollectedAt *time.Time `json:"collected_at,omitempty"`
}

// Float returns a pointer to v, handy to build CellMetrics.
func Float(v float64) *float64 { return &v }

type CriterionResult struct {
	CriterionID     string       `json:"criterion_id"`
	Name            string       `json:"name"`
	CriteriaType    CriteriaType `json:"criteria_type"`
	RawValue        float64      `json:"raw_value"`
	HasValue        bool         `json:"has_value"`
	Threshold       float64      `json:"threshold"`
	Weight          float64      `json:"weight"`
	IsRequired      bool         `json:"is_required"`
	NormalizedScore float64      `json:"normalized_score"`
	Met             bool         `json:"met"`
	Contribution    float64      `json:"contribution"`
}

// Record is the latest readiness evaluation of a cell.
type Record struct {
	CellID          string            `json:"cell_id"`
	TenantID        string            `json:"tenant_id"`
	ReadinessScore  float64           `json:"readiness_score"`
	Status          Status            `json:"status"`
	CriteriaResults []CriterionResult `json:"criteria_results"`
	ProjectedDate   *time.Time        `json:"projected_date,omitempty"`
	ConfidenceLevel float64           `json:"confidence_level"`
	Recommendations []string          `json:"recommendations"`
	BlockingFactors []string          `json:"blocking_factors"`

	// outcome of the last evaluation that scored differently
	PreviousScore  *float64 `json:"previous_score,omitempty"`
	PreviousStatus Status   `json:"previous_status,omitempty"`
	// first evaluation at which the cell entered the ready tier, kept while it stays there
	ReadySince *time.Time `json:"ready_since,omitempty"`

	LastEvaluatedAt time.Time `json:"last_evaluated_at"` // UTC
}

type RecordFilter struct {
	Statuses []Status
	MinScore *float64
	CellIDs  []string
	Limit    int
	Offset   int
}

func (rf *RecordFilter) IsEmpty() bool {
	return rf == nil || (rf.Statuses == nil && rf.MinScore == nil && rf.CellIDs == nil && rf.Limit == 0 && rf.Offset == 0)
}

// RecordOrderings are the fields records may be ordered by.
var RecordOrderings = map[string]bool{
	"readiness_score":   true,
	"last_evaluated_at": true,
	"status":            true,
	"cell_id":           true,
}

// CellEvaluation is the outcome of evaluating one cell within a batch.
type CellEvaluation struct {
	CellID string  `json:"cell_id"`
	Record *Record `json:"record,omitempty"`
	Err    error   `json:"-"`
}

type CellReadiness struct {
	CellName string `json:"cell_name"`
	Record
}

type DashboardSummary struct {
	TenantID         string             `json:"tenant_id"`
	TotalCells       int                `json:"total_cells"` // evaluated cells
	UnevaluatedCells int                `json:"unevaluated_cells"`
	StatusCounts     map[Status]int     `json:"status_counts"`
	AverageScore     float64            `json:"average_score"`
	Distribution     map[Status]float64 `json:"distribution"` // percentages
	Cells            []CellReadiness    `json:"cells"`
	ActiveWeightSum  float64            `json:"active_weight_sum"`
	WeightsExceeded  bool               `json:"weights_exceeded"`
	GeneratedAt      time.Time          `json:"generated_at"`
}

// CellScope restricts a query to the cells of a supervisor and/or of a leader.
// The zero value covers the whole tenant.
type CellScope struct {
	SupervisorID string
	LeaderID     string
}

func (cs CellScope) IsEmpty() bool {
	return cs.SupervisorID == "" && cs.LeaderID == ""
}

// Includes reports whether cell falls within the scope.
func (cs CellScope) Includes(cell Cell) bool {
	return (cs.SupervisorID == "" || cell.SupervisorID == cs.SupervisorID) &&
		(cs.LeaderID == "" || cell.LeaderID == cs.LeaderID)
}

type AlertType string

const (
	AlertOverdueEvaluation AlertType = "overdue_evaluation"
	AlertStagnantReady     AlertType = "stagnant_ready"
	AlertNewlyReady        AlertType = "newly_ready"
	AlertRegressing        AlertType = "regressing"
)

type Alert struct {
	CellID         string    `json:"cell_id"`
	CellName       string    `json:"cell_name"`
	AlertType      AlertType `json:"alert_type"`
	Message        string    `json:"message"`
	Priority       int       `json:"priority"`
	ReadinessScore float64   `json:"readiness_score"`
	CreatedAt      time.Time `json:"created_at"`
}
