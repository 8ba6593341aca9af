package readiness

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBuildDashboard(t *testing.T) {
	cells := []Cell{
		{ID: "a", Name: "Alpha"},
		{ID: "b", Name: "Beta"},
		{ID: "c", Name: "Gamma"},
		{ID: "d", Name: "Delta"},
		{ID: "e", Name: "Epsilon"},
	}
	records := []Record{
		{CellID: "a", ReadinessScore: 40, Status: StatusNotReady},
		{CellID: "b", ReadinessScore: 95, Status: StatusOptimal},
		{CellID: "c", ReadinessScore: 80, Status: StatusReady},
		{CellID: "d", ReadinessScore: 80, Status: StatusOverdue},
	}
	wc := WeightCheck{ActiveWeightSum: 1.2, Limit: 1, Exceeded: true}

	dash := BuildDashboard("t1", records, cells, wc, evalNow)

	assert.Equal(t, "t1", dash.TenantID)
	assert.Equal(t, 4, dash.TotalCells)
	assert.Equal(t, 1, dash.UnevaluatedCells)
	assert.Equal(t, 73.75, dash.AverageScore)
	assert.Equal(t, map[Status]int{
		StatusNotReady:  1,
		StatusPreparing: 0,
		StatusReady:     1,
		StatusOptimal:   1,
		StatusOverdue:   1,
	}, dash.StatusCounts)
	assert.Equal(t, 25., dash.Distribution[StatusReady])
	assert.Equal(t, 0., dash.Distribution[StatusPreparing])
	assert.True(t, dash.WeightsExceeded)
	assert.Equal(t, 1.2, dash.ActiveWeightSum)
	assert.Equal(t, evalNow, dash.GeneratedAt)

	order := make([]string, 0, len(dash.Cells))
	for _, cr := range dash.Cells {
		order = append(order, cr.CellName)
	}
	assert.Equal(t, []string{"Beta", "Gamma", "Delta", "Alpha"}, order)
}

func TestBuildDashboard_empty(t *testing.T) {
	dash := BuildDashboard("t1", nil, nil, WeightCheck{}, evalNow)
	assert.Zero(t, dash.TotalCells)
	assert.Zero(t, dash.AverageScore)
	assert.Len(t, dash.StatusCounts, len(AllStatuses))
	assert.NotNil(t, dash.Cells)
}

func TestGenerateAlerts(t *testing.T) {
	days := func(n int) *time.Time {
		tm := evalNow.Add(-time.Duration(n) * 24 * time.Hour)
		return &tm
	}
	score := func(f float64) *float64 { return &f }

	cells := []Cell{
		{ID: "overdue", Name: "Overdue"},
		{ID: "stagnant", Name: "Stagnant"},
		{ID: "multiplying", Name: "Multiplying", MultiplicationStartedAt: days(2)},
		{ID: "new", Name: "New"},
		{ID: "new2", Name: "New 2"},
		{ID: "regressing", Name: "Regressing"},
		{ID: "slight", Name: "Slight"},
		{ID: "quiet", Name: "Quiet"},
	}
	records := []Record{
		{CellID: "overdue", ReadinessScore: 91, Status: StatusOverdue, ReadySince: days(70)},
		{CellID: "stagnant", ReadinessScore: 85, Status: StatusReady, ReadySince: days(40)},
		{CellID: "multiplying", ReadinessScore: 85, Status: StatusReady, ReadySince: days(40)},
		{CellID: "new", ReadinessScore: 78, Status: StatusReady, ReadySince: days(1), PreviousScore: score(70), PreviousStatus: StatusPreparing},
		{CellID: "new2", ReadinessScore: 92, Status: StatusOptimal, ReadySince: days(3)},
		{CellID: "regressing", ReadinessScore: 55, Status: StatusPreparing, PreviousScore: score(70), PreviousStatus: StatusPreparing},
		{CellID: "slight", ReadinessScore: 55, Status: StatusPreparing, PreviousScore: score(58), PreviousStatus: StatusPreparing},
		{CellID: "quiet", ReadinessScore: 30, Status: StatusNotReady},
	}
	for i := range records {
		records[i].LastEvaluatedAt = evalNow.Add(-time.Hour)
	}
	dash := BuildDashboard("t1", records, cells, WeightCheck{}, evalNow)

	alerts := GenerateAlerts(dash, cells, AlertOptions{}, evalNow)

	type got struct {
		cell      string
		alertType AlertType
		priority  int
	}
	gots := make([]got, 0, len(alerts))
	for _, a := range alerts {
		gots = append(gots, got{a.CellID, a.AlertType, a.Priority})
		assert.Equal(t, evalNow.Add(-time.Hour), a.CreatedAt)
		assert.NotEmpty(t, a.Message)
	}
	assert.Equal(t, []got{
		{"overdue", AlertOverdueEvaluation, 4},
		{"stagnant", AlertStagnantReady, 3},
		{"new2", AlertNewlyReady, 2},
		{"new", AlertNewlyReady, 2},
		{"regressing", AlertRegressing, 1},
	}, gots)
	assert.Equal(t, "Stagnant", alerts[1].CellName)
}

func TestGenerateAlerts_options(t *testing.T) {
	since := evalNow.Add(-10 * 24 * time.Hour)
	prev := 60.
	dash := BuildDashboard("t1", []Record{
		{CellID: "a", ReadinessScore: 80, Status: StatusReady, ReadySince: &since},
		{CellID: "b", ReadinessScore: 57, Status: StatusPreparing, PreviousScore: &prev},
	}, nil, WeightCheck{}, evalNow)

	tests := []struct {
		name  string
		opts  AlertOptions
		types []AlertType
	}{
		{name: "defaults", types: nil},
		{name: "short stagnation", opts: AlertOptions{StagnantAfter: 5 * 24 * time.Hour}, types: []AlertType{AlertStagnantReady}},
		{name: "wide window", opts: AlertOptions{NewlyReadyWindow: 14 * 24 * time.Hour}, types: []AlertType{AlertNewlyReady}},
		{name: "low tolerance", opts: AlertOptions{RegressionTolerance: 2}, types: []AlertType{AlertRegressing}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var types []AlertType
			for _, a := range GenerateAlerts(dash, nil, tt.opts, evalNow) {
				types = append(types, a.AlertType)
			}
			assert.Equal(t, tt.types, types)
		})
	}
}
