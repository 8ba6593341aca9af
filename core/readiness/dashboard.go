package readiness

import (
	"sort"
	"time"
)

// BuildDashboard aggregates the records of a tenant. cells provides the names and
// the count of cells never evaluated. It triggers no evaluation.
func BuildDashboard(tenantID string, records []Record, cells []Cell, weights WeightCheck, now time.Time) DashboardSummary {
	names := make(map[string]string, len(cells))
	for _, cell := range cells {
		names[cell.ID] = cell.Name
	}

	dash := DashboardSummary{
		TenantID:        tenantID,
		TotalCells:      len(records),
		StatusCounts:    make(map[Status]int, len(AllStatuses)),
		Distribution:    make(map[Status]float64, len(AllStatuses)),
		Cells:           make([]CellReadiness, 0, len(records)),
		ActiveWeightSum: weights.ActiveWeightSum,
		WeightsExceeded: weights.Exceeded,
		GeneratedAt:     now.UTC(),
	}
	for _, st := range AllStatuses {
		dash.StatusCounts[st] = 0
		dash.Distribution[st] = 0
	}

	evaluated := make(map[string]bool, len(records))
	var scoreSum float64
	for _, rec := range records {
		evaluated[rec.CellID] = true
		dash.StatusCounts[rec.Status]++
		scoreSum += rec.ReadinessScore
		dash.Cells = append(dash.Cells, CellReadiness{CellName: names[rec.CellID], Record: rec})
	}
	for _, cell := range cells {
		if !evaluated[cell.ID] {
			dash.UnevaluatedCells++
		}
	}

	if dash.TotalCells > 0 {
		total := float64(dash.TotalCells)
		dash.AverageScore = round(scoreSum/total, 2)
		for st, count := range dash.StatusCounts {
			dash.Distribution[st] = round(float64(count)/total*100, 2)
		}
	}

	sort.SliceStable(dash.Cells, func(i, j int) bool {
		ci, cj := dash.Cells[i], dash.Cells[j]
		if ci.ReadinessScore != cj.ReadinessScore {
			return ci.ReadinessScore > cj.ReadinessScore
		}
		return ci.CellID < cj.CellID
	})
	return dash
}
