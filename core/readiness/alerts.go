package readiness

import (
	"fmt"
	"sort"
	"time"
)

const (
	DefaultStagnantAfter       = 30 * 24 * time.Hour
	DefaultNewlyReadyWindow    = 7 * 24 * time.Hour
	DefaultRegressionTolerance = 5.
)

var alertPriorities = map[AlertType]int{
	AlertOverdueEvaluation: 4,
	AlertStagnantReady:     3,
	AlertNewlyReady:        2,
	AlertRegressing:        1,
}

type AlertOptions struct {
	StagnantAfter       time.Duration
	NewlyReadyWindow    time.Duration
	RegressionTolerance float64 // score points
}

func (opts *AlertOptions) setDefaults() {
	if opts.StagnantAfter <= 0 {
		opts.StagnantAfter = DefaultStagnantAfter
	}
	if opts.NewlyReadyWindow <= 0 {
		opts.NewlyReadyWindow = DefaultNewlyReadyWindow
	}
	if opts.RegressionTolerance <= 0 {
		opts.RegressionTolerance = DefaultRegressionTolerance
	}
}

// GenerateAlerts derives at most one alert per cell of the dashboard, the most urgent rule winning.
// Alerts are sorted by priority, then readiness score (both descending), then cell id.
func GenerateAlerts(dash DashboardSummary, cells []Cell, opts AlertOptions, now time.Time) []Alert {
	opts.setDefaults()
	byID := make(map[string]Cell, len(cells))
	for _, cell := range cells {
		byID[cell.ID] = cell
	}

	alerts := make([]Alert, 0)
	for _, cr := range dash.Cells {
		alertType, msg, ok := matchAlert(cr, byID[cr.CellID], opts, now)
		if !ok {
			continue
		}
		alerts = append(alerts, Alert{
			CellID:         cr.CellID,
			CellName:       cr.CellName,
			AlertType:      alertType,
			Message:        msg,
			Priority:       alertPriorities[alertType],
			ReadinessScore: cr.ReadinessScore,
			CreatedAt:      cr.LastEvaluatedAt,
		})
	}

	sort.Slice(alerts, func(i, j int) bool {
		ai, aj := alerts[i], alerts[j]
		if ai.Priority != aj.Priority {
			return ai.Priority > aj.Priority
		}
		if ai.ReadinessScore != aj.ReadinessScore {
			return ai.ReadinessScore > aj.ReadinessScore
		}
		return ai.CellID < aj.CellID
	})
	return alerts
}

func matchAlert(cr CellReadiness, cell Cell, opts AlertOptions, now time.Time) (AlertType, string, bool) {
	name := cr.CellName
	if name == "" {
		name = cr.CellID
	}

	if cr.Status == StatusOverdue {
		return AlertOverdueEvaluation,
			fmt.Sprintf("Cell %s is ready to multiply but its last evaluation is out of date: evaluate it again.", name), true
	}

	if cr.Status.IsReadyTier() && cr.ReadySince != nil {
		readyFor := now.Sub(*cr.ReadySince)
		if readyFor >= opts.StagnantAfter && !multiplicationStartedSince(cell, *cr.ReadySince) {
			return AlertStagnantReady,
				fmt.Sprintf("Cell %s has been ready for %d days without starting its multiplication.", name, int(readyFor.Hours()/24)), true
		}
		if readyFor <= opts.NewlyReadyWindow {
			return AlertNewlyReady,
				fmt.Sprintf("Cell %s is now ready to multiply (score %.1f).", name, cr.ReadinessScore), true
		}
	}

	if cr.PreviousScore != nil && *cr.PreviousScore-cr.ReadinessScore >= opts.RegressionTolerance {
		return AlertRegressing,
			fmt.Sprintf("Cell %s readiness dropped from %.1f to %.1f.", name, *cr.PreviousScore, cr.ReadinessScore), true
	}
	return "", "", false
}
