package readiness

import (
	"math"
	"sort"
)

type CriteriaType string

const (
	MemberCount       CriteriaType = "member_count"
	MeetingFrequency  CriteriaType = "meeting_frequency"
	AverageAttendance CriteriaType = "average_attendance"
	PotentialLeaders  CriteriaType = "potential_leaders"
	CellAgeMonths     CriteriaType = "cell_age_months"
	LeaderMaturity    CriteriaType = "leader_maturity"
	GrowthRate        CriteriaType = "growth_rate"
	StabilityScore    CriteriaType = "stability_score"
)

type (
	metricFunc    func(CellMetrics) *float64
	normalizeFunc func(raw, threshold float64) float64
	metFunc       func(raw, threshold float64) bool

	// kind is the behaviour attached to a CriteriaType.
	kind struct {
		label     string
		category  category
		metric    metricFunc
		normalize normalizeFunc
		met       metFunc
	}
)

// kinds is the closed set of supported criteria types.
// adding a type means adding an entry here: its metric accessor, its normalization and its recommendation category.
var kinds = map[CriteriaType]kind{
	MemberCount: {
		label:     "Member count",
		category:  categoryGrowth,
		metric:    func(m CellMetrics) *float64 { return m.MemberCount },
		normalize: higherIsBetter,
		met:       atLeast,
	},
	MeetingFrequency: {
		label:     "Meeting frequency",
		category:  categoryAttendance,
		metric:    func(m CellMetrics) *float64 { return m.MeetingFrequencyPct },
		normalize: higherIsBetter,
		met:       atLeast,
	},
	AverageAttendance: {
		label:     "Average attendance",
		category:  categoryAttendance,
		metric:    func(m CellMetrics) *float64 { return m.AverageAttendancePct },
		normalize: higherIsBetter,
		met:       atLeast,
	},
	PotentialLeaders: {
		label:     "Potential leaders",
		category:  categoryLeadership,
		metric:    func(m CellMetrics) *float64 { return m.PotentialLeaderCount },
		normalize: higherIsBetter,
		met:       atLeast,
	},
	CellAgeMonths: {
		label:     "Cell age (months)",
		category:  categoryMaturity,
		metric:    func(m CellMetrics) *float64 { return m.AgeInMonths },
		normalize: higherIsBetter,
		met:       atLeast,
	},
	LeaderMaturity: {
		label:     "Leader maturity",
		category:  categoryLeadership,
		metric:    func(m CellMetrics) *float64 { return m.LeaderMaturityScore },
		normalize: higherIsBetter,
		met:       atLeast,
	},
	GrowthRate: {
		label:     "Growth rate",
		category:  categoryGrowth,
		metric:    func(m CellMetrics) *float64 { return m.GrowthRatePct },
		normalize: higherIsBetter,
		met:       atLeast,
	},
	StabilityScore: {
		label:     "Stability score",
		category:  categoryMaturity,
		metric:    func(m CellMetrics) *float64 { return m.StabilityScore },
		normalize: higherIsBetter,
		met:       atLeast,
	},
}

// AllCriteriaTypes lists the supported criteria types, sorted.
var AllCriteriaTypes = getAllCriteriaTypes()

func getAllCriteriaTypes() []CriteriaType {
	all := make([]CriteriaType, 0, len(kinds))
	for ct := range kinds {
		all = append(all, ct)
	}
	sort.Slice(all, func(i, j int) bool { return all[i] < all[j] })
	return all
}

func (ct CriteriaType) IsValid() bool {
	_, ok := kinds[ct]
	return ok
}

// Label returns a display label for the type, or the raw value for unknown types.
func (ct CriteriaType) Label() string {
	if k, ok := kinds[ct]; ok {
		return k.label
	}
	return string(ct)
}

// higherIsBetter maps raw/threshold to [0, 100]. A zero threshold is trivially satisfied.
func higherIsBetter(raw, threshold float64) float64 {
	if threshold == 0 {
		return 100
	}
	ratio := raw / threshold
	if math.IsNaN(ratio) || ratio < 0 {
		return 0
	}
	return math.Min(ratio, 1) * 100
}

func atLeast(raw, threshold float64) bool {
	return threshold == 0 || raw >= threshold
}
