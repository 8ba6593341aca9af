package readiness

import (
	"math"
	"time"
)

const (
	preparingScore = 50.
	readyScore     = 75.
	optimalScore   = 90.

	// criteria scoring below weakScore drive the recommendations
	weakScore = 60.

	maxProjectionMonths = 36

	DefaultOverdueAfter      = 60 * 24 * time.Hour
	DefaultStaleMetricsAfter = 30 * 24 * time.Hour

	// confidence multiplier applied to stale metrics
	staleConfidenceFactor = .5
)

type (
	// EvaluationInput holds everything needed to evaluate one cell.
	// Previous is the cell's last stored record, nil on a first evaluation.
	EvaluationInput struct {
		Cell     Cell
		Criteria []Criterion
		Metrics  CellMetrics
		Previous *Record
		Now      time.Time
	}

	Options struct {
		// OverdueAfter is how long a ready cell may go without evaluation before it is overdue.
		OverdueAfter time.Duration
		// StaleMetricsAfter is the age past which collected metrics lower the confidence.
		StaleMetricsAfter time.Duration
	}
)

// Evaluate computes the readiness record of a cell. It has no side effects.
//
// Inactive criteria are ignored. Criteria of unknown types are skipped and returned
// so the caller can report them; they do not count in the weights.
// ErrNoCriteriaConfigured is returned when nothing is left to score.
func Evaluate(in EvaluationInput, opts Options) (Record, []InvalidCriterionError, error) {
	if opts.OverdueAfter <= 0 {
		opts.OverdueAfter = DefaultOverdueAfter
	}
	if opts.StaleMetricsAfter <= 0 {
		opts.StaleMetricsAfter = DefaultStaleMetricsAfter
	}
	now := in.Now.UTC()

	var (
		invalid               []InvalidCriterionError
		weightSum, contribSum float64
		evaluated, withMetric int
	)
	results := make([]CriterionResult, 0, len(in.Criteria))
	blocking := make([]string, 0)

	for _, crit := range in.Criteria {
		if !crit.IsActive {
			continue
		}
		k, ok := kinds[crit.CriteriaType]
		if !ok {
			invalid = append(invalid, InvalidCriterionError{
				CriterionID:  crit.ID,
				Name:         crit.Name,
				CriteriaType: crit.CriteriaType,
			})
			continue
		}

		// missing metrics score as 0 but lower the confidence
		var raw float64
		metric := k.metric(in.Metrics)
		if metric != nil {
			raw = *metric
			withMetric++
		}
		evaluated++

		normalized := clamp(k.normalize(raw, crit.ThresholdValue), 0, 100)
		res := CriterionResult{
			CriterionID:     crit.ID,
			Name:            crit.Name,
			CriteriaType:    crit.CriteriaType,
			RawValue:        raw,
			HasValue:        metric != nil,
			Threshold:       crit.ThresholdValue,
			Weight:          crit.Weight,
			IsRequired:      crit.IsRequired,
			NormalizedScore: round(normalized, 2),
			Met:             k.met(raw, crit.ThresholdValue),
			Contribution:    round(normalized*crit.Weight, 4),
		}
		results = append(results, res)

		weightSum += crit.Weight
		contribSum += normalized * crit.Weight
		if crit.IsRequired && !res.Met {
			blocking = append(blocking, crit.Name)
		}
	}

	if evaluated == 0 || weightSum <= 0 {
		return Record{}, invalid, ErrNoCriteriaConfigured
	}

	score := round(clamp(contribSum/weightSum, 0, 100), 2)
	status := baseStatus(score, len(blocking) > 0)

	var readySince *time.Time
	if status.IsReadyTier() {
		readySince = &now
		if prev := in.Previous; prev != nil && prev.Status.IsReadyTier() && prev.ReadySince != nil {
			since := prev.ReadySince.UTC()
			readySince = &since
		}
	}
	if status.IsReadyTier() && isOverdue(in, now, opts.OverdueAfter) {
		status = StatusOverdue
	}

	rec := Record{
		CellID:          in.Cell.ID,
		TenantID:        in.Cell.TenantID,
		ReadinessScore:  score,
		Status:          status,
		CriteriaResults: results,
		ProjectedDate:   projectDate(results, score, now),
		ConfidenceLevel: confidence(withMetric, evaluated, in.Metrics.CollectedAt, now, opts.StaleMetricsAfter),
		Recommendations: recommend(results, blocking, status),
		BlockingFactors: blocking,
		ReadySince:      readySince,
		LastEvaluatedAt: now,
	}
	setTrend(&rec, in.Previous)
	return rec, invalid, nil
}

// baseStatus derives the status from the score alone. overdue needs the cell history, see isOverdue.
func baseStatus(score float64, blocked bool) Status {
	switch {
	case blocked || score < preparingScore:
		return StatusNotReady
	case score < readyScore:
		return StatusPreparing
	case score < optimalScore:
		return StatusReady
	default:
		return StatusOptimal
	}
}

// isOverdue reports whether a cell that was ready on its previous evaluation went unevaluated
// for at least overdueAfter without starting its multiplication.
// a first evaluation is never overdue.
func isOverdue(in EvaluationInput, now time.Time, overdueAfter time.Duration) bool {
	prev := in.Previous
	if prev == nil || !prev.Status.IsReadyTier() || prev.LastEvaluatedAt.IsZero() {
		return false
	}
	lastEvaluated := prev.LastEvaluatedAt.UTC()
	if multiplicationStartedSince(in.Cell, lastEvaluated) {
		return false
	}
	return now.Sub(lastEvaluated) >= overdueAfter
}

func multiplicationStartedSince(cell Cell, since time.Time) bool {
	return cell.MultiplicationStartedAt != nil && !cell.MultiplicationStartedAt.Before(since)
}

// confidence is the share of evaluated criteria backed by a metric, halved when the metrics are stale.
func confidence(withMetric, evaluated int, collectedAt *time.Time, now time.Time, staleAfter time.Duration) float64 {
	conf := float64(withMetric) / float64(evaluated)
	if collectedAt != nil && now.Sub(*collectedAt) > staleAfter {
		conf *= staleConfidenceFactor
	}
	return round(conf, 4)
}

// setTrend keeps the outcome of the last evaluation that differed from rec,
// so re-evaluating unchanged data yields the same record.
func setTrend(rec *Record, prev *Record) {
	if prev == nil {
		return
	}
	if prev.ReadinessScore != rec.ReadinessScore || prev.Status != rec.Status {
		score := prev.ReadinessScore
		rec.PreviousScore = &score
		rec.PreviousStatus = prev.Status
		return
	}
	if prev.PreviousScore != nil {
		score := *prev.PreviousScore
		rec.PreviousScore = &score
	}
	rec.PreviousStatus = prev.PreviousStatus
}

// projectDate extrapolates the monthly growth rate against the gap to the ready score.
// no projection without a positive growth rate, or once the cell is ready.
func projectDate(results []CriterionResult, score float64, now time.Time) *time.Time {
	if score <= 0 || score >= readyScore {
		return nil
	}
	for _, res := range results {
		if res.CriteriaType != GrowthRate || !res.HasValue || res.RawValue <= 0 {
			continue
		}
		monthlyGain := score * res.RawValue / 100
		months := math.Max(1, math.Ceil((readyScore-score)/monthlyGain))
		if months > maxProjectionMonths {
			months = maxProjectionMonths
		}
		date := now.AddDate(0, int(months), 0)
		return &date
	}
	return nil
}

func clamp(v, min, max float64) float64 {
	if math.IsNaN(v) {
		return min
	}
	return math.Max(min, math.Min(v, max))
}

func round(v float64, places int) float64 {
	p := math.Pow10(places)
	return math.Round(v*p) / p
}
