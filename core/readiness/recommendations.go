package readiness

import "fmt"

type category string

const (
	categoryGrowth         category = "growth"
	categoryAttendance     category = "attendance"
	categoryLeadership     category = "leadership"
	categoryMaturity       category = "maturity"
	categoryMultiplication category = "multiplication"
)

// categoryOrder is the order recommendations are listed in.
var categoryOrder = []category{categoryLeadership, categoryAttendance, categoryGrowth, categoryMaturity}

// recommendationTable maps a weak category to its guidance.
var recommendationTable = map[category][]string{
	categoryGrowth: {
		"Encourage members to invite friends and family to the meetings.",
		"Plan an outreach event with the cell every month.",
		"Follow up with visitors during the week after their first visit.",
	},
	categoryAttendance: {
		"Keep a fixed day, time and place for the meetings.",
		"Contact absent members personally after each meeting.",
		"Share the meeting agenda with the members beforehand.",
	},
	categoryLeadership: {
		"Identify potential leaders and start a mentoring plan with them.",
		"Delegate parts of the meeting (worship, teaching, prayer) to potential leaders.",
		"Enroll the leader and potential leaders in the leadership training.",
	},
	categoryMaturity: {
		"Strengthen the bonds between members with fellowship activities.",
		"Schedule regular supervision visits to consolidate the cell.",
	},
	categoryMultiplication: {
		"Define with the supervisor who will lead the new cell.",
		"Set a date for the multiplication and share the plan with the members.",
	},
}

// recommend lists the guidance for the categories of the weak criteria, blocking factors first.
// ready cells without weak criteria get the multiplication guidance.
func recommend(results []CriterionResult, blocking []string, status Status) []string {
	recs := make([]string, 0)
	for _, name := range blocking {
		recs = append(recs, fmt.Sprintf("Required criterion %q is not met yet: make it the priority.", name))
	}

	weak := make(map[category]bool)
	for _, res := range results {
		if res.NormalizedScore < weakScore {
			if k, ok := kinds[res.CriteriaType]; ok {
				weak[k.category] = true
			}
		}
	}
	for _, cat := range categoryOrder {
		if weak[cat] {
			recs = append(recs, recommendationTable[cat]...)
		}
	}

	if len(weak) == 0 && status.IsReadyTier() {
		recs = append(recs, recommendationTable[categoryMultiplication]...)
	}
	return recs
}
