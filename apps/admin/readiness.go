package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/pkg/errors"

	"github.com/ekklesia-app/ekklesia/core/readiness"
)

// print writes v as indented JSON, or as a table built by rows when cli.table is set.
func (cli *commandLine) print(v interface{}, header []string, rows func(add func(cols ...string))) error {
	if !cli.table {
		enc := json.NewEncoder(cli.out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}

	w := tabwriter.NewWriter(cli.out, 0, 4, 2, ' ', 0)
	add := func(cols ...string) {
		for i, col := range cols {
			if i > 0 {
				fmt.Fprint(w, "\t")
			}
			fmt.Fprint(w, col)
		}
		fmt.Fprintln(w)
	}
	add(header...)
	rows(add)
	return w.Flush()
}

func score(f float64) string {
	return strconv.FormatFloat(f, 'f', 2, 64)
}

func date(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format("2006-01-02")
}

func (cli *commandLine) seed(tenantID string) error {
	crits, err := cli.svc.SeedDefaultCriteria(context.Background(), tenantID)
	if err != nil {
		return errors.Wrap(err, "seeding criteria")
	}
	return cli.printCriteria(crits)
}

func (cli *commandLine) criteria(tenantID string, activeOnly bool) error {
	ctx := context.Background()
	crits, err := cli.svc.ListCriteria(ctx, tenantID, activeOnly)
	if err != nil {
		return errors.Wrap(err, "listing criteria")
	}
	if err = cli.printCriteria(crits); err != nil {
		return err
	}
	if wc, err := cli.svc.CheckWeights(ctx, tenantID); err == nil && wc.Exceeded && cli.table {
		fmt.Fprintf(cli.out, "\nwarning: active weights sum to %s, above %s\n", score(wc.ActiveWeightSum), score(wc.Limit))
	}
	return nil
}

func (cli *commandLine) printCriteria(crits []readiness.Criterion) error {
	return cli.print(crits, []string{"ID", "NAME", "TYPE", "THRESHOLD", "WEIGHT", "REQUIRED", "ACTIVE"}, func(add func(...string)) {
		for _, c := range crits {
			add(c.ID, c.Name, string(c.CriteriaType), score(c.ThresholdValue), score(c.Weight),
				strconv.FormatBool(c.IsRequired), strconv.FormatBool(c.IsActive))
		}
	})
}

type evaluationOutput struct {
	CellID string            `json:"cell_id"`
	Record *readiness.Record `json:"record,omitempty"`
	Error  string            `json:"error,omitempty"`
}

// evaluate fails only when the batch cannot run; per cell failures are printed.
func (cli *commandLine) evaluate(tenantID, cellID string) error {
	ctx := context.Background()

	var evals []readiness.CellEvaluation
	if cellID != "" {
		rec, err := cli.svc.EvaluateCell(ctx, tenantID, cellID)
		if err != nil {
			return errors.Wrapf(err, "evaluating cell %s", cellID)
		}
		evals = []readiness.CellEvaluation{{CellID: cellID, Record: &rec}}
	} else {
		var err error
		if evals, err = cli.svc.EvaluateAllCells(ctx, tenantID); err != nil {
			return errors.Wrap(err, "evaluating cells")
		}
	}

	out := make([]evaluationOutput, 0, len(evals))
	for _, ev := range evals {
		o := evaluationOutput{CellID: ev.CellID, Record: ev.Record}
		if ev.Err != nil {
			o.Error = ev.Err.Error()
		}
		out = append(out, o)
	}
	return cli.print(out, []string{"CELL", "STATUS", "SCORE", "CONFIDENCE", "PROJECTED", "ERROR"}, func(add func(...string)) {
		for _, o := range out {
			if o.Record == nil {
				add(o.CellID, "-", "-", "-", "-", o.Error)
				continue
			}
			add(o.CellID, string(o.Record.Status), score(o.Record.ReadinessScore), score(o.Record.ConfidenceLevel),
				date(o.Record.ProjectedDate), "")
		}
	})
}

func (cli *commandLine) dashboard(tenantID string, scope readiness.CellScope) error {
	dash, err := cli.svc.GetDashboard(context.Background(), tenantID, scope)
	if err != nil {
		return errors.Wrap(err, "building dashboard")
	}
	if !cli.table {
		return cli.print(dash, nil, nil)
	}

	fmt.Fprintf(cli.out, "cells: %d evaluated, %d not evaluated, average score %s\n",
		dash.TotalCells, dash.UnevaluatedCells, score(dash.AverageScore))
	for _, st := range readiness.AllStatuses {
		fmt.Fprintf(cli.out, "  %-10s %3d  %6s%%\n", st, dash.StatusCounts[st], score(dash.Distribution[st]))
	}
	if dash.WeightsExceeded {
		fmt.Fprintf(cli.out, "warning: active weights sum to %s\n", score(dash.ActiveWeightSum))
	}
	fmt.Fprintln(cli.out)
	return cli.print(dash, []string{"CELL", "NAME", "STATUS", "SCORE", "BLOCKING", "EVALUATED"}, func(add func(...string)) {
		for _, c := range dash.Cells {
			add(c.CellID, c.CellName, string(c.Status), score(c.ReadinessScore),
				strconv.Itoa(len(c.BlockingFactors)), c.LastEvaluatedAt.Format(time.RFC3339))
		}
	})
}

func (cli *commandLine) alerts(tenantID string, limit int) error {
	alerts, err := cli.svc.GetAlerts(context.Background(), tenantID, readiness.CellScope{}, limit)
	if err != nil {
		return errors.Wrap(err, "generating alerts")
	}
	return cli.print(alerts, []string{"PRIORITY", "CELL", "TYPE", "SCORE", "MESSAGE"}, func(add func(...string)) {
		for _, a := range alerts {
			add(strconv.Itoa(a.Priority), a.CellName, string(a.AlertType), score(a.ReadinessScore), a.Message)
		}
	})
}
