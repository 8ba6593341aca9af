package echoapi

import (
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/ekklesia-app/ekklesia/core"
	"github.com/ekklesia-app/ekklesia/core/readiness"
)

var orderingParam = "ordering"

type Ordering struct {
	Orderings []core.DBOrdering
}

func (ord *Ordering) Bind(ctx echo.Context) {
	val := ctx.QueryParam(orderingParam)
	if val == "" {
		return
	}

	for _, field := range strings.Split(val, ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}
}

// RecordQuery holds the query params of the records listing.
type RecordQuery struct {
	Ordering
	Filter readiness.RecordFilter
}

// Bind parses `status` (comma separated), `min_score`, `limit` & `offset`.
func (rq *RecordQuery) Bind(ctx echo.Context) error {
	rq.Ordering.Bind(ctx)

	var flds []core.FieldError
	if val := ctx.QueryParam("status"); val != "" {
		for _, st := range strings.Split(val, ",") {
			rq.Filter.Statuses = append(rq.Filter.Statuses, readiness.Status(strings.TrimSpace(st)))
		}
	}
	if val := ctx.QueryParam("min_score"); val != "" {
		score, err := strconv.ParseFloat(val, 64)
		if err != nil {
			flds = append(flds, core.FieldError{Field: "min_score", Error: "must be a number"})
		} else {
			rq.Filter.MinScore = &score
		}
	}
	var err error
	if rq.Filter.Limit, err = intParam(ctx, "limit"); err != nil {
		flds = append(flds, core.FieldError{Field: "limit", Error: err.Error()})
	}
	if rq.Filter.Offset, err = intParam(ctx, "offset"); err != nil {
		flds = append(flds, core.FieldError{Field: "offset", Error: err.Error()})
	}

	if len(flds) > 0 {
		return core.NewValidationError(nil, flds...)
	}
	return nil
}

type paramError string

func (e paramError) Error() string { return string(e) }

// intParam parses a non-negative integer query param, 0 when absent.
func intParam(ctx echo.Context, name string) (int, error) {
	val := ctx.QueryParam(name)
	if val == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil || n < 0 {
		return 0, paramError("must be a positive integer")
	}
	return n, nil
}

func boolParam(ctx echo.Context, name string) bool {
	b, _ := strconv.ParseBool(ctx.QueryParam(name))
	return b
}
