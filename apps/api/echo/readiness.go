package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/ekklesia-app/ekklesia/core"
	"github.com/ekklesia-app/ekklesia/core/readiness"
)

type readinessApi struct {
	svc  *readiness.Service
	conf *core.Config
}

func registerReadinessAPI(g *echo.Group, svc *readiness.Service, conf *core.Config) {
	api := readinessApi{svc: svc, conf: conf}

	g.POST("/cells/evaluate", api.evaluateAll)
	g.POST("/cells/:id/evaluate", api.evaluate)
	g.GET("/cells/:id/readiness", api.retrieve)
	g.DELETE("/cells/:id/readiness", api.forget)
	g.GET("/readiness", api.query)
	g.GET("/dashboard", api.dashboard)
	g.GET("/alerts", api.alerts)
}

type (
	CellEvaluationResponse struct {
		CellID string            `json:"cell_id"`
		Record *readiness.Record `json:"record,omitempty"`
		Error  string            `json:"error,omitempty"`
	}

	BatchEvaluationResponse struct {
		Evaluated int                      `json:"evaluated"`
		Failed    int                      `json:"failed"`
		Results   []CellEvaluationResponse `json:"results"`
	}
)

// Handlers

func (api *readinessApi) evaluate(ctx echo.Context) error {
	p, err := contextPrincipal(ctx)
	if err != nil {
		return err
	}
	rec, err := api.svc.EvaluateCell(ctx.Request().Context(), p.TenantID, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "evaluating cell")
	}
	return ctx.JSON(http.StatusOK, rec)
}

func (api *readinessApi) evaluateAll(ctx echo.Context) error {
	p, err := contextPrincipal(ctx)
	if err != nil {
		return err
	}
	evals, err := api.svc.EvaluateAllCells(ctx.Request().Context(), p.TenantID)
	if err != nil {
		return errors.Wrap(err, "evaluating cells")
	}

	resp := BatchEvaluationResponse{Results: make([]CellEvaluationResponse, 0, len(evals))}
	for _, ev := range evals {
		res := CellEvaluationResponse{CellID: ev.CellID, Record: ev.Record}
		if ev.Err != nil {
			res.Error = errors.Cause(ev.Err).Error()
			resp.Failed++
		} else {
			resp.Evaluated++
		}
		resp.Results = append(resp.Results, res)
	}
	return ctx.JSON(http.StatusOK, resp)
}

func (api *readinessApi) retrieve(ctx echo.Context) error {
	p, err := contextPrincipal(ctx)
	if err != nil {
		return err
	}
	rec, err := api.svc.GetRecord(ctx.Request().Context(), p.TenantID, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding record")
	}
	return ctx.JSON(http.StatusOK, rec)
}

func (api *readinessApi) forget(ctx echo.Context) error {
	p, err := contextPrincipal(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.ForgetCell(ctx.Request().Context(), p.TenantID, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting record")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *readinessApi) query(ctx echo.Context) error {
	p, err := contextPrincipal(ctx)
	if err != nil {
		return err
	}
	var rq RecordQuery
	if err = rq.Bind(ctx); err != nil {
		return err
	}
	recs, err := api.svc.QueryRecords(ctx.Request().Context(), p.TenantID, rq.Filter, rq.Orderings...)
	if err != nil {
		return errors.Wrap(err, "querying records")
	}
	return ctx.JSON(http.StatusOK, recs)
}

// dashboard accepts `supervisor_id` & `leader_id` params, ignored for supervisors and leaders who always see their own cells.
func (api *readinessApi) dashboard(ctx echo.Context) error {
	p, err := contextPrincipal(ctx)
	if err != nil {
		return err
	}
	dash, err := api.svc.GetDashboard(ctx.Request().Context(), p.TenantID, cellScope(ctx))
	if err != nil {
		return errors.Wrap(err, "building dashboard")
	}
	return ctx.JSON(http.StatusOK, dash)
}

func (api *readinessApi) alerts(ctx echo.Context) error {
	p, err := contextPrincipal(ctx)
	if err != nil {
		return err
	}
	limit := api.conf.Readiness.DefaultAlertLimit
	if ctx.QueryParam("limit") != "" {
		if limit, err = intParam(ctx, "limit"); err != nil {
			return core.NewValidationError(nil, core.FieldError{Field: "limit", Error: err.Error()})
		}
	}
	alerts, err := api.svc.GetAlerts(ctx.Request().Context(), p.TenantID, cellScope(ctx), limit)
	if err != nil {
		return errors.Wrap(err, "generating alerts")
	}
	return ctx.JSON(http.StatusOK, alerts)
}

func cellScope(ctx echo.Context) readiness.CellScope {
	return readiness.CellScope{
		SupervisorID: ctx.QueryParam("supervisor_id"),
		LeaderID:     ctx.QueryParam("leader_id"),
	}
}
