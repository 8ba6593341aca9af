package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/ekklesia-app/ekklesia/core/readiness"
)

type criteriaApi struct {
	svc *readiness.Service
}

func registerCriteriaAPI(g *echo.Group, svc *readiness.Service) {
	api := criteriaApi{svc: svc}

	cg := g.Group("/criteria")
	cg.GET("", api.query)
	cg.POST("", api.create)
	cg.GET("/weights", api.weights)
	cg.POST("/seed", api.seed)
	cg.PUT("/:id", api.update)
	cg.DELETE("/:id", api.destroy)
}

// CriterionResponse carries the saved criterion and the resulting weight check of its tenant.
type CriterionResponse struct {
	Criterion readiness.Criterion   `json:"criterion"`
	Weights   readiness.WeightCheck `json:"weights"`
}

// Handlers

func (api *criteriaApi) query(ctx echo.Context) error {
	p, err := contextPrincipal(ctx)
	if err != nil {
		return err
	}
	crits, err := api.svc.ListCriteria(ctx.Request().Context(), p.TenantID, boolParam(ctx, "active"))
	if err != nil {
		return errors.Wrap(err, "listing criteria")
	}
	return ctx.JSON(http.StatusOK, crits)
}

func (api *criteriaApi) create(ctx echo.Context) error {
	p, err := contextPrincipal(ctx)
	if err != nil {
		return err
	}
	var data readiness.NewCriterion
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewCriterion")
	}

	crit, wc, err := api.svc.CreateCriterion(ctx.Request().Context(), p.TenantID, data)
	if err != nil {
		return errors.Wrap(err, "creating criterion")
	}
	return ctx.JSON(http.StatusCreated, CriterionResponse{Criterion: crit, Weights: wc})
}

func (api *criteriaApi) update(ctx echo.Context) error {
	p, err := contextPrincipal(ctx)
	if err != nil {
		return err
	}
	var data readiness.UpdateCriterion
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateCriterion")
	}

	crit, wc, err := api.svc.UpdateCriterion(ctx.Request().Context(), p.TenantID, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating criterion")
	}
	return ctx.JSON(http.StatusOK, CriterionResponse{Criterion: crit, Weights: wc})
}

func (api *criteriaApi) destroy(ctx echo.Context) error {
	p, err := contextPrincipal(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.DeleteCriterion(ctx.Request().Context(), p.TenantID, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting criterion")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *criteriaApi) weights(ctx echo.Context) error {
	p, err := contextPrincipal(ctx)
	if err != nil {
		return err
	}
	wc, err := api.svc.CheckWeights(ctx.Request().Context(), p.TenantID)
	if err != nil {
		return errors.Wrap(err, "checking weights")
	}
	return ctx.JSON(http.StatusOK, wc)
}

func (api *criteriaApi) seed(ctx echo.Context) error {
	p, err := contextPrincipal(ctx)
	if err != nil {
		return err
	}
	crits, err := api.svc.SeedDefaultCriteria(ctx.Request().Context(), p.TenantID)
	if err != nil {
		return errors.Wrap(err, "seeding criteria")
	}
	return ctx.JSON(http.StatusCreated, crits)
}
