package api

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/oapi-codegen/runtime"
)

// ServerInterface represents all server handlers described by openapi.yaml.
type ServerInterface interface {
	// (POST /generate)
	Generate(ctx echo.Context) error
	// (GET /dashboard/{userId})
	GetDashboard(ctx echo.Context, userID string) error
	// (GET /content/{contentId})
	GetContent(ctx echo.Context, contentID string) error
	// (GET /proof/{contentId}/{owner})
	GetProof(ctx echo.Context, contentID string, owner string) error
	// (POST /add-funds)
	AddFunds(ctx echo.Context) error
	// (POST /transfer)
	TransferContent(ctx echo.Context) error
	// (GET /jobs/{jobId})
	GetJob(ctx echo.Context, jobID string) error
	// (GET /rates)
	GetRates(ctx echo.Context) error
	// (GET /stats)
	GetStats(ctx echo.Context) error
}

// ServerInterfaceWrapper converts echo contexts to parameters.
type ServerInterfaceWrapper struct {
	Handler ServerInterface
}

func bindPathParam(ctx echo.Context, name string, dest *string) error {
	err := runtime.BindStyledParameterWithOptions("simple", name, ctx.Param(name), dest,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("Invalid format for parameter %s: %s", name, err))
	}
	return nil
}

// Generate converts echo context to params.
func (w *ServerInterfaceWrapper) Generate(ctx echo.Context) error {
	return w.Handler.Generate(ctx)
}

// GetDashboard converts echo context to params.
func (w *ServerInterfaceWrapper) GetDashboard(ctx echo.Context) error {
	var userID string
	if err := bindPathParam(ctx, "userId", &userID); err != nil {
		return err
	}
	return w.Handler.GetDashboard(ctx, userID)
}

// GetContent converts echo context to params.
func (w *ServerInterfaceWrapper) GetContent(ctx echo.Context) error {
	var contentID string
	if err := bindPathParam(ctx, "contentId", &contentID); err != nil {
		return err
	}
	return w.Handler.GetContent(ctx, contentID)
}

// GetProof converts echo context to params.
func (w *ServerInterfaceWrapper) GetProof(ctx echo.Context) error {
	var contentID, owner string
	if err := bindPathParam(ctx, "contentId", &contentID); err != nil {
		return err
	}
	if err := bindPathParam(ctx, "owner", &owner); err != nil {
		return err
	}
	return w.Handler.GetProof(ctx, contentID, owner)
}

// AddFunds converts echo context to params.
func (w *ServerInterfaceWrapper) AddFunds(ctx echo.Context) error {
	return w.Handler.AddFunds(ctx)
}

// TransferContent converts echo context to params.
func (w *ServerInterfaceWrapper) TransferContent(ctx echo.Context) error {
	return w.Handler.TransferContent(ctx)
}

// GetJob converts echo context to params.
func (w *ServerInterfaceWrapper) GetJob(ctx echo.Context) error {
	var jobID string
	if err := bindPathParam(ctx, "jobId", &jobID); err != nil {
		return err
	}
	return w.Handler.GetJob(ctx, jobID)
}

// GetRates converts echo context to params.
func (w *ServerInterfaceWrapper) GetRates(ctx echo.Context) error {
	return w.Handler.GetRates(ctx)
}

// GetStats converts echo context to params.
func (w *ServerInterfaceWrapper) GetStats(ctx echo.Context) error {
	return w.Handler.GetStats(ctx)
}

// EchoRouter is satisfied by both *echo.Echo and *echo.Group.
type EchoRouter interface {
	GET(path string, h echo.HandlerFunc, m ...echo.MiddlewareFunc) *echo.Route
	POST(path string, h echo.HandlerFunc, m ...echo.MiddlewareFunc) *echo.Route
}

// RegisterHandlers adds each server route to the EchoRouter.
func RegisterHandlers(router EchoRouter, si ServerInterface) {
	RegisterHandlersWithBaseURL(router, si, "")
}

// RegisterHandlersWithBaseURL registers the handlers, and prepends baseURL
// to the paths, so that the paths can be served under a prefix.
func RegisterHandlersWithBaseURL(router EchoRouter, si ServerInterface, baseURL string) {
	wrapper := ServerInterfaceWrapper{Handler: si}

	router.POST(baseURL+"/generate", wrapper.Generate)
	router.GET(baseURL+"/dashboard/:userId", wrapper.GetDashboard)
	router.GET(baseURL+"/content/:contentId", wrapper.GetContent)
	router.GET(baseURL+"/proof/:contentId/:owner", wrapper.GetProof)
	router.POST(baseURL+"/add-funds", wrapper.AddFunds)
	router.POST(baseURL+"/transfer", wrapper.TransferContent)
	router.GET(baseURL+"/jobs/:jobId", wrapper.GetJob)
	router.GET(baseURL+"/rates", wrapper.GetRates)
	router.GET(baseURL+"/stats", wrapper.GetStats)
}
