package api

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/oapi-codegen/runtime"
)

// BasePath is the prefix of every registry route.
const BasePath = "/api/jt-wrs/v0.1"

// ListWorkflowsParams defines parameters for ListWorkflows.
type ListWorkflowsParams struct {
	Name    *string `form:"name,omitempty" json:"name,omitempty"`
	Version *string `form:"version,omitempty" json:"version,omitempty"`
}

// ServerInterface represents all server handlers.
type ServerInterface interface {
	// (GET /workflows/owner/{owner_name})
	ListWorkflows(ctx echo.Context, ownerName string, params ListWorkflowsParams) error
	// (POST /workflows/owner/{owner_name})
	RegisterWorkflow(ctx echo.Context, ownerName string) error
	// (GET /workflows/owner/{owner_name}/workflow/{workflow_name})
	GetWorkflow(ctx echo.Context, ownerName string, workflowName string) error
	// (DELETE /workflows/owner/{owner_name}/workflow/{workflow_name})
	DeleteWorkflow(ctx echo.Context, ownerName string, workflowName string) error
	// (GET /workflows/owner/{owner_name}/workflow/{workflow_name}/ver/{workflow_version})
	GetWorkflowVersion(ctx echo.Context, ownerName string, workflowName string, workflowVersion string) error
	// (GET .../ver/{workflow_version}/workflowfile)
	GetWorkflowfile(ctx echo.Context, ownerName string, workflowName string, workflowVersion string) error
	// (GET .../ver/{workflow_version}/workflow_package)
	GetWorkflowPackage(ctx echo.Context, ownerName string, workflowName string, workflowVersion string) error
	// (GET .../ver/{workflow_version}/job_template)
	GetJobTemplate(ctx echo.Context, ownerName string, workflowName string, workflowVersion string) error
	// (POST .../ver/{workflow_version}/job_execution_plan)
	GetExecutionPlan(ctx echo.Context, ownerName string, workflowName string, workflowVersion string) error
	// (PUT .../ver/{workflow_version}/release)
	ReleaseWorkflowVersion(ctx echo.Context, ownerName string, workflowName string, workflowVersion string) error
	// (GET /workflows/_id/{workflow_id})
	GetWorkflowByID(ctx echo.Context, workflowID string) error
	// (GET /workflows/_id/{workflow_id}/ver/{workflow_version})
	GetWorkflowVersionByID(ctx echo.Context, workflowID string, workflowVersion string) error
}

// ServerInterfaceWrapper converts echo contexts to parameters.
type ServerInterfaceWrapper struct {
	Handler ServerInterface
}

func pathParam(ctx echo.Context, name string, dest *string) error {
	err := runtime.BindStyledParameterWithOptions("simple", name, ctx.Param(name), dest,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("Invalid format for parameter %s: %s", name, err))
	}
	return nil
}

func versionParams(ctx echo.Context) (owner, name, version string, err error) {
	if err = pathParam(ctx, "owner_name", &owner); err != nil {
		return
	}
	if err = pathParam(ctx, "workflow_name", &name); err != nil {
		return
	}
	err = pathParam(ctx, "workflow_version", &version)
	return
}

// ListWorkflows converts echo context to params.
func (w *ServerInterfaceWrapper) ListWorkflows(ctx echo.Context) error {
	var ownerName string
	if err := pathParam(ctx, "owner_name", &ownerName); err != nil {
		return err
	}

	var params ListWorkflowsParams
	if err := runtime.BindQueryParameter("form", true, false, "name", ctx.QueryParams(), &params.Name); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("Invalid format for parameter name: %s", err))
	}
	if err := runtime.BindQueryParameter("form", true, false, "version", ctx.QueryParams(), &params.Version); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("Invalid format for parameter version: %s", err))
	}
	return w.Handler.ListWorkflows(ctx, ownerName, params)
}

// RegisterWorkflow converts echo context to params.
func (w *ServerInterfaceWrapper) RegisterWorkflow(ctx echo.Context) error {
	var ownerName string
	if err := pathParam(ctx, "owner_name", &ownerName); err != nil {
		return err
	}
	return w.Handler.RegisterWorkflow(ctx, ownerName)
}

// GetWorkflow converts echo context to params.
func (w *ServerInterfaceWrapper) GetWorkflow(ctx echo.Context) error {
	var ownerName, workflowName string
	if err := pathParam(ctx, "owner_name", &ownerName); err != nil {
		return err
	}
	if err := pathParam(ctx, "workflow_name", &workflowName); err != nil {
		return err
	}
	return w.Handler.GetWorkflow(ctx, ownerName, workflowName)
}

// DeleteWorkflow converts echo context to params.
func (w *ServerInterfaceWrapper) DeleteWorkflow(ctx echo.Context) error {
	var ownerName, workflowName string
	if err := pathParam(ctx, "owner_name", &ownerName); err != nil {
		return err
	}
	if err := pathParam(ctx, "workflow_name", &workflowName); err != nil {
		return err
	}
	return w.Handler.DeleteWorkflow(ctx, ownerName, workflowName)
}

// versioned adapts a handler taking owner, name and version.
func versioned(h func(echo.Context, string, string, string) error) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		owner, name, version, err := versionParams(ctx)
		if err != nil {
			return err
		}
		return h(ctx, owner, name, version)
	}
}

// GetWorkflowByID converts echo context to params.
func (w *ServerInterfaceWrapper) GetWorkflowByID(ctx echo.Context) error {
	var workflowID string
	if err := pathParam(ctx, "workflow_id", &workflowID); err != nil {
		return err
	}
	return w.Handler.GetWorkflowByID(ctx, workflowID)
}

// GetWorkflowVersionByID converts echo context to params.
func (w *ServerInterfaceWrapper) GetWorkflowVersionByID(ctx echo.Context) error {
	var workflowID, workflowVersion string
	if err := pathParam(ctx, "workflow_id", &workflowID); err != nil {
		return err
	}
	if err := pathParam(ctx, "workflow_version", &workflowVersion); err != nil {
		return err
	}
	return w.Handler.GetWorkflowVersionByID(ctx, workflowID, workflowVersion)
}

// EchoRouter is satisfied by both *echo.Echo and *echo.Group.
type EchoRouter interface {
	DELETE(path string, h echo.HandlerFunc, m ...echo.MiddlewareFunc) *echo.Route
	GET(path string, h echo.HandlerFunc, m ...echo.MiddlewareFunc) *echo.Route
	POST(path string, h echo.HandlerFunc, m ...echo.MiddlewareFunc) *echo.Route
	PUT(path string, h echo.HandlerFunc, m ...echo.MiddlewareFunc) *echo.Route
}

// RegisterHandlers adds each server route to the EchoRouter.
func RegisterHandlers(router EchoRouter, si ServerInterface) {
	RegisterHandlersWithBaseURL(router, si, "")
}

// RegisterHandlersWithBaseURL registers the routes below baseURL. Routes
// that change the registry additionally run through writeMiddleware.
func RegisterHandlersWithBaseURL(router EchoRouter, si ServerInterface, baseURL string, writeMiddleware ...echo.MiddlewareFunc) {
	wrapper := ServerInterfaceWrapper{Handler: si}

	owner := baseURL + "/workflows/owner/:owner_name"
	workflow := owner + "/workflow/:workflow_name"
	version := workflow + "/ver/:workflow_version"

	router.GET(owner, wrapper.ListWorkflows)
	router.POST(owner, wrapper.RegisterWorkflow, writeMiddleware...)
	router.GET(workflow, wrapper.GetWorkflow)
	router.DELETE(workflow, wrapper.DeleteWorkflow, writeMiddleware...)
	router.GET(version, versioned(si.GetWorkflowVersion))
	router.GET(version+"/workflowfile", versioned(si.GetWorkflowfile))
	router.GET(version+"/workflow_package", versioned(si.GetWorkflowPackage))
	router.GET(version+"/job_template", versioned(si.GetJobTemplate))
	router.POST(version+"/job_execution_plan", versioned(si.GetExecutionPlan))
	router.PUT(version+"/release", versioned(si.ReleaseWorkflowVersion), writeMiddleware...)
	router.GET(baseURL+"/workflows/_id/:workflow_id", wrapper.GetWorkflowByID)
	router.GET(baseURL+"/workflows/_id/:workflow_id/ver/:workflow_version", wrapper.GetWorkflowVersionByID)
}
