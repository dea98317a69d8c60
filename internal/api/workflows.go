// Package api contains the HTTP handlers for the workflow registry service
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"jt-wrs/backend/internal/services"
	"jt-wrs/backend/pkg/models"
)

// maxJobSize bounds the job document of an execution plan request.
const maxJobSize = 1 << 20

// Registry is the registry surface the HTTP handlers need.
type Registry interface {
	ListWorkflows(ctx context.Context, ownerName, nameFilter, versionFilter string) ([]*models.Workflow, error)
	GetWorkflow(ctx context.Context, ownerName, name, version string) (*models.Workflow, error)
	GetWorkflowByID(ctx context.Context, id, version string) (*models.Workflow, error)
	GetWorkflowfile(ctx context.Context, ownerName, name, version string) (string, bool, error)
	GetWorkflowPackage(ctx context.Context, ownerName, name, version string) ([]byte, bool, error)
	RegisterWorkflow(ctx context.Context, ownerName string, entry models.WorkflowEntry) (*models.Workflow, error)
	GetExecutionPlan(ctx context.Context, ownerName, name, version string, job map[string]any) (map[string]any, error)
	GetJobTemplate(ctx context.Context, ownerName, name, version string) (map[string]any, error)
	DeleteWorkflow(ctx context.Context, ownerName, name, version string) error
	ReleaseWorkflow(ctx context.Context, ownerName, name, version string) error
}

// Server holds the dependencies for the API server.
type Server struct {
	Registry Registry
}

// NewServer creates a new Server.
func NewServer(registry Registry) *Server {
	return &Server{Registry: registry}
}

var _ ServerInterface = (*Server)(nil)

// ListWorkflows returns the workflows of an owner
// (GET /workflows/owner/{owner_name})
func (s *Server) ListWorkflows(c echo.Context, ownerName string, params ListWorkflowsParams) error {
	var name, version string
	if params.Name != nil {
		name = *params.Name
	}
	if params.Version != nil {
		version = *params.Version
	}

	workflows, err := s.Registry.ListWorkflows(c.Request().Context(), ownerName, name, version)
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, workflows)
}

// RegisterWorkflow registers a new workflow version
// (POST /workflows/owner/{owner_name})
func (s *Server) RegisterWorkflow(c echo.Context, ownerName string) error {
	var entry models.WorkflowEntry
	if err := json.NewDecoder(c.Request().Body).Decode(&entry); err != nil {
		return writeError(c, http.StatusBadRequest, "Invalid Request", "invalid request body: "+err.Error())
	}

	workflow, err := s.Registry.RegisterWorkflow(c.Request().Context(), ownerName, entry)
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusCreated, workflow)
}

// GetWorkflow returns one workflow with all its versions
// (GET /workflows/owner/{owner_name}/workflow/{workflow_name})
func (s *Server) GetWorkflow(c echo.Context, ownerName, workflowName string) error {
	return s.getWorkflow(c, ownerName, workflowName, "")
}

// GetWorkflowVersion returns one workflow narrowed to a version
// (GET .../workflow/{workflow_name}/ver/{workflow_version})
func (s *Server) GetWorkflowVersion(c echo.Context, ownerName, workflowName, workflowVersion string) error {
	return s.getWorkflow(c, ownerName, workflowName, workflowVersion)
}

func (s *Server) getWorkflow(c echo.Context, ownerName, workflowName, workflowVersion string) error {
	workflow, err := s.Registry.GetWorkflow(c.Request().Context(), ownerName, workflowName, workflowVersion)
	if err != nil {
		return writeServiceError(c, err)
	}
	if workflow == nil {
		return writeError(c, http.StatusNotFound, "Not Found", notFoundDetail(ownerName, workflowName, workflowVersion))
	}
	return c.JSON(http.StatusOK, workflow)
}

// GetWorkflowByID returns a workflow by id
// (GET /workflows/_id/{workflow_id})
func (s *Server) GetWorkflowByID(c echo.Context, workflowID string) error {
	return s.getWorkflowByID(c, workflowID, "")
}

// GetWorkflowVersionByID returns a workflow by id narrowed to a version
// (GET /workflows/_id/{workflow_id}/ver/{workflow_version})
func (s *Server) GetWorkflowVersionByID(c echo.Context, workflowID, workflowVersion string) error {
	return s.getWorkflowByID(c, workflowID, workflowVersion)
}

func (s *Server) getWorkflowByID(c echo.Context, workflowID, workflowVersion string) error {
	workflow, err := s.Registry.GetWorkflowByID(c.Request().Context(), workflowID, workflowVersion)
	if err != nil {
		return writeServiceError(c, err)
	}
	if workflow == nil {
		return writeError(c, http.StatusNotFound, "Not Found", fmt.Sprintf("workflow id %s not found", workflowID))
	}
	return c.JSON(http.StatusOK, workflow)
}

// GetWorkflowfile returns the workflow definition of a version
// (GET .../ver/{workflow_version}/workflowfile)
func (s *Server) GetWorkflowfile(c echo.Context, ownerName, workflowName, workflowVersion string) error {
	text, found, err := s.Registry.GetWorkflowfile(c.Request().Context(), ownerName, workflowName, workflowVersion)
	if err != nil {
		return writeServiceError(c, err)
	}
	if !found {
		return writeError(c, http.StatusNotFound, "Not Found", notFoundDetail(ownerName, workflowName, workflowVersion))
	}
	return c.Blob(http.StatusOK, "text/yaml; charset=utf-8", []byte(text))
}

// GetWorkflowPackage returns the package of a version
// (GET .../ver/{workflow_version}/workflow_package)
func (s *Server) GetWorkflowPackage(c echo.Context, ownerName, workflowName, workflowVersion string) error {
	pkg, found, err := s.Registry.GetWorkflowPackage(c.Request().Context(), ownerName, workflowName, workflowVersion)
	if err != nil {
		return writeServiceError(c, err)
	}
	if !found {
		return writeError(c, http.StatusNotFound, "Not Found", notFoundDetail(ownerName, workflowName, workflowVersion))
	}
	c.Response().Header().Set(echo.HeaderContentDisposition,
		fmt.Sprintf(`attachment; filename="%s.%s.zip"`, workflowName, workflowVersion))
	return c.Blob(http.StatusOK, echo.MIMEOctetStream, pkg)
}

// GetJobTemplate returns a job document template
// (GET .../ver/{workflow_version}/job_template)
func (s *Server) GetJobTemplate(c echo.Context, ownerName, workflowName, workflowVersion string) error {
	template, err := s.Registry.GetJobTemplate(c.Request().Context(), ownerName, workflowName, workflowVersion)
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, template)
}

// GetExecutionPlan binds the posted job document to a workflow version
// (POST .../ver/{workflow_version}/job_execution_plan)
func (s *Server) GetExecutionPlan(c echo.Context, ownerName, workflowName, workflowVersion string) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxJobSize))
	if err != nil {
		return writeError(c, http.StatusBadRequest, "Invalid Request", "failed to read job document")
	}
	job := map[string]any{}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &job); err != nil {
			return writeError(c, http.StatusBadRequest, "Invalid Request", "job document must be a JSON object: "+err.Error())
		}
	}

	plan, err := s.Registry.GetExecutionPlan(c.Request().Context(), ownerName, workflowName, workflowVersion, job)
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, plan)
}

// DeleteWorkflow removes a workflow
// (DELETE /workflows/owner/{owner_name}/workflow/{workflow_name})
func (s *Server) DeleteWorkflow(c echo.Context, ownerName, workflowName string) error {
	if err := s.Registry.DeleteWorkflow(c.Request().Context(), ownerName, workflowName, ""); err != nil {
		return writeServiceError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// ReleaseWorkflowVersion marks a version released
// (PUT .../ver/{workflow_version}/release)
func (s *Server) ReleaseWorkflowVersion(c echo.Context, ownerName, workflowName, workflowVersion string) error {
	if err := s.Registry.ReleaseWorkflow(c.Request().Context(), ownerName, workflowName, workflowVersion); err != nil {
		return writeServiceError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func notFoundDetail(ownerName, workflowName, workflowVersion string) string {
	if workflowVersion == "" {
		return fmt.Sprintf("workflow %s/%s not found", ownerName, workflowName)
	}
	return fmt.Sprintf("workflow %s/%s version %s not found", ownerName, workflowName, workflowVersion)
}

var _ Registry = (*services.WorkflowRegistry)(nil)
