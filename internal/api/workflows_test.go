package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"jt-wrs/backend/internal/repository"
	"jt-wrs/backend/internal/services"
	"jt-wrs/backend/pkg/models"
)

// MockRegistry satisfies Registry
type MockRegistry struct {
	mock.Mock
}

func (m *MockRegistry) ListWorkflows(ctx context.Context, ownerName, nameFilter, versionFilter string) ([]*models.Workflow, error) {
	args := m.Called(ctx, ownerName, nameFilter, versionFilter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Workflow), args.Error(1)
}

func (m *MockRegistry) GetWorkflow(ctx context.Context, ownerName, name, version string) (*models.Workflow, error) {
	args := m.Called(ctx, ownerName, name, version)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Workflow), args.Error(1)
}

func (m *MockRegistry) GetWorkflowByID(ctx context.Context, id, version string) (*models.Workflow, error) {
	args := m.Called(ctx, id, version)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Workflow), args.Error(1)
}

func (m *MockRegistry) GetWorkflowfile(ctx context.Context, ownerName, name, version string) (string, bool, error) {
	args := m.Called(ctx, ownerName, name, version)
	return args.String(0), args.Bool(1), args.Error(2)
}

func (m *MockRegistry) GetWorkflowPackage(ctx context.Context, ownerName, name, version string) ([]byte, bool, error) {
	args := m.Called(ctx, ownerName, name, version)
	b, _ := args.Get(0).([]byte)
	return b, args.Bool(1), args.Error(2)
}

func (m *MockRegistry) RegisterWorkflow(ctx context.Context, ownerName string, entry models.WorkflowEntry) (*models.Workflow, error) {
	args := m.Called(ctx, ownerName, entry)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Workflow), args.Error(1)
}

func (m *MockRegistry) GetExecutionPlan(ctx context.Context, ownerName, name, version string, job map[string]any) (map[string]any, error) {
	args := m.Called(ctx, ownerName, name, version, job)
	plan, _ := args.Get(0).(map[string]any)
	return plan, args.Error(1)
}

// Reserved operations always report ErrNotImplemented.
func (m *MockRegistry) GetJobTemplate(ctx context.Context, ownerName, name, version string) (map[string]any, error) {
	return nil, services.ErrNotImplemented
}
func (m *MockRegistry) DeleteWorkflow(ctx context.Context, ownerName, name, version string) error {
	return services.ErrNotImplemented
}
func (m *MockRegistry) ReleaseWorkflow(ctx context.Context, ownerName, name, version string) error {
	return services.ErrNotImplemented
}

func newTestServer(registry Registry, writeMiddleware ...echo.MiddlewareFunc) *echo.Echo {
	e := echo.New()
	RegisterHandlersWithBaseURL(e, NewServer(registry), BasePath, writeMiddleware...)
	return e
}

func do(e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decodeProblem(t *testing.T, rec *httptest.ResponseRecorder) models.ProblemDetails {
	t.Helper()
	assert.Equal(t, "application/problem+json", rec.Header().Get(echo.HeaderContentType))
	var problem models.ProblemDetails
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	return problem
}

func TestListWorkflows(t *testing.T) {
	registry := new(MockRegistry)
	registry.On("ListWorkflows", mock.Anything, "alice", "wf", "1.0").
		Return([]*models.Workflow{{ID: "id-1", Name: "wf", Versions: []models.WorkflowVersion{{Version: "1.0"}}}}, nil)
	registry.On("ListWorkflows", mock.Anything, "alice", "", "").Return([]*models.Workflow{}, nil)
	e := newTestServer(registry)

	rec := do(e, http.MethodGet, BasePath+"/workflows/owner/alice?name=wf&version=1.0", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	var workflows []models.Workflow
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &workflows))
	require.Len(t, workflows, 1)
	assert.Equal(t, "id-1", workflows[0].ID)

	rec = do(e, http.MethodGet, BasePath+"/workflows/owner/alice", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
	registry.AssertExpectations(t)
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("%w: ghost", services.ErrOwnerNotFound), http.StatusNotFound},
		{services.ErrServiceUnavailable, http.StatusServiceUnavailable},
		{fmt.Errorf("%w: etcd: deadline", repository.ErrStoreUnavailable), http.StatusServiceUnavailable},
		{services.ErrDuplicateRegistration, http.StatusConflict},
		{services.ErrVersionTagMismatch, http.StatusBadRequest},
		{services.ErrInvalidWorkflowDefinition, http.StatusBadRequest},
		{services.ErrUnsupportedWorkflowType, http.StatusNotImplemented},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			registry := new(MockRegistry)
			registry.On("ListWorkflows", mock.Anything, "alice", "", "").Return(nil, tt.err)

			rec := do(newTestServer(registry), http.MethodGet, BasePath+"/workflows/owner/alice", "")
			assert.Equal(t, tt.status, rec.Code)
			problem := decodeProblem(t, rec)
			assert.Equal(t, tt.status, problem.Status)
			if tt.status == http.StatusInternalServerError {
				assert.Empty(t, problem.Detail)
			}
		})
	}
}

func TestRegisterWorkflow(t *testing.T) {
	registry := new(MockRegistry)
	entry := models.WorkflowEntry{Name: "wf", Version: "2.0", GitAccount: "acct", GitRepo: "repo", GitTag: "wf.2.0"}
	registry.On("RegisterWorkflow", mock.Anything, "alice", entry).
		Return(&models.Workflow{ID: "id-1", Name: "wf"}, nil)
	e := newTestServer(registry)

	body, _ := json.Marshal(entry)
	rec := do(e, http.MethodPost, BasePath+"/workflows/owner/alice", string(body))
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"id":"id-1"`)

	rec = do(e, http.MethodPost, BasePath+"/workflows/owner/alice", "{not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	registry.AssertExpectations(t)
}

func TestWriteMiddlewareGuardsOnlyWrites(t *testing.T) {
	registry := new(MockRegistry)
	registry.On("GetWorkflow", mock.Anything, "alice", "wf", "").Return(&models.Workflow{ID: "id-1"}, nil)
	deny := func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error { return c.NoContent(http.StatusUnauthorized) }
	}
	e := newTestServer(registry, deny)

	assert.Equal(t, http.StatusOK, do(e, http.MethodGet, BasePath+"/workflows/owner/alice/workflow/wf", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(e, http.MethodPost, BasePath+"/workflows/owner/alice", "{}").Code)
	assert.Equal(t, http.StatusUnauthorized, do(e, http.MethodDelete, BasePath+"/workflows/owner/alice/workflow/wf", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(e, http.MethodPut, BasePath+"/workflows/owner/alice/workflow/wf/ver/1.0/release", "").Code)
}

func TestGetWorkflow(t *testing.T) {
	registry := new(MockRegistry)
	registry.On("GetWorkflow", mock.Anything, "alice", "wf", "1.0").Return(&models.Workflow{ID: "id-1"}, nil)
	registry.On("GetWorkflow", mock.Anything, "alice", "wf", "9.9").Return(nil, nil)
	registry.On("GetWorkflowByID", mock.Anything, "id-1", "").Return(&models.Workflow{ID: "id-1", Owner: models.Owner{ID: "o", Name: "alice"}}, nil)
	registry.On("GetWorkflowByID", mock.Anything, "id-2", "1.0").Return(nil, nil)
	e := newTestServer(registry)

	assert.Equal(t, http.StatusOK, do(e, http.MethodGet, BasePath+"/workflows/owner/alice/workflow/wf/ver/1.0", "").Code)

	rec := do(e, http.MethodGet, BasePath+"/workflows/owner/alice/workflow/wf/ver/9.9", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, decodeProblem(t, rec).Detail, "version 9.9")

	rec = do(e, http.MethodGet, BasePath+"/workflows/_id/id-1", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"name":"alice"`)

	assert.Equal(t, http.StatusNotFound, do(e, http.MethodGet, BasePath+"/workflows/_id/id-2/ver/1.0", "").Code)
}

func TestArtifacts(t *testing.T) {
	registry := new(MockRegistry)
	registry.On("GetWorkflowfile", mock.Anything, "alice", "wf", "1.0").Return("workflow:\n  name: wf\n", true, nil)
	registry.On("GetWorkflowfile", mock.Anything, "alice", "wf", "2.0").Return("", false, nil)
	registry.On("GetWorkflowPackage", mock.Anything, "alice", "wf", "1.0").Return([]byte{0x50, 0x4b}, true, nil)
	e := newTestServer(registry)

	rec := do(e, http.MethodGet, BasePath+"/workflows/owner/alice/workflow/wf/ver/1.0/workflowfile", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "workflow:\n  name: wf\n", rec.Body.String())

	rec = do(e, http.MethodGet, BasePath+"/workflows/owner/alice/workflow/wf/ver/2.0/workflowfile", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(e, http.MethodGet, BasePath+"/workflows/owner/alice/workflow/wf/ver/1.0/workflow_package", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []byte{0x50, 0x4b}, rec.Body.Bytes())
	assert.Contains(t, rec.Header().Get(echo.HeaderContentDisposition), "wf.1.0.zip")
}

func TestGetExecutionPlan(t *testing.T) {
	registry := new(MockRegistry)
	job := map[string]any{"sample": "S1"}
	registry.On("GetExecutionPlan", mock.Anything, "alice", "wf", "1.0", job).Return(map[string]any{"job": job}, nil)
	registry.On("GetExecutionPlan", mock.Anything, "alice", "wf", "2.0", map[string]any{}).
		Return(nil, fmt.Errorf("%w: alice/wf 2.0", services.ErrArtifactNotFound))
	e := newTestServer(registry)

	rec := do(e, http.MethodPost, BasePath+"/workflows/owner/alice/workflow/wf/ver/1.0/job_execution_plan", `{"sample":"S1"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"job":{"sample":"S1"}}`, rec.Body.String())

	rec = do(e, http.MethodPost, BasePath+"/workflows/owner/alice/workflow/wf/ver/2.0/job_execution_plan", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(e, http.MethodPost, BasePath+"/workflows/owner/alice/workflow/wf/ver/1.0/job_execution_plan", `[1,2]`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReservedRoutes(t *testing.T) {
	e := newTestServer(new(MockRegistry))

	assert.Equal(t, http.StatusNotImplemented, do(e, http.MethodGet, BasePath+"/workflows/owner/alice/workflow/wf/ver/1.0/job_template", "").Code)
	assert.Equal(t, http.StatusNotImplemented, do(e, http.MethodDelete, BasePath+"/workflows/owner/alice/workflow/wf", "").Code)
	assert.Equal(t, http.StatusNotImplemented, do(e, http.MethodPut, BasePath+"/workflows/owner/alice/workflow/wf/ver/1.0/release", "").Code)
}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func TestHandleHealth(t *testing.T) {
	e := echo.New()
	e.GET("/health", NewHandler(pinger{}).HandleHealth)
	rec := do(e, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)

	e = echo.New()
	e.GET("/health", NewHandler(pinger{err: repository.ErrStoreUnavailable}).HandleHealth)
	rec = do(e, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"degraded"`)
}

func TestSpecHandler(t *testing.T) {
	e := echo.New()
	e.GET("/openapi.yaml", SpecHandler("https://issuer.example.com"))
	rec := do(e, http.MethodGet, "/openapi.yaml", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "https://issuer.example.com/.well-known/openid-configuration")
	assert.Contains(t, rec.Body.String(), "/workflows/owner/{owner_name}")
}
