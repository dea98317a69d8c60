package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"jt-wrs/backend/pkg/models"
)

// Registry is the registry surface exposed as tools.
type Registry interface {
	ListWorkflows(ctx context.Context, ownerName, nameFilter, versionFilter string) ([]*models.Workflow, error)
	GetWorkflow(ctx context.Context, ownerName, name, version string) (*models.Workflow, error)
	GetWorkflowfile(ctx context.Context, ownerName, name, version string) (string, bool, error)
	RegisterWorkflow(ctx context.Context, ownerName string, entry models.WorkflowEntry) (*models.Workflow, error)
	GetExecutionPlan(ctx context.Context, ownerName, name, version string, job map[string]any) (map[string]any, error)
}

// WriteGuard decides whether the caller in ctx may change the registry.
type WriteGuard func(ctx context.Context) error

// Option configures a Server.
type Option func(*Server)

// WithWriteGuard runs guard before every tool that writes.
func WithWriteGuard(guard WriteGuard) Option {
	return func(s *Server) {
		s.writeGuard = guard
	}
}

type Server struct {
	mcpServer  *server.MCPServer
	registry   Registry
	writeGuard WriteGuard
}

func NewServer(registry Registry, version string, opts ...Option) *Server {
	s := &Server{
		mcpServer: server.NewMCPServer(
			"JTracker Workflow Registry",
			version,
			server.WithToolCapabilities(true),
		),
		registry: registry,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.registerTools()
	return s
}

func (s *Server) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *Server) registerTools() {
	owner := mcp.WithString("owner", mcp.Required(), mcp.Description("Owner (account) name"))

	s.mcpServer.AddTool(
		mcp.NewTool(
			"list_workflows",
			mcp.WithDescription("List the workflows of an owner"),
			owner,
			mcp.WithString("name", mcp.Description("Only the workflow with this name")),
			mcp.WithString("version", mcp.Description("Only workflows carrying this version")),
		),
		s.handleListWorkflows,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"get_workflow",
			mcp.WithDescription("Get one workflow, optionally narrowed to a version"),
			owner,
			mcp.WithString("name", mcp.Required(), mcp.Description("Workflow name")),
			mcp.WithString("version", mcp.Description("Workflow version")),
		),
		s.handleGetWorkflow,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"get_workflowfile",
			mcp.WithDescription("Get the workflow definition file of a version"),
			owner,
			mcp.WithString("name", mcp.Required(), mcp.Description("Workflow name")),
			mcp.WithString("version", mcp.Required(), mcp.Description("Workflow version")),
		),
		s.handleGetWorkflowfile,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"register_workflow",
			mcp.WithDescription("Register a new workflow version from a tagged git repository"),
			owner,
			mcp.WithString("name", mcp.Required(), mcp.Description("Workflow name")),
			mcp.WithString("version", mcp.Required(), mcp.Description("Workflow version")),
			mcp.WithString("git_account", mcp.Required(), mcp.Description("Source control account")),
			mcp.WithString("git_repo", mcp.Required(), mcp.Description("Source control repository")),
			mcp.WithString("git_tag", mcp.Required(), mcp.Description("Tag: the version or <name>.<version>")),
			mcp.WithString("git_path", mcp.Description("Directory of the workflow inside the repository")),
			mcp.WithString("workflow_type", mcp.Description("Workflow type, JTracker by default")),
		),
		s.handleRegisterWorkflow,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"get_execution_plan",
			mcp.WithDescription("Bind a job document to a workflow version"),
			owner,
			mcp.WithString("name", mcp.Required(), mcp.Description("Workflow name")),
			mcp.WithString("version", mcp.Required(), mcp.Description("Workflow version")),
			mcp.WithObject("job", mcp.Description("Job document")),
		),
		s.handleGetExecutionPlan,
	)
}

func (s *Server) handleListWorkflows(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	owner, err := request.RequireString("owner")
	if err != nil {
		return mcp.NewToolResultError("Missing required parameter: owner"), nil
	}

	workflows, err := s.registry.ListWorkflows(ctx, owner, request.GetString("name", ""), request.GetString("version", ""))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list workflows: %v", err)), nil
	}
	return jsonResult(workflows)
}

func (s *Server) handleGetWorkflow(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	owner, name, err := ownerAndName(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	version := request.GetString("version", "")

	workflow, err := s.registry.GetWorkflow(ctx, owner, name, version)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get workflow: %v", err)), nil
	}
	if workflow == nil {
		return mcp.NewToolResultError(fmt.Sprintf("Workflow %s/%s not found", owner, name)), nil
	}
	return jsonResult(workflow)
}

func (s *Server) handleGetWorkflowfile(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	owner, name, err := ownerAndName(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	version, err := request.RequireString("version")
	if err != nil {
		return mcp.NewToolResultError("Missing required parameter: version"), nil
	}

	text, found, err := s.registry.GetWorkflowfile(ctx, owner, name, version)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get workflowfile: %v", err)), nil
	}
	if !found {
		return mcp.NewToolResultError(fmt.Sprintf("Workflow %s/%s version %s not found", owner, name, version)), nil
	}
	return mcp.NewToolResultText(text), nil
}

func (s *Server) handleRegisterWorkflow(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.writeGuard != nil {
		if err := s.writeGuard(ctx); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Not authorized to register workflows: %v", err)), nil
		}
	}

	owner, name, err := ownerAndName(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	entry := models.WorkflowEntry{
		Name:         name,
		Version:      request.GetString("version", ""),
		WorkflowType: request.GetString("workflow_type", ""),
		GitAccount:   request.GetString("git_account", ""),
		GitRepo:      request.GetString("git_repo", ""),
		GitPath:      request.GetString("git_path", ""),
		GitTag:       request.GetString("git_tag", ""),
	}
	workflow, err := s.registry.RegisterWorkflow(ctx, owner, entry)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to register workflow: %v", err)), nil
	}
	return jsonResult(workflow)
}

func (s *Server) handleGetExecutionPlan(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	owner, name, err := ownerAndName(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	version, err := request.RequireString("version")
	if err != nil {
		return mcp.NewToolResultError("Missing required parameter: version"), nil
	}
	job := map[string]any{}
	if raw, ok := request.GetArguments()["job"]; ok && raw != nil {
		if job, ok = raw.(map[string]any); !ok {
			return mcp.NewToolResultError("Parameter job must be an object"), nil
		}
	}

	plan, err := s.registry.GetExecutionPlan(ctx, owner, name, version, job)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to plan job: %v", err)), nil
	}
	return jsonResult(plan)
}

func ownerAndName(request mcp.CallToolRequest) (string, string, error) {
	owner, err := request.RequireString("owner")
	if err != nil {
		return "", "", fmt.Errorf("Missing required parameter: owner")
	}
	name, err := request.RequireString("name")
	if err != nil {
		return "", "", fmt.Errorf("Missing required parameter: name")
	}
	return owner, name, nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	jsonBytes, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

// MountHTTPHandlers serves mcpServer below /mcp. A non-nil contextFunc
// derives the context of every tool call from its HTTP request.
func MountHTTPHandlers(mux *http.ServeMux, mcpServer *server.MCPServer, contextFunc server.SSEContextFunc) {
	opts := []server.SSEOption{server.WithStaticBasePath("/mcp")}
	if contextFunc != nil {
		opts = append(opts, server.WithSSEContextFunc(contextFunc))
	}
	// Use SSE server for /mcp/sse and /mcp/message endpoints
	sseServer := server.NewSSEServer(mcpServer, opts...)

	mux.HandleFunc("/mcp", func(w http.ResponseWriter, r *http.Request) {
		// Direct POST for tool calls
		if r.Method == http.MethodPost {
			sseServer.ServeHTTP(w, r)
			return
		}
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	})

	// SSE endpoints
	mux.HandleFunc("/mcp/sse", sseServer.ServeHTTP)
	mux.HandleFunc("/mcp/message", sseServer.ServeHTTP)
}
