// Package mcpapi provides a stateless MCP streamable-HTTP adapter.
package mcpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/owcee/sitepulse/internal/adapters/server/common"
	"github.com/owcee/sitepulse/internal/domain"
)

// Config captures MCP transport configuration.
type Config struct {
	ServerName    string
	ServerVersion string
	EndpointPath  string
}

// Handler wraps one stateless MCP streamable HTTP handler.
type Handler struct {
	httpHandler http.Handler
}

// NewHandler builds one stateless MCP adapter exposing the survey tools.
func NewHandler(cfg Config, surveys common.SurveyService) (*Handler, error) {
	if surveys == nil {
		return nil, fmt.Errorf("survey service is required")
	}
	cfg = normalizeConfig(cfg)

	mcpSrv := mcpserver.NewMCPServer(
		cfg.ServerName,
		cfg.ServerVersion,
		mcpserver.WithToolCapabilities(false),
	)
	registerSurveyTools(mcpSrv, surveys)
	registerRiskTools(mcpSrv, surveys)

	streamable := mcpserver.NewStreamableHTTPServer(
		mcpSrv,
		mcpserver.WithEndpointPath(cfg.EndpointPath),
		mcpserver.WithStateLess(true),
	)
	return &Handler{httpHandler: streamable}, nil
}

// ServeHTTP handles one MCP streamable HTTP request.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.httpHandler == nil {
		http.Error(w, "mcp handler unavailable", http.StatusServiceUnavailable)
		return
	}
	h.httpHandler.ServeHTTP(w, r)
}

// normalizeConfig applies deterministic defaults to MCP adapter config.
func normalizeConfig(cfg Config) Config {
	cfg.ServerName = strings.TrimSpace(cfg.ServerName)
	if cfg.ServerName == "" {
		cfg.ServerName = "sitepulse"
	}
	cfg.ServerVersion = strings.TrimSpace(cfg.ServerVersion)
	if cfg.ServerVersion == "" {
		cfg.ServerVersion = "dev"
	}
	cfg.EndpointPath = strings.TrimSpace(cfg.EndpointPath)
	if cfg.EndpointPath == "" {
		cfg.EndpointPath = "/mcp"
	}
	cfg.EndpointPath = "/" + strings.Trim(cfg.EndpointPath, "/")
	return cfg
}

// registerSurveyTools registers the gate, submit, and skip tools.
func registerSurveyTools(srv *mcpserver.MCPServer, surveys common.SurveyService) {
	srv.AddTool(
		mcp.NewTool(
			"sitepulse.should_show_survey",
			mcp.WithDescription("Report whether today's site survey is still unaddressed for one engineer and project."),
			mcp.WithString("user_id", mcp.Required(), mcp.Description("Engineer user id")),
			mcp.WithString("project_id", mcp.Required(), mcp.Description("Project identifier")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			userID, err := req.RequireString("user_id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			projectID, err := req.RequireString("project_id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			out, err := surveys.Eligibility(ctx, common.EligibilityRequest{UserID: userID, ProjectID: projectID})
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("should_show_survey", out)
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"sitepulse.submit_survey",
			mcp.WithDescription("Submit today's site survey. Task answers only matter for delayed sites; normal and closed sites derive them."),
			mcp.WithString("user_id", mcp.Required(), mcp.Description("Engineer user id")),
			mcp.WithString("project_id", mcp.Required(), mcp.Description("Project identifier")),
			mcp.WithString("site_status", mcp.Required(), mcp.Description("Overall site status"), mcp.Enum("normal", "delayed", "closed")),
			mcp.WithString("engineer_name", mcp.Description("Display name recorded on the survey")),
			mcp.WithString("site_closed_reason", mcp.Description("Required when closed"), mcp.Enum(domain.SiteClosedReasons...)),
			mcp.WithString("site_closed_reason_other", mcp.Description("Free text when the closed reason is Other")),
			mcp.WithObject("tasks", mcp.Description("Map of task id to {status, delay_reason, delay_reason_other} for delayed sites")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			var args common.SubmitSurveyRequest
			if err := req.BindArguments(&args); err != nil {
				return invalidRequestToolResult(err), nil
			}
			out, err := surveys.SubmitSurvey(ctx, args)
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("submit_survey", out)
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"sitepulse.skip_survey",
			mcp.WithDescription("Dismiss today's site survey for one engineer and project."),
			mcp.WithString("user_id", mcp.Required(), mcp.Description("Engineer user id")),
			mcp.WithString("project_id", mcp.Required(), mcp.Description("Project identifier")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			userID, err := req.RequireString("user_id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			projectID, err := req.RequireString("project_id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			out, err := surveys.SkipSurvey(ctx, common.SkipSurveyRequest{UserID: userID, ProjectID: projectID})
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("skip_survey", out)
		},
	)
}

// registerRiskTools registers the risk summary and active task tools.
func registerRiskTools(srv *mcpserver.MCPServer, surveys common.SurveyService) {
	srv.AddTool(
		mcp.NewTool(
			"sitepulse.risk_summary",
			mcp.WithDescription("Return high, medium, and low delay-risk task counts for a project."),
			mcp.WithString("project_id", mcp.Required(), mcp.Description("Project identifier")),
			mcp.WithBoolean("refresh", mcp.Description("Recompute predictions before answering")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			projectID, err := req.RequireString("project_id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			out, err := surveys.RiskSummary(ctx, common.RiskSummaryRequest{
				ProjectID: projectID,
				Refresh:   req.GetBool("refresh", false),
			})
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("risk_summary", out)
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"sitepulse.list_active_tasks",
			mcp.WithDescription("List the not-started and in-progress tasks a survey covers."),
			mcp.WithString("project_id", mcp.Required(), mcp.Description("Project identifier")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			projectID, err := req.RequireString("project_id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			tasks, err := surveys.ActiveTasks(ctx, common.ActiveTasksRequest{ProjectID: projectID})
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("list_active_tasks", map[string]any{
				"tasks": tasks,
			})
		},
	)
}

func jsonResult(tool string, payload any) (*mcp.CallToolResult, error) {
	result, err := mcp.NewToolResultJSON(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s result: %w", tool, err)
	}
	return result, nil
}

// toolResultFromError maps service errors into MCP-visible tool errors.
func toolResultFromError(err error) *mcp.CallToolResult {
	switch {
	case err == nil:
		return mcp.NewToolResultError("unknown error")
	case errors.Is(err, common.ErrConflict):
		return mcp.NewToolResultError("already_submitted: " + err.Error())
	case errors.Is(err, common.ErrInvalidRequest):
		return mcp.NewToolResultError("invalid_request: " + err.Error())
	case errors.Is(err, common.ErrNotFound):
		return mcp.NewToolResultError("not_found: " + err.Error())
	case errors.Is(err, common.ErrUpstreamUnavailable):
		return mcp.NewToolResultError("predictor_unavailable: " + err.Error())
	default:
		return mcp.NewToolResultError("internal_error: " + err.Error())
	}
}

// invalidRequestToolResult maps argument binding failures into tool errors.
func invalidRequestToolResult(err error) *mcp.CallToolResult {
	if err == nil {
		return mcp.NewToolResultError("invalid_request: malformed arguments")
	}
	return mcp.NewToolResultError("invalid_request: " + err.Error())
}
