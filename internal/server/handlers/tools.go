package handlers

import (
	"context"
	"net/http"

	"github.com/avila-roffe/agents-catalog/internal/server/dto"
	"github.com/invopop/jsonschema"
)

// ToolsHandler serves machine-readable descriptors of every catalog
// operation so callers can discover the surface and validate inputs without
// hardcoding request shapes.
type ToolsHandler struct {
	tools []dto.ToolDescriptor
}

// NewToolsHandler creates a tools handler with schemas reflected once at
// construction.
func NewToolsHandler() *ToolsHandler {
	r := jsonschema.Reflector{Anonymous: true, DoNotReference: true}
	return &ToolsHandler{tools: []dto.ToolDescriptor{
		{
			Name:        "list_categories",
			Description: "List top-level categories and the number of agents in each.",
			Method:      http.MethodGet,
			Path:        "/api/v1/categories",
			InputSchema: r.Reflect(&dto.ListCategoriesRequest{}),
		},
		{
			Name:        "list_agents",
			Description: "List agents, optionally filtered by tags, project, category, and text.",
			Method:      http.MethodGet,
			Path:        "/api/v1/agents",
			InputSchema: r.Reflect(&dto.ListAgentsRequest{}),
		},
		{
			Name:        "get_agent",
			Description: "Fetch a single agent document with its body and revision token.",
			Method:      http.MethodGet,
			Path:        "/api/v1/agents/{path}",
			InputSchema: r.Reflect(&dto.GetAgentRequest{}),
		},
		{
			Name:        "query_agent",
			Description: "Search agents by any combination of properties.",
			Method:      http.MethodPost,
			Path:        "/api/v1/agents/query",
			InputSchema: r.Reflect(&dto.QueryAgentsRequest{}),
		},
		{
			Name:        "create_agent",
			Description: "Create a new agent behind a pull request.",
			Method:      http.MethodPost,
			Path:        "/api/v1/agents",
			InputSchema: r.Reflect(&dto.CreateAgentRequest{}),
		},
		{
			Name:        "update_agent",
			Description: "Update fields of an existing agent behind a pull request.",
			Method:      http.MethodPatch,
			Path:        "/api/v1/agents/{path}",
			InputSchema: r.Reflect(&dto.UpdateAgentRequest{}),
		},
		{
			Name:        "delete_agent",
			Description: "Propose deleting an agent behind a pull request. A reason is required.",
			Method:      http.MethodDelete,
			Path:        "/api/v1/agents/{path}",
			InputSchema: r.Reflect(&dto.DeleteAgentRequest{}),
		},
	}}
}

// ListTools returns all tool descriptors.
func (h *ToolsHandler) ListTools(ctx context.Context, req *dto.ListToolsRequest) (*dto.ListToolsResponse, error) {
	return &dto.ListToolsResponse{Tools: h.tools}, nil
}
