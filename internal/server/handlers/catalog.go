package handlers

import (
	"context"
	"strings"

	"github.com/avila-roffe/agents-catalog/internal/catalog"
	"github.com/avila-roffe/agents-catalog/internal/models"
	"github.com/avila-roffe/agents-catalog/internal/server/dto"
)

// CatalogHandler exposes the catalog read and mutation workflows over HTTP.
type CatalogHandler struct {
	query     *catalog.QueryService
	mutations *catalog.MutationService
}

// NewCatalogHandler creates a new catalog handler.
func NewCatalogHandler(query *catalog.QueryService, mutations *catalog.MutationService) *CatalogHandler {
	return &CatalogHandler{query: query, mutations: mutations}
}

// ListCategories returns the top-level folders and their document counts.
func (h *CatalogHandler) ListCategories(ctx context.Context, req *dto.ListCategoriesRequest) (*dto.ListCategoriesResponse, error) {
	categories, err := h.query.ListCategories(ctx)
	if err != nil {
		return nil, err
	}
	return &dto.ListCategoriesResponse{Categories: categories}, nil
}

// ListAgents enumerates agents matching the query string predicates.
func (h *CatalogHandler) ListAgents(ctx context.Context, req *dto.ListAgentsRequest) (*dto.ListAgentsResponse, error) {
	filter := models.Filter{
		Tags:     splitTags(req.Tags),
		Project:  req.Project,
		Category: req.Category,
		Text:     req.Text,
	}
	agents, warnings, err := h.query.ListAgents(ctx, filter)
	if err != nil {
		return nil, err
	}
	if agents == nil {
		agents = []models.AgentSummary{}
	}
	return &dto.ListAgentsResponse{Agents: agents, Warnings: warnings}, nil
}

// GetAgent returns the full document at the request path.
func (h *CatalogHandler) GetAgent(ctx context.Context, req *dto.GetAgentRequest) (*dto.GetAgentResponse, error) {
	return h.query.GetAgent(ctx, req.Path)
}

// CreateAgent creates a new agent document behind a pull request.
func (h *CatalogHandler) CreateAgent(ctx context.Context, req *dto.CreateAgentRequest) (*dto.MutationResponse, error) {
	ref, err := h.mutations.CreateAgent(ctx, catalog.CreateRequest{
		Category:        req.Category,
		Title:           req.Title,
		Description:     req.Description,
		Body:            req.PromptContent,
		Tags:            req.Tags,
		Project:         req.Project,
		LLMProvider:     req.LLMProvider,
		SuggestedModels: req.SuggestedModels,
		Version:         req.Version,
	})
	if err != nil {
		return nil, err
	}
	return &dto.MutationResponse{PullRequest: ref}, nil
}

// UpdateAgent merges the supplied fields into the document behind a pull
// request.
func (h *CatalogHandler) UpdateAgent(ctx context.Context, req *dto.UpdateAgentRequest) (*dto.MutationResponse, error) {
	ref, err := h.mutations.UpdateAgent(ctx, req.Path, req.Fields())
	if err != nil {
		return nil, err
	}
	return &dto.MutationResponse{PullRequest: ref}, nil
}

// DeleteAgent proposes removing the document behind a pull request.
func (h *CatalogHandler) DeleteAgent(ctx context.Context, req *dto.DeleteAgentRequest) (*dto.MutationResponse, error) {
	ref, err := h.mutations.DeleteAgent(ctx, req.Path, req.Reason)
	if err != nil {
		return nil, err
	}
	return &dto.MutationResponse{PullRequest: ref}, nil
}

// QueryAgents matches agents by any combination of properties and returns
// the full documents.
func (h *CatalogHandler) QueryAgents(ctx context.Context, req *dto.QueryAgentsRequest) (*dto.QueryAgentsResponse, error) {
	agents, warnings, err := h.query.QueryAgents(ctx, req.Query())
	if err != nil {
		return nil, err
	}
	if agents == nil {
		agents = []models.Agent{}
	}
	return &dto.QueryAgentsResponse{Agents: agents, Warnings: warnings}, nil
}

// splitTags parses a comma-separated tag list, dropping empty entries.
func splitTags(s string) []string {
	if s == "" {
		return nil
	}
	var tags []string
	for part := range strings.SplitSeq(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			tags = append(tags, part)
		}
	}
	return tags
}
