package dto

import (
	"github.com/avila-roffe/agents-catalog/internal/models"
	"github.com/invopop/jsonschema"
)

// --- Error envelope ---

// ErrorResponse is the JSON envelope for all error responses.
type ErrorResponse struct {
	Error   ErrorDetails   `json:"error"`
	Details map[string]any `json:"details,omitempty"`
}

// ErrorDetails carries the machine-readable code and human-readable message.
type ErrorDetails struct {
	Code    models.ErrorCode `json:"code"`
	Message string           `json:"message"`
}

// --- Health Responses ---

// HealthResponse is a response from a health check.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// --- Tool Responses ---

// ToolDescriptor describes one catalog operation for machine callers: the
// HTTP binding plus a JSON Schema of the request.
type ToolDescriptor struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Method      string             `json:"method"`
	Path        string             `json:"path"`
	InputSchema *jsonschema.Schema `json:"input_schema"`
}

// ListToolsResponse is a response containing all tool descriptors.
type ListToolsResponse struct {
	Tools []ToolDescriptor `json:"tools"`
}

// --- Category Responses ---

// ListCategoriesResponse is a response containing category counts.
type ListCategoriesResponse struct {
	Categories []models.CategoryCount `json:"categories"`
}

// --- Agent Responses ---

// ListAgentsResponse is a response containing agent summaries. Documents
// that failed to decode are reported as warnings, never silently dropped.
type ListAgentsResponse struct {
	Agents   []models.AgentSummary  `json:"agents"`
	Warnings []models.DecodeWarning `json:"warnings,omitempty"`
}

// GetAgentResponse is a response containing a full agent document.
type GetAgentResponse = models.Agent

// MutationResponse is the response to create, update, and delete: the pull
// request proposing the change.
type MutationResponse struct {
	PullRequest *models.PullRequestRef `json:"pull_request"`
}

// QueryAgentsResponse is a response containing full matching documents.
type QueryAgentsResponse struct {
	Agents   []models.Agent         `json:"agents"`
	Warnings []models.DecodeWarning `json:"warnings,omitempty"`
}
