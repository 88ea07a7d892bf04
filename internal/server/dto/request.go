package dto

import (
	"github.com/avila-roffe/agents-catalog/internal/models"
)

// --- Health Requests ---

// HealthRequest is a request for a health check.
type HealthRequest struct{}

// Validate implements Validatable.
func (r *HealthRequest) Validate() error { return nil }

// --- Tool Requests ---

// ListToolsRequest is a request for the tool descriptors.
type ListToolsRequest struct{}

// Validate implements Validatable.
func (r *ListToolsRequest) Validate() error { return nil }

// --- Category Requests ---

// ListCategoriesRequest is a request to enumerate top-level categories.
type ListCategoriesRequest struct{}

// Validate implements Validatable.
func (r *ListCategoriesRequest) Validate() error { return nil }

// --- Agent Requests ---

// ListAgentsRequest is a request to enumerate agents. All predicates are
// optional and conjunctive; tags is a comma-separated list.
type ListAgentsRequest struct {
	Tags     string `query:"tags"`
	Project  string `query:"project"`
	Category string `query:"category"`
	Text     string `query:"text"`
}

// Validate implements Validatable.
func (r *ListAgentsRequest) Validate() error { return nil }

// GetAgentRequest is a request for a single agent document.
type GetAgentRequest struct {
	Path string `path:"path"`
}

// Validate implements Validatable.
func (r *GetAgentRequest) Validate() error {
	if r.Path == "" {
		return models.MissingField("path")
	}
	return nil
}

// CreateAgentRequest is a request to create a new agent document behind a
// pull request.
type CreateAgentRequest struct {
	Category        string   `json:"category" jsonschema:"description=Top-level folder for the new agent"`
	Title           string   `json:"title" jsonschema:"description=Human-readable agent title; the id derives from it"`
	Description     string   `json:"description" jsonschema:"description=Short description of what the agent does"`
	PromptContent   string   `json:"prompt_content" jsonschema:"description=Markdown prompt body"`
	Tags            []string `json:"tags,omitempty" jsonschema:"description=Free-form labels"`
	Project         string   `json:"project,omitempty" jsonschema:"description=Project the agent belongs to"`
	LLMProvider     string   `json:"llm_provider,omitempty" jsonschema:"description=Preferred LLM provider"`
	SuggestedModels []string `json:"suggested_models,omitempty" jsonschema:"description=Models known to work well"`
	Version         string   `json:"version,omitempty" jsonschema:"description=Semantic version; defaults to 1.0.0"`
}

// Validate implements Validatable.
func (r *CreateAgentRequest) Validate() error {
	if r.Category == "" {
		return models.MissingField("category")
	}
	if r.Title == "" {
		return models.MissingField("title")
	}
	if r.Description == "" {
		return models.MissingField("description")
	}
	if r.PromptContent == "" {
		return models.MissingField("prompt_content")
	}
	return nil
}

// UpdateAgentRequest is a partial update. Omitted fields are left unchanged;
// fields present with an empty value are cleared.
type UpdateAgentRequest struct {
	Path            string    `json:"-" path:"path"`
	Title           *string   `json:"title,omitempty" jsonschema:"description=New title"`
	Description     *string   `json:"description,omitempty" jsonschema:"description=New description"`
	Tags            *[]string `json:"tags,omitempty" jsonschema:"description=Replacement tag list"`
	Project         *string   `json:"project,omitempty" jsonschema:"description=New project"`
	LLMProvider     *string   `json:"llm_provider,omitempty" jsonschema:"description=New LLM provider"`
	SuggestedModels *[]string `json:"suggested_models,omitempty" jsonschema:"description=Replacement model list"`
	Version         *string   `json:"version,omitempty" jsonschema:"description=New semantic version"`
	PromptContent   *string   `json:"prompt_content,omitempty" jsonschema:"description=New prompt body"`
}

// Validate implements Validatable.
func (r *UpdateAgentRequest) Validate() error {
	if r.Path == "" {
		return models.MissingField("path")
	}
	return nil
}

// Fields converts the request into the partial-update value used by the
// mutation workflow.
func (r *UpdateAgentRequest) Fields() models.UpdateFields {
	return models.UpdateFields{
		Title:           r.Title,
		Description:     r.Description,
		Tags:            r.Tags,
		Project:         r.Project,
		LLMProvider:     r.LLMProvider,
		SuggestedModels: r.SuggestedModels,
		Version:         r.Version,
		Body:            r.PromptContent,
	}
}

// DeleteAgentRequest is a request to propose removing an agent document.
type DeleteAgentRequest struct {
	Path   string `json:"-" path:"path"`
	Reason string `json:"reason" jsonschema:"description=Why the agent should be removed; recorded in the pull request"`
}

// Validate implements Validatable.
func (r *DeleteAgentRequest) Validate() error {
	if r.Path == "" {
		return models.MissingField("path")
	}
	return nil
}

// QueryAgentsRequest matches agents by any combination of properties.
// Substring predicates are case-insensitive.
type QueryAgentsRequest struct {
	ID              string   `json:"id,omitempty" jsonschema:"description=Exact agent id"`
	Title           string   `json:"title,omitempty" jsonschema:"description=Title substring"`
	Tags            []string `json:"tags,omitempty" jsonschema:"description=Match any of these tags"`
	Project         string   `json:"project,omitempty" jsonschema:"description=Project substring"`
	LLMProvider     string   `json:"llm_provider,omitempty" jsonschema:"description=Provider substring"`
	SuggestedModels string   `json:"suggested_models,omitempty" jsonschema:"description=Substring over the model list"`
	Version         string   `json:"version,omitempty" jsonschema:"description=Version substring"`
	Description     string   `json:"description,omitempty" jsonschema:"description=Description substring"`
	Text            string   `json:"text,omitempty" jsonschema:"description=Substring over all fields and the body"`
	Path            string   `json:"path,omitempty" jsonschema:"description=Scope to paths containing this value"`
}

// Validate implements Validatable.
func (r *QueryAgentsRequest) Validate() error { return nil }

// Query converts the request into the matching value used by the query
// workflow.
func (r *QueryAgentsRequest) Query() models.Query {
	return models.Query{
		ID:              r.ID,
		Title:           r.Title,
		Tags:            r.Tags,
		Project:         r.Project,
		LLMProvider:     r.LLMProvider,
		SuggestedModels: r.SuggestedModels,
		Version:         r.Version,
		Description:     r.Description,
		Text:            r.Text,
		Path:            r.Path,
	}
}
