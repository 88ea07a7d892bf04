package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/avila-roffe/agents-catalog/internal/codec"
	"github.com/avila-roffe/agents-catalog/internal/models"
	"github.com/go-git/go-git/v5/plumbing"
)

// MutationService performs create/update/delete as a linear workflow:
// validate, branch, write, open pull request. Steps are never rolled back;
// a branch left behind by a failed later step stays inspectable and is
// cleaned up by an operator, not by this code.
type MutationService struct {
	store Store
	now   func() time.Time
}

// NewMutationService creates a mutation service over the given store.
func NewMutationService(store Store) *MutationService {
	return &MutationService{store: store, now: time.Now}
}

// CreateRequest carries the fields for a new agent.
type CreateRequest struct {
	Category        string
	Title           string
	Description     string
	Body            string
	Tags            []string
	Project         string
	LLMProvider     string
	SuggestedModels []string
	Version         string // defaults to models.DefaultVersion
}

// CreateAgent creates a new agent document behind a pull request and returns
// the pull request reference. The id and file path derive from the title.
func (s *MutationService) CreateAgent(ctx context.Context, req CreateRequest) (*models.PullRequestRef, error) {
	if err := validateCategory(req.Category); err != nil {
		return nil, err
	}
	if req.Title == "" {
		return nil, models.MissingField("title")
	}
	if req.Description == "" {
		return nil, models.MissingField("description")
	}
	if req.Body == "" {
		return nil, models.MissingField("prompt_content")
	}
	version := req.Version
	if version == "" {
		version = models.DefaultVersion
	}
	if err := models.ValidateVersion(version); err != nil {
		return nil, err
	}
	id := models.Slugify(req.Title)
	if id == "" {
		return nil, models.InvalidFormat("title", "title produces an empty id")
	}
	path := req.Category + "/" + id + ".md"

	header := models.Header{
		ID:              id,
		Title:           req.Title,
		Kind:            models.KindAgent,
		Tags:            models.StringList(req.Tags),
		Project:         req.Project,
		Version:         version,
		Description:     req.Description,
		LLMProvider:     req.LLMProvider,
		SuggestedModels: models.StringList(req.SuggestedModels),
	}
	content, err := codec.Encode(header, req.Body)
	if err != nil {
		return nil, models.Internal("failed to encode document").Wrap(err)
	}

	// The remote store is authoritative for uniqueness; surface an existing
	// file as a conflict before touching any branch.
	if _, _, err := s.store.ReadFile(ctx, path); err == nil {
		return nil, models.Conflict("agent already exists at " + path)
	} else if !isNotFound(err) {
		return nil, err
	}

	branch, err := s.openBranch(ctx, "add-agent", id)
	if err != nil {
		return nil, err
	}
	if _, err := s.store.CommitFile(ctx, branch, path, []byte(content), "", "Add agent: "+req.Title); err != nil {
		return nil, err
	}

	prBody := fmt.Sprintf(
		"## New Agent\n\n**Title:** %s\n**Category:** %s\n**Project:** %s\n**Tags:** %s\n**LLM Provider:** %s\n\n**Description:**\n%s\n",
		req.Title, req.Category, orNA(req.Project), orNone(req.Tags), orNA(req.LLMProvider), req.Description)
	return s.openPR(ctx, branch, path, "Add agent: "+req.Title, prBody)
}

// UpdateAgent merges the supplied fields into the current document and
// proposes the result behind a pull request. The revision token observed at
// fetch time is used as the expected token on commit, so an edit that lands
// in between fails with a conflict instead of being overwritten.
func (s *MutationService) UpdateAgent(ctx context.Context, path string, fields models.UpdateFields) (*models.PullRequestRef, error) {
	if path == "" {
		return nil, models.MissingField("path")
	}
	if fields.IsZero() {
		return nil, models.BadRequest("no changes provided")
	}

	raw, token, err := s.store.ReadFile(ctx, path)
	if err != nil {
		return nil, err
	}
	header, body, err := codec.Decode(string(raw))
	if err != nil {
		if decodeErr, ok := err.(*codec.DecodeError); ok {
			return nil, decodeErr.ToAPIError(path)
		}
		return nil, err
	}

	var changes []string
	apply := func(name string, dst *string, src *string) {
		if src != nil {
			*dst = *src
			changes = append(changes, name)
		}
	}
	apply("title", &header.Title, fields.Title)
	apply("description", &header.Description, fields.Description)
	apply("project", &header.Project, fields.Project)
	apply("llm_provider", &header.LLMProvider, fields.LLMProvider)
	apply("version", &header.Version, fields.Version)
	if fields.Tags != nil {
		header.Tags = models.StringList(*fields.Tags)
		changes = append(changes, "tags")
	}
	if fields.SuggestedModels != nil {
		header.SuggestedModels = models.StringList(*fields.SuggestedModels)
		changes = append(changes, "suggested_models")
	}
	if fields.Body != nil {
		body = *fields.Body
		changes = append(changes, "prompt_content")
	}

	if err := header.Validate(); err != nil {
		return nil, err
	}
	content, err := codec.Encode(header, body)
	if err != nil {
		return nil, models.Internal("failed to encode document").Wrap(err)
	}
	// The revision token is the git blob SHA of the stored file; hashing the
	// merged content locally detects an update that changes nothing.
	if plumbing.ComputeHash(plumbing.BlobObject, []byte(content)).String() == token {
		return nil, models.BadRequest("update to " + path + " changes nothing")
	}

	branch, err := s.openBranch(ctx, "update-agent", header.ID)
	if err != nil {
		return nil, err
	}
	if _, err := s.store.CommitFile(ctx, branch, path, []byte(content), token, "Update agent: "+header.Title); err != nil {
		return nil, err
	}

	var list strings.Builder
	for _, c := range changes {
		fmt.Fprintf(&list, "- %s\n", c)
	}
	prBody := fmt.Sprintf("## Update Agent\n\n**File:** `%s`\n\n**Changes:**\n%s", path, list.String())
	return s.openPR(ctx, branch, path, "Update agent: "+header.Title, prBody)
}

// DeleteAgent proposes removing the document behind a pull request. The
// reason is required and is recorded verbatim in the pull request body.
func (s *MutationService) DeleteAgent(ctx context.Context, path, reason string) (*models.PullRequestRef, error) {
	if path == "" {
		return nil, models.MissingField("path")
	}
	if strings.TrimSpace(reason) == "" {
		return nil, models.MissingField("reason")
	}

	raw, token, err := s.store.ReadFile(ctx, path)
	if err != nil {
		return nil, err
	}
	// Use the header for naming when it parses; a corrupt document can
	// still be deleted.
	id := strings.TrimSuffix(pathBase(path), ".md")
	title := path
	if header, _, err := codec.Decode(string(raw)); err == nil {
		id = header.ID
		title = header.Title
	}

	branch, err := s.openBranch(ctx, "delete-agent", id)
	if err != nil {
		return nil, err
	}
	if _, err := s.store.CommitFile(ctx, branch, path, nil, token, "Delete agent: "+title); err != nil {
		return nil, err
	}

	prBody := fmt.Sprintf("## Delete Agent\n\n**File:** `%s`\n**Agent:** %s\n**ID:** %s\n\n**Reason:**\n%s\n",
		path, title, id, reason)
	return s.openPR(ctx, branch, path, "Delete agent: "+title, prBody)
}

// openBranch creates a uniquely named branch off the default branch head.
func (s *MutationService) openBranch(ctx context.Context, action, id string) (string, error) {
	_, headSHA, err := s.store.DefaultBranch(ctx)
	if err != nil {
		return "", err
	}
	name := fmt.Sprintf("%s-%s-%s", action, id, s.now().UTC().Format("20060102150405"))
	if err := s.store.CreateBranch(ctx, headSHA, name); err != nil {
		return "", err
	}
	return name, nil
}

// openPR opens the pull request for a branch whose commit already landed.
// A failure here is reported with the branch name so an operator can open
// the pull request manually; the branch is deliberately left in place.
func (s *MutationService) openPR(ctx context.Context, branch, path, title, body string) (*models.PullRequestRef, error) {
	pr, err := s.store.OpenPullRequest(ctx, branch, title, body)
	if err != nil {
		slog.ErrorContext(ctx, "Commit landed but pull request failed to open", "branch", branch, "path", path, "err", err)
		return nil, models.Upstream("changes for "+path+" were committed to branch "+branch+" but the pull request could not be opened", err).
			WithDetail("branch", branch).
			WithDetail("committed", true)
	}
	return &models.PullRequestRef{Number: pr.Number, URL: pr.URL, Branch: branch, Path: path}, nil
}

func validateCategory(category string) error {
	if category == "" {
		return models.MissingField("category")
	}
	if strings.Contains(category, "/") {
		return models.InvalidFormat("category", "category must be a single folder name")
	}
	if models.IsReservedCategory(category) {
		return models.InvalidFormat("category", "category "+category+" is reserved")
	}
	return nil
}

func isNotFound(err error) bool {
	var apiErr *models.APIError
	return errors.As(err, &apiErr) && apiErr.Code() == models.ErrNotFound
}

func pathBase(path string) string {
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		return path[i+1:]
	}
	return path
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

func orNone(list []string) string {
	if len(list) == 0 {
		return "None"
	}
	return strings.Join(list, ", ")
}
