package catalog

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/avila-roffe/agents-catalog/internal/codec"
	"github.com/avila-roffe/agents-catalog/internal/models"
)

// QueryService answers read-only queries over the agent collection. It has
// no cache: each call walks the remote tree again.
type QueryService struct {
	store Store
}

// NewQueryService creates a query service over the given store.
func NewQueryService(store Store) *QueryService {
	return &QueryService{store: store}
}

// ListCategories returns the top-level folders and the number of agent
// documents recursively beneath each. Reserved folders are excluded;
// folders holding no documents are listed with count zero. Sorted by name.
func (s *QueryService) ListCategories(ctx context.Context) ([]models.CategoryCount, error) {
	entries, err := s.store.ListTree(ctx, "")
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int)
	for _, e := range entries {
		category := models.PathCategory(e.Path)
		if models.IsReservedCategory(category) {
			continue
		}
		if !e.IsFile && !strings.Contains(e.Path, "/") {
			// Top-level folder, possibly empty.
			if _, ok := counts[e.Path]; !ok {
				counts[e.Path] = 0
			}
			continue
		}
		if e.IsFile && models.IsAgentPath(e.Path) {
			counts[category]++
		}
	}
	result := make([]models.CategoryCount, 0, len(counts))
	for name, count := range counts {
		result = append(result, models.CategoryCount{Name: name, Count: count})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

// ListAgents enumerates all agent documents matching the filter, ordered by
// path. Documents that fail to decode are reported as warnings alongside
// the results, never silently dropped and never failing the listing.
func (s *QueryService) ListAgents(ctx context.Context, filter models.Filter) ([]models.AgentSummary, []models.DecodeWarning, error) {
	var summaries []models.AgentSummary
	warnings, err := s.walk(ctx, filter.Category, func(a *models.Agent) {
		if filter.Matches(a) {
			summaries = append(summaries, models.AgentSummary{
				Path:        a.Path,
				ID:          a.ID,
				Title:       a.Title,
				Tags:        a.Tags,
				Project:     a.Project,
				Version:     a.Version,
				Description: a.Description,
			})
		}
	})
	if err != nil {
		return nil, nil, err
	}
	return summaries, warnings, nil
}

// GetAgent returns the full document at path, including body and the
// revision token needed for a later update or delete.
func (s *QueryService) GetAgent(ctx context.Context, path string) (*models.Agent, error) {
	if path == "" {
		return nil, models.MissingField("path")
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
	return &models.Agent{Header: header, Path: path, Body: body, RevisionToken: token}, nil
}

// QueryAgents matches agents against any combination of header properties.
// Like ListAgents it degrades per-item on decode failures.
func (s *QueryService) QueryAgents(ctx context.Context, query models.Query) ([]models.Agent, []models.DecodeWarning, error) {
	var matches []models.Agent
	warnings, err := s.walk(ctx, "", func(a *models.Agent) {
		if query.Path != "" {
			p := strings.ToLower(a.Path)
			scope := strings.ToLower(query.Path)
			if !strings.HasPrefix(p, scope) && !strings.Contains(p, scope) {
				return
			}
		}
		if query.Matches(a) {
			matches = append(matches, *a)
		}
	})
	if err != nil {
		return nil, nil, err
	}
	return matches, warnings, nil
}

// walk enumerates agent documents in path order, decodes each and hands the
// valid ones to visit. category, when set, restricts the walk to one
// top-level folder before any file is read.
func (s *QueryService) walk(ctx context.Context, category string, visit func(*models.Agent)) ([]models.DecodeWarning, error) {
	if category != "" && models.IsReservedCategory(category) {
		// Reserved folders are invisible even when asked for by name.
		return nil, nil
	}
	entries, err := s.store.ListTree(ctx, category)
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, e := range entries {
		if e.IsFile && models.IsAgentPath(e.Path) {
			paths = append(paths, e.Path)
		}
	}
	sort.Strings(paths)

	var warnings []models.DecodeWarning
	for _, path := range paths {
		raw, token, err := s.store.ReadFile(ctx, path)
		if err != nil {
			// A file that vanished or failed between listing and read
			// degrades only itself.
			slog.WarnContext(ctx, "Failed to read agent document", "path", path, "err", err)
			warnings = append(warnings, models.DecodeWarning{Path: path, Reason: err.Error()})
			continue
		}
		header, body, err := codec.Decode(string(raw))
		if err != nil {
			warnings = append(warnings, models.DecodeWarning{Path: path, Reason: err.Error()})
			continue
		}
		visit(&models.Agent{Header: header, Path: path, Body: body, RevisionToken: token})
	}
	return warnings, nil
}
