package models

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// KindAgent is the fixed discriminator value for documents in this collection.
const KindAgent = "agent"

// DefaultVersion is the version assigned to newly created agents.
const DefaultVersion = "1.0.0"

// ReservedCategories are top-level folders excluded from all listing and
// search results regardless of content.
var ReservedCategories = []string{"knowledge-base", ".git", ".github"}

// StringList is a list of strings that also accepts a single YAML scalar,
// decoding it as a one-element list. Used for tags and suggested_models,
// which appear in both forms in existing documents.
type StringList []string

// UnmarshalYAML implements yaml.Unmarshaler.
func (s *StringList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var single string
		if err := value.Decode(&single); err != nil {
			return err
		}
		if single == "" {
			*s = nil
			return nil
		}
		*s = StringList{single}
		return nil
	case yaml.SequenceNode:
		var list []string
		if err := value.Decode(&list); err != nil {
			return err
		}
		*s = StringList(list)
		return nil
	default:
		return fmt.Errorf("cannot decode %s node into string list", value.Tag)
	}
}

// Contains reports whether the list contains v, case-insensitively.
func (s StringList) Contains(v string) bool {
	for _, item := range s {
		if strings.EqualFold(item, v) {
			return true
		}
	}
	return false
}

// Header is the structured metadata block at the top of an agent document.
// Field order is the canonical serialization order.
type Header struct {
	ID              string     `yaml:"id" json:"id"`
	Title           string     `yaml:"title" json:"title"`
	Kind            string     `yaml:"kind" json:"kind"`
	Tags            StringList `yaml:"tags,flow" json:"tags"`
	Project         string     `yaml:"project,omitempty" json:"project,omitempty"`
	Version         string     `yaml:"version" json:"version"`
	Description     string     `yaml:"description" json:"description"`
	LLMProvider     string     `yaml:"llm_provider,omitempty" json:"llm_provider,omitempty"`
	SuggestedModels StringList `yaml:"suggested_models,flow,omitempty" json:"suggested_models,omitempty"`
}

// Validate checks the header against the data model invariants.
func (h *Header) Validate() error {
	if h.Title == "" {
		return MissingField("title")
	}
	if h.Description == "" {
		return MissingField("description")
	}
	if h.Version == "" {
		return MissingField("version")
	}
	return ValidateVersion(h.Version)
}

// Agent is a full document: header, body, and the location and revision
// observed at the remote store.
type Agent struct {
	Header
	Path          string `json:"path"`
	Body          string `json:"body"`
	RevisionToken string `json:"revision_token"`
}

// Category returns the first segment of the agent's path.
func (a *Agent) Category() string {
	return PathCategory(a.Path)
}

// AgentSummary is the listing projection of an agent document.
type AgentSummary struct {
	Path        string     `json:"path"`
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Tags        StringList `json:"tags,omitempty"`
	Project     string     `json:"project,omitempty"`
	Version     string     `json:"version,omitempty"`
	Description string     `json:"description,omitempty"`
}

// DecodeWarning records a document that failed to decode during a listing.
// Bad documents degrade only themselves and are reported to the caller
// rather than silently dropped.
type DecodeWarning struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// PullRequestRef is the terminal result of a successful mutation: the
// review proposal holding the change, plus the branch and path it touches.
type PullRequestRef struct {
	Number int    `json:"number"`
	URL    string `json:"url"`
	Branch string `json:"branch"`
	Path   string `json:"path"`
}

// CategoryCount is a top-level folder and the number of agent documents
// beneath it.
type CategoryCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Filter is a conjunction of optional listing predicates. The zero value
// matches every document.
type Filter struct {
	Tags     []string // document must contain every given tag
	Project  string   // exact match, case-insensitive
	Category string   // first path segment
	Text     string   // case-insensitive substring over title, description, body
}

// Matches reports whether an agent satisfies every set predicate.
// The category predicate is applied against the path before decoding and is
// not re-checked here.
func (f *Filter) Matches(a *Agent) bool {
	for _, tag := range f.Tags {
		if !a.Tags.Contains(tag) {
			return false
		}
	}
	if f.Project != "" && !strings.EqualFold(a.Project, f.Project) {
		return false
	}
	if f.Text != "" {
		needle := strings.ToLower(f.Text)
		if !strings.Contains(strings.ToLower(a.Title), needle) &&
			!strings.Contains(strings.ToLower(a.Description), needle) &&
			!strings.Contains(strings.ToLower(a.Body), needle) {
			return false
		}
	}
	return true
}

// Query matches agents by any combination of header properties. Substring
// predicates are case-insensitive; all set predicates are conjunctive.
type Query struct {
	ID              string   // exact match
	Title           string   // substring
	Tags            []string // any of the given tags
	Project         string   // substring
	LLMProvider     string   // substring
	SuggestedModels string   // substring over the joined list
	Version         string   // substring
	Description     string   // substring
	Text            string   // substring over all header fields and body
	Path            string   // substring scope over the document path
}

// Matches reports whether an agent satisfies the query.
func (q *Query) Matches(a *Agent) bool {
	if q.ID != "" && !strings.EqualFold(a.ID, q.ID) {
		return false
	}
	if !containsFold(a.Title, q.Title) {
		return false
	}
	if len(q.Tags) > 0 {
		matched := false
		for _, tag := range q.Tags {
			if a.Tags.Contains(tag) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	if !containsFold(a.Project, q.Project) {
		return false
	}
	if !containsFold(a.LLMProvider, q.LLMProvider) {
		return false
	}
	if !containsFold(strings.Join(a.SuggestedModels, ", "), q.SuggestedModels) {
		return false
	}
	if !containsFold(a.Version, q.Version) {
		return false
	}
	if !containsFold(a.Description, q.Description) {
		return false
	}
	if q.Text != "" {
		haystack := strings.Join([]string{
			a.ID, a.Title, strings.Join(a.Tags, " "), a.Project, a.Version,
			a.Description, a.LLMProvider, strings.Join(a.SuggestedModels, " "),
			a.Body,
		}, "\n")
		if !strings.Contains(strings.ToLower(haystack), strings.ToLower(q.Text)) {
			return false
		}
	}
	return true
}

// containsFold reports whether haystack contains needle case-insensitively.
// An empty needle always matches.
func containsFold(haystack, needle string) bool {
	if needle == "" {
		return true
	}
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

// UpdateFields is a partial update: nil pointers mean "leave unchanged",
// non-nil pointers overwrite. "Absent" stays distinct from "present but
// empty", so unsupplied fields are never cleared by accident.
type UpdateFields struct {
	Title           *string
	Description     *string
	Tags            *[]string
	Project         *string
	LLMProvider     *string
	SuggestedModels *[]string
	Version         *string
	Body            *string
}

// IsZero reports whether no field is set.
func (u *UpdateFields) IsZero() bool {
	return u.Title == nil && u.Description == nil && u.Tags == nil &&
		u.Project == nil && u.LLMProvider == nil && u.SuggestedModels == nil &&
		u.Version == nil && u.Body == nil
}

// ValidateVersion checks that v parses as MAJOR.MINOR.PATCH with three
// non-negative base-10 integers.
func ValidateVersion(v string) error {
	parts := strings.Split(v, ".")
	if len(parts) != 3 {
		return InvalidFormat("version", fmt.Sprintf("version %q is not MAJOR.MINOR.PATCH", v))
	}
	for _, part := range parts {
		if part == "" {
			return InvalidFormat("version", fmt.Sprintf("version %q is not MAJOR.MINOR.PATCH", v))
		}
		if _, err := strconv.ParseUint(part, 10, 32); err != nil {
			return InvalidFormat("version", fmt.Sprintf("version %q is not MAJOR.MINOR.PATCH", v))
		}
	}
	return nil
}

// Slugify derives a deterministic id from a title: lowercase, runs of
// non-alphanumeric characters collapsed to single hyphens.
func Slugify(title string) string {
	var b strings.Builder
	prevHyphen := false
	for _, r := range strings.ToLower(title) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			prevHyphen = false
		default:
			if !prevHyphen && b.Len() > 0 {
				b.WriteByte('-')
				prevHyphen = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

// PathCategory returns the first segment of a document path.
func PathCategory(path string) string {
	if i := strings.IndexByte(path, '/'); i >= 0 {
		return path[:i]
	}
	return path
}

// IsReservedCategory reports whether name is excluded from listings.
func IsReservedCategory(name string) bool {
	for _, r := range ReservedCategories {
		if name == r {
			return true
		}
	}
	return false
}

// IsAgentPath reports whether a repository path names an agent document:
// a markdown file inside a category, not under any reserved folder.
func IsAgentPath(path string) bool {
	if !strings.HasSuffix(path, ".md") {
		return false
	}
	for part := range strings.SplitSeq(path, "/") {
		if IsReservedCategory(part) {
			return false
		}
	}
	return strings.Contains(path, "/")
}
