// Package catalog implements the query engine and the mutation orchestrator
// over the remote store. Neither keeps state between calls: every operation
// re-derives its view from the store.
package catalog

import (
	"context"

	"github.com/avila-roffe/agents-catalog/internal/github"
)

// Store is the remote version-control boundary the catalog depends on.
// *github.Client is the production implementation; tests substitute fakes.
type Store interface {
	// ReadFile returns a file's content and revision token.
	ReadFile(ctx context.Context, path string) ([]byte, string, error)
	// ListTree lists paths recursively under a prefix on the default branch.
	ListTree(ctx context.Context, prefix string) ([]github.TreeEntry, error)
	// DefaultBranch returns the default branch name and head commit SHA.
	DefaultBranch(ctx context.Context) (string, string, error)
	// CreateBranch creates a branch pointing at fromSHA.
	CreateBranch(ctx context.Context, fromSHA, name string) error
	// CommitFile writes (content non-nil) or deletes (content nil) a file.
	CommitFile(ctx context.Context, branch, path string, content []byte, expectedSHA, message string) (string, error)
	// OpenPullRequest opens a pull request from head into the default branch.
	OpenPullRequest(ctx context.Context, head, title, body string) (*github.PullRequest, error)
}
