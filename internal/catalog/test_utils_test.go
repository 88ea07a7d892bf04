package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/avila-roffe/agents-catalog/internal/codec"
	"github.com/avila-roffe/agents-catalog/internal/github"
	"github.com/avila-roffe/agents-catalog/internal/models"
	"github.com/go-git/go-git/v5/plumbing"
)

// fakeStore is an in-memory Store with the same optimistic concurrency
// behavior as the GitHub gateway: revision tokens are git blob SHAs and a
// conditional commit fails when the token is stale.
type fakeStore struct {
	mu        sync.Mutex
	files     map[string]string
	emptyDirs []string
	branches  map[string]bool
	commits   []fakeCommit
	prs       []fakePR

	// afterRead, when set, runs once after the next ReadFile to simulate a
	// concurrent writer landing between fetch and commit.
	afterRead func()
	failPR    bool
	readCalls int
}

type fakeCommit struct {
	branch      string
	path        string
	content     string
	expectedSHA string
	message     string
	deleted     bool
}

type fakePR struct {
	head  string
	title string
	body  string
}

func newFakeStore() *fakeStore {
	return &fakeStore{files: make(map[string]string), branches: make(map[string]bool)}
}

func blobSHA(content string) string {
	return plumbing.ComputeHash(plumbing.BlobObject, []byte(content)).String()
}

// putAgent encodes and stores a valid agent document, returning its token.
func (f *fakeStore) putAgent(t *testing.T, path string, h models.Header, body string) string {
	t.Helper()
	content, err := codec.Encode(h, body)
	if err != nil {
		t.Fatal(err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[path] = content
	return blobSHA(content)
}

func (f *fakeStore) putRaw(path, content string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[path] = content
}

func (f *fakeStore) ReadFile(_ context.Context, path string) ([]byte, string, error) {
	f.mu.Lock()
	f.readCalls++
	content, ok := f.files[path]
	hook := f.afterRead
	f.afterRead = nil
	f.mu.Unlock()
	if hook != nil {
		defer hook()
	}
	if !ok {
		return nil, "", models.NotFound(path)
	}
	return []byte(content), blobSHA(content), nil
}

func (f *fakeStore) ListTree(_ context.Context, prefix string) ([]github.TreeEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	dirs := make(map[string]bool)
	for _, d := range f.emptyDirs {
		dirs[d] = true
	}
	var entries []github.TreeEntry
	for path := range f.files {
		parts := strings.Split(path, "/")
		for i := 1; i < len(parts); i++ {
			dirs[strings.Join(parts[:i], "/")] = true
		}
		entries = append(entries, github.TreeEntry{Path: path, IsFile: true})
	}
	for d := range dirs {
		entries = append(entries, github.TreeEntry{Path: d})
	}
	var filtered []github.TreeEntry
	for _, e := range entries {
		if prefix != "" && e.Path != prefix && !strings.HasPrefix(e.Path, prefix+"/") {
			continue
		}
		filtered = append(filtered, e)
	}
	sort.Slice(filtered, func(i, j int) bool { return filtered[i].Path < filtered[j].Path })
	return filtered, nil
}

func (f *fakeStore) DefaultBranch(context.Context) (string, string, error) {
	return "main", "headsha", nil
}

func (f *fakeStore) CreateBranch(_ context.Context, _, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.branches[name] {
		return models.Conflict("branch " + name + " already exists")
	}
	f.branches[name] = true
	return nil
}

func (f *fakeStore) CommitFile(_ context.Context, branch, path string, content []byte, expectedSHA, message string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	current, exists := f.files[path]
	if content == nil {
		if !exists {
			return "", models.NotFound(path)
		}
		if expectedSHA != "" && expectedSHA != blobSHA(current) {
			return "", models.Conflict("revision token for " + path + " is stale")
		}
		delete(f.files, path)
		f.commits = append(f.commits, fakeCommit{branch: branch, path: path, expectedSHA: expectedSHA, message: message, deleted: true})
		return "", nil
	}
	if expectedSHA == "" && exists {
		return "", models.Conflict(path + " already exists")
	}
	if expectedSHA != "" && (!exists || expectedSHA != blobSHA(current)) {
		return "", models.Conflict("revision token for " + path + " is stale")
	}
	f.files[path] = string(content)
	f.commits = append(f.commits, fakeCommit{branch: branch, path: path, content: string(content), expectedSHA: expectedSHA, message: message})
	return blobSHA(string(content)), nil
}

func (f *fakeStore) OpenPullRequest(_ context.Context, head, title, body string) (*github.PullRequest, error) {
	if f.failPR {
		return nil, models.Upstream("GitHub request failed after 4 attempts", nil)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prs = append(f.prs, fakePR{head: head, title: title, body: body})
	n := len(f.prs)
	return &github.PullRequest{Number: n, URL: fmt.Sprintf("https://github.com/avila-roffe/agents-collection/pull/%d", n)}, nil
}

// validHeader returns a minimal valid header for fixtures.
func validHeader(id, title string) models.Header {
	return models.Header{
		ID:          id,
		Title:       title,
		Kind:        models.KindAgent,
		Tags:        models.StringList{},
		Version:     "1.0.0",
		Description: "Test agent " + title,
	}
}

func codeOf(t *testing.T, err error) models.ErrorCode {
	t.Helper()
	var apiErr *models.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error %v does not carry a code", err)
	}
	return apiErr.Code()
}
