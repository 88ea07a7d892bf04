package github

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/avila-roffe/agents-catalog/internal/models"
	"golang.org/x/time/rate"
)

// newTestClient builds a client against a local test server with backoff
// sleeps replaced by counters.
func newTestClient(t *testing.T, handler http.Handler) (*Client, *[]time.Duration) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := NewClient(Config{Owner: "avila-roffe", Repo: "agents-collection", BaseURL: srv.URL, Token: "test-token"})
	if err != nil {
		t.Fatal(err)
	}
	var sleeps []time.Duration
	c.sleep = func(_ context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return nil
	}
	c.pacer = rate.NewLimiter(rate.Inf, 1)
	return c, &sleeps
}

func errCode(t *testing.T, err error) models.ErrorCode {
	t.Helper()
	var ews models.ErrorWithStatus
	if !errors.As(err, &ews) {
		t.Fatalf("error %v does not carry a code", err)
	}
	return ews.Code()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestReadFile(t *testing.T) {
	content := "---\ntitle: Jarvis\n---\n\nbody\n"
	// The contents API wraps base64 at 60 columns; make sure newlines in the
	// payload are tolerated.
	encoded := base64.StdEncoding.EncodeToString([]byte(content))
	wrapped := encoded[:8] + "\n" + encoded[8:]

	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/repos/avila-roffe/agents-collection/contents/home-lab/jarvis.md" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("Authorization = %q", got)
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"type": "file", "path": "home-lab/jarvis.md", "sha": "abc123",
			"content": wrapped, "encoding": "base64",
		})
	}))

	data, sha, err := c.ReadFile(t.Context(), "home-lab/jarvis.md")
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != content {
		t.Errorf("content = %q, want %q", data, content)
	}
	if sha != "abc123" {
		t.Errorf("sha = %q, want abc123", sha)
	}
}

func TestReadFileNotFound(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
	}))
	_, _, err := c.ReadFile(t.Context(), "missing.md")
	if errCode(t, err) != models.ErrNotFound {
		t.Errorf("code = %s, want NOT_FOUND", errCode(t, err))
	}
}

func TestReadFileDirectory(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []map[string]string{{"type": "file", "path": "a.md"}})
	}))
	_, _, err := c.ReadFile(t.Context(), "home-lab")
	if errCode(t, err) != models.ErrNotFound {
		t.Errorf("code = %s, want NOT_FOUND for a directory path", errCode(t, err))
	}
}

func TestRetryOnServerError(t *testing.T) {
	var calls atomic.Int32
	c, sleeps := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"type": "file", "sha": "s", "content": ""})
	}))
	_, _, err := c.ReadFile(t.Context(), "a.md")
	if err != nil {
		t.Fatal(err)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("calls = %d, want 3", got)
	}
	// Exponential backoff: 500ms then 1s.
	if len(*sleeps) != 2 || (*sleeps)[0] != 500*time.Millisecond || (*sleeps)[1] != time.Second {
		t.Errorf("sleeps = %v", *sleeps)
	}
}

func TestRetriesExhausted(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	_, _, err := c.ReadFile(t.Context(), "a.md")
	if errCode(t, err) != models.ErrUpstream {
		t.Errorf("code = %s, want UPSTREAM_ERROR", errCode(t, err))
	}
	if got := calls.Load(); got != int32(c.maxAttempts) {
		t.Errorf("calls = %d, want %d", got, c.maxAttempts)
	}
}

func TestPrimaryRateLimitSleptThrough(t *testing.T) {
	var calls atomic.Int32
	c, sleeps := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("X-RateLimit-Remaining", "0")
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(5*time.Second).Unix(), 10))
			w.WriteHeader(http.StatusForbidden)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"type": "file", "sha": "s", "content": ""})
	}))
	_, _, err := c.ReadFile(t.Context(), "a.md")
	if err != nil {
		t.Fatal(err)
	}
	if len(*sleeps) != 1 {
		t.Errorf("sleeps = %v, want one reset wait", *sleeps)
	}
}

func TestPrimaryRateLimitFarReset(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-RateLimit-Remaining", "0")
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(10*time.Minute).Unix(), 10))
		w.WriteHeader(http.StatusForbidden)
	}))
	_, _, err := c.ReadFile(t.Context(), "a.md")
	if errCode(t, err) != models.ErrRateLimited {
		t.Errorf("code = %s, want RATE_LIMITED", errCode(t, err))
	}
	var ews models.ErrorWithStatus
	errors.As(err, &ews)
	if _, ok := ews.Details()["retry_after_seconds"]; !ok {
		t.Errorf("missing retry_after_seconds hint: %v", ews.Details())
	}
}

func TestSecondaryRateLimitRetried(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusForbidden)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"type": "file", "sha": "s", "content": ""})
	}))
	_, _, err := c.ReadFile(t.Context(), "a.md")
	if err != nil {
		t.Fatal(err)
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
}

func TestUnauthorized(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	_, _, err := c.ReadFile(t.Context(), "a.md")
	if errCode(t, err) != models.ErrUnauthorized {
		t.Errorf("code = %s, want UNAUTHORIZED", errCode(t, err))
	}
}

func TestNewClientRequiresCredential(t *testing.T) {
	_, err := NewClient(Config{Owner: "o", Repo: "r"})
	if errCode(t, err) != models.ErrUnauthorized {
		t.Errorf("code = %s, want UNAUTHORIZED", errCode(t, err))
	}
}

func TestListTree(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/repos/avila-roffe/agents-collection":
			writeJSON(w, http.StatusOK, map[string]string{"default_branch": "main"})
		case "/repos/avila-roffe/agents-collection/git/trees/main":
			writeJSON(w, http.StatusOK, map[string]any{"tree": []map[string]string{
				{"path": "home-lab", "type": "tree"},
				{"path": "home-lab/jarvis.md", "type": "blob"},
				{"path": "ops/deploy.md", "type": "blob"},
				{"path": "README.md", "type": "blob"},
			}})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	entries, err := c.ListTree(t.Context(), "home-lab")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %v, want 2 under home-lab", entries)
	}
	if entries[0].IsFile || !entries[1].IsFile {
		t.Errorf("entry types wrong: %v", entries)
	}

	all, err := c.ListTree(t.Context(), "")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 4 {
		t.Errorf("all entries = %d, want 4", len(all))
	}
}

func TestCreateBranchConflict(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"message": "Reference already exists"})
	}))
	err := c.CreateBranch(t.Context(), "headsha", "add-agent-x-20250101")
	if errCode(t, err) != models.ErrConflict {
		t.Errorf("code = %s, want CONFLICT", errCode(t, err))
	}
}

func TestCommitFile(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("method = %s, want PUT", r.Method)
		}
		var payload map[string]string
		_ = json.NewDecoder(r.Body).Decode(&payload)
		if payload["branch"] != "feature" {
			t.Errorf("branch = %q", payload["branch"])
		}
		if payload["sha"] != "oldsha" {
			t.Errorf("sha = %q, want oldsha", payload["sha"])
		}
		if _, err := base64.StdEncoding.DecodeString(payload["content"]); err != nil {
			t.Errorf("content is not base64: %v", err)
		}
		writeJSON(w, http.StatusOK, map[string]any{"content": map[string]string{"sha": "newsha"}})
	}))
	sha, err := c.CommitFile(t.Context(), "feature", "ops/deploy.md", []byte("data"), "oldsha", "Update agent: Deploy")
	if err != nil {
		t.Fatal(err)
	}
	if sha != "newsha" {
		t.Errorf("sha = %q, want newsha", sha)
	}
}

func TestCommitFileStaleToken(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusConflict, map[string]string{"message": "sha does not match"})
	}))
	_, err := c.CommitFile(t.Context(), "feature", "a.md", []byte("data"), "stale", "msg")
	if errCode(t, err) != models.ErrConflict {
		t.Errorf("code = %s, want CONFLICT", errCode(t, err))
	}
}

func TestCommitFileDelete(t *testing.T) {
	var method string
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		writeJSON(w, http.StatusOK, map[string]any{"commit": map[string]string{"sha": "c"}})
	}))
	sha, err := c.CommitFile(t.Context(), "feature", "a.md", nil, "oldsha", "Delete agent: A")
	if err != nil {
		t.Fatal(err)
	}
	if method != http.MethodDelete {
		t.Errorf("method = %s, want DELETE", method)
	}
	if sha != "" {
		t.Errorf("sha = %q, want empty after delete", sha)
	}
}

func TestCommitFileDeleteMissing(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	_, err := c.CommitFile(t.Context(), "feature", "gone.md", nil, "sha", "msg")
	if errCode(t, err) != models.ErrNotFound {
		t.Errorf("code = %s, want NOT_FOUND", errCode(t, err))
	}
}

func TestOpenPullRequest(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/repos/avila-roffe/agents-collection":
			writeJSON(w, http.StatusOK, map[string]string{"default_branch": "main"})
		case "/repos/avila-roffe/agents-collection/pulls":
			var payload map[string]string
			_ = json.NewDecoder(r.Body).Decode(&payload)
			if payload["base"] != "main" {
				t.Errorf("base = %q, want main", payload["base"])
			}
			if payload["head"] != "add-agent-x" {
				t.Errorf("head = %q", payload["head"])
			}
			writeJSON(w, http.StatusCreated, map[string]any{
				"number": 42, "html_url": "https://github.com/avila-roffe/agents-collection/pull/42",
			})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	pr, err := c.OpenPullRequest(t.Context(), "add-agent-x", "Add agent: X", "body")
	if err != nil {
		t.Fatal(err)
	}
	if pr.Number != 42 {
		t.Errorf("number = %d, want 42", pr.Number)
	}
	if pr.URL == "" {
		t.Error("missing pull request URL")
	}
}

func TestDefaultBranchNameCached(t *testing.T) {
	var repoCalls atomic.Int32
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/repos/avila-roffe/agents-collection":
			repoCalls.Add(1)
			writeJSON(w, http.StatusOK, map[string]string{"default_branch": "main"})
		case "/repos/avila-roffe/agents-collection/git/ref/heads/main":
			writeJSON(w, http.StatusOK, map[string]any{"object": map[string]string{"sha": fmt.Sprintf("head%d", repoCalls.Load())}})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	for range 3 {
		name, sha, err := c.DefaultBranch(t.Context())
		if err != nil {
			t.Fatal(err)
		}
		if name != "main" || sha == "" {
			t.Errorf("branch = %q sha = %q", name, sha)
		}
	}
	if repoCalls.Load() != 1 {
		t.Errorf("repo metadata fetched %d times, want 1 (cached)", repoCalls.Load())
	}
}
