// Package github is a thin, retrying client over the GitHub REST API. It
// hides transport details behind the five operations the catalog needs:
// read a file, list the tree, create a branch, commit a file, open a pull
// request. No business logic lives here.
package github

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/avila-roffe/agents-catalog/internal/models"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

// Config carries the repository coordinates and credential, injected once at
// startup. Either Token or the three App fields must be set.
type Config struct {
	Owner string
	Repo  string
	// BaseURL overrides the API endpoint, used by tests. Defaults to
	// https://api.github.com.
	BaseURL string

	// Token is a personal access token.
	Token string

	// App credentials, used when Token is empty.
	AppID          int64
	AppPrivateKey  []byte // PEM-encoded RSA key
	InstallationID int64
}

// TreeEntry is one path in a recursive tree listing.
type TreeEntry struct {
	Path   string
	IsFile bool
}

// PullRequest references an opened pull request.
type PullRequest struct {
	Number int    `json:"number"`
	URL    string `json:"html_url"`
}

// Client talks to a single GitHub repository.
type Client struct {
	owner      string
	repo       string
	baseURL    string
	httpClient *http.Client
	pacer      *rate.Limiter

	maxAttempts  int
	backoffBase  time.Duration
	sleepCeiling time.Duration
	sleep        func(context.Context, time.Duration) error

	mu            sync.Mutex
	defaultBranch string
}

// NewClient creates a client for the configured repository. The credential
// is presented on every request through an oauth2 transport.
func NewClient(cfg Config) (*Client, error) {
	if cfg.Owner == "" || cfg.Repo == "" {
		return nil, errors.New("owner and repo are required")
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.github.com"
	}

	var ts oauth2.TokenSource
	switch {
	case cfg.Token != "":
		ts = oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token})
	case cfg.AppID != 0 && len(cfg.AppPrivateKey) > 0 && cfg.InstallationID != 0:
		var err error
		ts, err = newAppTokenSource(cfg.AppID, cfg.AppPrivateKey, cfg.InstallationID, baseURL)
		if err != nil {
			return nil, fmt.Errorf("github app credential: %w", err)
		}
	default:
		return nil, models.Unauthorized("no GitHub credential configured")
	}

	httpClient := oauth2.NewClient(context.Background(), ts)
	httpClient.Timeout = 30 * time.Second

	return &Client{
		owner:      cfg.Owner,
		repo:       cfg.Repo,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: httpClient,
		// Stay well under GitHub's 5000 req/h primary limit.
		pacer:        rate.NewLimiter(rate.Limit(1), 10),
		maxAttempts:  4,
		backoffBase:  500 * time.Millisecond,
		sleepCeiling: 60 * time.Second,
		sleep: func(ctx context.Context, d time.Duration) error {
			t := time.NewTimer(d)
			defer t.Stop()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-t.C:
				return nil
			}
		},
	}, nil
}

// apiResult is a completed (non-retried) API response.
type apiResult struct {
	status int
	body   []byte
	header http.Header
}

func (r *apiResult) decode(out any) error {
	if err := json.Unmarshal(r.body, out); err != nil {
		return models.Upstream("failed to decode GitHub response", err)
	}
	return nil
}

// do performs one API call with pacing, retry and rate-limit handling.
// Transient failures (network errors, 5xx, secondary rate limits) are
// retried with exponential backoff. A primary rate limit is slept through
// once when the reset is near, otherwise surfaced as RATE_LIMITED. The
// returned result may still carry a 4xx status for the caller to map.
func (c *Client) do(ctx context.Context, method, path string, payload any) (*apiResult, error) {
	var body []byte
	if payload != nil {
		var err error
		if body, err = json.Marshal(payload); err != nil {
			return nil, models.Internal("failed to encode request").Wrap(err)
		}
	}

	var lastErr error
	rateLimited := false
	sleptThrough := false
	attempt := 0
	for {
		if err := c.pacer.Wait(ctx); err != nil {
			return nil, models.Upstream("request cancelled", err)
		}

		res, retry, retryAfter, err := c.attempt(ctx, method, path, body, &sleptThrough)
		if err != nil || res != nil {
			return res, err
		}
		lastErr, rateLimited = retry, retryAfter > 0
		if retryAfter < 0 {
			// Slept through a primary rate limit reset inside attempt;
			// retry without consuming an attempt.
			continue
		}

		attempt++
		if attempt >= c.maxAttempts {
			break
		}
		delay := retryAfter
		if delay == 0 {
			delay = c.backoffBase << (attempt - 1)
		}
		if err := c.sleep(ctx, delay); err != nil {
			break
		}
	}

	if rateLimited {
		return nil, models.RateLimited(0)
	}
	return nil, models.Upstream(fmt.Sprintf("GitHub request failed after %d attempts", c.maxAttempts), lastErr)
}

// attempt performs a single request. Outcomes:
//   - res non-nil: completed (possibly with a 4xx status for the caller)
//   - err non-nil: terminal failure, no retry
//   - retry non-nil: transient failure; retryAfter > 0 carries a server
//     supplied delay, retryAfter < 0 means the reset was already slept
//     through and the attempt should not be counted
func (c *Client) attempt(ctx context.Context, method, path string, body []byte, sleptThrough *bool) (res *apiResult, retry error, retryAfter time.Duration, err error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, nil, 0, models.Internal("failed to build request").Wrap(err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, doErr := c.httpClient.Do(req)
	if doErr != nil {
		return nil, doErr, 0, nil
	}
	respBody, readErr := io.ReadAll(resp.Body)
	if err2 := resp.Body.Close(); readErr == nil {
		readErr = err2
	}
	if readErr != nil {
		return nil, readErr, 0, nil
	}

	switch {
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("GitHub API error %d: %s", resp.StatusCode, truncate(respBody)), 0, nil
	case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusTooManyRequests:
		if resp.Header.Get("X-RateLimit-Remaining") == "0" {
			// Primary rate limit: sleep through a near reset once,
			// otherwise report it with the hint.
			wait := time.Until(rateLimitReset(resp.Header)) + time.Second
			if wait > 0 && wait <= c.sleepCeiling && !*sleptThrough {
				slog.WarnContext(ctx, "GitHub rate limit hit, waiting for reset", "wait", wait)
				if err := c.sleep(ctx, wait); err != nil {
					return nil, nil, 0, models.RateLimited(wait)
				}
				*sleptThrough = true
				return nil, fmt.Errorf("GitHub primary rate limit"), -1, nil
			}
			return nil, nil, 0, models.RateLimited(wait)
		}
		if s := resp.Header.Get("Retry-After"); s != "" {
			// Secondary rate limit: honor the hint within the budget.
			if secs, err := strconv.Atoi(s); err == nil {
				return nil, fmt.Errorf("GitHub secondary rate limit (retry after %ds)", secs),
					time.Duration(secs) * time.Second, nil
			}
		}
		return nil, nil, 0, models.Unauthorized("GitHub denied access: " + truncate(respBody))
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, nil, 0, models.Unauthorized("GitHub rejected the credential")
	}

	return &apiResult{status: resp.StatusCode, body: respBody, header: resp.Header}, nil, 0, nil
}

func rateLimitReset(h http.Header) time.Time {
	epoch, err := strconv.ParseInt(h.Get("X-RateLimit-Reset"), 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(epoch, 0)
}

func truncate(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		return s[:200] + "..."
	}
	return s
}

func (c *Client) repoPath(parts ...string) string {
	return "/repos/" + c.owner + "/" + c.repo + "/" + strings.Join(parts, "/")
}

// escapePath URL-escapes each segment of a repository file path.
func escapePath(p string) string {
	segments := strings.Split(p, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}

type contentsResponse struct {
	Type     string `json:"type"`
	Path     string `json:"path"`
	SHA      string `json:"sha"`
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
}

// ReadFile returns a file's content and its revision token (the git blob
// SHA reported by the contents API).
func (c *Client) ReadFile(ctx context.Context, path string) ([]byte, string, error) {
	res, err := c.do(ctx, http.MethodGet, c.repoPath("contents", escapePath(path)), nil)
	if err != nil {
		return nil, "", err
	}
	switch res.status {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, "", models.NotFound(path)
	default:
		return nil, "", c.unexpected(res, "read "+path)
	}
	// Directories come back as a JSON array.
	if len(res.body) > 0 && res.body[0] == '[' {
		return nil, "", models.NotFound(path)
	}
	var file contentsResponse
	if err := res.decode(&file); err != nil {
		return nil, "", err
	}
	if file.Type != "file" {
		return nil, "", models.NotFound(path)
	}
	raw, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(file.Content, "\n", ""))
	if err != nil {
		return nil, "", models.Upstream("failed to decode file content for "+path, err)
	}
	return raw, file.SHA, nil
}

type treeResponse struct {
	Tree []struct {
		Path string `json:"path"`
		Type string `json:"type"`
	} `json:"tree"`
	Truncated bool `json:"truncated"`
}

// ListTree lists all paths (files and folders) recursively under a prefix
// on the default branch. An empty prefix lists the whole repository.
func (c *Client) ListTree(ctx context.Context, prefix string) ([]TreeEntry, error) {
	branch, err := c.defaultBranchName(ctx)
	if err != nil {
		return nil, err
	}
	res, err := c.do(ctx, http.MethodGet, c.repoPath("git", "trees", url.PathEscape(branch))+"?recursive=1", nil)
	if err != nil {
		return nil, err
	}
	switch res.status {
	case http.StatusOK:
	case http.StatusNotFound:
		// Empty repository: no tree yet.
		return nil, nil
	default:
		return nil, c.unexpected(res, "list tree")
	}
	var tree treeResponse
	if err := res.decode(&tree); err != nil {
		return nil, err
	}
	if tree.Truncated {
		slog.WarnContext(ctx, "GitHub tree listing truncated", "repo", c.owner+"/"+c.repo)
	}
	var entries []TreeEntry
	for _, e := range tree.Tree {
		if prefix != "" && e.Path != prefix && !strings.HasPrefix(e.Path, prefix+"/") {
			continue
		}
		entries = append(entries, TreeEntry{Path: e.Path, IsFile: e.Type == "blob"})
	}
	return entries, nil
}

// DefaultBranch returns the default branch name and its current head commit.
// The name is cached for the client lifetime; the head is re-read per call.
func (c *Client) DefaultBranch(ctx context.Context) (string, string, error) {
	name, err := c.defaultBranchName(ctx)
	if err != nil {
		return "", "", err
	}
	res, err := c.do(ctx, http.MethodGet, c.repoPath("git", "ref", "heads", url.PathEscape(name)), nil)
	if err != nil {
		return "", "", err
	}
	if res.status != http.StatusOK {
		return "", "", c.unexpected(res, "resolve branch "+name)
	}
	var ref struct {
		Object struct {
			SHA string `json:"sha"`
		} `json:"object"`
	}
	if err := res.decode(&ref); err != nil {
		return "", "", err
	}
	return name, ref.Object.SHA, nil
}

func (c *Client) defaultBranchName(ctx context.Context) (string, error) {
	c.mu.Lock()
	cached := c.defaultBranch
	c.mu.Unlock()
	if cached != "" {
		return cached, nil
	}
	res, err := c.do(ctx, http.MethodGet, "/repos/"+c.owner+"/"+c.repo, nil)
	if err != nil {
		return "", err
	}
	switch res.status {
	case http.StatusOK:
	case http.StatusNotFound:
		return "", models.NotFound("repository " + c.owner + "/" + c.repo)
	default:
		return "", c.unexpected(res, "read repository")
	}
	var repo struct {
		DefaultBranch string `json:"default_branch"`
	}
	if err := res.decode(&repo); err != nil {
		return "", err
	}
	c.mu.Lock()
	c.defaultBranch = repo.DefaultBranch
	c.mu.Unlock()
	return repo.DefaultBranch, nil
}

// CreateBranch creates a new branch pointing at fromSHA.
func (c *Client) CreateBranch(ctx context.Context, fromSHA, name string) error {
	res, err := c.do(ctx, http.MethodPost, c.repoPath("git", "refs"), map[string]string{
		"ref": "refs/heads/" + name,
		"sha": fromSHA,
	})
	if err != nil {
		return err
	}
	switch res.status {
	case http.StatusCreated:
		return nil
	case http.StatusUnprocessableEntity, http.StatusConflict:
		return models.Conflict("branch " + name + " already exists")
	default:
		return c.unexpected(res, "create branch "+name)
	}
}

// CommitFile writes (content non-nil) or deletes (content nil) a file on a
// branch, producing one commit. When expectedSHA is non-empty the remote
// rejects the commit with a CONFLICT if the file's current blob SHA differs,
// which is how concurrent edits are detected. Returns the new blob SHA, or
// "" for a deletion.
func (c *Client) CommitFile(ctx context.Context, branch, path string, content []byte, expectedSHA, message string) (string, error) {
	endpoint := c.repoPath("contents", escapePath(path))

	if content == nil {
		payload := map[string]string{"message": message, "sha": expectedSHA, "branch": branch}
		res, err := c.do(ctx, http.MethodDelete, endpoint, payload)
		if err != nil {
			return "", err
		}
		switch res.status {
		case http.StatusOK:
			return "", nil
		case http.StatusNotFound:
			return "", models.NotFound(path)
		case http.StatusConflict, http.StatusUnprocessableEntity:
			return "", models.Conflict("revision token for " + path + " is stale")
		default:
			return "", c.unexpected(res, "delete "+path)
		}
	}

	payload := map[string]string{
		"message": message,
		"content": base64.StdEncoding.EncodeToString(content),
		"branch":  branch,
	}
	if expectedSHA != "" {
		payload["sha"] = expectedSHA
	}
	res, err := c.do(ctx, http.MethodPut, endpoint, payload)
	if err != nil {
		return "", err
	}
	switch res.status {
	case http.StatusOK, http.StatusCreated:
	case http.StatusNotFound:
		return "", models.NotFound(path)
	case http.StatusConflict, http.StatusUnprocessableEntity:
		if expectedSHA == "" {
			return "", models.Conflict(path + " already exists")
		}
		return "", models.Conflict("revision token for " + path + " is stale")
	default:
		return "", c.unexpected(res, "commit "+path)
	}
	var commit struct {
		Content struct {
			SHA string `json:"sha"`
		} `json:"content"`
	}
	if err := res.decode(&commit); err != nil {
		return "", err
	}
	return commit.Content.SHA, nil
}

// OpenPullRequest opens a pull request from head into the default branch.
func (c *Client) OpenPullRequest(ctx context.Context, head, title, body string) (*PullRequest, error) {
	base, err := c.defaultBranchName(ctx)
	if err != nil {
		return nil, err
	}
	res, err := c.do(ctx, http.MethodPost, c.repoPath("pulls"), map[string]string{
		"title": title,
		"head":  head,
		"base":  base,
		"body":  body,
	})
	if err != nil {
		return nil, err
	}
	switch res.status {
	case http.StatusCreated:
	case http.StatusUnprocessableEntity:
		return nil, models.Conflict("pull request for " + head + " could not be opened: " + truncate(res.body))
	default:
		return nil, c.unexpected(res, "open pull request for "+head)
	}
	var pr PullRequest
	if err := res.decode(&pr); err != nil {
		return nil, err
	}
	return &pr, nil
}

// unexpected maps an unhandled 4xx status to the error taxonomy.
func (c *Client) unexpected(res *apiResult, op string) error {
	return models.Upstream(fmt.Sprintf("GitHub API error %d during %s: %s", res.status, op, truncate(res.body)), nil)
}
