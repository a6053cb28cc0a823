package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"strings"
	"sync"

	apperrors "github.com/ReturnMyTime/returnmytime-cli/internal/errors"
	"golang.org/x/sync/singleflight"
)

// DefaultGitHubAPI is the public GitHub REST endpoint.
const DefaultGitHubAPI = "https://api.github.com"

// treeBranches are tried in order when listing a repository tree.
var treeBranches = []string{"main", "master"}

// Tree is a recursive git tree listing.
type Tree struct {
	SHA     string      `json:"sha"`
	Entries []TreeEntry `json:"tree"`
}

// TreeEntry is one path in a Tree.
type TreeEntry struct {
	Path string `json:"path"`
	Type string `json:"type"`
	SHA  string `json:"sha"`
}

// FolderHash returns the tree sha of the folder holding skillPath, or "" if
// the folder is not in the tree. An empty folder path yields the root sha.
func (t *Tree) FolderHash(skillPath string) string {
	folder := SkillFolder(skillPath)
	if folder == "" {
		return t.SHA
	}
	for _, e := range t.Entries {
		if e.Type == "tree" && e.Path == folder {
			return e.SHA
		}
	}
	return ""
}

// SkillFolder strips a trailing SKILL.md and slash from a lock skillPath.
func SkillFolder(skillPath string) string {
	folder := strings.ReplaceAll(skillPath, "\\", "/")
	folder = strings.TrimSuffix(folder, "SKILL.md")
	return strings.TrimSuffix(folder, "/")
}

type treeResult struct {
	tree *Tree
	err  error
}

// GitHubClient lists repository trees. Results, including failures, are
// cached per owner/repo for the client's lifetime, so a client is meant to
// live for one command run.
type GitHubClient struct {
	fetcher *Fetcher
	baseURL string
	token   string

	mu    sync.Mutex
	cache map[string]treeResult
	group singleflight.Group
}

// NewGitHubClient creates a client against DefaultGitHubAPI using the token
// from the environment, if any.
func NewGitHubClient(fetcher *Fetcher) *GitHubClient {
	return &GitHubClient{
		fetcher: fetcher,
		baseURL: DefaultGitHubAPI,
		token:   TokenFromEnv(),
		cache:   make(map[string]treeResult),
	}
}

// WithBaseURL points the client at another API root.
func (c *GitHubClient) WithBaseURL(baseURL string) *GitHubClient {
	c.baseURL = strings.TrimRight(baseURL, "/")
	return c
}

// WithToken overrides the bearer token. An empty token sends none.
func (c *GitHubClient) WithToken(token string) *GitHubClient {
	c.token = token
	return c
}

// TokenFromEnv returns GITHUB_TOKEN, falling back to GH_TOKEN.
func TokenFromEnv() string {
	if t := strings.TrimSpace(os.Getenv("GITHUB_TOKEN")); t != "" {
		return t
	}
	return strings.TrimSpace(os.Getenv("GH_TOKEN"))
}

// FetchTree lists the recursive tree of ownerRepo on main, then master. A
// 403 with no remaining rate limit stops immediately with ErrRateLimited.
func (c *GitHubClient) FetchTree(ctx context.Context, ownerRepo string) (*Tree, error) {
	c.mu.Lock()
	if r, ok := c.cache[ownerRepo]; ok {
		c.mu.Unlock()
		return r.tree, r.err
	}
	c.mu.Unlock()

	v, _, _ := c.group.Do(ownerRepo, func() (any, error) {
		tree, err := c.fetchTree(ctx, ownerRepo)
		r := treeResult{tree: tree, err: err}
		if !apperrors.IsErrorCode(err, apperrors.ErrCancelled) {
			c.mu.Lock()
			c.cache[ownerRepo] = r
			c.mu.Unlock()
		}
		return r, nil
	})
	r := v.(treeResult)
	return r.tree, r.err
}

func (c *GitHubClient) fetchTree(ctx context.Context, ownerRepo string) (*Tree, error) {
	header := http.Header{}
	header.Set("Accept", "application/vnd.github.v3+json")
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}

	var lastStatus int
	for _, branch := range treeBranches {
		url := c.baseURL + "/repos/" + ownerRepo + "/git/trees/" + branch + "?recursive=1"
		resp, err := c.fetcher.Do(ctx, url, header)
		if err != nil {
			if apperrors.IsErrorCode(err, apperrors.ErrCancelled) {
				return nil, err
			}
			continue
		}
		if resp.StatusCode == http.StatusForbidden && resp.Header.Get("X-RateLimit-Remaining") == "0" {
			return nil, apperrors.Newf(apperrors.ErrRateLimited, "GitHub API rate limit exceeded while checking %s", ownerRepo)
		}
		if !resp.OK() {
			lastStatus = resp.StatusCode
			continue
		}

		var tree Tree
		if err := json.Unmarshal(resp.Body, &tree); err != nil || tree.Entries == nil {
			continue
		}
		return &tree, nil
	}

	if lastStatus != 0 {
		return nil, apperrors.Newf(apperrors.ErrNotFound, "no tree for %s (%s)", ownerRepo, describe(lastStatus))
	}
	return nil, apperrors.Newf(apperrors.ErrFetchFailed, "could not list tree for %s", ownerRepo)
}

// FolderHash fetches the tree of ownerRepo and returns the sha of the folder
// holding skillPath. It returns "" with a nil error when the folder is absent.
func (c *GitHubClient) FolderHash(ctx context.Context, ownerRepo, skillPath string) (string, error) {
	tree, err := c.FetchTree(ctx, ownerRepo)
	if err != nil {
		return "", err
	}
	return tree.FolderHash(skillPath), nil
}
