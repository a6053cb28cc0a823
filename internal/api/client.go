// Package api is the client for the returnmytime directory API: skill search
// and the URL to markdown conversion service.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/ReturnMyTime/returnmytime-cli/internal/errors"
	"github.com/rs/zerolog"
)

const userAgent = "returnmytime-cli"

const (
	// DefaultPollInterval is the wait between markdown job polls.
	DefaultPollInterval = time.Second
	// DefaultPollTimeout bounds how long a queued markdown job is awaited.
	DefaultPollTimeout = 60 * time.Second
)

// ErrJobTimeout is returned when a queued markdown job does not finish in time.
var ErrJobTimeout = apperrors.New(apperrors.ErrTimeout, "timed out waiting for markdown")

// SearchMode selects the directory search strategy.
type SearchMode string

const (
	ModeLexical  SearchMode = "lexical"
	ModeSemantic SearchMode = "semantic"
)

// SkillResult is one search hit.
type SkillResult struct {
	ID               int      `json:"id"`
	Name             string   `json:"name"`
	Description      string   `json:"description,omitempty"`
	ShortDescription string   `json:"shortDescription,omitempty"`
	RepoOwner        string   `json:"repoOwner,omitempty"`
	RepoName         string   `json:"repoName,omitempty"`
	Path             string   `json:"path,omitempty"`
	SkillSlug        string   `json:"skillSlug,omitempty"`
	PrimaryLanguage  string   `json:"primaryLanguage,omitempty"`
	Stars            int      `json:"stars,omitempty"`
	Tags             []string `json:"tags,omitempty"`
	IsOfficial       bool     `json:"isOfficial"`
	LocalRepoPath    string   `json:"localRepoPath,omitempty"`
}

// Summary is the short description when present, else the full one.
func (r SkillResult) Summary() string {
	if r.ShortDescription != "" {
		return r.ShortDescription
	}
	return r.Description
}

// Repo returns "owner/repo", or "" when either part is missing.
func (r SkillResult) Repo() string {
	if r.RepoOwner == "" || r.RepoName == "" {
		return ""
	}
	return r.RepoOwner + "/" + r.RepoName
}

// MarkdownReport describes how a page was converted.
type MarkdownReport struct {
	Strategy      string `json:"strategy"`
	TrimmedLength int    `json:"trimmedLength"`
	IsSparse      bool   `json:"isSparse"`
	WasHeadless   bool   `json:"wasHeadless"`
}

// Markdown is a converted page.
type Markdown struct {
	Markdown    string         `json:"markdown"`
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	FinalURL    string         `json:"finalUrl"`
	Report      MarkdownReport `json:"report"`
}

type envelope[T any] struct {
	Success bool   `json:"success"`
	Data    T      `json:"data"`
	Queued  bool   `json:"queued,omitempty"`
	Pending bool   `json:"pending,omitempty"`
	JobID   string `json:"jobId,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Client talks to the directory API.
type Client struct {
	baseURL string
	http    *http.Client
	logger  zerolog.Logger

	PollInterval time.Duration
	PollTimeout  time.Duration
}

// NewClient creates a Client for baseURL. A nil httpClient gets a 30s timeout.
func NewClient(baseURL string, httpClient *http.Client, logger zerolog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		http:         httpClient,
		logger:       logger,
		PollInterval: DefaultPollInterval,
		PollTimeout:  DefaultPollTimeout,
	}
}

// SearchSkills queries the skills directory.
func (c *Client) SearchSkills(ctx context.Context, query string, mode SearchMode, limit int) ([]SkillResult, error) {
	q := url.Values{}
	q.Set("search", query)
	q.Set("limit", strconv.Itoa(limit))
	q.Set("mode", string(mode))

	var payload envelope[[]SkillResult]
	status, err := c.do(ctx, http.MethodGet, c.baseURL+"/skills?"+q.Encode(), nil, &payload)
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 || !payload.Success {
		return nil, failure(payload.Error, "search failed", status)
	}
	c.logger.Debug().Str("query", query).Str("mode", string(mode)).Int("results", len(payload.Data)).Msg("search")
	return payload.Data, nil
}

// FetchURLMarkdown converts a web page to markdown. Queued conversions are
// polled every PollInterval until PollTimeout, after which ErrJobTimeout is
// returned.
func (c *Client) FetchURLMarkdown(ctx context.Context, pageURL string) (*Markdown, error) {
	body, err := json.Marshal(map[string]string{"url": pageURL})
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrInternal, "encoding request")
	}

	var payload envelope[*Markdown]
	status, err := c.do(ctx, http.MethodPost, c.baseURL+"/url", body, &payload)
	if err != nil {
		return nil, err
	}
	if (status < 200 || status >= 300) && status != http.StatusAccepted {
		return nil, failure(payload.Error, "request failed", status)
	}
	if payload.Success && payload.Data != nil {
		return payload.Data, nil
	}
	if payload.JobID != "" {
		return c.pollMarkdown(ctx, payload.JobID)
	}
	return nil, failure(payload.Error, "failed to fetch markdown", 0)
}

func (c *Client) pollMarkdown(ctx context.Context, jobID string) (*Markdown, error) {
	endpoint := c.baseURL + "/url?" + url.Values{"jobId": {jobID}}.Encode()
	deadline := time.Now().Add(c.PollTimeout)
	logger := c.logger.With().Str("job", jobID).Logger()

	for time.Now().Before(deadline) {
		var payload envelope[*Markdown]
		status, err := c.do(ctx, http.MethodGet, endpoint, nil, &payload)
		if err != nil {
			return nil, err
		}
		switch {
		case payload.Success && payload.Data != nil:
			return payload.Data, nil
		case payload.Success && payload.Pending:
			logger.Debug().Msg("markdown job pending")
		default:
			return nil, failure(payload.Error, "request failed", status)
		}

		select {
		case <-ctx.Done():
			return nil, apperrors.Wrap(ctx.Err(), apperrors.ErrCancelled, "waiting for markdown cancelled")
		case <-time.After(c.PollInterval):
		}
	}
	return nil, ErrJobTimeout
}

// do sends a request and decodes a JSON body into out. An undecodable body is
// not an error; callers judge the response by status and envelope.
func (c *Client) do(ctx context.Context, method, endpoint string, body []byte, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return 0, apperrors.Wrapf(err, apperrors.ErrInvalidInput, "invalid url %q", endpoint)
	}
	req.Header.Set("User-Agent", userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return 0, apperrors.Wrap(ctx.Err(), apperrors.ErrCancelled, "request cancelled")
		}
		return 0, apperrors.Wrapf(err, apperrors.ErrFetchFailed, "%s %s", method, endpoint)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return resp.StatusCode, apperrors.Wrap(err, apperrors.ErrFetchFailed, "reading response")
	}
	_ = json.Unmarshal(data, out)
	return resp.StatusCode, nil
}

func failure(serverMsg, fallback string, status int) error {
	if serverMsg != "" {
		return apperrors.New(apperrors.ErrFetchFailed, serverMsg).WithDetail("status", status)
	}
	if status != 0 {
		return apperrors.New(apperrors.ErrFetchFailed, fmt.Sprintf("%s (%d)", fallback, status)).WithDetail("status", status)
	}
	return apperrors.New(apperrors.ErrFetchFailed, fallback)
}
