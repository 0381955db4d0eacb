// Package github is a minimal GitHub REST client covering the operations
// the publisher needs: opening pull requests against a repository.
package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultBaseURL = "https://api.github.com"

// Client talks to the GitHub REST API with a personal access or
// installation token.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithBaseURL overrides the API base URL, for GitHub Enterprise or tests.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = client
	}
}

// NewClient creates a GitHub client. The token may be empty for read-only
// access to public repositories, but pull request creation requires one.
func NewClient(token string, opts ...ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    defaultBaseURL,
		token:      token,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// PullRequestInput describes the pull request to open.
type PullRequestInput struct {
	Owner string
	Repo  string
	Title string
	Body  string
	Head  string // branch with the changes
	Base  string // branch to merge into
}

// PullRequest is the subset of the API response the caller needs.
type PullRequest struct {
	Number  int    `json:"number"`
	HTMLURL string `json:"html_url"`
	State   string `json:"state"`
}

// CreatePullRequest opens a pull request and returns its URL and number.
func (c *Client) CreatePullRequest(ctx context.Context, input PullRequestInput) (*PullRequest, error) {
	if input.Owner == "" || input.Repo == "" {
		return nil, fmt.Errorf("owner and repo are required")
	}
	if input.Title == "" {
		return nil, fmt.Errorf("pull request title is required")
	}
	if input.Head == "" || input.Base == "" {
		return nil, fmt.Errorf("head and base branches are required")
	}
	if input.Head == input.Base {
		return nil, fmt.Errorf("head and base branches must differ")
	}

	body := map[string]string{
		"title": input.Title,
		"body":  input.Body,
		"head":  input.Head,
		"base":  input.Base,
	}

	var pr PullRequest
	path := fmt.Sprintf("/repos/%s/%s/pulls", input.Owner, input.Repo)
	if err := c.do(ctx, http.MethodPost, path, body, &pr); err != nil {
		return nil, fmt.Errorf("failed to create pull request: %w", err)
	}
	return &pr, nil
}

// do performs one JSON request against the API.
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096)) //nolint:errcheck
		return fmt.Errorf("github API returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// ParseRepoURL extracts the owner and repository name from an https or ssh
// GitHub remote URL.
func ParseRepoURL(repoURL string) (owner, repo string, err error) {
	trimmed := strings.TrimSuffix(strings.TrimSpace(repoURL), ".git")

	// ssh form: git@github.com:owner/repo
	if strings.HasPrefix(trimmed, "git@") {
		_, after, found := strings.Cut(trimmed, ":")
		if !found {
			return "", "", fmt.Errorf("unrecognized repository URL: %s", repoURL)
		}
		return splitOwnerRepo(after, repoURL)
	}

	parsed, err := url.Parse(trimmed)
	if err != nil {
		return "", "", fmt.Errorf("invalid repository URL: %w", err)
	}
	return splitOwnerRepo(strings.TrimPrefix(parsed.Path, "/"), repoURL)
}

func splitOwnerRepo(path, original string) (string, string, error) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("repository URL must include owner and name: %s", original)
	}
	return parts[0], parts[1], nil
}
