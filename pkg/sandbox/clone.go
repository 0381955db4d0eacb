package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"os/exec"
	"strings"
)

// CloneShallow clones a single branch of a repository into dest with depth
// 1 and no tags. Only the tip of the base branch matters for indexing and
// editing, so history is dead weight.
func CloneShallow(ctx context.Context, repoURL, branch, dest, token string) error {
	cloneURL, err := AuthenticatedURL(repoURL, token)
	if err != nil {
		return err
	}

	args := []string{
		"clone",
		"--depth", "1",
		"--single-branch",
		"--no-tags",
		"--branch", branch,
		cloneURL,
		dest,
	}

	cmd := exec.CommandContext(ctx, "git", args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		// The token must never surface in an error message.
		msg := stderr.String()
		if token != "" {
			msg = strings.ReplaceAll(msg, token, "***")
		}
		return fmt.Errorf("git clone failed for %s (branch %s): %w, stderr: %s", repoURL, branch, err, msg)
	}
	return nil
}

// AuthenticatedURL embeds a token into an https clone URL. URLs without a
// token and non-https URLs are returned unchanged.
func AuthenticatedURL(repoURL, token string) (string, error) {
	if token == "" {
		return repoURL, nil
	}

	parsed, err := url.Parse(repoURL)
	if err != nil {
		return "", fmt.Errorf("invalid repository URL: %w", err)
	}
	if parsed.Scheme != "https" {
		return repoURL, nil
	}

	parsed.User = url.UserPassword("x-access-token", token)
	return parsed.String(), nil
}
