package providers

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/reviewloop/pkg/models"
)

// PullRequestRef identifies one pull request on its platform.
type PullRequestRef struct {
	Owner    string // owner or group path
	Repo     string
	Number   string
	Platform string
}

func (r PullRequestRef) String() string {
	return fmt.Sprintf("%s/%s!%s", r.Owner, r.Repo, r.Number)
}

// Provider is a platform adapter. Each implementation translates its
// platform's API into the shared PullRequest model.
type Provider interface {
	Name() string

	// ParseURL extracts the pull request reference from a web URL.
	ParseURL(rawURL string) (PullRequestRef, error)

	// FetchPullRequest retrieves metadata and per-file diffs.
	FetchPullRequest(ctx context.Context, ref PullRequestRef) (*models.PullRequest, error)

	// GetFileContent fetches a file at the PR's head revision. Returns
	// empty content, not an error, when the file does not exist there.
	GetFileContent(ctx context.Context, ref PullRequestRef, path string) (string, error)

	// PostComment publishes a review comment on the pull request.
	PostComment(ctx context.Context, ref PullRequestRef, body string) error
}

// AdapterError wraps a platform API failure with enough detail to report
// without exposing the raw transport error to callers that only need the
// platform and operation.
type AdapterError struct {
	Platform  string
	Operation string
	Err       error
}

func (e *AdapterError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Platform, e.Operation, e.Err)
}

func (e *AdapterError) Unwrap() error { return e.Err }

// Detect identifies the hosting platform from a pull request URL. GitLab
// self-hosted instances are recognized by the /-/merge_requests/ path.
func Detect(rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid URL %q: %w", rawURL, err)
	}
	host := strings.ToLower(parsed.Hostname())
	switch {
	case host == "github.com" || strings.HasSuffix(host, ".github.com"):
		return "github", nil
	case host == "gitlab.com" || strings.Contains(parsed.Path, "/-/merge_requests/"):
		return "gitlab", nil
	case host == "bitbucket.org" || strings.Contains(host, "bitbucket"):
		return "bitbucket", nil
	}
	return "", fmt.Errorf("cannot determine platform for %q", rawURL)
}

// dominantLanguage picks the largest entry of a platform languages map,
// lowercased to match the knowledge-base language tags.
func dominantLanguage[T int | float32](langs map[string]T) string {
	best := ""
	var bestWeight T
	for name, weight := range langs {
		if best == "" || weight > bestWeight {
			best, bestWeight = name, weight
		}
	}
	return strings.ToLower(best)
}
