package providers

import "fmt"

// Credentials carries the per-platform secrets needed to construct an
// adapter. Unused platforms may be left zero.
type Credentials struct {
	GitHubToken          string
	GitLabURL            string
	GitLabToken          string
	BitbucketUsername    string
	BitbucketAppPassword string
	BitbucketAPIBase     string
}

// New constructs the adapter for a platform name as returned by Detect.
func New(platform string, creds Credentials) (Provider, error) {
	switch platform {
	case "github":
		return NewGitHubProvider(creds.GitHubToken), nil
	case "gitlab":
		return NewGitLabProvider(creds.GitLabURL, creds.GitLabToken)
	case "bitbucket":
		return NewBitbucketProvider(creds.BitbucketUsername, creds.BitbucketAppPassword, creds.BitbucketAPIBase), nil
	}
	return nil, fmt.Errorf("unsupported platform %q", platform)
}
