package providers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/reviewloop/pkg/models"
)

const githubAPIBase = "https://api.github.com"

// GitHubProvider talks to the GitHub REST v3 API with a personal access
// token.
type GitHubProvider struct {
	token  string
	client *http.Client
}

func NewGitHubProvider(token string) *GitHubProvider {
	return &GitHubProvider{
		token:  token,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

func (p *GitHubProvider) Name() string { return "github" }

// ParseURL accepts https://github.com/{owner}/{repo}/pull/{number}.
func (p *GitHubProvider) ParseURL(rawURL string) (PullRequestRef, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return PullRequestRef{}, fmt.Errorf("invalid GitHub PR URL: %w", err)
	}
	parts := strings.Split(strings.Trim(parsed.Path, "/"), "/")
	if len(parts) < 4 || parts[2] != "pull" {
		return PullRequestRef{}, fmt.Errorf("invalid GitHub PR URL %q: expected /owner/repo/pull/number", rawURL)
	}
	return PullRequestRef{
		Owner:    parts[0],
		Repo:     parts[1],
		Number:   parts[3],
		Platform: "github",
	}, nil
}

func (p *GitHubProvider) FetchPullRequest(ctx context.Context, ref PullRequestRef) (*models.PullRequest, error) {
	prURL := fmt.Sprintf("%s/repos/%s/%s/pulls/%s", githubAPIBase, ref.Owner, ref.Repo, ref.Number)

	var pr struct {
		Number int    `json:"number"`
		Title  string `json:"title"`
		Body   string `json:"body"`
		State  string `json:"state"`
		User   struct {
			Login string `json:"login"`
		} `json:"user"`
		Head struct {
			SHA string `json:"sha"`
			Ref string `json:"ref"`
		} `json:"head"`
		Base struct {
			Ref string `json:"ref"`
		} `json:"base"`
	}
	if err := p.getJSON(ctx, prURL, &pr); err != nil {
		return nil, &AdapterError{Platform: "github", Operation: "fetch pull request", Err: err}
	}

	var files []struct {
		Filename         string `json:"filename"`
		Status           string `json:"status"`
		Additions        int    `json:"additions"`
		Deletions        int    `json:"deletions"`
		Patch            string `json:"patch"`
		PreviousFilename string `json:"previous_filename"`
	}
	filesURL := prURL + "/files?per_page=100"
	if err := p.getJSON(ctx, filesURL, &files); err != nil {
		return nil, &AdapterError{Platform: "github", Operation: "fetch pull request files", Err: err}
	}

	changes := make([]models.FileChange, 0, len(files))
	for _, f := range files {
		changes = append(changes, models.FileChange{
			Filename:         f.Filename,
			PreviousFilename: f.PreviousFilename,
			Status:           githubStatus(f.Status),
			Additions:        f.Additions,
			Deletions:        f.Deletions,
			Patch:            f.Patch,
		})
	}

	log.Debug().
		Str("pr", ref.String()).
		Int("files", len(changes)).
		Msg("fetched GitHub pull request")

	totalAdd, totalDel := 0, 0
	for _, c := range changes {
		totalAdd += c.Additions
		totalDel += c.Deletions
	}

	// Best effort: the review works fine without a declared language.
	language := ""
	var langs map[string]int
	langURL := fmt.Sprintf("%s/repos/%s/%s/languages", githubAPIBase, ref.Owner, ref.Repo)
	if err := p.getJSON(ctx, langURL, &langs); err == nil {
		language = dominantLanguage(langs)
	}

	return &models.PullRequest{
		Platform:     "github",
		ID:           ref.String(),
		Number:       pr.Number,
		Title:        pr.Title,
		Description:  pr.Body,
		Author:       pr.User.Login,
		State:        pr.State,
		SourceBranch: pr.Head.Ref,
		TargetBranch: pr.Base.Ref,
		Repository:   ref.Owner + "/" + ref.Repo,
		FilesChanged: changes,
		Additions:    totalAdd,
		Deletions:    totalDel,
		ChangedFiles: len(changes),
		Language:     language,
	}, nil
}

func (p *GitHubProvider) GetFileContent(ctx context.Context, ref PullRequestRef, path string) (string, error) {
	pr, err := p.headSHA(ctx, ref)
	if err != nil {
		return "", err
	}
	contentURL := fmt.Sprintf("%s/repos/%s/%s/contents/%s?ref=%s",
		githubAPIBase, ref.Owner, ref.Repo, url.PathEscape(path), pr)

	var file struct {
		Content  string `json:"content"`
		Encoding string `json:"encoding"`
	}
	if err := p.getJSON(ctx, contentURL, &file); err != nil {
		if isNotFound(err) {
			return "", nil
		}
		return "", &AdapterError{Platform: "github", Operation: "fetch file content", Err: err}
	}
	if file.Encoding != "base64" {
		return file.Content, nil
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(file.Content, "\n", ""))
	if err != nil {
		return "", &AdapterError{Platform: "github", Operation: "decode file content", Err: err}
	}
	return string(decoded), nil
}

func (p *GitHubProvider) PostComment(ctx context.Context, ref PullRequestRef, body string) error {
	commentURL := fmt.Sprintf("%s/repos/%s/%s/issues/%s/comments",
		githubAPIBase, ref.Owner, ref.Repo, ref.Number)
	payload, _ := json.Marshal(map[string]string{"body": body})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, commentURL, bytes.NewReader(payload))
	if err != nil {
		return &AdapterError{Platform: "github", Operation: "post comment", Err: err}
	}
	p.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return &AdapterError{Platform: "github", Operation: "post comment", Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return &AdapterError{
			Platform:  "github",
			Operation: "post comment",
			Err:       fmt.Errorf("unexpected status %s", resp.Status),
		}
	}
	return nil
}

func (p *GitHubProvider) headSHA(ctx context.Context, ref PullRequestRef) (string, error) {
	prURL := fmt.Sprintf("%s/repos/%s/%s/pulls/%s", githubAPIBase, ref.Owner, ref.Repo, ref.Number)
	var pr struct {
		Head struct {
			SHA string `json:"sha"`
		} `json:"head"`
	}
	if err := p.getJSON(ctx, prURL, &pr); err != nil {
		return "", &AdapterError{Platform: "github", Operation: "fetch head sha", Err: err}
	}
	return pr.Head.SHA, nil
}

func (p *GitHubProvider) getJSON(ctx context.Context, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	p.setHeaders(req)

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("status %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (p *GitHubProvider) setHeaders(req *http.Request) {
	if p.token != "" {
		req.Header.Set("Authorization", "token "+p.token)
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
}

func githubStatus(s string) models.ChangeStatus {
	switch s {
	case "added":
		return models.StatusAdded
	case "removed":
		return models.StatusDeleted
	case "renamed":
		return models.StatusRenamed
	default:
		return models.StatusModified
	}
}

func isNotFound(err error) bool {
	return err != nil && strings.Contains(err.Error(), "404")
}
