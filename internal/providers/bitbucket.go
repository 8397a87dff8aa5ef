package providers

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

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/reviewloop/pkg/models"
)

const bitbucketAPIBase = "https://api.bitbucket.org/2.0"

// Bitbucket Cloud enforces hourly API quotas; a client-side limiter keeps
// bulk reviews from tripping them.
const bitbucketRequestsPerSecond = 4

// BitbucketProvider talks to the Bitbucket Cloud 2.0 API with an app
// password.
type BitbucketProvider struct {
	username    string
	appPassword string
	apiBase     string
	client      *http.Client
	limiter     *rate.Limiter
}

func NewBitbucketProvider(username, appPassword, apiBase string) *BitbucketProvider {
	if apiBase == "" {
		apiBase = bitbucketAPIBase
	}
	return &BitbucketProvider{
		username:    username,
		appPassword: appPassword,
		apiBase:     strings.TrimSuffix(apiBase, "/"),
		client:      &http.Client{Timeout: 30 * time.Second},
		limiter:     rate.NewLimiter(rate.Limit(bitbucketRequestsPerSecond), bitbucketRequestsPerSecond),
	}
}

func (p *BitbucketProvider) Name() string { return "bitbucket" }

// ParseURL accepts https://bitbucket.org/{workspace}/{repo}/pull-requests/{id}.
func (p *BitbucketProvider) ParseURL(rawURL string) (PullRequestRef, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return PullRequestRef{}, fmt.Errorf("invalid Bitbucket PR URL: %w", err)
	}
	parts := strings.Split(strings.Trim(parsed.Path, "/"), "/")
	if len(parts) < 4 || parts[2] != "pull-requests" {
		return PullRequestRef{}, fmt.Errorf("invalid Bitbucket PR URL %q: expected /workspace/repo/pull-requests/id", rawURL)
	}
	return PullRequestRef{
		Owner:    parts[0],
		Repo:     parts[1],
		Number:   parts[3],
		Platform: "bitbucket",
	}, nil
}

func (p *BitbucketProvider) FetchPullRequest(ctx context.Context, ref PullRequestRef) (*models.PullRequest, error) {
	prURL := fmt.Sprintf("%s/repositories/%s/%s/pullrequests/%s", p.apiBase, ref.Owner, ref.Repo, ref.Number)

	var pr struct {
		ID          int    `json:"id"`
		Title       string `json:"title"`
		Description string `json:"description"`
		State       string `json:"state"`
		Author      struct {
			Nickname    string `json:"nickname"`
			DisplayName string `json:"display_name"`
		} `json:"author"`
		Source struct {
			Branch struct {
				Name string `json:"name"`
			} `json:"branch"`
			Commit struct {
				Hash string `json:"hash"`
			} `json:"commit"`
		} `json:"source"`
		Destination struct {
			Branch struct {
				Name string `json:"name"`
			} `json:"branch"`
		} `json:"destination"`
		Links struct {
			HTML struct {
				Href string `json:"href"`
			} `json:"html"`
		} `json:"links"`
	}
	if err := p.getJSON(ctx, prURL, &pr); err != nil {
		return nil, &AdapterError{Platform: "bitbucket", Operation: "fetch pull request", Err: err}
	}

	// The diff endpoint returns one unified diff covering every file; it
	// is split per file so downstream sees the same shape as the other
	// platforms.
	rawDiff, err := p.getRaw(ctx, prURL+"/diff")
	if err != nil {
		return nil, &AdapterError{Platform: "bitbucket", Operation: "fetch pull request diff", Err: err}
	}
	changes := splitUnifiedDiff(rawDiff)

	totalAdd, totalDel := 0, 0
	for _, c := range changes {
		totalAdd += c.Additions
		totalDel += c.Deletions
	}

	author := pr.Author.Nickname
	if author == "" {
		author = pr.Author.DisplayName
	}

	log.Debug().
		Str("pr", ref.String()).
		Int("files", len(changes)).
		Msg("fetched Bitbucket pull request")

	return &models.PullRequest{
		Platform:     "bitbucket",
		ID:           ref.String(),
		Number:       pr.ID,
		Title:        pr.Title,
		Description:  pr.Description,
		Author:       author,
		State:        strings.ToLower(pr.State),
		SourceBranch: pr.Source.Branch.Name,
		TargetBranch: pr.Destination.Branch.Name,
		Repository:   ref.Owner + "/" + ref.Repo,
		URL:          pr.Links.HTML.Href,
		FilesChanged: changes,
		Additions:    totalAdd,
		Deletions:    totalDel,
		ChangedFiles: len(changes),
	}, nil
}

func (p *BitbucketProvider) GetFileContent(ctx context.Context, ref PullRequestRef, path string) (string, error) {
	prURL := fmt.Sprintf("%s/repositories/%s/%s/pullrequests/%s", p.apiBase, ref.Owner, ref.Repo, ref.Number)
	var pr struct {
		Source struct {
			Commit struct {
				Hash string `json:"hash"`
			} `json:"commit"`
		} `json:"source"`
	}
	if err := p.getJSON(ctx, prURL, &pr); err != nil {
		return "", &AdapterError{Platform: "bitbucket", Operation: "fetch pull request", Err: err}
	}

	srcURL := fmt.Sprintf("%s/repositories/%s/%s/src/%s/%s",
		p.apiBase, ref.Owner, ref.Repo, pr.Source.Commit.Hash, path)
	content, err := p.getRaw(ctx, srcURL)
	if err != nil {
		if isNotFound(err) {
			return "", nil
		}
		return "", &AdapterError{Platform: "bitbucket", Operation: "fetch file content", Err: err}
	}
	return content, nil
}

func (p *BitbucketProvider) PostComment(ctx context.Context, ref PullRequestRef, body string) error {
	commentURL := fmt.Sprintf("%s/repositories/%s/%s/pullrequests/%s/comments",
		p.apiBase, ref.Owner, ref.Repo, ref.Number)
	payload, _ := json.Marshal(map[string]any{
		"content": map[string]string{"raw": body},
	})

	if err := p.limiter.Wait(ctx); err != nil {
		return &AdapterError{Platform: "bitbucket", Operation: "post comment", Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, commentURL, bytes.NewReader(payload))
	if err != nil {
		return &AdapterError{Platform: "bitbucket", Operation: "post comment", Err: err}
	}
	req.SetBasicAuth(p.username, p.appPassword)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return &AdapterError{Platform: "bitbucket", Operation: "post comment", Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return &AdapterError{
			Platform:  "bitbucket",
			Operation: "post comment",
			Err:       fmt.Errorf("unexpected status %s", resp.Status),
		}
	}
	return nil
}

func (p *BitbucketProvider) getJSON(ctx context.Context, rawURL string, out any) error {
	body, err := p.getRaw(ctx, rawURL)
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(body), out)
}

func (p *BitbucketProvider) getRaw(ctx context.Context, rawURL string) (string, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(p.username, p.appPassword)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("status %s: %s", resp.Status, strings.TrimSpace(string(snippet)))
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// splitUnifiedDiff carves one combined diff into per-file changes.
func splitUnifiedDiff(rawDiff string) []models.FileChange {
	var changes []models.FileChange
	sections := strings.Split(rawDiff, "diff --git ")
	for _, section := range sections {
		if strings.TrimSpace(section) == "" {
			continue
		}
		patch := "diff --git " + section
		filename := diffSectionFilename(section)
		if filename == "" {
			continue
		}
		add, del := countDiffLines(patch)
		status := models.StatusModified
		switch {
		case strings.Contains(section, "\nnew file mode"):
			status = models.StatusAdded
		case strings.Contains(section, "\ndeleted file mode"):
			status = models.StatusDeleted
		case strings.Contains(section, "\nrename from "):
			status = models.StatusRenamed
		}
		changes = append(changes, models.FileChange{
			Filename:  filename,
			Status:    status,
			Additions: add,
			Deletions: del,
			Patch:     patch,
		})
	}
	return changes
}

// diffSectionFilename pulls the b-side path from the first line of a
// "diff --git a/x b/x" section.
func diffSectionFilename(section string) string {
	firstLine := section
	if idx := strings.IndexByte(section, '\n'); idx >= 0 {
		firstLine = section[:idx]
	}
	fields := strings.Fields(firstLine)
	for i := len(fields) - 1; i >= 0; i-- {
		if strings.HasPrefix(fields[i], "b/") {
			return strings.TrimPrefix(fields[i], "b/")
		}
	}
	return ""
}
