package providers

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	gitlab "gitlab.com/gitlab-org/api/client-go"

	"github.com/reviewloop/pkg/models"
)

// GitLabProvider talks to gitlab.com or a self-hosted instance through the
// official client.
type GitLabProvider struct {
	client  *gitlab.Client
	baseURL string
}

// NewGitLabProvider builds a provider for the given instance. baseURL may
// be empty, in which case gitlab.com is used.
func NewGitLabProvider(baseURL, token string) (*GitLabProvider, error) {
	if baseURL == "" {
		baseURL = "https://gitlab.com"
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	client, err := gitlab.NewClient(token, gitlab.WithBaseURL(baseURL+"/api/v4"))
	if err != nil {
		return nil, fmt.Errorf("create gitlab client: %w", err)
	}
	return &GitLabProvider{client: client, baseURL: baseURL}, nil
}

func (p *GitLabProvider) Name() string { return "gitlab" }

// ParseURL accepts https://host/{group...}/{project}/-/merge_requests/{iid}.
// Nested groups end up in Owner joined with slashes.
func (p *GitLabProvider) ParseURL(rawURL string) (PullRequestRef, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return PullRequestRef{}, fmt.Errorf("invalid GitLab MR URL: %w", err)
	}
	path := strings.Trim(parsed.Path, "/")
	const marker = "/-/merge_requests/"
	idx := strings.Index(path, marker)
	if idx < 0 {
		return PullRequestRef{}, fmt.Errorf("invalid GitLab MR URL %q: expected /-/merge_requests/ segment", rawURL)
	}

	projectPath := path[:idx]
	iid := strings.SplitN(path[idx+len(marker):], "/", 2)[0]
	if projectPath == "" || iid == "" {
		return PullRequestRef{}, fmt.Errorf("invalid GitLab MR URL %q", rawURL)
	}

	segments := strings.Split(projectPath, "/")
	return PullRequestRef{
		Owner:    strings.Join(segments[:len(segments)-1], "/"),
		Repo:     segments[len(segments)-1],
		Number:   iid,
		Platform: "gitlab",
	}, nil
}

func (p *GitLabProvider) projectID(ref PullRequestRef) string {
	if ref.Owner == "" {
		return ref.Repo
	}
	return ref.Owner + "/" + ref.Repo
}

func (p *GitLabProvider) FetchPullRequest(ctx context.Context, ref PullRequestRef) (*models.PullRequest, error) {
	iid, err := strconv.Atoi(ref.Number)
	if err != nil {
		return nil, &AdapterError{Platform: "gitlab", Operation: "parse MR IID", Err: err}
	}
	pid := p.projectID(ref)

	mr, _, err := p.client.MergeRequests.GetMergeRequest(pid, iid, nil, gitlab.WithContext(ctx))
	if err != nil {
		return nil, &AdapterError{Platform: "gitlab", Operation: "fetch merge request", Err: err}
	}

	diffs, _, err := p.client.MergeRequests.ListMergeRequestDiffs(pid, iid,
		&gitlab.ListMergeRequestDiffsOptions{ListOptions: gitlab.ListOptions{PerPage: 100}},
		gitlab.WithContext(ctx))
	if err != nil {
		return nil, &AdapterError{Platform: "gitlab", Operation: "fetch merge request diffs", Err: err}
	}

	changes := make([]models.FileChange, 0, len(diffs))
	totalAdd, totalDel := 0, 0
	for _, d := range diffs {
		add, del := countDiffLines(d.Diff)
		totalAdd += add
		totalDel += del

		change := models.FileChange{
			Filename:  d.NewPath,
			Status:    gitlabStatus(d),
			Additions: add,
			Deletions: del,
			Patch:     d.Diff,
		}
		if d.RenamedFile {
			change.PreviousFilename = d.OldPath
		}
		changes = append(changes, change)
	}

	language := ""
	if langs, _, err := p.client.Projects.GetProjectLanguages(pid, gitlab.WithContext(ctx)); err == nil && langs != nil {
		language = dominantLanguage(map[string]float32(*langs))
	}

	log.Debug().
		Str("mr", ref.String()).
		Int("files", len(changes)).
		Msg("fetched GitLab merge request")

	pr := &models.PullRequest{
		Platform:     "gitlab",
		ID:           ref.String(),
		Number:       mr.IID,
		Title:        mr.Title,
		Description:  mr.Description,
		State:        mr.State,
		SourceBranch: mr.SourceBranch,
		TargetBranch: mr.TargetBranch,
		Repository:   pid,
		URL:          mr.WebURL,
		FilesChanged: changes,
		Additions:    totalAdd,
		Deletions:    totalDel,
		ChangedFiles: len(changes),
		Language:     language,
	}
	if mr.Author != nil {
		pr.Author = mr.Author.Username
	}
	if mr.CreatedAt != nil {
		pr.CreatedAt = *mr.CreatedAt
	}
	if mr.UpdatedAt != nil {
		pr.UpdatedAt = *mr.UpdatedAt
	}
	return pr, nil
}

func (p *GitLabProvider) GetFileContent(ctx context.Context, ref PullRequestRef, path string) (string, error) {
	iid, err := strconv.Atoi(ref.Number)
	if err != nil {
		return "", &AdapterError{Platform: "gitlab", Operation: "parse MR IID", Err: err}
	}
	pid := p.projectID(ref)

	mr, _, err := p.client.MergeRequests.GetMergeRequest(pid, iid, nil, gitlab.WithContext(ctx))
	if err != nil {
		return "", &AdapterError{Platform: "gitlab", Operation: "fetch merge request", Err: err}
	}

	raw, resp, err := p.client.RepositoryFiles.GetRawFile(pid, path,
		&gitlab.GetRawFileOptions{Ref: gitlab.Ptr(mr.SourceBranch)},
		gitlab.WithContext(ctx))
	if err != nil {
		if resp != nil && resp.StatusCode == 404 {
			return "", nil
		}
		return "", &AdapterError{Platform: "gitlab", Operation: "fetch file content", Err: err}
	}
	return string(raw), nil
}

func (p *GitLabProvider) PostComment(ctx context.Context, ref PullRequestRef, body string) error {
	iid, err := strconv.Atoi(ref.Number)
	if err != nil {
		return &AdapterError{Platform: "gitlab", Operation: "parse MR IID", Err: err}
	}
	_, _, err = p.client.Notes.CreateMergeRequestNote(p.projectID(ref), iid,
		&gitlab.CreateMergeRequestNoteOptions{Body: gitlab.Ptr(body)},
		gitlab.WithContext(ctx))
	if err != nil {
		return &AdapterError{Platform: "gitlab", Operation: "post comment", Err: err}
	}
	return nil
}

func gitlabStatus(d *gitlab.MergeRequestDiff) models.ChangeStatus {
	switch {
	case d.NewFile:
		return models.StatusAdded
	case d.DeletedFile:
		return models.StatusDeleted
	case d.RenamedFile:
		return models.StatusRenamed
	default:
		return models.StatusModified
	}
}

// countDiffLines tallies +/- lines of one file diff, ignoring headers.
func countDiffLines(diff string) (added, removed int) {
	for _, line := range strings.Split(diff, "\n") {
		switch {
		case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
		case strings.HasPrefix(line, "+"):
			added++
		case strings.HasPrefix(line, "-"):
			removed++
		}
	}
	return added, removed
}
