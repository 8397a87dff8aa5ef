package review

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reviewloop/internal/config"
	"github.com/reviewloop/internal/pipeline"
	"github.com/reviewloop/internal/providers"
	"github.com/reviewloop/pkg/models"
)

type fakeAdapter struct {
	pr       *models.PullRequest
	fetchErr error
	posted   []string
}

func (f *fakeAdapter) Name() string { return "github" }

func (f *fakeAdapter) ParseURL(rawURL string) (providers.PullRequestRef, error) {
	return providers.PullRequestRef{Owner: "acme", Repo: "widgets", Number: "42", Platform: "github"}, nil
}

func (f *fakeAdapter) FetchPullRequest(context.Context, providers.PullRequestRef) (*models.PullRequest, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.pr, nil
}

func (f *fakeAdapter) GetFileContent(context.Context, providers.PullRequestRef, string) (string, error) {
	return "", nil
}

func (f *fakeAdapter) PostComment(_ context.Context, _ providers.PullRequestRef, body string) error {
	f.posted = append(f.posted, body)
	return nil
}

type countingInvoker struct {
	outputs map[string]string // keyed by a substring of the prompt
	calls   int
}

func (c *countingInvoker) Invoke(_ context.Context, prompt string) (string, error) {
	c.calls++
	for key, out := range c.outputs {
		if strings.Contains(prompt, key) {
			return out, nil
		}
	}
	return "generic model output", nil
}

func (c *countingInvoker) Name() string { return "counting" }

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.AI.TimeoutSeconds = 60
	cfg.Knowledge.RetrievalK = 5
	cfg.Review.MaxHunks = 10
	cfg.Review.MaxSampleLines = 5
	return cfg
}

func testPR() *models.PullRequest {
	return &models.PullRequest{
		Platform:    "github",
		Number:      42,
		Title:       "Add input validation",
		Description: "Validates user input before persistence",
		Author:      "dev",
		FilesChanged: []models.FileChange{
			{
				Filename:  "validate.go",
				Status:    models.StatusModified,
				Additions: 2,
				Deletions: 1,
				Patch:     "@@ -1,2 +1,3 @@\n func Validate(input string) error {\n+\tif input == \"\" {\n+\t\treturn errValidation\n-\treturn nil\n",
			},
		},
		ChangedFiles: 1,
		Additions:    2,
		Deletions:    1,
		Language:     "go",
	}
}

func newTestService(t *testing.T, adapter providers.Provider, invoker pipeline.Invoker) *Service {
	t.Helper()
	svc := NewService(testConfig(), invoker, nil)
	svc.newAdapter = func(string, providers.Credentials) (providers.Provider, error) {
		return adapter, nil
	}
	return svc
}

func TestRunHappyPath(t *testing.T) {
	adapter := &fakeAdapter{pr: testPR()}
	invoker := &countingInvoker{outputs: map[string]string{
		"comprehensive code review report": "## Review\nLooks solid overall.",
	}}
	svc := newTestService(t, adapter, invoker)

	report, err := svc.Run(context.Background(), "https://github.com/acme/widgets/pull/42")
	require.NoError(t, err)
	require.NotNil(t, report)

	assert.True(t, report.Success)
	assert.Empty(t, report.FailedStage)
	assert.Equal(t, "github", report.Platform)
	assert.Equal(t, "Add input validation", report.Title)
	assert.Contains(t, report.Synthesis, "Looks solid")
	assert.NotEmpty(t, report.ReviewID)

	// No retriever configured: Retrieve is skipped, so three model calls.
	assert.Equal(t, 3, invoker.calls)

	// Summary comes from parsed hunks, not the platform's counters.
	assert.Equal(t, 2, report.Summary.TotalAdded)
	assert.Equal(t, 1, report.Summary.TotalRemoved)
	assert.Equal(t, 1, report.Summary.FilesChanged)

	stages := make([]string, 0, len(report.Stages))
	for _, s := range report.Stages {
		stages = append(stages, s.Stage)
	}
	assert.Equal(t, []string{pipeline.StageAnalyze, pipeline.StageCritique, pipeline.StageSynthesize}, stages)
}

func TestRunFetchFailure(t *testing.T) {
	fetchErr := &providers.AdapterError{Platform: "github", Operation: "fetch pull request", Err: errors.New("401 Unauthorized")}
	adapter := &fakeAdapter{fetchErr: fetchErr}
	invoker := &countingInvoker{}
	svc := newTestService(t, adapter, invoker)

	report, err := svc.Run(context.Background(), "https://github.com/acme/widgets/pull/42")
	require.Error(t, err)
	assert.Nil(t, report)

	var adapterErr *providers.AdapterError
	require.ErrorAs(t, err, &adapterErr)
	assert.Equal(t, "github", adapterErr.Platform)

	// The pipeline must never have started.
	assert.Zero(t, invoker.calls)
}

func TestRunUnknownPlatform(t *testing.T) {
	svc := newTestService(t, &fakeAdapter{}, &countingInvoker{})
	_, err := svc.Run(context.Background(), "https://example.com/some/repo/pull/1")
	require.Error(t, err)
}

func TestRunPostsCommentWhenEnabled(t *testing.T) {
	adapter := &fakeAdapter{pr: testPR()}
	svc := newTestService(t, adapter, &countingInvoker{})
	svc.cfg.Review.PostComments = true

	_, err := svc.Run(context.Background(), "https://github.com/acme/widgets/pull/42")
	require.NoError(t, err)
	require.Len(t, adapter.posted, 1)
	assert.Contains(t, adapter.posted[0], "Automated Code Review")
}

func TestPrepareSeedSampling(t *testing.T) {
	cfg := testConfig()
	cfg.Review.MaxHunks = 2
	cfg.Review.MaxSampleLines = 1
	svc := NewService(cfg, &countingInvoker{}, nil)

	pr := testPR()
	// Three copies of the same patch give three hunks.
	pr.FilesChanged = append(pr.FilesChanged,
		models.FileChange{Filename: "b.go", Patch: pr.FilesChanged[0].Patch},
		models.FileChange{Filename: "c.go", Patch: pr.FilesChanged[0].Patch})

	seed, hunks := svc.prepareSeed(pr)
	assert.Len(t, hunks, 3)
	require.Len(t, seed.CodeChanges, 2)
	assert.Len(t, seed.CodeChanges[0].SampleLines, 1)
}

func TestPrepareSeedLanguageFallback(t *testing.T) {
	svc := NewService(testConfig(), &countingInvoker{}, nil)
	pr := testPR()
	pr.Language = ""

	seed, _ := svc.prepareSeed(pr)
	assert.Equal(t, "go", seed.Language)
}

func TestFormatCommentFailure(t *testing.T) {
	report := &models.ReviewReport{
		Success:     false,
		FailedStage: pipeline.StageCritique,
		Stages: []models.StageOutput{
			{Stage: pipeline.StageAnalyze, Output: "partial analysis text"},
		},
	}
	body := FormatComment(report)
	assert.Contains(t, body, "Critique stage failed")
	assert.Contains(t, body, "partial analysis text")
}
