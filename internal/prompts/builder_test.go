package prompts

import (
	"strings"
	"testing"

	"github.com/reviewloop/internal/knowledge"
	"github.com/reviewloop/pkg/models"
)

func sampleSeed() *Seed {
	return &Seed{
		Title:        "Add retry to uploader",
		Description:  "Wraps the upload call in backoff",
		Language:     "go",
		FilesChanged: 2,
		Files:        []string{"upload.go", "upload_test.go"},
		Summary:      models.ChangeSummary{TotalAdded: 12, TotalRemoved: 3, FilesChanged: 2, NetChange: 9},
		CodeChanges: []CodeChangeSample{
			{File: "upload.go", Added: 12, Removed: 3, SampleLines: []string{"return retry.Do(ctx, cfg, upload)"}},
		},
		Symbols: map[string][]string{"upload.go": {"uploadWithRetry"}},
	}
}

func TestBuildAnalyzePrompt(t *testing.T) {
	prompt := BuildAnalyzePrompt(sampleSeed())

	for _, want := range []string{
		"Add retry to uploader",
		"upload.go",
		"uploadWithRetry",
		"retry.Do(ctx, cfg, upload)",
		"Files Changed: 2",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("analyze prompt missing %q", want)
		}
	}
}

func TestBuildRetrievePromptNumbersHits(t *testing.T) {
	hits := []knowledge.Hit{
		{Content: "always bound retries", Metadata: map[string]string{"source": "retries.md"}, Relevance: 0.9},
		{Content: "log each retry attempt", Metadata: map[string]string{"source": "logging.md"}, Relevance: 0.7},
	}
	prompt := BuildRetrievePrompt(sampleSeed(), "the analysis", hits)

	if !strings.Contains(prompt, "[1] (source: retries.md") {
		t.Error("first hit not numbered")
	}
	if !strings.Contains(prompt, "[2] (source: logging.md") {
		t.Error("second hit not numbered")
	}
	if !strings.Contains(prompt, "the analysis") {
		t.Error("analysis output missing")
	}
}

func TestBuildCritiquePromptCarriesAnalysis(t *testing.T) {
	prompt := BuildCritiquePrompt(sampleSeed(), "suspicious unbounded loop in upload.go")
	if !strings.Contains(prompt, "suspicious unbounded loop in upload.go") {
		t.Error("analysis output missing from critique prompt")
	}
	if !strings.Contains(prompt, "severity") {
		t.Error("critique prompt should demand the JSON verdict shape")
	}
}

func TestBuildSynthesizePromptOmitsEmptyKnowledge(t *testing.T) {
	withKnowledge := BuildSynthesizePrompt(sampleSeed(), "a", "guidance text", "c")
	if !strings.Contains(withKnowledge, "guidance text") {
		t.Error("knowledge section missing")
	}

	without := BuildSynthesizePrompt(sampleSeed(), "a", "", "c")
	if strings.Contains(without, "knowledge base") {
		t.Error("empty knowledge section should be omitted entirely")
	}
}

func TestPromptsTruncateFileList(t *testing.T) {
	seed := sampleSeed()
	seed.Files = nil
	for i := 0; i < 50; i++ {
		seed.Files = append(seed.Files, "file"+strings.Repeat("x", i)+".go")
	}

	prompt := BuildAnalyzePrompt(seed)
	if count := strings.Count(prompt, "- file"); count != maxFilesListed {
		t.Errorf("listed %d files, want %d", count, maxFilesListed)
	}
}
