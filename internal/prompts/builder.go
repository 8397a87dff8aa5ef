package prompts

import (
	"fmt"
	"sort"
	"strings"

	"github.com/reviewloop/internal/knowledge"
	"github.com/reviewloop/pkg/models"
)

// CodeChangeSample is a trimmed view of one hunk, sized for a prompt.
type CodeChangeSample struct {
	File        string
	Added       int
	Removed     int
	SampleLines []string // first added lines, at most a handful
}

// Seed is the per-review context every stage prompt is built from. It is
// assembled once, before the pipeline starts, and never mutated.
type Seed struct {
	Title        string
	Description  string
	Author       string
	Platform     string
	Language     string
	FilesChanged int
	Files        []string
	Summary      models.ChangeSummary
	CodeChanges  []CodeChangeSample
	Symbols      map[string][]string
}

const maxFilesListed = 20

// prInfo renders the shared PR header section used by several stages.
func prInfo(seed *Seed) string {
	var b strings.Builder
	fmt.Fprintf(&b, "PR Title: %s\n", seed.Title)
	fmt.Fprintf(&b, "Author: %s\n", seed.Author)
	fmt.Fprintf(&b, "Description: %s\n", seed.Description)
	fmt.Fprintf(&b, "Language: %s\n", orUnknown(seed.Language))
	fmt.Fprintf(&b, "Files Changed: %d\n", seed.FilesChanged)
	fmt.Fprintf(&b, "Additions: %d / Deletions: %d\n", seed.Summary.TotalAdded, seed.Summary.TotalRemoved)

	b.WriteString("\nFiles:\n")
	files := seed.Files
	if len(files) > maxFilesListed {
		files = files[:maxFilesListed]
	}
	for _, f := range files {
		fmt.Fprintf(&b, "- %s\n", f)
	}
	return b.String()
}

// codeChanges renders the sampled hunks section.
func codeChanges(seed *Seed) string {
	if len(seed.CodeChanges) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("\nCode changes:\n")
	for _, change := range seed.CodeChanges {
		fmt.Fprintf(&b, "File: %s (+%d/-%d)\n", change.File, change.Added, change.Removed)
		for _, line := range change.SampleLines {
			fmt.Fprintf(&b, "  + %s\n", line)
		}
	}

	if len(seed.Symbols) > 0 {
		b.WriteString("\nChanged symbols:\n")
		files := make([]string, 0, len(seed.Symbols))
		for f := range seed.Symbols {
			files = append(files, f)
		}
		sort.Strings(files)
		for _, f := range files {
			fmt.Fprintf(&b, "- %s: %s\n", f, strings.Join(seed.Symbols[f], ", "))
		}
	}
	return b.String()
}

// BuildAnalyzePrompt builds the Analyze stage prompt from the seed alone.
func BuildAnalyzePrompt(seed *Seed) string {
	var b strings.Builder
	b.WriteString(AnalyzerRole)
	b.WriteString("\n\nAnalyze the following code changes and identify potential issues:\n\n")
	b.WriteString(prInfo(seed))
	b.WriteString(codeChanges(seed))
	b.WriteString("\nProvide specific file and line references where possible.\n")
	return b.String()
}

// BuildRetrievePrompt folds the analysis output and the retrieved knowledge
// hits into the Retrieve stage prompt.
func BuildRetrievePrompt(seed *Seed, analysis string, hits []knowledge.Hit) string {
	var b strings.Builder
	b.WriteString(RetrieverRole)
	fmt.Fprintf(&b, "\n\nThis is a %s change set.\n", orUnknown(seed.Language))
	b.WriteString("\nAnalysis so far:\n")
	b.WriteString(analysis)
	b.WriteString("\n\nRetrieved reference material:\n")
	for i, hit := range hits {
		fmt.Fprintf(&b, "\n[%d] (source: %s, relevance: %.2f)\n%s\n",
			i+1, hit.Metadata["source"], hit.Relevance, hit.Content)
	}
	b.WriteString("\nReturn the guidelines from the material above that apply to this review.\n")
	return b.String()
}

// BuildCritiquePrompt builds the Critique stage prompt over the analysis.
func BuildCritiquePrompt(seed *Seed, analysis string) string {
	var b strings.Builder
	b.WriteString(CriticRole)
	b.WriteString("\n\nSuggestions under evaluation:\n\n")
	b.WriteString(analysis)
	b.WriteString("\n")
	return b.String()
}

// BuildSynthesizePrompt combines every upstream output into the final
// report prompt. knowledgeSection may be empty when retrieval was skipped.
func BuildSynthesizePrompt(seed *Seed, analysis, knowledgeSection, critique string) string {
	var b strings.Builder
	b.WriteString(SynthesizerRole)
	fmt.Fprintf(&b, "\n\nCreate a comprehensive code review report for this PR.\n\nPR: %s\n", seed.Title)
	fmt.Fprintf(&b, "Change summary: +%d/-%d across %d files (net %+d)\n",
		seed.Summary.TotalAdded, seed.Summary.TotalRemoved, seed.Summary.FilesChanged, seed.Summary.NetChange)

	b.WriteString("\nOriginal analysis:\n")
	b.WriteString(analysis)

	b.WriteString("\n\nValidated issues from the critique:\n")
	b.WriteString(critique)

	if knowledgeSection != "" {
		b.WriteString("\n\nRelevant guidance from the knowledge base:\n")
		b.WriteString(knowledgeSection)
	}

	b.WriteString("\n\nProduce the structured review now.\n")
	return b.String()
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
