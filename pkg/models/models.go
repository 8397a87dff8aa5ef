package models

import (
	"time"
)

// ChangeStatus describes what happened to a file in a pull request.
type ChangeStatus string

const (
	StatusAdded    ChangeStatus = "added"
	StatusModified ChangeStatus = "modified"
	StatusDeleted  ChangeStatus = "deleted"
	StatusRenamed  ChangeStatus = "renamed"
)

// FileChange represents a single changed file in a PR/MR.
type FileChange struct {
	Filename         string
	Status           ChangeStatus
	Additions        int
	Deletions        int
	Patch            string // raw unified-diff text for this file, may be empty
	PreviousFilename string // only set when Status == StatusRenamed
}

// PullRequest is the unified representation of a PR/MR across platforms.
type PullRequest struct {
	Platform     string // github, gitlab, bitbucket
	ID           string
	Number       int
	Title        string
	Description  string
	Author       string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	State        string // open, closed, merged
	SourceBranch string
	TargetBranch string
	Repository   string
	URL          string
	FilesChanged []FileChange
	CommitsCount int
	Additions    int
	Deletions    int
	ChangedFiles int
	Labels       []string
	Language     string // primary language, best effort
}

// Line is one diff line together with the line number it carries on the
// relevant side of the file (new side for added/context, old side for removed).
type Line struct {
	Number int
	Text   string
}

// Hunk represents one contiguous block of changes in a unified diff.
type Hunk struct {
	FilePath string
	OldStart int
	OldCount int
	NewStart int
	NewCount int
	Added    []Line
	Removed  []Line
	Context  []Line
}

// ChangeSummary holds aggregate statistics derived from parsed hunks.
// It is recomputed on demand and never persisted.
type ChangeSummary struct {
	TotalAdded   int
	TotalRemoved int
	FilesChanged int
	NetChange    int
}

// StageOutput is one pipeline stage's recorded output.
type StageOutput struct {
	Stage  string
	Output string
}

// ReviewReport is the final result of one review run.
type ReviewReport struct {
	ReviewID    string
	URL         string
	Platform    string
	Title       string
	Success     bool
	FailedStage string // set when Success is false
	Synthesis   string // Synthesize stage output, empty on failure
	Summary     ChangeSummary
	Stages      []StageOutput // outputs of all completed stages, in execution order
	Duration    time.Duration
}
