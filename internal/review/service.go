package review

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/reviewloop/internal/ai"
	"github.com/reviewloop/internal/config"
	"github.com/reviewloop/internal/diff"
	"github.com/reviewloop/internal/knowledge"
	"github.com/reviewloop/internal/pipeline"
	"github.com/reviewloop/internal/prompts"
	"github.com/reviewloop/internal/providers"
	"github.com/reviewloop/pkg/models"
)

// Service runs complete reviews: fetch, parse, reason, report.
type Service struct {
	cfg       *config.Config
	parser    *diff.Parser
	provider  pipeline.Invoker
	retriever *knowledge.Retriever

	// newAdapter is swapped in tests.
	newAdapter func(platform string, creds providers.Credentials) (providers.Provider, error)
}

// NewService wires a review service from pre-built dependencies. retriever
// may be nil, in which case every review runs without knowledge retrieval.
func NewService(cfg *config.Config, provider pipeline.Invoker, retriever *knowledge.Retriever) *Service {
	return &Service{
		cfg:        cfg,
		parser:     diff.NewParser(),
		provider:   provider,
		retriever:  retriever,
		newAdapter: providers.New,
	}
}

// NewFromConfig builds the full dependency chain: resilient model client
// plus the persisted knowledge store. A store that cannot be opened is
// logged and reviews proceed without retrieval.
func NewFromConfig(ctx context.Context, cfg *config.Config) (*Service, func(), error) {
	base, err := ai.NewLangchainProvider(ctx, ai.Options{
		Provider:    cfg.AI.Provider,
		APIKey:      cfg.AI.APIKey,
		Model:       cfg.AI.Model,
		BaseURL:     cfg.AI.BaseURL,
		Temperature: cfg.AI.Temperature,
		MaxTokens:   cfg.AI.MaxTokens,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create model client: %w", err)
	}
	resilient := ai.NewResilient(base, ai.ResilientConfig{
		Timeout:            cfg.AITimeout(),
		MaxRetries:         cfg.AI.MaxRetries,
		MaxConcurrentCalls: cfg.AI.MaxConcurrentCalls,
	})

	cleanup := func() {}
	var retriever *knowledge.Retriever
	embedder, err := knowledge.NewOpenAIEmbedder(knowledge.EmbedderConfig{
		APIKey:  cfg.Embedding.APIKey,
		Model:   cfg.Embedding.Model,
		BaseURL: cfg.Embedding.BaseURL,
	})
	if err != nil {
		log.Warn().Err(err).Msg("embedder unavailable, reviews run without knowledge retrieval")
	} else {
		store, err := knowledge.OpenStore(cfg.Knowledge.PersistDir, embedder)
		if err != nil {
			log.Warn().Err(err).Msg("knowledge store unavailable, reviews run without retrieval")
		} else {
			retriever = knowledge.NewRetriever(store, cfg.Knowledge.RetrievalK)
			cleanup = func() { store.Close() }
		}
	}

	return NewService(cfg, resilient, retriever), cleanup, nil
}

// Run reviews the pull request at url end to end. Pipeline failures still
// produce a report carrying the outputs of the stages that completed; the
// report's FailedStage names the stage that broke.
func (s *Service) Run(ctx context.Context, url string) (*models.ReviewReport, error) {
	reviewID := uuid.NewString()
	start := time.Now()
	machine := pipeline.NewMachine()

	logger := log.With().Str("review_id", reviewID).Str("url", url).Logger()
	logger.Info().Msg("review started")

	if timeout := s.cfg.ReviewTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	platform, err := providers.Detect(url)
	if err != nil {
		return nil, err
	}
	if err := machine.Advance(pipeline.StatePlatformDetected); err != nil {
		return nil, err
	}
	logger.Debug().Str("platform", platform).Msg("platform detected")

	adapter, err := s.newAdapter(platform, providers.Credentials{
		GitHubToken:          s.cfg.Platforms.GitHub.Token,
		GitLabURL:            s.cfg.Platforms.GitLab.URL,
		GitLabToken:          s.cfg.Platforms.GitLab.Token,
		BitbucketUsername:    s.cfg.Platforms.Bitbucket.Username,
		BitbucketAppPassword: s.cfg.Platforms.Bitbucket.AppPassword,
		BitbucketAPIBase:     s.cfg.Platforms.Bitbucket.URL,
	})
	if err != nil {
		return nil, err
	}

	ref, err := adapter.ParseURL(url)
	if err != nil {
		return nil, err
	}

	pr, err := adapter.FetchPullRequest(ctx, ref)
	if err != nil {
		return nil, err
	}
	if err := machine.Advance(pipeline.StateFetched); err != nil {
		return nil, err
	}
	logger.Info().
		Str("title", pr.Title).
		Int("files", pr.ChangedFiles).
		Msg("pull request fetched")

	seed, hunks := s.prepareSeed(pr)
	if err := machine.Advance(pipeline.StateContextPrepared); err != nil {
		return nil, err
	}
	logger.Debug().
		Int("hunks", len(hunks)).
		Str("language", seed.Language).
		Msg("review context prepared")

	stages, retrieved := s.buildStages(seed)
	orch, err := pipeline.NewOrchestrator(s.provider, stages, s.cfg.AITimeout())
	if err != nil {
		return nil, err
	}

	result, runErr := orch.Run(ctx, machine)
	report := s.buildReport(reviewID, url, platform, pr, seed, result, time.Since(start))

	if runErr != nil {
		logger.Error().Err(runErr).Str("failed_stage", result.Failed).Msg("review failed")
		return report, runErr
	}

	logger.Info().
		Dur("duration", report.Duration).
		Int("retrieved", len(*retrieved)).
		Msg("review completed")

	if s.cfg.Review.PostComments {
		if err := adapter.PostComment(ctx, ref, FormatComment(report)); err != nil {
			logger.Warn().Err(err).Msg("posting review comment failed")
		} else {
			logger.Info().Msg("review comment posted")
		}
	}
	return report, nil
}

// prepareSeed parses every file patch and condenses the PR into the prompt
// seed shared by all stages.
func (s *Service) prepareSeed(pr *models.PullRequest) (*prompts.Seed, []models.Hunk) {
	var hunks []models.Hunk
	files := make([]string, 0, len(pr.FilesChanged))
	for _, fc := range pr.FilesChanged {
		files = append(files, fc.Filename)
		if fc.Patch == "" {
			continue
		}
		hunks = append(hunks, s.parser.ParseFile(fc.Filename, fc.Patch)...)
	}

	summary := s.parser.Summarize(hunks)
	symbols := s.parser.ExtractSymbols(hunks)

	language := pr.Language
	if language == "" {
		language = dominantExtensionLanguage(s.parser.ExtensionCounts(hunks))
	}

	maxHunks := s.cfg.Review.MaxHunks
	if maxHunks <= 0 {
		maxHunks = 10
	}
	maxLines := s.cfg.Review.MaxSampleLines
	if maxLines <= 0 {
		maxLines = 5
	}

	var samples []prompts.CodeChangeSample
	for _, h := range hunks {
		if len(samples) >= maxHunks {
			break
		}
		sample := prompts.CodeChangeSample{
			File:    h.FilePath,
			Added:   len(h.Added),
			Removed: len(h.Removed),
		}
		for _, line := range h.Added {
			if len(sample.SampleLines) >= maxLines {
				break
			}
			sample.SampleLines = append(sample.SampleLines, line.Text)
		}
		samples = append(samples, sample)
	}

	return &prompts.Seed{
		Title:        pr.Title,
		Description:  pr.Description,
		Author:       pr.Author,
		Platform:     pr.Platform,
		Language:     language,
		FilesChanged: pr.ChangedFiles,
		Files:        files,
		Summary:      summary,
		CodeChanges:  samples,
		Symbols:      symbols,
	}, hunks
}

// buildStages assembles the four reasoning stages. The returned hit slice
// pointer is filled lazily when the Retrieve stage decides whether to run.
func (s *Service) buildStages(seed *prompts.Seed) ([]pipeline.Stage, *[]knowledge.Hit) {
	hits := &[]knowledge.Hit{}

	stages := []pipeline.Stage{
		{
			Name: pipeline.StageAnalyze,
			Build: func(map[string]string) (string, error) {
				return prompts.BuildAnalyzePrompt(seed), nil
			},
		},
		{
			Name:      pipeline.StageRetrieve,
			DependsOn: []string{pipeline.StageAnalyze},
			Skip: func(ctx context.Context) (bool, string) {
				if s.retriever == nil {
					return true, "no knowledge store configured"
				}
				*hits = s.retrieveKnowledge(ctx, seed)
				if len(*hits) == 0 {
					return true, "knowledge base returned no matches"
				}
				return false, ""
			},
			Build: func(deps map[string]string) (string, error) {
				return prompts.BuildRetrievePrompt(seed, deps[pipeline.StageAnalyze], *hits), nil
			},
		},
		{
			Name:      pipeline.StageCritique,
			DependsOn: []string{pipeline.StageAnalyze},
			Build: func(deps map[string]string) (string, error) {
				return prompts.BuildCritiquePrompt(seed, deps[pipeline.StageAnalyze]), nil
			},
		},
		{
			Name:      pipeline.StageSynthesize,
			DependsOn: []string{pipeline.StageAnalyze, pipeline.StageRetrieve, pipeline.StageCritique},
			Build: func(deps map[string]string) (string, error) {
				return prompts.BuildSynthesizePrompt(seed,
					deps[pipeline.StageAnalyze],
					deps[pipeline.StageRetrieve],
					deps[pipeline.StageCritique]), nil
			},
		},
	}
	return stages, hits
}

// retrieveKnowledge queries all three collections with a seed-derived query.
func (s *Service) retrieveKnowledge(ctx context.Context, seed *prompts.Seed) []knowledge.Hit {
	query := retrievalQuery(seed)
	k := s.cfg.Knowledge.RetrievalK

	var hits []knowledge.Hit
	hits = append(hits, s.retriever.BestPractices(ctx, query, seed.Language, k)...)
	hits = append(hits, s.retriever.CodePatterns(ctx, query, "", k)...)
	hits = append(hits, s.retriever.ReviewExamples(ctx, query, "", k)...)

	log.Debug().Int("hits", len(hits)).Str("query", query).Msg("knowledge retrieved")
	return hits
}

// retrievalQuery condenses the change set into one retrieval query string.
func retrievalQuery(seed *prompts.Seed) string {
	var parts []string
	parts = append(parts, seed.Title)
	if seed.Language != "" {
		parts = append(parts, seed.Language)
	}
	for _, symbols := range seed.Symbols {
		parts = append(parts, symbols...)
	}
	query := strings.Join(parts, " ")
	if len(query) > 500 {
		query = query[:500]
	}
	return query
}

func (s *Service) buildReport(reviewID, url, platform string, pr *models.PullRequest,
	seed *prompts.Seed, result *pipeline.Result, duration time.Duration) *models.ReviewReport {

	report := &models.ReviewReport{
		ReviewID: reviewID,
		URL:      url,
		Platform: platform,
		Title:    pr.Title,
		Success:  result.Success(),
		Summary:  seed.Summary,
		Duration: duration,
	}
	if !result.Success() {
		report.FailedStage = result.Failed
	}
	for _, stage := range result.Context.Stages() {
		output, _ := result.Context.Get(stage)
		report.Stages = append(report.Stages, models.StageOutput{Stage: stage, Output: output})
		if stage == pipeline.StageSynthesize {
			report.Synthesis = output
		}
	}
	return report
}

// extensionLanguages maps diff file extensions to knowledge-base language
// tags, used when the platform does not report a project language.
var extensionLanguages = map[string]string{
	"go":   "go",
	"py":   "python",
	"js":   "javascript",
	"jsx":  "javascript",
	"ts":   "typescript",
	"tsx":  "typescript",
	"java": "java",
	"rb":   "ruby",
	"rs":   "rust",
	"c":    "c",
	"h":    "c",
	"cpp":  "cpp",
	"cs":   "csharp",
	"php":  "php",
}

func dominantExtensionLanguage(counts map[string]int) string {
	best, bestCount := "", 0
	for ext, count := range counts {
		lang, ok := extensionLanguages[ext]
		if !ok {
			continue
		}
		if count > bestCount {
			best, bestCount = lang, count
		}
	}
	return best
}
