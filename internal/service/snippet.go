// Package service contains the business logic layer of the application.
//
// THE THREE-LAYER ARCHITECTURE:
//
//	Handler (HTTP layer)     → parses forms, renders pages, redirects
//	Service (Business layer) → validates, enforces rules, orchestrates
//	Repository (Data layer)  → reads/writes the database
//
// Services accept typed input structs (RegisterInput, SnippetInput, ...) and
// the caller's identity as explicit parameters. They know nothing about HTTP;
// they return apperror values that the handler layer maps to pages and codes.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/snippetbox/internal/apperror"
	"github.com/sakif/snippetbox/internal/executor"
	"github.com/sakif/snippetbox/internal/model"
	"github.com/sakif/snippetbox/internal/repository"
)

const (
	MaxTitleLength = 100
	MaxTags        = 10
	MaxTagLength   = 30
)

// DuplicateTitleMessage is shown when a snippet title is already in use.
func DuplicateTitleMessage(title string) string {
	return fmt.Sprintf(`The snippet name "%s" has already been used.`, title)
}

// SnippetInput is the validated new/edit snippet form. Tags arrive as one
// comma-separated string.
type SnippetInput struct {
	Title    string `form:"title"    validate:"required,max=100"`
	Language string `form:"language" validate:"required,max=40"`
	Body     string `form:"body"     validate:"required,max=100000"`
	Notes    string `form:"notes"    validate:"max=5000"`
	Tags     string `form:"tags"     validate:"max=500"`
}

// InputFromSnippet fills the edit form from a stored snippet.
func InputFromSnippet(s *model.Snippet) SnippetInput {
	return SnippetInput{
		Title:    s.Title,
		Language: s.Language,
		Body:     s.Body,
		Notes:    s.Notes,
		Tags:     s.TagList(),
	}
}

// SnippetView is a snippet plus its related snippets.
type SnippetView struct {
	Snippet      *model.Snippet
	SameLanguage []model.Snippet
	SameTags     []model.Snippet
}

// SnippetService handles business logic for code snippets.
type SnippetService struct {
	repo   repository.SnippetRepository
	runner executor.Executor
	logger *slog.Logger
}

// NewSnippetService creates a new SnippetService. runner may be nil, in
// which case Run reports the feature as unavailable.
func NewSnippetService(repo repository.SnippetRepository, runner executor.Executor, logger *slog.Logger) *SnippetService {
	return &SnippetService{
		repo:   repo,
		runner: runner,
		logger: logger,
	}
}

// RunnerEnabled reports whether snippets can be executed at all.
func (s *SnippetService) RunnerEnabled() bool {
	return s.runner != nil
}

// CanRun reports whether snippets in this language can be executed.
func (s *SnippetService) CanRun(language string) bool {
	return s.runner != nil && s.runner.Supports(language)
}

// Create validates the form and saves a new snippet. author may be nil; when
// set, the snippet records who created it.
//
// Errors: apperror.FieldErrors for invalid input, an ErrConflict carrying
// DuplicateTitleMessage for a taken title, anything else is a storage failure.
func (s *SnippetService) Create(ctx context.Context, author *model.User, in SnippetInput) (*model.Snippet, error) {
	in = normalize(in)
	if err := check(in); err != nil {
		return nil, err
	}
	tags, err := ParseTags(in.Tags)
	if err != nil {
		return nil, err
	}

	snippet := &model.Snippet{
		Title:    in.Title,
		Language: in.Language,
		Body:     in.Body,
		Notes:    in.Notes,
		Tags:     tags,
	}
	if author != nil {
		snippet.AuthorID = author.ID
	}

	if err := s.repo.Create(ctx, snippet); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			return nil, apperror.Duplicate("title", DuplicateTitleMessage(in.Title))
		}
		s.logger.Error("failed to create snippet", slog.String("error", err.Error()))
		return nil, fmt.Errorf("creating snippet: %w", err)
	}

	s.logger.Info("snippet created",
		slog.String("id", snippet.ID),
		slog.String("title", snippet.Title),
		slog.String("authorID", snippet.AuthorID),
	)
	return snippet, nil
}

// Get retrieves a snippet by ID.
func (s *SnippetService) Get(ctx context.Context, id string) (*model.Snippet, error) {
	snippet, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("getting snippet: %w", err)
	}
	return snippet, nil
}

// View loads a snippet with every other snippet in exactly the same
// language and every other snippet sharing at least one tag.
func (s *SnippetService) View(ctx context.Context, id string) (*SnippetView, error) {
	snippet, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	sameLanguage, err := s.repo.List(ctx, repository.SnippetFilter{
		Language:  snippet.Language,
		ExcludeID: snippet.ID,
	})
	if err != nil {
		return nil, fmt.Errorf("listing same-language snippets: %w", err)
	}

	sameTags := []model.Snippet{}
	if len(snippet.Tags) > 0 {
		sameTags, err = s.repo.List(ctx, repository.SnippetFilter{
			AnyTags:   snippet.Tags,
			ExcludeID: snippet.ID,
		})
		if err != nil {
			return nil, fmt.Errorf("listing same-tag snippets: %w", err)
		}
	}

	return &SnippetView{Snippet: snippet, SameLanguage: sameLanguage, SameTags: sameTags}, nil
}

// List returns every snippet, newest first.
func (s *SnippetService) List(ctx context.Context) ([]model.Snippet, error) {
	return s.list(ctx, repository.SnippetFilter{})
}

// ListByLanguage returns the snippets whose language is exactly language.
func (s *SnippetService) ListByLanguage(ctx context.Context, language string) ([]model.Snippet, error) {
	language = strings.TrimSpace(language)
	if language == "" {
		return nil, apperror.ValidationFailed("language", "Language is required")
	}
	return s.list(ctx, repository.SnippetFilter{Language: language})
}

// ListByTag returns the snippets carrying tag.
func (s *SnippetService) ListByTag(ctx context.Context, tag string) ([]model.Snippet, error) {
	tag = normalizeTag(tag)
	if tag == "" {
		return nil, apperror.ValidationFailed("tag", "Tag is required")
	}
	return s.list(ctx, repository.SnippetFilter{Tag: tag})
}

func (s *SnippetService) list(ctx context.Context, filter repository.SnippetFilter) ([]model.Snippet, error) {
	snippets, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("listing snippets: %w", err)
	}
	return snippets, nil
}

// Update overwrites title, language, body, notes and tags of an existing
// snippet. Nothing is written when the input fails validation.
func (s *SnippetService) Update(ctx context.Context, id string, in SnippetInput) (*model.Snippet, error) {
	snippet, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	in = normalize(in)
	if err := check(in); err != nil {
		return nil, err
	}
	tags, err := ParseTags(in.Tags)
	if err != nil {
		return nil, err
	}

	snippet.Title = in.Title
	snippet.Language = in.Language
	snippet.Body = in.Body
	snippet.Notes = in.Notes
	snippet.Tags = tags

	if err := s.repo.Update(ctx, snippet); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			return nil, apperror.Duplicate("title", DuplicateTitleMessage(in.Title))
		}
		return nil, fmt.Errorf("updating snippet: %w", err)
	}

	s.logger.Info("snippet updated", slog.String("id", snippet.ID))
	return snippet, nil
}

// Run executes a stored snippet in the sandbox.
func (s *SnippetService) Run(ctx context.Context, id string) (*executor.ExecutionResult, error) {
	if s.runner == nil {
		return nil, apperror.Unavailable("running snippets is not enabled on this server")
	}

	snippet, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if !s.runner.Supports(snippet.Language) {
		return nil, apperror.ValidationFailed("language",
			fmt.Sprintf("Running %s snippets is not supported", snippet.Language))
	}

	result, err := s.runner.Execute(ctx, executor.ExecutionRequest{
		Language: snippet.Language,
		Code:     snippet.Body,
	})
	if err != nil {
		return nil, fmt.Errorf("running snippet %s: %w", id, err)
	}

	s.logger.Info("snippet run",
		slog.String("id", id),
		slog.Int("exitCode", result.ExitCode),
		slog.Duration("duration", result.Duration),
	)
	return result, nil
}

// ParseTags splits "Go, http ,go" into [go http]: trimmed, lower-cased,
// de-duplicated, empty entries dropped, first-seen order kept.
func ParseTags(raw string) ([]string, error) {
	seen := make(map[string]bool)
	tags := []string{}
	for _, part := range strings.Split(raw, ",") {
		tag := normalizeTag(part)
		if tag == "" || seen[tag] {
			continue
		}
		if len(tag) > MaxTagLength {
			return nil, apperror.FieldErrors{"tags": fmt.Sprintf("Tags must be at most %d characters each", MaxTagLength)}
		}
		seen[tag] = true
		tags = append(tags, tag)
	}
	if len(tags) > MaxTags {
		return nil, apperror.FieldErrors{"tags": fmt.Sprintf("At most %d tags are allowed", MaxTags)}
	}
	return tags, nil
}

func normalizeTag(tag string) string {
	return strings.ToLower(strings.TrimSpace(tag))
}

// normalize trims the single-line fields. Body and notes are kept verbatim
// because leading whitespace is meaningful in code.
func normalize(in SnippetInput) SnippetInput {
	in.Title = strings.TrimSpace(in.Title)
	in.Language = strings.TrimSpace(in.Language)
	if strings.TrimSpace(in.Body) == "" {
		in.Body = ""
	}
	return in
}
