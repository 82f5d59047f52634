// Package repository declares the storage contracts the services depend on.
// Implementations live in sub-packages (sqlite, redis); services only ever see
// these interfaces.
package repository

import (
	"context"

	"github.com/sakif/snippetbox/internal/model"
)

// SnippetFilter narrows a snippet listing. Zero values mean "no constraint".
//
//   - Language: exact match on the language field
//   - Tag:      snippets carrying this tag
//   - AnyTags:  snippets carrying at least one of these tags
//   - ExcludeID: drop this snippet from the result (used for "related" lists)
//
// Limit <= 0 returns every match.
type SnippetFilter struct {
	Language  string
	Tag       string
	AnyTags   []string
	ExcludeID string
	Limit     int
	Offset    int
}

type SnippetRepository interface {
	Create(ctx context.Context, snippet *model.Snippet) error
	GetByID(ctx context.Context, id string) (*model.Snippet, error)
	List(ctx context.Context, filter SnippetFilter) ([]model.Snippet, error)
	Update(ctx context.Context, snippet *model.Snippet) error
}

type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetByUsername(ctx context.Context, username string) (*model.User, error)
	// UpsertGitHub creates the account for a GitHub identity on first sign-in
	// and returns the existing one afterwards.
	UpsertGitHub(ctx context.Context, user *model.User) error
}

type SessionStore interface {
	CreateSession(ctx context.Context, session *model.Session) error
	GetSession(ctx context.Context, id string) (*model.Session, error)
	DeleteSession(ctx context.Context, id string) error
	// DeleteExpired removes sessions that expired before now and reports how many.
	DeleteExpired(ctx context.Context) (int64, error)
}
