package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/snippetbox/internal/apperror"
	"github.com/sakif/snippetbox/internal/model"
	"github.com/sakif/snippetbox/internal/repository"
)

// COMPILE-TIME INTERFACE CHECK:
// If *SnippetDB stops satisfying repository.SnippetRepository, the build fails here
// instead of somewhere far away in server wiring.
var _ repository.SnippetRepository = (*SnippetDB)(nil)

// SnippetDB stores snippets and their tags.
type SnippetDB struct {
	conn *sql.DB
}

// selectSnippets is shared by every read. Tags live in their own table;
// GROUP_CONCAT folds them back into one column so a listing is a single query.
// Tags never contain commas (the service splits on them), so the join is safe.
const selectSnippets = `
	SELECT s.id, s.title, s.language, s.body, s.notes, COALESCE(s.author_id, ''),
	       s.created_at, s.updated_at,
	       COALESCE(GROUP_CONCAT(t.tag, ','), '')
	FROM snippets s
	LEFT JOIN snippet_tags t ON t.snippet_id = s.id`

// Create inserts a new snippet and its tags in one transaction.
//
// The caller's snippet is modified in place: after Create it carries the generated
// xid and the timestamps. A title that already exists yields apperror.ErrConflict.
func (s *SnippetDB) Create(ctx context.Context, snippet *model.Snippet) error {
	snippet.ID = xid.New().String()

	now := time.Now().UTC()
	snippet.CreatedAt = now
	snippet.UpdatedAt = now

	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO snippets (id, title, language, body, notes, author_id, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			snippet.ID,
			snippet.Title,
			snippet.Language,
			snippet.Body,
			snippet.Notes,
			nullString(snippet.AuthorID),
			snippet.CreatedAt,
			snippet.UpdatedAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return apperror.Conflict("snippet", "title")
			}
			return fmt.Errorf("sqlite: creating snippet: %w", err)
		}
		return insertTags(ctx, tx, snippet.ID, snippet.Tags)
	})
}

// GetByID retrieves a single snippet (with tags) by its ID.
// Returns apperror.ErrNotFound if no snippet has that ID.
func (s *SnippetDB) GetByID(ctx context.Context, id string) (*model.Snippet, error) {
	row := s.conn.QueryRowContext(ctx,
		selectSnippets+` WHERE s.id = ? GROUP BY s.id`,
		id,
	)

	snippet, err := scanSnippet(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("snippet", id)
		}
		return nil, fmt.Errorf("sqlite: getting snippet %s: %w", id, err)
	}

	return snippet, nil
}

// List returns the snippets matching filter, newest first.
//
// The WHERE clause is assembled from the non-zero filter fields. Every value
// still goes through a ? placeholder; only the fixed clause text is concatenated.
func (s *SnippetDB) List(ctx context.Context, filter repository.SnippetFilter) ([]model.Snippet, error) {
	var (
		where []string
		args  []any
	)

	if filter.Language != "" {
		where = append(where, "s.language = ?")
		args = append(args, filter.Language)
	}
	if filter.ExcludeID != "" {
		where = append(where, "s.id <> ?")
		args = append(args, filter.ExcludeID)
	}
	if filter.Tag != "" {
		where = append(where, "s.id IN (SELECT snippet_id FROM snippet_tags WHERE tag = ?)")
		args = append(args, filter.Tag)
	}
	if filter.AnyTags != nil {
		if len(filter.AnyTags) == 0 {
			// "shares a tag with nothing" matches nothing
			return []model.Snippet{}, nil
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(filter.AnyTags)), ",")
		where = append(where, "s.id IN (SELECT snippet_id FROM snippet_tags WHERE tag IN ("+placeholders+"))")
		for _, tag := range filter.AnyTags {
			args = append(args, tag)
		}
	}

	query := selectSnippets
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " GROUP BY s.id ORDER BY s.created_at DESC, s.id DESC"

	if filter.Limit > 0 {
		offset := filter.Offset
		if offset < 0 {
			offset = 0
		}
		query += " LIMIT ? OFFSET ?"
		args = append(args, filter.Limit, offset)
	}

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing snippets: %w", err)
	}
	// CRITICAL: always close rows when done!
	defer rows.Close()

	snippets := []model.Snippet{}
	for rows.Next() {
		snippet, err := scanSnippet(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning snippet row: %w", err)
		}
		snippets = append(snippets, *snippet)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating snippets: %w", err)
	}

	return snippets, nil
}

// Update overwrites the editable fields and replaces the tag set.
//
// id, author and created_at are immutable. Renaming onto another snippet's
// title yields apperror.ErrConflict and leaves the stored row untouched
// (the transaction rolls back).
func (s *SnippetDB) Update(ctx context.Context, snippet *model.Snippet) error {
	updatedAt := time.Now().UTC()

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`UPDATE snippets
			 SET title = ?, language = ?, body = ?, notes = ?, updated_at = ?
			 WHERE id = ?`,
			snippet.Title,
			snippet.Language,
			snippet.Body,
			snippet.Notes,
			updatedAt,
			snippet.ID,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return apperror.Conflict("snippet", "title")
			}
			return fmt.Errorf("sqlite: updating snippet %s: %w", snippet.ID, err)
		}

		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("sqlite: checking rows affected: %w", err)
		}
		if rowsAffected == 0 {
			return apperror.NotFound("snippet", snippet.ID)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM snippet_tags WHERE snippet_id = ?`, snippet.ID); err != nil {
			return fmt.Errorf("sqlite: clearing tags of %s: %w", snippet.ID, err)
		}
		return insertTags(ctx, tx, snippet.ID, snippet.Tags)
	})
	if err != nil {
		return err
	}

	snippet.UpdatedAt = updatedAt
	return nil
}

// withTx runs fn inside a transaction, committing on success and rolling back
// on any error. Errors from fn are returned unchanged so apperror values survive.
func (s *SnippetDB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing transaction: %w", err)
	}
	return nil
}

func insertTags(ctx context.Context, tx *sql.Tx, snippetID string, tags []string) error {
	for _, tag := range tags {
		// OR IGNORE: a repeated tag is not an error, it is just already there
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO snippet_tags (snippet_id, tag) VALUES (?, ?)`,
			snippetID, tag,
		); err != nil {
			return fmt.Errorf("sqlite: tagging snippet %s with %q: %w", snippetID, tag, err)
		}
	}
	return nil
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanSnippet(row scanner) (*model.Snippet, error) {
	var (
		snippet model.Snippet
		tags    string
	)

	if err := row.Scan(
		&snippet.ID,
		&snippet.Title,
		&snippet.Language,
		&snippet.Body,
		&snippet.Notes,
		&snippet.AuthorID,
		&snippet.CreatedAt,
		&snippet.UpdatedAt,
		&tags,
	); err != nil {
		return nil, err
	}

	if tags != "" {
		snippet.Tags = strings.Split(tags, ",")
		// GROUP_CONCAT order is unspecified
		sort.Strings(snippet.Tags)
	}

	return &snippet, nil
}

// nullString stores "" as NULL so the author foreign key stays optional.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
