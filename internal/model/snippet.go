package model

import (
	"strings"
	"time"
)

// Snippet represents a saved code snippet.
// The `json:"..."` tags tell Go's encoding/json package how to serialize/deserialize
// this struct to/from JSON. This is called a "struct tag": metadata attached to fields.
//
// Title is unique across all snippets (the storage layer enforces it).
// Tags are lower-cased and de-duplicated before they get here.
// AuthorID records who created the snippet; it is informational only and does
// not restrict who may edit.
type Snippet struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Language  string    `json:"language"`
	Body      string    `json:"body"`
	Notes     string    `json:"notes,omitempty"`
	Tags      []string  `json:"tags,omitempty"`
	AuthorID  string    `json:"authorId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TagList renders the tags the way the edit form expects them: "go, http".
func (s *Snippet) TagList() string {
	return strings.Join(s.Tags, ", ")
}
