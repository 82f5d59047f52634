package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/sakif/snippetbox/internal/apperror"
	"github.com/sakif/snippetbox/internal/model"
)

// createTestUser is a test helper that creates a user and fails the test if it errors.
func createTestUser(t *testing.T, u *UserDB, username string) *model.User {
	t.Helper()
	user := &model.User{
		Username:     username,
		PasswordHash: "$2a$04$not-a-real-hash",
	}
	if err := u.Create(context.Background(), user); err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}
	return user
}

func TestUserCreate(t *testing.T) {
	u := newTestDB(t).Users()

	user := &model.User{Username: "testuser", PasswordHash: "hash"}
	if err := u.Create(context.Background(), user); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if user.ID == "" {
		t.Error("Create() did not set user.ID")
	}
	if user.CreatedAt.IsZero() {
		t.Error("Create() did not set user.CreatedAt")
	}
}

func TestUserCreate_DuplicateUsername(t *testing.T) {
	db := newTestDB(t)
	u := db.Users()
	createTestUser(t, u, "firstuser")

	err := u.Create(context.Background(), &model.User{Username: "firstuser", PasswordHash: "other"})
	if !errors.Is(err, apperror.ErrConflict) {
		t.Fatalf("Create() error = %v, want ErrConflict", err)
	}

	var appErr *apperror.AppError
	if errors.As(err, &appErr) && appErr.Field != "username" {
		t.Errorf("conflict Field = %q, want username", appErr.Field)
	}

	var count int
	if err := db.conn.QueryRow(`SELECT COUNT(*) FROM users WHERE username = ?`, "firstuser").Scan(&count); err != nil {
		t.Fatalf("counting users: %v", err)
	}
	if count != 1 {
		t.Errorf("users named firstuser = %d, want exactly 1", count)
	}
}

func TestUserGetByID(t *testing.T) {
	u := newTestDB(t).Users()
	created := createTestUser(t, u, "getbyid")

	found, err := u.GetUserByID(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("GetUserByID() error = %v", err)
	}
	if found.Username != "getbyid" {
		t.Errorf("Username = %q, want %q", found.Username, "getbyid")
	}
	if found.PasswordHash != created.PasswordHash {
		t.Errorf("PasswordHash = %q, want %q", found.PasswordHash, created.PasswordHash)
	}
	if found.GitHubID != nil {
		t.Errorf("GitHubID = %v, want nil", *found.GitHubID)
	}
}

func TestUserGetByID_NotFound(t *testing.T) {
	u := newTestDB(t).Users()

	_, err := u.GetUserByID(context.Background(), "nonexistent-id")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetUserByID() error = %v, want ErrNotFound", err)
	}
}

func TestUserGetByUsername(t *testing.T) {
	u := newTestDB(t).Users()
	created := createTestUser(t, u, "lookup")

	found, err := u.GetByUsername(context.Background(), "lookup")
	if err != nil {
		t.Fatalf("GetByUsername() error = %v", err)
	}
	if found.ID != created.ID {
		t.Errorf("ID = %q, want %q", found.ID, created.ID)
	}

	if _, err := u.GetByUsername(context.Background(), "nobody"); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetByUsername(nobody) error = %v, want ErrNotFound", err)
	}
}

func TestUserUpsertGitHub_NewThenExisting(t *testing.T) {
	u := newTestDB(t).Users()
	ghID := int64(66666)

	first := &model.User{Username: "octocat", GitHubID: &ghID}
	if err := u.UpsertGitHub(context.Background(), first); err != nil {
		t.Fatalf("UpsertGitHub() first login: %v", err)
	}
	if first.ID == "" {
		t.Fatal("UpsertGitHub() did not set ID for new user")
	}

	// Same GitHub account, renamed login: the account keeps its identity
	second := &model.User{Username: "octocat-renamed", GitHubID: &ghID}
	if err := u.UpsertGitHub(context.Background(), second); err != nil {
		t.Fatalf("UpsertGitHub() second login: %v", err)
	}

	if second.ID != first.ID {
		t.Errorf("UpsertGitHub() changed user ID: got %q, want %q", second.ID, first.ID)
	}
	if second.Username != "octocat" {
		t.Errorf("Username = %q, want the original %q", second.Username, "octocat")
	}
}

func TestUserUpsertGitHub_UsernameTaken(t *testing.T) {
	u := newTestDB(t).Users()
	createTestUser(t, u, "octocat")
	ghID := int64(1)

	err := u.UpsertGitHub(context.Background(), &model.User{Username: "octocat", GitHubID: &ghID})
	if !errors.Is(err, apperror.ErrConflict) {
		t.Errorf("UpsertGitHub() error = %v, want ErrConflict", err)
	}
}

func TestUserUpsertGitHub_MissingID(t *testing.T) {
	u := newTestDB(t).Users()

	if err := u.UpsertGitHub(context.Background(), &model.User{Username: "x"}); err == nil {
		t.Fatal("UpsertGitHub() should reject a user without a GitHub ID")
	}
}

func TestUniqueColumn(t *testing.T) {
	tests := []struct {
		msg  string
		want string
	}{
		{"constraint failed: UNIQUE constraint failed: users.username (2067)", "username"},
		{"UNIQUE constraint failed: users.github_id", "github_id"},
		{"something else", "fallback"},
	}
	for _, tt := range tests {
		if got := uniqueColumn(errors.New(tt.msg), "fallback"); got != tt.want {
			t.Errorf("uniqueColumn(%q) = %q, want %q", tt.msg, got, tt.want)
		}
	}
}
