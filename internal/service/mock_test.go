package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/sakif/snippetbox/internal/apperror"
	"github.com/sakif/snippetbox/internal/executor"
	"github.com/sakif/snippetbox/internal/model"
	"github.com/sakif/snippetbox/internal/repository"
)

// =========================================================================
// IN-MEMORY FAKES
// =========================================================================
//
// Hand-written fakes of the repository interfaces. They enforce the same
// uniqueness rules as the SQLite schema so service logic can be tested
// without a database. Each fake can be told to fail with failWith.

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var errDiskFull = errors.New("disk full")

type mockSnippetRepo struct {
	mu       sync.Mutex
	snippets map[string]*model.Snippet
	order    []string
	nextID   int
	failWith error
}

func newMockSnippetRepo() *mockSnippetRepo {
	return &mockSnippetRepo{snippets: make(map[string]*model.Snippet)}
}

func (m *mockSnippetRepo) titleTaken(title, exceptID string) bool {
	for id, s := range m.snippets {
		if s.Title == title && id != exceptID {
			return true
		}
	}
	return false
}

func (m *mockSnippetRepo) Create(_ context.Context, snippet *model.Snippet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	if m.titleTaken(snippet.Title, "") {
		return apperror.Conflict("snippet", "title")
	}
	m.nextID++
	snippet.ID = fmt.Sprintf("mock-%d", m.nextID)
	snippet.CreatedAt = time.Now()
	stored := *snippet
	stored.Tags = slices.Clone(snippet.Tags)
	m.snippets[snippet.ID] = &stored
	m.order = append(m.order, snippet.ID)
	return nil
}

func (m *mockSnippetRepo) GetByID(_ context.Context, id string) (*model.Snippet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	s, ok := m.snippets[id]
	if !ok {
		return nil, apperror.NotFound("snippet", id)
	}
	out := *s
	out.Tags = slices.Clone(s.Tags)
	return &out, nil
}

func (m *mockSnippetRepo) List(_ context.Context, f repository.SnippetFilter) ([]model.Snippet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	out := []model.Snippet{}
	// newest first
	for i := len(m.order) - 1; i >= 0; i-- {
		s := m.snippets[m.order[i]]
		if f.ExcludeID != "" && s.ID == f.ExcludeID {
			continue
		}
		if f.Language != "" && s.Language != f.Language {
			continue
		}
		if f.Tag != "" && !slices.Contains(s.Tags, f.Tag) {
			continue
		}
		if f.AnyTags != nil && !slices.ContainsFunc(s.Tags, func(t string) bool { return slices.Contains(f.AnyTags, t) }) {
			continue
		}
		out = append(out, *s)
	}
	return out, nil
}

func (m *mockSnippetRepo) Update(_ context.Context, snippet *model.Snippet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	if _, ok := m.snippets[snippet.ID]; !ok {
		return apperror.NotFound("snippet", snippet.ID)
	}
	if m.titleTaken(snippet.Title, snippet.ID) {
		return apperror.Conflict("snippet", "title")
	}
	stored := *snippet
	stored.Tags = slices.Clone(snippet.Tags)
	m.snippets[snippet.ID] = &stored
	return nil
}

type mockUserRepo struct {
	mu       sync.Mutex
	users    map[string]*model.User
	nextID   int
	failWith error
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{users: make(map[string]*model.User)}
}

func (m *mockUserRepo) Create(_ context.Context, user *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	for _, u := range m.users {
		if u.Username == user.Username {
			return apperror.Conflict("user", "username")
		}
	}
	m.nextID++
	user.ID = fmt.Sprintf("user-%d", m.nextID)
	stored := *user
	m.users[user.ID] = &stored
	return nil
}

func (m *mockUserRepo) GetUserByID(_ context.Context, id string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	u, ok := m.users[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	out := *u
	return &out, nil
}

func (m *mockUserRepo) GetByUsername(_ context.Context, username string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	for _, u := range m.users {
		if u.Username == username {
			out := *u
			return &out, nil
		}
	}
	return nil, apperror.NotFound("user", username)
}

func (m *mockUserRepo) UpsertGitHub(ctx context.Context, user *model.User) error {
	m.mu.Lock()
	for _, u := range m.users {
		if u.GitHubID != nil && *u.GitHubID == *user.GitHubID {
			*user = *u
			m.mu.Unlock()
			return nil
		}
	}
	m.mu.Unlock()
	return m.Create(ctx, user)
}

func (m *mockUserRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.users)
}

type mockSessionStore struct {
	mu       sync.Mutex
	sessions map[string]*model.Session
	failWith error
}

func newMockSessionStore() *mockSessionStore {
	return &mockSessionStore{sessions: make(map[string]*model.Session)}
}

func (m *mockSessionStore) CreateSession(_ context.Context, s *model.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	stored := *s
	m.sessions[s.ID] = &stored
	return nil
}

func (m *mockSessionStore) GetSession(_ context.Context, id string) (*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	s, ok := m.sessions[id]
	if !ok {
		return nil, apperror.NotFound("session", id)
	}
	out := *s
	return &out, nil
}

func (m *mockSessionStore) DeleteSession(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	delete(m.sessions, id)
	return nil
}

func (m *mockSessionStore) DeleteExpired(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return 0, m.failWith
	}
	var n int64
	for id, s := range m.sessions {
		if s.Expired(time.Now()) {
			delete(m.sessions, id)
			n++
		}
	}
	return n, nil
}

func (m *mockSessionStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// fakeRunner "runs" python by echoing the code.
type fakeRunner struct {
	lastReq executor.ExecutionRequest
	err     error
}

func (f *fakeRunner) Supports(language string) bool {
	return executor.NormalizeLanguage(language) == "python"
}

func (f *fakeRunner) Execute(_ context.Context, req executor.ExecutionRequest) (*executor.ExecutionResult, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return &executor.ExecutionResult{Stdout: req.Code, Duration: time.Millisecond}, nil
}
