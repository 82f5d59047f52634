package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/sakif/snippetbox/internal/apperror"
	"github.com/sakif/snippetbox/internal/auth"
	"github.com/sakif/snippetbox/internal/model"
)

type authFixture struct {
	svc      *AuthService
	users    *mockUserRepo
	sessions *mockSessionStore
	tokens   *auth.TokenService
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	tokens, err := auth.NewTokenService("service-test-secret-0123456789")
	require.NoError(t, err)

	f := &authFixture{
		users:    newMockUserRepo(),
		sessions: newMockSessionStore(),
		tokens:   tokens,
	}
	f.svc = NewAuthService(f.users, f.sessions, tokens,
		auth.NewPasswordServiceWithCost(bcrypt.MinCost), time.Hour, discardLogger())
	return f
}

func (f *authFixture) register(t *testing.T, username, password string) *model.User {
	t.Helper()
	u, err := f.svc.Register(context.Background(), RegisterInput{Username: username, Password: password})
	require.NoError(t, err)
	return u
}

// =========================================================================
// REGISTER TESTS
// =========================================================================

func TestRegister(t *testing.T) {
	f := newAuthFixture(t)

	u := f.register(t, "alice", "s3cret")
	assert.NotEmpty(t, u.ID)
	assert.NotEqual(t, "s3cret", u.PasswordHash)
	assert.Zero(t, f.sessions.count(), "registration must not open a session")
}

func TestRegister_RejectsBadUsernames(t *testing.T) {
	tests := []struct {
		name     string
		username string
		want     string
	}{
		{"empty", "", "Username is required"},
		{"whitespace only", "   ", "Username is required"},
		{"punctuation", "bob!", "Username must be alphanumeric"},
		{"dash", "bob-smith", "Username must be alphanumeric"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newAuthFixture(t)

			_, err := f.svc.Register(context.Background(), RegisterInput{Username: tt.username, Password: "pw"})
			require.ErrorIs(t, err, apperror.ErrValidation)
			assert.Equal(t, tt.want, apperror.Fields(err)["username"])
			assert.Zero(t, f.users.count(), "no record should be created")
		})
	}
}

func TestRegister_PasswordRequired(t *testing.T) {
	f := newAuthFixture(t)

	_, err := f.svc.Register(context.Background(), RegisterInput{Username: "alice"})
	assert.Equal(t, "Password is required", apperror.Fields(err)["password"])
}

func TestRegister_MultibytePasswordOverBcryptLimit(t *testing.T) {
	f := newAuthFixture(t)

	// 30 runes, 90 bytes: passes the form rule, fails bcrypt's byte limit.
	long := ""
	for range 30 {
		long += "密"
	}
	_, err := f.svc.Register(context.Background(), RegisterInput{Username: "alice", Password: long})
	require.ErrorIs(t, err, apperror.ErrValidation)
	assert.Contains(t, apperror.Fields(err)["password"], "72 bytes")
}

func TestRegister_DuplicateUsername(t *testing.T) {
	f := newAuthFixture(t)
	f.register(t, "alice", "one")

	_, err := f.svc.Register(context.Background(), RegisterInput{Username: "alice", Password: "two"})
	require.ErrorIs(t, err, apperror.ErrConflict)
	assert.Equal(t, MsgUsernameTaken, apperror.Fields(err)["username"])
	assert.Equal(t, 1, f.users.count())
}

func TestRegister_StorageFailure(t *testing.T) {
	f := newAuthFixture(t)
	f.users.failWith = errDiskFull

	_, err := f.svc.Register(context.Background(), RegisterInput{Username: "alice", Password: "pw"})
	assert.ErrorIs(t, err, errDiskFull)
}

// =========================================================================
// AUTHENTICATE / LOGIN TESTS
// =========================================================================

func TestAuthenticate(t *testing.T) {
	f := newAuthFixture(t)
	alice := f.register(t, "alice", "right")

	u, err := f.svc.Authenticate(context.Background(), "alice", "right")
	require.NoError(t, err)
	assert.Equal(t, alice.ID, u.ID)

	// Same message for a wrong password and an unknown user.
	_, errWrong := f.svc.Authenticate(context.Background(), "alice", "wrong")
	_, errMissing := f.svc.Authenticate(context.Background(), "nobody", "right")
	for _, err := range []error{errWrong, errMissing} {
		require.ErrorIs(t, err, apperror.ErrUnauthorized)
		assert.Equal(t, MsgBadCredentials, err.Error())
	}
}

func TestAuthenticate_GitHubAccountHasNoPassword(t *testing.T) {
	f := newAuthFixture(t)
	_, err := f.svc.LoginGitHub(context.Background(), &auth.GitHubUser{ID: 9, Login: "octocat"})
	require.NoError(t, err)

	_, err = f.svc.Authenticate(context.Background(), "octocat", "")
	assert.ErrorIs(t, err, apperror.ErrUnauthorized)
}

func TestLogin_OpensSession(t *testing.T) {
	f := newAuthFixture(t)
	alice := f.register(t, "alice", "pw")

	res, err := f.svc.Login(context.Background(), LoginInput{Username: "alice", Password: "pw"})
	require.NoError(t, err)
	assert.Equal(t, alice.ID, res.User.ID)
	assert.NotEmpty(t, res.Token)
	assert.WithinDuration(t, time.Now().Add(time.Hour), res.ExpiresAt, time.Minute)
	assert.Equal(t, 1, f.sessions.count())

	claims, err := f.tokens.Validate(res.Token)
	require.NoError(t, err)
	assert.Equal(t, alice.ID, claims.UserID)
}

func TestLogin_EmptyForm(t *testing.T) {
	f := newAuthFixture(t)

	_, err := f.svc.Login(context.Background(), LoginInput{})
	require.ErrorIs(t, err, apperror.ErrValidation)
	assert.Equal(t, apperror.FieldErrors{
		"username": "Username is required",
		"password": "Password is required",
	}, apperror.Fields(err))
}

func TestLoginGitHub_ReusesAccount(t *testing.T) {
	f := newAuthFixture(t)
	gh := &auth.GitHubUser{ID: 42, Login: "octo-cat"}

	first, err := f.svc.LoginGitHub(context.Background(), gh)
	require.NoError(t, err)
	second, err := f.svc.LoginGitHub(context.Background(), gh)
	require.NoError(t, err)

	assert.Equal(t, first.User.ID, second.User.ID)
	assert.Equal(t, 1, f.users.count())
	assert.Equal(t, 2, f.sessions.count())
}

func TestLoginGitHub_UsernameTaken(t *testing.T) {
	f := newAuthFixture(t)
	f.register(t, "octocat", "pw")

	_, err := f.svc.LoginGitHub(context.Background(), &auth.GitHubUser{ID: 1, Login: "octocat"})
	assert.ErrorIs(t, err, apperror.ErrConflict)
}

// =========================================================================
// RESOLVE / LOGOUT TESTS
// =========================================================================

func TestResolve(t *testing.T) {
	f := newAuthFixture(t)
	alice := f.register(t, "alice", "pw")
	res, err := f.svc.Login(context.Background(), LoginInput{Username: "alice", Password: "pw"})
	require.NoError(t, err)

	u, err := f.svc.Resolve(context.Background(), res.Token)
	require.NoError(t, err)
	assert.Equal(t, alice.ID, u.ID)
}

func TestResolve_Rejections(t *testing.T) {
	f := newAuthFixture(t)
	alice := f.register(t, "alice", "pw")

	t.Run("garbage token", func(t *testing.T) {
		_, err := f.svc.Resolve(context.Background(), "garbage")
		assert.ErrorIs(t, err, apperror.ErrUnauthorized)
	})

	t.Run("validly signed but unknown session", func(t *testing.T) {
		token, err := f.tokens.Generate(alice.ID, "never-created", time.Hour)
		require.NoError(t, err)
		_, err = f.svc.Resolve(context.Background(), token)
		assert.ErrorIs(t, err, apperror.ErrUnauthorized)
	})

	t.Run("session for someone else", func(t *testing.T) {
		require.NoError(t, f.sessions.CreateSession(context.Background(), &model.Session{
			ID: "s-other", UserID: "user-999", ExpiresAt: time.Now().Add(time.Hour),
		}))
		token, _ := f.tokens.Generate(alice.ID, "s-other", time.Hour)
		_, err := f.svc.Resolve(context.Background(), token)
		assert.ErrorIs(t, err, apperror.ErrUnauthorized)
	})

	t.Run("expired session is removed", func(t *testing.T) {
		require.NoError(t, f.sessions.CreateSession(context.Background(), &model.Session{
			ID: "s-old", UserID: alice.ID, ExpiresAt: time.Now().Add(-time.Minute),
		}))
		token, _ := f.tokens.Generate(alice.ID, "s-old", time.Hour)
		_, err := f.svc.Resolve(context.Background(), token)
		assert.ErrorIs(t, err, apperror.ErrUnauthorized)

		_, err = f.sessions.GetSession(context.Background(), "s-old")
		assert.ErrorIs(t, err, apperror.ErrNotFound)
	})

	t.Run("storage failure is not a logout", func(t *testing.T) {
		token, _ := f.tokens.Generate(alice.ID, "anything", time.Hour)
		f.sessions.failWith = errDiskFull
		defer func() { f.sessions.failWith = nil }()

		_, err := f.svc.Resolve(context.Background(), token)
		assert.ErrorIs(t, err, errDiskFull)
		assert.NotErrorIs(t, err, apperror.ErrUnauthorized)
	})
}

func TestLogout_RevokesSession(t *testing.T) {
	f := newAuthFixture(t)
	f.register(t, "alice", "pw")
	res, err := f.svc.Login(context.Background(), LoginInput{Username: "alice", Password: "pw"})
	require.NoError(t, err)

	require.NoError(t, f.svc.Logout(context.Background(), res.Token))
	assert.Zero(t, f.sessions.count())

	// The token is still correctly signed and unexpired, but its session is gone.
	_, err = f.svc.Resolve(context.Background(), res.Token)
	assert.ErrorIs(t, err, apperror.ErrUnauthorized)

	assert.NoError(t, f.svc.Logout(context.Background(), "not-a-token"))
}

func TestPurgeExpiredSessions(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	require.NoError(t, f.sessions.CreateSession(ctx, &model.Session{ID: "a", UserID: "u", ExpiresAt: time.Now().Add(-time.Second)}))
	require.NoError(t, f.sessions.CreateSession(ctx, &model.Session{ID: "b", UserID: "u", ExpiresAt: time.Now().Add(time.Hour)}))

	n, err := f.svc.PurgeExpiredSessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, 1, f.sessions.count())
}
