package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

// fakeGitHub serves just enough of the token and /user endpoints for Exchange.
func fakeGitHub(t *testing.T, user map[string]any, userStatus int) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/login/oauth/access_token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if r.Form.Get("code") != "good-code" {
			http.Error(w, `{"error":"bad_verification_code"}`, http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"access_token": "gho_test", "token_type": "bearer"})
	})
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer gho_test", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(userStatus)
		json.NewEncoder(w).Encode(user)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func providerFor(srv *httptest.Server) *GitHubProvider {
	p := NewGitHubProvider("client-id", "client-secret", "http://localhost/auth/github/callback")
	p.config.Endpoint = oauth2.Endpoint{
		AuthURL:   srv.URL + "/login/oauth/authorize",
		TokenURL:  srv.URL + "/login/oauth/access_token",
		AuthStyle: oauth2.AuthStyleInParams,
	}
	p.userURL = srv.URL + "/user"
	return p
}

func TestAuthURL_CarriesStateAndClient(t *testing.T) {
	p := NewGitHubProvider("client-id", "secret", "http://localhost/cb")

	u, err := url.Parse(p.AuthURL("state-123"))
	require.NoError(t, err)
	assert.Equal(t, "state-123", u.Query().Get("state"))
	assert.Equal(t, "client-id", u.Query().Get("client_id"))
	assert.Equal(t, "http://localhost/cb", u.Query().Get("redirect_uri"))
}

func TestExchange(t *testing.T) {
	srv := fakeGitHub(t, map[string]any{"id": 42, "login": "octocat"}, http.StatusOK)

	ghUser, err := providerFor(srv).Exchange(context.Background(), "good-code")
	require.NoError(t, err)
	assert.Equal(t, int64(42), ghUser.ID)
	assert.Equal(t, "octocat", ghUser.Login)
}

func TestExchange_BadCode(t *testing.T) {
	srv := fakeGitHub(t, nil, http.StatusOK)

	_, err := providerFor(srv).Exchange(context.Background(), "bad-code")
	assert.Error(t, err)
}

func TestExchange_UserAPIFailure(t *testing.T) {
	srv := fakeGitHub(t, map[string]any{"message": "nope"}, http.StatusForbidden)

	_, err := providerFor(srv).Exchange(context.Background(), "good-code")
	assert.ErrorContains(t, err, "403")
}

func TestExchange_IncompleteUser(t *testing.T) {
	srv := fakeGitHub(t, map[string]any{"id": 0}, http.StatusOK)

	_, err := providerFor(srv).Exchange(context.Background(), "good-code")
	assert.Error(t, err)
}

func TestNewState_Unique(t *testing.T) {
	assert.NotEqual(t, NewState(), NewState())
}
