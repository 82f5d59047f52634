package auth

import (
	"net/http"
	"time"
)

const (
	// SessionCookie carries the signed session token.
	SessionCookie = "session"
	// StateCookie carries the OAuth state between /auth/github/login and the callback.
	StateCookie = "oauth_state"
)

// Cookies writes the session and OAuth-state cookies. Secure sets the
// Secure attribute on each of them; turn it on when serving over HTTPS.
type Cookies struct {
	Secure bool
}

// SetSession stores the session token in an HttpOnly cookie.
//
// HttpOnly keeps the token away from JavaScript; SameSite=Lax keeps it off
// cross-site POSTs.
func (c Cookies) SetSession(w http.ResponseWriter, token string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		MaxAge:   int(time.Until(expires).Seconds()),
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearSession tells the browser to drop the session cookie.
func (c Cookies) ClearSession(w http.ResponseWriter) {
	c.clear(w, SessionCookie, "/")
}

// SessionToken returns the session token sent with the request, if any.
func SessionToken(r *http.Request) (string, bool) {
	c, err := r.Cookie(SessionCookie)
	if err != nil || c.Value == "" {
		return "", false
	}
	return c.Value, true
}

// SetState remembers the OAuth state for ten minutes.
func (c Cookies) SetState(w http.ResponseWriter, state string) {
	http.SetCookie(w, &http.Cookie{
		Name:     StateCookie,
		Value:    state,
		Path:     "/auth/github",
		MaxAge:   600,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// CheckState reports whether the callback's state matches the cookie, and
// clears the cookie either way so a state can be used only once.
func (c Cookies) CheckState(w http.ResponseWriter, r *http.Request, state string) bool {
	sent, err := r.Cookie(StateCookie)
	c.clear(w, StateCookie, "/auth/github")
	return err == nil && state != "" && sent.Value == state
}

func (c Cookies) clear(w http.ResponseWriter, name, path string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     path,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}
