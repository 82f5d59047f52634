package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sakif/snippetbox/internal/apperror"
	"github.com/sakif/snippetbox/internal/model"
)

// contextKey is an unexported type used for context keys in this package.
//
// context.WithValue uses any as the key type, so a plain string key could be
// read or shadowed by any package that knows the string. Only this package
// can create a key of type contextKey.
type contextKey string

const userKey contextKey = "user"

// LoginPath is where RequireLogin sends anonymous visitors.
const LoginPath = "/login/"

// Resolver turns a session token into the user it belongs to.
// It returns an error wrapping apperror.ErrUnauthorized when the token or
// its session is no longer valid.
type Resolver interface {
	Resolve(ctx context.Context, token string) (*model.User, error)
}

// Identify is a middleware that restores the request's identity.
//
// It reads the session cookie and asks the resolver for the user. On success
// the *model.User is stored in the request context; otherwise the request
// continues anonymously. A cookie whose session is gone is cleared so the
// browser stops sending it.
//
// MIDDLEWARE PATTERN IN GO:
// A middleware takes an http.Handler and returns a new http.Handler that
// wraps it. Chi applies them in a chain: req → M1 → M2 → Handler → M2 → M1.
func Identify(resolver Resolver, cookies Cookies, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := SessionToken(r)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			user, err := resolver.Resolve(r.Context(), token)
			switch {
			case err == nil:
				r = r.WithContext(WithUser(r.Context(), user))
			case errors.Is(err, apperror.ErrUnauthorized), errors.Is(err, apperror.ErrNotFound):
				cookies.ClearSession(w)
			default:
				// Storage trouble: serve the page anonymously but keep the cookie.
				logger.Warn("resolving session",
					slog.String("path", r.URL.Path),
					slog.String("error", err.Error()),
				)
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequireLogin redirects anonymous requests to LoginPath.
// It must run after Identify.
func RequireLogin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := UserFromContext(r.Context()); !ok {
			http.Redirect(w, r, LoginPath, http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// WithUser returns a copy of ctx carrying the authenticated user.
func WithUser(ctx context.Context, user *model.User) context.Context {
	return context.WithValue(ctx, userKey, user)
}

// UserFromContext retrieves the authenticated user from the request context.
//
// Returns (nil, false) if the request is anonymous.
//
//	user, ok := auth.UserFromContext(r.Context())
//	if !ok {
//	    // anonymous visitor
//	}
func UserFromContext(ctx context.Context) (*model.User, bool) {
	user, ok := ctx.Value(userKey).(*model.User)
	return user, ok && user != nil
}
