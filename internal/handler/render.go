// Package handler contains the HTTP handlers of the web application.
//
// HANDLER RESPONSIBILITIES:
//  1. Parse the incoming request (path params, form body)
//  2. Call the service layer with typed input and the caller's identity
//  3. Render an HTML page or redirect
//
// Handlers hold no business rules; they translate between HTTP and services.
package handler

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sakif/snippetbox/internal/apperror"
	"github.com/sakif/snippetbox/internal/auth"
	"github.com/sakif/snippetbox/internal/executor"
	"github.com/sakif/snippetbox/internal/flash"
	"github.com/sakif/snippetbox/internal/model"
	"github.com/sakif/snippetbox/internal/service"
)

// Page names; each is templates/<name>.html rendered inside templates/base.html.
const (
	pageIndex       = "index"
	pageLogin       = "login"
	pageRegister    = "register"
	pageNewSnippet  = "new_snippet"
	pageEditSnippet = "edit_snippet"
	pageSnippet     = "snippet"
	pageBrowse      = "browse"
	pageRun         = "run"
	pageError       = "error"
)

var pages = []string{
	pageIndex, pageLogin, pageRegister, pageNewSnippet, pageEditSnippet,
	pageSnippet, pageBrowse, pageRun, pageError,
}

// TemplateData is the single value every page template receives.
// Handlers fill what their page needs; Render adds User and Flash.
type TemplateData struct {
	Title string

	User  *model.User
	Flash []flash.Message

	// Form pages
	Form      any
	Errors    apperror.FieldErrors
	FormError string

	// Listing and detail pages
	Heading  string
	Snippets []model.Snippet
	View     *service.SnippetView
	Snippet  *model.Snippet
	Result   *executor.ExecutionResult
	CanRun   bool

	GitHubEnabled bool

	// Error page
	Status  int
	Message string
}

// Renderer executes parsed page templates. Templates are parsed once at
// startup; a missing or broken template fails NewRenderer, not a request.
type Renderer struct {
	pages         map[string]*template.Template
	flashes       flash.Store
	logger        *slog.Logger
	githubEnabled bool
}

// NewRenderer parses base.html plus partials.html with every page from fsys,
// which must contain a templates/ directory.
func NewRenderer(fsys fs.FS, githubEnabled bool, flashes flash.Store, logger *slog.Logger) (*Renderer, error) {
	funcs := template.FuncMap{
		"humanDate":  humanDate,
		"excerpt":    excerpt,
		"pathEscape": url.PathEscape,
	}

	r := &Renderer{
		pages:         make(map[string]*template.Template, len(pages)),
		flashes:       flashes,
		logger:        logger,
		githubEnabled: githubEnabled,
	}
	for _, page := range pages {
		tmpl, err := template.New("base.html").Funcs(funcs).ParseFS(fsys,
			"templates/base.html",
			"templates/partials.html",
			"templates/"+page+".html",
		)
		if err != nil {
			return nil, fmt.Errorf("parsing %s template: %w", page, err)
		}
		r.pages[page] = tmpl
	}
	return r, nil
}

// Render writes page with the given status. The page is executed into a
// buffer first so a template error still produces a clean 500.
func (rn *Renderer) Render(w http.ResponseWriter, r *http.Request, status int, page string, data *TemplateData) {
	tmpl, ok := rn.pages[page]
	if !ok {
		rn.logger.Error("unknown page template", slog.String("page", page))
		http.Error(w, service.MsgUnknownError, http.StatusInternalServerError)
		return
	}

	if data == nil {
		data = &TemplateData{}
	}
	data.User, _ = auth.UserFromContext(r.Context())
	data.Flash = rn.flashes.Pop(w, r)
	data.GitHubEnabled = rn.githubEnabled

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "base", data); err != nil {
		rn.logger.Error("failed to render template",
			slog.String("page", page),
			slog.String("error", err.Error()),
		)
		http.Error(w, service.MsgUnknownError, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// Flash queues a message for the next rendered page.
func (rn *Renderer) Flash(w http.ResponseWriter, r *http.Request, kind flash.Kind, text string) {
	rn.flashes.Add(w, r, kind, text)
}

// Error renders the error page for err.
//
// ERROR MAPPING:
// Services return sentinel-wrapped errors; this is the one place they turn
// into status codes. Unknown errors are logged and shown as a generic
// message so internals never reach the browser.
func (rn *Renderer) Error(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	message := service.MsgUnknownError

	if status == http.StatusInternalServerError {
		rn.logger.Error("request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
	} else {
		message = publicMessage(err)
	}

	rn.Render(w, r, status, pageError, &TemplateData{
		Title:   http.StatusText(status),
		Status:  status,
		Message: message,
	})
}

// NotFound renders the 404 page; the router uses it for unknown paths.
func (rn *Renderer) NotFound(w http.ResponseWriter, r *http.Request) {
	rn.Error(w, r, apperror.NotFound("page", r.URL.Path))
}

// StatusFor maps an application error to an HTTP status code.
func StatusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, apperror.ErrValidation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, apperror.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperror.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, apperror.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, apperror.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, apperror.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func publicMessage(err error) string {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) && appErr.Message != "" {
		return appErr.Message
	}
	if fields := apperror.Fields(err); len(fields) > 0 {
		return fields.Error()
	}
	return service.MsgUnknownError
}

func humanDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("02 Jan 2006 at 15:04")
}

// excerpt returns the first few lines of a snippet body for list pages.
func excerpt(body string) string {
	lines := strings.SplitN(body, "\n", 4)
	if len(lines) > 3 {
		lines = append(lines[:3], "…")
	}
	return strings.Join(lines, "\n")
}
