package handler

import (
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/snippetbox/internal/auth"
	"github.com/sakif/snippetbox/internal/flash"
	"github.com/sakif/snippetbox/internal/model"
	"github.com/sakif/snippetbox/internal/service"
)

// SnippetHandler serves the snippet pages.
//
// ROUTES:
//   - GET      /                      → Index
//   - GET/POST /new/                  → ShowCreate / Create     (login required)
//   - GET      /{id}/                 → View
//   - GET/POST /{id}/edit/            → ShowEdit / Update       (login required)
//   - POST     /{id}/run/             → Run                     (login required)
//   - GET/POST /{id}/new_snippet/     → RedirectNew
//   - GET/POST /{id}/edit_snippet/    → RedirectEdit
//   - GET      /language/{language}/  → ByLanguage
//   - GET      /tag/{tag}/            → ByTag
type SnippetHandler struct {
	snippets *service.SnippetService
	render   *Renderer
	logger   *slog.Logger
}

// NewSnippetHandler creates a new SnippetHandler.
func NewSnippetHandler(snippets *service.SnippetService, render *Renderer, logger *slog.Logger) *SnippetHandler {
	return &SnippetHandler{
		snippets: snippets,
		render:   render,
		logger:   logger,
	}
}

// SnippetPath is the canonical URL of a snippet page.
func SnippetPath(id string) string {
	return "/" + url.PathEscape(id) + "/"
}

// Index lists every snippet.
func (h *SnippetHandler) Index(w http.ResponseWriter, r *http.Request) {
	snippets, err := h.snippets.List(r.Context())
	if err != nil {
		h.render.Error(w, r, err)
		return
	}
	h.render.Render(w, r, http.StatusOK, pageIndex, &TemplateData{
		Title:    "All snippets",
		Snippets: snippets,
	})
}

// ShowCreate renders the empty new-snippet form.
func (h *SnippetHandler) ShowCreate(w http.ResponseWriter, r *http.Request) {
	h.render.Render(w, r, http.StatusOK, pageNewSnippet, &TemplateData{
		Title: "New snippet",
		Form:  service.SnippetInput{},
	})
}

// Create saves a new snippet authored by the logged-in user.
func (h *SnippetHandler) Create(w http.ResponseWriter, r *http.Request) {
	if err := parseForm(w, r); err != nil {
		h.render.Form(w, r, pageNewSnippet, "New snippet", service.SnippetInput{}, err)
		return
	}
	in := snippetInput(r)

	author, _ := auth.UserFromContext(r.Context())
	snippet, err := h.snippets.Create(r.Context(), author, in)
	if err != nil {
		h.render.Form(w, r, pageNewSnippet, "New snippet", in, err)
		return
	}

	h.render.Flash(w, r, flash.Success, "Snippet created.")
	http.Redirect(w, r, SnippetPath(snippet.ID), http.StatusSeeOther)
}

// View shows one snippet with its same-language and same-tag neighbours.
func (h *SnippetHandler) View(w http.ResponseWriter, r *http.Request) {
	view, err := h.snippets.View(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.render.Error(w, r, err)
		return
	}
	h.render.Render(w, r, http.StatusOK, pageSnippet, &TemplateData{
		Title:   view.Snippet.Title,
		View:    view,
		Snippet: view.Snippet,
		CanRun:  h.snippets.CanRun(view.Snippet.Language),
	})
}

// ShowEdit renders the edit form filled with the stored snippet.
func (h *SnippetHandler) ShowEdit(w http.ResponseWriter, r *http.Request) {
	snippet, err := h.snippets.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.render.Error(w, r, err)
		return
	}
	h.render.Render(w, r, http.StatusOK, pageEditSnippet, &TemplateData{
		Title:   "Edit " + snippet.Title,
		Snippet: snippet,
		Form:    service.InputFromSnippet(snippet),
	})
}

// Update overwrites the snippet and returns to its page. A failed
// validation redisplays the form with what was submitted; nothing is saved.
func (h *SnippetHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	snippet, err := h.snippets.Get(r.Context(), id)
	if err != nil {
		h.render.Error(w, r, err)
		return
	}

	if err := parseForm(w, r); err != nil {
		h.renderEditForm(w, r, snippet, service.InputFromSnippet(snippet), err)
		return
	}
	in := snippetInput(r)

	if _, err := h.snippets.Update(r.Context(), id, in); err != nil {
		h.renderEditForm(w, r, snippet, in, err)
		return
	}

	h.render.Flash(w, r, flash.Success, "Snippet updated.")
	http.Redirect(w, r, SnippetPath(id), http.StatusSeeOther)
}

func (h *SnippetHandler) renderEditForm(w http.ResponseWriter, r *http.Request, snippet *model.Snippet, in service.SnippetInput, err error) {
	status := StatusFor(err)
	if status == http.StatusNotFound {
		h.render.Error(w, r, err)
		return
	}
	data := formData("Edit "+snippet.Title, in, err)
	data.Snippet = snippet
	if status == http.StatusInternalServerError {
		h.logger.Error("snippet update failed", slog.String("id", snippet.ID), slog.String("error", err.Error()))
		data.Errors = nil
		data.FormError = service.MsgUnknownError
	}
	h.render.Render(w, r, status, pageEditSnippet, data)
}

// Run executes the snippet and shows its output.
func (h *SnippetHandler) Run(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	snippet, err := h.snippets.Get(r.Context(), id)
	if err != nil {
		h.render.Error(w, r, err)
		return
	}

	result, err := h.snippets.Run(r.Context(), id)
	if err != nil {
		h.render.Error(w, r, err)
		return
	}

	h.render.Render(w, r, http.StatusOK, pageRun, &TemplateData{
		Title:   "Output of " + snippet.Title,
		Snippet: snippet,
		Result:  result,
	})
}

// ByLanguage lists the snippets written in one language.
func (h *SnippetHandler) ByLanguage(w http.ResponseWriter, r *http.Request) {
	language := pathParam(r, "language")
	snippets, err := h.snippets.ListByLanguage(r.Context(), language)
	if err != nil {
		h.render.Error(w, r, err)
		return
	}
	h.render.Render(w, r, http.StatusOK, pageBrowse, &TemplateData{
		Title:    language + " snippets",
		Heading:  "Language: " + language,
		Snippets: snippets,
	})
}

// ByTag lists the snippets carrying one tag.
func (h *SnippetHandler) ByTag(w http.ResponseWriter, r *http.Request) {
	tag := pathParam(r, "tag")
	snippets, err := h.snippets.ListByTag(r.Context(), tag)
	if err != nil {
		h.render.Error(w, r, err)
		return
	}
	h.render.Render(w, r, http.StatusOK, pageBrowse, &TemplateData{
		Title:    "#" + tag,
		Heading:  "Tag: " + tag,
		Snippets: snippets,
	})
}

// RedirectNew answers the old per-snippet "new" route by sending the
// browser to the regular new-snippet form.
func (h *SnippetHandler) RedirectNew(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/new/", http.StatusSeeOther)
}

// RedirectEdit answers the old per-snippet "edit" route by sending the
// browser to the snippet's edit form.
func (h *SnippetHandler) RedirectEdit(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, SnippetPath(chi.URLParam(r, "id"))+"edit/", http.StatusSeeOther)
}

// pathParam returns a decoded URL parameter. chi matches on RawPath when the
// path held escapes such as %2F, and the parameter then comes back escaped.
func pathParam(r *http.Request, name string) string {
	value := chi.URLParam(r, name)
	if r.URL.RawPath == "" {
		return value
	}
	if decoded, err := url.PathUnescape(value); err == nil {
		return decoded
	}
	return value
}

func snippetInput(r *http.Request) service.SnippetInput {
	return service.SnippetInput{
		Title:    r.PostForm.Get("title"),
		Language: r.PostForm.Get("language"),
		Body:     r.PostForm.Get("body"),
		Notes:    r.PostForm.Get("notes"),
		Tags:     r.PostForm.Get("tags"),
	}
}
