package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/sakif/snippetbox/internal/apperror"
	"github.com/sakif/snippetbox/internal/service"
)

// maxFormBytes caps request bodies; snippet bodies are the largest field.
const maxFormBytes = 1 << 20

// parseForm reads a urlencoded body with a size cap.
func parseForm(w http.ResponseWriter, r *http.Request) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseForm(); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperror.ValidationFailed("form", "The submitted form is too large.")
		}
		return apperror.ValidationFailed("form", "The submitted form could not be read.")
	}
	return nil
}

// formData builds the TemplateData for redisplaying a form after err.
//
// Field-level problems (validation and uniqueness) go under their fields;
// anything else becomes the form-wide message.
func formData(title string, form any, err error) *TemplateData {
	data := &TemplateData{Title: title, Form: form}
	if fields := apperror.Fields(err); len(fields) > 0 {
		data.Errors = fields
		return data
	}
	var appErr *apperror.AppError
	if errors.As(err, &appErr) && appErr.Message != "" {
		data.FormError = appErr.Message
	}
	return data
}

// Form redisplays a form page after err with the status err maps to.
// Unexpected failures are logged and shown as the generic message.
func (rn *Renderer) Form(w http.ResponseWriter, r *http.Request, page, title string, form any, err error) {
	status := StatusFor(err)
	data := formData(title, form, err)
	if status == http.StatusInternalServerError {
		rn.logger.Error("form submission failed",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		data.Errors = nil
		data.FormError = service.MsgUnknownError
	}
	rn.Render(w, r, status, page, data)
}
