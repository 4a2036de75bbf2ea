package httpx

import (
	"errors"
	"log/slog"
	"net/http"

	apperrors "github.com/target/members-console/internal/errors"
	obserrors "github.com/target/members-console/internal/observability/errors"
)

type errorView struct {
	Message string
}

// renderPageError maps a service error onto the page the browser should see.
// A principal without a member record is sent to the registration screen.
func renderPageError(w http.ResponseWriter, r *http.Request, t *TemplateRenderer, logger *slog.Logger, err error) {
	switch apperrors.GetCode(err) {
	case apperrors.ErrCodeRegistrationRequired:
		http.Redirect(w, r, PathRegister, redirectCode(r))
		return
	case apperrors.ErrCodeUnauthorized:
		renderErrorPage(w, r, t, http.StatusUnauthorized, "Signed out",
			"Your session is no longer accepted. Please sign in again.")
		return
	case apperrors.ErrCodeForbidden:
		renderErrorPage(w, r, t, http.StatusForbidden, "Access denied",
			"You don't have permission to access this resource.")
		return
	case apperrors.ErrCodeNotFound:
		renderErrorPage(w, r, t, http.StatusNotFound, "Not found", "The requested record does not exist.")
		return
	case apperrors.ErrCodeValidation, apperrors.ErrCodeConflict:
		renderErrorPage(w, r, t, apperrors.HTTPStatus(err), "Request rejected", userMessage(err))
		return
	}
	logger.ErrorContext(r.Context(), "request failed",
		slog.String("path", r.URL.Path),
		slog.String("error_type", obserrors.Classify(err)),
		slog.Any("error", err),
	)
	renderErrorPage(w, r, t, apperrors.HTTPStatus(err), "Something went wrong",
		"The members service could not complete the request. Please try again.")
}

func renderErrorPage(w http.ResponseWriter, r *http.Request, t *TemplateRenderer, status int, title, message string) {
	data := newPageData(w, r, title, errorView{Message: message})
	if err := t.Render(w, status, pageError, data); err != nil {
		http.Error(w, message, status)
	}
}

// userMessage returns the AppError message without wrapping prefixes.
func userMessage(err error) string {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) && appErr.Message != "" {
		return appErr.Message
	}
	return "An unexpected error occurred"
}

// fieldErrors returns the per-field message of a validation error, or nil.
func fieldErrors(err error) map[string]string {
	if !apperrors.IsValidation(err) {
		return nil
	}
	field := apperrors.GetField(err)
	if field == "" {
		return nil
	}
	return map[string]string{field: userMessage(err)}
}

func redirectCode(r *http.Request) int {
	if r.Method == http.MethodGet || r.Method == http.MethodHead {
		return http.StatusFound
	}
	return http.StatusSeeOther
}
