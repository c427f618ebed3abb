// Package ui serves the browser console: server-rendered pages backed by one
// query session per visitor, plus a small JSON API over the same sessions.
package ui

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"sqlspeak-console/internal/console"
	"sqlspeak-console/internal/domain"

	gomponents "maragu.dev/gomponents"
)

// Handler holds the dependencies of the console routes.
type Handler struct {
	Sessions    *console.Manager
	DataSources []string
	Profiles    []string
	Production  bool
	Logger      *slog.Logger
}

// NewHandler creates a Handler. The first data source and profile are the
// form defaults.
func NewHandler(sessions *console.Manager, dataSources, profiles []string, production bool, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		Sessions:    sessions,
		DataSources: dataSources,
		Profiles:    profiles,
		Production:  production,
		Logger:      logger.With("component", "ui"),
	}
}

func renderHTML(w http.ResponseWriter, status int, node gomponents.Node) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_ = node.Render(w)
}

func renderJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusForError maps a failure to the HTTP status shown to the browser.
func statusForError(err error) int {
	var validation *domain.ValidationError
	var notFound *domain.NotFoundError
	var svcErr *domain.ServiceError
	var netErr *domain.NetworkError
	var acqErr *domain.AcquisitionError
	switch {
	case errors.Is(err, domain.ErrSubmissionInFlight):
		return http.StatusConflict
	case errors.As(err, &validation):
		return http.StatusBadRequest
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &svcErr):
		if svcErr.StatusCode >= 400 && svcErr.StatusCode < 500 {
			return svcErr.StatusCode
		}
		return http.StatusBadGateway
	case errors.As(err, &netErr), errors.As(err, &acqErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) defaultRequest() domain.QueryRequest {
	var req domain.QueryRequest
	if len(h.DataSources) > 0 {
		req.DataSource = h.DataSources[0]
	}
	if len(h.Profiles) > 0 {
		req.Profile = h.Profiles[0]
	}
	return req
}
