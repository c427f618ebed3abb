package ui

import (
	"errors"
	"net/http"
	"strings"

	"sqlspeak-console/internal/console"
	"sqlspeak-console/internal/domain"
	"sqlspeak-console/internal/identity"
)

// Console renders the query form, the last result and the history. Filter
// query parameters, when present, replace the session's history filters.
func (h *Handler) Console(w http.ResponseWriter, r *http.Request) {
	s := sessionFromContext(r.Context())
	if s == nil {
		renderHTML(w, http.StatusInternalServerError, errorPage("Session Missing", "The console session could not be loaded."))
		return
	}

	q := r.URL.Query()
	if q.Has("status") || q.Has("time") {
		s.Controller.SetFilters(domain.HistoryFilter{
			Status:       domain.ParseStatusFilter(q.Get("status")),
			TimeContains: q.Get("time"),
		})
	}

	if _, signedIn := s.Account(r.Context()); signedIn && len(s.Controller.State().History) == 0 {
		out := s.Controller.RefreshHistory(identity.WithReturnPath(r.Context(), "/"))
		if target, ok := out.Redirecting(); ok {
			http.Redirect(w, r, target.URL, http.StatusFound)
			return
		}
	}

	h.renderConsole(w, r, s, http.StatusOK, h.defaultRequest(), "")
}

// RunQuery submits the form to the session controller. A sign-in redirect
// ends the request with a 302 to the identity provider.
func (h *Handler) RunQuery(w http.ResponseWriter, r *http.Request) {
	if !parseFormOrRenderBadRequest(w, r) {
		return
	}
	s := sessionFromContext(r.Context())
	req := domain.QueryRequest{
		DataSource:           strings.TrimSpace(r.Form.Get("data_source")),
		Profile:              strings.TrimSpace(r.Form.Get("profile")),
		NaturalLanguageQuery: strings.TrimSpace(r.Form.Get("query")),
	}

	out, err := s.Controller.RunQuery(identity.WithReturnPath(r.Context(), "/"), req)
	if errors.Is(err, domain.ErrSubmissionInFlight) {
		h.renderConsole(w, r, s, http.StatusConflict, req, "A query is already running.")
		return
	}
	if err != nil {
		h.renderServiceError(w, err)
		return
	}
	if target, ok := out.Redirecting(); ok {
		http.Redirect(w, r, target.URL, http.StatusFound)
		return
	}

	status := http.StatusOK
	if out.Value().Error != "" {
		status = http.StatusUnprocessableEntity
	}
	h.renderConsole(w, r, s, status, req, "")
}

// RefreshHistory reloads the history and returns to the console.
func (h *Handler) RefreshHistory(w http.ResponseWriter, r *http.Request) {
	s := sessionFromContext(r.Context())
	out := s.Controller.RefreshHistory(identity.WithReturnPath(r.Context(), "/"))
	if target, ok := out.Redirecting(); ok {
		http.Redirect(w, r, target.URL, http.StatusFound)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *Handler) renderConsole(w http.ResponseWriter, r *http.Request, s *console.Session, status int, req domain.QueryRequest, notice string) {
	renderHTML(w, status, consolePage(consoleView{
		Chrome:      h.chrome(r, s, "Console", "console"),
		Request:     req,
		DataSources: h.DataSources,
		Profiles:    h.Profiles,
		State:       s.Controller.State(),
		Visible:     s.Controller.VisibleHistory(),
		Notice:      notice,
	}))
}

func (h *Handler) chrome(r *http.Request, s *console.Session, title, active string) pageChrome {
	c := pageChrome{Title: title, Active: active, CSRFField: csrfField(r)}
	if s != nil {
		if account, ok := s.Account(r.Context()); ok {
			c.Account = account.Label()
		}
	}
	return c
}

func parseFormOrRenderBadRequest(w http.ResponseWriter, r *http.Request) bool {
	if err := r.ParseForm(); err != nil {
		renderHTML(w, http.StatusBadRequest, errorPage("Bad Request", "Invalid form payload."))
		return false
	}
	return true
}

func (h *Handler) renderServiceError(w http.ResponseWriter, err error) {
	status := statusForError(err)
	title := "Unexpected Error"
	message := "An unexpected error occurred while loading this page."
	switch status {
	case http.StatusBadRequest:
		title = "Invalid Request"
		message = err.Error()
	case http.StatusNotFound:
		title = "Not Found"
		message = err.Error()
	case http.StatusConflict:
		title = "Busy"
		message = err.Error()
	case http.StatusInternalServerError:
		h.Logger.Error("request failed", "error", err)
	default:
		title = "Query Service Error"
		message = domain.UserMessage(err)
	}
	renderHTML(w, status, errorPage(title, message))
}
