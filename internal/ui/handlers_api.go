package ui

import (
	"encoding/json"
	"errors"
	"net/http"

	"sqlspeak-console/internal/domain"
	"sqlspeak-console/internal/identity"
)

type sessionResponse struct {
	State   domain.SessionState   `json:"state"`
	Visible []domain.HistoryEntry `json:"visible_history"`
	Account string                `json:"account,omitempty"`
	// CSRFToken is echoed in the X-CSRF-Token header of API posts.
	CSRFToken string `json:"csrf_token"`
}

type redirectResponse struct {
	RedirectURL string `json:"redirect_url"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

// APISession returns the session state as JSON.
func (h *Handler) APISession(w http.ResponseWriter, r *http.Request) {
	s := sessionFromContext(r.Context())
	renderJSON(w, http.StatusOK, h.sessionResponse(r, s.Controller.State(), s.Controller.VisibleHistory()))
}

// APIRunQuery runs a query from a JSON body. A required sign-in is reported
// as 401 with the URL the browser has to visit.
func (h *Handler) APIRunQuery(w http.ResponseWriter, r *http.Request) {
	var req domain.QueryRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		renderJSON(w, http.StatusBadRequest, errorResponse{Detail: "invalid JSON body"})
		return
	}

	s := sessionFromContext(r.Context())
	out, err := s.Controller.RunQuery(identity.WithReturnPath(r.Context(), "/"), req)
	if err != nil {
		status := statusForError(err)
		if errors.Is(err, domain.ErrSubmissionInFlight) {
			renderJSON(w, status, errorResponse{Detail: err.Error()})
			return
		}
		renderJSON(w, status, errorResponse{Detail: domain.UserMessage(err)})
		return
	}
	if target, ok := out.Redirecting(); ok {
		renderJSON(w, http.StatusUnauthorized, redirectResponse{RedirectURL: target.URL})
		return
	}
	renderJSON(w, http.StatusOK, h.sessionResponse(r, out.Value(), s.Controller.VisibleHistory()))
}

// APIRefreshHistory reloads the history and returns the session state.
func (h *Handler) APIRefreshHistory(w http.ResponseWriter, r *http.Request) {
	s := sessionFromContext(r.Context())
	out := s.Controller.RefreshHistory(identity.WithReturnPath(r.Context(), "/"))
	if target, ok := out.Redirecting(); ok {
		renderJSON(w, http.StatusUnauthorized, redirectResponse{RedirectURL: target.URL})
		return
	}
	renderJSON(w, http.StatusOK, h.sessionResponse(r, s.Controller.State(), s.Controller.VisibleHistory()))
}

// APISetFilters replaces the history filters from a JSON body.
func (h *Handler) APISetFilters(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Status       string `json:"status"`
		TimeContains string `json:"time_contains"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&body); err != nil {
		renderJSON(w, http.StatusBadRequest, errorResponse{Detail: "invalid JSON body"})
		return
	}
	s := sessionFromContext(r.Context())
	s.Controller.SetFilters(domain.HistoryFilter{
		Status:       domain.ParseStatusFilter(body.Status),
		TimeContains: body.TimeContains,
	})
	renderJSON(w, http.StatusOK, h.sessionResponse(r, s.Controller.State(), s.Controller.VisibleHistory()))
}

func (h *Handler) sessionResponse(r *http.Request, state domain.SessionState, visible []domain.HistoryEntry) sessionResponse {
	resp := sessionResponse{State: state, Visible: visible, CSRFToken: csrfToken(r)}
	if resp.Visible == nil {
		resp.Visible = []domain.HistoryEntry{}
	}
	if s := sessionFromContext(r.Context()); s != nil {
		if account, ok := s.Account(r.Context()); ok {
			resp.Account = account.Label()
		}
	}
	return resp
}
