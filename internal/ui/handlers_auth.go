package ui

import (
	"net/http"
	"strings"

	"sqlspeak-console/internal/identity"
)

// SignIn starts an interactive sign-in, or goes straight back to the
// console when the session already holds a usable token.
func (h *Handler) SignIn(w http.ResponseWriter, r *http.Request) {
	s := sessionFromContext(r.Context())
	out, err := s.Provider.EnsureCredential(identity.WithReturnPath(r.Context(), "/"))
	if err != nil {
		h.Logger.Warn("sign-in could not start", "error", err)
		renderHTML(w, http.StatusBadGateway, errorPage("Sign-in Unavailable", "The identity provider cannot be reached right now."))
		return
	}
	if target, ok := out.Redirecting(); ok {
		http.Redirect(w, r, target.URL, http.StatusFound)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// AuthCallback completes a sign-in when the identity provider redirects back.
func (h *Handler) AuthCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if providerErr := q.Get("error"); providerErr != "" {
		msg := providerErr
		if desc := strings.TrimSpace(q.Get("error_description")); desc != "" {
			msg += ": " + desc
		}
		renderHTML(w, http.StatusUnauthorized, errorPage("Sign-in Failed", msg))
		return
	}

	s := sessionFromContext(r.Context())
	signIn, err := h.Sessions.CompleteSignIn(r.Context(), s, q.Get("state"), q.Get("code"))
	if err != nil {
		h.Logger.Warn("sign-in callback rejected", "error", err)
		status := statusForError(err)
		renderHTML(w, status, errorPage("Sign-in Failed", err.Error()))
		return
	}
	http.Redirect(w, r, safeReturnPath(signIn.ReturnTo), http.StatusFound)
}

// Logout drops the session with its cached accounts.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if s := sessionFromContext(r.Context()); s != nil {
		h.Sessions.Close(s.ID)
	}
	h.clearSessionCookie(w)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// safeReturnPath keeps post sign-in navigation on this host.
func safeReturnPath(p string) string {
	if !strings.HasPrefix(p, "/") || strings.HasPrefix(p, "//") {
		return "/"
	}
	return p
}
