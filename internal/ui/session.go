package ui

import (
	"context"
	"net/http"

	"sqlspeak-console/internal/console"
)

const sessionCookieName = "sqlspeak_session"

type sessionContextKey struct{}

// WithSession attaches the visitor's console session to the request,
// starting a new one when the cookie is missing or the session expired.
func (h *Handler) WithSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var id string
		if c, err := r.Cookie(sessionCookieName); err == nil {
			id = c.Value
		}
		s, created := h.Sessions.GetOrCreate(id)
		if created {
			h.setSessionCookie(w, s.ID)
		}
		ctx := context.WithValue(r.Context(), sessionContextKey{}, s)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) setSessionCookie(w http.ResponseWriter, id string) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.Production,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.Production,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}

func sessionFromContext(ctx context.Context) *console.Session {
	s, _ := ctx.Value(sessionContextKey{}).(*console.Session)
	return s
}
