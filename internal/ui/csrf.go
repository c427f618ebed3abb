package ui

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"net/http"
	"strings"

	gomponents "maragu.dev/gomponents"
	html "maragu.dev/gomponents/html"
)

const (
	csrfCookieName = "sqlspeak_csrf"
	csrfHeaderName = "X-CSRF-Token"
	csrfFieldName  = "csrf_token"
)

type csrfContextKey struct{}

// EnsureCSRFToken issues the double-submit token cookie on first visit and
// makes the token available to pages and JSON responses of this request.
func (h *Handler) EnsureCSRFToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := readCSRFCookie(r)
		if token == "" {
			token = randomToken(32)
			http.SetCookie(w, &http.Cookie{
				Name:     csrfCookieName,
				Value:    token,
				Path:     "/",
				HttpOnly: true,
				Secure:   h.Production,
				SameSite: http.SameSiteLaxMode,
			})
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), csrfContextKey{}, token)))
	})
}

// RequireCSRF guards console form posts. The token comes from the hidden
// form field or the X-CSRF-Token header; a mismatch renders an error page.
func (h *Handler) RequireCSRF(next http.Handler) http.Handler {
	return csrfGuard(next, func(r *http.Request) string {
		if v := strings.TrimSpace(r.Header.Get(csrfHeaderName)); v != "" {
			return v
		}
		_ = r.ParseForm()
		return strings.TrimSpace(r.Form.Get(csrfFieldName))
	}, func(w http.ResponseWriter, detail string) {
		renderHTML(w, http.StatusForbidden, errorPage("Request Rejected", detail+" Reload the console and try again."))
	})
}

// RequireAPICSRF guards JSON API posts. Clients read the token from the
// csrf_token field of GET /api/session and echo it in X-CSRF-Token; the
// body is never parsed here.
func (h *Handler) RequireAPICSRF(next http.Handler) http.Handler {
	return csrfGuard(next, func(r *http.Request) string {
		return strings.TrimSpace(r.Header.Get(csrfHeaderName))
	}, func(w http.ResponseWriter, detail string) {
		renderJSON(w, http.StatusForbidden, errorResponse{Detail: detail + " Fetch /api/session for a fresh token."})
	})
}

func csrfGuard(next http.Handler, submitted func(*http.Request) string, reject func(http.ResponseWriter, string)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next.ServeHTTP(w, r)
			return
		}

		cookieToken := readCSRFCookie(r)
		if cookieToken == "" {
			reject(w, "Missing CSRF token cookie.")
			return
		}
		if subtle.ConstantTimeCompare([]byte(cookieToken), []byte(submitted(r))) != 1 {
			reject(w, "Invalid or missing CSRF token.")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// csrfToken is the token issued for this request, cookie value as fallback.
func csrfToken(r *http.Request) string {
	if token, _ := r.Context().Value(csrfContextKey{}).(string); token != "" {
		return token
	}
	return readCSRFCookie(r)
}

func csrfField(r *http.Request) gomponents.Node {
	return html.Input(html.Type("hidden"), html.Name(csrfFieldName), html.Value(csrfToken(r)))
}

func readCSRFCookie(r *http.Request) string {
	cookie, err := r.Cookie(csrfCookieName)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(cookie.Value)
}

func randomToken(size int) string {
	if size < 16 {
		size = 16
	}
	b := make([]byte, size)
	_, _ = rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}
