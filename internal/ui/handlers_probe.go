package ui

import (
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/sync/errgroup"

	"sqlspeak-console/internal/domain"
	"sqlspeak-console/internal/identity"
)

// Identity shows what the query service knows about the signed-in user,
// next to a count of their past queries.
func (h *Handler) Identity(w http.ResponseWriter, r *http.Request) {
	s := sessionFromContext(r.Context())
	cred, ok := h.credential(w, r, "/me")
	if !ok {
		return
	}

	svc := h.Sessions.Service()
	var (
		principal *domain.Principal
		history   []domain.HistoryEntry
	)
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		var err error
		principal, err = svc.Me(ctx, cred.Token)
		return err
	})
	g.Go(func() error {
		var err error
		history, err = svc.History(ctx, cred.Token)
		return err
	})
	if err := g.Wait(); err != nil {
		h.renderServiceError(w, err)
		return
	}

	renderHTML(w, http.StatusOK, identityPage(h.chrome(r, s, "Identity", "me"), cred.Account, principal, history))
}

// Schema shows the tables of one data source.
func (h *Handler) Schema(w http.ResponseWriter, r *http.Request) {
	s := sessionFromContext(r.Context())
	dataSource := strings.TrimSpace(r.URL.Query().Get("data_source"))
	if dataSource == "" {
		dataSource = h.defaultRequest().DataSource
	}

	cred, ok := h.credential(w, r, "/schema?data_source="+url.QueryEscape(dataSource))
	if !ok {
		return
	}
	snapshot, err := h.Sessions.Service().Schema(r.Context(), cred.Token, dataSource)
	if err != nil {
		h.renderServiceError(w, err)
		return
	}
	renderHTML(w, http.StatusOK, schemaPage(h.chrome(r, s, "Schema", "schema"), h.DataSources, snapshot))
}

// credential resolves a token for the session or answers the request with
// a sign-in redirect or an error page. ok is false when the response has
// already been written.
func (h *Handler) credential(w http.ResponseWriter, r *http.Request, returnTo string) (domain.Credential, bool) {
	s := sessionFromContext(r.Context())
	out, err := s.Provider.EnsureCredential(identity.WithReturnPath(r.Context(), returnTo))
	if err != nil {
		h.renderServiceError(w, err)
		return domain.Credential{}, false
	}
	if target, redirecting := out.Redirecting(); redirecting {
		http.Redirect(w, r, target.URL, http.StatusFound)
		return domain.Credential{}, false
	}
	return out.Value(), true
}
