// Package session drives query runs of one console session and owns its
// SessionState.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"sqlspeak-console/internal/domain"
)

// Options configures a Controller.
type Options struct {
	// Timeout bounds one RunQuery, credential acquisition and history refresh
	// included. Zero waits as long as the caller's context allows.
	Timeout time.Duration
	Logger  *slog.Logger
}

// Controller is the only writer of its SessionState. It is safe for
// concurrent use; at most one RunQuery is in flight at a time.
type Controller struct {
	credentials domain.CredentialSource
	service     domain.QueryService
	timeout     time.Duration
	logger      *slog.Logger

	inflight *semaphore.Weighted

	mu    sync.RWMutex
	state domain.SessionState

	// refreshSeq orders history commits: a refresh started earlier never
	// overwrites the history of one started later.
	refreshSeq     uint64
	appliedRefresh uint64
}

// NewController creates a Controller with an empty state.
func NewController(credentials domain.CredentialSource, service domain.QueryService, opts Options) *Controller {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		credentials: credentials,
		service:     service,
		timeout:     opts.Timeout,
		logger:      logger.With("component", "session"),
		inflight:    semaphore.NewWeighted(1),
		state: domain.SessionState{
			History: []domain.HistoryEntry{},
			Filters: domain.HistoryFilter{Status: domain.StatusAll},
		},
	}
}

// RunQuery submits req and records the outcome in the session state. It
// returns ErrSubmissionInFlight, without touching the state, while another
// run is in flight. Every other failure ends up in State().Error. A redirect
// outcome means the user has to sign in before anything else can happen.
func (c *Controller) RunQuery(ctx context.Context, req domain.QueryRequest) (domain.Outcome[domain.SessionState], error) {
	if !c.inflight.TryAcquire(1) {
		return domain.Outcome[domain.SessionState]{}, domain.ErrSubmissionInFlight
	}
	defer c.inflight.Release(1)

	c.mu.Lock()
	c.state.Loading = true
	c.state.Error = ""
	c.state.LastResult = nil
	c.mu.Unlock()

	out := c.run(ctx, req)

	c.mu.Lock()
	c.state.Loading = false
	c.mu.Unlock()

	if _, redirecting := out.Redirecting(); redirecting {
		return domain.RedirectTo[domain.SessionState](out), nil
	}
	return domain.Completed(c.State()), nil
}

func (c *Controller) run(ctx context.Context, req domain.QueryRequest) domain.Outcome[struct{}] {
	runCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	if err := req.Validate(); err != nil {
		c.fail(ctx, err)
		return domain.Completed(struct{}{})
	}

	cred, err := c.credentials.EnsureCredential(runCtx)
	if err != nil {
		c.fail(ctx, err)
		return domain.Completed(struct{}{})
	}
	if _, redirecting := cred.Redirecting(); redirecting {
		return domain.RedirectTo[struct{}](cred)
	}

	start := time.Now()
	result, err := c.service.RunQuery(runCtx, cred.Value().Token, req)
	if err != nil {
		c.fail(ctx, err)
		return domain.Completed(struct{}{})
	}
	c.logger.Info("query completed",
		"data_source", req.DataSource,
		"profile", req.Profile,
		"status", result.Meta.Status,
		"rows", len(result.Rows),
		"duration", time.Since(start))

	c.mu.Lock()
	c.state.LastResult = result
	c.mu.Unlock()

	// History follows the committed result so it never overtakes it.
	history := c.RefreshHistory(runCtx)
	if _, redirecting := history.Redirecting(); redirecting {
		return domain.RedirectTo[struct{}](history)
	}
	return domain.Completed(struct{}{})
}

// fail records err as the outcome of the current run. ctx is the caller's
// context, used to tell a caller cancellation from the run timeout.
func (c *Controller) fail(ctx context.Context, err error) {
	msg := domain.UserMessage(err)
	switch {
	case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil && c.timeout > 0:
		msg = fmt.Sprintf("query timed out after %s", c.timeout)
	case errors.Is(err, context.Canceled):
		msg = "query canceled"
	}
	c.logger.Warn("query failed", "error", err)

	c.mu.Lock()
	c.state.LastResult = nil
	c.state.Error = msg
	c.mu.Unlock()
}

// RefreshHistory replaces the history with the service's list. It is best
// effort: failures are logged and leave the state untouched. The returned
// outcome carries the history as it stands afterwards.
func (c *Controller) RefreshHistory(ctx context.Context) domain.Outcome[[]domain.HistoryEntry] {
	c.mu.Lock()
	c.refreshSeq++
	seq := c.refreshSeq
	c.mu.Unlock()

	cred, err := c.credentials.EnsureCredential(ctx)
	if err != nil {
		c.logger.Warn("history refresh failed", "stage", "credential", "error", err)
		return domain.Completed(c.history())
	}
	if _, redirecting := cred.Redirecting(); redirecting {
		return domain.RedirectTo[[]domain.HistoryEntry](cred)
	}

	entries, err := c.service.History(ctx, cred.Value().Token)
	if err != nil {
		c.logger.Warn("history refresh failed", "stage", "fetch", "error", err)
		return domain.Completed(c.history())
	}

	c.mu.Lock()
	if seq > c.appliedRefresh {
		c.appliedRefresh = seq
		c.state.History = append([]domain.HistoryEntry{}, entries...)
	}
	c.mu.Unlock()
	return domain.Completed(c.history())
}

// SetFilters replaces the history filters.
func (c *Controller) SetFilters(filter domain.HistoryFilter) {
	if filter.Status == "" {
		filter.Status = domain.StatusAll
	}
	c.mu.Lock()
	c.state.Filters = filter
	c.mu.Unlock()
}

// VisibleHistory returns the history with the current filters applied.
func (c *Controller) VisibleHistory() []domain.HistoryEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return ApplyFilters(c.state.History, c.state.Filters)
}

// State returns a copy of the session state.
func (c *Controller) State() domain.SessionState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := c.state
	s.History = append([]domain.HistoryEntry{}, c.state.History...)
	if c.state.LastResult != nil {
		r := *c.state.LastResult
		r.Rows = append([]domain.Row(nil), c.state.LastResult.Rows...)
		s.LastResult = &r
	}
	return s
}

func (c *Controller) history() []domain.HistoryEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]domain.HistoryEntry{}, c.state.History...)
}
