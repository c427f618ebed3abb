package domain

import "strings"

// HistoryEntry is one past submission as recorded by the query service.
type HistoryEntry struct {
	Timestamp            string `json:"timestamp"`
	DataSource           string `json:"data_source"`
	Profile              string `json:"profile"`
	NaturalLanguageQuery string `json:"nl_query"`
	GeneratedSQL         string `json:"sql"`
	Status               string `json:"status"`
	RowCount             int64  `json:"row_count"`
}

// StatusFilter selects history entries by outcome.
type StatusFilter string

const (
	StatusAll     StatusFilter = "all"
	StatusSuccess StatusFilter = "success"
	StatusError   StatusFilter = "error"
)

// ParseStatusFilter maps user input to a StatusFilter. Anything unknown
// selects every entry.
func ParseStatusFilter(s string) StatusFilter {
	switch StatusFilter(strings.ToLower(strings.TrimSpace(s))) {
	case StatusSuccess:
		return StatusSuccess
	case StatusError:
		return StatusError
	default:
		return StatusAll
	}
}

// HistoryFilter holds the client-side filters applied to the history view.
type HistoryFilter struct {
	Status       StatusFilter `json:"status"`
	TimeContains string       `json:"time_contains"`
}

// SessionState is the view of one console session.
type SessionState struct {
	Loading    bool           `json:"loading"`
	Error      string         `json:"error,omitempty"`
	LastResult *QueryResult   `json:"last_result,omitempty"`
	History    []HistoryEntry `json:"history"`
	Filters    HistoryFilter  `json:"filters"`
}
