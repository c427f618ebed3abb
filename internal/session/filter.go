package session

import (
	"strings"

	"sqlspeak-console/internal/domain"
)

// ApplyFilters returns the entries of history matching filter, in their
// original order. Both criteria must hold. The input is never modified.
func ApplyFilters(history []domain.HistoryEntry, filter domain.HistoryFilter) []domain.HistoryEntry {
	status := filter.Status
	if status == "" {
		status = domain.StatusAll
	}
	timeContains := strings.TrimSpace(filter.TimeContains)

	out := make([]domain.HistoryEntry, 0, len(history))
	for _, e := range history {
		if status != domain.StatusAll && e.Status != string(status) {
			continue
		}
		if timeContains != "" && !strings.Contains(e.Timestamp, timeContains) {
			continue
		}
		out = append(out, e)
	}
	return out
}
