package session

import (
	"fmt"
	"time"
)

// Handle identifies one live assistant conversation thread.
type Handle struct {
	ID        string
	Purpose   string
	CreatedAt time.Time
	Retention time.Duration
}

// Expired reports whether the thread has outlived its retention at the given
// instant. A zero retention never expires.
func (h Handle) Expired(now time.Time) bool {
	if h.Retention <= 0 {
		return false
	}
	return now.Sub(h.CreatedAt) >= h.Retention
}

// SummaryKey builds the guard key for a summary work window.
func SummaryKey(start, end time.Time) string {
	return fmt.Sprintf("summary:%s-%s", start.Format("20060102"), end.Format("20060102"))
}
