// Package observability tracks how explorer views are used and how the fetch
// cache behaves.
package observability

import (
	"sort"
	"sync"
	"time"
)

// Usage kinds recorded by UsageStats.
const (
	UsageFilter = "filter"
	UsageSort   = "sort"
	UsageSearch = "search"
)

// UsageStats counts which fields users filter, sort and search on, per view.
type UsageStats struct {
	mu     sync.RWMutex
	fields map[string]*FieldStats
	window time.Duration
	now    func() time.Time
}

// FieldStats holds usage counters for one view field and kind.
type FieldStats struct {
	View      string         `json:"view"`
	Field     string         `json:"field"`
	Kind      string         `json:"kind"`
	Frequency int64          `json:"frequency"`
	LastSeen  time.Time      `json:"last_seen"`
	Values    map[string]int `json:"values,omitempty"` // filter value or sort direction → count
}

// NewUsageStats creates a tracker whose entries expire after window.
func NewUsageStats(window time.Duration) *UsageStats {
	return &UsageStats{
		fields: make(map[string]*FieldStats),
		window: window,
		now:    time.Now,
	}
}

// RecordFilter records a filter selection.
func (u *UsageStats) RecordFilter(view, field, value string) {
	u.record(view, field, UsageFilter, value)
}

// RecordSort records a sort request with its direction.
func (u *UsageStats) RecordSort(view, field, direction string) {
	u.record(view, field, UsageSort, direction)
}

// RecordSearch records a non-empty search on the view's search field.
func (u *UsageStats) RecordSearch(view, field string) {
	u.record(view, field, UsageSearch, "")
}

func (u *UsageStats) record(view, field, kind, value string) {
	u.mu.Lock()
	defer u.mu.Unlock()

	key := view + "\x00" + kind + "\x00" + field
	stats, exists := u.fields[key]
	if !exists {
		stats = &FieldStats{
			View:   view,
			Field:  field,
			Kind:   kind,
			Values: make(map[string]int),
		}
		u.fields[key] = stats
	}

	stats.Frequency++
	stats.LastSeen = u.now()
	if value != "" {
		stats.Values[value]++
	}
}

// Top returns up to n entries of the given kind ("" for all kinds), most
// frequent first. The result is a deep copy.
func (u *UsageStats) Top(kind string, n int) []FieldStats {
	u.mu.RLock()
	defer u.mu.RUnlock()

	if n <= 0 || len(u.fields) == 0 {
		return []FieldStats{}
	}

	stats := make([]FieldStats, 0, len(u.fields))
	for _, s := range u.fields {
		if kind != "" && s.Kind != kind {
			continue
		}
		c := *s
		c.Values = make(map[string]int, len(s.Values))
		for v, count := range s.Values {
			c.Values[v] = count
		}
		stats = append(stats, c)
	}

	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Frequency != stats[j].Frequency {
			return stats[i].Frequency > stats[j].Frequency
		}
		if stats[i].View != stats[j].View {
			return stats[i].View < stats[j].View
		}
		if stats[i].Field != stats[j].Field {
			return stats[i].Field < stats[j].Field
		}
		return stats[i].Kind < stats[j].Kind
	})

	if n > len(stats) {
		n = len(stats)
	}
	return stats[:n]
}

// Prune removes entries not seen within the window.
func (u *UsageStats) Prune() {
	u.mu.Lock()
	defer u.mu.Unlock()

	threshold := u.now().Add(-u.window)
	for key, stats := range u.fields {
		if stats.LastSeen.Before(threshold) {
			delete(u.fields, key)
		}
	}
}

// Len returns the number of tracked entries.
func (u *UsageStats) Len() int {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return len(u.fields)
}
