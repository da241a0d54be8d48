// Package explorer derives the filtered, sorted and paginated view of a row
// collection for a tabular explorer screen.
//
// An Engine owns the view state (search term, sort, active filters, page) and
// recomputes the view model from scratch on every ViewModel call. It performs
// no I/O and is not safe for concurrent use; each screen owns its engine.
package explorer

import (
	"sort"
	"strconv"
	"strings"

	"github.com/arkilian/studio/pkg/types"
)

// DefaultPageSize is used when an engine is built with a non-positive page size.
const DefaultPageSize = 10

// Direction is the sort direction.
type Direction string

const (
	Ascending  Direction = "asc"
	Descending Direction = "desc"
)

// ViewModel is everything a rendering layer needs to paint the table, pager
// and filter controls.
type ViewModel struct {
	VisibleRows   []types.Row       `json:"visible_rows"`
	CurrentPage   int               `json:"current_page"`
	TotalPages    int               `json:"total_pages"`
	TotalCount    int               `json:"total_count"`
	PageSize      int               `json:"page_size"`
	SortKey       string            `json:"sort_key,omitempty"`
	SortDirection Direction         `json:"sort_direction"`
	SearchTerm    string            `json:"search_term"`
	ActiveFilters map[string]string `json:"active_filters"`
}

// Engine holds view state over an immutable row collection.
type Engine struct {
	rows     []types.Row
	schema   *Schema
	pageSize int
	cmp      *comparator

	searchTerm    string
	sortKey       string
	sortDirection Direction
	activeFilters map[string]string
	currentPage   int
}

// New creates an engine in the initial state: no search, no sort, no filters,
// page 1.
func New(rows []types.Row, schema *Schema, pageSize int) *Engine {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Engine{
		rows:          rows,
		schema:        schema,
		pageSize:      pageSize,
		cmp:           newComparator(),
		sortDirection: Ascending,
		activeFilters: make(map[string]string),
		currentPage:   1,
	}
}

// Schema returns the schema the engine interprets rows with.
func (e *Engine) Schema() *Schema { return e.schema }

// SetRows swaps in a freshly loaded row collection. View state is kept;
// the page is clamped when the view model is read.
func (e *Engine) SetRows(rows []types.Row) {
	e.rows = rows
}

// SetSearchTerm replaces the search term and returns to the first page.
func (e *Engine) SetSearchTerm(term string) {
	e.searchTerm = term
	e.currentPage = 1
}

// SetSort sorts by key ascending, or flips the direction when key is already
// the sort key. Sortability is the caller's responsibility.
func (e *Engine) SetSort(key string) {
	if key == e.sortKey {
		if e.sortDirection == Ascending {
			e.sortDirection = Descending
		} else {
			e.sortDirection = Ascending
		}
	} else {
		e.sortKey = key
		e.sortDirection = Ascending
	}
	e.currentPage = 1
}

// SetFilter sets the single active value for a filter key; "" clears it.
func (e *Engine) SetFilter(key, value string) {
	if value == "" {
		delete(e.activeFilters, key)
	} else {
		e.activeFilters[key] = value
	}
	e.currentPage = 1
}

// SetPage moves to page n, clamped into [1, totalPages].
func (e *Engine) SetPage(n int) {
	e.currentPage = clampPage(n, totalPages(len(e.filtered()), e.pageSize))
}

// ViewModel derives the visible page from the rows and the current state.
// It does not mutate the engine; two calls without an intervening mutation
// return equal results.
func (e *Engine) ViewModel() ViewModel {
	rows := e.filtered()
	e.sortRows(rows)

	total := len(rows)
	pages := totalPages(total, e.pageSize)
	page := clampPage(e.currentPage, pages)

	start := (page - 1) * e.pageSize
	end := start + e.pageSize
	if start > total {
		start = total
	}
	if end > total {
		end = total
	}

	visible := make([]types.Row, end-start)
	copy(visible, rows[start:end])

	filters := make(map[string]string, len(e.activeFilters))
	for k, v := range e.activeFilters {
		filters[k] = v
	}

	return ViewModel{
		VisibleRows:   visible,
		CurrentPage:   page,
		TotalPages:    pages,
		TotalCount:    total,
		PageSize:      e.pageSize,
		SortKey:       e.sortKey,
		SortDirection: e.sortDirection,
		SearchTerm:    e.searchTerm,
		ActiveFilters: filters,
	}
}

// filtered returns a new slice with the rows passing search and filters.
func (e *Engine) filtered() []types.Row {
	term := strings.ToLower(e.searchTerm)
	out := make([]types.Row, 0, len(e.rows))
	for _, row := range e.rows {
		if term != "" && !e.matchesSearch(row, term) {
			continue
		}
		if !e.matchesFilters(row) {
			continue
		}
		out = append(out, row)
	}
	return out
}

func (e *Engine) matchesSearch(row types.Row, term string) bool {
	field := ""
	if e.schema != nil {
		field = e.schema.SearchField()
	}
	s, ok := row.String(field)
	if !ok {
		return false
	}
	return strings.Contains(strings.ToLower(s), term)
}

func (e *Engine) matchesFilters(row types.Row) bool {
	for key, value := range e.activeFilters {
		kind := FilterEquals
		if e.schema != nil {
			if f, ok := e.schema.Filter(key); ok {
				kind = f.Kind
			}
		}
		if kind == FilterContains {
			if !listContains(row[key], value) {
				return false
			}
			continue
		}
		if !scalarEquals(row[key], value) {
			return false
		}
	}
	return true
}

func listContains(v any, value string) bool {
	list, ok := types.AsStrings(v)
	if !ok {
		return false
	}
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}

// scalarEquals compares a scalar row value with a filter option value using
// the value's canonical text form. Lists, nil and missing fields never match.
func scalarEquals(v any, value string) bool {
	switch val := v.(type) {
	case string:
		return val == value
	case bool:
		return strconv.FormatBool(val) == value
	}
	if n, ok := types.AsNumber(v); ok {
		return strconv.FormatFloat(n, 'f', -1, 64) == value
	}
	return false
}

// sortRows stable-sorts rows in place by the sort key. Descending negates the
// comparator so equal keys keep their original order in both directions.
func (e *Engine) sortRows(rows []types.Row) {
	if e.sortKey == "" {
		return
	}
	key := e.sortKey
	desc := e.sortDirection == Descending
	sort.SliceStable(rows, func(i, j int) bool {
		c := e.cmp.compare(rows[i][key], rows[j][key])
		if desc {
			return c > 0
		}
		return c < 0
	})
}

func totalPages(count, pageSize int) int {
	pages := (count + pageSize - 1) / pageSize
	if pages < 1 {
		return 1
	}
	return pages
}

func clampPage(n, pages int) int {
	if n > pages {
		n = pages
	}
	if n < 1 {
		n = 1
	}
	return n
}
