package explorer

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	studioerrors "github.com/arkilian/studio/internal/errors"
	"github.com/arkilian/studio/pkg/types"
)

// ColumnKind tells the rendering layer how to paint a column.
type ColumnKind string

const (
	KindText        ColumnKind = "text"
	KindBadge       ColumnKind = "badge"
	KindTagList     ColumnKind = "tag-list"
	KindNumeric     ColumnKind = "numeric"
	KindSignedRatio ColumnKind = "signed-ratio"
)

func (k ColumnKind) valid() bool {
	switch k {
	case KindText, KindBadge, KindTagList, KindNumeric, KindSignedRatio:
		return true
	}
	return false
}

// FilterKind declares how a filter's active value is matched against a row.
type FilterKind string

const (
	// FilterEquals keeps rows whose field equals the active value.
	FilterEquals FilterKind = "equals"
	// FilterContains keeps rows whose list-valued field contains the active value.
	FilterContains FilterKind = "contains"
)

// Column describes how one field is displayed and whether it sorts.
type Column struct {
	Key      string     `json:"key"`
	Label    string     `json:"label"`
	Kind     ColumnKind `json:"kind"`
	Sortable bool       `json:"sortable"`
}

// Option is one selectable value of a filter control.
type Option struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// Filter describes one single-select filter control.
type Filter struct {
	Key     string     `json:"key"`
	Label   string     `json:"label"`
	Kind    FilterKind `json:"kind"`
	Options []Option   `json:"options"`
}

// SchemaConfig is the raw, unvalidated schema declaration.
type SchemaConfig struct {
	// Fields is the set of permissible field names. Every column, filter and
	// search key must be one of them.
	Fields      []string
	Columns     []Column
	Filters     []Filter
	SearchField string
}

// Schema is a validated column/filter declaration. It is immutable.
type Schema struct {
	fields      map[string]struct{}
	columns     []Column
	filters     []Filter
	columnIdx   map[string]int
	filterIdx   map[string]int
	searchField string
}

// NewSchema validates cfg and returns the schema. Configuration mistakes
// surface here instead of as silently blank columns at render time.
func NewSchema(cfg SchemaConfig) (*Schema, error) {
	if len(cfg.Fields) == 0 {
		return nil, invalidSchema("no permissible fields declared")
	}

	s := &Schema{
		fields:    make(map[string]struct{}, len(cfg.Fields)),
		columnIdx: make(map[string]int, len(cfg.Columns)),
		filterIdx: make(map[string]int, len(cfg.Filters)),
	}
	for _, f := range cfg.Fields {
		if f == "" {
			return nil, invalidSchema("empty field name")
		}
		s.fields[f] = struct{}{}
	}

	if cfg.SearchField == "" {
		return nil, invalidSchema("search field is required")
	}
	if err := s.checkField("search field", cfg.SearchField); err != nil {
		return nil, err
	}
	s.searchField = cfg.SearchField

	for _, col := range cfg.Columns {
		if err := s.checkField("column", col.Key); err != nil {
			return nil, err
		}
		if col.Kind == "" {
			col.Kind = KindText
		}
		if !col.Kind.valid() {
			return nil, invalidSchema(fmt.Sprintf("column %s has unknown kind %q", col.Key, col.Kind))
		}
		if _, dup := s.columnIdx[col.Key]; dup {
			return nil, invalidSchema(fmt.Sprintf("duplicate column %s", col.Key))
		}
		s.columnIdx[col.Key] = len(s.columns)
		s.columns = append(s.columns, col)
	}

	for _, f := range cfg.Filters {
		if err := s.checkField("filter", f.Key); err != nil {
			return nil, err
		}
		if f.Kind == "" {
			f.Kind = FilterEquals
		}
		if f.Kind != FilterEquals && f.Kind != FilterContains {
			return nil, invalidSchema(fmt.Sprintf("filter %s has unknown kind %q", f.Key, f.Kind))
		}
		if _, dup := s.filterIdx[f.Key]; dup {
			return nil, invalidSchema(fmt.Sprintf("duplicate filter %s", f.Key))
		}
		if len(f.Options) == 0 {
			return nil, invalidSchema(fmt.Sprintf("filter %s has no options", f.Key))
		}
		seen := make(map[string]bool, len(f.Options))
		for _, opt := range f.Options {
			// "" is reserved for clearing the filter.
			if opt.Value == "" {
				return nil, invalidSchema(fmt.Sprintf("filter %s has an empty option value", f.Key))
			}
			if seen[opt.Value] {
				return nil, invalidSchema(fmt.Sprintf("filter %s repeats option %q", f.Key, opt.Value))
			}
			seen[opt.Value] = true
		}
		f.Options = append([]Option(nil), f.Options...)
		s.filterIdx[f.Key] = len(s.filters)
		s.filters = append(s.filters, f)
	}

	return s, nil
}

func (s *Schema) checkField(what, key string) error {
	if key == "" {
		return invalidSchema(what + " key is empty")
	}
	if _, ok := s.fields[key]; !ok {
		return studioerrors.NewValidationError(studioerrors.CodeUnknownField,
			fmt.Sprintf("%s references unknown field %q", what, key)).
			WithDetails(map[string]interface{}{"field": key})
	}
	return nil
}

func invalidSchema(msg string) error {
	return studioerrors.NewValidationError(studioerrors.CodeInvalidSchema, msg)
}

// SearchField returns the field searched by the free-text term.
func (s *Schema) SearchField() string { return s.searchField }

// Columns returns a copy of the declared columns in display order.
func (s *Schema) Columns() []Column {
	return append([]Column(nil), s.columns...)
}

// Filters returns a copy of the declared filters in display order.
func (s *Schema) Filters() []Filter {
	out := make([]Filter, len(s.filters))
	for i, f := range s.filters {
		f.Options = append([]Option(nil), f.Options...)
		out[i] = f
	}
	return out
}

// Column looks up a column by key.
func (s *Schema) Column(key string) (Column, bool) {
	i, ok := s.columnIdx[key]
	if !ok {
		return Column{}, false
	}
	return s.columns[i], true
}

// Filter looks up a filter by key.
func (s *Schema) Filter(key string) (Filter, bool) {
	i, ok := s.filterIdx[key]
	if !ok {
		return Filter{}, false
	}
	return s.filters[i], true
}

// IsSortable reports whether key names a sortable column.
func (s *Schema) IsSortable(key string) bool {
	col, ok := s.Column(key)
	return ok && col.Sortable
}

// ValidOption reports whether value is one of the filter's options.
func (s *Schema) ValidOption(key, value string) bool {
	f, ok := s.Filter(key)
	if !ok {
		return false
	}
	for _, opt := range f.Options {
		if opt.Value == value {
			return true
		}
	}
	return false
}

// FormatCell renders a row's value for a column. Missing or wrong-typed
// values render as "".
func (s *Schema) FormatCell(row types.Row, col Column) string {
	v, ok := row[col.Key]
	if !ok || v == nil {
		return ""
	}
	switch col.Kind {
	case KindTagList:
		list, ok := types.AsStrings(v)
		if !ok {
			return ""
		}
		return strings.Join(list, ", ")
	case KindNumeric:
		n, ok := types.AsNumber(v)
		if !ok {
			return ""
		}
		return strconv.FormatFloat(n, 'f', -1, 64)
	case KindSignedRatio:
		n, ok := types.AsNumber(v)
		if !ok || math.IsInf(n, 0) {
			return ""
		}
		pct := n * 100
		if pct > 0 {
			return "+" + strconv.FormatFloat(pct, 'f', 1, 64) + "%"
		}
		return strconv.FormatFloat(pct, 'f', 1, 64) + "%"
	default:
		if _, isList := types.AsStrings(v); isList {
			return ""
		}
		return types.Display(v)
	}
}
