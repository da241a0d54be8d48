// Package views builds the named explorer views declared in configuration.
// A view pairs one fetch batch with a validated explorer schema for each of
// the batch's collections.
package views

import (
	"fmt"
	"sort"

	"github.com/arkilian/studio/internal/config"
	studioerrors "github.com/arkilian/studio/internal/errors"
	"github.com/arkilian/studio/internal/explorer"
	"github.com/arkilian/studio/internal/fetch"
	"github.com/arkilian/studio/pkg/types"
)

// View is one named explorer view.
type View struct {
	Name     string
	PageSize int
	Batch    fetch.Batch

	schemas map[string]*explorer.Schema
}

// New builds a view, validating its batch and every collection schema.
func New(cfg config.ViewConfig) (*View, error) {
	if cfg.Name == "" {
		return nil, studioerrors.NewConfigError(studioerrors.CodeInvalidConfig, "view name is required")
	}

	v := &View{
		Name:     cfg.Name,
		PageSize: cfg.PageSize,
		Batch:    fetch.Batch{Name: cfg.Name},
		schemas:  make(map[string]*explorer.Schema, len(cfg.Collections)),
	}
	if v.PageSize <= 0 {
		v.PageSize = explorer.DefaultPageSize
	}

	for _, c := range cfg.Collections {
		v.Batch.Reads = append(v.Batch.Reads, fetch.ReadDescriptor{
			Collection: c.Name,
			Table:      c.Table,
			Fields:     c.Fields,
			ListFields: c.ListFields,
			Limit:      c.Limit,
		})
	}
	if err := v.Batch.Validate(); err != nil {
		return nil, studioerrors.Wrap(studioerrors.ErrCategoryConfig, studioerrors.CodeInvalidConfig,
			fmt.Sprintf("view %q", cfg.Name), err)
	}

	for _, c := range cfg.Collections {
		schema, err := explorer.NewSchema(schemaConfig(c))
		if err != nil {
			return nil, studioerrors.Wrap(studioerrors.ErrCategoryConfig, studioerrors.CodeInvalidConfig,
				fmt.Sprintf("view %q collection %q", cfg.Name, c.Name), err)
		}
		v.schemas[c.Name] = schema
	}
	return v, nil
}

// schemaConfig converts a collection declaration. Without declared fields,
// the permissible set is every key the declaration itself mentions.
func schemaConfig(c config.CollectionConfig) explorer.SchemaConfig {
	sc := explorer.SchemaConfig{SearchField: c.SearchField}
	for _, col := range c.Columns {
		sc.Columns = append(sc.Columns, explorer.Column{
			Key:      col.Key,
			Label:    col.Label,
			Kind:     explorer.ColumnKind(col.Kind),
			Sortable: col.Sortable,
		})
	}
	for _, f := range c.Filters {
		filter := explorer.Filter{Key: f.Key, Label: f.Label, Kind: explorer.FilterKind(f.Kind)}
		for _, o := range f.Options {
			filter.Options = append(filter.Options, explorer.Option{Label: o.Label, Value: o.Value})
		}
		sc.Filters = append(sc.Filters, filter)
	}

	if len(c.Fields) > 0 {
		sc.Fields = c.Fields
		return sc
	}
	seen := make(map[string]bool)
	add := func(k string) {
		if k != "" && !seen[k] {
			seen[k] = true
			sc.Fields = append(sc.Fields, k)
		}
	}
	add(c.SearchField)
	for _, col := range c.Columns {
		add(col.Key)
	}
	for _, f := range c.Filters {
		add(f.Key)
	}
	return sc
}

// Collections returns the view's collection names in declaration order.
func (v *View) Collections() []string {
	return v.Batch.Collections()
}

// Schema returns the schema of a collection.
func (v *View) Schema(collection string) (*explorer.Schema, bool) {
	s, ok := v.schemas[collection]
	return s, ok
}

// Engine returns a fresh explorer engine over a collection's rows.
func (v *View) Engine(collection string, rows []types.Row) (*explorer.Engine, error) {
	schema, ok := v.schemas[collection]
	if !ok {
		return nil, studioerrors.Wrap(studioerrors.ErrCategoryConfig, studioerrors.CodeUnknownView,
			fmt.Sprintf("view %q has no collection %q", v.Name, collection), nil)
	}
	return explorer.New(rows, schema, v.PageSize), nil
}

// Query is the explorer state requested for one collection of a view.
type Query struct {
	Search     string
	Sort       string
	Descending bool
	// Filters maps filter key to the selected option value; "" clears.
	Filters map[string]string
	Page    int
}

// Validate checks q against the collection's schema: the sort key must be a
// sortable column, and every filter must exist with a declared option value.
func (v *View) Validate(collection string, q Query) error {
	schema, ok := v.schemas[collection]
	if !ok {
		return studioerrors.Wrap(studioerrors.ErrCategoryConfig, studioerrors.CodeUnknownView,
			fmt.Sprintf("view %q has no collection %q", v.Name, collection), nil)
	}
	if q.Sort == "" && q.Descending {
		return invalidQuery("descending order requires a sort key")
	}
	if q.Sort != "" && !schema.IsSortable(q.Sort) {
		return invalidQuery(fmt.Sprintf("column %q is not sortable", q.Sort))
	}
	for key, value := range q.Filters {
		if _, known := schema.Filter(key); !known {
			return invalidQuery(fmt.Sprintf("unknown filter %q", key))
		}
		if value != "" && !schema.ValidOption(key, value) {
			return invalidQuery(fmt.Sprintf("invalid option %q for filter %q", value, key))
		}
	}
	return nil
}

// Explore validates q and returns an engine over rows with q applied.
func (v *View) Explore(collection string, rows []types.Row, q Query) (*explorer.Engine, error) {
	if err := v.Validate(collection, q); err != nil {
		return nil, err
	}
	e, err := v.Engine(collection, rows)
	if err != nil {
		return nil, err
	}
	if q.Search != "" {
		e.SetSearchTerm(q.Search)
	}
	if q.Sort != "" {
		e.SetSort(q.Sort)
		if q.Descending {
			e.SetSort(q.Sort)
		}
	}
	for key, value := range q.Filters {
		e.SetFilter(key, value)
	}
	if q.Page > 0 {
		e.SetPage(q.Page)
	}
	return e, nil
}

func invalidQuery(msg string) error {
	return studioerrors.NewValidationError(studioerrors.CodeInvalidQuery, msg)
}

// Registry holds the configured views by name.
type Registry struct {
	views map[string]*View
}

// NewRegistry builds every view; view names must be unique.
func NewRegistry(cfgs []config.ViewConfig) (*Registry, error) {
	r := &Registry{views: make(map[string]*View, len(cfgs))}
	for _, cfg := range cfgs {
		if _, dup := r.views[cfg.Name]; dup {
			return nil, studioerrors.NewConfigError(studioerrors.CodeInvalidConfig,
				fmt.Sprintf("duplicate view %q", cfg.Name))
		}
		v, err := New(cfg)
		if err != nil {
			return nil, err
		}
		r.views[cfg.Name] = v
	}
	return r, nil
}

// Get returns the named view.
func (r *Registry) Get(name string) (*View, error) {
	v, ok := r.views[name]
	if !ok {
		return nil, studioerrors.Wrap(studioerrors.ErrCategoryConfig, studioerrors.CodeUnknownView,
			fmt.Sprintf("unknown view %q", name), nil)
	}
	return v, nil
}

// Names returns the view names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.views))
	for name := range r.views {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
