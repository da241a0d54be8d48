package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/arkilian/studio/internal/app"
	"github.com/arkilian/studio/internal/explorer"
	"github.com/arkilian/studio/internal/fetch"
	"github.com/arkilian/studio/internal/views"
)

func newBrowseCmd(opts *globalOptions) *cobra.Command {
	var (
		search  string
		sortArg string
		filters []string
		page    int
		refresh bool
	)

	cmd := &cobra.Command{
		Use:   "browse <view> <collection>",
		Short: "Print one page of a view's collection as a table",
		Example: `  studio browse catalog courses --search go --sort name:desc
  studio browse catalog courses --filter status=open --page 2`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := parseBrowseQuery(search, sortArg, filters, page)
			if err != nil {
				return err
			}

			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			a, err := app.New(cfg, opts.log())
			if err != nil {
				return err
			}
			if err := a.Open(cmd.Context()); err != nil {
				return err
			}
			defer a.Close()

			viewName, collection := args[0], args[1]
			v, err := a.Registry().Get(viewName)
			if err != nil {
				return err
			}
			if err := v.Validate(collection, q); err != nil {
				return err
			}

			_, payload, loadErr := a.Load(cmd.Context(), viewName, refresh)
			engine, err := v.Explore(collection, payload.Rows(collection), q)
			if err != nil {
				return err
			}
			renderTable(cmd.OutOrStdout(), engine.Schema(), engine.ViewModel())
			renderStatus(cmd.ErrOrStderr(), payload, a.Orchestrator().TTL())
			return loadErr
		},
	}

	f := cmd.Flags()
	f.StringVarP(&search, "search", "s", "", "case-insensitive substring search on the search field")
	f.StringVar(&sortArg, "sort", "", "sort column, optionally suffixed with :desc")
	f.StringArrayVarP(&filters, "filter", "f", nil, "filter as key=value (repeatable)")
	f.IntVarP(&page, "page", "p", 1, "page number (clamped into range)")
	f.BoolVar(&refresh, "refresh", false, "bypass the cache")
	return cmd
}

// parseBrowseQuery turns browse flags into a view query.
func parseBrowseQuery(search, sortArg string, filters []string, page int) (views.Query, error) {
	q := views.Query{Search: search, Page: page}

	if sortArg != "" {
		key, dir, hasDir := strings.Cut(sortArg, ":")
		q.Sort = key
		if hasDir {
			switch explorer.Direction(dir) {
			case explorer.Ascending:
			case explorer.Descending:
				q.Descending = true
			default:
				return q, fmt.Errorf("invalid sort direction %q (must be asc or desc)", dir)
			}
		}
	}

	if len(filters) > 0 {
		q.Filters = make(map[string]string, len(filters))
		for _, f := range filters {
			key, value, ok := strings.Cut(f, "=")
			if !ok || key == "" {
				return q, fmt.Errorf("invalid filter %q (want key=value)", f)
			}
			if _, dup := q.Filters[key]; dup {
				return q, fmt.Errorf("filter %q given more than once", key)
			}
			q.Filters[key] = value
		}
	}
	return q, nil
}

// renderTable writes the visible page with column labels as headers.
func renderTable(w io.Writer, schema *explorer.Schema, vm explorer.ViewModel) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	cols := schema.Columns()

	labels := make([]string, len(cols))
	for i, c := range cols {
		labels[i] = strings.ToUpper(c.Label)
	}
	fmt.Fprintln(tw, strings.Join(labels, "\t"))

	for _, row := range vm.VisibleRows {
		cells := make([]string, len(cols))
		for i, c := range cols {
			cells[i] = schema.FormatCell(row, c)
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	tw.Flush()

	fmt.Fprintf(w, "\npage %d/%d, %d rows", vm.CurrentPage, vm.TotalPages, vm.TotalCount)
	if vm.SortKey != "" {
		fmt.Fprintf(w, ", sorted by %s %s", vm.SortKey, vm.SortDirection)
	}
	if len(vm.ActiveFilters) > 0 {
		keys := make([]string, 0, len(vm.ActiveFilters))
		for k := range vm.ActiveFilters {
			keys = append(keys, k+"="+vm.ActiveFilters[k])
		}
		sort.Strings(keys)
		fmt.Fprintf(w, ", filters %s", strings.Join(keys, " "))
	}
	fmt.Fprintln(w)
}

// renderStatus reports cache freshness and failed reads.
func renderStatus(w io.Writer, p *fetch.Payload, ttl time.Duration) {
	switch {
	case p.Cached:
		fmt.Fprintf(w, "cached (fetched %s, ttl %s)\n", p.FetchedAt.Format(time.RFC3339), ttl)
	case !p.FetchedAt.IsZero():
		fmt.Fprintf(w, "fetched %s\n", p.FetchedAt.Format(time.RFC3339))
	}
	failed := make([]string, 0, len(p.PartialErrors))
	for c := range p.PartialErrors {
		failed = append(failed, c)
	}
	sort.Strings(failed)
	for _, c := range failed {
		fmt.Fprintf(w, "read of %s failed: %v\n", c, p.PartialErrors[c])
	}
}
