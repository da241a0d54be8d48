package explorer

import (
	"fmt"
	"reflect"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/arkilian/studio/pkg/types"
)

var (
	propertyTerms    = []string{"", "1", "item-2", "ITEM", "zz"}
	propertyStatuses = []string{"", "draft", "published"}
	propertySortKeys = []string{"", "name", "score", "status"}
)

// buildRows turns generated integers into rows with duplicate-prone keys so
// ties are common.
func buildRows(values []int) []types.Row {
	rows := make([]types.Row, len(values))
	for i, v := range values {
		status := "draft"
		if v%2 == 0 {
			status = "published"
		}
		row := types.Row{
			"id":     i,
			"name":   fmt.Sprintf("item-%d", v),
			"score":  v % 7,
			"status": status,
		}
		if v%11 == 0 {
			delete(row, "name")
		}
		rows[i] = row
	}
	return rows
}

func propertySchema() *Schema {
	s, err := NewSchema(SchemaConfig{
		Fields: []string{"id", "name", "score", "status"},
		Columns: []Column{
			{Key: "name", Kind: KindText, Sortable: true},
			{Key: "score", Kind: KindNumeric, Sortable: true},
			{Key: "status", Kind: KindBadge, Sortable: true},
		},
		Filters: []Filter{{Key: "status", Kind: FilterEquals, Options: []Option{
			{Label: "Draft", Value: "draft"}, {Label: "Published", Value: "published"},
		}}},
		SearchField: "name",
	})
	if err != nil {
		panic(err)
	}
	return s
}

func stateEngine(values []int, pageSize, term, status, sortKey int) *Engine {
	e := New(buildRows(values), propertySchema(), pageSize)
	e.SetSearchTerm(propertyTerms[term])
	e.SetFilter("status", propertyStatuses[status])
	if k := propertySortKeys[sortKey]; k != "" {
		e.SetSort(k)
	}
	return e
}

// TestProperty_Pagination validates that for any state the current page stays
// within [1, max(1, totalPages)] and a page never exceeds the page size.
func TestProperty_Pagination(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("current page and visible rows stay within bounds", prop.ForAll(
		func(values []int, pageSize, term, status, sortKey, page int) bool {
			e := stateEngine(values, pageSize, term, status, sortKey)
			e.SetPage(page)
			vm := e.ViewModel()

			wantPages := (vm.TotalCount + vm.PageSize - 1) / vm.PageSize
			if wantPages < 1 {
				wantPages = 1
			}
			return vm.CurrentPage >= 1 &&
				vm.CurrentPage <= vm.TotalPages &&
				vm.TotalPages == wantPages &&
				len(vm.VisibleRows) <= vm.PageSize
		},
		gen.SliceOf(gen.IntRange(0, 60)),
		gen.IntRange(-2, 15),
		gen.IntRange(0, len(propertyTerms)-1),
		gen.IntRange(0, len(propertyStatuses)-1),
		gen.IntRange(0, len(propertySortKeys)-1),
		gen.IntRange(-5, 20),
	))

	properties.Property("pages partition the filtered rows", prop.ForAll(
		func(values []int, pageSize, term, status, sortKey int) bool {
			e := stateEngine(values, pageSize, term, status, sortKey)
			total := e.ViewModel().TotalCount
			pages := e.ViewModel().TotalPages

			seen := 0
			for p := 1; p <= pages; p++ {
				e.SetPage(p)
				seen += len(e.ViewModel().VisibleRows)
			}
			return seen == total
		},
		gen.SliceOf(gen.IntRange(0, 60)),
		gen.IntRange(1, 15),
		gen.IntRange(0, len(propertyTerms)-1),
		gen.IntRange(0, len(propertyStatuses)-1),
		gen.IntRange(0, len(propertySortKeys)-1),
	))

	properties.TestingRun(t)
}

// TestProperty_Idempotence validates that reading the view model twice without
// a mutation yields identical output.
func TestProperty_Idempotence(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("ViewModel is a pure function of rows, schema and state", prop.ForAll(
		func(values []int, pageSize, term, status, sortKey, page int) bool {
			e := stateEngine(values, pageSize, term, status, sortKey)
			e.SetPage(page)
			return reflect.DeepEqual(e.ViewModel(), e.ViewModel())
		},
		gen.SliceOf(gen.IntRange(0, 60)),
		gen.IntRange(1, 15),
		gen.IntRange(0, len(propertyTerms)-1),
		gen.IntRange(0, len(propertyStatuses)-1),
		gen.IntRange(0, len(propertySortKeys)-1),
		gen.IntRange(1, 10),
	))

	properties.TestingRun(t)
}

// TestProperty_FilterReset validates that every search, sort or filter change
// returns the view to page 1.
func TestProperty_FilterReset(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("state mutators reset the page", prop.ForAll(
		func(values []int, page, which, arg int) bool {
			e := New(buildRows(values), propertySchema(), 3)
			e.SetPage(page)
			switch which {
			case 0:
				e.SetSearchTerm(propertyTerms[arg%len(propertyTerms)])
			case 1:
				e.SetSort(propertySortKeys[arg%len(propertySortKeys)])
			default:
				e.SetFilter("status", propertyStatuses[arg%len(propertyStatuses)])
			}
			return e.ViewModel().CurrentPage == 1
		},
		gen.SliceOf(gen.IntRange(0, 60)),
		gen.IntRange(1, 20),
		gen.IntRange(0, 2),
		gen.IntRange(0, 20),
	))

	properties.TestingRun(t)
}

// TestProperty_SortToggle validates that sorting the same key twice flips the
// direction, reverses the order of distinct keys and keeps ties stable.
func TestProperty_SortToggle(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("second SetSort on a key reverses distinct keys, keeps ties", prop.ForAll(
		func(values []int) bool {
			e := New(buildRows(values), propertySchema(), len(values)+1)

			e.SetSort("score")
			asc := e.ViewModel()
			e.SetSort("score")
			desc := e.ViewModel()

			if asc.SortDirection != Ascending || desc.SortDirection != Descending {
				return false
			}
			return orderedWithStableTies(asc.VisibleRows, 1) && orderedWithStableTies(desc.VisibleRows, -1)
		},
		gen.SliceOf(gen.IntRange(0, 60)),
	))

	properties.TestingRun(t)
}

// orderedWithStableTies checks that scores follow sign (1 ascending,
// -1 descending) and rows with equal scores keep increasing ids.
func orderedWithStableTies(rows []types.Row, sign int) bool {
	for i := 1; i < len(rows); i++ {
		prev, _ := rows[i-1].Number("score")
		cur, _ := rows[i].Number("score")
		switch {
		case prev == cur:
			if rows[i-1]["id"].(int) > rows[i]["id"].(int) {
				return false
			}
		case sign > 0 && prev > cur:
			return false
		case sign < 0 && prev < cur:
			return false
		}
	}
	return true
}
