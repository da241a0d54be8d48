package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arkilian/studio/internal/views"
)

const testSeed = `{
  "course": [
    {"id": 1, "name": "Go Basics", "status": "open", "growth": 0.125},
    {"id": 2, "name": "advanced go", "status": "closed", "growth": -0.03},
    {"id": 3, "name": "SQL Joins", "status": "open", "growth": 0}
  ],
  "person": [{"id": 7, "name": "Ada"}]
}`

const testConfig = `
source:
  type: memory
views:
  - name: catalog
    page_size: 2
    collections:
      - name: courses
        table: course
        search_field: name
        columns:
          - {key: name, label: Name, sortable: true}
          - {key: status, label: Status, kind: badge}
          - {key: growth, label: Growth, kind: signed-ratio}
        filters:
          - key: status
            label: Status
            kind: equals
            options:
              - {label: Open, value: open}
              - {label: Closed, value: closed}
      - name: people
        table: person
        search_field: name
`

// setup writes a config and seed file and returns the base arguments that
// point the CLI at them.
func setup(t *testing.T) (dir string, base []string) {
	t.Helper()
	dir = t.TempDir()
	cfgPath := filepath.Join(dir, "studio.yaml")
	seedPath := filepath.Join(dir, "seed.json")
	require.NoError(t, os.WriteFile(cfgPath, []byte(testConfig), 0644))
	require.NoError(t, os.WriteFile(seedPath, []byte(testSeed), 0644))
	return dir, []string{"--config", cfgPath, "--data-dir", dir, "--source-path", seedPath}
}

func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := newRootCmd()
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)
	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func TestBrowse(t *testing.T) {
	_, base := setup(t)
	out, _, err := run(t, append([]string{"browse", "catalog", "courses"}, base...)...)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.GreaterOrEqual(t, len(lines), 4)
	assert.Equal(t, []string{"NAME", "STATUS", "GROWTH"}, strings.Fields(lines[0]))
	assert.Contains(t, lines[1], "Go Basics")
	assert.Contains(t, lines[1], "+12.5%")
	assert.Contains(t, out, "page 1/2, 3 rows")
}

func TestBrowse_SearchSortFilter(t *testing.T) {
	_, base := setup(t)
	args := append([]string{"browse", "catalog", "courses",
		"--search", "GO", "--sort", "name:desc", "--filter", "status=open"}, base...)
	out, _, err := run(t, args...)
	require.NoError(t, err)

	assert.Contains(t, out, "Go Basics")
	assert.NotContains(t, out, "advanced go")
	assert.NotContains(t, out, "SQL Joins")
	assert.Contains(t, out, "page 1/1, 1 rows, sorted by name desc, filters status=open")
}

func TestBrowse_Rejects(t *testing.T) {
	_, base := setup(t)
	cases := map[string][]string{
		"unknown view":       {"browse", "nope", "courses"},
		"unknown collection": {"browse", "catalog", "lessons"},
		"not sortable":       {"browse", "catalog", "courses", "--sort", "status"},
		"bad direction":      {"browse", "catalog", "courses", "--sort", "name:down"},
		"invalid option":     {"browse", "catalog", "courses", "--filter", "status=archived"},
		"malformed filter":   {"browse", "catalog", "courses", "--filter", "status"},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			_, _, err := run(t, append(args, base...)...)
			assert.Error(t, err)
		})
	}
}

func TestSnapshotThenBrowseLocal(t *testing.T) {
	dir, base := setup(t)
	dest := filepath.Join(dir, "snapshots")

	out, _, err := run(t, append([]string{"snapshot", "catalog", "--dest", dest}, base...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "course\t3 rows")
	assert.Contains(t, out, "person\t1 rows")
	assert.FileExists(t, filepath.Join(dest, "course.json.sz"))

	args := []string{"browse", "catalog", "people",
		"--config", base[1], "--data-dir", dir, "--source", "local", "--source-path", dest}
	out, _, err = run(t, args...)
	require.NoError(t, err)
	assert.Contains(t, out, "Ada")
}

func TestParseBrowseQuery(t *testing.T) {
	q, err := parseBrowseQuery("x", "name:desc", []string{"status=open", "tags="}, 3)
	require.NoError(t, err)
	assert.Equal(t, views.Query{
		Search:     "x",
		Sort:       "name",
		Descending: true,
		Filters:    map[string]string{"status": "open", "tags": ""},
		Page:       3,
	}, q)

	_, err = parseBrowseQuery("", "", []string{"a=1", "a=2"}, 1)
	assert.Error(t, err)
}

func TestVersion(t *testing.T) {
	out, _, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "studio version dev")
}
