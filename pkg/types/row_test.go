package types

import (
	"encoding/json"
	"testing"
)

func TestRow_Accessors(t *testing.T) {
	row := Row{
		"name":   "Ana Silva",
		"tags":   []any{"go", "sql"},
		"score":  int64(42),
		"active": true,
		"empty":  nil,
	}

	if s, ok := row.String("name"); !ok || s != "Ana Silva" {
		t.Errorf("String(name) = %q, %v", s, ok)
	}
	if _, ok := row.String("score"); ok {
		t.Error("expected String on numeric field to fail")
	}
	if tags, ok := row.Strings("tags"); !ok || len(tags) != 2 || tags[1] != "sql" {
		t.Errorf("Strings(tags) = %v, %v", tags, ok)
	}
	if n, ok := row.Number("score"); !ok || n != 42 {
		t.Errorf("Number(score) = %v, %v", n, ok)
	}
	if _, ok := row.Number("missing"); ok {
		t.Error("expected Number on missing field to fail")
	}
	if !row.Has("empty") || row.Has("missing") {
		t.Error("Has should report presence, not value")
	}
}

func TestRow_Project(t *testing.T) {
	row := Row{"a": 1, "b": 2, "c": 3}

	got := row.Project([]string{"a", "c", "z"})
	if len(got) != 2 || got["a"] != 1 || got["c"] != 3 {
		t.Fatalf("unexpected projection: %v", got)
	}
	if _, ok := got["z"]; ok {
		t.Fatal("absent fields must stay absent")
	}

	all := row.Project(nil)
	all["a"] = 99
	if row["a"] != 1 {
		t.Fatal("projection must copy the row")
	}
}

func TestAsNumber_RejectsStrings(t *testing.T) {
	if _, ok := AsNumber("12"); ok {
		t.Error("numeric-looking strings are not numbers")
	}
	if f, ok := AsNumber(json.Number("1.5")); !ok || f != 1.5 {
		t.Errorf("json.Number = %v, %v", f, ok)
	}
}

func TestAsStrings_MixedList(t *testing.T) {
	if _, ok := AsStrings([]any{"a", 1}); ok {
		t.Error("mixed list must not convert")
	}
}

func TestDisplay(t *testing.T) {
	cases := []struct {
		in   any
		want string
	}{
		{nil, ""},
		{"x", "x"},
		{true, "true"},
		{int64(3), "3"},
		{2.50, "2.5"},
		{[]string{"a", "b"}, "a, b"},
		{map[string]any{}, ""},
	}
	for _, tc := range cases {
		if got := Display(tc.in); got != tc.want {
			t.Errorf("Display(%#v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNormalizeRow(t *testing.T) {
	var decoded map[string]any
	if err := json.Unmarshal([]byte(`{"n":1,"tags":["a","b"],"mixed":["a",1],"obj":{"x":1},"s":"v","b":false}`), &decoded); err != nil {
		t.Fatal(err)
	}

	row := NormalizeRow(decoded)
	if row["n"] != float64(1) {
		t.Errorf("n = %#v", row["n"])
	}
	if tags, ok := row["tags"].([]string); !ok || len(tags) != 2 {
		t.Errorf("tags = %#v", row["tags"])
	}
	if row["mixed"] != nil || row["obj"] != nil {
		t.Errorf("unsupported values should normalize to nil: %#v %#v", row["mixed"], row["obj"])
	}
	if row["s"] != "v" || row["b"] != false {
		t.Errorf("scalars changed: %#v", row)
	}
	if NormalizeValue([]byte("raw")) != "raw" {
		t.Error("[]byte should become string")
	}
}
