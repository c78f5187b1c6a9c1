package graph

import (
	"encoding/json"
	"testing"
)

func TestIDKeyCanonicalForms(t *testing.T) {
	cases := []struct {
		in   any
		want string
	}{
		{1, "1"},
		{int64(1), "1"},
		{uint8(1), "1"},
		{1.0, "1"},
		{float32(2), "2"},
		{1.5, "1.5"},
		{"1", "1"},
		{json.Number("3"), "3"},
		{json.Number("3.0"), "3"},
		{nil, ""},
	}
	for _, c := range cases {
		if got := idKey(c.in); got != c.want {
			t.Fatalf("idKey(%#v)=%q want %q", c.in, got, c.want)
		}
	}
}

func TestIsEmptyID(t *testing.T) {
	for _, in := range []any{nil, "", 0, 0.0, int64(0), json.Number("0")} {
		if !isEmptyID(in) {
			t.Fatalf("isEmptyID(%#v) = false", in)
		}
	}
	for _, in := range []any{"0", 1, -1, "a", true} {
		if isEmptyID(in) {
			t.Fatalf("isEmptyID(%#v) = true", in)
		}
	}
}

func TestSameID(t *testing.T) {
	if !SameID(1, "1") || !SameID(2.0, 2) || !SameID(nil, "") {
		t.Fatalf("expected canonical ids to match")
	}
	if SameID(1, 2) || SameID(nil, 1) {
		t.Fatalf("expected distinct ids to differ")
	}
}
