package core

import (
	"errors"
	"testing"
)

func TestKeyFor(t *testing.T) {
	cases := map[string]string{
		"treewalk:trees": "treewalk_trees",
		"a/b c":          "a_b_c",
		" plain ":        "plain",
	}
	for in, want := range cases {
		got, err := KeyFor(in)
		if err != nil {
			t.Fatalf("KeyFor(%q): %v", in, err)
		}
		if got != want {
			t.Fatalf("KeyFor(%q)=%q want %q", in, got, want)
		}
	}
	for _, bad := range []string{"", "   ", "../escape"} {
		if _, err := KeyFor(bad); !errors.Is(err, ErrInvalidName) {
			t.Fatalf("expected ErrInvalidName for %q, got %v", bad, err)
		}
	}
}
