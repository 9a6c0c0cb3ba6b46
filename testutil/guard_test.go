package testutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestInternalImportForbiddenPredicate(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"treewalk/internal/slot", true},
		{"treewalk/internal", true},
		{"treewalk/pkg/domain", false},
		{"github.com/google/uuid", false},
	}
	for _, c := range cases {
		if got := InternalImportForbidden(c.in); got != c.want {
			t.Fatalf("InternalImportForbidden(%q)=%v want %v", c.in, got, c.want)
		}
	}
}

func TestPrefixForbidden(t *testing.T) {
	pred := PrefixForbidden("net/http")
	if !pred("net/http") || !pred("net/http/httptest") {
		t.Fatalf("expected net/http and subpackages to match")
	}
	if pred("net/httpx") {
		t.Fatalf("sibling path must not match")
	}
	combined := AnyForbidden(PrefixForbidden("a"), PrefixForbidden("b"))
	if !combined("b/c") || combined("c") {
		t.Fatalf("unexpected combined predicate result")
	}
}

func TestAssertNoDirectImports(t *testing.T) {
	dir := t.TempDir()
	src := []byte("package tmp\nimport \"fmt\"\nfunc X(){fmt.Println(1)}")
	if err := os.WriteFile(filepath.Join(dir, "x.go"), src, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	AssertNoDirectImports(t, dir, func(string) bool { return false }, "none")
}

func TestDirectImportViolationsReportsMatches(t *testing.T) {
	dir := t.TempDir()
	src := []byte("package tmp\nimport (\n\"fmt\"\n\"treewalk/internal/slot\"\n)\nvar _ = fmt.Sprint\nvar _ = slot.ErrEmpty\n")
	if err := os.WriteFile(filepath.Join(dir, "x.go"), src, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "x_test.go"), []byte("package tmp\nimport \"treewalk/internal/core\"\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	viols, err := directImportViolations(dir, InternalImportForbidden)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(viols) != 1 || !strings.HasPrefix(viols[0], "treewalk/internal/slot") {
		t.Fatalf("unexpected violations %v", viols)
	}
}

type recordingFatal struct{ msg string }

func (r *recordingFatal) Fatalf(format string, _ ...any) { r.msg = format }

func TestFailIfViolations(t *testing.T) {
	rec := &recordingFatal{}
	failIfViolations(rec, "direct imports", "reason", nil)
	if rec.msg != "" {
		t.Fatalf("no violations must not fail")
	}
	failIfViolations(rec, "direct imports", "reason", []string{"x"})
	if rec.msg == "" {
		t.Fatalf("expected failure to be reported")
	}
}

func TestAssertNoTransitiveDependencyUsesGoList(t *testing.T) {
	orig := goListDeps
	t.Cleanup(func() { goListDeps = orig })
	goListDeps = func(string) ([]byte, error) { return []byte("fmt\nstrings\n"), nil }
	AssertNoTransitiveDependency(t, "./...", PrefixForbidden("net/http"), "none")

	if got := matchLines("a\n\nb\n", PrefixForbidden("b")); len(got) != 1 || got[0] != "b" {
		t.Fatalf("matchLines=%v", got)
	}
}
