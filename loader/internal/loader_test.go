package internal

import (
	"path/filepath"
	"strings"
	"testing"

	"intranet/types"
)

func TestSplitWordsWindows(t *testing.T) {
	words := make([]string, 10)
	for i := range words {
		words[i] = string(rune('a' + i))
	}
	text := strings.Join(words, " ")

	got := SplitWords(text, 4, 1)
	want := []string{"a b c d", "d e f g", "g h i j", "j"}
	if len(got) != len(want) {
		t.Fatalf("windows = %d, want %d: %v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("window %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestSplitWordsShortText(t *testing.T) {
	got := SplitWords("only three words", 120, 20)
	if len(got) != 1 || got[0] != "only three words" {
		t.Fatalf("got %v", got)
	}
}

func TestSplitWordsEmpty(t *testing.T) {
	if got := SplitWords("   \n\t ", 10, 2); got != nil {
		t.Fatalf("got %v, want nil", got)
	}
}

func TestSplitWordsBadOverlap(t *testing.T) {
	// Overlap >= chunk size must not loop forever.
	got := SplitWords("a b c d e f", 2, 5)
	want := []string{"a b", "c d", "e f"}
	if len(got) != len(want) {
		t.Fatalf("windows = %v, want %v", got, want)
	}
}

func TestDepartmentFromPath(t *testing.T) {
	docs := filepath.Join("var", "docs")
	cases := []struct {
		path string
		want types.Department
	}{
		{filepath.Join(docs, "HR", "leave_policy.pdf"), types.DepartmentHR},
		{filepath.Join(docs, "IT", "vpn_setup.md"), types.DepartmentIT},
		{filepath.Join(docs, "Finance", "expense.pdf"), types.DepartmentFinance},
		{filepath.Join(docs, "stray.pdf"), types.DepartmentGeneral},
	}
	for _, tc := range cases {
		if got := departmentFromPath(docs, tc.path); got != tc.want {
			t.Errorf("departmentFromPath(%q) = %q, want %q", tc.path, got, tc.want)
		}
	}
}

func TestGenerateTitle(t *testing.T) {
	got := generateTitle(filepath.Join("docs", "HR", "leave_policy-2024.pdf"))
	if got != "leave policy 2024" {
		t.Fatalf("title = %q", got)
	}
}

func TestDocumentIDStable(t *testing.T) {
	a, err := documentID("/docs/HR/leave.pdf")
	if err != nil {
		t.Fatalf("documentID: %v", err)
	}
	b, _ := documentID("/docs/HR/leave.pdf")
	if a != b {
		t.Fatal("same path must produce the same id")
	}
	c, _ := documentID("/docs/IT/leave.pdf")
	if a == c {
		t.Fatal("different paths must produce different ids")
	}
}

func TestIngestable(t *testing.T) {
	for name, want := range map[string]bool{
		"policy.pdf": true,
		"notes.MD":   true,
		"readme.txt": true,
		"data.xlsx":  false,
		"script.sh":  false,
	} {
		if got := ingestable(name); got != want {
			t.Errorf("ingestable(%q) = %v, want %v", name, got, want)
		}
	}
}
