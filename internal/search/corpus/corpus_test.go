package corpus

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "corpus.txt")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing corpus: %v", err)
	}
	return path
}

func TestClean(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"plain line", "plain line"},
		{"crlf line\r", "crlf line"},
		{"nul padded\x00\x00", "nul padded"},
		{"mixed\r\x00\r", "mixed"},
		{"", ""},
		{"\x00internal\x00kept\r", "\x00internal\x00kept"},
	}
	for _, tt := range tests {
		if got := Clean(tt.in); got != tt.want {
			t.Errorf("Clean(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLoadPreservesOrder(t *testing.T) {
	path := writeFile(t, "charlie\nalpha\nbravo\n")
	lines, err := Load(path, false)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := []string{"charlie", "alpha", "bravo"}
	if len(lines) != len(want) {
		t.Fatalf("got %d lines, want %d", len(lines), len(want))
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, lines[i], want[i])
		}
	}
}

func TestLoadFoldsCase(t *testing.T) {
	path := writeFile(t, "Alpha\nBRAVO\n")
	lines, err := Load(path, true)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if lines[0] != "alpha" || lines[1] != "bravo" {
		t.Errorf("lines = %v, want folded to lower case", lines)
	}
}

func TestLoadStripsCRAndNUL(t *testing.T) {
	path := writeFile(t, "windows line\r\npadded\x00\n")
	lines, err := Load(path, false)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if lines[0] != "windows line" {
		t.Errorf("lines[0] = %q", lines[0])
	}
	if lines[1] != "padded" {
		t.Errorf("lines[1] = %q", lines[1])
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/corpus.txt", false); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadEmptyFile(t *testing.T) {
	path := writeFile(t, "")
	lines, err := Load(path, false)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(lines) != 0 {
		t.Errorf("got %d lines from empty file", len(lines))
	}
}

func TestScanFileStopsEarly(t *testing.T) {
	path := writeFile(t, "one\ntwo\nthree\n")
	var seen []string
	err := ScanFile(path, false, func(line string) bool {
		seen = append(seen, line)
		return line != "two"
	})
	if err != nil {
		t.Fatalf("ScanFile: %v", err)
	}
	if len(seen) != 2 || seen[1] != "two" {
		t.Errorf("seen = %v, want scan to stop at %q", seen, "two")
	}
}

func TestScanHandlesLongLines(t *testing.T) {
	long := strings.Repeat("x", 200_000)
	path := writeFile(t, long+"\nshort\n")
	lines, err := Load(path, false)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(lines) != 2 || len(lines[0]) != 200_000 {
		t.Errorf("long line not preserved, got %d lines", len(lines))
	}
}
