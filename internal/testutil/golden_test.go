package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"crlf", "a\r\nb", "a\nb"},
		{"trailing spaces", "a  \nb\t", "a\nb"},
		{"trailing newlines", "a\n\n\n", "a"},
		{"unchanged", "a\nb", "a\nb"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.input); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestScrubTimestamps(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"created 2026-10-15T08:30:00Z", "created [TIMESTAMP]"},
		{"at 2026-10-15T08:30:00.123456+02:00 done", "at [TIMESTAMP] done"},
		{"at 2026-10-15 08:30:00", "at [TIMESTAMP]"},
		{"no time here", "no time here"},
	}
	for _, tt := range tests {
		if got := ScrubTimestamps(tt.input); got != tt.want {
			t.Errorf("ScrubTimestamps(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestScrubUUIDs(t *testing.T) {
	got := ScrubUUIDs("session 3f2b8c1e-9d4a-4e6f-8a7b-1c2d3e4f5a6b ready")
	if got != "session [UUID] ready" {
		t.Errorf("ScrubUUIDs() = %q", got)
	}
}

func TestScrubAll(t *testing.T) {
	in := "id 3f2b8c1e-9d4a-4e6f-8a7b-1c2d3e4f5a6b at 2026-10-15T08:30:00Z  \n\n"
	if got := ScrubAll(in); got != "id [UUID] at [TIMESTAMP]" {
		t.Errorf("ScrubAll() = %q", got)
	}
}

func TestGolden_Assert(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "report.golden"), []byte("# Report\r\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	NewGolden(t, dir).AssertString("report", "# Report\n")
}
