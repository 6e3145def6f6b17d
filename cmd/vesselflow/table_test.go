package main

import (
	"strings"
	"testing"
)

func TestRenderTablePadsShortRows(t *testing.T) {
	out := renderTable(
		[]string{"Vessel", "Status"},
		[][]string{{"1", "done"}, {"2"}},
		0,
	)
	if !strings.Contains(out, "Vessel") || !strings.Contains(out, "done") {
		t.Fatalf("table missing content:\n%s", out)
	}
	lines := strings.Split(out, "\n")
	width := len(lines[0])
	for _, line := range lines[1:] {
		if len(line) != width {
			t.Fatalf("ragged table output:\n%s", out)
		}
	}
}

func TestRenderTableEmptyHeaders(t *testing.T) {
	if out := renderTable(nil, [][]string{{"x"}}); out != "" {
		t.Fatalf("expected empty output, got %q", out)
	}
}
