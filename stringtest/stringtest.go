// Package stringtest builds expected multi-line strings for tests.
package stringtest

import "strings"

// Input dedents a raw string literal so test inputs can be indented along
// with the surrounding code. One leading newline and one trailing
// whitespace-only line are removed, the longest common leading whitespace
// is stripped from every line, and whitespace-only lines become empty.
//
// Example:
//
//	in := stringtest.Input(`
//		debug: false
//		info:
//		  enabled: true
//	`) // -> "debug: false\ninfo:\n  enabled: true"
func Input(s string) string {
	s = strings.TrimPrefix(s, "\n")

	lines := strings.Split(s, "\n")
	if n := len(lines); n > 1 && strings.TrimSpace(lines[n-1]) == "" {
		lines = lines[:n-1]
	}

	indent := ""
	first := true

	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}

		lead := line[:len(line)-len(strings.TrimLeft(line, " \t"))]
		if first {
			indent = lead
			first = false

			continue
		}

		indent = commonPrefix(indent, lead)
	}

	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			lines[i] = ""
			continue
		}

		lines[i] = strings.TrimPrefix(line, indent)
	}

	return strings.Join(lines, "\n")
}

// JoinLF joins lines with LF line endings.
//
// Example:
//
//	want := stringtest.JoinLF(
//		"[INFO] (2024-01-01 00:00:00): started",
//		"[ERROR] (2024-01-01 00:00:01): failed",
//	)
func JoinLF(ss ...string) string {
	return strings.Join(ss, "\n")
}

// JoinCRLF joins lines with CRLF line endings, for output produced with
// Windows line endings.
func JoinCRLF(ss ...string) string {
	return strings.Join(ss, "\r\n")
}

func commonPrefix(a, b string) string {
	n := min(len(a), len(b))
	for i := range n {
		if a[i] != b[i] {
			return a[:i]
		}
	}

	return a[:n]
}
