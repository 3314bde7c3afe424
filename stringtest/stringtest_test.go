package stringtest_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"go.jacobcolvin.com/taglog/stringtest"
)

func TestInput(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		input string
		want  string
	}{
		"empty string": {
			input: "",
			want:  "",
		},
		"single line with both newlines": {
			input: "\nhello\n",
			want:  "hello",
		},
		"multi-line with common indent tabs": {
			input: "\n\tline1\n\tline2\n\tline3",
			want:  "line1\nline2\nline3",
		},
		"multi-line with varying indent": {
			input: `
    line1
      indented
    line3`,
			want: "line1\n  indented\nline3",
		},
		"whitespace-only lines become empty": {
			input: "\n    line1\n    \n    line3",
			want:  "line1\n\nline3",
		},
		"indented closing backtick": {
			input: "\n\t\tdebug: false\n\t\tinfo:\n\t\t  enabled: true\n\t",
			want:  "debug: false\ninfo:\n  enabled: true",
		},
		"preserves multiple leading newlines minus one": {
			input: "\n\nline1\nline2",
			want:  "\nline1\nline2",
		},
		"preserves multiple trailing newlines minus one": {
			input: "line1\nline2\n\n",
			want:  "line1\nline2\n",
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tc.want, stringtest.Input(tc.input))
		})
	}
}

func TestJoin(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		join  func(...string) string
		want  string
		input []string
	}{
		"lf empty": {
			join:  stringtest.JoinLF,
			input: nil,
			want:  "",
		},
		"lf lines": {
			join:  stringtest.JoinLF,
			input: []string{"a", "", "c"},
			want:  "a\n\nc",
		},
		"crlf lines": {
			join:  stringtest.JoinCRLF,
			input: []string{"line1", "line2"},
			want:  "line1\r\nline2",
		},
		"crlf keeps embedded lf": {
			join:  stringtest.JoinCRLF,
			input: []string{"a\nb", "c"},
			want:  "a\nb\r\nc",
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tc.want, tc.join(tc.input...))
		})
	}
}
