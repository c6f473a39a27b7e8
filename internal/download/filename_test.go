package download

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestFileName(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		url  string
		want string
	}{
		{"last segment", "http://a.test/docs/report.pdf", "report.pdf"},
		{"query is ignored", "http://a.test/get/data.csv?id=3", "data.csv"},
		{"escaped segment", "http://a.test/my%20file.txt", "my file.txt"},
		{"unsafe characters", "http://a.test/a%3Ab%3Fc.txt", "a_b_c.txt"},
		{"leading dots trimmed", "http://a.test/..hidden.txt", "hidden.txt"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := FileName(tc.url); got != tc.want {
				t.Errorf("FileName(%q): expected %q, got %q", tc.url, tc.want, got)
			}
		})
	}

	t.Run("segments without extension fall back to a hash name", func(t *testing.T) {
		t.Parallel()
		for _, u := range []string{"http://a.test/download", "http://a.test/", "::not a url"} {
			got := FileName(u)
			if !strings.HasPrefix(got, "file_") || !strings.HasSuffix(got, ".unknown") || len(got) != len("file_12345678.unknown") {
				t.Errorf("FileName(%q): expected fallback name, got %q", u, got)
			}
		}
		if FileName("http://a.test/a") == FileName("http://a.test/b") {
			t.Error("expected different fallback names for different URLs")
		}
		if FileName("http://a.test/a") != FileName("http://a.test/a") {
			t.Error("expected fallback names to be stable")
		}
	})
}

func TestSanitize(t *testing.T) {
	t.Parallel()

	t.Run("control characters are replaced", func(t *testing.T) {
		t.Parallel()
		if got := Sanitize("a\x00b\nc.txt"); got != "a_b_c.txt" {
			t.Errorf("expected a_b_c.txt, got %q", got)
		}
	})

	t.Run("long names keep their extension", func(t *testing.T) {
		t.Parallel()
		got := Sanitize(strings.Repeat("x", 300) + ".pdf")
		if len(got) != MaxNameLength {
			t.Errorf("expected %d bytes, got %d", MaxNameLength, len(got))
		}
		if !strings.HasSuffix(got, ".pdf") {
			t.Errorf("expected .pdf suffix, got %q", got[len(got)-8:])
		}
	})

	t.Run("multibyte names are not split", func(t *testing.T) {
		t.Parallel()
		got := Sanitize(strings.Repeat("日", 100) + ".txt")
		if len(got) > MaxNameLength || !utf8.ValidString(got) {
			t.Errorf("expected valid truncated name, got %d bytes valid=%v", len(got), utf8.ValidString(got))
		}
	})
}

func TestWithSuffix(t *testing.T) {
	t.Parallel()

	if got := withSuffix("notes.txt", "abcd1234"); got != "notes_abcd1234.txt" {
		t.Errorf("expected notes_abcd1234.txt, got %q", got)
	}
	if got := withSuffix("README", "2"); got != "README_2" {
		t.Errorf("expected README_2, got %q", got)
	}

	long := withSuffix(strings.Repeat("n", MaxNameLength)+".txt", "abcd1234")
	if len(long) != MaxNameLength {
		t.Errorf("expected %d bytes, got %d", MaxNameLength, len(long))
	}
	if !strings.HasSuffix(long, "_abcd1234.txt") {
		t.Errorf("expected suffix to survive truncation, got %q", long[len(long)-16:])
	}
}
