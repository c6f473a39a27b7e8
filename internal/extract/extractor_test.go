package extract

import (
	"errors"
	"slices"
	"testing"
)

func TestExtract(t *testing.T) {
	t.Parallel()

	e := New(nil)

	tests := []struct {
		name      string
		base      string
		body      string
		wantPages []string
		wantFiles []string
	}{
		{
			name:      "classifies pages and files",
			base:      "https://ex.com/dir/",
			body:      `<a href="/a.pdf">A</a><a href="/page2">P</a>`,
			wantPages: []string{"https://ex.com/page2"},
			wantFiles: []string{"https://ex.com/a.pdf"},
		},
		{
			name:      "relative links resolve against the page",
			base:      "https://ex.com/dir/index.html",
			body:      `<a href="b.CSV">B</a><a href="../up">U</a>`,
			wantPages: []string{"https://ex.com/up"},
			wantFiles: []string{"https://ex.com/dir/b.CSV"},
		},
		{
			name:      "duplicates and fragments collapse",
			base:      "http://ex.com/",
			body:      `<a href="/p#one">1</a><a href="/p#two">2</a><a href="/p">3</a><a href="/x.zip#frag">z</a><a href="/x.zip">z</a>`,
			wantPages: []string{"http://ex.com/p"},
			wantFiles: []string{"http://ex.com/x.zip"},
		},
		{
			name:      "skips non-fetchable references",
			base:      "http://ex.com/",
			body:      `<a href="javascript:void(0)">j</a><a href="MAILTO:a@b.c">m</a><a href="tel:123">t</a><a href="#top">#</a><a href="data:text/plain,hi">d</a><a href="ftp://ex.com/a.txt">f</a><a href="">e</a>`,
			wantPages: []string{},
			wantFiles: []string{},
		},
		{
			name: "file-only elements never produce pages",
			base: "http://ex.com/",
			body: `<link rel="stylesheet" href="/style.css"><img src="/logo.png"><script src="/app.js"></script>` +
				`<embed src="/doc.pdf"><object data="/sheet.xlsx"></object><source src="/notes.txt">`,
			wantPages: []string{},
			wantFiles: []string{"http://ex.com/doc.pdf", "http://ex.com/notes.txt", "http://ex.com/sheet.xlsx"},
		},
		{
			name:      "iframes and image map areas are pages",
			base:      "http://ex.com/",
			body:      `<iframe src="/inner"></iframe><map><area href="/zone"></map>`,
			wantPages: []string{"http://ex.com/inner", "http://ex.com/zone"},
			wantFiles: []string{},
		},
		{
			name:      "download attribute",
			base:      "http://ex.com/",
			body:      `<a href="/get?id=1" download="/files/report.docx">get</a>`,
			wantPages: []string{"http://ex.com/get?id=1"},
			wantFiles: []string{"http://ex.com/files/report.docx"},
		},
		{
			name:      "base element overrides the document URL",
			base:      "http://ex.com/a/b/page",
			body:      `<html><head><base href="/root/"></head><body><a href="next">n</a><a href="f.json">f</a></body></html>`,
			wantPages: []string{"http://ex.com/root/next"},
			wantFiles: []string{"http://ex.com/root/f.json"},
		},
		{
			name:      "cross-site links are kept",
			base:      "http://ex.com/",
			body:      `<a href="http://other.onion/x">x</a>`,
			wantPages: []string{"http://other.onion/x"},
			wantFiles: []string{},
		},
		{
			name:      "malformed html still yields links",
			base:      "http://ex.com/",
			body:      `<div><a href="/ok.txt">ok<p><a href='/next'>`,
			wantPages: []string{"http://ex.com/next"},
			wantFiles: []string{"http://ex.com/ok.txt"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			links, err := e.Extract([]byte(tt.body), tt.base)
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if !slices.Equal(links.Pages, tt.wantPages) {
				t.Errorf("expected pages %v, got %v", tt.wantPages, links.Pages)
			}
			if !slices.Equal(links.Files, tt.wantFiles) {
				t.Errorf("expected files %v, got %v", tt.wantFiles, links.Files)
			}
		})
	}

	t.Run("invalid base", func(t *testing.T) {
		t.Parallel()

		for _, base := range []string{"", "/relative", "ftp://ex.com/", "://bad"} {
			if _, err := e.Extract([]byte(`<a href="/x">x</a>`), base); !errors.Is(err, ErrInvalidBase) {
				t.Errorf("base %q: expected ErrInvalidBase, got %v", base, err)
			}
		}
	})
}

func TestNewExtensions(t *testing.T) {
	t.Parallel()

	e := New([]string{"PDF", ".Csv", " "})
	if got := e.Extensions(); !slices.Equal(got, []string{".csv", ".pdf"}) {
		t.Errorf("expected [.csv .pdf], got %v", got)
	}
	if !e.IsFile("http://ex.com/a.pdf?x=1") {
		t.Error("expected a.pdf to be a file")
	}
	if e.IsFile("http://ex.com/a.txt") {
		t.Error("expected a.txt not to be a file with a custom list")
	}

	if got := New(nil).Extensions(); len(got) != len(DefaultExtensions) {
		t.Errorf("expected %d default extensions, got %d", len(DefaultExtensions), len(got))
	}
}

func TestDomain(t *testing.T) {
	t.Parallel()

	tests := []struct {
		url  string
		want string
	}{
		{"http://Example.COM/path", "example.com"},
		{"http://localhost:8080/", "localhost_8080"},
		{"http://abcdefghijklmnop.onion/x", "abcdefghijklmnop.onion"},
		{"http://[::1]:80/", "[__1]_80"},
		{"/relative/path", "unknown"},
		{"", "unknown"},
		{"%zz", "unknown"},
	}
	for _, tt := range tests {
		if got := Domain(tt.url); got != tt.want {
			t.Errorf("Domain(%q): expected %q, got %q", tt.url, tt.want, got)
		}
	}
}

func TestSameSite(t *testing.T) {
	t.Parallel()

	tests := []struct {
		a, b string
		want bool
	}{
		{"http://ex.com/a", "https://EX.com/b", true},
		{"http://ex.com:8080/", "http://ex.com/", false},
		{"http://ex.com/", "http://other.com/", false},
		{"/a", "/b", false},
	}
	for _, tt := range tests {
		if got := SameSite(tt.a, tt.b); got != tt.want {
			t.Errorf("SameSite(%q, %q): expected %v, got %v", tt.a, tt.b, tt.want, got)
		}
	}
}
