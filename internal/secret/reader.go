package secret

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	exif "github.com/dsoprea/go-exif/v3"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

const (
	// DefaultReadLimit is the maximum number of bytes ReadText reads from a
	// file of a known type.
	DefaultReadLimit int64 = 10 * 1024 * 1024

	// UnknownReadLimit is the number of leading bytes ReadText inspects in a
	// file whose type it does not recognize.
	UnknownReadLimit int64 = 10 * 1024
)

// fileKind tells ReadText how to extract text from a file.
type fileKind int

const (
	kindUnknown fileKind = iota
	kindText
	kindPDF
	kindImage
	kindArchive
)

var extensionKinds = map[string]fileKind{
	".txt":  kindText,
	".csv":  kindText,
	".json": kindText,
	".xml":  kindText,
	".html": kindText,
	".htm":  kindText,
	".md":   kindText,
	".log":  kindText,
	".yaml": kindText,
	".yml":  kindText,
	".env":  kindText,
	".cfg":  kindText,
	".ini":  kindText,
	".conf": kindText,
	".sql":  kindText,
	".js":   kindText,
	".pdf":  kindPDF,
	".jpg":  kindImage,
	".jpeg": kindImage,
	".tif":  kindImage,
	".tiff": kindImage,
	".png":  kindImage,
	".heic": kindImage,
	".zip":  kindArchive,
	".rar":  kindArchive,
	".7z":   kindArchive,
	".gz":   kindArchive,
	".tar":  kindArchive,
	".xlsx": kindArchive,
	".xls":  kindArchive,
	".docx": kindArchive,
}

// Readable reports whether ReadText can extract text from a file with the
// given name without inspecting its content.
func Readable(name string) bool {
	kind := extensionKinds[strings.ToLower(filepath.Ext(name))]
	return kind != kindArchive
}

// ReadText extracts scannable text from the file at path, reading at most
// limit bytes (DefaultReadLimit when limit <= 0).
//
// Text files are decoded to UTF-8. PDF files yield their document metadata
// and images their EXIF tags, one "name: value" line each. Archives return
// ErrNotReadable. Files of unknown type are read up to UnknownReadLimit and
// returned only when the content looks like text.
func ReadText(path string, limit int64) (string, error) {
	if limit <= 0 {
		limit = DefaultReadLimit
	}

	kind := extensionKinds[strings.ToLower(filepath.Ext(path))]
	switch kind {
	case kindArchive:
		return "", fmt.Errorf("%w: %s", ErrNotReadable, filepath.Base(path))
	case kindUnknown:
		limit = min(limit, UnknownReadLimit)
	}

	data, truncated, err := readPrefix(path, limit)
	if err != nil {
		return "", err
	}

	switch kind {
	case kindPDF:
		return pdfText(data), nil
	case kindImage:
		return exifText(data), nil
	case kindUnknown:
		if !looksLikeText(data) {
			return "", ErrBinaryContent
		}
	}
	return decodeText(data, truncated), nil
}

// readPrefix reads up to limit bytes of the file and reports whether the file
// was longer.
func readPrefix(path string, limit int64) ([]byte, bool, error) {
	f, err := os.Open(path) //nolint:gosec // path is a file this process downloaded
	if err != nil {
		return nil, false, err
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return nil, false, err
	}
	if int64(len(data)) > limit {
		return data[:limit], true, nil
	}
	return data, false, nil
}

// decodeText converts data to a UTF-8 string. A byte order mark selects
// UTF-8 or UTF-16; data that is not valid UTF-8 is decoded as Windows-1252.
func decodeText(data []byte, truncated bool) string {
	if out, _, err := transform.Bytes(unicode.BOMOverride(transform.Nop), data); err == nil {
		data = out
	}
	if truncated {
		data = trimPartialRune(data)
	}
	if utf8.Valid(data) {
		return string(data)
	}
	out, _, err := transform.Bytes(charmap.Windows1252.NewDecoder(), data)
	if err != nil {
		return strings.ToValidUTF8(string(data), "")
	}
	return string(out)
}

// trimPartialRune drops an incomplete UTF-8 sequence cut off at the end of data.
func trimPartialRune(data []byte) []byte {
	for i := 0; i < utf8.UTFMax && i < len(data); i++ {
		if utf8.Valid(data[:len(data)-i]) {
			return data[:len(data)-i]
		}
	}
	return data
}

// looksLikeText reports whether data is plausibly text: no NUL bytes outside
// a UTF-16 document and mostly printable content.
func looksLikeText(data []byte) bool {
	if len(data) == 0 {
		return true
	}
	if bytes.HasPrefix(data, []byte{0xFE, 0xFF}) || bytes.HasPrefix(data, []byte{0xFF, 0xFE}) {
		return true
	}
	if bytes.IndexByte(data, 0) >= 0 {
		return false
	}

	control := 0
	for _, b := range data {
		if b < 0x20 && b != '\n' && b != '\r' && b != '\t' && b != '\f' {
			control++
		}
	}
	return control*10 < len(data)
}

var (
	pdfInfoPattern = regexp.MustCompile(`/(Author|Creator|Producer|Title|Subject|Keywords)\s*(?:\(((?:[^()\\]|\\.)*)\)|<([0-9A-Fa-f\s]+)>)`)
	pdfXMPPattern  = regexp.MustCompile(`<(dc:creator|dc:title|dc:description|xmp:CreatorTool|pdf:Producer|pdf:Keywords)[^>]*>(?:\s*<rdf:[A-Za-z]+[^>]*>\s*<rdf:li[^>]*>)?([^<]+)<`)
)

// pdfText returns the metadata strings of a PDF document. Page content
// streams are usually compressed and are not decoded.
func pdfText(data []byte) string {
	var lines []string
	for _, m := range pdfInfoPattern.FindAllSubmatch(data, -1) {
		value := string(m[2])
		if len(m[3]) > 0 {
			value = decodePDFHex(string(m[3]))
		} else {
			value = unescapePDFString(value)
		}
		if value = strings.TrimSpace(value); value != "" {
			lines = append(lines, strings.ToLower(string(m[1]))+": "+value)
		}
	}
	for _, m := range pdfXMPPattern.FindAllSubmatch(data, -1) {
		if value := strings.TrimSpace(string(m[2])); value != "" {
			lines = append(lines, string(m[1])+": "+value)
		}
	}
	return strings.Join(lines, "\n")
}

// unescapePDFString resolves the backslash escapes of a PDF literal string.
func unescapePDFString(s string) string {
	r := strings.NewReplacer(`\n`, "\n", `\r`, "\r", `\t`, "\t", `\(`, "(", `\)`, ")", `\\`, `\`)
	return r.Replace(s)
}

// decodePDFHex decodes a PDF hex string. Strings starting with the UTF-16BE
// byte order mark are decoded as UTF-16.
func decodePDFHex(s string) string {
	s = strings.Join(strings.Fields(s), "")
	if len(s)%2 == 1 {
		s += "0"
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return ""
	}
	if bytes.HasPrefix(raw, []byte{0xFE, 0xFF}) {
		dec := unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM).NewDecoder()
		if out, err := dec.Bytes(raw); err == nil {
			return string(out)
		}
	}
	return decodeText(raw, false)
}

// exifText returns the EXIF tags of an image as "name: value" lines sorted by
// tag name. Images without EXIF data yield an empty string.
func exifText(data []byte) string {
	rawExif, err := exif.SearchAndExtractExif(data)
	if err != nil || rawExif == nil {
		return ""
	}
	entries, _, err := exif.GetFlatExifData(rawExif, nil)
	if err != nil {
		return ""
	}

	lines := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.Formatted == "" {
			continue
		}
		lines = append(lines, entry.TagName+": "+entry.Formatted)
	}
	sort.Strings(lines)
	return strings.Join(lines, "\n")
}
