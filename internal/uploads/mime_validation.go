package uploads

import (
	"bytes"
	"io"
	"mime"
	"path"
	"strings"
	"unicode"

	"github.com/gabriel-vasile/mimetype"
)

// sniffLimit is how much of the stream the strict validator inspects.
const sniffLimit = 1024

// mimeByExtension maps allow-listed extensions to the MIME type the
// service records and validates against.
var mimeByExtension = map[string]string{
	"pdf":  "application/pdf",
	"png":  "image/png",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"gif":  "image/gif",
	"webp": "image/webp",
	"txt":  "text/plain",
	"csv":  "text/csv",
	"doc":  "application/msword",
	"docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"odt":  "application/vnd.oasis.opendocument.text",
	"xls":  "application/vnd.ms-excel",
	"xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"ods":  "application/vnd.oasis.opendocument.spreadsheet",
}

func extensionOf(fileName string) string {
	return strings.ToLower(strings.TrimPrefix(path.Ext(fileName), "."))
}

func mimeForExtension(ext string) string {
	if m, ok := mimeByExtension[ext]; ok {
		return m
	}
	if m := mime.TypeByExtension("." + ext); m != "" {
		if parsed, _, err := mime.ParseMediaType(m); err == nil {
			return parsed
		}
	}
	return "application/octet-stream"
}

// sniffHead detects the MIME type of the first KiB and returns the
// detection plus a reader that replays the consumed bytes.
func sniffHead(r io.Reader) (string, io.Reader, error) {
	head := make([]byte, sniffLimit)
	n, err := io.ReadFull(r, head)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return "", nil, err
	}
	head = head[:n]

	detected := mimetype.Detect(head)
	replay := io.MultiReader(bytes.NewReader(head), r)
	return detected.String(), replay, nil
}

// mimeMatches compares a sniffed MIME against the extension-mapped
// one, tolerating parameters and the text/plain family fallback.
func mimeMatches(sniffed, expected string) bool {
	s, _, err := mime.ParseMediaType(sniffed)
	if err != nil {
		return false
	}
	if strings.EqualFold(s, expected) {
		return true
	}
	// sniffers cannot tell CSV from plain text
	if expected == "text/csv" && strings.EqualFold(s, "text/plain") {
		return true
	}
	return false
}

func sanitizeFileName(name string) string {
	if name == "" {
		return ""
	}
	clean := path.Base(strings.TrimSpace(name))
	if clean == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(clean))
	for _, r := range clean {
		switch {
		case r == '/' || r == '\\' || unicode.IsControl(r):
			continue
		case unicode.IsSpace(r):
			b.WriteRune('-')
		default:
			b.WriteRune(r)
		}
	}
	return strings.Trim(b.String(), "-_.")
}
