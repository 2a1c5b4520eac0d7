package filestore

import (
	"encoding/json"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
)

// sniffLen bounds how much content the detector reads.
const sniffLen = 2048

// resolveContentType applies the detection order: caller-declared value,
// magic-byte sniff, filename extension, octet-stream. A sniff result of
// text/plain that parses as strict JSON is upgraded to application/json.
func resolveContentType(declared, filename string, head []byte) string {
	if declared != "" {
		return declared
	}

	if len(head) > 0 {
		sniffed := http.DetectContentType(head)
		if mediatype, _, err := mime.ParseMediaType(sniffed); err == nil {
			sniffed = mediatype
		}
		if sniffed == "text/plain" && json.Valid(head) {
			return "application/json"
		}
		if sniffed != "application/octet-stream" {
			return sniffed
		}
	}

	if ext := filepath.Ext(filename); ext != "" {
		if byExt := mime.TypeByExtension(ext); byExt != "" {
			if mediatype, _, err := mime.ParseMediaType(byExt); err == nil {
				return mediatype
			}
			return byExt
		}
	}

	return "application/octet-stream"
}

// isZipContentType reports whether a content type names a zip archive.
func isZipContentType(ct string) bool {
	ct = strings.ToLower(ct)
	return ct == "application/zip" || ct == "application/x-zip-compressed"
}
