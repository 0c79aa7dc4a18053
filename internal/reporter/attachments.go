package reporter

import (
	"mime"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

const fallbackMIME = "application/octet-stream"

// DetectMIME sniffs the media type of data. When sniffing only yields the
// generic types it falls back to the declared type if that parses, then to
// application/octet-stream. ok is false when the fallback was used.
func DetectMIME(data []byte, declared string) (mimeType string, ok bool) {
	detected := baseType(mimetype.Detect(data).String())
	if !generic(detected) {
		return detected, true
	}
	if declared != "" {
		if d, _, err := mime.ParseMediaType(declared); err == nil {
			return d, true
		}
	}
	if detected != "" && detected != fallbackMIME {
		return detected, true
	}
	return fallbackMIME, false
}

// baseType drops parameters such as charset.
func baseType(t string) string {
	if base, _, err := mime.ParseMediaType(t); err == nil {
		return base
	}
	return ""
}

// generic reports whether a sniffed type carries no more information than the
// runner's declaration would.
func generic(t string) bool {
	return t == "" || t == fallbackMIME || t == "text/plain"
}

// attachmentName derives a file-like name for an attachment from its type.
func attachmentName(mimeType string) string {
	if m := mimetype.Lookup(mimeType); m != nil && m.Extension() != "" {
		return "attachment" + m.Extension()
	}
	if i := strings.IndexByte(mimeType, '/'); i > 0 {
		return mimeType[:i]
	}
	return "attachment"
}
