package reporter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectMIME(t *testing.T) {
	tests := []struct {
		name     string
		data     string
		declared string
		want     string
		ok       bool
	}{
		{"png beats declaration", "\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR", "image/jpeg", "image/png", true},
		{"json", `{"user":"ada","roles":["admin"]}`, "", "application/json", true},
		{"xml", `<?xml version="1.0"?><report/>`, "", "text/xml", true},
		{"zip", "PK\x03\x04\x14\x00\x00\x00\x08\x00", "", "application/zip", true},
		{"plain text takes declaration", "id,name\n1,ada\n", "text/csv; charset=utf-8", "text/csv", true},
		{"plain text without declaration", "just a line", "", "text/plain", true},
		{"binary with bad declaration", "\x00\x01\x02\x03", "not a type", fallbackMIME, false},
		{"binary without declaration", "\x00\x01\x02\x03", "", fallbackMIME, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := DetectMIME([]byte(tt.data), tt.declared)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.ok, ok)
		})
	}
}

func TestAttachmentName(t *testing.T) {
	assert.Equal(t, "attachment.png", attachmentName("image/png"))
	assert.Equal(t, "attachment.json", attachmentName("application/json"))
	assert.Equal(t, "video", attachmentName("video/x-unheard-of"))
	assert.Equal(t, "attachment", attachmentName("garbage"))
}
