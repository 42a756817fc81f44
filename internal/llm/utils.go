package llm

import "encoding/base64"

// DataURL inlines image bytes for chat APIs that take image_url parts.
func DataURL(mimeType string, data []byte) string {
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}
