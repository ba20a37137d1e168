package csv

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

const utf8BOM = "\uFEFF"

// StripHeaderBOM removes a UTF-8 BOM from the first header cell if present.
func StripHeaderBOM(headers []string) []string {
	if len(headers) == 0 {
		return headers
	}
	if strings.HasPrefix(headers[0], utf8BOM) {
		headers[0] = strings.TrimPrefix(headers[0], utf8BOM)
	}
	return headers
}

// CleanHeader strips the BOM, trims surrounding space and converts every
// header cell to Unicode NFC so that column lookups by name are stable.
func CleanHeader(headers []string) []string {
	headers = StripHeaderBOM(headers)
	out := make([]string, len(headers))
	for i, h := range headers {
		out[i] = norm.NFC.String(strings.TrimSpace(h))
	}
	return out
}
