package filters

import (
	"mime"
	"strings"

	htmlcharset "golang.org/x/net/html/charset"
)

var headerDecoder = &mime.WordDecoder{CharsetReader: htmlcharset.NewReaderLabel}

// DecodeHeader decodes RFC 2047 encoded words, returning the input unchanged
// when it is not encoded or cannot be decoded.
func DecodeHeader(value string) string {
	if !strings.Contains(value, "=?") {
		return value
	}
	decoded, err := headerDecoder.DecodeHeader(value)
	if err != nil {
		return value
	}
	return decoded
}
