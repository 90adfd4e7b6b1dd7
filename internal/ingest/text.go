package ingest

import (
	"bytes"
	"fmt"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// decodeText converts raw upload bytes to a UTF-8 string. Valid UTF-8
// (with or without a BOM) passes through unchanged; anything else is
// decoded as Windows-1252, which covers Latin-1 exports without pulling
// in charset detection.
func decodeText(data []byte) (string, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if utf8.Valid(data) {
		return string(data), nil
	}
	decoded, err := charmap.Windows1252.NewDecoder().Bytes(data)
	if err != nil {
		return "", fmt.Errorf("decoding as windows-1252: %w", err)
	}
	return string(decoded), nil
}
