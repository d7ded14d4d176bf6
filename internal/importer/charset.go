package importer

import (
	"bytes"
	"fmt"
	"unicode/utf8"

	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/transform"
)

// Encoding is the text encoding of an uploaded sheet.
type Encoding string

const (
	EncodingUTF8     Encoding = "utf-8"
	EncodingShiftJIS Encoding = "shift_jis"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// DetectEncoding reports UTF-8 for BOM-prefixed or valid UTF-8 input and
// Shift_JIS otherwise, which is what spreadsheet software in Japan writes
// by default.
func DetectEncoding(data []byte) Encoding {
	if bytes.HasPrefix(data, utf8BOM) || utf8.Valid(data) {
		return EncodingUTF8
	}
	return EncodingShiftJIS
}

// Decode converts data to a UTF-8 string, dropping a UTF-8 BOM.
func Decode(data []byte, enc Encoding) (string, error) {
	switch enc {
	case EncodingUTF8, "":
		data = bytes.TrimPrefix(data, utf8BOM)
		if !utf8.Valid(data) {
			return "", fmt.Errorf("content is not valid UTF-8")
		}
		return string(data), nil
	case EncodingShiftJIS:
		out, _, err := transform.Bytes(japanese.ShiftJIS.NewDecoder(), data)
		if err != nil {
			return "", fmt.Errorf("decode shift_jis: %w", err)
		}
		return string(out), nil
	default:
		return "", fmt.Errorf("unsupported encoding %q", enc)
	}
}
