package sheet

import (
	"fmt"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// Encoding represents a text encoding
type Encoding string

const (
	EncodingUTF8        Encoding = "utf-8"
	EncodingWindows1250 Encoding = "windows-1250"
	EncodingISO88592    Encoding = "iso-8859-2"
)

// DetectEncoding detects the encoding of a byte buffer. Anything that is not
// valid UTF-8 is assumed to be Windows-1250, the usual export of regional shops.
func DetectEncoding(data []byte) Encoding {
	if len(data) >= 3 && data[0] == 0xEF && data[1] == 0xBB && data[2] == 0xBF {
		return EncodingUTF8
	}
	if utf8.Valid(data) {
		return EncodingUTF8
	}
	return EncodingWindows1250
}

// Decode converts data from enc to a UTF-8 string. Valid UTF-8 input is
// returned as is regardless of enc, to avoid double decoding.
func Decode(data []byte, enc Encoding) (string, error) {
	data = trimBOM(data)
	if utf8.Valid(data) {
		return string(data), nil
	}

	switch enc {
	case EncodingISO88592:
		out, err := charmap.ISO8859_2.NewDecoder().Bytes(data)
		if err != nil {
			return "", fmt.Errorf("decode iso-8859-2: %w", err)
		}
		return string(out), nil
	default:
		out, err := charmap.Windows1250.NewDecoder().Bytes(data)
		if err != nil {
			return "", fmt.Errorf("decode windows-1250: %w", err)
		}
		return string(out), nil
	}
}

func trimBOM(data []byte) []byte {
	if len(data) >= 3 && data[0] == 0xEF && data[1] == 0xBB && data[2] == 0xBF {
		return data[3:]
	}
	return data
}
