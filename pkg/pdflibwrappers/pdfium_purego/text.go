package pdfium_purego

import (
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// utf16LeToUtf8 decodes the UTF-16LE bytes PDFium emits.
// A trailing NUL terminator is stripped.
func utf16LeToUtf8(data []byte) ([]byte, error) {
	if n := len(data); n >= 2 && data[n-1] == 0 && data[n-2] == 0 {
		data = data[:n-2]
	}
	result, _, err := transform.Bytes(unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder(), data)
	if err != nil {
		return []byte{}, err
	}
	return result, nil
}

// cleanText maps PDFium's text artifacts.
func cleanText(r rune) rune {
	switch r {
	case '\u0000':
		// PDFium inserts NUL bytes around headers and footers
		return '\n'
	case '\uFFFE':
		// PDFium replaces hyphens at line breaks with U+FFFE
		return -1
	case '\r':
		// PDFium outputs windows-like newlines (CRLF)
		return -1
	default:
		return r
	}
}

// mapBytes returns the byte slice s with all its characters modified
// according to the mapping function. If mapping returns a negative value, the character is
// dropped from the byte slice with no replacement. The characters in s and the
// output are interpreted as UTF-8-encoded code points.
// result may share its backing array with s, as long as mapping never
// produces a rune longer than its input.
func mapBytes(mapping func(r rune) rune, s []byte, result []byte) []byte {
	for i := 0; i < len(s); {
		wid := 1
		r := rune(s[i])
		if r >= utf8.RuneSelf {
			r, wid = utf8.DecodeRune(s[i:])
		}
		r = mapping(r)
		if r >= 0 {
			result = utf8.AppendRune(result, r)
		}
		i += wid
	}
	return result
}
