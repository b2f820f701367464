package pdfium_purego

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/johbar/pdfstream/pkg/mmappool"
	"golang.org/x/text/encoding/unicode"
)

func utf16le(t *testing.T, s string) []byte {
	t.Helper()
	b, err := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewEncoder().Bytes([]byte(s))
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestUtf16LeToUtf8(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
		want string
	}{
		{"empty", nil, ""},
		{"terminator only", []byte{0, 0}, ""},
		{"ascii", append(utf16le(t, "Drucksache 20/1"), 0, 0), "Drucksache 20/1"},
		{"umlauts without terminator", utf16le(t, "Größe"), "Größe"},
		{"surrogate pair", append(utf16le(t, "𝄞 clef"), 0, 0), "𝄞 clef"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := utf16LeToUtf8(tt.in)
			if err != nil {
				t.Fatal(err)
			}
			if string(got) != tt.want {
				t.Errorf("utf16LeToUtf8() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCleanTextInPlace(t *testing.T) {
	in := []byte("Kopf\x00zei\uFFFElen\r\nText")
	got := mapBytes(cleanText, in, in[:0])
	if want := "Kopf\nzeilen\nText"; string(got) != want {
		t.Errorf("mapBytes() = %q, want %q", got, want)
	}
}

func TestDenseTextOutgrowsPooledBuffer(t *testing.T) {
	pool := mmappool.New(64, 2, nil)
	// 30 CJK characters take 60 bytes in UTF-16 but 90 in UTF-8
	want := strings.Repeat("德国联邦议院", 5)
	charData := pool.GetSize(2*utf8.RuneCountInString(want) + 2)
	if cap(charData) != pool.ElemSize() {
		t.Fatalf("want pooled buffer, got cap %d", cap(charData))
	}
	n := copy(charData, utf16le(t, want))
	decoded, err := utf16LeToUtf8(charData[:n])
	if err != nil {
		t.Fatal(err)
	}
	got := pool.Appended(charData, mapBytes(cleanText, decoded, charData[:0]))
	if string(got) != want {
		t.Errorf("want %q, got %q", want, got)
	}
	if pool.CurrentSize() != 1 {
		t.Errorf("pooled buffer was not put back, pool holds %d", pool.CurrentSize())
	}
	pool.Put(got)
	if errs := pool.Free(); len(errs) > 0 {
		t.Error(errs)
	}
}
