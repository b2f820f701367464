//go:build embed_pdfium

package pdfium_purego

import (
	_ "embed"
	"errors"
	"os"
)

const PdfiumEmbedded = true

// pdfiumBlob is the shared library for the target platform, placed in lib/ before building.
//
//go:embed lib/libpdfium
var pdfiumBlob []byte

// ExtractLibpdfium writes the embedded library to a temporary file and returns its path.
// The caller is responsible for removing it.
func ExtractLibpdfium() (string, error) {
	if len(pdfiumBlob) == 0 {
		return "", errors.New("extraction of libpdfium has been requested, but it is not embedded in this build")
	}
	f, err := os.CreateTemp("", "libpdfium*"+libExtension)
	if err != nil {
		return "", err
	}
	defer f.Close()
	_, err = f.Write(pdfiumBlob)
	return f.Name(), err
}
