package docfactory

import (
	"errors"
	"os"

	pdfium "github.com/johbar/pdfstream/pkg/pdflibwrappers/pdfium_purego"
)

type pdfImplementation struct {
	LibDescription string
	LibPath        string
	Embedded       bool
}

// initPdfium loads PDFium from libPath or the default locations.
// If that fails and the library is embedded in the binary, it is extracted to a temp file and loaded from there.
func (df *DocFactory) initPdfium(libPath string) (pdfImplementation, error) {
	libPath, err := pdfium.InitLib(libPath)
	if err == nil {
		return pdfImplementation{LibDescription: "PDFium", LibPath: libPath}, nil
	}
	var err2 error
	libPath, err2 = pdfium.ExtractLibpdfium()
	if err2 != nil {
		return pdfImplementation{}, errors.Join(err, err2)
	}
	df.log.Debug("libpdfium extracted to temp dir", "path", libPath)
	libPath, err2 = pdfium.InitLib(libPath)
	if err2 != nil {
		return pdfImplementation{}, errors.Join(err, err2)
	}
	return pdfImplementation{LibDescription: "PDFium (embedded)", LibPath: libPath, Embedded: true}, nil
}

func (df *DocFactory) PdfImpl() pdfImplementation {
	return df.pdfImpl
}

// Close unloads PDFium. A library extracted from the binary is deleted.
// All documents must have been closed before.
func (df *DocFactory) Close() {
	if df.pdfImpl.LibPath == "" {
		return
	}
	pdfium.DestroyLib()
	if !df.pdfImpl.Embedded {
		return
	}
	if err := os.Remove(df.pdfImpl.LibPath); err != nil {
		df.log.Warn("Could not delete libpdfium in temp dir", "path", df.pdfImpl.LibPath, "err", err)
		return
	}
	df.log.Debug("libpdfium deleted in temp dir", "path", df.pdfImpl.LibPath)
}
