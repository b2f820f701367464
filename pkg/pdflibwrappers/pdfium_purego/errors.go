package pdfium_purego

import (
	"errors"
	"fmt"
)

// ErrorCode is an error reported by FPDF_GetLastError.
type ErrorCode uint32

// Error codes as defined in fpdfview.h
const (
	ErrUnknown   ErrorCode = 1
	ErrFile      ErrorCode = 2
	ErrFormat    ErrorCode = 3
	ErrPassword  ErrorCode = 4
	ErrSecurity  ErrorCode = 5
	ErrPage      ErrorCode = 6
	ErrXFALoad   ErrorCode = 7
	ErrXFALayout ErrorCode = 8
)

var (
	ErrNotInitialized = errors.New("pdfium: library not initialized")
	ErrDocumentClosed = errors.New("pdfium: document is closed")
	ErrPageClosed     = errors.New("pdfium: page is closed")
	ErrAdapterInUse   = errors.New("pdfium: stream adapter already backs a document")
	ErrAdapterClosed  = errors.New("pdfium: stream adapter is closed")
	ErrFileTooLarge   = errors.New("pdfium: file too large for custom file access")
	ErrUnknownSize    = errors.New("pdfium: size of stream can not be determined")
	ErrUnsupported    = errors.New("pdfium: source must implement io.ReaderAt or io.ReadSeeker")
)

func (c ErrorCode) Error() string {
	switch c {
	case ErrUnknown:
		return "pdfium: unknown error"
	case ErrFile:
		return "pdfium: file not found or could not be opened"
	case ErrFormat:
		return "pdfium: file not in PDF format or corrupted"
	case ErrPassword:
		return "pdfium: password required or incorrect password"
	case ErrSecurity:
		return "pdfium: unsupported security scheme"
	case ErrPage:
		return "pdfium: page not found or content error"
	case ErrXFALoad:
		return "pdfium: load XFA error"
	case ErrXFALayout:
		return "pdfium: layout XFA error"
	}
	return fmt.Sprintf("pdfium: error code %d", uint32(c))
}

// lastError returns the error PDFium recorded for the last failed call.
// FPDF_ERR_SUCCESS is reported as ErrUnknown, as it is only
// consulted after a call failed.
// The caller must hold the lock.
func lastError() error {
	code := ErrorCode(FPDF_GetLastError())
	if code == 0 {
		return ErrUnknown
	}
	return code
}
