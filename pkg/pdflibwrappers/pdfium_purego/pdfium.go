// Package pdfium_purego loads the PDFium shared library at runtime and wraps
// its documents and pages. Documents can be loaded from memory, from a path
// or from any seekable byte source by means of PDFium's custom file access.
package pdfium_purego

import (
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"
	"github.com/johbar/pdfstream/pkg/mmappool"
	"github.com/johbar/pdfstream/pkg/pdflibwrappers"
)

type document uintptr
type page uintptr
type textPage uintptr

// LibDirsEnv names the environment variable holding extra directories to search for the library.
const LibDirsEnv = "PDFIUM_LIB_DIRS"

var (
	lib uintptr

	FPDF_InitLibrary    func()
	FPDF_DestroyLibrary func()
	FPDF_GetLastError   func() culong

	// The buffer of a memory document must stay valid until the document is closed
	FPDF_LoadMemDocument    func(data unsafe.Pointer, size int32, password *byte) document
	FPDF_LoadDocument       func(path string, password *byte) document
	FPDF_LoadCustomDocument func(fileAccess unsafe.Pointer, password *byte) document
	// document
	FPDF_GetPageCount  func(docHandle document) int32
	FPDF_CloseDocument func(docHandle document)
	// Get the file version of the specific PDF document. 14 means version 1.4
	FPDF_GetFileVersion             func(docHandle document, result *int32) int32
	FPDF_GetDocPermissions          func(docHandle document) culong
	FPDF_GetSecurityHandlerRevision func(docHandle document) int32
	FPDF_GetPageSizeByIndex         func(docHandle document, index int32, width *float64, height *float64) int32
	// Returns the number of bytes of the UTF-16LE label, including the trailing NULs
	FPDF_GetPageLabel func(docHandle document, index int32, buf unsafe.Pointer, bufLen culong) culong
	/*
		Get the text string of specific tag from meta data of a PDF document.

		Regardless of the platform, the text string is alway in UTF-16LE encoding.
		The string is followed by two bytes of zero indicating the end of the string.
		Returns the number of bytes needed, including the terminator.
	*/
	FPDF_GetMetaText func(docHandle document, tag string, buf unsafe.Pointer, bufLen culong) culong

	// page
	FPDF_LoadPage         func(docHandle document, index int32) page
	FPDF_ClosePage        func(pageHandle page)
	FPDF_GetPageWidthF    func(pageHandle page) float32
	FPDF_GetPageHeightF   func(pageHandle page) float32
	FPDFPage_GetRotation  func(pageHandle page) int32
	FPDFPage_CountObjects func(pageHandle page) int32
	FPDFPage_GetObject    func(pageHandle page, index int32) (pageObjectHandle uintptr)
	FPDFPageObj_GetType   func(objHandle uintptr) int32

	// text
	FPDFText_LoadPage   func(page) textPage
	FPDFText_ClosePage  func(textPage)
	FPDFText_CountChars func(textPage) int32
	// Extract unicode text string from the page, in UTF-16LE encoding.
	// Returns the number of characters written into buf, including the trailing terminator.
	FPDFText_GetText func(textHandle textPage, startIndex int32, count int32, buf unsafe.Pointer) int32

	// PDFium is not thread-safe. This lock guards every call into the library.
	lock sync.Mutex

	initialized bool
	libPath     string

	// Memorypool for UTF-16 buffers
	mempool *mmappool.Mempool
)

// InitLib loads PDFium from path or, if path is empty, from the default locations
// and initializes it. It returns the path the library was loaded from.
// Calling it again after a successful call returns the path in use.
func InitLib(path string) (string, error) {
	lock.Lock()
	defer lock.Unlock()
	if initialized {
		return libPath, nil
	}
	var err error
	if len(path) > 0 {
		lib, path, err = pdflibwrappers.TryLoadLib(path)
	} else {
		lib, path, err = pdflibwrappers.TryLoadLib(pdflibwrappers.Candidates(LibDirsEnv, defaultLibNames...)...)
	}
	if err != nil {
		return "", err
	}
	purego.RegisterLibFunc(&FPDF_InitLibrary, lib, "FPDF_InitLibrary")
	purego.RegisterLibFunc(&FPDF_DestroyLibrary, lib, "FPDF_DestroyLibrary")
	purego.RegisterLibFunc(&FPDF_GetLastError, lib, "FPDF_GetLastError")

	purego.RegisterLibFunc(&FPDF_LoadMemDocument, lib, "FPDF_LoadMemDocument")
	purego.RegisterLibFunc(&FPDF_LoadDocument, lib, "FPDF_LoadDocument")
	purego.RegisterLibFunc(&FPDF_LoadCustomDocument, lib, "FPDF_LoadCustomDocument")
	purego.RegisterLibFunc(&FPDF_CloseDocument, lib, "FPDF_CloseDocument")
	purego.RegisterLibFunc(&FPDF_GetPageCount, lib, "FPDF_GetPageCount")
	purego.RegisterLibFunc(&FPDF_GetFileVersion, lib, "FPDF_GetFileVersion")
	purego.RegisterLibFunc(&FPDF_GetDocPermissions, lib, "FPDF_GetDocPermissions")
	purego.RegisterLibFunc(&FPDF_GetSecurityHandlerRevision, lib, "FPDF_GetSecurityHandlerRevision")
	purego.RegisterLibFunc(&FPDF_GetPageSizeByIndex, lib, "FPDF_GetPageSizeByIndex")
	purego.RegisterLibFunc(&FPDF_GetPageLabel, lib, "FPDF_GetPageLabel")
	purego.RegisterLibFunc(&FPDF_GetMetaText, lib, "FPDF_GetMetaText")

	purego.RegisterLibFunc(&FPDF_LoadPage, lib, "FPDF_LoadPage")
	purego.RegisterLibFunc(&FPDF_ClosePage, lib, "FPDF_ClosePage")
	purego.RegisterLibFunc(&FPDF_GetPageWidthF, lib, "FPDF_GetPageWidthF")
	purego.RegisterLibFunc(&FPDF_GetPageHeightF, lib, "FPDF_GetPageHeightF")
	purego.RegisterLibFunc(&FPDFPage_GetRotation, lib, "FPDFPage_GetRotation")
	purego.RegisterLibFunc(&FPDFPage_CountObjects, lib, "FPDFPage_CountObjects")
	purego.RegisterLibFunc(&FPDFPage_GetObject, lib, "FPDFPage_GetObject")
	purego.RegisterLibFunc(&FPDFPageObj_GetType, lib, "FPDFPageObj_GetType")

	purego.RegisterLibFunc(&FPDFText_LoadPage, lib, "FPDFText_LoadPage")
	purego.RegisterLibFunc(&FPDFText_ClosePage, lib, "FPDFText_ClosePage")
	purego.RegisterLibFunc(&FPDFText_CountChars, lib, "FPDFText_CountChars")
	purego.RegisterLibFunc(&FPDFText_GetText, lib, "FPDFText_GetText")

	FPDF_InitLibrary()
	mempool = mmappool.New(65536, 10, nil)
	initialized = true
	libPath = path
	return path, nil
}

// DestroyLib releases all resources held by PDFium and unloads the library.
// Every document must have been closed before.
func DestroyLib() {
	lock.Lock()
	defer lock.Unlock()
	if !initialized {
		return
	}
	FPDF_DestroyLibrary()
	pdflibwrappers.CloseLib()
	mempool.Free()
	mempool = nil
	initialized = false
	libPath = ""
}

// Initialized reports whether [InitLib] succeeded.
func Initialized() bool {
	lock.Lock()
	defer lock.Unlock()
	return initialized
}

// LibPath returns the path PDFium was loaded from.
func LibPath() string {
	lock.Lock()
	defer lock.Unlock()
	return libPath
}

// cString returns a NUL terminated copy of s or nil if s is empty.
func cString(s string) *byte {
	if s == "" {
		return nil
	}
	b := make([]byte, len(s)+1)
	copy(b, s)
	return &b[0]
}
