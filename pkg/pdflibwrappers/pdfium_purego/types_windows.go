package pdfium_purego

// culong is C's unsigned long, which is 32 bits wide on Windows.
type culong = uint32

const maxFileLen = int64(1<<32 - 1)

var defaultLibNames = []string{"pdfium.dll", "libpdfium.dll"}
