//go:build !windows

package pdfium_purego

// culong is C's unsigned long, which is 64 bits wide on LP64 platforms.
type culong = uint64

const maxFileLen = int64(1<<63 - 1)

var defaultLibNames = []string{"libpdfium.so", "libpdfium.dylib", "./libpdfium.so", "/usr/lib/libpdfium.so", "/usr/local/lib/libpdfium.so", "/opt/pdfium/lib/libpdfium.so"}
