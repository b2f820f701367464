package pdfium_purego

const libExtension = ".dylib"
