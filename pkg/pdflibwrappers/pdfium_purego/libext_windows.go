package pdfium_purego

const libExtension = ".dll"
