//go:build !windows && !darwin

package pdfium_purego

const libExtension = ".so"
