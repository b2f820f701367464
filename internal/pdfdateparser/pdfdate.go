// Package pdfdateparser converts the ModDate and CreationDate fields from PDF metadata to time.Time objects.
package pdfdateparser

import (
	"fmt"
	"strings"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// PdfDateToTime parses a date/time string from PDF metadata, e.g. "D:20240419110302+02'00'".
// Dates without time zone are interpreted as UTC.
func PdfDateToTime(pdfdate string) (time.Time, error) {
	// some producers pad the date with whitespace or NULs
	pdfdate = strings.Trim(pdfdate, " \x00")
	result, ok := types.DateTime(pdfdate, true)
	if !ok {
		return time.Time{}, fmt.Errorf("date %q could not be parsed", pdfdate)
	}
	return result, nil
}

// PdfDateToIso returns the PDF date/time as RFC3339 string.
// Returns an empty string if the date can not be parsed.
func PdfDateToIso(pdfdate string) string {
	if pdfdate == "" {
		return ""
	}
	t, err := PdfDateToTime(pdfdate)
	if err != nil {
		return ""
	}
	return t.Format(time.RFC3339)
}
