// Package testpdf builds small, valid PDF files for tests.
package testpdf

import (
	"bytes"
	"fmt"
	"strings"
)

// Options describe the document to build.
type Options struct {
	// Text of each page; one page per entry, lines separated by \n
	Pages        []string
	Title        string
	Author       string
	CreationDate string
	// Rotate is applied to every page
	Rotate int
}

// Build returns a PDF 1.7 file with Helvetica text on A4 pages.
func Build(o Options) []byte {
	if len(o.Pages) == 0 {
		o.Pages = []string{""}
	}
	var buf bytes.Buffer
	var offsets []int
	obj := func(body string) int {
		offsets = append(offsets, buf.Len())
		n := len(offsets)
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", n, body)
		return n
	}
	buf.WriteString("%PDF-1.7\n%\xe2\xe3\xcf\xd3\n")

	// object numbers are fixed: 1 catalog, 2 page tree, 3 font, then a page and its content per page
	numPages := len(o.Pages)
	kids := make([]string, numPages)
	for i := range o.Pages {
		kids[i] = fmt.Sprintf("%d 0 R", 4+2*i)
	}
	obj("<< /Type /Catalog /Pages 2 0 R >>")
	obj(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), numPages))
	obj("<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>")
	for i, text := range o.Pages {
		obj(fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 595 842] /Rotate %d /Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R >>", o.Rotate, 5+2*i))
		lines := strings.Split(text, "\n")
		for j, l := range lines {
			lines[j] = "(" + escape(l) + ") Tj"
		}
		content := fmt.Sprintf("BT /F1 12 Tf 14 TL 72 720 Td %s ET", strings.Join(lines, " T* "))
		obj(fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content))
	}
	var info []string
	if o.Title != "" {
		info = append(info, "/Title ("+escape(o.Title)+")")
	}
	if o.Author != "" {
		info = append(info, "/Author ("+escape(o.Author)+")")
	}
	if o.CreationDate != "" {
		info = append(info, "/CreationDate ("+escape(o.CreationDate)+")")
	}
	infoRef := ""
	if len(info) > 0 {
		n := obj("<< " + strings.Join(info, " ") + " >>")
		infoRef = fmt.Sprintf(" /Info %d 0 R", n)
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(offsets)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R%s >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, infoRef, xref)
	return buf.Bytes()
}

func escape(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `(`, `\(`, `)`, `\)`)
	return r.Replace(s)
}
