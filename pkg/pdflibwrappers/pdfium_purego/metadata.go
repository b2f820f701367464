package pdfium_purego

import (
	"fmt"
	"strconv"
	"unsafe"

	"github.com/johbar/pdfstream/internal/pdfdateparser"
)

// metaKeys maps Info dictionary keys to the names used in [Document.MetadataMap].
var metaKeys = []struct{ tag, key string }{
	{"Title", "x-document-title"},
	{"Author", "x-document-author"},
	{"Subject", "x-document-subject"},
	{"Keywords", "x-document-keywords"},
	{"Creator", "x-document-creator"},
	{"Producer", "x-document-producer"},
	{"CreationDate", "x-document-created"},
	{"ModDate", "x-document-modified"},
}

// MetaText returns the value of tag in the document's Info dictionary, e.g. "Title".
func (d *Document) MetaText(tag string) (string, error) {
	lock.Lock()
	defer lock.Unlock()
	if d.handle == 0 {
		return "", ErrDocumentClosed
	}
	return d.metaTextLocked(tag)
}

func (d *Document) metaTextLocked(tag string) (string, error) {
	return readUtf16(func(buf unsafe.Pointer, n culong) culong {
		return FPDF_GetMetaText(d.handle, tag, buf, n)
	})
}

// MetadataMap returns the document's properties. Dates are converted to RFC 3339.
func (d *Document) MetadataMap() map[string]string {
	m := make(map[string]string)
	m["x-parsed-by"] = "PDFium"
	m["x-doctype"] = "pdf"
	m["x-document-pages"] = strconv.Itoa(d.pages)

	lock.Lock()
	defer lock.Unlock()
	if d.handle == 0 {
		return m
	}
	var version int32
	if ok := FPDF_GetFileVersion(d.handle, &version); ok != 0 {
		// the result is 18 for version 1.8 etc
		m["x-document-version"] = fmt.Sprintf("PDF-%.1f", float32(version)/10)
	}
	if rev := FPDF_GetSecurityHandlerRevision(d.handle); rev >= 0 {
		m["x-document-security-revision"] = strconv.Itoa(int(rev))
	}
	for _, k := range metaKeys {
		val, err := d.metaTextLocked(k.tag)
		if err != nil || val == "" {
			continue
		}
		if k.tag == "CreationDate" || k.tag == "ModDate" {
			val = pdfdateparser.PdfDateToIso(val)
			if val == "" {
				continue
			}
		}
		m[k.key] = val
	}
	return m
}
