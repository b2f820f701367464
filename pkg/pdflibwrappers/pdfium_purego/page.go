package pdfium_purego

import (
	"fmt"
	"unsafe"
)

// FPDF_PAGEOBJ_IMAGE
const pageObjImage = 3

// Page is a loaded page of a [Document]. It becomes invalid when it or its document is closed.
type Page struct {
	doc    *Document
	handle page
	index  int
}

// Index returns the zero based page number.
func (p *Page) Index() int {
	return p.index
}

// Close releases the page. The document stays open.
// Calling Close more than once is a no-op.
func (p *Page) Close() {
	lock.Lock()
	defer lock.Unlock()
	p.closeLocked()
}

func (p *Page) closeLocked() {
	if p.handle == 0 {
		return
	}
	FPDF_ClosePage(p.handle)
	p.handle = 0
	if p.doc.loaded != nil {
		delete(p.doc.loaded, p.index)
	}
}

// Size returns width and height in points.
func (p *Page) Size() (width, height float32, err error) {
	lock.Lock()
	defer lock.Unlock()
	if p.handle == 0 {
		return 0, 0, ErrPageClosed
	}
	return FPDF_GetPageWidthF(p.handle), FPDF_GetPageHeightF(p.handle), nil
}

// Width returns the page width in points.
func (p *Page) Width() (float32, error) {
	w, _, err := p.Size()
	return w, err
}

// Height returns the page height in points.
func (p *Page) Height() (float32, error) {
	_, h, err := p.Size()
	return h, err
}

// Rotation returns the page's rotation in degrees clockwise (0, 90, 180 or 270).
func (p *Page) Rotation() (int, error) {
	lock.Lock()
	defer lock.Unlock()
	if p.handle == 0 {
		return 0, ErrPageClosed
	}
	return int(FPDFPage_GetRotation(p.handle)) * 90, nil
}

// CountObjects returns the number of page objects (text, paths, images...).
func (p *Page) CountObjects() (int, error) {
	lock.Lock()
	defer lock.Unlock()
	if p.handle == 0 {
		return 0, ErrPageClosed
	}
	return int(FPDFPage_CountObjects(p.handle)), nil
}

// CountImages returns the number of image objects on the page.
func (p *Page) CountImages() (int, error) {
	lock.Lock()
	defer lock.Unlock()
	if p.handle == 0 {
		return 0, ErrPageClosed
	}
	objCount := FPDFPage_CountObjects(p.handle)
	imgCount := 0
	for i := range objCount {
		if obj := FPDFPage_GetObject(p.handle, i); FPDFPageObj_GetType(obj) == pageObjImage {
			imgCount++
		}
	}
	return imgCount, nil
}

// Text returns the page's text as UTF-8.
func (p *Page) Text() (string, error) {
	lock.Lock()
	text, err := p.textLocked()
	lock.Unlock()
	if err != nil {
		return "", err
	}
	result := string(text)
	mempool.Put(text)
	return result, nil
}

// textLocked returns a buffer from the mempool, which the caller must put back.
func (p *Page) textLocked() ([]byte, error) {
	if p.handle == 0 {
		return nil, ErrPageClosed
	}
	t := FPDFText_LoadPage(p.handle)
	if t == 0 {
		return nil, fmt.Errorf("pdfium: loading text of page %d: %w", p.index, lastError())
	}
	defer FPDFText_ClosePage(t)
	chars := int(FPDFText_CountChars(t))
	if chars <= 0 {
		return mempool.GetSize(0), nil
	}
	// two bytes per UTF-16 code unit plus the terminator
	charData := mempool.GetSize(2*chars + 2)
	written := int(FPDFText_GetText(t, 0, int32(chars), unsafe.Pointer(&charData[0])))
	if written <= 0 {
		return charData[:0], nil
	}
	utf8, err := utf16LeToUtf8(charData[:2*written])
	if err != nil {
		mempool.Put(charData)
		return nil, fmt.Errorf("pdfium: decoding text of page %d: %w", p.index, err)
	}
	// dense CJK text needs more bytes in UTF-8 than in UTF-16
	return mempool.Appended(charData, mapBytes(cleanText, utf8, charData[:0])), nil
}
