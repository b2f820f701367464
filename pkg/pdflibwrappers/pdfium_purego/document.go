package pdfium_purego

import (
	"errors"
	"fmt"
	"io"
	"math"
	"runtime"
	"unsafe"
)

// Document is a PDF document opened by PDFium.
// All methods are safe for concurrent use; calls into PDFium are serialized.
type Document struct {
	handle document
	path   string
	data   *[]byte
	stream *StreamAdapter
	pinner runtime.Pinner
	pages  int
	loaded map[int]*Page
}

// Load opens a document held in memory. data must not be modified until the document is closed.
func Load(data []byte, password string) (*Document, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("pdfium: cannot load empty document: %w", ErrFormat)
	}
	if len(data) > math.MaxInt32 {
		return nil, fmt.Errorf("%w: %d bytes in memory", ErrFileTooLarge, len(data))
	}
	lock.Lock()
	defer lock.Unlock()
	if !initialized {
		return nil, ErrNotInitialized
	}
	d := &Document{data: &data}
	d.pinner.Pin(&data[0])
	d.handle = FPDF_LoadMemDocument(unsafe.Pointer(&data[0]), int32(len(data)), cString(password))
	if d.handle == 0 {
		d.pinner.Unpin()
		return nil, fmt.Errorf("pdfium: cannot load document from memory: %w", lastError())
	}
	d.init()
	return d, nil
}

// LoadReader reads r completely and opens the result as a memory document.
func LoadReader(r io.Reader, password string) (*Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("pdfium: reading document: %w", err)
	}
	return Load(data, password)
}

// Open opens the document at path. PDFium reads the file itself.
func Open(path, password string) (*Document, error) {
	lock.Lock()
	defer lock.Unlock()
	if !initialized {
		return nil, ErrNotInitialized
	}
	handle := FPDF_LoadDocument(path, cString(password))
	if handle == 0 {
		return nil, fmt.Errorf("pdfium: cannot load document %s: %w", path, lastError())
	}
	d := &Document{handle: handle, path: path}
	d.init()
	return d, nil
}

// LoadStream opens a document through PDFium's custom file access, reading
// blocks from the adapter on demand. The document takes over the adapter: it is
// closed together with the document, or right away if loading fails.
func LoadStream(a *StreamAdapter, password string) (*Document, error) {
	access, err := a.attach()
	if err != nil {
		return nil, err
	}
	lock.Lock()
	if !initialized {
		lock.Unlock()
		return nil, errors.Join(ErrNotInitialized, a.Close())
	}
	handle := FPDF_LoadCustomDocument(access, cString(password))
	if handle == 0 {
		err := fmt.Errorf("pdfium: cannot load document from stream: %w", lastError())
		lock.Unlock()
		// I/O errors of the source are more telling than PDFium's format error
		return nil, errors.Join(err, a.Err(), a.Close())
	}
	d := &Document{handle: handle, stream: a}
	d.init()
	lock.Unlock()
	return d, nil
}

// OpenReader creates a [StreamAdapter] for src and loads the document from it.
// See [NewStreamAdapter] for the meaning of size and own.
func OpenReader(src any, size int64, own Ownership, password string) (*Document, error) {
	a, err := NewStreamAdapter(src, size, own)
	if err != nil {
		if c, ok := src.(io.Closer); ok && own == Owned {
			err = errors.Join(err, c.Close())
		}
		return nil, err
	}
	return LoadStream(a, password)
}

// init must be called with the lock held.
func (d *Document) init() {
	d.pages = int(FPDF_GetPageCount(d.handle))
	d.loaded = make(map[int]*Page)
}

// Close closes all pages that are still open, the document and its stream adapter, in that order.
// Calling Close more than once is a no-op.
func (d *Document) Close() error {
	lock.Lock()
	if d.handle == 0 {
		lock.Unlock()
		return nil
	}
	for _, p := range d.loaded {
		p.closeLocked()
	}
	FPDF_CloseDocument(d.handle)
	d.handle = 0
	d.loaded = nil
	lock.Unlock()

	d.pinner.Unpin()
	if d.stream != nil {
		return d.stream.Close()
	}
	return nil
}

// Closed reports whether Close has been called.
func (d *Document) Closed() bool {
	lock.Lock()
	defer lock.Unlock()
	return d.handle == 0
}

// Pages returns the number of pages.
func (d *Document) Pages() int {
	return d.pages
}

// Data returns the underlying byte slice, or nil if the document was not loaded from memory.
func (d *Document) Data() *[]byte {
	return d.data
}

// Path returns the path the document was opened from, if any.
func (d *Document) Path() string {
	return d.path
}

// Stream returns the adapter the document reads from, if any.
func (d *Document) Stream() *StreamAdapter {
	return d.stream
}

// FileVersion returns the PDF version, e.g. 17 for PDF-1.7.
// It returns false for documents created from scratch, which have no version.
func (d *Document) FileVersion() (int, bool, error) {
	lock.Lock()
	defer lock.Unlock()
	if d.handle == 0 {
		return 0, false, ErrDocumentClosed
	}
	var version int32
	ok := FPDF_GetFileVersion(d.handle, &version) != 0
	return int(version), ok, nil
}

// Permissions returns the user permission flags (P entry of the encryption dictionary).
// Unencrypted documents report all bits set.
func (d *Document) Permissions() (uint32, error) {
	lock.Lock()
	defer lock.Unlock()
	if d.handle == 0 {
		return 0, ErrDocumentClosed
	}
	return uint32(FPDF_GetDocPermissions(d.handle)), nil
}

// SecurityHandlerRevision returns the revision of the standard security handler
// or -1 if the document is not protected.
func (d *Document) SecurityHandlerRevision() (int, error) {
	lock.Lock()
	defer lock.Unlock()
	if d.handle == 0 {
		return 0, ErrDocumentClosed
	}
	return int(FPDF_GetSecurityHandlerRevision(d.handle)), nil
}

// PageSize returns width and height of page i in points without loading the page.
func (d *Document) PageSize(i int) (width, height float64, err error) {
	lock.Lock()
	defer lock.Unlock()
	if err := d.checkIndex(i); err != nil {
		return 0, 0, err
	}
	if FPDF_GetPageSizeByIndex(d.handle, int32(i), &width, &height) == 0 {
		return 0, 0, fmt.Errorf("pdfium: size of page %d: %w", i, lastError())
	}
	return width, height, nil
}

// PageLabel returns the label of page i, e.g. "iv", or an empty string.
func (d *Document) PageLabel(i int) (string, error) {
	lock.Lock()
	defer lock.Unlock()
	if err := d.checkIndex(i); err != nil {
		return "", err
	}
	return readUtf16(func(buf unsafe.Pointer, n culong) culong {
		return FPDF_GetPageLabel(d.handle, int32(i), buf, n)
	})
}

// Page returns page i, loading it if necessary. Pages are owned by the document:
// they may be closed early, otherwise the document closes them.
func (d *Document) Page(i int) (*Page, error) {
	lock.Lock()
	defer lock.Unlock()
	if err := d.checkIndex(i); err != nil {
		return nil, err
	}
	if p, ok := d.loaded[i]; ok {
		return p, nil
	}
	handle := FPDF_LoadPage(d.handle, int32(i))
	if handle == 0 {
		return nil, fmt.Errorf("pdfium: loading page %d: %w", i, d.loadErrLocked())
	}
	p := &Page{doc: d, handle: handle, index: i}
	d.loaded[i] = p
	return p, nil
}

// LoadedPages returns the number of pages currently loaded.
func (d *Document) LoadedPages() int {
	lock.Lock()
	defer lock.Unlock()
	return len(d.loaded)
}

// Text returns page i's text. The page is closed afterwards unless it was loaded before.
func (d *Document) Text(i int) (string, error) {
	text, err := d.text(i)
	if err != nil {
		return "", err
	}
	result := string(text)
	mempool.Put(text)
	return result, nil
}

// text returns a buffer from the mempool. The caller must put it back.
func (d *Document) text(i int) ([]byte, error) {
	lock.Lock()
	defer lock.Unlock()
	if err := d.checkIndex(i); err != nil {
		return nil, err
	}
	if p, ok := d.loaded[i]; ok {
		return p.textLocked()
	}
	handle := FPDF_LoadPage(d.handle, int32(i))
	if handle == 0 {
		return nil, fmt.Errorf("pdfium: loading page %d: %w", i, d.loadErrLocked())
	}
	defer FPDF_ClosePage(handle)
	p := Page{doc: d, handle: handle, index: i}
	return p.textLocked()
}

// StreamText writes the text of all pages to w, each page followed by a newline.
func (d *Document) StreamText(w io.Writer) error {
	for i := range d.pages {
		pageText, err := d.text(i)
		if err != nil {
			return err
		}
		pageText = mempool.Appended(pageText, append(pageText, '\n'))
		_, err = w.Write(pageText)
		mempool.Put(pageText)
		if err != nil {
			return err
		}
	}
	return nil
}

// loadErrLocked returns PDFium's last error joined with the first read error of the stream, if any.
func (d *Document) loadErrLocked() error {
	err := lastError()
	if d.stream != nil {
		err = errors.Join(err, d.stream.Err())
	}
	return err
}

// checkIndex must be called with the lock held.
func (d *Document) checkIndex(i int) error {
	if d.handle == 0 {
		return ErrDocumentClosed
	}
	if i < 0 || i >= d.pages {
		return fmt.Errorf("pdfium: page index %d out of range [0, %d): %w", i, d.pages, ErrPage)
	}
	return nil
}

// readUtf16 calls a PDFium getter following the "ask for the size, then fill the buffer" convention
// and decodes its UTF-16LE result. The lock must be held.
func readUtf16(get func(buf unsafe.Pointer, n culong) culong) (string, error) {
	buf := mempool.GetSize(mempool.ElemSize())
	defer func() { mempool.Put(buf) }()
	needed := int(get(unsafe.Pointer(&buf[0]), culong(len(buf))))
	if needed <= 2 {
		return "", nil
	}
	if needed > len(buf) {
		// if the buffer was too small, allocate a bigger one
		mempool.Put(buf)
		buf = make([]byte, needed)
		needed = int(get(unsafe.Pointer(&buf[0]), culong(len(buf))))
	}
	str, err := utf16LeToUtf8(buf[:needed])
	return string(str), err
}
