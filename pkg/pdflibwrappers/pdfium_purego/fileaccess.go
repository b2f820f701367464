package pdfium_purego

import (
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/ebitengine/purego"
)

// Ownership decides who closes the byte source behind a [StreamAdapter].
type Ownership int

const (
	// Borrowed sources stay open when the adapter is released. The caller closes them.
	Borrowed Ownership = iota
	// Owned sources are closed together with the adapter, if they implement io.Closer.
	Owned
)

func (o Ownership) String() string {
	if o == Owned {
		return "owned"
	}
	return "borrowed"
}

// fileAccess mirrors FPDF_FILEACCESS from fpdfview.h.
type fileAccess struct {
	fileLen  culong
	getBlock uintptr
	param    uintptr
}

// StreamStats counts the block reads PDFium issued through an adapter.
type StreamStats struct {
	Reads int64
	Bytes int64
}

// StreamAdapter exposes a seekable byte source to PDFium as custom file access.
// PDFium reads blocks on demand, so the source is never buffered as a whole.
// An adapter backs at most one document and must outlive it; [Document.Close]
// takes care of that.
type StreamAdapter struct {
	id     uintptr
	src    io.ReaderAt
	closer io.Closer
	size   int64
	own    Ownership
	access *fileAccess
	pinner runtime.Pinner

	mu       sync.Mutex
	err      error
	attached bool
	closed   bool

	reads atomic.Int64
	bytes atomic.Int64
}

// NewStreamAdapter wraps src, which must implement io.ReaderAt or io.ReadSeeker.
// ReaderAt is preferred, because it has no shared cursor.
// A negative size is determined from the source: by a Size() method, Stat() or seeking to its end.
func NewStreamAdapter(src any, size int64, own Ownership) (*StreamAdapter, error) {
	ra, err := asReaderAt(src)
	if err != nil {
		return nil, err
	}
	if size < 0 {
		size, err = sizeOf(src)
		if err != nil {
			return nil, err
		}
	}
	if size > maxFileLen {
		return nil, fmt.Errorf("%w: %d bytes", ErrFileTooLarge, size)
	}
	a := &StreamAdapter{src: ra, size: size, own: own}
	if c, ok := src.(io.Closer); ok {
		a.closer = c
	}
	a.access = &fileAccess{fileLen: culong(size)}
	a.id = registerAdapter(a)
	a.access.param = a.id
	return a, nil
}

// Size returns the length of the byte source as announced to PDFium.
func (a *StreamAdapter) Size() int64 {
	return a.size
}

// Ownership reports whether the adapter closes its source.
func (a *StreamAdapter) Ownership() Ownership {
	return a.own
}

// Err returns the first error encountered while PDFium was reading blocks.
func (a *StreamAdapter) Err() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.err
}

// Stats returns the number of block reads and bytes delivered to PDFium so far.
func (a *StreamAdapter) Stats() StreamStats {
	return StreamStats{Reads: a.reads.Load(), Bytes: a.bytes.Load()}
}

// attach hands out the FPDF_FILEACCESS struct for a document that is about to be loaded.
// The struct is pinned until the adapter is closed.
func (a *StreamAdapter) attach() (unsafe.Pointer, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil, ErrAdapterClosed
	}
	if a.attached {
		return nil, ErrAdapterInUse
	}
	a.attached = true
	a.access.getBlock = getBlockCallback()
	a.pinner.Pin(a.access)
	return unsafe.Pointer(a.access), nil
}

// Close unregisters the adapter from the callback and closes an owned source.
// It must not be called while a document loaded from it is open.
// Calling Close more than once is a no-op.
func (a *StreamAdapter) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	a.mu.Unlock()

	unregisterAdapter(a.id)
	a.pinner.Unpin()
	if a.own == Owned && a.closer != nil {
		return a.closer.Close()
	}
	return nil
}

// readBlock fills buf with the bytes at position. It reports false
// when the range is outside the source or the source failed.
func (a *StreamAdapter) readBlock(position int64, buf []byte) bool {
	if position < 0 || position+int64(len(buf)) > a.size {
		a.setErr(fmt.Errorf("block [%d, %d) out of range, size is %d", position, position+int64(len(buf)), a.size))
		return false
	}
	n, err := a.src.ReadAt(buf, position)
	if n == len(buf) {
		// ReaderAt may return io.EOF along with a full buffer at the end of the source
		err = nil
	} else if err == nil || errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}
	if err != nil {
		a.setErr(fmt.Errorf("reading %d bytes at offset %d: %w", len(buf), position, err))
		return false
	}
	a.reads.Add(1)
	a.bytes.Add(int64(n))
	return true
}

func (a *StreamAdapter) setErr(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err == nil {
		a.err = err
	}
}

// Purego callbacks can not be freed and there is a fixed number of them.
// So there is exactly one m_GetBlock for all adapters; m_Param identifies the adapter.
var (
	callbackOnce sync.Once
	callbackPtr  uintptr

	registry = struct {
		sync.RWMutex
		next     uintptr
		adapters map[uintptr]*StreamAdapter
	}{adapters: make(map[uintptr]*StreamAdapter)}
)

func getBlockCallback() uintptr {
	callbackOnce.Do(func() {
		callbackPtr = purego.NewCallback(getBlock)
	})
	return callbackPtr
}

func registerAdapter(a *StreamAdapter) uintptr {
	registry.Lock()
	defer registry.Unlock()
	registry.next++
	registry.adapters[registry.next] = a
	return registry.next
}

func unregisterAdapter(id uintptr) {
	registry.Lock()
	defer registry.Unlock()
	delete(registry.adapters, id)
}

func lookupAdapter(id uintptr) *StreamAdapter {
	registry.RLock()
	defer registry.RUnlock()
	return registry.adapters[id]
}

// getBlock implements m_GetBlock. All arguments are register sized, because
// Windows callbacks require that; position and size are C unsigned longs,
// so the upper bits are discarded where those are 32 bits wide.
// It runs while PDFium is executing a call, so it must not take the package lock.
func getBlock(param uintptr, position uintptr, pBuf unsafe.Pointer, size uintptr) uintptr {
	a := lookupAdapter(param)
	if a == nil || pBuf == nil {
		return 0
	}
	n := int(culong(size))
	if n == 0 {
		return 1
	}
	buf := unsafe.Slice((*byte)(pBuf), n)
	if a.readBlock(int64(culong(position)), buf) {
		return 1
	}
	return 0
}

// asReaderAt returns src as io.ReaderAt. Seekers are wrapped, so that
// every block read seeks to its position first.
func asReaderAt(src any) (io.ReaderAt, error) {
	switch s := src.(type) {
	case io.ReaderAt:
		return s, nil
	case io.ReadSeeker:
		return &seekReaderAt{rs: s}, nil
	}
	return nil, fmt.Errorf("%w, got %T", ErrUnsupported, src)
}

func sizeOf(src any) (int64, error) {
	switch s := src.(type) {
	case interface{ Size() int64 }:
		return s.Size(), nil
	case interface{ Stat() (os.FileInfo, error) }:
		fi, err := s.Stat()
		if err != nil {
			return 0, fmt.Errorf("%w: %w", ErrUnknownSize, err)
		}
		if !fi.Mode().IsRegular() {
			return 0, fmt.Errorf("%w: %s is not a regular file", ErrUnknownSize, fi.Name())
		}
		return fi.Size(), nil
	case io.Seeker:
		cur, err := s.Seek(0, io.SeekCurrent)
		if err != nil {
			return 0, fmt.Errorf("%w: %w", ErrUnknownSize, err)
		}
		end, err := s.Seek(0, io.SeekEnd)
		if err != nil {
			return 0, fmt.Errorf("%w: %w", ErrUnknownSize, err)
		}
		if _, err := s.Seek(cur, io.SeekStart); err != nil {
			return 0, fmt.Errorf("%w: %w", ErrUnknownSize, err)
		}
		return end, nil
	}
	return 0, ErrUnknownSize
}

// seekReaderAt turns an io.ReadSeeker into an io.ReaderAt.
type seekReaderAt struct {
	mu sync.Mutex
	rs io.ReadSeeker
}

func (s *seekReaderAt) ReadAt(p []byte, off int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.rs.Seek(off, io.SeekStart); err != nil {
		return 0, err
	}
	return io.ReadFull(s.rs, p)
}
