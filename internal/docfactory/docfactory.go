// Package docfactory opens PDF documents from bytes, files, streams and URLs,
// choosing between loading them into memory and letting PDFium read blocks on demand.
package docfactory

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"
	"github.com/johbar/pdfstream/internal/cache"
	"github.com/johbar/pdfstream/internal/config"
	pdfium "github.com/johbar/pdfstream/pkg/pdflibwrappers/pdfium_purego"
	"github.com/johbar/pdfstream/pkg/rangereader"
)

const pdfMimetype = "application/pdf"

var (
	errZeroSize = errors.New("zero-length data can not be parsed")
	errTooLarge = errors.New("file too large")
	errNotPdf   = errors.New("not a PDF document")
)

type DocFactory struct {
	MaxInMemoryBytes uint64
	MaxFileSizeBytes uint64
	RangeBlockSize   int64
	RangeCacheBlocks int
	RangeDisabled    bool
	pdfImpl          pdfImplementation
	log              *slog.Logger
	client           *http.Client
}

// New loads PDFium and returns a DocFactory. Failing to load the library is logged,
// every subsequent attempt to open a document will fail then.
func New(conf *config.PdfsConfig, logger *slog.Logger, client *http.Client) *DocFactory {
	df := &DocFactory{
		MaxInMemoryBytes: conf.MaxInMemoryBytes,
		MaxFileSizeBytes: conf.MaxFileSizeBytes,
		RangeBlockSize:   int64(conf.RangeBlockSizeBytes),
		RangeCacheBlocks: conf.RangeCacheBlocks,
		RangeDisabled:    conf.RangeDisabled,
		log:              logger,
		client:           client,
	}
	if logger == nil {
		df.log = slog.New(slog.DiscardHandler)
	}
	if client == nil {
		df.client = http.DefaultClient
	}
	imp, err := df.initPdfium(conf.PdfLibPath)
	if err != nil {
		df.log.Error("PDF library could not be loaded", "err", err)
		return df
	}
	df.pdfImpl = imp
	return df
}

// Remote is a document fetched from a web server.
type Remote struct {
	// Doc is nil if the server answered 304 Not Modified
	Doc         cache.Document
	NotModified bool
	// Header of the (first) response
	Header        http.Header
	ContentLength int64
	// Ranged is true if PDFium reads the document with HTTP range requests
	Ranged bool
}

// tempFile is removed from disk when it is closed.
type tempFile struct {
	*os.File
}

func (t tempFile) Close() error {
	return errors.Join(t.File.Close(), os.Remove(t.Name()))
}

func newTempFile(origin string) (*os.File, error) {
	fileName := "*-unknown"
	if u, err := url.Parse(origin); err == nil && u.Path != "" {
		fileName = "*-" + filepath.Base(u.Path)
	}
	return os.CreateTemp(os.TempDir(), fileName)
}

// spool copies r to a temp file. If limit is positive and r holds more than limit bytes, errTooLarge is returned.
func (df *DocFactory) spool(r io.Reader, origin string, limit int64) (tempFile, error) {
	f, err := newTempFile(origin)
	if err != nil {
		return tempFile{}, fmt.Errorf("creating temp file for origin %s: %w", origin, err)
	}
	t := tempFile{f}
	df.log.Debug("Saving file", "origin", origin, "path", f.Name())
	src := r
	if limit > 0 {
		src = io.LimitReader(r, limit+1)
	}
	n, err := io.Copy(f, src)
	if err == nil && limit > 0 && n > limit {
		err = errTooLarge
	}
	if err != nil {
		return tempFile{}, errors.Join(err, t.Close())
	}
	df.log.Info("File saved", "path", f.Name(), "origin", origin, "size", humanize.Bytes(uint64(n)))
	return t, nil
}

func (df *DocFactory) handleUnknownSize(r io.Reader, origin string) (cache.Document, error) {
	// HTTP chunked encoding or reading from stdin
	buf := make([]byte, df.MaxInMemoryBytes)
	df.log.Debug("Reading stream of unknown size", "origin", origin, "buf", len(buf))
	n, err := io.ReadFull(r, buf)
	df.log.Debug("Finished reading first chunk from stream of unknown size", "bytes", n, "err", err)
	switch {
	case err == io.EOF || err == io.ErrUnexpectedEOF:
		// all data fits into buf
		if n == 0 {
			return nil, errZeroSize
		}
		return df.NewFromBytes(buf[:n], origin)
	case err != nil:
		return nil, err
	}
	// file is too large for holding it in memory
	t, err := df.spool(io.MultiReader(bytes.NewReader(buf), r), origin, int64(df.MaxFileSizeBytes))
	if err != nil {
		return nil, err
	}
	return df.openFile(t, origin)
}

func (df *DocFactory) handleLargeSize(r io.Reader, origin string) (cache.Document, error) {
	// file is too large to handle it in-memory
	t, err := df.spool(r, origin, int64(df.MaxFileSizeBytes))
	if err != nil {
		return nil, err
	}
	return df.openFile(t, origin)
}

func (df *DocFactory) handleSmallSize(r io.Reader, size int64, origin string) (cache.Document, error) {
	data := make([]byte, size)
	_, err := io.ReadFull(r, data)
	if err != nil {
		return nil, err
	}
	return df.NewFromBytes(data, origin)
}

// NewDocFromStream reads a document of the given size from r. A negative size means unknown.
// Small documents are held in memory, larger ones are saved to a temp file, which PDFium reads
// on demand and which is deleted when the document is closed.
func (df *DocFactory) NewDocFromStream(r io.Reader, size int64, origin string) (cache.Document, error) {
	if size > int64(df.MaxFileSizeBytes) {
		// file is too large for downloading
		return nil, errTooLarge
	}
	if size < 0 {
		return df.handleUnknownSize(r, origin)
	}
	if size == 0 {
		return nil, errZeroSize
	}
	if size > int64(df.MaxInMemoryBytes) {
		return df.handleLargeSize(r, origin)
	}
	// file is small enough to handle it in-memory
	return df.handleSmallSize(r, size, origin)
}

// NewFromBytes loads a document held in memory.
func (df *DocFactory) NewFromBytes(data []byte, origin string) (cache.Document, error) {
	if len(data) == 0 {
		return nil, errZeroSize
	}
	mtype := mimetype.Detect(data)
	df.log.Debug("Detected", "mimetype", mtype.String(), "origin", origin)
	if !mtype.Is(pdfMimetype) {
		return nil, notPdf(mtype, data)
	}
	return pdfium.Load(data, "")
}

// NewFromPath opens the file at path. PDFium reads it block by block through a stream adapter.
func (df *DocFactory) NewFromPath(path, origin string) (cache.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return df.openFile(f, origin)
}

// openFile hands f over to PDFium. f is closed when the document is closed or opening fails.
func (df *DocFactory) openFile(f interface {
	io.ReaderAt
	io.ReadSeekCloser
}, origin string) (cache.Document, error) {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, errors.Join(err, f.Close())
	}
	mtype, err := mimetype.DetectReader(f)
	if err != nil {
		return nil, errors.Join(err, f.Close())
	}
	df.log.Debug("Detected", "mimetype", mtype.String(), "origin", origin)
	if !mtype.Is(pdfMimetype) {
		return nil, errors.Join(fmt.Errorf("%w: %s is %s", errNotPdf, origin, mtype.String()), f.Close())
	}
	size, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, errors.Join(err, f.Close())
	}
	if uint64(size) > df.MaxFileSizeBytes {
		return nil, errors.Join(errTooLarge, f.Close())
	}
	return pdfium.OpenReader(f, size, pdfium.Owned, "")
}

// NewFromURL fetches a remote document. If the server supports range requests,
// PDFium reads the blocks it needs while the document is open, so ctx must stay
// valid until the document is closed. Otherwise the document is downloaded.
// header is sent with every request, which allows for conditional requests.
func (df *DocFactory) NewFromURL(ctx context.Context, url string, header http.Header) (*Remote, error) {
	var resp *http.Response
	if !df.RangeDisabled {
		r, probeResp, err := rangereader.Probe(ctx, url, rangereader.Options{
			BlockSize: df.RangeBlockSize,
			MaxBlocks: df.RangeCacheBlocks,
			Header:    header,
			Client:    df.client,
			Logger:    df.log,
		})
		switch {
		case errors.Is(err, rangereader.ErrNoRanges):
			df.log.Debug("Range requests not usable, downloading document", "url", url, "err", err)
		case err != nil:
			return nil, err
		case r != nil:
			return df.openRanged(r, url)
		case probeResp.StatusCode == http.StatusRequestedRangeNotSatisfiable:
			// the first byte of an empty file cannot be requested
			probeResp.Body.Close()
			return nil, errZeroSize
		default:
			resp = probeResp
		}
	}
	if resp == nil {
		var err error
		if resp, err = df.get(ctx, url, header); err != nil {
			return nil, err
		}
	}
	defer resp.Body.Close()
	remote := &Remote{Header: resp.Header, ContentLength: resp.ContentLength}
	switch {
	case resp.StatusCode == http.StatusNotModified:
		remote.NotModified = true
		return remote, nil
	case resp.StatusCode >= 400:
		return nil, fmt.Errorf("fetching %s: %s", url, resp.Status)
	}
	doc, err := df.NewDocFromStream(resp.Body, resp.ContentLength, url)
	if err != nil {
		return nil, err
	}
	remote.Doc = doc
	return remote, nil
}

func (df *DocFactory) get(ctx context.Context, url string, header http.Header) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := df.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", url, err)
	}
	return resp, nil
}

func (df *DocFactory) openRanged(r *rangereader.Reader, url string) (*Remote, error) {
	if uint64(r.Size()) > df.MaxFileSizeBytes {
		return nil, errTooLarge
	}
	if r.Size() == 0 {
		return nil, errZeroSize
	}
	mtype, err := mimetype.DetectReader(io.NewSectionReader(r, 0, r.Size()))
	if err != nil {
		return nil, err
	}
	if !mtype.Is(pdfMimetype) {
		return nil, fmt.Errorf("%w: %s is %s", errNotPdf, url, mtype.String())
	}
	doc, err := pdfium.OpenReader(r, r.Size(), pdfium.Borrowed, "")
	if err != nil {
		return nil, err
	}
	df.log.Debug("Streaming remote document with range requests", "url", url, "size", humanize.Bytes(uint64(r.Size())))
	return &Remote{Doc: doc, Header: r.Header(), ContentLength: r.Size(), Ranged: true}, nil
}

func notPdf(mtype *mimetype.MIME, data []byte) error {
	// returning a part of the content helps with debugging webservers that return 2xx with an error message in the body
	start := data[:min(len(data), 70)]
	return fmt.Errorf("%w: detected %s, content started with: %q", errNotPdf, mtype.String(), start)
}
