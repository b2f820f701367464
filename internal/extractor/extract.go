package extractor

import (
	"bytes"
	"context"
	"errors"
	"expvar"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/go-json-experiment/json"
	"github.com/go-playground/validator/v10"
	"github.com/johbar/pdfstream/internal/cache"
	"github.com/johbar/pdfstream/internal/config"
	"github.com/johbar/pdfstream/internal/docfactory"
	pdfium "github.com/johbar/pdfstream/pkg/pdflibwrappers/pdfium_purego"
)

type RequestParams struct {
	Url string `form:"url" json:"url" validate:"required,http_url"`
	//Ignore cached record
	NoCache bool `form:"noCache" json:"noCache"`
	//Send Metadata only, ignoring content
	Silent bool `form:"silent" json:"silent"`
	// 1-based number of the single page to extract; 0 means all pages
	Page int `form:"page" json:"page" validate:"gte=0"`
}

type Extractor struct {
	pdfsCache           cache.Cache
	df                  *docfactory.DocFactory
	log                 *slog.Logger
	cacheNop            bool
	postprocessDocsChan chan postprocessJob
	postprocessDone     sync.WaitGroup
	// mu guards closed and queueClosed
	mu          sync.RWMutex
	closed      bool
	queueClosed bool
	inflight    sync.WaitGroup
	pdfsConfig          *config.PdfsConfig
	validate            *validator.Validate
}

type postprocessJob struct {
	cache.ExtractedDocument
	save bool
}

const lastModified string = "last-modified"

var errClosed = errors.New("extractor is shutting down")

var (
	docsExtracted = expvar.NewInt("pdfstream_documents_extracted")
	docsFromCache = expvar.NewInt("pdfstream_documents_from_cache")
	streamReads   = expvar.NewInt("pdfstream_stream_reads")
	streamBytes   = expvar.NewInt("pdfstream_stream_bytes")
)

func New(config *config.PdfsConfig, df *docfactory.DocFactory, pdfsCache cache.Cache, logger *slog.Logger) *Extractor {
	extract := &Extractor{
		pdfsCache:           pdfsCache,
		df:                  df,
		log:                 logger,
		postprocessDocsChan: make(chan postprocessJob, 100),
		pdfsConfig:          config,
		validate:            validator.New(validator.WithRequiredStructEnabled()),
	}
	if logger == nil {
		extract.log = slog.New(slog.DiscardHandler)
	}
	if pdfsCache == nil {
		extract.pdfsCache = &cache.NopCache{}
	}
	_, extract.cacheNop = extract.pdfsCache.(*cache.NopCache)
	extract.postprocessDone.Add(1)
	go extract.saveAndCloseExtractedDocs()
	return extract
}

// Close rejects new requests, waits for running ones to finish and then
// for all extracted documents to be closed and saved. It is safe to call Close more than once.
func (e *Extractor) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.mu.Unlock()
	e.inflight.Wait()

	e.mu.Lock()
	e.queueClosed = true
	close(e.postprocessDocsChan)
	e.mu.Unlock()
	e.postprocessDone.Wait()
}

// begin registers a running request. It returns false once Close has been called.
func (e *Extractor) begin() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return false
	}
	e.inflight.Add(1)
	return true
}

func (e *Extractor) saveAndCloseExtractedDocs() {
	defer e.postprocessDone.Done()
	for doc := range e.postprocessDocsChan {
		if s, ok := doc.Doc.(interface{ Stream() *pdfium.StreamAdapter }); ok && s.Stream() != nil {
			st := s.Stream().Stats()
			streamReads.Add(st.Reads)
			streamBytes.Add(st.Bytes)
		}
		if err := doc.Doc.Close(); err != nil {
			e.log.Warn("Closing document failed", "url", doc.Url, "err", err)
		} else {
			e.log.Debug("Document closed.", "url", doc.Url)
		}
		if e.cacheNop || !doc.save {
			continue
		}
		for i := 0; i <= 5; i++ {
			ctx, cancel := context.WithTimeout(context.Background(), e.pdfsConfig.NatsTimeout)
			info, err := e.pdfsCache.Save(ctx, doc.ExtractedDocument)
			cancel()
			if err == nil {
				e.log.Info("Saved text and metadata in NATS object store bucket", "url", doc.Url, "chunks", info.Chunks, "size", info.Size)
				break
			}
			e.log.Warn("Could not save text to cache", "retries", i, "url", doc.Url, "err", err)
		}
	}
}

func (e *Extractor) closeLater(doc cache.Document, url string) {
	e.enqueue(postprocessJob{ExtractedDocument: cache.ExtractedDocument{Url: url, Doc: doc}})
}

// enqueue hands job to the postprocessing goroutine. After Close the document is closed right away and not saved.
func (e *Extractor) enqueue(job postprocessJob) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.queueClosed {
		if err := job.Doc.Close(); err != nil {
			e.log.Warn("Closing document failed", "url", job.Url, "err", err)
		}
		return
	}
	e.postprocessDocsChan <- job
}

// paramsFromQuery reads the request params. Flags like noCache and silent need no value.
func (e *Extractor) paramsFromQuery(c *gin.Context) (RequestParams, error) {
	q := c.Request.URL.Query()
	params := RequestParams{
		Url:     q.Get("url"),
		NoCache: q.Has("noCache") || q.Has("nocache"),
		Silent:  q.Has("silent") || c.Request.Method == http.MethodHead,
	}
	if p := q.Get("page"); p != "" {
		page, err := strconv.Atoi(p)
		if err != nil {
			return params, fmt.Errorf("invalid page number %q", p)
		}
		params.Page = page
	}
	if err := e.validate.Struct(params); err != nil {
		return params, err
	}
	return params, nil
}

// ExtractBody responds with the plain text content of the PDF in the request body.
func (e *Extractor) ExtractBody(c *gin.Context) {
	if !e.begin() {
		c.String(http.StatusServiceUnavailable, "%s", errClosed)
		return
	}
	defer e.inflight.Done()
	origin := "POST request"
	var page int
	if p := c.Query("page"); p != "" {
		var err error
		if page, err = strconv.Atoi(p); err != nil || page < 0 {
			c.String(http.StatusBadRequest, "invalid page number %q", p)
			return
		}
	}
	doc, err := e.df.NewDocFromStream(c.Request.Body, c.Request.ContentLength, origin)
	if err != nil {
		e.log.Error("Error parsing response body", "err", err)
		c.String(http.StatusUnprocessableEntity, "%s", err)
		return
	}
	defer e.closeLater(doc, origin)
	if page > doc.Pages() {
		c.String(http.StatusNotFound, "page %d not found, document has %d pages", page, doc.Pages())
		return
	}
	addMetadataAsHeaders(c.Writer.Header(), doc.MetadataMap())
	c.Status(http.StatusOK)
	if err := e.writeText(doc, c.Writer, page); err != nil {
		e.log.Warn("Could not write text to client", "origin", origin, "err", err)
	}
	docsExtracted.Add(1)
}

// ExtractRemote responds with the plain text content of the PDF found at the URL given by the query param `url`.
func (e *Extractor) ExtractRemote(c *gin.Context) {
	params, err := e.paramsFromQuery(c)
	if err != nil {
		c.String(http.StatusBadRequest, "%s", err)
		return
	}
	status, err := e.DocFromUrl(c.Request.Context(), params, c.Writer, c.Writer.Header())
	if err != nil {
		e.log.Error("DocFromUrl failed", "status", status, "url", params.Url, "err", err)
		if !c.Writer.Written() {
			c.String(status, "%s", err)
		}
		return
	}
	if !c.Writer.Written() {
		c.Status(status)
	}
}

// Metadata responds with the metadata of the PDF found at the URL given by the query param `url` as JSON.
func (e *Extractor) Metadata(c *gin.Context) {
	params, err := e.paramsFromQuery(c)
	if err != nil {
		c.String(http.StatusBadRequest, "%s", err)
		return
	}
	params.Silent = true
	header := http.Header{}
	status, err := e.DocFromUrl(c.Request.Context(), params, io.Discard, header)
	if err != nil {
		c.String(status, "%s", err)
		return
	}
	metadata := make(cache.DocumentMetadata, len(header))
	for k := range header {
		metadata[strings.ToLower(k)] = header.Get(k)
	}
	b, err := json.Marshal(metadata, json.Deterministic(true))
	if err != nil {
		c.String(http.StatusInternalServerError, "%s", err)
		return
	}
	c.Data(http.StatusOK, "application/json", b)
}

// DocFromUrl writes the text of the document at params.Url to w and its metadata to header.
// Unless params.NoCache is set, the text is served from cache if the document has not been modified.
func (e *Extractor) DocFromUrl(ctx context.Context, params RequestParams, w io.Writer, header http.Header) (status int, err error) {
	if !e.begin() {
		return http.StatusServiceUnavailable, errClosed
	}
	defer e.inflight.Done()
	return e.docFromUrl(ctx, params, w, header)
}

func (e *Extractor) docFromUrl(ctx context.Context, params RequestParams, w io.Writer, header http.Header) (status int, err error) {
	url := params.Url
	silent := params.Silent
	// single pages are not cached
	noCache := params.NoCache || e.cacheNop || params.Page > 0

	ctx, cancel := context.WithTimeout(ctx, e.pdfsConfig.HttpTimeout)
	defer cancel()
	metadata, reqHeader := e.cacheValidationHeaders(ctx, noCache, url)
	e.log.Debug("Fetching document", "url", url, "headers", reqHeader)
	remote, err := e.df.NewFromURL(ctx, url, reqHeader)
	if err != nil {
		e.log.Error("Fetching or parsing failed", "err", err, "url", url)
		if errors.Is(err, context.DeadlineExceeded) {
			return http.StatusGatewayTimeout, err
		}
		return http.StatusUnprocessableEntity, err
	}

	if remote.NotModified {
		e.log.Debug("URL has not been modified. Text will be served from cache", "url", url, "etag", remote.Header.Get("etag"), lastModified, remote.Header.Get(lastModified))
		addMetadataAsHeaders(header, metadata)
		if silent {
			return http.StatusOK, nil
		}
		if err = e.pdfsCache.StreamText(ctx, url, w); err == nil {
			docsFromCache.Add(1)
			return http.StatusOK, nil
		}
		e.log.Error("Could not receive text from NATS object store or write to output stream", "url", url, "err", err)
		// We could not provide the client with cached text, parse the file again
		params.NoCache = true
		return e.docFromUrl(ctx, params, w, header)
	}

	doc := remote.Doc
	e.log.Debug("Start extracting", "url", url, "content-length", remote.ContentLength, "ranged", remote.Ranged)
	if params.Page > doc.Pages() {
		e.closeLater(doc, url)
		return http.StatusNotFound, fmt.Errorf("page %d not found, document has %d pages", params.Page, doc.Pages())
	}
	metadata = addHttpHeadersToMetadata(doc, remote)
	addMetadataAsHeaders(header, metadata)
	if silent && noCache {
		// nothing to write or save
		e.closeLater(doc, url)
		return http.StatusOK, nil
	}
	var text bytes.Buffer
	var mWriter io.Writer = &text
	if !silent {
		mWriter = io.MultiWriter(w, &text)
	}
	if err := e.writeText(doc, mWriter, params.Page); err != nil {
		e.closeLater(doc, url)
		// Client might have closed connection, so text couldn't be written
		// and is not complete. We don't want to save incomplete docs.
		return 499, err
	}
	docsExtracted.Add(1)
	if !silent {
		e.log.Debug("Streaming response done", "url", url)
	}
	e.enqueue(postprocessJob{
		ExtractedDocument: cache.ExtractedDocument{
			Url:      url,
			Text:     text.Bytes(),
			Metadata: metadata,
			Doc:      doc,
		},
		save: params.Page == 0,
	})
	return http.StatusOK, nil
}

// writeText writes the text of a single page (1-based) or all pages if page is 0,
// dehyphenated if configured.
func (e *Extractor) writeText(doc cache.Document, w io.Writer, page int) error {
	write := func(w io.Writer) error {
		if page == 0 {
			return doc.StreamText(w)
		}
		text, err := doc.Text(page - 1)
		if err != nil {
			return err
		}
		_, err = io.WriteString(w, text)
		return err
	}
	if !e.pdfsConfig.Dehyphenate {
		return write(w)
	}
	pw, dehyphFinished := e.RunDehyphenator(w)
	err := write(pw)
	pw.CloseWithError(err)
	<-dehyphFinished
	return err
}

func addMetadataAsHeaders(header http.Header, metadata cache.DocumentMetadata) {
	for k, v := range metadata {
		header.Add(k, v)
	}
}

// cacheValidationHeaders returns the cached metadata of url and the headers for a conditional request.
func (e *Extractor) cacheValidationHeaders(ctx context.Context, noCache bool, url string) (cache.DocumentMetadata, http.Header) {
	header := http.Header{}
	if noCache {
		return make(cache.DocumentMetadata), header
	}
	metadata, err := e.pdfsCache.GetMetadata(ctx, url)
	if err != nil {
		e.log.Error("Could not get metadata from NATS object store", "url", url, "err", err)
		return make(cache.DocumentMetadata), header
	}
	if metadata == nil {
		return make(cache.DocumentMetadata), header
	}
	if etag, ok := metadata["etag"]; ok {
		header.Add("If-None-Match", etag)
	}
	if lastMod, ok := metadata["http-last-modified"]; ok {
		header.Add("If-Modified-Since", lastMod)
	}
	return metadata, header
}

func addHttpHeadersToMetadata(doc cache.Document, remote *docfactory.Remote) cache.DocumentMetadata {
	metadata := doc.MetadataMap()
	if etag := remote.Header.Get("etag"); etag != "" {
		metadata["etag"] = etag
	}
	if lastmod := remote.Header.Get(lastModified); lastmod != "" {
		metadata["http-last-modified"] = lastmod
	}
	if contentLength := remote.ContentLength; contentLength > 0 {
		metadata["http-content-length"] = strconv.FormatInt(contentLength, 10)
	}
	return metadata
}
