// Package rangereader implements io.ReaderAt for remote files, fetching fixed-size
// blocks with HTTP range requests. Fetched blocks are kept in a small cache, as PDF
// readers tend to revisit the trailer and the cross reference table.
package rangereader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
)

var (
	// ErrChanged is returned by ReadAt when the remote file changed since the first request.
	ErrChanged = errors.New("rangereader: remote file changed")
	// ErrNoRanges is returned by Probe when the server ignores range requests.
	ErrNoRanges = errors.New("rangereader: server does not support range requests")
)

// Options configure a [Reader].
type Options struct {
	// BlockSize is the number of bytes fetched per request. Default: 256 KiB
	BlockSize int64
	// MaxBlocks is the number of blocks kept in memory. Default: 16
	MaxBlocks int
	// Header is added to every request, e.g. authorization.
	// If-None-Match and If-Modified-Since are only sent with the probe.
	Header http.Header
	Client *http.Client
	Logger *slog.Logger
}

// Reader reads a remote file in blocks.
type Reader struct {
	ctx       context.Context
	client    *http.Client
	url       string
	header    http.Header
	size      int64
	blockSize int64
	maxBlocks int
	validator string
	response  http.Header
	log       *slog.Logger

	mu     sync.Mutex
	blocks map[int64][]byte
	// block numbers in order of insertion, for eviction
	order []int64

	requests atomic.Int64
}

// Probe requests the first block of url. If the server answers with 206 Partial Content,
// it returns a Reader for the file. Otherwise it returns the response, which the caller
// must consume and close; this covers 200 OK from servers ignoring the Range header,
// 304 Not Modified for conditional requests and errors.
// ctx is used for all subsequent requests of the Reader, too.
func Probe(ctx context.Context, url string, opts Options) (*Reader, *http.Response, error) {
	r := &Reader{
		ctx:       ctx,
		client:    opts.Client,
		url:       url,
		header:    opts.Header,
		blockSize: opts.BlockSize,
		maxBlocks: opts.MaxBlocks,
		log:       opts.Logger,
		blocks:    make(map[int64][]byte),
	}
	if r.client == nil {
		r.client = http.DefaultClient
	}
	if r.blockSize <= 0 {
		r.blockSize = 256 << 10
	}
	if r.maxBlocks <= 0 {
		r.maxBlocks = 16
	}
	if r.log == nil {
		r.log = slog.New(slog.DiscardHandler)
	}
	resp, err := r.get(0, r.blockSize-1, "")
	if err != nil {
		return nil, nil, err
	}
	if resp.StatusCode != http.StatusPartialContent {
		return nil, resp, nil
	}
	defer resp.Body.Close()
	start, _, total, err := parseContentRange(resp.Header.Get("Content-Range"))
	if err != nil || start != 0 || total < 0 {
		return nil, nil, fmt.Errorf("%w: unusable Content-Range %q", ErrNoRanges, resp.Header.Get("Content-Range"))
	}
	r.size = total
	r.response = resp.Header.Clone()
	r.validator = resp.Header.Get("ETag")
	if strings.HasPrefix(r.validator, "W/") {
		// weak validators must not be used with If-Range
		r.validator = ""
	}
	if r.validator == "" {
		r.validator = resp.Header.Get("Last-Modified")
	}
	first, err := io.ReadAll(io.LimitReader(resp.Body, r.blockSize))
	if err != nil {
		return nil, nil, fmt.Errorf("reading first block of %s: %w", url, err)
	}
	if int64(len(first)) != r.blockLen(0) {
		return nil, nil, fmt.Errorf("first block of %s: got %d bytes, want %d: %w", url, len(first), r.blockLen(0), io.ErrUnexpectedEOF)
	}
	r.store(0, first)
	r.log.Debug("Remote file supports range requests", "url", url, "size", r.size, "validator", r.validator)
	return r, nil, nil
}

// Size returns the size of the remote file.
func (r *Reader) Size() int64 {
	return r.size
}

// Header returns the response header of the first request.
func (r *Reader) Header() http.Header {
	return r.response
}

// Requests returns the number of HTTP requests issued so far.
func (r *Reader) Requests() int64 {
	return r.requests.Load()
}

// ReadAt implements io.ReaderAt.
func (r *Reader) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, errors.New("rangereader: negative offset")
	}
	if off >= r.size {
		return 0, io.EOF
	}
	n := 0
	for n < len(p) && off < r.size {
		num := off / r.blockSize
		block, err := r.block(num)
		if err != nil {
			return n, err
		}
		c := copy(p[n:], block[off-num*r.blockSize:])
		n += c
		off += int64(c)
	}
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (r *Reader) blockLen(num int64) int64 {
	return min(r.blockSize, r.size-num*r.blockSize)
}

func (r *Reader) block(num int64) ([]byte, error) {
	r.mu.Lock()
	b, ok := r.blocks[num]
	r.mu.Unlock()
	if ok {
		return b, nil
	}
	start := num * r.blockSize
	end := start + r.blockLen(num) - 1
	resp, err := r.get(start, end, r.validator)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusPartialContent:
	case http.StatusOK:
		return nil, ErrChanged
	default:
		return nil, fmt.Errorf("rangereader: fetching bytes %d-%d of %s: %s", start, end, r.url, resp.Status)
	}
	b, err = io.ReadAll(io.LimitReader(resp.Body, end-start+1))
	if err != nil {
		return nil, fmt.Errorf("rangereader: reading bytes %d-%d of %s: %w", start, end, r.url, err)
	}
	if int64(len(b)) != end-start+1 {
		return nil, fmt.Errorf("rangereader: bytes %d-%d of %s: %w", start, end, r.url, io.ErrUnexpectedEOF)
	}
	r.store(num, b)
	return b, nil
}

func (r *Reader) store(num int64, b []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.blocks[num]; ok {
		return
	}
	if len(r.order) >= r.maxBlocks {
		delete(r.blocks, r.order[0])
		r.order = r.order[1:]
	}
	r.blocks[num] = b
	r.order = append(r.order, num)
}

func (r *Reader) get(start, end int64, ifRange string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(r.ctx, http.MethodGet, r.url, nil)
	if err != nil {
		return nil, err
	}
	for k, v := range r.header {
		req.Header[k] = v
	}
	if r.size > 0 {
		// conditional headers only apply to the probe, later blocks are guarded by If-Range
		req.Header.Del("If-None-Match")
		req.Header.Del("If-Modified-Since")
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", start, end))
	if ifRange != "" {
		req.Header.Set("If-Range", ifRange)
	}
	// compressed transfer would break byte offsets
	req.Header.Set("Accept-Encoding", "identity")
	r.requests.Add(1)
	r.log.Debug("Fetching range", "url", r.url, "start", start, "end", end)
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rangereader: fetching %s: %w", r.url, err)
	}
	return resp, nil
}

// parseContentRange parses "bytes 0-1023/4096". total is -1 if unknown ("*").
func parseContentRange(s string) (start, end, total int64, err error) {
	rest, ok := strings.CutPrefix(s, "bytes ")
	if !ok {
		return 0, 0, 0, fmt.Errorf("invalid Content-Range %q", s)
	}
	rng, size, ok := strings.Cut(rest, "/")
	if !ok {
		return 0, 0, 0, fmt.Errorf("invalid Content-Range %q", s)
	}
	from, to, ok := strings.Cut(rng, "-")
	if !ok {
		return 0, 0, 0, fmt.Errorf("invalid Content-Range %q", s)
	}
	if start, err = strconv.ParseInt(from, 10, 64); err != nil {
		return 0, 0, 0, err
	}
	if end, err = strconv.ParseInt(to, 10, 64); err != nil {
		return 0, 0, 0, err
	}
	if size == "*" {
		return start, end, -1, nil
	}
	if total, err = strconv.ParseInt(size, 10, 64); err != nil {
		return 0, 0, 0, err
	}
	return start, end, total, nil
}
