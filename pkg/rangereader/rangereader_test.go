package rangereader

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func testData(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i % 251)
	}
	return data
}

type fileServer struct {
	data     []byte
	etag     atomic.Value
	requests atomic.Int64
	ranges   bool
}

func newFileServer(t *testing.T, data []byte, ranges bool) (*fileServer, *httptest.Server) {
	fs := &fileServer{data: data, ranges: ranges}
	fs.etag.Store(`"v1"`)
	srv := httptest.NewServer(fs)
	t.Cleanup(srv.Close)
	return fs, srv
}

func (fs *fileServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	fs.requests.Add(1)
	if !fs.ranges {
		w.Header().Set("Content-Type", "application/pdf")
		w.Write(fs.data)
		return
	}
	w.Header().Set("ETag", fs.etag.Load().(string))
	http.ServeContent(w, r, "doc.pdf", time.Date(2024, 4, 19, 11, 3, 2, 0, time.UTC), bytes.NewReader(fs.data))
}

func TestReadAtAcrossBlocks(t *testing.T) {
	data := testData(10_000)
	fs, srv := newFileServer(t, data, true)
	r, resp, err := Probe(context.Background(), srv.URL, Options{BlockSize: 1024, MaxBlocks: 100})
	if err != nil {
		t.Fatal(err)
	}
	if resp != nil {
		t.Fatalf("expected a reader, got response %s", resp.Status)
	}
	if r.Size() != int64(len(data)) {
		t.Fatalf("want size %d, got %d", len(data), r.Size())
	}
	if r.Header().Get("ETag") != `"v1"` {
		t.Errorf("response header not kept: %v", r.Header())
	}
	buf := make([]byte, 3000)
	n, err := r.ReadAt(buf, 1000)
	if err != nil || n != 3000 {
		t.Fatalf("ReadAt: n=%d err=%v", n, err)
	}
	if !bytes.Equal(buf, data[1000:4000]) {
		t.Error("wrong bytes")
	}
	// blocks 0..3 have been fetched; reading them again must not hit the server
	before := fs.requests.Load()
	if _, err := r.ReadAt(buf[:100], 3500); err != nil {
		t.Fatal(err)
	}
	if fs.requests.Load() != before {
		t.Error("cached block fetched again")
	}
	if r.Requests() != fs.requests.Load() {
		t.Errorf("request counter %d does not match server's %d", r.Requests(), fs.requests.Load())
	}
}

func TestReadAtEnd(t *testing.T) {
	data := testData(2500)
	_, srv := newFileServer(t, data, true)
	r, _, err := Probe(context.Background(), srv.URL, Options{BlockSize: 1024})
	if err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, 100)
	n, err := r.ReadAt(buf, 2450)
	if n != 50 || !errors.Is(err, io.EOF) {
		t.Errorf("want 50 bytes and io.EOF, got %d, %v", n, err)
	}
	if !bytes.Equal(buf[:n], data[2450:]) {
		t.Error("wrong bytes at the end")
	}
	if _, err := r.ReadAt(buf, 2500); !errors.Is(err, io.EOF) {
		t.Errorf("want io.EOF, got %v", err)
	}
}

func TestSmallFile(t *testing.T) {
	data := testData(10)
	_, srv := newFileServer(t, data, true)
	r, _, err := Probe(context.Background(), srv.URL, Options{BlockSize: 1024})
	if err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, 10)
	if n, err := r.ReadAt(buf, 0); n != 10 || err != nil {
		t.Fatalf("n=%d err=%v", n, err)
	}
	if r.Requests() != 1 {
		t.Errorf("want only the probe request, got %d", r.Requests())
	}
}

func TestEviction(t *testing.T) {
	data := testData(4096)
	fs, srv := newFileServer(t, data, true)
	r, _, err := Probe(context.Background(), srv.URL, Options{BlockSize: 1024, MaxBlocks: 2})
	if err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, 1)
	for _, off := range []int64{0, 1024, 2048} {
		if _, err := r.ReadAt(buf, off); err != nil {
			t.Fatal(err)
		}
	}
	// block 0 has been evicted by block 2
	before := fs.requests.Load()
	if _, err := r.ReadAt(buf, 0); err != nil {
		t.Fatal(err)
	}
	if fs.requests.Load() != before+1 {
		t.Error("evicted block was not fetched again")
	}
}

func TestServerWithoutRanges(t *testing.T) {
	data := testData(100)
	_, srv := newFileServer(t, data, false)
	r, resp, err := Probe(context.Background(), srv.URL, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if r != nil {
		t.Fatal("expected no reader")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("want 200, got %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !bytes.Equal(body, data) {
		t.Error("response body should carry the whole file")
	}
}

func TestChangedFile(t *testing.T) {
	data := testData(4096)
	fs, srv := newFileServer(t, data, true)
	r, _, err := Probe(context.Background(), srv.URL, Options{BlockSize: 1024})
	if err != nil {
		t.Fatal(err)
	}
	fs.etag.Store(`"v2"`)
	if _, err := r.ReadAt(make([]byte, 10), 2048); !errors.Is(err, ErrChanged) {
		t.Errorf("want ErrChanged, got %v", err)
	}
}

func TestParseContentRange(t *testing.T) {
	tests := []struct {
		in                string
		start, end, total int64
		wantErr           bool
	}{
		{"bytes 0-1023/4096", 0, 1023, 4096, false},
		{"bytes 100-199/*", 100, 199, -1, false},
		{"bytes */4096", 0, 0, 0, true},
		{"items 0-1/2", 0, 0, 0, true},
		{"", 0, 0, 0, true},
	}
	for _, tt := range tests {
		start, end, total, err := parseContentRange(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("%q: err = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && (start != tt.start || end != tt.end || total != tt.total) {
			t.Errorf("%q: got %d-%d/%d", tt.in, start, end, total)
		}
	}
}

func TestConditionalProbe(t *testing.T) {
	data := testData(4096)
	_, srv := newFileServer(t, data, true)
	h := http.Header{}
	h.Set("If-None-Match", `"v1"`)
	r, resp, err := Probe(context.Background(), srv.URL, Options{BlockSize: 1024, Header: h})
	if err != nil {
		t.Fatal(err)
	}
	if r != nil {
		t.Fatal("unmodified file should not be read")
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotModified {
		t.Fatalf("want 304, got %d", resp.StatusCode)
	}

	h.Set("If-None-Match", `"v0"`)
	r, _, err = Probe(context.Background(), srv.URL, Options{BlockSize: 1024, Header: h})
	if err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, 100)
	if _, err := r.ReadAt(buf, 3000); err != nil {
		t.Fatalf("block requests must not be conditional: %v", err)
	}
	if !bytes.Equal(buf, data[3000:3100]) {
		t.Error("wrong bytes")
	}
}
