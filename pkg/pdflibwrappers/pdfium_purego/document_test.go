package pdfium_purego

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/johbar/pdfstream/internal/testpdf"
)

var twoPages = testpdf.Build(testpdf.Options{
	Pages:        []string{"Erste Seite des Dokuments", "Zweite Seite"},
	Title:        "Drucksache 20/1",
	Author:       "Deutscher Bundestag",
	CreationDate: "D:20240419110302Z",
})

func initOrSkip(t *testing.T) {
	t.Helper()
	if _, err := InitLib(""); err != nil {
		t.Skipf("pdfium could not be loaded: %v", err)
	}
}

func checkDocument(t *testing.T, d *Document) {
	t.Helper()
	if d.Pages() != 2 {
		t.Errorf("expected to find 2 pages but were %d", d.Pages())
	}
	txt, err := d.Text(0)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(txt, "Erste Seite") {
		t.Errorf("unexpected text of page 0: %q", txt)
	}
	meta := d.MetadataMap()
	want := map[string]string{
		"x-parsed-by":        "PDFium",
		"x-doctype":          "pdf",
		"x-document-pages":   "2",
		"x-document-version": "PDF-1.7",
		"x-document-title":   "Drucksache 20/1",
		"x-document-author":  "Deutscher Bundestag",
		"x-document-created": "2024-04-19T11:03:02Z",
	}
	if diff := cmp.Diff(want, meta); diff != "" {
		t.Errorf("MetadataMap() mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadFromMemory(t *testing.T) {
	initOrSkip(t)
	d, err := Load(twoPages, "")
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()
	checkDocument(t, d)
	if d.Data() == nil || d.Stream() != nil || d.Path() != "" {
		t.Error("memory document should only have data")
	}
}

func TestOpenPath(t *testing.T) {
	initOrSkip(t)
	path := filepath.Join(t.TempDir(), "doc.pdf")
	if err := os.WriteFile(path, twoPages, 0o600); err != nil {
		t.Fatal(err)
	}
	d, err := Open(path, "")
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()
	checkDocument(t, d)
	if d.Path() != path {
		t.Errorf("want path %s, got %s", path, d.Path())
	}
}

func TestOpenMissingFile(t *testing.T) {
	initOrSkip(t)
	_, err := Open(filepath.Join(t.TempDir(), "missing.pdf"), "")
	if !errors.Is(err, ErrFile) {
		t.Errorf("want ErrFile, got %v", err)
	}
}

func TestLoadStreamReadsBlocksOnDemand(t *testing.T) {
	initOrSkip(t)
	src := &seekOnly{ReadSeeker: bytes.NewReader(twoPages)}
	d, err := OpenReader(src, -1, Borrowed, "")
	if err != nil {
		t.Fatal(err)
	}
	checkDocument(t, d)
	st := d.Stream().Stats()
	if st.Reads == 0 || src.seeks == 0 {
		t.Errorf("expected PDFium to read through the adapter: %+v, %d seeks", st, src.seeks)
	}
	if err := d.Close(); err != nil {
		t.Fatal(err)
	}
	if lookupAdapter(d.Stream().id) != nil {
		t.Error("adapter still registered after the document was closed")
	}
}

func TestLoadStreamOwnedFile(t *testing.T) {
	initOrSkip(t)
	path := filepath.Join(t.TempDir(), "doc.pdf")
	if err := os.WriteFile(path, twoPages, 0o600); err != nil {
		t.Fatal(err)
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	d, err := OpenReader(f, -1, Owned, "")
	if err != nil {
		t.Fatal(err)
	}
	checkDocument(t, d)
	d.Close()
	if _, err := f.Stat(); !errors.Is(err, os.ErrClosed) {
		t.Errorf("owned file should be closed with the document, got %v", err)
	}
}

func TestLoadStreamSurfacesReadErrors(t *testing.T) {
	initOrSkip(t)
	boom := errors.New("connection reset")
	a, err := NewStreamAdapter(failingReaderAt{boom}, 1000, Borrowed)
	if err != nil {
		t.Fatal(err)
	}
	_, err = LoadStream(a, "")
	if !errors.Is(err, boom) {
		t.Errorf("want the read error to be reported, got %v", err)
	}
	if lookupAdapter(a.id) != nil {
		t.Error("adapter must be released when loading fails")
	}
}

func TestLoadGarbage(t *testing.T) {
	initOrSkip(t)
	_, err := Load([]byte("this is not a PDF at all"), "")
	if !errors.Is(err, ErrFormat) {
		t.Errorf("want ErrFormat, got %v", err)
	}
	_, err = OpenReader(strings.NewReader("neither is this"), -1, Borrowed, "")
	if !errors.Is(err, ErrFormat) {
		t.Errorf("want ErrFormat, got %v", err)
	}
}

func TestAdapterBacksOneDocument(t *testing.T) {
	initOrSkip(t)
	a, err := NewStreamAdapter(bytes.NewReader(twoPages), -1, Borrowed)
	if err != nil {
		t.Fatal(err)
	}
	d, err := LoadStream(a, "")
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()
	if _, err := LoadStream(a, ""); !errors.Is(err, ErrAdapterInUse) {
		t.Errorf("want ErrAdapterInUse, got %v", err)
	}
}

func TestPageLifecycle(t *testing.T) {
	initOrSkip(t)
	d, err := Load(twoPages, "")
	if err != nil {
		t.Fatal(err)
	}
	p, err := d.Page(1)
	if err != nil {
		t.Fatal(err)
	}
	again, _ := d.Page(1)
	if again != p {
		t.Error("loading a page twice should return the same page")
	}
	w, h, err := p.Size()
	if err != nil || w != 595 || h != 842 {
		t.Errorf("want 595x842, got %vx%v (%v)", w, h, err)
	}
	if w, err := p.Width(); err != nil || w != 595 {
		t.Errorf("want width 595, got %v (%v)", w, err)
	}
	if h, err := p.Height(); err != nil || h != 842 {
		t.Errorf("want height 842, got %v (%v)", h, err)
	}
	pw, ph, err := d.PageSize(1)
	if err != nil || pw != 595 || ph != 842 {
		t.Errorf("want 595x842 without loading, got %vx%v (%v)", pw, ph, err)
	}
	txt, err := p.Text()
	if err != nil || !strings.Contains(txt, "Zweite Seite") {
		t.Errorf("unexpected text %q (%v)", txt, err)
	}
	if n, err := p.CountImages(); err != nil || n != 0 {
		t.Errorf("want no images, got %d (%v)", n, err)
	}
	if _, err := d.Page(2); !errors.Is(err, ErrPage) {
		t.Errorf("want ErrPage for index 2, got %v", err)
	}
	if d.LoadedPages() != 1 {
		t.Errorf("want 1 loaded page, got %d", d.LoadedPages())
	}

	d.Close()
	if _, err := p.Text(); !errors.Is(err, ErrPageClosed) {
		t.Errorf("pages must be closed with their document, got %v", err)
	}
	if _, err := d.Page(0); !errors.Is(err, ErrDocumentClosed) {
		t.Errorf("want ErrDocumentClosed, got %v", err)
	}
	if err := d.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	p.Close()
}

func TestClosingPageKeepsDocument(t *testing.T) {
	initOrSkip(t)
	d, err := Load(twoPages, "")
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()
	p, err := d.Page(0)
	if err != nil {
		t.Fatal(err)
	}
	p.Close()
	if d.LoadedPages() != 0 {
		t.Errorf("closed page still tracked")
	}
	var sb strings.Builder
	if err := d.StreamText(&sb); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(sb.String(), "Erste Seite") || !strings.Contains(sb.String(), "Zweite Seite") {
		t.Errorf("unexpected text %q", sb.String())
	}
}

func TestRotationAndSecurity(t *testing.T) {
	initOrSkip(t)
	d, err := Load(testpdf.Build(testpdf.Options{Pages: []string{"quer"}, Rotate: 90}), "")
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()
	p, err := d.Page(0)
	if err != nil {
		t.Fatal(err)
	}
	if r, err := p.Rotation(); err != nil || r != 90 {
		t.Errorf("want rotation 90, got %d (%v)", r, err)
	}
	if rev, err := d.SecurityHandlerRevision(); err != nil || rev != -1 {
		t.Errorf("want -1 for unencrypted documents, got %d (%v)", rev, err)
	}
	if v, ok, err := d.FileVersion(); err != nil || !ok || v != 17 {
		t.Errorf("want version 17, got %d %v (%v)", v, ok, err)
	}
	if label, err := d.PageLabel(0); err != nil || label != "" {
		t.Errorf("want no page label, got %q (%v)", label, err)
	}
}
