package cache

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	natsconn "github.com/johbar/pdfstream/internal/cache/nats"
	"github.com/johbar/pdfstream/internal/config"
)

func TestNopCache(t *testing.T) {
	var c Cache = &NopCache{}
	ctx := context.Background()
	meta, err := c.GetMetadata(ctx, "https://example.com/doc.pdf")
	if meta != nil || err != nil {
		t.Errorf("want nothing cached, got %v, %v", meta, err)
	}
	var buf bytes.Buffer
	if err := c.StreamText(ctx, "https://example.com/doc.pdf", &buf); err != nil || buf.Len() > 0 {
		t.Errorf("want no text, got %q, %v", buf.String(), err)
	}
	if info, err := c.Save(ctx, ExtractedDocument{Url: "https://example.com/doc.pdf"}); err != nil || info == nil {
		t.Errorf("Save: %v, %v", info, err)
	}
}

func newObjectStoreCache(t *testing.T) *ObjectStoreCache {
	t.Helper()
	if !natsconn.NatsEmbedded {
		t.Skip("NATS server not embedded in this build")
	}
	conf := config.PdfsConfig{
		Bucket:         "PDFS_TEST",
		Replicas:       1,
		NatsStoreDir:   t.TempDir(),
		NatsTimeout:    5 * time.Second,
		NatsMaxPayload: 1 << 20,
	}
	nc, err := natsconn.ConnectToEmbeddedNatsServer(conf)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := natsconn.DrainAndWait(nc); err != nil {
			t.Error(err)
		}
	})
	c, err := New(conf, nil, nc)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestObjectStoreCache(t *testing.T) {
	c := newObjectStoreCache(t)
	ctx := context.Background()
	url := "https://example.com/drucksachen/20/antrag.pdf?version=2"

	meta, err := c.GetMetadata(ctx, url)
	if meta != nil || err != nil {
		t.Fatalf("want nil, nil for unknown url, got %v, %v", meta, err)
	}
	if err := c.StreamText(ctx, url, &bytes.Buffer{}); err == nil {
		t.Error("want error streaming text of unknown url")
	}

	want := DocumentMetadata{
		"etag":               `"antrag-1"`,
		"http-last-modified": "Fri, 19 Apr 2024 11:03:02 GMT",
		"x-document-title":   "Antrag",
	}
	text := []byte("Die Bundesregierung wird aufgefordert\nZweite Seite\n")
	info, err := c.Save(ctx, ExtractedDocument{Url: url, Metadata: want, Text: text})
	if err != nil {
		t.Fatal(err)
	}
	if info.Size != uint64(len(text)) {
		t.Errorf("want size %d, got %d", len(text), info.Size)
	}

	got, err := c.GetMetadata(ctx, url)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("metadata mismatch (-want +got):\n%s", diff)
	}
	var buf bytes.Buffer
	if err := c.StreamText(ctx, url, &buf); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(buf.Bytes(), text) {
		t.Errorf("want %q, got %q", text, buf.Bytes())
	}

	// saving again replaces text and metadata
	want["etag"] = `"antrag-2"`
	if _, err := c.Save(ctx, ExtractedDocument{Url: url, Metadata: want, Text: []byte("neu")}); err != nil {
		t.Fatal(err)
	}
	got, err = c.GetMetadata(ctx, url)
	if err != nil {
		t.Fatal(err)
	}
	if got["etag"] != `"antrag-2"` {
		t.Errorf("want updated etag, got %v", got)
	}
	buf.Reset()
	if err := c.StreamText(ctx, url, &buf); err != nil || buf.String() != "neu" {
		t.Errorf("want updated text, got %q, %v", buf.String(), err)
	}
}

func TestNewWithoutConnection(t *testing.T) {
	if _, err := New(config.PdfsConfig{Bucket: "PDFS_TEST"}, nil, nil); err == nil {
		t.Error("want error without NATS connection")
	}
}
