// Package cache keeps the text and metadata of remote documents, so that
// unmodified documents need not be fetched and parsed again.
package cache

import (
	"context"
	"io"

	"github.com/nats-io/nats.go/jetstream"
)

// Document represents a parsed PDF document
type Document interface {
	// StreamText writes all text to w
	StreamText(w io.Writer) error
	// Pages returns the documents number of pages.
	Pages() int
	// Text returns a single page's text
	Text(int) (string, error)
	// Path returns the filesystem path a document was loaded from or an empty string if it was not loaded from disk
	Path() string
	// MetadataMap returns a map of Document properties, such as Author, Title etc.
	MetadataMap() DocumentMetadata
	// Close releases resources associated with the document
	Close() error
}

type DocumentMetadata = map[string]string

// ExtractedDocument contains metadata, textual content and URL of origin
type ExtractedDocument struct {
	Url      string
	Metadata DocumentMetadata
	Text     []byte
	Doc      Document
}

type Cache interface {
	// GetMetadata returns nil and no error if url is not cached
	GetMetadata(ctx context.Context, url string) (DocumentMetadata, error)
	StreamText(ctx context.Context, url string, w io.Writer) error
	Save(ctx context.Context, doc ExtractedDocument) (*jetstream.ObjectInfo, error)
}

type NopCache struct{}

func (c *NopCache) GetMetadata(context.Context, string) (DocumentMetadata, error) {
	return nil, nil
}

func (c *NopCache) StreamText(context.Context, string, io.Writer) error {
	return nil
}

func (c *NopCache) Save(context.Context, ExtractedDocument) (*jetstream.ObjectInfo, error) {
	return &jetstream.ObjectInfo{}, nil
}
