package cache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/johbar/pdfstream/internal/config"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// ObjectStoreCache keeps the text of each document in a NATS object store,
// with the metadata attached to the object.
type ObjectStoreCache struct {
	jetstream.ObjectStore
	js jetstream.JetStream
}

func New(conf config.PdfsConfig, log *slog.Logger, nc *nats.Conn) (*ObjectStoreCache, error) {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	if nc == nil {
		return nil, errors.New("no connection to NATS")
	}
	js, err := setupJetstream(conf, nc, log)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	store, err := js.CreateOrUpdateObjectStore(ctx, jetstream.ObjectStoreConfig{
		Storage:     jetstream.FileStorage,
		Bucket:      conf.Bucket,
		Compression: true,
		Replicas:    conf.Replicas,
	})
	if err != nil {
		return nil, fmt.Errorf("initializing NATS object store: %w", err)
	}
	log.Info("NATS object store initialized.", "bucket", conf.Bucket)
	return &ObjectStoreCache{store, js}, nil
}

func setupJetstream(conf config.PdfsConfig, nc *nats.Conn, log *slog.Logger) (jetstream.JetStream, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("initializing NATS JetStream: %w", err)
	}

	for attempts := 0; attempts <= conf.NatsConnectRetries; attempts++ {
		ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		_, err = js.AccountInfo(ctx)
		cancel()
		if err == nil {
			return js, nil
		}
		if errors.Is(err, jetstream.ErrJetStreamNotEnabled) || errors.Is(err, jetstream.ErrJetStreamNotEnabledForAccount) {
			return nil, err
		}
		log.Error("NATS JetStream check failed. Is JetStream enabled in external NATS server(s)?",
			"err", err,
			"count", attempts,
			"maxRetries", conf.NatsConnectRetries)
		time.Sleep(time.Second)
	}
	return nil, fmt.Errorf("retry count exceeded: %w", err)
}

func (store *ObjectStoreCache) GetMetadata(ctx context.Context, url string) (DocumentMetadata, error) {
	info, err := store.GetInfo(ctx, url)
	if errors.Is(err, jetstream.ErrObjectNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("retrieving object metadata for %s: %w", url, err)
	}
	return info.Metadata, nil
}

func (store *ObjectStoreCache) StreamText(ctx context.Context, url string, w io.Writer) error {
	obj, err := store.Get(ctx, url)
	if err != nil {
		return fmt.Errorf("retrieving object %s from object store: %w", url, err)
	}
	defer obj.Close()
	_, err = io.Copy(w, obj)
	return err
}

func (store *ObjectStoreCache) Save(ctx context.Context, doc ExtractedDocument) (*jetstream.ObjectInfo, error) {
	m := jetstream.ObjectMeta{Metadata: doc.Metadata, Name: doc.Url}
	return store.ObjectStore.Put(ctx, m, bytes.NewReader(doc.Text))
}
