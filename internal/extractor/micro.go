package extractor

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strconv"

	"github.com/go-json-experiment/json"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/micro"
)

const queueGroup = "pdfstream"

func (e *Extractor) RegisterNatsService(nc *nats.Conn) (micro.Service, error) {
	extractService, err := micro.AddService(nc, micro.Config{
		Name:        "pdfstream",
		Version:     "1.0.0",
		Description: "Returns the plain text content of PDFs",
	})
	if err != nil {
		return nil, err
	}
	err = extractService.AddEndpoint("extract-remote",
		micro.HandlerFunc(e.handleUrl),
		micro.WithEndpointQueueGroup(queueGroup))
	if err != nil {
		return nil, err
	}
	err = extractService.AddEndpoint("update-cache",
		micro.HandlerFunc(e.updateCache),
		micro.WithEndpointQueueGroup(queueGroup))
	if err != nil {
		return nil, err
	}
	return extractService, nil
}

// handleUrl replies to a Nats request with the document's text and its metadata as headers.
func (e *Extractor) handleUrl(req micro.Request) {
	var params RequestParams
	if err := json.Unmarshal(req.Data(), &params); err != nil {
		req.Error("400", err.Error(), nil)
		return
	}
	if err := e.validate.Struct(params); err != nil {
		req.Error("400", err.Error(), nil)
		return
	}
	e.log.Info("Received Nats request", "params", params)
	var b bytes.Buffer
	header := http.Header{}
	status, err := e.DocFromUrl(context.Background(), params, &b, header)
	if err != nil {
		req.Error(strconv.Itoa(status), err.Error(), nil)
		return
	}
	req.Respond(b.Bytes(), micro.WithHeaders(micro.Headers(header)))
}

// updateCache responds with 'done' once a document has been added
// or refreshed in the cache
func (e *Extractor) updateCache(req micro.Request) {
	params := RequestParams{Url: string(req.Data()), Silent: true}
	if err := e.validate.Struct(params); err != nil {
		req.Error("400", err.Error(), nil)
		return
	}
	e.log.Info("Received Nats request", "params", params)
	_, err := e.DocFromUrl(context.Background(), params, io.Discard, http.Header{})
	if err != nil {
		req.Error("500", err.Error(), nil)
		return
	}
	req.Respond([]byte("done"))
}
