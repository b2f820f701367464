package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/johbar/pdfstream/internal/cache"
	natsconn "github.com/johbar/pdfstream/internal/cache/nats"
	"github.com/johbar/pdfstream/internal/config"
	"github.com/johbar/pdfstream/internal/docfactory"
	"github.com/johbar/pdfstream/internal/extractor"
	"github.com/nats-io/nats.go"
)

func main() {
	os.Exit(run())
}

func run() int {
	conf, err := config.NewPdfsConfigFromEnv()
	if err != nil {
		slog.Error("Invalid configuration", "err", err)
		return 1
	}
	logger := conf.NewLogger()
	httpClient := &http.Client{}
	df := docfactory.New(conf, logger, httpClient)
	defer df.Close()

	args := os.Args
	// one shot mode: don't start a server, just process a single file provided on the command line
	if len(args) > 1 {
		e := extractor.New(conf, df, nil, logger)
		defer e.Close()
		if err := e.PrintMetadataAndTextToStdout(context.Background(), args[1]); err != nil {
			logger.Error("Could not process document", "url", args[1], "err", err)
			return 2
		}
		return 0
	}

	var (
		nc        *nats.Conn
		pdfsCache cache.Cache = &cache.NopCache{}
	)
	if conf.NatsUrl != "" || conf.NatsEmbedded {
		nc, err = natsconn.SetupNatsConnection(*conf, logger)
		if err == nil {
			var objCache *cache.ObjectStoreCache
			objCache, err = cache.New(*conf, logger, nc)
			if err == nil {
				pdfsCache = objCache
			}
		}
		if err != nil {
			logger.Error("NATS cache unavailable", "err", err)
			if conf.FailWithoutJetstream {
				return 1
			}
		}
	}
	// Deferred calls run in reverse order: the micro service stops first, then the
	// extractor waits for running requests and pending saves, then NATS is drained,
	// and PDFium is destroyed last.
	if nc != nil {
		defer func() {
			if err := natsconn.DrainAndWait(nc); err != nil {
				logger.Warn("Draining NATS connection failed", "err", err)
			}
		}()
	}

	e := extractor.New(conf, df, pdfsCache, logger)
	defer e.Close()
	e.LogEnvironment()
	if nc != nil {
		svc, err := e.RegisterNatsService(nc)
		if err != nil {
			logger.Error("Registering NATS micro service failed", "err", err)
			return 1
		}
		defer func() {
			if err := svc.Stop(); err != nil {
				logger.Warn("Stopping NATS micro service failed", "err", err)
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if conf.NoHttp {
		if nc == nil {
			logger.Error("Fatal: NATS not connected and HTTP disabled.")
			return 1
		}
		logger.Info("Service started with no HTTP endpoints. Waiting for interrupt.")
		<-ctx.Done()
		return 0
	}

	srv := &http.Server{Addr: conf.SrvAddr, Handler: e.Router()}
	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown failed", "err", err)
		}
	}()
	logger.Info("Service started", "address", srv.Addr)
	err = srv.ListenAndServe()
	// ListenAndServe returns as soon as Shutdown starts; wait for running handlers.
	stop()
	<-shutdownDone
	logger.Info("HTTP Server stopped.")
	if !errors.Is(err, http.ErrServerClosed) {
		// Error starting or closing listener:
		logger.Error("Webserver failed", "err", err)
		return 1
	}
	return 0
}
