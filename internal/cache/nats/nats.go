// Package nats connects the service to NATS, either an external server
// or one embedded in the process.
package nats

import (
	"errors"
	"log/slog"
	"time"

	"github.com/johbar/pdfstream/internal/config"
	"github.com/nats-io/nats.go"
)

var errNatsNotEmbedded = errors.New("NATS has not been embedded in this build")

// SetupNatsConnection connects the service to NATS, retrying as configured.
// If no URL is configured and NatsEmbedded is set, an embedded server is started.
func SetupNatsConnection(conf config.PdfsConfig, log *slog.Logger) (*nats.Conn, error) {
	if conf.NatsUrl == "" && conf.NatsEmbedded {
		log.Info("Starting embedded NATS server", "storeDir", conf.NatsStoreDir, "exposed", conf.ExposeNats)
		return ConnectToEmbeddedNatsServer(conf)
	}
	var attempts int
	for {
		attempts++
		log.Info("Try connecting to NATS", "url", conf.NatsUrl, "timeoutSecs", conf.NatsTimeout.Seconds(), "count", attempts)
		nc, err := nats.Connect(conf.NatsUrl,
			nats.Name("pdfstream"),
			nats.Timeout(conf.NatsTimeout),
			nats.DrainTimeout(conf.NatsTimeout))
		if err == nil {
			return nc, nil
		}
		log.Error("Connecting to NATS failed",
			"url", conf.NatsUrl,
			"err", err,
			"count", attempts,
			"maxRetries", conf.NatsConnectRetries)
		if attempts > conf.NatsConnectRetries {
			return nil, err
		}
		time.Sleep(time.Second)
	}
}

// DrainAndWait drains nc and blocks until the connection is closed.
// Pending messages of all subscriptions are handled before that happens.
// The drain timeout of the connection bounds the wait.
func DrainAndWait(nc *nats.Conn) error {
	if err := nc.Drain(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
		return err
	}
	for !nc.IsClosed() {
		time.Sleep(10 * time.Millisecond)
	}
	return nil
}
