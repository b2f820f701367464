//go:build !no_embedded_nats

package nats

import (
	"errors"
	"time"

	"github.com/johbar/pdfstream/internal/config"
	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
)

const NatsEmbedded bool = true

// ConnectToEmbeddedNatsServer starts a JetStream enabled NATS server in this process
// and connects to it. The server shuts down when the connection is closed.
func ConnectToEmbeddedNatsServer(conf config.PdfsConfig) (*nats.Conn, error) {
	ns, err := server.NewServer(
		&server.Options{
			JetStream:  true,
			MaxPayload: conf.NatsMaxPayload,
			TLS:        false,
			DontListen: !conf.ExposeNats,
			Host:       conf.NatsHost,
			Port:       conf.NatsPort,
			StoreDir:   conf.NatsStoreDir,
		})
	if err != nil {
		return nil, err
	}
	if conf.Debug {
		ns.ConfigureLogger()
	}
	ns.Start()
	if !ns.ReadyForConnections(5 * time.Second) {
		ns.Shutdown()
		return nil, errors.New("embedded NATS not ready")
	}
	nc, err := nats.Connect("",
		nats.InProcessServer(ns),
		nats.Name("pdfstream"),
		nats.DrainTimeout(conf.NatsTimeout),
		nats.ClosedHandler(func(*nats.Conn) { ns.Shutdown() }))
	if err != nil {
		ns.Shutdown()
		return nil, err
	}
	return nc, nil
}
