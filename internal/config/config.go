package config

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"go-simpler.org/env"
)

// PdfsConfig represents the configuration of this service
type PdfsConfig struct {
	// Name of the object store bucket in NATS to use. Default: PDFS_TEXTS
	Bucket string `env:"PDFS_BUCKET" default:"PDFS_TEXTS"`
	// Add source info to log statements and log on DEBUG level. Default: false
	Debug bool `env:"PDFS_DEBUG" default:"false"`
	// Join words hyphenated at line breaks in extracted text
	Dehyphenate bool `env:"PDFS_DEHYPHENATE" default:"true"`
	// whether to expose the embedded NATS server to other clients. Default: false
	ExposeNats bool `env:"PDFS_EXPOSE_NATS" default:"false"`
	// If true the service will exit with an error if NATS or JetStream can't be connected
	FailWithoutJetstream bool `env:"PDFS_FAIL_WITHOUT_JS" default:"false"`
	// Timeout for fetching remote documents, including all range requests
	HttpTimeout time.Duration `env:"PDFS_HTTP_TIMEOUT" default:"5m"`
	// Log level (DEBUG, INFO, WARN, ERROR)
	LogLevelStr string `env:"PDFS_LOG_LEVEL" default:"INFO"`
	LogLevel    slog.Level
	// Maximum size a file may have; processing is aborted if a requested file is bigger
	MaxFileSize      string `env:"PDFS_MAX_FILE_SIZE" default:"300MiB"`
	MaxFileSizeBytes uint64
	// Maximum size of a file of known length to be processed in-memory instead of being streamed from disk
	MaxInMemory      string `env:"PDFS_MAX_IN_MEMORY" default:"2MiB"`
	MaxInMemoryBytes uint64
	// Start an embedded NATS server for the cache if no NatsUrl is set
	NatsEmbedded bool `env:"PDFS_NATS_EMBEDDED" default:"false"`
	// embedded NATS server host/ip address, if exposed
	NatsHost string `env:"PDFS_NATS_HOST" default:"localhost"`
	// NATS max msg size (embedded server only)
	NatsMaxPayload int32 `env:"PDFS_NATS_MAX_PAYLOAD" default:"8388608"`
	// embedded NATS server port, if exposed
	NatsPort int `env:"PDFS_NATS_PORT" default:"4222"`
	// embedded NATS server storage location. Default: the server's temp dir
	NatsStoreDir string `env:"PDFS_NATS_STORE_DIR"`
	// External NATS URL, e.g. nats://localhost:4222. If empty and NatsEmbedded is false, no cache is used
	NatsUrl string `env:"PDFS_NATS_URL"`
	// Timeout for the NATS connection
	NatsTimeout time.Duration `env:"PDFS_NATS_TIMEOUT" default:"15s"`
	// Number of attempts to connect to NATS server(s)
	NatsConnectRetries int `env:"PDFS_NATS_CONNECT_RETRIES" default:"10"`
	// if true, disable HTTP Server in favor of NATS Microservice interface
	NoHttp bool `env:"PDFS_NO_HTTP" default:"false"`
	// Path of the PDFium shared object file; can be empty (to use defaults) or just the basename (e.g. "libpdfium.so")
	PdfLibPath string `env:"PDFS_PDF_LIB_PATH"`
	// Block size of HTTP range requests when streaming remote documents
	RangeBlockSize      string `env:"PDFS_RANGE_BLOCK_SIZE" default:"256KiB"`
	RangeBlockSizeBytes uint64
	// Number of blocks per remote document kept in memory
	RangeCacheBlocks int `env:"PDFS_RANGE_CACHE_BLOCKS" default:"16"`
	// if true, remote documents are always downloaded instead of being read with range requests
	RangeDisabled bool `env:"PDFS_RANGE_DISABLED" default:"false"`
	// if true, extracted text will be compacted by replacing newlines with whitespace
	RemoveNewlines bool `env:"PDFS_REMOVE_NEWLINES" default:"false"`
	// How many replicas of the bucket to create. Default: 1
	Replicas int `env:"PDFS_REPLICAS" default:"1"`
	// HTTP listen address and/or port. Default: ':8080'
	SrvAddr string `env:"PDFS_HOST_PORT" default:":8080"`
}

// NewPdfsConfigFromEnv returns a service config object
// populated with defaults and values from environment vars
func NewPdfsConfigFromEnv() (*PdfsConfig, error) {
	var cfg PdfsConfig
	if err := env.Load(&cfg, nil); err != nil {
		return nil, err
	}
	err := cfg.LogLevel.UnmarshalText([]byte(cfg.LogLevelStr))
	if err != nil {
		return nil, fmt.Errorf("parsing log level from env: %w", err)
	}
	if cfg.Debug {
		cfg.LogLevel = slog.LevelDebug
	}
	if cfg.MaxInMemoryBytes, err = humanize.ParseBytes(cfg.MaxInMemory); err != nil {
		return nil, fmt.Errorf("parsing max in memory file size from env: %w", err)
	}
	if cfg.MaxFileSizeBytes, err = humanize.ParseBytes(cfg.MaxFileSize); err != nil {
		return nil, fmt.Errorf("parsing max file size from env: %w", err)
	}
	if cfg.RangeBlockSizeBytes, err = humanize.ParseBytes(cfg.RangeBlockSize); err != nil {
		return nil, fmt.Errorf("parsing range block size from env: %w", err)
	}
	if cfg.RangeBlockSizeBytes < 1024 {
		return nil, fmt.Errorf("range block size %s is too small, use at least 1KiB", cfg.RangeBlockSize)
	}
	return &cfg, nil
}

// NewLogger returns the JSON logger used throughout the service.
func (cfg *PdfsConfig) NewLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel, AddSource: cfg.Debug}))
}
