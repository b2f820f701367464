package extractor

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime/debug"
	"strings"

	"github.com/go-json-experiment/json"
	"github.com/johbar/pdfstream/internal/cache"
	"github.com/johbar/pdfstream/pkg/dehyphenator"
)

// RunDehyphenator starts the dehyphenator process on another Go routine.
// It returns a pipewriter to write the input to
func (e *Extractor) RunDehyphenator(w io.Writer) (*io.PipeWriter, chan struct{}) {
	pr, pw := io.Pipe()
	finished := make(chan struct{})
	go func() {
		err := dehyphenator.Dehyphenate(pr, w, e.pdfsConfig.RemoveNewlines)
		if err != nil {
			// If the dehyphenator failed, we proceed in streaming the content
			e.log.Warn("Dehyphenator failed", "err", err)
			if _, err := io.Copy(w, pr); err != nil {
				e.log.Debug("RunDehyphenator: Could not write to output stream", "err", err)
			}
		}
		if err := pr.Close(); err != nil {
			e.log.Error("RunDehyphenator: Could not close PipeReader in go routine")
		}
		close(finished)
	}()
	return pw, finished
}

// PrintMetadataAndTextToStdout prints a file's metadata (as JSON) on the first line, followed by the file's text content.
// The file can be local or remote (http/https). When url is "-", the file will be read from Stdin
func (e *Extractor) PrintMetadataAndTextToStdout(ctx context.Context, url string) error {
	return e.printMetadataAndText(ctx, url, os.Stdin, os.Stdout)
}

func (e *Extractor) printMetadataAndText(ctx context.Context, url string, stdin io.Reader, stdout io.Writer) error {
	var doc cache.Document
	var err error
	switch {
	case strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://"):
		ctx, cancel := context.WithTimeout(ctx, e.pdfsConfig.HttpTimeout)
		defer cancel()
		remote, err := e.df.NewFromURL(ctx, url, nil)
		if err != nil {
			return fmt.Errorf("processing %s: %w", url, err)
		}
		e.log.Debug("Document fetched", "url", url, "ranged", remote.Ranged, "size", remote.ContentLength)
		doc = remote.Doc
		defer doc.Close()
		return e.printDoc(doc, stdout)
	case url == "-":
		doc, err = e.df.NewDocFromStream(stdin, -1, url)
	default:
		doc, err = e.df.NewFromPath(url, url)
	}
	if err != nil {
		return fmt.Errorf("processing %s: %w", url, err)
	}
	defer doc.Close()
	return e.printDoc(doc, stdout)
}

func (e *Extractor) printDoc(doc cache.Document, stdout io.Writer) error {
	if err := json.MarshalWrite(stdout, doc.MetadataMap(), json.Deterministic(true)); err != nil {
		return fmt.Errorf("printing metadata: %w", err)
	}
	if _, err := io.WriteString(stdout, "\n"); err != nil {
		return err
	}
	return e.writeText(doc, stdout, 0)
}

// LogEnvironment logs build info, memory limit and the PDF library in use.
func (e *Extractor) LogEnvironment() {
	buildinfo, _ := debug.ReadBuildInfo()
	e.log.Debug("Info", "buildinfo", buildinfo)
	if os.Getenv("GOMEMLIMIT") != "" {
		e.log.Debug("GOMEMLIMIT", "Bytes", debug.SetMemoryLimit(-1), "MBytes", debug.SetMemoryLimit(-1)/1024/1024)
	}
	e.log.Info("PDF implementation", "lib", e.df.PdfImpl())
}
