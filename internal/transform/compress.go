// Package transform holds the reversible byte transforms applied to blob
// content between the client and the content store: compression and
// authenticated encryption. Writers are applied compress-then-encrypt and
// readers decrypt-then-decompress.
package transform

import (
	"fmt"
	"io"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"

	"blobd/internal/models"
)

// NewCompressWriter wraps w so that bytes written are compressed with
// algo. A zero level selects the default. Close must be called to flush
// trailing data; it does not close w.
func NewCompressWriter(w io.Writer, algo models.CompressionAlgorithm, level int) (io.WriteCloser, error) {
	if level == 0 {
		level = models.CompressionLevelDefault
	}
	if !models.IsValidCompressionLevel(level) {
		return nil, fmt.Errorf("invalid compression level %d", level)
	}
	switch algo {
	case models.CompressionNone, "":
		return nopWriteCloser{w}, nil
	case models.CompressionDeflate:
		fw, err := flate.NewWriter(w, level)
		if err != nil {
			return nil, fmt.Errorf("deflate writer: %w", err)
		}
		return fw, nil
	case models.CompressionGzip:
		gw, err := gzip.NewWriterLevel(w, level)
		if err != nil {
			return nil, fmt.Errorf("gzip writer: %w", err)
		}
		return gw, nil
	default:
		return nil, fmt.Errorf("unsupported compression %q", algo)
	}
}

// NewDecompressReader returns a reader yielding the decompressed form of
// r. Closing it does not close r.
func NewDecompressReader(r io.Reader, algo models.CompressionAlgorithm) (io.ReadCloser, error) {
	switch algo {
	case models.CompressionNone, "":
		return io.NopCloser(r), nil
	case models.CompressionDeflate:
		return flate.NewReader(r), nil
	case models.CompressionGzip:
		gr, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("gzip reader: %w", err)
		}
		return gr, nil
	default:
		return nil, fmt.Errorf("unsupported compression %q", algo)
	}
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }
