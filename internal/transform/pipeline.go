package transform

import (
	"errors"
	"io"

	"blobd/internal/models"
)

// Options selects the transforms applied to one object.
type Options struct {
	Compression models.CompressionAlgorithm
	Level       int
	// Key enables encryption when non-empty.
	Key []byte
}

// NewEncoder returns a writer that compresses and then, when a key is
// set, encrypts into w. Close flushes every stage in order; w itself is
// left open.
func NewEncoder(w io.Writer, opts Options) (io.WriteCloser, error) {
	var closers []io.Closer
	sink := w
	if len(opts.Key) > 0 {
		sealer, err := NewSealWriter(w, opts.Key)
		if err != nil {
			return nil, err
		}
		sink = sealer
		closers = append(closers, sealer)
	}
	compressor, err := NewCompressWriter(sink, opts.Compression, opts.Level)
	if err != nil {
		return nil, err
	}
	closers = append([]io.Closer{compressor}, closers...)
	return &chainWriter{Writer: compressor, closers: closers}, nil
}

// NewDecoder reverses NewEncoder over r. Closing the decoder does not
// close r.
func NewDecoder(r io.Reader, compression models.CompressionAlgorithm, key []byte) (io.ReadCloser, error) {
	src := r
	if len(key) > 0 {
		opened, err := NewOpenReader(r, key)
		if err != nil {
			return nil, err
		}
		src = opened
	}
	return NewDecompressReader(src, compression)
}

type chainWriter struct {
	io.Writer
	closers []io.Closer
	closed  bool
}

func (c *chainWriter) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	var errs []error
	for _, closer := range c.closers {
		if err := closer.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
