package transform

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
)

// KeySize is the length in bytes of a per-object encryption key.
const KeySize = chacha20poly1305.KeySize

// SealedStreamVersion is the first byte of every encrypted object. It is
// also passed as additional data to each chunk's AEAD call.
const SealedStreamVersion byte = 0x01

// ChunkSize is the plaintext size of every chunk except the last.
const ChunkSize = 64 * 1024

// A sealed stream is
//
//	[version: 1] [nonce prefix: 19] [chunk]...
//
// where each chunk is XChaCha20-Poly1305 ciphertext+tag under the nonce
// prefix || big-endian counter (4) || last flag (1). Every chunk but the
// last carries exactly ChunkSize plaintext bytes; the last carries fewer,
// possibly zero, so truncation at a chunk boundary is detected.
const (
	noncePrefixSize  = chacha20poly1305.NonceSizeX - 5
	sealedHeaderSize = 1 + noncePrefixSize
	sealedChunkSize  = ChunkSize + chacha20poly1305.Overhead
)

var (
	// ErrAuthentication means a chunk failed AEAD verification: wrong key
	// or modified ciphertext.
	ErrAuthentication = errors.New("sealed stream authentication failed")
	// ErrTruncated means the stream ended before its final chunk.
	ErrTruncated = errors.New("sealed stream truncated")
)

// GenerateKey returns a fresh random key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("generating key: %w", err)
	}
	return key, nil
}

// EncodeKey renders a key the way clients receive it.
func EncodeKey(key []byte) string {
	return hex.EncodeToString(key)
}

// ParseKey decodes a hex key supplied by a client.
func ParseKey(value string) ([]byte, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, fmt.Errorf("key is required")
	}
	key, err := hex.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("key must be hex encoded")
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("key must be %d bytes", KeySize)
	}
	return key, nil
}

// KeyDigest returns the hex SHA-256 of key. Only the digest is stored.
func KeyDigest(key []byte) string {
	sum := sha256.Sum256(key)
	return hex.EncodeToString(sum[:])
}

// KeyMatchesDigest compares key against a stored digest in constant time.
func KeyMatchesDigest(key []byte, digest string) bool {
	if len(key) == 0 || digest == "" {
		return false
	}
	got := KeyDigest(key)
	return subtle.ConstantTimeCompare([]byte(got), []byte(strings.ToLower(digest))) == 1
}

type sealWriter struct {
	aead    cipher.AEAD
	w       io.Writer
	prefix  [noncePrefixSize]byte
	counter uint32
	buf     []byte
	out     []byte
	header  bool
	closed  bool
	err     error
}

// NewSealWriter returns a writer that encrypts everything written to it
// into w. Close writes the final chunk and must be called; it does not
// close w.
func NewSealWriter(w io.Writer, key []byte) (io.WriteCloser, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("creating XChaCha20-Poly1305 cipher: %w", err)
	}
	s := &sealWriter{
		aead: aead,
		w:    w,
		buf:  make([]byte, 0, ChunkSize),
		out:  make([]byte, 0, sealedChunkSize),
	}
	if _, err := io.ReadFull(rand.Reader, s.prefix[:]); err != nil {
		return nil, fmt.Errorf("generating nonce prefix: %w", err)
	}
	return s, nil
}

func (s *sealWriter) Write(p []byte) (int, error) {
	if s.err != nil {
		return 0, s.err
	}
	if s.closed {
		return 0, fmt.Errorf("write to closed seal writer")
	}
	written := 0
	for len(p) > 0 {
		// A full buffer is only flushed once more input arrives, so the
		// last chunk is never full.
		if len(s.buf) == ChunkSize {
			if err := s.flush(false); err != nil {
				return written, err
			}
		}
		n := copy(s.buf[len(s.buf):ChunkSize], p)
		s.buf = s.buf[:len(s.buf)+n]
		p = p[n:]
		written += n
	}
	return written, nil
}

func (s *sealWriter) Close() error {
	if s.closed {
		return s.err
	}
	s.closed = true
	if s.err != nil {
		return s.err
	}
	if len(s.buf) == ChunkSize {
		if err := s.flush(false); err != nil {
			return err
		}
	}
	return s.flush(true)
}

func (s *sealWriter) flush(last bool) error {
	if !s.header {
		header := make([]byte, 0, sealedHeaderSize)
		header = append(header, SealedStreamVersion)
		header = append(header, s.prefix[:]...)
		if _, err := s.w.Write(header); err != nil {
			s.err = err
			return err
		}
		s.header = true
	}
	if s.counter == ^uint32(0) {
		s.err = fmt.Errorf("sealed stream too large")
		return s.err
	}
	nonce := chunkNonce(s.prefix, s.counter, last)
	s.out = s.aead.Seal(s.out[:0], nonce[:], s.buf, []byte{SealedStreamVersion})
	if _, err := s.w.Write(s.out); err != nil {
		s.err = err
		return err
	}
	s.counter++
	s.buf = s.buf[:0]
	return nil
}

type openReader struct {
	aead    cipher.AEAD
	r       io.Reader
	prefix  [noncePrefixSize]byte
	counter uint32
	in      []byte
	plain   []byte
	pos     int
	header  bool
	done    bool
	err     error
}

// NewOpenReader returns a reader that decrypts and authenticates a sealed
// stream read from r. Each chunk is verified before any of its bytes are
// returned.
func NewOpenReader(r io.Reader, key []byte) (io.Reader, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("creating XChaCha20-Poly1305 cipher: %w", err)
	}
	return &openReader{
		aead:  aead,
		r:     r,
		in:    make([]byte, sealedChunkSize),
		plain: make([]byte, 0, ChunkSize),
	}, nil
}

func (o *openReader) Read(p []byte) (int, error) {
	for o.pos >= len(o.plain) {
		if o.err != nil {
			return 0, o.err
		}
		if o.done {
			return 0, io.EOF
		}
		if err := o.fill(); err != nil {
			o.err = err
			return 0, err
		}
	}
	n := copy(p, o.plain[o.pos:])
	o.pos += n
	return n, nil
}

func (o *openReader) fill() error {
	if !o.header {
		var header [sealedHeaderSize]byte
		if _, err := io.ReadFull(o.r, header[:]); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return ErrTruncated
			}
			return err
		}
		if header[0] != SealedStreamVersion {
			return fmt.Errorf("unsupported sealed stream version %d", header[0])
		}
		copy(o.prefix[:], header[1:])
		o.header = true
	}

	n, err := io.ReadFull(o.r, o.in)
	last := false
	switch {
	case err == nil:
	case errors.Is(err, io.ErrUnexpectedEOF):
		last = true
	case errors.Is(err, io.EOF):
		return ErrTruncated
	default:
		return err
	}
	if n < chacha20poly1305.Overhead {
		return ErrTruncated
	}

	nonce := chunkNonce(o.prefix, o.counter, last)
	plain, err := o.aead.Open(o.plain[:0], nonce[:], o.in[:n], []byte{SealedStreamVersion})
	if err != nil {
		return ErrAuthentication
	}
	o.plain = plain
	o.pos = 0
	o.counter++
	o.done = last
	return nil
}

func chunkNonce(prefix [noncePrefixSize]byte, counter uint32, last bool) [chacha20poly1305.NonceSizeX]byte {
	var nonce [chacha20poly1305.NonceSizeX]byte
	copy(nonce[:], prefix[:])
	binary.BigEndian.PutUint32(nonce[noncePrefixSize:], counter)
	if last {
		nonce[len(nonce)-1] = 1
	}
	return nonce
}
