package server

import (
	"bytes"
	"context"
	"encoding/binary"
	"math/rand"
	"testing"

	"blobd/internal/models"
)

const perfPayloadSize = 256 * 1024

func newPerfBlobService(tb testing.TB, algo models.CompressionAlgorithm) *BlobService {
	tb.Helper()
	return newTestEnv(tb, ServiceOptions{Compression: algo, CompressionLevel: models.CompressionLevelDefault}).service
}

// perfPayload returns semi-compressible content unique to seq.
func perfPayload(seq int, size int) []byte {
	rng := rand.New(rand.NewSource(int64(seq)))
	buf := make([]byte, size)
	words := [][]byte{[]byte("blob "), []byte("store "), []byte("chunk "), []byte("object ")}
	for i := 0; i < size; {
		word := words[rng.Intn(len(words))]
		i += copy(buf[i:], word)
	}
	binary.BigEndian.PutUint64(buf, uint64(seq))
	return buf
}

func seedPerfBlobs(tb testing.TB, svc *BlobService, count int) []string {
	tb.Helper()
	ids := make([]string, 0, count)
	for i := 0; i < count; i++ {
		result, err := svc.Ingest(context.Background(), IngestInput{Content: bytes.NewReader(perfPayload(i, perfPayloadSize))})
		if err != nil {
			tb.Fatalf("seed blob %d: %v", i, err)
		}
		ids = append(ids, result.ID)
	}
	return ids
}
