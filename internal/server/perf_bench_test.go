package server

import (
	"bytes"
	"context"
	"io"
	"testing"

	"blobd/internal/models"
)

func BenchmarkIngest(b *testing.B) {
	for _, algo := range []models.CompressionAlgorithm{models.CompressionNone, models.CompressionGzip} {
		b.Run(string(algo), func(b *testing.B) {
			service := newPerfBlobService(b, algo)
			ctx := context.Background()

			b.SetBytes(perfPayloadSize)
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				payload := perfPayload(i, perfPayloadSize)
				if _, err := service.Ingest(ctx, IngestInput{Content: bytes.NewReader(payload)}); err != nil {
					b.Fatalf("ingest: %v", err)
				}
			}
		})
	}
}

func BenchmarkIngestDuplicate(b *testing.B) {
	service := newPerfBlobService(b, models.CompressionNone)
	ctx := context.Background()
	payload := perfPayload(0, perfPayloadSize)
	seedPerfBlobs(b, service, 1)

	b.SetBytes(perfPayloadSize)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		result, err := service.Ingest(ctx, IngestInput{Content: bytes.NewReader(payload)})
		if err != nil {
			b.Fatalf("ingest duplicate: %v", err)
		}
		if !result.Deduplicated {
			b.Fatal("expected duplicate")
		}
	}
}

func BenchmarkIngestEncrypted(b *testing.B) {
	service := newPerfBlobService(b, models.CompressionNone)
	ctx := context.Background()
	payload := perfPayload(0, perfPayloadSize)

	b.SetBytes(perfPayloadSize)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := service.Ingest(ctx, IngestInput{Content: bytes.NewReader(payload), Encrypt: true}); err != nil {
			b.Fatalf("ingest encrypted: %v", err)
		}
	}
}

func BenchmarkOpen(b *testing.B) {
	service := newPerfBlobService(b, models.CompressionGzip)
	ctx := context.Background()
	ids := seedPerfBlobs(b, service, 16)

	b.SetBytes(perfPayloadSize)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		content, err := service.Open(ctx, ids[i%len(ids)], "")
		if err != nil {
			b.Fatalf("open: %v", err)
		}
		if _, err := io.Copy(io.Discard, content.Reader); err != nil {
			b.Fatalf("read: %v", err)
		}
		content.Reader.Close()
	}
}
