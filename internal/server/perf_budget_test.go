package server

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"blobd/internal/models"
)

func TestPerformanceBudgets(t *testing.T) {
	if strings.TrimSpace(os.Getenv("BLOBD_PERF_ENFORCE")) != "1" {
		t.Skip("set BLOBD_PERF_ENFORCE=1 to run performance budget checks")
	}

	t.Run("ingest_gzip", func(t *testing.T) {
		service := newPerfBlobService(t, models.CompressionGzip)
		ctx := context.Background()
		rounds := envInt("BLOBD_PERF_INGEST_ROUNDS", 64)
		maxPerOp := envDuration("BLOBD_PERF_INGEST_MAX_PER_OP", 40*time.Millisecond)

		started := time.Now()
		for i := 0; i < rounds; i++ {
			if _, err := service.Ingest(ctx, IngestInput{Content: bytes.NewReader(perfPayload(i, perfPayloadSize))}); err != nil {
				t.Fatalf("ingest round %d: %v", i, err)
			}
		}
		assertBudget(t, "ingest_gzip", time.Since(started), rounds, maxPerOp)
	})

	t.Run("ingest_duplicate", func(t *testing.T) {
		service := newPerfBlobService(t, models.CompressionNone)
		ctx := context.Background()
		seedPerfBlobs(t, service, 1)
		payload := perfPayload(0, perfPayloadSize)
		rounds := envInt("BLOBD_PERF_DEDUP_ROUNDS", 128)
		maxPerOp := envDuration("BLOBD_PERF_DEDUP_MAX_PER_OP", 15*time.Millisecond)

		started := time.Now()
		for i := 0; i < rounds; i++ {
			result, err := service.Ingest(ctx, IngestInput{Content: bytes.NewReader(payload)})
			if err != nil {
				t.Fatalf("dedup round %d: %v", i, err)
			}
			if !result.Deduplicated {
				t.Fatalf("dedup round %d wrote a new object", i)
			}
		}
		assertBudget(t, "ingest_duplicate", time.Since(started), rounds, maxPerOp)
	})

	t.Run("open_gzip", func(t *testing.T) {
		service := newPerfBlobService(t, models.CompressionGzip)
		ctx := context.Background()
		ids := seedPerfBlobs(t, service, 32)
		rounds := envInt("BLOBD_PERF_OPEN_ROUNDS", 128)
		maxPerOp := envDuration("BLOBD_PERF_OPEN_MAX_PER_OP", 20*time.Millisecond)

		started := time.Now()
		for i := 0; i < rounds; i++ {
			content, err := service.Open(ctx, ids[i%len(ids)], "")
			if err != nil {
				t.Fatalf("open round %d: %v", i, err)
			}
			n, err := io.Copy(io.Discard, content.Reader)
			content.Reader.Close()
			if err != nil {
				t.Fatalf("read round %d: %v", i, err)
			}
			if n != perfPayloadSize {
				t.Fatalf("read round %d size mismatch: got %d want %d", i, n, perfPayloadSize)
			}
		}
		assertBudget(t, "open_gzip", time.Since(started), rounds, maxPerOp)
	})

	t.Run("sweep_orphans", func(t *testing.T) {
		env := newTestEnv(t, ServiceOptions{})
		seedPerfBlobs(t, env.service, 200)
		sweeper := NewRetentionSweeper(env.service, SweepPolicy{BatchSize: 50})
		rounds := envInt("BLOBD_PERF_SWEEP_ROUNDS", 20)
		maxPerOp := envDuration("BLOBD_PERF_SWEEP_MAX_PER_OP", 50*time.Millisecond)

		started := time.Now()
		for i := 0; i < rounds; i++ {
			if _, err := sweeper.SweepOrphans(context.Background()); err != nil {
				t.Fatalf("sweep round %d: %v", i, err)
			}
		}
		assertBudget(t, "sweep_orphans", time.Since(started), rounds, maxPerOp)
	})
}

func assertBudget(t *testing.T, name string, elapsed time.Duration, ops int, maxPerOp time.Duration) {
	t.Helper()
	if ops <= 0 {
		t.Fatalf("%s: invalid op count %d", name, ops)
	}
	perOp := elapsed / time.Duration(ops)
	t.Logf("%s baseline: total=%s ops=%d per_op=%s budget=%s", name, elapsed, ops, perOp, maxPerOp)
	if perOp > maxPerOp {
		t.Fatalf("%s regression: per_op=%s exceeds budget=%s", name, perOp, maxPerOp)
	}
}

func envInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func envDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err == nil && parsed > 0 {
		return parsed
	}
	if millis, err := strconv.Atoi(value); err == nil && millis > 0 {
		return time.Duration(millis) * time.Millisecond
	}
	fmt.Fprintf(os.Stderr, "warning: invalid duration for %s=%q, using default %s\n", key, value, def)
	return def
}
