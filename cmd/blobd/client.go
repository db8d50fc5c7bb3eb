package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"time"

	"blobd/internal/api"
	"blobd/internal/config"
)

const (
	serverProbeTimeout = 500 * time.Millisecond
	serverStartTimeout = 3 * time.Second
	serverPollInterval = 100 * time.Millisecond
)

// withClient runs fn against the configured server, spawning a local
// `blobd srv` for the duration of fn when nothing answers.
func withClient(ctx context.Context, cfg *config.Config, fn func(*api.Client) error) error {
	client := api.NewClient(cfg.APIURL)

	stop, err := ensureServer(ctx, cfg, client)
	if err != nil {
		return err
	}
	defer stop()

	return fn(client)
}

func ensureServer(ctx context.Context, cfg *config.Config, client *api.Client) (func(), error) {
	probeCtx, cancel := context.WithTimeout(ctx, serverProbeTimeout)
	err := client.Ping(probeCtx)
	cancel()
	if err == nil {
		return func() {}, nil
	}

	cmd, err := startServerProcess(cfg)
	if err != nil {
		return nil, fmt.Errorf("start local server: %w", err)
	}
	stop := func() {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
	}

	if err := waitForServer(ctx, client, serverStartTimeout); err != nil {
		stop()
		return nil, err
	}
	return stop, nil
}

func startServerProcess(cfg *config.Config) (*exec.Cmd, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, err
	}

	cmd := exec.Command(exe, "srv")
	cmd.Env = append(os.Environ(),
		"BLOBD_DB="+cfg.DBPath,
		"BLOBD_DATA_DIR="+cfg.DataDir,
		"BLOBD_API_URL="+cfg.APIURL,
	)
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard

	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return cmd, nil
}

func waitForServer(ctx context.Context, client *api.Client, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(serverPollInterval)
	defer ticker.Stop()

	for {
		probeCtx, probeCancel := context.WithTimeout(ctx, 2*serverPollInterval)
		err := client.Ping(probeCtx)
		probeCancel()
		if err == nil {
			return nil
		}
		if !isConnRefused(err) {
			// Port is taken by something that is not blobd.
			return err
		}

		select {
		case <-ctx.Done():
			return errors.New("server did not start in time")
		case <-ticker.C:
		}
	}
}

func isConnRefused(err error) bool {
	var netErr *net.OpError
	return errors.As(err, &netErr)
}
