package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

const (
	apiTokenEnvKey    = "BLOBD_API_TOKEN"
	adminTokenEnvKey  = "BLOBD_ADMIN_TOKEN"
	allowRemoteEnvKey = "BLOBD_ALLOW_REMOTE"
	readHeaderTimeout = 5 * time.Second
	idleTimeout       = 60 * time.Second
	shutdownTimeout   = 10 * time.Second
)

// Options configures the HTTP surface around a BlobService.
type Options struct {
	RateLimitMaxRequests int
	RateLimitWindow      time.Duration
	// MaxJSONBody bounds JSON upload bodies; base64 inflates content by a
	// third, so it is derived from the upload limit when unset.
	MaxJSONBody int64
}

// Server wraps HTTP handlers for the blobd API.
type Server struct {
	addr        string
	service     *BlobService
	sweeper     *RetentionSweeper
	limiter     *rateLimiter
	metrics     *Metrics
	logger      *slog.Logger
	apiToken    string
	adminToken  string
	maxJSONBody int64
}

// New creates a new server instance. sweeper may be nil, in which case no
// background retention runs and the admin sweep route reports an error.
func New(addr string, service *BlobService, sweeper *RetentionSweeper, opts Options, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	var metrics *Metrics
	if service != nil {
		metrics = service.metrics
	}

	maxJSONBody := opts.MaxJSONBody
	if maxJSONBody <= 0 && service != nil && service.maxUploadBytes > 0 {
		maxJSONBody = service.maxUploadBytes/3*4 + 4*1024
	}

	s := &Server{
		addr:        addr,
		service:     service,
		sweeper:     sweeper,
		limiter:     newRateLimiter(opts.RateLimitMaxRequests, opts.RateLimitWindow),
		metrics:     metrics,
		logger:      logger,
		apiToken:    strings.TrimSpace(os.Getenv(apiTokenEnvKey)),
		adminToken:  strings.TrimSpace(os.Getenv(adminTokenEnvKey)),
		maxJSONBody: maxJSONBody,
	}
	if sweeper != nil {
		sweeper.limiter = s.limiter
	}
	return s
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.withRequestLogging(s.withRateLimit(s.withAuth(s.routes())))
}

// ListenAndServe starts the retention sweeper and the HTTP server, and
// shuts both down when ctx is canceled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.log().Info("starting server", "addr", s.addr)
	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		IdleTimeout:       idleTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	sweepCtx, stopSweeper := context.WithCancel(ctx)
	sweeperDone := make(chan struct{})
	go func() {
		defer close(sweeperDone)
		if s.sweeper != nil {
			s.sweeper.Run(sweepCtx)
		}
	}()
	defer func() {
		stopSweeper()
		<-sweeperDone
	}()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.log().Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

// ListenAddr converts a base API URL into a listen address.
func ListenAddr(apiURL string) (string, error) {
	if apiURL == "" {
		return "", fmt.Errorf("api url is required")
	}
	if u, err := url.Parse(apiURL); err == nil && u.Host != "" {
		host := u.Hostname()
		if !isAllowedListenHost(host) {
			return "", fmt.Errorf("remote listen host %q requires %s=true", host, allowRemoteEnvKey)
		}
		return u.Host, nil
	}

	host, _, err := net.SplitHostPort(apiURL)
	if err == nil && !isAllowedListenHost(host) {
		return "", fmt.Errorf("remote listen host %q requires %s=true", host, allowRemoteEnvKey)
	}

	return apiURL, nil
}

func isAllowedListenHost(host string) bool {
	if host == "" {
		return true
	}
	if strings.EqualFold(strings.TrimSpace(os.Getenv(allowRemoteEnvKey)), "true") {
		return true
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func (s *Server) log() *slog.Logger {
	if s != nil && s.logger != nil {
		return s.logger
	}
	return slog.Default()
}

func (s *Server) now() time.Time {
	if s != nil && s.service != nil && s.service.now != nil {
		return s.service.now()
	}
	return time.Now().UTC()
}
