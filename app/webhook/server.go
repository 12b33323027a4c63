// Package webhook implements the https ingress for telegram updates. It
// accepts POSTs on the secret path, pushes raw payloads to the updates queue
// and never blocks telegram longer than the queue allows.
package webhook

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/didip/tollbooth/v8"
	log "github.com/go-pkgz/lgr"
	"github.com/go-pkgz/rest"
	"github.com/go-pkgz/routegroup"
)

// Server is a webhook receiver with TLS termination. Updates are delivered as
// raw json payloads via the Updates channel, decoding is the consumer's job.
type Server struct {
	ListenAddr string
	CertFile   string
	KeyFile    string
	Secret     string // last path element, derived from the bot token
	Version    string
	QueueSize  int

	updates chan []byte
}

// NewServer makes a webhook server with a bounded updates queue.
func NewServer(listenAddr, certFile, keyFile, secret, version string, queueSize int) *Server {
	if queueSize <= 0 {
		queueSize = 100
	}
	return &Server{
		ListenAddr: listenAddr,
		CertFile:   certFile,
		KeyFile:    keyFile,
		Secret:     secret,
		Version:    version,
		QueueSize:  queueSize,
		updates:    make(chan []byte, queueSize),
	}
}

// Updates returns the channel with raw update payloads.
func (s *Server) Updates() <-chan []byte { return s.updates }

// Run starts the https listener and blocks until the context is canceled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.ListenAddr,
		Handler:           s.routes(ctx),
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      5 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		TLSConfig:         &tls.Config{MinVersion: tls.VersionTLS13},
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("[WARN] failed to shutdown webhook server: %v", err)
		} else {
			log.Printf("[INFO] webhook server stopped")
		}
	}()

	log.Printf("[INFO] start webhook server on %s", s.ListenAddr)
	if err := srv.ListenAndServeTLS(s.CertFile, s.KeyFile); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to run webhook server: %w", err)
	}
	return nil
}

func (s *Server) routes(ctx context.Context) http.Handler {
	router := routegroup.New(http.NewServeMux())
	router.Use(rest.RealIP)
	router.Use(rest.Recoverer(log.Default()))
	router.Use(rest.AppInfo("telebot", "telemod", s.Version), rest.Ping)
	router.Use(tollbooth.HTTPMiddleware(tollbooth.NewLimiter(50, nil)))
	router.Use(rest.SizeLimit(1024 * 1024)) // 1M max request size

	router.HandleFunc("POST /webhook/"+s.Secret, func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			log.Printf("[WARN] failed to read update body: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		select {
		case s.updates <- body:
			w.WriteHeader(http.StatusOK)
		case <-ctx.Done():
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	})

	return router
}
