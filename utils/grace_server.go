package utils

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"
)

const (
	DefaultReadTimeout  = 60 * time.Second
	DefaultWriteTimeout = DefaultReadTimeout
	DefaultDrainTimeout = 30 * time.Second
)

// Server drains in-flight requests once its context ends, then runs the shutdown hooks in
// registration order. Restarts are left to the process supervisor: a forked successor would
// start a second scheduler next to the draining one.
type Server struct {
	http       *http.Server
	drain      time.Duration
	onShutdown []func()
}

// NewServer creates a Server with the default timeouts.
func NewServer(addr string, handler http.Handler) *Server {
	return &Server{
		http: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadTimeout:       DefaultReadTimeout,
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      DefaultWriteTimeout,
		},
		drain: DefaultDrainTimeout,
	}
}

// OnShutdown registers fn to run after the HTTP server drained, e.g. stopping the job scheduler.
func (s *Server) OnShutdown(fn func()) {
	s.onShutdown = append(s.onShutdown, fn)
}

// Serve accepts on ln until ctx is done or the listener fails.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	errc := make(chan error, 1)
	go func() { errc <- s.http.Serve(ln) }()

	var err error
	select {
	case err = <-errc:
	case <-ctx.Done():
		if Sugar != nil {
			Sugar.Infof("shutting down %s", ln.Addr())
		}
		drainCtx, cancel := context.WithTimeout(context.Background(), s.drain)
		err = s.http.Shutdown(drainCtx)
		cancel()
		<-errc
	}
	for _, fn := range s.onShutdown {
		fn()
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// GraceServer serves plain HTTP until SIGINT or SIGTERM. Hooks run once the server stopped.
func GraceServer(addr string, handler http.Handler, onShutdown ...func()) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return serveUntilSignal(NewServer(addr, handler), ln, onShutdown)
}

// GraceServerTLS is GraceServer over TLS.
func GraceServerTLS(addr, certFile, keyFile string, handler http.Handler, onShutdown ...func()) error {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return fmt.Errorf("load key pair: %w", err)
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	tlsLn := tls.NewListener(ln, &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
		NextProtos:   []string{"http/1.1"},
	})
	return serveUntilSignal(NewServer(addr, handler), tlsLn, onShutdown)
}

func serveUntilSignal(srv *Server, ln net.Listener, hooks []func()) error {
	for _, fn := range hooks {
		srv.OnShutdown(fn)
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return srv.Serve(ctx, ln)
}
