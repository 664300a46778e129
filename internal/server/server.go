// Package server is the loopback HTTP asset server. It serves file bytes from
// the current root and answers a liveness probe.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"capserve/internal/appstate"
)

// DefaultAddr binds an ephemeral port on the loopback interface.
const DefaultAddr = "127.0.0.1:0"

// Status is the lifecycle stage of a Server.
type Status int32

const (
	StatusUnbound Status = iota
	StatusBinding
	StatusServing
	StatusStopped
)

func (s Status) String() string {
	switch s {
	case StatusUnbound:
		return "unbound"
	case StatusBinding:
		return "binding"
	case StatusServing:
		return "serving"
	case StatusStopped:
		return "stopped"
	default:
		return fmt.Sprintf("status(%d)", int32(s))
	}
}

// Options configures a Server. Zero values fall back to defaults.
type Options struct {
	Addr              string
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
	Logger            *zerolog.Logger
}

// BindError reports a failure to bind the listening socket.
type BindError struct {
	Addr string
	Err  error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("bind %s: %v", e.Addr, e.Err)
}

func (e *BindError) Unwrap() error {
	return e.Err
}

// Server serves files under the root held by a RootState.
type Server struct {
	state   *appstate.RootState
	opts    Options
	log     zerolog.Logger
	status  atomic.Int32
	handler http.Handler
}

// New creates a server reading the root from state on every request.
func New(state *appstate.RootState, opts Options) *Server {
	if opts.Addr == "" {
		opts.Addr = DefaultAddr
	}
	if opts.ReadHeaderTimeout <= 0 {
		opts.ReadHeaderTimeout = 10 * time.Second
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 5 * time.Second
	}
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	s := &Server{
		state: state,
		opts:  opts,
		log:   logger.With().Str("component", "server").Logger(),
	}
	s.handler = s.routes()
	return s
}

// Handler returns the HTTP handler, for mounting or tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Status reports the lifecycle stage.
func (s *Server) Status() Status {
	return Status(s.status.Load())
}

func (s *Server) setStatus(st Status) {
	s.status.Store(int32(st))
}

// Listen binds addr (DefaultAddr when empty) and publishes the bound port
// to the RootState before returning. Non-loopback hosts are refused.
func (s *Server) Listen(addr string) (net.Listener, error) {
	if addr == "" {
		addr = s.opts.Addr
	}
	if err := CheckLoopback(addr); err != nil {
		return nil, &BindError{Addr: addr, Err: err}
	}
	s.setStatus(StatusBinding)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		s.setStatus(StatusUnbound)
		return nil, &BindError{Addr: addr, Err: err}
	}
	tcpAddr, ok := ln.Addr().(*net.TCPAddr)
	if !ok {
		_ = ln.Close()
		s.setStatus(StatusUnbound)
		return nil, &BindError{Addr: addr, Err: fmt.Errorf("unexpected listener address %T", ln.Addr())}
	}
	if err := s.state.SetPort(uint16(tcpAddr.Port)); err != nil {
		_ = ln.Close()
		s.setStatus(StatusUnbound)
		return nil, fmt.Errorf("publish port: %w", err)
	}
	s.log.Info().Str("addr", ln.Addr().String()).Int("port", tcpAddr.Port).Msg("asset server bound")
	return ln, nil
}

// Serve blocks while handling HTTP on listener. Cancel ctx to shut down;
// in-flight requests get ShutdownTimeout to drain.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: s.opts.ReadHeaderTimeout,
		IdleTimeout:       60 * time.Second,
	}
	s.setStatus(StatusServing)
	defer s.setStatus(StatusStopped)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(listener) }()
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		s.log.Info().Msg("asset server stopped")
		return err
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// ListenAndServe binds the configured address and serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := s.Listen(s.opts.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// CheckLoopback returns an error unless addr's host is a loopback IP or
// "localhost".
func CheckLoopback(addr string) error {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid listen address %q: %w", addr, err)
	}
	if strings.EqualFold(host, "localhost") {
		return nil
	}
	ip := net.ParseIP(host)
	if ip == nil || !ip.IsLoopback() {
		return fmt.Errorf("listen host %q is not a loopback address", host)
	}
	return nil
}
