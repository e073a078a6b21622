package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/localpay/localpay/internal/processing"
	"github.com/localpay/localpay/internal/recon"
	"github.com/localpay/localpay/internal/server/router"
	"github.com/localpay/localpay/internal/storage"
)

type Server struct {
	srv *http.Server
	log *slog.Logger
}

type Options struct {
	log        *slog.Logger
	serverAddr string
	secret     []byte
}

func NewServer(store storage.Storage, engine *processing.Engine, reconciler *recon.Reconciler, opts ...Option) *Server {
	sOpts := Options{
		log:        slog.New(slog.NewJSONHandler(os.Stdout, nil)),
		serverAddr: "0.0.0.0:8080",
		secret:     []byte(""),
	}

	for _, opt := range opts {
		opt(&sOpts)
	}

	r := router.NewRouter(store, engine, reconciler,
		router.WithLogger(sOpts.log),
		router.WithSecret(sOpts.secret),
	)

	srv := &http.Server{
		Addr:              sOpts.serverAddr,
		Handler:           r,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	return &Server{
		srv: srv,
		log: sOpts.log,
	}
}

type Option func(s *Options)

func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) {
		o.log = logger
	}
}

func WithServerAddr(addr string) Option {
	return func(o *Options) {
		o.serverAddr = addr
	}
}

func WithJWTSecretKey(secret []byte) Option {
	return func(o *Options) {
		o.secret = secret
	}
}

func (s *Server) Start() error {
	s.log.Info(fmt.Sprintf("Starting server on %s", s.srv.Addr))

	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server.ListenAndServe: %w", err)
	}

	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}

	return nil
}
