// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package server exposes the open door sequence over HTTP, for the QR reader
// kiosk.
package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"periph.io/x/opendoor/door"
)

// Opener runs the open door sequence once.
type Opener func(ctx context.Context) (door.Result, error)

// OpenRequest is the body of POST /api/door/open.
type OpenRequest struct {
	UserType   string `json:"userType"`
	UserName   string `json:"userName"`
	Authorized bool   `json:"authorized"`
}

// OpenResponse is the reply of POST /api/door/open.
type OpenResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	UserType  string `json:"userType,omitempty"`
	UserName  string `json:"userName,omitempty"`
	Entity    string `json:"entity,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

// Server is the HTTP front end.
type Server struct {
	open  Opener
	token string
	r     *mux.Router

	// mu serializes the door runs; the node accepts a limited number of
	// connections.
	mu sync.Mutex

	registry *prometheus.Registry
	requests *prometheus.CounterVec
	duration prometheus.Histogram
}

// New returns a server calling open on each authorized request.
//
// If token is not empty, requests to the API must carry it as a bearer
// token.
func New(open Opener, token string) *Server {
	s := &Server{
		open:     open,
		token:    token,
		r:        mux.NewRouter(),
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "opendoor_open_requests_total",
			Help: "Open door requests by result.",
		}, []string{"result"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "opendoor_open_duration_seconds",
			Help:    "Duration of the open door sequence.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	s.registry.MustRegister(s.requests, s.duration)
	s.r.HandleFunc("/api/door/open", s.handleOpen).Methods(http.MethodPost)
	s.r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	s.r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.r.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is canceled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is canceled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := http.Server{
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()
		ctx2, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx2)
	}()
	log.Printf("serving on http://%s", ln.Addr())
	err := srv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		<-done
		return nil
	}
	return err
}

func (s *Server) handleOpen(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		s.requests.WithLabelValues("unauthorized").Inc()
		reply(w, http.StatusUnauthorized, &OpenResponse{Message: "invalid token"})
		return
	}
	req := OpenRequest{}
	d := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096))
	if err := d.Decode(&req); err != nil {
		s.requests.WithLabelValues("bad_request").Inc()
		reply(w, http.StatusBadRequest, &OpenResponse{Message: "invalid request: " + err.Error()})
		return
	}
	log.Printf("open request from %s %q (authorized=%t)", req.UserType, req.UserName, req.Authorized)
	resp := OpenResponse{
		UserType:  req.UserType,
		UserName:  req.UserName,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if !req.Authorized {
		s.requests.WithLabelValues("forbidden").Inc()
		resp.Message = "door opening not authorized"
		reply(w, http.StatusForbidden, &resp)
		return
	}

	s.mu.Lock()
	start := time.Now()
	res, err := s.open(r.Context())
	s.duration.Observe(time.Since(start).Seconds())
	s.mu.Unlock()
	switch {
	case err != nil:
		log.Printf("open: %s", err)
		s.requests.WithLabelValues("error").Inc()
		resp.Message = "door system unavailable"
		reply(w, http.StatusInternalServerError, &resp)
	case !res.Found:
		s.requests.WithLabelValues("not_found").Inc()
		resp.Message = "door button not found"
		reply(w, http.StatusNotFound, &resp)
	default:
		s.requests.WithLabelValues("opened").Inc()
		resp.Success = true
		resp.Message = "door opened"
		resp.Entity = res.Entity.Name
		reply(w, http.StatusOK, &resp)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok\n"))
}

func (s *Server) authorized(r *http.Request) bool {
	if s.token == "" {
		return true
	}
	got := r.Header.Get("Authorization")
	want := "Bearer " + s.token
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

func reply(w http.ResponseWriter, status int, resp *OpenResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Printf("reply: %s", err)
	}
}
