// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/opendoor/api"
	"periph.io/x/opendoor/door"
)

func opener(res door.Result, err error, calls *int) Opener {
	return func(ctx context.Context) (door.Result, error) {
		*calls++
		return res, err
	}
}

func post(t *testing.T, s *Server, body, token string) (*httptest.ResponseRecorder, OpenResponse) {
	req := httptest.NewRequest(http.MethodPost, "/api/door/open", strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	resp := OpenResponse{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return w, resp
}

func TestOpen(t *testing.T) {
	calls := 0
	s := New(opener(door.Result{Found: true, Entity: api.EntityInfo{Name: "Abrir"}}, nil, &calls), "")
	w, resp := post(t, s, `{"userType":"AYUDANTE","userName":"Ana","authorized":true}`, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, resp.Success)
	assert.Equal(t, "Abrir", resp.Entity)
	assert.Equal(t, "Ana", resp.UserName)
	assert.NotEmpty(t, resp.Timestamp)
	assert.Equal(t, 1, calls)
}

func TestOpen_Forbidden(t *testing.T) {
	calls := 0
	s := New(opener(door.Result{Found: true}, nil, &calls), "")
	w, resp := post(t, s, `{"userType":"ESTUDIANTE","userName":"Bob"}`, "")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.False(t, resp.Success)
	assert.Equal(t, 0, calls)
}

func TestOpen_NotFound(t *testing.T) {
	calls := 0
	s := New(opener(door.Result{}, nil, &calls), "")
	w, resp := post(t, s, `{"authorized":true}`, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.False(t, resp.Success)
	assert.Equal(t, 1, calls)
}

func TestOpen_Error(t *testing.T) {
	calls := 0
	s := New(opener(door.Result{}, errors.New("connection refused"), &calls), "")
	w, resp := post(t, s, `{"authorized":true}`, "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.False(t, resp.Success)
	// Internal details are not leaked.
	assert.NotContains(t, resp.Message, "refused")
}

func TestOpen_BadRequest(t *testing.T) {
	calls := 0
	s := New(opener(door.Result{Found: true}, nil, &calls), "")
	w, _ := post(t, s, `{"authorized":`, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 0, calls)
}

func TestOpen_Token(t *testing.T) {
	calls := 0
	s := New(opener(door.Result{Found: true}, nil, &calls), "secret")
	w, _ := post(t, s, `{"authorized":true}`, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w, _ = post(t, s, `{"authorized":true}`, "wrong")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w, _ = post(t, s, `{"authorized":true}`, "secret")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, calls)
}

func TestMethodNotAllowed(t *testing.T) {
	calls := 0
	s := New(opener(door.Result{Found: true}, nil, &calls), "")
	w := httptest.NewRecorder()
	s.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/door/open", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	assert.Equal(t, 0, calls)
}

func TestMetrics(t *testing.T) {
	calls := 0
	s := New(opener(door.Result{Found: true}, nil, &calls), "")
	post(t, s, `{"authorized":true}`, "")
	post(t, s, `{"authorized":false}`, "")

	w := httptest.NewRecorder()
	s.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `opendoor_open_requests_total{result="opened"} 1`)
	assert.Contains(t, body, `opendoor_open_requests_total{result="forbidden"} 1`)
	assert.Contains(t, body, "opendoor_open_duration_seconds_count 1")
}

func TestServe(t *testing.T) {
	calls := 0
	s := New(opener(door.Result{Found: true}, nil, &calls), "")
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() {
		done <- s.Serve(ctx, ln)
	}()
	resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
	require.NoError(t, err)
	b, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, "ok\n", string(b))
	cancel()
	assert.NoError(t, <-done)
}
