// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package status

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/omariosc/autotuning-cuda/services/tuner/optimizer"
)

// ==== HELPERS ====

func newTestServer(t *testing.T, tr *Tracker) *httptest.Server {
	t.Helper()
	s, err := NewServer(Config{Addr: "127.0.0.1:0"}, tr)
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return srv
}

func getJSON(t *testing.T, url string, out interface{}) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decoding %s response: %v", url, err)
		}
	}
	return resp.StatusCode
}

// ==== SERVER TESTS ====

func TestNewServer_Validation(t *testing.T) {
	if _, err := NewServer(Config{Addr: ":0"}, nil); !errors.Is(err, ErrNilTracker) {
		t.Errorf("NewServer(nil tracker) error = %v, want ErrNilTracker", err)
	}
	tr := NewTracker(optimizer.Minimize, nil)
	if _, err := NewServer(Config{}, tr); !errors.Is(err, ErrMissingAddr) {
		t.Errorf("NewServer(no addr) error = %v, want ErrMissingAddr", err)
	}
}

func TestServer_Healthz(t *testing.T) {
	srv := newTestServer(t, NewTracker(optimizer.Minimize, nil))

	var body map[string]string
	if code := getJSON(t, srv.URL+"/healthz", &body); code != http.StatusOK {
		t.Fatalf("GET /healthz = %d, want 200", code)
	}
	if body["status"] != "ok" {
		t.Errorf("healthz body = %v, want status ok", body)
	}
}

func TestServer_StatusReflectsObserver(t *testing.T) {
	tr := NewTracker(optimizer.Maximize, nil)
	srv := newTestServer(t, tr)

	tr.SetTotal(6)
	tr.SetState("tuning")
	cfg := val("threads", "128")
	tr.EvaluationStarted(1, cfg)
	tr.EvaluationFinished(succeeded(1, cfg, 42.0))
	tr.EvaluationStarted(2, val("threads", "256"))

	var view View
	if code := getJSON(t, srv.URL+"/v1/tuner/status", &view); code != http.StatusOK {
		t.Fatalf("GET /v1/tuner/status = %d, want 200", code)
	}
	if view.State != "tuning" || view.Total != 6 || view.Done != 1 {
		t.Errorf("status = state %q total %d done %d, want tuning 6 1",
			view.State, view.Total, view.Done)
	}
	if view.Direction != "maximize" {
		t.Errorf("status direction = %q, want maximize", view.Direction)
	}
	if view.Best == nil || view.Best.Aggregate != 42.0 {
		t.Errorf("status best = %+v, want aggregate 42", view.Best)
	}
	if len(view.Active) != 1 || view.Active[0].ID != 2 {
		t.Errorf("status active = %+v, want test 2 in flight", view.Active)
	}
}

func TestServer_Results(t *testing.T) {
	tr := NewTracker(optimizer.Minimize, nil)
	srv := newTestServer(t, tr)

	tr.EvaluationFinished(succeeded(1, val("threads", "64"), 2.5))
	tr.EvaluationFinished(failed(2, val("threads", "999"), "compile failed"))

	var body struct {
		Count   int      `json:"count"`
		Records []Record `json:"records"`
	}
	if code := getJSON(t, srv.URL+"/v1/tuner/results", &body); code != http.StatusOK {
		t.Fatalf("GET /v1/tuner/results = %d, want 200", code)
	}
	if body.Count != 2 || len(body.Records) != 2 {
		t.Fatalf("results count = %d with %d records, want 2 and 2",
			body.Count, len(body.Records))
	}
	if !body.Records[0].Success || body.Records[1].Success {
		t.Errorf("records = %+v, want success then failure", body.Records)
	}
	if body.Records[0].Configuration["threads"] != "64" {
		t.Errorf("record 1 configuration = %v, want threads=64", body.Records[0].Configuration)
	}
}

func TestServer_MetricsDisabled(t *testing.T) {
	srv := newTestServer(t, NewTracker(optimizer.Minimize, nil))

	if code := getJSON(t, srv.URL+"/metrics", nil); code != http.StatusNotFound {
		t.Errorf("GET /metrics without an exporter = %d, want 404", code)
	}
}

func TestServer_Websocket(t *testing.T) {
	tr := NewTracker(optimizer.Minimize, nil)
	srv := newTestServer(t, tr)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/tuner/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dialing %s: %v", wsURL, err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	// The greeting arrives after the server has subscribed, so events
	// fired from here on are guaranteed to reach us.
	var greeting struct {
		Type   string `json:"type"`
		Status View   `json:"status"`
	}
	if err := conn.ReadJSON(&greeting); err != nil {
		t.Fatalf("reading greeting: %v", err)
	}
	if greeting.Type != "snapshot" || greeting.Status.State != "idle" {
		t.Fatalf("greeting = %+v, want idle snapshot", greeting)
	}

	tr.SetState("tuning")
	var ev Event
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("reading state event: %v", err)
	}
	if ev.Type != EventState || ev.State != "tuning" {
		t.Errorf("event = %+v, want state_changed tuning", ev)
	}

	cfg := val("threads", "128")
	tr.EvaluationFinished(succeeded(3, cfg, 1.5))
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("reading finished event: %v", err)
	}
	if ev.Type != EventFinished || ev.TestID != 3 || !ev.Success || ev.Aggregate != 1.5 {
		t.Errorf("event = %+v, want finished test 3 aggregate 1.5", ev)
	}
}

func TestServer_StartAndShutdown(t *testing.T) {
	tr := NewTracker(optimizer.Minimize, nil)
	s, err := NewServer(Config{Addr: "127.0.0.1:0", ShutdownTimeout: time.Second}, tr)
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if s.Addr() == "" || strings.HasSuffix(s.Addr(), ":0") {
		t.Fatalf("Addr() = %q, want a bound port", s.Addr())
	}

	url := "http://" + s.Addr() + "/healthz"
	if code := getJSON(t, url, nil); code != http.StatusOK {
		t.Fatalf("GET %s = %d, want 200", url, code)
	}

	cancel()
	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, err := http.Get(url); err != nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("server still serving after context cancellation")
		}
		time.Sleep(20 * time.Millisecond)
	}
}
