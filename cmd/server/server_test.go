package main

import (
	"bufio"
	"context"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"triage-assistant/internal/vitals"
)

func TestShutdownClosesOpenStreams(t *testing.T) {
	m := vitals.NewMonitor(vitals.NewGenerator(vitals.MonitorProfile, 1), time.Hour)
	r := chi.NewRouter()
	vitals.RegisterRoutes(r, vitals.NewHandler(m))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	srv := newHTTPServer(ln.Addr().String(), r)
	go srv.Serve(ln)

	resp, err := http.Get("http://" + ln.Addr().String() + "/vitals/monitor/stream")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Fatalf("unexpected content type %q", ct)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	start := time.Now()
	if err := srv.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown did not finish with a stream open: %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("shutdown took %s", elapsed)
	}

	// The stream ends instead of hanging.
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
	}
}
