package probe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestCheckHealthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	res := NewHTTPProber().Check(context.Background(), srv.URL+"/health", time.Second)
	if res.Status != StatusHealthy {
		t.Fatalf("status = %s, detail = %s", res.Status, res.Detail)
	}
	if res.CheckedAt.IsZero() {
		t.Fatal("CheckedAt not set")
	}
}

func TestCheckUnhealthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "cuda out of memory", http.StatusInternalServerError)
	}))
	defer srv.Close()

	res := NewHTTPProber().Check(context.Background(), srv.URL+"/health", time.Second)
	if res.Status != StatusUnhealthy {
		t.Fatalf("status = %s", res.Status)
	}
	if !strings.Contains(res.Detail, "500") {
		t.Fatalf("detail should carry the HTTP status: %q", res.Detail)
	}
}

func TestCheckUnreachable(t *testing.T) {
	// Bind and immediately close to get a port with nothing listening.
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	res := NewHTTPProber().Check(context.Background(), url+"/health", time.Second)
	if res.Status != StatusProbeError {
		t.Fatalf("status = %s", res.Status)
	}
	if res.Detail == "" {
		t.Fatal("expected transport error detail")
	}
}

func TestCheckTimeout(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer func() {
		close(block)
		srv.Close()
	}()

	start := time.Now()
	res := NewHTTPProber().Check(context.Background(), srv.URL+"/health", 50*time.Millisecond)
	if res.Status != StatusProbeError {
		t.Fatalf("status = %s", res.Status)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("timeout not enforced, took %v", elapsed)
	}
}

func TestCheckRespectsParentCancel(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer func() {
		close(block)
		srv.Close()
	}()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	res := NewHTTPProber().Check(ctx, srv.URL+"/health", time.Minute)
	if res.Status != StatusProbeError {
		t.Fatalf("status = %s", res.Status)
	}
}
