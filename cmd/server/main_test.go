package main

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/httplog/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exemplo/exemplo-api/internal/config"
	"github.com/exemplo/exemplo-api/internal/store"
)

func testRouter(t *testing.T) http.Handler {
	t.Helper()
	cfg := &config.Config{
		StoreDriver:        config.DriverMemory,
		CORSAllowedOrigins: []string{"http://localhost:3000"},
	}
	logger := httplog.NewLogger("exemplo-api-test", httplog.Options{LogLevel: slog.LevelError, Concise: true})
	return newRouter(cfg, store.NewMemoryStore(), logger)
}

func TestRouter(t *testing.T) {
	r := testRouter(t)

	t.Run("health", func(t *testing.T) {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	})

	t.Run("collections are mounted", func(t *testing.T) {
		for _, path := range []string{"/usuarios", "/posts", "/cargos"} {
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
			assert.Equal(t, http.StatusOK, rec.Code, path)
			assert.JSONEq(t, `[]`, rec.Body.String(), path)
		}
	})

	t.Run("user then post end to end", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/usuarios",
			strings.NewReader(`{"firstname":"Ana","lastname":"Silva","email":"ana@x.com"}`))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code)
		assert.Equal(t, "/usuarios/1", rec.Header().Get("Location"))

		req = httptest.NewRequest(http.MethodPost, "/posts",
			strings.NewReader(`{"title":"Hello","content":"...","author":{"id":1}}`))
		req.Header.Set("Content-Type", "application/json")
		rec = httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code)
		assert.Contains(t, rec.Body.String(), `"email":"ana@x.com"`)
	})

	t.Run("non-json body is rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/cargos", strings.NewReader(`name=Admin`))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
	})

	t.Run("cors preflight", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/usuarios", nil)
		req.Header.Set("Origin", "http://localhost:3000")
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
	})
}

func TestServe(t *testing.T) {
	discard := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("listener failure is returned", func(t *testing.T) {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		t.Cleanup(func() { ln.Close() })

		srv := &http.Server{Addr: ln.Addr().String(), Handler: http.NotFoundHandler()}
		err = serve(context.Background(), srv, time.Second, discard)
		assert.ErrorContains(t, err, "listen")
	})

	t.Run("cancel shuts down cleanly", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		srv := &http.Server{Addr: "127.0.0.1:0", Handler: http.NotFoundHandler()}

		done := make(chan error, 1)
		go func() { done <- serve(ctx, srv, time.Second, discard) }()
		cancel()

		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("serve did not return after cancel")
		}
	})
}
