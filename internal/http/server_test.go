package http

import (
	"bytes"
	"context"
	"crypto/tls"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testTimeout = 10 * time.Second
	tick        = 5 * time.Millisecond
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestServerPlain(t *testing.T) {
	var buf bytes.Buffer
	s, err := NewServer(
		Handle(okHandler()),
		RequestLogger(slog.New(slog.NewTextHandler(&buf, nil))),
	)
	require.NoError(t, err)
	assert.False(t, s.secure())

	rec := httptest.NewRecorder()
	s.h1.Handler.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/nodes", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Header().Get("Alt-Svc"))
	assert.Contains(t, buf.String(), "path=/api/v1/nodes")
}

func TestServerRedirectsToTLS(t *testing.T) {
	s, err := NewServer(
		Handle(okHandler()),
		Certificate(tls.Certificate{}),
		H2Address(":9443"),
		H3Address(":9443"),
	)
	require.NoError(t, err)
	assert.True(t, s.secure())

	rec := httptest.NewRecorder()
	s.h1.Handler.ServeHTTP(rec, httptest.NewRequest("GET", "http://example.com:8080/api/v1/nodes", nil))
	assert.Equal(t, http.StatusMovedPermanently, rec.Code)
	assert.Equal(t, "https://example.com:9443/api/v1/nodes", rec.Header().Get("Location"))
	assert.Equal(t, `h3=":9443"; ma=2592000`, rec.Header().Get("Alt-Svc"))

	rec = httptest.NewRecorder()
	s.h2.Handler.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestServerMissingCertificate(t *testing.T) {
	_, err := NewServer(CertificateFiles("does-not-exist.pem", "does-not-exist.key"))
	assert.Error(t, err)
}

func TestServerShutdown(t *testing.T) {
	s, err := NewServer(Handle(okHandler()), H1Address("127.0.0.1:0"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- s.ListenAndServe(ctx)
	}()
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(testTimeout):
		t.Fatal("server did not shut down")
	}
}
