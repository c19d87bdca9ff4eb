package station

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/zachfi/personalradio/pkg/fetch"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testCatalog(t *testing.T) *Catalog {
	t.Helper()
	str, err := LoadStrings("en")
	if err != nil {
		t.Fatalf("load strings: %v", err)
	}
	c, err := LoadCatalog(str)
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}
	return c
}

func testClient(t *testing.T, h http.Handler) (*fetch.Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return fetch.NewWithHTTPClient(srv.Client(), testLogger()), srv
}
