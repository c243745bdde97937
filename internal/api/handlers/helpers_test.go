package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/anstrom/labscan/internal/api/middleware"
	"github.com/anstrom/labscan/internal/logging"
	"github.com/anstrom/labscan/internal/scanning"
)

func testLogger() *logging.Logger {
	return logging.NewWithWriter(logging.DefaultConfig(), io.Discard)
}

// withRequestID runs the request through the request ID middleware.
func withRequestID(h http.HandlerFunc) http.Handler {
	return middleware.RequestID()(h)
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

// fakeScanner returns a canned result or error.
type fakeScanner struct {
	target string
	result *scanning.ScanResult
	err    error
	calls  int
}

func (f *fakeScanner) Scan(context.Context) (*scanning.ScanResult, error) {
	f.calls++
	return f.result, f.err
}

func (f *fakeScanner) Target() string {
	return f.target
}
