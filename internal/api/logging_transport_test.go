package api

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggingTransportRecordsHTMLBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(`<meta property="og:video" content="https://cdn.example.org/v.mp4">`))
	}))
	defer server.Close()

	logPath := filepath.Join(t.TempDir(), "api.log")
	lt, err := NewLoggingTransport(nil, logPath)
	require.NoError(t, err)
	defer DeregisterLoggingTransport(lt)

	client := NewHTTPClient(lt, 5*time.Second)
	resp, err := client.Get(server.URL + "/reel/abc")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Contains(t, string(body), "og:video", "body must still be readable by the caller")
	require.NoError(t, lt.Close())

	logged, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(logged), "GET /reel/abc")
	assert.Contains(t, string(logged), "cdn.example.org/v.mp4")
}

func TestLoggingTransportSkipsBinaryBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "video/mp4")
		w.Write([]byte("binary-payload"))
	}))
	defer server.Close()

	logPath := filepath.Join(t.TempDir(), "api.log")
	lt, err := NewLoggingTransport(nil, logPath)
	require.NoError(t, err)
	defer DeregisterLoggingTransport(lt)

	resp, err := NewHTTPClient(lt, 5*time.Second).Get(server.URL)
	require.NoError(t, err)
	resp.Body.Close()
	require.NoError(t, lt.Close())

	logged, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(logged), "(Body not logged)")
	assert.False(t, strings.Contains(string(logged), "binary-payload"))
}

func TestLoggingTransportRecordsErrors(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "api.log")
	lt, err := NewLoggingTransport(nil, logPath)
	require.NoError(t, err)
	defer DeregisterLoggingTransport(lt)

	// Nothing listens on this address once the server is closed.
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	_, err = NewHTTPClient(lt, time.Second).Get(url)
	require.Error(t, err)
	require.NoError(t, lt.Close())

	logged, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(logged), "--- Response Error")
}

func TestNewLoggingTransportBadPath(t *testing.T) {
	_, err := NewLoggingTransport(nil, filepath.Join(t.TempDir(), "missing", "dir", "api.log"))
	assert.Error(t, err)
}
