package api

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// maxLoggedBody caps how much of a response body ends up in the log file.
// Mirror pages can be several hundred kilobytes of markup.
const maxLoggedBody = 64 * 1024

var (
	activeLoggingTransports []*LoggingTransport
	transportsMu            sync.Mutex
)

// LoggingTransport wraps an http.RoundTripper and appends every request and
// response it sees to a log file. It is used for mirror scraping and the
// liveness heartbeat when LogApiRequests is enabled.
type LoggingTransport struct {
	Transport http.RoundTripper
	logFile   *os.File
	writer    *bufio.Writer
	mu        sync.Mutex
}

// NewLoggingTransport opens logFilePath for appending and wraps transport.
func NewLoggingTransport(transport http.RoundTripper, logFilePath string) (*LoggingTransport, error) {
	cleanPath := filepath.Clean(logFilePath)
	// #nosec G304
	f, err := os.OpenFile(cleanPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open request log file %s: %w", cleanPath, err)
	}

	if transport == nil {
		transport = http.DefaultTransport
	}

	lt := &LoggingTransport{
		Transport: transport,
		logFile:   f,
		writer:    bufio.NewWriter(f),
	}

	transportsMu.Lock()
	activeLoggingTransports = append(activeLoggingTransports, lt)
	count := len(activeLoggingTransports)
	transportsMu.Unlock()
	log.Debugf("[LogTransport] Registered transport for file: %s. Total active: %d", cleanPath, count)

	return lt, nil
}

func loggableBody(contentType string) bool {
	return strings.HasPrefix(contentType, "application/json") || strings.HasPrefix(contentType, "text/")
}

// RoundTrip executes a single HTTP transaction, logging details.
func (t *LoggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	startTime := time.Now()

	reqDump, err := httputil.DumpRequestOut(req, req.Body != nil)
	if err != nil {
		log.WithError(err).Error("[LogTransport] Failed to dump request for logging")
	} else {
		t.mu.Lock()
		t.writeLog(fmt.Sprintf("--- Request (%s) ---\n%s", startTime.Format(time.RFC3339), string(reqDump)))
		t.mu.Unlock()
	}

	resp, err := t.Transport.RoundTrip(req)
	duration := time.Since(startTime)

	t.mu.Lock()
	defer t.mu.Unlock()

	switch {
	case err != nil:
		t.writeLog(fmt.Sprintf("--- Response Error (%s, Duration: %v) ---\n%s", time.Now().Format(time.RFC3339), duration, err.Error()))
	case loggableBody(resp.Header.Get("Content-Type")):
		bodyBytes, readErr := io.ReadAll(resp.Body)
		if closeErr := resp.Body.Close(); closeErr != nil {
			log.WithError(closeErr).Warn("[LogTransport] Failed to close original response body")
		}
		resp.Body = io.NopCloser(bytes.NewReader(bodyBytes))
		header, _ := httputil.DumpResponse(resp, false)
		if readErr != nil {
			log.WithError(readErr).Error("[LogTransport] Failed to read response body for logging")
			t.writeLog(fmt.Sprintf("--- Response Headers (%s, Duration: %v) ---\n%s(Body read failed)", time.Now().Format(time.RFC3339), duration, string(header)))
			break
		}
		logged := bodyBytes
		suffix := ""
		if len(logged) > maxLoggedBody {
			logged = logged[:maxLoggedBody]
			suffix = fmt.Sprintf("\n(... %d more bytes)", len(bodyBytes)-maxLoggedBody)
		}
		t.writeLog(fmt.Sprintf("--- Response (%s, Duration: %v) ---\n%s%s%s", time.Now().Format(time.RFC3339), duration, string(header), string(logged), suffix))
	default:
		header, _ := httputil.DumpResponse(resp, false)
		t.writeLog(fmt.Sprintf("--- Response Headers (%s, Duration: %v) ---\n%s(Body not logged)", time.Now().Format(time.RFC3339), duration, string(header)))
	}

	if errFlush := t.writer.Flush(); errFlush != nil {
		log.WithError(errFlush).Error("[LogTransport] Failed to flush log writer")
	}
	return resp, err
}

func (t *LoggingTransport) writeLog(entry string) {
	if _, err := t.writer.WriteString(entry + "\n\n"); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing to request log file: %v\n", err)
	}
}

// Close flushes and closes the underlying log file.
func (t *LoggingTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	errFlush := t.writer.Flush()
	errClose := t.logFile.Close()
	if errFlush != nil {
		return fmt.Errorf("failed to flush request log buffer: %w", errFlush)
	}
	return errClose
}

// CloseAllLoggingTransports closes every transport created by NewLoggingTransport.
func CloseAllLoggingTransports() {
	transportsMu.Lock()
	defer transportsMu.Unlock()

	for _, t := range activeLoggingTransports {
		if err := t.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Error closing logging transport for %s: %v\n", t.logFile.Name(), err)
		}
	}
	log.Debugf("[LogTransport] Closed %d logging transports.", len(activeLoggingTransports))
	activeLoggingTransports = nil
}

// DeregisterLoggingTransport removes a transport from the active list.
// Close must be called separately.
func DeregisterLoggingTransport(target *LoggingTransport) {
	transportsMu.Lock()
	defer transportsMu.Unlock()

	kept := activeLoggingTransports[:0]
	for _, t := range activeLoggingTransports {
		if t != target {
			kept = append(kept, t)
		}
	}
	activeLoggingTransports = kept
}

// NewHTTPClient returns a client with the given timeout on top of transport.
func NewHTTPClient(transport http.RoundTripper, timeout time.Duration) *http.Client {
	if transport == nil {
		transport = http.DefaultTransport
	}
	return &http.Client{Transport: transport, Timeout: timeout}
}
