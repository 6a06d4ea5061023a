// Package extractor drives the external yt-dlp executable.
package extractor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

// DefaultUserAgent is sent to hosting sites on every extractor request.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

var (
	ErrExtractorFailed = errors.New("extractor failed")
	ErrBadMetadata     = errors.New("extractor returned unreadable metadata")
)

// Info is the subset of extractor metadata the bot uses.
type Info struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Uploader   string  `json:"uploader"`
	Extractor  string  `json:"extractor"`
	WebpageURL string  `json:"webpage_url"`
	Duration   float64 `json:"duration"`
}

// Options configures a single extractor invocation.
type Options struct {
	Format          string
	OutputTemplate  string
	UserAgent       string
	SocketTimeout   time.Duration
	Retries         int
	FragmentRetries int
}

// Extractor resolves metadata and transfers media for a URL.
type Extractor interface {
	Resolve(ctx context.Context, url string, opts Options) (*Info, error)
	Transfer(ctx context.Context, url string, opts Options) error
}

// YtDlp runs the yt-dlp binary.
type YtDlp struct {
	BinaryPath string
}

func NewYtDlp(binaryPath string) *YtDlp {
	if binaryPath == "" {
		binaryPath = "yt-dlp"
	}
	return &YtDlp{BinaryPath: binaryPath}
}

// commonArgs are shared by metadata and transfer runs.
func commonArgs(opts Options) []string {
	args := []string{
		"--no-playlist",
		"--geo-bypass",
		"--no-check-certificates",
		"--no-warnings",
		"--restrict-filenames",
	}
	if opts.SocketTimeout > 0 {
		args = append(args, "--socket-timeout", strconv.Itoa(int(opts.SocketTimeout.Seconds())))
	}
	if opts.Retries > 0 {
		args = append(args, "--retries", strconv.Itoa(opts.Retries))
	}
	if opts.FragmentRetries > 0 {
		args = append(args, "--fragment-retries", strconv.Itoa(opts.FragmentRetries))
	}
	ua := opts.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}
	args = append(args,
		"--user-agent", ua,
		"--add-header", "Accept-Language:en-US,en;q=0.9",
	)
	return args
}

// ResolveArgs builds the argument list for a metadata-only run.
func ResolveArgs(url string, opts Options) []string {
	args := append([]string{"--dump-single-json", "--skip-download"}, commonArgs(opts)...)
	if opts.Format != "" {
		args = append(args, "--format", opts.Format)
	}
	return append(args, "--", url)
}

// TransferArgs builds the argument list for the actual download.
func TransferArgs(url string, opts Options) []string {
	args := append([]string{"--quiet", "--continue", "--no-mtime", "--merge-output-format", "mp4"}, commonArgs(opts)...)
	if opts.Format != "" {
		args = append(args, "--format", opts.Format)
	}
	if opts.OutputTemplate != "" {
		args = append(args, "--output", opts.OutputTemplate)
	}
	return append(args, "--", url)
}

// Resolve fetches metadata without downloading media.
func (y *YtDlp) Resolve(ctx context.Context, url string, opts Options) (*Info, error) {
	stdout, err := y.run(ctx, ResolveArgs(url, opts))
	if err != nil {
		return nil, err
	}
	return ParseInfo(stdout)
}

// Transfer downloads media to opts.OutputTemplate.
func (y *YtDlp) Transfer(ctx context.Context, url string, opts Options) error {
	_, err := y.run(ctx, TransferArgs(url, opts))
	return err
}

func (y *YtDlp) run(ctx context.Context, args []string) ([]byte, error) {
	// #nosec G204
	cmd := exec.CommandContext(ctx, y.BinaryPath, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	log.Debugf("[Extractor] Running %s %s", y.BinaryPath, strings.Join(args, " "))
	err := cmd.Run()
	log.Debugf("[Extractor] %s finished in %v", y.BinaryPath, time.Since(start))
	if err != nil {
		msg := lastErrorLine(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return nil, fmt.Errorf("%w: %s", ErrExtractorFailed, msg)
	}
	return stdout.Bytes(), nil
}

// lastErrorLine picks the most useful line of yt-dlp's stderr.
func lastErrorLine(stderr string) string {
	lines := strings.Split(strings.TrimSpace(stderr), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if strings.HasPrefix(line, "ERROR:") {
			return strings.TrimSpace(strings.TrimPrefix(line, "ERROR:"))
		}
	}
	return strings.TrimSpace(lines[len(lines)-1])
}

// ParseInfo decodes the JSON document printed by --dump-single-json.
func ParseInfo(data []byte) (*Info, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty output", ErrBadMetadata)
	}
	var info Info
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadMetadata, err)
	}
	return &info, nil
}
