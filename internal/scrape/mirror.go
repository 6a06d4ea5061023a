// Package scrape implements the fallback used when the extractor cannot read
// an Instagram link directly: retry through a mirror host, then read the
// og:video tag from the mirror page.
package scrape

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go-video-bot/internal/extractor"
	"go-video-bot/internal/models"

	log "github.com/sirupsen/logrus"
	"golang.org/x/net/html"
)

const scrapeUserAgent = "Mozilla/5.0"

// maxPageBytes bounds how much of a mirror page is parsed.
const maxPageBytes = 2 << 20

var (
	ErrNoMirrorMedia = errors.New("mirror page has no video tag")
	ErrNotInstagram  = errors.New("url is not an instagram link")
	ErrMirrorStatus  = errors.New("mirror returned unexpected status")
)

// ResolveFunc asks the extractor for metadata of a URL.
type ResolveFunc func(ctx context.Context, url string) (*extractor.Info, error)

// InstagramMirror resolves Instagram links through an alternate host.
type InstagramMirror struct {
	Host   string
	Client *http.Client
}

func NewInstagramMirror(host string, client *http.Client, timeout time.Duration) *InstagramMirror {
	if client == nil {
		client = &http.Client{}
	}
	if timeout > 0 {
		c := *client
		c.Timeout = timeout
		client = &c
	}
	return &InstagramMirror{Host: host, Client: client}
}

// Applies reports whether the fallback handles links of platform p.
func (m *InstagramMirror) Applies(p models.Platform) bool {
	return p == models.PlatformInstagram
}

// MirrorURL swaps the Instagram host of rawURL for the mirror host.
func (m *InstagramMirror) MirrorURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	host := strings.ToLower(u.Hostname())
	if host != "instagram.com" && !strings.HasSuffix(host, ".instagram.com") {
		return "", fmt.Errorf("%w: %s", ErrNotInstagram, u.Host)
	}
	u.Host = m.Host
	return u.String(), nil
}

// Resolve tries the mirror URL through the extractor, then scrapes the
// mirror page for a direct media link and resolves that. It returns the
// metadata and the URL the transfer should use.
func (m *InstagramMirror) Resolve(ctx context.Context, rawURL string, resolve ResolveFunc) (*extractor.Info, string, error) {
	mirrorURL, err := m.MirrorURL(rawURL)
	if err != nil {
		return nil, "", err
	}

	info, err := resolve(ctx, mirrorURL)
	if err == nil {
		log.Debugf("[Mirror] Resolved %s through %s", rawURL, m.Host)
		return info, mirrorURL, nil
	}
	log.WithError(err).Debugf("[Mirror] Extractor could not read %s, scraping page", mirrorURL)

	mediaURL, scrapeErr := m.ScrapeVideoURL(ctx, mirrorURL)
	if scrapeErr != nil {
		return nil, "", fmt.Errorf("mirror fallback failed: %w (extractor: %v)", scrapeErr, err)
	}

	info, err = resolve(ctx, mediaURL)
	if err != nil {
		return nil, "", fmt.Errorf("mirror media could not be resolved: %w", err)
	}
	return info, mediaURL, nil
}

// ScrapeVideoURL fetches pageURL and returns the og:video meta content.
func (m *InstagramMirror) ScrapeVideoURL(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", scrapeUserAgent)

	resp, err := m.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching mirror page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: %s", ErrMirrorStatus, resp.Status)
	}
	return FindVideoMeta(io.LimitReader(resp.Body, maxPageBytes))
}

// FindVideoMeta scans an HTML document for the og:video content URL.
// og:video:secure_url and og:video:url are accepted when og:video is absent.
func FindVideoMeta(r io.Reader) (string, error) {
	found := map[string]string{}
	z := html.NewTokenizer(r)
	for {
		switch z.Next() {
		case html.ErrorToken:
			if err := z.Err(); err != nil && !errors.Is(err, io.EOF) {
				return "", err
			}
			for _, key := range []string{"og:video", "og:video:secure_url", "og:video:url"} {
				if v := found[key]; v != "" {
					return v, nil
				}
			}
			return "", ErrNoMirrorMedia
		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			if tok.Data != "meta" {
				continue
			}
			var property, content string
			for _, attr := range tok.Attr {
				switch strings.ToLower(attr.Key) {
				case "property", "name":
					property = strings.ToLower(attr.Val)
				case "content":
					content = attr.Val
				}
			}
			if strings.HasPrefix(property, "og:video") && content != "" {
				if _, seen := found[property]; !seen {
					found[property] = content
				}
			}
		}
	}
}
