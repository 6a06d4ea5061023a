// Package platform maps media URLs to the site that hosts them and derives
// the stable identifiers used for session keys and filenames.
package platform

import (
	"encoding/hex"
	"net/url"
	"regexp"
	"strings"

	"go-video-bot/internal/models"

	"github.com/zeebo/blake3"
)

// UnknownLabel is shown for links that match no known platform.
const UnknownLabel = "🌐 رابط خارجي"

type pattern struct {
	platform models.Platform
	label    string
	host     *regexp.Regexp
	loose    *regexp.Regexp
}

func newPattern(p models.Platform, label, domains string) pattern {
	return pattern{
		platform: p,
		label:    label,
		host:     regexp.MustCompile(`(?i)(^|\.)(` + domains + `)$`),
		loose:    regexp.MustCompile(`(?i)(^|//|\.)(` + domains + `)(:\d+)?([/?#]|$)`),
	}
}

// Order matters: the first matching pattern wins.
var patterns = []pattern{
	newPattern(models.PlatformYouTube, "📺 يوتيوب", `youtube\.com|youtu\.be`),
	newPattern(models.PlatformInstagram, "📸 انستغرام", `instagram\.com`),
	newPattern(models.PlatformTikTok, "🎵 تيك توك", `tiktok\.com`),
	newPattern(models.PlatformTwitter, "🐦 تويتر/X", `twitter\.com|x\.com`),
	newPattern(models.PlatformFacebook, "👥 فيسبوك", `facebook\.com|fb\.watch`),
}

var urlRegex = regexp.MustCompile(`https?://\S+`)

// Classify returns the platform and display label for rawURL. Domains are
// matched against the URL host, so a known domain in the path or a longer
// host name ending in the same letters does not count.
func Classify(rawURL string) (models.Platform, string) {
	host := ""
	if u, err := url.Parse(strings.TrimSpace(rawURL)); err == nil {
		host = u.Hostname()
	}
	for _, p := range patterns {
		if host != "" {
			if p.host.MatchString(host) {
				return p.platform, p.label
			}
			continue
		}
		// Unparseable or scheme-less input.
		if p.loose.MatchString(rawURL) {
			return p.platform, p.label
		}
	}
	return models.PlatformUnknown, UnknownLabel
}

// Label returns the display label of a platform.
func Label(p models.Platform) string {
	for _, candidate := range patterns {
		if candidate.platform == p {
			return candidate.label
		}
	}
	return UnknownLabel
}

// FindURLs returns every http(s) URL in text, in order of appearance.
func FindURLs(text string) []string {
	return urlRegex.FindAllString(text, -1)
}

// FirstURL returns the first URL found in text.
func FirstURL(text string) (string, bool) {
	found := urlRegex.FindString(text)
	return found, found != ""
}

func digestHex(s string) string {
	sum := blake3.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// RequestID is the 8 hex character key under which a pending URL is stored
// between the link message and the quality choice. Distinct URLs can
// collide; the session store keeps the latest one.
func RequestID(rawURL string) string {
	return digestHex(rawURL)[:8]
}

var (
	youtubeIDRegex   = regexp.MustCompile(`^[A-Za-z0-9_-]{6,}$`)
	instagramPathRe  = regexp.MustCompile(`^/(?:[^/]+/)?(?:reel|reels|p|tv)/([A-Za-z0-9_-]+)`)
	unsafeFileIDRune = regexp.MustCompile(`[^A-Za-z0-9_-]`)
)

// VideoID derives a filesystem-safe identifier for rawURL. Known URL shapes
// yield the site's own id; anything else falls back to a digest prefix.
func VideoID(rawURL string, p models.Platform) string {
	if id := siteID(rawURL, p); id != "" {
		return unsafeFileIDRune.ReplaceAllString(id, "_")
	}
	return digestHex(rawURL)[:10]
}

func siteID(rawURL string, p models.Platform) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	switch p {
	case models.PlatformYouTube:
		if v := u.Query().Get("v"); youtubeIDRegex.MatchString(v) {
			return v
		}
		segments := strings.Split(strings.Trim(u.Path, "/"), "/")
		if strings.Contains(strings.ToLower(u.Host), "youtu.be") && len(segments) > 0 && youtubeIDRegex.MatchString(segments[0]) {
			return segments[0]
		}
		if len(segments) >= 2 {
			switch segments[0] {
			case "shorts", "embed", "live", "v":
				if youtubeIDRegex.MatchString(segments[1]) {
					return segments[1]
				}
			}
		}
	case models.PlatformInstagram:
		if m := instagramPathRe.FindStringSubmatch(u.Path); m != nil {
			return m[1]
		}
	}
	return ""
}

// NewRequest builds a DownloadRequest for rawURL at the given tier.
func NewRequest(rawURL string, tier models.QualityTier) models.DownloadRequest {
	p, _ := Classify(rawURL)
	return models.DownloadRequest{
		URL:       rawURL,
		Platform:  p,
		Quality:   tier,
		RequestID: RequestID(rawURL),
	}
}
