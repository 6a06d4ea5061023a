package paths

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// DefaultPattern names downloads after the video and the moment the
// request started, so concurrent requests for one video never share a file.
const DefaultPattern = "video_{videoId}_{timestamp}"

// Define allowed tags using a map for easy lookup
var allowedTags = map[string]struct{}{
	"videoId":   {},
	"timestamp": {},
	"platform":  {},
	"quality":   {},
	"requestId": {},
}

// Regex to find tags like {tagName}
var tagRegex = regexp.MustCompile(`\{([^}]+)\}`)

var (
	slugUnsafe = regexp.MustCompile(`[^A-Za-z0-9._-]+`)
	dotRuns    = regexp.MustCompile(`\.{2,}`)
)

// slug keeps s to characters that are safe in file names on every platform
// the extractor runs on. Case is preserved since video ids are case-sensitive.
func slug(s string) string {
	s = strings.TrimSpace(s)
	s = slugUnsafe.ReplaceAllString(s, "_")
	s = dotRuns.ReplaceAllString(s, ".")
	return strings.Trim(s, "_.")
}

// GeneratePath substitutes placeholders in a pattern string with sanitized values from the data map.
// It returns the generated file stem or an error if substitution fails.
func GeneratePath(pattern string, data map[string]string) (string, error) {
	generated := pattern

	for _, match := range tagRegex.FindAllStringSubmatch(pattern, -1) {
		tagName := match[1]
		tagWithBraces := match[0]

		if _, allowed := allowedTags[tagName]; !allowed {
			return "", fmt.Errorf("unknown tag found in filename pattern: %s", tagWithBraces)
		}

		value := slug(data[tagName])
		if value == "" {
			value = "empty_" + tagName
		}
		generated = strings.ReplaceAll(generated, tagWithBraces, value)
	}

	cleaned := filepath.Clean(generated)
	if cleaned == "." || cleaned == "" {
		return "", fmt.Errorf("filename pattern resulted in an empty name: '%s'", pattern)
	}
	// Output lands directly in the download directory.
	if strings.ContainsAny(cleaned, `/\`) || strings.Contains(cleaned, "..") {
		return "", fmt.Errorf("filename pattern must produce a single file name, got '%s'", cleaned)
	}

	return cleaned, nil
}
