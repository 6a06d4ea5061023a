package helpers

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	log "github.com/sirupsen/logrus"
)

// BytesToSize converts a byte count to a human-readable string.
func BytesToSize(bytes uint64) string {
	if bytes == 0 {
		return "0B"
	}
	units := []string{"B", "KB", "MB", "GB", "TB", "PB"}
	exp := int(math.Floor(math.Log(float64(bytes)) / math.Log(1024)))
	if exp >= len(units) {
		exp = len(units) - 1
	}
	return fmt.Sprintf("%.2f%s", float64(bytes)/math.Pow(1024, float64(exp)), units[exp])
}

// BytesToMB converts a byte count to mebibytes.
func BytesToMB(bytes int64) float64 {
	return float64(bytes) / (1024 * 1024)
}

// SanitizePath cleans a path and strips any leading traversal or root so the
// result always stays relative to the working directory.
func SanitizePath(path string) string {
	cleaned := filepath.Clean("/" + filepath.ToSlash(path))
	cleaned = strings.TrimPrefix(cleaned, "/")
	if cleaned == "" {
		return "."
	}
	return filepath.FromSlash(cleaned)
}

// CheckAndMakeDir ensures dir exists, creating it (and parents) when missing.
func CheckAndMakeDir(dir string) bool {
	if dir == "" {
		return false
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.WithError(err).Errorf("Failed to create directory %s", dir)
		return false
	}
	return true
}

// RemoveFile deletes path. A file that is already gone is not an error,
// so callers can invoke it more than once for the same path.
func RemoveFile(path string) (bool, error) {
	if path == "" {
		return false, nil
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// TruncateRunes shortens s to at most n runes without splitting a character.
func TruncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}

// FormatDuration renders whole seconds as m:ss.
func FormatDuration(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}
