package helpers

import (
	"os"
	"path/filepath"
	"testing"
)

func TestBytesToSize(t *testing.T) {
	tests := []struct {
		name     string
		expected string
		bytes    uint64
	}{
		{
			name:     "zero bytes",
			bytes:    0,
			expected: "0B",
		},
		{
			name:     "one byte",
			bytes:    1,
			expected: "1.00B",
		},
		{
			name:     "kilobytes",
			bytes:    1024,
			expected: "1.00KB",
		},
		{
			name:     "megabytes",
			bytes:    1024 * 1024,
			expected: "1.00MB",
		},
		{
			name:     "fractional megabytes",
			bytes:    1536 * 1024,
			expected: "1.50MB",
		},
		{
			name:     "gigabytes",
			bytes:    1024 * 1024 * 1024,
			expected: "1.00GB",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BytesToSize(tt.bytes)
			if got != tt.expected {
				t.Errorf("BytesToSize(%d) = %q, want %q", tt.bytes, got, tt.expected)
			}
		})
	}
}

func TestSanitizePath(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "simple path",
			input:    "folder/file.mp4",
			expected: "folder/file.mp4",
		},
		{
			name:     "path traversal attempt",
			input:    "../../etc/passwd",
			expected: "etc/passwd",
		},
		{
			name:     "absolute path",
			input:    "/absolute/path/file.mp4",
			expected: "absolute/path/file.mp4",
		},
		{
			name:     "current directory",
			input:    "./file.mp4",
			expected: "file.mp4",
		},
		{
			name:     "complex traversal",
			input:    "a/b/../c/../d",
			expected: "a/d",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SanitizePath(tt.input)
			if got != filepath.FromSlash(tt.expected) {
				t.Errorf("SanitizePath(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestCheckAndMakeDir(t *testing.T) {
	tempDir := t.TempDir()

	tests := []struct {
		name     string
		dir      string
		expected bool
	}{
		{
			name:     "create new directory",
			dir:      filepath.Join(tempDir, "new_dir"),
			expected: true,
		},
		{
			name:     "create nested directory",
			dir:      filepath.Join(tempDir, "nested", "path", "here"),
			expected: true,
		},
		{
			name:     "existing directory",
			dir:      tempDir,
			expected: true,
		},
		{
			name:     "empty path",
			dir:      "",
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CheckAndMakeDir(tt.dir)
			if got != tt.expected {
				t.Errorf("CheckAndMakeDir(%q) = %v, want %v", tt.dir, got, tt.expected)
			}
			if tt.expected {
				if _, err := os.Stat(tt.dir); os.IsNotExist(err) {
					t.Errorf("Directory %q was not created", tt.dir)
				}
			}
		})
	}
}

func TestRemoveFileIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "video_abc_1.mp4")
	if err := os.WriteFile(path, []byte("data"), 0o644); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}

	removed, err := RemoveFile(path)
	if err != nil || !removed {
		t.Fatalf("first RemoveFile() = (%v, %v), want (true, nil)", removed, err)
	}

	removed, err = RemoveFile(path)
	if err != nil {
		t.Fatalf("second RemoveFile() returned error: %v", err)
	}
	if removed {
		t.Error("second RemoveFile() should report nothing removed")
	}

	if removed, err := RemoveFile(""); removed || err != nil {
		t.Errorf("RemoveFile(\"\") = (%v, %v), want (false, nil)", removed, err)
	}
}

func TestTruncateRunes(t *testing.T) {
	tests := []struct {
		name  string
		input string
		n     int
		want  string
	}{
		{name: "shorter than limit", input: "hello", n: 10, want: "hello"},
		{name: "exact limit", input: "hello", n: 5, want: "hello"},
		{name: "ascii truncated", input: "hello world", n: 5, want: "hello"},
		{name: "multibyte kept whole", input: "فيديو جميل", n: 5, want: "فيديو"},
		{name: "zero limit", input: "abc", n: 0, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TruncateRunes(tt.input, tt.n); got != tt.want {
				t.Errorf("TruncateRunes(%q, %d) = %q, want %q", tt.input, tt.n, got, tt.want)
			}
		})
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		seconds int
		want    string
	}{
		{0, "0:00"},
		{5, "0:05"},
		{120, "2:00"},
		{754, "12:34"},
		{-3, "0:00"},
	}

	for _, tt := range tests {
		if got := FormatDuration(tt.seconds); got != tt.want {
			t.Errorf("FormatDuration(%d) = %q, want %q", tt.seconds, got, tt.want)
		}
	}
}

func TestBytesToMB(t *testing.T) {
	if got := BytesToMB(30 * 1024 * 1024); got != 30 {
		t.Errorf("BytesToMB() = %v, want 30", got)
	}
}
