package storage

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go-video-bot/internal/helpers"

	"github.com/google/renameio/v2"
	log "github.com/sirupsen/logrus"
)

// ErrNothingToExport is returned when the download directory holds no files.
var ErrNothingToExport = errors.New("no files to export")

// WriteArchive zips every regular file directly under dir into w and
// returns how many files were added.
func WriteArchive(dir string, w io.Writer) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, ErrNothingToExport
		}
		return 0, fmt.Errorf("failed to read %s: %w", dir, err)
	}

	zw := zip.NewWriter(w)
	added := 0
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		if err := addFile(zw, filepath.Join(dir, entry.Name()), entry.Name()); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			zw.Close()
			return added, err
		}
		added++
	}
	if err := zw.Close(); err != nil {
		return added, fmt.Errorf("failed to finish archive: %w", err)
	}
	if added == 0 {
		return 0, ErrNothingToExport
	}
	return added, nil
}

func addFile(zw *zip.Writer, path, name string) error {
	// #nosec G304
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return fmt.Errorf("failed to build zip header for %s: %w", name, err)
	}
	header.Name = filepath.ToSlash(helpers.SanitizePath(name))
	header.Method = zip.Deflate

	dst, err := zw.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("failed to add %s to archive: %w", name, err)
	}
	if _, err := io.Copy(dst, f); err != nil {
		return fmt.Errorf("failed to copy %s into archive: %w", name, err)
	}
	return nil
}

// ExportArchive writes a zip of dir to dest, replacing dest atomically.
// Nothing is left at dest when the directory is empty or the write fails.
func ExportArchive(dir, dest string) (int, error) {
	if !helpers.CheckAndMakeDir(filepath.Dir(dest)) {
		return 0, fmt.Errorf("failed to create directory for %s", dest)
	}
	pending, err := renameio.NewPendingFile(dest, renameio.WithPermissions(0o600))
	if err != nil {
		return 0, fmt.Errorf("failed to create pending archive: %w", err)
	}
	defer func() { _ = pending.Cleanup() }()

	added, err := WriteArchive(dir, pending)
	if err != nil {
		return added, err
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return added, fmt.Errorf("failed to commit archive %s: %w", dest, err)
	}
	log.Infof("[Storage] Exported %d file(s) from %s to %s", added, dir, dest)
	return added, nil
}
