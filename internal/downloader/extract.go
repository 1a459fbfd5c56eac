package downloader

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// TabularExt is the extension of extracted event files, matched case-insensitively.
const TabularExt = ".csv"

// IsTabular reports whether name has the extracted-file extension.
func IsTabular(name string) bool {
	return strings.EqualFold(filepath.Ext(name), TabularExt)
}

// Satisfied reports whether destDir already holds an extracted file for
// period p: a name starting with p and ending in .csv. A missing directory
// satisfies nothing.
func Satisfied(destDir, p string) (string, bool) {
	entries, err := os.ReadDir(destDir)
	if err != nil {
		return "", false
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasPrefix(e.Name(), p) && IsTabular(e.Name()) {
			return e.Name(), true
		}
	}
	return "", false
}

// ListTabular returns the extracted files in dir sorted by name.
func ListTabular(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() && IsTabular(e.Name()) {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}

// Extract writes every file in the archive at archivePath into destDir and
// removes the archive. Entries are flattened to their base names. If the
// archive is unreadable the error wraps ErrCorruptArchive, the archive is
// kept and anything extracted from it is removed again.
func Extract(archivePath, destDir string) ([]string, error) {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		if isZipFormatError(err) {
			return nil, fmt.Errorf("%w: %s: %v", ErrCorruptArchive, filepath.Base(archivePath), err)
		}
		return nil, fmt.Errorf("open archive %s: %w", archivePath, err)
	}

	var extracted []string
	cleanup := func() {
		for _, p := range extracted {
			os.Remove(p)
		}
	}

	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		name := filepath.Base(f.Name)
		if name == "." || name == string(filepath.Separator) {
			continue
		}
		outPath := filepath.Join(destDir, name)
		if err := extractOne(f, outPath); err != nil {
			zr.Close()
			cleanup()
			if isZipFormatError(err) {
				return nil, fmt.Errorf("%w: %s: %v", ErrCorruptArchive, filepath.Base(archivePath), err)
			}
			return nil, err
		}
		extracted = append(extracted, outPath)
	}

	if err := zr.Close(); err != nil {
		return extracted, fmt.Errorf("close archive %s: %w", archivePath, err)
	}
	if err := os.Remove(archivePath); err != nil {
		return extracted, fmt.Errorf("remove archive %s: %w", archivePath, err)
	}
	return extracted, nil
}

func extractOne(f *zip.File, outPath string) error {
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("open entry %s: %w", f.Name, err)
	}
	out, err := os.Create(outPath)
	if err != nil {
		rc.Close()
		return fmt.Errorf("create file %s: %w", outPath, err)
	}

	_, copyErr := io.Copy(out, rc)
	// Close explicitly so a failed copy can remove the file.
	closeOutErr := out.Close()
	closeRcErr := rc.Close()
	if err := errors.Join(copyErr, closeOutErr, closeRcErr); err != nil {
		os.Remove(outPath)
		return fmt.Errorf("extract %s: %w", f.Name, err)
	}
	return nil
}

func isZipFormatError(err error) bool {
	return errors.Is(err, zip.ErrFormat) ||
		errors.Is(err, zip.ErrChecksum) ||
		errors.Is(err, zip.ErrAlgorithm) ||
		errors.Is(err, io.ErrUnexpectedEOF)
}
