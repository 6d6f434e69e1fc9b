package share

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"
)

const archiveCompressionLevel = 6

// packageIndex zips the data file and the images folder of dir into a new
// temp file and returns its path. The caller removes it.
func packageIndex(dir string, tempDir string) (string, error) {
	dataPath := filepath.Join(dir, DataFileName)
	if _, err := os.Stat(dataPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s not found in %s", ErrPackagingFailure, DataFileName, dir)
		}
		return "", fmt.Errorf("%w: %v", ErrPackagingFailure, err)
	}

	out, err := os.CreateTemp(tempDir, "gacq-index-*.zip")
	if err != nil {
		return "", fmt.Errorf("%w: create archive: %v", ErrPackagingFailure, err)
	}
	archivePath := out.Name()

	if err := writeArchive(out, dir); err != nil {
		_ = out.Close()
		_ = os.Remove(archivePath)
		return "", fmt.Errorf("%w: %v", ErrPackagingFailure, err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(archivePath)
		return "", fmt.Errorf("%w: close archive: %v", ErrPackagingFailure, err)
	}
	return archivePath, nil
}

func writeArchive(w io.Writer, dir string) error {
	zw := zip.NewWriter(w)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, archiveCompressionLevel)
	})

	if err := addFile(zw, filepath.Join(dir, DataFileName), DataFileName); err != nil {
		return err
	}

	imgs := filepath.Join(dir, ImagesDirName)
	if info, err := os.Stat(imgs); err == nil && info.IsDir() {
		err := filepath.WalkDir(imgs, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			rel, err := filepath.Rel(dir, p)
			if err != nil {
				return err
			}
			return addFile(zw, p, filepath.ToSlash(rel))
		})
		if err != nil {
			return fmt.Errorf("add images: %w", err)
		}
	}

	return zw.Close()
}

func addFile(zw *zip.Writer, src string, name string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	w, err := zw.CreateHeader(&zip.FileHeader{Name: path.Clean(name), Method: zip.Deflate})
	if err != nil {
		return fmt.Errorf("add %s: %w", name, err)
	}
	if _, err := io.Copy(w, in); err != nil {
		return fmt.Errorf("add %s: %w", name, err)
	}
	return nil
}
