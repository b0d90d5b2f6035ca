// Portable archive packing/unpacking of a root directory (spec.md §4.F).
// Built on stdlib archive/zip; github.com/klauspost/compress/flate is
// registered as the deflate implementation so a "deflate" pack uses the
// teacher's own compression dependency rather than stdlib's slower one.
package zds

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/flate"
)

func init() {
	zip.RegisterCompressor(zip.Deflate, func(w io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(w, flate.DefaultCompression)
	})
	zip.RegisterDecompressor(zip.Deflate, func(r io.Reader) io.ReadCloser {
		return flate.NewReader(r)
	})
}

// PackMethod selects the archive's per-file compression.
type PackMethod uint16

const (
	// PackStore keeps entries uncompressed, so the packed form stays
	// randomly readable with any standard zip tool (spec.md §4.F default).
	PackStore PackMethod = PackMethod(zip.Store)
	// PackDeflate compresses entries with klauspost/compress's deflate.
	PackDeflate PackMethod = PackMethod(zip.Deflate)
)

// Pack walks sourceDir and writes every regular file into a zip archive at
// archivePath whose internal layout mirrors sourceDir exactly, entry paths
// using forward slashes regardless of host OS.
func Pack(sourceDir, archivePath string, method PackMethod) error {
	sourceDir = filepath.Clean(sourceDir)

	out, err := os.Create(archivePath)
	if err != nil {
		return fmt.Errorf("zds: pack: create %s: %w", archivePath, err)
	}
	defer out.Close()

	zw := zip.NewWriter(out)

	walkErr := filepath.Walk(sourceDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(sourceDir, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		hdr := &zip.FileHeader{
			Name:   rel,
			Method: uint16(method),
		}
		hdr.SetMode(info.Mode())
		hdr.Modified = info.ModTime()

		w, err := zw.CreateHeader(hdr)
		if err != nil {
			return err
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(w, f)
		return err
	})
	if walkErr != nil {
		zw.Close()
		return fmt.Errorf("zds: pack: %w", walkErr)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("zds: pack: finalize archive: %w", err)
	}
	return nil
}

// Unpack extracts every entry of the archive at archivePath into destDir,
// preserving relative paths. Refuses to overwrite an existing, non-empty
// destDir unless allowOverwrite is set (spec.md §4.F).
func Unpack(archivePath, destDir string, allowOverwrite bool) error {
	if !allowOverwrite {
		entries, err := os.ReadDir(destDir)
		if err == nil && len(entries) > 0 {
			return fmt.Errorf("%w: destination %s is not empty", ErrInvalidPath, destDir)
		}
	}

	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("%w: open archive %s: %v", ErrCorruptArchive, archivePath, err)
	}
	defer zr.Close()

	for _, f := range zr.File {
		if err := extractEntry(f, destDir); err != nil {
			return fmt.Errorf("%w: entry %s: %v", ErrCorruptArchive, f.Name, err)
		}
	}
	return nil
}

func extractEntry(f *zip.File, destDir string) error {
	// Reject absolute paths and ".." segments so a crafted archive can
	// never write outside destDir.
	clean := filepath.Clean(f.Name)
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return fmt.Errorf("unsafe entry path %q", f.Name)
	}
	target := filepath.Join(destDir, clean)

	if strings.HasSuffix(f.Name, "/") {
		return os.MkdirAll(target, 0755)
	}

	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return err
	}

	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	mode := f.Mode()
	if mode == 0 {
		mode = 0644
	}
	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, rc)
	return err
}
