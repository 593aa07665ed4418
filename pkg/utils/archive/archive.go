// Package archive builds source tarballs for the build pipeline.
package archive

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/tencentblueking/bkpaas-core/pkg/domain"
	xe "github.com/tencentblueking/bkpaas-core/pkg/errors"
)

// ResolveSourceDir validates a user-supplied sub-directory against the
// exported repository root. Leading slashes are trimmed first; the
// resolved path (after symlink evaluation) must stay inside root.
// Violations fail with domain.ErrInvalidSourceDirectory.
func ResolveSourceDir(root string, sourceDir string) (string, error) {
	if sourceDir == "" {
		return root, nil
	}
	trimmed := strings.TrimLeft(sourceDir, "/")

	rootAbs, err := filepath.EvalSymlinks(root)
	if err != nil {
		return "", xe.Wrap(err)
	}
	resolved, err := filepath.EvalSymlinks(filepath.Join(rootAbs, trimmed))
	if err != nil {
		if os.IsNotExist(err) {
			return "", xe.Wrap(fmt.Errorf(
				"%w: '%s' does not exist", domain.ErrInvalidSourceDirectory, sourceDir,
			))
		}
		return "", xe.Wrap(err)
	}
	rel, err := filepath.Rel(rootAbs, resolved)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", xe.Wrap(fmt.Errorf(
			"%w: '%s' resolves outside the repository", domain.ErrInvalidSourceDirectory, sourceDir,
		))
	}
	return resolved, nil
}

// TarGz compresses dir into a tar.gz at dest and returns the compressed
// size in bytes. Entry names are slash-separated relative paths; entries
// that would escape the archive root are never produced.
func TarGz(dir string, dest string) (int64, error) {
	out, err := os.Create(dest)
	if err != nil {
		return 0, xe.Wrap(err)
	}
	defer out.Close()

	gz := gzip.NewWriter(out)
	tw := tar.NewWriter(gz)

	err = filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}

		var link string
		if info.Mode()&os.ModeSymlink != 0 {
			if link, err = os.Readlink(path); err != nil {
				return err
			}
		}
		header, err := tar.FileInfoHeader(info, link)
		if err != nil {
			return err
		}
		header.Name = filepath.ToSlash(rel)
		if info.IsDir() {
			header.Name += "/"
		}
		if err := tw.WriteHeader(header); err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}

		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(tw, f)
		return err
	})
	if err != nil {
		return 0, xe.Wrap(err)
	}

	if err := tw.Close(); err != nil {
		return 0, xe.Wrap(err)
	}
	if err := gz.Close(); err != nil {
		return 0, xe.Wrap(err)
	}

	stat, err := out.Stat()
	if err != nil {
		return 0, xe.Wrap(err)
	}
	return stat.Size(), nil
}

// Untar extracts a gzipped tar stream into dir. Entries escaping dir
// are rejected.
func Untar(dir string, r io.Reader) error {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return xe.Wrap(err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return xe.Wrap(err)
		}

		rel := filepath.FromSlash(header.Name)
		if filepath.IsAbs(rel) || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || rel == ".." {
			return xe.Wrap(fmt.Errorf("tar entry '%s' escapes the destination", header.Name))
		}
		path := filepath.Join(dir, rel)

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(path, os.FileMode(header.Mode).Perm()); err != nil {
				return xe.Wrap(err)
			}
		case tar.TypeSymlink:
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return xe.Wrap(err)
			}
			if err := os.Symlink(header.Linkname, path); err != nil {
				return xe.Wrap(err)
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return xe.Wrap(err)
			}
			f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, os.FileMode(header.Mode).Perm())
			if err != nil {
				return xe.Wrap(err)
			}
			if _, err := io.Copy(f, tr); err != nil {
				f.Close()
				return xe.Wrap(err)
			}
			if err := f.Close(); err != nil {
				return xe.Wrap(err)
			}
		}
	}
}
