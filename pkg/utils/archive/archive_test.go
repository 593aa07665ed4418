package archive_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/tencentblueking/bkpaas-core/pkg/domain"
	"github.com/tencentblueking/bkpaas-core/pkg/utils/archive"
)

func TestResolveSourceDir(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "services", "backend"), 0o755); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// resolved results are symlink-evaluated; normalize the expectation.
	evalRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	t.Run("empty means the root itself", func(t *testing.T) {
		got, err := archive.ResolveSourceDir(root, "")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != root {
			t.Errorf("unexpected result: %s", got)
		}
	})

	t.Run("a nested dir resolves inside the root", func(t *testing.T) {
		got, err := archive.ResolveSourceDir(root, "services/backend")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != filepath.Join(evalRoot, "services", "backend") {
			t.Errorf("unexpected result: %s", got)
		}
	})

	t.Run("a leading slash is tolerated", func(t *testing.T) {
		got, err := archive.ResolveSourceDir(root, "/services/backend")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != filepath.Join(evalRoot, "services", "backend") {
			t.Errorf("unexpected result: %s", got)
		}
	})

	t.Run("escaping the root is rejected", func(t *testing.T) {
		_, err := archive.ResolveSourceDir(root, "../outside")
		if !errors.Is(err, domain.ErrInvalidSourceDirectory) {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("a symlink pointing outside is rejected", func(t *testing.T) {
		outside := t.TempDir()
		if err := os.Symlink(outside, filepath.Join(root, "sneaky")); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		_, err := archive.ResolveSourceDir(root, "sneaky")
		if !errors.Is(err, domain.ErrInvalidSourceDirectory) {
			t.Errorf("unexpected error: %v", err)
		}
	})
}

func TestTarGzUntar(t *testing.T) {
	src := t.TempDir()
	if err := os.MkdirAll(filepath.Join(src, "app"), 0o755); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	files := map[string]string{
		"Procfile":    "web: gunicorn app:wsgi",
		"app/main.py": "print('hello')",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(src, name), []byte(content), 0o644); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	dest := filepath.Join(t.TempDir(), "source.tar.gz")
	size, err := archive.TarGz(src, dest)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if size <= 0 {
		t.Errorf("unexpected size: %d", size)
	}
	if stat, err := os.Stat(dest); err != nil || stat.Size() != size {
		t.Errorf("reported size %d does not match the archive (%v)", size, err)
	}

	out := t.TempDir()
	raw, err := os.Open(dest)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer raw.Close()
	if err := archive.Untar(out, raw); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for name, want := range files {
		got, err := os.ReadFile(filepath.Join(out, name))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if string(got) != want {
			t.Errorf("unexpected content of %s: %s", name, got)
		}
	}
}
