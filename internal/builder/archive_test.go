package builder

import (
	"archive/tar"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/pgzip"
)

// writeTarGz builds a small gzipped tarball with a single top-level
// directory, mimicking the layout of the squashfs release archives.
func writeTarGz(t *testing.T, path string, entries map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	gz := pgzip.NewWriter(f)
	tw := tar.NewWriter(gz)

	dirs := map[string]bool{}
	for name := range entries {
		dir := filepath.Dir(name)
		for dir != "." && !dirs[dir] {
			dirs[dir] = true
			dir = filepath.Dir(dir)
		}
	}
	for dir := range dirs {
		if err := tw.WriteHeader(&tar.Header{
			Name:     dir + "/",
			Mode:     0o755,
			Typeflag: tar.TypeDir,
			ModTime:  time.Now(),
		}); err != nil {
			t.Fatal(err)
		}
	}
	for name, content := range entries {
		if err := tw.WriteHeader(&tar.Header{
			Name:     name,
			Mode:     0o644,
			Size:     int64(len(content)),
			Typeflag: tar.TypeReg,
			ModTime:  time.Now(),
		}); err != nil {
			t.Fatal(err)
		}
		if _, err := tw.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := gz.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestExtractArchiveStripsTopLevelDir(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "squashfs4.3.tar.gz")
	writeTarGz(t, archive, map[string]string{
		"squashfs4.3/README":                  "squashfs tools\n",
		"squashfs4.3/squashfs-tools/Makefile": "all: sasquatch\n",
	})

	dest := filepath.Join(dir, "out")
	if err := extractArchive(archive, dest); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filepath.Join(dest, "squashfs-tools", "Makefile"))
	if err != nil {
		t.Fatalf("stripped path missing: %v", err)
	}
	if string(data) != "all: sasquatch\n" {
		t.Errorf("Makefile content = %q", data)
	}

	if _, err := os.Stat(filepath.Join(dest, "squashfs4.3")); !os.IsNotExist(err) {
		t.Error("top-level directory was not stripped")
	}
}

func TestExtractArchiveRejectsUnknownFormat(t *testing.T) {
	dir := t.TempDir()
	bogus := filepath.Join(dir, "sources.rar")
	if err := os.WriteFile(bogus, []byte("not an archive"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := extractArchive(bogus, filepath.Join(dir, "out")); err == nil {
		t.Error("expected an error for an unsupported archive format")
	}
}

func TestArchiveHasSingleRootPathWithSpace(t *testing.T) {
	for _, tool := range []string{"sh", "tar"} {
		if _, err := exec.LookPath(tool); err != nil {
			t.Skipf("%s not on PATH", tool)
		}
	}

	dir := filepath.Join(t.TempDir(), "cache with spaces")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	archive := filepath.Join(dir, "squashfs4.3.tar.gz")
	writeTarGz(t, archive, map[string]string{
		"squashfs4.3/squashfs-tools/Makefile": "all:\n",
		"squashfs4.3/README":                  "readme\n",
	})

	single, err := archiveHasSingleRoot(archive)
	if err != nil {
		t.Fatalf("archiveHasSingleRoot: %v", err)
	}
	if !single {
		t.Error("single-root archive not detected when its path contains a space")
	}
}
