package builder

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func TestHashString(t *testing.T) {
	a := hashString(squashfsURL)
	b := hashString(squashfsURL)
	if a != b {
		t.Errorf("hash not deterministic: %q vs %q", a, b)
	}
	if len(a) != 64 {
		t.Errorf("hash length = %d, want 64 hex chars", len(a))
	}
	if a == hashString(repoURL) {
		t.Error("distinct URLs produced the same cache key")
	}
}

func TestFetchArchiveCachesDownloads(t *testing.T) {
	saveGlobals(t)
	cacheDir = t.TempDir()

	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Write([]byte("archive bytes"))
	}))
	defer srv.Close()

	// Force the native HTTP fallback so the test doesn't depend on curl/wget
	// behavior against a local server.
	t.Setenv("PATH", t.TempDir())

	url := srv.URL + "/squashfs4.3.tar.gz"
	first, err := fetchArchive(url)
	if err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(first)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "archive bytes" {
		t.Errorf("cached content = %q", data)
	}

	second, err := fetchArchive(url)
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Errorf("cache path changed between runs: %q vs %q", first, second)
	}
	if hits != 1 {
		t.Errorf("server hit %d times, want 1 (second fetch served from cache)", hits)
	}
}

func TestFetchArchiveFailureLeavesNoPartialFile(t *testing.T) {
	saveGlobals(t)
	cacheDir = t.TempDir()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()
	t.Setenv("PATH", t.TempDir())

	if _, err := fetchArchive(srv.URL + "/missing.tar.gz"); err == nil {
		t.Fatal("expected a download error")
	}

	entries, err := os.ReadDir(cacheDir)
	if err != nil {
		t.Fatal(err)
	}
	for _, entry := range entries {
		if filepath.Ext(entry.Name()) != ".lock" {
			t.Errorf("partial file left in cache: %s", entry.Name())
		}
	}
}
