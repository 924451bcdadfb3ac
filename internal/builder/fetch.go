package builder

import (
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/sys/unix"
	"golang.org/x/term"
	"lukechampine.com/blake3"
)

// hashString returns a hex BLAKE3 digest, used to key the archive cache by URL.
func hashString(s string) string {
	h := blake3.New(32, nil)
	h.Write([]byte(s))
	return fmt.Sprintf("%x", h.Sum(nil))
}

func newHTTPClient() *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	// Default handshake timeout is 10s; sourceforge mirrors can be slow.
	transport.TLSHandshakeTimeout = 30 * time.Second

	return &http.Client{
		Transport: transport,
		Timeout:   300 * time.Second, // 5 min total timeout for large downloads
	}
}

// fetchArchive downloads url into the cache directory (keyed by URL hash so a
// changed URL never reuses a stale file) and returns the cached path. The
// download is flock-guarded against concurrent runs sharing the cache.
func fetchArchive(url string) (string, error) {
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create cache directory %s: %w", cacheDir, err)
	}
	cachePath := filepath.Join(cacheDir, hashString(url)+"-"+filepath.Base(url))

	lockPath := cachePath + ".lock"
	lFile, err := os.Create(lockPath)
	if err != nil {
		return "", fmt.Errorf("failed to create lock file: %w", err)
	}
	defer lFile.Close()

	if err := unix.Flock(int(lFile.Fd()), unix.LOCK_EX); err != nil {
		return "", fmt.Errorf("failed to acquire lock for download: %w", err)
	}
	defer unix.Flock(int(lFile.Fd()), unix.LOCK_UN)

	// Another run may have finished the download while we waited on the lock.
	if _, err := os.Stat(cachePath); err == nil {
		debugf("Already in cache: %s\n", cachePath)
		_ = os.Remove(lockPath)
		return cachePath, nil
	}

	colArrow.Print("-> ")
	colSuccess.Printf("Fetching source: %s\n", filepath.Base(url))
	if err := downloadFile(url, cachePath); err != nil {
		_ = os.Remove(cachePath) // do not leave a partial file in the cache
		return "", err
	}
	_ = os.Remove(lockPath)
	return cachePath, nil
}

// downloadFile retrieves a URL using curl, then wget, then the native Go
// HTTP client. The external tools come first because they handle redirects,
// proxies and resumption better than anything worth reimplementing here.
func downloadFile(url, destFile string) error {
	debugf("Downloading %s -> %s\n", url, destFile)

	// --- Primary choice: curl ---
	if _, err := exec.LookPath("curl"); err == nil {
		curlArgs := []string{"-L", "--fail", "-o", destFile}
		if Verbose || Debug {
			curlArgs = append(curlArgs, "-#")
		} else {
			curlArgs = append(curlArgs, "-sS")
		}
		curlArgs = append(curlArgs, url)
		cmd := exec.Command("curl", curlArgs...)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		if err := cmd.Run(); err == nil {
			debugf("Download successful with curl\n")
			return nil
		}
		debugf("curl failed, falling back to wget\n")
	} else {
		debugf("curl not found, trying wget\n")
	}

	// --- Fallback 1: wget ---
	if _, err := exec.LookPath("wget"); err == nil {
		cmd := exec.Command("wget", "-nv", "-O", destFile, url)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		if err := cmd.Run(); err == nil {
			debugf("Download successful with wget\n")
			return nil
		}
		debugf("wget failed, falling back to native Go HTTP client\n")
	} else {
		debugf("wget not found, using native Go HTTP client\n")
	}

	// --- Fallback 2: native Go HTTP client ---
	out, err := os.Create(destFile)
	if err != nil {
		return fmt.Errorf("failed to create destination file %s: %w", destFile, err)
	}
	defer out.Close()

	resp, err := newHTTPClient().Get(url)
	if err != nil {
		return fmt.Errorf("native http get failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download failed with status: %s", resp.Status)
	}

	var dst io.Writer = out
	if term.IsTerminal(int(os.Stdout.Fd())) {
		bar := progressbar.DefaultBytes(resp.ContentLength, filepath.Base(url))
		dst = io.MultiWriter(out, bar)
	}
	if _, err := io.Copy(dst, resp.Body); err != nil {
		return fmt.Errorf("failed to write to destination file: %w", err)
	}

	debugf("Download successful with native Go HTTP client\n")
	return nil
}

// cloneRepo clones a git repository into destPath. The caller decides
// whether a failure is fatal; for the patch repository it is not.
func cloneRepo(url, destPath string) error {
	if _, err := exec.LookPath("git"); err != nil {
		return fmt.Errorf("git not found on PATH: %w", err)
	}
	cmd := exec.Command("git", "clone", "--depth=1", url, destPath)
	if Verbose || Debug {
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
	} else {
		cmd.Stdout = io.Discard
		cmd.Stderr = io.Discard
	}
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("git clone %s failed: %w", url, err)
	}
	return nil
}
