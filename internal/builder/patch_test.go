package builder

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestDecodeLatin1(t *testing.T) {
	// "café" in latin-1, followed by a CRLF pair that conversion keeps as-is.
	in := []byte{'c', 'a', 'f', 0xe9, '\r', '\n'}
	if got, want := decodeLatin1(in), "café\r\n"; got != want {
		t.Errorf("decodeLatin1 = %q, want %q", got, want)
	}
}

func TestDecodeLatin1PassesASCIIThrough(t *testing.T) {
	in := []byte("--- squashfs-tools/unsquashfs.c\n+++ squashfs-tools/unsquashfs.c\n")
	if got := decodeLatin1(in); got != string(in) {
		t.Errorf("ASCII input changed: %q", got)
	}
}

func TestRewriteFileSkipsUnchangedContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recipe")
	if err := os.WriteFile(path, []byte("unchanged\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	before, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}

	changed, err := rewriteFile(path, func(s string) string { return s })
	if err != nil {
		t.Fatal(err)
	}
	if changed {
		t.Error("rewriteFile reported a change for identity transform")
	}

	after, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if !after.ModTime().Equal(before.ModTime()) {
		t.Error("identity transform rewrote the file")
	}
}

func TestRewriteFilePreservesMode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "script")
	if err := os.WriteFile(path, []byte("old\n"), 0o755); err != nil {
		t.Fatal(err)
	}

	changed, err := rewriteFile(path, func(string) string { return "new\n" })
	if err != nil {
		t.Fatal(err)
	}
	if !changed {
		t.Error("rewriteFile did not report the change")
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o755 {
		t.Errorf("mode = %v, want 0755", info.Mode().Perm())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff("new\n", string(data)); diff != "" {
		t.Errorf("content mismatch (-want +got):\n%s", diff)
	}
}

func TestStatusString(t *testing.T) {
	for want, status := range map[string]Status{
		"applied": StatusApplied,
		"skipped": StatusSkipped,
		"failed":  StatusFailed,
	} {
		if got := status.String(); got != want {
			t.Errorf("Status(%d).String() = %q, want %q", status, got, want)
		}
	}
}

func TestPatchRuleOrder(t *testing.T) {
	var names []string
	for _, rule := range patchRules() {
		names = append(names, rule.Name)
	}
	// Later rules assume earlier ones have normalized their files; the order
	// is part of the engine's contract.
	want := []string{"patch0", "verbose-extern", "fnm-extmatch", "xz-disable", "makefile"}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Errorf("rule order mismatch (-want +got):\n%s", diff)
	}
}
