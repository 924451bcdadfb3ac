package builder

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/renameio"
)

const (
	xzDisabledMarker = "/* XZ support disabled */\n"

	fnmGuard = "#ifndef FNM_EXTMATCH\n" +
		"#define FNM_EXTMATCH 0\n" +
		"#endif\n" +
		"\n"

	verboseDefinition = "int verbose = 0;"
)

// Matches the build-wide flag definition in the shared header, tolerating
// whitespace and an optional initializer, without touching longer
// identifiers like "int verbose_level;".
var verboseDefRe = regexp.MustCompile(`(?m)^[ \t]*int[ \t]+verbose[ \t]*(=[ \t]*0)?[ \t]*;`)

// applyUpstreamPatch converts the historical sasquatch patch document to
// UTF-8/LF and applies it with patch(1) in best-effort mode. Hunks that no
// longer apply are tolerated; the remaining rules repair what this one
// cannot.
func applyUpstreamPatch(root string, _ *Profile) Outcome {
	patchSrc := filepath.Join(filepath.Dir(root), "repo", "patches", "patch0.txt")
	raw, err := os.ReadFile(patchSrc)
	if err != nil {
		return Outcome{Rule: "patch0", Status: StatusSkipped,
			Detail: "patch file not found, continuing without upstream patches"}
	}

	// The upstream document is latin-1 with CRLF line endings; patch(1)
	// chokes on both against the freshly extracted tree.
	content := strings.ReplaceAll(decodeLatin1(raw), "\r\n", "\n")
	patchDoc := filepath.Join(root, "sasquatch.patch")
	if err := renameio.WriteFile(patchDoc, []byte(content), 0o644); err != nil {
		return Outcome{Rule: "patch0", Status: StatusFailed, Detail: err.Error()}
	}

	cmd := exec.Command("patch", "-p0", "-f", fmt.Sprintf("-F%d", patchFuzz), "-i", "sasquatch.patch")
	cmd.Dir = root
	out, err := cmd.CombinedOutput()
	debugf("%s", out)
	if err != nil {
		// Partial application is expected against drifted sources.
		return Outcome{Rule: "patch0", Status: StatusFailed,
			Detail: fmt.Sprintf("patch applied with failed hunks: %v", err)}
	}
	return Outcome{Rule: "patch0", Status: StatusApplied}
}

// decodeLatin1 reinterprets latin-1 bytes as UTF-8 text. Every latin-1 byte
// maps to the Unicode code point of the same value.
func decodeLatin1(b []byte) string {
	runes := make([]rune, len(b))
	for i, c := range b {
		runes[i] = rune(c)
	}
	return string(runes)
}

// fixVerboseSymbol resolves the duplicate definition of the build-wide
// verbose flag: the shared header keeps a declaration only, and exactly one
// translation unit carries the definition.
func fixVerboseSymbol(root string, _ *Profile) Outcome {
	headerPath := filepath.Join(root, toolsDirName, "error.h")
	consumerPath := filepath.Join(root, toolsDirName, "unsquashfs.c")

	if !fileExists(headerPath) && !fileExists(consumerPath) {
		return Outcome{Rule: "verbose-extern", Status: StatusSkipped,
			Detail: "error.h and unsquashfs.c not found"}
	}

	var details []string
	if fileExists(headerPath) {
		if _, err := rewriteFile(headerPath, func(content string) string {
			return verboseDefRe.ReplaceAllString(content, "extern int verbose;")
		}); err != nil {
			return Outcome{Rule: "verbose-extern", Status: StatusFailed, Detail: err.Error()}
		}
	} else {
		details = append(details, "error.h not found")
	}

	if fileExists(consumerPath) {
		if _, err := rewriteFile(consumerPath, insertVerboseDefinition); err != nil {
			return Outcome{Rule: "verbose-extern", Status: StatusFailed, Detail: err.Error()}
		}
	} else {
		details = append(details, "unsquashfs.c not found")
	}

	if len(details) > 0 {
		return Outcome{Rule: "verbose-extern", Status: StatusSkipped,
			Detail: strings.Join(details, "; ")}
	}
	return Outcome{Rule: "verbose-extern", Status: StatusApplied}
}

// insertVerboseDefinition places the single definition right after the last
// top-level include directive, unless one already exists verbatim.
func insertVerboseDefinition(content string) string {
	if strings.Contains(content, verboseDefinition) {
		return content
	}

	lines := strings.Split(content, "\n")
	lastInclude := -1
	for i, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "#include") {
			lastInclude = i
		}
	}
	if lastInclude < 0 {
		return content
	}

	inserted := []string{"", "/* Global verbose variable definition */", verboseDefinition, ""}
	out := make([]string, 0, len(lines)+len(inserted))
	out = append(out, lines[:lastInclude+1]...)
	out = append(out, inserted...)
	out = append(out, lines[lastInclude+1:]...)
	return strings.Join(out, "\n")
}

// fixFnmExtmatch prepends a compatibility guard for the glibc-only
// FNM_EXTMATCH macro so the extended matching flag degrades to a no-op on
// musl and bionic.
func fixFnmExtmatch(root string, _ *Profile) Outcome {
	consumerPath := filepath.Join(root, toolsDirName, "unsquashfs.c")
	if !fileExists(consumerPath) {
		return Outcome{Rule: "fnm-extmatch", Status: StatusSkipped, Detail: "unsquashfs.c not found"}
	}

	if _, err := rewriteFile(consumerPath, func(content string) string {
		if strings.HasPrefix(content, "#ifndef FNM_EXTMATCH") {
			return content
		}
		return fnmGuard + content
	}); err != nil {
		return Outcome{Rule: "fnm-extmatch", Status: StatusFailed, Detail: err.Error()}
	}
	return Outcome{Rule: "fnm-extmatch", Status: StatusApplied}
}

// disableXzWrapper blanks the bundled XZ compression backend, which
// conflicts with linking against the system liblzma. Deliberately
// destructive and trivially idempotent.
func disableXzWrapper(root string, _ *Profile) Outcome {
	var touched int
	for _, name := range []string{"xz_wrapper.c", "xz_wrapper.h"} {
		path := filepath.Join(root, toolsDirName, name)
		if !fileExists(path) {
			continue
		}
		current, err := os.ReadFile(path)
		if err == nil && string(current) == xzDisabledMarker {
			touched++
			continue
		}
		if err := renameio.WriteFile(path, []byte(xzDisabledMarker), 0o644); err != nil {
			return Outcome{Rule: "xz-disable", Status: StatusFailed, Detail: err.Error()}
		}
		touched++
	}
	if touched == 0 {
		return Outcome{Rule: "xz-disable", Status: StatusSkipped, Detail: "xz wrapper files not found"}
	}
	return Outcome{Rule: "xz-disable", Status: StatusApplied}
}

// fixMakefile rewrites the native build recipe for modern toolchains:
// -Werror goes away, the bundled codec include and link lines become
// prefix-aware, and the disabled XZ backend is no longer selected. Each
// sub-rule matches individual lines so unrelated recipe lines survive.
func fixMakefile(root string, prof *Profile) Outcome {
	makefilePath := filepath.Join(root, toolsDirName, "Makefile")
	if !fileExists(makefilePath) {
		return Outcome{Rule: "makefile", Status: StatusSkipped, Detail: "Makefile not found"}
	}

	prefix := prof.Prefix
	if _, err := rewriteFile(makefilePath, func(content string) string {
		content = strings.ReplaceAll(content, "-Werror", "")

		lines := strings.Split(content, "\n")
		for i, line := range lines {
			switch {
			case strings.HasPrefix(line, "CFLAGS") && strings.Contains(line, "./LZMA"):
				lines[i] = fmt.Sprintf("CFLAGS := -g -O2 -I%s/include -I. -I./LZMA/lzma465/C -I./LZMA/lzmalt -I./LZMA/lzmadaptive/C/7zip/Compress/LZMA_Lib", prefix)
			case strings.HasPrefix(line, "LIBS +=") && strings.Contains(line, "-llzma"):
				lines[i] = fmt.Sprintf("LIBS += -lz -lm -L%s/lib -llzo2 -llzma -L./LZMA/lzmadaptive/C/7zip/Compress/LZMA_Lib -llzmalib", prefix)
			case strings.Contains(line, "-DXZ_SUPPORT"):
				lines[i] = strings.ReplaceAll(line, "-DXZ_SUPPORT", "")
			}
		}
		return strings.Join(lines, "\n")
	}); err != nil {
		return Outcome{Rule: "makefile", Status: StatusFailed, Detail: err.Error()}
	}
	return Outcome{Rule: "makefile", Status: StatusApplied}
}
