package builder

import (
	"os"
	"os/exec"
	"strings"
)

// Platform identifies the family of the host system.
type Platform int

const (
	PlatformUnknown Platform = iota
	PlatformDebian
	PlatformArch
	PlatformFedora
	PlatformAlpine
	PlatformTermux
)

func (p Platform) String() string {
	switch p {
	case PlatformDebian:
		return "debian"
	case PlatformArch:
		return "arch"
	case PlatformFedora:
		return "fedora"
	case PlatformAlpine:
		return "alpine"
	case PlatformTermux:
		return "termux"
	default:
		return "unknown"
	}
}

// Profile is the immutable description of the target platform. It is built
// exactly once per run and passed explicitly to every component that needs it.
type Profile struct {
	Platform          Platform
	Prefix            string
	PackageManager    string
	Packages          []string
	CompilerOverrides map[string]string
}

const termuxDataDir = "/data/data/com.termux"

// packagesFor returns the build dependencies required on the given platform.
func packagesFor(p Platform) []string {
	switch p {
	case PlatformTermux:
		return []string{"git", "patch", "make", "clang", "zlib", "liblzma", "xz-utils", "lzo", "lzo2", "binutils", "wget"}
	case PlatformDebian:
		return []string{"git", "patch", "make", "gcc", "g++", "zlib1g-dev", "liblzma-dev", "liblzo2-dev", "binutils", "wget"}
	case PlatformArch:
		return []string{"git", "patch", "make", "gcc", "zlib", "xz", "lzo", "binutils", "wget"}
	case PlatformFedora:
		return []string{"git", "patch", "make", "gcc", "gcc-c++", "zlib-devel", "xz-devel", "lzo-devel", "binutils", "wget"}
	case PlatformAlpine:
		return []string{"git", "patch", "make", "gcc", "g++", "zlib-dev", "xz-dev", "lzo-dev", "binutils", "wget"}
	default:
		return nil
	}
}

// isTermux reports whether the host looks like a Termux environment. The
// Termux check must run before any package manager probe: Termux ships a
// POSIX shell and an apt-compatible frontend that would otherwise match the
// generic probes.
func isTermux() bool {
	if info, err := os.Stat(termuxDataDir); err == nil && info.IsDir() {
		return true
	}
	return strings.Contains(os.Getenv("PREFIX"), "com.termux")
}

// DetectProfile probes the host and returns exactly one Profile. It never
// fails: when nothing is recognizable it degrades to the unknown profile
// with an empty package list and prefix /usr.
func DetectProfile() *Profile {
	if isTermux() {
		prefix := os.Getenv("PREFIX")
		if prefix == "" {
			prefix = termuxDataDir + "/files/usr"
		}
		return &Profile{
			Platform:       PlatformTermux,
			Prefix:         prefix,
			PackageManager: "pkg",
			Packages:       packagesFor(PlatformTermux),
			CompilerOverrides: map[string]string{
				"CC":  "clang",
				"CXX": "clang++",
			},
		}
	}

	// Fixed priority order among the generic package managers.
	probes := []struct {
		tool     string
		platform Platform
	}{
		{"apt", PlatformDebian},
		{"pacman", PlatformArch},
		{"dnf", PlatformFedora},
		{"apk", PlatformAlpine},
	}
	for _, probe := range probes {
		if _, err := exec.LookPath(probe.tool); err == nil {
			return &Profile{
				Platform:       probe.platform,
				Prefix:         "/usr",
				PackageManager: probe.tool,
				Packages:       packagesFor(probe.platform),
			}
		}
	}

	return &Profile{
		Platform: PlatformUnknown,
		Prefix:   "/usr",
	}
}
