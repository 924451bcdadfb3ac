package builder

import (
	"io"
	"os/exec"
)

// installDependencies provisions the build dependencies for the detected
// platform. Provisioning is best-effort: a failed install is logged and the
// run continues, since a genuinely missing dependency surfaces later at
// compile time with a more specific error.
func installDependencies(prof *Profile) {
	colArrow.Print("-> ")
	if prof.PackageManager == "" {
		colSuccess.Println("Installing dependencies for unknown OS")
		cPrintln(colWarn, "No package manager detected. Please install dependencies manually:")
		cPrintln(colWarn, "Required: git, patch, make, gcc/clang, zlib, liblzma, lzo")
		return
	}
	colSuccess.Printf("Installing dependencies via %s\n", prof.PackageManager)

	switch prof.PackageManager {
	case "pkg":
		// Termux runs unprivileged and prefers one install per package so a
		// single broken package doesn't block the rest.
		for _, pkg := range prof.Packages {
			debugf("Installing %s\n", pkg)
			runProvision(UserExec, "pkg", append([]string{"install", "-y"}, pkg)...)
		}
	case "apt":
		cPrintln(colWarn, "Note: Using sudo for dependency installation")
		runProvision(RootExec, "apt-get", "update")
		runProvision(RootExec, "apt-get", append([]string{"install", "-y"}, prof.Packages...)...)
	case "pacman":
		runProvision(RootExec, "pacman", append([]string{"-S", "--noconfirm"}, prof.Packages...)...)
	case "dnf":
		runProvision(RootExec, "dnf", append([]string{"install", "-y"}, prof.Packages...)...)
	case "apk":
		runProvision(RootExec, "apk", append([]string{"add", "--no-cache"}, prof.Packages...)...)
	default:
		cPrintf(colWarn, "Unsupported package manager %q, skipping provisioning\n", prof.PackageManager)
		return
	}

	colArrow.Print("-> ")
	colSuccess.Println("Dependency provisioning finished")
}

// runProvision runs a single package manager command, logging failures
// without propagating them.
func runProvision(execCtx *Executor, name string, args ...string) {
	cmd := exec.Command(name, args...)
	if !Verbose && !Debug {
		cmd.Stdout = io.Discard
		cmd.Stderr = io.Discard
	}
	if err := execCtx.Run(cmd); err != nil {
		cPrintf(colWarn, "Package command %s failed: %v (continuing)\n", name, err)
	}
}
