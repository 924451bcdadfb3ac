package builder

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
)

// BuildResult captures both success signals of the native build. A zero exit
// status with a missing artifact is still a failure: old squashfs Makefiles
// have been seen to "succeed" without producing the binary.
type BuildResult struct {
	ExitErr         error
	ArtifactPresent bool
	ArtifactPath    string
}

// Succeeded requires both a clean exit and the artifact on disk.
func (r *BuildResult) Succeeded() bool {
	return r.ExitErr == nil && r.ArtifactPresent
}

// parallelJobs returns the job count for the native build: the logical core
// count, or 2 when it cannot be detected.
func parallelJobs() int {
	if n := runtime.NumCPU(); n >= 1 {
		return n
	}
	return 2
}

// setupWorkspace destroys any workspace left over from a previous run and
// creates a fresh one. Stale trees must never mix with a new run.
func setupWorkspace() error {
	colArrow.Print("-> ")
	colSuccess.Println("Setting up build directory")

	if err := os.RemoveAll(workspaceDir); err != nil {
		return fmt.Errorf("failed to remove stale workspace %s: %w", workspaceDir, err)
	}
	if err := os.MkdirAll(workspaceDir, 0o755); err != nil {
		return fmt.Errorf("failed to create workspace %s: %w", workspaceDir, err)
	}
	return nil
}

// acquireSources clones the patch repository and fetches+extracts the legacy
// squashfs tree into the workspace. The repository clone degrades gracefully
// (the run proceeds unpatched by rule patch0); the archive is mandatory.
func acquireSources() (string, error) {
	colArrow.Print("-> ")
	colSuccess.Println("Cloning sasquatch repository")
	if err := cloneRepo(repoURL, filepath.Join(workspaceDir, "repo")); err != nil {
		cPrintf(colWarn, "Could not clone patch repository: %v (continuing unpatched)\n", err)
	}

	archivePath, err := fetchArchive(squashfsURL)
	if err != nil {
		return "", fmt.Errorf("failed to download squashfs archive: %w", err)
	}

	colArrow.Print("-> ")
	colSuccess.Println("Extracting archive")
	treeRoot := filepath.Join(workspaceDir, squashfsDirName)
	if err := extractArchive(archivePath, treeRoot); err != nil {
		return "", fmt.Errorf("failed to extract squashfs archive: %w", err)
	}

	colArrow.Print("-> ")
	colSuccess.Println("Source code ready")
	return treeRoot, nil
}

// runNativeBuild invokes make against the patched recipe and interprets the
// result through both signals.
func runNativeBuild(treeRoot string, prof *Profile) (*BuildResult, error) {
	toolsDir := filepath.Join(treeRoot, toolsDirName)
	if !fileExists(filepath.Join(toolsDir, "Makefile")) {
		return nil, fmt.Errorf("native build recipe not found in %s", toolsDir)
	}

	// Clean any artifacts from a prior partial build; errors here are noise.
	cleanCmd := exec.Command("make", "clean")
	cleanCmd.Dir = toolsDir
	cleanCmd.Stdout = io.Discard
	cleanCmd.Stderr = io.Discard
	_ = cleanCmd.Run()

	jobs := parallelJobs()
	colArrow.Print("-> ")
	colSuccess.Printf("Building with %d parallel jobs\n", jobs)

	logPath := filepath.Join(workspaceDir, "build-log.txt")
	logFile, err := os.Create(logPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create build log: %w", err)
	}
	defer logFile.Close()

	var output io.Writer = logFile
	if Verbose || Debug {
		output = io.MultiWriter(os.Stdout, logFile)
	}

	cmd := exec.Command("make", fmt.Sprintf("-j%d", jobs))
	cmd.Dir = toolsDir
	cmd.Stdout = output
	cmd.Stderr = output

	env := os.Environ()
	for role, compiler := range prof.CompilerOverrides {
		env = append(env, role+"="+compiler)
	}
	cmd.Env = env

	result := &BuildResult{ExitErr: UserExec.Run(cmd)}

	artifactPath := filepath.Join(toolsDir, artifactName)
	if fileExists(artifactPath) {
		result.ArtifactPresent = true
		result.ArtifactPath = artifactPath
	}
	return result, nil
}

// deployArtifact saves the binary at the stable run-relative location and
// installs it to the profile prefix where that is possible without
// privileges. It is only called after Succeeded() returned true.
func deployArtifact(res *BuildResult, prof *Profile) error {
	localPath := filepath.Join(workspaceDir, localArtifactName)
	if err := copyFile(res.ArtifactPath, localPath); err != nil {
		return fmt.Errorf("failed to save artifact: %w", err)
	}
	if err := os.Chmod(localPath, 0o755); err != nil {
		return fmt.Errorf("failed to mark artifact executable: %w", err)
	}
	colArrow.Print("-> ")
	colSuccess.Printf("Binary saved: %s\n", localPath)

	target := filepath.Join(prof.Prefix, "bin", artifactName)
	if prof.Platform == PlatformTermux {
		// Termux prefixes are user-writable, so install directly.
		isCriticalAtomic.Store(1)
		defer isCriticalAtomic.Store(0)
		if err := copyFile(res.ArtifactPath, target); err != nil {
			cPrintf(colWarn, "Could not auto-install: %v\n", err)
			cPrintf(colInfo, "Manual install: cp %s %s && chmod +x %s\n", localPath, target, target)
			return nil
		}
		if err := os.Chmod(target, 0o755); err != nil {
			cPrintf(colWarn, "Could not mark %s executable: %v\n", target, err)
			return nil
		}
		colArrow.Print("-> ")
		colSuccess.Printf("Installed to %s\n", target)
		cPrintln(colInfo, "You can now use: sasquatch --help")
		return nil
	}

	cPrintln(colInfo, "To install system-wide, run:")
	cPrintf(colInfo, "  sudo cp %s %s\n", localPath, target)
	cPrintf(colInfo, "  sudo chmod +x %s\n", target)
	return nil
}

// copyFile copies src to dst, truncating dst if present.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// printRemediation explains the usual ways out of a failed build without
// taking any automatic recovery action.
func printRemediation(res *BuildResult) {
	colArrow.Print("-> ")
	colError.Println("BUILD FAILED")
	if res.ExitErr == nil && !res.ArtifactPresent {
		cPrintf(colWarn, "make exited cleanly but %s was not produced\n", artifactName)
	}
	cPrintln(colWarn, "Troubleshooting tips:")
	cPrintf(colWarn, "1. Clean build: rm -rf %s\n", workspaceDir)
	cPrintln(colWarn, "2. Check dependencies are installed")
	cPrintln(colWarn, "3. Try running again")
}
