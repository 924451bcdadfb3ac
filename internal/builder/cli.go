package builder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"github.com/gookit/color"
)

func banner() {
	line := strings.Repeat("=", 60)
	colSuccess.Println(line)
	colSuccess.Println("      SASQUATCH UNIVERSAL BUILDER - " + version)
	colSuccess.Println(line)
	colInfo.Println("      Original Logic: Craig Heffner (devttys0)")
	colInfo.Printf("      Build: %s (%s)\n", buildDate, hostArch)
	colSuccess.Println(line)
	fmt.Println()
}

// Main is the CLI entrypoint. There are no flags: the full pipeline runs
// unconditionally. Exit codes: 0 success, 1 fatal error, 130 interruption.
func Main() {
	// 1. CONTEXT AND SIGNAL SETUP
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 2. SIGNAL CHANNEL SETUP
	sigs := make(chan os.Signal, 1)
	// Register to receive SIGINT (Ctrl+C) and SIGTERM (kill command)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)

	// 3. SIGNAL HANDLING GOROUTINE
	go func() {
		for {
			select {
			case sig := <-sigs:
				if isCriticalAtomic.Load() == 1 {
					// Block the first signal during artifact installation,
					// force exit on the second.
					colArrow.Print("\n-> ")
					colError.Printf("Install in progress. Press Ctrl+C AGAIN to force exit NOW.\n")
					select {
					case <-sigs:
						colArrow.Print("\n-> ")
						colError.Printf("Forced immediate exit.")
						os.Exit(130)
					case <-time.After(5 * time.Second):
						continue
					case <-ctx.Done():
						return
					}
				} else {
					colArrow.Print("\n-> ")
					color.Danger.Printf("Received %v. Cancelling build gracefully\n", sig)
					cancel()

					// Give the child process group a moment to die and flush.
					time.Sleep(100 * time.Millisecond)

					select {
					case <-sigs:
						colArrow.Print("\n-> ")
						color.Danger.Printf("Second interrupt received. Forcing immediate exit.")
						os.Exit(130)
					case <-time.After(2 * time.Second):
						colArrow.Print("\n-> ")
						color.Danger.Printf("Build cancelled by user.\n")
						os.Exit(130)
					}
				}

			case <-ctx.Done():
				return
			}
		}
	}()

	// 4. UNEXPECTED ERROR TRAP
	defer func() {
		if r := recover(); r != nil {
			colArrow.Print("-> ")
			colError.Printf("Unexpected error: %v\n", r)
			os.Stderr.Write(debug.Stack())
			os.Exit(1)
		}
	}()

	// 5. MAIN LOGIC EXECUTION
	os.Exit(run(ctx))
}

// run executes the full pipeline and returns the process exit status.
func run(ctx context.Context) int {
	if ctx.Err() != nil {
		// Interrupted before any work started; still an interrupt exit.
		return 130
	}

	banner()

	cfg, err := loadConfig(ConfigFile)
	if err != nil {
		cPrintf(colWarn, "Could not read %s: %v (using defaults)\n", ConfigFile, err)
	}
	initConfig(cfg)

	UserExec = &Executor{Context: ctx}
	RootExec = &Executor{Context: ctx, ShouldRunAsRoot: true}

	prof := DetectProfile()
	colArrow.Print("-> ")
	pkgMgr := prof.PackageManager
	if pkgMgr == "" {
		pkgMgr = "unknown"
	}
	colSuccess.Printf("Detected: %s (%s), prefix %s\n", prof.Platform, pkgMgr, prof.Prefix)

	installDependencies(prof)

	if err := runPipeline(ctx, cfg, prof); err != nil {
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			colArrow.Print("\n-> ")
			color.Danger.Println("Build cancelled by user")
			return 130
		}
		colArrow.Print("-> ")
		colError.Printf("%v\n", err)
		return 1
	}
	return 0
}

// errBuildFailed marks a compilation failure already reported with
// remediation guidance.
var errBuildFailed = errors.New("build failed")

// runPipeline sequences acquisition, patching, compilation and deployment
// against a fresh workspace.
func runPipeline(ctx context.Context, cfg *Config, prof *Profile) error {
	if err := setupWorkspace(); err != nil {
		return err
	}

	treeRoot, err := acquireSources()
	if err != nil {
		return err
	}

	ApplyPatches(treeRoot, prof)

	res, err := runNativeBuild(treeRoot, prof)
	if err != nil {
		return err
	}
	if !res.Succeeded() {
		printRemediation(res)
		return errBuildFailed
	}

	colArrow.Print("-> ")
	colSuccess.Println("BUILD SUCCESSFUL!")

	if err := deployArtifact(res, prof); err != nil {
		return err
	}
	publishArtifact(ctx, cfg, res.ArtifactPath)

	cPrintln(colInfo, "Usage: sasquatch [options] filesystem.squashfs [destination]")
	return nil
}
