package builder

import (
	"runtime"
	"sync/atomic"

	"github.com/gookit/color"
)

// GLOBAL STATE
// We use a value of 1 for critical and 0 for non-critical/default.
var isCriticalAtomic atomic.Int32

// Global variables
var (
	workspaceDir string
	cacheDir     string
	Debug        bool
	Verbose      bool
	patchFuzz    = 2
	repoURL      = "https://github.com/devttys0/sasquatch.git"
	squashfsURL  = "https://downloads.sourceforge.net/project/squashfs/squashfs/squashfs4.3/squashfs4.3.tar.gz"
	ConfigFile   = "/etc/sasquatch-builder.conf"
	version      = "dev"     // overridden at build time
	buildDate    = "unknown" // overridden at build time
	hostArch     = runtime.GOARCH
	// Global executors (declared, to be assigned in Main)
	UserExec *Executor
	RootExec *Executor
)

const (
	squashfsDirName   = "squashfs4.3"
	toolsDirName      = "squashfs-tools"
	artifactName      = "sasquatch"
	localArtifactName = "sasquatch_binary"
)

// color helpers
var (
	colInfo    = color.Info // style provided by gookit/color
	colWarn    = color.Warn
	colError   = color.Error
	colSuccess = color.HEX("#1976D2")
	colArrow   = color.HEX("#FFEB3B")
)
