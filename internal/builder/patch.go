package builder

import (
	"fmt"
	"os"

	"github.com/google/renameio"
)

// Status classifies what happened to a single patch rule.
type Status int

const (
	StatusApplied Status = iota
	StatusSkipped
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusApplied:
		return "applied"
	case StatusSkipped:
		return "skipped"
	default:
		return "failed"
	}
}

// Outcome reports the result of applying one rule.
type Outcome struct {
	Rule   string
	Status Status
	Detail string
}

// Rule is a named, independently idempotent transformation of the source
// tree. Applying a rule whose precondition no longer holds must be a no-op:
// running the full sequence twice yields a byte-identical tree.
type Rule struct {
	Name  string
	Apply func(root string, prof *Profile) Outcome
}

// patchRules returns the fixed rule sequence. The order matters: later rules
// assume earlier ones have already normalized the files they touch.
func patchRules() []Rule {
	return []Rule{
		{Name: "patch0", Apply: applyUpstreamPatch},
		{Name: "verbose-extern", Apply: fixVerboseSymbol},
		{Name: "fnm-extmatch", Apply: fixFnmExtmatch},
		{Name: "xz-disable", Apply: disableXzWrapper},
		{Name: "makefile", Apply: fixMakefile},
	}
}

// ApplyPatches runs every rule against the source tree rooted at root. A
// failing or inapplicable rule never aborts the sequence; the tree stays
// re-derivable from a fresh extraction, so there is no rollback.
func ApplyPatches(root string, prof *Profile) []Outcome {
	colArrow.Print("-> ")
	colSuccess.Println("Applying fixes for modern compilers")

	rules := patchRules()
	outcomes := make([]Outcome, 0, len(rules))
	for _, rule := range rules {
		out := rule.Apply(root, prof)
		outcomes = append(outcomes, out)
		switch out.Status {
		case StatusApplied:
			cPrintf(colInfo, "  [%s] %s\n", out.Status, out.Rule)
		default:
			cPrintf(colWarn, "  [%s] %s: %s\n", out.Status, out.Rule, out.Detail)
		}
	}
	return outcomes
}

// rewriteFile reads path, applies transform, and atomically writes the
// result back when it differs. Returns whether the file changed. The atomic
// rename guarantees a half-written source file is never observable.
func rewriteFile(path string, transform func(string) string) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return false, err
	}

	updated := transform(string(data))
	if updated == string(data) {
		return false, nil
	}
	if err := renameio.WriteFile(path, []byte(updated), info.Mode().Perm()); err != nil {
		return false, fmt.Errorf("failed to write %s: %w", path, err)
	}
	return true, nil
}

// fileExists reports whether path exists and is a regular file.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
