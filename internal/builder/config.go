package builder

import (
	"bufio"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Config struct
type Config struct {
	Values map[string]string
}

// Load /etc/sasquatch-builder.conf and apply defaults
func loadConfig(path string) (*Config, error) {
	cfg := &Config{Values: make(map[string]string)}

	// Attempt to read the file
	file, err := os.Open(path)
	if err == nil {
		defer file.Close()
		scanner := bufio.NewScanner(file)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			parts := strings.SplitN(line, "=", 2)
			if len(parts) != 2 {
				continue
			}
			key := strings.TrimSpace(parts[0])
			val := strings.TrimSpace(parts[1])
			val = strings.Trim(val, `"'`)
			cfg.Values[key] = val
		}
		if err := scanner.Err(); err != nil {
			return cfg, err
		}
	}

	// Merge SASQUATCH_* env overrides
	mergeEnvOverrides(cfg)

	return cfg, nil
}

// Merge SASQUATCH_* env overrides
func mergeEnvOverrides(cfg *Config) {
	for _, env := range os.Environ() {
		if strings.HasPrefix(env, "SASQUATCH_") {
			parts := strings.SplitN(env, "=", 2)
			if len(parts) == 2 {
				cfg.Values[parts[0]] = parts[1]
			}
		}
	}
}

func initConfig(cfg *Config) {
	workspaceDir = cfg.Values["SASQUATCH_BUILD_DIR"]
	if workspaceDir == "" {
		workspaceDir = "sasquatch_rc1_build"
	}

	cacheDir = cfg.Values["SASQUATCH_CACHE_DIR"]
	if cacheDir == "" {
		if base, err := os.UserCacheDir(); err == nil {
			cacheDir = filepath.Join(base, "sasquatch-builder")
		} else {
			cacheDir = filepath.Join(os.TempDir(), "sasquatch-builder")
		}
	}

	Debug = cfg.Values["SASQUATCH_DEBUG"] == "1"
	Verbose = cfg.Values["SASQUATCH_VERBOSE"] == "1"

	// The upstream patch tolerance is deliberately configurable: the exact
	// context-line slack the original hunks need is not pinned anywhere.
	if fuzz := cfg.Values["SASQUATCH_PATCH_FUZZ"]; fuzz != "" {
		if n, err := strconv.Atoi(fuzz); err == nil && n >= 0 {
			patchFuzz = n
		} else {
			debugf("Ignoring invalid SASQUATCH_PATCH_FUZZ=%q\n", fuzz)
		}
	}

	if url := cfg.Values["SASQUATCH_REPO_URL"]; url != "" {
		repoURL = url
	}
	if url := cfg.Values["SASQUATCH_SQUASHFS_URL"]; url != "" {
		squashfsURL = url
	}
}
