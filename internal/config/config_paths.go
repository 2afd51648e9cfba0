package config

import (
	"os"
	"path/filepath"
)

func possibleConfigPaths(flagPath string) []string {
	return []string{
		flagPath,
		filepath.Join(".", ".trampoline.hcl"),
		"/etc/trampoline/trampoline.hcl",
	}
}

// searchFilePaths returns the first path that exists and is a regular file.
func searchFilePaths(paths ...string) string {
	for _, path := range paths {
		if path == "" {
			continue
		}

		stat, err := os.Stat(path)
		if err != nil {
			continue
		}

		if stat.IsDir() {
			continue
		}

		return path
	}

	return ""
}
