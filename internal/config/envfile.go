package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

const defaultEnvFilePath = ".trampoline.env"

// loadEnvFile folds a plain KEY=VALUE file into the process environment before
// the rest of config resolution runs. godotenv never overrides variables that
// are already exported, which is exactly the precedence we want: the CI
// environment stays authoritative and the file only fills gaps.
//
// An explicitly requested file must exist; the default file is best-effort.
func loadEnvFile(path string) error {
	if path != "" {
		err := godotenv.Load(path)
		if err != nil {
			return fmt.Errorf("could not load env file %q: %w", path, err)
		}

		return nil
	}

	envPath := os.Getenv("TRAMPOLINE_ENV_FILE")
	if envPath != "" {
		err := godotenv.Load(envPath)
		if err != nil {
			return fmt.Errorf("could not load env file %q: %w", envPath, err)
		}

		return nil
	}

	if _, err := os.Stat(defaultEnvFilePath); err == nil {
		_ = godotenv.Load(defaultEnvFilePath)
	}

	return nil
}
