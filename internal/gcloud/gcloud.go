// Package gcloud activates the CI provided service account so that image pulls
// and pushes against the project registry are authenticated. It shells out to the
// gcloud binary for activation because credential helper wiring is gcloud's own
// moving target; we only parse the key file ourselves to mint registry
// credentials for the docker API.
package gcloud

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/clintjedwards/trampoline/internal/models"
	"github.com/rs/zerolog/log"
)

// Registries accept a raw service account key as a password when paired with
// this magic username.
const keyfileUser = "_json_key"

type runCommandFunc func(ctx context.Context, name string, args ...string) error

type Authenticator struct {
	gfileDir   string
	keyFile    string
	runCommand runCommandFunc
}

func New(gfileDir, keyFile string) *Authenticator {
	return &Authenticator{
		gfileDir:   gfileDir,
		keyFile:    keyFile,
		runCommand: runCommand,
	}
}

func runCommand(ctx context.Context, name string, args ...string) error {
	log.Debug().Str("command", strings.Join(append([]string{name}, args...), " ")).Msg("gcloud: running command")

	cmd := exec.CommandContext(ctx, name, args...)
	// gcloud chatter belongs with our own diagnostics, not the build's stdout.
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr

	return cmd.Run()
}

// KeyFilePath returns where the service account key should live inside the CI
// credential directory.
func (auth *Authenticator) KeyFilePath() string {
	return filepath.Join(auth.gfileDir, auth.keyFile)
}

// Activate registers the service account with gcloud and wires up docker's
// credential helpers so subsequent registry operations are authenticated.
func (auth *Authenticator) Activate(ctx context.Context) error {
	keyFile := auth.KeyFilePath()

	_, err := os.Stat(keyFile)
	if err != nil {
		return fmt.Errorf("service account key '%s' is not readable: %w", keyFile, err)
	}

	err = auth.runCommand(ctx, "gcloud", "auth", "activate-service-account", "--key-file", keyFile)
	if err != nil {
		return fmt.Errorf("could not activate service account: %w", err)
	}

	err = auth.runCommand(ctx, "gcloud", "auth", "configure-docker", "--quiet")
	if err != nil {
		return fmt.Errorf("could not configure docker credential helpers: %w", err)
	}

	return nil
}

// RegistryAuth builds registry credentials from the service account key for
// engine calls that talk to the registry directly.
func (auth *Authenticator) RegistryAuth() (*models.RegistryAuth, error) {
	raw, err := os.ReadFile(auth.KeyFilePath())
	if err != nil {
		return nil, fmt.Errorf("could not read service account key '%s': %w", auth.KeyFilePath(), err)
	}

	var key struct {
		Type        string `json:"type"`
		ClientEmail string `json:"client_email"`
	}

	err = json.Unmarshal(raw, &key)
	if err != nil {
		return nil, fmt.Errorf("could not parse service account key '%s': %w", auth.KeyFilePath(), err)
	}

	if key.Type != "service_account" {
		return nil, fmt.Errorf("credential file '%s' is not a service account key; found type %q", auth.KeyFilePath(), key.Type)
	}

	log.Debug().Str("service_account", key.ClientEmail).Msg("gcloud: built registry credentials")

	return models.NewRegistryAuth(keyfileUser, string(raw)), nil
}
