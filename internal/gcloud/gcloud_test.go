package gcloud

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const sampleKey = `{
  "type": "service_account",
  "project_id": "test-project",
  "private_key_id": "0000000000000000000000000000000000000000",
  "client_email": "trampoline@test-project.iam.gserviceaccount.com"
}`

func writeKeyFile(t *testing.T) (dir, name string) {
	t.Helper()

	dir = t.TempDir()
	name = "trampoline-service-account.json"

	err := os.WriteFile(filepath.Join(dir, name), []byte(sampleKey), 0o600)
	if err != nil {
		t.Fatal(err)
	}

	return dir, name
}

func TestActivateRunsGcloudCommands(t *testing.T) {
	dir, name := writeKeyFile(t)

	auth := New(dir, name)

	calls := [][]string{}
	auth.runCommand = func(_ context.Context, cmdName string, args ...string) error {
		calls = append(calls, append([]string{cmdName}, args...))
		return nil
	}

	err := auth.Activate(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	expected := [][]string{
		{"gcloud", "auth", "activate-service-account", "--key-file", filepath.Join(dir, name)},
		{"gcloud", "auth", "configure-docker", "--quiet"},
	}

	diff := cmp.Diff(expected, calls)
	if diff != "" {
		t.Errorf("result is different than expected(-) vs result(+): %s", diff)
	}
}

func TestActivateMissingKeyFile(t *testing.T) {
	auth := New(t.TempDir(), "missing.json")

	auth.runCommand = func(_ context.Context, _ string, _ ...string) error {
		t.Fatal("gcloud should not be invoked when the key file is missing")
		return nil
	}

	err := auth.Activate(context.Background())
	if err == nil {
		t.Fatal("expected an error for a missing key file")
	}
}

func TestRegistryAuth(t *testing.T) {
	dir, name := writeKeyFile(t)

	auth := New(dir, name)

	registryAuth, err := auth.RegistryAuth()
	if err != nil {
		t.Fatal(err)
	}

	if registryAuth.User != "_json_key" {
		t.Errorf("registry user should be the json key sentinel; got %q", registryAuth.User)
	}

	if registryAuth.Pass != sampleKey {
		t.Error("registry password should be the raw key file contents")
	}
}

func TestRegistryAuthRejectsNonServiceAccountKeys(t *testing.T) {
	dir := t.TempDir()

	err := os.WriteFile(filepath.Join(dir, "key.json"), []byte(`{"type": "authorized_user"}`), 0o600)
	if err != nil {
		t.Fatal(err)
	}

	_, err = New(dir, "key.json").RegistryAuth()
	if err == nil {
		t.Fatal("expected an error for a non service account credential")
	}
}
