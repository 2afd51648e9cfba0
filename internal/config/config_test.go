package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestFromFile(t *testing.T) {
	expected := Trampoline{
		Image:           "gcr.io/cloud-devrel-kokoro-resources/python-multi",
		BuildFile:       "github/python-docs-samples/.kokoro/tests/run_tests.sh",
		ImageUpload:     "true",
		Workspace:       "/workspace",
		DockerSocket:    "/var/run/docker.sock",
		ServiceAccount:  "trampoline-service-account.json",
		LogLevel:        "debug",
		RequiredEnvVars: []string{"KOKORO_GITHUB_TOKEN"},
		PassDownEnvVars: []string{"NOX_SESSION", "KOKORO_GITHUB_TOKEN"},
	}

	config := DefaultConfig()
	err := config.FromFile("./testdata/trampoline.hcl")
	if err != nil {
		t.Fatal(err)
	}

	diff := cmp.Diff(expected, *config)
	if diff != "" {
		t.Errorf("result is different than expected(-) vs result(+): %s", diff)
	}
}

func TestFromBytes(t *testing.T) {
	content := []byte(`image = "gcr.io/test-project/image:latest"
build_file = "build.sh"
`)

	config := DefaultConfig()
	err := config.FromBytes(content)
	if err != nil {
		t.Fatal(err)
	}

	if config.Image != "gcr.io/test-project/image:latest" {
		t.Errorf("unexpected image: %q", config.Image)
	}

	if err := config.FromBytes([]byte(`image =`)); err == nil {
		t.Error("expected malformed configuration to error")
	}
}

func TestFromFileThenOverwriteWithEnvs(t *testing.T) {
	err := os.Setenv("TRAMPOLINE_IMAGE", "gcr.io/other-project/worker")
	if err != nil {
		t.Fatal(err)
	}
	defer os.Unsetenv("TRAMPOLINE_IMAGE")

	err = os.Setenv("TRAMPOLINE_LOG_LEVEL", "error")
	if err != nil {
		t.Fatal(err)
	}
	defer os.Unsetenv("TRAMPOLINE_LOG_LEVEL")

	err = os.Setenv("TRAMPOLINE_PASS_DOWN_ENV_VARS", "ONE,TWO")
	if err != nil {
		t.Fatal(err)
	}
	defer os.Unsetenv("TRAMPOLINE_PASS_DOWN_ENV_VARS")

	config := DefaultConfig()
	err = config.FromFile("./testdata/trampoline.hcl")
	if err != nil {
		t.Fatal(err)
	}

	err = config.FromEnv()
	if err != nil {
		t.Fatal(err)
	}

	if config.Image != "gcr.io/other-project/worker" {
		t.Errorf("expected env var to overwrite file value; got %q", config.Image)
	}

	if config.LogLevel != "error" {
		t.Errorf("expected env var to overwrite file value; got %q", config.LogLevel)
	}

	diff := cmp.Diff([]string{"ONE", "TWO"}, config.PassDownEnvVars)
	if diff != "" {
		t.Errorf("result is different than expected(-) vs result(+): %s", diff)
	}

	// Values the environment doesn't mention should survive untouched.
	if config.BuildFile != "github/python-docs-samples/.kokoro/tests/run_tests.sh" {
		t.Errorf("unexpected build file after env overlay: %q", config.BuildFile)
	}
}

// The CI credential directory variable is owned by the surrounding CI system, so
// it must resolve without our own prefix.
func TestGFileDirResolvesWithoutPrefix(t *testing.T) {
	err := os.Setenv("KOKORO_GFILE_DIR", "/tmp/gfile-test")
	if err != nil {
		t.Fatal(err)
	}
	defer os.Unsetenv("KOKORO_GFILE_DIR")

	config := DefaultConfig()
	err = config.FromEnv()
	if err != nil {
		t.Fatal(err)
	}

	if config.GFileDir != "/tmp/gfile-test" {
		t.Errorf("expected KOKORO_GFILE_DIR to populate GFileDir; got %q", config.GFileDir)
	}

	if !config.RunningInCI() {
		t.Error("expected RunningInCI to be true when the credential dir is set")
	}
}

func TestEnvFileNeverOverridesHostEnvironment(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, "trampoline.env")

	err := os.WriteFile(envFile, []byte("TRAMPOLINE_IMAGE=from-file\nTRAMPOLINE_BUILD_FILE=github/repo/build.sh\n"), 0o644)
	if err != nil {
		t.Fatal(err)
	}

	err = os.Setenv("TRAMPOLINE_IMAGE", "from-host")
	if err != nil {
		t.Fatal(err)
	}
	defer os.Unsetenv("TRAMPOLINE_IMAGE")
	defer os.Unsetenv("TRAMPOLINE_BUILD_FILE")

	err = os.Setenv("TRAMPOLINE_PROJECT_ROOT", dir)
	if err != nil {
		t.Fatal(err)
	}
	defer os.Unsetenv("TRAMPOLINE_PROJECT_ROOT")

	config, err := InitConfig("", envFile)
	if err != nil {
		t.Fatal(err)
	}

	if config.Image != "from-host" {
		t.Errorf("host environment should win over the env file; got %q", config.Image)
	}

	if config.BuildFile != "github/repo/build.sh" {
		t.Errorf("env file should fill variables the host left unset; got %q", config.BuildFile)
	}
}

func TestInitConfigMissingEnvFile(t *testing.T) {
	_, err := InitConfig("", "/nonexistent/trampoline.env")
	if err == nil {
		t.Fatal("expected an error for an explicitly requested env file that does not exist")
	}
}

func TestValidateCollectsAllMissingVars(t *testing.T) {
	config := DefaultConfig()
	config.RequiredEnvVars = []string{"TRAMPOLINE_TEST_DEFINITELY_UNSET"}

	err := config.Validate()
	if err == nil {
		t.Fatal("expected validation to fail for an empty config")
	}

	for _, want := range []string{"TRAMPOLINE_IMAGE", "TRAMPOLINE_BUILD_FILE", "TRAMPOLINE_TEST_DEFINITELY_UNSET"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected validation error to mention %q; got: %v", want, err)
		}
	}
}

func TestValidatePassesWithRequiredVars(t *testing.T) {
	err := os.Setenv("TRAMPOLINE_TEST_TOKEN", "abc")
	if err != nil {
		t.Fatal(err)
	}
	defer os.Unsetenv("TRAMPOLINE_TEST_TOKEN")

	config := DefaultConfig()
	config.Image = "ubuntu:latest"
	config.BuildFile = "build.sh"
	config.RequiredEnvVars = []string{"TRAMPOLINE_TEST_TOKEN"}

	if err := config.Validate(); err != nil {
		t.Errorf("expected validation to pass; got: %v", err)
	}
}

func TestGetEnvVars(t *testing.T) {
	vars := GetEnvVars()

	for _, want := range []string{
		"TRAMPOLINE_IMAGE",
		"TRAMPOLINE_BUILD_FILE",
		"TRAMPOLINE_IMAGE_SOURCE",
		"TRAMPOLINE_IMAGE_UPLOAD",
		"KOKORO_GFILE_DIR",
		"TRAMPOLINE_PASS_DOWN_ENV_VARS",
	} {
		found := false
		for _, got := range vars {
			if got == want {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("expected env var list to contain %q; got %v", want, vars)
		}
	}
}
