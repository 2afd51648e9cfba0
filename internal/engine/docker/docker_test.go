package docker

import (
	"context"
	"errors"
	"io"
	"os"
	"sort"
	"testing"

	"github.com/clintjedwards/trampoline/internal/engine"
	"github.com/google/go-cmp/cmp"
)

// testOrchestrator connects to the local docker daemon. These tests exercise the
// real engine and are skipped unless explicitly requested.
func testOrchestrator(t *testing.T) *Orchestrator {
	t.Helper()

	if os.Getenv("TRAMPOLINE_TEST_DOCKER") == "" {
		t.Skip("set TRAMPOLINE_TEST_DOCKER to run tests against a local docker daemon")
	}

	orch, err := New(io.Discard, io.Discard)
	if err != nil {
		t.Fatal(err)
	}

	return orch
}

func TestRunContainerReportsExitCode(t *testing.T) {
	orch := testOrchestrator(t)

	err := orch.PullImage(context.Background(), engine.PullImageRequest{Image: "ubuntu:latest"})
	if err != nil {
		t.Fatal(err)
	}

	resp, err := orch.RunContainer(context.Background(), engine.RunContainerRequest{
		Name:    "trampoline_test_container",
		Image:   "ubuntu:latest",
		Command: []string{"sh", "-c", "exit 4"},
	})
	if err != nil {
		t.Fatal(err)
	}

	if resp.ExitCode != 4 {
		t.Fatalf("container reported incorrect exit code; should be %d; found %d", 4, resp.ExitCode)
	}
}

func TestPullImageNoSuchImage(t *testing.T) {
	orch := testOrchestrator(t)

	err := orch.PullImage(context.Background(), engine.PullImageRequest{
		Image: "trampoline/definitely-does-not-exist:latest",
	})
	if !errors.Is(err, engine.ErrNoSuchImage) {
		t.Fatalf("expected %v; got %v", engine.ErrNoSuchImage, err)
	}
}

func TestConvertEnvVars(t *testing.T) {
	output := convertEnvVars(map[string]string{
		"HOME": "/h",
		"USER": "someuser",
	})
	sort.Strings(output)

	expected := []string{"HOME=/h", "USER=someuser"}

	diff := cmp.Diff(expected, output)
	if diff != "" {
		t.Errorf("result is different than expected(-) vs result(+): %s", diff)
	}
}

func TestEncodeRegistryAuthNil(t *testing.T) {
	if encodeRegistryAuth(nil) != "" {
		t.Error("anonymous pulls should not carry an auth header")
	}
}
