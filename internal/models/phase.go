package models

import (
	"time"
)

// Phase is a step in the fixed trampoline cycle. Phases always execute in the
// order laid out below; a phase that does not apply to the current run is
// recorded as skipped rather than omitted.
type Phase string

const (
	PhaseEnvCheck Phase = "ENV_CHECK" // Validation of the required environment variables.
	PhaseAuth     Phase = "AUTH"      // Service account activation and registry credential setup.
	PhasePull     Phase = "PULL"      // Initial image pull; primes the local layer cache.
	PhaseBuild    Phase = "BUILD"     // Image build from the configured Dockerfile.
	PhaseRun      Phase = "RUN"       // Execution of the build command inside the container.
	PhasePush     Phase = "PUSH"      // Upload of the freshly built image back to the registry.
)

type PhaseStatus string

const (
	PhaseStatusSkipped PhaseStatus = "SKIPPED" // The phase did not apply to this run.
	PhaseStatusOK      PhaseStatus = "OK"      // The phase completed normally.
	PhaseStatusWarn    PhaseStatus = "WARN"    // The phase failed, but the failure is non-fatal.
	PhaseStatusFailed  PhaseStatus = "FAILED"  // The phase failed and aborted the run.
)

type PhaseResult struct {
	Phase    Phase         `json:"phase"`
	Status   PhaseStatus   `json:"status"`
	Duration time.Duration `json:"duration"`
	Detail   string        `json:"detail"` // Short human readable note about the outcome; may be empty.
}
