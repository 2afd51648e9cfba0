package models

import (
	"time"
)

type RunStatus string

const (
	// Could not determine the final status of the run. Should only be in this state if
	// the run has not yet completed.
	RunStatusUnknown    RunStatus = "UNKNOWN"
	RunStatusFailed     RunStatus = "FAILED"     // The run aborted early or the build command exited non-zero.
	RunStatusSuccessful RunStatus = "SUCCESSFUL" // The build command completed with a zero exit code.
)

type RunStatusReasonKind string

const (
	// The run got into this state in a way we don't understand.
	RunStatusReasonKindUnknown RunStatusReasonKind = "UNKNOWN"
	// The build command inside the container exited with an abnormal exit code.
	RunStatusReasonKindAbnormalExit RunStatusReasonKind = "ABNORMAL_EXIT"
	// The run could not start because one or more required environment variables were empty.
	RunStatusReasonKindFailedPrecondition RunStatusReasonKind = "FAILED_PRECONDITION"
	// CI credentials were present but could not be activated.
	RunStatusReasonKindAuthFailure RunStatusReasonKind = "AUTH_FAILURE"
	// The image could not be pulled and no Dockerfile was configured to build it from.
	RunStatusReasonKindNoSuchImage RunStatusReasonKind = "NO_SUCH_IMAGE"
	// The image build from the configured Dockerfile failed.
	RunStatusReasonKindBuildFailed RunStatusReasonKind = "BUILD_FAILED"
	// The container engine could not execute the build container at all.
	RunStatusReasonKindEngineError RunStatusReasonKind = "ENGINE_ERROR"
)

type RunStatusReason struct {
	Reason      RunStatusReasonKind `json:"kind"`        // The specific type of run failure. Good for documentation about what it might be.
	Description string              `json:"description"` // The description of why the run might have failed.
}

// A run is a single trampoline cycle: resolve the environment, obtain the build
// image, execute the build command inside it, and optionally push the image back
// to the registry. Runs are in-memory records; they live for exactly one
// invocation and are surfaced to the user as the final report.
type Run struct {
	Image        string           `json:"image"`         // The image reference pulled, built, run, and possibly pushed this cycle.
	TempDir      string           `json:"temp_dir"`      // Scoped temporary workspace. Removed on every exit path.
	HasCache     bool             `json:"has_cache"`     // Whether the initial pull primed a local layer cache.
	Built        bool             `json:"built"`         // Whether the image was freshly built from a Dockerfile.
	Pushed       bool             `json:"pushed"`        // Whether the image was pushed back to the registry.
	ExitCode     int64            `json:"exit_code"`     // Exit code of the containerized build command; mirrored as the process exit code.
	Status       RunStatus        `json:"status"`        // The final status of the run.
	StatusReason *RunStatusReason `json:"status_reason"` // Contains more information about a run's status; set when the run failed.
	Phases       []PhaseResult    `json:"phases"`        // Outcome of each phase, in execution order.
	Started      int64            `json:"started"`       // Time of run start in epoch milli.
	Ended        int64            `json:"ended"`         // Time of run finish in epoch milli.
}

func NewRun(image string) *Run {
	return &Run{
		Image:        image,
		Status:       RunStatusUnknown,
		StatusReason: nil,
		Started:      time.Now().UnixMilli(),
		Ended:        0,
	}
}

// Finish marks the run complete. The status reason is only recorded for
// non-successful runs.
func (r *Run) Finish(status RunStatus, reason RunStatusReasonKind, description string) {
	r.Status = status
	r.Ended = time.Now().UnixMilli()

	if status == RunStatusSuccessful {
		return
	}

	r.StatusReason = &RunStatusReason{
		Reason:      reason,
		Description: description,
	}
}
