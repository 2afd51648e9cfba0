// Package runner drives a single trampoline cycle through its fixed set of
// phases: check the environment, authenticate, pull, build, run, and push. The
// phases always execute in that order; phases that don't apply to the current
// cycle are recorded as skipped so the final report still tells the whole story.
package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/clintjedwards/trampoline/internal/config"
	"github.com/clintjedwards/trampoline/internal/engine"
	"github.com/clintjedwards/trampoline/internal/models"
	"github.com/rs/zerolog/log"
)

// Authenticator prepares registry credentials for cycles running inside CI.
type Authenticator interface {
	// Activate makes the CI service account the ambient identity for registry
	// operations.
	Activate(ctx context.Context) error

	// RegistryAuth returns credentials for engine calls that talk to the registry
	// directly.
	RegistryAuth() (*models.RegistryAuth, error)
}

// Used to keep track of a run as it progresses through the necessary phases.
type StateMachine struct {
	Config *config.Trampoline
	Engine engine.Engine
	Auth   Authenticator // nil outside CI; local credentials are the user's own problem.
	Run    *models.Run

	identity     hostIdentity
	registryAuth *models.RegistryAuth
}

func New(conf *config.Trampoline, eng engine.Engine, auth Authenticator) (*StateMachine, error) {
	identity, err := lookupHostIdentity()
	if err != nil {
		return nil, fmt.Errorf("could not resolve the invoking user: %w", err)
	}

	return &StateMachine{
		Config:   conf,
		Engine:   eng,
		Auth:     auth,
		identity: identity,
	}, nil
}

// Execute runs the full cycle and returns the run record. An error means the
// cycle aborted before the build command could finish; a non-zero exit code with
// a nil error means the build command itself failed and the caller should mirror
// that code.
func (r *StateMachine) Execute(ctx context.Context, args []string) (*models.Run, error) {
	run := models.NewRun(r.Config.Image)
	r.Run = run

	// The temporary workspace brackets the entire cycle, fallible phases included,
	// and is removed on every exit path.
	tempDir, err := os.MkdirTemp("", "trampoline-")
	if err != nil {
		run.Finish(models.RunStatusFailed, models.RunStatusReasonKindUnknown, err.Error())
		return run, fmt.Errorf("could not create temporary workspace: %w", err)
	}
	run.TempDir = tempDir
	defer func() {
		err := os.RemoveAll(tempDir)
		if err != nil {
			log.Error().Err(err).Str("dir", tempDir).Msg("could not remove temporary workspace")
		}
	}()

	err = r.checkEnvironment()
	if err != nil {
		return run, err
	}

	err = r.authenticate(ctx)
	if err != nil {
		return run, err
	}

	r.pullImage(ctx)

	err = r.buildImage(ctx)
	if err != nil {
		return run, err
	}

	err = r.runContainer(ctx, args)
	if err != nil {
		return run, err
	}

	// The cycle's outcome is the build command's outcome; everything after this
	// point is best effort and cannot change it.
	if run.ExitCode == 0 {
		log.Info().Int64("exit_code", run.ExitCode).Msg("build command succeeded")
	} else {
		log.Error().Int64("exit_code", run.ExitCode).Msg("build command failed")
	}

	r.pushImage(ctx)

	if run.ExitCode == 0 {
		run.Finish(models.RunStatusSuccessful, models.RunStatusReasonKindUnknown, "")
	} else {
		run.Finish(models.RunStatusFailed, models.RunStatusReasonKindAbnormalExit,
			fmt.Sprintf("build command exited with code %d", run.ExitCode))
	}

	return run, nil
}

func (r *StateMachine) recordPhase(phase models.Phase, status models.PhaseStatus, started time.Time, detail string) {
	duration := time.Duration(0)
	if !started.IsZero() {
		duration = time.Since(started)
	}

	r.Run.Phases = append(r.Run.Phases, models.PhaseResult{
		Phase:    phase,
		Status:   status,
		Duration: duration,
		Detail:   detail,
	})
}

// checkEnvironment verifies the run contract before anything talks to docker or
// gcloud; a misconfigured run should die holding an actionable error, not a
// docker one.
func (r *StateMachine) checkEnvironment() error {
	started := time.Now()

	err := r.Config.Validate()
	if err != nil {
		r.recordPhase(models.PhaseEnvCheck, models.PhaseStatusFailed, started, err.Error())
		r.Run.Finish(models.RunStatusFailed, models.RunStatusReasonKindFailedPrecondition, err.Error())
		return err
	}

	r.recordPhase(models.PhaseEnvCheck, models.PhaseStatusOK, started, "")
	return nil
}

// authenticate activates the CI service account and mints registry credentials.
// Outside CI the phase is skipped; inside CI a failure here is fatal since every
// later registry operation would just fail slower and stranger.
func (r *StateMachine) authenticate(ctx context.Context) error {
	if r.Auth == nil {
		r.recordPhase(models.PhaseAuth, models.PhaseStatusSkipped, time.Time{}, "not running inside CI")
		return nil
	}

	if r.Config.DryRun {
		r.recordPhase(models.PhaseAuth, models.PhaseStatusSkipped, time.Time{}, "dry run")
		return nil
	}

	started := time.Now()
	log.Info().Msg("activating CI service account")

	err := r.Auth.Activate(ctx)
	if err != nil {
		r.recordPhase(models.PhaseAuth, models.PhaseStatusFailed, started, err.Error())
		r.Run.Finish(models.RunStatusFailed, models.RunStatusReasonKindAuthFailure, err.Error())
		return err
	}

	registryAuth, err := r.Auth.RegistryAuth()
	if err != nil {
		r.recordPhase(models.PhaseAuth, models.PhaseStatusFailed, started, err.Error())
		r.Run.Finish(models.RunStatusFailed, models.RunStatusReasonKindAuthFailure, err.Error())
		return err
	}
	r.registryAuth = registryAuth

	r.recordPhase(models.PhaseAuth, models.PhaseStatusOK, started, "")
	return nil
}

// pullImage primes the local layer cache. A failed pull is not fatal on its own;
// a Dockerfile build can still produce the image from nothing. The cycle only
// aborts later if there is no Dockerfile to fall back on.
func (r *StateMachine) pullImage(ctx context.Context) {
	if r.Config.DryRun {
		r.recordPhase(models.PhasePull, models.PhaseStatusSkipped, time.Time{}, "dry run")
		return
	}

	started := time.Now()
	log.Info().Str("image", r.Config.Image).Msg("pulling image")

	err := r.Engine.PullImage(ctx, engine.PullImageRequest{
		Image: r.Config.Image,
		Auth:  r.registryAuth,
	})
	if err != nil {
		log.Warn().Err(err).Str("image", r.Config.Image).Msg("could not pull image; continuing without a layer cache")
		r.recordPhase(models.PhasePull, models.PhaseStatusWarn, started, err.Error())
		return
	}

	r.Run.HasCache = true
	r.recordPhase(models.PhasePull, models.PhaseStatusOK, started, "")
}

// buildImage rebuilds the image from the configured Dockerfile, reusing the
// pulled image's layers when the pull succeeded. With no Dockerfile configured
// the phase decides instead whether the cycle can continue at all.
func (r *StateMachine) buildImage(ctx context.Context) error {
	if r.Config.ImageSource == "" {
		if !r.Run.HasCache && !r.Config.DryRun {
			description := fmt.Sprintf("image '%s' could not be pulled and no Dockerfile is configured to build it from", r.Config.Image)
			r.recordPhase(models.PhaseBuild, models.PhaseStatusFailed, time.Time{}, description)
			r.Run.Finish(models.RunStatusFailed, models.RunStatusReasonKindNoSuchImage, description)
			return errors.New(description)
		}

		r.recordPhase(models.PhaseBuild, models.PhaseStatusSkipped, time.Time{}, "no image source configured")
		return nil
	}

	if r.Config.DryRun {
		r.recordPhase(models.PhaseBuild, models.PhaseStatusSkipped, time.Time{}, "dry run")
		return nil
	}

	started := time.Now()

	dockerfile := filepath.Join(r.Config.ProjectRoot, stripCheckoutPrefix(r.Config.ImageSource))
	_, err := os.Stat(dockerfile)
	if err != nil {
		description := fmt.Sprintf("image source '%s' is not readable: %v", dockerfile, err)
		r.recordPhase(models.PhaseBuild, models.PhaseStatusFailed, started, description)
		r.Run.Finish(models.RunStatusFailed, models.RunStatusReasonKindBuildFailed, description)
		return errors.New(description)
	}

	// Layers from the pulled copy are only offered to the build when the pull
	// actually produced them.
	cacheFrom := []string{}
	if r.Run.HasCache {
		cacheFrom = append(cacheFrom, r.Config.Image)
	}

	log.Info().Str("image", r.Config.Image).Str("dockerfile", dockerfile).Msg("building image")

	err = r.Engine.BuildImage(ctx, engine.BuildImageRequest{
		Image:      r.Config.Image,
		Dockerfile: filepath.Base(dockerfile),
		ContextDir: filepath.Dir(dockerfile),
		BuildArgs:  r.identity.buildArgs(),
		CacheFrom:  cacheFrom,
	})
	if err != nil {
		r.recordPhase(models.PhaseBuild, models.PhaseStatusFailed, started, err.Error())
		r.Run.Finish(models.RunStatusFailed, models.RunStatusReasonKindBuildFailed, err.Error())
		return err
	}

	r.Run.Built = true
	r.recordPhase(models.PhaseBuild, models.PhaseStatusOK, started, "")
	return nil
}

// runContainer executes the build command inside the container and captures its
// exit code. A non-zero exit code is a normal result, not an error; only the
// engine failing to run the container at all aborts the cycle.
func (r *StateMachine) runContainer(ctx context.Context, args []string) error {
	settings, err := r.runSettings(args)
	if err != nil {
		r.recordPhase(models.PhaseRun, models.PhaseStatusFailed, time.Time{}, err.Error())
		r.Run.Finish(models.RunStatusFailed, models.RunStatusReasonKindEngineError, err.Error())
		return err
	}

	if r.Config.DryRun {
		r.logPlan(settings)
		r.recordPhase(models.PhaseRun, models.PhaseStatusSkipped, time.Time{}, "dry run")
		return nil
	}

	started := time.Now()
	log.Info().Str("image", r.Config.Image).Strs("command", settings.command).Msg("running build command")

	resp, err := r.Engine.RunContainer(ctx, engine.RunContainerRequest{
		Name:       settings.name,
		Image:      r.Config.Image,
		Command:    settings.command,
		EnvVars:    settings.env,
		Binds:      settings.binds,
		User:       settings.user,
		WorkingDir: r.Config.Workspace,
	})
	if err != nil {
		r.recordPhase(models.PhaseRun, models.PhaseStatusFailed, started, err.Error())
		r.Run.Finish(models.RunStatusFailed, models.RunStatusReasonKindEngineError, err.Error())
		return fmt.Errorf("could not run build container: %w", err)
	}

	r.Run.ExitCode = resp.ExitCode

	if resp.ExitCode != 0 {
		r.recordPhase(models.PhaseRun, models.PhaseStatusFailed, started, fmt.Sprintf("exit code %d", resp.ExitCode))
		return nil
	}

	r.recordPhase(models.PhaseRun, models.PhaseStatusOK, started, "")
	return nil
}

// pushImage uploads the freshly built image so later cycles pull the updated
// layers. Strictly best effort: the push only happens for a rebuilt image after
// a clean build command, and a failed push never changes the cycle's outcome.
func (r *StateMachine) pushImage(ctx context.Context) {
	if r.Config.DryRun {
		r.recordPhase(models.PhasePush, models.PhaseStatusSkipped, time.Time{}, "dry run")
		return
	}

	if !r.Config.UploadEnabled() {
		r.recordPhase(models.PhasePush, models.PhaseStatusSkipped, time.Time{}, "upload disabled")
		return
	}

	if !r.Run.Built {
		r.recordPhase(models.PhasePush, models.PhaseStatusSkipped, time.Time{}, "image was not rebuilt this cycle")
		return
	}

	if r.Run.ExitCode != 0 {
		r.recordPhase(models.PhasePush, models.PhaseStatusSkipped, time.Time{}, "build command failed")
		return
	}

	started := time.Now()
	log.Info().Str("image", r.Config.Image).Msg("pushing image")

	err := r.Engine.PushImage(ctx, engine.PushImageRequest{
		Image: r.Config.Image,
		Auth:  r.registryAuth,
	})
	if err != nil {
		log.Error().Err(err).Str("image", r.Config.Image).Msg("could not push image; the build result is unaffected")
		r.recordPhase(models.PhasePush, models.PhaseStatusWarn, started, err.Error())
		return
	}

	r.Run.Pushed = true
	r.recordPhase(models.PhasePush, models.PhaseStatusOK, started, "")
}
