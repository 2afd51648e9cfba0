// Package engine defines the interface in which a container engine must adhere to. The engine is the mechanism
// the trampoline uses to pull, build, run, and push the images that back a single bootstrap cycle.
package engine

import (
	"context"
	"errors"

	"github.com/clintjedwards/trampoline/internal/models"
)

// ErrNoSuchImage is returned when the requested container image could not be pulled.
var ErrNoSuchImage = errors.New("engine: image not found")

type PullImageRequest struct {
	Image string               // The image repository endpoint; tag can be included.
	Auth  *models.RegistryAuth // User/Pass for the image's registry; nil means anonymous.
}

type BuildImageRequest struct {
	Image      string            // The tag the freshly built image should carry.
	Dockerfile string            // Path of the Dockerfile relative to the context directory.
	ContextDir string            // Host directory used as the build context.
	BuildArgs  map[string]string // Plain key/values handed to the build as --build-arg equivalents.

	// Images whose layers may be reused by the build. Usually the previously pulled
	// copy of the image being rebuilt.
	CacheFrom []string
}

type RunContainerRequest struct {
	Name       string            // Unique name for the container so leftovers are findable by a human.
	Image      string            // The image the container runs.
	Command    []string          // Command to execute in place of the image default.
	EnvVars    map[string]string // Environment variables to be passed to the container.
	Binds      []string          // Host to container mounts in docker bind syntax.
	User       string            // uid:gid the containerized command runs as.
	WorkingDir string            // Directory the command starts in.
}

type RunContainerResponse struct {
	ExitCode int64 // Exit code of the container's command after it stopped.
}

type PushImageRequest struct {
	Image string               // The image reference to upload; tag can be included.
	Auth  *models.RegistryAuth // User/Pass for the image's registry; nil means anonymous.
}

type Engine interface {
	// PullImage fetches the image from its registry so its layers are available locally.
	PullImage(ctx context.Context, request PullImageRequest) error

	// BuildImage builds the image from a Dockerfile, streaming build output to the user as it goes.
	BuildImage(ctx context.Context, request BuildImageRequest) error

	// RunContainer runs the container to completion, streaming its output to the user, and reports
	// the exit code the containerized command finished with. The container is always cleaned up,
	// whatever the outcome.
	RunContainer(ctx context.Context, request RunContainerRequest) (response RunContainerResponse, err error)

	// PushImage uploads the image back to its registry.
	PushImage(ctx context.Context, request PushImageRequest) error
}
