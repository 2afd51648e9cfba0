package docker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/clintjedwards/trampoline/internal/engine"
	"github.com/clintjedwards/trampoline/internal/models"
	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/registry"
	"github.com/docker/docker/api/types/strslice"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/archive"
	"github.com/docker/docker/pkg/jsonmessage"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/rs/zerolog/log"
	"golang.org/x/term"
)

// Orchestrator drives a local docker daemon. Image progress goes to errOut so
// that out carries nothing but the containerized command's own stdout; CI
// systems that capture stdout for artifacts depend on the two not mixing.
type Orchestrator struct {
	*client.Client
	out    io.Writer
	errOut io.Writer
}

const envvarFormat = "%s=%s"

func New(out, errOut io.Writer) (*Orchestrator, error) {
	docker, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, err
	}

	// Check connection to docker
	_, err = docker.Info(context.Background())
	if err != nil {
		return nil, fmt.Errorf("could not connect to docker; is docker installed?")
	}

	return &Orchestrator{
		Client: docker,
		out:    out,
		errOut: errOut,
	}, nil
}

func (orch *Orchestrator) PullImage(ctx context.Context, req engine.PullImageRequest) error {
	r, err := orch.ImagePull(ctx, req.Image, types.ImagePullOptions{
		RegistryAuth: encodeRegistryAuth(req.Auth),
	})
	if err != nil {
		if strings.Contains(err.Error(), "manifest unknown") || strings.Contains(err.Error(), "not found") {
			return fmt.Errorf("image '%s' not found or missing auth: %w", req.Image, engine.ErrNoSuchImage)
		}
		return err
	}
	defer r.Close()

	return orch.displayProgress(r)
}

func (orch *Orchestrator) BuildImage(ctx context.Context, req engine.BuildImageRequest) error {
	buildContext, err := archive.TarWithOptions(req.ContextDir, &archive.TarOptions{})
	if err != nil {
		return fmt.Errorf("could not package build context '%s': %w", req.ContextDir, err)
	}
	defer buildContext.Close()

	buildArgs := make(map[string]*string, len(req.BuildArgs))
	for key, value := range req.BuildArgs {
		value := value
		buildArgs[key] = &value
	}

	resp, err := orch.ImageBuild(ctx, buildContext, types.ImageBuildOptions{
		Tags:       []string{req.Image},
		Dockerfile: req.Dockerfile,
		BuildArgs:  buildArgs,
		CacheFrom:  req.CacheFrom,
		Remove:     true,
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	// The daemon reports build failures inside the progress stream, not in the
	// response; they surface here as a jsonmessage error.
	err = orch.displayProgress(resp.Body)
	if err != nil {
		return fmt.Errorf("could not build image '%s': %w", req.Image, err)
	}

	return nil
}

func (orch *Orchestrator) RunContainer(ctx context.Context, req engine.RunContainerRequest) (engine.RunContainerResponse, error) {
	containerConfig := &container.Config{
		Image:      req.Image,
		Cmd:        strslice.StrSlice(req.Command),
		Env:        convertEnvVars(req.EnvVars),
		User:       req.User,
		WorkingDir: req.WorkingDir,
	}

	hostConfig := &container.HostConfig{
		Binds: req.Binds,
	}

	removeOptions := types.ContainerRemoveOptions{
		RemoveVolumes: true,
		Force:         true,
	}

	// A previous cycle may have left a container with the same name behind.
	_ = orch.ContainerRemove(ctx, req.Name, removeOptions)

	createResp, err := orch.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, req.Name)
	if err != nil {
		return engine.RunContainerResponse{}, err
	}
	defer func() {
		// The request context may already be done by the time we clean up.
		err := orch.ContainerRemove(context.Background(), createResp.ID, removeOptions)
		if err != nil {
			log.Debug().Err(err).Str("container", req.Name).Msg("docker: could not remove container")
		}
	}()

	err = orch.ContainerStart(ctx, createResp.ID, types.ContainerStartOptions{})
	if err != nil {
		return engine.RunContainerResponse{}, err
	}

	logs, err := orch.ContainerLogs(ctx, createResp.ID, types.ContainerLogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     true,
	})
	if err != nil {
		return engine.RunContainerResponse{}, err
	}

	// De-multiplex the combined docker log stream back onto our own stdout/stderr
	// as it arrives. The channel close tells us the stream has drained so we never
	// report an exit code while output is still in flight.
	logsDone := make(chan struct{})
	go func() {
		defer close(logsDone)
		_, err := stdcopy.StdCopy(orch.out, orch.errOut, logs)
		if err != nil && !errors.Is(err, io.EOF) {
			log.Error().Err(err).Msg("docker: could not demultiplex/parse log stream")
		}
	}()

	waitCh, errCh := orch.ContainerWait(ctx, createResp.ID, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		return engine.RunContainerResponse{}, err
	case result := <-waitCh:
		<-logsDone

		if result.Error != nil {
			return engine.RunContainerResponse{ExitCode: result.StatusCode}, fmt.Errorf("container wait failed: %s", result.Error.Message)
		}

		return engine.RunContainerResponse{ExitCode: result.StatusCode}, nil
	}
}

func (orch *Orchestrator) PushImage(ctx context.Context, req engine.PushImageRequest) error {
	r, err := orch.ImagePush(ctx, req.Image, types.ImagePushOptions{
		RegistryAuth: encodeRegistryAuth(req.Auth),
	})
	if err != nil {
		return err
	}
	defer r.Close()

	// Push failures, like build failures, ride inside the progress stream.
	err = orch.displayProgress(r)
	if err != nil {
		return fmt.Errorf("could not push image '%s': %w", req.Image, err)
	}

	return nil
}

// displayProgress renders a docker progress stream onto errOut, upgrading to the
// interactive display when errOut is a terminal. An error embedded in the stream
// is returned as the error for the whole operation.
func (orch *Orchestrator) displayProgress(r io.Reader) error {
	fd, isTerminal := descriptor(orch.errOut)
	return jsonmessage.DisplayJSONMessagesStream(r, orch.errOut, fd, isTerminal, nil)
}

func descriptor(w io.Writer) (uintptr, bool) {
	file, ok := w.(*os.File)
	if !ok {
		return 0, false
	}

	return file.Fd(), term.IsTerminal(int(file.Fd()))
}

func encodeRegistryAuth(auth *models.RegistryAuth) string {
	if auth == nil {
		return ""
	}

	encoded, err := registry.EncodeAuthConfig(registry.AuthConfig{
		Username: auth.User,
		Password: auth.Pass,
	})
	if err != nil {
		log.Error().Err(err).Msg("docker: could not encode registry auth")
		return ""
	}

	return encoded
}

func convertEnvVars(envvars map[string]string) []string {
	output := []string{}
	for key, value := range envvars {
		output = append(output, fmt.Sprintf(envvarFormat, key, value))
	}

	return output
}
