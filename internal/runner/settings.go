package runner

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
)

const (
	// Fixed paths inside the container. The host sides of these mounts live under
	// the run's temporary workspace or come from config.
	containerHome     = "/h"
	containerGFileDir = "/gfile"
	containerSocket   = "/var/run/docker.sock"

	// CI checkouts nest the repository under github/<checkout dir>/ while we mount
	// the repository itself at the workspace root.
	checkoutPrefix = "github/"
)

type runSettings struct {
	name    string
	command []string
	env     map[string]string
	binds   []string
	user    string
}

// runSettings assembles everything the engine needs to run the build container.
// Host-side support directories all live under the run's temporary workspace so
// they disappear with it.
func (r *StateMachine) runSettings(args []string) (runSettings, error) {
	homeDir := filepath.Join(r.Run.TempDir, "home")
	err := os.MkdirAll(homeDir, 0o755)
	if err != nil {
		return runSettings{}, fmt.Errorf("could not create scratch home directory: %w", err)
	}

	// Local runs have no CI credential directory; mount an empty stand-in so build
	// scripts can rely on the path existing either way.
	gfileDir := r.Config.GFileDir
	if gfileDir == "" {
		gfileDir = filepath.Join(r.Run.TempDir, "gfile")
		err := os.MkdirAll(gfileDir, 0o755)
		if err != nil {
			return runSettings{}, fmt.Errorf("could not create stand-in credential directory: %w", err)
		}
	}

	env := map[string]string{
		"HOME":             containerHome,
		"USER":             r.identity.Username,
		"KOKORO_GFILE_DIR": containerGFileDir,
	}

	// Only explicitly allow-listed variables cross into the container, and empty
	// ones are dropped so the build script's own defaulting still works.
	for _, name := range r.Config.PassDownEnvVars {
		value := os.Getenv(name)
		if value == "" {
			continue
		}

		env[name] = value
	}

	binds := []string{
		fmt.Sprintf("%s:%s", r.Config.ProjectRoot, r.Config.Workspace),
		fmt.Sprintf("%s:%s", homeDir, containerHome),
		fmt.Sprintf("%s:%s", gfileDir, containerGFileDir),
		fmt.Sprintf("%s:%s", r.Config.DockerSocket, containerSocket),
		"/tmp:/tmp",
	}

	return runSettings{
		// The workspace directory name carries a unique suffix already, which makes
		// any leftover container traceable to its invocation.
		name:    filepath.Base(r.Run.TempDir),
		command: containerCommand(args, r.Config.BuildFile),
		env:     env,
		binds:   binds,
		user:    fmt.Sprintf("%s:%s", r.identity.UID, r.identity.DockerGID),
	}, nil
}

// containerCommand picks what executes inside the container. Trailing command
// line arguments win outright; otherwise the configured build file runs.
func containerCommand(args []string, buildFile string) []string {
	if len(args) > 0 {
		return args
	}

	return []string{stripCheckoutPrefix(buildFile)}
}

// stripCheckoutPrefix removes the github/<checkout dir>/ layer from CI job
// paths. Paths without the full prefix pass through untouched.
func stripCheckoutPrefix(path string) string {
	rest, found := strings.CutPrefix(path, checkoutPrefix)
	if !found {
		return path
	}

	_, after, found := strings.Cut(rest, "/")
	if !found {
		return path
	}

	return after
}

// logPlan prints the would-be container invocation for dry runs. Environment
// variable names are logged but never their values; the pass-down list routinely
// carries credentials.
func (r *StateMachine) logPlan(settings runSettings) {
	envNames := make([]string, 0, len(settings.env))
	for name := range settings.env {
		envNames = append(envNames, name)
	}
	sort.Strings(envNames)

	log.Info().
		Str("image", r.Config.Image).
		Strs("command", settings.command).
		Str("user", settings.user).
		Str("workdir", r.Config.Workspace).
		Strs("binds", settings.binds).
		Strs("env", envNames).
		Bool("upload", r.Config.UploadEnabled()).
		Msg("dry run; this is the container invocation that would have executed")
}

// hostIdentity describes the invoking user the way the container needs to see
// it. The build container runs with the host uid so files written into the
// mounted repository stay editable by the user, and with the docker group's gid
// so the mounted daemon socket stays usable.
type hostIdentity struct {
	UID       string
	GID       string
	Username  string
	DockerGID string
}

func (identity hostIdentity) buildArgs() map[string]string {
	return map[string]string{
		"UID":        identity.UID,
		"GID":        identity.GID,
		"USERNAME":   identity.Username,
		"DOCKER_GID": identity.DockerGID,
	}
}

func lookupHostIdentity() (hostIdentity, error) {
	current, err := user.Current()
	if err != nil {
		return hostIdentity{}, err
	}

	identity := hostIdentity{
		UID:       current.Uid,
		GID:       current.Gid,
		Username:  current.Username,
		DockerGID: current.Gid,
	}

	group, err := user.LookupGroup("docker")
	if err != nil {
		log.Debug().Msg("no docker group on this host; using the user's primary gid for the container")
		return identity, nil
	}
	identity.DockerGID = group.Gid

	return identity, nil
}
