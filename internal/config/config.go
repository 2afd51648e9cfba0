package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-multierror"
	"github.com/hashicorp/hcl/v2/hclsimple"
	"github.com/kelseyhightower/envconfig"
)

// Trampoline defines the settings for a single bootstrap cycle. Everything here
// can be set through the environment; the rc file and env file exist so repos can
// check their settings in next to the code they belong to.
type Trampoline struct {
	// The fully qualified image reference to run the build inside of.
	// Ex: gcr.io/my-project/my-builder:latest
	Image string `hcl:"image,optional"`

	// Repo relative path to the script the container should execute. The leading
	// "github/<repo>/" prefix CI checkouts carry is stripped before the path is
	// handed to the container.
	BuildFile string `split_words:"true" hcl:"build_file,optional"`

	// Repo relative path to a Dockerfile. When set, the image is rebuilt from this
	// file every cycle instead of relying on the pulled image alone.
	ImageSource string `split_words:"true" hcl:"image_source,optional"`

	// Push the freshly built image back to the registry after a successful build.
	// Only the literal string "true" enables the push; anything else leaves it off.
	ImageUpload string `split_words:"true" hcl:"image_upload,optional"`

	// Absolute path inside the container where the repository is mounted.
	Workspace string `hcl:"workspace,optional"`

	// Host path of the repository to mount into the container. When empty the
	// nearest enclosing directory containing a .git entry is used, falling back to
	// the current working directory.
	ProjectRoot string `split_words:"true" hcl:"project_root,optional"`

	// Host path of the docker daemon socket shared with the container so the build
	// can itself run docker commands.
	DockerSocket string `split_words:"true" hcl:"docker_socket,optional"`

	// File name of the service account key expected inside the CI credential
	// directory.
	ServiceAccount string `split_words:"true" hcl:"service_account,optional"`

	// Directory CI populates with credentials and other run scoped files. A
	// non-empty value is what marks the current invocation as running under CI.
	GFileDir string `envconfig:"KOKORO_GFILE_DIR" hcl:"gfile_dir,optional"`

	// Resolve configuration and print the would-be container invocation without
	// touching docker or gcloud.
	DryRun bool `split_words:"true" hcl:"dry_run,optional"`

	// Log level affects the entire application's logs.
	LogLevel string `split_words:"true" hcl:"log_level,optional"`

	// Names of environment variables that must be non-empty before a run is
	// allowed to start. TRAMPOLINE_IMAGE and TRAMPOLINE_BUILD_FILE are always
	// required and don't need to be listed here.
	RequiredEnvVars []string `split_words:"true" hcl:"required_envvars,optional"`

	// Names of environment variables to mirror from the host into the container.
	// Variables that are empty on the host are silently dropped.
	PassDownEnvVars []string `split_words:"true" hcl:"pass_down_envvars,optional"`
}

func DefaultConfig() *Trampoline {
	return &Trampoline{
		Workspace:       "/workspace",
		DockerSocket:    "/var/run/docker.sock",
		ServiceAccount:  "trampoline-service-account.json",
		LogLevel:        "info",
		RequiredEnvVars: []string{},
		PassDownEnvVars: []string{},
	}
}

// FromEnv parses environment variables into the config object based on envconfig name
func (c *Trampoline) FromEnv() error {
	err := envconfig.Process("trampoline", c)
	if err != nil {
		return err
	}

	return nil
}

// FromBytes attempts to parse a given HCL configuration.
func (c *Trampoline) FromBytes(content []byte) error {
	err := hclsimple.Decode("config.hcl", content, nil, c)
	if err != nil {
		return err
	}

	return nil
}

func (c *Trampoline) FromFile(path string) error {
	err := hclsimple.DecodeFile(path, nil, c)
	if err != nil {
		return err
	}

	return nil
}

// UploadEnabled reports whether the post-run image push was requested. The
// affirmative value is the literal string "true" so that CI systems exporting
// empty or junk values never push by accident.
func (c *Trampoline) UploadEnabled() bool {
	return c.ImageUpload == "true"
}

// RunningInCI reports whether the current invocation is inside the CI system. The
// credential directory variable doubles as the indicator; local runs leave it
// unset and skip the credential dance entirely.
func (c *Trampoline) RunningInCI() bool {
	return c.GFileDir != ""
}

// Validate checks that every environment variable the run depends on is present.
// All missing variables are collected into a single error so the user can fix the
// whole set in one go instead of playing whack-a-mole.
func (c *Trampoline) Validate() error {
	var result *multierror.Error

	if c.Image == "" {
		result = multierror.Append(result, fmt.Errorf("required environment variable %q is empty", "TRAMPOLINE_IMAGE"))
	}

	if c.BuildFile == "" {
		result = multierror.Append(result, fmt.Errorf("required environment variable %q is empty", "TRAMPOLINE_BUILD_FILE"))
	}

	for _, name := range c.RequiredEnvVars {
		if name == "" {
			continue
		}

		if os.Getenv(name) == "" {
			result = multierror.Append(result, fmt.Errorf("environment variable %q is required by this repository but is empty", name))
		}
	}

	return result.ErrorOrNil()
}

// Get the final configuration for the run.
// This involves correctly finding and ordering different possible paths for the configuration file.
//
//  1. The function is intended to be called with paths gleaned from the -config flag
//  2. Then combine that with possible other config locations that the user might store a config file.
//  3. Then try to see if the user has set an envvar for the config file, which overrides
//     all previous config file paths.
//  4. Finally, pass back whatever is deemed the final config path from that process.
//
// We then use that path data to find the config file and read it in via HCL parsers. Once that is finished
// we then take any configuration from the environment and superimpose that on top of the final config struct.
//
// The env file is loaded before anything else so that both the rc file search and
// the environment pass observe its values. Variables already exported by the host
// always win over env file entries.
func InitConfig(flagPath, envFilePath string) (*Trampoline, error) {
	// First we initiate the default values for the config.
	config := DefaultConfig()

	err := loadEnvFile(envFilePath)
	if err != nil {
		return nil, err
	}

	path := searchFilePaths(possibleConfigPaths(flagPath)...)

	// envVars top all other entries so if its not empty we just insert it over the current path
	// regardless of if we found one.
	envPath := os.Getenv("TRAMPOLINE_CONFIG_PATH")
	if envPath != "" {
		path = envPath
	}

	if path != "" {
		err := config.FromFile(path)
		if err != nil {
			return nil, err
		}
	}

	err = config.FromEnv()
	if err != nil {
		return nil, err
	}

	if config.ProjectRoot == "" {
		config.ProjectRoot = discoverProjectRoot()
	}

	return config, nil
}

// discoverProjectRoot finds the host directory that should be mounted into the
// container. CI checkouts and humans alike almost always invoke the trampoline
// from somewhere inside the repository, so we walk upwards looking for the .git
// entry and settle for the current directory when there isn't one.
func discoverProjectRoot() string {
	cwd, err := os.Getwd()
	if err != nil {
		return "."
	}

	dir := cwd
	for {
		if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return cwd
		}
		dir = parent
	}
}
