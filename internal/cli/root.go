// Package cli controls the main user entry point into the trampoline. There are no
// subcommands; the root command is the trampoline itself and trailing arguments
// belong to the command that runs inside the container.
package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/clintjedwards/trampoline/internal/cli/cl"
	cliFmt "github.com/clintjedwards/trampoline/internal/cli/format"
	"github.com/clintjedwards/trampoline/internal/config"
	"github.com/clintjedwards/trampoline/internal/engine"
	"github.com/clintjedwards/trampoline/internal/engine/docker"
	"github.com/clintjedwards/trampoline/internal/gcloud"
	"github.com/clintjedwards/trampoline/internal/models"
	"github.com/clintjedwards/trampoline/internal/runner"
	"github.com/olekukonko/tablewriter"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var appVersion = "0.0.dev_000000"

// RootCmd is the base of the cli
var RootCmd = &cobra.Command{
	Use:   "trampoline [flags] [command...]",
	Short: "Trampoline bounces a CI build into a docker container.",
	Long: `Trampoline bounces a CI build into a docker container.

It pulls the configured image(optionally rebuilding it from a Dockerfile kept in the repository),
runs the build command inside that container with the repository mounted, mirrors the command's
exit code as its own, and can push the rebuilt image back to the registry for the next cycle to
pull.

Trailing arguments become the command run inside the container; without them the configured
build file is run instead.

### List of Environment Variables

` + strings.Join(config.GetEnvVars(), "\n"),
	Example: `$ trampoline
$ trampoline make test
$ trampoline --dry-run`,
	Version: " ", // We leave this added but empty so that the rootcmd will supply the -v flag
	Args:    cobra.ArbitraryArgs,
	PersistentPreRun: func(cmd *cobra.Command, _ []string) {
		cl.InitState(cmd)
	},
	RunE: trampolineRun,
}

func init() {
	RootCmd.SetVersionTemplate(humanizeVersion(appVersion))

	RootCmd.PersistentFlags().String("config", "", "trampoline configuration file path")
	RootCmd.PersistentFlags().String("env-file", "", "dotenv file loaded before configuration is resolved")
	RootCmd.PersistentFlags().Bool("dry-run", false, "resolve configuration and report the container invocation without running anything")
	RootCmd.PersistentFlags().Bool("detail", false, "show extra detail for some commands (ex. Exact time instead of humanized)")
	RootCmd.PersistentFlags().String("format", "", "output format; accepted values are 'pretty', 'json', 'silent'")
	RootCmd.PersistentFlags().Bool("no-color", false, "disable color output")

	// Everything after the first positional argument belongs to the container command,
	// flags included.
	RootCmd.Flags().SetInterspersed(false)
}

// Execute runs the root command.
func Execute() error {
	return RootCmd.Execute()
}

func trampolineRun(cmd *cobra.Command, args []string) error {
	cl.State.Fmt.Print("Resolving configuration")

	configPath, _ := cmd.Flags().GetString("config")
	envFile, _ := cmd.Flags().GetString("env-file")

	conf, err := config.InitConfig(configPath, envFile)
	if err != nil {
		cl.State.Fmt.PrintErr(fmt.Sprintf("could not resolve configuration: %v", err))
		cl.State.Fmt.Finish()
		return err
	}

	dryRun, _ := cmd.Flags().GetBool("dry-run")
	if dryRun {
		conf.DryRun = true
	}

	setupLogging(conf.LogLevel, cl.State.Config.NoColor)

	// Catch an unusable environment before we so much as connect to docker; the
	// state machine checks again as its first phase.
	err = conf.Validate()
	if err != nil {
		cl.State.Fmt.PrintErr(fmt.Sprintf("could not validate configuration: %v", err))
		cl.State.Fmt.Finish()
		return err
	}

	var eng engine.Engine
	if !conf.DryRun {
		dockerEngine, err := docker.New(os.Stdout, os.Stderr)
		if err != nil {
			cl.State.Fmt.PrintErr(fmt.Sprintf("could not connect to docker: %v", err))
			cl.State.Fmt.Finish()
			return err
		}
		eng = dockerEngine
	}

	// Leaving the authenticator as a true nil interface outside of CI is what tells
	// the state machine to skip the auth phase.
	var auth runner.Authenticator
	if conf.RunningInCI() {
		auth = gcloud.New(conf.GFileDir, conf.ServiceAccount)
	}

	machine, err := runner.New(conf, eng, auth)
	if err != nil {
		cl.State.Fmt.PrintErr(err)
		cl.State.Fmt.Finish()
		return err
	}

	// The container command owns stdout from here until the cycle finishes, so the
	// spinner has to go.
	cl.State.Fmt.Println(fmt.Sprintf("Bouncing into %s", conf.Image))
	cl.State.Fmt.Finish()

	run, runErr := machine.Execute(cmd.Context(), args)

	cl.State.NewFormatter()
	printReport(run)

	if runErr != nil {
		cl.State.Fmt.PrintErr(fmt.Sprintf("trampoline aborted: %v", runErr))
		cl.State.Fmt.Finish()
		return runErr
	}

	if run.ExitCode == 0 {
		cl.State.Fmt.PrintSuccess("Build command succeeded")
		cl.State.Fmt.Finish()
		return nil
	}

	cl.State.Fmt.PrintErr(fmt.Sprintf("Build command exited with code %d", run.ExitCode))
	cl.State.Fmt.Finish()

	// CI reads the build command's result straight off our exit code.
	os.Exit(int(run.ExitCode))
	return nil
}

func printReport(run *models.Run) {
	data := [][]string{}
	for _, phase := range run.Phases {
		data = append(data, []string{
			cliFmt.NormalizeEnumValue(phase.Phase, "Unknown"),
			cliFmt.PhaseStatus(phase.Status),
			cliFmt.PhaseDuration(phase.Duration),
			phase.Detail,
		})
	}

	cl.State.Fmt.Println(formatTable(data, !cl.State.Config.NoColor))
	cl.State.Fmt.Println(fmt.Sprintf("Run %s; started %s; took %s",
		cliFmt.RunStatus(run.Status),
		cliFmt.UnixMilli(run.Started, "Unknown", cl.State.Config.Detail),
		cliFmt.Duration(run.Started, run.Ended)))
}

func formatTable(data [][]string, color bool) string {
	tableString := &strings.Builder{}
	table := tablewriter.NewWriter(tableString)

	table.SetHeader([]string{"Phase", "Status", "Duration", "Detail"})
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(true)
	table.SetBorder(false)
	table.SetAutoFormatHeaders(false)
	table.SetRowSeparator("―")
	table.SetRowLine(false)
	table.SetColumnSeparator("")
	table.SetCenterSeparator("")

	if color {
		table.SetHeaderColor(
			tablewriter.Color(tablewriter.FgBlueColor),
			tablewriter.Color(tablewriter.FgBlueColor),
			tablewriter.Color(tablewriter.FgBlueColor),
			tablewriter.Color(tablewriter.FgBlueColor),
		)
		table.SetColumnColor(
			tablewriter.Color(tablewriter.FgYellowColor),
			tablewriter.Color(0),
			tablewriter.Color(0),
			tablewriter.Color(0),
		)
	}

	table.AppendBulk(data)

	table.Render()
	return tableString.String()
}

func setupLogging(loglevel string, noColor bool) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zerolog.SetGlobalLevel(parseLogLevel(loglevel))

	// Container output owns stdout; our own logging goes to stderr where CI log
	// scrapers expect it.
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, NoColor: noColor})
}

func parseLogLevel(loglevel string) zerolog.Level {
	switch loglevel {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	case "panic":
		return zerolog.PanicLevel
	default:
		log.Error().Msgf("loglevel %s not recognized; defaulting to debug", loglevel)
		return zerolog.DebugLevel
	}
}

func humanizeVersion(version string) string {
	semver, hash, err := strings.Cut(version, "_")
	if !err {
		return ""
	}
	return fmt.Sprintf("trampoline %s [%s]\n", semver, hash)
}
