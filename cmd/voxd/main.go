package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// GlobalFlags holds persistent flags shared by every subcommand.
type GlobalFlags struct {
	ConfigPath string
	APIUrl     string
	APITimeout time.Duration
}

// LaunchFlags holds engine launch parameters for start/restart.
type LaunchFlags struct {
	Host        string
	Port        int
	Voice       string
	AutoRestart bool
}

// LogsFlags holds flags for the logs command.
type LogsFlags struct {
	Lines int
}

// SpeakFlags holds flags for the speak command.
type SpeakFlags struct {
	Voice  string
	Speed  float64
	Format string
	Out    string
}

// ServeFlags holds flags for the serve command.
type ServeFlags struct {
	ConfigPath string
	NoEngine   bool
}

func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}
	launchFlags := &LaunchFlags{}
	logsFlags := &LogsFlags{}
	speakFlags := &SpeakFlags{}

	voxdCommand := command{global: globalFlags}

	root := createRootCommand(globalFlags)

	root.AddCommand(
		createServeCommand(globalFlags),
		createInstallCommand(voxdCommand),
		createStartCommand(voxdCommand, launchFlags),
		createStopCommand(voxdCommand),
		createRestartCommand(voxdCommand, launchFlags),
		createStatusCommand(voxdCommand),
		createLogsCommand(voxdCommand, logsFlags),
		createVoicesCommand(voxdCommand),
		createSpeakCommand(voxdCommand, speakFlags),
	)

	return root
}

// createRootCommand creates the root command with minimal persistent flags.
func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "voxd",
		Short: "Local text-to-speech engine supervisor",
		Long: `Voxd installs, supervises and monitors a local speech-synthesis engine
and exposes a loopback control API for client applications.

Examples:
  voxd serve                        # Start the daemon
  voxd install                      # Install the engine runtime
  voxd start --voice=af_heart       # Start the engine
  voxd status                       # Show engine status
  voxd speak "hello there" -o out.wav`,
	}

	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to TOML config file (optional)")
	root.PersistentFlags().StringVar(&flags.APIUrl, "api-url", "http://127.0.0.1:8900/api", "daemon control API URL")
	root.PersistentFlags().DurationVar(&flags.APITimeout, "api-timeout", 10*time.Second, "request timeout")

	return root
}

func createServeCommand(globalFlags *GlobalFlags) *cobra.Command {
	serveFlags := &ServeFlags{}

	cmd := &cobra.Command{
		Use:   "serve [config.toml]",
		Short: "Start the voxd daemon",
		Long: `Start the voxd daemon: install the engine runtime if needed, launch the
engine and serve the loopback control API.

Examples:
  voxd serve                        # Defaults, state under ~/.voxd
  voxd serve config.toml            # Start with a specific config file
  voxd serve --no-engine            # Control API only, engine started on demand`,
		RunE: func(cmd *cobra.Command, args []string) error {
			serveFlags.ConfigPath = globalFlags.ConfigPath
			if len(args) > 0 {
				serveFlags.ConfigPath = args[0]
			}
			return runServe(serveFlags)
		},
	}

	cmd.Flags().BoolVar(&serveFlags.NoEngine, "no-engine", false, "do not install/start the engine at daemon startup")

	return cmd
}

func createInstallCommand(voxdCommand command) *cobra.Command {
	return &cobra.Command{
		Use:   "install",
		Short: "Install or repair the engine runtime",
		Long: `Ask the daemon to provision the engine's Python environment via uv and
install the speech package. No-op when a compatible install already exists.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return voxdCommand.Install()
		},
	}
}

func createStartCommand(voxdCommand command, launchFlags *LaunchFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the speech engine",
		Long: `Start the supervised speech engine. Unset flags fall back to the daemon's
configured defaults.

Examples:
  voxd start
  voxd start --port=8001 --voice=af_bella`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return voxdCommand.Start(*launchFlags)
		},
	}
	addLaunchFlags(cmd, launchFlags)
	return cmd
}

func createStopCommand(voxdCommand command) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the speech engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			return voxdCommand.Stop()
		},
	}
}

func createRestartCommand(voxdCommand command, launchFlags *LaunchFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "restart",
		Short: "Restart the speech engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			return voxdCommand.Restart(*launchFlags)
		},
	}
	addLaunchFlags(cmd, launchFlags)
	return cmd
}

func createStatusCommand(voxdCommand command) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show engine status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return voxdCommand.Status()
		},
	}
}

func createLogsCommand(voxdCommand command, logsFlags *LogsFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show recent engine log lines",
		RunE: func(cmd *cobra.Command, args []string) error {
			return voxdCommand.Logs(*logsFlags)
		},
	}
	cmd.Flags().IntVarP(&logsFlags.Lines, "lines", "n", 50, "number of log lines to show")
	return cmd
}

func createVoicesCommand(voxdCommand command) *cobra.Command {
	return &cobra.Command{
		Use:   "voices",
		Short: "List voices offered by the running engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			return voxdCommand.Voices()
		},
	}
}

func createSpeakCommand(voxdCommand command, speakFlags *SpeakFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "speak [text]",
		Short: "Synthesize text to audio",
		Long: `Synthesize text through the running engine. Text is taken from the
arguments, or from stdin when no arguments are given.

Examples:
  voxd speak "hello there" -o hello.wav
  echo "from a pipe" | voxd speak -o out.wav`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return voxdCommand.Speak(*speakFlags, args)
		},
	}
	cmd.Flags().StringVar(&speakFlags.Voice, "voice", "", "voice to synthesize with (daemon default if empty)")
	cmd.Flags().Float64Var(&speakFlags.Speed, "speed", 0, "speech speed multiplier")
	cmd.Flags().StringVar(&speakFlags.Format, "format", "", "audio response format (e.g. wav, mp3)")
	cmd.Flags().StringVarP(&speakFlags.Out, "out", "o", "", "write audio to file instead of stdout")
	return cmd
}

func addLaunchFlags(cmd *cobra.Command, f *LaunchFlags) {
	cmd.Flags().StringVar(&f.Host, "host", "", "engine bind host (loopback only)")
	cmd.Flags().IntVar(&f.Port, "port", 0, "engine bind port")
	cmd.Flags().StringVar(&f.Voice, "voice", "", "default voice")
	cmd.Flags().BoolVar(&f.AutoRestart, "auto-restart", true, "restart the engine after crashes")
}
