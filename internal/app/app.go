// Package app wires the monctl process together: configuration
// layering, the command-line surface, controller session setup, and the
// translation of every outcome into a process exit code.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/danmuck/monctl/internal/commands"
	"github.com/danmuck/monctl/internal/config"
	"github.com/danmuck/monctl/internal/controller"
	"github.com/danmuck/monctl/internal/logging"
)

// errVersion short-circuits the run after printing the version.
var errVersion = errors.New("version requested")

// exitError carries a decided exit code out of a cobra hook. The
// diagnostic is already logged by the time one is returned.
type exitError struct {
	code int
}

func (e exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

// App is one process run. Streams are swappable for tests.
type App struct {
	version string
	stdout  io.Writer
	stderr  io.Writer
	stdin   io.Reader

	settings *config.Settings
	flags    config.Flags
	exit     int
}

func New(version string) *App {
	return &App{
		version: version,
		stdout:  os.Stdout,
		stderr:  os.Stderr,
		stdin:   os.Stdin,
	}
}

// Run executes one invocation and returns the process exit code. The
// sequence is fixed: seed settings from the environment, parse the
// command line, finalize the layering, short-circuit on --version,
// configure logging, then hand off to the selected command. An operator
// interrupt anywhere along the way counts as success.
func (a *App) Run(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a.settings = config.New()
	a.settings.UpdateFromEnv()
	a.exit = 0

	root := a.newRootCommand()
	root.SetArgs(args)
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)

	err := root.ExecuteContext(ctx)
	if err == nil {
		if ctx.Err() != nil {
			return 0
		}
		return a.exit
	}
	if errors.Is(err, errVersion) {
		return 0
	}
	var ee exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	// Anything else is a command-line usage problem reported by the
	// parser itself.
	fmt.Fprintf(a.stderr, "monctl: %v\n", err)
	return 1
}

func (a *App) newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "monctl",
		Short:         "Management client for a Sentinel monitoring cluster",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.finalize()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			log.Error().Msg("no command given, see --help")
			return exitError{code: 1}
		},
	}

	defaultConfigFile := os.Getenv(config.EnvConfigFile)
	if defaultConfigFile == "" {
		defaultConfigFile = config.DefaultConfigFile
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&a.flags.ConfigFile, "configfile", "c", defaultConfigFile,
		"Path to monctl config file")
	pf.StringVar(&a.flags.Controller, "controller", "",
		"Address and port of the controller, either of which may be omitted")
	pf.StringArrayVar(&a.flags.Sets, "set", nil,
		"Adjust a configuration setting (section.key=value), repeatable")
	pf.CountVarP(&a.flags.Verbose, "verbose", "v",
		"Increase informational output on stderr, repeatable")
	pf.BoolVarP(&a.flags.Quiet, "quiet", "q", false,
		"Suppress informational output on stderr")
	pf.BoolVar(&a.flags.ShowVersion, "version", false,
		"Show version number and exit")
	root.MarkFlagsMutuallyExclusive("verbose", "quiet")

	root.AddCommand(
		a.newGetConfigCommand(),
		a.newGetIDValueCommand(),
		a.newGetInstancesCommand(),
		a.newGetNodesCommand(),
		a.newDeployCommand(),
		a.newMonitorCommand(),
		a.newShowSettingsCommand(),
		a.newTestTimeoutCommand(),
	)
	return root
}

// finalize completes the configuration layering and the version and
// logging steps that precede any command work.
func (a *App) finalize() error {
	if err := a.settings.UpdateFromFile(a.flags.ConfigFile); err != nil {
		log.Error().Msgf("%v", err)
		return exitError{code: 1}
	}
	a.settings.UpdateFromEnv()
	if err := a.settings.UpdateFromFlags(&a.flags); err != nil {
		log.Error().Msgf("%v", err)
		return exitError{code: 1}
	}

	if a.flags.ShowVersion {
		fmt.Fprintln(a.stdout, a.version)
		return errVersion
	}

	verbosity, _ := a.settings.GetInt("client", "verbosity")
	logging.Configure(logging.Options{
		Verbosity: verbosity,
		Quiet:     a.settings.GetBool("client", "quiet"),
		Rich:      a.settings.GetBool("client", "rich_logging_format"),
	})
	return nil
}

// withController resolves the controller address, performs the single
// connect attempt, and runs the handler. The handler's return value
// becomes the exit code, except that an interrupt always means 0.
func (a *App) withController(cmd *cobra.Command, handler func(ctx context.Context, ctl commands.Controller) int) error {
	ctx := cmd.Context()

	defPort, _ := a.settings.GetInt("controller", "port")
	host, port, err := config.ResolveAddr(a.flags.Controller,
		a.settings.Get("controller", "host"), defPort)
	if err != nil {
		log.Error().Msgf("cannot resolve controller address: %v", err)
		return exitError{code: 1}
	}

	tlsCfg, err := controller.BuildTLSConfig(controller.TLSSettings{
		Enabled:       a.settings.GetBool("ssl", "enabled"),
		ValidateCerts: a.settings.GetBool("ssl", "validate_certs"),
		CAFile:        a.settings.Get("ssl", "cafile"),
		CertFile:      a.settings.Get("ssl", "certfile"),
		KeyFile:       a.settings.Get("ssl", "keyfile"),
	})
	if err != nil {
		log.Error().Msgf("cannot set up TLS: %v", err)
		return exitError{code: 1}
	}

	connectSecs, _ := a.settings.GetInt("client", "connect_timeout_secs")
	requestSecs, _ := a.settings.GetInt("client", "request_timeout_secs")
	ctl := controller.New(host, port, controller.Config{
		Topic:          a.settings.Get("controller", "topic"),
		ConnectTimeout: time.Duration(connectSecs) * time.Second,
		RequestTimeout: time.Duration(requestSecs) * time.Second,
		TLS:            tlsCfg,
	})
	defer ctl.Close()

	if !ctl.Connect(ctx) {
		if ctx.Err() != nil {
			return nil
		}
		return exitError{code: 1}
	}

	code := handler(ctx, ctl)
	if ctx.Err() != nil {
		code = 0
	}
	a.exit = code
	return nil
}

func (a *App) newGetConfigCommand() *cobra.Command {
	var opts commands.GetConfigOptions
	cmd := &cobra.Command{
		Use:   "get-config",
		Short: "Retrieve the deployed cluster configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withController(cmd, func(ctx context.Context, ctl commands.Controller) int {
				return commands.GetConfig(ctx, ctl, a.settings, a.stdout, opts)
			})
		},
	}
	cmd.Flags().StringVarP(&opts.Filename, "filename", "f", "-",
		"Output file for the configuration, default stdout")
	cmd.Flags().BoolVar(&opts.AsJSON, "as-json", false,
		"Report in JSON instead of a TOML config file")
	return cmd
}

func (a *App) newGetIDValueCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get-id-value IDENTIFIER [NODES...]",
		Short: "Show the value of an identifier on cluster nodes",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := commands.GetIDValueOptions{ID: args[0], Nodes: args[1:]}
			return a.withController(cmd, func(ctx context.Context, ctl commands.Controller) int {
				return commands.GetIDValue(ctx, ctl, a.settings, a.stdout, opts)
			})
		},
	}
}

func (a *App) newGetInstancesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get-instances",
		Short: "Show instances connected to the controller",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withController(cmd, func(ctx context.Context, ctl commands.Controller) int {
				return commands.GetInstances(ctx, ctl, a.settings, a.stdout)
			})
		},
	}
}

func (a *App) newGetNodesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get-nodes",
		Short: "Show active nodes on each instance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withController(cmd, func(ctx context.Context, ctl commands.Controller) int {
				return commands.GetNodes(ctx, ctl, a.settings, a.stdout)
			})
		},
	}
}

func (a *App) newDeployCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "deploy FILE",
		Aliases: []string{"set-config"},
		Short:   "Deploy a cluster configuration, \"-\" reads stdin",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := commands.DeployOptions{Path: args[0], Stdin: a.stdin}
			return a.withController(cmd, func(ctx context.Context, ctl commands.Controller) int {
				return commands.Deploy(ctx, ctl, a.settings, a.stdout, opts)
			})
		},
	}
}

func (a *App) newMonitorCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "monitor",
		Short: "For troubleshooting: report everything the controller topic carries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withController(cmd, func(ctx context.Context, ctl commands.Controller) int {
				return commands.Monitor(ctx, ctl, a.stdout)
			})
		},
	}
}

func (a *App) newShowSettingsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show-settings",
		Short: "Show monctl's own fully resolved configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a.exit = commands.ShowSettings(a.settings, a.stdout)
			return nil
		},
	}
}

func (a *App) newTestTimeoutCommand() *cobra.Command {
	var opts commands.TestTimeoutOptions
	cmd := &cobra.Command{
		Use:   "test-timeout",
		Short: "Send a timeout test event",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withController(cmd, func(ctx context.Context, ctl commands.Controller) int {
				return commands.TestTimeout(ctx, ctl, a.settings, a.stdout, opts)
			})
		},
	}
	cmd.Flags().BoolVar(&opts.WithState, "with-state", false,
		"Make the request stateful in the controller")
	return cmd
}
