// Command pdftask assembles, splits, watermarks and signs PDF documents.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wudi/pdftask/config"
	"github.com/wudi/pdftask/observability"
	"github.com/wudi/pdftask/organize"
)

// exitUsage follows sysexits EX_USAGE.
const exitUsage = 64

// app carries what every subcommand needs once the root has run.
type app struct {
	configPath string
	logLevel   string
	logFormat  string
	trace      bool

	cfg    *config.Config
	logger *observability.ZapLogger
	svc    *organize.Service
}

func newRootCmd() (*cobra.Command, *app) {
	a := &app{}
	root := &cobra.Command{
		Use:   "pdftask",
		Short: "Assemble PDF documents from page selections",
		Long: `pdftask builds new PDF documents out of pages of existing ones.

The organize command takes a task string of comma separated actions
  index:startPage-length#rotation
where index selects a source file, startPage is 1-based and rotation is one
of 0, 90, -90 or 180. The other commands are shortcuts for common tasks.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return fmt.Errorf("%w: %v", errUsage, err)
	})
	flags := root.PersistentFlags()
	flags.StringVarP(&a.configPath, "config", "c", "", "YAML configuration file")
	flags.StringVar(&a.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flags.StringVar(&a.logFormat, "log-format", "", "Log format (console, json)")
	flags.BoolVar(&a.trace, "trace", false, "Log the duration of every task stage")

	root.AddCommand(
		a.organizeCmd(),
		a.mergeCmd(),
		a.splitCmd(),
		a.sortCmd(),
		a.deleteCmd(),
		a.rotateCmd(),
		a.watermarkCmd(),
		a.signCmd(),
		a.removeImagesCmd(),
		a.extractImagesCmd(),
		a.infoCmd(),
	)
	return root, a
}

func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}
	if a.logFormat != "" {
		cfg.Logging.Format = a.logFormat
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger, err := observability.NewZapFromLevel(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	var opts []organize.Option
	if a.trace {
		opts = append(opts, organize.WithTracer(observability.LogTracer(logger)))
	}
	a.cfg = cfg
	a.logger = logger
	a.svc = organize.NewService(cfg, logger, opts...)
	return nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root, _ := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	err := root.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	if errors.Is(err, errUsage) {
		fmt.Fprintln(stderr, err)
		return exitUsage
	}
	category := organize.Classify(err)
	fmt.Fprintf(stderr, "pdftask: %s error: %v\n", category, err)
	return category.ExitCode()
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
