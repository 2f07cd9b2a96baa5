package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/artpar/storedeploy/internal/shell/api"
	"github.com/artpar/storedeploy/internal/shell/backend"
	"github.com/artpar/storedeploy/internal/shell/images"
	"github.com/artpar/storedeploy/internal/shell/pipeline"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// progressBuffer is the capacity of the channel between the pipeline and
// the terminal printer.
const progressBuffer = 256

// =============================================================================
// Root
// =============================================================================

func newRootCommand() *cobra.Command {
	var configPath string
	a := &app{}

	root := &cobra.Command{
		Use:           "storedeploy",
		Short:         "Deploy a containerised online store to this machine or a server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// A missing .env file is fine.
			_ = godotenv.Load()

			cfg, err := LoadConfig(configPath)
			if err != nil {
				return &CommandError{Op: "load config", Err: err, ExitCode: ExitConfigError}
			}
			a.config = cfg
			a.logger = SetupLogger(cfg, cmd.ErrOrStderr())
			return nil
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config file")

	root.AddCommand(
		newDeployCommand(a),
		newScanCommand(a),
		newCheckCommand(a),
		newServeCommand(a),
		newVersionCommand(),
	)
	return root
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// =============================================================================
// Deploy
// =============================================================================

func newDeployCommand(a *app) *cobra.Command {
	var storeFile string

	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Deploy a store described by a JSON or YAML file",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := loadStore(storeFile)
			if err != nil {
				return &CommandError{Op: "deploy", Err: err, ExitCode: ExitConfigError}
			}

			opts, release, err := a.pipelineOptions(nil)
			if err != nil {
				return &CommandError{Op: "docker client", Err: err, ExitCode: ExitConfigError}
			}
			defer release()

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			out := cmd.OutOrStdout()
			sink := pipeline.NewChannelSink(progressBuffer)
			printed := make(chan struct{})
			go func() {
				newProgressPrinter(out).Drain(sink.Events())
				close(printed)
			}()

			result, err := pipeline.New(opts).Run(ctx, store, pipeline.MultiSink(sink, pipeline.LogSink(a.logger)))
			sink.Close()
			<-printed

			if n := sink.Dropped(); n > 0 {
				a.logger.Warn("progress events dropped", "count", n)
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(out, renderResult(result))
			return nil
		},
	}
	cmd.Flags().StringVarP(&storeFile, "file", "f", "store.yaml", "store description (JSON or YAML)")
	return cmd
}

// =============================================================================
// Scan
// =============================================================================

func newScanCommand(a *app) *cobra.Command {
	var storeFile string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "scan [directory]",
		Short: "Compare an image directory with the product catalog",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := loadStore(storeFile)
			if err != nil {
				return &CommandError{Op: "scan", Err: err, ExitCode: ExitConfigError}
			}
			dir := store.ImagesDirectory
			if len(args) == 1 {
				dir = args[0]
			}
			if dir == "" {
				return &CommandError{Op: "scan", Err: fmt.Errorf("no image directory given"), ExitCode: ExitConfigError}
			}

			report, err := images.ReconcileDir(dir, store.Products)
			if err != nil {
				return &CommandError{Op: "scan", Err: err, ExitCode: ExitDeployError}
			}

			out := cmd.OutOrStdout()
			summary := pipeline.Summarize(report)
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(api.ScanImagesResponse{ReconciliationReport: report, Summary: summary})
			}
			fmt.Fprint(out, renderReport(report, summary))
			return nil
		},
	}
	cmd.Flags().StringVarP(&storeFile, "file", "f", "store.yaml", "store description holding the catalog")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
	return cmd
}

// =============================================================================
// Check
// =============================================================================

func newCheckCommand(a *app) *cobra.Command {
	var port int
	var user string

	cmd := &cobra.Command{
		Use:   "check <host>",
		Short: "Connect to a server and check its container runtime",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			checker := api.RemoteChecker(a.config.SSH.Remote(), a.logger)
			report, err := checker(ctx, api.CheckServerRequest{Host: args[0], Port: port, User: user})
			if err != nil {
				return &CommandError{Op: "check " + args[0], Err: err, ExitCode: ExitConnectionError}
			}

			fmt.Fprint(cmd.OutOrStdout(), renderServer(report))
			if !report.Ready() {
				return &CommandError{Op: "check " + args[0], Err: fmt.Errorf("container runtime not ready"), ExitCode: ExitDeployError}
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, fmt.Sprintf("SSH port (default %d)", backend.DefaultSSHPort))
	cmd.Flags().StringVar(&user, "user", "", fmt.Sprintf("SSH user (default %s)", backend.DefaultSSHUser))
	return cmd
}

// =============================================================================
// Version
// =============================================================================

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and exit",
		// Needs no config.
		PersistentPreRun: func(*cobra.Command, []string) {},
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "storedeploy %s (built %s)\n", Version, BuildTime)
		},
	}
}
