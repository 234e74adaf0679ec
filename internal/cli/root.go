package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	configPath string
	storageDir string
	hostFlag   string
	outputJSON bool
	noProgress bool
	assumeYes  bool
	metricsOut string
	traceOut   string
)

// Execute runs the root cobra command.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "wrtools",
		Short:         "Manage Webrogue toolchain components",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&configPath, "config", "", "Path to config file (default: user config dir)")
	flags.StringVar(&storageDir, "storage", "", "Override the component storage directory")
	flags.BoolVar(&outputJSON, "json", false, "Output machine-readable JSON")
	flags.BoolVar(&noProgress, "no-progress", false, "Disable interactive progress output")
	flags.BoolVarP(&assumeYes, "yes", "y", false, "Answer yes to download prompts")
	flags.StringVar(&metricsOut, "metrics-out", "", "Write Prometheus metrics to this file on exit")
	flags.StringVar(&traceOut, "trace-out", "", "Write installer trace spans as JSON to this file")
	flags.StringVar(&hostFlag, "platform", "", "Resolve components for os/arch instead of the running host")
	_ = flags.MarkHidden("platform")

	cmd.AddCommand(newComponentsCmd())
	cmd.AddCommand(newCacheCmd())
	cmd.AddCommand(newKitsCmd())
	cmd.AddCommand(newDoctorCmd())
	cmd.AddCommand(newConfigCmd())

	return cmd
}
