package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	// Uncomment to load all auth plugins
	// _ "k8s.io/client-go/plugin/pkg/client/auth"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tless/tless-bench/pkg/environment"
	"github.com/tless/tless-bench/pkg/log"
	"github.com/tless/tless-bench/pkg/types"
)

var (
	debug      bool
	configFile string
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "tless-bench",
		Short:         "Latency benchmarks for serverless workflows",
		Long:          "Deploys workflows on a Knative cluster under each isolation baseline and records their end-to-end latency",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			log.Configure(debug)
		},
	}
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "path of the YAML configuration file")

	rootCmd.AddCommand(newEvalCmd())
	rootCmd.AddCommand(newS3Cmd())
	return rootCmd
}

// loadDetails resolves the run configuration. bind lets a command map its
// flags onto configuration keys before they are read.
func loadDetails(bind func(v *viper.Viper) error) (*types.ExperimentDetails, error) {
	v, err := environment.New(configFile)
	if err != nil {
		return nil, err
	}
	if bind != nil {
		if err := bind(v); err != nil {
			return nil, err
		}
	}
	experimentsDetails := &types.ExperimentDetails{}
	if err := environment.GetENV(v, experimentsDetails); err != nil {
		return nil, err
	}
	return experimentsDetails, nil
}
