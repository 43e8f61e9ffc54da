package main

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	e2eLatency "github.com/tless/tless-bench/experiments/e2e-latency/experiment"
	"github.com/tless/tless-bench/pkg/cerrors"
	"github.com/tless/tless-bench/pkg/clients"
	"github.com/tless/tless-bench/pkg/log"
	"github.com/tless/tless-bench/pkg/telemetry"
	"github.com/tless/tless-bench/pkg/types"
)

func newEvalCmd() *cobra.Command {
	evalCmd := &cobra.Command{
		Use:   "eval",
		Short: "Run evaluation experiments",
	}

	e2eCmd := &cobra.Command{
		Use:   "e2e-latency",
		Short: "Trigger-to-completion latency of every workflow",
	}

	var baselineNames []string
	runCmd := &cobra.Command{
		Use:     "run",
		Short:   "Run the end-to-end latency experiment",
		Args:    cobra.NoArgs,
		Example: "tless-bench eval e2e-latency run --baseline knative --baseline cc-knative --num-repeats 3",
		RunE: func(cmd *cobra.Command, args []string) error {
			baselines, err := parseBaselines(baselineNames)
			if err != nil {
				log.Errorf("Unable to parse the baselines, err: %v", err)
				return err
			}
			experimentsDetails, err := loadDetails(func(v *viper.Viper) error {
				if err := v.BindPFlag("eval.num_repeats", cmd.Flags().Lookup("num-repeats")); err != nil {
					return err
				}
				return v.BindPFlag("eval.num_warmup_repeats", cmd.Flags().Lookup("num-warmup-repeats"))
			})
			if err != nil {
				log.Errorf("Unable to load the configuration, err: %v", err)
				return err
			}
			return runE2ELatency(cmd.Context(), cmd, experimentsDetails, baselines)
		},
	}
	runCmd.Flags().StringArrayVar(&baselineNames, "baseline", nil, "baseline to run, repeat the flag for several")
	runCmd.Flags().Int("num-repeats", 3, "number of measured repeats per workflow")
	runCmd.Flags().Int("num-warmup-repeats", 0, "number of discarded repeats before measuring")
	_ = runCmd.MarkFlagRequired("baseline")

	e2eCmd.AddCommand(runCmd)
	evalCmd.AddCommand(e2eCmd)
	return evalCmd
}

func parseBaselines(names []string) ([]types.Baseline, error) {
	baselines := []types.Baseline{}
	for _, name := range names {
		b, err := types.ParseBaseline(name)
		if err != nil {
			return nil, cerrors.Configuration(err.Error())
		}
		baselines = append(baselines, b)
	}
	return baselines, nil
}

func runE2ELatency(ctx context.Context, cmd *cobra.Command, experimentsDetails *types.ExperimentDetails, baselines []types.Baseline) error {
	shutdown, err := telemetry.InitOTelSDK(ctx, experimentsDetails.OtlpEndpoint)
	if err != nil {
		log.Warnf("[PreReq]: tracing is disabled, err: %v", err)
	} else {
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(flushCtx); err != nil {
				log.Warnf("[Telemetry]: unable to flush traces, err: %v", err)
			}
		}()
	}

	if experimentsDetails.MetricsAddress != "" {
		handler, shutdownMetrics, err := telemetry.InitMetrics(prometheus.NewRegistry())
		if err != nil {
			log.Warnf("[PreReq]: metrics are disabled, err: %v", err)
		} else {
			defer shutdownMetrics(context.Background())
			telemetry.ServeMetrics(ctx, experimentsDetails.MetricsAddress, handler)
		}
	}

	clientSets := clients.ClientSets{}
	if experimentsDetails.UseClientGo {
		if err := clientSets.GenerateClientSetFromKubeConfig(ctx, experimentsDetails.KubeConfig); err != nil {
			log.Errorf("Unable to get the kubeconfig, err: %v", err)
			return err
		}
	}

	ctx, span := telemetry.StartSpan(ctx, "E2ELatency")
	err = e2eLatency.E2ELatency(ctx, clientSets, experimentsDetails, baselines, cmd.OutOrStdout())
	span.End()
	return err
}
