package experiment

import (
	"context"
	"io"

	"github.com/palantir/stacktrace"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	knativeLIB "github.com/tless/tless-bench/evallib/knative/lib"
	"github.com/tless/tless-bench/pkg/clients"
	"github.com/tless/tless-bench/pkg/cluster"
	"github.com/tless/tless-bench/pkg/log"
	"github.com/tless/tless-bench/pkg/objectstore"
	"github.com/tless/tless-bench/pkg/progress"
	"github.com/tless/tless-bench/pkg/result"
	"github.com/tless/tless-bench/pkg/telemetry"
	"github.com/tless/tless-bench/pkg/templater"
	"github.com/tless/tless-bench/pkg/types"
	"github.com/tless/tless-bench/pkg/utils/exec"
	"github.com/tless/tless-bench/pkg/workflows"
)

// E2ELatency contains steps to measure the end-to-end latency of every
// workflow under every requested baseline. The summary is written to out.
func E2ELatency(ctx context.Context, clients clients.ClientSets, experimentsDetails *types.ExperimentDetails, baselines []types.Baseline, out io.Writer) error {
	span := trace.SpanFromContext(ctx)

	if err := knativeLIB.ValidateBaselines(baselines); err != nil {
		log.Errorf("Unable to run the requested baselines, err: %v", err)
		span.SetStatus(codes.Error, "Unsupported baseline")
		span.RecordError(err)
		return err
	}

	runDetails := types.NewRunDetails(types.E2eLatency, baselines)
	log.InfoWithValues("[PreReq]: The run configuration is as follows", logrus.Fields{
		"RunID":             runDetails.RunID,
		"Baselines":         baselines,
		"Repeats":           experimentsDetails.NumRepeats,
		"Warmup Repeats":    experimentsDetails.NumWarmupRepeats,
		"Workflows Root":    experimentsDetails.WorkflowsRoot,
		"Eval Root":         experimentsDetails.EvalRoot,
		"Templating":        experimentsDetails.TemplatingEngine,
		"Readiness Timeout": experimentsDetails.ReadinessTimeout,
	})

	orchestrator, closeSinks, err := newOrchestrator(clients, experimentsDetails, runDetails, out)
	if err != nil {
		log.Errorf("Unable to prepare the run, err: %v", err)
		span.SetStatus(codes.Error, "Unable to prepare the run")
		span.RecordError(err)
		return err
	}
	defer closeSinks()

	summaries, err := orchestrator.PrepareE2ELatency(ctx, baselines)
	progress.PrintSummary(out, summaries)
	if err != nil {
		log.Errorf("[Result]: %v run %s failed, err: %v", types.E2eLatency, runDetails.RunID, err)
		span.SetStatus(codes.Error, "Run failed")
		span.RecordError(err)
		return err
	}

	log.Infof("[Result]: %v run %s completed, results under %s", types.E2eLatency, runDetails.RunID, experimentsDetails.EvalRoot)
	return nil
}

// newOrchestrator builds the orchestrator for a real cluster. The returned
// func closes the result database, when one is configured.
func newOrchestrator(clients clients.ClientSets, experimentsDetails *types.ExperimentDetails, runDetails types.RunDetails, out io.Writer) (*knativeLIB.Orchestrator, func(), error) {
	runner := exec.NewRunner()

	controller, err := cluster.NewKubectl(experimentsDetails.Kubectl, runner, experimentsDetails.PollInterval, experimentsDetails.ReadinessTimeout)
	if err != nil {
		return nil, nil, err
	}
	if experimentsDetails.UseClientGo && clients.KubeClient != nil {
		controller.Clients = &clients
	}

	tmpl, err := templater.New(experimentsDetails.TemplatingEngine, runner)
	if err != nil {
		return nil, nil, err
	}

	catalog, err := workflows.Load(experimentsDetails.WorkflowsRoot, experimentsDetails.WorkflowCatalog)
	if err != nil {
		return nil, nil, err
	}

	sink, closeSinks, err := newSink(experimentsDetails)
	if err != nil {
		return nil, nil, err
	}

	instruments, err := telemetry.NewInstruments()
	if err != nil {
		log.Warnf("[PreReq]: metrics are disabled, err: %v", err)
	}

	return &knativeLIB.Orchestrator{
		Experiment: types.E2eLatency,
		Details:    experimentsDetails,
		Run:        runDetails,
		Catalog:    catalog,
		Cluster:    controller,
		Templater:  tmpl,
		Runner:     runner,
		NewStore:   StoreFactory(experimentsDetails),
		Sink:       sink,
		Progress:   progress.NewTerminal(out),
		Clients:    clients,
		Metrics:    instruments,
	}, closeSinks, nil
}

// StoreFactory binds the configured credentials and timings to a discovered endpoint
func StoreFactory(experimentsDetails *types.ExperimentDetails) knativeLIB.StoreFactory {
	return func(endpoint string) (objectstore.Store, error) {
		return objectstore.New(objectstore.Options{
			Endpoint:     endpoint,
			AccessKey:    experimentsDetails.AccessKey,
			SecretKey:    experimentsDetails.SecretKey,
			Region:       experimentsDetails.Region,
			PollInterval: experimentsDetails.KeyPollInterval,
			KeyTimeout:   experimentsDetails.KeyTimeout,
		})
	}
}

func newSink(experimentsDetails *types.ExperimentDetails) (result.Sink, func(), error) {
	csv := result.CSVRecorder{Root: experimentsDetails.EvalRoot}
	if experimentsDetails.ResultDatabase == "" {
		return csv, func() {}, nil
	}

	mirror, err := result.OpenSQLite(experimentsDetails.ResultDatabase)
	if err != nil {
		return nil, nil, stacktrace.Propagate(err, "could not open result database %s", experimentsDetails.ResultDatabase)
	}
	closeMirror := func() {
		if err := mirror.Close(); err != nil {
			log.Warnf("[Result]: unable to close %s, err: %v", experimentsDetails.ResultDatabase, err)
		}
	}
	return result.Multi{csv, mirror}, closeMirror, nil
}
