package lib

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/palantir/stacktrace"
	"github.com/sirupsen/logrus"
	apiv1 "k8s.io/api/core/v1"
	clientTypes "k8s.io/apimachinery/pkg/types"

	"github.com/tless/tless-bench/pkg/cerrors"
	"github.com/tless/tless-bench/pkg/clients"
	"github.com/tless/tless-bench/pkg/cluster"
	"github.com/tless/tless-bench/pkg/events"
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

const (
	// InfraNamespace holds the shared object store
	InfraNamespace = "tless"
	// MinioLabel selects the object store pod
	MinioLabel = "tless.workflows/name=minio"
	// MinioService is the object store service name
	MinioService = "minio"
	// RuntimeClassVar is the manifest placeholder for the isolation runtime
	RuntimeClassVar = "RUNTIME_CLASS_NAME"

	defaultTeardownTimeout = 5 * time.Minute
)

// StoreFactory builds an object-store client for a discovered endpoint
type StoreFactory func(endpoint string) (objectstore.Store, error)

// Orchestrator runs the baseline × workflow × repeat matrix of the
// end-to-end latency experiment
type Orchestrator struct {
	Experiment types.Experiment
	Details    *types.ExperimentDetails
	Run        types.RunDetails
	Catalog    *workflows.Catalog
	Cluster    cluster.Controller
	Templater  templater.Templater
	Runner     exec.CommandRunner
	NewStore   StoreFactory
	Sink       result.Sink
	Progress   progress.Reporter
	Clients    clients.ClientSets
	Metrics    *telemetry.Instruments

	TeardownTimeout time.Duration
}

// ValidateBaselines rejects the whole request when any baseline cannot run on the cluster
func ValidateBaselines(baselines []types.Baseline) error {
	if len(baselines) == 0 {
		return cerrors.Configuration("no baseline requested")
	}
	for _, b := range baselines {
		if _, ok := b.RuntimeClass(); !ok {
			return cerrors.Configuration(fmt.Sprintf("baseline %s does not run on the cluster", b))
		}
	}
	return nil
}

// PrepareE2ELatency runs every baseline in order and returns one summary per
// baseline attempted. The error is non-nil when any baseline failed.
func (o *Orchestrator) PrepareE2ELatency(ctx context.Context, baselines []types.Baseline) ([]progress.BaselineSummary, error) {
	if err := ValidateBaselines(baselines); err != nil {
		return nil, err
	}

	summaries := []progress.BaselineSummary{}
	failed := []string{}
	for _, baseline := range baselines {
		log.InfoWithValues("[Baseline]: Starting baseline", logrus.Fields{
			"RunID": o.Run.RunID, "Experiment": o.Experiment, "Baseline": baseline})

		summary := o.runBaseline(ctx, baseline)
		summaries = append(summaries, summary)
		if summary.Err == nil {
			continue
		}

		failed = append(failed, baseline.String())
		if Decide(summary.Err) == types.AbortRun {
			log.Errorf("[Abort]: Stopping the run after baseline %s, err: %v", baseline, summary.Err)
			return summaries, summary.Err
		}
		log.Errorf("[Abort]: Baseline %s aborted, continuing with the next one, err: %v", baseline, summary.Err)
	}

	if len(failed) != 0 {
		return summaries, cerrors.Error{ErrorCode: cerrors.ErrorTypeGeneric, Reason: "baselines failed: " + strings.Join(failed, ", ")}
	}
	return summaries, nil
}

// teardownContext survives cancellation of ctx so that cleanup always runs
func (o *Orchestrator) teardownContext(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := o.TeardownTimeout
	if timeout <= 0 {
		timeout = defaultTeardownTimeout
	}
	return context.WithTimeout(context.WithoutCancel(ctx), timeout)
}

func (o *Orchestrator) runBaseline(ctx context.Context, baseline types.Baseline) (summary progress.BaselineSummary) {
	summary.Baseline = baseline.String()
	ctx, span := telemetry.StartSpan(ctx, "Baseline", telemetry.RunAttributes(o.Run.RunID, baseline.String(), "")...)
	defer func() { telemetry.EndSpan(span, summary.Err) }()

	defer func() {
		if err := o.infraDown(ctx); err != nil && summary.Err == nil {
			summary.Err = err
		}
	}()

	store, minioAddr, err := o.infraUp(ctx)
	if err != nil {
		summary.Err = err
		return
	}

	for _, d := range o.Catalog.All() {
		if err := o.runWorkflow(ctx, baseline, d, store, minioAddr, &summary); err != nil {
			summary.Err = stacktrace.Propagate(err, "workflow %s failed under %s", d.Name, baseline)
			return
		}
	}
	return
}

// infraUp deploys the shared infrastructure and returns a store bound to the
// discovered object-store address
func (o *Orchestrator) infraUp(ctx context.Context) (store objectstore.Store, minioAddr string, err error) {
	ctx, span := telemetry.StartSpan(ctx, types.InfraUp)
	defer func() { telemetry.EndSpan(span, err) }()

	log.Infof("[%s]: Deploying the shared infrastructure", types.InfraUp)
	if err = o.Cluster.ApplyFile(ctx, o.Catalog.CommonManifestPath()); err != nil {
		return nil, "", err
	}
	if err = o.Cluster.WaitForPods(ctx, InfraNamespace, MinioLabel, 1); err != nil {
		return nil, "", err
	}
	if minioAddr, err = o.Cluster.ServiceClusterIP(ctx, InfraNamespace, MinioService); err != nil {
		return nil, "", err
	}
	endpoint := objectstore.Endpoint(minioAddr, o.Details.MinioPort)
	log.InfoWithValues("[InfraUp]: The object store is reachable at", logrus.Fields{"Endpoint": endpoint})

	if store, err = o.NewStore(endpoint); err != nil {
		return nil, "", err
	}
	if err = store.EnsureBucket(ctx, o.Details.Bucket); err != nil {
		return nil, "", err
	}
	if err = o.Catalog.UploadState(ctx, store, o.Details.Bucket, true); err != nil {
		return nil, "", err
	}
	return store, minioAddr, nil
}

func (o *Orchestrator) infraDown(ctx context.Context) (err error) {
	ctx, cancel := o.teardownContext(ctx)
	defer cancel()
	ctx, span := telemetry.StartSpan(ctx, types.InfraDown)
	defer func() { telemetry.EndSpan(span, err) }()

	log.Infof("[%s]: Deleting the shared infrastructure", types.InfraDown)
	return o.Cluster.DeleteFile(ctx, o.Catalog.CommonManifestPath())
}

func (o *Orchestrator) runWorkflow(ctx context.Context, baseline types.Baseline, d workflows.Descriptor, store objectstore.Store, minioAddr string, summary *progress.BaselineSummary) (err error) {
	attrs := telemetry.RunAttributes(o.Run.RunID, baseline.String(), d.Name)
	key := result.Key{RunID: o.Run.RunID, Experiment: o.Experiment, Baseline: baseline, Workflow: d.Name}

	if err := o.Sink.InitDataFile(key); err != nil {
		return err
	}

	manifest, err := o.deployWorkflow(ctx, baseline, d)
	if manifest != "" {
		defer func() {
			if tdErr := o.teardownWorkflow(ctx, d, store, manifest); tdErr != nil && err == nil {
				err = tdErr
			}
		}()
	}
	if err != nil {
		return err
	}

	bar := o.Progress.Start(fmt.Sprintf("%s/%s/%s", o.Experiment, baseline, d.Name), o.Details.NumRepeats)
	defer bar.Finish()

	if o.Details.NumWarmupRepeats > 0 {
		log.Infof("[%s]: Running %d warm-up repeats of %s", types.Warmup, o.Details.NumWarmupRepeats, d.Name)
	}
	for i := 0; i < o.Details.NumWarmupRepeats; i++ {
		outcome := o.runOnce(ctx, d, store, minioAddr, i)
		if outcome.Decision != types.Continue && outcome.Decision != types.SkipRepeat {
			return outcome.Err
		}
	}

	mctx, span := telemetry.StartSpan(ctx, types.Measuring, attrs...)
	defer func() { telemetry.EndSpan(span, err) }()
	for i := 0; i < o.Details.NumRepeats; i++ {
		outcome := o.runOnce(mctx, d, store, minioAddr, i)
		o.Metrics.RecordOutcome(mctx, outcome.Decision.String(), attrs...)

		switch outcome.Decision {
		case types.Continue:
			if err := o.Sink.AppendResult(key, *outcome.Result); err != nil {
				return err
			}
			o.Metrics.RecordLatency(mctx, outcome.Result.DurationMs(), attrs...)
			summary.Recorded++
			summary.LatenciesMs = append(summary.LatenciesMs, outcome.Result.DurationMs())
			bar.Inc()
		case types.SkipRepeat:
			summary.Skipped++
			log.WarnWithValues("[Measuring]: Excluding repeat", logrus.Fields{
				"Workflow": d.Name, "Baseline": baseline, "Repeat": i, "Reason": outcome.Err.Error()})
		default:
			return outcome.Err
		}
	}

	o.generateEvent(ctx, d, types.Measuring, fmt.Sprintf("%d of %d repeats of %s recorded under %s", summary.Recorded, o.Details.NumRepeats, d.Name, baseline))
	return nil
}

// deployWorkflow renders and applies the manifest, then waits for every
// readiness label. The rendered manifest is returned whenever it was produced,
// so that the caller can delete what may have been applied.
func (o *Orchestrator) deployWorkflow(ctx context.Context, baseline types.Baseline, d workflows.Descriptor) (manifest string, err error) {
	ctx, span := telemetry.StartSpan(ctx, types.WorkflowDeployed, telemetry.RunAttributes(o.Run.RunID, baseline.String(), d.Name)...)
	defer func() { telemetry.EndSpan(span, err) }()

	runtimeClass, _ := baseline.RuntimeClass()
	manifest, err = o.Templater.Template(ctx, o.Catalog.ManifestPath(d), map[string]string{RuntimeClassVar: runtimeClass})
	if err != nil {
		return "", err
	}

	log.InfoWithValues("[WorkflowDeployed]: Deploying the workflow", logrus.Fields{
		"Workflow": d.Name, "RuntimeClass": runtimeClass})
	if err = o.Cluster.Apply(ctx, manifest); err != nil {
		return manifest, err
	}
	for _, label := range d.ReadinessLabels {
		if err = o.Cluster.WaitForPods(ctx, d.Namespace, label, 1); err != nil {
			return manifest, err
		}
	}
	o.generateEvent(ctx, d, types.WorkflowDeployed, fmt.Sprintf("%s deployed with runtime class %s", d.Name, runtimeClass))
	return manifest, nil
}

// teardownWorkflow deletes the workflow and clears its outputs, verifying
// that nothing is left under the cleanup prefix
func (o *Orchestrator) teardownWorkflow(ctx context.Context, d workflows.Descriptor, store objectstore.Store, manifest string) (err error) {
	ctx, cancel := o.teardownContext(ctx)
	defer cancel()
	ctx, span := telemetry.StartSpan(ctx, types.WorkflowTorndown)
	defer func() { telemetry.EndSpan(span, err) }()

	log.Infof("[%s]: Deleting the %s workflow", types.WorkflowTorndown, d.Name)
	if err = o.Cluster.Delete(ctx, manifest); err != nil {
		return err
	}
	if err = o.Cluster.WaitForNamespaceDrained(ctx, d.Namespace, MinioLabel); err != nil {
		return err
	}
	if err = store.ClearDir(ctx, o.Details.Bucket, d.Prefix()); err != nil {
		return err
	}
	left, err := store.ListKeys(ctx, o.Details.Bucket, d.Prefix())
	if err != nil {
		return err
	}
	if len(left) != 0 {
		return cerrors.Error{ErrorCode: cerrors.ErrorTypeObjectStore, Phase: types.WorkflowTorndown, Target: d.Prefix(),
			Reason: fmt.Sprintf("%d keys left after cleanup", len(left))}
	}
	return nil
}

// runOnce triggers one execution and waits for its completion key. Outputs
// are cleared afterwards whatever the outcome, unless ctx was cancelled.
func (o *Orchestrator) runOnce(ctx context.Context, d workflows.Descriptor, store objectstore.Store, minioAddr string, iteration int) (outcome types.RepeatOutcome) {
	defer func() { outcome.Decision = Decide(outcome.Err) }()

	res, err := o.measure(ctx, d, store, minioAddr, iteration)
	if ctx.Err() != nil {
		outcome.Err = stacktrace.Propagate(ctx.Err(), "repeat %d of %s interrupted", iteration, d.Name)
		return
	}
	if cleanupErr := store.ClearDir(ctx, o.Details.Bucket, d.Prefix()); cleanupErr != nil {
		outcome.Err = stacktrace.Propagate(cleanupErr, "could not clean up after repeat %d", iteration)
		return
	}
	if err != nil {
		outcome.Err = err
		return
	}
	outcome.Result = res
	return
}

func (o *Orchestrator) measure(ctx context.Context, d workflows.Descriptor, store objectstore.Store, minioAddr string, iteration int) (*types.ExecutionResult, error) {
	trigger := o.Catalog.TriggerPath(d)
	start := time.Now()
	if _, err := o.Runner.Run(ctx, exec.Command{Name: trigger, Env: []string{"MINIO_URL=" + minioAddr}}); err != nil {
		return nil, stacktrace.Propagate(cerrors.Error{ErrorCode: cerrors.ErrorTypeTrigger, Target: trigger, Reason: err.Error()}, "could not trigger %s", d.Name)
	}

	end, found, err := store.WaitForKey(ctx, o.Details.Bucket, d.Key())
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, cerrors.Error{ErrorCode: cerrors.ErrorTypeMeasurementTimeout, Phase: types.Measuring, Target: d.Key(),
			Reason: fmt.Sprintf("completion key not seen within %v", o.Details.KeyTimeout)}
	}

	res := &types.ExecutionResult{StartTime: start, EndTime: end, Iteration: iteration}
	if !res.Valid() {
		return nil, cerrors.Error{ErrorCode: cerrors.ErrorTypeInvalidMeasurement, Phase: types.Measuring, Target: d.Key(),
			Reason: fmt.Sprintf("completion at %v precedes trigger at %v", end, start)}
	}
	log.Debugf("[Measuring]: repeat %d of %s took %dms", iteration, d.Name, res.DurationMs())
	return res, nil
}

func (o *Orchestrator) generateEvent(ctx context.Context, d workflows.Descriptor, reason, message string) {
	eventsDetails := types.EventDetails{}
	types.SetEventAttributes(&eventsDetails, reason, message, apiv1.EventTypeNormal, d.Name)
	eventsDetails.ResourceUID = clientTypes.UID(o.Run.RunID)
	if err := events.GenerateEvents(ctx, &eventsDetails, o.Clients, d.Namespace); err != nil {
		log.Warnf("[Events]: unable to generate the %s event, err: %v", reason, err)
	}
}
