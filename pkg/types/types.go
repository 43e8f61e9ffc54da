package types

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	clientTypes "k8s.io/apimachinery/pkg/types"
)

const (
	// InfraUp deploys the shared object store and uploads workflow state
	InfraUp string = "InfraUp"
	// WorkflowDeployed renders and applies the workflow manifest
	WorkflowDeployed string = "WorkflowDeployed"
	// Warmup runs executions whose timings are discarded
	Warmup string = "Warmup"
	// Measuring runs the recorded executions
	Measuring string = "Measuring"
	// WorkflowTorndown deletes the workflow and clears its outputs
	WorkflowTorndown string = "WorkflowTorndown"
	// InfraDown deletes the shared infrastructure
	InfraDown string = "InfraDown"
)

// Baseline is an isolation configuration under which workflows run
type Baseline string

const (
	Faasm        Baseline = "faasm"
	SgxFaasm     Baseline = "sgx-faasm"
	TlessFaasm   Baseline = "tless-faasm"
	Knative      Baseline = "knative"
	CcKnative    Baseline = "cc-knative"
	TlessKnative Baseline = "tless-knative"
)

// Baselines lists every known baseline in declaration order
var Baselines = []Baseline{Faasm, SgxFaasm, TlessFaasm, Knative, CcKnative, TlessKnative}

var baselineAliases = map[string]Baseline{
	"confidential-knative": CcKnative,
	"protected-knative":    TlessKnative,
}

// ParseBaseline resolves a baseline name or one of its aliases
func ParseBaseline(s string) (Baseline, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if b, ok := baselineAliases[name]; ok {
		return b, nil
	}
	for _, b := range Baselines {
		if string(b) == name {
			return b, nil
		}
	}
	return "", fmt.Errorf("unrecognised baseline: %q", s)
}

// RuntimeClass returns the Kubernetes runtime class a cluster baseline runs
// its pods under. ok is false for baselines that do not run on the cluster.
func (b Baseline) RuntimeClass() (string, bool) {
	switch b {
	case Knative:
		return "kata-qemu", true
	case CcKnative, TlessKnative:
		return "kata-qemu-sev", true
	default:
		return "", false
	}
}

func (b Baseline) String() string {
	return string(b)
}

// Experiment names a measurement kind
type Experiment string

// E2eLatency measures trigger-to-completion time of a workflow
const E2eLatency Experiment = "e2e-latency"

// ParseExperiment resolves an experiment name
func ParseExperiment(s string) (Experiment, error) {
	if Experiment(s) == E2eLatency {
		return E2eLatency, nil
	}
	return "", fmt.Errorf("unrecognised experiment: %q", s)
}

func (e Experiment) String() string {
	return string(e)
}

// ExecutionResult is the timing of one workflow execution
type ExecutionResult struct {
	StartTime time.Time
	EndTime   time.Time
	Iteration int
}

// Valid reports whether the end of the execution does not precede its start
func (r ExecutionResult) Valid() bool {
	return !r.EndTime.Before(r.StartTime)
}

// DurationMs is the whole-millisecond latency of the execution
func (r ExecutionResult) DurationMs() int64 {
	return r.EndTime.Sub(r.StartTime).Milliseconds()
}

// Decision is what the orchestrator does after a repeat fails
type Decision int

const (
	// Continue means the repeat succeeded
	Continue Decision = iota
	SkipRepeat
	AbortBaseline
	AbortRun
)

func (d Decision) String() string {
	switch d {
	case Continue:
		return "Continue"
	case SkipRepeat:
		return "SkipRepeat"
	case AbortBaseline:
		return "AbortBaseline"
	case AbortRun:
		return "AbortRun"
	}
	return fmt.Sprintf("Decision(%d)", int(d))
}

// RepeatOutcome is the result of a single repeat. Result is nil whenever Err is set.
type RepeatOutcome struct {
	Result   *ExecutionResult
	Err      error
	Decision Decision
}

// RunDetails identifies one orchestrator invocation
type RunDetails struct {
	RunID      string
	Experiment Experiment
	Baselines  []Baseline
	StartTime  time.Time
}

// NewRunDetails stamps a fresh run ID
func NewRunDetails(exp Experiment, baselines []Baseline) RunDetails {
	return RunDetails{
		RunID:      uuid.NewString(),
		Experiment: exp,
		Baselines:  baselines,
		StartTime:  time.Now(),
	}
}

// EventDetails is for collecting all the events-related details
type EventDetails struct {
	Message      string
	Reason       string
	ResourceName string
	ResourceUID  clientTypes.UID
	Type         string
}

// SetEventAttributes initialise attributes for event generation against a workflow
func SetEventAttributes(eventsDetails *EventDetails, Reason, Message, Type, resourceName string) {
	eventsDetails.Reason = Reason
	eventsDetails.Message = Message
	eventsDetails.ResourceName = resourceName
	eventsDetails.Type = Type
}
