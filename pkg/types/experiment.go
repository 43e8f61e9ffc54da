package types

import "time"

// ExperimentDetails is for collecting all the run configuration
type ExperimentDetails struct {
	EvalRoot         string
	NumRepeats       int
	NumWarmupRepeats int

	WorkflowsRoot   string
	WorkflowCatalog string

	Kubectl          string
	KubeConfig       string
	PollInterval     time.Duration
	ReadinessTimeout time.Duration
	UseClientGo      bool

	Bucket          string
	MinioPort       int
	AccessKey       string
	SecretKey       string
	Region          string
	KeyPollInterval time.Duration
	KeyTimeout      time.Duration

	TemplatingEngine string
	ResultDatabase   string

	OtlpEndpoint   string
	MetricsAddress string
}
