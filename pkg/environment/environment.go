package environment

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/palantir/stacktrace"
	"github.com/spf13/viper"

	"github.com/tless/tless-bench/pkg/cerrors"
	"github.com/tless/tless-bench/pkg/types"
)

// EnvPrefix prefixes every environment override, e.g. TLESS_EVAL_NUM_REPEATS
const EnvPrefix = "TLESS"

// Config mirrors the configuration file layout
type Config struct {
	Eval        EvalConfig        `mapstructure:"eval"`
	Workflows   WorkflowsConfig   `mapstructure:"workflows"`
	Cluster     ClusterConfig     `mapstructure:"cluster"`
	ObjectStore ObjectStoreConfig `mapstructure:"objectstore"`
	Templating  TemplatingConfig  `mapstructure:"templating"`
	Result      ResultConfig      `mapstructure:"result"`
	Telemetry   TelemetryConfig   `mapstructure:"telemetry"`
}

type EvalConfig struct {
	Root             string `mapstructure:"root"`
	NumRepeats       int    `mapstructure:"num_repeats"`
	NumWarmupRepeats int    `mapstructure:"num_warmup_repeats"`
}

type WorkflowsConfig struct {
	Root    string `mapstructure:"root"`
	Catalog string `mapstructure:"catalog"`
}

type ClusterConfig struct {
	Kubectl          string        `mapstructure:"kubectl"`
	KubeConfig       string        `mapstructure:"kubeconfig"`
	PollInterval     time.Duration `mapstructure:"poll_interval"`
	ReadinessTimeout time.Duration `mapstructure:"readiness_timeout"`
	UseClientGo      bool          `mapstructure:"use_client_go"`
}

type ObjectStoreConfig struct {
	Bucket       string        `mapstructure:"bucket"`
	Port         int           `mapstructure:"port"`
	AccessKey    string        `mapstructure:"access_key"`
	SecretKey    string        `mapstructure:"secret_key"`
	Region       string        `mapstructure:"region"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	KeyTimeout   time.Duration `mapstructure:"key_timeout"`
}

type TemplatingConfig struct {
	Engine string `mapstructure:"engine"`
}

type ResultConfig struct {
	Database string `mapstructure:"database"`
}

type TelemetryConfig struct {
	OtlpEndpoint   string `mapstructure:"otlp_endpoint"`
	MetricsAddress string `mapstructure:"metrics_address"`
}

// SetDefaults registers the built-in value of every key
func SetDefaults(v *viper.Viper) {
	cwd, _ := os.Getwd()
	v.SetDefault("eval.root", filepath.Join(cwd, "eval"))
	v.SetDefault("eval.num_repeats", 3)
	v.SetDefault("eval.num_warmup_repeats", 0)

	v.SetDefault("workflows.root", "./workflows")
	v.SetDefault("workflows.catalog", "")

	v.SetDefault("cluster.kubectl", "")
	v.SetDefault("cluster.kubeconfig", "")
	v.SetDefault("cluster.poll_interval", 2*time.Second)
	v.SetDefault("cluster.readiness_timeout", 10*time.Minute)
	v.SetDefault("cluster.use_client_go", false)

	v.SetDefault("objectstore.bucket", "tless")
	v.SetDefault("objectstore.port", 9000)
	v.SetDefault("objectstore.access_key", "minio")
	v.SetDefault("objectstore.secret_key", "minio123")
	v.SetDefault("objectstore.region", "us-east-1")
	v.SetDefault("objectstore.poll_interval", 100*time.Millisecond)
	v.SetDefault("objectstore.key_timeout", 5*time.Minute)

	v.SetDefault("templating.engine", "envsubst")
	v.SetDefault("result.database", "")
	v.SetDefault("telemetry.otlp_endpoint", "")
	v.SetDefault("telemetry.metrics_address", "")
}

// New returns a viper instance with defaults and environment overrides
// wired. configFile is optional.
func New(configFile string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, stacktrace.Propagate(cerrors.Configuration(err.Error()), "could not read config file %s", configFile)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v, nil
}

// GetENV resolves the run configuration from v into experimentDetails
func GetENV(v *viper.Viper, experimentDetails *types.ExperimentDetails) error {
	cfg := Config{}
	if err := v.Unmarshal(&cfg); err != nil {
		return stacktrace.Propagate(cerrors.Configuration(err.Error()), "could not decode configuration")
	}

	experimentDetails.EvalRoot = cfg.Eval.Root
	experimentDetails.NumRepeats = cfg.Eval.NumRepeats
	experimentDetails.NumWarmupRepeats = cfg.Eval.NumWarmupRepeats
	experimentDetails.WorkflowsRoot = cfg.Workflows.Root
	experimentDetails.WorkflowCatalog = cfg.Workflows.Catalog
	experimentDetails.Kubectl = cfg.Cluster.Kubectl
	experimentDetails.KubeConfig = cfg.Cluster.KubeConfig
	experimentDetails.PollInterval = cfg.Cluster.PollInterval
	experimentDetails.ReadinessTimeout = cfg.Cluster.ReadinessTimeout
	experimentDetails.UseClientGo = cfg.Cluster.UseClientGo
	experimentDetails.Bucket = cfg.ObjectStore.Bucket
	experimentDetails.MinioPort = cfg.ObjectStore.Port
	experimentDetails.AccessKey = cfg.ObjectStore.AccessKey
	experimentDetails.SecretKey = cfg.ObjectStore.SecretKey
	experimentDetails.Region = cfg.ObjectStore.Region
	experimentDetails.KeyPollInterval = cfg.ObjectStore.PollInterval
	experimentDetails.KeyTimeout = cfg.ObjectStore.KeyTimeout
	experimentDetails.TemplatingEngine = cfg.Templating.Engine
	experimentDetails.ResultDatabase = cfg.Result.Database
	experimentDetails.OtlpEndpoint = cfg.Telemetry.OtlpEndpoint
	experimentDetails.MetricsAddress = cfg.Telemetry.MetricsAddress

	if experimentDetails.Kubectl == "" {
		cocoSource := types.Getenv("COCO_SOURCE", "")
		if cocoSource == "" {
			return stacktrace.Propagate(cerrors.Configuration("COCO_SOURCE is not set and cluster.kubectl is empty"), "could not locate kubectl")
		}
		experimentDetails.Kubectl = filepath.Join(cocoSource, "bin", "kubectl")
	}
	return Validate(experimentDetails)
}

// Validate rejects configurations the orchestrator cannot run with
func Validate(experimentDetails *types.ExperimentDetails) error {
	switch {
	case experimentDetails.NumRepeats < 0:
		return cerrors.Configuration("eval.num_repeats must not be negative")
	case experimentDetails.NumWarmupRepeats < 0:
		return cerrors.Configuration("eval.num_warmup_repeats must not be negative")
	case experimentDetails.PollInterval <= 0:
		return cerrors.Configuration("cluster.poll_interval must be positive")
	case experimentDetails.KeyPollInterval <= 0:
		return cerrors.Configuration("objectstore.poll_interval must be positive")
	case experimentDetails.Bucket == "":
		return cerrors.Configuration("objectstore.bucket must be set")
	case experimentDetails.MinioPort <= 0 || experimentDetails.MinioPort > 65535:
		return cerrors.Configuration("objectstore.port is out of range")
	case experimentDetails.TemplatingEngine != "envsubst" && experimentDetails.TemplatingEngine != "builtin":
		return cerrors.Configuration("templating.engine must be envsubst or builtin")
	case experimentDetails.EvalRoot == "":
		return cerrors.Configuration("eval.root must be set")
	}
	return nil
}
