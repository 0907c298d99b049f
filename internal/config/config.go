package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog/log"
)

type Config struct {
	Port           int    `envconfig:"PORT" default:"3002" desc:"Port where API will be served"`
	MetricsPort    int    `envconfig:"METRICS_PORT" default:"9090" desc:"Port where Metrics will be served"`
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`
	LogPrettyPrint bool   `envconfig:"LOG_PRETTY" default:"false"`

	ServicesFile  string `envconfig:"SERVICES_FILE" default:"/etc/radix-release/services.yaml" desc:"YAML file with the deployable services"`
	KubeConfig    string `envconfig:"KUBECONFIG" desc:"Path to kubeconfig, in-cluster config is used when empty"`
	PrometheusUrl string `envconfig:"PROMETHEUS_URL" required:"true"`

	Oidc        Oidc `envconfig:"OIDC"`
	RequireAuth bool `envconfig:"REQUIRE_AUTH" default:"true" desc:"Reject mutating requests without a valid bearer token"`

	ArtifactStore string `envconfig:"ARTIFACT_STORE" default:"memory" desc:"memory or minio"`
	Minio         Minio  `envconfig:"MINIO"`
	DatabaseUrl   string `envconfig:"DATABASE_URL" desc:"PostgreSQL connection string for run persistence, in-memory when empty"`

	RegistryInsecure bool `envconfig:"REGISTRY_INSECURE" default:"false" desc:"Use plain http towards the image registry"`

	ApprovalTimeout     time.Duration `envconfig:"APPROVAL_TIMEOUT" default:"0s" desc:"Fail approval gates waiting longer than this, 0 waits forever"`
	GateExpiryInterval  time.Duration `envconfig:"GATE_EXPIRY_INTERVAL" default:"1m"`
	RolloutTimeout      time.Duration `envconfig:"ROLLOUT_TIMEOUT" default:"10m"`
	RolloutPollInterval time.Duration `envconfig:"ROLLOUT_POLL_INTERVAL" default:"5s"`
}

type Oidc struct {
	Issuer   string `envconfig:"ISSUER" desc:"Token issuer, requests are anonymous when empty"`
	Audience string `envconfig:"AUDIENCE"`
}

type Minio struct {
	Endpoint  string `envconfig:"ENDPOINT"`
	AccessKey string `envconfig:"ACCESS_KEY"`
	SecretKey string `envconfig:"SECRET_KEY"`
	UseSSL    bool   `envconfig:"USE_SSL" default:"true"`
	Region    string `envconfig:"REGION"`
	Bucket    string `envconfig:"BUCKET" default:"radix-release-artifacts"`
}

func MustParse() Config {
	var s Config
	err := envconfig.Process("", &s)
	if err != nil {
		_ = envconfig.Usage("", &s)
		log.Fatal().Msg(err.Error())
	}

	return s
}
