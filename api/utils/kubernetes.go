package utils

import (
	"fmt"
	"net/http"

	"github.com/equinor/radix-release-api/api/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

var (
	nrRequests = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "radix_release_k8s_request_duration_seconds",
		Help:    "request duration done to k8s api in seconds bucket",
		Buckets: metrics.DefaultBuckets(),
	}, []string{"code", "method"})
)

// GetKubernetesClient Gets a kubernetes client from kubeConfigPath, or from the service account of the pod when empty
func GetKubernetesClient(kubeConfigPath string) (kubernetes.Interface, error) {
	config, err := getClusterConfig(kubeConfigPath)
	if err != nil {
		return nil, err
	}
	client, err := kubernetes.NewForConfig(addCommonConfigs(config))
	if err != nil {
		return nil, fmt.Errorf("create kubernetes client: %w", err)
	}
	return client, nil
}

func getClusterConfig(kubeConfigPath string) (*rest.Config, error) {
	if kubeConfigPath != "" {
		config, err := clientcmd.BuildConfigFromFlags("", kubeConfigPath)
		if err != nil {
			return nil, fmt.Errorf("load kubeconfig %s: %w", kubeConfigPath, err)
		}
		log.Info().Msgf("Using kubeconfig %s", kubeConfigPath)
		return config, nil
	}
	config, err := rest.InClusterConfig()
	if err != nil {
		return nil, fmt.Errorf("load in-cluster config: %w", err)
	}
	return config, nil
}

func addCommonConfigs(config *rest.Config) *rest.Config {
	config.WrapTransport = func(rt http.RoundTripper) http.RoundTripper {
		return promhttp.InstrumentRoundTripperDuration(nrRequests, rt)
	}
	return config
}
