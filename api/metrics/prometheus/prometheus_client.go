package prometheus

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"time"

	"github.com/equinor/radix-release-api/api/utils/logs"
	"github.com/equinor/radix-release-api/api/utils/transient"
	"github.com/equinor/radix-release-api/internal/config"
	prometheusApi "github.com/prometheus/client_golang/api"
	prometheusV1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
	"github.com/rs/zerolog/log"
)

type QueryAPI interface {
	Query(ctx context.Context, query string, ts time.Time, opts ...prometheusV1.Option) (model.Value, prometheusV1.Warnings, error)
}

const (
	MetricCpu    = "cpu"
	MetricMemory = "memory"
)

var (
	// ErrNoData The query matched no running pods, or the pods have no resource requests
	ErrNoData = errors.New("no utilization data")
	// ErrUnsupportedMetric The scaling metric has no query
	ErrUnsupportedMetric = errors.New("unsupported metric")
)

type Client struct {
	api QueryAPI
}

// NewPrometheusClient Constructor for a Prometheus utilization client
func NewPrometheusClient(prometheusUrl string) (*Client, error) {
	roundTripper := logs.Logger(logs.WithComponent("prometheus"))(prometheusApi.DefaultRoundTripper)
	apiClient, err := prometheusApi.NewClient(prometheusApi.Config{Address: prometheusUrl, RoundTripper: roundTripper})
	if err != nil {
		return nil, errors.New("failed to create the Prometheus API client")
	}
	return NewClient(prometheusV1.NewAPI(apiClient)), nil
}

func NewClient(api QueryAPI) *Client {
	return &Client{api: api}
}

// Utilization Returns the current usage of the service's pods as a percentage of their requests,
// for the metric in the service scaling definition
func (c *Client) Utilization(ctx context.Context, service config.ServiceDefinition) (float64, error) {
	query, err := utilizationQuery(service.Namespace, service.Deployment, service.Scaling.Metric)
	if err != nil {
		return 0, err
	}
	return c.queryScalar(ctx, query)
}

func utilizationQuery(namespace, deployment, metric string) (string, error) {
	selector := fmt.Sprintf(`namespace=%q, pod=~%q, container!=""`, namespace, podPattern(deployment))
	switch metric {
	case MetricCpu:
		return fmt.Sprintf(`100 * sum(rate(container_cpu_usage_seconds_total{%s}[2m])) / sum(kube_pod_container_resource_requests{%s, resource="cpu"})`, selector, selector), nil
	case MetricMemory:
		return fmt.Sprintf(`100 * sum(container_memory_working_set_bytes{%s}) / sum(kube_pod_container_resource_requests{%s, resource="memory"})`, selector, selector), nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedMetric, metric)
	}
}

// podPattern Pods of a Deployment are named <deployment>-<replicaset hash>-<pod suffix>
func podPattern(deployment string) string {
	return regexp.QuoteMeta(deployment) + "-[a-z0-9]+-[a-z0-9]+"
}

func (c *Client) queryScalar(ctx context.Context, query string) (float64, error) {
	response, w, err := c.api.Query(ctx, query, time.Now())
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str("query", query).Msg("fetching utilization query")
		return 0, transient.Wrap("query prometheus", err)
	}
	if len(w) > 0 {
		log.Ctx(ctx).Warn().Str("query", query).Strs("warnings", w).Msg("fetching utilization query")
	} else {
		log.Ctx(ctx).Trace().Str("query", query).Msg("fetching utilization query")
	}

	r, ok := response.(model.Vector)
	if !ok {
		return 0, fmt.Errorf("utilization query returned non-vector response")
	}
	if len(r) == 0 {
		return 0, ErrNoData
	}
	value := float64(r[0].Value)
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, ErrNoData
	}
	return value, nil
}
