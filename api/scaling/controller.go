package scaling

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/equinor/radix-release-api/api/metrics"
	"github.com/equinor/radix-release-api/internal/config"
	"github.com/rs/zerolog/log"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/utils/clock"
)

// ErrUnknownService No scaling policy exists for the service
var ErrUnknownService = errors.New("unknown service")

// MetricsSource Current utilization of a service, in percent of its requests
type MetricsSource interface {
	Utilization(ctx context.Context, service config.ServiceDefinition) (float64, error)
}

// ReplicaScaler Reads and writes the desired replica count of a service
type ReplicaScaler interface {
	GetReplicas(ctx context.Context, service config.ServiceDefinition) (int32, error)
	SetReplicas(ctx context.Context, service config.ServiceDefinition, replicas int32) error
}

// Status Controller view of one service
// swagger:model ScalingStatus
type Status struct {
	Policy       Policy     `json:"policy"`
	LastDecision *Decision  `json:"lastDecision,omitempty"`
	LastObserved *time.Time `json:"lastObserved,omitempty"`
	LastScaleOut *time.Time `json:"lastScaleOut,omitempty"`
	LastScaleIn  *time.Time `json:"lastScaleIn,omitempty"`
	LastError    string     `json:"lastError,omitempty"`
}

type serviceState struct {
	service      config.ServiceDefinition
	policy       Policy
	cooldowns    cooldowns
	lastDecision *Decision
	lastObserved time.Time
	lastError    string
}

// Controller Keeps the replica count of each service near its utilization target. Runs independently
// of pipeline runs; a concurrent rollout and a replica change both write the Deployment, last write wins.
type Controller struct {
	metrics MetricsSource
	scaler  ReplicaScaler
	clock   clock.Clock

	mu     sync.Mutex
	states map[string]*serviceState
}

func NewController(services []config.ServiceDefinition, metricsSource MetricsSource, scaler ReplicaScaler, clk clock.Clock) *Controller {
	states := make(map[string]*serviceState, len(services))
	for _, service := range services {
		states[service.Name] = &serviceState{service: service, policy: PolicyFromDefinition(service)}
	}
	return &Controller{metrics: metricsSource, scaler: scaler, clock: clk, states: states}
}

// Run Reconciles every service on its policy interval until ctx is done
func (c *Controller) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for serviceName, state := range c.states {
		wg.Add(1)
		go func(serviceName string, interval time.Duration) {
			defer wg.Done()
			logger := log.Ctx(ctx).With().Str("pkg", "scaling").Str("serviceName", serviceName).Logger()
			ctx := logger.WithContext(ctx)
			wait.UntilWithContext(ctx, func(ctx context.Context) {
				if _, err := c.Reconcile(ctx, serviceName); err != nil {
					logger.Warn().Err(err).Msg("Failed to reconcile replicas")
				}
			}, interval)
		}(serviceName, state.policy.Interval)
	}
	wg.Wait()
	return nil
}

// Reconcile Observes utilization and replicas once and writes a new desired replica count when the policy asks for it
func (c *Controller) Reconcile(ctx context.Context, serviceName string) (Decision, error) {
	c.mu.Lock()
	state, ok := c.states[serviceName]
	if !ok {
		c.mu.Unlock()
		return Decision{}, ErrUnknownService
	}
	service, policy, cd := state.service, state.policy, state.cooldowns
	c.mu.Unlock()

	decision, err := c.observe(ctx, service, policy, cd)
	if err == nil && decision.Direction != NoChange {
		err = c.scaler.SetReplicas(ctx, service, decision.Desired)
	}
	now := c.clock.Now()

	c.mu.Lock()
	defer c.mu.Unlock()
	state.lastObserved = now
	if err != nil {
		state.lastError = err.Error()
		return decision, err
	}
	state.lastError = ""
	state.lastDecision = &decision
	if decision.Direction == NoChange {
		return decision, nil
	}
	switch {
	case decision.Clamped:
	case decision.Direction == ScaleOut:
		state.cooldowns.lastScaleOut = now
	case decision.Direction == ScaleIn:
		state.cooldowns.lastScaleIn = now
	}

	log.Ctx(ctx).Info().
		Int32("current", decision.Current).
		Int32("desired", decision.Desired).
		Float64("utilization", decision.Utilization).
		Msgf("Scaled %s: %s", decision.Direction, decision.Reason)
	metrics.AddScalingEvent(service.Name, string(decision.Direction), decision.Desired)
	return decision, nil
}

func (c *Controller) observe(ctx context.Context, service config.ServiceDefinition, policy Policy, cd cooldowns) (Decision, error) {
	current, err := c.scaler.GetReplicas(ctx, service)
	if err != nil {
		return Decision{}, err
	}
	utilization, err := c.metrics.Utilization(ctx, service)
	if err != nil {
		return Decision{Current: current, Desired: current, Direction: NoChange}, err
	}
	return Decide(policy, current, utilization, c.clock.Now(), cd), nil
}

// Status Returns the policy and latest observation of a service
func (c *Controller) Status(serviceName string) (Status, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	state, ok := c.states[serviceName]
	if !ok {
		return Status{}, false
	}
	status := Status{Policy: state.policy, LastError: state.lastError}
	if state.lastDecision != nil {
		decision := *state.lastDecision
		status.LastDecision = &decision
	}
	status.LastObserved = timePtr(state.lastObserved)
	status.LastScaleOut = timePtr(state.cooldowns.lastScaleOut)
	status.LastScaleIn = timePtr(state.cooldowns.lastScaleIn)
	return status, true
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
