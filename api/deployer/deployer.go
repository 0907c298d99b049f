package deployer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/equinor/radix-common/utils/slice"
	"github.com/equinor/radix-release-api/api/manifest"
	"github.com/equinor/radix-release-api/api/utils/transient"
	"github.com/equinor/radix-release-api/internal/config"
	"github.com/rs/zerolog/log"
	"k8s.io/apimachinery/pkg/util/wait"
)

const (
	defaultRolloutTimeout      = 10 * time.Minute
	defaultRolloutPollInterval = 5 * time.Second
)

// Interface Rolls a service forward to the images of a manifest
type Interface interface {
	Deploy(ctx context.Context, serviceName string, images manifest.DeploymentManifest) error
}

// ServiceLookup Resolves service definitions by name
type ServiceLookup interface {
	Get(serviceName string) (config.ServiceDefinition, bool)
}

type Option func(d *Deployer)

func WithRolloutTimeout(timeout time.Duration) Option {
	return func(d *Deployer) {
		if timeout > 0 {
			d.rolloutTimeout = timeout
		}
	}
}

func WithRolloutPollInterval(interval time.Duration) Option {
	return func(d *Deployer) {
		if interval > 0 {
			d.pollInterval = interval
		}
	}
}

// Deployer Applies manifests through a ControlPlane and waits for the rollout to settle
type Deployer struct {
	services       ServiceLookup
	controlPlane   ControlPlane
	rolloutTimeout time.Duration
	pollInterval   time.Duration
}

var _ Interface = &Deployer{}

func New(services ServiceLookup, controlPlane ControlPlane, opts ...Option) *Deployer {
	d := &Deployer{
		services:       services,
		controlPlane:   controlPlane,
		rolloutTimeout: defaultRolloutTimeout,
		pollInterval:   defaultRolloutPollInterval,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Deploy Validates every manifest entry against the running service before writing anything, then
// sets the images and waits until all desired replicas run the new images.
func (d *Deployer) Deploy(ctx context.Context, serviceName string, images manifest.DeploymentManifest) error {
	service, ok := d.services.Get(serviceName)
	if !ok {
		return &ValidationError{ServiceName: serviceName, Reason: "unknown service"}
	}
	if err := images.Validate(); err != nil {
		return &ValidationError{ServiceName: serviceName, Reason: err.Error()}
	}
	logger := log.Ctx(ctx).With().Str("serviceName", serviceName).Logger()

	containers, err := d.controlPlane.Containers(ctx, service)
	if err != nil {
		if errors.Is(err, ErrDeploymentNotFound) {
			return &ValidationError{ServiceName: serviceName, Reason: err.Error()}
		}
		return err
	}
	unknown := slice.FindAll(images.Names(), func(name string) bool {
		return !slice.Any(containers, func(c string) bool { return c == name })
	})
	if len(unknown) > 0 {
		return &ValidationError{ServiceName: serviceName, Reason: "manifest references containers not in the service", UnknownContainers: unknown}
	}

	logger.Info().Msgf("Updating images of containers %v", images.Names())
	if err = d.controlPlane.SetImages(ctx, service, images); err != nil {
		return err
	}
	return d.waitForRollout(ctx, service)
}

func (d *Deployer) waitForRollout(ctx context.Context, service config.ServiceDefinition) error {
	logger := log.Ctx(ctx)
	var last RolloutStatus
	var deadlineExceeded bool

	rolledOut := func(ctx context.Context) (bool, error) {
		status, err := d.controlPlane.RolloutStatus(ctx, service)
		if err != nil {
			if transient.Is(err) {
				logger.Warn().Err(err).Msg("Failed to read rollout status, retrying")
				return false, nil
			}
			return false, err
		}
		last = status
		if status.DeadlineExceeded {
			deadlineExceeded = true
			return true, nil
		}
		logger.Debug().Msgf("Rollout of %s: %d/%d updated, %d available", service.Name, status.Updated, status.Desired, status.Available)
		return status.Complete(), nil
	}

	err := wait.PollUntilContextTimeout(ctx, d.pollInterval, d.rolloutTimeout, true, rolledOut)
	rolloutErr := func(reason string) error {
		return &RolloutError{
			ServiceName: service.Name,
			Reason:      reason,
			Desired:     last.Desired,
			Updated:     last.Updated,
			Available:   last.Available,
			Unavailable: last.Unavailable,
		}
	}
	switch {
	case err == nil && deadlineExceeded:
		return rolloutErr("progress deadline exceeded")
	case err == nil:
		logger.Info().Msgf("Rollout of %s complete", service.Name)
		return nil
	case wait.Interrupted(err) && ctx.Err() == nil:
		return rolloutErr(fmt.Sprintf("not complete within %s", d.rolloutTimeout))
	case wait.Interrupted(err):
		return rolloutErr(ctx.Err().Error())
	default:
		return err
	}
}
