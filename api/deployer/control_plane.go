package deployer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/equinor/radix-common/utils/slice"
	"github.com/equinor/radix-release-api/api/manifest"
	"github.com/equinor/radix-release-api/api/utils/transient"
	"github.com/equinor/radix-release-api/internal/config"
	jsonPatch "github.com/evanphx/json-patch/v5"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/util/retry"
)

// ErrDeploymentNotFound The Deployment backing a service does not exist
var ErrDeploymentNotFound = errors.New("deployment not found")

// RolloutStatus Snapshot of a Deployment's rollout progress
type RolloutStatus struct {
	Generation         int64
	ObservedGeneration int64
	Desired            int32
	Replicas           int32
	Updated            int32
	Available          int32
	Unavailable        int32
	// DeadlineExceeded the cluster gave up progressing the rollout
	DeadlineExceeded bool
}

// Complete Every desired replica runs the new template and is available, and no old replicas remain
func (s RolloutStatus) Complete() bool {
	return s.ObservedGeneration >= s.Generation &&
		s.Updated == s.Desired &&
		s.Available == s.Desired &&
		s.Replicas == s.Desired &&
		s.Unavailable == 0
}

// ControlPlane Reads and writes the running state of a service
type ControlPlane interface {
	Containers(ctx context.Context, service config.ServiceDefinition) ([]string, error)
	SetImages(ctx context.Context, service config.ServiceDefinition, images manifest.DeploymentManifest) error
	RolloutStatus(ctx context.Context, service config.ServiceDefinition) (RolloutStatus, error)
	GetReplicas(ctx context.Context, service config.ServiceDefinition) (int32, error)
	SetReplicas(ctx context.Context, service config.ServiceDefinition, replicas int32) error
}

// KubeControlPlane Services backed by Kubernetes Deployments
type KubeControlPlane struct {
	client kubernetes.Interface
}

var _ ControlPlane = &KubeControlPlane{}

func NewKubeControlPlane(client kubernetes.Interface) *KubeControlPlane {
	return &KubeControlPlane{client: client}
}

func (k *KubeControlPlane) Containers(ctx context.Context, service config.ServiceDefinition) ([]string, error) {
	deployment, err := k.getDeployment(ctx, service)
	if err != nil {
		return nil, err
	}
	return slice.Map(deployment.Spec.Template.Spec.Containers, func(c corev1.Container) string { return c.Name }), nil
}

// SetImages Sets the image of each listed container with a merge patch. The patch carries the
// resourceVersion it was computed from, so a concurrent writer causes a conflict and a recomputed patch.
func (k *KubeControlPlane) SetImages(ctx context.Context, service config.ServiceDefinition, images manifest.DeploymentManifest) error {
	return retry.RetryOnConflict(retry.DefaultRetry, func() error {
		current, err := k.getDeployment(ctx, service)
		if err != nil {
			return err
		}
		desired := current.DeepCopy()
		for i, c := range desired.Spec.Template.Spec.Containers {
			if image, ok := images.Image(c.Name); ok {
				desired.Spec.Template.Spec.Containers[i].Image = image
			}
		}
		base := current.DeepCopy()
		base.ResourceVersion = ""
		return k.patch(ctx, base, desired)
	})
}

func (k *KubeControlPlane) RolloutStatus(ctx context.Context, service config.ServiceDefinition) (RolloutStatus, error) {
	deployment, err := k.getDeployment(ctx, service)
	if err != nil {
		return RolloutStatus{}, err
	}
	desired := int32(1)
	if deployment.Spec.Replicas != nil {
		desired = *deployment.Spec.Replicas
	}
	status := RolloutStatus{
		Generation:         deployment.Generation,
		ObservedGeneration: deployment.Status.ObservedGeneration,
		Desired:            desired,
		Replicas:           deployment.Status.Replicas,
		Updated:            deployment.Status.UpdatedReplicas,
		Available:          deployment.Status.AvailableReplicas,
		Unavailable:        deployment.Status.UnavailableReplicas,
	}
	for _, condition := range deployment.Status.Conditions {
		if condition.Type == appsv1.DeploymentProgressing && condition.Status == corev1.ConditionFalse && condition.Reason == "ProgressDeadlineExceeded" {
			status.DeadlineExceeded = true
		}
	}
	return status, nil
}

func (k *KubeControlPlane) GetReplicas(ctx context.Context, service config.ServiceDefinition) (int32, error) {
	deployment, err := k.getDeployment(ctx, service)
	if err != nil {
		return 0, err
	}
	if deployment.Spec.Replicas == nil {
		return 1, nil
	}
	return *deployment.Spec.Replicas, nil
}

// SetReplicas Writes only spec.replicas, leaving the pod template to concurrent rollouts
func (k *KubeControlPlane) SetReplicas(ctx context.Context, service config.ServiceDefinition, replicas int32) error {
	patch, err := json.Marshal(map[string]any{"spec": map[string]any{"replicas": replicas}})
	if err != nil {
		return err
	}
	_, err = k.client.AppsV1().Deployments(service.Namespace).Patch(ctx, service.Deployment, types.MergePatchType, patch, metav1.PatchOptions{})
	return classifyKubeError(err, "set replicas")
}

func (k *KubeControlPlane) getDeployment(ctx context.Context, service config.ServiceDefinition) (*appsv1.Deployment, error) {
	deployment, err := k.client.AppsV1().Deployments(service.Namespace).Get(ctx, service.Deployment, metav1.GetOptions{})
	if err != nil {
		if apierrors.IsNotFound(err) {
			return nil, fmt.Errorf("%s/%s: %w", service.Namespace, service.Deployment, ErrDeploymentNotFound)
		}
		return nil, classifyKubeError(err, "get deployment")
	}
	return deployment, nil
}

func (k *KubeControlPlane) patch(ctx context.Context, current, desired *appsv1.Deployment) error {
	currentJSON, err := json.Marshal(current)
	if err != nil {
		return err
	}
	desiredJSON, err := json.Marshal(desired)
	if err != nil {
		return err
	}
	patchBytes, err := jsonPatch.CreateMergePatch(currentJSON, desiredJSON)
	if err != nil {
		return fmt.Errorf("create deployment patch: %w", err)
	}
	if string(patchBytes) == "{}" {
		return nil
	}
	_, err = k.client.AppsV1().Deployments(desired.Namespace).Patch(ctx, desired.Name, types.MergePatchType, patchBytes, metav1.PatchOptions{})
	if apierrors.IsConflict(err) {
		return err
	}
	return classifyKubeError(err, "patch deployment")
}

func classifyKubeError(err error, op string) error {
	switch {
	case err == nil:
		return nil
	case apierrors.IsServerTimeout(err),
		apierrors.IsTimeout(err),
		apierrors.IsTooManyRequests(err),
		apierrors.IsServiceUnavailable(err),
		apierrors.IsInternalError(err),
		apierrors.IsUnexpectedServerError(err),
		transient.IsNetworkError(err):
		return transient.Wrap(op, err)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}
